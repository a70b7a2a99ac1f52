package scan

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/rawblock/daybreakscan/internal/solana"
	"github.com/rawblock/daybreakscan/pkg/models"
)

const (
	// deathEvidenceConcurrency caps how many dead tokens gather evidence
	// at once.
	deathEvidenceConcurrency = 5

	// deathPeakBuyerFloorUSD separates tokens that once held real
	// liquidity from ones nobody ever bought.
	deathPeakBuyerFloorUSD = 500

	// deathQuickDumpHours is the lifespan under which a full deployer
	// exit reads as a dump rather than a slow bleed.
	deathQuickDumpHours = 48

	// deathLifespanCapHours keeps ancient tokens from skewing evidence.
	deathLifespanCapHours = 168

	// deathSoldThresholdPct is the holdings share, in percent, under
	// which the deployer counts as fully exited.
	deathSoldThresholdPct = 0.01

	// initialTransferWindow bounds how soon after launch an outbound
	// transfer still counts as initial distribution.
	initialTransferWindow = 4 * time.Hour

	initialTransferProbeTxs = 20
)

// deathCandidate is one dead token queued for classification, carrying
// the highest liquidity it ever showed.
type deathCandidate struct {
	launch           launch
	peakLiquidityUSD float64
}

// classifyDeaths labels each dead token with how it died. Evidence
// gathering is expensive, so candidates are ranked by peak liquidity and
// only the top slice is examined; the rest default to natural, which is
// almost always what an unfunded token's death was.
func (p *Pipeline) classifyDeaths(ctx context.Context, deployer, funder string, candidates []deathCandidate) map[string]*models.DeathClassification {
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].peakLiquidityUSD > candidates[j].peakLiquidityUSD
	})

	results := make(map[string]*models.DeathClassification, len(candidates))

	limit := p.cfg.DeathClassifyCap
	if limit <= 0 {
		limit = 50
	}
	examined := candidates
	if len(examined) > limit {
		for _, c := range examined[limit:] {
			results[c.launch.Mint] = &models.DeathClassification{
				Type:     "natural",
				Evidence: p.baseEvidence(c),
			}
		}
		examined = examined[:limit]
	}

	sem := semaphore.NewWeighted(deathEvidenceConcurrency)
	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for _, c := range examined {
		if sem.Acquire(ctx, 1) != nil {
			break
		}
		wg.Add(1)
		go func(c deathCandidate) {
			defer wg.Done()
			defer sem.Release(1)
			classification := p.classifyDeath(ctx, deployer, funder, c)
			mu.Lock()
			results[c.launch.Mint] = classification
			mu.Unlock()
		}(c)
	}
	wg.Wait()
	return results
}

func (p *Pipeline) baseEvidence(c deathCandidate) models.DeathEvidence {
	return models.DeathEvidence{
		PeakLiquidityUSD: c.peakLiquidityUSD,
		LifespanHours:    p.lifespanHours(c.launch.CreatedAt),
		HadRealBuyers:    c.peakLiquidityUSD >= deathPeakBuyerFloorUSD,
	}
}

func (p *Pipeline) classifyDeath(ctx context.Context, deployer, funder string, c deathCandidate) *models.DeathClassification {
	ev := p.baseEvidence(c)

	if pct, err := p.holdingsPct(ctx, deployer, c.launch.Mint); err == nil {
		ev.DeployerHoldingsPct = &pct
		sold := pct < deathSoldThresholdPct
		ev.DeployerSold = &sold
	}

	p.initialTransferEvidence(ctx, deployer, funder, c.launch, &ev)

	return &models.DeathClassification{Type: deathType(ev), Evidence: ev}
}

// deathType applies the classification rules in order of specificity.
func deathType(ev models.DeathEvidence) string {
	sold := ev.DeployerSold != nil && *ev.DeployerSold
	associated := ev.InitialTransferIsAssociated != nil && *ev.InitialTransferIsAssociated

	switch {
	case associated && sold:
		return "distributed_rug"
	case sold && ev.LifespanHours < deathQuickDumpHours:
		return "likely_rug"
	case ev.HadRealBuyers && sold:
		return "likely_rug"
	case !ev.HadRealBuyers && (ev.DeployerHoldingsPct == nil || *ev.DeployerHoldingsPct > 0):
		return "natural"
	default:
		return "unverified"
	}
}

// initialTransferEvidence finds where the deployer first sent the token
// within the launch window. A transfer into a DEX is routine selling; a
// transfer to a wallet sharing the deployer's funding source is the
// fingerprint of a coordinated distribution.
func (p *Pipeline) initialTransferEvidence(ctx context.Context, deployer, funder string, l launch, ev *models.DeathEvidence) {
	txs, err := p.history.EnhancedTransactions(ctx, l.Mint, initialTransferProbeTxs, "asc", "")
	if err != nil {
		return
	}

	windowEnd := int64(0)
	if l.CreatedAt > 0 {
		windowEnd = l.CreatedAt + int64(initialTransferWindow/time.Second)
	}

	for _, tx := range txs {
		if windowEnd > 0 && tx.Timestamp > windowEnd {
			return
		}
		for _, tr := range tx.TokenTransfers {
			if tr.Mint != l.Mint || tr.FromUserAccount != deployer {
				continue
			}
			dest := tr.ToUserAccount
			if dest == "" || dest == deployer {
				continue
			}

			ev.InitialTransferTo = dest
			_, destIsDex := solana.IsDexProgram(dest)
			isDex := destIsDex || enhancedTouchesAnyDex(tx)
			ev.InitialTransferIsDex = &isDex

			if isDex {
				assoc := false
				ev.InitialTransferIsAssociated = &assoc
			} else if funder != "" {
				if destFunding, err := p.fundingSource(ctx, dest); err == nil && destFunding != nil {
					assoc := destFunding.SourceWallet == funder
					ev.InitialTransferIsAssociated = &assoc
				}
			}
			return
		}
	}
}

// lifespanHours measures a token's age, capped so week-old and year-old
// deaths weigh the same.
func (p *Pipeline) lifespanHours(createdAt int64) float64 {
	if createdAt <= 0 {
		return 0
	}
	hours := p.now().Sub(time.Unix(createdAt, 0)).Hours()
	if hours < 0 {
		hours = 0
	}
	return math.Min(deathLifespanCapHours, hours)
}
