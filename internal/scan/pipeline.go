// Package scan implements the deployer reputation pipeline: deployer
// discovery, launch enumeration, liveness and death classification,
// funding ancestry, token risk signals, and the reputation read that
// folds them together. Stages compose by data dependency only:
// deployer, then launches and funding, then liveness, then death,
// risks and cluster side by side, then the score.
package scan

import (
	"context"
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/rawblock/daybreakscan/internal/cache"
	"github.com/rawblock/daybreakscan/internal/config"
	"github.com/rawblock/daybreakscan/internal/metrics"
	"github.com/rawblock/daybreakscan/internal/reputation"
	"github.com/rawblock/daybreakscan/internal/solana"
	"github.com/rawblock/daybreakscan/internal/store"
	"github.com/rawblock/daybreakscan/internal/upstream"
	"github.com/rawblock/daybreakscan/pkg/models"
)

// HistoryClient is the enhanced-history surface the stages consume.
type HistoryClient interface {
	EnhancedTransactions(ctx context.Context, address string, limit int, sortOrder, before string) ([]upstream.EnhancedTransaction, error)
}

// ChainRPC is the basic JSON-RPC surface the stages consume.
type ChainRPC interface {
	GetTransaction(ctx context.Context, signature string) (*upstream.ParsedTransaction, error)
	GetSignatures(ctx context.Context, address, before string, limit int) ([]upstream.SignatureInfo, error)
	GetTransactionsBatch(ctx context.Context, sigs []string) ([]*upstream.ParsedTransaction, error)
	GetMintAccount(ctx context.Context, mint string) (*upstream.MintInfo, error)
	GetTokenAccounts(ctx context.Context, owner, mint string) ([]upstream.TokenAccountBalance, error)
	GetLargestAccounts(ctx context.Context, mint string) ([]upstream.LargestAccount, error)
	GetAsset(ctx context.Context, mint string) (*models.TokenMeta, error)
}

// DexIndex resolves trading pairs for a batch of mints.
type DexIndex interface {
	GetPairs(ctx context.Context, mints []string) ([]upstream.DexPair, error)
}

// PriceOracle resolves spot prices for mints the DEX index has not
// listed yet, which covers tokens still on the bonding curve.
type PriceOracle interface {
	GetPrices(ctx context.Context, mints []string) (map[string]float64, error)
}

// RugReporter serves third-party rug assessments.
type RugReporter interface {
	GetReport(ctx context.Context, mint string) (*upstream.RugReport, error)
}

// Pipeline owns one scan flow end to end. It is safe for concurrent use;
// scans share nothing but the caches and the store.
type Pipeline struct {
	history  HistoryClient
	chain    ChainRPC
	dex      DexIndex
	prices   PriceOracle
	rug      RugReporter
	store    store.Store
	cfg      *config.Config
	liveness *cache.Cache[*models.TokenStatus]
	now      func() time.Time
}

func NewPipeline(cfg *config.Config, history HistoryClient, chain ChainRPC, dex DexIndex, prices PriceOracle, rug RugReporter, st store.Store) *Pipeline {
	return &Pipeline{
		history:  history,
		chain:    chain,
		dex:      dex,
		prices:   prices,
		rug:      rug,
		store:    st,
		cfg:      cfg,
		liveness: cache.New[*models.TokenStatus](livenessTTL),
		now:      time.Now,
	}
}

// FlushCaches drops the liveness cache.
func (p *Pipeline) FlushCaches() { p.liveness.Flush() }

// Close stops the cache sweeper.
func (p *Pipeline) Close() { p.liveness.Stop() }

// ScanToken runs the full pipeline for a token mint: find the deployer,
// then scan everything the deployer has ever launched.
func (p *Pipeline) ScanToken(ctx context.Context, mint, requester string) (*models.Scan, *Error) {
	if err := solana.ValidateAddress(mint); err != nil {
		return nil, NewError(KindInvalidAddress, err.Error())
	}
	ctx, cancel := context.WithTimeout(ctx, p.cfg.ScanTimeout)
	defer cancel()

	deployer, err := p.findDeployer(ctx, mint)
	if err != nil {
		return nil, Classify(err)
	}
	return p.scanDeployer(ctx, deployer, mint, requester)
}

// ScanWallet scans a deployer wallet directly, skipping discovery and
// token-specific risk signals.
func (p *Pipeline) ScanWallet(ctx context.Context, wallet, requester string) (*models.Scan, *Error) {
	if err := solana.ValidateAddress(wallet); err != nil {
		return nil, NewError(KindInvalidAddress, err.Error())
	}
	ctx, cancel := context.WithTimeout(ctx, p.cfg.ScanTimeout)
	defer cancel()

	deployer := &models.Deployer{Wallet: wallet, Method: "wallet"}
	return p.scanDeployer(ctx, deployer, "", requester)
}

func (p *Pipeline) scanDeployer(ctx context.Context, deployer *models.Deployer, scannedMint, requester string) (*models.Scan, *Error) {
	started := p.now()

	var (
		launches []launch
		limited  bool
		funding  *models.Funding
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		launches, limited, err = p.enumerateLaunches(gctx, deployer.Wallet)
		return err
	})
	g.Go(func() error {
		f, err := p.fundingSource(gctx, deployer.Wallet)
		if err != nil {
			// Ancestry is advisory; the scan proceeds without it.
			if gctx.Err() != nil {
				return err
			}
			log.Printf("[Scan] funding source for %s unavailable: %v", deployer.Wallet, err)
			return nil
		}
		funding = f
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, Classify(err)
	}

	// The scanned mint always appears in its own scan, even when
	// enumeration could not attribute it.
	if scannedMint != "" && !hasMint(launches, scannedMint) {
		launches = append(launches, launch{
			Mint:      scannedMint,
			CreatedAt: deployer.FirstSeen,
			Signature: deployer.CreationSignature,
		})
	}

	for _, l := range launches {
		if l.CreatedAt > 0 && (deployer.FirstSeen == 0 || l.CreatedAt < deployer.FirstSeen) {
			deployer.FirstSeen = l.CreatedAt
		}
		if l.CreatedAt > deployer.LastSeen {
			deployer.LastSeen = l.CreatedAt
		}
	}

	storedRows := p.storedTokens(ctx, deployer.Wallet)

	mints := make([]string, len(launches))
	for i, l := range launches {
		mints[i] = l.Mint
	}
	statuses, names := p.classifyLiveness(ctx, mints)
	if ctx.Err() != nil {
		return nil, Classify(ctx.Err())
	}

	tokens := make([]models.TokenInfo, 0, len(launches))
	summary := models.ScanSummary{TokensCreated: len(launches), LimitReached: limited}
	var deathCandidates []deathCandidate

	for _, l := range launches {
		info := models.TokenInfo{Mint: l.Mint, CreatedAt: l.CreatedAt}
		if meta, ok := names[l.Mint]; ok {
			info.Name = meta.Name
			info.Symbol = meta.Symbol
		} else if row, ok := storedRows[l.Mint]; ok {
			info.Name = row.Name
			info.Symbol = row.Symbol
		}

		if status, ok := statuses[l.Mint]; ok {
			info.Status = status
			if status.Alive {
				info.Liveness = "alive"
				summary.TokensAlive++
			} else {
				info.Liveness = "dead"
				summary.TokensDead++
				peak := status.LiquidityUSD
				if row, ok := storedRows[l.Mint]; ok && row.PeakLiquidityUSD > peak {
					peak = row.PeakLiquidityUSD
				}
				deathCandidates = append(deathCandidates, deathCandidate{launch: l, peakLiquidityUSD: peak})
			}
		} else {
			info.Liveness = "unverified"
			summary.TokensUnverified++
		}
		tokens = append(tokens, info)
	}

	funder := ""
	if funding != nil {
		funder = funding.SourceWallet
	}

	var (
		deaths  map[string]*models.DeathClassification
		risks   *models.RiskSignals
		cluster *models.Cluster
		wg      sync.WaitGroup
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		deaths = p.classifyDeaths(ctx, deployer.Wallet, funder, deathCandidates)
	}()
	if scannedMint != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			risks = p.collectRiskSignals(ctx, scannedMint, deployer.Wallet, deployer.CreationSignature)
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		cluster = p.analyzeCluster(ctx, funding, deployer.Wallet)
	}()
	wg.Wait()
	if ctx.Err() != nil {
		return nil, Classify(ctx.Err())
	}

	for i := range tokens {
		if d, ok := deaths[tokens[i].Mint]; ok {
			tokens[i].Death = d
		}
	}

	var tokenMeta *models.TokenMeta
	if scannedMint != "" {
		if meta, err := p.chain.GetAsset(ctx, scannedMint); err == nil {
			tokenMeta = meta
		} else {
			log.Printf("[Scan] asset metadata for %s unavailable: %v", scannedMint, err)
			tokenMeta = &models.TokenMeta{Address: scannedMint}
		}
		for i := range tokens {
			if tokens[i].Mint != scannedMint {
				continue
			}
			if tokens[i].Name == "" {
				tokens[i].Name = tokenMeta.Name
				tokens[i].Symbol = tokenMeta.Symbol
			}
			// Bonding-curve tokens have no pairs yet; the price oracle
			// still knows a spot price worth showing.
			if tokens[i].Liveness == "unverified" && tokens[i].Status == nil && p.prices != nil {
				if prices, err := p.prices.GetPrices(ctx, []string{scannedMint}); err == nil {
					if price, ok := prices[scannedMint]; ok && price > 0 {
						tokens[i].Status = &models.TokenStatus{Mint: scannedMint, PriceUSD: &price}
					}
				}
			}
		}
	}

	scan := &models.Scan{
		ID:       uuid.NewString(),
		Token:    tokenMeta,
		Deployer: deployer,
		Tokens:   tokens,
		Summary:  summary,
		Risks:    risks,
		Funding:  funding,
		Cluster:  cluster,
		Confidence: models.Confidence{
			VerifiedCount:   summary.TokensAlive + summary.TokensDead,
			UnverifiedCount: summary.TokensUnverified,
			ClusterChecked:  cluster != nil,
			Method:          deployer.Method,
		},
		ScannedAt: p.now().Unix(),
	}
	scan.Reputation = p.scoreScan(scan, funding)
	scan.Evidence = buildEvidence(scan)

	p.persistScan(scan, requester, started)
	metrics.ObserveScan(scan.Reputation.Verdict, p.now().Sub(started))

	return scan, nil
}

func hasMint(launches []launch, mint string) bool {
	for _, l := range launches {
		if l.Mint == mint {
			return true
		}
	}
	return false
}

// storedTokens loads the durable per-deployer rows, which carry peak
// liquidity and names from earlier scans.
func (p *Pipeline) storedTokens(ctx context.Context, deployer string) map[string]store.DeployerToken {
	rows := make(map[string]store.DeployerToken)
	if p.store == nil {
		return rows
	}
	stored, err := p.store.DeployerTokens(ctx, deployer)
	if err != nil {
		log.Printf("[Scan] stored tokens for %s unavailable: %v", deployer, err)
		return rows
	}
	for _, row := range stored {
		rows[row.Mint] = row
	}
	return rows
}

// scoreScan derives the reputation inputs from the assembled scan.
func (p *Pipeline) scoreScan(scan *models.Scan, funding *models.Funding) *models.Reputation {
	verified := scan.Summary.TokensAlive + scan.Summary.TokensDead
	deathRate := 0.0
	if verified > 0 {
		deathRate = float64(scan.Summary.TokensDead) / float64(verified)
	}

	var (
		lifespanSum  float64
		lifespanN    int
		firstLaunch  int64
		latestLaunch int64
	)
	for _, t := range scan.Tokens {
		if t.CreatedAt <= 0 {
			continue
		}
		lifespanSum += p.now().Sub(time.Unix(t.CreatedAt, 0)).Hours() / 24
		lifespanN++
		if firstLaunch == 0 || t.CreatedAt < firstLaunch {
			firstLaunch = t.CreatedAt
		}
		if t.CreatedAt > latestLaunch {
			latestLaunch = t.CreatedAt
		}
	}
	avgLifespanDays := 0.0
	if lifespanN > 0 {
		avgLifespanDays = lifespanSum / float64(lifespanN)
	}

	lifetimeDays := 0.0
	if latestLaunch > firstLaunch {
		lifetimeDays = float64(latestLaunch-firstLaunch) / 86400
	}
	velocity := float64(scan.Summary.TokensCreated) / math.Max(1, lifetimeDays)

	clusterSize := 0
	if scan.Cluster != nil {
		clusterSize = scan.Cluster.DeployerCount
	}

	return reputation.Score(reputation.Inputs{
		DeathRate:       deathRate,
		RugRate:         deathRate,
		TokenCount:      scan.Summary.TokensCreated,
		VerifiedCount:   verified,
		AvgLifespanDays: avgLifespanDays,
		ClusterSize:     clusterSize,
		Risks:           scan.Risks,
		DeployVelocity:  velocity,
		Burner:          p.isBurnerDeployer(scan.Deployer, funding),
		BurnerPenalty:   p.cfg.BurnerPenalty,
	})
}

// isBurnerDeployer marks wallets that were funded and immediately began
// deploying. Throwaway wallets show hours between first funding and
// first launch; organic wallets show weeks.
func (p *Pipeline) isBurnerDeployer(dep *models.Deployer, funding *models.Funding) bool {
	if funding == nil || funding.FromCEX || funding.Timestamp <= 0 || dep.FirstSeen <= 0 {
		return false
	}
	gap := dep.FirstSeen - funding.Timestamp
	return gap >= 0 && gap <= int64(p.cfg.BurnerWindowHours)*3600
}

// buildEvidence collects the human-readable findings of a scan.
func buildEvidence(scan *models.Scan) []string {
	notes := make([]string, 0, 4)
	if scan.Summary.LimitReached {
		notes = append(notes, "history truncated at the enumeration cap; token counts are a floor")
	}
	if f := scan.Funding; f != nil {
		if f.FromCEX {
			notes = append(notes, fmt.Sprintf("deployer funded from %s hot wallet", f.CEXName))
		} else if f.SourceWallet != "" {
			notes = append(notes, "deployer funded from private wallet "+f.SourceWallet)
		}
	}
	if c := scan.Cluster; c != nil && c.DeployerCount > 0 {
		notes = append(notes, fmt.Sprintf("funder seeded %d wallets, %d of them deployers", c.FundedWallets, c.DeployerCount))
	}
	if r := scan.Risks; r != nil && r.BundleDetected != nil && *r.BundleDetected {
		notes = append(notes, "bundled buying detected at launch")
	}
	return notes
}

// persistScan writes the durable side effects of a finished scan. The
// scan context may be close to its deadline, so writes get their own.
func (p *Pipeline) persistScan(scan *models.Scan, requester string, started time.Time) {
	if p.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	checked := p.now()
	rows := make([]store.DeployerToken, 0, len(scan.Tokens))
	for _, t := range scan.Tokens {
		row := store.DeployerToken{
			Deployer:    scan.Deployer.Wallet,
			Mint:        t.Mint,
			Name:        t.Name,
			Symbol:      t.Symbol,
			LastChecked: checked,
		}
		if t.CreatedAt > 0 {
			created := time.Unix(t.CreatedAt, 0)
			row.CreatedAt = &created
		}
		if t.Status != nil && t.Liveness != "unverified" {
			alive := t.Status.Alive
			row.Alive = &alive
			row.PeakLiquidityUSD = t.Status.LiquidityUSD
		}
		rows = append(rows, row)
	}
	if err := p.store.UpsertDeployerTokens(ctx, rows); err != nil {
		log.Printf("[Scan] deployer token upsert failed: %v", err)
	}

	record := store.ScanRecord{
		ID:         scan.ID,
		Requester:  requester,
		Deployer:   scan.Deployer.Wallet,
		Score:      scan.Reputation.Score,
		Verdict:    scan.Reputation.Verdict,
		TokenCount: scan.Summary.TokensCreated,
		DurationMs: p.now().Sub(started).Milliseconds(),
		ScannedAt:  time.Unix(scan.ScannedAt, 0),
	}
	if scan.Token != nil {
		record.Mint = scan.Token.Address
	}
	if err := p.store.SaveScan(ctx, record); err != nil {
		log.Printf("[Scan] scan log write failed: %v", err)
	}
}
