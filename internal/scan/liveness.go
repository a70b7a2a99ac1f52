package scan

import (
	"context"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/rawblock/daybreakscan/internal/metrics"
	"github.com/rawblock/daybreakscan/internal/upstream"
	"github.com/rawblock/daybreakscan/pkg/models"
)

const (
	livenessTTL = 2 * time.Hour

	// AliveMinLiquidityUSD is the liquidity floor below which a token
	// with no 24h volume counts as dead.
	AliveMinLiquidityUSD = 100
)

// classifyLiveness resolves a TokenStatus for every mint it can verify
// against the DEX index, plus whatever names the index volunteered.
// Mints absent from the status map could not be verified and must be
// treated as unverified, never as dead.
func (p *Pipeline) classifyLiveness(ctx context.Context, mints []string) (map[string]*models.TokenStatus, map[string]models.TokenMeta) {
	statuses := make(map[string]*models.TokenStatus, len(mints))
	names := make(map[string]models.TokenMeta)

	var missing []string
	for _, mint := range mints {
		if status, ok := p.liveness.Get(mint); ok {
			metrics.CacheHit("liveness")
			statuses[mint] = status
			continue
		}
		metrics.CacheMiss("liveness")
		missing = append(missing, mint)
	}
	if len(missing) == 0 {
		return statuses, names
	}

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for start := 0; start < len(missing); start += upstream.DexBatchLimit {
		group := missing[start:min(start+upstream.DexBatchLimit, len(missing))]
		wg.Add(1)
		go func(group []string) {
			defer wg.Done()
			pairs, err := p.dex.GetPairs(ctx, group)
			if err != nil {
				// Nothing from this group gets cached, so the next scan
				// retries instead of inheriting a transient failure.
				log.Printf("[Scan] liveness batch of %d failed: %v", len(group), err)
				return
			}
			resolved := AggregatePairs(pairs)
			mu.Lock()
			for mint, status := range resolved {
				statuses[mint] = status
				p.liveness.Set(mint, status)
			}
			for _, pair := range pairs {
				if pair.BaseToken.Address != "" && pair.BaseToken.Symbol != "" {
					if _, ok := names[pair.BaseToken.Address]; !ok {
						names[pair.BaseToken.Address] = models.TokenMeta{
							Address: pair.BaseToken.Address,
							Name:    pair.BaseToken.Name,
							Symbol:  pair.BaseToken.Symbol,
						}
					}
				}
			}
			mu.Unlock()
		}(group)
	}
	wg.Wait()
	return statuses, names
}

// AggregatePairs folds DEX pairs into one TokenStatus per base token.
// Liquidity and volume sum across a token's pairs; price, FDV, market
// cap, creation time and socials come from the first pair listed.
func AggregatePairs(pairs []upstream.DexPair) map[string]*models.TokenStatus {
	statuses := make(map[string]*models.TokenStatus)
	for _, pair := range pairs {
		mint := pair.BaseToken.Address
		if mint == "" {
			continue
		}
		status, ok := statuses[mint]
		if !ok {
			status = &models.TokenStatus{Mint: mint}
			if price, err := strconv.ParseFloat(pair.PriceUsd, 64); err == nil {
				status.PriceUSD = &price
			}
			if pair.FDV > 0 {
				fdv := pair.FDV
				status.FDV = &fdv
			}
			if pair.MarketCap > 0 {
				mc := pair.MarketCap
				status.MarketCap = &mc
			}
			if pair.PairCreatedAt > 0 {
				status.PairCreatedAt = pair.PairCreatedAt / 1000
			}
			if pair.Info != nil {
				for _, site := range pair.Info.Websites {
					status.Websites = append(status.Websites, site.URL)
				}
				for _, social := range pair.Info.Socials {
					status.Socials = append(status.Socials, models.Social{Type: social.Type, URL: social.URL})
				}
			}
			statuses[mint] = status
		}
		status.LiquidityUSD += pair.Liquidity.USD
		status.Volume24hUSD += pair.Volume.H24
	}
	for _, status := range statuses {
		status.Alive = status.LiquidityUSD >= AliveMinLiquidityUSD || status.Volume24hUSD > 0
	}
	return statuses
}
