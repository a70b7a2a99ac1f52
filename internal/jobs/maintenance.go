// Package jobs runs the background maintenance loops: purging stale daily
// quota counters and reverifying token liveness rows whose last check has
// aged out.
package jobs

import (
	"context"
	"log"
	"time"

	"github.com/rawblock/daybreakscan/internal/scan"
	"github.com/rawblock/daybreakscan/internal/store"
	"github.com/rawblock/daybreakscan/internal/upstream"
)

const (
	// staleAfter is how long past the liveness TTL a row may sit before
	// the reverifier touches it.
	staleAfter = 2*time.Hour + 6*time.Hour

	// reverifyBatch bounds how many stale rows one pass rechecks.
	reverifyBatch = 90
)

// DexIndex is the liquidity-index slice the reverifier needs.
type DexIndex interface {
	GetPairs(ctx context.Context, mints []string) ([]upstream.DexPair, error)
}

// Maintenance owns the periodic housekeeping. One instance runs per
// process; both jobs share a single ticker.
type Maintenance struct {
	store    store.Store
	dex      DexIndex
	interval time.Duration
	now      func() time.Time
}

func NewMaintenance(st store.Store, dex DexIndex) *Maintenance {
	return &Maintenance{
		store:    st,
		dex:      dex,
		interval: time.Hour,
		now:      time.Now,
	}
}

// Run blocks until ctx is cancelled, doing one housekeeping pass per tick.
func (m *Maintenance) Run(ctx context.Context) {
	log.Println("[Jobs] maintenance loop started")
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("[Jobs] maintenance loop stopped")
			return
		case <-ticker.C:
			m.purgeUsage(ctx)
			m.reverifyLiveness(ctx)
		}
	}
}

// purgeUsage drops quota counters from previous days. Counters also roll
// over lazily on read; this pass just keeps the table from accumulating
// one row per identity per day forever.
func (m *Maintenance) purgeUsage(ctx context.Context) {
	today := m.now().Format("2006-01-02")
	dropped, err := m.store.PurgeStaleUsage(ctx, today)
	if err != nil {
		log.Printf("[Jobs] usage purge failed: %v", err)
		return
	}
	if dropped > 0 {
		log.Printf("[Jobs] purged %d stale usage counters", dropped)
	}
}

// reverifyLiveness rechecks tokens still marked alive whose last check
// is older than the liveness TTL plus slack. Tokens the DEX index no
// longer lists are marked dead; listed ones get their fresh verdict.
func (m *Maintenance) reverifyLiveness(ctx context.Context) {
	cutoff := m.now().Add(-staleAfter)
	rows, err := m.store.StaleAliveTokens(ctx, cutoff, reverifyBatch)
	if err != nil {
		log.Printf("[Jobs] stale token query failed: %v", err)
		return
	}
	if len(rows) == 0 {
		return
	}

	mints := make([]string, len(rows))
	for i, row := range rows {
		mints[i] = row.Mint
	}

	checked := m.now()
	updated, died := 0, 0
	for start := 0; start < len(mints); start += upstream.DexBatchLimit {
		group := mints[start:min(start+upstream.DexBatchLimit, len(mints))]
		pairs, err := m.dex.GetPairs(ctx, group)
		if err != nil {
			// Leave this group stale; the next pass retries it.
			log.Printf("[Jobs] reverify batch of %d failed: %v", len(group), err)
			continue
		}
		statuses := scan.AggregatePairs(pairs)
		for _, mint := range group {
			alive := false
			liquidity := 0.0
			if status, ok := statuses[mint]; ok {
				alive = status.Alive
				liquidity = status.LiquidityUSD
			}
			if err := m.store.UpdateTokenLiveness(ctx, mint, alive, liquidity, checked); err != nil {
				log.Printf("[Jobs] liveness update for %s failed: %v", mint, err)
				continue
			}
			updated++
			if !alive {
				died++
			}
		}
	}
	log.Printf("[Jobs] reverified %d stale tokens, %d now dead", updated, died)
}
