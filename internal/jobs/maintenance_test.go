package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rawblock/daybreakscan/internal/store"
	"github.com/rawblock/daybreakscan/internal/upstream"
)

type jobStore struct {
	store.Store // panic on anything the jobs should not touch

	purged     int64
	purgeDay   string
	stale      []store.DeployerToken
	staleErr   error
	updates    map[string]bool
	liquidity  map[string]float64
	updateErrs map[string]error
}

func newJobStore() *jobStore {
	return &jobStore{
		updates:    make(map[string]bool),
		liquidity:  make(map[string]float64),
		updateErrs: make(map[string]error),
	}
}

func (s *jobStore) PurgeStaleUsage(_ context.Context, today string) (int64, error) {
	s.purgeDay = today
	return s.purged, nil
}

func (s *jobStore) StaleAliveTokens(context.Context, time.Time, int) ([]store.DeployerToken, error) {
	return s.stale, s.staleErr
}

func (s *jobStore) UpdateTokenLiveness(_ context.Context, mint string, alive bool, liquidityUSD float64, _ time.Time) error {
	if err := s.updateErrs[mint]; err != nil {
		return err
	}
	s.updates[mint] = alive
	s.liquidity[mint] = liquidityUSD
	return nil
}

type jobDex struct {
	pairs map[string][]upstream.DexPair // keyed by first mint of the group
	err   error
}

func (d *jobDex) GetPairs(_ context.Context, mints []string) ([]upstream.DexPair, error) {
	if d.err != nil {
		return nil, d.err
	}
	var out []upstream.DexPair
	for _, mint := range mints {
		out = append(out, d.pairs[mint]...)
	}
	return out, nil
}

func pairFor(mint string, liquidity, volume float64) upstream.DexPair {
	return upstream.DexPair{
		BaseToken: upstream.DexToken{Address: mint, Symbol: "TKN"},
		Liquidity: upstream.DexLiquidity{USD: liquidity},
		Volume:    upstream.DexVolume{H24: volume},
	}
}

func TestReverifyMarksDelistedDead(t *testing.T) {
	st := newJobStore()
	st.stale = []store.DeployerToken{
		{Mint: "mintAlive"},
		{Mint: "mintDusted"},
		{Mint: "mintDelisted"},
	}
	dex := &jobDex{pairs: map[string][]upstream.DexPair{
		"mintAlive":  {pairFor("mintAlive", 2500, 100)},
		"mintDusted": {pairFor("mintDusted", 40, 0)}, // below the floor, no volume
		// mintDelisted: no pairs at all
	}}

	m := NewMaintenance(st, dex)
	m.reverifyLiveness(context.Background())

	if alive, ok := st.updates["mintAlive"]; !ok || !alive {
		t.Errorf("mintAlive updated=%v alive=%v, want alive", ok, alive)
	}
	if st.liquidity["mintAlive"] != 2500 {
		t.Errorf("mintAlive liquidity = %v, want 2500", st.liquidity["mintAlive"])
	}
	if alive, ok := st.updates["mintDusted"]; !ok || alive {
		t.Errorf("mintDusted updated=%v alive=%v, want dead", ok, alive)
	}
	if alive, ok := st.updates["mintDelisted"]; !ok || alive {
		t.Errorf("mintDelisted updated=%v alive=%v, want dead", ok, alive)
	}
}

func TestReverifySkipsFailedBatch(t *testing.T) {
	st := newJobStore()
	st.stale = []store.DeployerToken{{Mint: "mintA"}}
	dex := &jobDex{err: errors.New("index down")}

	m := NewMaintenance(st, dex)
	m.reverifyLiveness(context.Background())

	// A failed index lookup must not flip rows dead; they stay stale for
	// the next pass.
	if len(st.updates) != 0 {
		t.Errorf("updates = %v, want none", st.updates)
	}
}

func TestPurgeUsagePassesToday(t *testing.T) {
	st := newJobStore()
	st.purged = 7

	m := NewMaintenance(st, &jobDex{})
	m.purgeUsage(context.Background())

	want := time.Now().Format("2006-01-02")
	if st.purgeDay != want {
		t.Errorf("purge day = %q, want %q", st.purgeDay, want)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	st := newJobStore()
	m := NewMaintenance(st, &jobDex{})
	m.interval = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx)
		close(done)
	}()

	time.Sleep(35 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after cancel")
	}
	if st.purgeDay == "" {
		t.Error("no maintenance pass ran before cancel")
	}
}
