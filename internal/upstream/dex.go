package upstream

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rawblock/daybreakscan/internal/metrics"
)

// DexBatchLimit is the most token addresses the liquidity index accepts in
// a single lookup.
const DexBatchLimit = 30

// DexClient queries the DEX liquidity index for trading pairs. Results are
// not cached here: callers cache the per-mint liveness view they derive,
// and a failed batch must never be cached at all.
type DexClient struct {
	base string
	http *http.Client
}

func NewDexClient(base string) *DexClient {
	return &DexClient{
		base: strings.TrimRight(base, "/"),
		http: &http.Client{Timeout: callTimeout},
	}
}

// GetPairs fetches all trading pairs for up to DexBatchLimit mints in one
// call. Mints with no pairs simply do not appear in the result.
func (d *DexClient) GetPairs(ctx context.Context, mints []string) ([]DexPair, error) {
	if len(mints) == 0 {
		return nil, nil
	}
	if len(mints) > DexBatchLimit {
		return nil, fmt.Errorf("dex pairs: %d mints exceeds batch limit %d", len(mints), DexBatchLimit)
	}

	fullURL := d.base + "/tokens/" + url.PathEscape(strings.Join(mints, ","))

	var payload struct {
		Pairs []DexPair `json:"pairs"`
	}
	start := time.Now()
	err := fetchJSON(ctx, d.http, fullURL, &payload)
	metrics.ObserveUpstream("dex", "pairs", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("dex pairs: %w", err)
	}
	return payload.Pairs, nil
}
