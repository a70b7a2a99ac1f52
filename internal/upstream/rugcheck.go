package upstream

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rawblock/daybreakscan/internal/cache"
	"github.com/rawblock/daybreakscan/internal/metrics"
)

const rugReportTTL = 30 * time.Minute

// RugcheckClient queries the rug-report oracle for per-mint risk summaries
// and LP lock state.
type RugcheckClient struct {
	base    string
	http    *http.Client
	reports *cache.Cache[*RugReport]
}

func NewRugcheckClient(base string) *RugcheckClient {
	return &RugcheckClient{
		base:    strings.TrimRight(base, "/"),
		http:    &http.Client{Timeout: callTimeout},
		reports: cache.New[*RugReport](rugReportTTL),
	}
}

// GetReport fetches the oracle's report for one mint, cached for thirty
// minutes.
func (r *RugcheckClient) GetReport(ctx context.Context, mint string) (*RugReport, error) {
	if report, ok := r.reports.Get(mint); ok {
		metrics.CacheHit("rugreport")
		return report, nil
	}
	metrics.CacheMiss("rugreport")

	fullURL := r.base + "/tokens/" + url.PathEscape(mint) + "/report"

	var report RugReport
	start := time.Now()
	err := fetchJSON(ctx, r.http, fullURL, &report)
	metrics.ObserveUpstream("rugcheck", "report", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("rug report %s: %w", mint, err)
	}

	r.reports.Set(mint, &report)
	return &report, nil
}

// FlushCache drops all cached reports.
func (r *RugcheckClient) FlushCache() {
	r.reports.Flush()
}

// Close stops the cache sweeper.
func (r *RugcheckClient) Close() {
	r.reports.Stop()
}
