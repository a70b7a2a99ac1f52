package upstream

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rawblock/daybreakscan/internal/cache"
	"github.com/rawblock/daybreakscan/internal/metrics"
)

const priceTTL = 5 * time.Minute

// PriceClient queries the price oracle. Spot prices move fast, so the
// per-mint cache is short-lived.
type PriceClient struct {
	base   string
	http   *http.Client
	prices *cache.Cache[float64]
}

func NewPriceClient(base string) *PriceClient {
	return &PriceClient{
		base:   strings.TrimRight(base, "/"),
		http:   &http.Client{Timeout: callTimeout},
		prices: cache.New[float64](priceTTL),
	}
}

// GetPrices fetches USD spot prices for the given mints. Mints the oracle
// has no route for are absent from the result, not an error.
func (p *PriceClient) GetPrices(ctx context.Context, mints []string) (map[string]float64, error) {
	out := make(map[string]float64, len(mints))
	var missing []string
	for _, mint := range mints {
		if price, ok := p.prices.Get(mint); ok {
			metrics.CacheHit("price")
			out[mint] = price
			continue
		}
		metrics.CacheMiss("price")
		missing = append(missing, mint)
	}
	if len(missing) == 0 {
		return out, nil
	}

	fullURL := p.base + "/price/v2?ids=" + url.QueryEscape(strings.Join(missing, ","))

	var payload struct {
		Data map[string]*struct {
			Price string `json:"price"`
		} `json:"data"`
	}
	start := time.Now()
	err := fetchJSON(ctx, p.http, fullURL, &payload)
	metrics.ObserveUpstream("price", "spot", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("oracle prices: %w", err)
	}

	for mint, entry := range payload.Data {
		if entry == nil || entry.Price == "" {
			continue
		}
		price, err := strconv.ParseFloat(entry.Price, 64)
		if err != nil {
			continue
		}
		out[mint] = price
		p.prices.Set(mint, price)
	}
	return out, nil
}

// FlushCache drops all cached prices.
func (p *PriceClient) FlushCache() {
	p.prices.Flush()
}

// Close stops the cache sweeper.
func (p *PriceClient) Close() {
	p.prices.Stop()
}
