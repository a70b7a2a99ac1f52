package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// fetchJSON performs a GET against a REST upstream and decodes the JSON
// body into v. A 429 surfaces as ErrRateLimited so callers can tell load
// shedding apart from hard failures.
func fetchJSON(ctx context.Context, httpClient *http.Client, fullURL string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return ErrRateLimited
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode body: %w", err)
	}
	return nil
}
