package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/rawblock/daybreakscan/internal/config"
	"github.com/rawblock/daybreakscan/internal/paywall"
	"github.com/rawblock/daybreakscan/internal/scan"
	"github.com/rawblock/daybreakscan/internal/solana"
	"github.com/rawblock/daybreakscan/internal/store"
	"github.com/rawblock/daybreakscan/internal/upstream"
	"github.com/rawblock/daybreakscan/pkg/models"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeScanner struct {
	scan    *models.Scan
	err     *scan.Error
	flushed bool
}

func (f *fakeScanner) ScanToken(_ context.Context, mint, _ string) (*models.Scan, *scan.Error) {
	if f.err != nil {
		return nil, f.err
	}
	s := *f.scan
	s.Token = &models.TokenMeta{Address: mint}
	return &s, nil
}

func (f *fakeScanner) ScanWallet(context.Context, string, string) (*models.Scan, *scan.Error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.scan, nil
}

func (f *fakeScanner) FlushCaches() { f.flushed = true }

// apiStore is the in-memory store.Store the handler tests run against.
type apiStore struct {
	usage    map[string]int
	usageDay map[string]string
	scans    []store.ScanRecord
}

func newAPIStore() *apiStore {
	return &apiStore{usage: make(map[string]int), usageDay: make(map[string]string)}
}

func (s *apiStore) ConsumeQuota(_ context.Context, identity, _, day string, limit int) (int, bool, error) {
	if s.usageDay[identity] != day {
		s.usage[identity] = 0
		s.usageDay[identity] = day
	}
	if s.usage[identity] >= limit {
		return s.usage[identity], false, nil
	}
	s.usage[identity]++
	return s.usage[identity], true, nil
}

func (s *apiStore) GetUsage(_ context.Context, identity, _, _ string) (int, error) {
	return s.usage[identity], nil
}

func (s *apiStore) ListUsage(_ context.Context, day string) ([]store.UsageRecord, error) {
	var out []store.UsageRecord
	for id, n := range s.usage {
		out = append(out, store.UsageRecord{Identity: id, Day: day, Count: n})
	}
	return out, nil
}

func (s *apiStore) PurgeStaleUsage(context.Context, string) (int64, error) { return 0, nil }
func (s *apiStore) RecordPayment(context.Context, store.PaymentRecord) error {
	return nil
}
func (s *apiStore) SaveScan(_ context.Context, rec store.ScanRecord) error {
	s.scans = append(s.scans, rec)
	return nil
}
func (s *apiStore) RecentScans(context.Context, int) ([]store.ScanRecord, error) {
	return s.scans, nil
}
func (s *apiStore) Stats(context.Context, time.Time) (*store.Stats, error) {
	return &store.Stats{TotalScans: len(s.scans), Verdicts: map[string]int{}}, nil
}
func (s *apiStore) UpsertDeployerTokens(context.Context, []store.DeployerToken) error { return nil }
func (s *apiStore) DeployerTokens(context.Context, string) ([]store.DeployerToken, error) {
	return nil, nil
}
func (s *apiStore) StaleAliveTokens(context.Context, time.Time, int) ([]store.DeployerToken, error) {
	return nil, nil
}
func (s *apiStore) UpdateTokenLiveness(context.Context, string, bool, float64, time.Time) error {
	return nil
}
func (s *apiStore) Ping(context.Context) error { return nil }
func (s *apiStore) Close()                     {}

type noChain struct{}

func (noChain) GetTransaction(context.Context, string) (*upstream.ParsedTransaction, error) {
	return nil, context.Canceled
}

func cleanScan() *models.Scan {
	return &models.Scan{
		ID:       "scan-1",
		Deployer: &models.Deployer{Wallet: solana.NativeMint, Method: "enhanced"},
		Summary:  models.ScanSummary{TokensCreated: 1, TokensAlive: 1},
		Reputation: &models.Reputation{
			Score:   88,
			Verdict: "CLEAN",
		},
	}
}

func testRouter(t *testing.T, scanner Scanner, cfg *config.Config) (*gin.Engine, *apiStore) {
	t.Helper()
	st := newAPIStore()
	gate := paywall.NewGate(cfg, noChain{}, st)
	t.Cleanup(gate.Close)
	hub := NewHub()
	go hub.Run()
	return SetupRouter(cfg, scanner, gate, st, hub), st
}

func testConfig() *config.Config {
	return &config.Config{
		TreasuryWallet:   solana.USDCMintMainnet,
		PriceUSD:         0.5,
		Network:          "solana",
		DailyLimitWallet: 3,
		DailyLimitIP:     1,
		RateLimitRPM:     6000,
		RateLimitBurst:   1000,
		ScanTimeout:      time.Minute,
	}
}

func TestScanTokenHappyPath(t *testing.T) {
	r, _ := testRouter(t, &fakeScanner{scan: cleanScan()}, testConfig())

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/scan/token/"+solana.NativeMint, nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	var result models.Scan
	if err := json.Unmarshal(w.Body.Bytes(), &result); err != nil {
		t.Fatal(err)
	}
	if result.Reputation.Score != 88 || result.Reputation.Verdict != "CLEAN" {
		t.Errorf("reputation = %+v", result.Reputation)
	}
}

func TestQuotaExhaustionReturns402(t *testing.T) {
	cfg := testConfig()
	r, _ := testRouter(t, &fakeScanner{scan: cleanScan()}, cfg)

	first := httptest.NewRecorder()
	r.ServeHTTP(first, httptest.NewRequest(http.MethodGet, "/api/v1/scan/token/"+solana.NativeMint, nil))
	if first.Code != http.StatusOK {
		t.Fatalf("first scan status = %d", first.Code)
	}

	second := httptest.NewRecorder()
	r.ServeHTTP(second, httptest.NewRequest(http.MethodGet, "/api/v1/scan/token/"+solana.NativeMint, nil))
	if second.Code != http.StatusPaymentRequired {
		t.Fatalf("second scan status = %d, want 402", second.Code)
	}

	var details models.PaymentDetails
	if err := json.Unmarshal(second.Body.Bytes(), &details); err != nil {
		t.Fatal(err)
	}
	if len(details.Accepts) == 0 {
		t.Fatal("402 body has no accepts[]")
	}
	opt := details.Accepts[0]
	if opt.Scheme != "exact" || opt.Network != "solana" || opt.Asset != "USDC" {
		t.Errorf("accepts[0] = %+v", opt)
	}
	if opt.PayTo != cfg.TreasuryWallet || opt.MaxAmountRequired != "500000" {
		t.Errorf("accepts[0] payTo/amount = %s/%s", opt.PayTo, opt.MaxAmountRequired)
	}
}

func TestWalletBucketSeparateFromIP(t *testing.T) {
	r, _ := testRouter(t, &fakeScanner{scan: cleanScan()}, testConfig())

	// Wallet-identified callers get the wallet limit (3), not the IP limit.
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/v1/scan/token/"+solana.NativeMint, nil)
		req.Header.Set("X-Wallet-Address", solana.USDCMintDevnet)
		r.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Fatalf("wallet scan %d status = %d", i+1, w.Code)
		}
	}
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/scan/token/"+solana.NativeMint, nil)
	req.Header.Set("X-Wallet-Address", solana.USDCMintDevnet)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusPaymentRequired {
		t.Fatalf("fourth wallet scan status = %d, want 402", w.Code)
	}
}

func TestMalformedWalletHeaderRejected(t *testing.T) {
	r, _ := testRouter(t, &fakeScanner{scan: cleanScan()}, testConfig())

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/scan/token/"+solana.NativeMint, nil)
	req.Header.Set("X-Wallet-Address", "0OIl-invalid")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestScanErrorMapping(t *testing.T) {
	cases := []struct {
		kind scan.ErrorKind
		want int
	}{
		{scan.KindInvalidAddress, http.StatusBadRequest},
		{scan.KindDeployerNotFound, http.StatusNotFound},
		{scan.KindUpstreamRateLimited, http.StatusServiceUnavailable},
		{scan.KindScanTimeout, http.StatusGatewayTimeout},
	}
	for _, tc := range cases {
		t.Run(string(tc.kind), func(t *testing.T) {
			r, _ := testRouter(t, &fakeScanner{err: scan.NewError(tc.kind, "nope")}, testConfig())
			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/scan/token/"+solana.NativeMint, nil))
			if w.Code != tc.want {
				t.Errorf("status = %d, want %d", w.Code, tc.want)
			}
			var body struct {
				Error string `json:"error"`
			}
			if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
				t.Fatal(err)
			}
			if body.Error != string(tc.kind) {
				t.Errorf("error = %q, want %q", body.Error, tc.kind)
			}
		})
	}
}

func TestAdminRoutesRequireToken(t *testing.T) {
	scanner := &fakeScanner{scan: cleanScan()}

	t.Run("disabled without token", func(t *testing.T) {
		r, _ := testRouter(t, scanner, testConfig())
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/admin/usage", nil))
		if w.Code != http.StatusServiceUnavailable {
			t.Fatalf("status = %d, want 503", w.Code)
		}
	})

	t.Run("rejects wrong token", func(t *testing.T) {
		cfg := testConfig()
		cfg.AdminAPIToken = "sekrit"
		r, _ := testRouter(t, scanner, cfg)
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/usage", nil)
		req.Header.Set("Authorization", "Bearer wrong")
		r.ServeHTTP(w, req)
		if w.Code != http.StatusForbidden {
			t.Fatalf("status = %d, want 403", w.Code)
		}
	})

	t.Run("accepts correct token and flushes", func(t *testing.T) {
		cfg := testConfig()
		cfg.AdminAPIToken = "sekrit"
		r, _ := testRouter(t, scanner, cfg)
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/cache/flush", nil)
		req.Header.Set("Authorization", "Bearer sekrit")
		r.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", w.Code)
		}
		if !scanner.flushed {
			t.Error("cache flush not propagated to the scanner")
		}
	})
}

func TestQuotaEndpoint(t *testing.T) {
	r, _ := testRouter(t, &fakeScanner{scan: cleanScan()}, testConfig())

	// Burn the single IP scan, then ask for the remaining quota.
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/scan/token/"+solana.NativeMint, nil))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/quota", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var body struct {
		Kind      string `json:"kind"`
		Used      int    `json:"used"`
		Limit     int    `json:"limit"`
		Remaining int    `json:"remaining"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Kind != "ip" || body.Used != 1 || body.Limit != 1 || body.Remaining != 0 {
		t.Errorf("quota body = %+v", body)
	}
}

func TestHealthz(t *testing.T) {
	r, _ := testRouter(t, &fakeScanner{scan: cleanScan()}, testConfig())
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body["status"] != "operational" {
		t.Errorf("status field = %v", body["status"])
	}
}
