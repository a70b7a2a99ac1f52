package api

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/rawblock/daybreakscan/internal/config"
	"github.com/rawblock/daybreakscan/internal/paywall"
	"github.com/rawblock/daybreakscan/internal/scan"
	"github.com/rawblock/daybreakscan/internal/store"
	"github.com/rawblock/daybreakscan/pkg/models"
)

// Scanner is the pipeline surface the handlers drive. The concrete
// implementation lives in internal/scan; tests substitute a fake.
type Scanner interface {
	ScanToken(ctx context.Context, mint, requester string) (*models.Scan, *scan.Error)
	ScanWallet(ctx context.Context, wallet, requester string) (*models.Scan, *scan.Error)
	FlushCaches()
}

// APIHandler holds the collaborators every route needs.
type APIHandler struct {
	cfg     *config.Config
	scanner Scanner
	gate    *paywall.Gate
	store   store.Store
	wsHub   *Hub
}

func NewAPIHandler(cfg *config.Config, scanner Scanner, gate *paywall.Gate, st store.Store, wsHub *Hub) *APIHandler {
	return &APIHandler{cfg: cfg, scanner: scanner, gate: gate, store: st, wsHub: wsHub}
}

// scanSummaryEvent is the WebSocket payload pushed after every scan.
type scanSummaryEvent struct {
	Type     string `json:"type"` // "scan"
	Mint     string `json:"mint,omitempty"`
	Deployer string `json:"deployer"`
	Score    int    `json:"score"`
	Verdict  string `json:"verdict"`
	Tokens   int    `json:"tokens"`
}

// admit resolves the caller's identity and enforces quota, upgrading via
// X-Payment when the quota is gone. It returns the requester tag for the
// scan log, or writes the error response and returns ok=false.
func (h *APIHandler) admit(c *gin.Context) (requester string, ok bool) {
	identity, err := h.gate.ResolveIdentity(c.GetHeader("X-Wallet-Address"), c.ClientIP())
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "INVALID_ADDRESS", "message": err.Error()})
		return "", false
	}

	allowed, err := h.gate.Allow(c.Request.Context(), identity)
	if err != nil {
		log.Printf("[API] quota check for %s failed: %v", identity.Key, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "INTERNAL_ERROR", "message": "quota check failed"})
		return "", false
	}
	if allowed {
		return identity.Key, true
	}

	// Quota exhausted: a valid payment in the X-Payment header buys one
	// scan; otherwise the caller gets the payment-details document.
	header := c.GetHeader("X-Payment")
	if header == "" {
		c.JSON(http.StatusPaymentRequired, h.gate.Details())
		return "", false
	}
	payload, err := decodePaymentHeader(header)
	if err != nil {
		c.JSON(http.StatusPaymentRequired, gin.H{"error": "PAYMENT_INVALID", "message": "malformed X-Payment header"})
		return "", false
	}
	verified, err := h.gate.Verify(c.Request.Context(), payload)
	if err != nil {
		if errors.Is(err, paywall.ErrPaymentInvalid) {
			c.JSON(http.StatusPaymentRequired, gin.H{"error": "PAYMENT_INVALID", "message": "payment could not be verified"})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "INTERNAL_ERROR", "message": "payment processing failed"})
		}
		return "", false
	}
	return "paid:" + verified.Payer, true
}

// decodePaymentHeader parses the base64 JSON X-Payment header.
func decodePaymentHeader(header string) (*models.PaymentPayload, error) {
	raw, err := base64.StdEncoding.DecodeString(header)
	if err != nil {
		return nil, err
	}
	var payload models.PaymentPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

// handleScanToken runs a full deployer scan from a token mint.
// GET /api/v1/scan/token/:mint
func (h *APIHandler) handleScanToken(c *gin.Context) {
	requester, ok := h.admit(c)
	if !ok {
		return
	}
	result, scanErr := h.scanner.ScanToken(c.Request.Context(), c.Param("mint"), requester)
	h.finishScan(c, result, scanErr)
}

// handleScanWallet scans a deployer wallet directly.
// GET /api/v1/scan/wallet/:wallet
func (h *APIHandler) handleScanWallet(c *gin.Context) {
	requester, ok := h.admit(c)
	if !ok {
		return
	}
	result, scanErr := h.scanner.ScanWallet(c.Request.Context(), c.Param("wallet"), requester)
	h.finishScan(c, result, scanErr)
}

func (h *APIHandler) finishScan(c *gin.Context, result *models.Scan, scanErr *scan.Error) {
	if scanErr != nil {
		c.JSON(scanErr.HTTPStatus(), gin.H{"error": string(scanErr.Kind), "message": scanErr.Message})
		return
	}

	if h.wsHub != nil {
		event := scanSummaryEvent{
			Type:     "scan",
			Deployer: result.Deployer.Wallet,
			Score:    result.Reputation.Score,
			Verdict:  result.Reputation.Verdict,
			Tokens:   result.Summary.TokensCreated,
		}
		if result.Token != nil {
			event.Mint = result.Token.Address
		}
		if data, err := json.Marshal(event); err == nil {
			h.wsHub.Broadcast(data)
		}
	}

	c.JSON(http.StatusOK, result)
}

// handleRecentScans returns the newest scan-log entries.
// GET /api/v1/scans/recent?limit=
func (h *APIHandler) handleRecentScans(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	scans, err := h.store.RecentScans(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "INTERNAL_ERROR", "message": "failed to read scan history"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"scans": scans, "count": len(scans)})
}

// handleStats returns aggregate scan statistics.
// GET /api/v1/stats
func (h *APIHandler) handleStats(c *gin.Context) {
	stats, err := h.store.Stats(c.Request.Context(), time.Now().AddDate(0, 0, -30))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "INTERNAL_ERROR", "message": "failed to read stats"})
		return
	}
	c.JSON(http.StatusOK, stats)
}

// handleQuota reports the caller's remaining daily quota.
// GET /api/v1/quota
func (h *APIHandler) handleQuota(c *gin.Context) {
	identity, err := h.gate.ResolveIdentity(c.GetHeader("X-Wallet-Address"), c.ClientIP())
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "INVALID_ADDRESS", "message": err.Error()})
		return
	}
	used, limit, err := h.gate.Remaining(c.Request.Context(), identity)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "INTERNAL_ERROR", "message": "quota lookup failed"})
		return
	}
	resp := gin.H{"kind": identity.Kind, "used": used, "limit": limit}
	if limit < 0 {
		resp["unlimited"] = true
	} else {
		remaining := limit - used
		if remaining < 0 {
			remaining = 0
		}
		resp["remaining"] = remaining
	}
	c.JSON(http.StatusOK, resp)
}

// handleAdminUsage dumps today's per-identity counters.
// GET /api/v1/admin/usage
func (h *APIHandler) handleAdminUsage(c *gin.Context) {
	day := time.Now().Format("2006-01-02")
	usage, err := h.store.ListUsage(c.Request.Context(), day)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "INTERNAL_ERROR", "message": "usage lookup failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"day": day, "usage": usage})
}

// handleCacheFlush drops every in-memory cache.
// POST /api/v1/admin/cache/flush
func (h *APIHandler) handleCacheFlush(c *gin.Context) {
	h.scanner.FlushCaches()
	log.Printf("[API] caches flushed by admin")
	c.JSON(http.StatusOK, gin.H{"status": "flushed"})
}

// handleHealth is the liveness probe.
// GET /healthz
func (h *APIHandler) handleHealth(c *gin.Context) {
	storeUp := false
	if h.store != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		storeUp = h.store.Ping(ctx) == nil
	}
	c.JSON(http.StatusOK, gin.H{
		"status":             "operational",
		"service":            "daybreakscan",
		"network":            h.cfg.Network,
		"storeConnected":     storeUp,
		"enhancedConfigured": h.cfg.EnhancedProviderKey != "",
		"basicProviders":     len(h.cfg.BasicProviderURLs),
	})
}
