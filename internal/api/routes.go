package api

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rawblock/daybreakscan/internal/config"
	"github.com/rawblock/daybreakscan/internal/paywall"
	"github.com/rawblock/daybreakscan/internal/store"
)

// SetupRouter wires the full HTTP surface: scan routes behind the rate
// limiter, admin routes behind bearer auth, the WebSocket feed, metrics
// and the health probe.
func SetupRouter(cfg *config.Config, scanner Scanner, gate *paywall.Gate, st store.Store, wsHub *Hub) *gin.Engine {
	r := gin.Default()

	// CORS — configurable via ALLOWED_ORIGINS.
	// Production: ALLOWED_ORIGINS=https://daybreakscan.io
	// Development: leave empty for *
	allowedOrigins := cfg.AllowedOrigins
	r.Use(func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if allowedOrigins == "" || allowedOrigins == "*" {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		} else {
			for _, allowed := range strings.Split(allowedOrigins, ",") {
				if strings.TrimSpace(allowed) == origin {
					c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
					break
				}
			}
		}
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With, X-Wallet-Address, X-Payment")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	})

	handler := NewAPIHandler(cfg, scanner, gate, st, wsHub)
	limiter := NewRateLimiter(cfg.RateLimitRPM, cfg.RateLimitBurst)

	api := r.Group("/api/v1")
	api.Use(limiter.Middleware())
	{
		api.GET("/scan/token/:mint", handler.handleScanToken)
		api.GET("/scan/wallet/:wallet", handler.handleScanWallet)
		api.GET("/scans/recent", handler.handleRecentScans)
		api.GET("/stats", handler.handleStats)
		api.GET("/quota", handler.handleQuota)

		admin := api.Group("/admin")
		admin.Use(AdminAuthMiddleware(cfg.AdminAPIToken))
		{
			admin.GET("/usage", handler.handleAdminUsage)
			admin.POST("/cache/flush", handler.handleCacheFlush)
		}
	}

	r.GET("/ws", wsHub.Subscribe)
	r.GET("/healthz", handler.handleHealth)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}
