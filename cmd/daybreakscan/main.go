package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/rawblock/daybreakscan/internal/api"
	"github.com/rawblock/daybreakscan/internal/config"
	"github.com/rawblock/daybreakscan/internal/jobs"
	"github.com/rawblock/daybreakscan/internal/paywall"
	"github.com/rawblock/daybreakscan/internal/scan"
	"github.com/rawblock/daybreakscan/internal/store"
	"github.com/rawblock/daybreakscan/internal/upstream"
)

func main() {
	log.Println("Starting DaybreakScan deployer reputation oracle...")

	// Local development reads a .env file; production injects real
	// environment variables. A missing file is not an error.
	if err := godotenv.Load(); err == nil {
		log.Println("Loaded environment from .env")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("FATAL: configuration: %v", err)
	}

	// Persistence: Postgres when DATABASE_URL is set, SQLite otherwise.
	// The store is required; quota and replay protection live there.
	var st store.Store
	if cfg.DatabaseURL != "" {
		st, err = store.ConnectPostgres(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("FATAL: PostgreSQL: %v", err)
		}
		log.Println("Connected to PostgreSQL store")
	} else {
		st, err = store.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			log.Fatalf("FATAL: SQLite at %s: %v", cfg.SQLitePath, err)
		}
		log.Printf("Opened SQLite store at %s", cfg.SQLitePath)
	}
	defer st.Close()

	router, err := upstream.NewRouter(upstream.RouterConfig{
		BasicURLs:      cfg.BasicProviderURLs,
		EnhancedRPCURL: cfg.EnhancedRPCURL,
		EnhancedAPIURL: cfg.EnhancedAPIURL,
		APIKey:         cfg.EnhancedProviderKey,
	})
	if err != nil {
		log.Fatalf("FATAL: RPC router: %v", err)
	}
	if cfg.EnhancedProviderKey == "" {
		log.Println("Warning: ENHANCED_PROVIDER_KEY not set; deployer discovery will rely on the RPC fallback path")
	}

	chain := upstream.NewChainClient(router)
	defer chain.Close()
	dex := upstream.NewDexClient(cfg.DexIndexURL)
	prices := upstream.NewPriceClient(cfg.PriceOracleURL)
	defer prices.Close()
	rug := upstream.NewRugcheckClient(cfg.RugcheckURL)
	defer rug.Close()

	pipeline := scan.NewPipeline(cfg, router, chain, dex, prices, rug, st)
	defer pipeline.Close()

	gate := paywall.NewGate(cfg, chain, st)
	defer gate.Close()

	wsHub := api.NewHub()
	go wsHub.Run()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	maintenance := jobs.NewMaintenance(st, dex)
	go maintenance.Run(ctx)

	r := api.SetupRouter(cfg, pipeline, gate, st, wsHub)
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	go func() {
		log.Printf("DaybreakScan listening on :%s (network %s)", cfg.Port, cfg.Network)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("FATAL: server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("Shutdown signal received, draining...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Warning: server shutdown: %v", err)
		os.Exit(1)
	}
	log.Println("Goodbye")
}
