// Package config loads every runtime setting from the environment. All
// credentials MUST come from environment variables; non-secret settings get
// safe defaults. Use a .env file for local development.
package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rawblock/daybreakscan/internal/solana"
)

// Default upstream endpoints. All overridable per environment.
const (
	DefaultBasicRPC    = "https://api.mainnet-beta.solana.com"
	DefaultEnhancedRPC = "https://mainnet.helius-rpc.com"
	DefaultEnhancedAPI = "https://api.helius.xyz"
	DefaultDexIndexURL = "https://api.dexscreener.com/latest/dex"
	DefaultPriceURL    = "https://api.jup.ag"
	DefaultRugcheckURL = "https://api.rugcheck.xyz/v1"
	DefaultDevnetRPC   = "https://api.devnet.solana.com"
	DefaultEnhancedDev = "https://devnet.helius-rpc.com"
)

type Config struct {
	// Payments
	TreasuryWallet string
	PriceUSD       float64
	Network        string // "solana" | "solana-devnet"

	// Providers
	EnhancedProviderKey string
	EnhancedRPCURL      string
	EnhancedAPIURL      string
	BasicProviderURLs   []string
	DexIndexURL         string
	PriceOracleURL      string
	RugcheckURL         string

	// Quota
	AdminWallets     []string
	DailyLimitWallet int
	DailyLimitIP     int

	// Scoring knobs
	DeathClassifyCap  int
	BurnerWindowHours int
	BurnerPenalty     int

	// Runtime
	ScanTimeout    time.Duration
	Port           string
	SQLitePath     string
	DatabaseURL    string
	AllowedOrigins string
	AdminAPIToken  string
	RateLimitRPM   int
	RateLimitBurst int
}

// Load reads the full configuration from the environment. It fails fast on
// a missing or malformed required value so the service never starts half
// configured.
func Load() (*Config, error) {
	cfg := &Config{
		TreasuryWallet:      requireEnv("TREASURY_WALLET"),
		PriceUSD:            getEnvFloat("PRICE_USD", 0.5),
		Network:             getEnvOrDefault("NETWORK", "solana"),
		EnhancedProviderKey: os.Getenv("ENHANCED_PROVIDER_KEY"),
		DexIndexURL:         getEnvOrDefault("DEX_INDEX_URL", DefaultDexIndexURL),
		PriceOracleURL:      getEnvOrDefault("PRICE_ORACLE_URL", DefaultPriceURL),
		RugcheckURL:         getEnvOrDefault("RUGCHECK_URL", DefaultRugcheckURL),
		AdminWallets:        splitList(os.Getenv("ADMIN_WALLETS")),
		DailyLimitWallet:    getEnvInt("DAILY_LIMIT_WALLET", 3),
		DailyLimitIP:        getEnvInt("DAILY_LIMIT_IP", 1),
		DeathClassifyCap:    getEnvInt("DEATH_CLASSIFY_CAP", 50),
		BurnerWindowHours:   getEnvInt("BURNER_WINDOW_HOURS", 24),
		BurnerPenalty:       getEnvInt("BURNER_PENALTY", 10),
		ScanTimeout:         time.Duration(getEnvInt("SCAN_TIMEOUT_SECONDS", 60)) * time.Second,
		Port:                getEnvOrDefault("PORT", "8080"),
		SQLitePath:          getEnvOrDefault("SQLITE_PATH", "daybreakscan.db"),
		DatabaseURL:         os.Getenv("DATABASE_URL"),
		AllowedOrigins:      os.Getenv("ALLOWED_ORIGINS"),
		AdminAPIToken:       os.Getenv("ADMIN_API_TOKEN"),
		RateLimitRPM:        getEnvInt("RATE_LIMIT_RPM", 30),
		RateLimitBurst:      getEnvInt("RATE_LIMIT_BURST", 10),
	}

	if cfg.Network != "solana" && cfg.Network != "solana-devnet" {
		return nil, fmt.Errorf("NETWORK must be solana or solana-devnet, got %q", cfg.Network)
	}
	if err := solana.ValidateAddress(cfg.TreasuryWallet); err != nil {
		return nil, fmt.Errorf("TREASURY_WALLET: %v", err)
	}
	for _, w := range cfg.AdminWallets {
		if err := solana.ValidateAddress(w); err != nil {
			return nil, fmt.Errorf("ADMIN_WALLETS entry %q: %v", w, err)
		}
	}
	if cfg.PriceUSD <= 0 {
		return nil, fmt.Errorf("PRICE_USD must be positive, got %v", cfg.PriceUSD)
	}

	basicRPC := DefaultBasicRPC
	enhancedRPC := DefaultEnhancedRPC
	if cfg.Network == "solana-devnet" {
		basicRPC = DefaultDevnetRPC
		enhancedRPC = DefaultEnhancedDev
	}
	cfg.BasicProviderURLs = splitList(getEnvOrDefault("BASIC_PROVIDER_URLS", basicRPC))
	cfg.EnhancedRPCURL = getEnvOrDefault("ENHANCED_RPC_URL", enhancedRPC)
	cfg.EnhancedAPIURL = getEnvOrDefault("ENHANCED_API_URL", DefaultEnhancedAPI)

	if len(cfg.BasicProviderURLs) == 0 {
		return nil, fmt.Errorf("BASIC_PROVIDER_URLS must list at least one provider")
	}

	return cfg, nil
}

// IsAdmin reports whether wallet is in the admin bypass list.
func (c *Config) IsAdmin(wallet string) bool {
	for _, w := range c.AdminWallets {
		if w == wallet {
			return true
		}
	}
	return false
}

// requireEnv reads a required environment variable and exits if it is not
// set. This prevents the binary from starting with missing critical
// configuration.
func requireEnv(key string) string {
	val := os.Getenv(key)
	if val == "" {
		log.Fatalf("FATAL: Required environment variable %s is not set. "+
			"Copy .env.example to .env and fill in your values.", key)
	}
	return val
}

// getEnvOrDefault returns the env var value or a safe default for
// non-secret settings.
func getEnvOrDefault(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		log.Printf("Warning: %s=%q is not an integer, using default %d", key, val, fallback)
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		log.Printf("Warning: %s=%q is not a number, using default %v", key, val, fallback)
		return fallback
	}
	return f
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
