// Package store persists quota counters, payments, scan history and the
// per-deployer token cache. Two backends implement the same interface:
// SQLite for single-node deployments and PostgreSQL for shared ones.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrPaymentExists means the payment reference was already redeemed.
// Callers treat it as a replay, not a storage failure.
var ErrPaymentExists = errors.New("payment already recorded")

// UsageRecord is one identity's scan counter for one local day.
type UsageRecord struct {
	Identity string `json:"identity"`
	Kind     string `json:"kind"` // wallet or ip
	Day      string `json:"day"`  // local date, YYYY-MM-DD
	Count    int    `json:"count"`
}

// PaymentRecord is one redeemed payment. Reference is the transaction
// signature for on-chain payments and the nonce for signed claims; it is
// unique so replays are rejected at insert time.
type PaymentRecord struct {
	Reference  string    `json:"reference"`
	Payer      string    `json:"payer"`
	Scheme     string    `json:"scheme"` // onchain or claim
	AmountUSD  float64   `json:"amountUsd"`
	ReceivedAt time.Time `json:"receivedAt"`
}

// ScanRecord is one row of the scan history.
type ScanRecord struct {
	ID         string    `json:"id"`
	Mint       string    `json:"mint,omitempty"` // empty for wallet scans
	Requester  string    `json:"requester"`
	Deployer   string    `json:"deployer"`
	Score      int       `json:"score"`
	Verdict    string    `json:"verdict"`
	TokenCount int       `json:"tokenCount"`
	DurationMs int64     `json:"durationMs"`
	ScannedAt  time.Time `json:"scannedAt"`
}

// DeployerToken is the durable record of one launch. PeakLiquidityUSD is a
// running maximum across every liveness check, which is what the death
// classifier needs after liquidity has been pulled.
type DeployerToken struct {
	Deployer         string     `json:"deployer"`
	Mint             string     `json:"mint"`
	Name             string     `json:"name"`
	Symbol           string     `json:"symbol"`
	CreatedAt        *time.Time `json:"createdAt,omitempty"`
	Alive            *bool      `json:"alive,omitempty"` // nil = unverified
	PeakLiquidityUSD float64    `json:"peakLiquidityUsd"`
	LastChecked      time.Time  `json:"lastChecked"`
}

// Stats summarizes the scan history for the public stats endpoint.
type Stats struct {
	TotalScans   int            `json:"totalScans"`
	ScansToday   int            `json:"scansToday"`
	AverageScore float64        `json:"averageScore"`
	Verdicts     map[string]int `json:"verdicts"`
}

// Store is the persistence boundary shared by both backends.
type Store interface {
	// ConsumeQuota atomically increments the counter for identity on the
	// given local day, but only while the result stays within limit. A
	// denied attempt does not consume anything.
	ConsumeQuota(ctx context.Context, identity, kind, day string, limit int) (used int, allowed bool, err error)
	GetUsage(ctx context.Context, identity, kind, day string) (int, error)
	ListUsage(ctx context.Context, day string) ([]UsageRecord, error)
	// PurgeStaleUsage drops counters whose day is not today and returns
	// how many rows went away.
	PurgeStaleUsage(ctx context.Context, today string) (int64, error)

	// RecordPayment inserts a redeemed payment, returning ErrPaymentExists
	// when the reference was seen before.
	RecordPayment(ctx context.Context, p PaymentRecord) error

	SaveScan(ctx context.Context, rec ScanRecord) error
	RecentScans(ctx context.Context, limit int) ([]ScanRecord, error)
	Stats(ctx context.Context, since time.Time) (*Stats, error)

	UpsertDeployerTokens(ctx context.Context, tokens []DeployerToken) error
	DeployerTokens(ctx context.Context, deployer string) ([]DeployerToken, error)
	// StaleAliveTokens lists tokens still marked alive whose last check is
	// older than checkedBefore, oldest first.
	StaleAliveTokens(ctx context.Context, checkedBefore time.Time, limit int) ([]DeployerToken, error)
	UpdateTokenLiveness(ctx context.Context, mint string, alive bool, liquidityUSD float64, checkedAt time.Time) error

	Ping(ctx context.Context) error
	Close()
}
