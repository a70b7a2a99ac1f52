// Package paywall enforces the daily scan quota and verifies pay-per-scan
// payments once the quota is gone. Two payment shapes are accepted: an
// on-chain USDC transfer to the treasury, proven by its transaction
// signature, and an Ed25519-signed payment claim. Both are replay-safe:
// the store keeps one row per redeemed reference and rejects duplicates
// at insert time.
package paywall

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/rawblock/daybreakscan/internal/cache"
	"github.com/rawblock/daybreakscan/internal/config"
	"github.com/rawblock/daybreakscan/internal/metrics"
	"github.com/rawblock/daybreakscan/internal/solana"
	"github.com/rawblock/daybreakscan/internal/store"
	"github.com/rawblock/daybreakscan/internal/upstream"
	"github.com/rawblock/daybreakscan/pkg/models"
)

const (
	// paymentWindow bounds how far a payment's block time or claim
	// timestamp may drift from the server clock.
	paymentWindow = 600 * time.Second

	nonceTTL = 5 * time.Minute
)

// ErrPaymentInvalid is the only failure callers see from Verify. The
// detailed reason is logged server-side and never returned, so probing
// the verifier teaches an attacker nothing.
var ErrPaymentInvalid = errors.New("payment invalid")

// ErrQuotaExceeded reports a scan blocked by the daily limit.
var ErrQuotaExceeded = errors.New("daily scan quota exceeded")

// ChainFetcher is the slice of the RPC client the on-chain verifier needs.
type ChainFetcher interface {
	GetTransaction(ctx context.Context, signature string) (*upstream.ParsedTransaction, error)
}

// Identity is one quota bucket: an authenticated wallet or an anonymous IP.
type Identity struct {
	Key   string // "wallet:<addr>" or "ip:<addr>"
	Kind  string // "wallet" | "ip"
	Addr  string
	Admin bool
}

// Gate owns quota accounting and payment verification.
type Gate struct {
	cfg    *config.Config
	chain  ChainFetcher
	store  store.Store
	nonces *cache.Cache[bool]
	now    func() time.Time
}

func NewGate(cfg *config.Config, chain ChainFetcher, st store.Store) *Gate {
	return &Gate{
		cfg:    cfg,
		chain:  chain,
		store:  st,
		nonces: cache.New[bool](nonceTTL),
		now:    time.Now,
	}
}

// Close stops the nonce cache sweeper.
func (g *Gate) Close() { g.nonces.Stop() }

// ResolveIdentity builds the quota bucket for a request. A wallet header
// takes precedence over the client IP; a malformed wallet is an error
// rather than a silent fall-through to the IP bucket.
func (g *Gate) ResolveIdentity(wallet, ip string) (Identity, error) {
	if wallet != "" {
		if err := solana.ValidateAddress(wallet); err != nil {
			return Identity{}, fmt.Errorf("wallet header: %w", err)
		}
		return Identity{
			Key:   "wallet:" + wallet,
			Kind:  "wallet",
			Addr:  wallet,
			Admin: g.cfg.IsAdmin(wallet),
		}, nil
	}
	return Identity{Key: "ip:" + ip, Kind: "ip", Addr: ip}, nil
}

// Allow consumes one scan from the identity's daily quota. A denied
// attempt consumes nothing; admins always pass.
func (g *Gate) Allow(ctx context.Context, id Identity) (bool, error) {
	if id.Admin {
		return true, nil
	}
	limit := g.cfg.DailyLimitIP
	if id.Kind == "wallet" {
		limit = g.cfg.DailyLimitWallet
	}
	day := g.now().Format("2006-01-02")
	_, allowed, err := g.store.ConsumeQuota(ctx, id.Key, id.Kind, day, limit)
	if err != nil {
		return false, fmt.Errorf("quota check: %w", err)
	}
	if !allowed {
		metrics.QuotaRejected(id.Kind)
	}
	return allowed, nil
}

// Remaining reports how many scans the identity has left today.
func (g *Gate) Remaining(ctx context.Context, id Identity) (used, limit int, err error) {
	limit = g.cfg.DailyLimitIP
	if id.Kind == "wallet" {
		limit = g.cfg.DailyLimitWallet
	}
	if id.Admin {
		return 0, -1, nil // unlimited
	}
	day := g.now().Format("2006-01-02")
	used, err = g.store.GetUsage(ctx, id.Key, id.Kind, day)
	return used, limit, err
}

// Details builds the 402 payment-details document for a quota-exhausted
// caller.
func (g *Gate) Details() *models.PaymentDetails {
	return &models.PaymentDetails{
		Error:   "quota_exceeded",
		Message: fmt.Sprintf("Daily scan limit reached. Pay $%.2f in USDC per scan to continue.", g.cfg.PriceUSD),
		Accepts: []models.PaymentOption{{
			Scheme:            "exact",
			Network:           g.cfg.Network,
			Asset:             "USDC",
			MaxAmountRequired: strconv.FormatInt(g.priceBaseUnits(), 10),
			PayTo:             g.cfg.TreasuryWallet,
			Nonce:             uuid.NewString(),
			ValidUntil:        g.now().Add(paymentWindow).Unix(),
		}},
	}
}

// Verify checks a decoded X-Payment payload and records it so the same
// reference can never authorize two scans. The returned identity names
// the verified payer.
func (g *Gate) Verify(ctx context.Context, payload *models.PaymentPayload) (*models.VerifiedPayment, error) {
	if payload == nil {
		return nil, g.reject("empty payload")
	}
	if err := solana.ValidateAddress(payload.Payer); err != nil {
		return nil, g.reject("payer %q: %v", payload.Payer, err)
	}
	if payload.TxSignature != "" {
		return g.verifyOnchain(ctx, payload)
	}
	return g.verifyClaim(ctx, payload)
}

// verifyOnchain proves payment from a finalized USDC transfer: the
// transaction must have succeeded recently, moved at least the scan price
// into the treasury's token account, and been signed by the claimed payer.
func (g *Gate) verifyOnchain(ctx context.Context, p *models.PaymentPayload) (*models.VerifiedPayment, error) {
	tx, err := g.chain.GetTransaction(ctx, p.TxSignature)
	if err != nil {
		return nil, g.reject("fetch tx %s: %v", p.TxSignature, err)
	}
	if tx == nil || tx.Meta == nil {
		return nil, g.reject("tx %s not found", p.TxSignature)
	}
	if tx.Meta.Failed() {
		return nil, g.reject("tx %s failed on chain", p.TxSignature)
	}
	if tx.BlockTime == nil {
		return nil, g.reject("tx %s has no block time", p.TxSignature)
	}
	age := g.now().Sub(time.Unix(*tx.BlockTime, 0))
	if age > paymentWindow || age < -paymentWindow {
		return nil, g.reject("tx %s outside payment window (%s)", p.TxSignature, age)
	}

	usdcMint := solana.USDCMint(g.cfg.Network)
	pre := treasuryBalance(tx.Meta.PreTokenBalances, usdcMint, g.cfg.TreasuryWallet)
	post := treasuryBalance(tx.Meta.PostTokenBalances, usdcMint, g.cfg.TreasuryWallet)
	delta := post - pre
	if delta < g.priceBaseUnits() {
		return nil, g.reject("tx %s treasury delta %d below price %d", p.TxSignature, delta, g.priceBaseUnits())
	}

	signed := false
	for _, key := range tx.Transaction.Message.AccountKeys {
		if key.Signer && key.Pubkey == p.Payer {
			signed = true
			break
		}
	}
	if !signed {
		return nil, g.reject("payer %s did not sign tx %s", p.Payer, p.TxSignature)
	}

	amountUSD := float64(delta) / math.Pow10(solana.USDCDecimals)
	if err := g.record(ctx, p.TxSignature, p.Payer, "onchain", amountUSD); err != nil {
		return nil, err
	}
	return &models.VerifiedPayment{
		Payer:     p.Payer,
		Scheme:    "onchain",
		AmountUSD: amountUSD,
		Reference: p.TxSignature,
	}, nil
}

// claimMessage is the canonical claim body. Field order matters: the
// signature covers the SHA-256 of this exact JSON serialization.
type claimMessage struct {
	Scheme     string `json:"scheme"`
	Network    string `json:"network"`
	Asset      string `json:"asset"`
	Amount     string `json:"amount"`
	PayTo      string `json:"payTo"`
	Nonce      string `json:"nonce"`
	Timestamp  int64  `json:"timestamp"`
	ValidUntil int64  `json:"validUntil"`
}

// verifyClaim proves payment from a signed claim instead of a settled
// transaction. The payer's public key must verify the claim signature and
// the claim must commit to paying the treasury at least the scan price.
func (g *Gate) verifyClaim(ctx context.Context, p *models.PaymentPayload) (*models.VerifiedPayment, error) {
	opt := p.PaymentOption
	if opt == nil || p.Signature == "" || p.Nonce == "" {
		return nil, g.reject("claim from %s missing fields", p.Payer)
	}
	drift := g.now().Sub(time.Unix(p.Timestamp, 0))
	if drift > paymentWindow || drift < -paymentWindow {
		return nil, g.reject("claim nonce %s outside payment window (%s)", p.Nonce, drift)
	}
	if opt.PayTo != g.cfg.TreasuryWallet {
		// Logged for operators, never surfaced: the generic error must not
		// confirm the treasury address to a prober.
		return nil, g.reject("claim nonce %s pays %s, not the treasury", p.Nonce, opt.PayTo)
	}
	amount, err := strconv.ParseInt(opt.MaxAmountRequired, 10, 64)
	if err != nil || amount < g.priceBaseUnits() {
		return nil, g.reject("claim nonce %s amount %q below price", p.Nonce, opt.MaxAmountRequired)
	}
	if _, seen := g.nonces.Get(p.Nonce); seen {
		return nil, g.reject("claim nonce %s replayed", p.Nonce)
	}

	canonical, err := json.Marshal(claimMessage{
		Scheme:     opt.Scheme,
		Network:    opt.Network,
		Asset:      opt.Asset,
		Amount:     opt.MaxAmountRequired,
		PayTo:      opt.PayTo,
		Nonce:      p.Nonce,
		Timestamp:  p.Timestamp,
		ValidUntil: opt.ValidUntil,
	})
	if err != nil {
		return nil, g.reject("claim nonce %s marshal: %v", p.Nonce, err)
	}
	digest := sha256.Sum256(canonical)
	ok, err := solana.VerifySignature(p.Payer, digest[:], p.Signature)
	if err != nil || !ok {
		return nil, g.reject("claim nonce %s signature check failed: %v", p.Nonce, err)
	}

	g.nonces.Set(p.Nonce, true)
	amountUSD := float64(amount) / math.Pow10(solana.USDCDecimals)
	if err := g.record(ctx, p.Nonce, p.Payer, "claim", amountUSD); err != nil {
		return nil, err
	}
	return &models.VerifiedPayment{
		Payer:     p.Payer,
		Scheme:    "claim",
		AmountUSD: amountUSD,
		Reference: p.Nonce,
	}, nil
}

// record persists the redeemed payment. The unique reference column is
// the replay gate: a second insert of the same signature or nonce comes
// back ErrPaymentExists.
func (g *Gate) record(ctx context.Context, reference, payer, scheme string, amountUSD float64) error {
	err := g.store.RecordPayment(ctx, store.PaymentRecord{
		Reference:  reference,
		Payer:      payer,
		Scheme:     scheme,
		AmountUSD:  amountUSD,
		ReceivedAt: g.now(),
	})
	if errors.Is(err, store.ErrPaymentExists) {
		return g.reject("reference %s replayed", reference)
	}
	if err != nil {
		return fmt.Errorf("record payment: %w", err)
	}
	metrics.PaymentAccepted(scheme)
	log.Printf("[Paywall] accepted %s payment of $%.2f from %s", scheme, amountUSD, payer)
	return nil
}

// reject logs the real reason and returns the generic error.
func (g *Gate) reject(format string, args ...any) error {
	log.Printf("[Paywall] rejected: "+format, args...)
	return ErrPaymentInvalid
}

func (g *Gate) priceBaseUnits() int64 {
	return int64(math.Round(g.cfg.PriceUSD * math.Pow10(solana.USDCDecimals)))
}

// treasuryBalance finds the treasury's USDC balance in a pre/post token
// balance list, in base units. Zero when the account does not appear.
func treasuryBalance(balances []upstream.TokenBalance, mint, treasury string) int64 {
	for _, b := range balances {
		if b.Mint != mint || b.Owner != treasury {
			continue
		}
		amount, err := strconv.ParseInt(b.UITokenAmount.Amount, 10, 64)
		if err != nil {
			return 0
		}
		return amount
	}
	return 0
}
