package scan

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rawblock/daybreakscan/internal/cache"
	"github.com/rawblock/daybreakscan/internal/config"
	"github.com/rawblock/daybreakscan/internal/solana"
	"github.com/rawblock/daybreakscan/internal/store"
	"github.com/rawblock/daybreakscan/internal/upstream"
	"github.com/rawblock/daybreakscan/pkg/models"
)

// Fixed clock for every test; lifespans and burner windows are computed
// against it.
var testNow = time.Unix(1_760_000_000, 0)

var errNotWired = errors.New("fake not wired")

type fakeHistory struct {
	fn func(address string, limit int, sortOrder, before string) ([]upstream.EnhancedTransaction, error)
}

func (f *fakeHistory) EnhancedTransactions(_ context.Context, address string, limit int, sortOrder, before string) ([]upstream.EnhancedTransaction, error) {
	if f.fn == nil {
		return nil, nil
	}
	return f.fn(address, limit, sortOrder, before)
}

type fakeChain struct {
	getTransaction   func(signature string) (*upstream.ParsedTransaction, error)
	getSignatures    func(address, before string, limit int) ([]upstream.SignatureInfo, error)
	getBatch         func(sigs []string) ([]*upstream.ParsedTransaction, error)
	getMintAccount   func(mint string) (*upstream.MintInfo, error)
	getTokenAccounts func(owner, mint string) ([]upstream.TokenAccountBalance, error)
	getLargest       func(mint string) ([]upstream.LargestAccount, error)
	getAsset         func(mint string) (*models.TokenMeta, error)
}

func (f *fakeChain) GetTransaction(_ context.Context, signature string) (*upstream.ParsedTransaction, error) {
	if f.getTransaction == nil {
		return nil, errNotWired
	}
	return f.getTransaction(signature)
}

func (f *fakeChain) GetSignatures(_ context.Context, address, before string, limit int) ([]upstream.SignatureInfo, error) {
	if f.getSignatures == nil {
		return nil, nil
	}
	return f.getSignatures(address, before, limit)
}

func (f *fakeChain) GetTransactionsBatch(_ context.Context, sigs []string) ([]*upstream.ParsedTransaction, error) {
	if f.getBatch == nil {
		return make([]*upstream.ParsedTransaction, len(sigs)), nil
	}
	return f.getBatch(sigs)
}

func (f *fakeChain) GetMintAccount(_ context.Context, mint string) (*upstream.MintInfo, error) {
	if f.getMintAccount == nil {
		return nil, errNotWired
	}
	return f.getMintAccount(mint)
}

func (f *fakeChain) GetTokenAccounts(_ context.Context, owner, mint string) ([]upstream.TokenAccountBalance, error) {
	if f.getTokenAccounts == nil {
		return nil, nil
	}
	return f.getTokenAccounts(owner, mint)
}

func (f *fakeChain) GetLargestAccounts(_ context.Context, mint string) ([]upstream.LargestAccount, error) {
	if f.getLargest == nil {
		return nil, nil
	}
	return f.getLargest(mint)
}

func (f *fakeChain) GetAsset(_ context.Context, mint string) (*models.TokenMeta, error) {
	if f.getAsset == nil {
		return nil, errNotWired
	}
	return f.getAsset(mint)
}

type fakeDex struct {
	fn func(mints []string) ([]upstream.DexPair, error)
}

func (f *fakeDex) GetPairs(_ context.Context, mints []string) ([]upstream.DexPair, error) {
	if f.fn == nil {
		return nil, nil
	}
	return f.fn(mints)
}

type fakePrices struct {
	fn func(mints []string) (map[string]float64, error)
}

func (f *fakePrices) GetPrices(_ context.Context, mints []string) (map[string]float64, error) {
	if f.fn == nil {
		return nil, nil
	}
	return f.fn(mints)
}

type fakeRug struct {
	fn func(mint string) (*upstream.RugReport, error)
}

func (f *fakeRug) GetReport(_ context.Context, mint string) (*upstream.RugReport, error) {
	if f.fn == nil {
		return nil, nil
	}
	return f.fn(mint)
}

// fakeStore records writes and serves canned deployer rows. Every method
// is safe for the concurrent stages.
type fakeStore struct {
	mu       sync.Mutex
	stored   []store.DeployerToken
	upserted []store.DeployerToken
	scans    []store.ScanRecord
}

func newFakeStore() *fakeStore { return &fakeStore{} }

func (f *fakeStore) ConsumeQuota(context.Context, string, string, string, int) (int, bool, error) {
	return 1, true, nil
}
func (f *fakeStore) GetUsage(context.Context, string, string, string) (int, error) { return 0, nil }
func (f *fakeStore) ListUsage(context.Context, string) ([]store.UsageRecord, error) {
	return nil, nil
}
func (f *fakeStore) PurgeStaleUsage(context.Context, string) (int64, error) { return 0, nil }
func (f *fakeStore) RecordPayment(context.Context, store.PaymentRecord) error {
	return nil
}

func (f *fakeStore) SaveScan(_ context.Context, rec store.ScanRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scans = append(f.scans, rec)
	return nil
}

func (f *fakeStore) RecentScans(context.Context, int) ([]store.ScanRecord, error) {
	return nil, nil
}
func (f *fakeStore) Stats(context.Context, time.Time) (*store.Stats, error) {
	return &store.Stats{}, nil
}

func (f *fakeStore) UpsertDeployerTokens(_ context.Context, tokens []store.DeployerToken) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upserted = append(f.upserted, tokens...)
	return nil
}

func (f *fakeStore) DeployerTokens(context.Context, string) ([]store.DeployerToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stored, nil
}

func (f *fakeStore) StaleAliveTokens(context.Context, time.Time, int) ([]store.DeployerToken, error) {
	return nil, nil
}
func (f *fakeStore) UpdateTokenLiveness(context.Context, string, bool, float64, time.Time) error {
	return nil
}
func (f *fakeStore) Ping(context.Context) error { return nil }
func (f *fakeStore) Close()                     {}

func (f *fakeStore) savedScans() []store.ScanRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]store.ScanRecord{}, f.scans...)
}

func (f *fakeStore) upsertedTokens() []store.DeployerToken {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]store.DeployerToken{}, f.upserted...)
}

// callLog counts invocations across the concurrent stages.
type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *callLog) add(s string) {
	l.mu.Lock()
	l.calls = append(l.calls, s)
	l.mu.Unlock()
}

func (l *callLog) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.calls)
}

func (l *callLog) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string{}, l.calls...)
}

func newTestConfig() *config.Config {
	return &config.Config{
		ScanTimeout:       30 * time.Second,
		DeathClassifyCap:  50,
		BurnerWindowHours: 24,
		BurnerPenalty:     10,
	}
}

func newTestPipeline(t *testing.T) (*Pipeline, *fakeStore) {
	t.Helper()
	st := newFakeStore()
	p := &Pipeline{
		history:  &fakeHistory{},
		chain:    &fakeChain{},
		dex:      &fakeDex{},
		prices:   &fakePrices{},
		rug:      &fakeRug{},
		store:    st,
		cfg:      newTestConfig(),
		liveness: cache.New[*models.TokenStatus](time.Minute),
		now:      func() time.Time { return testNow },
	}
	t.Cleanup(p.Close)
	return p, st
}

func i64(v int64) *int64 { return &v }

// createTx builds an enhanced Pump.fun launch as the provider classifies
// it, minting to the deployer.
func createTx(sig string, ts int64, deployer string, mints ...string) upstream.EnhancedTransaction {
	tx := upstream.EnhancedTransaction{
		Signature: sig,
		Timestamp: ts,
		Type:      "CREATE",
		Source:    "PUMP_FUN",
		FeePayer:  deployer,
	}
	for _, mint := range mints {
		tx.TokenTransfers = append(tx.TokenTransfers, upstream.TokenTransfer{
			Mint:          mint,
			ToUserAccount: deployer,
			TokenAmount:   1_000_000_000,
		})
	}
	return tx
}

// nativeTx builds an enhanced transaction carrying one native transfer.
func nativeTx(sig string, ts int64, feePayer, from, to string, lamports int64) upstream.EnhancedTransaction {
	return upstream.EnhancedTransaction{
		Signature: sig,
		Timestamp: ts,
		Type:      "TRANSFER",
		Source:    "SYSTEM_PROGRAM",
		FeePayer:  feePayer,
		NativeTransfers: []upstream.NativeTransfer{
			{FromUserAccount: from, ToUserAccount: to, Amount: lamports},
		},
	}
}

// initMintInstruction is a jsonParsed initializeMint2 for mint.
func initMintInstruction(mint string) upstream.ParsedInstruction {
	return upstream.ParsedInstruction{
		Program:   "spl-token",
		ProgramID: solana.TokenProgram,
		Parsed:    json.RawMessage(fmt.Sprintf(`{"type":"initializeMint2","info":{"mint":%q,"decimals":6}}`, mint)),
	}
}

// parsedLaunchTx is a jsonParsed Pump.fun launch with payer as fee payer
// and an inner initializeMint2 for mint.
func parsedLaunchTx(payer, mint string, blockTime int64) *upstream.ParsedTransaction {
	return &upstream.ParsedTransaction{
		Slot:      4200,
		BlockTime: i64(blockTime),
		Meta: &upstream.TransactionMeta{
			InnerInstructions: []upstream.InnerInstructionSet{{
				Index:        2,
				Instructions: []upstream.ParsedInstruction{initMintInstruction(mint)},
			}},
		},
		Transaction: upstream.TransactionBody{
			Message: upstream.TransactionMessage{
				AccountKeys: []upstream.AccountKey{
					{Pubkey: payer, Signer: true, Writable: true},
					{Pubkey: solana.PumpFunProgram},
					{Pubkey: solana.TokenProgram},
				},
			},
		},
	}
}
