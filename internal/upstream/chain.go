package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/rawblock/daybreakscan/internal/cache"
	"github.com/rawblock/daybreakscan/internal/metrics"
	"github.com/rawblock/daybreakscan/pkg/models"
)

const (
	// rpcBatchSize is how many getTransaction calls share one JSON-RPC body.
	rpcBatchSize = 10

	// batchConcurrency caps how many batch bodies are in flight at once.
	batchConcurrency = 10

	mintInfoTTL = 2 * time.Hour
	metadataTTL = 30 * time.Minute
)

// ChainClient is the typed view over the JSON-RPC router. Mint account
// state and token metadata are cached because scans of the same deployer
// hit them repeatedly.
type ChainClient struct {
	router   *Router
	mintInfo *cache.Cache[*MintInfo]
	metadata *cache.Cache[*models.TokenMeta]
	batchSem *semaphore.Weighted
}

func NewChainClient(router *Router) *ChainClient {
	return &ChainClient{
		router:   router,
		mintInfo: cache.New[*MintInfo](mintInfoTTL),
		metadata: cache.New[*models.TokenMeta](metadataTTL),
		batchSem: semaphore.NewWeighted(batchConcurrency),
	}
}

// GetTransaction fetches one confirmed transaction under jsonParsed
// encoding. A transaction the provider no longer holds comes back nil.
func (c *ChainClient) GetTransaction(ctx context.Context, signature string) (*ParsedTransaction, error) {
	result, err := c.router.Basic(ctx, "getTransaction", signature, map[string]any{
		"encoding":                       "jsonParsed",
		"maxSupportedTransactionVersion": 0,
	})
	if err != nil {
		return nil, fmt.Errorf("get transaction %s: %w", signature, err)
	}
	if isNullResult(result) {
		return nil, nil
	}
	var tx ParsedTransaction
	if err := json.Unmarshal(result, &tx); err != nil {
		return nil, fmt.Errorf("get transaction %s: unmarshal: %w", signature, err)
	}
	return &tx, nil
}

// GetSignatures fetches one page of an address's signature history, newest
// first. Pass before to continue past an earlier page.
func (c *ChainClient) GetSignatures(ctx context.Context, address, before string, limit int) ([]SignatureInfo, error) {
	opts := map[string]any{"limit": limit}
	if before != "" {
		opts["before"] = before
	}
	result, err := c.router.Basic(ctx, "getSignaturesForAddress", address, opts)
	if err != nil {
		return nil, fmt.Errorf("get signatures for %s: %w", address, err)
	}
	var sigs []SignatureInfo
	if err := json.Unmarshal(result, &sigs); err != nil {
		return nil, fmt.Errorf("get signatures for %s: unmarshal: %w", address, err)
	}
	return sigs, nil
}

// GetTransactionsBatch fetches many transactions in JSON-RPC batch bodies
// of rpcBatchSize, at most batchConcurrency bodies in flight. The result
// slice is index-aligned with sigs; transactions the provider no longer
// holds are nil entries.
func (c *ChainClient) GetTransactionsBatch(ctx context.Context, sigs []string) ([]*ParsedTransaction, error) {
	results := make([]*ParsedTransaction, len(sigs))
	g, gctx := errgroup.WithContext(ctx)

	for start := 0; start < len(sigs); start += rpcBatchSize {
		end := min(start+rpcBatchSize, len(sigs))
		chunk := sigs[start:end]
		offset := start

		g.Go(func() error {
			if err := c.batchSem.Acquire(gctx, 1); err != nil {
				return err
			}
			defer c.batchSem.Release(1)

			calls := make([]BatchCall, len(chunk))
			for i, sig := range chunk {
				calls[i] = BatchCall{
					Method: "getTransaction",
					Params: []any{sig, map[string]any{
						"encoding":                       "jsonParsed",
						"maxSupportedTransactionVersion": 0,
					}},
				}
			}

			raws, err := c.router.Batch(gctx, calls)
			if err != nil {
				return fmt.Errorf("transactions batch at %d: %w", offset, err)
			}
			for i, raw := range raws {
				if isNullResult(raw) {
					continue
				}
				var tx ParsedTransaction
				if err := json.Unmarshal(raw, &tx); err != nil {
					return fmt.Errorf("transactions batch at %d: unmarshal %s: %w", offset, chunk[i], err)
				}
				results[offset+i] = &tx
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// GetMintAccount fetches the parsed SPL mint account state, cached for two
// hours because authorities almost never change after launch.
func (c *ChainClient) GetMintAccount(ctx context.Context, mint string) (*MintInfo, error) {
	if info, ok := c.mintInfo.Get(mint); ok {
		metrics.CacheHit("mint")
		return info, nil
	}
	metrics.CacheMiss("mint")

	result, err := c.router.Basic(ctx, "getAccountInfo", mint, map[string]any{"encoding": "jsonParsed"})
	if err != nil {
		return nil, fmt.Errorf("get mint account %s: %w", mint, err)
	}

	var envelope struct {
		Value *struct {
			Data struct {
				Parsed struct {
					Type string   `json:"type"`
					Info MintInfo `json:"info"`
				} `json:"parsed"`
			} `json:"data"`
		} `json:"value"`
	}
	if err := json.Unmarshal(result, &envelope); err != nil {
		return nil, fmt.Errorf("get mint account %s: unmarshal: %w", mint, err)
	}
	if envelope.Value == nil {
		return nil, fmt.Errorf("get mint account %s: account not found", mint)
	}
	if envelope.Value.Data.Parsed.Type != "mint" {
		return nil, fmt.Errorf("get mint account %s: not a mint account", mint)
	}

	info := envelope.Value.Data.Parsed.Info
	c.mintInfo.Set(mint, &info)
	return &info, nil
}

// GetTokenAccounts fetches a wallet's token accounts for one mint.
func (c *ChainClient) GetTokenAccounts(ctx context.Context, owner, mint string) ([]TokenAccountBalance, error) {
	result, err := c.router.Basic(ctx, "getTokenAccountsByOwner",
		owner, map[string]any{"mint": mint}, map[string]any{"encoding": "jsonParsed"})
	if err != nil {
		return nil, fmt.Errorf("get token accounts %s/%s: %w", owner, mint, err)
	}

	var envelope struct {
		Value []struct {
			Pubkey  string `json:"pubkey"`
			Account struct {
				Data struct {
					Parsed struct {
						Info struct {
							TokenAmount UITokenAmount `json:"tokenAmount"`
						} `json:"info"`
					} `json:"parsed"`
				} `json:"data"`
			} `json:"account"`
		} `json:"value"`
	}
	if err := json.Unmarshal(result, &envelope); err != nil {
		return nil, fmt.Errorf("get token accounts %s/%s: unmarshal: %w", owner, mint, err)
	}

	accounts := make([]TokenAccountBalance, 0, len(envelope.Value))
	for _, entry := range envelope.Value {
		accounts = append(accounts, TokenAccountBalance{
			Address: entry.Pubkey,
			Amount:  entry.Account.Data.Parsed.Info.TokenAmount.Amount,
		})
	}
	return accounts, nil
}

// GetLargestAccounts fetches the twenty largest token accounts of a mint.
func (c *ChainClient) GetLargestAccounts(ctx context.Context, mint string) ([]LargestAccount, error) {
	result, err := c.router.Basic(ctx, "getTokenLargestAccounts", mint)
	if err != nil {
		return nil, fmt.Errorf("get largest accounts %s: %w", mint, err)
	}

	var envelope struct {
		Value []LargestAccount `json:"value"`
	}
	if err := json.Unmarshal(result, &envelope); err != nil {
		return nil, fmt.Errorf("get largest accounts %s: unmarshal: %w", mint, err)
	}
	return envelope.Value, nil
}

// GetAsset fetches token name and symbol through the enhanced provider's
// asset API, cached for thirty minutes.
func (c *ChainClient) GetAsset(ctx context.Context, mint string) (*models.TokenMeta, error) {
	if meta, ok := c.metadata.Get(mint); ok {
		metrics.CacheHit("metadata")
		return meta, nil
	}
	metrics.CacheMiss("metadata")

	result, err := c.router.Enhanced(ctx, "getAsset", map[string]any{"id": mint})
	if err != nil {
		return nil, fmt.Errorf("get asset %s: %w", mint, err)
	}

	var asset struct {
		Content struct {
			Metadata struct {
				Name   string `json:"name"`
				Symbol string `json:"symbol"`
			} `json:"metadata"`
		} `json:"content"`
	}
	if err := json.Unmarshal(result, &asset); err != nil {
		return nil, fmt.Errorf("get asset %s: unmarshal: %w", mint, err)
	}

	meta := &models.TokenMeta{
		Address: mint,
		Name:    asset.Content.Metadata.Name,
		Symbol:  asset.Content.Metadata.Symbol,
	}
	c.metadata.Set(mint, meta)
	return meta, nil
}

// FlushCaches drops all cached chain state.
func (c *ChainClient) FlushCaches() {
	c.mintInfo.Flush()
	c.metadata.Flush()
}

// Close stops the cache sweepers.
func (c *ChainClient) Close() {
	c.mintInfo.Stop()
	c.metadata.Stop()
}

func isNullResult(raw json.RawMessage) bool {
	return len(raw) == 0 || string(raw) == "null"
}
