package scan

import (
	"context"
	"log"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/rawblock/daybreakscan/internal/solana"
	"github.com/rawblock/daybreakscan/internal/upstream"
	"github.com/rawblock/daybreakscan/pkg/models"
)

const (
	fundingProbeTxs = 20

	clusterFanoutPages = 5
	clusterPageSize    = 100
	clusterMaxWallets  = 25
	clusterProbeTxs    = 20
	clusterConcurrency = 25

	// clusterMinLamports filters dust: seeding below 0.01 SOL cannot
	// cover the rent and fees a sibling deployer would need.
	clusterMinLamports = 10_000_000
)

// fundingSource finds who first funded wallet: the earliest inbound
// native transfer from another party, or failing that the first fee
// payer other than the wallet itself.
func (p *Pipeline) fundingSource(ctx context.Context, wallet string) (*models.Funding, error) {
	txs, err := p.history.EnhancedTransactions(ctx, wallet, fundingProbeTxs, "asc", "")
	if err == nil {
		if f := fundingFromHistory(wallet, txs); f != nil {
			return f, nil
		}
	} else {
		if ctx.Err() != nil {
			return nil, err
		}
		log.Printf("[Scan] enhanced funding lookup for %s failed, walking signatures: %v", wallet, err)
	}
	return p.fundingFromSignatures(ctx, wallet)
}

func fundingFromHistory(wallet string, txs []upstream.EnhancedTransaction) *models.Funding {
	for _, tx := range txs {
		for _, tr := range tx.NativeTransfers {
			if tr.ToUserAccount == wallet && tr.FromUserAccount != "" && tr.FromUserAccount != wallet {
				return newFunding(tr.FromUserAccount, tx.Timestamp)
			}
		}
	}
	for _, tx := range txs {
		if tx.FeePayer != "" && tx.FeePayer != wallet {
			return newFunding(tx.FeePayer, tx.Timestamp)
		}
	}
	return nil
}

func (p *Pipeline) fundingFromSignatures(ctx context.Context, wallet string) (*models.Funding, error) {
	oldest, err := p.oldestSignature(ctx, wallet)
	if err != nil || oldest == nil {
		return nil, err
	}
	tx, err := p.chain.GetTransaction(ctx, oldest.Signature)
	if err != nil || tx == nil {
		return nil, err
	}

	ts := int64(0)
	if tx.BlockTime != nil {
		ts = *tx.BlockTime
	}

	for _, in := range allParsedInstructions(tx) {
		if in.ParsedType() != "transfer" {
			continue
		}
		var info upstream.NativeTransferInfo
		if in.ParsedInfo(&info) != nil {
			continue
		}
		if info.Destination == wallet && info.Source != "" && info.Source != wallet {
			return newFunding(info.Source, ts), nil
		}
	}
	if payer := feePayer(tx); payer != "" && payer != wallet {
		return newFunding(payer, ts), nil
	}
	return nil, nil
}

func newFunding(source string, ts int64) *models.Funding {
	f := &models.Funding{SourceWallet: source, Timestamp: ts}
	if name, ok := IsKnownExchange(source); ok {
		f.FromCEX = true
		f.CEXName = name
	}
	return f
}

// analyzeCluster sizes the funder's fan-out: sibling wallets the funder
// also seeded and how many of those went on to deploy tokens. Exchange
// hot wallets seed unrelated customers, so their fan-out is skipped.
func (p *Pipeline) analyzeCluster(ctx context.Context, funding *models.Funding, deployer string) *models.Cluster {
	if funding == nil || funding.SourceWallet == "" {
		return nil
	}
	cluster := &models.Cluster{}
	if funding.FromCEX {
		return cluster
	}

	dests := p.fundedWallets(ctx, funding.SourceWallet, deployer)
	cluster.FundedWallets = len(dests)
	if len(dests) == 0 {
		return cluster
	}

	sem := semaphore.NewWeighted(clusterConcurrency)
	var (
		mu    sync.Mutex
		wg    sync.WaitGroup
		count int
	)
	for _, dest := range dests {
		if sem.Acquire(ctx, 1) != nil {
			break
		}
		wg.Add(1)
		go func(dest string) {
			defer wg.Done()
			defer sem.Release(1)
			if p.walletDeploys(ctx, dest) {
				mu.Lock()
				count++
				mu.Unlock()
			}
		}(dest)
	}
	wg.Wait()
	cluster.DeployerCount = count
	return cluster
}

// fundedWallets pages the funder's outbound native transfers and
// collects distinct destinations seeded above the dust floor.
func (p *Pipeline) fundedWallets(ctx context.Context, funder, deployer string) []string {
	seen := make(map[string]struct{})
	var dests []string
	before := ""

	for page := 0; page < clusterFanoutPages; page++ {
		txs, err := p.history.EnhancedTransactions(ctx, funder, clusterPageSize, "", before)
		if err != nil {
			log.Printf("[Scan] cluster fan-out page for %s failed: %v", funder, err)
			break
		}
		if len(txs) == 0 {
			break
		}
		for _, tx := range txs {
			for _, tr := range tx.NativeTransfers {
				if tr.FromUserAccount != funder || tr.Amount <= clusterMinLamports {
					continue
				}
				dest := tr.ToUserAccount
				if dest == "" || dest == funder || dest == deployer || dest == solana.NativeMint {
					continue
				}
				if _, dup := seen[dest]; dup {
					continue
				}
				seen[dest] = struct{}{}
				dests = append(dests, dest)
				if len(dests) >= clusterMaxWallets {
					return dests
				}
			}
		}
		before = txs[len(txs)-1].Signature
		if len(txs) < clusterPageSize {
			break
		}
	}
	return dests
}

// walletDeploys checks a wallet's recent history for a launch it signed.
func (p *Pipeline) walletDeploys(ctx context.Context, wallet string) bool {
	txs, err := p.history.EnhancedTransactions(ctx, wallet, clusterProbeTxs, "", "")
	if err != nil {
		return false
	}
	for _, tx := range txs {
		if tx.FeePayer == wallet && (tx.Type == "CREATE" || tx.Type == "TOKEN_MINT") {
			return true
		}
	}
	return false
}
