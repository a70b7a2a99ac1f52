package scan

import (
	"context"
	"log"

	"github.com/rawblock/daybreakscan/internal/solana"
	"github.com/rawblock/daybreakscan/internal/upstream"
)

const (
	enumPageSize = 100
	enumMaxPages = 50

	fallbackSigCap   = 5000
	fallbackParseCap = 300
)

// launch is one token creation attributed to the deployer.
type launch struct {
	Mint      string
	CreatedAt int64
	Signature string
}

// enumerateLaunches walks the deployer's history newest-first and
// collects every Pump.fun launch. The second result reports whether the
// walk stopped at the page cap with history left over.
func (p *Pipeline) enumerateLaunches(ctx context.Context, deployer string) ([]launch, bool, error) {
	launches, limited, err := p.launchesFromHistory(ctx, deployer)
	if err != nil {
		if ctx.Err() != nil {
			return nil, false, err
		}
		log.Printf("[Scan] enhanced enumeration for %s failed, falling back to RPC: %v", deployer, err)
	}
	if len(launches) > 0 {
		return launches, limited, nil
	}
	return p.launchesFromSignatures(ctx, deployer)
}

func (p *Pipeline) launchesFromHistory(ctx context.Context, deployer string) ([]launch, bool, error) {
	seen := make(map[string]struct{})
	var launches []launch
	before := ""

	for page := 0; page < enumMaxPages; page++ {
		txs, err := p.history.EnhancedTransactions(ctx, deployer, enumPageSize, "", before)
		if err != nil {
			return nil, false, err
		}
		if len(txs) == 0 {
			return launches, false, nil
		}

		for _, tx := range txs {
			if tx.FeePayer != deployer || !isLaunch(tx) {
				continue
			}
			for _, mint := range launchMints(tx) {
				if _, dup := seen[mint]; dup {
					continue
				}
				seen[mint] = struct{}{}
				launches = append(launches, launch{
					Mint:      mint,
					CreatedAt: tx.Timestamp,
					Signature: tx.Signature,
				})
			}
		}

		before = txs[len(txs)-1].Signature
		if len(txs) < enumPageSize {
			return launches, false, nil
		}
	}
	return launches, true, nil
}

// isLaunch reports whether an enhanced transaction created a token:
// either the provider classified it as a Pump.fun create or mint, or it
// touches the Pump.fun program and initializes a mint.
func isLaunch(tx upstream.EnhancedTransaction) bool {
	if (tx.Type == "CREATE" || tx.Type == "TOKEN_MINT") && tx.Source == "PUMP_FUN" {
		return true
	}
	return enhancedTouchesProgram(tx, solana.PumpFunProgram) && enhancedHasInitializeMint(tx)
}

// launchesFromSignatures is the raw RPC path used when enhanced history
// yields nothing: walk the signature list, parse the first
// fallbackParseCap successful transactions, and keep mints initialized
// in transactions touching the Pump.fun program.
func (p *Pipeline) launchesFromSignatures(ctx context.Context, deployer string) ([]launch, bool, error) {
	var success []upstream.SignatureInfo
	total := 0
	before := ""

	for total < fallbackSigCap {
		limit := min(sigWalkPageSize, fallbackSigCap-total)
		sigs, err := p.chain.GetSignatures(ctx, deployer, before, limit)
		if err != nil {
			return nil, false, err
		}
		if len(sigs) == 0 {
			break
		}
		total += len(sigs)
		for _, sig := range sigs {
			if !sig.Failed() {
				success = append(success, sig)
			}
		}
		before = sigs[len(sigs)-1].Signature
		if len(sigs) < limit {
			break
		}
	}

	limited := total >= fallbackSigCap || len(success) > fallbackParseCap
	if len(success) > fallbackParseCap {
		success = success[:fallbackParseCap]
	}
	if len(success) == 0 {
		return nil, limited, nil
	}

	sigStrings := make([]string, len(success))
	for i, s := range success {
		sigStrings[i] = s.Signature
	}
	txs, err := p.chain.GetTransactionsBatch(ctx, sigStrings)
	if err != nil {
		return nil, false, err
	}

	seen := make(map[string]struct{})
	var launches []launch
	for i, tx := range txs {
		if tx == nil || tx.Meta.Failed() {
			continue
		}
		if feePayer(tx) != deployer || !touchesProgram(tx, solana.PumpFunProgram) {
			continue
		}
		for _, mint := range initializedMints(tx) {
			if mint == solana.NativeMint {
				continue
			}
			if _, dup := seen[mint]; dup {
				continue
			}
			seen[mint] = struct{}{}
			l := launch{Mint: mint, Signature: success[i].Signature}
			if tx.BlockTime != nil {
				l.CreatedAt = *tx.BlockTime
			}
			launches = append(launches, l)
		}
	}
	return launches, limited, nil
}
