package scan

import (
	"context"
	"log"

	"github.com/rawblock/daybreakscan/internal/solana"
	"github.com/rawblock/daybreakscan/internal/upstream"
	"github.com/rawblock/daybreakscan/pkg/models"
)

const (
	// deployerProbeLimit is how many of a mint's oldest enhanced
	// transactions are examined for the launch.
	deployerProbeLimit = 5

	sigWalkPageSize = 1000
	sigWalkMaxPages = 10
)

// findDeployer resolves the wallet that launched mint. The enhanced
// provider's classified history is tried first; a raw signature walk to
// the mint's oldest transaction covers anything it has not indexed.
func (p *Pipeline) findDeployer(ctx context.Context, mint string) (*models.Deployer, error) {
	dep, err := p.deployerFromHistory(ctx, mint)
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		log.Printf("[Scan] enhanced deployer lookup for %s failed, walking signatures: %v", mint, err)
	}
	if dep != nil {
		return dep, nil
	}
	return p.deployerFromSignatures(ctx, mint)
}

func (p *Pipeline) deployerFromHistory(ctx context.Context, mint string) (*models.Deployer, error) {
	txs, err := p.history.EnhancedTransactions(ctx, mint, deployerProbeLimit, "asc", "")
	if err != nil {
		return nil, err
	}
	if len(txs) == 0 {
		return nil, nil
	}

	// A classified CREATE wins over anything else in the window.
	for _, tx := range txs {
		if tx.Type == "CREATE" && tx.Source == "PUMP_FUN" && tx.FeePayer != "" {
			return &models.Deployer{
				Wallet:            tx.FeePayer,
				CreationSignature: tx.Signature,
				Method:            "enhanced",
				FirstSeen:         tx.Timestamp,
			}, nil
		}
	}

	// No classified launch in the window. Parse the oldest transaction
	// raw: a Pump.fun launch shows as an inner initializeMint2 for this
	// mint, paid for by the deployer.
	oldest := txs[0]
	tx, err := p.chain.GetTransaction(ctx, oldest.Signature)
	if err != nil || tx == nil {
		return nil, err
	}
	if touchesProgram(tx, solana.PumpFunProgram) && initializesMint(tx, mint) {
		if payer := feePayer(tx); payer != "" {
			return &models.Deployer{
				Wallet:            payer,
				CreationSignature: oldest.Signature,
				Method:            "enhanced",
				FirstSeen:         oldest.Timestamp,
			}, nil
		}
	}
	return nil, nil
}

func (p *Pipeline) deployerFromSignatures(ctx context.Context, mint string) (*models.Deployer, error) {
	oldest, err := p.oldestSignature(ctx, mint)
	if err != nil {
		return nil, err
	}
	if oldest == nil {
		return nil, NewError(KindDeployerNotFound, "no transaction history for mint")
	}

	tx, err := p.chain.GetTransaction(ctx, oldest.Signature)
	if err != nil {
		return nil, err
	}
	if tx == nil {
		return nil, NewError(KindDeployerNotFound, "creation transaction not retrievable")
	}

	// The fee payer of the initializeMint2 transaction is the deployer;
	// without one, the first signer is the best available attribution.
	wallet := ""
	if initializesMint(tx, mint) {
		wallet = feePayer(tx)
	}
	if wallet == "" {
		wallet = firstSigner(tx)
	}
	if wallet == "" {
		return nil, NewError(KindDeployerNotFound, "creation transaction has no signer")
	}

	dep := &models.Deployer{
		Wallet:            wallet,
		CreationSignature: oldest.Signature,
		Method:            "rpc-fallback",
	}
	if oldest.BlockTime != nil {
		dep.FirstSeen = *oldest.BlockTime
	}
	return dep, nil
}

// oldestSignature pages an address's signature history back to its very
// first transaction, bounded at sigWalkMaxPages.
func (p *Pipeline) oldestSignature(ctx context.Context, address string) (*upstream.SignatureInfo, error) {
	var oldest *upstream.SignatureInfo
	before := ""
	for page := 0; page < sigWalkMaxPages; page++ {
		sigs, err := p.chain.GetSignatures(ctx, address, before, sigWalkPageSize)
		if err != nil {
			return nil, err
		}
		if len(sigs) == 0 {
			break
		}
		last := sigs[len(sigs)-1]
		oldest = &last
		before = last.Signature
		if len(sigs) < sigWalkPageSize {
			break
		}
	}
	return oldest, nil
}
