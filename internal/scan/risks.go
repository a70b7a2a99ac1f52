package scan

import (
	"context"
	"log"
	"strconv"
	"strings"

	"github.com/rawblock/daybreakscan/pkg/models"
)

const (
	bundleProbeTxs      = 20
	bundleSlotWindow    = 3
	bundleMinRecipients = 3

	lpLockedMinPct = 90
)

// collectRiskSignals gathers token-level red flags for the scanned mint.
// Every field is independently best-effort: an upstream failure nulls
// the field rather than failing the scan.
func (p *Pipeline) collectRiskSignals(ctx context.Context, mint, deployer, creationSig string) *models.RiskSignals {
	risks := &models.RiskSignals{}

	if info, err := p.chain.GetMintAccount(ctx, mint); err == nil {
		risks.MintAuthority = info.MintAuthority
		risks.FreezeAuthority = info.FreezeAuthority
	} else {
		log.Printf("[Scan] mint account for %s unavailable: %v", mint, err)
	}

	if pct, err := p.holdingsPct(ctx, deployer, mint); err == nil {
		risks.DeployerHoldingsPct = &pct
	}

	p.holderConcentration(ctx, mint, risks)

	if bundled, ok := p.detectBundle(ctx, mint, deployer, creationSig); ok {
		risks.BundleDetected = &bundled
	}

	p.lpLockSignals(ctx, mint, risks)

	return risks
}

// holdingsPct computes the deployer's current share of a mint's supply,
// in percent. A zero-supply mint holds nothing by definition.
func (p *Pipeline) holdingsPct(ctx context.Context, deployer, mint string) (float64, error) {
	info, err := p.chain.GetMintAccount(ctx, mint)
	if err != nil {
		return 0, err
	}
	supply, err := strconv.ParseFloat(info.Supply, 64)
	if err != nil {
		return 0, err
	}
	if supply == 0 {
		return 0, nil
	}

	accounts, err := p.chain.GetTokenAccounts(ctx, deployer, mint)
	if err != nil {
		return 0, err
	}
	held := 0.0
	for _, acct := range accounts {
		if amount, err := strconv.ParseFloat(acct.Amount, 64); err == nil {
			held += amount
		}
	}
	return held / supply * 100, nil
}

// holderConcentration fills top-1 and top-5 holder share of supply.
func (p *Pipeline) holderConcentration(ctx context.Context, mint string, risks *models.RiskSignals) {
	info, err := p.chain.GetMintAccount(ctx, mint)
	if err != nil {
		return
	}
	supply, err := strconv.ParseFloat(info.Supply, 64)
	if err != nil || supply == 0 {
		return
	}
	accounts, err := p.chain.GetLargestAccounts(ctx, mint)
	if err != nil || len(accounts) == 0 {
		return
	}

	top1, top5 := 0.0, 0.0
	for i, acct := range accounts {
		amount, err := strconv.ParseFloat(acct.Amount, 64)
		if err != nil {
			continue
		}
		pct := amount / supply * 100
		if i == 0 {
			top1 = pct
		}
		if i < 5 {
			top5 += pct
		}
	}
	risks.TopHolderPct = &top1
	risks.Top5Pct = &top5
}

// detectBundle looks for coordinated buying right at launch: several
// distinct non-deployer wallets receiving the token within a few slots
// of the creation transaction.
func (p *Pipeline) detectBundle(ctx context.Context, mint, deployer, creationSig string) (bool, bool) {
	if creationSig == "" {
		return false, false
	}
	txs, err := p.history.EnhancedTransactions(ctx, mint, bundleProbeTxs, "asc", "")
	if err != nil || len(txs) == 0 {
		return false, false
	}

	creationSlot := int64(-1)
	for _, tx := range txs {
		if tx.Signature == creationSig {
			creationSlot = tx.Slot
			break
		}
	}
	if creationSlot < 0 {
		creationSlot = txs[0].Slot
	}

	recipients := make(map[string]struct{})
	for _, tx := range txs {
		if delta := tx.Slot - creationSlot; delta < -bundleSlotWindow || delta > bundleSlotWindow {
			continue
		}
		received := false
		for _, tr := range tx.TokenTransfers {
			if tr.Mint != mint || tr.ToUserAccount == "" || tr.ToUserAccount == deployer {
				continue
			}
			recipients[tr.ToUserAccount] = struct{}{}
			received = true
		}
		if received && tx.FeePayer != "" && tx.FeePayer != deployer {
			recipients[tx.FeePayer] = struct{}{}
		}
	}
	return len(recipients) >= bundleMinRecipients, true
}

// lpLockSignals reads LP lock state from the rug-report oracle, either
// from the market summary or from a matching risk entry.
func (p *Pipeline) lpLockSignals(ctx context.Context, mint string, risks *models.RiskSignals) {
	report, err := p.rug.GetReport(ctx, mint)
	if err != nil || report == nil {
		return
	}

	best, found := 0.0, false
	for _, market := range report.Markets {
		if market.LP == nil {
			continue
		}
		found = true
		if market.LP.LPLockedPct > best {
			best = market.LP.LPLockedPct
		}
	}
	if found {
		risks.LPLockPct = &best
		locked := best >= lpLockedMinPct
		risks.LPLocked = &locked
		return
	}

	for _, risk := range report.Risks {
		name := strings.ToLower(risk.Name)
		if strings.Contains(name, "lp") && strings.Contains(name, "lock") && risk.Level == "good" {
			locked := true
			risks.LPLocked = &locked
			return
		}
	}
}
