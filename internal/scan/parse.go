package scan

import (
	"github.com/mr-tron/base58"

	"github.com/rawblock/daybreakscan/internal/solana"
	"github.com/rawblock/daybreakscan/internal/upstream"
)

// splTokenInitializeMint2 is the token program's instruction tag for
// InitializeMint2, the variant Pump.fun launches emit.
const splTokenInitializeMint2 = 20

// feePayer returns the transaction's fee payer, always the first account
// key in the message.
func feePayer(tx *upstream.ParsedTransaction) string {
	keys := tx.Transaction.Message.AccountKeys
	if len(keys) == 0 {
		return ""
	}
	return keys[0].Pubkey
}

// firstSigner returns the first signing account key.
func firstSigner(tx *upstream.ParsedTransaction) string {
	for _, key := range tx.Transaction.Message.AccountKeys {
		if key.Signer {
			return key.Pubkey
		}
	}
	return ""
}

// allParsedInstructions returns outer instructions followed by every
// inner instruction, in execution order.
func allParsedInstructions(tx *upstream.ParsedTransaction) []upstream.ParsedInstruction {
	out := append([]upstream.ParsedInstruction{}, tx.Transaction.Message.Instructions...)
	if tx.Meta != nil {
		for _, set := range tx.Meta.InnerInstructions {
			out = append(out, set.Instructions...)
		}
	}
	return out
}

// touchesProgram reports whether the transaction references program in
// its account list or invokes it in any instruction.
func touchesProgram(tx *upstream.ParsedTransaction, program string) bool {
	for _, key := range tx.Transaction.Message.AccountKeys {
		if key.Pubkey == program {
			return true
		}
	}
	for _, in := range allParsedInstructions(tx) {
		if in.ProgramID == program {
			return true
		}
	}
	return false
}

// initializedMints returns every mint created by an initializeMint2
// instruction in the transaction, outer or inner.
func initializedMints(tx *upstream.ParsedTransaction) []string {
	var mints []string
	for _, in := range allParsedInstructions(tx) {
		if in.ParsedType() != "initializeMint2" {
			continue
		}
		var info upstream.InitializeMintInfo
		if err := in.ParsedInfo(&info); err != nil || info.Mint == "" {
			continue
		}
		mints = append(mints, info.Mint)
	}
	return mints
}

func initializesMint(tx *upstream.ParsedTransaction, mint string) bool {
	for _, m := range initializedMints(tx) {
		if m == mint {
			return true
		}
	}
	return false
}

// walkEnhancedInstructions visits every instruction of an enhanced
// transaction, inner ones included, stopping once visit returns true.
func walkEnhancedInstructions(ins []upstream.EnhancedInstruction, visit func(upstream.EnhancedInstruction) bool) bool {
	for _, in := range ins {
		if visit(in) {
			return true
		}
		if walkEnhancedInstructions(in.InnerInstructions, visit) {
			return true
		}
	}
	return false
}

// enhancedTouchesProgram reports whether an enhanced transaction invokes
// program in any instruction or lists it in its account data.
func enhancedTouchesProgram(tx upstream.EnhancedTransaction, program string) bool {
	for _, acct := range tx.AccountData {
		if acct.Account == program {
			return true
		}
	}
	return walkEnhancedInstructions(tx.Instructions, func(in upstream.EnhancedInstruction) bool {
		return in.ProgramID == program
	})
}

// enhancedTouchesAnyDex reports whether the transaction involves any
// known DEX program.
func enhancedTouchesAnyDex(tx upstream.EnhancedTransaction) bool {
	for _, acct := range tx.AccountData {
		if _, ok := solana.IsDexProgram(acct.Account); ok {
			return true
		}
	}
	return walkEnhancedInstructions(tx.Instructions, func(in upstream.EnhancedInstruction) bool {
		_, ok := solana.IsDexProgram(in.ProgramID)
		return ok
	})
}

// enhancedHasInitializeMint reports whether any instruction, inner or
// outer, is an SPL InitializeMint2. Enhanced history serves instruction
// data raw, so the tag is read out of the base58 payload.
func enhancedHasInitializeMint(tx upstream.EnhancedTransaction) bool {
	return walkEnhancedInstructions(tx.Instructions, isRawInitializeMint)
}

func isRawInitializeMint(in upstream.EnhancedInstruction) bool {
	if in.ProgramID != solana.TokenProgram {
		return false
	}
	raw, err := base58.Decode(in.Data)
	return err == nil && len(raw) > 0 && raw[0] == splTokenInitializeMint2
}

// launchMints extracts every distinct non-native mint an enhanced
// transaction moved, from token transfers and per-account balance
// changes.
func launchMints(tx upstream.EnhancedTransaction) []string {
	seen := make(map[string]struct{})
	var mints []string
	add := func(mint string) {
		if mint == "" || mint == solana.NativeMint {
			return
		}
		if _, dup := seen[mint]; dup {
			return
		}
		seen[mint] = struct{}{}
		mints = append(mints, mint)
	}
	for _, tr := range tx.TokenTransfers {
		add(tr.Mint)
	}
	for _, acct := range tx.AccountData {
		for _, change := range acct.TokenBalanceChanges {
			add(change.Mint)
		}
	}
	return mints
}
