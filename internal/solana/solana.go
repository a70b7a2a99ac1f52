// Package solana holds the small set of chain-level helpers the scan
// pipeline needs: address validation, well-known program ids, and Ed25519
// signature checks for payment claims. Everything heavier (RPC dispatch,
// history parsing) lives in internal/upstream.
package solana

import (
	"crypto/ed25519"
	"fmt"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"
)

// Well-known program and mint addresses (mainnet)
const (
	PumpFunProgram   = "6EF8rrecthR5Dkzon8Nwu78hRvfCKubJ14M5uBEwF6P"
	TokenProgram     = "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA"
	Token2022Program = "TokenzQdBNbLqP5VEhdkAS6EPFLC1PHnBqCXEpPxuEb"
	SystemProgram    = "11111111111111111111111111111111"
	NativeMint       = "So11111111111111111111111111111111111111112"

	USDCMintMainnet = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
	USDCMintDevnet  = "4zMMC9srt5Ri5X14GAgXhaHii3GnPAEERYPJgZJDncDU"

	LamportsPerSOL = 1_000_000_000
	USDCDecimals   = 6
)

// KnownDexPrograms maps AMM / router program ids to a human name. Used to
// tell "deployer sent tokens to a pool" apart from "deployer sent tokens to
// a friend" when classifying deaths.
var KnownDexPrograms = map[string]string{
	"6EF8rrecthR5Dkzon8Nwu78hRvfCKubJ14M5uBEwF6P":  "Pump.fun",
	"pAMMBay6oceH9fJKBRHGP5D4bD4sWpmSwMn52FMfXEA":  "PumpSwap",
	"675kPX9MHTjS2zt1qfr1NYHuzeLXfQM9H24wFSUt1Mp8": "Raydium AMM v4",
	"CAMMCzo5YL8w4VFF8KVHrK22GGUsp5VTaW7grrKgrWqK": "Raydium CLMM",
	"CPMMoo8L3F4NbTegBCKVNunggL7H1ZpdTHKxQB5qKP1C": "Raydium CPMM",
	"JUP6LkbZbjS1jKKwapdHNy74zcZ3tLUZoi5QNyVTaV4":  "Jupiter v6",
	"whirLbMiicVdio4qvUfM5KAg6Ct8VwpYzGff3uctyCc":  "Orca Whirlpool",
	"LBUZKhRxPF3XUpBCjp4YzTKgLccjZhTSDM9YuVaPwxo":  "Meteora DLMM",
}

// IsDexProgram reports whether addr is a known AMM or router program.
func IsDexProgram(addr string) (string, bool) {
	name, ok := KnownDexPrograms[addr]
	return name, ok
}

// ValidateAddress checks that s is a plausible Solana address: base58 over
// the Bitcoin alphabet (no 0, O, I, l), 32-44 characters, decoding to a
// 32-byte key. Returns a descriptive error on failure.
func ValidateAddress(s string) error {
	if len(s) < 32 || len(s) > 44 {
		return fmt.Errorf("address must be 32-44 characters, got %d", len(s))
	}
	// base58.Decode rejects 0, O, I, l and any other non-alphabet byte.
	raw, err := base58.Decode(s)
	if err != nil {
		return fmt.Errorf("not base58: %v", err)
	}
	if len(raw) != 32 {
		return fmt.Errorf("address decodes to %d bytes, want 32", len(raw))
	}
	return nil
}

// IsValidAddress is the boolean form of ValidateAddress.
func IsValidAddress(s string) bool {
	return ValidateAddress(s) == nil
}

// VerifySignature checks a base58 Ed25519 signature over msg against the
// base58 public key. Used by the signed-claim payment path.
func VerifySignature(pubkey string, msg []byte, signature string) (bool, error) {
	pk, err := solanago.PublicKeyFromBase58(pubkey)
	if err != nil {
		return false, fmt.Errorf("bad public key: %v", err)
	}
	sig, err := solanago.SignatureFromBase58(signature)
	if err != nil {
		return false, fmt.Errorf("bad signature encoding: %v", err)
	}
	return ed25519.Verify(ed25519.PublicKey(pk[:]), msg, sig[:]), nil
}

// USDCMint returns the USDC mint for the configured network.
func USDCMint(network string) string {
	if network == "solana-devnet" {
		return USDCMintDevnet
	}
	return USDCMintMainnet
}
