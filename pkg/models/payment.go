package models

// PaymentOption is one acceptable way to pay for a scan. The amount is in
// base units of the asset (USDC has 6 decimals) encoded as a decimal string.
type PaymentOption struct {
	Scheme            string `json:"scheme"`  // "exact"
	Network           string `json:"network"` // "solana" | "solana-devnet"
	Asset             string `json:"asset"`   // "USDC"
	MaxAmountRequired string `json:"maxAmountRequired"`
	PayTo             string `json:"payTo"`
	Nonce             string `json:"nonce,omitempty"`
	ValidUntil        int64  `json:"validUntil"` // unix seconds
}

// PaymentDetails is the 402 body sent to quota-exhausted callers
type PaymentDetails struct {
	Error   string          `json:"error"`
	Message string          `json:"message"`
	Accepts []PaymentOption `json:"accepts"`
}

// PaymentPayload is the decoded X-Payment header. Exactly one of the two
// shapes is expected: an on-chain proof (txSignature) or a signed claim
// (paymentOption + signature + nonce + timestamp).
type PaymentPayload struct {
	TxSignature   string         `json:"txSignature,omitempty"`
	Payer         string         `json:"payer"`
	PaymentOption *PaymentOption `json:"paymentOption,omitempty"`
	Signature     string         `json:"signature,omitempty"` // base58 Ed25519 signature
	Nonce         string         `json:"nonce,omitempty"`
	Timestamp     int64          `json:"timestamp,omitempty"` // unix seconds
}

// VerifiedPayment is the identity attached to a request after a payment
// passed verification
type VerifiedPayment struct {
	Payer     string  `json:"payer"`
	Scheme    string  `json:"scheme"` // "onchain" | "claim"
	AmountUSD float64 `json:"amountUsd"`
	Reference string  `json:"reference"` // tx signature or claim nonce
}
