package models

// TokenMeta identifies a mint with its on-chain metadata
type TokenMeta struct {
	Address string `json:"address"`
	Name    string `json:"name"`
	Symbol  string `json:"symbol"`
}

// Social is a social link attached to a DEX pair listing
type Social struct {
	Type string `json:"type"`
	URL  string `json:"url"`
}

// TokenStatus is the aggregated DEX view of a single mint.
// A mint with no DEX pair at all never gets a TokenStatus; it stays unverified.
type TokenStatus struct {
	Mint          string   `json:"mint"`
	Alive         bool     `json:"alive"`
	LiquidityUSD  float64  `json:"liquidityUsd"`  // summed across pairs
	Volume24hUSD  float64  `json:"volume24hUsd"`  // summed across pairs
	PriceUSD      *float64 `json:"priceUsd,omitempty"`
	FDV           *float64 `json:"fdv,omitempty"`
	MarketCap     *float64 `json:"marketCap,omitempty"`
	PairCreatedAt int64    `json:"pairCreatedAt,omitempty"` // unix seconds
	Websites      []string `json:"websites,omitempty"`
	Socials       []Social `json:"socials,omitempty"`
}

// Deployer is the wallet that paid fees on the scanned token's creation
type Deployer struct {
	Wallet            string `json:"wallet"`
	CreationSignature string `json:"creationSignature,omitempty"`
	Method            string `json:"method"` // "enhanced" | "rpc-fallback" | "wallet"
	FirstSeen         int64  `json:"firstSeen,omitempty"` // earliest launch, unix seconds
	LastSeen          int64  `json:"lastSeen,omitempty"`  // latest launch, unix seconds
}

// TokenInfo is one launch in the deployer's history with its liveness view
type TokenInfo struct {
	Mint      string               `json:"mint"`
	Name      string               `json:"name,omitempty"`
	Symbol    string               `json:"symbol,omitempty"`
	CreatedAt int64                `json:"createdAt,omitempty"` // unix seconds
	Liveness  string               `json:"liveness"`            // "alive" | "dead" | "unverified"
	Status    *TokenStatus         `json:"status,omitempty"`
	Death     *DeathClassification `json:"death,omitempty"`
}

// DeathClassification labels why a dead token died
type DeathClassification struct {
	Type     string        `json:"type"` // "natural" | "likely_rug" | "distributed_rug" | "unverified"
	Evidence DeathEvidence `json:"evidence"`
}

// DeathEvidence holds the signals behind a death classification.
// Pointer fields are null when the signal could not be determined.
type DeathEvidence struct {
	DeployerSold                *bool    `json:"deployerSold,omitempty"`
	DeployerHoldingsPct         *float64 `json:"deployerHoldingsPct,omitempty"`
	PeakLiquidityUSD            float64  `json:"peakLiquidityUsd"`
	LifespanHours               float64  `json:"lifespanHours"`
	HadRealBuyers               bool     `json:"hadRealBuyers"`
	InitialTransferTo           string   `json:"initialTransferTo,omitempty"`
	InitialTransferIsDex        *bool    `json:"initialTransferIsDex,omitempty"`
	InitialTransferIsAssociated *bool    `json:"initialTransferIsAssociated,omitempty"`
}

// Funding describes where the deployer's first money came from
type Funding struct {
	SourceWallet string `json:"sourceWallet"`
	Timestamp    int64  `json:"timestamp,omitempty"` // unix seconds
	FromCEX      bool   `json:"fromCex"`
	CEXName      string `json:"cexName,omitempty"`
}

// Cluster summarizes sibling wallets sharing the deployer's funding source
type Cluster struct {
	FundedWallets int `json:"fundedWallets"` // sampled destinations (≤25)
	DeployerCount int `json:"deployerCount"` // of those, wallets that deploy tokens
}

// RiskSignals are per-token red flags. Every field is nullable: null means
// the signal could not be determined, which is distinct from false/0.
type RiskSignals struct {
	MintAuthority       *string  `json:"mintAuthority,omitempty"`
	FreezeAuthority     *string  `json:"freezeAuthority,omitempty"`
	DeployerHoldingsPct *float64 `json:"deployerHoldingsPct,omitempty"`
	TopHolderPct        *float64 `json:"topHolderPct,omitempty"`
	Top5Pct             *float64 `json:"top5Pct,omitempty"`
	BundleDetected      *bool    `json:"bundleDetected,omitempty"`
	LPLocked            *bool    `json:"lpLocked,omitempty"`
	LPLockPct           *float64 `json:"lpLockPct,omitempty"`
}

// ReputationBreakdown decomposes the score into per-component contributions
type ReputationBreakdown struct {
	DeathComponent      float64  `json:"deathComponent"`      // 0-40
	TokenCountComponent float64  `json:"tokenCountComponent"` // 0-20
	LifespanComponent   float64  `json:"lifespanComponent"`   // 0-20
	ClusterComponent    float64  `json:"clusterComponent"`    // 0-20
	RiskDeductions      int      `json:"riskDeductions"`      // ≤ 0
	Details             []string `json:"details"`             // one line per applied signal
}

// Reputation is the scored verdict for a deployer
type Reputation struct {
	Score          int                 `json:"score"` // 0-100
	Verdict        string              `json:"verdict"`
	BayesDeathRate float64             `json:"bayesDeathRate"`
	Breakdown      ReputationBreakdown `json:"breakdown"`
}

// Confidence states how much of the verdict rests on verified data
type Confidence struct {
	VerifiedCount   int    `json:"verifiedCount"`
	UnverifiedCount int    `json:"unverifiedCount"`
	ClusterChecked  bool   `json:"clusterChecked"`
	Method          string `json:"method"`
}

// ScanSummary aggregates the liveness split across all enumerated tokens
type ScanSummary struct {
	TokensCreated    int  `json:"tokensCreated"`
	TokensAlive      int  `json:"tokensAlive"`
	TokensDead       int  `json:"tokensDead"`
	TokensUnverified int  `json:"tokensUnverified"`
	LimitReached     bool `json:"limitReached"`
}

// Scan is the complete result of one deployer scan. It is constructed once
// and never mutated afterwards; all child structures belong to it.
type Scan struct {
	ID         string       `json:"id"`
	Token      *TokenMeta   `json:"token,omitempty"` // nil for wallet scans
	Deployer   *Deployer    `json:"deployer"`
	Tokens     []TokenInfo  `json:"tokens"`
	Summary    ScanSummary  `json:"summary"`
	Risks      *RiskSignals `json:"risks,omitempty"`
	Funding    *Funding     `json:"funding,omitempty"`
	Cluster    *Cluster     `json:"cluster,omitempty"`
	Reputation *Reputation  `json:"reputation"`
	Confidence Confidence   `json:"confidence"`
	ScannedAt  int64        `json:"scannedAt"` // unix seconds
	Evidence   []string     `json:"evidence,omitempty"`
}
