package upstream

import "encoding/json"

// ─────────────────────────────────────────────────────────────
// Enhanced provider payloads
// ─────────────────────────────────────────────────────────────

// EnhancedTransaction is one entry of the enhanced provider's parsed
// transaction history. Timestamp is unix seconds. Type and Source carry the
// provider's classification, e.g. CREATE or TOKEN_MINT sourced to PUMP_FUN.
type EnhancedTransaction struct {
	Signature       string                `json:"signature"`
	Timestamp       int64                 `json:"timestamp"`
	Slot            int64                 `json:"slot"`
	Type            string                `json:"type"`
	Source          string                `json:"source"`
	FeePayer        string                `json:"feePayer"`
	Fee             int64                 `json:"fee"`
	NativeTransfers []NativeTransfer      `json:"nativeTransfers"`
	TokenTransfers  []TokenTransfer       `json:"tokenTransfers"`
	AccountData     []AccountData         `json:"accountData"`
	Instructions    []EnhancedInstruction `json:"instructions"`
}

type NativeTransfer struct {
	FromUserAccount string `json:"fromUserAccount"`
	ToUserAccount   string `json:"toUserAccount"`
	Amount          int64  `json:"amount"` // lamports
}

type TokenTransfer struct {
	FromUserAccount  string  `json:"fromUserAccount"`
	ToUserAccount    string  `json:"toUserAccount"`
	FromTokenAccount string  `json:"fromTokenAccount"`
	ToTokenAccount   string  `json:"toTokenAccount"`
	Mint             string  `json:"mint"`
	TokenAmount      float64 `json:"tokenAmount"`
}

type AccountData struct {
	Account             string               `json:"account"`
	NativeBalanceChange int64                `json:"nativeBalanceChange"`
	TokenBalanceChanges []TokenBalanceChange `json:"tokenBalanceChanges"`
}

type TokenBalanceChange struct {
	UserAccount    string         `json:"userAccount"`
	TokenAccount   string         `json:"tokenAccount"`
	Mint           string         `json:"mint"`
	RawTokenAmount RawTokenAmount `json:"rawTokenAmount"`
}

type RawTokenAmount struct {
	TokenAmount string `json:"tokenAmount"`
	Decimals    int    `json:"decimals"`
}

type EnhancedInstruction struct {
	ProgramID         string                `json:"programId"`
	Accounts          []string              `json:"accounts"`
	Data              string                `json:"data"`
	InnerInstructions []EnhancedInstruction `json:"innerInstructions"`
}

// ─────────────────────────────────────────────────────────────
// Basic RPC payloads (jsonParsed encoding)
// ─────────────────────────────────────────────────────────────

// SignatureInfo is one entry of a getSignaturesForAddress page.
type SignatureInfo struct {
	Signature string          `json:"signature"`
	Slot      int64           `json:"slot"`
	BlockTime *int64          `json:"blockTime"`
	Err       json.RawMessage `json:"err"` // null on success
}

// Failed reports whether the transaction behind the signature errored.
func (s SignatureInfo) Failed() bool {
	return len(s.Err) > 0 && string(s.Err) != "null"
}

// ParsedTransaction is a getTransaction result under jsonParsed encoding.
type ParsedTransaction struct {
	Slot        int64            `json:"slot"`
	BlockTime   *int64           `json:"blockTime"`
	Meta        *TransactionMeta `json:"meta"`
	Transaction TransactionBody  `json:"transaction"`
}

type TransactionMeta struct {
	Err               json.RawMessage       `json:"err"`
	Fee               int64                 `json:"fee"`
	PreBalances       []int64               `json:"preBalances"`
	PostBalances      []int64               `json:"postBalances"`
	PreTokenBalances  []TokenBalance        `json:"preTokenBalances"`
	PostTokenBalances []TokenBalance        `json:"postTokenBalances"`
	InnerInstructions []InnerInstructionSet `json:"innerInstructions"`
}

// Failed reports whether the transaction errored on chain.
func (m *TransactionMeta) Failed() bool {
	return m != nil && len(m.Err) > 0 && string(m.Err) != "null"
}

type TokenBalance struct {
	AccountIndex  int           `json:"accountIndex"`
	Mint          string        `json:"mint"`
	Owner         string        `json:"owner"`
	UITokenAmount UITokenAmount `json:"uiTokenAmount"`
}

type UITokenAmount struct {
	Amount         string   `json:"amount"` // raw integer as string
	Decimals       int      `json:"decimals"`
	UIAmount       *float64 `json:"uiAmount"`
	UIAmountString string   `json:"uiAmountString"`
}

type InnerInstructionSet struct {
	Index        int                 `json:"index"`
	Instructions []ParsedInstruction `json:"instructions"`
}

type TransactionBody struct {
	Message    TransactionMessage `json:"message"`
	Signatures []string           `json:"signatures"`
}

type TransactionMessage struct {
	AccountKeys  []AccountKey        `json:"accountKeys"`
	Instructions []ParsedInstruction `json:"instructions"`
}

type AccountKey struct {
	Pubkey   string `json:"pubkey"`
	Signer   bool   `json:"signer"`
	Writable bool   `json:"writable"`
}

// ParsedInstruction covers both parsed and raw instructions: parsed ones
// carry Parsed, raw ones carry Accounts and Data.
type ParsedInstruction struct {
	Program   string          `json:"program,omitempty"`
	ProgramID string          `json:"programId"`
	Accounts  []string        `json:"accounts,omitempty"`
	Data      string          `json:"data,omitempty"`
	Parsed    json.RawMessage `json:"parsed,omitempty"`
}

// ParsedType returns the parsed instruction type ("initializeMint2",
// "transfer", ...) or "" when the instruction was not parsed.
func (pi ParsedInstruction) ParsedType() string {
	if len(pi.Parsed) == 0 {
		return ""
	}
	var detail struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(pi.Parsed, &detail); err != nil {
		return ""
	}
	return detail.Type
}

// ParsedInfo decodes the instruction's info payload into v.
func (pi ParsedInstruction) ParsedInfo(v any) error {
	var detail struct {
		Info json.RawMessage `json:"info"`
	}
	if err := json.Unmarshal(pi.Parsed, &detail); err != nil {
		return err
	}
	return json.Unmarshal(detail.Info, v)
}

// InitializeMintInfo is the info payload of an initializeMint2 instruction.
type InitializeMintInfo struct {
	Mint            string `json:"mint"`
	Decimals        int    `json:"decimals"`
	MintAuthority   string `json:"mintAuthority"`
	FreezeAuthority string `json:"freezeAuthority"`
}

// NativeTransferInfo is the info payload of a system-program transfer.
type NativeTransferInfo struct {
	Source      string `json:"source"`
	Destination string `json:"destination"`
	Lamports    int64  `json:"lamports"`
}

// MintInfo is the jsonParsed view of an SPL mint account.
type MintInfo struct {
	MintAuthority   *string `json:"mintAuthority"`
	FreezeAuthority *string `json:"freezeAuthority"`
	Supply          string  `json:"supply"` // raw integer as string
	Decimals        int     `json:"decimals"`
}

// TokenAccountBalance is one token account owned by a wallet.
type TokenAccountBalance struct {
	Address string
	Amount  string // raw integer as string
}

// LargestAccount is one entry of getTokenLargestAccounts.
type LargestAccount struct {
	Address  string `json:"address"`
	Amount   string `json:"amount"` // raw integer as string
	Decimals int    `json:"decimals"`
}

// ─────────────────────────────────────────────────────────────
// DEX index payloads
// ─────────────────────────────────────────────────────────────

// DexPair is one trading pair from the DEX liquidity index. PriceUsd is a
// decimal string and PairCreatedAt is unix milliseconds, both as the index
// serves them.
type DexPair struct {
	PairAddress   string       `json:"pairAddress"`
	BaseToken     DexToken     `json:"baseToken"`
	PriceUsd      string       `json:"priceUsd"`
	Liquidity     DexLiquidity `json:"liquidity"`
	Volume        DexVolume    `json:"volume"`
	PriceChange   DexVolume    `json:"priceChange"`
	FDV           float64      `json:"fdv"`
	MarketCap     float64      `json:"marketCap"`
	PairCreatedAt int64        `json:"pairCreatedAt"`
	Info          *DexInfo     `json:"info"`
}

type DexToken struct {
	Address string `json:"address"`
	Name    string `json:"name"`
	Symbol  string `json:"symbol"`
}

type DexLiquidity struct {
	USD float64 `json:"usd"`
}

type DexVolume struct {
	H24 float64 `json:"h24"`
}

type DexInfo struct {
	Websites []DexWebsite `json:"websites"`
	Socials  []DexSocial  `json:"socials"`
}

type DexWebsite struct {
	Label string `json:"label"`
	URL   string `json:"url"`
}

type DexSocial struct {
	Type string `json:"type"`
	URL  string `json:"url"`
}

// ─────────────────────────────────────────────────────────────
// Rug-report payloads
// ─────────────────────────────────────────────────────────────

// RugReport is the rug-report oracle's summary for one mint.
type RugReport struct {
	Score   float64     `json:"score"`
	Risks   []RugRisk   `json:"risks"`
	Markets []RugMarket `json:"markets"`
}

type RugRisk struct {
	Name        string  `json:"name"`
	Value       string  `json:"value"`
	Description string  `json:"description"`
	Level       string  `json:"level"` // good, warn, danger
	Score       float64 `json:"score"`
}

type RugMarket struct {
	LP *RugLP `json:"lp"`
}

type RugLP struct {
	LPLockedPct float64 `json:"lpLockedPct"`
}
