package scan

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/mr-tron/base58"

	"github.com/rawblock/daybreakscan/internal/solana"
	"github.com/rawblock/daybreakscan/internal/upstream"
)

func TestEnumerateLaunchesFiltersAndDedupes(t *testing.T) {
	p, _ := newTestPipeline(t)
	deployer := "walletA"

	page := []upstream.EnhancedTransaction{
		// Classified launch; the wrapped-SOL leg must not count as a mint.
		createTx("s1", 300, deployer, "mintA", solana.NativeMint),
		{
			Signature: "s2",
			Timestamp: 320,
			Type:      "SWAP",
			Source:    "RAYDIUM",
			FeePayer:  deployer,
			TokenTransfers: []upstream.TokenTransfer{
				{Mint: "mintE", FromUserAccount: deployer},
			},
		},
		// Launch paid by someone else is not this deployer's.
		createTx("s3", 350, "other-wallet", "mintD"),
		{
			Signature: "s4",
			Timestamp: 400,
			Type:      "TOKEN_MINT",
			Source:    "PUMP_FUN",
			FeePayer:  deployer,
			AccountData: []upstream.AccountData{
				{Account: deployer, TokenBalanceChanges: []upstream.TokenBalanceChange{{Mint: "mintB", UserAccount: deployer}}},
			},
		},
		// Unclassified launch recognized from the raw instructions.
		{
			Signature: "s5",
			Timestamp: 500,
			Type:      "UNKNOWN",
			Source:    "",
			FeePayer:  deployer,
			TokenTransfers: []upstream.TokenTransfer{
				{Mint: "mintC", ToUserAccount: deployer},
			},
			Instructions: []upstream.EnhancedInstruction{
				{ProgramID: solana.PumpFunProgram, Data: base58.Encode([]byte{0x18, 0x1e})},
				{ProgramID: solana.TokenProgram, Data: base58.Encode([]byte{splTokenInitializeMint2, 6})},
			},
		},
		createTx("s6", 600, deployer, "mintA"),
	}
	p.history = &fakeHistory{fn: func(address string, limit int, sortOrder, before string) ([]upstream.EnhancedTransaction, error) {
		if address != deployer || limit != enumPageSize || before != "" {
			t.Errorf("unexpected page request: %s limit=%d before=%q", address, limit, before)
		}
		return page, nil
	}}

	launches, limited, err := p.enumerateLaunches(context.Background(), deployer)
	if err != nil {
		t.Fatalf("enumerateLaunches: %v", err)
	}
	if limited {
		t.Error("short history should not be limited")
	}
	want := []launch{
		{Mint: "mintA", CreatedAt: 300, Signature: "s1"},
		{Mint: "mintB", CreatedAt: 400, Signature: "s4"},
		{Mint: "mintC", CreatedAt: 500, Signature: "s5"},
	}
	if len(launches) != len(want) {
		t.Fatalf("got %d launches %v, want %d", len(launches), launches, len(want))
	}
	for i, w := range want {
		if launches[i] != w {
			t.Errorf("launch[%d] = %+v, want %+v", i, launches[i], w)
		}
	}
}

func TestEnumerateLaunchesLimitReached(t *testing.T) {
	p, _ := newTestPipeline(t)
	deployer := "walletA"
	calls := 0
	p.history = &fakeHistory{fn: func(address string, limit int, sortOrder, before string) ([]upstream.EnhancedTransaction, error) {
		calls++
		page := make([]upstream.EnhancedTransaction, enumPageSize)
		for i := range page {
			sig := fmt.Sprintf("p%d-s%d", calls, i)
			page[i] = createTx(sig, int64(1_700_000_000-calls*1000-i), deployer, "mintA")
		}
		return page, nil
	}}

	launches, limited, err := p.enumerateLaunches(context.Background(), deployer)
	if err != nil {
		t.Fatalf("enumerateLaunches: %v", err)
	}
	if !limited {
		t.Error("full pages through the cap must report limited")
	}
	if calls != enumMaxPages {
		t.Errorf("fetched %d pages, want %d", calls, enumMaxPages)
	}
	if len(launches) != 1 {
		t.Errorf("got %d launches, want 1 after dedupe", len(launches))
	}
}

func TestEnumerateFallbackToSignatures(t *testing.T) {
	p, _ := newTestPipeline(t)
	deployer := "walletA"

	var batched []string
	p.chain = &fakeChain{
		getSignatures: func(address, before string, limit int) ([]upstream.SignatureInfo, error) {
			if before != "" {
				return nil, nil
			}
			return []upstream.SignatureInfo{
				{Signature: "s-ok", BlockTime: i64(1_700_000_300)},
				{Signature: "s-bad", Err: json.RawMessage(`{"InstructionError":[0,"Custom"]}`)},
				{Signature: "s-ok2", BlockTime: i64(1_700_000_200)},
				{Signature: "s-ok3", BlockTime: i64(1_700_000_100)},
			}, nil
		},
		getBatch: func(sigs []string) ([]*upstream.ParsedTransaction, error) {
			batched = sigs
			return []*upstream.ParsedTransaction{
				parsedLaunchTx(deployer, "mintZ", 1_700_000_300),
				nil,
				parsedLaunchTx("other-wallet", "mintQ", 1_700_000_100),
			}, nil
		},
	}

	launches, limited, err := p.enumerateLaunches(context.Background(), deployer)
	if err != nil {
		t.Fatalf("enumerateLaunches: %v", err)
	}
	if limited {
		t.Error("tiny history should not be limited")
	}
	wantSigs := []string{"s-ok", "s-ok2", "s-ok3"}
	if len(batched) != len(wantSigs) {
		t.Fatalf("batched %v, want failed signature excluded", batched)
	}
	for i, s := range wantSigs {
		if batched[i] != s {
			t.Errorf("batched[%d] = %s, want %s", i, batched[i], s)
		}
	}
	if len(launches) != 1 || launches[0].Mint != "mintZ" {
		t.Fatalf("got %v, want just mintZ", launches)
	}
	if launches[0].CreatedAt != 1_700_000_300 || launches[0].Signature != "s-ok" {
		t.Errorf("launch = %+v", launches[0])
	}
}

func TestEnumerateFallbackParseCap(t *testing.T) {
	p, _ := newTestPipeline(t)

	var batchLen int
	p.chain = &fakeChain{
		getSignatures: func(address, before string, limit int) ([]upstream.SignatureInfo, error) {
			if before != "" {
				return nil, nil
			}
			sigs := make([]upstream.SignatureInfo, 400)
			for i := range sigs {
				sigs[i] = upstream.SignatureInfo{Signature: fmt.Sprintf("s-%d", i)}
			}
			return sigs, nil
		},
		getBatch: func(sigs []string) ([]*upstream.ParsedTransaction, error) {
			batchLen = len(sigs)
			return make([]*upstream.ParsedTransaction, len(sigs)), nil
		},
	}

	launches, limited, err := p.enumerateLaunches(context.Background(), "walletA")
	if err != nil {
		t.Fatalf("enumerateLaunches: %v", err)
	}
	if !limited {
		t.Error("history beyond the parse cap must report limited")
	}
	if batchLen != fallbackParseCap {
		t.Errorf("parsed %d transactions, want %d", batchLen, fallbackParseCap)
	}
	if len(launches) != 0 {
		t.Errorf("got %d launches from empty parses", len(launches))
	}
}

func TestEnumerateHistoryErrorFallsBack(t *testing.T) {
	p, _ := newTestPipeline(t)
	deployer := "walletA"
	p.history = &fakeHistory{fn: func(string, int, string, string) ([]upstream.EnhancedTransaction, error) {
		return nil, errors.New("enhanced provider down")
	}}
	p.chain = &fakeChain{
		getSignatures: func(address, before string, limit int) ([]upstream.SignatureInfo, error) {
			if before != "" {
				return nil, nil
			}
			return []upstream.SignatureInfo{{Signature: "s-1", BlockTime: i64(1_700_000_000)}}, nil
		},
		getBatch: func(sigs []string) ([]*upstream.ParsedTransaction, error) {
			return []*upstream.ParsedTransaction{parsedLaunchTx(deployer, "mintR", 1_700_000_000)}, nil
		},
	}

	launches, _, err := p.enumerateLaunches(context.Background(), deployer)
	if err != nil {
		t.Fatalf("enumerateLaunches should fall back, got %v", err)
	}
	if len(launches) != 1 || launches[0].Mint != "mintR" {
		t.Fatalf("got %v, want mintR from the RPC walk", launches)
	}
}
