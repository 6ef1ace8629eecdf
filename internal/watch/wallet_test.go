package watch

import (
	"context"
	"testing"
	"time"

	"github.com/svyatogor45/marketmonitor/internal/broker"
	"github.com/svyatogor45/marketmonitor/internal/model"
	"github.com/svyatogor45/marketmonitor/pkg/jsonutil"
)

type stubTracker struct {
	chain string
	data  map[string]model.WalletSnapshot
}

func (s *stubTracker) Chain() string { return s.chain }

func (s *stubTracker) GetWalletData(_ context.Context, wallets []string) (map[string]model.WalletSnapshot, error) {
	out := make(map[string]model.WalletSnapshot)
	for _, w := range wallets {
		if snap, ok := s.data[w]; ok {
			out[w] = snap
		}
	}
	return out, nil
}

func TestMergeEventFields_CarriesChainHashBlock(t *testing.T) {
	event := model.TxEvent{
		Kind: model.ConditionNativeIn, Chain: "ethereum", Hash: "0xabc", BlockNumber: 42,
		Fields: map[string]interface{}{"amount": "1.5"},
	}
	merged := mergeEventFields(event)

	if merged["chain"] != "ethereum" || merged["hash"] != "0xabc" || merged["block_number"] != uint64(42) {
		t.Fatalf("unexpected merged fields: %+v", merged)
	}
	if merged["amount"] != "1.5" {
		t.Fatalf("expected event-specific field to survive merge, got %+v", merged)
	}
}

func TestWalletWatcher_Tick_PublishesMatchForEVMActivity(t *testing.T) {
	b := broker.NewFakeBroker()
	tracker := &stubTracker{chain: "ethereum", data: map[string]model.WalletSnapshot{
		"0xabc": {Chain: "ethereum", Transactions: []model.TxEvent{
			{Kind: model.ConditionNativeIn, Chain: "ethereum", Hash: "0x1"},
		}},
	}}

	w := NewWalletWatcher(b, nil, []WalletTracker{tracker}, nil, time.Hour)

	rule := model.Rule{RuleID: "r1", Target: []string{"0xabc"}, TargetData: map[string]model.TargetDescriptor{
		"0xabc": {Kind: model.WalletKindEVM},
	}}
	payload, err := jsonutil.Marshal(rule)
	if err != nil {
		t.Fatalf("marshal rule: %v", err)
	}
	w.handleRegister(context.Background(), payload)

	w.tick(context.Background(), []string{"0xabc"})

	if len(b.Published) != 1 {
		t.Fatalf("expected one published match, got %d", len(b.Published))
	}
	var match model.Match
	if err := jsonutil.UnmarshalString(b.Published[0].Payload, &match); err != nil {
		t.Fatalf("decode published match: %v", err)
	}
	if len(match.MatchData.Matches) != 1 || match.MatchData.Matches[0].Wallet != "0xabc" {
		t.Fatalf("unexpected match payload: %+v", match)
	}
}

func TestWalletWatcher_Tick_RoutesSolanaWalletsToSolanaTracker(t *testing.T) {
	b := broker.NewFakeBroker()
	evm := &stubTracker{chain: "ethereum"}
	solana := &stubTracker{chain: "solana", data: map[string]model.WalletSnapshot{
		"SoLwallet": {Chain: "solana", Transactions: []model.TxEvent{
			{Kind: model.ConditionTokenTrade, Chain: "solana", Hash: "sig1"},
		}},
	}}

	w := NewWalletWatcher(b, nil, []WalletTracker{evm}, solana, time.Hour)

	rule := model.Rule{RuleID: "r1", Target: []string{"SoLwallet"}, TargetData: map[string]model.TargetDescriptor{
		"SoLwallet": {Kind: model.WalletKindSolana},
	}}
	payload, _ := jsonutil.Marshal(rule)
	w.handleRegister(context.Background(), payload)

	w.tick(context.Background(), []string{"SoLwallet"})

	if len(b.Published) != 1 {
		t.Fatalf("expected one published match from the solana tracker, got %d", len(b.Published))
	}
}

func TestWalletWatcher_Tick_NoActivityPublishesNothing(t *testing.T) {
	b := broker.NewFakeBroker()
	tracker := &stubTracker{chain: "ethereum", data: map[string]model.WalletSnapshot{}}
	w := NewWalletWatcher(b, nil, []WalletTracker{tracker}, nil, time.Hour)

	rule := model.Rule{RuleID: "r1", Target: []string{"0xabc"}, TargetData: map[string]model.TargetDescriptor{
		"0xabc": {Kind: model.WalletKindEVM},
	}}
	payload, _ := jsonutil.Marshal(rule)
	w.handleRegister(context.Background(), payload)

	w.tick(context.Background(), []string{"0xabc"})

	if len(b.Published) != 0 {
		t.Fatalf("expected no published matches when the tracker reports no activity, got %d", len(b.Published))
	}
}
