package watch

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/svyatogor45/marketmonitor/internal/broker"
	"github.com/svyatogor45/marketmonitor/internal/model"
	"github.com/svyatogor45/marketmonitor/internal/store"
	"github.com/svyatogor45/marketmonitor/pkg/jsonutil"
)

func TestBase_HandleRegister_CallsOnInitForFreshTargets(t *testing.T) {
	b := broker.NewFakeBroker()
	var initialized []string
	base := newBase(model.WatchTypeToken, b, nil, func(targets []string) {
		initialized = append(initialized, targets...)
	})

	rule := model.Rule{RuleID: "r1", Target: []string{"BTC", "ETH"}}
	payload, err := jsonutil.Marshal(rule)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	base.handleRegister(context.Background(), payload)

	if len(initialized) != 2 {
		t.Fatalf("expected 2 fresh targets, got %v", initialized)
	}

	entry, found, err := b.HGet(context.Background(), model.WatchEntryKey(model.WatchTypeToken, "BTC"), "r1")
	if err != nil || !found {
		t.Fatalf("expected watch entry for BTC/r1, found=%v err=%v", found, err)
	}
	if entry == "" {
		t.Fatal("expected non-empty persisted rule document")
	}
}

func TestBase_HandleRegister_SecondCallDoesNotReinit(t *testing.T) {
	b := broker.NewFakeBroker()
	calls := 0
	base := newBase(model.WatchTypeToken, b, nil, func(targets []string) { calls++ })

	rule := model.Rule{RuleID: "r1", Target: []string{"BTC"}}
	payload, _ := jsonutil.Marshal(rule)

	base.handleRegister(context.Background(), payload)
	base.handleRegister(context.Background(), payload)

	if calls != 1 {
		t.Fatalf("expected onInit called once for the same target, got %d", calls)
	}
}

func TestBase_HandleDeactivate_RemovesExplicitTarget(t *testing.T) {
	b := broker.NewFakeBroker()
	base := newBase(model.WatchTypeToken, b, nil, nil)

	rule := model.Rule{RuleID: "r1", Target: []string{"BTC"}}
	payload, _ := jsonutil.Marshal(rule)
	base.handleRegister(context.Background(), payload)

	event := model.DeactivateEvent{RuleID: "r1", Target: "BTC"}
	eventPayload, _ := jsonutil.Marshal(event)
	base.handleDeactivate(context.Background(), eventPayload)

	if _, found, _ := b.HGet(context.Background(), model.WatchEntryKey(model.WatchTypeToken, "BTC"), "r1"); found {
		t.Fatal("expected watch entry to be removed")
	}
	if base.targetList() != nil && len(base.targetList()) != 0 {
		t.Fatalf("expected target to be dropped from the watching set, got %v", base.targetList())
	}
}

func TestBase_HandleDeactivate_FallsBackToStoreLookup(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("SELECT").WillReturnRows(
		sqlmock.NewRows([]string{
			"rule_id", "user_id", "user_name", "watch_type", "target", "target_data",
			"condition", "notify_channel", "notify_id", "metadata", "active",
			"created_at", "last_updated", "status", "last_error",
		}).AddRow(
			"r1", "u1", "alice", "token", `["BTC"]`, `{}`,
			`{"type":"any"}`, "telegram", "42", `{}`, true,
			time.Now(), time.Now(), "active", "",
		))

	ruleStore := store.NewRuleStore(db)
	b := broker.NewFakeBroker()
	base := newBase(model.WatchTypeToken, b, ruleStore, nil)

	rule := model.Rule{RuleID: "r1", Target: []string{"BTC"}}
	payload, _ := jsonutil.Marshal(rule)
	base.handleRegister(context.Background(), payload)

	event := model.DeactivateEvent{RuleID: "r1"}
	eventPayload, _ := jsonutil.Marshal(event)
	base.handleDeactivate(context.Background(), eventPayload)

	if _, found, _ := b.HGet(context.Background(), model.WatchEntryKey(model.WatchTypeToken, "BTC"), "r1"); found {
		t.Fatal("expected watch entry resolved via store lookup to be removed")
	}
}

func TestBase_StatusReflectsActiveAndTargets(t *testing.T) {
	b := broker.NewFakeBroker()
	base := newBase(model.WatchTypeWallet, b, nil, nil)
	base.setActive(true)

	rule := model.Rule{RuleID: "r1", Target: []string{"0xabc"}}
	payload, _ := jsonutil.Marshal(rule)
	base.handleRegister(context.Background(), payload)
	base.markTick()

	health := base.Status()
	if !health.Active || health.TargetCount != 1 {
		t.Fatalf("unexpected health snapshot: %+v", health)
	}
	if health.LastCheck.IsZero() {
		t.Fatal("expected LastCheck to be set after markTick")
	}
}

func TestBase_RunTickLoop_InvokesTickWithTargets(t *testing.T) {
	b := broker.NewFakeBroker()
	base := newBase(model.WatchTypeToken, b, nil, nil)

	rule := model.Rule{RuleID: "r1", Target: []string{"BTC"}}
	payload, _ := jsonutil.Marshal(rule)
	base.handleRegister(context.Background(), payload)

	tickCh := make(chan []string, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go base.runTickLoop(ctx, 5*time.Millisecond, func(_ context.Context, targets []string) {
		select {
		case tickCh <- targets:
		default:
		}
	})

	select {
	case targets := <-tickCh:
		if len(targets) != 1 || targets[0] != "BTC" {
			t.Fatalf("expected tick with [BTC], got %v", targets)
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatal("timed out waiting for tick")
	}
}

func TestBase_RulesForTarget_DecodesWatchEntries(t *testing.T) {
	b := broker.NewFakeBroker()
	base := newBase(model.WatchTypeToken, b, nil, nil)

	rule := model.Rule{RuleID: "r1", Target: []string{"BTC"}, UserID: "u1"}
	payload, _ := jsonutil.Marshal(rule)
	base.handleRegister(context.Background(), payload)

	rules, err := base.rulesForTarget(context.Background(), "BTC")
	if err != nil {
		t.Fatalf("rulesForTarget: %v", err)
	}
	if len(rules) != 1 || rules[0].RuleID != "r1" {
		t.Fatalf("unexpected rules: %+v", rules)
	}
}
