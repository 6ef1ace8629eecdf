package watch

import (
	"testing"
	"time"

	"github.com/svyatogor45/marketmonitor/internal/alertsapi"
	"github.com/svyatogor45/marketmonitor/internal/model"
	"github.com/svyatogor45/marketmonitor/internal/priceapi"
)

func newTokenWatcherForTest() *TokenWatcher {
	return &TokenWatcher{
		base:      newBase(model.WatchTypeToken, nil, nil, nil),
		lastPrice: NewCache[string, float64](1, 100, time.Hour, 0),
	}
}

func gt(v float64) *float64 { return &v }

func TestPriceIdentifier_PrefersCoinGcID(t *testing.T) {
	rule := model.Rule{TargetData: map[string]model.TargetDescriptor{
		"BTC": {Symbol: "BTC", CoinGcID: "bitcoin"},
	}}
	if got := priceIdentifier("BTC", rule); got != priceapi.FormatID("bitcoin") {
		t.Fatalf("expected coin_gc_id to win, got %q", got)
	}
}

func TestPriceIdentifier_FallsBackToSymbol(t *testing.T) {
	rule := model.Rule{TargetData: map[string]model.TargetDescriptor{
		"BTC": {Symbol: "BTC"},
	}}
	if got := priceIdentifier("BTC", rule); got != priceapi.FormatID("BTC") {
		t.Fatalf("expected symbol fallback, got %q", got)
	}
}

func TestPriceIdentifier_FallsBackToTarget(t *testing.T) {
	rule := model.Rule{}
	if got := priceIdentifier("BTC", rule); got != priceapi.FormatID("BTC") {
		t.Fatalf("expected raw target fallback, got %q", got)
	}
}

func TestEvaluatePrice_AboveThreshold(t *testing.T) {
	w := newTokenWatcherForTest()
	rule := model.Rule{Condition: model.Condition{GT: gt(100)}}

	entries := w.evaluatePrice(rule, "BTC", priceapi.Snapshot{USD: 150})
	if len(entries) != 1 || entries[0].Condition != model.ConditionPriceAbove {
		t.Fatalf("expected one price_above entry, got %+v", entries)
	}
}

func TestEvaluatePrice_BelowThreshold(t *testing.T) {
	w := newTokenWatcherForTest()
	rule := model.Rule{Condition: model.Condition{LT: gt(100)}}

	entries := w.evaluatePrice(rule, "BTC", priceapi.Snapshot{USD: 50})
	if len(entries) != 1 || entries[0].Condition != model.ConditionPriceBelow {
		t.Fatalf("expected one price_below entry, got %+v", entries)
	}
}

func TestEvaluatePrice_ChangeAgainstLastPrice(t *testing.T) {
	w := newTokenWatcherForTest()
	w.lastPrice.Set("BTC", 100)

	entries := w.evaluatePrice(model.Rule{}, "BTC", priceapi.Snapshot{USD: 110})
	found := false
	for _, e := range entries {
		if e.Condition == model.ConditionPriceChange {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a price_change entry for a 10%% move, got %+v", entries)
	}
}

func TestEvaluatePrice_NoChangeBelowThreshold(t *testing.T) {
	w := newTokenWatcherForTest()
	w.lastPrice.Set("BTC", 100)

	entries := w.evaluatePrice(model.Rule{}, "BTC", priceapi.Snapshot{USD: 101})
	for _, e := range entries {
		if e.Condition == model.ConditionPriceChange {
			t.Fatalf("expected no price_change entry for a 1%% move, got %+v", entries)
		}
	}
}

func TestEvaluatePrice_24hChange(t *testing.T) {
	w := newTokenWatcherForTest()
	entries := w.evaluatePrice(model.Rule{}, "BTC", priceapi.Snapshot{USD: 100, USD24hChange: 15})
	found := false
	for _, e := range entries {
		if e.Condition == model.ConditionPriceChange24h {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a price_change_24h entry for a 15%% 24h move, got %+v", entries)
	}
}

func TestEvaluateAlerts_MatchesTargetInText(t *testing.T) {
	w := newTokenWatcherForTest()
	rule := model.Rule{}
	alerts := []alertsapi.Alert{{Text: "BTC just broke resistance", Level: "high"}}

	entries := w.evaluateAlerts(rule, "BTC", alerts)
	if len(entries) != 1 || entries[0].Condition != model.ConditionAlert {
		t.Fatalf("expected one alert entry, got %+v", entries)
	}
}

func TestEvaluateAlerts_FilteredByLevel(t *testing.T) {
	w := newTokenWatcherForTest()
	level := "critical"
	rule := model.Rule{Condition: model.Condition{Alert: &model.AlertFilter{Level: level}}}
	alerts := []alertsapi.Alert{{Text: "BTC update", Level: "low"}}

	entries := w.evaluateAlerts(rule, "BTC", alerts)
	if len(entries) != 0 {
		t.Fatalf("expected level filter to drop non-matching alert, got %+v", entries)
	}
}

func TestEvaluateAlerts_NoMentionNoMatch(t *testing.T) {
	w := newTokenWatcherForTest()
	alerts := []alertsapi.Alert{{Text: "ETH merges successfully"}}

	entries := w.evaluateAlerts(model.Rule{}, "BTC", alerts)
	if len(entries) != 0 {
		t.Fatalf("expected no match for unrelated alert text, got %+v", entries)
	}
}
