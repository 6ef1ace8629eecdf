package watch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/svyatogor45/marketmonitor/internal/alertsapi"
	"github.com/svyatogor45/marketmonitor/internal/broker"
	"github.com/svyatogor45/marketmonitor/internal/model"
	"github.com/svyatogor45/marketmonitor/pkg/jsonutil"
)

func TestAirdropEntry_BuildsAlertCondition(t *testing.T) {
	entry := airdropEntry(alertsapi.Alert{Text: "Project X airdrop live", PostLink: "https://example.com/1"})

	if entry.Condition != model.ConditionAlert {
		t.Fatalf("expected condition alert, got %q", entry.Condition)
	}
	if entry.Message != "Project X airdrop live" {
		t.Fatalf("unexpected message: %q", entry.Message)
	}
	if entry.Data["post_link"] != "https://example.com/1" {
		t.Fatalf("expected post_link to be carried in data, got %+v", entry.Data)
	}
}

func TestMessageHash_NormalizesCaseAndWhitespace(t *testing.T) {
	a := messageHash("  Project X Airdrop  ")
	b := messageHash("project x airdrop")
	if a != b {
		t.Fatalf("expected normalized hashes to match, got %q vs %q", a, b)
	}
}

func TestMessageHash_DistinctTextsDiffer(t *testing.T) {
	if messageHash("alpha") == messageHash("beta") {
		t.Fatal("expected distinct text to produce distinct hashes")
	}
}

func TestAirdropWatcher_Tick_WildcardRuleFetchesUnfiltered(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if crypto := r.URL.Query().Get("crypto"); crypto != "" {
			t.Errorf("expected unfiltered fetch for a wildcard-only watching set, got crypto=%q", crypto)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"alerts":[{"text":"Some unrelated project airdrop"}]}`))
	}))
	defer srv.Close()

	b := broker.NewFakeBroker()
	alerts := alertsapi.New(srv.URL, "", nil)
	w := NewAirdropWatcher(b, nil, alerts, time.Hour)

	rule := model.Rule{RuleID: "r1", Target: []string{"*"}}
	payload, err := jsonutil.Marshal(rule)
	if err != nil {
		t.Fatalf("marshal rule: %v", err)
	}
	w.handleRegister(context.Background(), payload)

	w.tick(context.Background(), []string{"*"})

	if len(b.Published) != 1 {
		t.Fatalf("expected one published match for the wildcard rule, got %d", len(b.Published))
	}
}
