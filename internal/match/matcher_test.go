package match

import (
	"context"
	"testing"
	"time"

	"github.com/svyatogor45/marketmonitor/internal/broker"
	"github.com/svyatogor45/marketmonitor/internal/model"
	"github.com/svyatogor45/marketmonitor/pkg/jsonutil"
)

func TestValidate_EmptyMatches(t *testing.T) {
	if err := Validate(model.WatchTypeToken, model.MatchData{}); err != ErrEmptyMatches {
		t.Errorf("Validate(empty) error = %v, want ErrEmptyMatches", err)
	}
}

func TestValidate_TokenMissingField(t *testing.T) {
	data := model.MatchData{Matches: []model.MatchEntry{{Condition: model.ConditionPriceAbove}}}
	if err := Validate(model.WatchTypeToken, data); err != ErrMissingTokenField {
		t.Errorf("Validate(token, no token) error = %v, want ErrMissingTokenField", err)
	}
}

func TestValidate_WalletTradeMissingWallet(t *testing.T) {
	data := model.MatchData{Matches: []model.MatchEntry{{Condition: model.ConditionTokenTrade}}}
	if err := Validate(model.WatchTypeWallet, data); err != ErrMissingWallet {
		t.Errorf("Validate(wallet trade, no wallet) error = %v, want ErrMissingWallet", err)
	}
}

func TestValidate_AirdropMissingMessage(t *testing.T) {
	data := model.MatchData{Matches: []model.MatchEntry{{Condition: model.ConditionAlert}}}
	if err := Validate(model.WatchTypeAirdrop, data); err != ErrMissingMessage {
		t.Errorf("Validate(airdrop, no message) error = %v, want ErrMissingMessage", err)
	}
}

func TestValidate_OK(t *testing.T) {
	data := model.MatchData{Matches: []model.MatchEntry{{Condition: model.ConditionPriceAbove, Token: "BTC"}}}
	if err := Validate(model.WatchTypeToken, data); err != nil {
		t.Errorf("Validate(valid) error = %v, want nil", err)
	}
}

func buildMatch(ruleID string, value float64) model.Match {
	return model.Match{
		Rule: model.Rule{
			RuleID: ruleID, UserID: "user-1", WatchType: model.WatchTypeToken,
			NotifyChannel: "telegram", NotifyID: "chat-1",
		},
		MatchData: model.MatchData{Matches: []model.MatchEntry{
			{Condition: model.ConditionPriceChange, Token: "BTC", Value: value, OldPrice: 100, NewPrice: 100 * (1 + value)},
		}},
		MatchedAt: time.Now(),
	}
}

func TestProcessor_PublishesNotification(t *testing.T) {
	b := broker.NewFakeBroker()
	p := NewProcessor(b, time.Minute)
	stop, err := p.Start(context.Background())
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer stop()

	match := buildMatch("rule-1", 0.06)
	if err := b.Publish(context.Background(), model.RuleMatchedTopic(model.WatchTypeToken), match); err != nil {
		t.Fatalf("Publish(rule_matched) error = %v", err)
	}

	if len(b.Published) != 2 { // rule_matched + send_notify
		t.Fatalf("Published count = %d, want 2", len(b.Published))
	}
	last := b.Published[len(b.Published)-1]
	if last.Channel != model.SendNotifyTopic(model.WatchTypeToken) {
		t.Errorf("last publish channel = %q, want send_notify topic", last.Channel)
	}

	var notif model.Notification
	if err := jsonutil.UnmarshalString(last.Payload, &notif); err != nil {
		t.Fatalf("unmarshal notification: %v", err)
	}
	if notif.Channel != "telegram" || notif.User != "chat-1" {
		t.Errorf("notification channel/user = %q/%q, want telegram/chat-1", notif.Channel, notif.User)
	}
	if notif.Metadata.RuleID != "rule-1" || notif.Metadata.ParseMode != "HTML" {
		t.Errorf("notification metadata = %+v, want rule_id=rule-1 parse_mode=HTML", notif.Metadata)
	}
}

func TestProcessor_DropsInvalidMatch(t *testing.T) {
	b := broker.NewFakeBroker()
	p := NewProcessor(b, time.Minute)
	stop, err := p.Start(context.Background())
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer stop()

	invalid := model.Match{Rule: model.Rule{RuleID: "rule-2"}, MatchData: model.MatchData{}}
	if err := b.Publish(context.Background(), model.RuleMatchedTopic(model.WatchTypeToken), invalid); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	for _, rec := range b.Published {
		if rec.Channel == model.SendNotifyTopic(model.WatchTypeToken) {
			t.Errorf("expected no send_notify publish for invalid match, got %q", rec.Payload)
		}
	}
}

func TestProcessor_DedupSuppressesRepeat(t *testing.T) {
	b := broker.NewFakeBroker()
	p := NewProcessor(b, time.Minute)
	stop, err := p.Start(context.Background())
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer stop()

	match := buildMatch("rule-3", 0.06)
	topic := model.RuleMatchedTopic(model.WatchTypeToken)
	if err := b.Publish(context.Background(), topic, match); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if err := b.Publish(context.Background(), topic, match); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	sendCount := 0
	for _, rec := range b.Published {
		if rec.Channel == model.SendNotifyTopic(model.WatchTypeToken) {
			sendCount++
		}
	}
	if sendCount != 1 {
		t.Errorf("send_notify publish count = %d, want 1 (second identical match deduped)", sendCount)
	}
}
