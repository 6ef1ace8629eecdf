// Package match implements the Rule Matcher: it consumes rule_matched
// events from every watcher, validates and deduplicates them, formats
// the user-facing message, and emits send_notify events for the
// Notification Dispatcher.
package match

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/svyatogor45/marketmonitor/internal/broker"
	"github.com/svyatogor45/marketmonitor/internal/metrics"
	"github.com/svyatogor45/marketmonitor/internal/model"
	"github.com/svyatogor45/marketmonitor/pkg/jsonutil"
	"github.com/svyatogor45/marketmonitor/pkg/utils"
)

var (
	ErrEmptyMatches      = errors.New("match_data.matches is empty")
	ErrMissingCondition  = errors.New("match entry missing condition")
	ErrMissingTokenField = errors.New("token price match missing token")
	ErrMissingWallet     = errors.New("wallet trade match missing wallet")
	ErrMissingMessage    = errors.New("airdrop alert match missing message")
)

var watchTypes = []string{model.WatchTypeToken, model.WatchTypeWallet, model.WatchTypeAirdrop}

// Processor is the Rule Matcher.
type Processor struct {
	broker      broker.Broker
	dedupWindow time.Duration
}

// NewProcessor builds a Rule Matcher. dedupWindow is the TTL applied to
// notify:last:<watch_type>:<rule_id> (default 60s per spec.md §4.8).
func NewProcessor(b broker.Broker, dedupWindow time.Duration) *Processor {
	if dedupWindow <= 0 {
		dedupWindow = 60 * time.Second
	}
	return &Processor{broker: b, dedupWindow: dedupWindow}
}

// Start subscribes to <t>_watch:rule_matched for every watch type,
// returning an unsubscribe-all func.
func (p *Processor) Start(ctx context.Context) (func(), error) {
	var unsubs []func()
	for _, watchType := range watchTypes {
		watchType := watchType
		unsub, err := p.broker.Subscribe(ctx, model.RuleMatchedTopic(watchType), func(_ string, payload []byte) {
			p.handleMatch(ctx, watchType, payload)
		})
		if err != nil {
			for _, u := range unsubs {
				u()
			}
			return nil, err
		}
		unsubs = append(unsubs, unsub)
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}, nil
}

func (p *Processor) handleMatch(ctx context.Context, watchType string, payload []byte) {
	var match model.Match
	if err := jsonutil.Unmarshal(payload, &match); err != nil {
		utils.Warn("matcher: dropping malformed rule_matched payload", utils.WatchType(watchType), utils.Err(err))
		return
	}

	if err := Validate(watchType, match.MatchData); err != nil {
		utils.Warn("matcher: dropping invalid match", utils.WatchType(watchType), utils.RuleID(match.Rule.RuleID), utils.Err(err))
		metrics.MatchesDropped.WithLabelValues(watchType, "invalid").Inc()
		return
	}

	if p.isDuplicate(ctx, watchType, match.Rule.RuleID, match.MatchData) {
		metrics.MatchesDropped.WithLabelValues(watchType, "duplicate").Inc()
		return
	}

	message := formatMessage(match.MatchData.Matches)
	notification := model.Notification{
		User:    match.Rule.NotifyID,
		Channel: match.Rule.NotifyChannel,
		Message: message,
		Metadata: model.NotificationMetadata{
			RuleID: match.Rule.RuleID, UserID: match.Rule.UserID, WatchType: watchType,
			ParseMode: "HTML", DisableWebPagePreview: true,
		},
		CreatedAt: time.Now(),
		Status:    model.NotifyPending,
	}

	if err := p.broker.Publish(ctx, model.SendNotifyTopic(watchType), notification); err != nil {
		utils.Warn("matcher: failed to publish notification", utils.WatchType(watchType), utils.RuleID(match.Rule.RuleID), utils.Err(err))
		return
	}
	metrics.MatchesPublished.WithLabelValues(watchType).Inc()
}

// Validate checks match_data against §4.8's per-type required fields.
func Validate(watchType string, data model.MatchData) error {
	if len(data.Matches) == 0 {
		return ErrEmptyMatches
	}
	for _, entry := range data.Matches {
		if entry.Condition == "" {
			return ErrMissingCondition
		}
		switch watchType {
		case model.WatchTypeToken:
			isPrice := entry.Condition == model.ConditionPriceAbove || entry.Condition == model.ConditionPriceBelow ||
				entry.Condition == model.ConditionPriceChange || entry.Condition == model.ConditionPriceChange24h
			if isPrice && entry.Token == "" {
				return ErrMissingTokenField
			}
		case model.WatchTypeWallet:
			isTrade := entry.Condition == model.ConditionTokenTrade || entry.Condition == model.ConditionNftTrade
			if isTrade && entry.Wallet == "" {
				return ErrMissingWallet
			}
		case model.WatchTypeAirdrop:
			if entry.Condition == model.ConditionAlert && entry.Message == "" {
				return ErrMissingMessage
			}
		}
	}
	return nil
}

func dedupKey(watchType, ruleID string) string {
	return "notify:last:" + watchType + ":" + ruleID
}

func (p *Processor) isDuplicate(ctx context.Context, watchType, ruleID string, data model.MatchData) bool {
	key := dedupKey(watchType, ruleID)
	current, err := jsonutil.MarshalString(data)
	if err != nil {
		return false
	}

	prev, found, err := p.broker.Get(ctx, key)
	if err == nil && found && prev == current {
		return true
	}

	ttl := int64(p.dedupWindow.Seconds())
	if err := p.broker.Set(ctx, key, current, ttl); err != nil {
		utils.Warn("matcher: failed to record dedup fingerprint", utils.WatchType(watchType), utils.RuleID(ruleID), utils.Err(err))
	}
	return false
}

func formatMessage(entries []model.MatchEntry) string {
	parts := make([]string, 0, len(entries))
	for _, entry := range entries {
		parts = append(parts, formatEntry(entry))
	}
	return strings.Join(parts, "\n\n")
}
