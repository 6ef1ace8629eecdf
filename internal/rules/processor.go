// Package rules implements the Rule Processor: the bridge between
// persisted rules in the Rule Store and the broker's live-watch index
// that the Watcher Pool actually reads from. Grounded on the service
// package's validate-then-mutate business logic shape
// (pair_service.go's CreatePair), generalized from a single repository
// call to a store-plus-broker pair.
package rules

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/svyatogor45/marketmonitor/internal/broker"
	"github.com/svyatogor45/marketmonitor/internal/model"
	"github.com/svyatogor45/marketmonitor/internal/store"
	"github.com/svyatogor45/marketmonitor/pkg/jsonutil"
	"github.com/svyatogor45/marketmonitor/pkg/utils"
)

// Validation errors for an incoming rule-register event. None of these
// are returned to the broker caller directly - Processor logs them,
// deactivates the offending rule in the store, and drops the event.
var (
	ErrMissingRuleID        = errors.New("rule_id is required")
	ErrMissingUserID        = errors.New("user_id is required")
	ErrUnknownWatchType     = errors.New("watch_type is not one of token, wallet, airdrop")
	ErrEmptyTarget          = errors.New("target must be non-empty")
	ErrUnknownChannel       = errors.New("notify_channel is not supported")
	ErrMissingNotifyID      = errors.New("notify_id is required")
	ErrInvalidCondition     = errors.New("condition.gt/lt must be numeric when present")
	ErrMissingCoinGcID      = errors.New("token target missing target_data.coin_gc_id")
)

// Processor bridges register/deactivate events into the broker's
// watch:active:<type>:<target> hash index.
type Processor struct {
	store  *store.RuleStore
	broker broker.Broker
}

func NewProcessor(s *store.RuleStore, b broker.Broker) *Processor {
	return &Processor{store: s, broker: b}
}

// watchTypes enumerates every channel the processor subscribes to on
// start.
var watchTypes = []string{model.WatchTypeToken, model.WatchTypeWallet, model.WatchTypeAirdrop}

// Start subscribes to register_rule/deactivate_rule for every watch
// type and replays every currently-active rule, per spec: the startup
// replay is the crash-recovery path and must be idempotent, since
// hset on an already-present field is a no-op for correctness.
func (p *Processor) Start(ctx context.Context) (func(), error) {
	var unsubs []func()
	cleanup := func() {
		for _, u := range unsubs {
			u()
		}
	}

	for _, wt := range watchTypes {
		wt := wt
		u1, err := p.broker.Subscribe(ctx, model.RegisterTopic(wt), func(channel string, payload []byte) {
			p.handleRegister(ctx, wt, payload)
		})
		if err != nil {
			cleanup()
			return nil, err
		}
		unsubs = append(unsubs, u1)

		u2, err := p.broker.Subscribe(ctx, model.DeactivateTopic(wt), func(channel string, payload []byte) {
			p.handleDeactivate(ctx, wt, payload)
		})
		if err != nil {
			cleanup()
			return nil, err
		}
		unsubs = append(unsubs, u2)
	}

	if err := p.ReplayActive(ctx); err != nil {
		utils.Error("rule processor: replay on startup failed", utils.Err(err))
	}

	return cleanup, nil
}

// ReplayActive loads every active rule from the store and feeds each one
// directly through handleRegister, the same path a fresh registration
// takes. It publishes no register event on the broker, so the watchers'
// register_rule consumers do not receive the replayed rules.
func (p *Processor) ReplayActive(ctx context.Context) error {
	active, err := p.store.GetActive(ctx, "")
	if err != nil {
		return err
	}
	for _, rule := range active {
		payload, err := jsonutil.Marshal(rule)
		if err != nil {
			utils.Error("rule processor: failed to marshal rule for replay",
				utils.RuleID(rule.RuleID), utils.Err(err))
			continue
		}
		p.handleRegister(ctx, rule.WatchType, payload)
	}
	return nil
}

func (p *Processor) handleRegister(ctx context.Context, watchType string, payload []byte) {
	var rule model.Rule
	if err := jsonutil.Unmarshal(payload, &rule); err != nil {
		utils.Warn("rule processor: undecodable register payload", utils.WatchType(watchType), utils.Err(err))
		return
	}

	if err := Validate(&rule); err != nil {
		utils.Warn("rule processor: invalid rule rejected", utils.RuleID(rule.RuleID), utils.Err(err))
		if _, deactErr := p.store.Deactivate(ctx, rule.RuleID); deactErr != nil {
			utils.Error("rule processor: failed to deactivate invalid rule",
				utils.RuleID(rule.RuleID), utils.Err(deactErr))
		}
		if _, statusErr := p.store.UpdateStatus(ctx, rule.RuleID, model.StatusError, err.Error()); statusErr != nil {
			utils.Error("rule processor: failed to record rejection status",
				utils.RuleID(rule.RuleID), utils.Err(statusErr))
		}
		return
	}

	ruleJSON, err := jsonutil.MarshalString(rule)
	if err != nil {
		utils.Error("rule processor: failed to encode rule", utils.RuleID(rule.RuleID), utils.Err(err))
		return
	}

	for _, target := range rule.Target {
		key := model.WatchEntryKey(rule.WatchType, target)
		if err := p.broker.HSet(ctx, key, rule.RuleID, ruleJSON); err != nil {
			utils.Error("rule processor: failed to write watch entry",
				utils.RuleID(rule.RuleID), utils.Target(target), utils.Err(err))
			return
		}
	}

	if _, err := p.store.UpdateStatus(ctx, rule.RuleID, model.StatusActive, ""); err != nil {
		utils.Error("rule processor: failed to mark rule active", utils.RuleID(rule.RuleID), utils.Err(err))
	}

	for _, target := range rule.Target {
		event := model.RuleActivatedEvent{RuleID: rule.RuleID, WatchType: rule.WatchType, Target: target}
		if err := p.broker.Publish(ctx, model.RuleActivatedTopic(rule.WatchType), event); err != nil {
			utils.Error("rule processor: failed to publish activation event",
				utils.RuleID(rule.RuleID), utils.Target(target), utils.Err(err))
		}
	}
}

func (p *Processor) handleDeactivate(ctx context.Context, watchType string, payload []byte) {
	var event model.DeactivateEvent
	if err := jsonutil.Unmarshal(payload, &event); err != nil {
		utils.Warn("rule processor: undecodable deactivate payload", utils.WatchType(watchType), utils.Err(err))
		return
	}
	if _, err := p.store.Deactivate(ctx, event.RuleID); err != nil {
		utils.Error("rule processor: failed to deactivate rule", utils.RuleID(event.RuleID), utils.Err(err))
		return
	}

	targets := []string{event.Target}
	if event.Target == "" {
		rule, err := p.store.GetByID(ctx, event.RuleID)
		if err == nil {
			targets = rule.Target
		}
	}
	for _, target := range targets {
		key := model.WatchEntryKey(watchType, target)
		if err := p.broker.HDel(ctx, key, event.RuleID); err != nil {
			utils.Error("rule processor: failed to remove watch entry",
				utils.RuleID(event.RuleID), utils.Target(target), utils.Err(err))
		}
	}
}

// Validate enforces the Rule Processor's required-field and condition
// checks. A non-nil error means the rule must be deactivated and
// dropped, never propagated into the watch index.
func Validate(rule *model.Rule) error {
	if rule.RuleID == "" {
		return ErrMissingRuleID
	}
	if rule.UserID == "" {
		return ErrMissingUserID
	}
	if err := utils.ValidateWatchType(rule.WatchType); err != nil {
		return fmt.Errorf("%w: %s", ErrUnknownWatchType, rule.WatchType)
	}
	if rule.WatchType == model.WatchTypeAirdrop && len(rule.Target) == 0 {
		rule.Target = []string{"*"}
	}
	if len(rule.Target) == 0 {
		return ErrEmptyTarget
	}
	if err := utils.ValidateChannel(rule.NotifyChannel); err != nil {
		return fmt.Errorf("%w: %s", ErrUnknownChannel, rule.NotifyChannel)
	}
	if rule.NotifyID == "" {
		return ErrMissingNotifyID
	}
	if rule.Condition.GT != nil || rule.Condition.LT != nil {
		// both are already typed *float64; the JSON decode itself
		// would have failed on a non-numeric gt/lt, so this check
		// exists for callers that build a Condition programmatically
		// with NaN/Inf sentinels.
		if rule.Condition.GT != nil && !isFinite(*rule.Condition.GT) {
			return ErrInvalidCondition
		}
		if rule.Condition.LT != nil && !isFinite(*rule.Condition.LT) {
			return ErrInvalidCondition
		}
	}
	if rule.WatchType == model.WatchTypeToken {
		for _, target := range rule.Target {
			if target == "*" {
				continue
			}
			desc, ok := rule.TargetData[target]
			if !ok || (desc.CoinGcID == "" && desc.Symbol == "") {
				return fmt.Errorf("%w: %s", ErrMissingCoinGcID, target)
			}
		}
	}
	return nil
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
