package watch

import (
	"context"
	"sync"
	"time"

	"github.com/svyatogor45/marketmonitor/internal/broker"
	"github.com/svyatogor45/marketmonitor/internal/metrics"
	"github.com/svyatogor45/marketmonitor/internal/model"
	"github.com/svyatogor45/marketmonitor/internal/store"
	"github.com/svyatogor45/marketmonitor/pkg/jsonutil"
	"github.com/svyatogor45/marketmonitor/pkg/utils"
)

// base is the watching-set and subscription-maintainer machinery every
// concrete watcher embeds. It owns the in-memory set of targets, the
// register_rule/deactivate_rule consumers, and the Health snapshot; each
// watcher supplies its own tick logic and an initializeCache callback
// invoked once per newly-registered target.
type base struct {
	watchType string
	broker    broker.Broker
	store     *store.RuleStore

	mu        sync.RWMutex
	targets   map[string]struct{}
	active    bool
	lastCheck time.Time

	cancel   context.CancelFunc
	unsubReg func()
	unsubDea func()

	onInit func(targets []string)
}

func newBase(watchType string, b broker.Broker, s *store.RuleStore, onInit func(targets []string)) *base {
	return &base{
		watchType: watchType,
		broker:    b,
		store:     s,
		targets:   make(map[string]struct{}),
		onInit:    onInit,
	}
}

func (b *base) WatchType() string { return b.watchType }

// targetList returns a snapshot of the current watching set.
func (b *base) targetList() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]string, 0, len(b.targets))
	for t := range b.targets {
		out = append(out, t)
	}
	return out
}

func (b *base) Status() Health {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return Health{Active: b.active, TargetCount: len(b.targets), LastCheck: b.lastCheck}
}

func (b *base) markTick() {
	b.mu.Lock()
	b.lastCheck = time.Now()
	b.mu.Unlock()
}

func (b *base) setActive(v bool) {
	b.mu.Lock()
	b.active = v
	b.mu.Unlock()
}

// startLifecycle launches the register_rule/deactivate_rule subscription
// maintainers. Each retries a failed Subscribe call every 5s until it
// succeeds or ctx is cancelled, then exits; a subscription lost after
// that is not re-established here.
func (b *base) startLifecycle(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	b.cancel = cancel
	b.setActive(true)

	go b.maintainSubscription(ctx, model.RegisterTopic(b.watchType), b.handleRegister, func(u func()) { b.unsubReg = u })
	go b.maintainSubscription(ctx, model.DeactivateTopic(b.watchType), b.handleDeactivate, func(u func()) { b.unsubDea = u })
}

func (b *base) maintainSubscription(ctx context.Context, topic string, handler func(ctx context.Context, payload []byte), store func(func())) {
	for {
		if ctx.Err() != nil {
			return
		}
		unsub, err := b.broker.Subscribe(ctx, topic, func(_ string, payload []byte) {
			handler(ctx, payload)
		})
		if err != nil {
			utils.Warn("watcher subscription failed, retrying",
				utils.WatchType(b.watchType), utils.String("topic", topic), utils.Err(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(5 * time.Second):
				continue
			}
		}
		store(unsub)
		return
	}
}

func (b *base) Stop() {
	if b.cancel != nil {
		b.cancel()
	}
	if b.unsubReg != nil {
		b.unsubReg()
	}
	if b.unsubDea != nil {
		b.unsubDea()
	}
	b.setActive(false)
}

func (b *base) handleRegister(ctx context.Context, payload []byte) {
	var rule model.Rule
	if err := jsonutil.Unmarshal(payload, &rule); err != nil {
		utils.Warn("watcher: dropping malformed register_rule payload", utils.WatchType(b.watchType), utils.Err(err))
		return
	}

	fresh := make([]string, 0, len(rule.Target))
	b.mu.Lock()
	for _, target := range rule.Target {
		if _, ok := b.targets[target]; !ok {
			fresh = append(fresh, target)
		}
		b.targets[target] = struct{}{}
	}
	b.mu.Unlock()

	if len(fresh) > 0 && b.onInit != nil {
		b.onInit(fresh)
	}

	ruleJSON, err := jsonutil.MarshalString(rule)
	if err != nil {
		utils.Warn("watcher: failed to re-encode rule for watch entry", utils.WatchType(b.watchType), utils.RuleID(rule.RuleID), utils.Err(err))
		return
	}
	for _, target := range rule.Target {
		key := model.WatchEntryKey(b.watchType, target)
		if err := b.broker.HSet(ctx, key, rule.RuleID, ruleJSON); err != nil {
			utils.Warn("watcher: failed to persist watch entry", utils.WatchType(b.watchType), utils.Target(target), utils.Err(err))
		}
	}
}

func (b *base) handleDeactivate(ctx context.Context, payload []byte) {
	var event model.DeactivateEvent
	if err := jsonutil.Unmarshal(payload, &event); err != nil {
		utils.Warn("watcher: dropping malformed deactivate_rule payload", utils.WatchType(b.watchType), utils.Err(err))
		return
	}

	targets := []string{}
	if event.Target != "" {
		targets = append(targets, event.Target)
	} else if rule, err := b.store.GetByID(ctx, event.RuleID); err == nil {
		targets = rule.Target
	}

	for _, target := range targets {
		key := model.WatchEntryKey(b.watchType, target)
		if err := b.broker.HDel(ctx, key, event.RuleID); err != nil {
			utils.Warn("watcher: failed to remove watch entry", utils.WatchType(b.watchType), utils.Target(target), utils.Err(err))
			continue
		}
		remaining, err := b.broker.HGetAll(ctx, key)
		if err == nil && len(remaining) == 0 {
			b.mu.Lock()
			delete(b.targets, target)
			b.mu.Unlock()
		}
	}
}

// rulesForTarget loads every live rule registered for target, decoding
// each watch-entry hash field as a Rule document.
func (b *base) rulesForTarget(ctx context.Context, target string) ([]model.Rule, error) {
	fields, err := b.broker.HGetAll(ctx, model.WatchEntryKey(b.watchType, target))
	if err != nil {
		return nil, err
	}
	rules := make([]model.Rule, 0, len(fields))
	for ruleID, doc := range fields {
		var rule model.Rule
		if err := jsonutil.UnmarshalString(doc, &rule); err != nil {
			utils.Warn("watcher: dropping malformed watch entry", utils.WatchType(b.watchType), utils.RuleID(ruleID), utils.Err(err))
			continue
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

// publishMatch emits a Match document on <watch_type>_watch:rule_matched.
func (b *base) publishMatch(ctx context.Context, rule model.Rule, entries []model.MatchEntry) {
	if len(entries) == 0 {
		return
	}
	match := model.Match{
		Rule:      rule,
		MatchData: model.MatchData{Matches: entries},
		MatchedAt: time.Now(),
	}
	if err := b.broker.Publish(ctx, model.RuleMatchedTopic(b.watchType), match); err != nil {
		utils.Warn("watcher: failed to publish match", utils.WatchType(b.watchType), utils.RuleID(rule.RuleID), utils.Err(err))
	}
}

// runTickLoop drives tick at the given interval until ctx is cancelled.
func (b *base) runTickLoop(ctx context.Context, interval time.Duration, tick func(ctx context.Context, targets []string)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.markTick()
			targets := b.targetList()
			if len(targets) == 0 {
				continue
			}
			tick(ctx, targets)
			metrics.WatcherTicks.WithLabelValues(b.watchType).Inc()
		}
	}
}
