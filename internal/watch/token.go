package watch

import (
	"context"
	"math"
	"time"

	"github.com/svyatogor45/marketmonitor/internal/alertsapi"
	"github.com/svyatogor45/marketmonitor/internal/broker"
	"github.com/svyatogor45/marketmonitor/internal/model"
	"github.com/svyatogor45/marketmonitor/internal/priceapi"
	"github.com/svyatogor45/marketmonitor/internal/store"
	"github.com/svyatogor45/marketmonitor/pkg/utils"
)

// priceChangeThreshold is the tick-over-tick magnitude that promotes a
// move to a price_change match; price24hThreshold is the 24h counterpart.
const (
	priceChangeThreshold = 0.05
	price24hThreshold    = 0.10
)

// TokenWatcher polls the price and alerts feeds once per interval and
// evaluates every registered token rule against the fresh snapshot.
type TokenWatcher struct {
	*base

	prices   *priceapi.Client
	alerts   *alertsapi.Client
	interval time.Duration

	lastPrice *Cache[string, float64]
}

// NewTokenWatcher builds a Token Watcher. Its per-token last-price
// memory is a fixed 8-shard cache of up to 2000 entries with a 24h TTL.
func NewTokenWatcher(b broker.Broker, s *store.RuleStore, prices *priceapi.Client, alerts *alertsapi.Client, interval time.Duration) *TokenWatcher {
	w := &TokenWatcher{
		prices:    prices,
		alerts:    alerts,
		interval:  interval,
		lastPrice: NewCache[string, float64](8, 2000, 24*time.Hour, 10*time.Minute),
	}
	w.base = newBase(model.WatchTypeToken, b, s, nil)
	return w
}

func (w *TokenWatcher) Start(ctx context.Context) error {
	w.startLifecycle(ctx)
	go w.runTickLoop(ctx, w.interval, w.tick)
	return nil
}

func (w *TokenWatcher) tick(ctx context.Context, targets []string) {
	rulesByTarget := make(map[string][]model.Rule, len(targets))
	ids := make([]string, 0, len(targets))
	idToTarget := make(map[string]string, len(targets))

	for _, target := range targets {
		rules, err := w.rulesForTarget(ctx, target)
		if err != nil {
			utils.Warn("token watcher: failed to load rules", utils.Target(target), utils.Err(err))
			continue
		}
		if len(rules) == 0 {
			continue
		}
		rulesByTarget[target] = rules

		id := priceIdentifier(target, rules[0])
		ids = append(ids, id)
		idToTarget[id] = target
	}

	snapshots, err := w.prices.FetchPrices(ctx, ids)
	if err != nil {
		utils.Warn("token watcher: price fetch failed", utils.Err(err))
		snapshots = map[string]priceapi.Snapshot{}
	}

	var alertList []alertsapi.Alert
	if w.alerts != nil {
		alertList, err = w.alerts.FetchAlerts(ctx, "0", targets)
		if err != nil {
			utils.Warn("token watcher: alerts fetch failed", utils.Err(err))
		}
	}

	for target, rules := range rulesByTarget {
		id := priceIdentifier(target, rules[0])
		snap, found := priceapi.MatchBySymbol(snapshots, id)

		for _, rule := range rules {
			var entries []model.MatchEntry
			entries = append(entries, w.evaluateAlerts(rule, target, alertList)...)
			if found {
				entries = append(entries, w.evaluatePrice(rule, target, snap)...)
			}
			w.publishMatch(ctx, rule, entries)
		}

		if found {
			w.lastPrice.Set(target, snap.USD)
		}
	}
}

func priceIdentifier(target string, rule model.Rule) string {
	if td, ok := rule.TargetData[target]; ok {
		if td.CoinGcID != "" {
			return priceapi.FormatID(td.CoinGcID)
		}
		if td.Symbol != "" {
			return priceapi.FormatID(td.Symbol)
		}
	}
	return priceapi.FormatID(target)
}

func (w *TokenWatcher) evaluateAlerts(rule model.Rule, target string, alertList []alertsapi.Alert) []model.MatchEntry {
	var entries []model.MatchEntry
	for _, a := range alertList {
		matched := alertsapi.MatchesAnyTarget(a, []string{target})
		if len(matched) == 0 {
			continue
		}
		if f := rule.Condition.Alert; f != nil {
			if f.Level != "" && f.Level != a.Level {
				continue
			}
			if f.Type != "" && f.Type != a.Type {
				continue
			}
			if f.Source != "" && f.Source != a.Source {
				continue
			}
		}
		entries = append(entries, model.MatchEntry{
			Condition: model.ConditionAlert,
			Token:     target,
			Message:   a.Text,
			Data: map[string]interface{}{
				"level": a.Level, "type": a.Type, "source": a.Source,
			},
		})
	}
	return entries
}

func (w *TokenWatcher) evaluatePrice(rule model.Rule, target string, snap priceapi.Snapshot) []model.MatchEntry {
	var entries []model.MatchEntry
	cond := rule.Condition

	if cond.GT != nil && snap.USD > *cond.GT {
		entries = append(entries, model.MatchEntry{
			Condition: model.ConditionPriceAbove, Token: target,
			Current: snap.USD, Threshold: *cond.GT,
		})
	}
	if cond.LT != nil && snap.USD < *cond.LT {
		entries = append(entries, model.MatchEntry{
			Condition: model.ConditionPriceBelow, Token: target,
			Current: snap.USD, Threshold: *cond.LT,
		})
	}

	if old, ok := w.lastPrice.Get(target); ok && old > 0 {
		change := (snap.USD - old) / old
		if math.Abs(change) >= priceChangeThreshold {
			entries = append(entries, model.MatchEntry{
				Condition: model.ConditionPriceChange, Token: target,
				OldPrice: old, NewPrice: snap.USD, Value: change,
			})
		}
	}

	if math.Abs(snap.USD24hChange/100) >= price24hThreshold {
		entries = append(entries, model.MatchEntry{
			Condition: model.ConditionPriceChange24h, Token: target,
			Value: snap.USD24hChange / 100, Current: snap.USD,
		})
	}

	return entries
}

