package watch

import (
	"context"
	"strings"
	"time"

	"github.com/svyatogor45/marketmonitor/internal/alertsapi"
	"github.com/svyatogor45/marketmonitor/internal/broker"
	"github.com/svyatogor45/marketmonitor/internal/model"
	"github.com/svyatogor45/marketmonitor/internal/store"
	"github.com/svyatogor45/marketmonitor/pkg/utils"
)

// airdropWindowMinutes is the rolling lookback the airdrop alerts feed
// is queried with, per the watcher's fixed `{time: 15}` parameter.
const airdropWindowMinutes = 15

// AirdropWatcher polls the alerts feed for project-name mentions and
// matches them against registered rules, including the `*` wildcard
// rule shape (match any alert) and the already-notified dedup set.
type AirdropWatcher struct {
	*base

	alerts   *alertsapi.Client
	interval time.Duration
	seen     *Cache[string, struct{}]
}

func NewAirdropWatcher(b broker.Broker, s *store.RuleStore, alerts *alertsapi.Client, interval time.Duration) *AirdropWatcher {
	w := &AirdropWatcher{
		alerts:   alerts,
		interval: interval,
		seen:     NewCache[string, struct{}](8, 5000, 24*time.Hour, 30*time.Minute),
	}
	w.base = newBase(model.WatchTypeAirdrop, b, s, nil)
	return w
}

func (w *AirdropWatcher) Start(ctx context.Context) error {
	w.startLifecycle(ctx)
	go w.runTickLoop(ctx, w.interval, w.tick)
	return nil
}

func (w *AirdropWatcher) tick(ctx context.Context, targets []string) {
	if len(targets) == 0 {
		return
	}

	hasWildcard := false
	nonWildcard := make([]string, 0, len(targets))
	for _, t := range targets {
		if t == "*" {
			hasWildcard = true
			continue
		}
		nonWildcard = append(nonWildcard, t)
	}

	// A wildcard rule matches any alert, so fetch unfiltered rather than
	// narrowing the query to the non-wildcard targets alone.
	filter := nonWildcard
	if hasWildcard {
		filter = nil
	}

	alertList, err := w.alerts.FetchAirdropAlerts(ctx, filter, airdropWindowMinutes)
	if err != nil {
		utils.Warn("airdrop watcher: alerts fetch failed", utils.Err(err))
		return
	}

	for _, target := range targets {
		rules, err := w.rulesForTarget(ctx, target)
		if err != nil {
			utils.Warn("airdrop watcher: failed to load rules", utils.Target(target), utils.Err(err))
			continue
		}
		for _, rule := range rules {
			var entries []model.MatchEntry
			for _, a := range alertList {
				hash := messageHash(a.Text)
				if rule.HasWildcardTarget() {
					if w.seen.Seen(rule.RuleID + ":" + hash) {
						continue
					}
					entries = append(entries, airdropEntry(a))
					continue
				}
				if matched := alertsapi.MatchesAnyTarget(a, []string{target}); len(matched) > 0 {
					if w.seen.Seen(rule.RuleID + ":" + hash) {
						continue
					}
					entries = append(entries, airdropEntry(a))
				}
			}
			w.publishMatch(ctx, rule, entries)
		}
	}
}

func airdropEntry(a alertsapi.Alert) model.MatchEntry {
	return model.MatchEntry{
		Condition: model.ConditionAlert,
		Message:   a.Text,
		Data:      map[string]interface{}{"post_link": a.PostLink, "text": a.Text},
	}
}

// messageHash is a cheap dedup fingerprint for an alert's text, good
// enough to distinguish alerts within the seen cache's TTL window.
func messageHash(text string) string {
	return strings.TrimSpace(strings.ToLower(text))
}
