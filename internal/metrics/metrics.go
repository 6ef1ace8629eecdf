// Package metrics exposes Prometheus counters for the pipeline stages
// that cross process boundaries: matches published, notifications
// delivered, and watcher ticks. Grounded on internal/bot/metrics.go's
// promauto composition, generalized from trading-latency histograms to
// market-monitor pipeline counters.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var MatchesPublished = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "marketmonitor",
		Subsystem: "matcher",
		Name:      "matches_published_total",
		Help:      "Matches that passed validation and dedup and were published as send_notify events.",
	},
	[]string{"watch_type"},
)

var MatchesDropped = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "marketmonitor",
		Subsystem: "matcher",
		Name:      "matches_dropped_total",
		Help:      "Matches dropped by the Rule Matcher, labeled by reason.",
	},
	[]string{"watch_type", "reason"},
)

var NotificationsSent = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "marketmonitor",
		Subsystem: "dispatcher",
		Name:      "notifications_sent_total",
		Help:      "Notifications delivered successfully, labeled by channel.",
	},
	[]string{"channel"},
)

var NotificationsFailed = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "marketmonitor",
		Subsystem: "dispatcher",
		Name:      "notifications_failed_total",
		Help:      "Notifications that exhausted retries or were rejected, labeled by channel.",
	},
	[]string{"channel"},
)

var NotificationsDuplicate = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "marketmonitor",
		Subsystem: "dispatcher",
		Name:      "notifications_duplicate_total",
		Help:      "Notifications suppressed by the channel/user dedup window.",
	},
	[]string{"channel"},
)

var WatcherTicks = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "marketmonitor",
		Subsystem: "watcher",
		Name:      "ticks_total",
		Help:      "Completed poll ticks, labeled by watch type.",
	},
	[]string{"watch_type"},
)

var WatcherRestarts = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "marketmonitor",
		Subsystem: "watcher",
		Name:      "restarts_total",
		Help:      "Watcher restarts triggered by the pool's health loop.",
	},
	[]string{"watch_type"},
)
