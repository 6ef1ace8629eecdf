// Package dispatch implements the Notification Dispatcher: it consumes
// send_notify events, dedups and rate-limits per channel/user, sends
// through a channel adapter with retry, and emits terminal status
// events for the originating rule.
package dispatch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"time"

	"github.com/svyatogor45/marketmonitor/internal/broker"
	"github.com/svyatogor45/marketmonitor/internal/config"
	"github.com/svyatogor45/marketmonitor/internal/metrics"
	"github.com/svyatogor45/marketmonitor/internal/model"
	"github.com/svyatogor45/marketmonitor/pkg/jsonutil"
	"github.com/svyatogor45/marketmonitor/pkg/retry"
	"github.com/svyatogor45/marketmonitor/pkg/utils"
)

const dedupMaxMessages = 10
const rateLimitWindow = 60 * time.Second
const rateLimitKeyTTL = 120

var watchTypes = []string{model.WatchTypeToken, model.WatchTypeWallet, model.WatchTypeAirdrop}

// ChannelAdapter delivers one notification over a concrete transport.
type ChannelAdapter interface {
	Send(ctx context.Context, n model.Notification) error
}

// Dispatcher is the Notification Dispatcher.
type Dispatcher struct {
	broker   broker.Broker
	adapters map[string]ChannelAdapter
	quotas   map[string]int // messages/minute per channel

	dedupWindow  time.Duration
	maxRetries   int
	retryBackoff time.Duration
}

// NewDispatcher wires a Dispatcher from config and a set of channel
// adapters keyed by rule.notify_channel.
func NewDispatcher(b broker.Broker, cfg config.DispatchConfig, adapters map[string]ChannelAdapter) *Dispatcher {
	dedupWindow := cfg.MessageDedupWindow
	if dedupWindow <= 0 {
		dedupWindow = 300 * time.Second
	}
	retryBackoff := cfg.RetryBackoff
	if retryBackoff <= 0 {
		retryBackoff = 5 * time.Second
	}
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &Dispatcher{
		broker:   b,
		adapters: adapters,
		quotas: map[string]int{
			"telegram": cfg.TelegramRateLimit,
			"web":      cfg.WebRateLimit,
			"discord":  cfg.DiscordRateLimit,
		},
		dedupWindow:  dedupWindow,
		maxRetries:   maxRetries,
		retryBackoff: retryBackoff,
	}
}

// Start subscribes to <t>_watch:send_notify for every watch type,
// returning an unsubscribe-all func.
func (d *Dispatcher) Start(ctx context.Context) (func(), error) {
	var unsubs []func()
	for _, watchType := range watchTypes {
		watchType := watchType
		unsub, err := d.broker.Subscribe(ctx, model.SendNotifyTopic(watchType), func(_ string, payload []byte) {
			d.handleNotify(ctx, watchType, payload)
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

func (d *Dispatcher) handleNotify(ctx context.Context, watchType string, payload []byte) {
	var n model.Notification
	if err := jsonutil.Unmarshal(payload, &n); err != nil {
		utils.Warn("dispatcher: dropping malformed send_notify payload", utils.WatchType(watchType), utils.Err(err))
		return
	}

	if d.isDuplicate(ctx, n) {
		metrics.NotificationsDuplicate.WithLabelValues(n.Channel).Inc()
		d.publishStatus(ctx, watchType, model.NotifyDuplicateTopic(watchType), n, 0, "")
		return
	}

	if !d.allow(ctx, n.Channel, n.User) {
		metrics.NotificationsFailed.WithLabelValues(n.Channel).Inc()
		d.publishStatus(ctx, watchType, model.NotifyFailedTopic(watchType), n, 0, "rate limit exceeded")
		return
	}

	if d.alreadySent(ctx, n) {
		return
	}

	adapter, ok := d.adapters[n.Channel]
	if !ok {
		utils.Warn("dispatcher: no adapter for channel", utils.Channel(n.Channel))
		metrics.NotificationsFailed.WithLabelValues(n.Channel).Inc()
		d.publishStatus(ctx, watchType, model.NotifyFailedTopic(watchType), n, 0, "no adapter for channel")
		return
	}

	attempt := 0
	cfg := retry.Config{MaxRetries: d.maxRetries, InitialDelay: d.retryBackoff, MaxDelay: d.retryBackoff, Multiplier: 1, JitterFactor: 0}
	err := retry.Do(ctx, func() error {
		attempt++
		return adapter.Send(ctx, n)
	}, cfg)

	if err != nil {
		metrics.NotificationsFailed.WithLabelValues(n.Channel).Inc()
		d.publishStatus(ctx, watchType, model.NotifyFailedTopic(watchType), n, attempt, err.Error())
		return
	}

	metrics.NotificationsSent.WithLabelValues(n.Channel).Inc()
	d.markSent(ctx, n)
	d.publishStatus(ctx, watchType, model.NotifySentTopic(watchType), n, attempt, "")
}

func (d *Dispatcher) publishStatus(ctx context.Context, watchType, topic string, n model.Notification, attempt int, errMsg string) {
	event := model.NotifyStatusEvent{
		RuleID: n.Metadata.RuleID, UserID: n.Metadata.UserID, Channel: n.Channel,
		Attempt: attempt, Error: errMsg,
	}
	if err := d.broker.Publish(ctx, topic, event); err != nil {
		utils.Warn("dispatcher: failed to publish status event", utils.WatchType(watchType), utils.Err(err))
	}
}

func messageHash(channel, user, message string) string {
	sum := sha256.Sum256([]byte(channel + "|" + user + "|" + message))
	return hex.EncodeToString(sum[:])
}

func recentKey(channel, user string) string { return "notify:recent:" + channel + ":" + user }
func statusKeyFor(channel, user, hash string) string {
	return "notify:status:" + channel + ":" + user + ":" + hash
}
func rateLimitKeyFor(channel, user string) string { return "rate_limit:" + channel + ":" + user }

// isDuplicate implements §4.9 step 1: dedup across channel and user.
func (d *Dispatcher) isDuplicate(ctx context.Context, n model.Notification) bool {
	hash := messageHash(n.Channel, n.User, n.Message)
	key := recentKey(n.Channel, n.User)

	isMember, err := d.broker.SIsMember(ctx, key, hash)
	if err != nil {
		utils.Warn("dispatcher: dedup check failed", utils.Channel(n.Channel), utils.Err(err))
		return false
	}
	if isMember {
		return true
	}

	if err := d.broker.SAdd(ctx, key, hash); err != nil {
		utils.Warn("dispatcher: failed to record dedup fingerprint", utils.Channel(n.Channel), utils.Err(err))
	}
	if err := d.broker.Expire(ctx, key, int64(d.dedupWindow.Seconds())); err != nil {
		utils.Warn("dispatcher: failed to set dedup ttl", utils.Channel(n.Channel), utils.Err(err))
	}
	if card, err := d.broker.SCard(ctx, key); err == nil && card > dedupMaxMessages {
		if _, _, err := d.broker.SPop(ctx, key); err != nil {
			utils.Warn("dispatcher: failed to evict dedup entry", utils.Channel(n.Channel), utils.Err(err))
		}
	}
	return false
}

// allow implements §4.9 step 2: a 60s sliding-window counter held in a
// broker hash, keyed by channel+user (not an in-process limiter, since
// any dispatcher replica must see the same count).
func (d *Dispatcher) allow(ctx context.Context, channel, user string) bool {
	quota, ok := d.quotas[channel]
	if !ok || quota <= 0 {
		return true
	}

	key := rateLimitKeyFor(channel, user)
	entries, err := d.broker.HGetAll(ctx, key)
	if err != nil {
		utils.Warn("dispatcher: rate limit read failed", utils.Channel(channel), utils.Err(err))
		return true
	}

	cutoff := time.Now().Add(-rateLimitWindow).UnixNano()
	var stale []string
	count := 0
	for field := range entries {
		ts, err := strconv.ParseInt(field, 10, 64)
		if err != nil || ts < cutoff {
			stale = append(stale, field)
			continue
		}
		count++
	}
	if len(stale) > 0 {
		if err := d.broker.HDel(ctx, key, stale...); err != nil {
			utils.Warn("dispatcher: failed to purge stale rate limit entries", utils.Channel(channel), utils.Err(err))
		}
	}

	if count >= quota {
		return false
	}

	now := strconv.FormatInt(time.Now().UnixNano(), 10)
	if err := d.broker.HSet(ctx, key, now, now); err != nil {
		utils.Warn("dispatcher: failed to record rate limit entry", utils.Channel(channel), utils.Err(err))
	}
	if err := d.broker.Expire(ctx, key, rateLimitKeyTTL); err != nil {
		utils.Warn("dispatcher: failed to set rate limit ttl", utils.Channel(channel), utils.Err(err))
	}
	return true
}

// alreadySent implements §4.9 step 3: idempotency against prior delivery.
func (d *Dispatcher) alreadySent(ctx context.Context, n model.Notification) bool {
	hash := messageHash(n.Channel, n.User, n.Message)
	key := statusKeyFor(n.Channel, n.User, hash)
	status, found, err := d.broker.Get(ctx, key)
	if err != nil {
		utils.Warn("dispatcher: idempotency check failed", utils.Channel(n.Channel), utils.Err(err))
		return false
	}
	return found && status == model.NotifySent
}

func (d *Dispatcher) markSent(ctx context.Context, n model.Notification) {
	hash := messageHash(n.Channel, n.User, n.Message)
	key := statusKeyFor(n.Channel, n.User, hash)
	if err := d.broker.Set(ctx, key, model.NotifySent, int64(d.dedupWindow.Seconds())); err != nil {
		utils.Warn("dispatcher: failed to record sent status", utils.Channel(n.Channel), utils.Err(err))
	}
}
