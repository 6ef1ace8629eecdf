package broker

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/svyatogor45/marketmonitor/internal/errs"
	"github.com/svyatogor45/marketmonitor/pkg/jsonutil"
	"github.com/svyatogor45/marketmonitor/pkg/retry"
	"github.com/svyatogor45/marketmonitor/pkg/utils"
)

// RedisBroker is the production Broker backed by go-redis/v9. Pub/sub
// shape follows volaticloud's internal/pubsub/redis.go: one *redis.PubSub
// per subscription, a goroutine forwarding its Channel() into a buffered
// local channel, and a non-blocking send so a slow handler never stalls
// Redis's own delivery loop.
type RedisBroker struct {
	client *redis.Client

	mu   sync.Mutex
	subs map[string]*redis.PubSub
}

// subBufferSize bounds how many undelivered messages a single
// subscription tolerates before it starts dropping — mirrors the
// register/unregister/broadcast hub's per-client send buffer.
const subBufferSize = 256

// NewRedisBroker dials Redis using addr/password/db and returns a ready
// Broker. The connection itself is lazy (go-redis dials on first use);
// callers that want a fail-fast boot should call Ping via a health check.
func NewRedisBroker(addr, password string, db, poolSize int, dialTimeout, readTimeout, writeTimeout time.Duration) *RedisBroker {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		PoolSize:     poolSize,
		DialTimeout:  dialTimeout,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
	})
	return &RedisBroker{client: client, subs: make(map[string]*redis.PubSub)}
}

func (b *RedisBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, sub := range b.subs {
		_ = sub.Close()
	}
	b.subs = make(map[string]*redis.PubSub)
	return b.client.Close()
}

// classify turns a redis error into the errs taxonomy. redis.Nil is the
// library's not-found sentinel and is never classified as an error by
// callers of Get/HGet/etc (see their bool return).
func classify(err error) error {
	if err == nil {
		return nil
	}
	return errs.Wrap(errs.TransientNetwork, err)
}

func (b *RedisBroker) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := b.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, classify(err)
	}
	return val, true, nil
}

func (b *RedisBroker) Set(ctx context.Context, key, value string, ttl int64) error {
	var expiry time.Duration
	if ttl > 0 {
		expiry = time.Duration(ttl) * time.Second
	}
	return classify(b.client.Set(ctx, key, value, expiry).Err())
}

func (b *RedisBroker) Expire(ctx context.Context, key string, ttlSeconds int64) error {
	return classify(b.client.Expire(ctx, key, time.Duration(ttlSeconds)*time.Second).Err())
}

func (b *RedisBroker) HSet(ctx context.Context, key, field, value string) error {
	return classify(b.client.HSet(ctx, key, field, value).Err())
}

func (b *RedisBroker) HGet(ctx context.Context, key, field string) (string, bool, error) {
	val, err := b.client.HGet(ctx, key, field).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, classify(err)
	}
	return val, true, nil
}

func (b *RedisBroker) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	m, err := b.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, classify(err)
	}
	return m, nil
}

func (b *RedisBroker) HDel(ctx context.Context, key string, fields ...string) error {
	return classify(b.client.HDel(ctx, key, fields...).Err())
}

func (b *RedisBroker) SAdd(ctx context.Context, key string, members ...string) error {
	args := make([]interface{}, len(members))
	for i, m := range members {
		args[i] = m
	}
	return classify(b.client.SAdd(ctx, key, args...).Err())
}

func (b *RedisBroker) SIsMember(ctx context.Context, key, member string) (bool, error) {
	ok, err := b.client.SIsMember(ctx, key, member).Result()
	if err != nil {
		return false, classify(err)
	}
	return ok, nil
}

func (b *RedisBroker) SCard(ctx context.Context, key string) (int64, error) {
	n, err := b.client.SCard(ctx, key).Result()
	if err != nil {
		return 0, classify(err)
	}
	return n, nil
}

func (b *RedisBroker) SPop(ctx context.Context, key string) (string, bool, error) {
	val, err := b.client.SPop(ctx, key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, classify(err)
	}
	return val, true, nil
}

func (b *RedisBroker) SRem(ctx context.Context, key string, members ...string) error {
	args := make([]interface{}, len(members))
	for i, m := range members {
		args[i] = m
	}
	return classify(b.client.SRem(ctx, key, args...).Err())
}

func (b *RedisBroker) LPush(ctx context.Context, key string, values ...string) error {
	args := make([]interface{}, len(values))
	for i, v := range values {
		args[i] = v
	}
	return classify(b.client.LPush(ctx, key, args...).Err())
}

func (b *RedisBroker) RPop(ctx context.Context, key string) (string, bool, error) {
	val, err := b.client.RPop(ctx, key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, classify(err)
	}
	return val, true, nil
}

func (b *RedisBroker) LRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	vals, err := b.client.LRange(ctx, key, start, stop).Result()
	if err != nil {
		return nil, classify(err)
	}
	return vals, nil
}

func (b *RedisBroker) LLen(ctx context.Context, key string) (int64, error) {
	n, err := b.client.LLen(ctx, key).Result()
	if err != nil {
		return 0, classify(err)
	}
	return n, nil
}

func (b *RedisBroker) Publish(ctx context.Context, channel string, payload interface{}) error {
	data, err := jsonutil.Marshal(payload)
	if err != nil {
		return errs.Wrap(errs.InvalidPayload, err)
	}
	return retry.Do(ctx, func() error {
		return classify(b.client.Publish(ctx, channel, data).Err())
	}, retry.NetworkConfig())
}

// Subscribe starts one redis.PubSub per channel, forwarding messages into
// a locally buffered channel consumed by a dedicated goroutine. A full
// buffer drops the newest message rather than blocking the Redis client's
// own delivery loop (mirrors the hub's broadcast-with-default-drop idiom).
func (b *RedisBroker) Subscribe(ctx context.Context, channel string, handler func(channel string, payload []byte)) (func(), error) {
	sub := b.client.Subscribe(ctx, channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, classify(err)
	}

	b.mu.Lock()
	b.subs[channel] = sub
	b.mu.Unlock()

	redisCh := sub.Channel()
	local := make(chan *redis.Message, subBufferSize)
	done := make(chan struct{})

	go func() {
		for {
			select {
			case msg, ok := <-redisCh:
				if !ok {
					close(local)
					return
				}
				select {
				case local <- msg:
				default:
					utils.Warn("broker: subscriber buffer full, dropping message", utils.Channel(channel))
				}
			case <-done:
				return
			}
		}
	}()

	go func() {
		for {
			select {
			case msg, ok := <-local:
				if !ok {
					return
				}
				handler(msg.Channel, []byte(msg.Payload))
			case <-done:
				return
			}
		}
	}()

	cleanup := func() {
		close(done)
		b.mu.Lock()
		delete(b.subs, channel)
		b.mu.Unlock()
		_ = sub.Close()
	}
	return cleanup, nil
}
