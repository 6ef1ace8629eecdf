// Package broker implements the Broker Client: a Redis-backed
// publish/subscribe bus plus an ephemeral key-value store with TTL,
// shared by every other component for rule propagation, watch-entry
// indexing, dedup keys, and rate-limit counters.
package broker

import "context"

// Broker is the contract every component depends on. RedisBroker is the
// production implementation; FakeBroker backs unit tests without a live
// Redis instance, mirroring the teacher's pattern of testing against an
// interface rather than a concrete exchange client.
type Broker interface {
	// Get returns (value, found, err). found=false with err=nil means the
	// key genuinely does not exist. err != nil means the broker could not
	// be reached — callers MUST treat this as a cache miss, never as
	// "absent", per the Broker Client's failure semantics.
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl int64) error
	Expire(ctx context.Context, key string, ttlSeconds int64) error

	HSet(ctx context.Context, key, field, value string) error
	HGet(ctx context.Context, key, field string) (string, bool, error)
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	HDel(ctx context.Context, key string, fields ...string) error

	SAdd(ctx context.Context, key string, members ...string) error
	SIsMember(ctx context.Context, key, member string) (bool, error)
	SCard(ctx context.Context, key string) (int64, error)
	SPop(ctx context.Context, key string) (string, bool, error)
	SRem(ctx context.Context, key string, members ...string) error

	LPush(ctx context.Context, key string, values ...string) error
	RPop(ctx context.Context, key string) (string, bool, error)
	LRange(ctx context.Context, key string, start, stop int64) ([]string, error)
	LLen(ctx context.Context, key string) (int64, error)

	// Publish fans payload out to channel. payload is JSON-encoded before
	// transport (jsonutil, see pkg/jsonutil). Non-blocking: a slow or
	// absent subscriber never backpressures the publisher.
	Publish(ctx context.Context, channel string, payload interface{}) error

	// Subscribe starts a single long-lived consumer for channel, invoking
	// handler with the raw payload bytes of every message. The broker does
	// not decode payloads; each handler decodes its own and logs and drops
	// the ones it cannot decode. Returns an unsubscribe func that stops
	// the consumer and releases resources; callers should defer it or
	// invoke it during shutdown.
	Subscribe(ctx context.Context, channel string, handler func(channel string, payload []byte)) (func(), error)

	// Close releases the underlying connection(s).
	Close() error
}
