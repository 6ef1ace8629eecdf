package broker

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/svyatogor45/marketmonitor/pkg/jsonutil"
)

// FakeBroker is an in-memory Broker for tests. It has no TTL sweeper: Get
// checks expiry lazily on read, matching the teacher's pattern of letting
// stale-cache tests assert on expiry without a background goroutine.
type FakeBroker struct {
	mu sync.Mutex

	strings map[string]fakeEntry
	hashes  map[string]map[string]string
	sets    map[string]map[string]struct{}
	lists   map[string][]string

	subscribers map[string][]func(channel string, payload []byte)
	closed      bool

	// Published records every Publish call for assertions in tests.
	Published []FakePublishRecord
}

type fakeEntry struct {
	value     string
	expiresAt time.Time // zero means no expiry
}

// FakePublishRecord captures one Publish call.
type FakePublishRecord struct {
	Channel string
	Payload string
}

func NewFakeBroker() *FakeBroker {
	return &FakeBroker{
		strings:     make(map[string]fakeEntry),
		hashes:      make(map[string]map[string]string),
		sets:        make(map[string]map[string]struct{}),
		lists:       make(map[string][]string),
		subscribers: make(map[string][]func(channel string, payload []byte)),
	}
}

func (b *FakeBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

func (b *FakeBroker) Get(ctx context.Context, key string) (string, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.strings[key]
	if !ok {
		return "", false, nil
	}
	if !e.expiresAt.IsZero() && time.Now().After(e.expiresAt) {
		delete(b.strings, key)
		return "", false, nil
	}
	return e.value, true, nil
}

func (b *FakeBroker) Set(ctx context.Context, key, value string, ttl int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	e := fakeEntry{value: value}
	if ttl > 0 {
		e.expiresAt = time.Now().Add(time.Duration(ttl) * time.Second)
	}
	b.strings[key] = e
	return nil
}

func (b *FakeBroker) Expire(ctx context.Context, key string, ttlSeconds int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.strings[key]
	if !ok {
		return nil
	}
	e.expiresAt = time.Now().Add(time.Duration(ttlSeconds) * time.Second)
	b.strings[key] = e
	return nil
}

func (b *FakeBroker) HSet(ctx context.Context, key, field, value string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	h, ok := b.hashes[key]
	if !ok {
		h = make(map[string]string)
		b.hashes[key] = h
	}
	h[field] = value
	return nil
}

func (b *FakeBroker) HGet(ctx context.Context, key, field string) (string, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	h, ok := b.hashes[key]
	if !ok {
		return "", false, nil
	}
	v, ok := h[field]
	return v, ok, nil
}

func (b *FakeBroker) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[string]string)
	for k, v := range b.hashes[key] {
		out[k] = v
	}
	return out, nil
}

func (b *FakeBroker) HDel(ctx context.Context, key string, fields ...string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	h, ok := b.hashes[key]
	if !ok {
		return nil
	}
	for _, f := range fields {
		delete(h, f)
	}
	return nil
}

func (b *FakeBroker) SAdd(ctx context.Context, key string, members ...string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.sets[key]
	if !ok {
		s = make(map[string]struct{})
		b.sets[key] = s
	}
	for _, m := range members {
		s[m] = struct{}{}
	}
	return nil
}

func (b *FakeBroker) SIsMember(ctx context.Context, key, member string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.sets[key][member]
	return ok, nil
}

func (b *FakeBroker) SCard(ctx context.Context, key string) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return int64(len(b.sets[key])), nil
}

func (b *FakeBroker) SPop(ctx context.Context, key string) (string, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.sets[key]
	if !ok || len(s) == 0 {
		return "", false, nil
	}
	members := make([]string, 0, len(s))
	for m := range s {
		members = append(members, m)
	}
	sort.Strings(members)
	popped := members[0]
	delete(s, popped)
	return popped, true, nil
}

func (b *FakeBroker) SRem(ctx context.Context, key string, members ...string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.sets[key]
	if !ok {
		return nil
	}
	for _, m := range members {
		delete(s, m)
	}
	return nil
}

func (b *FakeBroker) LPush(ctx context.Context, key string, values ...string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, v := range values {
		b.lists[key] = append([]string{v}, b.lists[key]...)
	}
	return nil
}

func (b *FakeBroker) RPop(ctx context.Context, key string) (string, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	l := b.lists[key]
	if len(l) == 0 {
		return "", false, nil
	}
	last := l[len(l)-1]
	b.lists[key] = l[:len(l)-1]
	return last, true, nil
}

func (b *FakeBroker) LRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	l := b.lists[key]
	n := int64(len(l))
	if n == 0 {
		return []string{}, nil
	}
	if start < 0 {
		start = n + start
	}
	if stop < 0 {
		stop = n + stop
	}
	if start < 0 {
		start = 0
	}
	if stop >= n {
		stop = n - 1
	}
	if start > stop || start >= n {
		return []string{}, nil
	}
	out := make([]string, stop-start+1)
	copy(out, l[start:stop+1])
	return out, nil
}

func (b *FakeBroker) LLen(ctx context.Context, key string) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return int64(len(b.lists[key])), nil
}

func (b *FakeBroker) Publish(ctx context.Context, channel string, payload interface{}) error {
	data, err := jsonutil.Marshal(payload)
	if err != nil {
		return err
	}

	b.mu.Lock()
	b.Published = append(b.Published, FakePublishRecord{Channel: channel, Payload: string(data)})
	handlers := append([]func(string, []byte){}, b.subscribers[channel]...)
	b.mu.Unlock()

	for _, h := range handlers {
		if h != nil {
			h(channel, data)
		}
	}
	return nil
}

func (b *FakeBroker) Subscribe(ctx context.Context, channel string, handler func(channel string, payload []byte)) (func(), error) {
	b.mu.Lock()
	b.subscribers[channel] = append(b.subscribers[channel], handler)
	idx := len(b.subscribers[channel]) - 1
	b.mu.Unlock()

	cleanup := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		handlers := b.subscribers[channel]
		if idx < len(handlers) {
			handlers[idx] = nil
		}
	}
	return cleanup, nil
}
