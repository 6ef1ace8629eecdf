package broker

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestFakeBroker_GetSetExpire(t *testing.T) {
	b := NewFakeBroker()
	ctx := context.Background()

	if _, found, err := b.Get(ctx, "missing"); err != nil || found {
		t.Fatalf("Get(missing) = found=%v err=%v, want found=false err=nil", found, err)
	}

	if err := b.Set(ctx, "key", "value", 0); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	val, found, err := b.Get(ctx, "key")
	if err != nil || !found || val != "value" {
		t.Fatalf("Get(key) = %q, %v, %v; want value, true, nil", val, found, err)
	}

	if err := b.Set(ctx, "ephemeral", "x", 1); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	time.Sleep(1100 * time.Millisecond)
	if _, found, _ := b.Get(ctx, "ephemeral"); found {
		t.Error("Get(ephemeral) found true after TTL elapsed, want false")
	}
}

func TestFakeBroker_Hash(t *testing.T) {
	b := NewFakeBroker()
	ctx := context.Background()

	if err := b.HSet(ctx, "h", "f1", "v1"); err != nil {
		t.Fatalf("HSet() error = %v", err)
	}
	if err := b.HSet(ctx, "h", "f2", "v2"); err != nil {
		t.Fatalf("HSet() error = %v", err)
	}
	v, found, err := b.HGet(ctx, "h", "f1")
	if err != nil || !found || v != "v1" {
		t.Fatalf("HGet() = %q, %v, %v; want v1, true, nil", v, found, err)
	}
	all, err := b.HGetAll(ctx, "h")
	if err != nil || len(all) != 2 {
		t.Fatalf("HGetAll() = %v, %v; want 2 entries", all, err)
	}
	if err := b.HDel(ctx, "h", "f1"); err != nil {
		t.Fatalf("HDel() error = %v", err)
	}
	if _, found, _ := b.HGet(ctx, "h", "f1"); found {
		t.Error("HGet() after HDel found=true, want false")
	}
}

func TestFakeBroker_Set(t *testing.T) {
	b := NewFakeBroker()
	ctx := context.Background()

	if err := b.SAdd(ctx, "s", "a", "b", "c"); err != nil {
		t.Fatalf("SAdd() error = %v", err)
	}
	card, err := b.SCard(ctx, "s")
	if err != nil || card != 3 {
		t.Fatalf("SCard() = %d, %v; want 3", card, err)
	}
	ok, err := b.SIsMember(ctx, "s", "b")
	if err != nil || !ok {
		t.Fatalf("SIsMember(b) = %v, %v; want true", ok, err)
	}
	if err := b.SRem(ctx, "s", "b"); err != nil {
		t.Fatalf("SRem() error = %v", err)
	}
	if ok, _ := b.SIsMember(ctx, "s", "b"); ok {
		t.Error("SIsMember(b) after SRem = true, want false")
	}
	popped, found, err := b.SPop(ctx, "s")
	if err != nil || !found || popped == "" {
		t.Fatalf("SPop() = %q, %v, %v", popped, found, err)
	}
}

func TestFakeBroker_List(t *testing.T) {
	b := NewFakeBroker()
	ctx := context.Background()

	if err := b.LPush(ctx, "l", "1", "2", "3"); err != nil {
		t.Fatalf("LPush() error = %v", err)
	}
	n, err := b.LLen(ctx, "l")
	if err != nil || n != 3 {
		t.Fatalf("LLen() = %d, %v; want 3", n, err)
	}
	vals, err := b.LRange(ctx, "l", 0, -1)
	if err != nil {
		t.Fatalf("LRange() error = %v", err)
	}
	if len(vals) != 3 {
		t.Fatalf("LRange() = %v, want 3 elements", vals)
	}

	val, found, err := b.RPop(ctx, "l")
	if err != nil || !found {
		t.Fatalf("RPop() = %q, %v, %v", val, found, err)
	}
}

func TestFakeBroker_PublishSubscribe(t *testing.T) {
	b := NewFakeBroker()
	ctx := context.Background()

	var mu sync.Mutex
	received := make([]string, 0)

	unsub, err := b.Subscribe(ctx, "topic", func(channel string, payload []byte) {
		mu.Lock()
		defer mu.Unlock()
		received = append(received, string(payload))
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	if err := b.Publish(ctx, "topic", map[string]string{"k": "v"}); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	mu.Lock()
	if len(received) != 1 {
		t.Fatalf("received = %v, want 1 message", received)
	}
	mu.Unlock()

	unsub()

	if err := b.Publish(ctx, "topic", map[string]string{"k": "v2"}); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(received) != 1 {
		t.Errorf("received after unsub = %v, want still 1 message", received)
	}

	if len(b.Published) != 2 {
		t.Errorf("Published = %d records, want 2", len(b.Published))
	}
}

func TestFakeBroker_Close(t *testing.T) {
	b := NewFakeBroker()
	if err := b.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
}

// compile-time assertions that both implementations satisfy Broker.
var (
	_ Broker = (*FakeBroker)(nil)
	_ Broker = (*RedisBroker)(nil)
)
