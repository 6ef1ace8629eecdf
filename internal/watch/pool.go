package watch

import (
	"context"
	"sync"
	"time"

	"github.com/svyatogor45/marketmonitor/internal/broker"
	"github.com/svyatogor45/marketmonitor/internal/metrics"
	"github.com/svyatogor45/marketmonitor/pkg/jsonutil"
	"github.com/svyatogor45/marketmonitor/pkg/utils"
)

const (
	healthInterval = 30 * time.Second
	healthTTL      = 60
	statusKey      = "worker:status"
)

// Pool boots and supervises the three watchers. Each entry's factory
// rebuilds a fresh watcher instance in place when the health loop finds
// one no longer running, mirroring the teacher's exchange-factory
// pattern applied here to watcher recreation instead of exchange
// reconnection.
type Pool struct {
	broker broker.Broker

	mu       sync.Mutex
	entries  map[string]*poolEntry
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

type poolEntry struct {
	factory func() Watcher
	current Watcher
}

// NewPool builds a pool from a set of watcher factories keyed by watch
// type (token/wallet/airdrop).
func NewPool(b broker.Broker, factories map[string]func() Watcher) *Pool {
	entries := make(map[string]*poolEntry, len(factories))
	for watchType, factory := range factories {
		entries[watchType] = &poolEntry{factory: factory}
	}
	return &Pool{broker: b, entries: entries}
}

// Start boots every watcher and the health loop.
func (p *Pool) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	p.mu.Lock()
	for watchType, e := range p.entries {
		w := e.factory()
		e.current = w
		if err := w.Start(ctx); err != nil {
			p.mu.Unlock()
			return err
		}
		utils.Info("watcher started", utils.WatchType(watchType))
	}
	p.mu.Unlock()

	p.wg.Add(1)
	go p.healthLoop(ctx)
	return nil
}

// Stop halts every watcher and the health loop.
func (p *Pool) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.mu.Lock()
	for _, e := range p.entries {
		if e.current != nil {
			e.current.Stop()
		}
	}
	p.mu.Unlock()
	p.wg.Wait()
}

func (p *Pool) healthLoop(ctx context.Context) {
	defer p.wg.Done()
	ticker := time.NewTicker(healthInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.checkHealth(ctx)
		}
	}
}

func (p *Pool) checkHealth(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for watchType, e := range p.entries {
		health := e.current.Status()

		doc, err := jsonutil.MarshalString(health)
		if err == nil {
			if err := p.broker.HSet(ctx, statusKey, watchType, doc); err != nil {
				utils.Warn("pool: failed to record health", utils.WatchType(watchType), utils.Err(err))
			}
			if err := p.broker.Expire(ctx, statusKey, healthTTL); err != nil {
				utils.Warn("pool: failed to set health ttl", utils.WatchType(watchType), utils.Err(err))
			}
		}

		if !health.Active {
			utils.Warn("pool: watcher not running, restarting", utils.WatchType(watchType))
			metrics.WatcherRestarts.WithLabelValues(watchType).Inc()
			e.current.Stop()
			fresh := e.factory()
			e.current = fresh
			if err := fresh.Start(ctx); err != nil {
				utils.Error("pool: failed to restart watcher", utils.WatchType(watchType), utils.Err(err))
			}
		}
	}
}
