// Package watch implements the Watcher Pool: the Token, Wallet, and
// Airdrop watchers, their shared subscription-maintainer/watching-set
// plumbing, and the sharded TTL+LRU cache each watcher uses for its
// private Target Snapshots.
package watch

import (
	"context"
	"time"
)

// Health is the per-watcher status record the pool publishes into
// worker:status every health-loop tick.
type Health struct {
	Active      bool      `json:"active"`
	TargetCount int       `json:"target_count"`
	LastCheck   time.Time `json:"last_check"`
}

// Watcher is the contract the pool supervises generically, mirroring
// the teacher's exchange.Exchange unified-interface idiom applied here
// to watchers instead of exchange connections.
type Watcher interface {
	// WatchType reports token, wallet, or airdrop.
	WatchType() string
	// Start connects to broker and store, launching the watch loop and
	// the register/deactivate subscription maintainer. Returns once both
	// are running; the watcher keeps running after Start returns until
	// Stop is called or ctx is cancelled.
	Start(ctx context.Context) error
	// Stop halts the watch loop and subscription maintainer.
	Stop()
	// Status reports the watcher's current health snapshot.
	Status() Health
}
