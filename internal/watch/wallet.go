package watch

import (
	"context"
	"sync"
	"time"

	"github.com/svyatogor45/marketmonitor/internal/broker"
	"github.com/svyatogor45/marketmonitor/internal/model"
	"github.com/svyatogor45/marketmonitor/internal/store"
	"github.com/svyatogor45/marketmonitor/pkg/utils"
)

// WalletTracker is the capability every chain-specific wallet tracker
// implements. EVMTracker serves one of Ethereum/BSC/Base per instance;
// SolanaTracker serves Solana. The Wallet Watcher fans a tick out across
// every configured tracker concurrently.
type WalletTracker interface {
	Chain() string
	GetWalletData(ctx context.Context, wallets []string) (map[string]model.WalletSnapshot, error)
}

// WalletWatcher tracks wallet activity across every configured chain.
// EVM wallets are polled against all EVM trackers (an address is valid
// on every EVM chain); Solana wallets go to the Solana tracker alone,
// per target_data.kind.
type WalletWatcher struct {
	*base

	evmTrackers []WalletTracker
	solana      WalletTracker
	interval    time.Duration
}

func NewWalletWatcher(b broker.Broker, s *store.RuleStore, evmTrackers []WalletTracker, solana WalletTracker, interval time.Duration) *WalletWatcher {
	w := &WalletWatcher{
		evmTrackers: evmTrackers,
		solana:      solana,
		interval:    interval,
	}
	w.base = newBase(model.WatchTypeWallet, b, s, nil)
	return w
}

func (w *WalletWatcher) Start(ctx context.Context) error {
	w.startLifecycle(ctx)
	go w.runTickLoop(ctx, w.interval, w.tick)
	return nil
}

func (w *WalletWatcher) tick(ctx context.Context, targets []string) {
	rulesByTarget := make(map[string][]model.Rule, len(targets))
	var evmWallets, solanaWallets []string

	for _, target := range targets {
		rules, err := w.rulesForTarget(ctx, target)
		if err != nil {
			utils.Warn("wallet watcher: failed to load rules", utils.Target(target), utils.Err(err))
			continue
		}
		if len(rules) == 0 {
			continue
		}
		rulesByTarget[target] = rules

		kind := ""
		if td, ok := rules[0].TargetData[target]; ok {
			kind = td.Kind
		}
		if kind == model.WalletKindSolana {
			solanaWallets = append(solanaWallets, target)
		} else {
			evmWallets = append(evmWallets, target)
		}
	}

	snapshots := make(map[string][]model.WalletSnapshot) // target -> one snapshot per chain that saw activity
	var mu sync.Mutex
	var wg sync.WaitGroup

	if len(evmWallets) > 0 {
		for _, tracker := range w.evmTrackers {
			tracker := tracker
			wg.Add(1)
			go func() {
				defer wg.Done()
				perWallet, err := tracker.GetWalletData(ctx, evmWallets)
				if err != nil {
					utils.Warn("wallet watcher: evm tracker failed", utils.String("chain", tracker.Chain()), utils.Err(err))
					return
				}
				mu.Lock()
				for wallet, snap := range perWallet {
					snapshots[wallet] = append(snapshots[wallet], snap)
				}
				mu.Unlock()
			}()
		}
	}
	if len(solanaWallets) > 0 && w.solana != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			perWallet, err := w.solana.GetWalletData(ctx, solanaWallets)
			if err != nil {
				utils.Warn("wallet watcher: solana tracker failed", utils.Err(err))
				return
			}
			mu.Lock()
			for wallet, snap := range perWallet {
				snapshots[wallet] = append(snapshots[wallet], snap)
			}
			mu.Unlock()
		}()
	}
	wg.Wait()

	for target, rules := range rulesByTarget {
		snaps := snapshots[target]
		if len(snaps) == 0 {
			continue
		}
		var entries []model.MatchEntry
		for _, snap := range snaps {
			for _, event := range snap.Transactions {
				entries = append(entries, model.MatchEntry{
					Condition: event.Kind,
					Wallet:    target,
					Data:      mergeEventFields(event),
				})
			}
		}
		if len(entries) == 0 {
			continue
		}
		for _, rule := range rules {
			w.publishMatch(ctx, rule, entries)
		}
	}
}

func mergeEventFields(event model.TxEvent) map[string]interface{} {
	data := make(map[string]interface{}, len(event.Fields)+3)
	for k, v := range event.Fields {
		data[k] = v
	}
	data["chain"] = event.Chain
	data["hash"] = event.Hash
	data["block_number"] = event.BlockNumber
	return data
}
