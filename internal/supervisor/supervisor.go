// Package supervisor owns process-level boot and shutdown ordering:
// broker and store first, then the rule processor and watcher pool,
// then the matcher and dispatcher, then the HTTP surface. Shutdown
// runs in the reverse order. Grounded on cmd/server/main.go's
// construct-then-signal-then-teardown shape.
package supervisor

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/svyatogor45/marketmonitor/internal/alertsapi"
	"github.com/svyatogor45/marketmonitor/internal/broker"
	"github.com/svyatogor45/marketmonitor/internal/config"
	"github.com/svyatogor45/marketmonitor/internal/dispatch"
	"github.com/svyatogor45/marketmonitor/internal/evmrpc"
	"github.com/svyatogor45/marketmonitor/internal/httpapi"
	"github.com/svyatogor45/marketmonitor/internal/match"
	"github.com/svyatogor45/marketmonitor/internal/priceapi"
	"github.com/svyatogor45/marketmonitor/internal/rules"
	"github.com/svyatogor45/marketmonitor/internal/solrpc"
	"github.com/svyatogor45/marketmonitor/internal/store"
	"github.com/svyatogor45/marketmonitor/internal/watch"
	"github.com/svyatogor45/marketmonitor/pkg/ratelimit"
	"github.com/svyatogor45/marketmonitor/pkg/utils"
)

// Supervisor boots and tears down every subsystem in dependency order.
type Supervisor struct {
	cfg *config.Config

	broker broker.Broker
	store  *store.RuleStore

	rulesProc *rules.Processor
	pool      *watch.Pool
	matcher   *match.Processor
	dispatcher *dispatch.Dispatcher

	httpServer *http.Server

	stopRules func()
	stopMatch func()
	stopDispatch func()
}

// New wires every subsystem from config without starting anything.
func New(cfg *config.Config) (*Supervisor, error) {
	b := broker.NewRedisBroker(cfg.Broker.Addr, cfg.Broker.Password, cfg.Broker.DB,
		cfg.Broker.PoolSize, cfg.Broker.DialTimeout, cfg.Broker.ReadTimeout, cfg.Broker.WriteTimeout)

	s, err := store.Open(cfg.Store.DSN(), cfg.Store.MaxOpenConns, cfg.Store.MaxIdleConns, cfg.Store.ConnMaxLifetime)
	if err != nil {
		return nil, fmt.Errorf("open rule store: %w", err)
	}

	priceLimiter := ratelimit.NewRateLimiter(5, 10)
	alertsLimiter := ratelimit.NewRateLimiter(5, 10)
	prices := priceapi.New(cfg.Watch.PriceAPIBaseURL, cfg.Watch.PriceAPIKey, priceLimiter)
	alerts := alertsapi.New(cfg.Watch.AlertsAPIBaseURL, cfg.Watch.AlertsAPIKey, alertsLimiter)

	evmTrackers, err := buildEVMTrackers(cfg)
	if err != nil {
		return nil, err
	}
	solanaTracker := buildSolanaTracker(cfg)

	factories := map[string]func() watch.Watcher{
		"token": func() watch.Watcher {
			return watch.NewTokenWatcher(b, s, prices, alerts, cfg.Watch.TokenPollInterval)
		},
		"wallet": func() watch.Watcher {
			return watch.NewWalletWatcher(b, s, evmTrackers, solanaTracker, cfg.Watch.WalletPollInterval)
		},
		"airdrop": func() watch.Watcher {
			return watch.NewAirdropWatcher(b, s, alerts, cfg.Watch.AirdropPollInterval)
		},
	}

	adapters := map[string]dispatch.ChannelAdapter{
		"telegram": dispatch.NewChatBotAdapter(cfg.Dispatch.TelegramAPIBaseURL, cfg.Dispatch.TelegramBotToken),
		"web":      &dispatch.LogOnlyAdapter{Channel: "web"},
		"discord":  &dispatch.LogOnlyAdapter{Channel: "discord"},
	}

	router := httpapi.NewRouter(httpapi.Dependencies{Broker: b})

	return &Supervisor{
		cfg:        cfg,
		broker:     b,
		store:      s,
		rulesProc:  rules.NewProcessor(s, b),
		pool:       watch.NewPool(b, factories),
		matcher:    match.NewProcessor(b, cfg.Dispatch.MatchDedupWindow),
		dispatcher: dispatch.NewDispatcher(b, cfg.Dispatch, adapters),
		httpServer: &http.Server{
			Addr:         cfg.HTTP.Addr,
			Handler:      router,
			ReadTimeout:  cfg.HTTP.ReadTimeout,
			WriteTimeout: cfg.HTTP.WriteTimeout,
			IdleTimeout:  cfg.HTTP.IdleTimeout,
		},
	}, nil
}

func buildEVMTrackers(cfg *config.Config) ([]watch.WalletTracker, error) {
	var trackers []watch.WalletTracker
	for name, chain := range cfg.Watch.Chains {
		if name == "solana" || chain.RPCURL == "" {
			continue
		}
		client, err := evmrpc.Dial(context.Background(), chain.Name, chain.RPCURL)
		if err != nil {
			return nil, fmt.Errorf("dial %s rpc: %w", chain.Name, err)
		}
		trackers = append(trackers, watch.NewEVMTracker(chain, client, cfg.Watch.ColdStartBlockWindow, cfg.Watch.ChainConcurrency))
	}
	return trackers, nil
}

func buildSolanaTracker(cfg *config.Config) watch.WalletTracker {
	chain, ok := cfg.Watch.Chains["solana"]
	if !ok || chain.RPCURL == "" {
		return nil
	}
	client := solrpc.Dial(chain.RPCURL)
	return watch.NewSolanaTracker(client, cfg.Watch.ChainConcurrency)
}

// Run boots every subsystem and blocks until ctx is cancelled, then
// tears everything down in reverse dependency order.
func (sv *Supervisor) Run(ctx context.Context) error {
	var err error
	if sv.stopRules, err = sv.rulesProc.Start(ctx); err != nil {
		return fmt.Errorf("start rule processor: %w", err)
	}
	if err := sv.pool.Start(ctx); err != nil {
		return fmt.Errorf("start watcher pool: %w", err)
	}
	if sv.stopMatch, err = sv.matcher.Start(ctx); err != nil {
		return fmt.Errorf("start rule matcher: %w", err)
	}
	if sv.stopDispatch, err = sv.dispatcher.Start(ctx); err != nil {
		return fmt.Errorf("start notification dispatcher: %w", err)
	}

	go func() {
		utils.Info("httpapi: listening", utils.String("addr", sv.httpServer.Addr))
		if err := sv.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			utils.Error("httpapi: server failed", utils.Err(err))
		}
	}()

	<-ctx.Done()
	sv.shutdown()
	return nil
}

func (sv *Supervisor) shutdown() {
	utils.Info("supervisor: shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := sv.httpServer.Shutdown(shutdownCtx); err != nil {
		utils.Warn("httpapi: forced shutdown", utils.Err(err))
	}

	if sv.stopDispatch != nil {
		sv.stopDispatch()
	}
	if sv.stopMatch != nil {
		sv.stopMatch()
	}
	sv.pool.Stop()
	if sv.stopRules != nil {
		sv.stopRules()
	}

	if err := sv.store.Close(); err != nil {
		utils.Warn("store: close failed", utils.Err(err))
	}
	if err := sv.broker.Close(); err != nil {
		utils.Warn("broker: close failed", utils.Err(err))
	}

	utils.Info("supervisor: shutdown complete")
}
