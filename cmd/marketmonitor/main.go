// Command marketmonitor boots the rule processor, watcher pool, rule
// matcher, notification dispatcher and HTTP surface as one process,
// then waits for SIGINT/SIGTERM to shut everything down in order.
// Grounded on cmd/server/main.go's construct-then-signal-then-teardown
// shape.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/svyatogor45/marketmonitor/internal/config"
	"github.com/svyatogor45/marketmonitor/internal/supervisor"
	"github.com/svyatogor45/marketmonitor/pkg/utils"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		utils.Errorf("failed to load config: %v", err)
		os.Exit(1)
	}

	utils.InitGlobalLogger(utils.LogConfig{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		Output:      cfg.Logging.Output,
		Development: cfg.Logging.Development,
	})

	sv, err := supervisor.New(cfg)
	if err != nil {
		utils.Errorf("failed to build supervisor: %v", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-quit
		utils.Info("marketmonitor: signal received, shutting down")
		cancel()
	}()

	if err := sv.Run(ctx); err != nil {
		utils.Errorf("supervisor exited with error: %v", err)
		os.Exit(1)
	}
}
