package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap/zapcore"

	"github.com/verex-dex/verex/params"
	"github.com/verex-dex/verex/pkg/api"
	"github.com/verex-dex/verex/pkg/engine"
	"github.com/verex-dex/verex/pkg/journal"
	"github.com/verex-dex/verex/pkg/match"
	"github.com/verex-dex/verex/pkg/util"
)

func main() {
	// Load config from .env file and environment variables
	cfg := params.LoadFromEnv("")

	// Setup logging (write to both console and file)
	level := zapcore.InfoLevel
	if os.Getenv("VERBOSE") == "true" {
		level = zapcore.DebugLevel
	}
	logger, err := util.NewLoggerWithFile(cfg.LogFile, level)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()
	sugar.Infow("logger_initialized", "log_file", cfg.LogFile)

	// ---- Trading core ----
	eng := engine.New(engine.Options{
		MaxHops:      cfg.Engine.MaxHops,
		TradeHistory: cfg.Engine.TradeHistory,
		EventBuffer:  cfg.Engine.EventBuffer,
	})

	// ---- Event journal ----
	jnl, err := journal.Open(cfg.Storage.JournalPath)
	if err != nil {
		sugar.Fatalw("journal_open_failed", "path", cfg.Storage.JournalPath, "err", err)
	}
	defer jnl.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ---- API Server ----
	apiServer := api.NewServer(eng, sugar, api.Options{
		DefaultFeeBps:  cfg.Engine.DefaultFeeBps,
		AllowedOrigins: cfg.API.AllowedOrigins,
	})

	// Event pump: every committed event goes to the journal and out to
	// websocket subscribers. Runs outside the core's critical sections.
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-eng.Events():
				if !ok {
					return
				}
				if err := jnl.Append(ev); err != nil {
					sugar.Warnw("journal_append_failed", "type", ev.Type, "err", err)
				}
				apiServer.Hub().BroadcastToChannel(eventChannel(ev), ev)
			}
		}
	}()

	sugar.Infow("node_starting",
		"api_addr", cfg.API.Addr,
		"journal", cfg.Storage.JournalPath,
		"default_fee_bps", cfg.Engine.DefaultFeeBps,
		"max_hops", cfg.Engine.MaxHops)

	go func() {
		if err := apiServer.Start(cfg.API.Addr); err != nil {
			sugar.Fatalw("api_server_failed", "err", err)
		}
	}()

	<-ctx.Done()
	sugar.Info("shutting_down")
}

// eventChannel maps an engine event onto its websocket channel. Trades get
// a per-market channel; everything else shares one feed per event type.
func eventChannel(ev engine.Event) string {
	switch ev.Type {
	case "trade":
		if t, ok := ev.Data.(match.Trade); ok {
			return "trades:" + t.Market
		}
		return "trades"
	case "swap":
		return "swaps"
	case "liquidity":
		return "liquidity"
	default:
		return "orders"
	}
}
