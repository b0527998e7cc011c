package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/gw/tradeledger/internal/alpaca"
	"github.com/gw/tradeledger/internal/config"
	"github.com/gw/tradeledger/internal/tradelog"
)

var watchOpts updateOptions

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Run an update cycle at start and after every sell fill",
	Long: `watch subscribes to the account's trade_updates stream and runs an update
cycle each time a sell order fills or partially fills. Cycles never overlap;
fills arriving during a cycle are folded into one follow-up cycle.`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
	addUpdateFlags(watchCmd, &watchOpts)
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	src := tradelog.NewAlpacaSource(alpaca.NewClient(cfg))
	u, cleanup, err := newUpdater(cfg, src, watchOpts)
	if err != nil {
		return err
	}
	defer cleanup()

	// Context with graceful shutdown
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case sig := <-sigCh:
			slog.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	stream := alpaca.NewStream(cfg)
	go func() {
		if err := stream.Run(ctx); err != nil && ctx.Err() == nil {
			slog.Error("stream error", "err", err)
		}
	}()

	slog.Info("watcher starting", "env", cfg.AlpacaEnv, "ledgers", len(u.Ledgers))
	runCycle(ctx, u)

	for {
		select {
		case <-ctx.Done():
			slog.Info("watcher stopped")
			return nil
		case upd := <-stream.Updates():
			if !closesPosition(upd) {
				continue
			}
			slog.Info("sell filled", "order", upd.Order.ID, "symbol", upd.Order.Symbol, "event", upd.Event)
			drain(stream.Updates())
			runCycle(ctx, u)
		}
	}
}

// closesPosition reports whether an update can complete a round trip.
func closesPosition(u alpaca.TradeUpdate) bool {
	if u.Event != "fill" && u.Event != "partial_fill" {
		return false
	}
	return u.Order.Side == "sell"
}

// drain discards queued updates; the next cycle re-reads the whole window.
func drain(ch <-chan alpaca.TradeUpdate) {
	for {
		select {
		case <-ch:
		default:
			return
		}
	}
}

func runCycle(ctx context.Context, u *tradelog.Updater) {
	rep, err := u.Run(ctx)
	if err != nil {
		if ctx.Err() == nil {
			slog.Error("update cycle failed", "err", err)
		}
		return
	}
	appended := 0
	for _, l := range rep.Ledgers {
		appended += l.Appended
	}
	slog.Info("update cycle done", "run", rep.RunID, "trips", rep.Trips, "appended", appended)
}
