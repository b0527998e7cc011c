package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/gw/tradeledger/internal/audit"
	"github.com/gw/tradeledger/internal/config"
	"github.com/gw/tradeledger/internal/tradelog"
)

var debug bool

var rootCmd = &cobra.Command{
	Use:   "tradeledger",
	Short: "Keep CSV trade ledgers in sync with broker order history",
	Long: `tradeledger pulls closed orders from Alpaca, pairs buy and sell fills into
round trips and appends new ones to the configured CSV ledgers.

Commands:
  update        Run one update cycle
  watch         Run a cycle whenever a sell fills
  init          Create missing ledger files with their headers
  summary       Show headline numbers for a ledger
  trades [N]    Show the last N mirrored round trips (default 50)
  pnl           Show daily PnL from the mirror database`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logLevel := slog.LevelInfo
		if debug {
			logLevel = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		slog.Error("command failed", "err", err)
		os.Exit(1)
	}
}

// ledgerTargets resolves the configured ledger variants to projections.
func ledgerTargets(cfg *config.Config) ([]tradelog.LedgerTarget, error) {
	targets := make([]tradelog.LedgerTarget, 0, len(cfg.Ledgers))
	for _, l := range cfg.Ledgers {
		p, err := tradelog.ProjectionByName(l.Variant)
		if err != nil {
			return nil, fmt.Errorf("ledger %s: %w", l.Path, err)
		}
		targets = append(targets, tradelog.LedgerTarget{Path: l.Path, Projection: p})
	}
	return targets, nil
}

type updateOptions struct {
	lookback int
	pageSize int
	noMirror bool
}

// newUpdater wires an Updater from config. The returned cleanup closes the
// store and audit writer when they were opened.
func newUpdater(cfg *config.Config, src tradelog.OrderSource, opts updateOptions) (*tradelog.Updater, func(), error) {
	targets, err := ledgerTargets(cfg)
	if err != nil {
		return nil, nil, err
	}

	u := &tradelog.Updater{
		Source:       src,
		Ledgers:      targets,
		LookbackDays: cfg.LookbackDays,
		PageSize:     cfg.PageSize,
	}
	if opts.lookback > 0 {
		u.LookbackDays = opts.lookback
	}
	if opts.pageSize > 0 {
		u.PageSize = opts.pageSize
	}

	var closers []func() error
	cleanup := func() {
		for _, c := range closers {
			c()
		}
	}

	if !opts.noMirror && cfg.DBPath != "" {
		store, err := tradelog.Open(cfg.DBPath)
		if err != nil {
			return nil, nil, fmt.Errorf("opening db: %w", err)
		}
		u.Store = store
		closers = append(closers, store.Close)
	}

	if cfg.AuditDir != "" {
		w, err := audit.NewWriter(cfg.AuditDir, "tradeledger")
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("audit writer: %w", err)
		}
		u.Audit = w
		closers = append(closers, w.Close)
	}

	return u, cleanup, nil
}

func money(d decimal.Decimal) string {
	if d.IsNegative() {
		return "-$" + d.Neg().StringFixed(2)
	}
	return "$" + d.StringFixed(2)
}
