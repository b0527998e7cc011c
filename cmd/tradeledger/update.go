package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gw/tradeledger/internal/alpaca"
	"github.com/gw/tradeledger/internal/config"
	"github.com/gw/tradeledger/internal/tradelog"
)

var updateOpts updateOptions

var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Fetch recent orders and append new round trips to every ledger",
	Args:  cobra.NoArgs,
	RunE:  runUpdate,
}

func init() {
	rootCmd.AddCommand(updateCmd)
	addUpdateFlags(updateCmd, &updateOpts)
}

func addUpdateFlags(cmd *cobra.Command, opts *updateOptions) {
	cmd.Flags().IntVar(&opts.lookback, "lookback", 0, "lookback window in days (default LOOKBACK_DAYS)")
	cmd.Flags().IntVar(&opts.pageSize, "page-size", 0, "orders per page, at most 500 (default PAGE_SIZE)")
	cmd.Flags().BoolVar(&opts.noMirror, "no-mirror", false, "skip the sqlite mirror")
}

func runUpdate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	src := tradelog.NewAlpacaSource(alpaca.NewClient(cfg))
	u, cleanup, err := newUpdater(cfg, src, updateOpts)
	if err != nil {
		return err
	}
	defer cleanup()

	rep, err := u.Run(cmd.Context())
	if err != nil {
		return fmt.Errorf("update failed: %w", err)
	}

	for _, l := range rep.Ledgers {
		fmt.Printf("%-32s %-8s +%d (%d existing, %d already present)\n",
			l.Path, l.Projection, l.Appended, l.Existing, l.Duplicates)
	}
	fmt.Printf("Update complete: %d filled orders, %d round trips, %d unmatched.\n",
		rep.Filled, rep.Trips, rep.Unmatched)
	return nil
}
