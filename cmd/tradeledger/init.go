package main

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/spf13/cobra"

	"github.com/gw/tradeledger/internal/config"
	"github.com/gw/tradeledger/internal/tradelog"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create every configured ledger that does not exist yet",
	Long: `init writes a header-only CSV for each configured ledger that is missing.
Existing files are left untouched. update never creates ledgers on its own.`,
	Args: cobra.NoArgs,
	RunE: runInit,
}

func init() {
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadLocal()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	targets, err := ledgerTargets(cfg)
	if err != nil {
		return err
	}

	for _, t := range targets {
		err := tradelog.InitLedger(t.Path, t.Projection)
		switch {
		case errors.Is(err, fs.ErrExist):
			fmt.Fprintf(cmd.OutOrStdout(), "%-32s exists\n", t.Path)
		case err != nil:
			return err
		default:
			fmt.Fprintf(cmd.OutOrStdout(), "%-32s created (%s)\n", t.Path, t.Projection.Name)
		}
	}
	return nil
}
