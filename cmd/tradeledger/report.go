package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/gw/tradeledger/internal/config"
	"github.com/gw/tradeledger/internal/tradelog"
)

var tradesCmd = &cobra.Command{
	Use:   "trades [N]",
	Short: "Show the last N round trips from the mirror database (default 50)",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runTrades,
}

var pnlCmd = &cobra.Command{
	Use:   "pnl",
	Short: "Show daily PnL from the mirror database",
	Args:  cobra.NoArgs,
	RunE:  runPnL,
}

var summaryCmd = &cobra.Command{
	Use:   "summary [ledger.csv]",
	Short: "Show trade count, win rate and PnL of a ledger (default: first configured)",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runSummary,
}

func init() {
	rootCmd.AddCommand(tradesCmd, pnlCmd, summaryCmd)
}

func openStore() (*tradelog.Store, error) {
	cfg, err := config.LoadLocal()
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	store, err := tradelog.Open(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening db: %w", err)
	}
	return store, nil
}

func runTrades(cmd *cobra.Command, args []string) error {
	limit := 50
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil || n < 1 {
			return fmt.Errorf("N must be a positive integer, got %q", args[0])
		}
		limit = n
	}

	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	trips, err := store.RecentTrips(cmd.Context(), limit)
	if err != nil {
		return fmt.Errorf("query failed: %w", err)
	}
	if len(trips) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No round trips. Run 'tradeledger update' first.")
		return nil
	}
	printTrips(cmd.OutOrStdout(), trips)
	return nil
}

func printTrips(w io.Writer, trips []tradelog.RoundTrip) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Sold", "Symbol", "Qty", "Buy", "Sell", "PnL", "PnL %", "Buy ID"})
	for _, t := range trips {
		table.Append([]string{
			t.SellTime.UTC().Format("2006-01-02 15:04:05"),
			t.Symbol,
			t.Quantity.String(),
			t.BuyPrice.String(),
			t.SellPrice.String(),
			money(t.PnLAmount),
			t.PnLPercentage.Shift(2).StringFixed(2),
			t.BuyOrderID,
		})
	}
	table.SetCaption(true, fmt.Sprintf("%d round trips", len(trips)))
	table.Render()
}

func runPnL(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	rows, err := store.GetDailyPnL(cmd.Context())
	if err != nil {
		return fmt.Errorf("query failed: %w", err)
	}
	if len(rows) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No PnL data. Run 'tradeledger update' first.")
		return nil
	}
	printDailyPnL(cmd.OutOrStdout(), rows)
	return nil
}

func printDailyPnL(w io.Writer, rows []tradelog.DailyPnL) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Date", "Basis", "Net PnL", "Trades"})
	var totalBasis, totalPnL decimal.Decimal
	totalTrades := 0
	for _, r := range rows {
		basis := decimal.NewFromFloat(r.Basis)
		pnl := decimal.NewFromFloat(r.PnL)
		table.Append([]string{r.Date, money(basis), money(pnl), strconv.Itoa(r.Trades)})
		totalBasis = totalBasis.Add(basis)
		totalPnL = totalPnL.Add(pnl)
		totalTrades += r.Trades
	}
	table.Append([]string{"TOTAL", money(totalBasis), money(totalPnL), strconv.Itoa(totalTrades)})
	table.Render()
}

func runSummary(cmd *cobra.Command, args []string) error {
	var path string
	if len(args) > 0 {
		path = args[0]
	} else {
		cfg, err := config.LoadLocal()
		if err != nil {
			return fmt.Errorf("config: %w", err)
		}
		path = cfg.Ledgers[0].Path
	}

	l, err := tradelog.LoadLedger(path)
	if err != nil {
		return err
	}
	s, err := tradelog.Summarize(l)
	if err != nil {
		return err
	}
	printSummary(cmd.OutOrStdout(), path, s)
	return nil
}

func printSummary(w io.Writer, path string, s tradelog.Summary) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Trades", "Wins", "Win rate", "Total PnL", "Avg PnL"})
	table.Append([]string{
		strconv.Itoa(s.Trades),
		strconv.Itoa(s.Wins),
		fmt.Sprintf("%.1f%%", s.WinRate*100),
		money(s.TotalPnL),
		money(s.AvgPnL),
	})
	table.SetCaption(true, path)
	table.Render()
}
