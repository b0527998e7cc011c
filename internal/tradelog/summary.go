package tradelog

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Summary holds the headline numbers of a ledger.
type Summary struct {
	Trades   int
	Wins     int
	TotalPnL decimal.Decimal
	AvgPnL   decimal.Decimal
	WinRate  float64 // 0..1
}

// Summarize reads the pnl_amount column of l. Both ledger variants carry it.
func Summarize(l *Ledger) (Summary, error) {
	vals, ok := l.Column("pnl_amount")
	if !ok {
		return Summary{}, fmt.Errorf("ledger %s has no pnl_amount column", l.Path())
	}

	var s Summary
	for i, v := range vals {
		pnl, err := decimal.NewFromString(v)
		if err != nil {
			return Summary{}, fmt.Errorf("ledger %s row %d: pnl_amount %q: %w", l.Path(), i+1, v, err)
		}
		s.Trades++
		s.TotalPnL = s.TotalPnL.Add(pnl)
		if pnl.IsPositive() {
			s.Wins++
		}
	}
	if s.Trades > 0 {
		n := decimal.NewFromInt(int64(s.Trades))
		s.AvgPnL = s.TotalPnL.Div(n)
		s.WinRate = float64(s.Wins) / float64(s.Trades)
	}
	return s, nil
}
