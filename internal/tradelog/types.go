package tradelog

import (
	"time"

	"github.com/shopspring/decimal"
)

// Order is a closed order as reported by the broker. Quantity and price
// fields hold the broker's decimal strings and are empty when absent; zero
// times mean the broker did not report the timestamp.
type Order struct {
	ID             string
	Symbol         string
	Side           string // "buy" or "sell"
	Status         string // "filled", "canceled", "expired", ...
	Quantity       string
	FilledQuantity string
	FilledPrice    string
	LimitPrice     string
	SubmittedAt    time.Time
	FilledAt       time.Time
	UpdatedAt      time.Time
}

// Side of a normalized fill.
type Side string

const (
	Buy  Side = "buy"
	Sell Side = "sell"
)

// Fill is an order reduced to what round-trip matching needs.
type Fill struct {
	Symbol   string
	Side     Side
	Quantity decimal.Decimal
	Price    decimal.Decimal
	Time     time.Time
	OrderID  string
}

// RoundTrip is one buy fill closed by a sell fill of the same quantity.
type RoundTrip struct {
	Symbol        string
	Quantity      decimal.Decimal
	BuyPrice      decimal.Decimal
	SellPrice     decimal.Decimal
	BuyTime       time.Time
	SellTime      time.Time
	BuyOrderID    string
	SellOrderID   string
	PnLAmount     decimal.Decimal
	PnLPercentage decimal.Decimal
	Basis         decimal.Decimal
	ReturnOnBasis decimal.Decimal
}

func newRoundTrip(buy, sell Fill) RoundTrip {
	diff := sell.Price.Sub(buy.Price)
	pnl := diff.Mul(buy.Quantity)
	basis := buy.Price.Mul(buy.Quantity)
	return RoundTrip{
		Symbol:        buy.Symbol,
		Quantity:      buy.Quantity,
		BuyPrice:      buy.Price,
		SellPrice:     sell.Price,
		BuyTime:       buy.Time,
		SellTime:      sell.Time,
		BuyOrderID:    buy.OrderID,
		SellOrderID:   sell.OrderID,
		PnLAmount:     pnl,
		PnLPercentage: diff.Div(buy.Price),
		Basis:         basis,
		ReturnOnBasis: pnl.Div(basis),
	}
}

// DailyPnL is a row from the v_daily_pnl view.
type DailyPnL struct {
	Date   string
	PnL    float64
	Basis  float64
	Trades int
}
