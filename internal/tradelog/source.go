package tradelog

import (
	"context"
	"time"

	"github.com/gw/tradeledger/internal/alpaca"
)

// AlpacaSource serves closed orders from the Alpaca REST API.
type AlpacaSource struct {
	client *alpaca.Client
}

func NewAlpacaSource(client *alpaca.Client) *AlpacaSource {
	return &AlpacaSource{client: client}
}

func (s *AlpacaSource) ClosedOrders(ctx context.Context, after, until time.Time, limit int) ([]Order, error) {
	orders, err := s.client.ListOrders(ctx, alpaca.OrderParams{
		Status: "closed",
		Limit:  limit,
		After:  after,
		Until:  until,
	})
	if err != nil {
		return nil, err
	}
	local := make([]Order, 0, len(orders))
	for _, o := range orders {
		local = append(local, alpacaOrderToLocal(o))
	}
	return local, nil
}

func timeOrZero(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return t.UTC()
}

func alpacaOrderToLocal(o alpaca.Order) Order {
	return Order{
		ID:             o.ID,
		Symbol:         o.Symbol,
		Side:           o.Side,
		Status:         o.Status,
		Quantity:       string(o.Qty),
		FilledQuantity: string(o.FilledQty),
		FilledPrice:    string(o.FilledAvgPrice),
		LimitPrice:     string(o.LimitPrice),
		SubmittedAt:    timeOrZero(o.SubmittedAt),
		FilledAt:       timeOrZero(o.FilledAt),
		UpdatedAt:      timeOrZero(o.UpdatedAt),
	}
}
