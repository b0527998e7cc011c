package tradelog

import (
	"context"
	"os"
	"sort"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2025, 11, 3, 14, 30, 0, 0, time.UTC)

// fakeSource serves a fixed order history the way the broker does: orders
// submitted in [after, until] (until inclusive), newest first, capped at limit.
type fakeSource struct {
	history []Order
	calls   []fakeCall
	failOn  int // 1-based call number that returns err; 0 never fails
	err     error
}

type fakeCall struct {
	after, until time.Time
	limit        int
	returned     int
}

func (s *fakeSource) ClosedOrders(ctx context.Context, after, until time.Time, limit int) ([]Order, error) {
	if s.failOn > 0 && len(s.calls)+1 == s.failOn {
		s.calls = append(s.calls, fakeCall{after: after, until: until, limit: limit})
		return nil, s.err
	}
	var page []Order
	for _, o := range s.history {
		if o.SubmittedAt.Before(after) || o.SubmittedAt.After(until) {
			continue
		}
		page = append(page, o)
	}
	sort.Slice(page, func(i, j int) bool { return page[i].SubmittedAt.After(page[j].SubmittedAt) })
	if len(page) > limit {
		page = page[:limit]
	}
	s.calls = append(s.calls, fakeCall{after: after, until: until, limit: limit, returned: len(page)})
	return page, nil
}

// order builds a closed order submitted at base+min minutes and filled one
// second later.
func order(id, symbol, side, status, qty, price string, min int) Order {
	at := base.Add(time.Duration(min) * time.Minute)
	o := Order{
		ID:          id,
		Symbol:      symbol,
		Side:        side,
		Status:      status,
		Quantity:    qty,
		LimitPrice:  price,
		SubmittedAt: at,
		UpdatedAt:   at.Add(time.Second),
	}
	if status == "filled" {
		o.FilledQuantity = qty
		o.FilledPrice = price
		o.FilledAt = at.Add(time.Second)
	}
	return o
}

func assertDecimal(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.True(t, decimal.RequireFromString(want).Equal(got), "want %s, got %s", want, got.String())
}

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(b)
}
