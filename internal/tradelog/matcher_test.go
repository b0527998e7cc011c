package tradelog

import (
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatchSingleRoundTrip(t *testing.T) {
	res := MatchRoundTrips([]Order{
		order("b1", "X", "buy", "filled", "10", "100", 0),
		order("s1", "X", "sell", "filled", "10", "110", 60),
	})

	require.Len(t, res.Trips, 1)
	trip := res.Trips[0]
	assert.Equal(t, "X", trip.Symbol)
	assert.Equal(t, "b1", trip.BuyOrderID)
	assert.Equal(t, "s1", trip.SellOrderID)
	assertDecimal(t, "10", trip.Quantity)
	assertDecimal(t, "100", trip.BuyPrice)
	assertDecimal(t, "110", trip.SellPrice)
	assertDecimal(t, "100", trip.PnLAmount)
	assertDecimal(t, "0.1", trip.PnLPercentage)
	assertDecimal(t, "1000", trip.Basis)
	assertDecimal(t, "0.1", trip.ReturnOnBasis)
	assert.True(t, trip.BuyTime.Before(trip.SellTime))
	assert.Zero(t, res.Unmatched)
	assert.Zero(t, res.DroppedTotal())
}

func TestMatchLosingTrade(t *testing.T) {
	res := MatchRoundTrips([]Order{
		order("s1", "Z", "sell", "filled", "4", "47.5", 60),
		order("b1", "Z", "buy", "filled", "4", "50", 0),
	})

	require.Len(t, res.Trips, 1)
	assertDecimal(t, "-10", res.Trips[0].PnLAmount)
	assertDecimal(t, "-0.05", res.Trips[0].PnLPercentage)
	assertDecimal(t, "200", res.Trips[0].Basis)
	assertDecimal(t, "-0.05", res.Trips[0].ReturnOnBasis)
}

func TestMatchScaledEntryNeverPairs(t *testing.T) {
	res := MatchRoundTrips([]Order{
		order("b1", "Y", "buy", "filled", "10", "100", 0),
		order("b2", "Y", "buy", "filled", "5", "100", 1),
		order("s1", "Y", "sell", "filled", "10", "105", 2),
	})

	assert.Empty(t, res.Trips)
	assert.Equal(t, 3, res.Unmatched)
}

// A larger earlier buy is passed over in favour of the adjacent buy whose
// quantity matches the sell.
func TestMatchPairsAdjacentLegsOnly(t *testing.T) {
	res := MatchRoundTrips([]Order{
		order("b1", "Y", "buy", "filled", "10", "100", 0),
		order("b2", "Y", "buy", "filled", "5", "101", 1),
		order("s1", "Y", "sell", "filled", "5", "102", 2),
	})

	require.Len(t, res.Trips, 1)
	assert.Equal(t, "b2", res.Trips[0].BuyOrderID)
	assert.Equal(t, 1, res.Unmatched)
}

func TestMatchOpenPositionIsNotReported(t *testing.T) {
	res := MatchRoundTrips([]Order{
		order("b1", "X", "buy", "filled", "1", "10", 0),
		order("s1", "X", "sell", "filled", "1", "11", 1),
		order("b2", "X", "buy", "filled", "1", "12", 2),
	})

	require.Len(t, res.Trips, 1)
	assert.Equal(t, "b1", res.Trips[0].BuyOrderID)
	assert.Equal(t, 1, res.Unmatched)
}

func TestMatchSellFirstIsSkipped(t *testing.T) {
	res := MatchRoundTrips([]Order{
		order("s0", "X", "sell", "filled", "1", "10", 0),
		order("b1", "X", "buy", "filled", "1", "10", 1),
		order("s1", "X", "sell", "filled", "1", "12", 2),
	})

	require.Len(t, res.Trips, 1)
	assert.Equal(t, "b1", res.Trips[0].BuyOrderID)
	assert.Equal(t, "s1", res.Trips[0].SellOrderID)
}

func TestMatchGroupsBySymbol(t *testing.T) {
	res := MatchRoundTrips([]Order{
		order("mb", "MSFT", "buy", "filled", "2", "400", 0),
		order("ab", "AAPL", "buy", "filled", "3", "190", 1),
		order("ms", "MSFT", "sell", "filled", "2", "410", 2),
		order("as", "AAPL", "sell", "filled", "3", "185", 3),
	})

	require.Len(t, res.Trips, 2)
	assert.Equal(t, "AAPL", res.Trips[0].Symbol)
	assert.Equal(t, "MSFT", res.Trips[1].Symbol)
	assertDecimal(t, "-15", res.Trips[0].PnLAmount)
	assertDecimal(t, "20", res.Trips[1].PnLAmount)
}

func TestMatchQuantityComparedAsDecimal(t *testing.T) {
	buy := order("b1", "X", "buy", "filled", "10.0", "1", 0)
	sell := order("s1", "X", "sell", "filled", "10", "2", 1)

	res := MatchRoundTrips([]Order{buy, sell})
	assert.Len(t, res.Trips, 1)
}

func TestMatchDeterministic(t *testing.T) {
	orders := randomFills(rand.New(rand.NewSource(7)), 200)
	want := tripKeys(MatchRoundTrips(orders).Trips)
	require.NotEmpty(t, want)

	rng := rand.New(rand.NewSource(99))
	for i := 0; i < 5; i++ {
		shuffled := append([]Order(nil), orders...)
		rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })
		assert.Equal(t, want, tripKeys(MatchRoundTrips(shuffled).Trips))
	}
}

func TestMatchExactness(t *testing.T) {
	orders := randomFills(rand.New(rand.NewSource(3)), 300)
	bySide := make(map[string]string)
	for _, o := range orders {
		bySide[o.ID] = o.Side
	}

	res := MatchRoundTrips(orders)
	used := make(map[string]bool)
	for _, trip := range res.Trips {
		assert.Equal(t, "buy", bySide[trip.BuyOrderID])
		assert.Equal(t, "sell", bySide[trip.SellOrderID])
		assert.False(t, trip.SellTime.Before(trip.BuyTime), "sell before buy in %s", trip.BuyOrderID)
		assert.False(t, used[trip.BuyOrderID] || used[trip.SellOrderID], "fill reused in %s", trip.BuyOrderID)
		used[trip.BuyOrderID] = true
		used[trip.SellOrderID] = true
	}
	assert.Equal(t, len(orders), 2*len(res.Trips)+res.Unmatched)
}

func TestNormalize(t *testing.T) {
	filledAt := base.Add(time.Minute)

	t.Run("uses fill data", func(t *testing.T) {
		f, _, ok := Normalize(Order{
			ID: "1", Symbol: "X", Side: "buy", Quantity: "10", FilledQuantity: "8",
			FilledPrice: "9.5", LimitPrice: "10", FilledAt: filledAt, UpdatedAt: filledAt.Add(time.Hour),
		})
		require.True(t, ok)
		assert.Equal(t, Buy, f.Side)
		assertDecimal(t, "8", f.Quantity)
		assertDecimal(t, "9.5", f.Price)
		assert.Equal(t, filledAt, f.Time)
	})

	t.Run("falls back to requested data", func(t *testing.T) {
		f, _, ok := Normalize(Order{
			ID: "1", Symbol: "X", Side: "OrderSide.SELL", Quantity: "10",
			LimitPrice: "10", UpdatedAt: filledAt,
		})
		require.True(t, ok)
		assert.Equal(t, Sell, f.Side)
		assertDecimal(t, "10", f.Quantity)
		assertDecimal(t, "10", f.Price)
		assert.Equal(t, filledAt, f.Time)
	})

	good := Order{ID: "1", Symbol: "X", Side: "buy", FilledQuantity: "1", FilledPrice: "1", FilledAt: filledAt}
	tests := []struct {
		name   string
		mutate func(*Order)
		want   DropReason
	}{
		{"no id", func(o *Order) { o.ID = "" }, DropMissingField},
		{"no symbol", func(o *Order) { o.Symbol = "" }, DropMissingField},
		{"no side", func(o *Order) { o.Side = "" }, DropMissingField},
		{"no quantity", func(o *Order) { o.FilledQuantity = "" }, DropMissingField},
		{"no price", func(o *Order) { o.FilledPrice = "" }, DropMissingField},
		{"no time", func(o *Order) { o.FilledAt = time.Time{} }, DropMissingField},
		{"short side", func(o *Order) { o.Side = "sell_short" }, DropBadSide},
		{"bad quantity", func(o *Order) { o.FilledQuantity = "ten" }, DropBadNumber},
		{"bad price", func(o *Order) { o.FilledPrice = "1,5" }, DropBadNumber},
		{"zero quantity", func(o *Order) { o.FilledQuantity = "0" }, DropNonPositive},
		{"negative price", func(o *Order) { o.FilledPrice = "-1" }, DropNonPositive},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := good
			tt.mutate(&o)
			_, reason, ok := Normalize(o)
			assert.False(t, ok)
			assert.Equal(t, tt.want, reason)
		})
	}
}

func TestMatchCountsDrops(t *testing.T) {
	bad := order("x", "X", "hold", "filled", "1", "1", 0)
	zero := order("z", "X", "buy", "filled", "0", "1", 1)

	res := MatchRoundTrips([]Order{bad, zero})
	assert.Empty(t, res.Trips)
	assert.Equal(t, map[DropReason]int{DropBadSide: 1, DropNonPositive: 1}, res.Dropped)
	assert.Equal(t, 2, res.DroppedTotal())
}

func TestPairStep(t *testing.T) {
	f := func(side Side, qty string) Fill {
		return Fill{Symbol: "X", Side: side, Quantity: decimal.RequireFromString(qty), Price: decimal.NewFromInt(1), OrderID: string(side)}
	}

	assert.Equal(t, paired, pairStep(f(Buy, "1"), f(Sell, "1")).kind)
	assert.Equal(t, skippedOne, pairStep(f(Buy, "1"), f(Buy, "1")).kind)
	assert.Equal(t, skippedOne, pairStep(f(Sell, "1"), f(Sell, "1")).kind)
	assert.Equal(t, skippedOne, pairStep(f(Sell, "1"), f(Buy, "1")).kind)
	assert.Equal(t, skippedOne, pairStep(f(Buy, "2"), f(Sell, "1")).kind)
}

// randomFills generates filled orders over a few symbols with mostly clean
// buy/sell alternation and some noise.
func randomFills(rng *rand.Rand, n int) []Order {
	symbols := []string{"AAPL", "MSFT", "NVDA", "TSLA"}
	qtys := []string{"1", "5", "10"}
	var out []Order
	for i := 0; i < n; i++ {
		side := "buy"
		if rng.Intn(2) == 1 {
			side = "sell"
		}
		price := fmt.Sprintf("%d.%02d", 50+rng.Intn(100), rng.Intn(100))
		out = append(out, order(fmt.Sprintf("o%03d", i), symbols[rng.Intn(len(symbols))], side, "filled",
			qtys[rng.Intn(len(qtys))], price, rng.Intn(n/2)))
	}
	return out
}

func tripKeys(trips []RoundTrip) []string {
	out := make([]string, len(trips))
	for i, t := range trips {
		out[i] = fmt.Sprintf("%s %s>%s %s %s %s", t.Symbol, t.BuyOrderID, t.SellOrderID, t.Quantity, t.PnLAmount, t.ReturnOnBasis)
	}
	return out
}
