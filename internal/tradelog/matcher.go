package tradelog

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// DropReason says why an order never reached pairing.
type DropReason string

const (
	DropMissingField DropReason = "missing_field"
	DropBadSide      DropReason = "bad_side"
	DropBadNumber    DropReason = "bad_number"
	DropNonPositive  DropReason = "non_positive"
)

// MatchResult is the output of MatchRoundTrips. Dropped and Unmatched count
// the fills that produced no round trip; neither is an error.
type MatchResult struct {
	Trips     []RoundTrip
	Dropped   map[DropReason]int
	Unmatched int
}

// DroppedTotal is the number of orders rejected by Normalize.
func (r MatchResult) DroppedTotal() int {
	n := 0
	for _, c := range r.Dropped {
		n += c
	}
	return n
}

// Normalize reduces an order to a Fill. Quantity falls back from the filled
// quantity to the requested one, price from the average fill price to the
// limit price and time from the fill time to the last update.
func Normalize(o Order) (Fill, DropReason, bool) {
	qtyStr := coalesce(o.FilledQuantity, o.Quantity)
	priceStr := coalesce(o.FilledPrice, o.LimitPrice)
	at := o.FilledAt
	if at.IsZero() {
		at = o.UpdatedAt
	}
	if o.ID == "" || o.Symbol == "" || o.Side == "" || qtyStr == "" || priceStr == "" || at.IsZero() {
		return Fill{}, DropMissingField, false
	}

	var side Side
	switch enumValue(o.Side) {
	case "buy":
		side = Buy
	case "sell":
		side = Sell
	default:
		return Fill{}, DropBadSide, false
	}

	qty, err := decimal.NewFromString(qtyStr)
	if err != nil {
		return Fill{}, DropBadNumber, false
	}
	price, err := decimal.NewFromString(priceStr)
	if err != nil {
		return Fill{}, DropBadNumber, false
	}
	if !qty.IsPositive() || !price.IsPositive() {
		return Fill{}, DropNonPositive, false
	}

	return Fill{
		Symbol:   o.Symbol,
		Side:     side,
		Quantity: qty,
		Price:    price,
		Time:     at,
		OrderID:  o.ID,
	}, "", true
}

// MatchRoundTrips pairs filled orders into round trips per symbol.
//
// Each symbol's fills are sorted by time (then order id) and scanned with a
// two-fill window. A buy followed by a sell of exactly the same quantity
// becomes a round trip and both fills are consumed; anything else moves the
// window forward by one fill. This assumes one full entry and one full exit
// per position: scaling in or out, overlapping lots and short entries are
// never paired.
func MatchRoundTrips(orders []Order) MatchResult {
	res := MatchResult{Dropped: make(map[DropReason]int)}

	bySymbol := make(map[string][]Fill)
	for _, o := range orders {
		f, reason, ok := Normalize(o)
		if !ok {
			res.Dropped[reason]++
			continue
		}
		bySymbol[f.Symbol] = append(bySymbol[f.Symbol], f)
	}

	symbols := make([]string, 0, len(bySymbol))
	for s := range bySymbol {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)

	for _, sym := range symbols {
		fills := bySymbol[sym]
		sortFills(fills)
		trips, unmatched := pairFills(fills)
		res.Trips = append(res.Trips, trips...)
		res.Unmatched += unmatched
	}
	return res
}

func sortFills(fills []Fill) {
	sort.Slice(fills, func(i, j int) bool {
		if !fills[i].Time.Equal(fills[j].Time) {
			return fills[i].Time.Before(fills[j].Time)
		}
		return fills[i].OrderID < fills[j].OrderID
	})
}

type stepKind int

const (
	skippedOne stepKind = iota
	paired
)

// step is the outcome of looking at one (entry, exit) window.
type step struct {
	kind stepKind
	trip RoundTrip
}

func pairStep(entry, exit Fill) step {
	if entry.Side != Buy || exit.Side != Sell {
		return step{kind: skippedOne}
	}
	if !entry.Quantity.Equal(exit.Quantity) {
		return step{kind: skippedOne}
	}
	return step{kind: paired, trip: newRoundTrip(entry, exit)}
}

// pairFills scans time-ordered fills of one symbol. Trailing fills that
// never pair (an open position, for one) count as unmatched.
func pairFills(fills []Fill) ([]RoundTrip, int) {
	var trips []RoundTrip
	unmatched := 0
	i := 0
	for i+1 < len(fills) {
		s := pairStep(fills[i], fills[i+1])
		switch s.kind {
		case paired:
			trips = append(trips, s.trip)
			i += 2
		case skippedOne:
			unmatched++
			i++
		}
	}
	unmatched += len(fills) - i
	return trips, unmatched
}

func coalesce(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

// enumValue lowercases s and strips an enum type prefix ("OrderSide.BUY").
func enumValue(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if i := strings.LastIndexByte(s, '.'); i >= 0 {
		s = s[i+1:]
	}
	return s
}
