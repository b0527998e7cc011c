package tradelog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// OrderSource lists closed orders (filled, canceled or expired) submitted
// between after and until, newest first, at most limit per call. The until
// bound is inclusive, as the broker's is.
type OrderSource interface {
	ClosedOrders(ctx context.Context, after, until time.Time, limit int) ([]Order, error)
}

// cursorStep is the resolution of broker submission timestamps.
const cursorStep = time.Microsecond

// ErrNoCursor means a full page ended in an order without a submission time,
// so the next page boundary cannot be computed.
var ErrNoCursor = errors.New("oldest order on page has no submission time")

// PageStats describes one pagination walk.
type PageStats struct {
	Pages  int // calls made to the source
	Closed int // closed orders seen, any status
	Filled int // filled orders kept
}

// FetchFilled walks the closed-order history backwards from until to after
// and returns every filled order in that window exactly once.
//
// The next page always ends just before the oldest order of the previous page
// regardless of that order's status. Cursoring on the oldest filled order
// instead would skip filled orders that sit below it on the page.
func FetchFilled(ctx context.Context, src OrderSource, after, until time.Time, limit int) ([]Order, PageStats, error) {
	var stats PageStats
	if limit < 1 {
		return nil, stats, fmt.Errorf("page size must be positive, got %d", limit)
	}

	var filled []Order
	seen := make(map[string]bool)
	cursor := until
	for {
		slog.Debug("fetching closed orders", "after", after, "until", cursor, "limit", limit)
		page, err := src.ClosedOrders(ctx, after, cursor, limit)
		if err != nil {
			return nil, stats, fmt.Errorf("fetching page %d: %w", stats.Pages+1, err)
		}
		stats.Pages++

		if len(page) == 0 {
			break
		}
		stats.Closed += len(page)

		kept := 0
		for _, o := range page {
			if !isFilled(o.Status) || seen[o.ID] {
				continue
			}
			seen[o.ID] = true
			filled = append(filled, o)
			kept++
		}
		slog.Debug("fetched closed orders", "closed", len(page), "filled", kept)

		if len(page) < limit {
			break
		}

		oldest, err := oldestSubmitted(page)
		if err != nil {
			return nil, stats, err
		}
		cursor = oldest.Add(-cursorStep)
		if cursor.Before(after) {
			break
		}
	}

	stats.Filled = len(filled)
	return filled, stats, nil
}

func oldestSubmitted(page []Order) (time.Time, error) {
	var oldest time.Time
	for _, o := range page {
		if o.SubmittedAt.IsZero() {
			return time.Time{}, fmt.Errorf("%w (order %s)", ErrNoCursor, o.ID)
		}
		if oldest.IsZero() || o.SubmittedAt.Before(oldest) {
			oldest = o.SubmittedAt
		}
	}
	return oldest, nil
}

// isFilled accepts "filled" as well as enum renderings like "OrderStatus.FILLED".
func isFilled(status string) bool {
	return enumValue(status) == "filled"
}
