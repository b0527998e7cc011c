package tradelog

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// LedgerTarget is one ledger file and the projection merged into it.
type LedgerTarget struct {
	Path       string
	Projection Projection
}

// RecordWriter receives one Report per completed cycle.
type RecordWriter interface {
	Write(record any) error
}

// Updater runs update cycles: fetch filled orders over the lookback window,
// pair them into round trips and merge those into every ledger.
//
// Cycles against the same ledgers must not run concurrently.
type Updater struct {
	Source       OrderSource
	Ledgers      []LedgerTarget
	LookbackDays int
	PageSize     int
	Now          func() time.Time

	Store *Store       // optional sqlite mirror
	Audit RecordWriter // optional cycle log
}

// Report summarizes one cycle.
type Report struct {
	Type      string             `json:"type"`
	RunID     string             `json:"run_id"`
	After     time.Time          `json:"after"`
	Until     time.Time          `json:"until"`
	Pages     int                `json:"pages"`
	Closed    int                `json:"closed"`
	Filled    int                `json:"filled"`
	Trips     int                `json:"trips"`
	Dropped   map[DropReason]int `json:"dropped"`
	Unmatched int                `json:"unmatched"`
	Ledgers   []MergeStats       `json:"ledgers"`
	Mirrored  int                `json:"mirrored"`
}

// Run executes one cycle. Every ledger is loaded and merged in memory before
// any is written, so a failure while fetching, matching or merging leaves all
// ledger files as they were.
func (u *Updater) Run(ctx context.Context) (Report, error) {
	now := time.Now
	if u.Now != nil {
		now = u.Now
	}
	until := now().UTC()
	after := until.Add(-time.Duration(u.LookbackDays) * 24 * time.Hour)

	rep := Report{Type: "cycle", RunID: uuid.NewString(), After: after, Until: until}
	log := slog.With("run", rep.RunID)
	log.Info("update cycle starting", "after", after, "until", until, "ledgers", len(u.Ledgers))

	orders, pages, err := FetchFilled(ctx, u.Source, after, until, u.PageSize)
	if err != nil {
		return rep, fmt.Errorf("fetching orders: %w", err)
	}
	rep.Pages, rep.Closed, rep.Filled = pages.Pages, pages.Closed, pages.Filled
	log.Info("fetched orders", "pages", pages.Pages, "closed", pages.Closed, "filled", pages.Filled)

	res := MatchRoundTrips(orders)
	rep.Trips, rep.Dropped, rep.Unmatched = len(res.Trips), res.Dropped, res.Unmatched
	if n := res.DroppedTotal(); n > 0 {
		log.Warn("dropped malformed orders", "count", n, "reasons", res.Dropped)
	}
	log.Info("matched round trips", "trips", len(res.Trips), "unmatched", res.Unmatched)

	ledgers := make([]*Ledger, 0, len(u.Ledgers))
	for _, t := range u.Ledgers {
		l, err := LoadLedger(t.Path)
		if err != nil {
			return rep, err
		}
		stats, err := l.Merge(res.Trips, t.Projection)
		if err != nil {
			return rep, err
		}
		ledgers = append(ledgers, l)
		rep.Ledgers = append(rep.Ledgers, stats)
	}

	for i, l := range ledgers {
		stats := rep.Ledgers[i]
		if stats.Appended == 0 {
			log.Debug("ledger unchanged", "path", l.Path())
			continue
		}
		if err := l.WriteFile(); err != nil {
			return rep, err
		}
		log.Info("ledger updated", "path", l.Path(), "variant", stats.Projection,
			"existing", stats.Existing, "appended", stats.Appended, "duplicates", stats.Duplicates)
	}

	if u.Store != nil {
		n, err := u.Store.Mirror(ctx, orders, res.Trips)
		if err != nil {
			log.Warn("mirroring to store failed", "err", err)
		}
		rep.Mirrored = n
	}

	if u.Audit != nil {
		if err := u.Audit.Write(rep); err != nil {
			log.Warn("writing audit record failed", "err", err)
		}
	}

	return rep, nil
}
