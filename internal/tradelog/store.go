package tradelog

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Store mirrors fetched orders and matched round trips into sqlite so they
// can be queried without re-reading the CSV ledgers.
type Store struct {
	db *sql.DB
}

func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("creating db dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening db: %w", err)
	}

	// WAL mode for concurrent reads
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting WAL mode: %w", err)
	}

	// Run schema migration
	if _, err := db.Exec(schemaDDL); err != nil {
		db.Close()
		return nil, fmt.Errorf("schema migration: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Mirror records one update cycle's orders and round trips in a single
// transaction. Orders are upserted; round trips already present are left
// untouched. It returns the number of new round trips.
func (s *Store) Mirror(ctx context.Context, orders []Order, trips []RoundTrip) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	for i := range orders {
		if err := upsertOrder(ctx, tx, &orders[i]); err != nil {
			return 0, fmt.Errorf("upsert order %s: %w", orders[i].ID, err)
		}
	}
	inserted := 0
	for i := range trips {
		ok, err := insertRoundTrip(ctx, tx, &trips[i])
		if err != nil {
			return 0, fmt.Errorf("insert round trip %s: %w", trips[i].BuyOrderID, err)
		}
		if ok {
			inserted++
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return inserted, nil
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC()
}

func upsertOrder(ctx context.Context, tx *sql.Tx, o *Order) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO orders (order_id, symbol, side, status, quantity, filled_quantity,
			filled_price, limit_price, submitted_at, filled_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(order_id) DO UPDATE SET
			status = excluded.status,
			filled_quantity = excluded.filled_quantity,
			filled_price = excluded.filled_price,
			filled_at = excluded.filled_at,
			updated_at = excluded.updated_at`,
		o.ID, o.Symbol, o.Side, o.Status, o.Quantity, o.FilledQuantity,
		o.FilledPrice, o.LimitPrice, o.SubmittedAt.UTC(), nullTime(o.FilledAt), nullTime(o.UpdatedAt),
	)
	return err
}

func insertRoundTrip(ctx context.Context, tx *sql.Tx, t *RoundTrip) (bool, error) {
	res, err := tx.ExecContext(ctx, `
		INSERT OR IGNORE INTO round_trips (buy_order_id, sell_order_id, symbol, quantity,
			buy_price, sell_price, buy_time, sell_time, sell_date, pnl_amount,
			pnl_percentage, basis, return_on_basis)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.BuyOrderID, t.SellOrderID, t.Symbol, t.Quantity.String(),
		t.BuyPrice.String(), t.SellPrice.String(), t.BuyTime.UTC(), t.SellTime.UTC(),
		t.SellTime.UTC().Format(dateLayout), t.PnLAmount.String(),
		t.PnLPercentage.String(), t.Basis.String(), t.ReturnOnBasis.String(),
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (s *Store) CountRoundTrips(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM round_trips`).Scan(&n)
	return n, err
}

func (s *Store) GetDailyPnL(ctx context.Context) ([]DailyPnL, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT date, pnl, basis, trades FROM v_daily_pnl`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []DailyPnL
	for rows.Next() {
		var d DailyPnL
		if err := rows.Scan(&d.Date, &d.PnL, &d.Basis, &d.Trades); err != nil {
			return nil, err
		}
		results = append(results, d)
	}
	return results, rows.Err()
}

func (s *Store) RecentTrips(ctx context.Context, limit int) ([]RoundTrip, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT buy_order_id, sell_order_id, symbol, quantity, buy_price, sell_price,
			buy_time, sell_time, pnl_amount, pnl_percentage, basis, return_on_basis
		FROM round_trips ORDER BY sell_time DESC, buy_order_id LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []RoundTrip
	for rows.Next() {
		var t RoundTrip
		if err := rows.Scan(&t.BuyOrderID, &t.SellOrderID, &t.Symbol, &t.Quantity,
			&t.BuyPrice, &t.SellPrice, &t.BuyTime, &t.SellTime, &t.PnLAmount,
			&t.PnLPercentage, &t.Basis, &t.ReturnOnBasis); err != nil {
			return nil, err
		}
		results = append(results, t)
	}
	return results, rows.Err()
}
