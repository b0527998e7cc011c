package tradelog

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// ErrLedgerMissing is returned by LoadLedger when the ledger file does not
// exist. Ledgers are never created implicitly by a merge.
var ErrLedgerMissing = errors.New("ledger file does not exist")

const (
	keyColumn  = "buy_order_id"
	dateLayout = "2006-01-02"
)

// columnValues renders every column a ledger may carry. Times keep only the
// calendar date.
var columnValues = map[string]func(RoundTrip) string{
	"symbol":          func(t RoundTrip) string { return t.Symbol },
	"quantity":        func(t RoundTrip) string { return t.Quantity.String() },
	"buy_price":       func(t RoundTrip) string { return t.BuyPrice.String() },
	"sell_price":      func(t RoundTrip) string { return t.SellPrice.String() },
	"buy_time":        func(t RoundTrip) string { return t.BuyTime.UTC().Format(dateLayout) },
	"sell_time":       func(t RoundTrip) string { return t.SellTime.UTC().Format(dateLayout) },
	"pnl_amount":      func(t RoundTrip) string { return t.PnLAmount.String() },
	"pnl_percentage":  func(t RoundTrip) string { return t.PnLPercentage.String() },
	"buy_order_id":    func(t RoundTrip) string { return t.BuyOrderID },
	"sell_order_id":   func(t RoundTrip) string { return t.SellOrderID },
	"return_on_basis": func(t RoundTrip) string { return t.ReturnOnBasis.String() },
	"basis":           func(t RoundTrip) string { return t.Basis.String() },
}

// Projection is the ordered set of columns one ledger variant publishes.
type Projection struct {
	Name    string
	Columns []string
}

var (
	DetailedProjection = Projection{
		Name: "detailed",
		Columns: []string{
			"quantity", "buy_price", "sell_price", "buy_time", "sell_time",
			"pnl_amount", "pnl_percentage", "buy_order_id", "sell_order_id",
			"return_on_basis", "basis",
		},
	}

	// PublicProjection leaves out symbols, prices and quantities.
	PublicProjection = Projection{
		Name:    "public",
		Columns: []string{"sell_time", "buy_time", "pnl_amount", "pnl_percentage", "basis", keyColumn},
	}
)

// ProjectionByName maps a configured variant to its projection.
func ProjectionByName(name string) (Projection, error) {
	switch name {
	case DetailedProjection.Name:
		return DetailedProjection, nil
	case PublicProjection.Name:
		return PublicProjection, nil
	}
	return Projection{}, fmt.Errorf("unknown ledger variant %q", name)
}

func (p Projection) has(col string) bool {
	for _, c := range p.Columns {
		if c == col {
			return true
		}
	}
	return false
}

// Ledger is an in-memory copy of a CSV ledger file. Rows loaded from disk are
// kept as parsed and only ever appended to.
type Ledger struct {
	path   string
	perm   fs.FileMode
	header []string
	rows   [][]string
	keyCol int
	keys   map[string]bool
}

// MergeStats reports one merge into one ledger.
type MergeStats struct {
	Path       string
	Projection string
	Existing   int
	Appended   int
	Duplicates int
}

func LoadLedger(path string) (*Ledger, error) {
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrLedgerMissing, path)
	}
	if err != nil {
		return nil, fmt.Errorf("stat ledger: %w", err)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read ledger %s: %w", path, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("ledger %s has no header row", path)
	}

	header := records[0]
	header[0] = strings.TrimPrefix(header[0], "\ufeff")

	l := &Ledger{
		path:   path,
		perm:   info.Mode().Perm(),
		header: header,
		rows:   records[1:],
		keyCol: -1,
		keys:   make(map[string]bool, len(records)-1),
	}
	for i, col := range header {
		if strings.TrimSpace(col) == keyColumn {
			l.keyCol = i
		}
	}
	if l.keyCol < 0 {
		return nil, fmt.Errorf("ledger %s has no %s column", path, keyColumn)
	}
	for _, row := range l.rows {
		l.keys[strings.TrimSpace(row[l.keyCol])] = true
	}
	return l, nil
}

// InitLedger writes a header-only ledger for p at path. It refuses to touch
// an existing file.
func InitLedger(path string, p Projection) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating ledger dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return fmt.Errorf("creating ledger: %w", err)
	}
	w := csv.NewWriter(f)
	if err := w.Write(p.Columns); err != nil {
		f.Close()
		return err
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func (l *Ledger) Path() string       { return l.path }
func (l *Ledger) Header() []string   { return l.header }
func (l *Ledger) Rows() [][]string   { return l.rows }
func (l *Ledger) Len() int           { return len(l.rows) }
func (l *Ledger) Has(id string) bool { return l.keys[id] }

// Column returns every value of the named column, or false if the ledger
// does not carry it.
func (l *Ledger) Column(name string) ([]string, bool) {
	idx := -1
	for i, col := range l.header {
		if strings.TrimSpace(col) == name {
			idx = i
		}
	}
	if idx < 0 {
		return nil, false
	}
	vals := make([]string, len(l.rows))
	for i, row := range l.rows {
		vals[i] = row[idx]
	}
	return vals, true
}

// Merge appends the trips whose buy order id is not yet recorded. Cells are
// laid out in the file's header order; header columns outside p stay empty.
func (l *Ledger) Merge(trips []RoundTrip, p Projection) (MergeStats, error) {
	stats := MergeStats{Path: l.path, Projection: p.Name, Existing: len(l.rows)}

	present := make(map[string]bool, len(l.header))
	for _, col := range l.header {
		present[strings.TrimSpace(col)] = true
	}
	for _, col := range p.Columns {
		if !present[col] {
			return stats, fmt.Errorf("ledger %s: header is missing column %q", l.path, col)
		}
	}

	for _, t := range trips {
		if l.keys[t.BuyOrderID] {
			stats.Duplicates++
			continue
		}
		row := make([]string, len(l.header))
		for i, col := range l.header {
			col = strings.TrimSpace(col)
			if render, ok := columnValues[col]; ok && p.has(col) {
				row[i] = render(t)
			}
		}
		l.rows = append(l.rows, row)
		l.keys[t.BuyOrderID] = true
		stats.Appended++
	}
	return stats, nil
}

// WriteFile replaces the ledger file with the in-memory table. The new
// content is written to a temporary file in the same directory and renamed
// over the old one.
func (l *Ledger) WriteFile() error {
	tmp, err := os.CreateTemp(filepath.Dir(l.path), ".ledger-*.csv")
	if err != nil {
		return fmt.Errorf("creating temp ledger: %w", err)
	}
	defer os.Remove(tmp.Name())

	w := csv.NewWriter(tmp)
	if err := w.Write(l.header); err != nil {
		tmp.Close()
		return fmt.Errorf("writing ledger header: %w", err)
	}
	if err := w.WriteAll(l.rows); err != nil {
		tmp.Close()
		return fmt.Errorf("writing ledger rows: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("syncing ledger: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp ledger: %w", err)
	}
	if err := os.Chmod(tmp.Name(), l.perm); err != nil {
		return fmt.Errorf("chmod ledger: %w", err)
	}
	if err := os.Rename(tmp.Name(), l.path); err != nil {
		return fmt.Errorf("replacing ledger: %w", err)
	}
	return nil
}
