package alpaca

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/gw/tradeledger/internal/config"
)

type Client struct {
	keyID   string
	secret  string
	http    *http.Client
	baseURL string
}

func NewClient(cfg *config.Config) *Client {
	return &Client{
		keyID:   cfg.AlpacaKeyID,
		secret:  cfg.AlpacaSecretKey,
		http:    &http.Client{},
		baseURL: cfg.BaseURL(),
	}
}

// --- API Types ---

// Order is the subset of the /v2/orders payload the ledger needs. Numeric
// fields are decimal strings and may be null.
type Order struct {
	ID             string     `json:"id"`
	ClientOrderID  string     `json:"client_order_id"`
	Symbol         string     `json:"symbol"`
	Side           string     `json:"side"`   // "buy" or "sell"
	Type           string     `json:"type"`   // "market", "limit", ...
	Status         string     `json:"status"` // "filled", "canceled", "expired", ...
	Qty            NullString `json:"qty"`
	FilledQty      NullString `json:"filled_qty"`
	FilledAvgPrice NullString `json:"filled_avg_price"`
	LimitPrice     NullString `json:"limit_price"`
	SubmittedAt    *time.Time `json:"submitted_at"`
	FilledAt       *time.Time `json:"filled_at"`
	UpdatedAt      *time.Time `json:"updated_at"`
}

// NullString decodes a JSON string or null. Alpaca sends quantities and
// prices as strings; a bare number is accepted too.
type NullString string

func (s *NullString) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*s = ""
		return nil
	}
	var str string
	if err := json.Unmarshal(b, &str); err == nil {
		*s = NullString(str)
		return nil
	}
	var num json.Number
	if err := json.Unmarshal(b, &num); err != nil {
		return fmt.Errorf("decimal field: %w", err)
	}
	*s = NullString(num.String())
	return nil
}

// --- API Methods ---

// OrderParams specifies filters for ListOrders. After and Until bound the
// submission time; zero values are omitted.
type OrderParams struct {
	Status string // "open", "closed" or "all"
	Limit  int
	After  time.Time
	Until  time.Time
}

// ListOrders returns one page of orders, newest first.
func (c *Client) ListOrders(ctx context.Context, p OrderParams) ([]Order, error) {
	params := url.Values{}
	params.Set("direction", "desc")
	params.Set("nested", "false")
	if p.Status != "" {
		params.Set("status", p.Status)
	}
	if p.Limit > 0 {
		params.Set("limit", strconv.Itoa(p.Limit))
	}
	if !p.After.IsZero() {
		params.Set("after", p.After.UTC().Format(time.RFC3339Nano))
	}
	if !p.Until.IsZero() {
		params.Set("until", p.Until.UTC().Format(time.RFC3339Nano))
	}

	var orders []Order
	if err := c.get(ctx, "/v2/orders", params, &orders); err != nil {
		return nil, err
	}
	return orders, nil
}

// --- HTTP helpers ---

func (c *Client) get(ctx context.Context, path string, params url.Values, out interface{}) error {
	reqURL := c.baseURL + path
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("APCA-API-KEY-ID", c.keyID)
	req.Header.Set("APCA-API-SECRET-KEY", c.secret)
	req.Header.Set("Accept", "application/json")

	return c.doRequest(req, out)
}

func (c *Client) doRequest(req *http.Request, out interface{}) error {
	slog.Debug("alpaca request", "method", req.Method, "url", req.URL.String())

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("alpaca request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return &APIError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	if out != nil {
		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("decoding response: %w (body: %s)", err, string(body))
		}
	}

	return nil
}

// APIError is a non-2xx response from the REST API.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("alpaca API error %d: %s", e.StatusCode, e.Body)
}
