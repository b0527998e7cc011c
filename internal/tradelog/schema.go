package tradelog

const schemaDDL = `
CREATE TABLE IF NOT EXISTS orders (
	order_id        TEXT PRIMARY KEY,
	symbol          TEXT NOT NULL,
	side            TEXT NOT NULL,
	status          TEXT NOT NULL DEFAULT '',
	quantity        TEXT NOT NULL DEFAULT '',
	filled_quantity TEXT NOT NULL DEFAULT '',
	filled_price    TEXT NOT NULL DEFAULT '',
	limit_price     TEXT NOT NULL DEFAULT '',
	submitted_at    DATETIME NOT NULL,
	filled_at       DATETIME,
	updated_at      DATETIME
);

CREATE INDEX IF NOT EXISTS idx_orders_symbol ON orders(symbol);
CREATE INDEX IF NOT EXISTS idx_orders_submitted ON orders(submitted_at);

CREATE TABLE IF NOT EXISTS round_trips (
	buy_order_id    TEXT PRIMARY KEY,
	sell_order_id   TEXT NOT NULL,
	symbol          TEXT NOT NULL,
	quantity        TEXT NOT NULL,
	buy_price       TEXT NOT NULL,
	sell_price      TEXT NOT NULL,
	buy_time        DATETIME NOT NULL,
	sell_time       DATETIME NOT NULL,
	sell_date       TEXT NOT NULL,
	pnl_amount      TEXT NOT NULL,
	pnl_percentage  TEXT NOT NULL,
	basis           TEXT NOT NULL,
	return_on_basis TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_round_trips_symbol ON round_trips(symbol);
CREATE INDEX IF NOT EXISTS idx_round_trips_sell ON round_trips(sell_time);

CREATE VIEW IF NOT EXISTS v_daily_pnl AS
SELECT
	sell_date AS date,
	SUM(CAST(pnl_amount AS REAL)) AS pnl,
	SUM(CAST(basis AS REAL)) AS basis,
	COUNT(*) AS trades
FROM round_trips
GROUP BY sell_date
ORDER BY date;
`
