package portfolio

// Schema is the DDL for the portfolio database. Decimal columns are stored as
// TEXT so user-entered quantities and prices round-trip exactly.
const Schema = `
CREATE TABLE IF NOT EXISTS holdings (
	id TEXT PRIMARY KEY,
	portfolio_id TEXT NOT NULL,
	symbol TEXT NOT NULL,
	asset_type TEXT NOT NULL,
	quantity TEXT NOT NULL,
	avg_cost TEXT NOT NULL,
	manual_price TEXT,
	purchase_date TEXT,
	last_price_update TEXT
);
CREATE INDEX IF NOT EXISTS idx_holdings_portfolio ON holdings(portfolio_id);

CREATE TABLE IF NOT EXISTS transactions (
	id TEXT PRIMARY KEY,
	portfolio_id TEXT NOT NULL,
	symbol TEXT NOT NULL,
	type TEXT NOT NULL,
	quantity TEXT NOT NULL,
	price TEXT NOT NULL,
	date TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_transactions_portfolio ON transactions(portfolio_id, date);
`
