package sqlite

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"loanperf/internal/application/port"
	"loanperf/internal/domain"
)

type Repo struct {
	db *sql.DB
}

func New(path string) (*Repo, error) {
	// ensure directory exists
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		_ = os.MkdirAll(dir, 0o755)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	r := &Repo{db: db}
	if err := r.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return r, nil
}

func (r *Repo) Close() error { return r.db.Close() }

func (r *Repo) migrate(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS results (
  position_id TEXT PRIMARY KEY,
  currency TEXT NOT NULL,
  principal REAL NOT NULL,
  state TEXT NOT NULL,
  net_result REAL,
  btc_value_change REAL,
  interest_cost REAL,
  outperforming INTEGER,
  historical_price REAL,
  current_price REAL,
  fail_reason TEXT,
  ts_ms INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_results_state ON results(state);

CREATE TABLE IF NOT EXISTS totals_snapshots (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  ts_ms INTEGER NOT NULL,
  total_net REAL NOT NULL,
  outperforming_count INTEGER NOT NULL,
  analyzed_count INTEGER NOT NULL,
  total_position_value REAL NOT NULL,
  total_positions INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_totals_ts ON totals_snapshots(ts_ms);

CREATE TABLE IF NOT EXISTS historical_prices (
  date_key TEXT NOT NULL,
  currency TEXT NOT NULL,
  price REAL NOT NULL,
  UNIQUE(date_key, currency)
);
`)
	return err
}

func (r *Repo) SaveResult(ctx context.Context, it domain.Item, ts int64) error {
	var (
		netResult, valueChange, interestCost sql.NullFloat64
		histPrice, currPrice                 sql.NullFloat64
		outperforming                        sql.NullBool
	)
	if it.Result != nil {
		netResult = sql.NullFloat64{Float64: it.Result.NetResult, Valid: true}
		valueChange = sql.NullFloat64{Float64: it.Result.BTCValueChange, Valid: true}
		interestCost = sql.NullFloat64{Float64: it.Result.InterestCost, Valid: true}
		histPrice = sql.NullFloat64{Float64: it.Result.HistoricalPrice, Valid: true}
		currPrice = sql.NullFloat64{Float64: it.Result.CurrentPrice, Valid: true}
		outperforming = sql.NullBool{Bool: it.Result.Outperforming, Valid: true}
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO results(position_id, currency, principal, state, net_result,
			btc_value_change, interest_cost, outperforming, historical_price,
			current_price, fail_reason, ts_ms)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(position_id) DO UPDATE SET
		state=excluded.state, net_result=excluded.net_result,
		btc_value_change=excluded.btc_value_change, interest_cost=excluded.interest_cost,
		outperforming=excluded.outperforming, historical_price=excluded.historical_price,
		current_price=excluded.current_price, fail_reason=excluded.fail_reason,
		ts_ms=excluded.ts_ms
	`, it.Position.ID, it.Position.Currency, it.Position.Principal, it.State.String(),
		netResult, valueChange, interestCost, outperforming, histPrice, currPrice,
		it.Reason, ts)
	return err
}

func (r *Repo) SaveTotals(ctx context.Context, ts int64, t domain.PortfolioTotals) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO totals_snapshots(ts_ms, total_net, outperforming_count,
			analyzed_count, total_position_value, total_positions)
		VALUES(?, ?, ?, ?, ?, ?)
	`, ts, t.TotalNet, t.OutperformingCount, t.AnalyzedCount, t.TotalPositionValue, t.TotalPositions)
	return err
}

func (r *Repo) SaveHistoricalPrice(ctx context.Context, dateKey, currency string, price float64) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO historical_prices(date_key, currency, price)
		VALUES(?, ?, ?)
		ON CONFLICT(date_key, currency) DO NOTHING
	`, dateKey, currency, price)
	return err
}

func (r *Repo) LoadHistoricalPrices(ctx context.Context) ([]port.HistoricalPrice, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT date_key, currency, price FROM historical_prices`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []port.HistoricalPrice
	for rows.Next() {
		var h port.HistoricalPrice
		if err := rows.Scan(&h.DateKey, &h.Currency, &h.Price); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// LatestTotals returns the most recent persisted portfolio snapshot.
func (r *Repo) LatestTotals(ctx context.Context) (domain.PortfolioTotals, bool, error) {
	var t domain.PortfolioTotals
	err := r.db.QueryRowContext(ctx, `
		SELECT total_net, outperforming_count, analyzed_count,
			total_position_value, total_positions
		FROM totals_snapshots ORDER BY id DESC LIMIT 1
	`).Scan(&t.TotalNet, &t.OutperformingCount, &t.AnalyzedCount, &t.TotalPositionValue, &t.TotalPositions)
	if err == sql.ErrNoRows {
		return t, false, nil
	}
	if err != nil {
		return t, false, err
	}
	return t, true, nil
}

var _ port.Repository = (*Repo)(nil)
