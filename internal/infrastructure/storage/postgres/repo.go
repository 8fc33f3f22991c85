package postgres

import (
	"context"
	"database/sql"

	_ "github.com/jackc/pgx/v5/stdlib"

	"loanperf/internal/application/port"
	"loanperf/internal/domain"
)

// Repo keeps an append-only history of portfolio snapshots and
// terminal item records in Postgres. Historical price facts stay in
// sqlite; this backend reports none on load.
type Repo struct {
	db *sql.DB
}

func New(dsn string) (*Repo, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)

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
CREATE TABLE IF NOT EXISTS totals_snapshots (
  id BIGSERIAL PRIMARY KEY,
  ts_ms BIGINT NOT NULL,
  total_net DOUBLE PRECISION NOT NULL,
  outperforming_count INT NOT NULL,
  analyzed_count INT NOT NULL,
  total_position_value DOUBLE PRECISION NOT NULL,
  total_positions INT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_totals_ts ON totals_snapshots(ts_ms);

CREATE TABLE IF NOT EXISTS result_events (
  id BIGSERIAL PRIMARY KEY,
  position_id TEXT NOT NULL,
  state TEXT NOT NULL,
  net_result DOUBLE PRECISION,
  fail_reason TEXT,
  ts_ms BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_result_events_pos ON result_events(position_id);
`)
	return err
}

func (r *Repo) SaveResult(ctx context.Context, it domain.Item, ts int64) error {
	var net sql.NullFloat64
	if it.Result != nil {
		net = sql.NullFloat64{Float64: it.Result.NetResult, Valid: true}
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO result_events(position_id, state, net_result, fail_reason, ts_ms)
		VALUES($1, $2, $3, $4, $5)
	`, it.Position.ID, it.State.String(), net, it.Reason, ts)
	return err
}

func (r *Repo) SaveTotals(ctx context.Context, ts int64, t domain.PortfolioTotals) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO totals_snapshots(ts_ms, total_net, outperforming_count,
			analyzed_count, total_position_value, total_positions)
		VALUES($1, $2, $3, $4, $5, $6)
	`, ts, t.TotalNet, t.OutperformingCount, t.AnalyzedCount, t.TotalPositionValue, t.TotalPositions)
	return err
}

func (r *Repo) SaveHistoricalPrice(ctx context.Context, dateKey, currency string, price float64) error {
	return nil
}

func (r *Repo) LoadHistoricalPrices(ctx context.Context) ([]port.HistoricalPrice, error) {
	return nil, nil
}

var _ port.Repository = (*Repo)(nil)
