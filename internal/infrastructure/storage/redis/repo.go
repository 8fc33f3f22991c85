package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"loanperf/internal/application/port"
	"loanperf/internal/domain"
)

// Repo mirrors live analysis output into Redis for dashboards: the
// latest record per position in a hash, every terminal transition on a
// stream, and the latest portfolio totals in a single key. Historical
// facts live in sqlite; this backend reports none on load.
type Repo struct {
	rdb *redis.Client

	keyResults  string // prefix + ":results", hash position_id -> json
	keyTotals   string // prefix + ":totals", latest snapshot json
	eventStream string // prefix + ":events"
	ttl         time.Duration
}

type resultRecord struct {
	PositionID string   `json:"position_id"`
	State      string   `json:"state"`
	NetResult  *float64 `json:"net_result,omitempty"`
	Reason     string   `json:"reason,omitempty"`
	Ts         int64    `json:"ts_ms"`
}

func New(rdb *redis.Client, prefix string, ttl time.Duration) *Repo {
	if prefix == "" {
		prefix = "loanperf"
	}
	return &Repo{
		rdb:         rdb,
		keyResults:  prefix + ":results",
		keyTotals:   prefix + ":totals",
		eventStream: prefix + ":events",
		ttl:         ttl,
	}
}

func (r *Repo) SaveResult(ctx context.Context, it domain.Item, ts int64) error {
	rec := resultRecord{
		PositionID: it.Position.ID,
		State:      it.State.String(),
		Reason:     it.Reason,
		Ts:         ts,
	}
	if it.Result != nil {
		net := it.Result.NetResult
		rec.NetResult = &net
	}
	b, _ := json.Marshal(rec)

	pipe := r.rdb.Pipeline()
	pipe.HSet(ctx, r.keyResults, it.Position.ID, string(b))
	if r.ttl > 0 {
		pipe.Expire(ctx, r.keyResults, r.ttl)
	}
	pipe.XAdd(ctx, &redis.XAddArgs{
		Stream: r.eventStream,
		Values: map[string]any{
			"position_id": it.Position.ID,
			"state":       it.State.String(),
			"payload":     string(b),
		},
	})
	_, err := pipe.Exec(ctx)
	return err
}

func (r *Repo) SaveTotals(ctx context.Context, ts int64, t domain.PortfolioTotals) error {
	b, _ := json.Marshal(struct {
		domain.PortfolioTotals
		Ts int64 `json:"ts_ms"`
	}{t, ts})
	return r.rdb.Set(ctx, r.keyTotals, string(b), r.ttl).Err()
}

func (r *Repo) SaveHistoricalPrice(ctx context.Context, dateKey, currency string, price float64) error {
	return nil
}

func (r *Repo) LoadHistoricalPrices(ctx context.Context) ([]port.HistoricalPrice, error) {
	return nil, nil
}

func (r *Repo) Close() error { return r.rdb.Close() }

var _ port.Repository = (*Repo)(nil)
