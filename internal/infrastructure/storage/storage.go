// Package storage provides Repository backends for analysis output
// and historical price facts.
package storage

import (
	"context"
	"sync"

	"loanperf/internal/application/port"
	"loanperf/internal/domain"
)

// Memory is the in-process Repository used when no durable backend is
// enabled. It keeps the latest record per position id.
type Memory struct {
	mu         sync.Mutex
	results    map[string]domain.Item
	totals     []domain.PortfolioTotals
	historical map[string]port.HistoricalPrice // dateKey+":"+currency
}

func NewMemory() *Memory {
	return &Memory{
		results:    make(map[string]domain.Item),
		historical: make(map[string]port.HistoricalPrice),
	}
}

func (m *Memory) SaveResult(ctx context.Context, it domain.Item, ts int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results[it.Position.ID] = it
	return nil
}

func (m *Memory) SaveTotals(ctx context.Context, ts int64, t domain.PortfolioTotals) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.totals = append(m.totals, t)
	return nil
}

func (m *Memory) SaveHistoricalPrice(ctx context.Context, dateKey, currency string, price float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.historical[dateKey+":"+currency] = port.HistoricalPrice{DateKey: dateKey, Currency: currency, Price: price}
	return nil
}

func (m *Memory) LoadHistoricalPrices(ctx context.Context) ([]port.HistoricalPrice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]port.HistoricalPrice, 0, len(m.historical))
	for _, h := range m.historical {
		out = append(out, h)
	}
	return out, nil
}

func (m *Memory) Close() error { return nil }

// Results returns the latest persisted record per position.
func (m *Memory) Results() []domain.Item {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Item, 0, len(m.results))
	for _, it := range m.results {
		out = append(out, it)
	}
	return out
}

var _ port.Repository = (*Memory)(nil)
