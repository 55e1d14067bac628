package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// MarketStore persists market metadata.
type MarketStore interface {
	Upsert(ctx context.Context, market Market) error
	UpsertBatch(ctx context.Context, markets []Market) error
	GetByID(ctx context.Context, id string) (Market, error)
	GetBySlug(ctx context.Context, slug string) (Market, error)
	ListActive(ctx context.Context, opts ListOpts) ([]Market, error)
	ListResolved(ctx context.Context, since time.Time, opts ListOpts) ([]Market, error)
	Count(ctx context.Context) (int64, error)
}

// TradeStore persists normalized trade fills.
type TradeStore interface {
	InsertBatch(ctx context.Context, trades []Trade) error
	UpdateFlag(ctx context.Context, id int64, flag string) error
	GetLastTimestamp(ctx context.Context, marketID string) (time.Time, error)
	ListByMarket(ctx context.Context, marketID string, opts ListOpts) ([]Trade, error)
	ListRecent(ctx context.Context, opts ListOpts) ([]Trade, error)
	CountByTrader(ctx context.Context, address string, before time.Time) (int64, error)
}

// SignalStore persists scored signals.
type SignalStore interface {
	Insert(ctx context.Context, sig Signal) error
	ListRecent(ctx context.Context, opts ListOpts) ([]Signal, error)
	ListByMarket(ctx context.Context, marketID string, opts ListOpts) ([]Signal, error)
}

// BacktestStore persists backtest records and run summaries.
type BacktestStore interface {
	InsertRecord(ctx context.Context, rec BacktestRecord) error
	InsertSummary(ctx context.Context, sum BacktestSummary) error
	ListRecords(ctx context.Context, runID string, opts ListOpts) ([]BacktestRecord, error)
	GetSummary(ctx context.Context, runID string) (BacktestSummary, error)
	ListSummaries(ctx context.Context, opts ListOpts) ([]BacktestSummary, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}
