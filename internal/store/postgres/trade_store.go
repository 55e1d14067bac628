package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/insiderscan/internal/domain"
)

// TradeStore implements domain.TradeStore using PostgreSQL.
type TradeStore struct {
	pool *pgxpool.Pool
}

// NewTradeStore creates a new TradeStore backed by the given connection pool.
func NewTradeStore(pool *pgxpool.Pool) *TradeStore {
	return &TradeStore{pool: pool}
}

const tradeSelectCols = `id, market_id, trader_address, outcome, side,
	price, size_usd, ts, tx_hash, trader_history_count, flag`

func scanTradeRows(rows pgx.Rows) ([]domain.Trade, error) {
	var trades []domain.Trade
	for rows.Next() {
		var t domain.Trade
		var side string
		if err := rows.Scan(
			&t.ID, &t.MarketID, &t.TraderAddress, &t.Outcome, &side,
			&t.Price, &t.SizeUSD, &t.Timestamp, &t.TxHash,
			&t.TraderHistoryCount, &t.Flag,
		); err != nil {
			return nil, err
		}
		t.Side = domain.TradeSide(side)
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// InsertBatch inserts multiple trades efficiently using pgx Batch.
// Duplicate fills (same tx_hash, trader, outcome, side) are silently skipped
// via ON CONFLICT DO NOTHING.
func (s *TradeStore) InsertBatch(ctx context.Context, trades []domain.Trade) error {
	if len(trades) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	const query = `
		INSERT INTO trades (
			market_id, trader_address, outcome, side,
			price, size_usd, ts, tx_hash, trader_history_count, flag
		) VALUES (
			$1, $2, $3, $4,
			$5, $6, $7, $8, $9, $10
		) ON CONFLICT (tx_hash, trader_address, outcome, side) DO NOTHING`

	for _, t := range trades {
		batch.Queue(query,
			t.MarketID, t.TraderAddress, t.Outcome, string(t.Side),
			t.Price, t.SizeUSD, t.Timestamp, t.TxHash,
			t.TraderHistoryCount, t.Flag,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := range trades {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("postgres: insert trade batch item %d: %w", i, err)
		}
	}
	return nil
}

// UpdateFlag sets the detector flag on an already-persisted trade.
func (s *TradeStore) UpdateFlag(ctx context.Context, id int64, flag string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE trades SET flag = $2 WHERE id = $1`, id, flag)
	if err != nil {
		return fmt.Errorf("postgres: update trade %d flag: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: update trade %d flag: %w", id, domain.ErrNotFound)
	}
	return nil
}

// GetLastTimestamp returns the most recent trade timestamp for a market, or
// the zero time if the market has no stored trades.
func (s *TradeStore) GetLastTimestamp(ctx context.Context, marketID string) (time.Time, error) {
	var ts *time.Time
	err := s.pool.QueryRow(ctx,
		"SELECT MAX(ts) FROM trades WHERE market_id = $1", marketID).Scan(&ts)
	if err != nil {
		return time.Time{}, fmt.Errorf("postgres: get last trade timestamp %s: %w", marketID, err)
	}
	if ts == nil {
		return time.Time{}, nil
	}
	return *ts, nil
}

// ListByMarket returns trades for a given market in ascending timestamp
// order, with pagination and optional time filtering.
func (s *TradeStore) ListByMarket(ctx context.Context, marketID string, opts domain.ListOpts) ([]domain.Trade, error) {
	query := `SELECT ` + tradeSelectCols + ` FROM trades WHERE market_id = $1`
	args := []any{marketID}
	argIdx := 2

	if opts.Since != nil {
		query += fmt.Sprintf(" AND ts >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND ts <= $%d", argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}

	query += " ORDER BY ts ASC, id ASC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list trades by market: %w", err)
	}
	defer rows.Close()

	trades, err := scanTradeRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan trades by market: %w", err)
	}
	return trades, nil
}

// ListRecent returns the newest trades across all markets, newest first.
func (s *TradeStore) ListRecent(ctx context.Context, opts domain.ListOpts) ([]domain.Trade, error) {
	query := `SELECT ` + tradeSelectCols + ` FROM trades`
	args := []any{}
	argIdx := 1

	if opts.Since != nil {
		query += fmt.Sprintf(" WHERE ts >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}

	query += " ORDER BY ts DESC, id DESC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list recent trades: %w", err)
	}
	defer rows.Close()

	trades, err := scanTradeRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan recent trades: %w", err)
	}
	return trades, nil
}

// ListBefore returns all trades with a timestamp strictly before the given
// time, oldest first. Used by the cold-storage archiver.
func (s *TradeStore) ListBefore(ctx context.Context, before time.Time) ([]domain.Trade, error) {
	query := `SELECT ` + tradeSelectCols + ` FROM trades WHERE ts < $1 ORDER BY ts ASC, id ASC`
	rows, err := s.pool.Query(ctx, query, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list trades before: %w", err)
	}
	defer rows.Close()
	return scanTradeRows(rows)
}

// CountByTrader returns how many stored fills an address had strictly before
// the given time. Used as a local fallback for account history when the
// upstream activity endpoint is unavailable.
func (s *TradeStore) CountByTrader(ctx context.Context, address string, before time.Time) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM trades WHERE trader_address = $1 AND ts < $2`,
		address, before,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("postgres: count trades by trader %s: %w", address, err)
	}
	return count, nil
}

// Compile-time interface check.
var _ domain.TradeStore = (*TradeStore)(nil)
