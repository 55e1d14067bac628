package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/insiderscan/internal/domain"
)

// SignalStore implements domain.SignalStore using PostgreSQL. Indicator
// scores and the top-trader breakdown are stored as JSONB.
type SignalStore struct {
	pool *pgxpool.Pool
}

// NewSignalStore creates a new SignalStore backed by the given connection pool.
func NewSignalStore(pool *pgxpool.Pool) *SignalStore {
	return &SignalStore{pool: pool}
}

// Insert persists one scored signal.
func (s *SignalStore) Insert(ctx context.Context, sig domain.Signal) error {
	scores, err := json.Marshal(sig.Scores)
	if err != nil {
		return fmt.Errorf("postgres: marshal signal scores: %w", err)
	}
	topAddrs, err := json.Marshal(sig.TopAddresses)
	if err != nil {
		return fmt.Errorf("postgres: marshal signal top addresses: %w", err)
	}

	const query = `
		INSERT INTO signals (
			id, market_id, question, evaluated_at,
			insider_probability, risk_score, scores, implied_direction,
			top_addresses, trade_count, total_volume_usd, dropped_trades
		) VALUES (
			$1, $2, $3, $4,
			$5, $6, $7, $8,
			$9, $10, $11, $12
		)`

	_, err = s.pool.Exec(ctx, query,
		sig.ID, sig.MarketID, sig.Question, sig.EvaluatedAt,
		sig.InsiderProbability, sig.RiskScore, scores, sig.ImpliedDirection,
		topAddrs, sig.TradeCount, sig.TotalVolumeUSD, sig.DroppedTrades,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert signal %s: %w", sig.ID, err)
	}
	return nil
}

const signalCols = `id, market_id, question, evaluated_at,
	insider_probability, risk_score, scores, implied_direction,
	top_addresses, trade_count, total_volume_usd, dropped_trades`

func scanSignalRows(rows pgx.Rows) ([]domain.Signal, error) {
	var signals []domain.Signal
	for rows.Next() {
		var sig domain.Signal
		var scores, topAddrs []byte
		if err := rows.Scan(
			&sig.ID, &sig.MarketID, &sig.Question, &sig.EvaluatedAt,
			&sig.InsiderProbability, &sig.RiskScore, &scores, &sig.ImpliedDirection,
			&topAddrs, &sig.TradeCount, &sig.TotalVolumeUSD, &sig.DroppedTrades,
		); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(scores, &sig.Scores); err != nil {
			return nil, fmt.Errorf("unmarshal scores for %s: %w", sig.ID, err)
		}
		if len(topAddrs) > 0 {
			if err := json.Unmarshal(topAddrs, &sig.TopAddresses); err != nil {
				return nil, fmt.Errorf("unmarshal top addresses for %s: %w", sig.ID, err)
			}
		}
		signals = append(signals, sig)
	}
	return signals, rows.Err()
}

// ListRecent returns the newest signals across all markets.
func (s *SignalStore) ListRecent(ctx context.Context, opts domain.ListOpts) ([]domain.Signal, error) {
	query := `SELECT ` + signalCols + ` FROM signals`
	args := []any{}
	argIdx := 1

	if opts.Since != nil {
		query += fmt.Sprintf(" WHERE evaluated_at >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}

	query += " ORDER BY evaluated_at DESC"

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
		return nil, fmt.Errorf("postgres: list recent signals: %w", err)
	}
	defer rows.Close()

	signals, err := scanSignalRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan recent signals: %w", err)
	}
	return signals, nil
}

// ListByMarket returns the signal history of one market, newest first.
func (s *SignalStore) ListByMarket(ctx context.Context, marketID string, opts domain.ListOpts) ([]domain.Signal, error) {
	query := `SELECT ` + signalCols + ` FROM signals WHERE market_id = $1 ORDER BY evaluated_at DESC`
	args := []any{marketID}
	argIdx := 2

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
		return nil, fmt.Errorf("postgres: list signals by market: %w", err)
	}
	defer rows.Close()

	signals, err := scanSignalRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan signals by market: %w", err)
	}
	return signals, nil
}

// ListBefore returns all signals evaluated strictly before the given time,
// oldest first. Used by the cold-storage archiver.
func (s *SignalStore) ListBefore(ctx context.Context, before time.Time) ([]domain.Signal, error) {
	query := `SELECT ` + signalCols + ` FROM signals WHERE evaluated_at < $1 ORDER BY evaluated_at ASC`
	rows, err := s.pool.Query(ctx, query, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list signals before: %w", err)
	}
	defer rows.Close()

	signals, err := scanSignalRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan signals before: %w", err)
	}
	return signals, nil
}

// Compile-time interface check.
var _ domain.SignalStore = (*SignalStore)(nil)
