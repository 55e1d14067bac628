package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/insiderscan/internal/domain"
)

// BacktestStore implements domain.BacktestStore using PostgreSQL.
type BacktestStore struct {
	pool *pgxpool.Pool
}

// NewBacktestStore creates a new BacktestStore backed by the given connection
// pool.
func NewBacktestStore(pool *pgxpool.Pool) *BacktestStore {
	return &BacktestStore{pool: pool}
}

// InsertRecord persists one per-market backtest result.
func (s *BacktestStore) InsertRecord(ctx context.Context, rec domain.BacktestRecord) error {
	scores, err := json.Marshal(rec.Scores)
	if err != nil {
		return fmt.Errorf("postgres: marshal backtest scores: %w", err)
	}

	const query = `
		INSERT INTO backtest_records (
			id, run_id, market_id, question, outcome, skip_reason,
			peak_signal_at, insider_probability, scores,
			predicted_direction, actual_outcome, predicted_correctly,
			price_at_peak, price_after_horizon, price_movement_pct,
			trades_analyzed, dropped_trades, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			NULLIF($7::timestamptz, '0001-01-01'::timestamptz), $8, $9,
			$10, $11, $12,
			$13, $14, $15,
			$16, $17, $18
		)`

	_, err = s.pool.Exec(ctx, query,
		rec.ID, rec.RunID, rec.MarketID, rec.Question, string(rec.Outcome), rec.SkipReason,
		rec.PeakSignalAt, rec.InsiderProbability, scores,
		rec.PredictedDirection, rec.ActualOutcome, rec.PredictedCorrectly,
		rec.PriceAtPeak, rec.PriceAfterHorizon, rec.PriceMovementPct,
		rec.TradesAnalyzed, rec.DroppedTrades, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert backtest record %s: %w", rec.ID, err)
	}
	return nil
}

// InsertSummary persists one run summary.
func (s *BacktestStore) InsertSummary(ctx context.Context, sum domain.BacktestSummary) error {
	eff, err := json.Marshal(sum.Effectiveness)
	if err != nil {
		return fmt.Errorf("postgres: marshal effectiveness: %w", err)
	}
	skips, err := json.Marshal(sum.SkipReasonCounts)
	if err != nil {
		return fmt.Errorf("postgres: marshal skip reasons: %w", err)
	}

	const query = `
		INSERT INTO backtest_summaries (
			run_id, started_at, finished_at,
			markets_scored, markets_skipped,
			accuracy, avg_movement_pct, avg_probability,
			effectiveness, skip_reasons
		) VALUES (
			$1, $2, $3,
			$4, $5,
			$6, $7, $8,
			$9, $10
		)`

	_, err = s.pool.Exec(ctx, query,
		sum.RunID, sum.StartedAt, sum.FinishedAt,
		sum.MarketsScored, sum.MarketsSkipped,
		sum.Accuracy, sum.AvgMovementPct, sum.AvgProbability,
		eff, skips,
	)
	if err != nil {
		if uniqueViolation(err) {
			return fmt.Errorf("postgres: backtest summary %s: %w", sum.RunID, domain.ErrAlreadyExists)
		}
		return fmt.Errorf("postgres: insert backtest summary %s: %w", sum.RunID, err)
	}
	return nil
}

// uniqueViolation reports whether err is a Postgres duplicate-key error.
func uniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

const backtestRecordCols = `id, run_id, market_id, question, outcome, skip_reason,
	COALESCE(peak_signal_at, '0001-01-01'::timestamptz), insider_probability, scores,
	predicted_direction, actual_outcome, predicted_correctly,
	price_at_peak, price_after_horizon, price_movement_pct,
	trades_analyzed, dropped_trades, created_at`

// ListRecords returns the per-market records of one run in creation order.
func (s *BacktestStore) ListRecords(ctx context.Context, runID string, opts domain.ListOpts) ([]domain.BacktestRecord, error) {
	query := `SELECT ` + backtestRecordCols + ` FROM backtest_records WHERE run_id = $1 ORDER BY created_at ASC, id ASC`
	args := []any{runID}
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
		return nil, fmt.Errorf("postgres: list backtest records: %w", err)
	}
	defer rows.Close()

	var records []domain.BacktestRecord
	for rows.Next() {
		var rec domain.BacktestRecord
		var outcome string
		var scores []byte
		if err := rows.Scan(
			&rec.ID, &rec.RunID, &rec.MarketID, &rec.Question, &outcome, &rec.SkipReason,
			&rec.PeakSignalAt, &rec.InsiderProbability, &scores,
			&rec.PredictedDirection, &rec.ActualOutcome, &rec.PredictedCorrectly,
			&rec.PriceAtPeak, &rec.PriceAfterHorizon, &rec.PriceMovementPct,
			&rec.TradesAnalyzed, &rec.DroppedTrades, &rec.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan backtest record: %w", err)
		}
		rec.Outcome = domain.BacktestOutcome(outcome)
		if err := json.Unmarshal(scores, &rec.Scores); err != nil {
			return nil, fmt.Errorf("postgres: unmarshal backtest scores for %s: %w", rec.ID, err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list backtest records rows: %w", err)
	}
	return records, nil
}

const backtestSummaryCols = `run_id, started_at, finished_at,
	markets_scored, markets_skipped,
	accuracy, avg_movement_pct, avg_probability,
	effectiveness, skip_reasons`

func scanSummary(row pgx.Row) (domain.BacktestSummary, error) {
	var sum domain.BacktestSummary
	var eff, skips []byte
	err := row.Scan(
		&sum.RunID, &sum.StartedAt, &sum.FinishedAt,
		&sum.MarketsScored, &sum.MarketsSkipped,
		&sum.Accuracy, &sum.AvgMovementPct, &sum.AvgProbability,
		&eff, &skips,
	)
	if err != nil {
		return domain.BacktestSummary{}, err
	}
	if err := json.Unmarshal(eff, &sum.Effectiveness); err != nil {
		return domain.BacktestSummary{}, fmt.Errorf("unmarshal effectiveness: %w", err)
	}
	if len(skips) > 0 {
		if err := json.Unmarshal(skips, &sum.SkipReasonCounts); err != nil {
			return domain.BacktestSummary{}, fmt.Errorf("unmarshal skip reasons: %w", err)
		}
	}
	return sum, nil
}

// GetSummary returns the summary of one run.
func (s *BacktestStore) GetSummary(ctx context.Context, runID string) (domain.BacktestSummary, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+backtestSummaryCols+` FROM backtest_summaries WHERE run_id = $1`, runID)
	sum, err := scanSummary(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.BacktestSummary{}, domain.ErrNotFound
		}
		return domain.BacktestSummary{}, fmt.Errorf("postgres: get backtest summary %s: %w", runID, err)
	}
	return sum, nil
}

// ListSummaries returns run summaries, newest first.
func (s *BacktestStore) ListSummaries(ctx context.Context, opts domain.ListOpts) ([]domain.BacktestSummary, error) {
	query := `SELECT ` + backtestSummaryCols + ` FROM backtest_summaries ORDER BY started_at DESC`
	args := []any{}
	argIdx := 1

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
		return nil, fmt.Errorf("postgres: list backtest summaries: %w", err)
	}
	defer rows.Close()

	var sums []domain.BacktestSummary
	for rows.Next() {
		sum, err := scanSummary(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan backtest summary: %w", err)
		}
		sums = append(sums, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list backtest summaries rows: %w", err)
	}
	return sums, nil
}

// Compile-time interface check.
var _ domain.BacktestStore = (*BacktestStore)(nil)
