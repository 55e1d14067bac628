package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/insiderscan/internal/domain"
)

// MarketStore implements domain.MarketStore using PostgreSQL.
type MarketStore struct {
	pool *pgxpool.Pool
}

// NewMarketStore creates a new MarketStore backed by the given connection pool.
func NewMarketStore(pool *pgxpool.Pool) *MarketStore {
	return &MarketStore{pool: pool}
}

const upsertMarketQuery = `
	INSERT INTO markets (
		id, question, slug, outcomes, volume, status,
		resolved, resolved_outcome, resolved_at, created_at, updated_at
	) VALUES (
		$1, $2, $3, $4, $5, $6,
		$7, $8, $9, COALESCE(NULLIF($10::timestamptz, '0001-01-01'::timestamptz), NOW()), NOW()
	)
	ON CONFLICT (id) DO UPDATE SET
		question         = EXCLUDED.question,
		slug             = EXCLUDED.slug,
		outcomes         = EXCLUDED.outcomes,
		volume           = EXCLUDED.volume,
		status           = EXCLUDED.status,
		resolved         = EXCLUDED.resolved,
		resolved_outcome = EXCLUDED.resolved_outcome,
		resolved_at      = EXCLUDED.resolved_at,
		updated_at       = NOW()`

// Upsert inserts or updates a single market.
func (s *MarketStore) Upsert(ctx context.Context, m domain.Market) error {
	_, err := s.pool.Exec(ctx, upsertMarketQuery,
		m.ID, m.Question, m.Slug, m.Outcomes, m.Volume, string(m.Status),
		m.Resolved, m.ResolvedOutcome, m.ResolvedAt, m.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert market %s: %w", m.ID, err)
	}
	return nil
}

// UpsertBatch inserts or updates multiple markets in a single batch operation.
func (s *MarketStore) UpsertBatch(ctx context.Context, markets []domain.Market) error {
	if len(markets) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, m := range markets {
		batch.Queue(upsertMarketQuery,
			m.ID, m.Question, m.Slug, m.Outcomes, m.Volume, string(m.Status),
			m.Resolved, m.ResolvedOutcome, m.ResolvedAt, m.CreatedAt,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := range markets {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("postgres: upsert market batch item %d: %w", i, err)
		}
	}
	return nil
}

const marketCols = `id, question, slug, outcomes, volume, status,
	resolved, resolved_outcome, resolved_at, created_at, updated_at`

// scanMarket scans a single market row into a domain.Market.
func scanMarket(row pgx.Row) (domain.Market, error) {
	var m domain.Market
	var status string
	err := row.Scan(
		&m.ID, &m.Question, &m.Slug, &m.Outcomes, &m.Volume, &status,
		&m.Resolved, &m.ResolvedOutcome, &m.ResolvedAt, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return domain.Market{}, err
	}
	m.Status = domain.MarketStatus(status)
	return m, nil
}

// GetByID retrieves a market by its primary key.
func (s *MarketStore) GetByID(ctx context.Context, id string) (domain.Market, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+marketCols+` FROM markets WHERE id = $1`, id)
	m, err := scanMarket(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Market{}, domain.ErrNotFound
		}
		return domain.Market{}, fmt.Errorf("postgres: get market %s: %w", id, err)
	}
	return m, nil
}

// GetBySlug retrieves a market by its URL slug.
func (s *MarketStore) GetBySlug(ctx context.Context, slug string) (domain.Market, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+marketCols+` FROM markets WHERE slug = $1`, slug)
	m, err := scanMarket(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Market{}, domain.ErrNotFound
		}
		return domain.Market{}, fmt.Errorf("postgres: get market by slug %s: %w", slug, err)
	}
	return m, nil
}

// ListActive returns active markets ordered by volume descending.
func (s *MarketStore) ListActive(ctx context.Context, opts domain.ListOpts) ([]domain.Market, error) {
	query := `SELECT ` + marketCols + ` FROM markets WHERE status = 'active'`
	args := []any{}
	argIdx := 1

	if opts.Since != nil {
		query += fmt.Sprintf(" AND created_at >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND created_at <= $%d", argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}

	query += " ORDER BY volume DESC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	return s.listMarkets(ctx, "list active markets", query, args)
}

// ListResolved returns resolved markets whose resolution time is at or after
// since, newest first.
func (s *MarketStore) ListResolved(ctx context.Context, since time.Time, opts domain.ListOpts) ([]domain.Market, error) {
	query := `SELECT ` + marketCols + ` FROM markets
		WHERE resolved AND resolved_at IS NOT NULL AND resolved_at >= $1
		ORDER BY resolved_at DESC`
	args := []any{since}
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

	return s.listMarkets(ctx, "list resolved markets", query, args)
}

func (s *MarketStore) listMarkets(ctx context.Context, op, query string, args []any) ([]domain.Market, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: %s: %w", op, err)
	}
	defer rows.Close()

	var markets []domain.Market
	for rows.Next() {
		m, err := scanMarket(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: %s scan: %w", op, err)
		}
		markets = append(markets, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: %s rows: %w", op, err)
	}
	return markets, nil
}

// Count returns the total number of markets in the database.
func (s *MarketStore) Count(ctx context.Context) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM markets").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("postgres: count markets: %w", err)
	}
	return count, nil
}

// Compile-time interface check.
var _ domain.MarketStore = (*MarketStore)(nil)
