package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/evand/conditional-markets/internal/domain"
)

// MarketStore implements domain.MarketStore using PostgreSQL. The four
// outcome references are stored as a JSONB column: the cell-to-token binding
// is read and written as a unit, never queried per field.
type MarketStore struct {
	pool *pgxpool.Pool
}

// NewMarketStore creates a new MarketStore backed by the given connection pool.
func NewMarketStore(pool *pgxpool.Pool) *MarketStore {
	return &MarketStore{pool: pool}
}

const upsertMarketQuery = `
	INSERT INTO markets (
		id, question, slug, event_a, event_b, outcomes,
		volume, status, closed_at, created_at, updated_at
	) VALUES (
		$1, $2, $3, $4, $5, $6,
		$7, $8, $9, $10, NOW()
	)
	ON CONFLICT (id) DO UPDATE SET
		question   = EXCLUDED.question,
		slug       = EXCLUDED.slug,
		event_a    = EXCLUDED.event_a,
		event_b    = EXCLUDED.event_b,
		outcomes   = EXCLUDED.outcomes,
		volume     = EXCLUDED.volume,
		status     = EXCLUDED.status,
		closed_at  = EXCLUDED.closed_at,
		updated_at = NOW()`

// Upsert inserts or updates a single market.
func (s *MarketStore) Upsert(ctx context.Context, m domain.JointMarket) error {
	outcomes, err := json.Marshal(m.Outcomes)
	if err != nil {
		return fmt.Errorf("postgres: encode outcomes for %s: %w", m.ID, err)
	}

	_, err = s.pool.Exec(ctx, upsertMarketQuery,
		m.ID, m.Question, m.Slug, m.EventA, m.EventB, outcomes,
		m.Volume, string(m.Status), m.ClosedAt, m.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert market %s: %w", m.ID, err)
	}
	return nil
}

// UpsertBatch inserts or updates multiple markets in a single batch operation.
func (s *MarketStore) UpsertBatch(ctx context.Context, markets []domain.JointMarket) error {
	if len(markets) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, m := range markets {
		outcomes, err := json.Marshal(m.Outcomes)
		if err != nil {
			return fmt.Errorf("postgres: encode outcomes for %s: %w", m.ID, err)
		}
		batch.Queue(upsertMarketQuery,
			m.ID, m.Question, m.Slug, m.EventA, m.EventB, outcomes,
			m.Volume, string(m.Status), m.ClosedAt, m.CreatedAt,
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

const marketCols = `id, question, slug, event_a, event_b, outcomes,
	volume, status, closed_at, created_at, updated_at`

// scanMarket scans a single market row into a domain.JointMarket.
func scanMarket(row pgx.Row) (domain.JointMarket, error) {
	var m domain.JointMarket
	var status string
	var outcomes []byte
	err := row.Scan(
		&m.ID, &m.Question, &m.Slug, &m.EventA, &m.EventB, &outcomes,
		&m.Volume, &status, &m.ClosedAt, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return domain.JointMarket{}, err
	}
	if err := json.Unmarshal(outcomes, &m.Outcomes); err != nil {
		return domain.JointMarket{}, fmt.Errorf("decode outcomes: %w", err)
	}
	m.Status = domain.MarketStatus(status)
	return m, nil
}

// GetByID retrieves a market by its primary key.
func (s *MarketStore) GetByID(ctx context.Context, id string) (domain.JointMarket, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+marketCols+` FROM markets WHERE id = $1`, id)
	m, err := scanMarket(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.JointMarket{}, domain.ErrNotFound
		}
		return domain.JointMarket{}, fmt.Errorf("postgres: get market %s: %w", id, err)
	}
	return m, nil
}

// GetBySlug retrieves a market by its URL slug.
func (s *MarketStore) GetBySlug(ctx context.Context, slug string) (domain.JointMarket, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+marketCols+` FROM markets WHERE slug = $1`, slug)
	m, err := scanMarket(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.JointMarket{}, domain.ErrNotFound
		}
		return domain.JointMarket{}, fmt.Errorf("postgres: get market by slug %s: %w", slug, err)
	}
	return m, nil
}

// ListActive returns active markets with pagination and optional time filtering.
func (s *MarketStore) ListActive(ctx context.Context, opts domain.ListOpts) ([]domain.JointMarket, error) {
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

	query += " ORDER BY created_at DESC"

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
		return nil, fmt.Errorf("postgres: list active markets: %w", err)
	}
	defer rows.Close()

	var markets []domain.JointMarket
	for rows.Next() {
		m, err := scanMarket(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan active market: %w", err)
		}
		markets = append(markets, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list active markets rows: %w", err)
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

var _ domain.MarketStore = (*MarketStore)(nil)
