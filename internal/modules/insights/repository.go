package insights

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aristath/sentinel-insights/internal/domain"
	"github.com/rs/zerolog"
)

// Repository reads emitted insights from insights.db.
// Rows are written together with their cycle by cycles.Repository.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates an insight repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repository", "insights").Logger(),
	}
}

// Columns selected by every insight query, in ScanInsight order
const Columns = `id, cycle_id, fingerprint, delta_json, narrative, provider, cached, generated_at, emitted_at`

// RecentSince returns insights emitted after since, newest first
func (r *Repository) RecentSince(ctx context.Context, since time.Time) ([]domain.Insight, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+Columns+` FROM insights WHERE emitted_at > ? ORDER BY emitted_at DESC`,
		since.UnixNano())
	if err != nil {
		return nil, domain.NewStoreError(domain.StoreIO, "insights.recent", err)
	}
	return ScanInsights(rows, "insights.recent")
}

// List returns up to limit insights, newest first, optionally for one symbol
func (r *Repository) List(ctx context.Context, limit int, symbol string) ([]domain.Insight, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT ` + Columns + ` FROM insights`
	args := []interface{}{}
	if symbol != "" {
		query += ` WHERE symbol = ?`
		args = append(args, symbol)
	}
	query += ` ORDER BY emitted_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, domain.NewStoreError(domain.StoreIO, "insights.list", err)
	}
	return ScanInsights(rows, "insights.list")
}

// DeleteOlderThan removes insights emitted before cutoff
func (r *Repository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM insights WHERE emitted_at < ?`, cutoff.UnixNano())
	if err != nil {
		return 0, domain.NewStoreError(domain.StoreIO, "insights.delete", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, domain.NewStoreError(domain.StoreIO, "insights.delete", err)
	}
	return n, nil
}

// InsertTx writes one insight inside tx
func InsertTx(ctx context.Context, tx *sql.Tx, ins domain.Insight) error {
	deltaJSON, err := json.Marshal(ins.Delta)
	if err != nil {
		return fmt.Errorf("failed to marshal delta: %w", err)
	}

	cached := 0
	if ins.Cached {
		cached = 1
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO insights (id, cycle_id, fingerprint, kind, symbol, delta_json, narrative, provider, cached, generated_at, emitted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ins.ID, ins.CycleID, ins.Fingerprint, string(ins.Delta.Kind), ins.Delta.Symbol, string(deltaJSON),
		ins.Narrative, ins.Provider, cached, ins.GeneratedAt.UnixNano(), ins.EmittedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert insight %s: %w", ins.ID, err)
	}
	return nil
}

// ScanInsights reads every row of an insight query and closes rows
func ScanInsights(rows *sql.Rows, op string) ([]domain.Insight, error) {
	defer rows.Close()

	out := make([]domain.Insight, 0)
	for rows.Next() {
		var (
			ins         domain.Insight
			deltaJSON   string
			cached      int
			generatedAt int64
			emittedAt   int64
		)
		if err := rows.Scan(&ins.ID, &ins.CycleID, &ins.Fingerprint, &deltaJSON, &ins.Narrative,
			&ins.Provider, &cached, &generatedAt, &emittedAt); err != nil {
			return nil, domain.NewStoreError(domain.StoreIO, op, err)
		}
		if err := json.Unmarshal([]byte(deltaJSON), &ins.Delta); err != nil {
			return nil, domain.NewStoreError(domain.StoreCorrupt, op, fmt.Errorf("insight %s: %w", ins.ID, err))
		}
		ins.Cached = cached == 1
		ins.GeneratedAt = time.Unix(0, generatedAt).UTC()
		ins.EmittedAt = time.Unix(0, emittedAt).UTC()
		out = append(out, ins)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.NewStoreError(domain.StoreIO, op, err)
	}
	return out, nil
}
