// Package cycles persists cycle run records.
package cycles

import (
	"context"
	"database/sql"
	"time"

	"github.com/aristath/sentinel-insights/internal/database"
	"github.com/aristath/sentinel-insights/internal/domain"
	"github.com/aristath/sentinel-insights/internal/modules/insights"
	"github.com/rs/zerolog"
)

// Repository stores cycle records and their insights in insights.db
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a cycle repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repository", "cycles").Logger(),
	}
}

const cycleColumns = `id, started_at, finished_at, outcome, failed_stage, error_kind, error, snapshot_id, delta_count, selected_count`

// Record writes a cycle and its insights in one transaction
func (r *Repository) Record(ctx context.Context, record domain.CycleRunRecord) error {
	err := database.WithTransactionContext(ctx, r.db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO cycles (`+cycleColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			record.ID, record.StartedAt.UnixNano(), record.FinishedAt.UnixNano(), string(record.Outcome),
			nullString(string(record.FailedStage)), nullString(record.ErrorKind), nullString(record.Error),
			nullInt(record.SnapshotID), record.DeltaCount, record.SelectedCount,
		)
		if err != nil {
			return err
		}

		for _, ins := range record.Insights {
			if err := insights.InsertTx(ctx, tx, ins); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return domain.NewStoreError(domain.StoreIO, "cycles.record", err)
	}
	return nil
}

// List returns up to limit records, newest first, with their insights
func (r *Repository) List(ctx context.Context, limit int) ([]domain.CycleRunRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+cycleColumns+` FROM cycles ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, domain.NewStoreError(domain.StoreIO, "cycles.list", err)
	}

	records, err := scanCycles(rows)
	if err != nil {
		return nil, err
	}
	for i := range records {
		if records[i].Insights, err = r.insightsFor(ctx, records[i].ID); err != nil {
			return nil, err
		}
	}
	return records, nil
}

// Get returns one record, nil when unknown
func (r *Repository) Get(ctx context.Context, id string) (*domain.CycleRunRecord, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+cycleColumns+` FROM cycles WHERE id = ?`, id)
	if err != nil {
		return nil, domain.NewStoreError(domain.StoreIO, "cycles.get", err)
	}
	records, err := scanCycles(rows)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}

	record := records[0]
	if record.Insights, err = r.insightsFor(ctx, record.ID); err != nil {
		return nil, err
	}
	return &record, nil
}

// DeleteOlderThan removes records started before cutoff; their insights cascade
func (r *Repository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM cycles WHERE started_at < ?`, cutoff.UnixNano())
	if err != nil {
		return 0, domain.NewStoreError(domain.StoreIO, "cycles.delete", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, domain.NewStoreError(domain.StoreIO, "cycles.delete", err)
	}
	return n, nil
}

func (r *Repository) insightsFor(ctx context.Context, cycleID string) ([]domain.Insight, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+insights.Columns+` FROM insights WHERE cycle_id = ? ORDER BY symbol`, cycleID)
	if err != nil {
		return nil, domain.NewStoreError(domain.StoreIO, "cycles.insights", err)
	}
	return insights.ScanInsights(rows, "cycles.insights")
}

func scanCycles(rows *sql.Rows) ([]domain.CycleRunRecord, error) {
	defer rows.Close()

	out := make([]domain.CycleRunRecord, 0)
	for rows.Next() {
		var (
			rec                   domain.CycleRunRecord
			started, finished     int64
			outcome               string
			stage, kind, errorMsg sql.NullString
			snapshotID            sql.NullInt64
		)
		if err := rows.Scan(&rec.ID, &started, &finished, &outcome, &stage, &kind, &errorMsg,
			&snapshotID, &rec.DeltaCount, &rec.SelectedCount); err != nil {
			return nil, domain.NewStoreError(domain.StoreIO, "cycles.scan", err)
		}
		rec.StartedAt = time.Unix(0, started).UTC()
		rec.FinishedAt = time.Unix(0, finished).UTC()
		rec.Outcome = domain.Outcome(outcome)
		rec.FailedStage = domain.Stage(stage.String)
		rec.ErrorKind = kind.String
		rec.Error = errorMsg.String
		rec.SnapshotID = snapshotID.Int64
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.NewStoreError(domain.StoreIO, "cycles.scan", err)
	}
	return out, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt(v int64) sql.NullInt64 {
	return sql.NullInt64{Int64: v, Valid: v != 0}
}
