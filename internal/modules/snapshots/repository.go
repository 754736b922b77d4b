// Package snapshots provides the append-only snapshot history.
package snapshots

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/aristath/sentinel-insights/internal/database"
	"github.com/aristath/sentinel-insights/internal/domain"
	"github.com/rs/zerolog"
)

// MinHistory is the smallest retention that still allows diffing
const MinHistory = 2

// DefaultArchiveTimeout bounds one archive call made while pruning
const DefaultArchiveTimeout = 2 * time.Minute

// Archiver receives snapshots right before retention deletes them
type Archiver interface {
	Archive(ctx context.Context, snapshots []*domain.Snapshot) error
}

// Repository stores snapshots in SQLite. Each save is a single transaction,
// so concurrent readers either see the whole snapshot or nothing.
type Repository struct {
	db             *sql.DB
	maxHistory     int
	archiver       Archiver
	archiveTimeout time.Duration
	log            zerolog.Logger
}

// NewRepository creates a snapshot repository keeping at most maxHistory snapshots
func NewRepository(db *sql.DB, maxHistory int, log zerolog.Logger) *Repository {
	if maxHistory < MinHistory {
		maxHistory = MinHistory
	}
	return &Repository{
		db:         db,
		maxHistory: maxHistory,
		log:        log.With().Str("repository", "snapshots").Logger(),
	}
}

// SetArchiver installs an archiver for pruned snapshots. Each archive call gets
// its own deadline of timeout (DefaultArchiveTimeout when not positive), so a
// stalled upload cannot hold up Save.
func (r *Repository) SetArchiver(a Archiver, timeout time.Duration) {
	if timeout <= 0 {
		timeout = DefaultArchiveTimeout
	}
	r.archiver = a
	r.archiveTimeout = timeout
}

// MaxHistory returns the configured retention length
func (r *Repository) MaxHistory() int {
	return r.maxHistory
}

const selectColumns = `id, taken_at, source, holdings, checksum`

// Save appends a snapshot, assigns its ID and prunes history beyond the retention length.
// A snapshot not strictly newer than the latest stored one is rejected with a conflict.
func (r *Repository) Save(ctx context.Context, snapshot *domain.Snapshot) (int64, error) {
	if snapshot == nil {
		return 0, domain.NewStoreError(domain.StoreIO, "snapshots.save", errors.New("nil snapshot"))
	}

	blob, sum, err := encodeHoldings(snapshot.Holdings())
	if err != nil {
		return 0, domain.NewStoreError(domain.StoreCorrupt, "snapshots.save", err)
	}

	var id int64
	err = database.WithTransactionContext(ctx, r.db, func(tx *sql.Tx) error {
		var latest sql.NullInt64
		if err := tx.QueryRowContext(ctx, `SELECT MAX(taken_at) FROM snapshots`).Scan(&latest); err != nil {
			return domain.NewStoreError(domain.StoreIO, "snapshots.save", err)
		}
		if latest.Valid && snapshot.TakenAt.UnixNano() <= latest.Int64 {
			return domain.NewStoreError(domain.StoreConflict, "snapshots.save",
				fmt.Errorf("snapshot at %s is not newer than latest %s",
					snapshot.TakenAt.Format(time.RFC3339Nano),
					time.Unix(0, latest.Int64).UTC().Format(time.RFC3339Nano)))
		}

		res, err := tx.ExecContext(ctx, `
			INSERT INTO snapshots (taken_at, source, holding_count, total_value, holdings, checksum, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			snapshot.TakenAt.UnixNano(), snapshot.Source, snapshot.Len(), snapshot.TotalValue(),
			blob, sum, time.Now().Unix(),
		)
		if err != nil {
			return domain.NewStoreError(domain.StoreIO, "snapshots.save", err)
		}
		id, err = res.LastInsertId()
		if err != nil {
			return domain.NewStoreError(domain.StoreIO, "snapshots.save", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	snapshot.ID = id

	// The new snapshot is committed; retention failures only delay pruning
	if pruned, err := r.Prune(ctx); err != nil {
		r.log.Warn().Err(err).Msg("Snapshot pruning failed")
	} else if pruned > 0 {
		r.log.Debug().Int("pruned", pruned).Msg("Pruned old snapshots")
	}

	return id, nil
}

// Latest returns the newest snapshot, or nil when none exist
func (r *Repository) Latest(ctx context.Context) (*domain.Snapshot, error) {
	return r.nth(ctx, 0, "snapshots.latest")
}

// Previous returns the snapshot before the latest, or nil when fewer than two exist
func (r *Repository) Previous(ctx context.Context) (*domain.Snapshot, error) {
	return r.nth(ctx, 1, "snapshots.previous")
}

// LatestPair returns latest and previous from a single read transaction
func (r *Repository) LatestPair(ctx context.Context) (*domain.Snapshot, *domain.Snapshot, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+selectColumns+` FROM snapshots ORDER BY taken_at DESC LIMIT 2`)
	if err != nil {
		return nil, nil, domain.NewStoreError(domain.StoreIO, "snapshots.pair", err)
	}
	snaps, err := scanSnapshots(rows, "snapshots.pair")
	if err != nil {
		return nil, nil, err
	}

	var latest, previous *domain.Snapshot
	if len(snaps) > 0 {
		latest = snaps[0]
	}
	if len(snaps) > 1 {
		previous = snaps[1]
	}
	return latest, previous, nil
}

func (r *Repository) nth(ctx context.Context, offset int, op string) (*domain.Snapshot, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+selectColumns+` FROM snapshots ORDER BY taken_at DESC LIMIT 1 OFFSET ?`, offset)
	snap, err := scanSnapshot(row, op)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return snap, err
}

// GetByID returns one snapshot, or nil when the ID is unknown
func (r *Repository) GetByID(ctx context.Context, id int64) (*domain.Snapshot, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM snapshots WHERE id = ?`, id)
	snap, err := scanSnapshot(row, "snapshots.get")
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return snap, err
}

// History returns up to limit snapshots, newest first
func (r *Repository) History(ctx context.Context, limit int) ([]*domain.Snapshot, error) {
	if limit <= 0 {
		limit = r.maxHistory
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+selectColumns+` FROM snapshots ORDER BY taken_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, domain.NewStoreError(domain.StoreIO, "snapshots.history", err)
	}
	return scanSnapshots(rows, "snapshots.history")
}

// Count returns the number of stored snapshots
func (r *Repository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM snapshots`).Scan(&n); err != nil {
		return 0, domain.NewStoreError(domain.StoreIO, "snapshots.count", err)
	}
	return n, nil
}

// Prune removes snapshots beyond the retention length, oldest first.
// When an archiver is set, snapshots are only deleted after it accepted them.
func (r *Repository) Prune(ctx context.Context) (int, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+selectColumns+` FROM snapshots ORDER BY taken_at DESC LIMIT -1 OFFSET ?`, r.maxHistory)
	if err != nil {
		return 0, domain.NewStoreError(domain.StoreIO, "snapshots.prune", err)
	}
	expired, err := scanSnapshots(rows, "snapshots.prune")
	if err != nil {
		return 0, err
	}
	if len(expired) == 0 {
		return 0, nil
	}

	if r.archiver != nil {
		actx, cancel := context.WithTimeout(ctx, r.archiveTimeout)
		err := r.archiver.Archive(actx, expired)
		cancel()
		if err != nil {
			return 0, fmt.Errorf("failed to archive %d snapshots: %w", len(expired), err)
		}
	}

	err = database.WithTransactionContext(ctx, r.db, func(tx *sql.Tx) error {
		for _, s := range expired {
			if _, err := tx.ExecContext(ctx, `DELETE FROM snapshots WHERE id = ?`, s.ID); err != nil {
				return domain.NewStoreError(domain.StoreIO, "snapshots.prune", err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(expired), nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSnapshot(row rowScanner, op string) (*domain.Snapshot, error) {
	var (
		id      int64
		takenAt int64
		source  string
		blob    []byte
		sum     string
	)
	if err := row.Scan(&id, &takenAt, &source, &blob, &sum); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, domain.NewStoreError(domain.StoreIO, op, err)
	}

	holdings, err := decodeHoldings(blob, sum)
	if err != nil {
		return nil, domain.NewStoreError(domain.StoreCorrupt, op, fmt.Errorf("snapshot %d: %w", id, err))
	}

	snap, err := domain.NewSnapshot(time.Unix(0, takenAt), source, holdings)
	if err != nil {
		return nil, domain.NewStoreError(domain.StoreCorrupt, op, fmt.Errorf("snapshot %d: %w", id, err))
	}
	snap.ID = id
	return snap, nil
}

func scanSnapshots(rows *sql.Rows, op string) ([]*domain.Snapshot, error) {
	defer rows.Close()

	var out []*domain.Snapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows, op)
		if err != nil {
			return nil, err
		}
		out = append(out, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.NewStoreError(domain.StoreIO, op, err)
	}
	return out, nil
}
