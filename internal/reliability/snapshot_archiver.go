// Package reliability archives pruned snapshots and maintains the local databases.
package reliability

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/aristath/sentinel-insights/internal/domain"
	"github.com/rs/zerolog"
)

const (
	archivePrefix    = "snapshot-archive-"
	archiveSuffix    = ".tar.gz"
	archiveTimestamp = "2006-01-02-150405"
	metadataFile     = "archive-metadata.json"

	// MinArchivesToKeep survive rotation regardless of age
	MinArchivesToKeep = 3
)

// ArchiveMetadata describes the contents of one archive
type ArchiveMetadata struct {
	Timestamp time.Time          `json:"timestamp"`
	Version   string             `json:"version"`
	Snapshots []SnapshotMetadata `json:"snapshots"`
}

// SnapshotMetadata describes a single snapshot file in an archive
type SnapshotMetadata struct {
	ID        int64     `json:"id"`
	TakenAt   time.Time `json:"taken_at"`
	Source    string    `json:"source"`
	Holdings  int       `json:"holdings"`
	Filename  string    `json:"filename"`
	SizeBytes int64     `json:"size_bytes"`
	Checksum  string    `json:"checksum"`
}

// ArchiveInfo represents an archive stored in the bucket
type ArchiveInfo struct {
	Filename  string    `json:"filename"`
	Timestamp time.Time `json:"timestamp"`
	SizeBytes int64     `json:"size_bytes"`
	AgeHours  int64     `json:"age_hours"`
}

// SnapshotArchiver uploads snapshots to an object store before retention deletes them
type SnapshotArchiver struct {
	store ObjectStore
	now   func() time.Time
	log   zerolog.Logger
}

// NewSnapshotArchiver creates an archiver writing to store
func NewSnapshotArchiver(store ObjectStore, log zerolog.Logger) *SnapshotArchiver {
	return &SnapshotArchiver{
		store: store,
		now:   time.Now,
		log:   log.With().Str("service", "snapshot_archive").Logger(),
	}
}

// SetClock replaces the time source
func (a *SnapshotArchiver) SetClock(now func() time.Time) {
	a.now = now
}

// Archive packs the snapshots into one tar.gz with a checksum manifest and uploads it.
// It returns only after the upload succeeded, so callers may delete the originals.
func (a *SnapshotArchiver) Archive(ctx context.Context, snapshots []*domain.Snapshot) error {
	if len(snapshots) == 0 {
		return nil
	}
	startTime := time.Now()

	sorted := append([]*domain.Snapshot(nil), snapshots...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	ts := a.now().UTC()
	metadata := ArchiveMetadata{
		Timestamp: ts,
		Version:   "1",
		Snapshots: make([]SnapshotMetadata, 0, len(sorted)),
	}

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)

	for _, s := range sorted {
		body, err := json.Marshal(s)
		if err != nil {
			return fmt.Errorf("failed to encode snapshot %d: %w", s.ID, err)
		}
		name := fmt.Sprintf("snapshot-%d.json", s.ID)
		if err := addToArchive(tw, name, body, ts); err != nil {
			return fmt.Errorf("failed to add %s to archive: %w", name, err)
		}
		metadata.Snapshots = append(metadata.Snapshots, SnapshotMetadata{
			ID:        s.ID,
			TakenAt:   s.TakenAt,
			Source:    s.Source,
			Holdings:  s.Len(),
			Filename:  name,
			SizeBytes: int64(len(body)),
			Checksum:  checksum(body),
		})
	}

	manifest, err := json.MarshalIndent(metadata, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode metadata: %w", err)
	}
	if err := addToArchive(tw, metadataFile, manifest, ts); err != nil {
		return fmt.Errorf("failed to add metadata to archive: %w", err)
	}
	if err := tw.Close(); err != nil {
		return fmt.Errorf("failed to finish tar stream: %w", err)
	}
	if err := gz.Close(); err != nil {
		return fmt.Errorf("failed to finish gzip stream: %w", err)
	}

	key := fmt.Sprintf("%s%s-%d-%d%s", archivePrefix, ts.Format(archiveTimestamp),
		sorted[0].ID, sorted[len(sorted)-1].ID, archiveSuffix)
	size := int64(buf.Len())
	if err := a.store.Upload(ctx, key, bytes.NewReader(buf.Bytes()), size); err != nil {
		return fmt.Errorf("failed to upload archive: %w", err)
	}

	a.log.Info().
		Dur("duration_ms", time.Since(startTime)).
		Str("archive", key).
		Int("snapshots", len(sorted)).
		Int64("size_bytes", size).
		Msg("Snapshot archive uploaded")
	return nil
}

// ListArchives lists the archives in the bucket, newest first
func (a *SnapshotArchiver) ListArchives(ctx context.Context) ([]ArchiveInfo, error) {
	objects, err := a.store.List(ctx, archivePrefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list archives: %w", err)
	}

	now := a.now()
	archives := make([]ArchiveInfo, 0, len(objects))
	for _, obj := range objects {
		if obj.Key == nil {
			continue
		}
		ts, ok := parseArchiveTimestamp(*obj.Key)
		if !ok {
			a.log.Warn().Str("filename", *obj.Key).Msg("Failed to parse timestamp from archive name")
			continue
		}
		var size int64
		if obj.Size != nil {
			size = *obj.Size
		}
		archives = append(archives, ArchiveInfo{
			Filename:  *obj.Key,
			Timestamp: ts,
			SizeBytes: size,
			AgeHours:  int64(now.Sub(ts).Hours()),
		})
	}

	sort.SliceStable(archives, func(i, j int) bool {
		if archives[i].Timestamp.Equal(archives[j].Timestamp) {
			return archives[i].Filename > archives[j].Filename
		}
		return archives[i].Timestamp.After(archives[j].Timestamp)
	})
	return archives, nil
}

// RotateOldArchives deletes archives older than retention, always keeping the
// newest MinArchivesToKeep. A zero retention keeps everything.
func (a *SnapshotArchiver) RotateOldArchives(ctx context.Context, retention time.Duration) (int, error) {
	if retention <= 0 {
		return 0, nil
	}

	archives, err := a.ListArchives(ctx)
	if err != nil {
		return 0, err
	}
	if len(archives) <= MinArchivesToKeep {
		return 0, nil
	}

	cutoff := a.now().Add(-retention)
	var errs []error
	deleted := 0
	for _, archive := range archives[MinArchivesToKeep:] {
		if !archive.Timestamp.Before(cutoff) {
			continue
		}
		if err := a.store.Delete(ctx, archive.Filename); err != nil {
			a.log.Error().Err(err).Str("filename", archive.Filename).Msg("Failed to delete old archive")
			errs = append(errs, err)
			continue
		}
		deleted++
	}

	a.log.Info().
		Int("deleted", deleted).
		Int("remaining", len(archives)-deleted).
		Msg("Archive rotation completed")
	return deleted, errors.Join(errs...)
}

func parseArchiveTimestamp(key string) (time.Time, bool) {
	if !strings.HasPrefix(key, archivePrefix) || !strings.HasSuffix(key, archiveSuffix) {
		return time.Time{}, false
	}
	rest := strings.TrimPrefix(key, archivePrefix)
	if len(rest) < len(archiveTimestamp) {
		return time.Time{}, false
	}
	ts, err := time.Parse(archiveTimestamp, rest[:len(archiveTimestamp)])
	if err != nil {
		return time.Time{}, false
	}
	return ts, true
}

func addToArchive(tw *tar.Writer, name string, body []byte, modTime time.Time) error {
	header := &tar.Header{
		Name:    name,
		Size:    int64(len(body)),
		Mode:    0644,
		ModTime: modTime,
	}
	if err := tw.WriteHeader(header); err != nil {
		return err
	}
	_, err := tw.Write(body)
	return err
}

func checksum(body []byte) string {
	return fmt.Sprintf("sha256:%x", sha256.Sum256(body))
}
