package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/bytedance/sonic"

	"github.com/roach88/cutline/internal/timeline"
)

// Snapshot is one stored timeline.
type Snapshot struct {
	ID            int64
	Version       uint64
	Fingerprint   string
	TotalDuration float64
	ClipCount     int
	// Seq is the seq of the timeline.changed event that produced the
	// snapshot, or 0 when written outside a session.
	Seq      int64
	Timeline *timeline.Timeline
}

// WriteSnapshot stores tl unless its fingerprint equals the latest stored
// snapshot's. It reports whether a row was inserted.
func (s *Store) WriteSnapshot(ctx context.Context, tl *timeline.Timeline, seq int64) (bool, error) {
	fp := tl.Fingerprint()

	data, err := sonic.Marshal(tl)
	if err != nil {
		return false, fmt.Errorf("write snapshot: marshal: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("write snapshot: begin tx: %w", err)
	}
	defer tx.Rollback()

	var latest string
	err = tx.QueryRowContext(ctx, `SELECT fingerprint FROM snapshots ORDER BY id DESC LIMIT 1`).Scan(&latest)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return false, fmt.Errorf("write snapshot: latest fingerprint: %w", err)
	case latest == fp:
		return false, nil
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO snapshots
		(version, fingerprint, total_duration, clip_count, timeline, seq)
		VALUES (?, ?, ?, ?, ?, ?)
	`,
		tl.Version(),
		fp,
		tl.TotalDuration(),
		tl.Len(),
		string(data),
		seq,
	)
	if err != nil {
		return false, fmt.Errorf("write snapshot: insert: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("write snapshot: commit: %w", err)
	}
	return true, nil
}

// LatestSnapshot returns the most recently stored timeline, or nil if none
// has been stored.
func (s *Store) LatestSnapshot(ctx context.Context) (*timeline.Timeline, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, version, fingerprint, total_duration, clip_count, seq, timeline
		FROM snapshots
		ORDER BY id DESC
		LIMIT 1
	`)
	snap, err := scanSnapshot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return snap.Timeline, nil
}

// Snapshots returns the stored history, oldest first.
// Returns an empty slice (not nil) if nothing has been stored.
func (s *Store) Snapshots(ctx context.Context) ([]Snapshot, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, version, fingerprint, total_duration, clip_count, seq, timeline
		FROM snapshots
		ORDER BY id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query snapshots: %w", err)
	}
	defer rows.Close()

	out := []Snapshot{}
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshots: %w", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSnapshot(row scanner) (Snapshot, error) {
	var (
		snap Snapshot
		data string
	)
	err := row.Scan(&snap.ID, &snap.Version, &snap.Fingerprint, &snap.TotalDuration, &snap.ClipCount, &snap.Seq, &data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Snapshot{}, err
		}
		return Snapshot{}, fmt.Errorf("scan snapshot: %w", err)
	}

	tl := timeline.Empty()
	if err := sonic.Unmarshal([]byte(data), tl); err != nil {
		return Snapshot{}, fmt.Errorf("decode snapshot %d: %w", snap.ID, err)
	}
	snap.Timeline = tl
	return snap, nil
}
