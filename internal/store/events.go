package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/bytedance/sonic"

	"github.com/roach88/cutline/internal/event"
)

// Record is a journaled event. Data holds the payload as JSON.
type Record struct {
	Seq    int64  `json:"seq"`
	ID     string `json:"id,omitempty"`
	Type   string `json:"type"`
	Origin string `json:"origin"`
	Data   []byte `json:"data"`
}

// Decode unmarshals the payload into v.
func (r Record) Decode(v any) error {
	if err := sonic.Unmarshal(r.Data, v); err != nil {
		return fmt.Errorf("decode %s #%d: %w", r.Type, r.Seq, err)
	}
	return nil
}

// Filter selects journal records. The zero Filter selects everything.
type Filter struct {
	Types    []string
	AfterSeq int64
	Limit    int
}

// AppendEvent journals a dispatched event. Uses ON CONFLICT(seq) DO NOTHING
// for idempotency - an event appended twice is stored once.
func (s *Store) AppendEvent(ctx context.Context, ev event.Event) error {
	if ev.Seq <= 0 {
		return fmt.Errorf("append event %s: event has no seq", ev.Type)
	}
	data, err := sonic.Marshal(ev.Data)
	if err != nil {
		return fmt.Errorf("append event %s: marshal: %w", ev.Type, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO events (seq, id, type, origin, data)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(seq) DO NOTHING
	`,
		ev.Seq,
		ev.ID,
		ev.Type,
		ev.Origin.String(),
		string(data),
	)
	if err != nil {
		return fmt.Errorf("append event %s: %w", ev.Type, err)
	}
	return nil
}

// ReadEvents returns journaled events matching f, ordered by seq.
// Returns an empty slice (not nil) if nothing matches.
func (s *Store) ReadEvents(ctx context.Context, f Filter) ([]Record, error) {
	var (
		where []string
		args  []any
	)
	if f.AfterSeq > 0 {
		where = append(where, "seq > ?")
		args = append(args, f.AfterSeq)
	}
	if len(f.Types) > 0 {
		where = append(where, "type IN (?"+strings.Repeat(", ?", len(f.Types)-1)+")")
		for _, t := range f.Types {
			args = append(args, t)
		}
	}

	query := "SELECT seq, id, type, origin, data FROM events"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY seq ASC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	out := []Record{}
	for rows.Next() {
		var (
			rec  Record
			data string
		)
		if err := rows.Scan(&rec.Seq, &rec.ID, &rec.Type, &rec.Origin, &data); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		rec.Data = []byte(data)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return out, nil
}
