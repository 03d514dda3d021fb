package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/verte-zerg/neotype/internal/telemetry"
)

// SpoolTelemetry replaces the spooled upload queue with entries.
func (s *Store) SpoolTelemetry(ctx context.Context, entries []telemetry.Entry) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			if rerr := tx.Rollback(); rerr != nil {
				// Best-effort rollback.
				_ = rerr
			}
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM telemetry_spool`); err != nil {
		return err
	}
	for i, e := range entries {
		payload, merr := json.Marshal(e.Payload)
		if merr != nil {
			err = fmt.Errorf("failed to encode telemetry entry: %w", merr)
			return err
		}
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO telemetry_spool (id, seq, queued_at, payload_json) VALUES (?, ?, ?, ?)`,
			e.ID, i, e.QueuedAt.UTC().Format(timeLayout), string(payload),
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// LoadTelemetry returns the spooled entries in queue order. The spool is
// left in place until SpoolTelemetry replaces it.
func (s *Store) LoadTelemetry(ctx context.Context) ([]telemetry.Entry, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, queued_at, payload_json FROM telemetry_spool ORDER BY seq ASC`)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			// Best-effort rows close.
			_ = cerr
		}
	}()

	var entries []telemetry.Entry
	for rows.Next() {
		var e telemetry.Entry
		var queuedAt, payload string
		if err := rows.Scan(&e.ID, &queuedAt, &payload); err != nil {
			return nil, err
		}
		if e.QueuedAt, err = time.Parse(time.RFC3339Nano, queuedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(payload), &e.Payload); err != nil {
			return nil, fmt.Errorf("failed to decode telemetry entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}
