// Package store handles SQLite persistence.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/verte-zerg/neotype/internal/model"
	"github.com/verte-zerg/neotype/internal/stats"

	_ "modernc.org/sqlite" // SQLite driver.
)

// DefaultHistoryLimit is how many finalized sessions are kept locally.
const DefaultHistoryLimit = 100

// Store wraps SQLite access for session data.
type Store struct {
	db *sql.DB
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Open opens or creates the SQLite database and applies migrations.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		if cerr := db.Close(); cerr != nil {
			// Best-effort close on migration failure.
			_ = cerr
		}
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			id INTEGER PRIMARY KEY,
			local_id TEXT NOT NULL UNIQUE,
			token TEXT NOT NULL,
			started_at TEXT NOT NULL,
			ended_at TEXT NOT NULL,
			duration INTEGER NOT NULL,
			difficulty TEXT NOT NULL,
			reference_text TEXT NOT NULL,
			typed_text TEXT NOT NULL,
			elapsed_seconds REAL NOT NULL,
			wpm REAL NOT NULL,
			accuracy REAL NOT NULL,
			correct_chars INTEGER NOT NULL,
			incorrect_chars INTEGER NOT NULL,
			focus_lost_count INTEGER NOT NULL,
			suspicious_count INTEGER NOT NULL,
			server_confirmed INTEGER NOT NULL,
			degraded INTEGER NOT NULL,
			aborted INTEGER NOT NULL,
			keystrokes_json TEXT NOT NULL,
			suspicious_json TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS aggregate (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			total_tests INTEGER NOT NULL,
			completed_tests INTEGER NOT NULL,
			avg_wpm REAL NOT NULL,
			avg_accuracy REAL NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS best_wpm (
			duration INTEGER PRIMARY KEY,
			wpm REAL NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS telemetry_spool (
			id TEXT PRIMARY KEY,
			seq INTEGER NOT NULL,
			queued_at TEXT NOT NULL,
			payload_json TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_ended_at ON sessions(ended_at);`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_duration ON sessions(duration);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// RecordSession stores a finalized session, folds it into the rolling
// aggregate and prunes history beyond keep sessions, all in one
// transaction. It reports whether the session set a local best for its
// duration.
func (s *Store) RecordSession(ctx context.Context, p model.Payload, keep int) (agg model.Aggregate, newBest bool, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Aggregate{}, false, err
	}
	defer func() {
		if err != nil {
			if rerr := tx.Rollback(); rerr != nil {
				// Best-effort rollback.
				_ = rerr
			}
		}
	}()

	if _, err = insertSession(ctx, tx, p); err != nil {
		return model.Aggregate{}, false, err
	}
	agg, err = loadAggregate(ctx, tx)
	if err != nil {
		return model.Aggregate{}, false, err
	}
	agg, newBest = stats.Fold(agg, p)
	if err = saveAggregate(ctx, tx, agg); err != nil {
		return model.Aggregate{}, false, err
	}
	if err = prune(ctx, tx, keep); err != nil {
		return model.Aggregate{}, false, err
	}
	if err = tx.Commit(); err != nil {
		return model.Aggregate{}, false, err
	}
	return agg, newBest, nil
}

func insertSession(ctx context.Context, q querier, p model.Payload) (int64, error) {
	keystrokes, err := json.Marshal(p.Keystrokes)
	if err != nil {
		return 0, fmt.Errorf("failed to encode keystrokes: %w", err)
	}
	suspicious, err := json.Marshal(p.Suspicious)
	if err != nil {
		return 0, fmt.Errorf("failed to encode suspicious events: %w", err)
	}
	res, err := q.ExecContext(ctx,
		`INSERT INTO sessions (local_id, token, started_at, ended_at, duration, difficulty, reference_text, typed_text,
			elapsed_seconds, wpm, accuracy, correct_chars, incorrect_chars, focus_lost_count, suspicious_count,
			server_confirmed, degraded, aborted, keystrokes_json, suspicious_json)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.LocalID,
		p.Token,
		p.StartedAt.UTC().Format(timeLayout),
		p.EndedAt.UTC().Format(timeLayout),
		p.Duration,
		string(p.Difficulty),
		p.ReferenceText,
		p.TypedText,
		p.ElapsedSeconds,
		p.Result.WPM,
		p.Result.Accuracy,
		p.Result.CorrectChars,
		p.Result.IncorrectChars,
		p.FocusLostCount,
		len(p.Suspicious),
		p.ServerConfirmed,
		p.Degraded,
		p.Aborted,
		string(keystrokes),
		string(suspicious),
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func loadAggregate(ctx context.Context, q querier) (model.Aggregate, error) {
	agg := model.Aggregate{BestWPM: map[int]float64{}}
	err := q.QueryRowContext(ctx,
		`SELECT total_tests, completed_tests, avg_wpm, avg_accuracy FROM aggregate WHERE id = 1`,
	).Scan(&agg.TotalTests, &agg.CompletedTests, &agg.AvgWPM, &agg.AvgAccuracy)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return model.Aggregate{}, err
	}

	rows, err := q.QueryContext(ctx, `SELECT duration, wpm FROM best_wpm`)
	if err != nil {
		return model.Aggregate{}, err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			// Best-effort rows close.
			_ = cerr
		}
	}()
	for rows.Next() {
		var duration int
		var wpm float64
		if err := rows.Scan(&duration, &wpm); err != nil {
			return model.Aggregate{}, err
		}
		agg.BestWPM[duration] = wpm
	}
	if err := rows.Err(); err != nil {
		return model.Aggregate{}, err
	}
	return agg, nil
}

func saveAggregate(ctx context.Context, q querier, agg model.Aggregate) error {
	if _, err := q.ExecContext(ctx,
		`INSERT INTO aggregate (id, total_tests, completed_tests, avg_wpm, avg_accuracy)
		 VALUES (1, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET total_tests = excluded.total_tests, completed_tests = excluded.completed_tests,
			avg_wpm = excluded.avg_wpm, avg_accuracy = excluded.avg_accuracy`,
		agg.TotalTests, agg.CompletedTests, agg.AvgWPM, agg.AvgAccuracy,
	); err != nil {
		return err
	}
	for duration, wpm := range agg.BestWPM {
		if _, err := q.ExecContext(ctx,
			`INSERT INTO best_wpm (duration, wpm) VALUES (?, ?)
			 ON CONFLICT(duration) DO UPDATE SET wpm = excluded.wpm`,
			duration, wpm,
		); err != nil {
			return err
		}
	}
	return nil
}

func prune(ctx context.Context, q querier, keep int) error {
	if keep <= 0 {
		return nil
	}
	_, err := q.ExecContext(ctx,
		`DELETE FROM sessions WHERE id NOT IN (
			SELECT id FROM sessions ORDER BY ended_at DESC, id DESC LIMIT ?
		)`, keep)
	return err
}

// Aggregate returns the rolling aggregate and per-duration bests.
func (s *Store) Aggregate(ctx context.Context) (model.Aggregate, error) {
	return loadAggregate(ctx, s.db)
}

// BestWPM returns the local best for a duration, if any.
func (s *Store) BestWPM(ctx context.Context, duration int) (float64, bool, error) {
	var wpm float64
	err := s.db.QueryRowContext(ctx, `SELECT wpm FROM best_wpm WHERE duration = ?`, duration).Scan(&wpm)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return wpm, true, nil
}

// ListSessions returns stored sessions filtered by stats config, oldest
// first.
func (s *Store) ListSessions(ctx context.Context, cfg model.StatsConfig) ([]model.SessionRecord, error) {
	clauses := []string{"1=1"}
	args := []any{}
	if cfg.Duration > 0 {
		clauses = append(clauses, "duration = ?")
		args = append(args, cfg.Duration)
	}
	if cfg.Since != nil {
		clauses = append(clauses, "ended_at >= ?")
		args = append(args, cfg.Since.UTC().Format(timeLayout))
	}
	query := fmt.Sprintf(`SELECT %s
		FROM sessions
		WHERE %s
		ORDER BY ended_at ASC, id ASC`, recordColumns, strings.Join(clauses, " AND "))
	return s.listRecords(ctx, query, args...)
}

// timeLayout is fixed width so stored timestamps sort as text in time order.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

const recordColumns = `id, local_id, ended_at, duration, difficulty, wpm, accuracy, elapsed_seconds,
	suspicious_count, server_confirmed, aborted`

// Lookup errors.
var (
	ErrNotFound  = errors.New("session not found")
	ErrAmbiguous = errors.New("session id prefix is ambiguous")
)

// FindSession returns the stored session whose local id starts with
// prefix.
func (s *Store) FindSession(ctx context.Context, prefix string) (model.SessionRecord, error) {
	if prefix == "" {
		return model.SessionRecord{}, ErrNotFound
	}
	escaped := strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`).Replace(prefix)
	records, err := s.listRecords(ctx,
		`SELECT `+recordColumns+` FROM sessions WHERE local_id LIKE ? ESCAPE '\' ORDER BY id LIMIT 2`,
		escaped+"%")
	if err != nil {
		return model.SessionRecord{}, err
	}
	switch len(records) {
	case 0:
		return model.SessionRecord{}, fmt.Errorf("%w: %s", ErrNotFound, prefix)
	case 1:
		return records[0], nil
	default:
		return model.SessionRecord{}, fmt.Errorf("%w: %s", ErrAmbiguous, prefix)
	}
}

func (s *Store) listRecords(ctx context.Context, query string, args ...any) ([]model.SessionRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			// Best-effort rows close.
			_ = cerr
		}
	}()

	var sessions []model.SessionRecord
	for rows.Next() {
		var rec model.SessionRecord
		var endedAt, difficulty string
		if err := rows.Scan(&rec.SessionID, &rec.LocalID, &endedAt, &rec.Duration, &difficulty, &rec.WPM,
			&rec.Accuracy, &rec.TypingTime, &rec.SuspiciousCount, &rec.ServerConfirmed, &rec.Aborted); err != nil {
			return nil, err
		}
		parsed, err := time.Parse(time.RFC3339Nano, endedAt)
		if err != nil {
			return nil, err
		}
		rec.EndedAt = parsed
		rec.Difficulty = model.Difficulty(difficulty)
		sessions = append(sessions, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return sessions, nil
}

// SuspiciousEvents returns the stored anti-cheat log of a session.
func (s *Store) SuspiciousEvents(ctx context.Context, localID string) ([]model.SuspiciousEvent, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT suspicious_json FROM sessions WHERE local_id = ?`, localID).Scan(&raw)
	if err != nil {
		return nil, err
	}
	var events []model.SuspiciousEvent
	if err := json.Unmarshal([]byte(raw), &events); err != nil {
		return nil, fmt.Errorf("failed to decode suspicious events: %w", err)
	}
	return events, nil
}
