package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/johpaz/smart-calendar-assistant/internal/conflict"
	"github.com/johpaz/smart-calendar-assistant/internal/domain"
	"github.com/johpaz/smart-calendar-assistant/internal/shared"
	_ "modernc.org/sqlite"
)

const (
	busyRetries   = 3
	busyBaseDelay = 100 * time.Millisecond
)

// SQLiteStore implements EventStore and SessionRepository using SQLite.
type SQLiteStore struct {
	db        *sql.DB
	writeMu   sync.Mutex // serializes event writes so check-then-write is atomic
	sessionMu sync.Mutex // Mutex for session operations to prevent SQLITE_BUSY
}

// NewSQLite creates a new SQLite-backed store.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// modernc.org/sqlite applies _pragma parameters on every new connection.
	dsn := dbPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		date TEXT NOT NULL,
		start_time TEXT NOT NULL,
		end_time TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_events_date ON events(date);

	CREATE TABLE IF NOT EXISTS chat_sessions (
		user_id TEXT PRIMARY KEY,
		context_json TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_chat_sessions_updated ON chat_sessions(updated_at);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

// Optimize refreshes query planner statistics and truncates the WAL.
func (s *SQLiteStore) Optimize(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `PRAGMA optimize`); err != nil {
		return fmt.Errorf("optimize: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `PRAGMA wal_checkpoint(TRUNCATE)`); err != nil {
		return fmt.Errorf("wal checkpoint: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (domain.Event, error) {
	var (
		e                domain.Event
		date, start, end string
	)
	if err := row.Scan(&e.ID, &e.Name, &date, &start, &end); err != nil {
		return domain.Event{}, err
	}
	var err error
	if e.Date, err = domain.ParseDate(date); err != nil {
		return domain.Event{}, fmt.Errorf("event %d: %w", e.ID, err)
	}
	if e.Start, err = domain.ParseClock(start); err != nil {
		return domain.Event{}, fmt.Errorf("event %d: %w", e.ID, err)
	}
	if e.End, err = domain.ParseClock(end); err != nil {
		return domain.Event{}, fmt.Errorf("event %d: %w", e.ID, err)
	}
	return e, nil
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func queryEvents(ctx context.Context, q querier, query string, args ...any) ([]domain.Event, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close event rows", "error", closeErr)
		}
	}()

	var events []domain.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event row: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	sortEvents(events)
	return events, nil
}

const eventColumns = `id, name, date, start_time, end_time`

// Create validates and inserts an event after checking for overlaps inside
// one transaction.
func (s *SQLiteStore) Create(ctx context.Context, ev domain.NewEvent) (domain.Event, error) {
	if err := ev.Validate(); err != nil {
		return domain.Event{}, err
	}
	candidate := ev.Event(0)

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	err := shared.RetryOnBusy(ctx, busyRetries, busyBaseDelay, func() error {
		return s.inTx(ctx, func(tx *sql.Tx) error {
			sameDay, err := queryEvents(ctx, tx, `SELECT `+eventColumns+` FROM events WHERE date = ?`, candidate.Date.String())
			if err != nil {
				return err
			}
			if err := conflict.Check(sameDay, candidate.Slot(), 0); err != nil {
				return err
			}
			now := time.Now().Unix()
			res, err := tx.ExecContext(ctx, `
				INSERT INTO events (name, date, start_time, end_time, created_at, updated_at)
				VALUES (?, ?, ?, ?, ?, ?)`,
				candidate.Name, candidate.Date.String(), candidate.Start.String(), candidate.End.String(), now, now)
			if err != nil {
				return fmt.Errorf("insert event: %w", err)
			}
			candidate.ID, err = res.LastInsertId()
			if err != nil {
				return fmt.Errorf("last insert id: %w", err)
			}
			return nil
		})
	})
	if err != nil {
		return domain.Event{}, err
	}
	return candidate, nil
}

// QueryRange returns events between start and end inclusive.
func (s *SQLiteStore) QueryRange(ctx context.Context, start, end domain.Date) ([]domain.Event, error) {
	if err := domain.ValidateRange(start, end); err != nil {
		return nil, err
	}
	return queryEvents(ctx, s.db,
		`SELECT `+eventColumns+` FROM events WHERE date >= ? AND date <= ?`,
		start.String(), end.String())
}

// Get retrieves an event by id.
func (s *SQLiteStore) Get(ctx context.Context, id int64) (domain.Event, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM events WHERE id = ?`, id)
	e, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Event{}, fmt.Errorf("event %d: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Event{}, fmt.Errorf("scan event: %w", err)
	}
	return e, nil
}

// Update applies a patch, checking overlaps against every other event on the
// resulting date.
func (s *SQLiteStore) Update(ctx context.Context, id int64, patch domain.EventPatch) (domain.Event, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	var updated domain.Event
	err := shared.RetryOnBusy(ctx, busyRetries, busyBaseDelay, func() error {
		return s.inTx(ctx, func(tx *sql.Tx) error {
			current, err := scanEvent(tx.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM events WHERE id = ?`, id))
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("event %d: %w", id, domain.ErrNotFound)
			}
			if err != nil {
				return fmt.Errorf("scan event: %w", err)
			}
			updated, err = patch.Apply(current)
			if err != nil {
				return err
			}
			sameDay, err := queryEvents(ctx, tx, `SELECT `+eventColumns+` FROM events WHERE date = ?`, updated.Date.String())
			if err != nil {
				return err
			}
			if err := conflict.Check(sameDay, updated.Slot(), id); err != nil {
				return err
			}
			_, err = tx.ExecContext(ctx, `
				UPDATE events SET name = ?, date = ?, start_time = ?, end_time = ?, updated_at = ?
				WHERE id = ?`,
				updated.Name, updated.Date.String(), updated.Start.String(), updated.End.String(), time.Now().Unix(), id)
			if err != nil {
				return fmt.Errorf("update event: %w", err)
			}
			return nil
		})
	})
	if err != nil {
		return domain.Event{}, err
	}
	return updated, nil
}

// Delete removes an event.
// Implements retry logic with exponential backoff to handle SQLITE_BUSY errors.
func (s *SQLiteStore) Delete(ctx context.Context, id int64) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	return shared.RetryOnBusy(ctx, busyRetries, busyBaseDelay, func() error {
		result, err := s.db.ExecContext(ctx, `DELETE FROM events WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("delete event: %w", err)
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("get rows affected: %w", err)
		}
		if rows == 0 {
			return fmt.Errorf("event %d: %w", id, domain.ErrNotFound)
		}
		return nil
	})
}

// SearchByName returns events whose name contains text. SQLite's LOWER folds
// ASCII only, so matching happens after the scan.
func (s *SQLiteStore) SearchByName(ctx context.Context, text string) ([]domain.Event, error) {
	all, err := queryEvents(ctx, s.db, `SELECT `+eventColumns+` FROM events`)
	if err != nil {
		return nil, err
	}
	var out []domain.Event
	for _, e := range all {
		if nameMatches(e.Name, text) {
			out = append(out, e)
		}
	}
	return out, nil
}

// SeedIfEmpty inserts events only when the events table is empty.
func (s *SQLiteStore) SeedIfEmpty(ctx context.Context, events []domain.NewEvent) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM events`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}
	if count > 0 {
		return 0, nil
	}
	for i, ev := range events {
		if _, err := s.Create(ctx, ev); err != nil {
			return i, fmt.Errorf("seed %q: %w", ev.Name, err)
		}
	}
	return len(events), nil
}

func (s *SQLiteStore) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			slog.Warn("rollback failed", "error", rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// GetSession retrieves the stored conversation context for a user.
func (s *SQLiteStore) GetSession(ctx context.Context, userID string) ([]byte, bool, error) {
	s.sessionMu.Lock()
	defer s.sessionMu.Unlock()

	var data string
	err := s.db.QueryRowContext(ctx, `SELECT context_json FROM chat_sessions WHERE user_id = ?`, userID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("scan chat session: %w", err)
	}
	return []byte(data), true, nil
}

// PutSession creates or updates the conversation context for a user.
func (s *SQLiteStore) PutSession(ctx context.Context, userID string, data []byte) error {
	s.sessionMu.Lock()
	defer s.sessionMu.Unlock()

	query := `
		INSERT INTO chat_sessions (user_id, context_json, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			context_json = excluded.context_json,
			updated_at = excluded.updated_at`

	now := time.Now().Unix()
	return shared.RetryOnBusy(ctx, busyRetries, busyBaseDelay, func() error {
		if _, err := s.db.ExecContext(ctx, query, userID, string(data), now, now); err != nil {
			return fmt.Errorf("upsert chat session: %w", err)
		}
		return nil
	})
}

// DeleteSession removes the conversation context for a user.
func (s *SQLiteStore) DeleteSession(ctx context.Context, userID string) error {
	s.sessionMu.Lock()
	defer s.sessionMu.Unlock()

	err := shared.RetryOnBusy(ctx, busyRetries, busyBaseDelay, func() error {
		if _, err := s.db.ExecContext(ctx, `DELETE FROM chat_sessions WHERE user_id = ?`, userID); err != nil {
			return fmt.Errorf("delete chat session: %w", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete chat session for %s after %d attempts: %w", userID, busyRetries, err)
	}
	return nil
}

// CleanupExpiredSessions removes sessions older than TTL.
func (s *SQLiteStore) CleanupExpiredSessions(ctx context.Context, ttl time.Duration) (int64, error) {
	threshold := time.Now().Add(-ttl).Unix()
	result, err := s.db.ExecContext(ctx, `DELETE FROM chat_sessions WHERE updated_at < ?`, threshold)
	if err != nil {
		return 0, fmt.Errorf("cleanup expired sessions: %w", err)
	}
	return result.RowsAffected()
}
