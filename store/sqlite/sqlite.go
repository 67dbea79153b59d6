/*
Package sqlite provides a SQLite-backed implementation of engine.RecordStore.

PURPOSE:
  Production persistence for TOIL accrual and usage records. The same
  patterns apply to PostgreSQL - only minor SQL dialect differences.

MERGE-ON-WRITE:
  Append uses INSERT OR IGNORE keyed on the record ID, which gives the
  union-by-id merge contract directly: two writers appending distinct
  records never erase each other, and re-appending an existing ID is a
  no-op. Record rows are never updated in place except for the status
  flip performed by VoidDuplicates.

WAL MODE:
  The database is opened with WAL (Write-Ahead Logging):
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery

USAGE:
  store, err := sqlite.New("./data/toil.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - engine/store.go: Interface definition and invariants
  - store/shared:    Filesystem-shared implementation
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/warp/toil-engine/engine"
)

// Store implements engine.RecordStore using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a SQLite store at the given path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS toil_records (
		id         TEXT PRIMARY KEY,
		user_id    TEXT NOT NULL,
		date       TEXT NOT NULL,
		hours      TEXT NOT NULL,
		month_year TEXT NOT NULL,
		entry_id   TEXT NOT NULL,
		status     TEXT NOT NULL DEFAULT 'active',
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_toil_records_user_month
		ON toil_records(user_id, month_year);
	CREATE INDEX IF NOT EXISTS idx_toil_records_dedup
		ON toil_records(user_id, date, entry_id);

	CREATE TABLE IF NOT EXISTS toil_usage (
		id         TEXT PRIMARY KEY,
		user_id    TEXT NOT NULL,
		date       TEXT NOT NULL,
		hours      TEXT NOT NULL,
		month_year TEXT NOT NULL,
		entry_id   TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_toil_usage_user_month
		ON toil_usage(user_id, month_year);
	`
	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// RECORD OPERATIONS
// =============================================================================

func (s *Store) Append(ctx context.Context, rec engine.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO toil_records
			(id, user_id, date, hours, month_year, entry_id, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		string(rec.ID), string(rec.UserID),
		rec.Date.UTC().Format("2006-01-02"),
		rec.Hours.Value.String(),
		string(rec.MonthYear), rec.EntryID,
		string(rec.Status),
		rec.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("append record: %w", err)
	}
	return nil
}

func (s *Store) ListByUser(ctx context.Context, userID engine.UserID) ([]engine.Record, error) {
	return s.queryRecords(ctx, `
		SELECT id, user_id, date, hours, month_year, entry_id, status, created_at
		FROM toil_records WHERE user_id = ? ORDER BY date`,
		string(userID))
}

func (s *Store) ListByUserMonth(ctx context.Context, userID engine.UserID, month engine.MonthYear) ([]engine.Record, error) {
	return s.queryRecords(ctx, `
		SELECT id, user_id, date, hours, month_year, entry_id, status, created_at
		FROM toil_records WHERE user_id = ? AND month_year = ? ORDER BY date`,
		string(userID), string(month))
}

// VoidDuplicates voids all but the newest active record per
// (user_id, date, entry_id) key, newest by created_at then rowid.
func (s *Store) VoidDuplicates(ctx context.Context, userID engine.UserID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		UPDATE toil_records SET status = 'voided'
		WHERE user_id = ? AND status = 'active' AND EXISTS (
			SELECT 1 FROM toil_records newer
			WHERE newer.user_id = toil_records.user_id
			AND newer.date = toil_records.date
			AND newer.entry_id = toil_records.entry_id
			AND newer.status = 'active'
			AND (newer.created_at > toil_records.created_at
				OR (newer.created_at = toil_records.created_at
					AND newer.rowid > toil_records.rowid))
		)`,
		string(userID))
	if err != nil {
		return 0, fmt.Errorf("void duplicates: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func (s *Store) AppendUsage(ctx context.Context, rec engine.UsageRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO toil_usage
			(id, user_id, date, hours, month_year, entry_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		string(rec.ID), string(rec.UserID),
		rec.Date.UTC().Format("2006-01-02"),
		rec.Hours.Value.String(),
		string(rec.MonthYear), rec.EntryID,
		rec.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("append usage: %w", err)
	}
	return nil
}

func (s *Store) ListUsageByUserMonth(ctx context.Context, userID engine.UserID, month engine.MonthYear) ([]engine.UsageRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, date, hours, month_year, entry_id, created_at
		FROM toil_usage WHERE user_id = ? AND month_year = ? ORDER BY date`,
		string(userID), string(month))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []engine.UsageRecord
	for rows.Next() {
		var (
			rec                    engine.UsageRecord
			id, user, date, hours  string
			my, entryID, createdAt string
		)
		if err := rows.Scan(&id, &user, &date, &hours, &my, &entryID, &createdAt); err != nil {
			return nil, err
		}
		rec.ID = engine.RecordID(id)
		rec.UserID = engine.UserID(user)
		rec.MonthYear = engine.MonthYear(my)
		rec.EntryID = entryID
		if rec.Date, err = time.Parse("2006-01-02", date); err != nil {
			return nil, fmt.Errorf("parse usage date %q: %w", date, err)
		}
		if rec.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
			return nil, fmt.Errorf("parse usage created_at %q: %w", createdAt, err)
		}
		d, err := decimal.NewFromString(hours)
		if err != nil {
			return nil, fmt.Errorf("parse usage hours %q: %w", hours, err)
		}
		rec.Hours = engine.Hours{Value: d}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *Store) ListUsers(ctx context.Context) ([]engine.UserID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id FROM toil_records
		UNION SELECT user_id FROM toil_usage
		ORDER BY user_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []engine.UserID
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, err
		}
		out = append(out, engine.UserID(u))
	}
	return out, rows.Err()
}

// =============================================================================
// SCAN HELPERS
// =============================================================================

func (s *Store) queryRecords(ctx context.Context, query string, args ...any) ([]engine.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []engine.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func scanRecord(rows *sql.Rows) (engine.Record, error) {
	var (
		rec                           engine.Record
		id, user, date, hours         string
		my, entryID, status, createdAt string
	)
	if err := rows.Scan(&id, &user, &date, &hours, &my, &entryID, &status, &createdAt); err != nil {
		return engine.Record{}, err
	}

	rec.ID = engine.RecordID(id)
	rec.UserID = engine.UserID(user)
	rec.MonthYear = engine.MonthYear(my)
	rec.EntryID = entryID
	rec.Status = engine.RecordStatus(status)

	var err error
	if rec.Date, err = time.Parse("2006-01-02", date); err != nil {
		return engine.Record{}, fmt.Errorf("parse record date %q: %w", date, err)
	}
	if rec.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return engine.Record{}, fmt.Errorf("parse record created_at %q: %w", createdAt, err)
	}
	d, err := decimal.NewFromString(hours)
	if err != nil {
		return engine.Record{}, fmt.Errorf("parse record hours %q: %w", hours, err)
	}
	rec.Hours = engine.Hours{Value: d}
	return rec, nil
}
