/*
Package shared persists TOIL records as JSON documents shared between
execution contexts.

PURPOSE:
  Several contexts (processes, components, tabs behind a local bridge) may
  write to the same collections concurrently. Every write follows the
  read-merge-write contract: acquire the lock lease, re-read current
  persisted state, union by record ID, write back atomically. A plain
  last-writer-wins overwrite would let two writers computing different
  days erase each other's records.

LOCK LEASE:
  A lock file taken with O_EXCL guards the read-merge-write sequence. The
  lease auto-expires: a lock older than the TTL (default 2s) is presumed
  abandoned by a crashed writer and is stolen. Writers that cannot acquire
  the lock retry with backoff and eventually return ErrLockUnavailable -
  deferred, never silently dropped.

CORRUPTION:
  A document that fails to parse is backed up with a .corrupt suffix and
  reset to an empty collection. Logged as a warning, never fatal.

FILES:
  toil_records.json   Accrual records
  toil_usage.json     Usage records
  toil_events.json    Cross-context event journal (see Notifier)
  .toil.lock          Lock lease
*/
package shared

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/warp/toil-engine/engine"
)

const (
	recordsFile = "toil_records.json"
	usageFile   = "toil_usage.json"
	lockFile    = ".toil.lock"
)

// =============================================================================
// STORE
// =============================================================================

type Config struct {
	// LockTTL is the lease after which a held lock is presumed abandoned.
	LockTTL time.Duration

	// LockAttempts and LockBackoff shape the acquisition retry loop.
	LockAttempts int
	LockBackoff  time.Duration
}

func DefaultConfig() Config {
	return Config{
		LockTTL:      2 * time.Second,
		LockAttempts: 8,
		LockBackoff:  50 * time.Millisecond,
	}
}

// Store implements engine.RecordStore over a shared directory.
type Store struct {
	dir string
	cfg Config
	now func() time.Time
}

func New(dir string, cfg Config) (*Store, error) {
	def := DefaultConfig()
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = def.LockTTL
	}
	if cfg.LockAttempts <= 0 {
		cfg.LockAttempts = def.LockAttempts
	}
	if cfg.LockBackoff <= 0 {
		cfg.LockBackoff = def.LockBackoff
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return &Store{dir: dir, cfg: cfg, now: time.Now}, nil
}

// =============================================================================
// RECORD OPERATIONS
// =============================================================================

func (s *Store) Append(ctx context.Context, rec engine.Record) error {
	return s.withLock(ctx, func() error {
		recs, err := s.loadRecords()
		if err != nil {
			return err
		}
		merged, changed := unionRecords(recs, rec)
		if !changed {
			return nil
		}
		return s.saveRecords(merged)
	})
}

func (s *Store) ListByUser(_ context.Context, userID engine.UserID) ([]engine.Record, error) {
	recs, err := s.loadRecords()
	if err != nil {
		return nil, err
	}
	var out []engine.Record
	for _, r := range recs {
		if r.UserID == userID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (s *Store) ListByUserMonth(ctx context.Context, userID engine.UserID, month engine.MonthYear) ([]engine.Record, error) {
	recs, err := s.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	var out []engine.Record
	for _, r := range recs {
		if r.MonthYear == month {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *Store) VoidDuplicates(ctx context.Context, userID engine.UserID) (int, error) {
	voided := 0
	err := s.withLock(ctx, func() error {
		recs, err := s.loadRecords()
		if err != nil {
			return err
		}

		keep := make(map[string]int) // dedup key -> index of newest active record
		for i, r := range recs {
			if r.UserID != userID || r.Status != engine.StatusActive {
				continue
			}
			k := r.DedupKey()
			j, seen := keep[k]
			if !seen || r.CreatedAt.After(recs[j].CreatedAt) {
				keep[k] = i
			}
		}

		voided = 0
		for i, r := range recs {
			if r.UserID != userID || r.Status != engine.StatusActive {
				continue
			}
			if keep[r.DedupKey()] != i {
				recs[i].Status = engine.StatusVoided
				voided++
			}
		}
		if voided == 0 {
			return nil
		}
		return s.saveRecords(recs)
	})
	return voided, err
}

func (s *Store) AppendUsage(ctx context.Context, rec engine.UsageRecord) error {
	return s.withLock(ctx, func() error {
		usage, err := s.loadUsage()
		if err != nil {
			return err
		}
		for _, u := range usage {
			if u.ID == rec.ID {
				return nil
			}
		}
		return s.saveUsage(append(usage, rec))
	})
}

func (s *Store) ListUsageByUserMonth(_ context.Context, userID engine.UserID, month engine.MonthYear) ([]engine.UsageRecord, error) {
	usage, err := s.loadUsage()
	if err != nil {
		return nil, err
	}
	var out []engine.UsageRecord
	for _, u := range usage {
		if u.UserID == userID && u.MonthYear == month {
			out = append(out, u)
		}
	}
	return out, nil
}

func (s *Store) ListUsers(_ context.Context) ([]engine.UserID, error) {
	recs, err := s.loadRecords()
	if err != nil {
		return nil, err
	}
	usage, err := s.loadUsage()
	if err != nil {
		return nil, err
	}

	seen := make(map[engine.UserID]bool)
	var out []engine.UserID
	for _, r := range recs {
		if !seen[r.UserID] {
			seen[r.UserID] = true
			out = append(out, r.UserID)
		}
	}
	for _, u := range usage {
		if !seen[u.UserID] {
			seen[u.UserID] = true
			out = append(out, u.UserID)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

// unionRecords merges a new record into the set by ID.
func unionRecords(recs []engine.Record, rec engine.Record) ([]engine.Record, bool) {
	for _, r := range recs {
		if r.ID == rec.ID {
			return recs, false
		}
	}
	return append(recs, rec), true
}

// =============================================================================
// LOCK LEASE
// =============================================================================

// withLock runs fn holding the merge lock, retrying acquisition with
// backoff. Locks older than the TTL are stolen.
func (s *Store) withLock(ctx context.Context, fn func() error) error {
	path := filepath.Join(s.dir, lockFile)

	for attempt := 0; attempt < s.cfg.LockAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
		if err == nil {
			fmt.Fprintf(f, "%d\n", s.now().UnixMilli())
			f.Close()
			defer os.Remove(path)
			return fn()
		}
		if !os.IsExist(err) {
			return fmt.Errorf("acquire lock: %w", err)
		}

		if info, statErr := os.Stat(path); statErr == nil && s.now().Sub(info.ModTime()) > s.cfg.LockTTL {
			// Abandoned lease from a crashed writer.
			log.Printf("[SharedStore] stealing expired lock at %s", path)
			_ = os.Remove(path)
			continue
		}

		time.Sleep(s.cfg.LockBackoff * time.Duration(attempt+1))
	}
	return engine.ErrLockUnavailable
}

// =============================================================================
// DOCUMENT IO
// =============================================================================

func (s *Store) loadRecords() ([]engine.Record, error) {
	var recs []engine.Record
	if err := s.loadDocument(recordsFile, &recs); err != nil {
		return nil, err
	}
	return recs, nil
}

func (s *Store) saveRecords(recs []engine.Record) error {
	return s.saveDocument(recordsFile, recs)
}

func (s *Store) loadUsage() ([]engine.UsageRecord, error) {
	var usage []engine.UsageRecord
	if err := s.loadDocument(usageFile, &usage); err != nil {
		return nil, err
	}
	return usage, nil
}

func (s *Store) saveUsage(usage []engine.UsageRecord) error {
	return s.saveDocument(usageFile, usage)
}

// loadDocument reads a JSON collection. A corrupt document is backed up
// and reset to empty: self-healing, logged, never fatal.
func (s *Store) loadDocument(name string, v any) error {
	path := filepath.Join(s.dir, name)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := json.Unmarshal(data, v); err != nil {
		backup := path + ".corrupt"
		_ = os.Rename(path, backup)
		cerr := &engine.CorruptStateError{Collection: name, Path: path, Cause: err}
		log.Printf("[SharedStore] %v (backed up to %s)", cerr, backup)
		return nil
	}
	return nil
}

// saveDocument writes atomically: temp file then rename.
func (s *Store) saveDocument(name string, v any) error {
	path := filepath.Join(s.dir, name)
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", name, err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rename %s: %w", tmp, err)
	}
	return nil
}
