package infra

import (
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	sqlcipher "github.com/mutecomm/go-sqlcipher/v4"

	"github.com/eliteGoblin/macroflow/internal/domain"
)

// Ensure sqlcipher driver is registered.
var _ = sqlcipher.ErrBusy

const (
	runStoreDBName = "history.db"
)

// EncryptedRunStore implements domain.RunStore using a SQLCipher encrypted
// SQLite database.
type EncryptedRunStore struct {
	db     *sql.DB
	dbPath string
}

// NewEncryptedRunStore opens (or creates) the encrypted history database.
// The key is used as the SQLCipher passphrase via PRAGMA key.
func NewEncryptedRunStore(dataDir string, key []byte) (*EncryptedRunStore, error) {
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, runStoreDBName)
	dsn := fmt.Sprintf("%s?_pragma_key=x'%s'&_pragma_cipher_page_size=4096", dbPath, hex.EncodeToString(key))
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open encrypted database: %w", err)
	}

	// A wrong key only surfaces on first access.
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to encrypted database: %w", err)
	}

	store := &EncryptedRunStore{db: db, dbPath: dbPath}
	if err := store.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return store, nil
}

// OpenRunStore loads (or creates) the store key and opens the history database.
func OpenRunStore(dataDir string, keys domain.KeyProvider) (*EncryptedRunStore, error) {
	key, err := LoadOrCreateKey(keys)
	if err != nil {
		return nil, err
	}
	return NewEncryptedRunStore(dataDir, key)
}

func (s *EncryptedRunStore) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		started_at INTEGER NOT NULL,
		finished_at INTEGER NOT NULL DEFAULT 0,
		success INTEGER NOT NULL DEFAULT 0,
		action_count INTEGER NOT NULL DEFAULT 0,
		loops INTEGER NOT NULL DEFAULT 0,
		loops_completed INTEGER NOT NULL DEFAULT 0,
		dry_run INTEGER NOT NULL DEFAULT 0,
		transitions INTEGER NOT NULL DEFAULT 0,
		error TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs (started_at);

	CREATE TABLE IF NOT EXISTS instance (
		slot INTEGER PRIMARY KEY CHECK (slot = 1),
		pid INTEGER NOT NULL,
		started_at INTEGER NOT NULL,
		last_heartbeat INTEGER NOT NULL,
		app_version TEXT NOT NULL DEFAULT ''
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// SaveRun inserts or replaces a run record. The ID must be a UUID.
func (s *EncryptedRunStore) SaveRun(run domain.RunRecord) error {
	if _, err := uuid.Parse(run.ID); err != nil {
		return fmt.Errorf("invalid run id %q: %w", run.ID, err)
	}
	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO runs (id, kind, started_at, finished_at, success, action_count,
			loops, loops_completed, dry_run, transitions, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, string(run.Kind), unixNano(run.StartedAt), unixNano(run.FinishedAt), run.Success,
		run.ActionCount, run.Loops, run.LoopsCompleted, run.DryRun, run.Transitions, run.Error,
	)
	if err != nil {
		return fmt.Errorf("failed to save run %s: %w", run.ID, err)
	}
	return nil
}

const runColumns = `id, kind, started_at, finished_at, success, action_count,
	loops, loops_completed, dry_run, transitions, error`

// GetRun returns a single run record.
func (s *EncryptedRunStore) GetRun(id string) (*domain.RunRecord, error) {
	row := s.db.QueryRow(`SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return run, nil
}

// ListRuns returns up to limit records, newest first. A limit <= 0 returns all.
func (s *EncryptedRunStore) ListRuns(limit int) ([]domain.RunRecord, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.Query(`SELECT `+runColumns+` FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []domain.RunRecord
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*domain.RunRecord, error) {
	var (
		run               domain.RunRecord
		kind              string
		started, finished int64
		success, dryRun   bool
	)
	err := row.Scan(&run.ID, &kind, &started, &finished, &success, &run.ActionCount,
		&run.Loops, &run.LoopsCompleted, &dryRun, &run.Transitions, &run.Error)
	if err != nil {
		return nil, err
	}
	run.Kind = domain.RunKind(kind)
	run.StartedAt = fromUnixNano(started)
	run.FinishedAt = fromUnixNano(finished)
	run.Success = success
	run.DryRun = dryRun
	return &run, nil
}

// RegisterInstance records inst as the live session, replacing any previous marker.
func (s *EncryptedRunStore) RegisterInstance(inst domain.Instance) error {
	now := time.Now()
	started := inst.StartedAt
	if started.IsZero() {
		started = now
	}
	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO instance (slot, pid, started_at, last_heartbeat, app_version)
		VALUES (1, ?, ?, ?, ?)`,
		inst.PID, unixNano(started), unixNano(now), inst.AppVersion,
	)
	return err
}

// GetInstance returns the registered instance, or nil when none is registered.
func (s *EncryptedRunStore) GetInstance() (*domain.Instance, error) {
	var (
		inst               domain.Instance
		started, heartbeat int64
	)
	err := s.db.QueryRow(`SELECT pid, started_at, last_heartbeat, app_version FROM instance WHERE slot = 1`).
		Scan(&inst.PID, &started, &heartbeat, &inst.AppVersion)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	inst.StartedAt = fromUnixNano(started)
	inst.LastHeartbeat = fromUnixNano(heartbeat)
	return &inst, nil
}

// ClearInstance removes the marker when it belongs to pid.
func (s *EncryptedRunStore) ClearInstance(pid int) error {
	_, err := s.db.Exec(`DELETE FROM instance WHERE pid = ?`, pid)
	return err
}

// UpdateHeartbeat refreshes the liveness timestamp of the instance owned by pid.
func (s *EncryptedRunStore) UpdateHeartbeat(pid int) error {
	result, err := s.db.Exec(`UPDATE instance SET last_heartbeat = ? WHERE pid = ?`,
		unixNano(time.Now()), pid)
	if err != nil {
		return err
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("instance %d: %w", pid, domain.ErrNotFound)
	}
	return nil
}

// Path returns the database file path.
func (s *EncryptedRunStore) Path() string {
	return s.dbPath
}

// Close releases the database connection.
func (s *EncryptedRunStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func unixNano(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromUnixNano(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}

var _ domain.RunStore = (*EncryptedRunStore)(nil)
