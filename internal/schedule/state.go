package schedule

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/redis/go-redis/v9"
	_ "modernc.org/sqlite"
)

// TimeLayout is the local timestamp format of last_run
const TimeLayout = "2006-01-02T15:04:05"

// Run statuses
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// JobState is what the scheduler remembers about a job's last run
type JobState struct {
	LastRun     string  `json:"last_run,omitempty"`
	LastStatus  string  `json:"last_status,omitempty"`
	LastElapsed float64 `json:"last_elapsed,omitempty"`
	LastError   string  `json:"last_error,omitempty"`
}

// LastRunTime parses LastRun in loc. It accepts fractional seconds and
// RFC 3339 timestamps written by other tools.
func (s JobState) LastRunTime(loc *time.Location) (time.Time, bool) {
	if s.LastRun == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339Nano, s.LastRun); err == nil {
		return t.In(loc), true
	}
	for _, layout := range []string{TimeLayout, "2006-01-02T15:04:05.999999999"} {
		if t, err := time.ParseInLocation(layout, s.LastRun, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// State maps job ids to their last run
type State map[string]JobState

// StateStore persists run state between scheduler invocations
type StateStore interface {
	Load(ctx context.Context) (State, error)
	Save(ctx context.Context, state State) error
}

// FileStore keeps state in a JSON file
type FileStore struct {
	path string
}

// NewFileStore creates a store backed by path
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Load reads the state file; a missing file is an empty state
func (s *FileStore) Load(ctx context.Context) (State, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return State{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read state: %w", err)
	}

	state := State{}
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to parse state: %w", err)
	}
	return state, nil
}

// Save rewrites the state file
func (s *FileStore) Save(ctx context.Context, state State) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(state); err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create state directory: %w", err)
		}
	}
	if err := os.WriteFile(s.path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("failed to write state: %w", err)
	}
	return nil
}

// RedisStore keeps state in a Redis hash, one JSON field per job
type RedisStore struct {
	client redis.Cmdable
	key    string
}

// NewRedisStore creates a store on the hash at key
func NewRedisStore(client redis.Cmdable, key string) *RedisStore {
	return &RedisStore{client: client, key: key}
}

// Load reads every job entry of the hash
func (s *RedisStore) Load(ctx context.Context) (State, error) {
	fields, err := s.client.HGetAll(ctx, s.key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read state: %w", err)
	}

	state := make(State, len(fields))
	for id, raw := range fields {
		var js JobState
		if err := json.Unmarshal([]byte(raw), &js); err != nil {
			return nil, fmt.Errorf("failed to parse state of %s: %w", id, err)
		}
		state[id] = js
	}
	return state, nil
}

// Save writes every job entry; entries absent from state are kept
func (s *RedisStore) Save(ctx context.Context, state State) error {
	if len(state) == 0 {
		return nil
	}

	values := make(map[string]interface{}, len(state))
	for id, js := range state {
		data, err := json.Marshal(js)
		if err != nil {
			return fmt.Errorf("failed to marshal state of %s: %w", id, err)
		}
		values[id] = string(data)
	}

	if err := s.client.HSet(ctx, s.key, values).Err(); err != nil {
		return fmt.Errorf("failed to write state: %w", err)
	}
	return nil
}

// SQLiteStore keeps state in a SQLite table
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (and creates) the database at path
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	_, err = db.Exec(`
	CREATE TABLE IF NOT EXISTS job_state (
		job_id TEXT PRIMARY KEY,
		last_run TEXT NOT NULL DEFAULT '',
		last_status TEXT NOT NULL DEFAULT '',
		last_elapsed REAL NOT NULL DEFAULT 0,
		last_error TEXT NOT NULL DEFAULT ''
	);`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create state table: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Load reads all job rows
func (s *SQLiteStore) Load(ctx context.Context) (State, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT job_id, last_run, last_status, last_elapsed, last_error FROM job_state`)
	if err != nil {
		return nil, fmt.Errorf("failed to read state: %w", err)
	}
	defer rows.Close()

	state := State{}
	for rows.Next() {
		var id string
		var js JobState
		if err := rows.Scan(&id, &js.LastRun, &js.LastStatus, &js.LastElapsed, &js.LastError); err != nil {
			return nil, fmt.Errorf("failed to scan state: %w", err)
		}
		state[id] = js
	}
	return state, rows.Err()
}

// Save upserts one row per job in a single transaction
func (s *SQLiteStore) Save(ctx context.Context, state State) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
	INSERT INTO job_state (job_id, last_run, last_status, last_elapsed, last_error)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(job_id) DO UPDATE SET
		last_run = excluded.last_run,
		last_status = excluded.last_status,
		last_elapsed = excluded.last_elapsed,
		last_error = excluded.last_error`)
	if err != nil {
		return fmt.Errorf("failed to prepare upsert: %w", err)
	}
	defer stmt.Close()

	for id, js := range state {
		if _, err := stmt.ExecContext(ctx, id, js.LastRun, js.LastStatus, js.LastElapsed, js.LastError); err != nil {
			return fmt.Errorf("failed to save state of %s: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit state: %w", err)
	}
	return nil
}

// Close closes the database
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
