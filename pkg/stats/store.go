package stats

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"

	// SQLite driver
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store persists sessions, runs, and errors in sqlite.
type Store struct {
	db   *sql.DB
	path string
}

// NewStore prepares a store for the given database path.
func NewStore(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("database path is required")
	}
	return &Store{path: path}, nil
}

// Init opens the database in WAL mode and verifies the connection.
func (s *Store) Init(ctx context.Context) error {
	dsn := fmt.Sprintf("%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL", s.path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	// One writer is plenty; the engine is the only producer.
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	s.db = db
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Migrate applies the embedded schema migrations.
func (s *Store) Migrate(_ context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}
	driver, err := sqlite3.WithInstance(s.db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// StartSession creates a session row and returns its ID.
func (s *Store) StartSession(ctx context.Context, character string) (string, error) {
	id := uuid.New().String()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, character, started_at) VALUES (?, ?, ?)`,
		id, character, time.Now().UTC())
	if err != nil {
		return "", fmt.Errorf("failed to create session: %w", err)
	}
	return id, nil
}

// EndSession stamps the session's end time.
func (s *Store) EndSession(ctx context.Context, sessionID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET ended_at = ? WHERE id = ?`,
		time.Now().UTC(), sessionID)
	if err != nil {
		return fmt.Errorf("failed to end session: %w", err)
	}
	return nil
}

// RecordRun inserts a run record and bumps the session counters in one
// transaction.
func (s *Store) RecordRun(ctx context.Context, rec RunRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (id, session_id, name, status, started_at, duration_ms, kills, items_picked, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.SessionID, rec.Name, rec.Status, rec.StartedAt.UTC(),
		rec.Duration.Milliseconds(), rec.Kills, rec.ItemsPicked, rec.Error)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	success := 0
	if rec.Status == "succeeded" {
		success = 1
	}
	death := 0
	if rec.Status == "died" {
		death = 1
	}
	chicken := 0
	if rec.Status == "chickened" {
		chicken = 1
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE sessions
		 SET runs = runs + 1,
		     successes = successes + ?,
		     deaths = deaths + ?,
		     chickens = chickens + ?,
		     items_found = items_found + ?
		 WHERE id = ?`,
		success, death, chicken, rec.ItemsPicked, rec.SessionID)
	if err != nil {
		return fmt.Errorf("failed to update session counters: %w", err)
	}

	return tx.Commit()
}

// RecordError inserts an error record and bumps the session counter.
func (s *Store) RecordError(ctx context.Context, rec ErrorRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.At.IsZero() {
		rec.At = time.Now()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO errors (id, session_id, kind, severity, origin, message, at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.SessionID, rec.Kind, rec.Severity, rec.Origin, rec.Message, rec.At.UTC())
	if err != nil {
		return fmt.Errorf("failed to insert error: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE sessions SET errors = errors + 1 WHERE id = ?`, rec.SessionID)
	if err != nil {
		return fmt.Errorf("failed to update session counters: %w", err)
	}

	return tx.Commit()
}

// GetSession loads one session row.
func (s *Store) GetSession(ctx context.Context, sessionID string) (*Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, character, started_at, ended_at, runs, successes, deaths, chickens, errors, items_found
		 FROM sessions WHERE id = ?`, sessionID)

	var sess Session
	var ended sql.NullTime
	err := row.Scan(&sess.ID, &sess.Character, &sess.StartedAt, &ended,
		&sess.Runs, &sess.Successes, &sess.Deaths, &sess.Chickens,
		&sess.Errors, &sess.ItemsFound)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("session %s not found", sessionID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	if ended.Valid {
		sess.EndedAt = &ended.Time
	}
	return &sess, nil
}

// LatestSession returns the most recently started session, or nil when
// the table is empty.
func (s *Store) LatestSession(ctx context.Context) (*Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id FROM sessions ORDER BY started_at DESC LIMIT 1`)

	var id string
	err := row.Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find latest session: %w", err)
	}
	return s.GetSession(ctx, id)
}

// Summarize aggregates a session's runs for display.
func (s *Store) Summarize(ctx context.Context, sessionID string) (*Summary, error) {
	sess, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT name, COUNT(*), COALESCE(AVG(duration_ms), 0)
		 FROM runs WHERE session_id = ? GROUP BY name`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate runs: %w", err)
	}
	defer rows.Close()

	sum := &Summary{Session: *sess, RunsByName: make(map[string]int)}
	var totalAvg float64
	var groups int
	for rows.Next() {
		var name string
		var count int
		var avgMs float64
		if err := rows.Scan(&name, &count, &avgMs); err != nil {
			return nil, fmt.Errorf("failed to scan aggregate: %w", err)
		}
		sum.RunsByName[name] = count
		totalAvg += avgMs
		groups++
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if groups > 0 {
		sum.AvgDuration = time.Duration(totalAvg/float64(groups)) * time.Millisecond
	}
	if sess.Runs > 0 {
		sum.SuccessRate = float64(sess.Successes) / float64(sess.Runs)
	}
	return sum, nil
}
