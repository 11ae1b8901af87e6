package services

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/flashbots/tdesoracle/protocol"
)

// PostgresStore implements SessionStore with PostgreSQL persistence.
type PostgresStore struct {
	db *sql.DB
}

var _ SessionStore = (*PostgresStore)(nil)

// PostgresConfig contains PostgreSQL connection settings.
type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"sslmode"`
}

// ConnectionString returns the PostgreSQL connection string.
func (c *PostgresConfig) ConnectionString() string {
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, sslMode)
}

// NewPostgresStore connects, pings and migrates the sessions table.
func NewPostgresStore(config *PostgresConfig) (*PostgresStore, error) {
	return OpenPostgresStore(config.ConnectionString())
}

// OpenPostgresStore is NewPostgresStore for a ready-made connection string.
func OpenPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	store := &PostgresStore{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return store, nil
}

func (s *PostgresStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS oracle_sessions (
		id VARCHAR(32) PRIMARY KEY,
		remote_addr VARCHAR(128) NOT NULL,
		started_at TIMESTAMP WITH TIME ZONE NOT NULL,
		ended_at TIMESTAMP WITH TIME ZONE NOT NULL,
		decrypts INTEGER NOT NULL,
		outcome VARCHAR(32) NOT NULL,
		candidate_fingerprint VARCHAR(64) NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_oracle_sessions_ended ON oracle_sessions(ended_at);
	CREATE INDEX IF NOT EXISTS idx_oracle_sessions_outcome ON oracle_sessions(outcome);
	`

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// SaveSession persists a session record.
func (s *PostgresStore) SaveSession(ctx context.Context, r *protocol.SessionRecord) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	query := `
	INSERT INTO oracle_sessions
		(id, remote_addr, started_at, ended_at, decrypts, outcome, candidate_fingerprint)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
	ON CONFLICT (id) DO UPDATE SET
		ended_at = EXCLUDED.ended_at,
		decrypts = EXCLUDED.decrypts,
		outcome = EXCLUDED.outcome,
		candidate_fingerprint = EXCLUDED.candidate_fingerprint
	`

	_, err := s.db.ExecContext(ctx, query,
		r.ID,
		r.RemoteAddr,
		r.StartedAt,
		r.EndedAt,
		r.Decrypts,
		string(r.Outcome),
		r.CandidateFingerprint,
	)
	return err
}

// ListSessions returns up to limit records, most recent first.
func (s *PostgresStore) ListSessions(ctx context.Context, limit int) ([]*protocol.SessionRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if limit <= 0 {
		limit = DefaultMemoryCapacity
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, remote_addr, started_at, ended_at, decrypts, outcome, candidate_fingerprint
		FROM oracle_sessions
		ORDER BY ended_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*protocol.SessionRecord
	for rows.Next() {
		var (
			r       protocol.SessionRecord
			outcome string
		)
		if err := rows.Scan(&r.ID, &r.RemoteAddr, &r.StartedAt, &r.EndedAt, &r.Decrypts, &outcome, &r.CandidateFingerprint); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		r.Outcome = protocol.SessionOutcome(outcome)
		result = append(result, &r)
	}

	return result, rows.Err()
}

// Close closes the database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
