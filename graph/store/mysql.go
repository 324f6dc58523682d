package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

// MySQLStore persists snapshots in a MySQL/MariaDB database.
//
// Designed for distributed deployments where a suspended workflow may be
// resumed by a different worker. Uses connection pooling; the engine's
// single-writer-per-workflow-id discipline makes plain upserts safe.
//
// The DSN follows the go-sql-driver format, e.g.
// "user:password@tcp(localhost:3306)/workflows?parseTime=true".
// parseTime=true is required so saved_at scans as time.Time.
type MySQLStore struct {
	db *sql.DB
}

// NewMySQLStore connects to the database and ensures the schema exists.
func NewMySQLStore(dsn string) (*MySQLStore, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open MySQL connection: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping MySQL: %w", err)
	}

	s := &MySQLStore{db: db}
	if err := s.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

func (s *MySQLStore) createTables(ctx context.Context) error {
	schema := `
		CREATE TABLE IF NOT EXISTS workflow_snapshots (
			workflow_id VARCHAR(191) PRIMARY KEY,
			payload LONGBLOB NOT NULL,
			reason VARCHAR(1024) NOT NULL DEFAULT '',
			saved_at DATETIME(6) NOT NULL
		)
	`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create workflow_snapshots table: %w", err)
	}
	return nil
}

// Save upserts the snapshot for the workflow id.
func (s *MySQLStore) Save(ctx context.Context, rec Record) error {
	savedAt := rec.SavedAt
	if savedAt.IsZero() {
		savedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO workflow_snapshots (workflow_id, payload, reason, saved_at)
		VALUES (?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			payload = VALUES(payload),
			reason = VALUES(reason),
			saved_at = VALUES(saved_at)
	`, rec.WorkflowID, rec.Payload, rec.Reason, savedAt)
	if err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	return nil
}

// Load retrieves the snapshot for the workflow id, or ErrNotFound.
func (s *MySQLStore) Load(ctx context.Context, workflowID string) (Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT payload, reason, saved_at FROM workflow_snapshots WHERE workflow_id = ?
	`, workflowID)

	rec := Record{WorkflowID: workflowID}
	if err := row.Scan(&rec.Payload, &rec.Reason, &rec.SavedAt); err != nil {
		if err == sql.ErrNoRows {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("failed to load snapshot: %w", err)
	}
	return rec, nil
}

// Delete drops the snapshot for the workflow id.
func (s *MySQLStore) Delete(ctx context.Context, workflowID string) error {
	if _, err := s.db.ExecContext(ctx, `
		DELETE FROM workflow_snapshots WHERE workflow_id = ?
	`, workflowID); err != nil {
		return fmt.Errorf("failed to delete snapshot: %w", err)
	}
	return nil
}

// List returns the stored workflow ids, sorted.
func (s *MySQLStore) List(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT workflow_id FROM workflow_snapshots ORDER BY workflow_id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Close releases the connection pool.
func (s *MySQLStore) Close() error {
	return s.db.Close()
}
