// Package store provides persistence backends for suspension snapshots.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when no snapshot exists for the requested
// workflow id.
var ErrNotFound = errors.New("snapshot not found")

// Record is one persisted suspension snapshot. The payload is the
// serialized snapshot document produced by the graph serializer; stores
// treat it as opaque bytes.
type Record struct {
	// WorkflowID identifies the suspended workflow.
	WorkflowID string

	// Payload is the serialized snapshot.
	Payload []byte

	// Reason describes why the workflow suspended.
	Reason string

	// SavedAt records when the snapshot was persisted (UTC).
	SavedAt time.Time
}

// Store persists suspension snapshots across process boundaries.
//
// The engine is the single writer per workflow id: saving again under the
// same id replaces the previous snapshot. Implementations:
//   - MemStore: in-memory, for tests and single-process workflows.
//   - SQLiteStore: single-file database, zero-setup local persistence.
//   - MySQLStore: shared database for distributed deployments.
type Store interface {
	// Save persists a snapshot, replacing any previous one for the same
	// workflow id.
	Save(ctx context.Context, rec Record) error

	// Load retrieves the snapshot for a workflow id.
	// Returns ErrNotFound when none exists.
	Load(ctx context.Context, workflowID string) (Record, error)

	// Delete drops the snapshot for a workflow id. Deleting an absent
	// snapshot is not an error.
	Delete(ctx context.Context, workflowID string) error

	// List returns the ids of all stored snapshots, sorted.
	List(ctx context.Context) ([]string, error)
}
