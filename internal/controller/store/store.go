// Package store defines the Controller's persistence boundary: the nodes
// table and the allocator counter (spec.md §6 "Persisted state").
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Get* when no matching row exists.
var ErrNotFound = errors.New("not found")

// NodeRow is the persisted shape of a Node (spec.md §3).
type NodeRow struct {
	NodeID        string
	Hostname      string
	HostIP        string
	Subnet        string
	Status        string
	RegisteredAt  time.Time
	LastHeartbeat time.Time
	CPUCores      int
	RAMMB         int
}

// Store is the Controller's storage boundary. Implementations: sqlite (for
// cmd/quiltcd) and memory (for tests and the fake reconciliation scenarios).
type Store interface {
	// GetByHostIP returns the row keyed on host_ip (invariant I2), or
	// ErrNotFound.
	GetByHostIP(ctx context.Context, hostIP string) (NodeRow, error)
	// GetByID returns the row keyed on node_id, or ErrNotFound.
	GetByID(ctx context.Context, nodeID string) (NodeRow, error)
	// Insert persists a brand new row. host_ip must be unique (I2).
	Insert(ctx context.Context, row NodeRow) error
	// Update persists an existing row's mutable fields in place.
	Update(ctx context.Context, row NodeRow) error
	// List returns every row ordered by registered_at ascending.
	List(ctx context.Context) ([]NodeRow, error)
	// Delete removes a row entirely (explicit deregistration, spec.md §4.1).
	Delete(ctx context.Context, nodeID string) error

	// AllocatorNextIndex returns the persisted monotonic counter, 1 if
	// never set.
	AllocatorNextIndex(ctx context.Context) (int, error)
	// SetAllocatorNextIndex persists the monotonic counter.
	SetAllocatorNextIndex(ctx context.Context, next int) error

	Close() error
}
