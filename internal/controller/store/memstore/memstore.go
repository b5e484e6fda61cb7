// Package memstore is an in-memory Store used by tests and the fake
// single-process reconciliation scenarios (grounded on the teacher's
// internal/adapter/fake pattern of in-memory stand-ins for the real
// storage adapters).
package memstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/ariacomputecompany/quiltc/internal/controller/store"
)

type Store struct {
	mu        sync.Mutex
	byID      map[string]store.NodeRow
	order     []string // node_id insertion order, for stable List()
	nextIndex int
}

func New() *Store {
	return &Store{
		byID:      make(map[string]store.NodeRow),
		nextIndex: 1,
	}
}

func (s *Store) GetByHostIP(_ context.Context, hostIP string) (store.NodeRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range s.order {
		if row, ok := s.byID[id]; ok && row.HostIP == hostIP {
			return row, nil
		}
	}
	return store.NodeRow{}, store.ErrNotFound
}

func (s *Store) GetByID(_ context.Context, nodeID string) (store.NodeRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.byID[nodeID]
	if !ok {
		return store.NodeRow{}, store.ErrNotFound
	}
	return row, nil
}

func (s *Store) Insert(_ context.Context, row store.NodeRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, existing := range s.byID {
		if id != row.NodeID && existing.HostIP == row.HostIP {
			return fmt.Errorf("insert node: host_ip %s already registered", row.HostIP)
		}
	}
	if _, exists := s.byID[row.NodeID]; !exists {
		s.order = append(s.order, row.NodeID)
	}
	s.byID[row.NodeID] = row
	return nil
}

func (s *Store) Update(_ context.Context, row store.NodeRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[row.NodeID]; !ok {
		return store.ErrNotFound
	}
	s.byID[row.NodeID] = row
	return nil
}

func (s *Store) Delete(_ context.Context, nodeID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[nodeID]; !ok {
		return store.ErrNotFound
	}
	delete(s.byID, nodeID)
	for i, id := range s.order {
		if id == nodeID {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

func (s *Store) List(_ context.Context) ([]store.NodeRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]store.NodeRow, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.byID[id])
	}
	return out, nil
}

func (s *Store) AllocatorNextIndex(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextIndex, nil
}

func (s *Store) SetAllocatorNextIndex(_ context.Context, next int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextIndex = next
	return nil
}

func (s *Store) Close() error { return nil }
