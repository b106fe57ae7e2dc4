package automaton

import (
	"context"
	"sort"
	"sync"
)

// Store persists child records and the modification audit log. It is the
// only source of truth between calls.
type Store interface {
	// Children returns every child record.
	Children(ctx context.Context) ([]ChildRecord, error)

	// Child returns the record with the given id, or ErrChildNotFound.
	Child(ctx context.Context, id string) (*ChildRecord, error)

	// InsertChild persists a new child record.
	InsertChild(ctx context.Context, c ChildRecord) error

	// UpdateChildStatus sets the status of an existing child.
	UpdateChildStatus(ctx context.Context, id string, status Status) error

	// InsertModification appends an audit log entry.
	InsertModification(ctx context.Context, m ModificationRecord) error

	// Modifications returns the audit log, oldest first.
	Modifications(ctx context.Context) ([]ModificationRecord, error)

	// Close releases the store.
	Close() error
}

// MemoryStore is a Store held in process memory. Records do not survive a
// restart.
type MemoryStore struct {
	mu            sync.RWMutex
	children      map[string]ChildRecord
	modifications []ModificationRecord
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{children: make(map[string]ChildRecord)}
}

// Children returns all children ordered by id.
func (s *MemoryStore) Children(ctx context.Context) ([]ChildRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]ChildRecord, 0, len(s.children))
	for _, c := range s.children {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Child returns a child by id.
func (s *MemoryStore) Child(ctx context.Context, id string) (*ChildRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.children[id]
	if !ok {
		return nil, ErrChildNotFound
	}
	return &c, nil
}

// InsertChild stores a new child. Inserting an existing id is an error.
func (s *MemoryStore) InsertChild(ctx context.Context, c ChildRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.children[c.ID]; ok {
		return &ChildError{ChildID: c.ID, Op: "insert", Err: ErrInvalidInput}
	}
	s.children[c.ID] = c
	return nil
}

// UpdateChildStatus sets a child's status.
func (s *MemoryStore) UpdateChildStatus(ctx context.Context, id string, status Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.children[id]
	if !ok {
		return ErrChildNotFound
	}
	c.Status = status
	s.children[id] = c
	return nil
}

// InsertModification appends to the audit log.
func (s *MemoryStore) InsertModification(ctx context.Context, m ModificationRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.modifications {
		if existing.ID == m.ID {
			return &ChildError{Op: "insert modification " + m.ID, Err: ErrInvalidInput}
		}
	}
	s.modifications = append(s.modifications, m)
	return nil
}

// Modifications returns a copy of the audit log.
func (s *MemoryStore) Modifications(ctx context.Context) ([]ModificationRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]ModificationRecord, len(s.modifications))
	copy(out, s.modifications)
	return out, nil
}

// Close is a no-op.
func (s *MemoryStore) Close() error {
	return nil
}
