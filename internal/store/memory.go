package store

import (
	"context"
	"sort"
	"sync"

	caterrors "github.com/acme/gocatalog/internal/errors"
)

// MemoryStore implements ProductStore and SnapshotStore using in-memory maps.
// It mirrors the conditional-write semantics of the database-backed store and
// is used by tests and local development.
type MemoryStore struct {
	mu        sync.RWMutex
	products  map[string]Product
	snapshots map[string][]Snapshot // product ID -> snapshots, insertion order
}

// NewMemoryStore creates a new empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		products:  make(map[string]Product),
		snapshots: make(map[string][]Snapshot),
	}
}

// FindByID retrieves a product by its ID.
func (s *MemoryStore) FindByID(_ context.Context, id string) (*Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.products[id]
	if !ok {
		return nil, caterrors.ErrProductNotFound
	}
	return &p, nil
}

// Insert persists a newly created product.
func (s *MemoryStore) Insert(_ context.Context, p Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.products[p.ID] = p
	return nil
}

// Save replaces a product's state if the stored LastModified still matches.
func (s *MemoryStore) Save(_ context.Context, p Product, expectedLastModified string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.products[p.ID]
	if !ok {
		return caterrors.ErrProductNotFound
	}
	if current.LastModified != expectedLastModified {
		return caterrors.ErrOptimisticLock
	}
	s.products[p.ID] = p
	return nil
}

// MarkDeleted soft-deletes a product if the stored LastModified still matches.
func (s *MemoryStore) MarkDeleted(_ context.Context, id, expectedLastModified, newLastModified string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.products[id]
	if !ok {
		return caterrors.ErrProductNotFound
	}
	if current.LastModified != expectedLastModified {
		return caterrors.ErrOptimisticLock
	}
	current.Deleted = true
	current.LastModified = newLastModified
	s.products[id] = current
	return nil
}

// List returns a page of products ordered by ID, excluding soft-deleted ones.
func (s *MemoryStore) List(_ context.Context, afterID string, limit int32) ([]Product, string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := make([]Product, 0, len(s.products))
	for _, p := range s.products {
		if p.Deleted {
			continue
		}
		if afterID != "" && p.ID <= afterID {
			continue
		}
		all = append(all, p)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })

	if limit > 0 && int32(len(all)) > limit {
		all = all[:limit]
	}
	cursor := ""
	if limit > 0 && int32(len(all)) == limit {
		cursor = all[len(all)-1].ID
	}
	return all, cursor, nil
}

// Put records a snapshot; an existing (ProductID, LastModified) key is left as is.
func (s *MemoryStore) Put(_ context.Context, snap Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.snapshots[snap.ProductID] {
		if existing.LastModified == snap.LastModified {
			return nil
		}
	}
	s.snapshots[snap.ProductID] = append(s.snapshots[snap.ProductID], snap)
	return nil
}

// ListByProduct returns snapshots for one product, newest first.
func (s *MemoryStore) ListByProduct(_ context.Context, productID, afterLastModified string, limit int32) ([]Snapshot, string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := make([]Snapshot, 0, len(s.snapshots[productID]))
	for _, snap := range s.snapshots[productID] {
		if afterLastModified != "" && snap.LastModified >= afterLastModified {
			continue
		}
		all = append(all, snap)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].LastModified > all[j].LastModified })

	if limit > 0 && int32(len(all)) > limit {
		all = all[:limit]
	}
	cursor := ""
	if limit > 0 && int32(len(all)) == limit {
		cursor = all[len(all)-1].LastModified
	}
	return all, cursor, nil
}
