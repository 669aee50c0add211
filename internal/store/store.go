// Package store provides the storage interfaces for products and their
// historical snapshots.
package store

import (
	"context"
)

// ProductStore is an interface for product storage operations.
// It abstracts the underlying data store, allowing for different implementations (e.g., in-memory, database).
type ProductStore interface {
	// FindByID retrieves a single product by its unique identifier.
	// Returns ErrProductNotFound if no product exists with the given ID.
	FindByID(ctx context.Context, id string) (*Product, error)

	// Insert persists a newly created product. This is the first write for the
	// ID, so no concurrency check applies.
	Insert(ctx context.Context, p Product) error

	// Save replaces an existing product's state, but only if the stored record's
	// LastModified still equals expectedLastModified. Returns ErrProductNotFound
	// if the product does not exist and ErrOptimisticLock if a concurrent write
	// changed the record first.
	Save(ctx context.Context, p Product, expectedLastModified string) error

	// MarkDeleted soft-deletes a product under the same conditional-write
	// contract as Save.
	MarkDeleted(ctx context.Context, id, expectedLastModified, newLastModified string) error

	// List returns a page of products ordered by ID, excluding soft-deleted
	// records. afterID is an exclusive start key; an empty string starts from
	// the beginning. The returned cursor is empty when no further page exists.
	List(ctx context.Context, afterID string, limit int32) ([]Product, string, error)
}

// SnapshotStore is an append-only store of historical product versions.
type SnapshotStore interface {
	// Put records a snapshot. Writing the same (ProductID, LastModified) key
	// twice is a no-op, so concurrent mutations snapshotting the same pre-image
	// do not interfere with each other.
	Put(ctx context.Context, s Snapshot) error

	// ListByProduct returns a page of snapshots for one product, newest first.
	// afterLastModified is an exclusive start key; empty starts from the newest.
	ListByProduct(ctx context.Context, productID, afterLastModified string, limit int32) ([]Snapshot, string, error)
}
