package store

import (
	"context"
	"errors"
	"fmt"

	caterrors "github.com/acme/gocatalog/internal/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PgStore implements ProductStore and SnapshotStore using PostgreSQL.
type PgStore struct {
	db *pgxpool.Pool
}

// NewPgStore creates a new instance of PgStore using a PostgreSQL connection pool.
func NewPgStore(dbp *pgxpool.Pool) *PgStore {
	return &PgStore{db: dbp}
}

// FindByID retrieves a product by its unique identifier.
// Returns ErrProductNotFound if no product exists with the given ID.
func (p *PgStore) FindByID(ctx context.Context, id string) (*Product, error) {
	const query = `SELECT id, name, image_url, last_modified, deleted
	               FROM products WHERE id = $1`
	var product Product
	err := p.db.QueryRow(ctx, query, id).Scan(
		&product.ID, &product.Name, &product.ImageURL, &product.LastModified, &product.Deleted)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, caterrors.ErrProductNotFound
		}
		return nil, fmt.Errorf("failed to find product by ID: %w", err)
	}
	return &product, nil
}

// Insert persists a newly created product.
func (p *PgStore) Insert(ctx context.Context, product Product) error {
	const query = `INSERT INTO products (id, name, image_url, last_modified, deleted)
	               VALUES ($1, $2, $3, $4, $5)`
	_, err := p.db.Exec(ctx, query,
		product.ID, product.Name, product.ImageURL, product.LastModified, product.Deleted)
	if err != nil {
		return fmt.Errorf("failed to insert product: %w", err)
	}
	return nil
}

// Save replaces an existing product's state, guarded by the previously read
// LastModified. A zero-row update is disambiguated with a follow-up read:
// either the product vanished or a concurrent writer won the race.
func (p *PgStore) Save(ctx context.Context, product Product, expectedLastModified string) error {
	const query = `UPDATE products
	               SET name = $2, image_url = $3, last_modified = $4, deleted = $5
	               WHERE id = $1 AND last_modified = $6`
	tag, err := p.db.Exec(ctx, query,
		product.ID, product.Name, product.ImageURL, product.LastModified, product.Deleted,
		expectedLastModified)
	if err != nil {
		return fmt.Errorf("failed to save product: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return p.classifyConditionFailure(ctx, product.ID)
	}
	return nil
}

// MarkDeleted soft-deletes a product under the conditional-write contract.
func (p *PgStore) MarkDeleted(ctx context.Context, id, expectedLastModified, newLastModified string) error {
	const query = `UPDATE products
	               SET deleted = TRUE, last_modified = $2
	               WHERE id = $1 AND last_modified = $3`
	tag, err := p.db.Exec(ctx, query, id, newLastModified, expectedLastModified)
	if err != nil {
		return fmt.Errorf("failed to mark product deleted: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return p.classifyConditionFailure(ctx, id)
	}
	return nil
}

// List returns a page of products ordered by ID, excluding soft-deleted rows.
func (p *PgStore) List(ctx context.Context, afterID string, limit int32) ([]Product, string, error) {
	const query = `SELECT id, name, image_url, last_modified, deleted
	               FROM products
	               WHERE deleted = FALSE AND ($1::uuid IS NULL OR id > $1::uuid)
	               ORDER BY id
	               LIMIT $2`
	// the cursor must bind as NULL, not '', so the uuid cast never sees an
	// empty string
	var after any
	if afterID != "" {
		after = afterID
	}
	rows, err := p.db.Query(ctx, query, after, limit)
	if err != nil {
		return nil, "", fmt.Errorf("failed to list products: %w", err)
	}
	defer rows.Close()

	products := make([]Product, 0, limit)
	for rows.Next() {
		var product Product
		if err := rows.Scan(&product.ID, &product.Name, &product.ImageURL,
			&product.LastModified, &product.Deleted); err != nil {
			return nil, "", fmt.Errorf("failed to scan product row: %w", err)
		}
		products = append(products, product)
	}
	if err := rows.Err(); err != nil {
		return nil, "", fmt.Errorf("failed to read product rows: %w", err)
	}

	cursor := ""
	if int32(len(products)) == limit && limit > 0 {
		cursor = products[len(products)-1].ID
	}
	return products, cursor, nil
}

// Put records a snapshot. Re-putting an existing (product_id, last_modified)
// key is a no-op.
func (p *PgStore) Put(ctx context.Context, s Snapshot) error {
	const query = `INSERT INTO product_snapshots (product_id, name, image_url, last_modified, deleted)
	               VALUES ($1, $2, $3, $4, $5)
	               ON CONFLICT (product_id, last_modified) DO NOTHING`
	_, err := p.db.Exec(ctx, query, s.ProductID, s.Name, s.ImageURL, s.LastModified, s.Deleted)
	if err != nil {
		return fmt.Errorf("failed to put snapshot: %w", err)
	}
	return nil
}

// ListByProduct returns a page of snapshots for one product, newest first.
func (p *PgStore) ListByProduct(ctx context.Context, productID, afterLastModified string, limit int32) ([]Snapshot, string, error) {
	const query = `SELECT product_id, name, image_url, last_modified, deleted
	               FROM product_snapshots
	               WHERE product_id = $1 AND ($2 = '' OR last_modified < $2)
	               ORDER BY last_modified DESC
	               LIMIT $3`
	rows, err := p.db.Query(ctx, query, productID, afterLastModified, limit)
	if err != nil {
		return nil, "", fmt.Errorf("failed to list snapshots: %w", err)
	}
	defer rows.Close()

	snapshots := make([]Snapshot, 0, limit)
	for rows.Next() {
		var s Snapshot
		if err := rows.Scan(&s.ProductID, &s.Name, &s.ImageURL, &s.LastModified, &s.Deleted); err != nil {
			return nil, "", fmt.Errorf("failed to scan snapshot row: %w", err)
		}
		snapshots = append(snapshots, s)
	}
	if err := rows.Err(); err != nil {
		return nil, "", fmt.Errorf("failed to read snapshot rows: %w", err)
	}

	cursor := ""
	if int32(len(snapshots)) == limit && limit > 0 {
		cursor = snapshots[len(snapshots)-1].LastModified
	}
	return snapshots, cursor, nil
}

// classifyConditionFailure tells a lost optimistic-concurrency race apart from
// a missing product after a conditional write matched zero rows.
func (p *PgStore) classifyConditionFailure(ctx context.Context, id string) error {
	const query = `SELECT 1 FROM products WHERE id = $1`
	var one int
	err := p.db.QueryRow(ctx, query, id).Scan(&one)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return caterrors.ErrProductNotFound
		}
		return fmt.Errorf("failed to classify condition failure: %w", err)
	}
	return caterrors.ErrOptimisticLock
}
