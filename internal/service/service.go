// Package service implements the product read-modify-write orchestration:
// optimistic-concurrency updates and soft deletes with pre-mutation snapshots
// and post-commit change events.
package service

import (
	"context"
	"fmt"
	"time"

	caterrors "github.com/acme/gocatalog/internal/errors"
	"github.com/acme/gocatalog/internal/patch"
	"github.com/acme/gocatalog/internal/store"
	"github.com/acme/gocatalog/internal/validation"
	"github.com/acme/gocatalog/pkg/messaging"
	"github.com/acme/gocatalog/pkg/messaging/events"
	"github.com/google/uuid"
)

// ProductService defines the methods for managing products.
type ProductService interface {
	// FindByID retrieves a single product by its unique identifier.
	// Returns ErrProductNotFound if no product exists with the given ID and
	// ErrProductDeleted if the product has been soft-deleted.
	FindByID(ctx context.Context, id string) (*ProductDto, error)

	// FindAll returns a page of products, excluding soft-deleted ones, together
	// with a continuation cursor (empty when no further page exists).
	FindAll(ctx context.Context, cursor string, limit int32) ([]ProductDto, string, error)

	// Create validates a candidate product, assigns it an ID and timestamp,
	// persists it and broadcasts a change event.
	Create(ctx context.Context, product ProductCreateDto) (*ProductDto, error)

	// Patch applies a patch document to an existing product under the
	// optimistic-concurrency protocol. Returns ErrOptimisticLock when a
	// concurrent write changed the product after it was read.
	Patch(ctx context.Context, id string, ops []patch.Operation) (*ProductDto, error)

	// DeleteByID soft-deletes a product under the optimistic-concurrency
	// protocol.
	DeleteByID(ctx context.Context, id string) error

	// Snapshots returns a page of historical versions for one product, newest
	// first.
	Snapshots(ctx context.Context, id, cursor string, limit int32) ([]SnapshotDto, string, error)
}

// Service implements ProductService.
type Service struct {
	products  store.ProductStore
	snapshots store.SnapshotStore
	publisher messaging.Publisher
	now       func() time.Time
}

// NewService creates a new ProductService with the provided stores and publisher.
func NewService(products store.ProductStore, snapshots store.SnapshotStore, publisher messaging.Publisher) *Service {
	return &Service{
		products:  products,
		snapshots: snapshots,
		publisher: publisher,
		now:       time.Now,
	}
}

// ProductCreateDto represents the data transfer object for creating a new product.
type ProductCreateDto struct {
	Name     string `json:"name"`
	ImageURL string `json:"imageURL"`
}

// ProductDto represents the data transfer object for a product. LastModified
// is read-only and serves as the optimistic concurrency token.
type ProductDto struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	ImageURL     string `json:"imageURL"`
	LastModified string `json:"lastModified"`
	Deleted      bool   `json:"deleted,omitempty"`
}

// SnapshotDto represents a historical version of a product.
type SnapshotDto struct {
	ProductID    string `json:"productId"`
	Name         string `json:"name"`
	ImageURL     string `json:"imageURL"`
	LastModified string `json:"lastModified"`
	Deleted      bool   `json:"deleted,omitempty"`
}

// FindByID retrieves a product by its ID and returns it as a ProductDto.
func (s *Service) FindByID(ctx context.Context, id string) (*ProductDto, error) {
	product, err := s.products.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch product by ID %s: %w", id, err)
	}
	if product.Deleted {
		return nil, fmt.Errorf("product %s: %w", id, caterrors.ErrProductDeleted)
	}
	return toDto(product), nil
}

// FindAll retrieves a page of products and returns them as ProductDTOs.
func (s *Service) FindAll(ctx context.Context, cursor string, limit int32) ([]ProductDto, string, error) {
	products, next, err := s.products.List(ctx, cursor, limit)
	if err != nil {
		return nil, "", fmt.Errorf("failed to fetch products: %w", err)
	}
	productDTOs := make([]ProductDto, len(products))
	for i := range products {
		productDTOs[i] = *toDto(&products[i])
	}
	return productDTOs, next, nil
}

// Create validates, persists and announces a new product. The broadcast runs
// strictly after the write: a product that was never stored must never be
// announced.
func (s *Service) Create(ctx context.Context, product ProductCreateDto) (*ProductDto, error) {
	if fields := validation.Validate(validation.ProductInput{
		Name:     product.Name,
		ImageURL: product.ImageURL,
	}); fields != nil {
		return nil, &caterrors.ValidationError{Fields: fields}
	}

	created := store.Product{
		ID:           uuid.NewString(),
		Name:         product.Name,
		ImageURL:     product.ImageURL,
		LastModified: s.timestamp(),
	}
	if err := s.products.Insert(ctx, created); err != nil {
		return nil, fmt.Errorf("failed to create product: %w", err)
	}

	if err := s.publisher.Publish(ctx, events.ProductEvent{ID: created.ID}); err != nil {
		return nil, fmt.Errorf("failed to broadcast creation of product %s: %w", created.ID, err)
	}
	return toDto(&created), nil
}

// Patch applies a patch document to a product.
//
// Protocol: load, reject soft-deleted, snapshot the pre-image, validate and
// apply the patch, re-validate the result, then save conditionally on the
// LastModified read at load time. The change event is published only after
// the conditional write confirms this writer won.
func (s *Service) Patch(ctx context.Context, id string, ops []patch.Operation) (*ProductDto, error) {
	product, err := s.products.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch product by ID %s: %w", id, err)
	}
	if product.Deleted {
		return nil, fmt.Errorf("product %s: %w", id, caterrors.ErrProductDeleted)
	}

	// The snapshot must be durable before the mutation may persist.
	if err := s.snapshots.Put(ctx, store.SnapshotOf(*product)); err != nil {
		return nil, fmt.Errorf("failed to snapshot product %s: %w", id, err)
	}

	patched, err := patch.Apply(toDocument(product), ops)
	if err != nil {
		return nil, err
	}

	input, fields := documentInput(patched)
	if fields == nil {
		fields = validation.Validate(input)
	}
	if fields != nil {
		return nil, &caterrors.ValidationError{Fields: fields}
	}

	// ID and LastModified are server-owned; patched values for them are ignored.
	next := store.Product{
		ID:           product.ID,
		Name:         input.Name,
		ImageURL:     input.ImageURL,
		LastModified: s.timestamp(),
	}
	if err := s.products.Save(ctx, next, product.LastModified); err != nil {
		return nil, fmt.Errorf("failed to save product %s: %w", id, err)
	}

	if err := s.publisher.Publish(ctx, events.ProductEvent{ID: next.ID}); err != nil {
		return nil, fmt.Errorf("failed to broadcast update of product %s: %w", next.ID, err)
	}
	return toDto(&next), nil
}

// DeleteByID soft-deletes a product. The pre-delete state is snapshotted
// before the conditional write, and the deletion is announced only after the
// write succeeds.
func (s *Service) DeleteByID(ctx context.Context, id string) error {
	product, err := s.products.FindByID(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to fetch product by ID %s: %w", id, err)
	}
	if product.Deleted {
		// already gone from the collection
		return fmt.Errorf("product %s: %w", id, caterrors.ErrProductNotFound)
	}

	if err := s.snapshots.Put(ctx, store.SnapshotOf(*product)); err != nil {
		return fmt.Errorf("failed to snapshot product %s: %w", id, err)
	}

	if err := s.products.MarkDeleted(ctx, id, product.LastModified, s.timestamp()); err != nil {
		return fmt.Errorf("failed to delete product %s: %w", id, err)
	}

	if err := s.publisher.Publish(ctx, events.ProductEvent{ID: id}); err != nil {
		return fmt.Errorf("failed to broadcast deletion of product %s: %w", id, err)
	}
	return nil
}

// Snapshots retrieves a page of historical versions for one product.
func (s *Service) Snapshots(ctx context.Context, id, cursor string, limit int32) ([]SnapshotDto, string, error) {
	snapshots, next, err := s.snapshots.ListByProduct(ctx, id, cursor, limit)
	if err != nil {
		return nil, "", fmt.Errorf("failed to fetch snapshots for product %s: %w", id, err)
	}
	snapshotDTOs := make([]SnapshotDto, len(snapshots))
	for i, snap := range snapshots {
		snapshotDTOs[i] = SnapshotDto{
			ProductID:    snap.ProductID,
			Name:         snap.Name,
			ImageURL:     snap.ImageURL,
			LastModified: snap.LastModified,
			Deleted:      snap.Deleted,
		}
	}
	return snapshotDTOs, next, nil
}

// timestamp formats the current time the way the stored concurrency token
// expects: UTC, RFC 3339, millisecond precision.
func (s *Service) timestamp() string {
	return s.now().UTC().Format("2006-01-02T15:04:05.000Z")
}

// toDocument converts a product to the JSON-decoded document shape the patch
// engine operates on.
func toDocument(p *store.Product) map[string]any {
	return map[string]any{
		"id":           p.ID,
		"name":         p.Name,
		"imageURL":     p.ImageURL,
		"lastModified": p.LastModified,
	}
}

// documentInput extracts the validatable fields from a patched document.
// A non-string value for a string field is reported as a field error rather
// than a type panic.
func documentInput(doc map[string]any) (validation.ProductInput, map[string][]string) {
	fields := make(map[string][]string)
	name, ok := stringField(doc, "name")
	if !ok {
		fields["/name"] = append(fields["/name"], "must be a string")
	}
	imageURL, ok := stringField(doc, "imageURL")
	if !ok {
		fields["/imageURL"] = append(fields["/imageURL"], "must be a string")
	}
	if len(fields) > 0 {
		return validation.ProductInput{}, fields
	}
	return validation.ProductInput{Name: name, ImageURL: imageURL}, nil
}

func stringField(doc map[string]any, key string) (string, bool) {
	raw, ok := doc[key]
	if !ok {
		// absent fields fail the "required" rule downstream
		return "", true
	}
	value, ok := raw.(string)
	return value, ok
}

// toDto converts a store.Product to a ProductDto.
func toDto(product *store.Product) *ProductDto {
	return &ProductDto{
		ID:           product.ID,
		Name:         product.Name,
		ImageURL:     product.ImageURL,
		LastModified: product.LastModified,
		Deleted:      product.Deleted,
	}
}
