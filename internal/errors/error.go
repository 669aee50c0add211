// Package errors provides custom error types for product-related operations.
package errors

import "errors"

var (
	// ErrProductNotFound is returned when no product exists with the requested ID.
	ErrProductNotFound = errors.New("product not found")

	// ErrProductDeleted is returned when the requested product has been soft-deleted.
	ErrProductDeleted = errors.New("product deleted")

	// ErrOptimisticLock is returned when a conditional write loses the race against
	// a concurrent mutation of the same product.
	ErrOptimisticLock = errors.New("product was modified concurrently")
)

// ValidationError carries field-level validation messages keyed by JSON pointer,
// e.g. "/name" -> ["can't be blank"].
type ValidationError struct {
	Fields map[string][]string
}

func (e *ValidationError) Error() string {
	return "product validation failed"
}
