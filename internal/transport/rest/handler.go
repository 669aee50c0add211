// Package rest provides HTTP handlers for product-related operations.
package rest

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	caterrors "github.com/acme/gocatalog/internal/errors"
	"github.com/acme/gocatalog/internal/patch"
	"github.com/acme/gocatalog/internal/service"
	"github.com/acme/gocatalog/pkg/web"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// defaultPageSize is the page size used when the request does not specify one.
const defaultPageSize = 25

type Handler struct {
	service service.ProductService
	logger  *slog.Logger
}

// NewHandler creates a new instance of the product API with the provided service.
func NewHandler(service service.ProductService, logger *slog.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  logger.With("component", "rest"),
	}
}

// RegisterRoutes registers the HTTP routes for the product service.
func (h *Handler) RegisterRoutes(r *chi.Mux) {
	r.Route("/api/v1/products", func(r chi.Router) {
		r.Get("/", h.FindAll)
		r.Post("/", h.Create)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.FindByID)
			r.Patch("/", h.Patch)
			r.Delete("/", h.DeleteByID)
			r.Get("/snapshots", h.Snapshots)
		})
	})

	r.Get("/healthz", h.HealthCheck)
}

// Create handles the creation of a new product.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	mLogger := h.loggerWithReqID(r)
	var productCreateDto service.ProductCreateDto
	if err := json.NewDecoder(r.Body).Decode(&productCreateDto); err != nil {
		mLogger.ErrorContext(r.Context(), "Error decoding request body", "error", err)
		web.RespondError(w, mLogger, http.StatusBadRequest, "Invalid request body")
		return
	}
	mLogger.DebugContext(r.Context(), "Received request to create product", "Name", productCreateDto.Name)

	created, err := h.service.Create(r.Context(), productCreateDto)
	if err != nil {
		var vErr *caterrors.ValidationError
		if errors.As(err, &vErr) {
			mLogger.WarnContext(r.Context(), "Validation errors occurred", "errors", vErr.Fields)
			web.RespondJSON(w, mLogger, http.StatusBadRequest, map[string]any{"validation_errors": vErr.Fields})
			return
		}
		mLogger.ErrorContext(r.Context(), "Error creating product", "error", err)
		web.RespondError(w, mLogger, http.StatusInternalServerError, "Failed to create product")
		return
	}
	mLogger.InfoContext(r.Context(), "Product created successfully", "ID", created.ID, "Name", created.Name)
	web.RespondJSON(w, mLogger, http.StatusOK, created)
}

// FindByID retrieves a product by its ID.
func (h *Handler) FindByID(w http.ResponseWriter, r *http.Request) {
	mLogger := h.loggerWithReqID(r)
	id, ok := web.ParseID(w, r, mLogger)
	if !ok {
		return
	}

	mLogger.DebugContext(r.Context(), "Received request to find product by ID", "ID", id)
	found, err := h.service.FindByID(r.Context(), id)
	if err != nil {
		h.respondServiceError(w, r, mLogger, err, id, "Failed to retrieve product")
		return
	}
	web.RespondJSON(w, mLogger, http.StatusOK, found)
}

// productPage is the listing response body: one page plus a continuation cursor.
type productPage struct {
	Items      []service.ProductDto `json:"items"`
	NextCursor string               `json:"next_cursor,omitempty"`
}

// FindAll retrieves a page of products.
func (h *Handler) FindAll(w http.ResponseWriter, r *http.Request) {
	mLogger := h.loggerWithReqID(r)
	limit, ok := parsePageSize(w, r, mLogger)
	if !ok {
		return
	}
	cursor := r.URL.Query().Get("cursor")

	mLogger.DebugContext(r.Context(), "Received request to list products", "limit", limit, "cursor", cursor)
	list, next, err := h.service.FindAll(r.Context(), cursor, limit)
	if err != nil {
		mLogger.ErrorContext(r.Context(), "Error retrieving product list", "error", err)
		web.RespondError(w, mLogger, http.StatusInternalServerError, "Failed to fetch products")
		return
	}
	if next != "" {
		w.Header().Set("Link", fmt.Sprintf(`</api/v1/products?cursor=%s>; rel="next"`, next))
	}
	web.RespondJSON(w, mLogger, http.StatusOK, productPage{Items: list, NextCursor: next})
}

// Patch applies a JSON-Patch document to a product.
func (h *Handler) Patch(w http.ResponseWriter, r *http.Request) {
	mLogger := h.loggerWithReqID(r)
	id, ok := web.ParseID(w, r, mLogger)
	if !ok {
		return
	}
	var ops []patch.Operation
	if err := json.NewDecoder(r.Body).Decode(&ops); err != nil {
		mLogger.ErrorContext(r.Context(), "Error decoding patch document", "error", err)
		web.RespondError(w, mLogger, http.StatusBadRequest, "Invalid patch document")
		return
	}

	mLogger.DebugContext(r.Context(), "Received request to patch product", "ID", id, "ops", len(ops))
	updated, err := h.service.Patch(r.Context(), id, ops)
	if err != nil {
		var testErr *patch.TestFailedError
		if errors.As(err, &testErr) {
			mLogger.WarnContext(r.Context(), "Patch test operation failed", "ID", id, "path", testErr.Operation.Path)
			web.RespondJSON(w, mLogger, http.StatusConflict, map[string]any{
				"error":     "patch test operation failed",
				"operation": testErr.Operation,
			})
			return
		}
		var opErr *patch.OpError
		if errors.As(err, &opErr) {
			mLogger.WarnContext(r.Context(), "Invalid patch document", "ID", id, "error", opErr)
			web.RespondError(w, mLogger, http.StatusBadRequest, opErr.Error())
			return
		}
		var vErr *caterrors.ValidationError
		if errors.As(err, &vErr) {
			mLogger.WarnContext(r.Context(), "Patched product failed validation", "ID", id, "errors", vErr.Fields)
			web.RespondJSON(w, mLogger, http.StatusBadRequest, map[string]any{"validation_errors": vErr.Fields})
			return
		}
		h.respondServiceError(w, r, mLogger, err, id, "Failed to patch product")
		return
	}
	mLogger.InfoContext(r.Context(), "Product patched successfully", "ID", updated.ID, "Name", updated.Name)
	web.RespondJSON(w, mLogger, http.StatusOK, updated)
}

// DeleteByID soft-deletes a product by its ID.
func (h *Handler) DeleteByID(w http.ResponseWriter, r *http.Request) {
	mLogger := h.loggerWithReqID(r)
	id, ok := web.ParseID(w, r, mLogger)
	if !ok {
		return
	}
	mLogger.DebugContext(r.Context(), "Received request to delete product", "ID", id)
	if err := h.service.DeleteByID(r.Context(), id); err != nil {
		h.respondServiceError(w, r, mLogger, err, id, "Failed to delete product")
		return
	}
	mLogger.InfoContext(r.Context(), "Product deleted successfully", "ID", id)
	w.WriteHeader(http.StatusNoContent)
}

// Snapshots retrieves the historical versions of a product, newest first.
func (h *Handler) Snapshots(w http.ResponseWriter, r *http.Request) {
	mLogger := h.loggerWithReqID(r)
	id, ok := web.ParseID(w, r, mLogger)
	if !ok {
		return
	}
	limit, ok := parsePageSize(w, r, mLogger)
	if !ok {
		return
	}
	cursor := r.URL.Query().Get("cursor")

	mLogger.DebugContext(r.Context(), "Received request to list snapshots", "ID", id, "limit", limit)
	snapshots, next, err := h.service.Snapshots(r.Context(), id, cursor, limit)
	if err != nil {
		mLogger.ErrorContext(r.Context(), "Error retrieving snapshots", "ID", id, "error", err)
		web.RespondError(w, mLogger, http.StatusInternalServerError, "Failed to fetch snapshots")
		return
	}
	web.RespondJSON(w, mLogger, http.StatusOK, map[string]any{
		"items":       snapshots,
		"next_cursor": next,
	})
}

// HealthCheck is a simple health check endpoint.
func (h *Handler) HealthCheck(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// respondServiceError maps the shared service error taxonomy to status codes.
func (h *Handler) respondServiceError(w http.ResponseWriter, r *http.Request, mLogger *slog.Logger, err error, id string, fallback string) {
	switch {
	case errors.Is(err, caterrors.ErrProductNotFound):
		mLogger.WarnContext(r.Context(), "Product not found", "ID", id)
		web.RespondError(w, mLogger, http.StatusNotFound, fmt.Sprintf("Product with ID %s not found", id))
	case errors.Is(err, caterrors.ErrProductDeleted):
		mLogger.WarnContext(r.Context(), "Product is deleted", "ID", id)
		web.RespondError(w, mLogger, http.StatusGone, fmt.Sprintf("Product with ID %s is deleted", id))
	case errors.Is(err, caterrors.ErrOptimisticLock):
		mLogger.WarnContext(r.Context(), "Concurrent modification detected", "ID", id)
		web.RespondError(w, mLogger, http.StatusConflict, "Product was modified concurrently; fetch the latest version and retry")
	default:
		mLogger.ErrorContext(r.Context(), fallback, "ID", id, "error", err)
		web.RespondError(w, mLogger, http.StatusInternalServerError, fallback)
	}
}

// parsePageSize reads the optional limit query parameter.
func parsePageSize(w http.ResponseWriter, r *http.Request, mLogger *slog.Logger) (int32, bool) {
	value := r.URL.Query().Get("limit")
	if value == "" {
		return defaultPageSize, true
	}
	limit, err := strconv.ParseInt(value, 10, 32)
	if err != nil || limit <= 0 {
		web.RespondError(w, mLogger, http.StatusBadRequest, fmt.Sprintf("Invalid limit: %s", value))
		return 0, false
	}
	return int32(limit), true
}

// loggerWithReqID creates a logger with the request ID from the context.
func (h *Handler) loggerWithReqID(r *http.Request) *slog.Logger {
	reqID := middleware.GetReqID(r.Context())
	return h.logger.With("request_id", reqID)
}
