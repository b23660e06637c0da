// Package http provides HTTP handlers for item management.
package http

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/akorchagin/stash/internal/middleware"
	"github.com/akorchagin/stash/internal/models"
	"github.com/go-chi/chi/v5"
)

// ItemService defines the interface for item operations required by the
// ItemsHandler.
type ItemService interface {
	// List returns all of the user's items.
	List(ctx context.Context, userID string) ([]models.Item, error)
	// Create stores a new item with a client-assigned ID.
	Create(ctx context.Context, userID string, it models.Item) (*models.Item, error)
	// Import bulk-creates items (the migration path).
	Import(ctx context.Context, userID string, items []models.Item) error
	// Update applies a partial update to an item.
	Update(ctx context.Context, userID, id string, patch models.ItemPatch) (*models.Item, error)
	// Delete removes an item.
	Delete(ctx context.Context, userID, id string) error
}

// ItemsHandler handles HTTP requests for item CRUD and bulk import.
type ItemsHandler struct {
	ItemService ItemService
}

// List handles GET /items, returning {"items": [...]}.
func (h *ItemsHandler) List(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())
	items, err := h.ItemService.List(r.Context(), user.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if items == nil {
		items = []models.Item{}
	}
	writeJSON(w, http.StatusOK, map[string][]models.Item{"items": items})
}

// Create handles POST /items. The item ID is assigned client-side; an
// empty ID or kind is rejected.
func (h *ItemsHandler) Create(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())

	var it models.Item
	if err := json.NewDecoder(r.Body).Decode(&it); err != nil || it.ID == "" || it.Kind == "" {
		writeError(w, http.StatusBadRequest, "invalid item")
		return
	}

	created, err := h.ItemService.Create(r.Context(), user.ID, it)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// Import handles POST /items/import, the one-time bulk migration of items
// captured before the account existed. Body: {"items": [...]}.
func (h *ItemsHandler) Import(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())

	var req struct {
		Items []models.Item `json:"items"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	for _, it := range req.Items {
		if it.ID == "" {
			writeError(w, http.StatusBadRequest, "item without id")
			return
		}
	}

	if err := h.ItemService.Import(r.Context(), user.ID, req.Items); err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"imported": len(req.Items)})
}

// Update handles PUT /items/{id} with a partial body: only fields present
// are applied.
func (h *ItemsHandler) Update(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())
	id := chi.URLParam(r, "id")

	var patch models.ItemPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}

	updated, err := h.ItemService.Update(r.Context(), user.ID, id, patch)
	if errors.Is(err, sql.ErrNoRows) {
		writeError(w, http.StatusNotFound, "item not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// Delete handles DELETE /items/{id}. Deleting an absent item succeeds, so
// an optimistic client retrying a delete sees no error.
func (h *ItemsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())
	id := chi.URLParam(r, "id")

	if err := h.ItemService.Delete(r.Context(), user.ID, id); err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
