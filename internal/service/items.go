// Package service provides business-logic services for authentication and
// item management, delegating persistence to repository interfaces.
package service

import (
	"context"
	"time"

	"github.com/akorchagin/stash/internal/models"
)

// ItemRepository defines the persistence operations needed by the ItemService.
type ItemRepository interface {
	// ItemsByUser retrieves all items belonging to the specified user.
	ItemsByUser(ctx context.Context, userID string) ([]models.Item, error)
	// ItemByID fetches a single item by ID for the specified user.
	ItemByID(ctx context.Context, userID, id string) (*models.Item, error)
	// InsertItem stores one new item for the user.
	InsertItem(ctx context.Context, userID string, it models.Item) error
	// InsertItems bulk-inserts items for the user (migration path).
	InsertItems(ctx context.Context, userID string, items []models.Item) error
	// UpdateItem applies a partial update and returns the resulting item.
	UpdateItem(ctx context.Context, userID, id string, patch models.ItemPatch) (*models.Item, error)
	// DeleteItem removes the item with the given ID for the specified user.
	DeleteItem(ctx context.Context, userID, id string) error
}

// ItemService implements item management for authenticated users.
type ItemService struct {
	// repo is the underlying persistence repository.
	repo ItemRepository
	now  func() time.Time
}

// NewItemService constructs an ItemService with the provided ItemRepository.
func NewItemService(repo ItemRepository) *ItemService {
	return &ItemService{repo: repo, now: time.Now}
}

// List returns all of the user's items.
func (s *ItemService) List(ctx context.Context, userID string) ([]models.Item, error) {
	return s.repo.ItemsByUser(ctx, userID)
}

// Create stores a new item. The ID is client-assigned; a missing CreatedAt
// is filled in server-side.
func (s *ItemService) Create(ctx context.Context, userID string, it models.Item) (*models.Item, error) {
	if it.CreatedAt.IsZero() {
		it.CreatedAt = s.now().UTC()
	}
	if err := s.repo.InsertItem(ctx, userID, it); err != nil {
		return nil, err
	}
	return &it, nil
}

// Import bulk-creates items from a list, the one-time migration path for
// local-only items captured before the account existed.
func (s *ItemService) Import(ctx context.Context, userID string, items []models.Item) error {
	if len(items) == 0 {
		return nil
	}
	now := s.now().UTC()
	for i := range items {
		if items[i].CreatedAt.IsZero() {
			items[i].CreatedAt = now
		}
	}
	return s.repo.InsertItems(ctx, userID, items)
}

// Update applies a partial update to the identified item.
func (s *ItemService) Update(ctx context.Context, userID, id string, patch models.ItemPatch) (*models.Item, error) {
	return s.repo.UpdateItem(ctx, userID, id, patch)
}

// Delete removes the identified item.
func (s *ItemService) Delete(ctx context.Context, userID, id string) error {
	return s.repo.DeleteItem(ctx, userID, id)
}
