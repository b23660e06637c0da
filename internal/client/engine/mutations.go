package engine

import (
	"context"
	"time"

	"github.com/akorchagin/stash/internal/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Create captures a new item. The ID is assigned here, client-side, so the
// item is visible immediately and every later mutation agrees on its
// identity regardless of remote call ordering.
//
// When authenticated the item joins the live list and a background create
// is fired; before authentication it goes into the local vault awaiting
// the one-time migration.
func (e *Engine) Create(draft models.Item) models.Item {
	if draft.ID == "" {
		draft.ID = uuid.NewString()
	}
	if draft.CreatedAt.IsZero() {
		draft.CreatedAt = time.Now().UTC()
	}

	e.mu.Lock()
	if e.state != StateAuthenticated {
		e.mu.Unlock()
		if err := e.store.AppendVault(draft); err != nil {
			e.log.Warn("failed to vault local item", zap.Error(err))
		}
		return draft
	}
	e.items = append([]models.Item{draft}, e.items...)
	gen := e.sessionGen
	e.mu.Unlock()

	e.spawn(gen, "create item", func(ctx context.Context) error {
		return e.api.CreateItem(ctx, draft)
	})
	return draft
}

// Update applies a partial update to the identified item. Returns false if
// no such item exists locally.
func (e *Engine) Update(id string, patch models.ItemPatch) bool {
	e.mu.Lock()
	idx := e.indexOf(id)
	if e.state != StateAuthenticated || idx < 0 {
		e.mu.Unlock()
		return false
	}
	patch.Apply(&e.items[idx])
	gen := e.sessionGen
	e.mu.Unlock()

	e.spawn(gen, "update item", func(ctx context.Context) error {
		return e.api.UpdateItem(ctx, id, patch)
	})
	return true
}

// Delete removes the identified item locally and fires the remote delete.
func (e *Engine) Delete(id string) bool {
	e.mu.Lock()
	idx := e.indexOf(id)
	if e.state != StateAuthenticated || idx < 0 {
		e.mu.Unlock()
		return false
	}
	e.items = append(e.items[:idx], e.items[idx+1:]...)
	gen := e.sessionGen
	e.mu.Unlock()

	e.spawn(gen, "delete item", func(ctx context.Context) error {
		return e.api.DeleteItem(ctx, id)
	})
	return true
}

// ToggleCompleted flips the completed flag, stamping or clearing the
// completion timestamp.
func (e *Engine) ToggleCompleted(id string) bool {
	e.mu.Lock()
	idx := e.indexOf(id)
	if e.state != StateAuthenticated || idx < 0 {
		e.mu.Unlock()
		return false
	}
	it := &e.items[idx]
	it.Completed = !it.Completed
	var completedAt *time.Time
	if it.Completed {
		now := time.Now().UTC()
		completedAt = &now
	}
	it.CompletedAt = completedAt
	patch := models.ItemPatch{Completed: &it.Completed, CompletedAt: completedAt}
	gen := e.sessionGen
	e.mu.Unlock()

	e.spawn(gen, "toggle completed", func(ctx context.Context) error {
		return e.api.UpdateItem(ctx, id, patch)
	})
	return true
}

// TogglePinned flips the pinned flag.
func (e *Engine) TogglePinned(id string) bool {
	e.mu.Lock()
	idx := e.indexOf(id)
	if e.state != StateAuthenticated || idx < 0 {
		e.mu.Unlock()
		return false
	}
	e.items[idx].Pinned = !e.items[idx].Pinned
	pinned := e.items[idx].Pinned
	gen := e.sessionGen
	e.mu.Unlock()

	e.spawn(gen, "toggle pinned", func(ctx context.Context) error {
		return e.api.UpdateItem(ctx, id, models.ItemPatch{Pinned: &pinned})
	})
	return true
}

// CompleteAll marks every incomplete item completed. One remote call is
// fired per affected item; their completion order is not guaranteed.
func (e *Engine) CompleteAll() int {
	now := time.Now().UTC()
	completed := true

	e.mu.Lock()
	if e.state != StateAuthenticated {
		e.mu.Unlock()
		return 0
	}
	var affected []string
	for i := range e.items {
		if e.items[i].Completed {
			continue
		}
		e.items[i].Completed = true
		e.items[i].CompletedAt = &now
		affected = append(affected, e.items[i].ID)
	}
	gen := e.sessionGen
	e.mu.Unlock()

	patch := models.ItemPatch{Completed: &completed, CompletedAt: &now}
	for _, id := range affected {
		id := id
		e.spawn(gen, "bulk complete", func(ctx context.Context) error {
			return e.api.UpdateItem(ctx, id, patch)
		})
	}
	return len(affected)
}

// DeleteMany removes the identified items; unknown IDs are skipped.
func (e *Engine) DeleteMany(ids []string) int {
	e.mu.Lock()
	if e.state != StateAuthenticated {
		e.mu.Unlock()
		return 0
	}
	var affected []string
	for _, id := range ids {
		if idx := e.indexOf(id); idx >= 0 {
			e.items = append(e.items[:idx], e.items[idx+1:]...)
			affected = append(affected, id)
		}
	}
	gen := e.sessionGen
	e.mu.Unlock()

	for _, id := range affected {
		id := id
		e.spawn(gen, "bulk delete", func(ctx context.Context) error {
			return e.api.DeleteItem(ctx, id)
		})
	}
	return len(affected)
}

// ClearCompleted removes every completed item.
func (e *Engine) ClearCompleted() int {
	e.mu.Lock()
	if e.state != StateAuthenticated {
		e.mu.Unlock()
		return 0
	}
	var kept []models.Item
	var affected []string
	for _, it := range e.items {
		if it.Completed {
			affected = append(affected, it.ID)
			continue
		}
		kept = append(kept, it)
	}
	e.items = kept
	gen := e.sessionGen
	e.mu.Unlock()

	for _, id := range affected {
		id := id
		e.spawn(gen, "clear completed", func(ctx context.Context) error {
			return e.api.DeleteItem(ctx, id)
		})
	}
	return len(affected)
}

// indexOf must be called with the engine lock held.
func (e *Engine) indexOf(id string) int {
	for i := range e.items {
		if e.items[i].ID == id {
			return i
		}
	}
	return -1
}
