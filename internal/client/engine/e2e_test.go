package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/akorchagin/stash/internal/client/api"
	"github.com/akorchagin/stash/internal/client/storage"
	"github.com/akorchagin/stash/internal/models"
	"github.com/stretchr/testify/require"
)

// collaborator is an in-memory stand-in for the backend, honoring the same
// wire contract: JSON bodies, bearer tokens, 401 as the distinguished
// unauthorized status.
type collaborator struct {
	mu     sync.Mutex
	tokens map[string]string            // token -> userID
	users  map[string]string            // email -> userID
	items  map[string][]models.Item     // userID -> items
	nextID int
}

func newCollaborator() *collaborator {
	return &collaborator{
		tokens: map[string]string{},
		users:  map[string]string{},
		items:  map[string][]models.Item{},
	}
}

func (c *collaborator) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/signup", func(w http.ResponseWriter, r *http.Request) {
		var req struct{ Email, Password string }
		_ = json.NewDecoder(r.Body).Decode(&req)

		c.mu.Lock()
		defer c.mu.Unlock()
		if _, ok := c.users[req.Email]; ok {
			w.WriteHeader(http.StatusConflict)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "an account with this email already exists"})
			return
		}
		c.nextID++
		userID := fmt.Sprintf("u%d", c.nextID)
		token := "tok-" + userID
		c.users[req.Email] = userID
		c.tokens[token] = userID
		_ = json.NewEncoder(w).Encode(map[string]any{
			"token": token,
			"user":  models.User{ID: userID, Email: req.Email},
		})
	})
	mux.HandleFunc("/items", func(w http.ResponseWriter, r *http.Request) {
		userID, ok := c.authorize(w, r)
		if !ok {
			return
		}
		c.mu.Lock()
		defer c.mu.Unlock()
		switch r.Method {
		case http.MethodGet:
			items := c.items[userID]
			if items == nil {
				items = []models.Item{}
			}
			_ = json.NewEncoder(w).Encode(map[string][]models.Item{"items": items})
		case http.MethodPost:
			var it models.Item
			_ = json.NewDecoder(r.Body).Decode(&it)
			c.items[userID] = append(c.items[userID], it)
			w.WriteHeader(http.StatusCreated)
			_ = json.NewEncoder(w).Encode(it)
		}
	})
	mux.HandleFunc("POST /items/import", func(w http.ResponseWriter, r *http.Request) {
		userID, ok := c.authorize(w, r)
		if !ok {
			return
		}
		var req struct {
			Items []models.Item `json:"items"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		c.mu.Lock()
		c.items[userID] = append(c.items[userID], req.Items...)
		c.mu.Unlock()
		_ = json.NewEncoder(w).Encode(map[string]int{"imported": len(req.Items)})
	})
	mux.HandleFunc("DELETE /items/{id}", func(w http.ResponseWriter, r *http.Request) {
		userID, ok := c.authorize(w, r)
		if !ok {
			return
		}
		id := r.PathValue("id")
		c.mu.Lock()
		items := c.items[userID]
		for i := range items {
			if items[i].ID == id {
				c.items[userID] = append(items[:i], items[i+1:]...)
				break
			}
		}
		c.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	})
	return mux
}

func (c *collaborator) authorize(w http.ResponseWriter, r *http.Request) (string, bool) {
	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	c.mu.Lock()
	userID, ok := c.tokens[token]
	c.mu.Unlock()
	if !ok {
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "invalid or expired token"})
		return "", false
	}
	return userID, true
}

// revoke invalidates every issued token, simulating server-side expiry.
func (c *collaborator) revoke() {
	c.mu.Lock()
	c.tokens = map[string]string{}
	c.mu.Unlock()
}

func TestEndToEnd_FreshDeviceSignupCaptureReload(t *testing.T) {
	collab := newCollaborator()
	srv := httptest.NewServer(collab.handler())
	defer srv.Close()

	dir := t.TempDir()
	store, err := storage.NewLocalStore(dir)
	require.NoError(t, err)

	// Fresh device, no credential: the authentication boundary is up.
	eng := New(api.New(srv.URL, srv.Client()), store, nil)
	require.NoError(t, eng.Start(context.Background()))
	require.Equal(t, StateUnauthenticated, eng.State())

	// Sign up; the item list is empty.
	require.NoError(t, eng.Signup(context.Background(), "alice@example.com", "secret123"))
	require.Equal(t, StateAuthenticated, eng.State())
	require.Empty(t, eng.Items())

	// Create an item: it appears immediately with a client-generated ID.
	it := eng.Create(models.Item{Kind: "note", Content: "call dentist"})
	require.NotEmpty(t, it.ID)
	items := eng.Items()
	require.Len(t, items, 1)
	require.Equal(t, "call dentist", items[0].Content)
	eng.Wait()

	// Reload with the stored credential: the identical item is present,
	// now sourced from the server.
	eng2 := New(api.New(srv.URL, srv.Client()), store, nil)
	require.NoError(t, eng2.Start(context.Background()))
	require.Equal(t, StateAuthenticated, eng2.State())
	items = eng2.Items()
	require.Len(t, items, 1)
	require.Equal(t, it.ID, items[0].ID)
	require.Equal(t, "call dentist", items[0].Content)
}

func TestEndToEnd_OfflineCaptureMigratesOnSignup(t *testing.T) {
	collab := newCollaborator()
	srv := httptest.NewServer(collab.handler())
	defer srv.Close()

	dir := t.TempDir()
	store, err := storage.NewLocalStore(dir)
	require.NoError(t, err)

	// Capture before any account exists.
	eng := New(api.New(srv.URL, srv.Client()), store, nil)
	require.NoError(t, eng.Start(context.Background()))
	local := eng.Create(models.Item{Kind: "note", Content: "captured offline"})

	// Signup migrates the vault and the server list includes the item.
	require.NoError(t, eng.Signup(context.Background(), "bob@example.com", "secret123"))
	items := eng.Items()
	require.Len(t, items, 1)
	require.Equal(t, local.ID, items[0].ID)

	vault, err := store.Vault()
	require.NoError(t, err)
	require.Empty(t, vault, "vault must be cleared after migration")
}

func TestEndToEnd_ServerSideExpiryEndsSession(t *testing.T) {
	collab := newCollaborator()
	srv := httptest.NewServer(collab.handler())
	defer srv.Close()

	store, err := storage.NewLocalStore(t.TempDir())
	require.NoError(t, err)

	eng := New(api.New(srv.URL, srv.Client()), store, nil)
	require.NoError(t, eng.Signup(context.Background(), "carol@example.com", "secret123"))
	eng.Create(models.Item{Kind: "note", Content: "x"})
	eng.Wait()

	var reasons []string
	var mu sync.Mutex
	eng.OnSessionEnd(func(reason string) {
		mu.Lock()
		reasons = append(reasons, reason)
		mu.Unlock()
	})

	collab.revoke()
	items := eng.Items()
	require.Len(t, items, 1)
	eng.Delete(items[0].ID)
	eng.Wait()

	require.Equal(t, StateUnauthenticated, eng.State())
	token, err := store.Token()
	require.NoError(t, err)
	require.Empty(t, token)
	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []string{"session expired"}, reasons)
}
