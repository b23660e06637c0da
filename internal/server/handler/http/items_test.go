package http_test

import (
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/akorchagin/stash/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestItemsList(t *testing.T) {
	items := &fakeItemService{
		listFunc: func(_ context.Context, userID string) ([]models.Item, error) {
			assert.Equal(t, "u1", userID)
			return []models.Item{{ID: "i1", Kind: "note", Content: "call dentist"}}, nil
		},
	}
	srv := newTestServer(t, nil, items)

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/items", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer good-token")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body struct {
		Items []models.Item `json:"items"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Len(t, body.Items, 1)
	assert.Equal(t, "call dentist", body.Items[0].Content)
}

func TestItemsList_EmptyIsArrayNotNull(t *testing.T) {
	items := &fakeItemService{
		listFunc: func(context.Context, string) ([]models.Item, error) { return nil, nil },
	}
	srv := newTestServer(t, nil, items)

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/items", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer good-token")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"items":[]`)
}

func TestItemsList_RequiresToken(t *testing.T) {
	srv := newTestServer(t, nil, nil)

	resp, err := http.Get(srv.URL + "/items")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestItemsCreate(t *testing.T) {
	items := &fakeItemService{
		createFunc: func(_ context.Context, userID string, it models.Item) (*models.Item, error) {
			assert.Equal(t, "u1", userID)
			assert.Equal(t, "i1", it.ID)
			return &it, nil
		},
	}
	srv := newTestServer(t, nil, items)

	resp := postJSON(t, srv.URL+"/items", "good-token", `{"id":"i1","kind":"note","content":"x"}`)
	defer resp.Body.Close()

	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var created models.Item
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	assert.Equal(t, "i1", created.ID)
}

func TestItemsCreate_RejectsMissingIDOrKind(t *testing.T) {
	srv := newTestServer(t, nil, &fakeItemService{})

	for _, body := range []string{
		`{"kind":"note","content":"x"}`,
		`{"id":"i1","content":"x"}`,
		`{not json`,
	} {
		resp := postJSON(t, srv.URL+"/items", "good-token", body)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "body: %s", body)
		resp.Body.Close()
	}
}

func TestItemsImport(t *testing.T) {
	var imported []models.Item
	items := &fakeItemService{
		importFunc: func(_ context.Context, userID string, its []models.Item) error {
			assert.Equal(t, "u1", userID)
			imported = its
			return nil
		},
	}
	srv := newTestServer(t, nil, items)

	resp := postJSON(t, srv.URL+"/items/import", "good-token",
		`{"items":[{"id":"a","kind":"note"},{"id":"b","kind":"link"}]}`)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body map[string]int
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, 2, body["imported"])
	assert.Len(t, imported, 2)
}

func TestItemsImport_RejectsItemWithoutID(t *testing.T) {
	srv := newTestServer(t, nil, &fakeItemService{})

	resp := postJSON(t, srv.URL+"/items/import", "good-token",
		`{"items":[{"kind":"note"}]}`)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestItemsUpdate_PartialBody(t *testing.T) {
	items := &fakeItemService{
		updateFunc: func(_ context.Context, userID, id string, patch models.ItemPatch) (*models.Item, error) {
			assert.Equal(t, "u1", userID)
			assert.Equal(t, "i1", id)
			require.NotNil(t, patch.Content)
			assert.Equal(t, "edited", *patch.Content)
			assert.Nil(t, patch.Pinned, "absent fields must stay nil")
			return &models.Item{ID: id, Kind: "note", Content: *patch.Content}, nil
		},
	}
	srv := newTestServer(t, nil, items)

	req, err := http.NewRequest(http.MethodPut, srv.URL+"/items/i1", strings.NewReader(`{"content":"edited"}`))
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer good-token")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	var updated models.Item
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&updated))
	assert.Equal(t, "edited", updated.Content)
}

func TestItemsUpdate_NotFound(t *testing.T) {
	items := &fakeItemService{
		updateFunc: func(context.Context, string, string, models.ItemPatch) (*models.Item, error) {
			return nil, sql.ErrNoRows
		},
	}
	srv := newTestServer(t, nil, items)

	req, err := http.NewRequest(http.MethodPut, srv.URL+"/items/ghost", strings.NewReader(`{"content":"x"}`))
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer good-token")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestItemsDelete(t *testing.T) {
	var deleted string
	items := &fakeItemService{
		deleteFunc: func(_ context.Context, userID, id string) error {
			assert.Equal(t, "u1", userID)
			deleted = id
			return nil
		},
	}
	srv := newTestServer(t, nil, items)

	req, err := http.NewRequest(http.MethodDelete, srv.URL+"/items/i1", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer good-token")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "i1", deleted)
}
