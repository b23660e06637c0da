// Package api implements the typed HTTP client for the stash backend: auth,
// item CRUD and the bulk import used by the one-time local migration.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/akorchagin/stash/internal/models"
)

// ErrUnauthorized is returned when an authenticated endpoint rejects the
// bearer token. It is the one error callers must not swallow: it signals
// that the stored credential is dead and the session has to end.
var ErrUnauthorized = errors.New("unauthorized")

// Error is a non-2xx response from the backend carrying the server's
// inline message, used for signup/login validation failures.
type Error struct {
	Status  int
	Message string
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("server returned status %d", e.Status)
}

// Client talks to the stash backend over HTTP with JSON bodies and a
// bearer token on all but the auth endpoints.
type Client struct {
	http    *http.Client
	baseURL string

	mu    sync.RWMutex
	token string
}

// New constructs a Client for the given base URL. client may be nil, in
// which case http.DefaultClient is used.
func New(baseURL string, client *http.Client) *Client {
	if client == nil {
		client = http.DefaultClient
	}
	return &Client{http: client, baseURL: baseURL}
}

// SetToken installs the bearer token used on authenticated calls.
// An empty string clears it.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

// sessionResponse mirrors the body of POST /auth/signup and /auth/login.
type sessionResponse struct {
	Token string      `json:"token"`
	User  models.User `json:"user"`
}

// Signup registers a new account. A non-2xx response surfaces the server's
// inline error message (duplicate account, malformed input).
func (c *Client) Signup(ctx context.Context, email, password string) (string, models.User, error) {
	return c.authCall(ctx, "/auth/signup", email, password)
}

// Login exchanges credentials for a token. Invalid credentials surface the
// server's inline message; they never look like a session invalidation
// because no session exists yet on this path.
func (c *Client) Login(ctx context.Context, email, password string) (string, models.User, error) {
	return c.authCall(ctx, "/auth/login", email, password)
}

func (c *Client) authCall(ctx context.Context, path, email, password string) (string, models.User, error) {
	body, _ := json.Marshal(map[string]string{"email": email, "password": password})
	resp, err := c.do(ctx, http.MethodPost, path, body, false)
	if err != nil {
		return "", models.User{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", models.User{}, decodeError(resp)
	}

	var out sessionResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", models.User{}, fmt.Errorf("invalid response: %w", err)
	}
	return out.Token, out.User, nil
}

// Me validates the stored token and returns the account it belongs to.
func (c *Client) Me(ctx context.Context) (models.User, error) {
	resp, err := c.do(ctx, http.MethodGet, "/auth/me", nil, true)
	if err != nil {
		return models.User{}, err
	}
	defer resp.Body.Close()

	if err := checkAuthenticated(resp); err != nil {
		return models.User{}, err
	}

	var out struct {
		User models.User `json:"user"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return models.User{}, fmt.Errorf("invalid response: %w", err)
	}
	return out.User, nil
}

// ListItems fetches the authoritative item list.
func (c *Client) ListItems(ctx context.Context) ([]models.Item, error) {
	resp, err := c.do(ctx, http.MethodGet, "/items", nil, true)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if err := checkAuthenticated(resp); err != nil {
		return nil, err
	}

	var out struct {
		Items []models.Item `json:"items"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("invalid response: %w", err)
	}
	return out.Items, nil
}

// CreateItem stores one new item remotely.
func (c *Client) CreateItem(ctx context.Context, it models.Item) error {
	body, err := json.Marshal(it)
	if err != nil {
		return err
	}
	return c.mutate(ctx, http.MethodPost, "/items", body)
}

// ImportItems bulk-creates items from a list, the migration path for
// local-only items captured before the account existed.
func (c *Client) ImportItems(ctx context.Context, items []models.Item) error {
	body, err := json.Marshal(map[string][]models.Item{"items": items})
	if err != nil {
		return err
	}
	return c.mutate(ctx, http.MethodPost, "/items/import", body)
}

// UpdateItem sends a partial update; only non-nil patch fields travel.
func (c *Client) UpdateItem(ctx context.Context, id string, patch models.ItemPatch) error {
	body, err := json.Marshal(patch)
	if err != nil {
		return err
	}
	return c.mutate(ctx, http.MethodPut, "/items/"+id, body)
}

// DeleteItem removes one item remotely.
func (c *Client) DeleteItem(ctx context.Context, id string) error {
	return c.mutate(ctx, http.MethodDelete, "/items/"+id, nil)
}

func (c *Client) mutate(ctx context.Context, method, path string, body []byte) error {
	resp, err := c.do(ctx, method, path, body, true)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return checkAuthenticated(resp)
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, withToken bool) (*http.Response, error) {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if withToken {
		c.mu.RLock()
		token := c.token
		c.mu.RUnlock()
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	return resp, nil
}

// checkAuthenticated maps responses from authenticated endpoints:
// 401 becomes ErrUnauthorized, other non-2xx become *Error.
func checkAuthenticated(resp *http.Response) error {
	if resp.StatusCode == http.StatusUnauthorized {
		io.Copy(io.Discard, resp.Body)
		return ErrUnauthorized
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	var out struct {
		Error string `json:"error"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return &Error{Status: resp.StatusCode, Message: out.Error}
}
