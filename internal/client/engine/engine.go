// Package engine implements the client sync engine: it owns the in-memory
// item list, mediates every mutation through an optimistic-update
// discipline, and manages the authentication lifecycle including the
// one-time migration of local-only items into a fresh account.
package engine

import (
	"context"
	"errors"
	"sync"

	"github.com/akorchagin/stash/internal/client/api"
	"github.com/akorchagin/stash/internal/models"
	"go.uber.org/zap"
)

// State is the engine's authentication state.
type State int

const (
	// StateUnauthenticated means no live session; item access is blocked.
	StateUnauthenticated State = iota
	// StateAuthenticating means a credential was obtained and the engine
	// is migrating local items and adopting the server list.
	StateAuthenticating
	// StateAuthenticated means the item list is live and mutable.
	StateAuthenticated
)

// API is the remote collaborator as the engine consumes it.
type API interface {
	SetToken(token string)
	Signup(ctx context.Context, email, password string) (string, models.User, error)
	Login(ctx context.Context, email, password string) (string, models.User, error)
	ListItems(ctx context.Context) ([]models.Item, error)
	CreateItem(ctx context.Context, it models.Item) error
	ImportItems(ctx context.Context, items []models.Item) error
	UpdateItem(ctx context.Context, id string, patch models.ItemPatch) error
	DeleteItem(ctx context.Context, id string) error
}

// LocalState persists the credential and the pre-migration vault.
type LocalState interface {
	Token() (string, error)
	SaveToken(token string) error
	ClearToken() error
	Vault() ([]models.Item, error)
	AppendVault(it models.Item) error
	ClearVault() error
}

// Engine owns the authoritative in-memory item list for one application
// instance. Mutations apply locally first and fire exactly one background
// remote call whose failure is logged and tolerated; only an unauthorized
// response changes behavior, ending the session exactly once.
type Engine struct {
	api   API
	store LocalState
	log   *zap.Logger

	mu    sync.Mutex
	state State
	user  models.User
	items []models.Item
	// sessionGen increments on every session boundary (login, logout,
	// invalidation) so a stale in-flight call cannot end a newer session.
	sessionGen   int
	onSessionEnd []func(reason string)

	// wg tracks fire-and-forget remote calls for draining in tests and
	// shutdown. The calls themselves are never cancelled.
	wg sync.WaitGroup
}

// New constructs an Engine. log may be nil.
func New(a API, store LocalState, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{api: a, store: store, log: log}
}

// State returns the current authentication state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// User returns the authenticated account, zero value when unauthenticated.
func (e *Engine) User() models.User {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.user
}

// Items returns a copy of the current item list.
func (e *Engine) Items() []models.Item {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]models.Item, len(e.items))
	copy(out, e.items)
	return out
}

// OnSessionEnd registers a callback fired when the session ends because a
// remote call was rejected as unauthorized. Explicit Logout does not fire
// it: the caller already knows. Callbacks run outside the engine lock.
func (e *Engine) OnSessionEnd(fn func(reason string)) {
	e.mu.Lock()
	e.onSessionEnd = append(e.onSessionEnd, fn)
	e.mu.Unlock()
}

// Start restores a previous session if a credential is stored. A rejected
// credential is discarded; an unreachable network keeps the session with
// an empty list, to be refilled on the next load.
func (e *Engine) Start(ctx context.Context) error {
	token, err := e.store.Token()
	if err != nil {
		return err
	}
	if token == "" {
		return nil
	}

	e.api.SetToken(token)
	e.mu.Lock()
	e.state = StateAuthenticating
	e.sessionGen++
	gen := e.sessionGen
	e.mu.Unlock()

	items, err := e.api.ListItems(ctx)
	if errors.Is(err, api.ErrUnauthorized) {
		if cerr := e.store.ClearToken(); cerr != nil {
			e.log.Warn("failed to clear rejected credential", zap.Error(cerr))
		}
		e.api.SetToken("")
		e.mu.Lock()
		if e.sessionGen == gen {
			e.state = StateUnauthenticated
		}
		e.mu.Unlock()
		return nil
	}
	if err != nil {
		e.log.Warn("startup item fetch failed", zap.Error(err))
		items = nil
	}

	e.mu.Lock()
	if e.sessionGen == gen {
		e.items = items
		e.state = StateAuthenticated
	}
	e.mu.Unlock()
	return nil
}

// Signup creates an account and establishes the session. A validation
// failure (duplicate account, malformed input) is returned for inline
// display and alters no persisted state.
func (e *Engine) Signup(ctx context.Context, email, password string) error {
	token, user, err := e.api.Signup(ctx, email, password)
	if err != nil {
		return err
	}
	e.establish(ctx, token, user)
	return nil
}

// Login authenticates an existing account and establishes the session.
func (e *Engine) Login(ctx context.Context, email, password string) error {
	token, user, err := e.api.Login(ctx, email, password)
	if err != nil {
		return err
	}
	e.establish(ctx, token, user)
	return nil
}

// establish runs the post-credential sequence: migrate the vault at most
// once, adopt the server's item list, become authenticated. Failures in
// either step are logged and never revert the already-established
// credential; the user ends up authenticated with whatever list could be
// obtained.
func (e *Engine) establish(ctx context.Context, token string, user models.User) {
	e.api.SetToken(token)
	if err := e.store.SaveToken(token); err != nil {
		e.log.Warn("failed to persist credential", zap.Error(err))
	}

	e.mu.Lock()
	e.state = StateAuthenticating
	e.user = user
	e.sessionGen++
	gen := e.sessionGen
	e.mu.Unlock()

	pending, err := e.store.Vault()
	if err != nil {
		e.log.Warn("failed to read migration vault", zap.Error(err))
	}
	if len(pending) > 0 {
		if err := e.api.ImportItems(ctx, pending); err != nil {
			// The vault stays intact so nothing is lost; no retry this
			// session, login proceeds regardless.
			e.log.Warn("local item migration failed, keeping vault",
				zap.Int("items", len(pending)), zap.Error(err))
		} else if err := e.store.ClearVault(); err != nil {
			e.log.Warn("failed to clear migrated vault", zap.Error(err))
		}
	}

	items, err := e.api.ListItems(ctx)
	if err != nil {
		e.log.Warn("item fetch after login failed", zap.Error(err))
		items = nil
	}

	e.mu.Lock()
	if e.sessionGen == gen {
		e.items = items
		e.state = StateAuthenticated
	}
	e.mu.Unlock()
}

// Logout discards the credential and item state unconditionally. No
// network call is made and in-flight background calls are not aborted;
// their results are simply no longer of interest.
func (e *Engine) Logout() {
	e.mu.Lock()
	e.sessionGen++
	e.state = StateUnauthenticated
	e.user = models.User{}
	e.items = nil
	e.mu.Unlock()

	e.api.SetToken("")
	if err := e.store.ClearToken(); err != nil {
		e.log.Warn("failed to clear credential", zap.Error(err))
	}
}

// Wait drains outstanding background remote calls.
func (e *Engine) Wait() {
	e.wg.Wait()
}

// spawn runs one fire-and-forget remote call. An unauthorized response
// ends the session it belonged to; any other failure is captured into the
// diagnostic sink and otherwise ignored — local state stays authoritative.
func (e *Engine) spawn(gen int, op string, call func(ctx context.Context) error) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		err := call(context.Background())
		if err == nil {
			return
		}
		if errors.Is(err, api.ErrUnauthorized) {
			e.endSession(gen, "session expired")
			return
		}
		e.log.Warn("background sync failed", zap.String("op", op), zap.Error(err))
	}()
}

// endSession performs the one-shot session invalidation: clear the
// credential, clear item state, signal subscribers. Concurrent in-flight
// calls from the same session converge on a single transition; calls from
// an older session are ignored.
func (e *Engine) endSession(gen int, reason string) {
	e.mu.Lock()
	if e.sessionGen != gen || e.state == StateUnauthenticated {
		e.mu.Unlock()
		return
	}
	e.sessionGen++
	e.state = StateUnauthenticated
	e.user = models.User{}
	e.items = nil
	subs := make([]func(string), len(e.onSessionEnd))
	copy(subs, e.onSessionEnd)
	e.mu.Unlock()

	e.api.SetToken("")
	if err := e.store.ClearToken(); err != nil {
		e.log.Warn("failed to clear credential", zap.Error(err))
	}
	for _, fn := range subs {
		fn(reason)
	}
}
