package cache

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// Config describes one cache generation and the interceptor's scope.
type Config struct {
	// Version tags the cache generation. Changing it is the sole
	// mechanism that forces a fresh pre-population and eviction of the
	// previous generation.
	Version string
	// Manifest is the fixed set of asset URLs pre-populated on install:
	// the shell's entry documents, icons and pinned third-party assets.
	Manifest []string
	// RootDocument is the manifest URL substituted for failed navigation
	// requests so the shell still renders offline.
	RootDocument string
	// BypassHosts are never intercepted: the API host and any
	// auth-bearing backend stay live.
	BypassHosts []string
}

// Interceptor fronts all outgoing GET requests with a cache-first,
// refresh-in-background strategy. It implements http.RoundTripper so the
// application shell can mount it as its transport.
type Interceptor struct {
	cfg       Config
	store     *Store
	transport http.RoundTripper
	log       *zap.Logger

	// wg tracks background refreshes so tests and shutdown can drain them.
	wg sync.WaitGroup
}

// NewInterceptor builds an Interceptor over the given store. transport may
// be nil, in which case http.DefaultTransport is used for live fetches.
func NewInterceptor(cfg Config, store *Store, transport http.RoundTripper, log *zap.Logger) *Interceptor {
	if transport == nil {
		transport = http.DefaultTransport
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Interceptor{cfg: cfg, store: store, transport: transport, log: log}
}

// Install pre-populates a fresh generation with every manifest asset.
// All-or-nothing: if any single fetch fails the partially-built generation
// is removed and the error propagates, so a later activation never serves
// a manifest with missing neighbors.
func (i *Interceptor) Install(ctx context.Context) error {
	for _, rawURL := range i.cfg.Manifest {
		if err := i.fetchAndStore(ctx, rawURL); err != nil {
			if derr := i.store.DeleteGeneration(i.cfg.Version); derr != nil {
				i.log.Warn("failed to remove partial generation", zap.Error(derr))
			}
			return fmt.Errorf("install %s: %w", rawURL, err)
		}
	}
	i.log.Info("cache generation installed",
		zap.String("version", i.cfg.Version),
		zap.Int("assets", len(i.cfg.Manifest)))
	return nil
}

// Activate makes this generation the only one: every generation whose tag
// differs from the current version is deleted. After Activate the
// interceptor handles all consumers, not only future-loaded ones.
func (i *Interceptor) Activate() error {
	gens, err := i.store.Generations()
	if err != nil {
		return fmt.Errorf("enumerate generations: %w", err)
	}
	for _, gen := range gens {
		if gen == i.cfg.Version {
			continue
		}
		if err := i.store.DeleteGeneration(gen); err != nil {
			return fmt.Errorf("purge generation %s: %w", gen, err)
		}
	}
	i.log.Info("cache generation activated", zap.String("version", i.cfg.Version))
	return nil
}

// RoundTrip implements the interception contract:
//
//   - non-GET requests and bypass hosts always go live, untouched
//   - a cache hit is returned immediately while a background fetch
//     refreshes the entry; refresh failures are swallowed
//   - a cache miss goes live; a hard transport failure falls back to the
//     cached root document for navigations, or a synthesized 503 otherwise
func (i *Interceptor) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Method != http.MethodGet || i.bypassed(req) {
		return i.transport.RoundTrip(req)
	}

	key := CanonicalKey(req.URL)
	if entry, err := i.store.Get(i.cfg.Version, key); err == nil {
		// Hit: respond from cache without waiting on the network, then
		// self-heal opportunistically.
		i.refreshInBackground(req, key)
		return entry.response(req), nil
	}

	resp, err := i.transport.RoundTrip(req)
	if err != nil {
		// Hard fetch failure (offline, DNS, timeout). A non-2xx response
		// is not a failure and passes through above.
		if isNavigation(req) {
			if root, rerr := i.store.Get(i.cfg.Version, i.cfg.RootDocument); rerr == nil {
				return root.response(req), nil
			}
		}
		i.log.Debug("live fetch failed, serving unavailable", zap.String("url", key), zap.Error(err))
		return unavailableResponse(req), nil
	}

	if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
		// The body can be consumed only once: retain an independent copy
		// for the cache and hand the caller a rebuilt response.
		entry, rerr := entryFromResponse(resp)
		if rerr != nil {
			return nil, rerr
		}
		if perr := i.store.Put(i.cfg.Version, key, *entry); perr != nil {
			i.log.Warn("failed to cache response", zap.String("url", key), zap.Error(perr))
		}
		return entry.response(req), nil
	}
	return resp, nil
}

// Wait blocks until all in-flight background refreshes settle.
func (i *Interceptor) Wait() {
	i.wg.Wait()
}

// refreshInBackground issues an independent live fetch for the key and, on
// success, replaces the cached entry. Failures never surface: a hit has
// already satisfied the caller.
func (i *Interceptor) refreshInBackground(req *http.Request, key string) {
	clone := req.Clone(context.Background())
	clone.Body = nil

	i.wg.Add(1)
	go func() {
		defer i.wg.Done()
		if err := i.fetchAndStoreRequest(clone, key); err != nil {
			i.log.Debug("background refresh failed", zap.String("url", key), zap.Error(err))
		}
	}()
}

func (i *Interceptor) fetchAndStore(ctx context.Context, rawURL string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	return i.fetchAndStoreRequest(req, CanonicalKey(req.URL))
}

func (i *Interceptor) fetchAndStoreRequest(req *http.Request, key string) error {
	resp, err := i.transport.RoundTrip(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("fetch %s: status %d", key, resp.StatusCode)
	}

	entry, err := entryFromResponse(resp)
	if err != nil {
		return err
	}
	return i.store.Put(i.cfg.Version, key, *entry)
}

func (i *Interceptor) bypassed(req *http.Request) bool {
	host := req.URL.Hostname()
	for _, b := range i.cfg.BypassHosts {
		if strings.EqualFold(host, b) {
			return true
		}
	}
	return false
}

// isNavigation reports whether the request is a full-page navigation, the
// case that falls back to the cached shell when offline.
func isNavigation(req *http.Request) bool {
	if req.Header.Get("Sec-Fetch-Mode") == "navigate" {
		return true
	}
	return strings.Contains(req.Header.Get("Accept"), "text/html")
}

// entryFromResponse drains the response body into a cache entry. The
// original body is closed; callers must use entry.response instead.
func entryFromResponse(resp *http.Response) (*Entry, error) {
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return &Entry{Status: resp.StatusCode, Header: resp.Header.Clone(), Body: body}, nil
}

// response builds a servable http.Response from the entry.
func (e *Entry) response(req *http.Request) *http.Response {
	return &http.Response{
		StatusCode:    e.Status,
		Status:        http.StatusText(e.Status),
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        e.Header.Clone(),
		Body:          io.NopCloser(bytes.NewReader(e.Body)),
		ContentLength: int64(len(e.Body)),
		Request:       req,
	}
}

// unavailableResponse synthesizes the offline answer for non-navigation
// misses: a 503 the page can handle, never a transport error.
func unavailableResponse(req *http.Request) *http.Response {
	body := []byte("service unavailable")
	h := http.Header{}
	h.Set("Content-Type", "text/plain; charset=utf-8")
	return &http.Response{
		StatusCode:    http.StatusServiceUnavailable,
		Status:        http.StatusText(http.StatusServiceUnavailable),
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        h,
		Body:          io.NopCloser(bytes.NewReader(body)),
		ContentLength: int64(len(body)),
		Request:       req,
	}
}
