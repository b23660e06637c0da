package cache

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

// roundTripperFunc lets tests stub the live transport.
type roundTripperFunc func(req *http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func okResponse(body string) *http.Response {
	return &http.Response{
		StatusCode: http.StatusOK,
		Header:     http.Header{"Content-Type": []string{"text/plain"}},
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

func newTestInterceptor(t *testing.T, cfg Config, transport roundTripperFunc) (*Interceptor, *Store) {
	t.Helper()
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	return NewInterceptor(cfg, store, transport, nil), store
}

func TestInstall_PopulatesEveryManifestAsset(t *testing.T) {
	manifest := []string{
		"https://app.example.com/",
		"https://app.example.com/app.js",
		"https://fonts.example.com/inter.woff2",
	}
	ic, store := newTestInterceptor(t, Config{Version: "v1", Manifest: manifest},
		func(req *http.Request) (*http.Response, error) {
			return okResponse("asset:" + req.URL.Path), nil
		})

	if err := ic.Install(context.Background()); err != nil {
		t.Fatalf("Install failed: %v", err)
	}
	for _, u := range manifest {
		if !store.Has("v1", u) {
			t.Errorf("manifest asset %s missing after install", u)
		}
	}
}

func TestInstall_AllOrNothing(t *testing.T) {
	manifest := []string{
		"https://app.example.com/",
		"https://app.example.com/broken.js",
		"https://app.example.com/app.css",
	}
	ic, store := newTestInterceptor(t, Config{Version: "v1", Manifest: manifest},
		func(req *http.Request) (*http.Response, error) {
			if strings.Contains(req.URL.Path, "broken") {
				return nil, errors.New("connection refused")
			}
			return okResponse("ok"), nil
		})

	if err := ic.Install(context.Background()); err == nil {
		t.Fatal("expected install to fail")
	}
	// No generation is left partially populated.
	gens, err := store.Generations()
	if err != nil {
		t.Fatal(err)
	}
	if len(gens) != 0 {
		t.Errorf("partial generation left behind: %v", gens)
	}
}

func TestInstall_Non2xxIsFailure(t *testing.T) {
	ic, store := newTestInterceptor(t,
		Config{Version: "v1", Manifest: []string{"https://app.example.com/gone.js"}},
		func(req *http.Request) (*http.Response, error) {
			return &http.Response{StatusCode: 404, Body: io.NopCloser(strings.NewReader("not found"))}, nil
		})

	if err := ic.Install(context.Background()); err == nil {
		t.Fatal("expected install to fail on 404")
	}
	if gens, _ := store.Generations(); len(gens) != 0 {
		t.Errorf("partial generation left behind: %v", gens)
	}
}

func TestActivate_PurgesAllOtherGenerations(t *testing.T) {
	ic, store := newTestInterceptor(t, Config{Version: "v3"}, nil)
	for _, gen := range []string{"v1", "v2", "v3"} {
		if err := store.Put(gen, "https://app.example.com/", Entry{Status: 200}); err != nil {
			t.Fatal(err)
		}
	}

	if err := ic.Activate(); err != nil {
		t.Fatalf("Activate failed: %v", err)
	}

	gens, err := store.Generations()
	if err != nil {
		t.Fatal(err)
	}
	if len(gens) != 1 || gens[0] != "v3" {
		t.Errorf("generations after activate = %v; want [v3]", gens)
	}
}

func TestRoundTrip_HitDoesNotWaitOnNetwork(t *testing.T) {
	var liveCalls atomic.Int32
	ic, store := newTestInterceptor(t, Config{Version: "v1"},
		func(req *http.Request) (*http.Response, error) {
			liveCalls.Add(1)
			// A slow, failing network must not affect a hit.
			time.Sleep(50 * time.Millisecond)
			return nil, errors.New("network down")
		})
	key := "https://app.example.com/app.js"
	if err := store.Put("v1", key, Entry{Status: 200, Body: []byte("cached")}); err != nil {
		t.Fatal(err)
	}

	req, _ := http.NewRequest(http.MethodGet, key, nil)
	start := time.Now()
	resp, err := ic.RoundTrip(req)
	elapsed := time.Since(start)
	if err != nil {
		t.Fatalf("RoundTrip failed: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "cached" {
		t.Errorf("body = %q; want cached", body)
	}
	if elapsed > 40*time.Millisecond {
		t.Errorf("hit waited on the network: took %v", elapsed)
	}

	// The refresh still happened, independently.
	ic.Wait()
	if liveCalls.Load() != 1 {
		t.Errorf("live calls = %d; want 1 background refresh", liveCalls.Load())
	}
}

func TestRoundTrip_BackgroundRefreshReplacesEntry(t *testing.T) {
	ic, store := newTestInterceptor(t, Config{Version: "v1"},
		func(req *http.Request) (*http.Response, error) {
			return okResponse("fresh"), nil
		})
	key := "https://app.example.com/app.js"
	if err := store.Put("v1", key, Entry{Status: 200, Body: []byte("stale")}); err != nil {
		t.Fatal(err)
	}

	req, _ := http.NewRequest(http.MethodGet, key, nil)
	resp, err := ic.RoundTrip(req)
	if err != nil {
		t.Fatal(err)
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "stale" {
		t.Errorf("hit body = %q; want the cached value", body)
	}

	ic.Wait()
	got, err := store.Get("v1", key)
	if err != nil {
		t.Fatal(err)
	}
	if string(got.Body) != "fresh" {
		t.Errorf("entry after refresh = %q; want fresh", got.Body)
	}
}

func TestRoundTrip_RefreshIdempotent(t *testing.T) {
	ic, store := newTestInterceptor(t, Config{Version: "v1"},
		func(req *http.Request) (*http.Response, error) {
			return okResponse("fresh"), nil
		})
	key := "https://app.example.com/app.js"
	if err := store.Put("v1", key, Entry{Status: 200, Body: []byte("stale")}); err != nil {
		t.Fatal(err)
	}

	req, _ := http.NewRequest(http.MethodGet, key, nil)
	for i := 0; i < 2; i++ {
		if _, err := ic.RoundTrip(req); err != nil {
			t.Fatal(err)
		}
		ic.Wait()
	}

	got, err := store.Get("v1", key)
	if err != nil {
		t.Fatal(err)
	}
	if string(got.Body) != "fresh" {
		t.Errorf("entry after double refresh = %q; want fresh", got.Body)
	}
}

func TestRoundTrip_MissSuccessCachesAndReturns(t *testing.T) {
	ic, store := newTestInterceptor(t, Config{Version: "v1"},
		func(req *http.Request) (*http.Response, error) {
			return okResponse("live"), nil
		})

	key := "https://app.example.com/new.js"
	req, _ := http.NewRequest(http.MethodGet, key, nil)
	resp, err := ic.RoundTrip(req)
	if err != nil {
		t.Fatal(err)
	}
	// The caller can consume the body even though a copy was cached.
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "live" {
		t.Errorf("body = %q; want live", body)
	}
	got, err := store.Get("v1", key)
	if err != nil {
		t.Fatalf("response was not cached: %v", err)
	}
	if string(got.Body) != "live" {
		t.Errorf("cached body = %q; want live", got.Body)
	}
}

func TestRoundTrip_MissNon2xxPassesThroughUncached(t *testing.T) {
	ic, store := newTestInterceptor(t, Config{Version: "v1"},
		func(req *http.Request) (*http.Response, error) {
			return &http.Response{StatusCode: 404, Body: io.NopCloser(strings.NewReader("nope"))}, nil
		})

	key := "https://app.example.com/missing.js"
	req, _ := http.NewRequest(http.MethodGet, key, nil)
	resp, err := ic.RoundTrip(req)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != 404 {
		t.Errorf("status = %d; want 404 passed through", resp.StatusCode)
	}
	if store.Has("v1", key) {
		t.Error("non-2xx response must not be cached")
	}
}

func TestRoundTrip_OfflineNavigationFallsBackToRoot(t *testing.T) {
	root := "https://app.example.com/"
	ic, store := newTestInterceptor(t, Config{Version: "v1", RootDocument: root},
		func(req *http.Request) (*http.Response, error) {
			return nil, errors.New("offline")
		})
	if err := store.Put("v1", root, Entry{Status: 200, Body: []byte("<html>shell</html>")}); err != nil {
		t.Fatal(err)
	}

	req, _ := http.NewRequest(http.MethodGet, "https://app.example.com/some/page", nil)
	req.Header.Set("Sec-Fetch-Mode", "navigate")
	resp, err := ic.RoundTrip(req)
	if err != nil {
		t.Fatalf("navigation fallback errored: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "<html>shell</html>" {
		t.Errorf("body = %q; want the cached shell", body)
	}
}

func TestRoundTrip_OfflineNonNavigationSynthesizes503(t *testing.T) {
	ic, _ := newTestInterceptor(t, Config{Version: "v1"},
		func(req *http.Request) (*http.Response, error) {
			return nil, errors.New("offline")
		})

	req, _ := http.NewRequest(http.MethodGet, "https://cdn.example.com/lib.js", nil)
	resp, err := ic.RoundTrip(req)
	if err != nil {
		t.Fatalf("expected a synthesized response, got error %v", err)
	}
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status = %d; want %d", resp.StatusCode, http.StatusServiceUnavailable)
	}
}

func TestRoundTrip_OfflineNavigationWithoutCachedRootSynthesizes503(t *testing.T) {
	ic, _ := newTestInterceptor(t, Config{Version: "v1", RootDocument: "https://app.example.com/"},
		func(req *http.Request) (*http.Response, error) {
			return nil, errors.New("offline")
		})

	req, _ := http.NewRequest(http.MethodGet, "https://app.example.com/page", nil)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	resp, err := ic.RoundTrip(req)
	if err != nil {
		t.Fatalf("expected a synthesized response, got error %v", err)
	}
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status = %d; want %d", resp.StatusCode, http.StatusServiceUnavailable)
	}
}

func TestRoundTrip_NonGETNeverIntercepted(t *testing.T) {
	var live bool
	ic, store := newTestInterceptor(t, Config{Version: "v1"},
		func(req *http.Request) (*http.Response, error) {
			live = true
			return okResponse("posted"), nil
		})

	req, _ := http.NewRequest(http.MethodPost, "https://app.example.com/form", strings.NewReader("x=1"))
	if _, err := ic.RoundTrip(req); err != nil {
		t.Fatal(err)
	}
	if !live {
		t.Error("POST did not go live")
	}
	if store.Has("v1", "https://app.example.com/form") {
		t.Error("POST response must not be cached")
	}
}

func TestRoundTrip_BypassHostGoesLive(t *testing.T) {
	var live bool
	ic, store := newTestInterceptor(t, Config{Version: "v1", BypassHosts: []string{"api.example.com"}},
		func(req *http.Request) (*http.Response, error) {
			live = true
			return okResponse(`{"items":[]}`), nil
		})

	key := "https://api.example.com/items"
	if err := store.Put("v1", key, Entry{Status: 200, Body: []byte("stale-items")}); err != nil {
		t.Fatal(err)
	}

	req, _ := http.NewRequest(http.MethodGet, key, nil)
	resp, err := ic.RoundTrip(req)
	if err != nil {
		t.Fatal(err)
	}
	body, _ := io.ReadAll(resp.Body)
	if !live || string(body) != `{"items":[]}` {
		t.Errorf("bypass host served from cache: live=%v body=%q", live, body)
	}
}
