package oauthflow

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/DuckOriDuck/whaleray/internal/auth"
)

func newTestFlow(t *testing.T) (*Flow, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("starting miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	authorizer, err := auth.NewAuthorizer("0123456789abcdef0123456789abcdef", 0)
	if err != nil {
		t.Fatalf("NewAuthorizer() error = %v", err)
	}

	cfg := Config{ClientID: "client-id", ClientSecret: "secret", CallbackURL: "https://api.example.com/auth/callback", AppSlug: "whaleray", FrontendURL: "https://app.example.com"}
	flow := NewFlow(cfg, rdb, authorizer, nil, nil, nil, slog.Default())
	return flow, rdb
}

func TestHandleStart_StoresStateInRedis(t *testing.T) {
	flow, rdb := newTestFlow(t)

	req := httptest.NewRequest(http.MethodGet, "/auth/start", nil)
	rec := httptest.NewRecorder()

	flow.handleStart(rec, req)

	if rec.Code != http.StatusFound {
		t.Fatalf("expected 302, got %d", rec.Code)
	}

	location := rec.Header().Get("Location")
	if location == "" {
		t.Fatal("expected Location header to be set")
	}

	keys, err := rdb.Keys(context.Background(), "oauth:state:*").Result()
	if err != nil {
		t.Fatalf("listing redis keys: %v", err)
	}
	if len(keys) != 1 {
		t.Fatalf("expected exactly one stored state key, got %d", len(keys))
	}
}

func TestHandleCallback_RejectsMissingState(t *testing.T) {
	flow, _ := newTestFlow(t)

	req := httptest.NewRequest(http.MethodGet, "/auth/callback?code=abc", nil)
	rec := httptest.NewRecorder()

	flow.handleCallback(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestHandleCallback_RejectsUnknownState(t *testing.T) {
	flow, _ := newTestFlow(t)

	req := httptest.NewRequest(http.MethodGet, "/auth/callback?state=never-issued&code=abc", nil)
	rec := httptest.NewRecorder()

	flow.handleCallback(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestHandleCallback_StateIsSingleUse(t *testing.T) {
	flow, rdb := newTestFlow(t)

	if err := rdb.Set(context.Background(), "oauth:state:reused", "1", 0).Err(); err != nil {
		t.Fatalf("seeding state: %v", err)
	}

	// First use consumes the state (GetDel); the actual GitHub exchange
	// will fail in this offline test, but that's a 401, not the 400 a
	// second replay must produce.
	req1 := httptest.NewRequest(http.MethodGet, "/auth/callback?state=reused&code=abc", nil)
	rec1 := httptest.NewRecorder()
	flow.handleCallback(rec1, req1)
	if rec1.Code == http.StatusBadRequest {
		t.Fatalf("first use of a valid state should not be rejected as bad_request, got %d", rec1.Code)
	}

	req2 := httptest.NewRequest(http.MethodGet, "/auth/callback?state=reused&code=abc", nil)
	rec2 := httptest.NewRecorder()
	flow.handleCallback(rec2, req2)
	if rec2.Code != http.StatusBadRequest {
		t.Fatalf("replaying a consumed state should be rejected, got %d", rec2.Code)
	}
}
