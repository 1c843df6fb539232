package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"toolgate/internal/domain"
	"toolgate/internal/infra/catalogstore"
	"toolgate/internal/infra/session"
	"toolgate/internal/infra/telemetry"
	"toolgate/internal/infra/transport"
)

// toolServer is a scriptable endpoint. Initialize and tools/list succeed by
// default; tools/call behavior is driven per attempt by onCall.
type toolServer struct {
	mu           sync.Mutex
	callAttempts int
	listAttempts int
	initAttempts int
	sessionSeen  []string

	session string
	tools   []map[string]any
	onCall  func(attempt int, w http.ResponseWriter)
}

func (s *toolServer) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var msg struct {
			ID     json.RawMessage `json:"id"`
			Method string          `json:"method"`
		}
		if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		s.mu.Lock()
		s.sessionSeen = append(s.sessionSeen, r.Header.Get(domain.HeaderSessionID))
		switch msg.Method {
		case "initialize":
			s.initAttempts++
		case "tools/list":
			s.listAttempts++
		case "tools/call":
			s.callAttempts++
		}
		callAttempt := s.callAttempts
		s.mu.Unlock()

		switch msg.Method {
		case "initialize":
			if s.session != "" {
				w.Header().Set(domain.HeaderSessionID, s.session)
			}
			writeResult(w, map[string]any{
				"protocolVersion": domain.DefaultProtocolVersion,
				"serverInfo":      map[string]any{"name": "fixture", "version": "1.0.0"},
				"capabilities":    map[string]any{"tools": map[string]any{}},
			})
		case "notifications/initialized":
			w.WriteHeader(http.StatusAccepted)
		case "tools/list":
			writeResult(w, map[string]any{"tools": s.tools})
		case "tools/call":
			if s.onCall != nil {
				s.onCall(callAttempt, w)
				return
			}
			writeCallText(w, "ok")
		default:
			http.Error(w, "unexpected method "+msg.Method, http.StatusBadRequest)
		}
	}
}

func (s *toolServer) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.callAttempts
}

func (s *toolServer) lists() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listAttempts
}

func (s *toolServer) inits() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.initAttempts
}

func (s *toolServer) lastSession() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.sessionSeen) == 0 {
		return ""
	}
	return s.sessionSeen[len(s.sessionSeen)-1]
}

func writeResult(w http.ResponseWriter, result any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"jsonrpc": "2.0",
		"id":      1,
		"result":  result,
	})
}

func writeCallText(w http.ResponseWriter, text string) {
	writeResult(w, map[string]any{
		"content": []map[string]any{{"type": "text", "text": text}},
	})
}

func writeWireError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"jsonrpc": "2.0",
		"id":      1,
		"error":   map[string]any{"code": code, "message": message},
	})
}

type fixture struct {
	client   *Client
	registry *transport.Registry
	health   *domain.HealthMonitor
	backoffs *[]time.Duration
}

func newFixture(t *testing.T, store *catalogstore.Store) *fixture {
	t.Helper()
	var backoffs []time.Duration
	sleep := func(_ context.Context, d time.Duration) error {
		backoffs = append(backoffs, d)
		return nil
	}

	cache := domain.NewResponseCache(domain.DefaultCacheTTL)
	registry := transport.NewRegistry(transport.RegistryOptions{Cache: cache})
	negotiator := session.NewNegotiator(session.NegotiatorOptions{
		Registry: registry,
		Sleep:    sleep,
	})
	health := domain.NewHealthMonitor(time.Minute)
	c := New(ClientOptions{
		Registry:   registry,
		Negotiator: negotiator,
		Cache:      cache,
		Health:     health,
		Store:      store,
		Sleep:      sleep,
	})
	return &fixture{client: c, registry: registry, health: health, backoffs: &backoffs}
}

func TestCallTool_RecoversFromServerErrors(t *testing.T) {
	server := &toolServer{
		onCall: func(attempt int, w http.ResponseWriter) {
			if attempt < 3 {
				http.Error(w, "boom", http.StatusInternalServerError)
				return
			}
			writeCallText(w, "ok")
		},
	}
	ts := httptest.NewServer(server.handler())
	defer ts.Close()

	fx := newFixture(t, nil)
	result := fx.client.CallTool(context.Background(), ts.URL,
		domain.CallRequest{Tool: "calculator", Arguments: map[string]any{"expression": "1+1"}},
		map[string]string{})

	require.True(t, result.IsSuccess(), "got %s: %s", result.Kind, result.Message)
	assert.Equal(t, "ok", result.Text)
	assert.Equal(t, 3, server.calls())
	// Exponential backoff for server-side failures.
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second}, *fx.backoffs)
}

func TestCallTool_ElevatedBackoffForDestroyedContext(t *testing.T) {
	server := &toolServer{
		onCall: func(attempt int, w http.ResponseWriter) {
			if attempt < 3 {
				writeWireError(w, -32000, "execution context was destroyed")
				return
			}
			writeCallText(w, "recovered")
		},
	}
	ts := httptest.NewServer(server.handler())
	defer ts.Close()

	fx := newFixture(t, nil)
	result := fx.client.CallTool(context.Background(), ts.URL,
		domain.CallRequest{Tool: "browser"}, map[string]string{})

	require.True(t, result.IsSuccess())
	assert.Equal(t, "recovered", result.Text)
	require.Len(t, *fx.backoffs, 2)
	for _, backoff := range *fx.backoffs {
		assert.GreaterOrEqual(t, backoff, 5*time.Second)
	}
}

func TestCallTool_BusinessErrorIsNotRetried(t *testing.T) {
	server := &toolServer{
		onCall: func(_ int, w http.ResponseWriter) {
			writeWireError(w, -32001, "file not found")
		},
	}
	ts := httptest.NewServer(server.handler())
	defer ts.Close()

	fx := newFixture(t, nil)
	result := fx.client.CallTool(context.Background(), ts.URL,
		domain.CallRequest{Tool: "reader"}, map[string]string{})

	assert.Equal(t, domain.CallBusinessError, result.Kind)
	assert.Equal(t, "file not found", result.Message)
	assert.Equal(t, -32001, result.Code)
	assert.Equal(t, 1, server.calls())
	assert.Empty(t, *fx.backoffs)
}

func TestCallTool_ExhaustionYieldsTaggedNetworkError(t *testing.T) {
	server := &toolServer{
		onCall: func(_ int, w http.ResponseWriter) {
			http.Error(w, "still down", http.StatusServiceUnavailable)
		},
	}
	ts := httptest.NewServer(server.handler())
	defer ts.Close()

	fx := newFixture(t, nil)
	result := fx.client.CallTool(context.Background(), ts.URL,
		domain.CallRequest{Tool: "calculator"}, map[string]string{})

	assert.Equal(t, domain.CallNetworkError, result.Kind)
	assert.Equal(t, "retry_exhausted", result.Message)
	assert.Equal(t, http.StatusServiceUnavailable, result.HTTPStatus)
	assert.NotEmpty(t, result.Detail)
	assert.Equal(t, domain.DefaultMaxRetryCount, server.calls())
}

func TestCallTool_ClientErrorStatusFailsImmediately(t *testing.T) {
	server := &toolServer{
		onCall: func(_ int, w http.ResponseWriter) {
			http.Error(w, "no such endpoint", http.StatusNotFound)
		},
	}
	ts := httptest.NewServer(server.handler())
	defer ts.Close()

	fx := newFixture(t, nil)
	result := fx.client.CallTool(context.Background(), ts.URL,
		domain.CallRequest{Tool: "calculator"}, map[string]string{})

	assert.Equal(t, domain.CallNetworkError, result.Kind)
	assert.Equal(t, http.StatusNotFound, result.HTTPStatus)
	assert.Equal(t, 1, server.calls())
}

func TestListTools_CachesListing(t *testing.T) {
	server := &toolServer{
		tools: []map[string]any{
			{"name": "calculator", "description": "evaluates expressions"},
			{"name": "echo"},
		},
	}
	ts := httptest.NewServer(server.handler())
	defer ts.Close()

	fx := newFixture(t, nil)
	headers := map[string]string{}

	first, err := fx.client.ListTools(context.Background(), ts.URL, headers)
	require.NoError(t, err)
	require.Len(t, first, 2)
	assert.Equal(t, "calculator", first[0].Name)
	assert.Equal(t, 1, server.lists())

	second, err := fx.client.ListTools(context.Background(), ts.URL, headers)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	// Served from cache, no new discovery round.
	assert.Equal(t, 1, server.lists())

	// Cached listings are isolated copies.
	second[0].Name = "mutated"
	third, err := fx.client.ListTools(context.Background(), ts.URL, headers)
	require.NoError(t, err)
	assert.Equal(t, "calculator", third[0].Name)
}

func TestListTools_NoCacheForcesLiveListing(t *testing.T) {
	server := &toolServer{
		tools: []map[string]any{{"name": "calculator"}},
	}
	ts := httptest.NewServer(server.handler())
	defer ts.Close()

	fx := newFixture(t, nil)
	headers := map[string]string{}

	_, err := fx.client.ListTools(context.Background(), ts.URL, headers)
	require.NoError(t, err)
	require.Equal(t, 1, server.lists())

	_, err = fx.client.ListTools(context.Background(), ts.URL, headers)
	require.NoError(t, err)
	require.Equal(t, 1, server.lists())

	// The bypass goes to the wire even though the cache entry is fresh.
	fresh, err := fx.client.ListToolsWithOptions(context.Background(), ts.URL, headers,
		ListOptions{NoCache: true})
	require.NoError(t, err)
	require.Len(t, fresh, 1)
	assert.Equal(t, 2, server.lists())

	// The live result refreshed the cache for later callers.
	_, err = fx.client.ListTools(context.Background(), ts.URL, headers)
	require.NoError(t, err)
	assert.Equal(t, 2, server.lists())
}

func TestListTools_FailureCountsHealthOnce(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "down", http.StatusInternalServerError)
	}))
	defer ts.Close()

	fx := newFixture(t, nil)
	_, err := fx.client.ListTools(context.Background(), ts.URL, map[string]string{})
	require.Error(t, err)

	record, ok := fx.health.Record(ts.URL)
	require.True(t, ok)
	assert.False(t, record.Healthy)
	// One logical discovery failure increments the error count exactly
	// once, however many handshake retries ran underneath.
	assert.Equal(t, 1, record.ErrorCount)
}

func TestCallTool_LogsAttemptEvents(t *testing.T) {
	server := &toolServer{}
	ts := httptest.NewServer(server.handler())
	defer ts.Close()

	core, logs := observer.New(zap.DebugLevel)
	registry := transport.NewRegistry(transport.RegistryOptions{})
	negotiator := session.NewNegotiator(session.NegotiatorOptions{Registry: registry})
	c := New(ClientOptions{
		Registry:   registry,
		Negotiator: negotiator,
		Logger:     zap.New(core),
	})

	result := c.CallTool(context.Background(), ts.URL,
		domain.CallRequest{Tool: "calculator"}, map[string]string{})
	require.True(t, result.IsSuccess())

	attempts := logs.FilterField(telemetry.EventField(telemetry.EventCallAttempt))
	assert.Equal(t, 1, attempts.Len())
}

func TestListTools_MissingToolsIsInvalid(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var msg struct {
			Method string `json:"method"`
		}
		_ = json.NewDecoder(r.Body).Decode(&msg)
		switch msg.Method {
		case "initialize":
			writeResult(w, map[string]any{
				"protocolVersion": domain.DefaultProtocolVersion,
				"serverInfo":      map[string]any{"name": "fixture", "version": "1.0.0"},
			})
		case "notifications/initialized":
			w.WriteHeader(http.StatusAccepted)
		default:
			writeResult(w, map[string]any{"unexpected": true})
		}
	}))
	defer ts.Close()

	fx := newFixture(t, nil)
	_, err := fx.client.ListTools(context.Background(), ts.URL, map[string]string{})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrNoTools)
}

func TestListTools_ServesStaleCatalogOnFailure(t *testing.T) {
	store, err := catalogstore.Open(filepath.Join(t.TempDir(), "catalog.db"))
	require.NoError(t, err)
	defer store.Close()

	server := &toolServer{
		tools: []map[string]any{{"name": "calculator"}},
	}
	ts := httptest.NewServer(server.handler())

	fx := newFixture(t, store)
	tools, err := fx.client.ListTools(context.Background(), ts.URL, map[string]string{})
	require.NoError(t, err)
	require.Len(t, tools, 1)

	// Endpoint goes away; the persisted catalog still answers.
	ts.Close()
	fx.registry.Invalidate(ts.URL)
	fx.client.cache.Delete(domain.ToolListingCacheKey(domain.NormalizeEndpoint(ts.URL)))

	stale, err := fx.client.ListTools(context.Background(), ts.URL, map[string]string{})
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, "calculator", stale[0].Name)
}

func TestCallTool_ReinitializesAfterInvalidation(t *testing.T) {
	server := &toolServer{
		session: "sess-42",
		tools:   []map[string]any{{"name": "calculator"}},
	}
	ts := httptest.NewServer(server.handler())
	defer ts.Close()

	fx := newFixture(t, nil)

	_, err := fx.client.ListTools(context.Background(), ts.URL, map[string]string{})
	require.NoError(t, err)
	require.Equal(t, 1, server.inits())

	// The discovery handshake left a cached token; the call reuses it
	// without negotiating again.
	result := fx.client.CallTool(context.Background(), ts.URL,
		domain.CallRequest{Tool: "calculator"}, map[string]string{})
	require.True(t, result.IsSuccess())
	assert.Equal(t, 1, server.inits())
	assert.Equal(t, "sess-42", server.lastSession())

	fx.registry.Invalidate(ts.URL)

	// The token is gone: a fresh handshake must precede the next call, and
	// the call carries the newly issued token, never the stale one.
	result = fx.client.CallTool(context.Background(), ts.URL,
		domain.CallRequest{Tool: "calculator"}, map[string]string{})
	require.True(t, result.IsSuccess())
	assert.Equal(t, 2, server.inits())
	assert.Equal(t, "sess-42", server.lastSession())
}

func TestNotify_FailureIsSwallowed(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "down", http.StatusInternalServerError)
	}))
	defer ts.Close()

	fx := newFixture(t, nil)
	fx.client.Notify(context.Background(), ts.URL, "notifications/progress",
		map[string]any{"progress": 1}, map[string]string{})
}
