package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"toolgate/internal/domain"
)

func TestRegistry_AcquireReturnsSameChannel(t *testing.T) {
	registry := NewRegistry(RegistryOptions{})

	first := registry.Acquire("http://srv/")
	second := registry.Acquire("http://srv")
	assert.Same(t, first, second)
	assert.Equal(t, "http://srv", first.Endpoint())
}

func TestRegistry_InvalidateRecreatesChannel(t *testing.T) {
	registry := NewRegistry(RegistryOptions{})

	before := registry.Acquire("http://srv")
	registry.Invalidate("http://srv")
	after := registry.Acquire("http://srv")
	assert.NotSame(t, before, after)
}

func TestRegistry_InvalidateClearsSessionAndCache(t *testing.T) {
	cache := domain.NewResponseCache(time.Minute)
	registry := NewRegistry(RegistryOptions{Cache: cache})

	registry.Acquire("http://srv")
	registry.SetSession("http://srv", "token-1")
	cache.Set(domain.ToolListingCacheKey("http://srv"), "cached")
	cache.Set(domain.ToolListingCacheKey("http://other"), "kept")

	registry.Invalidate("http://srv")

	_, ok := registry.Session("http://srv")
	assert.False(t, ok)
	_, ok = cache.Get(domain.ToolListingCacheKey("http://srv"))
	assert.False(t, ok)
	_, ok = cache.Get(domain.ToolListingCacheKey("http://other"))
	assert.True(t, ok)
}

func TestRegistry_InvalidateUnknownEndpointIsHarmless(t *testing.T) {
	registry := NewRegistry(RegistryOptions{})
	assert.NotPanics(t, func() {
		registry.Invalidate("http://never-seen")
	})
}

func TestRegistry_SessionRoundTrip(t *testing.T) {
	registry := NewRegistry(RegistryOptions{})

	_, ok := registry.Session("http://srv")
	assert.False(t, ok)

	registry.SetSession("http://srv/", "abc")
	token, ok := registry.Session("http://srv")
	require.True(t, ok)
	assert.Equal(t, "abc", token)

	registry.ClearSession("http://srv")
	_, ok = registry.Session("http://srv")
	assert.False(t, ok)
}

func TestRegistry_LockEndpointSerializes(t *testing.T) {
	registry := NewRegistry(RegistryOptions{})

	var order []int
	var mu sync.Mutex
	var wg sync.WaitGroup

	unlock := registry.LockEndpoint("http://srv")

	wg.Add(1)
	go func() {
		defer wg.Done()
		innerUnlock := registry.LockEndpoint("http://srv")
		defer innerUnlock()
		mu.Lock()
		order = append(order, 2)
		mu.Unlock()
	}()

	time.Sleep(10 * time.Millisecond)
	mu.Lock()
	order = append(order, 1)
	mu.Unlock()
	unlock()

	wg.Wait()
	assert.Equal(t, []int{1, 2}, order)
}

func TestRegistry_InvalidateCallableUnderEndpointLock(t *testing.T) {
	registry := NewRegistry(RegistryOptions{})
	registry.Acquire("http://srv")

	unlock := registry.LockEndpoint("http://srv")
	defer unlock()

	done := make(chan struct{})
	go func() {
		registry.Invalidate("http://srv")
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("invalidate blocked while endpoint lock was held")
	}
}

func TestChannel_PostJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Contains(t, r.Header.Get("Accept"), "text/event-stream")
		assert.Equal(t, "secret", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":{}}`))
	}))
	defer server.Close()

	channel := NewChannel(server.URL, ChannelOptions{})
	resp, err := channel.Post(context.Background(), map[string]string{"Authorization": "secret"}, []byte(`{}`))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Status)
	assert.JSONEq(t, `{"jsonrpc":"2.0","id":1,"result":{}}`, string(resp.Body))
}

func TestChannel_PostEventStream(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = w.Write([]byte("data: {\"jsonrpc\":\"2.0\",\"id\":1,\"result\":{\"streamed\":true}}\n\n"))
	}))
	defer server.Close()

	channel := NewChannel(server.URL, ChannelOptions{})
	resp, err := channel.Post(context.Background(), nil, []byte(`{}`))
	require.NoError(t, err)
	assert.JSONEq(t, `{"jsonrpc":"2.0","id":1,"result":{"streamed":true}}`, string(resp.Body))
}

func TestChannel_PostErrorStatusIsNotATransportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusInternalServerError)
	}))
	defer server.Close()

	channel := NewChannel(server.URL, ChannelOptions{})
	resp, err := channel.Post(context.Background(), nil, []byte(`{}`))
	require.NoError(t, err)
	assert.Equal(t, http.StatusInternalServerError, resp.Status)
	assert.Contains(t, string(resp.Body), "overloaded")
}

func TestChannel_PostConnectionRefused(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	channel := NewChannel(server.URL, ChannelOptions{})
	_, err := channel.Post(context.Background(), nil, []byte(`{}`))
	require.Error(t, err)
	code, ok := domain.CodeFrom(err)
	require.True(t, ok)
	assert.Equal(t, domain.CodeTransport, code)
	assert.True(t, domain.IsRetryable(err))
}
