package catalog

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const watcherConfig = `
endpoints:
  - name: calc
    url: https://tools.example.com
`

func TestProvider_InitialSnapshot(t *testing.T) {
	path := writeConfig(t, watcherConfig)

	provider, err := NewProvider(path, nil)
	require.NoError(t, err)

	cfg := provider.Snapshot()
	require.Len(t, cfg.Endpoints, 1)
	assert.Equal(t, "calc", cfg.Endpoints[0].Name)
}

func TestProvider_InitialLoadFailure(t *testing.T) {
	path := writeConfig(t, "endpoints: [{url: https://nameless.example.com}]")

	_, err := NewProvider(path, nil)
	require.Error(t, err)
}

func TestProvider_ManualReload(t *testing.T) {
	path := writeConfig(t, watcherConfig)

	provider, err := NewProvider(path, nil)
	require.NoError(t, err)

	var mu sync.Mutex
	var reloaded []Config
	provider.onReload = func(cfg Config) {
		mu.Lock()
		defer mu.Unlock()
		reloaded = append(reloaded, cfg)
	}

	require.NoError(t, os.WriteFile(path, []byte(watcherConfig+`
  - name: search
    url: https://search.example.com
`), 0o600))
	require.NoError(t, provider.Reload())

	assert.Len(t, provider.Snapshot().Endpoints, 2)
	mu.Lock()
	defer mu.Unlock()
	require.Len(t, reloaded, 1)
	assert.Len(t, reloaded[0].Endpoints, 2)
}

func TestProvider_FailedReloadKeepsSnapshot(t *testing.T) {
	path := writeConfig(t, watcherConfig)

	provider, err := NewProvider(path, nil)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("endpoints: [{name: broken}]"), 0o600))
	require.Error(t, provider.Reload())

	cfg := provider.Snapshot()
	require.Len(t, cfg.Endpoints, 1)
	assert.Equal(t, "calc", cfg.Endpoints[0].Name)
}

func TestProvider_WatchPicksUpFileChanges(t *testing.T) {
	path := writeConfig(t, watcherConfig)

	provider, err := NewProvider(path, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reloads := make(chan Config, 4)
	provider.Watch(ctx, func(cfg Config) { reloads <- cfg })

	// Give the watcher a moment to register before mutating the file.
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte(watcherConfig+`
  - name: search
    url: https://search.example.com
`), 0o600))

	select {
	case cfg := <-reloads:
		assert.Len(t, cfg.Endpoints, 2)
	case <-time.After(3 * time.Second):
		t.Fatal("config reload was not observed")
	}
}
