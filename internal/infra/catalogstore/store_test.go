package catalogstore

import (
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"toolgate/internal/domain"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "catalog.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func sampleTools() []domain.ToolDefinition {
	return []domain.ToolDefinition{
		{
			Name:        "calculator",
			Description: "evaluates arithmetic expressions",
			InputSchema: json.RawMessage(`{"type":"object","properties":{"expression":{"type":"string"}}}`),
		},
		{Name: "echo"},
	}
}

func TestStore_SaveAndLoad(t *testing.T) {
	store := openTestStore(t)
	saved := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return saved }

	require.NoError(t, store.Save("https://tools.example.com/mcp/", sampleTools()))

	// Lookups normalize the endpoint the same way writes do.
	entry, err := store.Load("https://tools.example.com/mcp")
	require.NoError(t, err)
	assert.Equal(t, "https://tools.example.com/mcp", entry.Endpoint)
	assert.Equal(t, saved, entry.SavedAt)
	require.Len(t, entry.Tools, 2)
	assert.Equal(t, "calculator", entry.Tools[0].Name)
	assert.JSONEq(t, `{"type":"object","properties":{"expression":{"type":"string"}}}`, string(entry.Tools[0].InputSchema))
}

func TestStore_LoadMissingEndpoint(t *testing.T) {
	store := openTestStore(t)

	_, err := store.Load("https://unknown.example.com")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_SaveOverwrites(t *testing.T) {
	store := openTestStore(t)
	endpoint := "https://tools.example.com"

	require.NoError(t, store.Save(endpoint, sampleTools()))
	require.NoError(t, store.Save(endpoint, []domain.ToolDefinition{{Name: "only"}}))

	entry, err := store.Load(endpoint)
	require.NoError(t, err)
	require.Len(t, entry.Tools, 1)
	assert.Equal(t, "only", entry.Tools[0].Name)
}

func TestStore_DeleteAndEndpoints(t *testing.T) {
	store := openTestStore(t)

	require.NoError(t, store.Save("https://a.example.com", sampleTools()))
	require.NoError(t, store.Save("https://b.example.com", sampleTools()))

	endpoints, err := store.Endpoints()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"https://a.example.com", "https://b.example.com"}, endpoints)

	require.NoError(t, store.Delete("https://a.example.com"))
	require.NoError(t, store.Delete("https://a.example.com"))

	endpoints, err = store.Endpoints()
	require.NoError(t, err)
	assert.Equal(t, []string{"https://b.example.com"}, endpoints)
}

func TestStore_ClosedStoreRejectsAccess(t *testing.T) {
	store := openTestStore(t)
	require.NoError(t, store.Close())

	assert.ErrorIs(t, store.Save("https://a.example.com", nil), ErrStoreClosed)
	_, err := store.Load("https://a.example.com")
	assert.ErrorIs(t, err, ErrStoreClosed)
}
