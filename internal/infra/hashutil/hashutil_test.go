package hashutil

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"

	"toolgate/internal/domain"
)

func TestCatalogDigest_StableAcrossClones(t *testing.T) {
	tools := []domain.ToolDefinition{
		{Name: "search", Description: "full text search", InputSchema: json.RawMessage(`{"type":"object"}`)},
		{Name: "fetch"},
	}

	first := CatalogDigest(nil, tools)
	second := CatalogDigest(nil, domain.CloneToolDefinitions(tools))

	assert.NotEmpty(t, first)
	assert.Equal(t, first, second)
}

func TestCatalogDigest_ChangesWithCatalog(t *testing.T) {
	base := []domain.ToolDefinition{{Name: "search"}}
	changed := []domain.ToolDefinition{{Name: "search"}, {Name: "fetch"}}

	assert.NotEqual(t, CatalogDigest(nil, base), CatalogDigest(nil, changed))
}

func TestCatalogDigest_EmptyListing(t *testing.T) {
	assert.NotEmpty(t, CatalogDigest(nil, nil))
	assert.Equal(t, CatalogDigest(nil, nil), CatalogDigest(nil, []domain.ToolDefinition{}))
}
