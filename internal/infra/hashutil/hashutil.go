// Package hashutil fingerprints tool catalogs so callers can detect when
// an endpoint's advertised tool set changed between probes.
package hashutil

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"go.uber.org/zap"

	"toolgate/internal/domain"
)

// CatalogDigest returns a stable digest of a tool listing and logs on
// failure. An empty digest means the listing could not be fingerprinted;
// callers treat that as "unknown", not "unchanged".
func CatalogDigest(logger *zap.Logger, tools []domain.ToolDefinition) string {
	if tools == nil {
		tools = []domain.ToolDefinition{}
	}
	data, err := json.Marshal(tools)
	if err != nil {
		if logger != nil {
			logger.Warn("catalog digest failed", zap.Error(err))
		}
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
