package domain

import (
	"context"
	"encoding/json"
	"strings"
)

// NormalizeEndpoint canonicalizes a tool-server URL so it can serve as a map
// key: surrounding whitespace and trailing slashes are stripped. The registry,
// health monitor, and cache all key on the normalized form.
func NormalizeEndpoint(raw string) string {
	trimmed := strings.TrimSpace(raw)
	for strings.HasSuffix(trimmed, "/") {
		trimmed = strings.TrimSuffix(trimmed, "/")
	}
	return trimmed
}

// ToolDefinition describes a tool as returned by discovery. The input schema
// is kept as raw JSON; it is immutable within a cache window.
type ToolDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"inputSchema,omitempty"`
}

// CloneToolDefinitions deep-copies a tool slice so cached listings cannot be
// mutated by callers.
func CloneToolDefinitions(tools []ToolDefinition) []ToolDefinition {
	if tools == nil {
		return nil
	}
	copied := make([]ToolDefinition, len(tools))
	for i, tool := range tools {
		copied[i] = ToolDefinition{
			Name:        tool.Name,
			Description: tool.Description,
			InputSchema: append(json.RawMessage(nil), tool.InputSchema...),
		}
	}
	return copied
}

// CallRequest is one tool invocation to perform against an endpoint.
type CallRequest struct {
	Tool      string         `json:"tool"`
	Arguments map[string]any `json:"arguments,omitempty"`
	CallID    string         `json:"callId,omitempty"`
}

// InitResult is the outcome of a successful initialize handshake.
type InitResult struct {
	ProtocolVersion string
	ServerName      string
	ServerVersion   string
	SessionID       string
	Tools           *ToolsCapability
}

// ToolsCapability mirrors the tools section of the server's advertised
// capabilities.
type ToolsCapability struct {
	ListChanged bool
}

// CredentialProvider supplies auth headers for an endpoint. Token acquisition
// and refresh live outside this layer; whatever map is returned is forwarded
// verbatim on every request.
type CredentialProvider interface {
	Headers(ctx context.Context, endpoint string) (map[string]string, error)
}

// StaticCredentials is a CredentialProvider backed by a fixed header map per
// endpoint, as produced by the catalog config.
type StaticCredentials map[string]map[string]string

func (s StaticCredentials) Headers(_ context.Context, endpoint string) (map[string]string, error) {
	headers := make(map[string]string)
	for key, value := range s[NormalizeEndpoint(endpoint)] {
		headers[key] = value
	}
	return headers, nil
}

// DecisionProvider chooses which tools to invoke given a discovered listing.
// The selection logic (LLM, rule engine, operator input) lives outside this
// layer.
type DecisionProvider interface {
	DecideCalls(ctx context.Context, tools []ToolDefinition, context string) ([]CallRequest, error)
}
