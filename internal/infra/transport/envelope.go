// Package transport owns the wire layer: the JSON-RPC 2.0 envelope, the
// streaming response decoder, the pooled HTTP channel, and the connection
// registry that hands channels out per endpoint.
package transport

import (
	"encoding/json"
	"fmt"

	"toolgate/internal/domain"
)

const jsonrpcVersion = "2.0"

// Request is an outgoing JSON-RPC 2.0 call envelope.
type Request struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

// Notification is a fire-and-forget envelope; it carries no id and expects
// no response.
type Notification struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

// WireError is the error object of a JSON-RPC response.
type WireError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *WireError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message)
}

// Response is an incoming JSON-RPC 2.0 response envelope. Exactly one of
// Result and Error is set on a valid message.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *WireError      `json:"error,omitempty"`
}

func NewRequest(id int64, method string, params any) *Request {
	return &Request{
		JSONRPC: jsonrpcVersion,
		ID:      id,
		Method:  method,
		Params:  params,
	}
}

func NewNotification(method string, params any) *Notification {
	return &Notification{
		JSONRPC: jsonrpcVersion,
		Method:  method,
		Params:  params,
	}
}

// DecodeResponse parses raw bytes as a JSON-RPC response. A message that is
// not version 2.0, or that carries neither result nor error, is rejected
// with domain.ErrInvalidResponse.
func DecodeResponse(raw []byte) (*Response, error) {
	var resp Response
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrInvalidResponse, err.Error())
	}
	if resp.JSONRPC != jsonrpcVersion {
		return nil, fmt.Errorf("%w: jsonrpc version %q", domain.ErrInvalidResponse, resp.JSONRPC)
	}
	if resp.Result == nil && resp.Error == nil {
		return nil, fmt.Errorf("%w: missing result and error", domain.ErrInvalidResponse)
	}
	return &resp, nil
}
