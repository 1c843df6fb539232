package transport

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"toolgate/internal/domain"
)

func TestNewRequest_Marshal(t *testing.T) {
	req := NewRequest(1, "initialize", map[string]any{"protocolVersion": domain.DefaultProtocolVersion})

	raw, err := json.Marshal(req)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, "2.0", decoded["jsonrpc"])
	assert.Equal(t, float64(1), decoded["id"])
	assert.Equal(t, "initialize", decoded["method"])
}

func TestNewNotification_OmitsID(t *testing.T) {
	notif := NewNotification("notifications/initialized", nil)

	raw, err := json.Marshal(notif)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	_, hasID := decoded["id"]
	assert.False(t, hasID)
}

func TestDecodeResponse(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr bool
	}{
		{name: "result", raw: `{"jsonrpc":"2.0","id":2,"result":{"tools":[]}}`},
		{name: "error object", raw: `{"jsonrpc":"2.0","id":2,"error":{"code":-32000,"message":"boom"}}`},
		{name: "wrong version", raw: `{"jsonrpc":"1.0","id":2,"result":{}}`, wantErr: true},
		{name: "missing result and error", raw: `{"jsonrpc":"2.0","id":2}`, wantErr: true},
		{name: "malformed json", raw: `{"jsonrpc":`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := DecodeResponse([]byte(tt.raw))
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, domain.ErrInvalidResponse)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, resp)
		})
	}
}

func TestDecodeResponse_WireError(t *testing.T) {
	resp, err := DecodeResponse([]byte(`{"jsonrpc":"2.0","id":5,"error":{"code":-32603,"message":"internal error","data":{"hint":"restart"}}}`))
	require.NoError(t, err)
	require.NotNil(t, resp.Error)
	assert.Equal(t, -32603, resp.Error.Code)
	assert.Equal(t, "internal error", resp.Error.Message)
	assert.JSONEq(t, `{"hint":"restart"}`, string(resp.Error.Data))
}
