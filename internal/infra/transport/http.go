package transport

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"toolgate/internal/domain"
)

const (
	contentTypeJSON        = "application/json"
	contentTypeEventStream = "text/event-stream"

	maxResponseBody = 10 << 20
	maxErrorBody    = 1 << 20
)

// Channel is a pooled HTTP transport handle for one endpoint. The registry
// creates channels lazily and owns their lifecycle; callers only post
// envelopes through them.
type Channel struct {
	endpoint string
	client   *http.Client
	logger   *zap.Logger
}

// ChannelOptions configure a channel's connection pool.
type ChannelOptions struct {
	Logger      *zap.Logger
	IdleTimeout time.Duration
}

func NewChannel(endpoint string, opts ChannelOptions) *Channel {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	idleTimeout := opts.IdleTimeout
	if idleTimeout <= 0 {
		idleTimeout = domain.DefaultIdleConnTimeout
	}
	return &Channel{
		endpoint: domain.NormalizeEndpoint(endpoint),
		client: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        16,
				MaxIdleConnsPerHost: 8,
				IdleConnTimeout:     idleTimeout,
			},
		},
		logger: logger,
	}
}

// Endpoint returns the normalized URL the channel posts to.
func (c *Channel) Endpoint() string {
	return c.endpoint
}

// PostResponse is the outcome of one HTTP exchange. Body holds the JSON-RPC
// message bytes for 2xx responses (already flattened from an event stream
// when the server chose that content type) and the raw error body otherwise.
type PostResponse struct {
	Status int
	Header http.Header
	Body   []byte
}

// Post sends one JSON-RPC envelope. Network-level failures come back as a
// retryable transport error; HTTP status handling is the caller's concern.
func (c *Channel) Post(ctx context.Context, headers map[string]string, body []byte) (*PostResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, domain.E(domain.CodeInternal, "transport.post", "build request", err)
	}

	req.Header.Set("Content-Type", contentTypeJSON)
	req.Header.Set("Accept", contentTypeJSON+", "+contentTypeEventStream)
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		transportErr := domain.E(domain.CodeTransport, "transport.post", "", err)
		transportErr.Retryable = true
		return nil, transportErr
	}
	defer drainAndClose(resp.Body)

	out := &PostResponse{
		Status: resp.StatusCode,
		Header: resp.Header,
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		out.Body = raw
		return out, nil
	}

	if strings.HasPrefix(resp.Header.Get("Content-Type"), contentTypeEventStream) {
		raw, err := DecodeEventStream(resp.Body)
		if err != nil {
			return nil, err
		}
		out.Body = raw
		return out, nil
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		transportErr := domain.E(domain.CodeTransport, "transport.post", "read response body", err)
		transportErr.Retryable = true
		return nil, transportErr
	}
	out.Body = raw
	return out, nil
}

// Close releases pooled connections. Posting through a closed channel still
// works; the pool just starts cold again.
func (c *Channel) Close() {
	c.client.CloseIdleConnections()
}

func drainAndClose(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, io.LimitReader(body, maxErrorBody))
	_ = body.Close()
}
