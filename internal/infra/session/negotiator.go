// Package session performs the initialize handshake against a tool server
// and owns the lifecycle of the session tokens it yields.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"toolgate/internal/domain"
	"toolgate/internal/infra/retry"
	"toolgate/internal/infra/telemetry"
	"toolgate/internal/infra/transport"
)

const initializeRequestID = 1

// Negotiator runs the initialize handshake, caching the session token the
// server hands back and injecting it into the caller's header map so later
// calls reuse it. Tokens are purely additive metadata; losing one only means
// the next negotiation starts fresh. Health bookkeeping stays with the
// caller so one logical failure is counted exactly once.
type Negotiator struct {
	registry        *transport.Registry
	metrics         telemetry.Metrics
	logger          *zap.Logger
	protocolVersion string
	maxAttempts     int
	timeout         time.Duration
	sleep           retry.Sleep
}

// NegotiatorOptions configure a session negotiator.
type NegotiatorOptions struct {
	Registry        *transport.Registry
	Metrics         telemetry.Metrics
	Logger          *zap.Logger
	ProtocolVersion string
	MaxAttempts     int
	Timeout         time.Duration
	Sleep           retry.Sleep
}

func NewNegotiator(opts NegotiatorOptions) *Negotiator {
	if opts.Registry == nil {
		panic("session.Negotiator requires a registry")
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = telemetry.NewNoopMetrics()
	}
	protocolVersion := opts.ProtocolVersion
	if protocolVersion == "" {
		protocolVersion = domain.DefaultProtocolVersion
	}
	maxAttempts := opts.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = domain.DefaultMaxRetryCount
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = domain.DefaultInitializeTimeout
	}
	return &Negotiator{
		registry:        opts.Registry,
		metrics:         metrics,
		logger:          logger.Named("session"),
		protocolVersion: protocolVersion,
		maxAttempts:     maxAttempts,
		timeout:         timeout,
		sleep:           opts.Sleep,
	}
}

// Initialize negotiates a session with the endpoint. Any stale session-id is
// stripped from the caller's headers and the registry before the first
// attempt, so a token from a dead connection can never leak into a fresh
// handshake. On success the new token (when the server issued one) is cached
// and written back into headers.
func (n *Negotiator) Initialize(ctx context.Context, endpoint string, headers map[string]string) (*domain.InitResult, error) {
	endpoint = domain.NormalizeEndpoint(endpoint)
	started := time.Now()

	unlock := n.registry.LockEndpoint(endpoint)
	defer unlock()

	StripSessionHeader(headers)
	n.registry.ClearSession(endpoint)

	policy := retry.Policy{
		MaxAttempts: n.maxAttempts,
		Backoff: func(attempt int, _ error) time.Duration {
			return time.Duration(attempt) * 500 * time.Millisecond
		},
		OnRetry: func(_ context.Context, attempt int, lastErr error) {
			n.registry.Invalidate(endpoint)
			n.metrics.ObserveRetry(endpoint, "initialize")
			n.logger.Warn("initialize retry",
				telemetry.EventField(telemetry.EventInitializeAttempt),
				telemetry.EndpointField(endpoint),
				telemetry.AttemptField(attempt),
				zap.Error(lastErr),
			)
		},
	}

	result, err := retry.Do(ctx, policy, n.sleep, func(ctx context.Context, attempt int) (*domain.InitResult, error) {
		return n.initializeOnce(ctx, endpoint, headers)
	})
	n.metrics.ObserveInitialize(endpoint, time.Since(started), err)
	if err != nil {
		n.metrics.SetEndpointHealthy(endpoint, false)
		n.logger.Error("initialize failed",
			telemetry.EventField(telemetry.EventInitializeFailure),
			telemetry.EndpointField(endpoint),
			telemetry.DurationField(time.Since(started)),
			zap.Error(err),
		)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, domain.E(domain.CodeCanceled, "session.initialize", "", err)
		}
		return nil, &domain.Error{
			Code:    domain.CodeExhausted,
			Op:      "session.initialize",
			Message: domain.ErrRetryExhausted.Error(),
			Cause:   err,
		}
	}

	n.metrics.SetEndpointHealthy(endpoint, true)
	n.logger.Info("session negotiated",
		telemetry.EventField(telemetry.EventInitializeSuccess),
		telemetry.EndpointField(endpoint),
		telemetry.DurationField(time.Since(started)),
		zap.Bool("session_token", result.SessionID != ""),
	)
	return result, nil
}

func (n *Negotiator) initializeOnce(ctx context.Context, endpoint string, headers map[string]string) (*domain.InitResult, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	params := &mcp.InitializeParams{
		ProtocolVersion: n.protocolVersion,
		Capabilities:    &mcp.ClientCapabilities{},
		ClientInfo: &mcp.Implementation{
			Name:    domain.ClientName,
			Version: domain.ClientVersion,
		},
	}
	body, err := json.Marshal(transport.NewRequest(initializeRequestID, "initialize", params))
	if err != nil {
		return nil, domain.E(domain.CodeInternal, "session.initialize", "marshal initialize request", err)
	}

	channel := n.registry.Acquire(endpoint)
	resp, err := channel.Post(attemptCtx, n.requestHeaders(headers), body)
	if err != nil {
		return nil, err
	}
	if resp.Status < 200 || resp.Status >= 300 {
		statusErr := domain.E(domain.CodeProtocol, "session.initialize",
			fmt.Sprintf("initialize returned http %d", resp.Status), nil)
		statusErr.HTTPStatus = resp.Status
		statusErr.Retryable = true
		return nil, statusErr
	}

	decoded, err := transport.DecodeResponse(resp.Body)
	if err != nil {
		return nil, domain.Wrap(domain.CodeProtocol, "session.initialize", err)
	}
	if decoded.Error != nil {
		return nil, domain.E(domain.CodeProtocol, "session.initialize", decoded.Error.Message, decoded.Error)
	}

	var initResult mcp.InitializeResult
	if err := json.Unmarshal(decoded.Result, &initResult); err != nil {
		return nil, domain.E(domain.CodeProtocol, "session.initialize", "decode initialize result", err)
	}

	out := &domain.InitResult{
		ProtocolVersion: initResult.ProtocolVersion,
	}
	if initResult.ServerInfo != nil {
		out.ServerName = initResult.ServerInfo.Name
		out.ServerVersion = initResult.ServerInfo.Version
	}
	if initResult.Capabilities != nil && initResult.Capabilities.Tools != nil {
		out.Tools = &domain.ToolsCapability{ListChanged: initResult.Capabilities.Tools.ListChanged}
	}

	if token := resp.Header.Get(domain.HeaderSessionID); token != "" {
		out.SessionID = token
		n.registry.SetSession(endpoint, token)
		headers[domain.HeaderSessionID] = token
	}

	n.notifyInitialized(ctx, endpoint, channel, headers)
	return out, nil
}

// notifyInitialized fires the post-handshake notification. Best effort: a
// failure is logged, never surfaced.
func (n *Negotiator) notifyInitialized(ctx context.Context, endpoint string, channel *transport.Channel, headers map[string]string) {
	notifyCtx, cancel := context.WithTimeout(ctx, domain.DefaultNotifyTimeout)
	defer cancel()

	body, err := json.Marshal(transport.NewNotification("notifications/initialized", nil))
	if err != nil {
		return
	}
	if _, err := channel.Post(notifyCtx, n.requestHeaders(headers), body); err != nil {
		n.logger.Debug("initialized notification failed",
			telemetry.EventField(telemetry.EventNotifyFailure),
			telemetry.EndpointField(endpoint),
			zap.Error(err),
		)
	}
}

func (n *Negotiator) requestHeaders(headers map[string]string) map[string]string {
	out := make(map[string]string, len(headers)+1)
	for key, value := range headers {
		out[key] = value
	}
	out[domain.HeaderProtocolVersion] = n.protocolVersion
	return out
}

// StripSessionHeader removes every session-id key from a header map,
// whatever its casing.
func StripSessionHeader(headers map[string]string) {
	for key := range headers {
		if strings.EqualFold(key, domain.HeaderSessionID) {
			delete(headers, key)
		}
	}
}
