// Package client implements the resilient tool invocation flows: discovery,
// single calls, fire-and-forget notifications, and bounded parallel batches.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"toolgate/internal/domain"
	"toolgate/internal/infra/catalogstore"
	"toolgate/internal/infra/retry"
	"toolgate/internal/infra/session"
	"toolgate/internal/infra/telemetry"
	"toolgate/internal/infra/transport"
)

const (
	methodToolsList = "tools/list"
	methodToolsCall = "tools/call"

	toolsListRequestID = 2
)

// Client drives tool servers over pooled channels. Discovery results are
// TTL-cached and mirrored into the persistent catalog store when one is
// configured; invocation failures are classified and retried per the closed
// taxonomy in classify.go.
type Client struct {
	registry   *transport.Registry
	negotiator *session.Negotiator
	cache      *domain.ResponseCache
	health     *domain.HealthMonitor
	metrics    telemetry.Metrics
	logger     *zap.Logger
	store      *catalogstore.Store

	maxAttempts   int
	listTimeout   time.Duration
	callTimeout   time.Duration
	notifyTimeout time.Duration

	sleep retry.Sleep
	now   func() time.Time
}

// ClientOptions configure a tool invocation client. Registry and Negotiator
// are required; everything else has a working default. Store is optional and
// enables the stale-catalog fallback.
type ClientOptions struct {
	Registry   *transport.Registry
	Negotiator *session.Negotiator
	Cache      *domain.ResponseCache
	Health     *domain.HealthMonitor
	Metrics    telemetry.Metrics
	Logger     *zap.Logger
	Store      *catalogstore.Store

	MaxAttempts   int
	ListTimeout   time.Duration
	CallTimeout   time.Duration
	NotifyTimeout time.Duration

	Sleep retry.Sleep
}

func New(opts ClientOptions) *Client {
	if opts.Registry == nil || opts.Negotiator == nil {
		panic("client.New requires a registry and a negotiator")
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = telemetry.NewNoopMetrics()
	}
	maxAttempts := opts.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = domain.DefaultMaxRetryCount
	}
	listTimeout := opts.ListTimeout
	if listTimeout <= 0 {
		listTimeout = domain.DefaultListTimeout
	}
	callTimeout := opts.CallTimeout
	if callTimeout <= 0 {
		callTimeout = domain.DefaultCallTimeout
	}
	notifyTimeout := opts.NotifyTimeout
	if notifyTimeout <= 0 {
		notifyTimeout = domain.DefaultNotifyTimeout
	}
	return &Client{
		registry:      opts.Registry,
		negotiator:    opts.Negotiator,
		cache:         opts.Cache,
		health:        opts.Health,
		metrics:       metrics,
		logger:        logger.Named("client"),
		store:         opts.Store,
		maxAttempts:   maxAttempts,
		listTimeout:   listTimeout,
		callTimeout:   callTimeout,
		notifyTimeout: notifyTimeout,
		sleep:         opts.Sleep,
		now:           time.Now,
	}
}

// ListOptions tune a single discovery request.
type ListOptions struct {
	// NoCache skips the cached listing and forces a live tools/list. The
	// fresh result still refreshes the cache for later callers.
	NoCache bool
}

// ListTools discovers the endpoint's tool catalog. Fresh listings come from
// the TTL cache; a miss negotiates a session and runs tools/list, re-running
// the handshake before every retry. When every attempt fails and a persisted
// catalog exists, the stale catalog is served instead of the error.
func (c *Client) ListTools(ctx context.Context, endpoint string, headers map[string]string) ([]domain.ToolDefinition, error) {
	return c.ListToolsWithOptions(ctx, endpoint, headers, ListOptions{})
}

// ListToolsWithOptions is ListTools with explicit cache control for
// correctness-sensitive callers such as health probes.
func (c *Client) ListToolsWithOptions(ctx context.Context, endpoint string, headers map[string]string, opts ListOptions) ([]domain.ToolDefinition, error) {
	endpoint = domain.NormalizeEndpoint(endpoint)
	cacheKey := domain.ToolListingCacheKey(endpoint)

	if c.cache != nil && !opts.NoCache {
		if cached, ok := c.cache.Get(cacheKey); ok {
			if tools, ok := cached.([]domain.ToolDefinition); ok {
				c.metrics.ObserveCacheHit("tool-listing")
				c.logger.Debug("tool listing served from cache",
					telemetry.EventField(telemetry.EventCacheHit),
					telemetry.EndpointField(endpoint),
					zap.Int("tools", len(tools)),
				)
				return domain.CloneToolDefinitions(tools), nil
			}
		}
		c.metrics.ObserveCacheMiss("tool-listing")
	}

	policy := retry.Policy{
		MaxAttempts: c.maxAttempts,
		Backoff:     backoffFor,
		Retryable:   domain.IsRetryable,
		OnRetry: func(_ context.Context, attempt int, lastErr error) {
			c.registry.Invalidate(endpoint)
			session.StripSessionHeader(headers)
			c.metrics.ObserveRetry(endpoint, methodToolsList)
			c.logger.Warn("tool listing retry",
				telemetry.EventField(telemetry.EventCallRetry),
				telemetry.EndpointField(endpoint),
				telemetry.MethodField(methodToolsList),
				telemetry.AttemptField(attempt),
				zap.Error(lastErr),
			)
		},
	}

	tools, err := retry.Do(ctx, policy, c.sleep, func(ctx context.Context, _ int) ([]domain.ToolDefinition, error) {
		if _, err := c.negotiator.Initialize(ctx, endpoint, headers); err != nil {
			return nil, err
		}
		return c.listOnce(ctx, endpoint, headers)
	})
	if err != nil {
		if c.health != nil {
			c.health.MarkUnhealthy(endpoint, err)
		}
		if stale, ok := c.staleCatalog(endpoint, err); ok {
			return stale, nil
		}
		return nil, err
	}

	if c.health != nil {
		c.health.MarkHealthy(endpoint)
	}
	if c.cache != nil {
		c.cache.Set(cacheKey, domain.CloneToolDefinitions(tools))
	}
	if c.store != nil {
		if saveErr := c.store.Save(endpoint, tools); saveErr != nil {
			c.logger.Warn("persist tool catalog failed",
				telemetry.EndpointField(endpoint),
				zap.Error(saveErr),
			)
		}
	}
	return tools, nil
}

func (c *Client) listOnce(ctx context.Context, endpoint string, headers map[string]string) ([]domain.ToolDefinition, error) {
	const op = "client.list"

	listCtx, cancel := context.WithTimeout(ctx, c.listTimeout)
	defer cancel()

	result, err := c.roundTrip(listCtx, op, endpoint, headers, toolsListRequestID, methodToolsList, struct{}{})
	if err != nil {
		return nil, err
	}

	var payload struct {
		Tools []domain.ToolDefinition `json:"tools"`
	}
	if err := json.Unmarshal(result, &payload); err != nil {
		return nil, domain.E(domain.CodeProtocol, op, "decode tool listing", err)
	}
	if payload.Tools == nil {
		return nil, domain.E(domain.CodeProtocol, op, "", domain.ErrNoTools)
	}
	return payload.Tools, nil
}

// CallTool invokes one tool and always returns a tagged result; remote
// failures never surface as Go errors. Transient failures are retried with
// the connection reset in between; a well-formed business error from the
// tool comes back immediately.
func (c *Client) CallTool(ctx context.Context, endpoint string, req domain.CallRequest, headers map[string]string) domain.CallResult {
	endpoint = domain.NormalizeEndpoint(endpoint)
	started := c.now()

	ctx, _ = telemetry.WithRequestID(ctx, req.CallID)
	logger := telemetry.LoggerWithRequest(ctx, c.logger)

	policy := retry.Policy{
		MaxAttempts: c.maxAttempts,
		Backoff:     backoffFor,
		Retryable:   domain.IsRetryable,
		OnRetry: func(_ context.Context, attempt int, lastErr error) {
			c.registry.Invalidate(endpoint)
			session.StripSessionHeader(headers)
			c.metrics.ObserveRetry(endpoint, methodToolsCall)
			logger.Warn("tool call retry",
				telemetry.EventField(telemetry.EventCallRetry),
				telemetry.EndpointField(endpoint),
				telemetry.ToolField(req.Tool),
				telemetry.AttemptField(attempt),
				zap.Error(lastErr),
			)
		},
	}

	// A call with no cached session token, whether first use or right after
	// an invalidation, runs a fresh handshake before anything else goes to
	// the wire. Retries below never re-run it; only discovery does.
	var raw json.RawMessage
	var err error
	if _, ok := c.registry.Session(endpoint); !ok {
		_, err = c.negotiator.Initialize(ctx, endpoint, headers)
	}
	if err == nil {
		raw, err = retry.Do(ctx, policy, c.sleep, func(ctx context.Context, attempt int) (json.RawMessage, error) {
			logger.Debug("tool call attempt",
				telemetry.EventField(telemetry.EventCallAttempt),
				telemetry.EndpointField(endpoint),
				telemetry.ToolField(req.Tool),
				telemetry.AttemptField(attempt),
			)
			return c.callOnce(ctx, endpoint, req, headers)
		})
	}

	result := c.finishCall(endpoint, req, raw, err)
	status := string(result.Kind)
	c.metrics.ObserveCall(endpoint, req.Tool, status, time.Since(started))
	if c.health != nil {
		if result.Kind == domain.CallNetworkError {
			c.health.MarkUnhealthy(endpoint, errors.New(result.Message))
		} else {
			c.health.MarkHealthy(endpoint)
		}
	}
	if result.IsSuccess() {
		logger.Debug("tool call succeeded",
			telemetry.EventField(telemetry.EventCallSuccess),
			telemetry.EndpointField(endpoint),
			telemetry.ToolField(req.Tool),
			telemetry.DurationField(time.Since(started)),
		)
	} else {
		logger.Warn("tool call failed",
			telemetry.EventField(telemetry.EventCallFailure),
			telemetry.EndpointField(endpoint),
			telemetry.ToolField(req.Tool),
			zap.String("result_kind", status),
			zap.String("message", result.Message),
			telemetry.DurationField(time.Since(started)),
		)
	}
	return result
}

func (c *Client) callOnce(ctx context.Context, endpoint string, req domain.CallRequest, headers map[string]string) (json.RawMessage, error) {
	const op = "client.call"

	callCtx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	params := map[string]any{
		"name":      req.Tool,
		"arguments": req.Arguments,
	}
	return c.roundTrip(callCtx, op, endpoint, headers, c.now().UnixMilli(), methodToolsCall, params)
}

// finishCall converts the retry outcome into the tagged result. Errors that
// were still retryable when attempts ran out collapse to the exhaustion
// result; everything else keeps its classification.
func (c *Client) finishCall(endpoint string, req domain.CallRequest, raw json.RawMessage, err error) domain.CallResult {
	if err == nil {
		unwrapped := UnwrapCallResult(raw)
		data := raw
		if object, ok := unwrapped.Data.(map[string]any); ok {
			if content, ok := object["content"]; ok {
				if encoded, marshalErr := json.Marshal(content); marshalErr == nil {
					data = encoded
				}
			}
		}
		return domain.SuccessResult(data, raw, unwrapped.Text)
	}

	if domain.IsRetryable(err) {
		result := domain.NetworkErrorResult(domain.ErrRetryExhausted.Error(), httpStatusOf(err))
		result.Detail = err.Error()
		return result
	}
	return domain.ResultFromError(err)
}

func httpStatusOf(err error) int {
	var domainErr *domain.Error
	if errors.As(err, &domainErr) {
		return domainErr.HTTPStatus
	}
	return 0
}

// Notify sends a fire-and-forget notification. Failures are logged, never
// returned; there is nothing for the caller to act on.
func (c *Client) Notify(ctx context.Context, endpoint, method string, params any, headers map[string]string) {
	endpoint = domain.NormalizeEndpoint(endpoint)

	notifyCtx, cancel := context.WithTimeout(ctx, c.notifyTimeout)
	defer cancel()

	body, err := json.Marshal(transport.NewNotification(method, params))
	if err != nil {
		return
	}
	channel := c.registry.Acquire(endpoint)
	if _, err := channel.Post(notifyCtx, c.requestHeaders(endpoint, headers), body); err != nil {
		c.logger.Debug("notification failed",
			telemetry.EventField(telemetry.EventNotifyFailure),
			telemetry.EndpointField(endpoint),
			telemetry.MethodField(method),
			zap.Error(err),
		)
	}
}

// roundTrip performs one request/response exchange and classifies every
// failure mode into the error taxonomy.
func (c *Client) roundTrip(ctx context.Context, op, endpoint string, headers map[string]string, id int64, method string, params any) (json.RawMessage, error) {
	body, err := json.Marshal(transport.NewRequest(id, method, params))
	if err != nil {
		return nil, domain.E(domain.CodeInternal, op, fmt.Sprintf("marshal %s request", method), err)
	}

	channel := c.registry.Acquire(endpoint)
	resp, err := channel.Post(ctx, c.requestHeaders(endpoint, headers), body)
	if err != nil {
		return nil, err
	}
	if resp.Status < 200 || resp.Status >= 300 {
		return nil, classifyHTTPStatus(op, resp.Status, resp.Body)
	}

	decoded, err := transport.DecodeResponse(resp.Body)
	if err != nil {
		return nil, domain.E(domain.CodeProtocol, op, "", err)
	}
	if decoded.Error != nil {
		return nil, classifyWireError(op, decoded.Error)
	}
	return decoded.Result, nil
}

// requestHeaders merges the caller's headers with the protocol version and,
// when the registry holds a live session for the endpoint, the session token.
func (c *Client) requestHeaders(endpoint string, headers map[string]string) map[string]string {
	out := make(map[string]string, len(headers)+2)
	for key, value := range headers {
		out[key] = value
	}
	out[domain.HeaderProtocolVersion] = domain.DefaultProtocolVersion
	if _, present := out[domain.HeaderSessionID]; !present {
		if token, ok := c.registry.Session(endpoint); ok {
			out[domain.HeaderSessionID] = token
		}
	}
	return out
}

// staleCatalog serves the last persisted listing when live discovery fails.
func (c *Client) staleCatalog(endpoint string, cause error) ([]domain.ToolDefinition, bool) {
	if c.store == nil {
		return nil, false
	}
	entry, loadErr := c.store.Load(endpoint)
	if loadErr != nil {
		return nil, false
	}
	c.logger.Warn("serving stale tool catalog",
		telemetry.EventField(telemetry.EventStaleCatalog),
		telemetry.EndpointField(endpoint),
		zap.Time("saved_at", entry.SavedAt),
		zap.Int("tools", len(entry.Tools)),
		zap.Error(cause),
	)
	return entry.Tools, true
}
