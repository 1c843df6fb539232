package client

import (
	"context"
	"strings"

	"github.com/qri-io/jsonschema"
	"go.uber.org/zap"

	"toolgate/internal/domain"
	"toolgate/internal/infra/dispatch"
	"toolgate/internal/infra/telemetry"
)

// CallToolsParallel runs a batch of invocations against one endpoint with at
// most maxConcurrent in flight. The result slice mirrors the request order.
// Requests whose arguments fail their tool's input schema are answered with
// a format error locally and never reach the wire; one request's failure
// leaves the others untouched.
func (c *Client) CallToolsParallel(ctx context.Context, endpoint string, requests []domain.CallRequest, maxConcurrent int, headers map[string]string) []domain.CallResult {
	endpoint = domain.NormalizeEndpoint(endpoint)
	results := make([]domain.CallResult, len(requests))
	if len(requests) == 0 {
		return results
	}

	validators := c.schemaValidators(ctx, endpoint, headers)

	type indexed struct {
		index   int
		request domain.CallRequest
	}
	var pending []indexed
	for i, req := range requests {
		if message, ok := validateArguments(ctx, validators, req); !ok {
			results[i] = domain.FormatErrorResult(message)
			c.logger.Warn("rejected tool call before dispatch",
				telemetry.EndpointField(endpoint),
				telemetry.ToolField(req.Tool),
				zap.String("reason", message),
			)
			continue
		}
		pending = append(pending, indexed{index: i, request: req})
	}
	if len(pending) == 0 {
		return results
	}

	outcomes := dispatch.ExecuteAll(ctx, pending,
		func(ctx context.Context, _ int, task indexed) (domain.CallResult, error) {
			return c.CallTool(ctx, endpoint, task.request, cloneHeaders(headers)), nil
		},
		dispatch.Options{
			MaxConcurrent:  maxConcurrent,
			PerCallTimeout: c.callTimeout,
			Logger:         c.logger,
			Metrics:        c.metrics,
		},
	)

	for i, outcome := range outcomes {
		index := pending[i].index
		switch outcome.State {
		case dispatch.StateSuccess:
			results[index] = outcome.Value
		case dispatch.StateTimedOut:
			results[index] = domain.NetworkErrorResult("dispatch timeout", 0)
		case dispatch.StateCancelled:
			results[index] = domain.NetworkErrorResult("dispatch cancelled", 0)
		default:
			results[index] = domain.ResultFromError(outcome.Err)
		}
	}
	return results
}

// schemaValidators compiles the input schemas of the endpoint's known tools.
// Discovery failures and uncompilable schemas disable validation for the
// affected tools rather than failing the batch.
func (c *Client) schemaValidators(ctx context.Context, endpoint string, headers map[string]string) map[string]*jsonschema.Schema {
	tools, err := c.ListTools(ctx, endpoint, cloneHeaders(headers))
	if err != nil {
		c.logger.Debug("skipping argument validation, no tool listing",
			telemetry.EndpointField(endpoint),
			zap.Error(err),
		)
		return nil
	}

	validators := make(map[string]*jsonschema.Schema, len(tools))
	for _, tool := range tools {
		if len(tool.InputSchema) == 0 {
			continue
		}
		schema := &jsonschema.Schema{}
		if err := schema.UnmarshalJSON(tool.InputSchema); err != nil {
			c.logger.Debug("uncompilable tool input schema",
				telemetry.EndpointField(endpoint),
				telemetry.ToolField(tool.Name),
				zap.Error(err),
			)
			continue
		}
		validators[tool.Name] = schema
	}
	return validators
}

func validateArguments(ctx context.Context, validators map[string]*jsonschema.Schema, req domain.CallRequest) (string, bool) {
	if req.Tool == "" {
		return "tool name is required", false
	}
	schema, ok := validators[req.Tool]
	if !ok {
		return "", true
	}
	args := req.Arguments
	if args == nil {
		args = map[string]any{}
	}
	vs := schema.Validate(ctx, args)
	if vs.Errs == nil || len(*vs.Errs) == 0 {
		return "", true
	}
	messages := make([]string, 0, len(*vs.Errs))
	for _, keyErr := range *vs.Errs {
		messages = append(messages, keyErr.Message)
	}
	return "invalid arguments: " + strings.Join(messages, ", "), false
}

func cloneHeaders(headers map[string]string) map[string]string {
	out := make(map[string]string, len(headers))
	for key, value := range headers {
		out[key] = value
	}
	return out
}
