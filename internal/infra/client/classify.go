package client

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"toolgate/internal/domain"
	"toolgate/internal/infra/transport"
)

const (
	codeInternalError = -32603

	maxElevatedBackoff = 15 * time.Second
)

// transientFragments are the error-text markers known to indicate remote-side
// instability rather than a genuine tool failure. Matches stay retryable;
// everything else in a well-formed error object is a business error.
var transientFragments = []string{
	"timeout",
	"timed out",
	"connection reset",
	"connection refused",
	"connection closed",
	"temporarily unavailable",
}

const destroyedContextFragment = "execution context"

// classifyWireError maps a well-formed JSON-RPC error object onto the error
// taxonomy. The output is always a business-class error; the retryable flag
// is set only for the closed allow-list of transient markers.
func classifyWireError(op string, wireErr *transport.WireError) *domain.Error {
	out := &domain.Error{
		Code:       domain.CodeBusiness,
		Op:         op,
		Message:    wireErr.Message,
		Cause:      wireErr,
		RemoteCode: wireErr.Code,
	}
	if len(wireErr.Data) > 0 {
		out.Meta = map[string]string{"data": string(wireErr.Data)}
	}

	message := strings.ToLower(wireErr.Message)
	switch {
	case strings.Contains(message, destroyedContextFragment) && strings.Contains(message, "destroyed"):
		out.Retryable = true
		out.Elevated = true
	case wireErr.Code == codeInternalError:
		out.Retryable = true
	default:
		for _, fragment := range transientFragments {
			if strings.Contains(message, fragment) {
				out.Retryable = true
				break
			}
		}
	}
	return out
}

// classifyHTTPStatus maps a non-2xx HTTP response onto the error taxonomy.
// Server-side failures and throttling are retryable; everything else is
// surfaced immediately.
func classifyHTTPStatus(op string, status int, body []byte) *domain.Error {
	out := &domain.Error{
		Code:       domain.CodeProtocol,
		Op:         op,
		Message:    fmt.Sprintf("http %d", status),
		HTTPStatus: status,
	}
	if len(body) > 0 {
		out.Meta = map[string]string{"body": string(body)}
	}
	if status >= 500 || status == 429 {
		out.Retryable = true
	}
	return out
}

// backoffFor picks the delay before re-running a failed attempt. Destroyed
// execution contexts get the long stabilization delay, HTTP-level failures
// the exponential one, everything else the short linear ramp.
func backoffFor(attempt int, err error) time.Duration {
	if domain.IsElevated(err) {
		elevated := time.Duration(5+(1<<attempt)) * time.Second
		if elevated > maxElevatedBackoff {
			return maxElevatedBackoff
		}
		return elevated
	}
	var domainErr *domain.Error
	if errors.As(err, &domainErr) && domainErr.HTTPStatus != 0 {
		return time.Duration(1<<attempt) * time.Second
	}
	return time.Duration(attempt) * 500 * time.Millisecond
}
