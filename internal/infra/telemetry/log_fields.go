package telemetry

import (
	"time"

	"go.uber.org/zap"
)

const (
	FieldEvent      = "event"
	FieldEndpoint   = "endpoint"
	FieldTool       = "tool"
	FieldMethod     = "method"
	FieldAttempt    = "attempt"
	FieldDurationMs = "duration_ms"
	FieldRequestID  = "request_id"
	FieldSessionID  = "session_id"
)

const (
	EventChannelCreated        = "channel_created"
	EventConnectionInvalidated = "connection_invalidated"
	EventInitializeAttempt     = "initialize_attempt"
	EventInitializeSuccess     = "initialize_success"
	EventInitializeFailure     = "initialize_failure"
	EventCallAttempt           = "call_attempt"
	EventCallSuccess           = "call_success"
	EventCallFailure           = "call_failure"
	EventCallRetry             = "call_retry"
	EventNotifyFailure         = "notify_failure"
	EventCacheHit              = "cache_hit"
	EventCacheMiss             = "cache_miss"
	EventStaleCatalog          = "stale_catalog"
	EventDispatchTimeout       = "dispatch_timeout"
	EventHealthTransition      = "health_transition"
	EventConfigReload          = "config_reload"
)

func EventField(event string) zap.Field {
	return zap.String(FieldEvent, event)
}

func EndpointField(endpoint string) zap.Field {
	return zap.String(FieldEndpoint, endpoint)
}

func ToolField(tool string) zap.Field {
	return zap.String(FieldTool, tool)
}

func MethodField(method string) zap.Field {
	return zap.String(FieldMethod, method)
}

func AttemptField(attempt int) zap.Field {
	return zap.Int(FieldAttempt, attempt)
}

func DurationField(duration time.Duration) zap.Field {
	return zap.Int64(FieldDurationMs, duration.Milliseconds())
}

func RequestIDField(value string) zap.Field {
	return zap.String(FieldRequestID, value)
}

func SessionIDField(value string) zap.Field {
	return zap.String(FieldSessionID, value)
}
