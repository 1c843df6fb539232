package domain

import (
	"encoding/json"
	"errors"
)

// CallKind discriminates the tagged CallResult union.
type CallKind string

const (
	CallSuccess       CallKind = "success"
	CallNetworkError  CallKind = "network_error"
	CallBusinessError CallKind = "business_error"
	CallFormatError   CallKind = "format_error"
)

// CallResult is the outcome of one tool invocation. Exactly one variant is
// populated, selected by Kind. Results are created per invocation and never
// persisted by this layer.
type CallResult struct {
	Kind CallKind `json:"kind"`

	// Success fields.
	Data json.RawMessage `json:"data,omitempty"`
	Raw  json.RawMessage `json:"raw,omitempty"`
	Text string          `json:"text,omitempty"`

	// Error fields. Detail carries the last underlying error when retries
	// were exhausted.
	Message    string          `json:"message,omitempty"`
	Detail     string          `json:"detail,omitempty"`
	HTTPStatus int             `json:"httpStatus,omitempty"`
	Code       int             `json:"code,omitempty"`
	ErrorData  json.RawMessage `json:"errorData,omitempty"`
}

func SuccessResult(data, raw json.RawMessage, text string) CallResult {
	return CallResult{Kind: CallSuccess, Data: data, Raw: raw, Text: text}
}

func NetworkErrorResult(message string, httpStatus int) CallResult {
	return CallResult{Kind: CallNetworkError, Message: message, HTTPStatus: httpStatus}
}

func BusinessErrorResult(message string, code int, data json.RawMessage) CallResult {
	return CallResult{Kind: CallBusinessError, Message: message, Code: code, ErrorData: data}
}

func FormatErrorResult(message string) CallResult {
	return CallResult{Kind: CallFormatError, Message: message}
}

func (r CallResult) IsSuccess() bool {
	return r.Kind == CallSuccess
}

// ResultFromError maps a classified error onto the tagged result the caller
// consumes. Business errors keep their remote code and payload; everything
// else collapses to a network error.
func ResultFromError(err error) CallResult {
	if err == nil {
		return CallResult{Kind: CallSuccess}
	}
	var domainErr *Error
	if errors.As(err, &domainErr) {
		switch domainErr.Code {
		case CodeBusiness:
			var data json.RawMessage
			if raw, ok := domainErr.Meta["data"]; ok {
				data = json.RawMessage(raw)
			}
			return BusinessErrorResult(domainErr.Message, domainErr.RemoteCode, data)
		case CodeProtocol:
			if domainErr.HTTPStatus != 0 {
				return NetworkErrorResult(domainErr.Message, domainErr.HTTPStatus)
			}
			return FormatErrorResult(domainErr.Message)
		default:
			return NetworkErrorResult(domainErr.Message, domainErr.HTTPStatus)
		}
	}
	return NetworkErrorResult(err.Error(), 0)
}
