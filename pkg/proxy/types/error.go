package types

import "net/http"

// ErrorResponse is the OpenAI-compatible error envelope.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains the error fields.
type ErrorDetail struct {
	// Message is a human-readable error message.
	Message string `json:"message"`

	// Type categorizes the error, derived from the HTTP status.
	Type string `json:"type"`

	// Param is the request field that caused the error, if any.
	Param string `json:"param,omitempty"`

	// Code is a machine-readable error code.
	Code string `json:"code,omitempty"`
}

// Error types used by the OpenAI API.
const (
	ErrorTypeInvalidRequest     = "invalid_request_error"
	ErrorTypeAuthentication     = "authentication_error"
	ErrorTypePermissionDenied   = "permission_denied"
	ErrorTypeNotFound           = "not_found"
	ErrorTypeRateLimitExceeded  = "rate_limit_exceeded"
	ErrorTypeServerError        = "server_error"
	ErrorTypeBadGateway         = "bad_gateway"
	ErrorTypeServiceUnavailable = "service_unavailable"
	ErrorTypeGatewayTimeout     = "gateway_timeout"
)

// Error codes set by the proxy itself.
const (
	CodeInvalidJSON        = "invalid_json"
	CodeInvalidValue       = "invalid_value"
	CodeMissingField       = "missing_field"
	CodeRequestTooLarge    = "request_too_large"
	CodeMethodNotAllowed   = "method_not_allowed"
	CodePolicyNotLoaded    = "policy_not_loaded"
	CodePolicyError        = "policy_error"
	CodeStreamError        = "stream_error"
	CodeInternalError      = "internal_error"
	GenericInternalMessage = "An internal error occurred. Please try again later."
)

// ErrorTypeForStatus maps an HTTP status to an OpenAI error type.
func ErrorTypeForStatus(status int) string {
	switch {
	case status == http.StatusUnauthorized:
		return ErrorTypeAuthentication
	case status == http.StatusForbidden:
		return ErrorTypePermissionDenied
	case status == http.StatusNotFound:
		return ErrorTypeNotFound
	case status == http.StatusTooManyRequests:
		return ErrorTypeRateLimitExceeded
	case status == http.StatusBadGateway:
		return ErrorTypeBadGateway
	case status == http.StatusServiceUnavailable:
		return ErrorTypeServiceUnavailable
	case status == http.StatusGatewayTimeout:
		return ErrorTypeGatewayTimeout
	case status >= 400 && status < 500:
		return ErrorTypeInvalidRequest
	default:
		return ErrorTypeServerError
	}
}

// NewErrorResponse builds an envelope whose type follows status.
func NewErrorResponse(status int, message, code, param string) *ErrorResponse {
	return &ErrorResponse{Error: ErrorDetail{
		Message: message,
		Type:    ErrorTypeForStatus(status),
		Param:   param,
		Code:    code,
	}}
}

// NewInvalidRequestError builds a 400 envelope.
func NewInvalidRequestError(message, param, code string) *ErrorResponse {
	return NewErrorResponse(http.StatusBadRequest, message, code, param)
}

// NewServerError builds the generic 500 envelope. It never carries details of
// the underlying failure.
func NewServerError() *ErrorResponse {
	return NewErrorResponse(http.StatusInternalServerError, GenericInternalMessage, CodeInternalError, "")
}
