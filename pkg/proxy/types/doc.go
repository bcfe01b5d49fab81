// Package types defines the OpenAI wire shapes the proxy itself produces or
// checks: the inbound chat completion request and the error envelope.
//
// Request payloads are forwarded to policies as decoded JSON maps, so these
// types are used for validation only and never re-encoded. Fields the proxy
// does not know about pass through untouched.
//
// Every error the proxy writes uses the OpenAI envelope so standard SDKs
// surface it normally:
//
//	{"error": {"message": "...", "type": "invalid_request_error", "code": "...", "param": "..."}}
package types
