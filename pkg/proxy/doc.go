// Package proxy serves the OpenAI-compatible chat completions endpoint.
//
// Every inbound call passes through the Orchestrator:
//
//  1. ParseRequest bounds, decodes and validates the JSON body.
//  2. A Transaction is created, keyed by the request ID the middleware chain
//     assigned.
//  3. The current root policy is applied. It is responsible for everything
//     else, including authentication and the backend call.
//  4. The resulting transaction is written by WriteBuffered or, when its
//     response carries a chunk iterator, by the StreamEncoder as Server-Sent
//     Events terminated by "data: [DONE]".
//
// # Error Handling
//
// All errors use the OpenAI envelope:
//
//	{
//	  "error": {
//	    "message": "model is required",
//	    "type": "invalid_request_error",
//	    "param": "model",
//	    "code": "missing_field"
//	  }
//	}
//
// A *policy.Error is answered with its status and detail. Anything else,
// including a panic inside a policy, is logged with full context and answered
// with a generic 500 whose message never carries internal details. Errors
// raised while a stream is in flight are sent as one final error event.
package proxy
