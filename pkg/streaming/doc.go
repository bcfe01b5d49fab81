// Package streaming provides the pull-based iterator abstraction used to move
// chat-completion chunks from a backend to the client without buffering the
// whole response.
//
// An Iterator wraps exactly one upstream source and is single-pass: each call
// to Next produces the following chunk or io.EOF once the source is exhausted.
// Consumers signal cancellation by cancelling the context passed to Next or by
// calling Close, which releases the upstream connection.
//
// # Sources
//
//   - FromChunks: a synthetic, in-memory source (tests, canned responses)
//   - NewSSEReader: a raw Server-Sent Events byte stream from an HTTP backend
//   - NewOpenAIStream: an SDK-native stream from github.com/sashabaranov/go-openai
//
// # Composition
//
// Transform wraps one iterator in another, applying a per-chunk function
// lazily with one chunk in flight. Collect drains an iterator explicitly for
// callers that need the complete response.
package streaming
