// Package policy defines the unit of request and response processing and the
// two composite shapes built from it.
//
// A Policy receives the Transaction for one call, may mutate any part of it,
// and returns it or fails. Expected failures are *Error values carrying a
// suggested HTTP status and a client-facing detail; anything else is treated
// as unexpected by the proxy.
//
// # Composition
//
// Sequential applies its children in order and stops at the first error.
// Conditional evaluates its branch conditions in order and applies the
// policy of the first branch that matches, or its default. Neither composite
// wraps or swallows child errors, so an *Error always names the atomic
// policy that raised it.
//
// # Streaming
//
// A policy that implements ChunkProcessor or StreamFinisher can take part in
// a streamed response. WrapStream layers the policy's hooks over the
// transaction's current iterator; nothing is buffered and the hooks run as
// the client pulls chunks.
//
// # Sharing
//
// Policy trees are built once and shared by every concurrent call.
// Implementations must keep per-call state in Transaction.Data.
package policy
