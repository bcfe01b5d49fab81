// Package builtin implements the atomic policy kinds shipped with Luthien
// and registers them with a loader.TypeTable.
//
//	types := loader.NewTypeTable()
//	builtin.RegisterAll(types)
//
// Request-side kinds: authenticate, add_header, remove_header,
// add_backend_key, set_model, set_data, block.
//
// Backend kinds: forward (raw HTTP with SSE streaming), openai_forward
// (go-openai client) and respond (synthesized answer, no backend call).
//
// Response-side kinds: uppercase, regex_replace, response_guard and audit.
// uppercase, regex_replace and audit are stream-aware: placed after a
// backend policy they wrap the response iterator and see every chunk as it
// is pulled. response_guard buffers the stream because it needs the full
// text before deciding.
package builtin
