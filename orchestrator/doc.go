// Package orchestrator implements the conversational state machine: per
// incoming message it sequences provider reads, semantic memory retrieval,
// prompt assembly, the completion call and provider writes.
//
// Dependencies fall into three reliability classes with distinct failure
// semantics:
//
//   - Best-effort reads (score lookup, history load, memory retrieval) are
//     bounded by a per-read timeout; failures are logged and replaced by a
//     defined default, never failing the request.
//   - Mandatory calls (the two transcript writes and the completion call)
//     abort the request on failure. The user turn is persisted before the
//     completion call is issued, and the assistant turn before the response
//     is returned.
//   - Fire-and-forget memory upserts run as detached background tasks,
//     exempt from caller cancellation; their errors are observable only via
//     logs.
package orchestrator
