// Package model defines the completion service abstraction used by the
// orchestrator: an ordered list of role/content messages in, one reply text
// out. Provider adapters (openai, anthropic, ollama) live in subpackages and
// map their SDK or wire formats onto the shared Request/Response types.
//
// Reply extraction is deliberately defensive: DecodeReply tries a small,
// explicit, ordered set of known response body shapes, and callers substitute
// FallbackReply when no shape matches, so a malformed upstream response never
// dead-ends a conversation.
package model
