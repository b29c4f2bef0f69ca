// Package core provides the foundational domain types and interfaces used by
// Solace. It defines the core abstractions for:
//
//   - Questions (the fixed wellbeing questionnaire and its answer options)
//   - Score records (persisted questionnaire results plus follow-up answers)
//   - Chat sessions (ordered, append-only conversation transcripts)
//   - Pluggable stores for persistence (Provider) and semantic recall (Memory)
//   - The error taxonomy separating caller faults from dependency faults
//
// The package intentionally keeps implementation concerns (persistence,
// remote clients, orchestration) out of scope, exposing small interfaces to
// enable interchangeable backends. All exported identifiers include concise
// documentation to aid discoverability and external consumption.
package core
