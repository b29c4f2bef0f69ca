// Package server exposes the inbound HTTP surface: the conversational
// endpoint backed by the orchestrator, and the questionnaire endpoints
// backed by the scoring engine and data access provider. Routing is a thin
// stdlib mux; the interesting behavior (status mapping per error class,
// degraded-persist signaling) lives in the handlers.
package server
