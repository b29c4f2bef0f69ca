// Package memory implements the semantic memory service: an embedding call
// in front of a vector index, offering upsert-by-id and top-K similarity
// query scoped by flat metadata filters. The core.Memory contract and
// SearchResult type reside in the core package; select an Embedder and Index
// implementation at wiring time.
//
// Embedding is asymmetric on purpose: documents are embedded with a
// document-tuned mode at upsert time and queries with a query-tuned mode at
// retrieval time. Conflating the two degrades retrieval quality silently on
// backends tuned per mode, so the Embedder interface keeps them separate.
package memory
