package core

import "context"

// SearchResult represents a retrieved memory item with a relevance score and
// the flat metadata it was stored with.
type SearchResult struct {
	ID       string
	Content  string
	Score    float64
	Metadata map[string]string
}

// Memory defines semantic storage + retrieval for conversational context.
// Metadata is constrained to string values because the backing index may
// reject composite payloads; callers flatten structured fields before upsert.
//
// UpsertTexts is all-or-nothing from the caller's view: a failure at either
// the embedding stage or the index write fails the whole call. QueryText
// embeds the query with a query-tuned mode distinct from the document mode
// used at upsert time.
type Memory interface {
	UpsertTexts(ctx context.Context, ids []string, texts []string, metadata []map[string]string) error
	QueryText(ctx context.Context, text string, topK int, filter map[string]string) ([]SearchResult, error)
}

// Common metadata keys used by memory entries.
const (
	MetaSessionID = "session_id"
	MetaUserID    = "user_id"
	MetaRole      = "role"
	MetaType      = "type"
	MetaTimestamp = "timestamp"
)

// Memory entry types recorded under MetaType.
const (
	MemoryTypeChat     = "chat"
	MemoryTypeQuiz     = "quiz"
	MemoryTypeFollowUp = "follow_up"
)
