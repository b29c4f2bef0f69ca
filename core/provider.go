package core

import "context"

// Provider is the uniform data access interface for questionnaire, score and
// chat persistence. Two interchangeable backends implement it: a direct
// document store and a remote unified API client.
//
// Contract notes:
//   - GetQuestions returns items ordered by ascending serial number.
//   - CreateScore assigns and returns the record id.
//   - UpdateFollowUp overwrites any prior follow-up value (no merge).
//   - The *ByUser / *BySession reads return empty (or nil) results when
//     nothing matches, never an error, so callers can treat "no context
//     available" uniformly.
//   - UpsertChatMessage has atomic create-if-absent + append semantics keyed
//     by session id.
type Provider interface {
	GetQuestions(ctx context.Context) ([]Question, error)
	CreateScore(ctx context.Context, rec *ScoreRecord) (string, error)
	UpdateFollowUp(ctx context.Context, id string, followUp []int) error
	GetScoresByUser(ctx context.Context, userID string) ([]ScoreRecord, error)
	GetChatBySession(ctx context.Context, sessionID string) (*ChatSession, error)
	GetChatsByUser(ctx context.Context, userID string) ([]ChatSession, error)
	UpsertChatMessage(ctx context.Context, msg ChatMessage) error
}
