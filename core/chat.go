package core

import "time"

// Role identifies the author of a chat turn.
type Role string

const (
	// RoleUser marks a turn authored by the end user.
	RoleUser Role = "user"
	// RoleAssistant marks a turn authored by the completion model.
	RoleAssistant Role = "assistant"
)

// ChatTurn is one entry in a session transcript.
type ChatTurn struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// ChatSession is an ordered, append-only transcript keyed by a
// caller-supplied session identifier. Session ids are a shared namespace:
// they are not qualified by user by construction, multiple sessions may
// coexist. ScoreDocID is a weak back-reference to a ScoreRecord (lookup
// only, never ownership).
type ChatSession struct {
	SessionID  string     `json:"sessionId"`
	UserID     string     `json:"userId"`
	ScoreDocID string     `json:"scoreDocId,omitempty"`
	Turns      []ChatTurn `json:"turns"`
	CreatedAt  time.Time  `json:"createdAt"`
	UpdatedAt  time.Time  `json:"updatedAt"`
}

// ChatMessage is the input to Provider.UpsertChatMessage: one turn to append
// to the session transcript, creating the session if it does not exist yet.
type ChatMessage struct {
	SessionID  string
	UserID     string
	ScoreDocID string
	Role       Role
	Content    string
}
