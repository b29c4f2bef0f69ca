package core

import "time"

// AnonymousUser is the owner recorded for score submissions without a user
// identifier.
const AnonymousUser = "anonymous"

// MaxFollowUpAnswers bounds the follow-up list on a score record.
// Submissions exceeding it are rejected without mutating the record.
const MaxFollowUpAnswers = 5

// ScoreInfo is the per-question score breakdown entry of a score record.
type ScoreInfo struct {
	QuestionID int `json:"questionId"`
	Score      int `json:"score"`
}

// Answer records which option index the user selected for a question.
type Answer struct {
	QuestionID  int `json:"questionId"`
	AnswerIndex int `json:"answerIndex"`
}

// ScoreRecord is the persisted result of one questionnaire submission.
//
// Lifecycle: created atomically at submission, mutated exactly once to add
// FollowUp (overwrite, not merge), never deleted. ScoreInfo and Answers are
// ordered by ascending question serial number regardless of submission
// order, so two submissions with the same answers produce identical records.
type ScoreRecord struct {
	ID         string      `json:"id,omitempty"`
	UserID     string      `json:"userId"`
	TotalScore int         `json:"totalScore"`
	ScoreInfo  []ScoreInfo `json:"scoreInfo"`
	Answers    []Answer    `json:"answers"`
	Message    string      `json:"message"`
	FollowUp   []int       `json:"followUp,omitempty"`
	CreatedAt  time.Time   `json:"createdAt"`
	UpdatedAt  time.Time   `json:"updatedAt"`
}
