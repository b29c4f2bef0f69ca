package orchestrator

import (
	"fmt"
	"strings"

	"github.com/mindfold/solace/core"
	"github.com/mindfold/solace/model"
)

// persona is the fixed instruction preamble for every completion call.
const persona = "You are Solace, a warm and supportive wellbeing companion. " +
	"Listen carefully, acknowledge feelings without judgement, and keep replies " +
	"short and conversational. You are not a clinician and you never diagnose; " +
	"if someone appears to be in crisis, gently encourage them to contact a " +
	"local support service or someone they trust."

// buildPrompt deterministically assembles the completion request: persona
// preamble, score context when present, retrieved memory block when
// non-empty, full prior history in chronological order, then the new user
// message.
func buildPrompt(scoreDoc *core.ScoreRecord, retrieved []core.SearchResult, history *core.ChatSession, message string) model.Request {
	var instructions strings.Builder
	instructions.WriteString(persona)

	if scoreDoc != nil {
		instructions.WriteString("\n\nThe user completed a wellbeing check-in.")
		fmt.Fprintf(&instructions, " Total score: %d.", scoreDoc.TotalScore)
		if scoreDoc.Message != "" {
			fmt.Fprintf(&instructions, " Feedback given: %s", scoreDoc.Message)
		}
		if len(scoreDoc.FollowUp) > 0 {
			answers := make([]string, len(scoreDoc.FollowUp))
			for i, v := range scoreDoc.FollowUp {
				answers[i] = fmt.Sprintf("%d", v)
			}
			fmt.Fprintf(&instructions, " Follow-up answers: %s.", strings.Join(answers, ", "))
		}
	}

	if block := contextBlock(retrieved); block != "" {
		instructions.WriteString("\n\nRelevant context from earlier in this conversation:\n")
		instructions.WriteString(block)
	}

	var messages []model.Message
	if history != nil {
		turns := history.Turns
		// The user turn is persisted before history loads, so the
		// transcript may already end with the incoming message; drop it
		// rather than send it twice.
		if n := len(turns); n > 0 && turns[n-1].Role == core.RoleUser && turns[n-1].Content == message {
			turns = turns[:n-1]
		}
		for _, turn := range turns {
			if turn.Content == "" {
				continue
			}
			messages = append(messages, model.Message{Role: string(turn.Role), Content: turn.Content})
		}
	}
	messages = append(messages, model.Message{Role: string(core.RoleUser), Content: message})

	return model.Request{Instructions: instructions.String(), Messages: messages}
}

// contextBlock renders retrieved memory entries as labeled lines. Entries
// with empty text are dropped.
func contextBlock(retrieved []core.SearchResult) string {
	var lines []string
	for _, r := range retrieved {
		text := strings.TrimSpace(r.Content)
		if text == "" {
			continue
		}
		lines = append(lines, fmt.Sprintf("- [%s] %s", contextLabel(r.Metadata), text))
	}
	return strings.Join(lines, "\n")
}

// contextLabel names an entry by its metadata type and role.
func contextLabel(meta map[string]string) string {
	switch meta[core.MetaType] {
	case core.MemoryTypeQuiz:
		return "check-in"
	case core.MemoryTypeFollowUp:
		return "follow-up"
	case core.MemoryTypeChat:
		if meta[core.MetaRole] == string(core.RoleAssistant) {
			return "assistant turn"
		}
		return "user turn"
	default:
		return "note"
	}
}
