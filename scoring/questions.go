package scoring

import "github.com/mindfold/solace/core"

// frequencyOptions is the shared 0-3 answer scale used by most items.
func frequencyOptions() []core.AnswerOption {
	return []core.AnswerOption{
		{Text: "Not at all", Score: 0},
		{Text: "Several days", Score: 1},
		{Text: "More than half the days", Score: 2},
		{Text: "Nearly every day", Score: 3},
	}
}

// DefaultQuestions returns the bundled static 10-item check-in. It doubles
// as the seed set for the direct store and as the remote provider's fallback
// when the upstream question list is unavailable or malformed.
//
// The last item carries the highest weight in message selection: any
// non-zero score on it triggers the support message regardless of total.
func DefaultQuestions() []core.Question {
	texts := []string{
		"Over the last two weeks, how often have you had little interest or pleasure in doing things?",
		"How often have you been feeling down, discouraged, or hopeless?",
		"How often have you had trouble falling asleep, staying asleep, or sleeping too much?",
		"How often have you been feeling tired or had little energy?",
		"How often have you had a poor appetite or found yourself overeating?",
		"How often have you felt bad about yourself, or that you are a failure or have let people down?",
		"How often have you had trouble concentrating on things like reading or watching television?",
		"How often have you been moving or speaking noticeably slowly, or been so restless you couldn't sit still?",
		"How often have you felt isolated or cut off from the people around you?",
		"How often have you had thoughts that you would be better off not being here, or of hurting yourself?",
	}
	questions := make([]core.Question, 0, core.QuestionCount)
	for i, text := range texts {
		questions = append(questions, core.Question{
			SerialNumber: i + 1,
			Text:         text,
			Options:      frequencyOptions(),
		})
	}
	return questions
}
