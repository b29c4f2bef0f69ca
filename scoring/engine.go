package scoring

import (
	"sort"
	"time"

	"github.com/mindfold/solace/core"
)

// SupportMessage is emitted when the score crosses the support threshold.
const SupportMessage = "Thank you for completing the check-in. Your answers suggest things may be weighing on you right now. Please consider reaching out to someone you trust or a support service - you don't have to carry this alone."

// ThankYouMessage is the generic acknowledgement for all other results.
const ThankYouMessage = "Thank you for completing the check-in. Keep looking after yourself - you can come back and talk any time."

// Message selection thresholds. The rule (total > 10 OR last item > 0) is
// kept bit-compatible with the original system; treat these constants as the
// seam for a future configurable rule table, not as clinical guidance.
const (
	supportScoreThreshold = 10
	lastItemAlertMin      = 0
)

// Options configure the scoring engine.
type Options struct {
	SupportMessage  string
	ThankYouMessage string
}

// Engine computes score records from a questionnaire and a response map.
// It holds no mutable state and is safe for concurrent use.
type Engine struct {
	opts Options
}

// NewEngine constructs an Engine, applying any option overrides.
func NewEngine(optFns ...func(o *Options)) *Engine {
	opts := Options{
		SupportMessage:  SupportMessage,
		ThankYouMessage: ThankYouMessage,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Engine{opts: opts}
}

// Score computes the record for one submission. responses maps each item's
// serial number to the selected option index. Items are iterated in
// ascending serial order (not submission order) so ScoreInfo and Answers
// have a canonical, reproducible order independent of client payload
// ordering.
//
// Returns a *core.ValidationError when the questionnaire does not have
// exactly core.QuestionCount items, a response is missing for any serial
// number, or a supplied index is out of range for that item's option list.
func (e *Engine) Score(questions []core.Question, responses map[int]int) (*core.ScoreRecord, error) {
	if len(questions) != core.QuestionCount {
		return nil, core.NewValidationError("questionnaire must contain exactly %d items, got %d", core.QuestionCount, len(questions))
	}

	ordered := make([]core.Question, len(questions))
	copy(ordered, questions)
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].SerialNumber < ordered[j].SerialNumber
	})

	rec := &core.ScoreRecord{
		UserID:    core.AnonymousUser,
		ScoreInfo: make([]core.ScoreInfo, 0, len(ordered)),
		Answers:   make([]core.Answer, 0, len(ordered)),
		CreatedAt: time.Now().UTC(),
	}

	var lastScore int
	for _, q := range ordered {
		idx, ok := responses[q.SerialNumber]
		if !ok {
			return nil, core.NewValidationError("missing response for question %d", q.SerialNumber)
		}
		if idx < 0 || idx >= len(q.Options) {
			return nil, core.NewValidationError("answer index %d out of range for question %d", idx, q.SerialNumber)
		}
		score := q.Options[idx].Score
		rec.TotalScore += score
		rec.ScoreInfo = append(rec.ScoreInfo, core.ScoreInfo{QuestionID: q.SerialNumber, Score: score})
		rec.Answers = append(rec.Answers, core.Answer{QuestionID: q.SerialNumber, AnswerIndex: idx})
		lastScore = score
	}

	if rec.TotalScore > supportScoreThreshold || lastScore > lastItemAlertMin {
		rec.Message = e.opts.SupportMessage
	} else {
		rec.Message = e.opts.ThankYouMessage
	}
	rec.UpdatedAt = rec.CreatedAt
	return rec, nil
}

// ValidateFollowUp checks a follow-up submission before it reaches the
// provider. At most core.MaxFollowUpAnswers entries are accepted; content is
// deliberately not validated further.
func ValidateFollowUp(followUp []int) error {
	if len(followUp) > core.MaxFollowUpAnswers {
		return core.NewValidationError("follow-up accepts at most %d answers, got %d", core.MaxFollowUpAnswers, len(followUp))
	}
	return nil
}
