// Package scoring implements the deterministic questionnaire engine: pure
// computation over the fixed 10-item wellbeing check-in plus user answers,
// producing a total score, per-question breakdown and a templated feedback
// message. It also carries the bundled default questionnaire used to seed
// the direct store and as the remote provider's degraded-read fallback.
package scoring
