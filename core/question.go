package core

// QuestionCount is the number of items a questionnaire must contain for
// scoring to proceed. Anything else is a hard error, never a silent
// degradation.
const QuestionCount = 10

// AnswerOption is one selectable answer for a questionnaire item. Score is
// the value added to the total when this option is selected.
type AnswerOption struct {
	Text  string `json:"text"`
	Score int    `json:"score"`
}

// Question is a single questionnaire item. SerialNumber is the stable
// ordering key; Options is the ordered list of selectable answers.
type Question struct {
	SerialNumber int            `json:"serialNumber"`
	Text         string         `json:"text"`
	Options      []AnswerOption `json:"options"`
}
