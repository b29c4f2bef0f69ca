package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/mindfold/solace/core"
)

// payloadVariant is one encoding of a write payload. Variants are tried in
// declaration order; the remote's schema validator decides which one the
// deployed API version accepts.
type payloadVariant struct {
	name    string
	payload any
}

// retryableStatus is the validation-class status reserved for unprocessable
// payloads. Only this status advances negotiation to the next variant; any
// other failure aborts the whole operation immediately.
const retryableStatus = http.StatusUnprocessableEntity

// negotiate tries each variant in order against the given endpoint. It
// returns the successful response body, or:
//   - the non-validation failure that aborted negotiation, or
//   - *core.NegotiationError when every variant was rejected with the
//     validation-class status (the last rejection is what callers observe).
//
// Retries are bounded to exactly the declared variant count.
func (p *Provider) negotiate(ctx context.Context, method, path string, variants []payloadVariant) ([]byte, error) {
	var last *core.UpstreamError
	for _, variant := range variants {
		data, err := json.Marshal(variant.payload)
		if err != nil {
			return nil, fmt.Errorf("marshal %s variant: %w", variant.name, err)
		}
		req, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("creating request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		p.setHeaders(req)

		resp, err := p.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("calling data API: %w", err)
		}
		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			return nil, fmt.Errorf("reading response: %w", readErr)
		}

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			return body, nil
		case resp.StatusCode == retryableStatus:
			last = &core.UpstreamError{
				Operation: fmt.Sprintf("%s %s (%s)", method, path, variant.name),
				Status:    resp.StatusCode,
				Body:      string(body),
			}
			p.opts.Logger.Debug("payload variant rejected, trying next", "variant", variant.name, "status", resp.StatusCode)
		default:
			return nil, &core.UpstreamError{
				Operation: fmt.Sprintf("%s %s (%s)", method, path, variant.name),
				Status:    resp.StatusCode,
				Body:      string(body),
			}
		}
	}
	return nil, &core.NegotiationError{Variants: len(variants), Last: last}
}

// scoreVariants returns the four score-write encodings in negotiation order:
// flat camelCase, flat snake_case, enveloped camelCase, enveloped snake_case.
func scoreVariants(rec *core.ScoreRecord) []payloadVariant {
	camel := map[string]any{
		"userId":     rec.UserID,
		"totalScore": rec.TotalScore,
		"scoreInfo":  rec.ScoreInfo,
		"answers":    rec.Answers,
		"message":    rec.Message,
	}
	snakeInfo := make([]map[string]int, len(rec.ScoreInfo))
	for i, si := range rec.ScoreInfo {
		snakeInfo[i] = map[string]int{"question_id": si.QuestionID, "score": si.Score}
	}
	snakeAnswers := make([]map[string]int, len(rec.Answers))
	for i, a := range rec.Answers {
		snakeAnswers[i] = map[string]int{"question_id": a.QuestionID, "answer_index": a.AnswerIndex}
	}
	snake := map[string]any{
		"user_id":     rec.UserID,
		"total_score": rec.TotalScore,
		"score_info":  snakeInfo,
		"answers":     snakeAnswers,
		"message":     rec.Message,
	}
	return []payloadVariant{
		{"flat_camel", camel},
		{"flat_snake", snake},
		{"enveloped_camel", map[string]any{"data": camel}},
		{"enveloped_snake", map[string]any{"data": snake}},
	}
}

// followUpVariants returns the four follow-up encodings in negotiation order.
func followUpVariants(followUp []int) []payloadVariant {
	camel := map[string]any{"followUp": followUp}
	snake := map[string]any{"follow_up": followUp}
	return []payloadVariant{
		{"flat_camel", camel},
		{"flat_snake", snake},
		{"enveloped_camel", map[string]any{"data": camel}},
		{"enveloped_snake", map[string]any{"data": snake}},
	}
}

// decodeID extracts the record id from a write response, accepting the known
// envelope and casing variants.
func decodeID(body []byte) string {
	var flat struct {
		ID  string `json:"id"`
		Alt string `json:"_id"`
	}
	if err := json.Unmarshal(body, &flat); err == nil {
		if flat.ID != "" {
			return flat.ID
		}
		if flat.Alt != "" {
			return flat.Alt
		}
	}
	var enveloped struct {
		Data struct {
			ID  string `json:"id"`
			Alt string `json:"_id"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &enveloped); err == nil {
		if enveloped.Data.ID != "" {
			return enveloped.Data.ID
		}
		if enveloped.Data.Alt != "" {
			return enveloped.Data.Alt
		}
	}
	return ""
}
