package tutor

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// FallbackReply is the conversational reply used whenever the completion
// provider fails or returns an unusable response.
const FallbackReply = "I'm having a little trouble connecting right now. Let's talk about something else."

// DefaultReply substitutes for a missing conversational_response field in an
// otherwise valid provider response.
const DefaultReply = "Let's keep practicing!"

// ErrMalformedResponse indicates that the provider response could not be
// parsed as the expected wire record. Interpret still returns a valid
// fallback TurnResult alongside it; callers log the error, they do not
// propagate it.
var ErrMalformedResponse = errors.New("tutor: malformed provider response")

// flexBool unmarshals a JSON boolean while tolerating the string and numeric
// spellings ("true", "false", 0, 1) that smaller models occasionally emit.
type flexBool bool

func (b *flexBool) UnmarshalJSON(data []byte) error {
	s := strings.Trim(strings.TrimSpace(string(data)), `"`)
	switch strings.ToLower(s) {
	case "true", "1":
		*b = true
		return nil
	case "false", "0", "", "null":
		*b = false
		return nil
	}
	return fmt.Errorf("cannot parse %s as boolean", strconv.Quote(s))
}

// wireRecord is the untrusted four-field record the completion provider is
// prompted to return.
type wireRecord struct {
	CorrectedSentence      string   `json:"corrected_sentence"`
	HasErrors              flexBool `json:"has_errors"`
	Explanation            string   `json:"explanation"`
	ConversationalResponse string   `json:"conversational_response"`
}

// Interpret converts a raw completion-provider response into a well-formed
// TurnResult. It strips code-fence wrappers, parses the four-field record,
// and defaults missing values.
//
// Interpret is total: it never panics and always returns a usable TurnResult.
// On any parse failure the result preserves originalText as the corrected
// sentence, reports no errors, and carries the fallback apology reply; the
// returned error (wrapping [ErrMalformedResponse]) exists only for logging.
func Interpret(raw, originalText string) (TurnResult, error) {
	cleaned := stripFences(strings.TrimSpace(raw))

	var rec wireRecord
	if err := json.Unmarshal([]byte(cleaned), &rec); err != nil {
		return fallbackResult(originalText), fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	result := TurnResult{
		CorrectedSentence:   strings.TrimSpace(rec.CorrectedSentence),
		HasErrors:           bool(rec.HasErrors),
		Explanation:         strings.TrimSpace(rec.Explanation),
		ConversationalReply: strings.TrimSpace(rec.ConversationalResponse),
	}
	if result.CorrectedSentence == "" {
		result.CorrectedSentence = originalText
	}
	if !result.HasErrors {
		result.Explanation = ""
	}
	if result.ConversationalReply == "" {
		result.ConversationalReply = DefaultReply
	}
	return result, nil
}

// fallbackResult is the degraded-but-valid TurnResult used for provider and
// parse failures: the user's text stands uncorrected and the reply apologises.
func fallbackResult(originalText string) TurnResult {
	return TurnResult{
		CorrectedSentence:   originalText,
		HasErrors:           false,
		Explanation:         "",
		ConversationalReply: FallbackReply,
	}
}

// stripFences removes a leading/trailing markdown code-fence wrapper
// (```json ... ``` or ``` ... ```) when present. Content without fences is
// returned unchanged.
func stripFences(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	body := strings.TrimPrefix(s, "```")
	// Drop an optional language tag on the opening fence line.
	if idx := bytes.IndexByte([]byte(body), '\n'); idx >= 0 {
		firstLine := strings.TrimSpace(body[:idx])
		if firstLine == "" || isLanguageTag(firstLine) {
			body = body[idx+1:]
		}
	} else {
		body = strings.TrimPrefix(body, "json")
	}
	body = strings.TrimSpace(body)
	body = strings.TrimSuffix(body, "```")
	return strings.TrimSpace(body)
}

// isLanguageTag reports whether s looks like a fence language tag rather
// than payload content.
func isLanguageTag(s string) bool {
	if len(s) > 16 {
		return false
	}
	for _, r := range s {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return false
		}
	}
	return true
}
