// Package tutor contains the conversation core of lingotutor: the turn and
// correction types, the bounded conversation history, the response
// interpreter that repairs completion-provider output, the prompt builder,
// and the session state machine that orchestrates one tutoring conversation.
//
// The package is deployment-agnostic. Both the CLI loop and the web backend
// drive a [Session] and differ only in which providers they inject and where
// they persist the exchanges.
package tutor

// Speaker identifies who produced a conversation turn.
type Speaker string

const (
	// SpeakerUser marks input from the learner.
	SpeakerUser Speaker = "user"
	// SpeakerAssistant marks a reply from the tutor.
	SpeakerAssistant Speaker = "assistant"
	// SpeakerSystem marks the fixed system instruction pinned at the start of
	// a conversation.
	SpeakerSystem Speaker = "system"
)

// Correction holds the grammar-analysis metadata attached to an assistant
// turn.
type Correction struct {
	// CorrectedSentence is the fully corrected version of the user's input.
	CorrectedSentence string
	// HasErrors reports whether the input contained at least one error.
	HasErrors bool
	// Explanation describes the corrections. Empty when HasErrors is false.
	Explanation string
}

// Turn is one message in a conversation. Turns are immutable once created;
// the history only appends or evicts them.
type Turn struct {
	Speaker Speaker
	Text    string

	// Meta carries correction metadata on assistant turns. Nil for user and
	// system turns.
	Meta *Correction
}

// TurnResult is the structured outcome of interpreting one completion-
// provider response. All four fields are always populated: the interpreter
// defaults CorrectedSentence to the original input and ConversationalReply
// to a fixed phrase when the provider supplies none.
type TurnResult struct {
	CorrectedSentence   string
	HasErrors           bool
	Explanation         string
	ConversationalReply string
}

// DeliveredMessage builds the message spoken and displayed to the learner.
// When the input had errors and an explanation exists, the explanation leads;
// otherwise the reply is prefixed with praise.
func (r TurnResult) DeliveredMessage() string {
	if r.HasErrors && r.Explanation != "" {
		return r.Explanation + " " + r.ConversationalReply
	}
	return "That's perfectly said! " + r.ConversationalReply
}

// Correction extracts the correction metadata from the result.
func (r TurnResult) Correction() *Correction {
	return &Correction{
		CorrectedSentence: r.CorrectedSentence,
		HasErrors:         r.HasErrors,
		Explanation:       r.Explanation,
	}
}
