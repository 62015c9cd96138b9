package tutor

import (
	"fmt"

	"github.com/lingotutor/lingotutor/pkg/provider/llm"
)

// SystemPrompt is the fixed instruction sent as the system message on every
// completion request. It pins the tutor persona and the strict JSON output
// contract the interpreter relies on.
const SystemPrompt = "You are Alex, an expert English tutor. Your task is to analyze the user's message with high accuracy.\n\n" +
	"RULES:\n" +
	"1. **Analyze Thoroughly**: Check for any grammar, spelling, or phrasing errors.\n" +
	"2. **Correct the Sentence**: Provide a single, fully corrected version.\n" +
	"3. **Determine Error Status**: Set `has_errors` to `true` if even one error is found.\n" +
	"4. **Explain Clearly**: If errors exist, provide a friendly explanation.\n" +
	"5. **Respond Conversationally**: Write a natural response that continues the conversation.\n\n" +
	"Return ONLY a JSON object with this exact structure:\n" +
	"{\n" +
	"    \"corrected_sentence\": \"The fully corrected sentence.\",\n" +
	"    \"has_errors\": true_or_false,\n" +
	"    \"explanation\": \"A friendly explanation of corrections, or empty string if none.\",\n" +
	"    \"conversational_response\": \"Your engaging response to continue the conversation.\"\n" +
	"}"

// userMessageTemplate wraps the user's text with worked examples to bias the
// model toward the structured output format.
const userMessageTemplate = `USER'S MESSAGE: "%s"

EXAMPLES:
User: "Hello, how is you?"
Output: {"corrected_sentence": "Hello, how are you?", "has_errors": true, "explanation": "We say 'how are you?' because 'are' is used with 'you'.", "conversational_response": "I'm doing well, thanks! What's on your mind today?"}

User: "What do you think about Babar Azam?"
Output: {"corrected_sentence": "What do you think about Babar Azam?", "has_errors": false, "explanation": "", "conversational_response": "Perfect grammar! Babar Azam is an incredible cricketer with such elegant technique. Are you a cricket fan?"}

Now analyze the message above and return only the JSON.`

// PromptBuilder assembles the completion-provider message sequence for one
// turn.
//
// The context depth is configurable: with zero context turns each request is
// stateless (the local conversation record still accumulates), while a
// positive value includes that many recent exchanges — a user turn and its
// assistant reply — from the history snapshot before the new message.
type PromptBuilder struct {
	contextTurns int
}

// PromptOption is a functional option for PromptBuilder.
type PromptOption func(*PromptBuilder)

// WithExchangeContext sets how many recent exchanges from the history are
// sent to the provider as prior-turn context. Zero (the default) sends none.
func WithExchangeContext(n int) PromptOption {
	return func(b *PromptBuilder) {
		if n >= 0 {
			b.contextTurns = n
		}
	}
}

// NewPromptBuilder creates a PromptBuilder.
func NewPromptBuilder(opts ...PromptOption) *PromptBuilder {
	b := &PromptBuilder{}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Build produces the ordered message sequence for one completion request:
// recent history context (when configured) followed by the few-shot-wrapped
// user message. The system prompt travels separately in the request.
func (b *PromptBuilder) Build(history []Turn, userText string) []llm.Message {
	var messages []llm.Message

	if b.contextTurns > 0 {
		for _, t := range recentExchanges(history, b.contextTurns) {
			messages = append(messages, llm.Message{
				Role:    string(t.Speaker),
				Content: t.Text,
			})
		}
	}

	messages = append(messages, llm.Message{
		Role:    string(SpeakerUser),
		Content: fmt.Sprintf(userMessageTemplate, userText),
	})
	return messages
}

// recentExchanges returns up to n of the most recent user/assistant exchange
// pairs from the turn sequence, in original order. System turns are skipped;
// the system prompt is carried by the request itself.
func recentExchanges(turns []Turn, n int) []Turn {
	var conv []Turn
	for _, t := range turns {
		if t.Speaker == SpeakerSystem {
			continue
		}
		conv = append(conv, t)
	}
	max := n * 2
	if len(conv) > max {
		conv = conv[len(conv)-max:]
	}
	return conv
}
