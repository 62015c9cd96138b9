package tutor

import (
	"errors"
	"strings"
	"testing"
)

func TestInterpret(t *testing.T) {
	const original = "Hello, how is you?"

	tests := []struct {
		name    string
		raw     string
		want    TurnResult
		wantErr bool
	}{
		{
			name: "plain json",
			raw:  `{"corrected_sentence": "Hello, how are you?", "has_errors": true, "explanation": "We say 'how are you?'.", "conversational_response": "I'm doing well!"}`,
			want: TurnResult{
				CorrectedSentence:   "Hello, how are you?",
				HasErrors:           true,
				Explanation:         "We say 'how are you?'.",
				ConversationalReply: "I'm doing well!",
			},
		},
		{
			name: "json fenced with language tag",
			raw:  "```json\n{\"corrected_sentence\": \"Hello, how are you?\", \"has_errors\": true, \"explanation\": \"Use 'are'.\", \"conversational_response\": \"Nice!\"}\n```",
			want: TurnResult{
				CorrectedSentence:   "Hello, how are you?",
				HasErrors:           true,
				Explanation:         "Use 'are'.",
				ConversationalReply: "Nice!",
			},
		},
		{
			name: "bare fence",
			raw:  "```\n{\"corrected_sentence\": \"Fine.\", \"has_errors\": false, \"explanation\": \"\", \"conversational_response\": \"Great!\"}\n```",
			want: TurnResult{
				CorrectedSentence:   "Fine.",
				HasErrors:           false,
				Explanation:         "",
				ConversationalReply: "Great!",
			},
		},
		{
			name: "string-typed has_errors",
			raw:  `{"corrected_sentence": "Fixed.", "has_errors": "true", "explanation": "why", "conversational_response": "ok"}`,
			want: TurnResult{
				CorrectedSentence:   "Fixed.",
				HasErrors:           true,
				Explanation:         "why",
				ConversationalReply: "ok",
			},
		},
		{
			name: "missing reply falls back to default",
			raw:  `{"corrected_sentence": "Fixed.", "has_errors": false, "explanation": ""}`,
			want: TurnResult{
				CorrectedSentence:   "Fixed.",
				HasErrors:           false,
				Explanation:         "",
				ConversationalReply: DefaultReply,
			},
		},
		{
			name: "missing corrected sentence preserves original",
			raw:  `{"has_errors": false, "explanation": "", "conversational_response": "Sounds good."}`,
			want: TurnResult{
				CorrectedSentence:   original,
				HasErrors:           false,
				Explanation:         "",
				ConversationalReply: "Sounds good.",
			},
		},
		{
			name: "explanation dropped when no errors",
			raw:  `{"corrected_sentence": "Fine.", "has_errors": false, "explanation": "leftover text", "conversational_response": "ok"}`,
			want: TurnResult{
				CorrectedSentence:   "Fine.",
				HasErrors:           false,
				Explanation:         "",
				ConversationalReply: "ok",
			},
		},
		{
			name:    "non-json text",
			raw:     "Sure! The corrected sentence is: Hello, how are you?",
			want:    fallbackResult(original),
			wantErr: true,
		},
		{
			name:    "empty string",
			raw:     "",
			want:    fallbackResult(original),
			wantErr: true,
		},
		{
			name:    "truncated json",
			raw:     `{"corrected_sentence": "Hello, how are`,
			want:    fallbackResult(original),
			wantErr: true,
		},
		{
			name:    "fence around garbage",
			raw:     "```json\nnot actually json\n```",
			want:    fallbackResult(original),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Interpret(tt.raw, original)
			if tt.wantErr {
				if err == nil {
					t.Fatal("want error, got nil")
				}
				if !errors.Is(err, ErrMalformedResponse) {
					t.Errorf("error = %v, want ErrMalformedResponse", err)
				}
			} else if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("Interpret() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestInterpretAlwaysPopulatesAllFields(t *testing.T) {
	inputs := []string{
		"", "null", "[]", "42", `"a string"`, "{}",
		"``````", "```json```", strings.Repeat("x", 10_000),
	}
	for _, raw := range inputs {
		got, _ := Interpret(raw, "original text")
		if got.CorrectedSentence == "" {
			t.Errorf("input %.20q: empty CorrectedSentence", raw)
		}
		if got.ConversationalReply == "" {
			t.Errorf("input %.20q: empty ConversationalReply", raw)
		}
	}
}

func TestDeliveredMessage(t *testing.T) {
	tests := []struct {
		name   string
		result TurnResult
		want   string
	}{
		{
			name: "errors with explanation",
			result: TurnResult{
				HasErrors:           true,
				Explanation:         "We say 'how are you?'.",
				ConversationalReply: "I'm doing well!",
			},
			want: "We say 'how are you?'. I'm doing well!",
		},
		{
			name: "no errors",
			result: TurnResult{
				HasErrors:           false,
				ConversationalReply: "Great topic!",
			},
			want: "That's perfectly said! Great topic!",
		},
		{
			name: "errors but empty explanation",
			result: TurnResult{
				HasErrors:           true,
				ConversationalReply: "Let's continue.",
			},
			want: "That's perfectly said! Let's continue.",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.result.DeliveredMessage(); got != tt.want {
				t.Errorf("DeliveredMessage() = %q, want %q", got, tt.want)
			}
		})
	}
}
