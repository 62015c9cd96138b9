package tutor

import (
	"strings"
	"testing"
)

func TestPromptBuilderStateless(t *testing.T) {
	b := NewPromptBuilder()
	history := []Turn{
		{Speaker: SpeakerSystem, Text: "sys"},
		{Speaker: SpeakerUser, Text: "earlier question"},
		{Speaker: SpeakerAssistant, Text: "earlier answer"},
	}

	messages := b.Build(history, "How is you?")
	if len(messages) != 1 {
		t.Fatalf("len(messages) = %d, want 1 (stateless builder must ignore history)", len(messages))
	}
	if messages[0].Role != "user" {
		t.Errorf("role = %q, want user", messages[0].Role)
	}
	if !strings.Contains(messages[0].Content, `USER'S MESSAGE: "How is you?"`) {
		t.Errorf("final message missing embedded user text:\n%s", messages[0].Content)
	}
	if !strings.Contains(messages[0].Content, "EXAMPLES:") {
		t.Error("final message missing few-shot examples")
	}
}

func TestPromptBuilderWithContext(t *testing.T) {
	b := NewPromptBuilder(WithExchangeContext(2))
	history := []Turn{
		{Speaker: SpeakerSystem, Text: "sys"},
		{Speaker: SpeakerUser, Text: "q1"},
		{Speaker: SpeakerAssistant, Text: "a1"},
		{Speaker: SpeakerUser, Text: "q2"},
		{Speaker: SpeakerAssistant, Text: "a2"},
		{Speaker: SpeakerUser, Text: "q3"},
		{Speaker: SpeakerAssistant, Text: "a3"},
	}

	messages := b.Build(history, "new input")

	// 2 exchanges of context (4 messages) plus the final user message.
	if len(messages) != 5 {
		t.Fatalf("len(messages) = %d, want 5", len(messages))
	}
	wantContext := []struct{ role, content string }{
		{"user", "q2"},
		{"assistant", "a2"},
		{"user", "q3"},
		{"assistant", "a3"},
	}
	for i, want := range wantContext {
		if messages[i].Role != want.role || messages[i].Content != want.content {
			t.Errorf("messages[%d] = {%s %q}, want {%s %q}",
				i, messages[i].Role, messages[i].Content, want.role, want.content)
		}
	}
	for _, m := range messages {
		if m.Role == "system" {
			t.Error("system turn leaked into context messages")
		}
	}
	last := messages[len(messages)-1]
	if !strings.Contains(last.Content, `USER'S MESSAGE: "new input"`) {
		t.Errorf("final message missing embedded user text:\n%s", last.Content)
	}
}

func TestPromptBuilderShortHistory(t *testing.T) {
	b := NewPromptBuilder(WithExchangeContext(5))
	history := []Turn{
		{Speaker: SpeakerUser, Text: "only one"},
	}
	messages := b.Build(history, "new input")
	if len(messages) != 2 {
		t.Fatalf("len(messages) = %d, want 2", len(messages))
	}
	if messages[0].Content != "only one" {
		t.Errorf("context message = %q, want %q", messages[0].Content, "only one")
	}
}
