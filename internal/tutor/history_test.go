package tutor

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
)

func TestHistoryBoundHolds(t *testing.T) {
	h := NewHistory(5, "be helpful")
	for i := 0; i < 50; i++ {
		h.Append(Turn{Speaker: SpeakerUser, Text: fmt.Sprintf("msg %d", i)})
		if h.Len() > 5 {
			t.Fatalf("after append %d: len = %d, want <= 5", i, h.Len())
		}
		if got := h.Snapshot()[0]; got.Speaker != SpeakerSystem {
			t.Fatalf("after append %d: turns[0].Speaker = %q, want system", i, got.Speaker)
		}
	}
}

func TestHistoryEvictionOldestFirst(t *testing.T) {
	h := NewHistory(4, "sys")
	for i := 1; i <= 6; i++ {
		h.Append(Turn{Speaker: SpeakerUser, Text: fmt.Sprintf("t%d", i)})
	}

	// Limit 4 with a pinned system turn keeps the 3 most recent turns.
	want := []string{"sys", "t4", "t5", "t6"}
	got := h.Snapshot()
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i, text := range want {
		if got[i].Text != text {
			t.Errorf("turns[%d].Text = %q, want %q", i, got[i].Text, text)
		}
	}
}

func TestHistoryNoSystemTurn(t *testing.T) {
	h := NewHistory(3, "")
	for i := 1; i <= 5; i++ {
		h.Append(Turn{Speaker: SpeakerUser, Text: fmt.Sprintf("t%d", i)})
	}
	got := h.Snapshot()
	want := []string{"t3", "t4", "t5"}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i, text := range want {
		if got[i].Text != text {
			t.Errorf("turns[%d].Text = %q, want %q", i, got[i].Text, text)
		}
	}
}

func TestHistorySnapshotIsIsolated(t *testing.T) {
	h := NewHistory(10, "sys")
	h.Append(Turn{Speaker: SpeakerUser, Text: "hello", Meta: nil})
	h.Append(Turn{
		Speaker: SpeakerAssistant,
		Text:    "hi",
		Meta:    &Correction{CorrectedSentence: "hello", HasErrors: false},
	})

	snap := h.Snapshot()
	snap[0].Text = "mutated"
	snap[2].Meta.CorrectedSentence = "mutated"

	fresh := h.Snapshot()
	if fresh[0].Text != "sys" {
		t.Errorf("store text mutated through snapshot: %q", fresh[0].Text)
	}
	if fresh[2].Meta.CorrectedSentence != "hello" {
		t.Errorf("store meta mutated through snapshot: %q", fresh[2].Meta.CorrectedSentence)
	}
}

func TestHistorySaveLoadRoundTrip(t *testing.T) {
	h := NewHistory(10, "sys")
	h.Append(Turn{Speaker: SpeakerUser, Text: "how is you?"})
	h.Append(Turn{Speaker: SpeakerAssistant, Text: "I'm doing well!"})

	var buf bytes.Buffer
	if err := h.Save(&buf); err != nil {
		t.Fatalf("Save: %v", err)
	}

	restored := NewHistory(10, "")
	if err := restored.Load(&buf); err != nil {
		t.Fatalf("Load: %v", err)
	}

	orig, got := h.Snapshot(), restored.Snapshot()
	if len(got) != len(orig) {
		t.Fatalf("restored len = %d, want %d", len(got), len(orig))
	}
	for i := range orig {
		if got[i].Speaker != orig[i].Speaker || got[i].Text != orig[i].Text {
			t.Errorf("turn %d = {%s %q}, want {%s %q}",
				i, got[i].Speaker, got[i].Text, orig[i].Speaker, orig[i].Text)
		}
	}
}

func TestHistoryLoadCorruptKeepsPriorState(t *testing.T) {
	h := NewHistory(10, "sys")
	h.Append(Turn{Speaker: SpeakerUser, Text: "keep me"})

	if err := h.Load(strings.NewReader("{not json")); err == nil {
		t.Fatal("Load on corrupt input: want error, got nil")
	}
	snap := h.Snapshot()
	if len(snap) != 2 || snap[1].Text != "keep me" {
		t.Errorf("history changed after failed load: %+v", snap)
	}
}

func TestHistoryLoadFileMissing(t *testing.T) {
	h := NewHistory(10, "sys")
	h.Append(Turn{Speaker: SpeakerUser, Text: "keep me"})

	if err := h.LoadFile(filepath.Join(t.TempDir(), "nope.json")); err == nil {
		t.Fatal("LoadFile on missing path: want error, got nil")
	}
	if h.Len() != 2 {
		t.Errorf("history changed after failed file load: len = %d", h.Len())
	}
}

func TestHistorySaveFileLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.json")

	h := NewHistory(10, "sys")
	h.Append(Turn{Speaker: SpeakerUser, Text: "hello"})
	if err := h.SaveFile(path); err != nil {
		t.Fatalf("SaveFile: %v", err)
	}

	restored := NewHistory(10, "")
	if err := restored.LoadFile(path); err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if restored.Len() != 2 {
		t.Fatalf("restored len = %d, want 2", restored.Len())
	}
	if got := restored.Snapshot()[1].Text; got != "hello" {
		t.Errorf("restored turn text = %q, want %q", got, "hello")
	}
}
