package tutor

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// DefaultHistoryLimit is the default upper bound on stored turns, system
// turn included.
const DefaultHistoryLimit = 20

// History is the bounded, ordered record of one conversation's turns.
//
// When a system turn is set at construction it is pinned at index 0 and never
// evicted; appends beyond the limit evict the oldest non-system turns first,
// dropping exactly enough to satisfy the bound. History is not safe for
// concurrent use — each session owns its history exclusively.
type History struct {
	turns []Turn
	limit int
}

// NewHistory creates a History bounded to limit turns. A non-empty
// systemPrompt is stored as a pinned system turn at index 0 and counts
// against the limit. Non-positive limits fall back to DefaultHistoryLimit.
func NewHistory(limit int, systemPrompt string) *History {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	h := &History{limit: limit}
	if systemPrompt != "" {
		h.turns = append(h.turns, Turn{Speaker: SpeakerSystem, Text: systemPrompt})
	}
	return h
}

// Append adds a turn at the end and enforces the bound. It never fails.
func (h *History) Append(t Turn) {
	h.turns = append(h.turns, t)
	h.trim()
}

// trim drops the oldest non-system turns until the bound holds.
func (h *History) trim() {
	if len(h.turns) <= h.limit {
		return
	}
	start := 0
	if h.turns[0].Speaker == SpeakerSystem {
		start = 1
	}
	keep := h.limit - start
	if keep < 0 {
		keep = 0
	}
	kept := make([]Turn, 0, h.limit)
	kept = append(kept, h.turns[:start]...)
	kept = append(kept, h.turns[len(h.turns)-keep:]...)
	h.turns = kept
}

// Len returns the number of stored turns, system turn included.
func (h *History) Len() int { return len(h.turns) }

// Limit returns the configured upper bound.
func (h *History) Limit() int { return h.limit }

// Snapshot returns a copy of the current turn sequence in order. Later
// mutations of the history do not affect the returned slice, and vice versa.
func (h *History) Snapshot() []Turn {
	out := make([]Turn, len(h.turns))
	for i, t := range h.turns {
		out[i] = t
		if t.Meta != nil {
			meta := *t.Meta
			out[i].Meta = &meta
		}
	}
	return out
}

// storedTurn is the persisted wire form of a turn: speaker and text only,
// matching the payload sent to the completion provider.
type storedTurn struct {
	Speaker Speaker `json:"speaker"`
	Text    string  `json:"text"`
}

// Save serialises the turn sequence as an ordered JSON list of
// {speaker, text} records.
func (h *History) Save(w io.Writer) error {
	records := make([]storedTurn, len(h.turns))
	for i, t := range h.turns {
		records[i] = storedTurn{Speaker: t.Speaker, Text: t.Text}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(records); err != nil {
		return fmt.Errorf("tutor: save history: %w", err)
	}
	return nil
}

// Load replaces the turn sequence with the records read from r. On any read
// or decode failure the history keeps its prior state and the error is
// returned for the caller to log; a failed load is never fatal.
func (h *History) Load(r io.Reader) error {
	var records []storedTurn
	if err := json.NewDecoder(r).Decode(&records); err != nil {
		return fmt.Errorf("tutor: load history: %w", err)
	}
	turns := make([]Turn, len(records))
	for i, rec := range records {
		turns[i] = Turn{Speaker: rec.Speaker, Text: rec.Text}
	}
	h.turns = turns
	h.trim()
	return nil
}

// SaveFile writes the history to path, creating or truncating the file.
func (h *History) SaveFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("tutor: save history file: %w", err)
	}
	defer f.Close()
	if err := h.Save(f); err != nil {
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("tutor: save history file: %w", err)
	}
	return nil
}

// LoadFile restores the history from path. A missing file leaves the history
// untouched and returns an error wrapping [os.ErrNotExist], which callers
// typically log at debug level and otherwise ignore.
func (h *History) LoadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("tutor: load history file: %w", err)
	}
	defer f.Close()
	return h.Load(f)
}
