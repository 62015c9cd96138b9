package store_test

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/google/uuid"

	"github.com/lingotutor/lingotutor/internal/store"
)

// testDSN returns the test database DSN from the environment, or skips the
// test if LINGOTUTOR_TEST_POSTGRES_DSN is not set.
func testDSN(t *testing.T) string {
	t.Helper()
	dsn := os.Getenv("LINGOTUTOR_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("LINGOTUTOR_TEST_POSTGRES_DSN not set — skipping PostgreSQL integration tests")
	}
	return dsn
}

// newTestStore creates a migrated [store.Store] against the test database.
func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	ctx := context.Background()

	st, err := store.New(ctx, testDSN(t))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(st.Close)

	if err := st.Migrate(ctx); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	return st
}

func TestAppendAndListBySession(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	sessionID := uuid.NewString()

	for i := 0; i < 3; i++ {
		e := &store.Exchange{
			SessionID:         sessionID,
			UserMessage:       fmt.Sprintf("message %d", i),
			InputMethod:       "text",
			CorrectedSentence: fmt.Sprintf("corrected %d", i),
			HasErrors:         i%2 == 0,
			Explanation:       "because",
			AIResponse:        fmt.Sprintf("reply %d", i),
		}
		if err := st.Append(ctx, e); err != nil {
			t.Fatalf("Append %d: %v", i, err)
		}
		if e.ID == 0 {
			t.Errorf("Append %d: id not written back", i)
		}
		if e.Timestamp.IsZero() {
			t.Errorf("Append %d: timestamp not written back", i)
		}
	}

	got, err := st.ListBySession(ctx, sessionID, 0)
	if err != nil {
		t.Fatalf("ListBySession: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	for i, e := range got {
		if e.UserMessage != fmt.Sprintf("message %d", i) {
			t.Errorf("row %d out of order: %q", i, e.UserMessage)
		}
	}
}

func TestListRecentReturnsTailInOrder(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	sessionID := uuid.NewString()

	for i := 0; i < 8; i++ {
		e := &store.Exchange{
			SessionID:   sessionID,
			UserMessage: fmt.Sprintf("message %d", i),
			InputMethod: "text",
			AIResponse:  fmt.Sprintf("reply %d", i),
		}
		if err := st.Append(ctx, e); err != nil {
			t.Fatalf("Append %d: %v", i, err)
		}
	}

	got, err := st.ListRecent(ctx, sessionID, 5)
	if err != nil {
		t.Fatalf("ListRecent: %v", err)
	}
	if len(got) != 5 {
		t.Fatalf("len = %d, want 5", len(got))
	}
	// The five most recent rows, oldest first.
	for i, e := range got {
		want := fmt.Sprintf("message %d", i+3)
		if e.UserMessage != want {
			t.Errorf("row %d = %q, want %q", i, e.UserMessage, want)
		}
	}
}

func TestDeleteSession(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	keep := uuid.NewString()
	drop := uuid.NewString()

	for _, sid := range []string{keep, drop, drop} {
		e := &store.Exchange{SessionID: sid, UserMessage: "m", InputMethod: "text"}
		if err := st.Append(ctx, e); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	n, err := st.DeleteSession(ctx, drop)
	if err != nil {
		t.Fatalf("DeleteSession: %v", err)
	}
	if n != 2 {
		t.Errorf("deleted %d rows, want 2", n)
	}

	remaining, err := st.ListBySession(ctx, keep, 0)
	if err != nil {
		t.Fatalf("ListBySession: %v", err)
	}
	if len(remaining) != 1 {
		t.Errorf("other session affected: len = %d, want 1", len(remaining))
	}

	gone, err := st.ListBySession(ctx, drop, 0)
	if err != nil {
		t.Fatalf("ListBySession: %v", err)
	}
	if len(gone) != 0 {
		t.Errorf("deleted session still has %d rows", len(gone))
	}
}
