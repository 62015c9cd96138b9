package web

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/lingotutor/lingotutor/internal/store"
	"github.com/lingotutor/lingotutor/internal/tutor"
)

// messageRequest is the POST /api/v1/messages payload.
type messageRequest struct {
	// Message is the user's text. For voice input the browser transcribes
	// before submitting, so this is always text.
	Message string `json:"message"`

	// InputMethod records how the user entered the message: "text" or
	// "voice". Defaults to "text".
	InputMethod string `json:"input_method"`

	// SessionID resumes an existing conversation. When empty a new session
	// id is generated and returned.
	SessionID string `json:"session_id"`
}

// messageResponse is the POST /api/v1/messages reply.
type messageResponse struct {
	Success           bool   `json:"success"`
	SessionID         string `json:"session_id"`
	Transcription     string `json:"transcription"`
	AIResponse        string `json:"ai_response"`
	CorrectedSentence string `json:"corrected_sentence"`
	HasErrors         bool   `json:"has_errors"`
	Explanation       string `json:"explanation"`
	MessageID         int64  `json:"message_id"`
}

// writeJSON writes v as a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error body with the given status code.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// processMessage handles POST /api/v1/messages: it runs one tutoring turn
// for the submitted text and persists the exchange.
func (s *Server) processMessage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req messageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON data")
		return
	}

	message := strings.TrimSpace(req.Message)
	if message == "" {
		writeError(w, http.StatusBadRequest, "Message cannot be empty")
		return
	}
	inputMethod := req.InputMethod
	if inputMethod == "" {
		inputMethod = "text"
	}
	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	session, err := s.newSession(ctx, sessionID)
	if err != nil {
		s.log.Error("session setup failed", "session_id", sessionID, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to process message")
		return
	}

	// Provider failures degrade to the apology result inside the core; the
	// only error here is a closed session, which cannot happen for a fresh
	// one.
	result, err := session.ProcessTurn(ctx, message)
	if err != nil {
		s.log.Error("turn processing failed", "session_id", sessionID, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to process message")
		return
	}

	exchange := &store.Exchange{
		SessionID:         sessionID,
		UserMessage:       message,
		InputMethod:       inputMethod,
		CorrectedSentence: result.CorrectedSentence,
		HasErrors:         result.HasErrors,
		Explanation:       result.Explanation,
		AIResponse:        result.ConversationalReply,
	}
	if err := s.store.Append(ctx, exchange); err != nil {
		s.log.Error("failed to persist exchange", "session_id", sessionID, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to save message")
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{
		Success:           true,
		SessionID:         sessionID,
		Transcription:     message,
		AIResponse:        result.ConversationalReply,
		CorrectedSentence: result.CorrectedSentence,
		HasErrors:         result.HasErrors,
		Explanation:       result.Explanation,
		MessageID:         exchange.ID,
	})
}

// newSession builds a tutoring session for one request, seeded with the
// session's recent exchanges so the completion provider sees conversation
// context. A failed context read degrades to an empty history.
func (s *Server) newSession(ctx context.Context, sessionID string) (*tutor.Session, error) {
	opts := []tutor.Option{
		tutor.WithID(sessionID),
		tutor.WithLogger(s.log),
		tutor.WithMetrics(s.metrics),
		tutor.WithContextTurns(s.contextTurns),
	}
	if s.historyLimit > 0 {
		opts = append(opts, tutor.WithHistoryLimit(s.historyLimit))
	}
	if s.requestTimeout > 0 {
		opts = append(opts, tutor.WithRequestTimeout(s.requestTimeout))
	}
	if s.temperature > 0 {
		opts = append(opts, tutor.WithTemperature(s.temperature))
	}
	if s.maxTokens > 0 {
		opts = append(opts, tutor.WithMaxTokens(s.maxTokens))
	}

	session, err := tutor.NewSession(s.llm, opts...)
	if err != nil {
		return nil, err
	}

	if s.contextTurns > 0 {
		recent, err := s.store.ListRecent(ctx, sessionID, s.contextTurns)
		if err != nil {
			s.log.Warn("failed to load conversation context", "session_id", sessionID, "error", err)
		}
		for _, e := range recent {
			session.History().Append(tutor.Turn{Speaker: tutor.SpeakerUser, Text: e.UserMessage})
			session.History().Append(tutor.Turn{Speaker: tutor.SpeakerAssistant, Text: e.AIResponse})
		}
	}
	return session, nil
}

// listMessages handles GET /api/v1/sessions/{sessionID}/messages: all
// exchanges for the session, timestamp ascending.
func (s *Server) listMessages(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	exchanges, err := s.store.ListBySession(r.Context(), sessionID, 0)
	if err != nil {
		s.log.Error("failed to list messages", "session_id", sessionID, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to load chat history")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": sessionID,
		"messages":   exchanges,
	})
}

// clearHistory handles DELETE /api/v1/sessions/{sessionID}/messages.
func (s *Server) clearHistory(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	deleted, err := s.store.DeleteSession(r.Context(), sessionID)
	if err != nil {
		s.log.Error("failed to clear history", "session_id", sessionID, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to clear chat history")
		return
	}
	s.log.Info("cleared chat history", "session_id", sessionID, "deleted", deleted)

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"deleted": deleted,
	})
}
