package tutor

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/lingotutor/lingotutor/internal/observe"
	"github.com/lingotutor/lingotutor/pkg/provider/llm"
	"github.com/lingotutor/lingotutor/pkg/provider/tts"
)

// Fixed session utterances.
const (
	// GreetingMessage opens every session.
	GreetingMessage = "Hello! I'm Alex, your English tutor. Let's start our conversation. You can talk about anything you'd like!"

	// RepromptMessage is delivered when input capture yields nothing usable.
	RepromptMessage = "Sorry, I didn't catch that. Could you please say it again?"

	// FarewellMessage closes a session ended by an exit phrase.
	FarewellMessage = "It was great practicing with you! Keep up the excellent work. Goodbye!"

	// InterruptFarewellMessage closes a session ended by a user interrupt.
	InterruptFarewellMessage = "Session ended. Great job today!"
)

// Completion-request defaults. Grammar correction must be consistent, not
// creative, so the temperature stays low.
const (
	DefaultTemperature    = 0.3
	DefaultMaxTokens      = 500
	DefaultRequestTimeout = 30 * time.Second
)

// exitPhrases are the inputs that end a session, matched case-insensitively
// after trimming.
var exitPhrases = map[string]struct{}{
	"exit":    {},
	"quit":    {},
	"bye":     {},
	"goodbye": {},
	"stop":    {},
}

// ShouldClose reports whether the trimmed, lower-cased input exactly matches
// one of the fixed exit phrases.
func ShouldClose(rawUserText string) bool {
	_, ok := exitPhrases[strings.ToLower(strings.TrimSpace(rawUserText))]
	return ok
}

// State is the session lifecycle state.
type State int

const (
	// StateIdle is the state before Start.
	StateIdle State = iota
	// StateAwaitingInput means no turn is in flight.
	StateAwaitingInput
	// StateDispatching means a prompt has been sent to the completion provider.
	StateDispatching
	// StateInterpreting means a raw response is being parsed.
	StateInterpreting
	// StateDelivering means the reply is being spoken and recorded.
	StateDelivering
	// StateClosed is terminal; no further operations are valid.
	StateClosed
)

// String implements fmt.Stringer for logging.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingInput:
		return "awaiting_input"
	case StateDispatching:
		return "dispatching"
	case StateInterpreting:
		return "interpreting"
	case StateDelivering:
		return "delivering"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// ErrSessionClosed is returned when an operation is attempted on a closed
// session.
var ErrSessionClosed = errors.New("tutor: session is closed")

// Session orchestrates one tutoring conversation: turn acquisition, prompt
// construction, completion dispatch, response interpretation, history update,
// and reply delivery.
//
// A Session is driven from a single goroutine; turns are processed strictly
// in submission order. Concurrent conversations use independent Sessions.
type Session struct {
	id      string
	llm     llm.Provider
	speech  tts.Provider
	history *History
	prompt  *PromptBuilder
	log     *slog.Logger
	metrics *observe.Metrics

	systemPrompt   string
	temperature    float64
	maxTokens      int
	requestTimeout time.Duration

	state State
}

// Option is a functional option for configuring a Session.
type Option func(*Session)

// WithSpeech attaches a speech-output provider. Replies are spoken
// best-effort; playback failures are logged and swallowed. Without this
// option the session is text-only.
func WithSpeech(p tts.Provider) Option {
	return func(s *Session) { s.speech = p }
}

// WithLogger sets the session logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.log = l
		}
	}
}

// WithMetrics sets the metrics instance. Defaults to observe.DefaultMetrics().
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Session) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithID sets the session id. Defaults to a random UUID. The web backend
// uses this to resume a session under a client-supplied id.
func WithID(id string) Option {
	return func(s *Session) {
		if id != "" {
			s.id = id
		}
	}
}

// WithHistoryLimit bounds the conversation history to n turns.
func WithHistoryLimit(n int) Option {
	return func(s *Session) {
		if n > 0 {
			s.history = NewHistory(n, s.systemPrompt)
		}
	}
}

// WithContextTurns configures how many recent exchanges are sent to the
// completion provider as context. Zero sends none.
func WithContextTurns(n int) Option {
	return func(s *Session) { s.prompt = NewPromptBuilder(WithExchangeContext(n)) }
}

// WithTemperature overrides the sampling temperature.
func WithTemperature(t float64) Option {
	return func(s *Session) {
		if t > 0 {
			s.temperature = t
		}
	}
}

// WithMaxTokens overrides the completion token budget.
func WithMaxTokens(n int) Option {
	return func(s *Session) {
		if n > 0 {
			s.maxTokens = n
		}
	}
}

// WithRequestTimeout bounds each completion-provider call. Expiry is treated
// as a provider-communication failure, not a fatal error.
func WithRequestTimeout(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.requestTimeout = d
		}
	}
}

// NewSession creates a Session backed by the given completion provider.
func NewSession(provider llm.Provider, opts ...Option) (*Session, error) {
	if provider == nil {
		return nil, errors.New("tutor: completion provider must not be nil")
	}
	s := &Session{
		id:             uuid.NewString(),
		llm:            provider,
		log:            slog.Default(),
		metrics:        observe.DefaultMetrics(),
		systemPrompt:   SystemPrompt,
		temperature:    DefaultTemperature,
		maxTokens:      DefaultMaxTokens,
		requestTimeout: DefaultRequestTimeout,
		prompt:         NewPromptBuilder(),
		state:          StateIdle,
	}
	for _, o := range opts {
		o(s)
	}
	if s.history == nil {
		s.history = NewHistory(DefaultHistoryLimit, s.systemPrompt)
	}
	return s, nil
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// History returns the session's conversation history. The session retains
// exclusive write ownership; callers use it for persistence and inspection.
func (s *Session) History() *History { return s.history }

// State returns the current lifecycle state.
func (s *Session) State() State { return s.state }

// Start transitions the session to accepting input and delivers the
// greeting. It returns the greeting text for display. Calling Start twice is
// not supported.
func (s *Session) Start(ctx context.Context) string {
	s.state = StateAwaitingInput
	s.metrics.ActiveSessions.Add(ctx, 1)
	s.log.Info("session started", "session_id", s.id)
	s.deliver(ctx, GreetingMessage)
	return GreetingMessage
}

// ProcessTurn runs one full tutoring turn for rawUserText: it builds the
// prompt, calls the completion provider under the configured timeout,
// interprets the response, records both turns in the history, and delivers
// the reply.
//
// Provider and parse failures never propagate; they degrade to the fallback
// apology result and the session returns to accepting input. The only error
// returned is ErrSessionClosed.
func (s *Session) ProcessTurn(ctx context.Context, rawUserText string) (TurnResult, error) {
	if s.state == StateClosed {
		return TurnResult{}, ErrSessionClosed
	}

	start := time.Now()
	ctx, span := observe.StartTurnSpan(ctx, s.id)
	defer span.End()

	s.state = StateDispatching
	messages := s.prompt.Build(s.history.Snapshot(), rawUserText)

	result := s.dispatch(ctx, rawUserText, messages)

	s.state = StateDelivering
	s.history.Append(Turn{Speaker: SpeakerUser, Text: rawUserText})
	s.history.Append(Turn{
		Speaker: SpeakerAssistant,
		Text:    result.ConversationalReply,
		Meta:    result.Correction(),
	})

	s.deliver(ctx, result.DeliveredMessage())

	observe.MarkTurnOutcome(span, result.HasErrors)
	s.metrics.TurnDuration.Record(ctx, time.Since(start).Seconds())
	s.metrics.RecordCorrection(ctx, result.HasErrors)

	s.state = StateAwaitingInput
	return result, nil
}

// dispatch calls the completion provider and interprets its response,
// converting every failure into the fallback result.
func (s *Session) dispatch(ctx context.Context, rawUserText string, messages []llm.Message) TurnResult {
	cctx, cancel := context.WithTimeout(ctx, s.requestTimeout)
	defer cancel()

	llmStart := time.Now()
	resp, err := s.llm.Complete(cctx, llm.CompletionRequest{
		SystemPrompt: s.systemPrompt,
		Messages:     messages,
		Temperature:  s.temperature,
		MaxTokens:    s.maxTokens,
	})
	s.metrics.LLMDuration.Record(ctx, time.Since(llmStart).Seconds())

	if err != nil {
		s.log.Warn("completion provider failed, using fallback reply",
			"session_id", s.id, "error", err)
		s.metrics.RecordProviderError(ctx, "llm", "completion")
		return fallbackResult(rawUserText)
	}
	s.metrics.RecordProviderRequest(ctx, "llm", "completion", "ok")

	s.state = StateInterpreting
	result, err := Interpret(resp.Content, rawUserText)
	if err != nil {
		s.log.Warn("provider response malformed, using fallback reply",
			"session_id", s.id, "error", err)
	}
	return result
}

// HandleEmptyInput delivers the fixed re-prompt without calling the
// completion provider or touching the history, and returns the re-prompt
// text for display.
func (s *Session) HandleEmptyInput(ctx context.Context) string {
	s.deliver(ctx, RepromptMessage)
	return RepromptMessage
}

// ShouldClose reports whether rawUserText is an exit phrase.
func (s *Session) ShouldClose(rawUserText string) bool {
	return ShouldClose(rawUserText)
}

// Close delivers the farewell and transitions to the terminal state. No
// further operations are valid afterwards. Returns the farewell text, or ""
// when the session was already closed.
func (s *Session) Close(ctx context.Context) string {
	return s.closeWith(ctx, FarewellMessage)
}

// CloseInterrupted is the close path for a user interrupt (Ctrl-C): same
// terminal transition, different farewell.
func (s *Session) CloseInterrupted(ctx context.Context) string {
	return s.closeWith(ctx, InterruptFarewellMessage)
}

func (s *Session) closeWith(ctx context.Context, farewell string) string {
	if s.state == StateClosed {
		return ""
	}
	s.deliver(ctx, farewell)
	s.state = StateClosed
	s.metrics.ActiveSessions.Add(ctx, -1)
	s.log.Info("session closed", "session_id", s.id, "turns", s.history.Len())
	return farewell
}

// deliver speaks text through the speech provider when one is attached.
// Playback failures are logged and swallowed; the turn is never lost to a
// speech error.
func (s *Session) deliver(ctx context.Context, text string) {
	if s.speech == nil {
		return
	}
	start := time.Now()
	if err := s.speech.Speak(ctx, text); err != nil {
		s.log.Warn("speech playback failed", "session_id", s.id, "error", err)
		s.metrics.RecordProviderError(ctx, "tts", "speak")
	}
	s.metrics.TTSDuration.Record(ctx, time.Since(start).Seconds(),
		metric.WithAttributes(attribute.Int("text.length", len(text))),
	)
}
