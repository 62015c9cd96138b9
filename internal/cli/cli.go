// Package cli runs the interactive terminal tutoring loop: the user picks
// voice or text input per turn, utterances are transcribed when needed, and
// each turn flows through the tutoring session. Replies are printed and,
// when the session carries a speech provider, spoken.
package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lingotutor/lingotutor/internal/observe"
	"github.com/lingotutor/lingotutor/internal/tutor"
	"github.com/lingotutor/lingotutor/pkg/audio"
	"github.com/lingotutor/lingotutor/pkg/provider/stt"
)

// Fixed terminal prompts.
const (
	welcomeBanner = "Welcome to Alex - Your Personal English Tutor!"

	modePrompt = "How would you like to communicate?\n" +
		"1. Voice (speak)\n" +
		"2. Text (type)\n" +
		"Choose (1 or 2): "

	recordStartPrompt = "Press ENTER to start recording (or Ctrl+C to cancel)..."
	recordStopPrompt  = "Recording... Press ENTER again to stop."
	textPrompt        = "Type your message: "
)

// SourceFactory opens a fresh audio capture source. A new source is opened
// per recording because capture commands are single-shot.
type SourceFactory func(ctx context.Context) (audio.Source, error)

// App is the interactive terminal front end over a tutoring session.
type App struct {
	session *tutor.Session
	log     *slog.Logger
	metrics *observe.Metrics

	in  *bufio.Reader
	out io.Writer

	transcriber stt.Provider
	newSource   SourceFactory
	sampleRate  int
	channels    int

	historyFile string
}

// Option is a functional option for App.
type Option func(*App)

// WithLogger sets the app logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(a *App) {
		if l != nil {
			a.log = l
		}
	}
}

// WithMetrics sets the metrics instance. Defaults to observe.DefaultMetrics().
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) {
		if m != nil {
			a.metrics = m
		}
	}
}

// WithInput sets the reader user input is taken from. Defaults to os.Stdin.
func WithInput(r io.Reader) Option {
	return func(a *App) {
		if r != nil {
			a.in = bufio.NewReader(r)
		}
	}
}

// WithOutput sets the writer prompts and replies are printed to. Defaults to
// os.Stdout.
func WithOutput(w io.Writer) Option {
	return func(a *App) {
		if w != nil {
			a.out = w
		}
	}
}

// WithTranscriber enables the voice input path. Without it, choosing voice
// falls back to text input.
func WithTranscriber(p stt.Provider) Option {
	return func(a *App) { a.transcriber = p }
}

// WithAudioSource sets how capture sources are opened for voice input.
func WithAudioSource(f SourceFactory) Option {
	return func(a *App) { a.newSource = f }
}

// WithCaptureFormat sets the PCM format the capture source produces. Zero
// values default to 16 kHz mono.
func WithCaptureFormat(sampleRate, channels int) Option {
	return func(a *App) {
		a.sampleRate = sampleRate
		a.channels = channels
	}
}

// WithHistoryFile persists the conversation history to path on session end
// and restores it on start. A missing or corrupt file is logged and ignored.
func WithHistoryFile(path string) Option {
	return func(a *App) { a.historyFile = path }
}

// NewApp creates the terminal front end for session.
func NewApp(session *tutor.Session, opts ...Option) (*App, error) {
	if session == nil {
		return nil, errors.New("cli: session must not be nil")
	}
	a := &App{
		session:    session,
		log:        slog.Default(),
		metrics:    observe.DefaultMetrics(),
		in:         bufio.NewReader(os.Stdin),
		out:        os.Stdout,
		sampleRate: audio.DefaultSampleRate,
		channels:   1,
	}
	for _, o := range opts {
		o(a)
	}
	return a, nil
}

// Run drives the conversation loop until the user says an exit phrase, input
// ends, or ctx is cancelled. It restores the history file before the first
// turn and saves it on every exit path.
func (a *App) Run(ctx context.Context) error {
	a.restoreHistory()
	defer a.saveHistory()

	fmt.Fprintln(a.out, welcomeBanner)
	a.say(a.session.Start(ctx))

	for {
		select {
		case <-ctx.Done():
			a.say(a.session.CloseInterrupted(ctx))
			return nil
		default:
		}

		userText, err := a.readInput(ctx)
		if err != nil {
			// Input ended (EOF or Ctrl-C while reading): close like a
			// user interrupt rather than dropping the session silently.
			a.say(a.session.CloseInterrupted(ctx))
			return nil
		}

		if userText == "" {
			a.say(a.session.HandleEmptyInput(ctx))
			continue
		}
		if a.session.ShouldClose(userText) {
			a.say(a.session.Close(ctx))
			return nil
		}

		result, err := a.session.ProcessTurn(ctx, userText)
		if err != nil {
			return fmt.Errorf("cli: process turn: %w", err)
		}
		a.say(result.DeliveredMessage())
	}
}

// readInput asks for the input mode and returns the user's next utterance,
// trimmed. Empty input is a valid return; the caller re-prompts.
func (a *App) readInput(ctx context.Context) (string, error) {
	fmt.Fprintln(a.out, "\n"+strings.Repeat("=", 50))
	fmt.Fprint(a.out, modePrompt)

	choice, err := a.readLine()
	if err != nil {
		return "", err
	}
	if choice == "1" {
		return a.voiceInput(ctx)
	}
	return a.textInput()
}

// textInput reads one typed message.
func (a *App) textInput() (string, error) {
	fmt.Fprint(a.out, "\n"+textPrompt)
	return a.readLine()
}

// voiceInput records one utterance and transcribes it. Capture or
// transcription failures are logged and yield empty input, so the session
// re-prompts instead of aborting.
func (a *App) voiceInput(ctx context.Context) (string, error) {
	if a.transcriber == nil || a.newSource == nil {
		fmt.Fprintln(a.out, "\nVoice input is not configured; please type instead.")
		return a.textInput()
	}

	fmt.Fprintln(a.out, "\n"+recordStartPrompt)
	if _, err := a.readLine(); err != nil {
		return "", err
	}

	source, err := a.newSource(ctx)
	if err != nil {
		a.log.Error("failed to open capture source", "error", err)
		return "", nil
	}

	recorder := audio.NewRecorder(source, a.sampleRate, a.channels)
	recorder.Start(ctx)

	fmt.Fprintln(a.out, recordStopPrompt)
	if _, err := a.readLine(); err != nil {
		// Stop anyway so the capture process is reaped.
		recorder.Stop()
		return "", err
	}

	sample, err := recorder.Stop()
	if err != nil {
		a.log.Warn("capture device error, transcribing partial audio", "error", err)
	}

	sttStart := time.Now()
	transcript, err := a.transcriber.Transcribe(ctx, sample.PCM, stt.SampleConfig{
		SampleRate: sample.Rate,
		Channels:   sample.Channels,
	})
	a.metrics.STTDuration.Record(ctx, time.Since(sttStart).Seconds())
	if err != nil {
		a.log.Error("transcription failed", "error", err)
		a.metrics.RecordProviderError(ctx, "stt", "transcribe")
		return "", nil
	}
	a.metrics.RecordProviderRequest(ctx, "stt", "transcribe", "ok")

	transcript = strings.TrimSpace(transcript)
	if transcript != "" {
		fmt.Fprintf(a.out, "You said: %s\n", transcript)
	}
	return transcript, nil
}

// say prints a tutor utterance. Speech playback happens inside the session.
func (a *App) say(text string) {
	if text == "" {
		return
	}
	fmt.Fprintf(a.out, "\nAlex says: %s\n", text)
}

// readLine reads one line of input, trimmed of whitespace and the trailing
// newline. A final unterminated line before EOF is still returned with the
// EOF error.
func (a *App) readLine() (string, error) {
	line, err := a.in.ReadString('\n')
	line = strings.TrimSpace(line)
	if err != nil && line != "" && errors.Is(err, io.EOF) {
		// Let the caller consume the last line; the next read reports EOF.
		return line, nil
	}
	return line, err
}

func (a *App) restoreHistory() {
	if a.historyFile == "" {
		return
	}
	if err := a.session.History().LoadFile(a.historyFile); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return
		}
		a.log.Warn("failed to restore history", "path", a.historyFile, "error", err)
		return
	}
	a.log.Info("history restored", "path", a.historyFile, "turns", a.session.History().Len())
}

func (a *App) saveHistory() {
	if a.historyFile == "" {
		return
	}
	if err := a.session.History().SaveFile(a.historyFile); err != nil {
		a.log.Warn("failed to save history", "path", a.historyFile, "error", err)
		return
	}
	a.log.Info("history saved", "path", a.historyFile, "turns", a.session.History().Len())
}
