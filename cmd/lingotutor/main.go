// Command lingotutor runs the interactive terminal English tutor.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/lingotutor/lingotutor/internal/cli"
	"github.com/lingotutor/lingotutor/internal/config"
	"github.com/lingotutor/lingotutor/internal/resilience"
	"github.com/lingotutor/lingotutor/internal/tutor"
	"github.com/lingotutor/lingotutor/pkg/audio"
	"github.com/lingotutor/lingotutor/pkg/provider/llm"
	"github.com/lingotutor/lingotutor/pkg/provider/llm/anyllm"
	oaillm "github.com/lingotutor/lingotutor/pkg/provider/llm/openai"
	"github.com/lingotutor/lingotutor/pkg/provider/stt"
	"github.com/lingotutor/lingotutor/pkg/provider/stt/whisper"
	"github.com/lingotutor/lingotutor/pkg/provider/tts"
	"github.com/lingotutor/lingotutor/pkg/provider/tts/coqui"
	"github.com/lingotutor/lingotutor/pkg/provider/tts/espeak"
)

// groqBaseURL is the OpenAI-compatible endpoint the "groq" provider name
// selects when no base_url override is configured.
const groqBaseURL = "https://api.groq.com/openai/v1"

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "lingotutor: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "lingotutor: %v\n", err)
		}
		return 1
	}

	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	llmProvider, err := buildLLM(cfg, reg, logger)
	if err != nil {
		slog.Error("failed to build completion provider", "err", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sessionOpts := []tutor.Option{tutor.WithLogger(logger)}
	if cfg.Tutor.HistoryLimit > 0 {
		sessionOpts = append(sessionOpts, tutor.WithHistoryLimit(cfg.Tutor.HistoryLimit))
	}
	if cfg.Tutor.ContextTurns > 0 {
		sessionOpts = append(sessionOpts, tutor.WithContextTurns(cfg.Tutor.ContextTurns))
	}
	if cfg.Tutor.RequestTimeout > 0 {
		sessionOpts = append(sessionOpts, tutor.WithRequestTimeout(cfg.Tutor.RequestTimeout.Std()))
	}
	if cfg.Tutor.Temperature > 0 {
		sessionOpts = append(sessionOpts, tutor.WithTemperature(cfg.Tutor.Temperature))
	}
	if cfg.Tutor.MaxTokens > 0 {
		sessionOpts = append(sessionOpts, tutor.WithMaxTokens(cfg.Tutor.MaxTokens))
	}

	if cfg.Providers.TTS.Name != "" {
		speech, err := buildTTS(cfg, reg, logger)
		if err != nil {
			slog.Error("failed to build speech provider", "err", err)
			return 1
		}
		sessionOpts = append(sessionOpts, tutor.WithSpeech(speech))
	}

	session, err := tutor.NewSession(llmProvider, sessionOpts...)
	if err != nil {
		slog.Error("failed to create session", "err", err)
		return 1
	}

	appOpts := []cli.Option{cli.WithLogger(logger)}
	if cfg.Tutor.HistoryFile != "" {
		appOpts = append(appOpts, cli.WithHistoryFile(cfg.Tutor.HistoryFile))
	}
	if cfg.Providers.STT.Name != "" {
		transcriber, err := buildSTT(cfg, reg, logger)
		if err != nil {
			slog.Error("failed to build transcription provider", "err", err)
			return 1
		}
		appOpts = append(appOpts,
			cli.WithTranscriber(transcriber),
			cli.WithAudioSource(captureFactory(cfg.Audio)),
			cli.WithCaptureFormat(cfg.Audio.SampleRate, cfg.Audio.Channels),
		)
	}

	app, err := cli.NewApp(session, appOpts...)
	if err != nil {
		slog.Error("failed to create app", "err", err)
		return 1
	}

	if err := app.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}
	return 0
}

// fallbackConfig maps the providers.breaker block onto the resilience
// settings shared by every fallback group.
func fallbackConfig(cfg *config.Config, logger *slog.Logger) resilience.FallbackConfig {
	b := cfg.Providers.Breaker
	return resilience.FallbackConfig{
		Breaker: resilience.CircuitBreakerConfig{
			MaxFailures:  b.MaxFailures,
			ResetTimeout: b.ResetTimeout.Std(),
			HalfOpenMax:  b.HalfOpenMax,
		},
		Logger: logger,
	}
}

// buildLLM creates the primary completion provider wrapped in a circuit
// breaker, with any configured fallbacks behind it.
func buildLLM(cfg *config.Config, reg *config.Registry, logger *slog.Logger) (llm.Provider, error) {
	primary, err := reg.CreateLLM(cfg.Providers.LLM)
	if err != nil {
		return nil, err
	}
	guard := resilience.NewLLMFallback(primary, cfg.Providers.LLM.Name, fallbackConfig(cfg, logger))
	for _, entry := range cfg.Providers.LLMFallbacks {
		fb, err := reg.CreateLLM(entry)
		if err != nil {
			return nil, fmt.Errorf("fallback %q: %w", entry.Name, err)
		}
		guard.AddFallback(entry.Name, fb)
	}
	return guard, nil
}

// buildSTT creates the primary transcription provider with any configured
// fallbacks behind it.
func buildSTT(cfg *config.Config, reg *config.Registry, logger *slog.Logger) (stt.Provider, error) {
	primary, err := reg.CreateSTT(cfg.Providers.STT)
	if err != nil {
		return nil, err
	}
	guard := resilience.NewSTTFallback(primary, cfg.Providers.STT.Name, fallbackConfig(cfg, logger))
	for _, entry := range cfg.Providers.STTFallbacks {
		fb, err := reg.CreateSTT(entry)
		if err != nil {
			return nil, fmt.Errorf("fallback %q: %w", entry.Name, err)
		}
		guard.AddFallback(entry.Name, fb)
	}
	return guard, nil
}

// buildTTS creates the primary speech provider with any configured fallbacks
// behind it.
func buildTTS(cfg *config.Config, reg *config.Registry, logger *slog.Logger) (tts.Provider, error) {
	primary, err := reg.CreateTTS(cfg.Providers.TTS)
	if err != nil {
		return nil, err
	}
	guard := resilience.NewTTSFallback(primary, cfg.Providers.TTS.Name, fallbackConfig(cfg, logger))
	for _, entry := range cfg.Providers.TTSFallbacks {
		fb, err := reg.CreateTTS(entry)
		if err != nil {
			return nil, fmt.Errorf("fallback %q: %w", entry.Name, err)
		}
		guard.AddFallback(entry.Name, fb)
	}
	return guard, nil
}

// captureFactory returns a SourceFactory that spawns the configured capture
// command (arecord by default) per recording.
func captureFactory(cfg config.AudioConfig) cli.SourceFactory {
	name := cfg.CaptureCommand
	args := cfg.CaptureArgs
	if name == "" {
		name = "arecord"
		rate := cfg.SampleRate
		if rate <= 0 {
			rate = audio.DefaultSampleRate
		}
		channels := cfg.Channels
		if channels <= 0 {
			channels = 1
		}
		args = []string{
			"-q", "-f", "S16_LE",
			"-r", fmt.Sprint(rate),
			"-c", fmt.Sprint(channels),
			"-t", "raw",
		}
	}
	return func(ctx context.Context) (audio.Source, error) {
		return audio.NewCommandSource(ctx, name, args...)
	}
}

// registerBuiltinProviders wires the provider factories that ship with
// lingotutor into reg.
func registerBuiltinProviders(reg *config.Registry) {
	// ── LLM ───────────────────────────────────────────────────────────────────

	reg.RegisterLLM("openai", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []oaillm.Option
		if entry.BaseURL != "" {
			opts = append(opts, oaillm.WithBaseURL(entry.BaseURL))
		}
		return oaillm.New(entry.APIKey, entry.Model, opts...)
	})

	// groq speaks the OpenAI wire protocol; only the base URL differs.
	reg.RegisterLLM("groq", func(entry config.ProviderEntry) (llm.Provider, error) {
		baseURL := entry.BaseURL
		if baseURL == "" {
			baseURL = groqBaseURL
		}
		return oaillm.New(entry.APIKey, entry.Model, oaillm.WithBaseURL(baseURL))
	})

	reg.RegisterLLM("anyllm", func(entry config.ProviderEntry) (llm.Provider, error) {
		backend := optString(entry.Options, "backend")
		if backend == "" {
			backend = "groq"
		}
		var opts []anyllmlib.Option
		if entry.APIKey != "" {
			opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
		}
		if entry.BaseURL != "" {
			opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
		}
		return anyllm.New(backend, entry.Model, opts...)
	})

	// ollama is a local server; it uses BaseURL for the address, not an API key.
	reg.RegisterLLM("ollama", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []anyllmlib.Option
		if entry.BaseURL != "" {
			opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
		}
		return anyllm.NewOllama(entry.Model, opts...)
	})

	// ── STT ───────────────────────────────────────────────────────────────────

	reg.RegisterSTT("whisper", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []whisper.Option
		if entry.Model != "" {
			opts = append(opts, whisper.WithModel(entry.Model))
		}
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, whisper.WithLanguage(lang))
		}
		return whisper.New(entry.BaseURL, opts...)
	})

	reg.RegisterSTT("whisper-native", func(entry config.ProviderEntry) (stt.Provider, error) {
		modelPath := entry.Model
		if modelPath == "" {
			modelPath = optString(entry.Options, "model_path")
		}
		var opts []whisper.NativeOption
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, whisper.WithNativeLanguage(lang))
		}
		return whisper.NewNative(modelPath, opts...)
	})

	// ── TTS ───────────────────────────────────────────────────────────────────

	reg.RegisterTTS("coqui", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []coqui.Option
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, coqui.WithLanguage(lang))
		}
		if speaker := optString(entry.Options, "speaker"); speaker != "" {
			opts = append(opts, coqui.WithSpeaker(speaker))
		}
		if playback := strings.Fields(optString(entry.Options, "playback_command")); len(playback) > 0 {
			opts = append(opts, coqui.WithPlaybackCommand(playback[0], playback[1:]...))
		}
		return coqui.New(entry.BaseURL, opts...)
	})

	reg.RegisterTTS("espeak", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []espeak.Option
		if bin := optString(entry.Options, "binary"); bin != "" {
			opts = append(opts, espeak.WithBinary(bin))
		}
		if voice := optString(entry.Options, "voice"); voice != "" {
			opts = append(opts, espeak.WithVoice(voice))
		}
		if speed := optInt(entry.Options, "speed"); speed > 0 {
			opts = append(opts, espeak.WithSpeed(speed))
		}
		return espeak.New(opts...)
	})
}

// optString reads a string value from a provider options map.
func optString(options map[string]any, key string) string {
	if options == nil {
		return ""
	}
	if v, ok := options[key].(string); ok {
		return v
	}
	return ""
}

// optInt reads an integer value from a provider options map. YAML decodes
// integers as int.
func optInt(options map[string]any, key string) int {
	if options == nil {
		return 0
	}
	if v, ok := options[key].(int); ok {
		return v
	}
	return 0
}

// newLogger builds a text slog logger at the configured level.
func newLogger(level config.LogLevel) *slog.Logger {
	var l slog.Level
	switch level {
	case config.LogDebug:
		l = slog.LevelDebug
	case config.LogWarn:
		l = slog.LevelWarn
	case config.LogError:
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l}))
}
