package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"llm": {"openai", "groq", "anyllm", "ollama"},
	"stt": {"whisper", "whisper-native"},
	"tts": {"coqui", "espeak"},
}

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader] and
// [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Provider name validation — warn for unknown provider names.
	validateProviderName("llm", cfg.Providers.LLM.Name)
	validateProviderName("stt", cfg.Providers.STT.Name)
	validateProviderName("tts", cfg.Providers.TTS.Name)
	for _, entry := range cfg.Providers.LLMFallbacks {
		validateProviderName("llm", entry.Name)
	}
	for _, entry := range cfg.Providers.STTFallbacks {
		validateProviderName("stt", entry.Name)
	}
	for _, entry := range cfg.Providers.TTSFallbacks {
		validateProviderName("tts", entry.Name)
	}

	if cfg.Providers.Breaker.MaxFailures < 0 {
		errs = append(errs, fmt.Errorf("providers.breaker.max_failures %d must not be negative", cfg.Providers.Breaker.MaxFailures))
	}
	if cfg.Providers.Breaker.ResetTimeout < 0 {
		errs = append(errs, fmt.Errorf("providers.breaker.reset_timeout must not be negative"))
	}
	if cfg.Providers.Breaker.HalfOpenMax < 0 {
		errs = append(errs, fmt.Errorf("providers.breaker.half_open_max %d must not be negative", cfg.Providers.Breaker.HalfOpenMax))
	}

	if cfg.Providers.LLM.Name == "" {
		slog.Warn("no completion provider configured; turns cannot be processed")
	}

	// Tutor
	if cfg.Tutor.HistoryLimit < 0 {
		errs = append(errs, fmt.Errorf("tutor.history_limit %d must not be negative", cfg.Tutor.HistoryLimit))
	}
	if cfg.Tutor.ContextTurns < 0 {
		errs = append(errs, fmt.Errorf("tutor.context_turns %d must not be negative", cfg.Tutor.ContextTurns))
	}
	if cfg.Tutor.HistoryLimit > 0 && cfg.Tutor.ContextTurns*2 >= cfg.Tutor.HistoryLimit {
		slog.Warn("tutor.context_turns exceeds what tutor.history_limit retains; older context will be unavailable",
			"context_turns", cfg.Tutor.ContextTurns,
			"history_limit", cfg.Tutor.HistoryLimit,
		)
	}
	if cfg.Tutor.Temperature < 0 || cfg.Tutor.Temperature > 2 {
		errs = append(errs, fmt.Errorf("tutor.temperature %.2f is out of range [0, 2]", cfg.Tutor.Temperature))
	}
	if cfg.Tutor.MaxTokens < 0 {
		errs = append(errs, fmt.Errorf("tutor.max_tokens %d must not be negative", cfg.Tutor.MaxTokens))
	}
	if cfg.Tutor.RequestTimeout < 0 {
		errs = append(errs, fmt.Errorf("tutor.request_timeout must not be negative"))
	}

	// Audio
	if cfg.Audio.SampleRate < 0 {
		errs = append(errs, fmt.Errorf("audio.sample_rate %d must not be negative", cfg.Audio.SampleRate))
	}
	if cfg.Audio.Channels < 0 || cfg.Audio.Channels > 2 {
		errs = append(errs, fmt.Errorf("audio.channels %d is out of range [0, 2]", cfg.Audio.Channels))
	}

	// Storage availability
	if cfg.Server.ListenAddr != "" && cfg.Storage.PostgresDSN == "" {
		slog.Warn("storage.postgres_dsn is empty; the web backend cannot persist exchanges")
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name — may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
