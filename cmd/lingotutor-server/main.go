// Command lingotutor-server runs the web backend: the tutoring core behind a
// JSON API with PostgreSQL persistence and a Prometheus /metrics endpoint.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"golang.org/x/sync/errgroup"

	"github.com/lingotutor/lingotutor/internal/config"
	"github.com/lingotutor/lingotutor/internal/health"
	"github.com/lingotutor/lingotutor/internal/observe"
	"github.com/lingotutor/lingotutor/internal/resilience"
	"github.com/lingotutor/lingotutor/internal/store"
	"github.com/lingotutor/lingotutor/internal/web"
	"github.com/lingotutor/lingotutor/pkg/provider/llm"
	"github.com/lingotutor/lingotutor/pkg/provider/llm/anyllm"
	oaillm "github.com/lingotutor/lingotutor/pkg/provider/llm/openai"
)

// version is stamped at build time via -ldflags "-X main.version=...".
var version = "dev"

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
			fmt.Fprintf(os.Stderr, "lingotutor-server: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "lingotutor-server: %v\n", err)
		}
		return 1
	}
	if cfg.Storage.PostgresDSN == "" {
		fmt.Fprintln(os.Stderr, "lingotutor-server: storage.postgres_dsn must be set")
		return 1
	}

	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	addr := cfg.Server.ListenAddr
	if addr == "" {
		addr = ":8080"
	}

	slog.Info("lingotutor-server starting",
		"version", version,
		"config", *configPath,
		"listen_addr", addr,
		"log_level", cfg.Server.LogLevel,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	telemetry, err := observe.Setup(ctx, observe.TelemetryConfig{
		ServiceName:    "lingotutor-server",
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := telemetry.Shutdown(flushCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	reg := config.NewRegistry()
	registerLLMProviders(reg)

	llmProvider, err := buildLLM(cfg, reg, logger)
	if err != nil {
		slog.Error("failed to build completion provider", "err", err)
		return 1
	}

	st, err := store.New(ctx, cfg.Storage.PostgresDSN)
	if err != nil {
		slog.Error("failed to connect to PostgreSQL", "err", err)
		return 1
	}
	defer st.Close()

	if err := st.Migrate(ctx); err != nil {
		slog.Error("failed to run migrations", "err", err)
		return 1
	}

	// Setup has installed the SDK meter provider, so the default metrics
	// instance records into the Prometheus exporter.
	serverOpts := []web.Option{
		web.WithLogger(logger),
		web.WithMetrics(observe.DefaultMetrics()),
		web.WithReadinessChecks(health.Checker{Name: "database", Check: st.Ping}),
	}
	if cfg.Tutor.ContextTurns > 0 {
		serverOpts = append(serverOpts, web.WithContextTurns(cfg.Tutor.ContextTurns))
	}
	if cfg.Tutor.HistoryLimit > 0 {
		serverOpts = append(serverOpts, web.WithHistoryLimit(cfg.Tutor.HistoryLimit))
	}
	if cfg.Tutor.RequestTimeout > 0 {
		serverOpts = append(serverOpts, web.WithRequestTimeout(cfg.Tutor.RequestTimeout.Std()))
	}
	if cfg.Tutor.Temperature > 0 || cfg.Tutor.MaxTokens > 0 {
		serverOpts = append(serverOpts, web.WithCompletionParams(cfg.Tutor.Temperature, cfg.Tutor.MaxTokens))
	}

	server := web.NewServer(llmProvider, st, serverOpts...)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Serve(gctx, addr)
	})

	slog.Info("server ready — press Ctrl+C to shut down")

	if err := g.Wait(); err != nil && !errors.Is(err, http.ErrServerClosed) && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// buildLLM creates the primary completion provider wrapped in a circuit
// breaker, with any configured fallbacks behind it. The breaker tuning comes
// from the providers.breaker config block.
func buildLLM(cfg *config.Config, reg *config.Registry, logger *slog.Logger) (llm.Provider, error) {
	primary, err := reg.CreateLLM(cfg.Providers.LLM)
	if err != nil {
		return nil, err
	}
	b := cfg.Providers.Breaker
	guard := resilience.NewLLMFallback(primary, cfg.Providers.LLM.Name, resilience.FallbackConfig{
		Breaker: resilience.CircuitBreakerConfig{
			MaxFailures:  b.MaxFailures,
			ResetTimeout: b.ResetTimeout.Std(),
			HalfOpenMax:  b.HalfOpenMax,
		},
		Logger: logger,
	})
	for _, entry := range cfg.Providers.LLMFallbacks {
		fb, err := reg.CreateLLM(entry)
		if err != nil {
			return nil, fmt.Errorf("fallback %q: %w", entry.Name, err)
		}
		guard.AddFallback(entry.Name, fb)
	}
	return guard, nil
}

// registerLLMProviders wires the completion-provider factories. The web
// backend has no transcription or speech path, so only LLM factories are
// registered.
func registerLLMProviders(reg *config.Registry) {
	reg.RegisterLLM("openai", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []oaillm.Option
		if entry.BaseURL != "" {
			opts = append(opts, oaillm.WithBaseURL(entry.BaseURL))
		}
		return oaillm.New(entry.APIKey, entry.Model, opts...)
	})

	reg.RegisterLLM("groq", func(entry config.ProviderEntry) (llm.Provider, error) {
		baseURL := entry.BaseURL
		if baseURL == "" {
			baseURL = groqBaseURL
		}
		return oaillm.New(entry.APIKey, entry.Model, oaillm.WithBaseURL(baseURL))
	})

	reg.RegisterLLM("anyllm", func(entry config.ProviderEntry) (llm.Provider, error) {
		backend := "groq"
		if v, ok := entry.Options["backend"].(string); ok && v != "" {
			backend = v
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

	reg.RegisterLLM("ollama", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []anyllmlib.Option
		if entry.BaseURL != "" {
			opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
		}
		return anyllm.NewOllama(entry.Model, opts...)
	})
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
