package resilience

import (
	"context"

	"github.com/lingotutor/lingotutor/pkg/provider/tts"
)

// TTSFallback implements [tts.Provider] with automatic failover across
// multiple speech-output backends. Each backend has its own circuit breaker.
// Useful for pairing a networked synthesizer with a local espeak fallback so
// replies stay audible when the server is down.
type TTSFallback struct {
	group *FallbackGroup[tts.Provider]
}

var _ tts.Provider = (*TTSFallback)(nil)

// NewTTSFallback creates a [TTSFallback] with primary as the preferred
// backend.
func NewTTSFallback(primary tts.Provider, primaryName string, cfg FallbackConfig) *TTSFallback {
	return &TTSFallback{
		group: NewFallbackGroup(primary, primaryName, cfg),
	}
}

// AddFallback registers an additional speech-output provider as a fallback.
func (f *TTSFallback) AddFallback(name string, provider tts.Provider) {
	f.group.AddFallback(name, provider)
}

// Speak plays text through the first healthy provider.
func (f *TTSFallback) Speak(ctx context.Context, text string) error {
	return f.group.Execute(func(p tts.Provider) error {
		return p.Speak(ctx, text)
	})
}
