package config

import (
	"context"
	"errors"
	"testing"

	"github.com/lingotutor/lingotutor/pkg/provider/llm"
	llmmock "github.com/lingotutor/lingotutor/pkg/provider/llm/mock"
	"github.com/lingotutor/lingotutor/pkg/provider/stt"
	sttmock "github.com/lingotutor/lingotutor/pkg/provider/stt/mock"
	"github.com/lingotutor/lingotutor/pkg/provider/tts"
	ttsmock "github.com/lingotutor/lingotutor/pkg/provider/tts/mock"
)

func TestRegistryUnregisteredName(t *testing.T) {
	r := NewRegistry()

	if _, err := r.CreateLLM(ProviderEntry{Name: "nope"}); !errors.Is(err, ErrProviderNotRegistered) {
		t.Errorf("CreateLLM: err = %v, want ErrProviderNotRegistered", err)
	}
	if _, err := r.CreateSTT(ProviderEntry{Name: "nope"}); !errors.Is(err, ErrProviderNotRegistered) {
		t.Errorf("CreateSTT: err = %v, want ErrProviderNotRegistered", err)
	}
	if _, err := r.CreateTTS(ProviderEntry{Name: "nope"}); !errors.Is(err, ErrProviderNotRegistered) {
		t.Errorf("CreateTTS: err = %v, want ErrProviderNotRegistered", err)
	}
}

func TestRegistryCreateAfterRegister(t *testing.T) {
	r := NewRegistry()

	var gotEntry ProviderEntry
	r.RegisterLLM("mock", func(e ProviderEntry) (llm.Provider, error) {
		gotEntry = e
		return &llmmock.Provider{}, nil
	})
	r.RegisterSTT("mock", func(ProviderEntry) (stt.Provider, error) {
		return &sttmock.Provider{}, nil
	})
	r.RegisterTTS("mock", func(ProviderEntry) (tts.Provider, error) {
		return &ttsmock.Provider{}, nil
	})

	entry := ProviderEntry{Name: "mock", Model: "test-model", APIKey: "k"}
	p, err := r.CreateLLM(entry)
	if err != nil {
		t.Fatalf("CreateLLM: %v", err)
	}
	if p == nil {
		t.Fatal("CreateLLM returned nil provider")
	}
	if gotEntry.Model != "test-model" || gotEntry.APIKey != "k" {
		t.Errorf("factory received entry %+v", gotEntry)
	}

	sttP, err := r.CreateSTT(ProviderEntry{Name: "mock"})
	if err != nil {
		t.Fatalf("CreateSTT: %v", err)
	}
	if _, err := sttP.Transcribe(context.Background(), []byte{0, 0}, stt.SampleConfig{}); err != nil {
		t.Errorf("Transcribe: %v", err)
	}

	if _, err := r.CreateTTS(ProviderEntry{Name: "mock"}); err != nil {
		t.Errorf("CreateTTS: %v", err)
	}
}
