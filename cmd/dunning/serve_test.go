package main

import (
	"testing"

	"github.com/nadzzz/dunning/internal/config"
)

func TestNewLoader(t *testing.T) {
	l, err := newLoader(config.RecognizerConfig{
		Backend: config.BackendWhisper,
		Whisper: config.WhisperConfig{Endpoints: map[string]string{"ru": "http://localhost:9000/asr"}},
	})
	if err != nil {
		t.Fatalf("newLoader(whisper): %v", err)
	}
	if l.Name() != config.BackendWhisper {
		t.Errorf("Name = %q", l.Name())
	}

	if _, err := newLoader(config.RecognizerConfig{Backend: "kaldi"}); err == nil {
		t.Error("unknown backend accepted")
	}
}

func TestTargets(t *testing.T) {
	got := targets(map[string]config.Target{
		"queue": {Endpoint: "http://queue.local/in", Protocol: "http"},
		"crm":   {Endpoint: "http://crm.local/api", Token: "secret"},
	})
	if len(got) != 2 || got[0].ServiceName != "crm" || got[1].ServiceName != "queue" {
		t.Fatalf("targets = %+v, want crm then queue", got)
	}
	if got[0].Protocol != "http" || got[0].Token != "secret" {
		t.Errorf("crm = %+v, want default http protocol", got[0])
	}
}
