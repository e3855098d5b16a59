//go:build !cgo || novosk

package main

import (
	"errors"

	"github.com/nadzzz/dunning/internal/config"
	"github.com/nadzzz/dunning/internal/recognizer"
)

// Built without libvosk; only the whisper backend is usable.
func newVoskLoader(config.VoskConfig) (recognizer.Loader, error) {
	return nil, errors.New("vosk backend not compiled in: rebuild with CGO_ENABLED=1 and without the novosk tag")
}
