//go:build cgo && !novosk

package main

import (
	"github.com/nadzzz/dunning/internal/config"
	"github.com/nadzzz/dunning/internal/recognizer"
	"github.com/nadzzz/dunning/internal/recognizer/vosk"
)

func newVoskLoader(cfg config.VoskConfig) (recognizer.Loader, error) {
	return vosk.New(cfg), nil
}
