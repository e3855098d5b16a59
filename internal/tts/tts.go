// Package tts synthesizes the spoken prompt that opens a collection call.
//
// The prompt text comes from the lexicon's per-language template, so the
// wording can be tuned together with the keyword lists. Synthesis itself is
// delegated to a Synthesizer backend; without one, callers still get the text.
package tts

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/nadzzz/dunning/internal/lexicon"
	"github.com/nadzzz/dunning/internal/message"
)

// SynthesizeOpts controls synthesis behavior.
type SynthesizeOpts struct {
	// Language selects the voice.
	Language message.Language

	// Voice overrides automatic language-based voice selection.
	Voice string
}

// Synthesizer converts text to audio.
type Synthesizer interface {
	// Synthesize generates audio from the given text as a WAV file.
	Synthesize(ctx context.Context, text string, opts SynthesizeOpts) (*SynthesizeResult, error)

	// Close releases any resources held by the synthesizer.
	Close() error
}

// SynthesizeResult holds the output of TTS synthesis.
type SynthesizeResult struct {
	// Audio is the synthesized audio as a WAV file.
	Audio []byte

	// ContentType is the MIME type of the audio (e.g., "audio/wav").
	ContentType string

	// SampleRate is the audio sample rate in Hz (e.g., 22050).
	SampleRate int

	// Channels is the number of audio channels (typically 1).
	Channels int
}

// ErrInvalidPrompt marks prompt requests rejected before rendering.
var ErrInvalidPrompt = errors.New("invalid prompt request")

// promptData is what prompt templates see.
type promptData struct {
	FullName    string
	Creditor    string
	Amount      string
	DaysOverdue int
}

// RenderPrompt renders the collection prompt for req in its language;
// auto and empty languages use Russian.
func RenderPrompt(lex *lexicon.Table, req *message.PromptRequest) (string, message.Language, error) {
	lang := req.Language
	if !lang.Supported() {
		lang = message.LanguageRU
	}
	if strings.TrimSpace(req.FullName) == "" {
		return "", lang, fmt.Errorf("%w: full name is required", ErrInvalidPrompt)
	}
	if req.Amount < 0 || req.DaysOverdue < 0 {
		return "", lang, fmt.Errorf("%w: amount and days overdue must not be negative", ErrInvalidPrompt)
	}

	tmpl := lex.Lang(lang).PromptTemplate()
	if tmpl == nil {
		return "", lang, fmt.Errorf("prompt: no template for %s", lang)
	}

	var sb strings.Builder
	err := tmpl.Execute(&sb, promptData{
		FullName:    strings.TrimSpace(req.FullName),
		Creditor:    strings.TrimSpace(req.Creditor),
		Amount:      strconv.FormatFloat(req.Amount, 'f', -1, 64),
		DaysOverdue: req.DaysOverdue,
	})
	if err != nil {
		return "", lang, fmt.Errorf("rendering prompt: %w", err)
	}
	return strings.Join(strings.Fields(sb.String()), " "), lang, nil
}
