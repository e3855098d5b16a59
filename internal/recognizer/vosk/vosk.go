//go:build cgo && !novosk

// Package vosk loads offline Vosk models from directories on the host.
//
// Every language has its own model directory (by default
// vosk-model-small-ru and vosk-model-small-kz under the models dir). A
// loaded model is shared; each transcription gets a fresh recognizer, so
// concurrent calls never touch each other's decoding state.
package vosk

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	vosk "github.com/alphacep/vosk-api/go"

	"github.com/nadzzz/dunning/internal/audio"
	"github.com/nadzzz/dunning/internal/config"
	"github.com/nadzzz/dunning/internal/message"
	"github.com/nadzzz/dunning/internal/recognizer"
)

// chunkSize is a quarter second of 16 kHz PCM16 audio. The context is
// checked between chunks.
const chunkSize = 8000

func init() {
	// Silence Kaldi's stderr chatter; failures still surface as errors.
	vosk.SetLogLevel(-1)
}

// Loader resolves model directories from config.
type Loader struct {
	dirs map[message.Language]string
}

// New creates a loader from config.
func New(cfg config.VoskConfig) *Loader {
	dirs := make(map[message.Language]string, len(cfg.Models))
	for code, dir := range cfg.Models {
		lang := message.Language(code)
		if !lang.Supported() || dir == "" {
			continue
		}
		if !filepath.IsAbs(dir) {
			dir = filepath.Join(cfg.ModelsDir, dir)
		}
		dirs[lang] = dir
	}
	return &Loader{dirs: dirs}
}

// Name returns the backend identifier.
func (l *Loader) Name() string { return config.BackendVosk }

// Locate reports the model directory for lang and whether it exists.
func (l *Loader) Locate(lang message.Language) (string, bool) {
	dir, ok := l.dirs[lang]
	if !ok {
		return "", false
	}
	fi, err := os.Stat(dir)
	return dir, err == nil && fi.IsDir()
}

// Load reads the model for lang into memory.
func (l *Loader) Load(_ context.Context, lang message.Language) (recognizer.Model, error) {
	dir, ok := l.Locate(lang)
	if !ok {
		return nil, &recognizer.ModelNotFoundError{Language: lang, Path: dir}
	}
	m, err := vosk.NewModel(dir)
	if err != nil {
		return nil, fmt.Errorf("loading vosk model %s: %w", dir, err)
	}
	return &model{m: m}, nil
}

type model struct {
	m *vosk.VoskModel
}

// result is the final JSON produced by a recognizer with word output on.
type result struct {
	Text   string `json:"text"`
	Result []struct {
		Conf float64 `json:"conf"`
		Word string  `json:"word"`
	} `json:"result"`
}

func (m *model) Transcribe(ctx context.Context, s *audio.Stream) (recognizer.Transcript, error) {
	rec, err := vosk.NewRecognizer(m.m, float64(s.SampleRate()))
	if err != nil {
		return recognizer.Transcript{}, fmt.Errorf("creating recognizer: %w", err)
	}
	defer rec.Free()
	rec.SetWords(1)

	pcm := s.PCM()
	for off := 0; off < len(pcm); off += chunkSize {
		if err := ctx.Err(); err != nil {
			return recognizer.Transcript{}, err
		}
		if rec.AcceptWaveform(pcm[off:min(off+chunkSize, len(pcm))]) < 0 {
			return recognizer.Transcript{}, fmt.Errorf("vosk rejected audio at byte %d", off)
		}
	}

	var res result
	if err := json.Unmarshal([]byte(rec.FinalResult()), &res); err != nil {
		return recognizer.Transcript{}, fmt.Errorf("decoding vosk result: %w", err)
	}
	return recognizer.Transcript{Text: res.Text, Confidence: meanConfidence(res)}, nil
}

// meanConfidence averages per-word confidences; nil when nothing was heard.
func meanConfidence(r result) *float64 {
	if len(r.Result) == 0 {
		return nil
	}
	var sum float64
	for _, w := range r.Result {
		sum += w.Conf
	}
	mean := sum / float64(len(r.Result))
	return &mean
}

func (m *model) Close() error {
	m.m.Free()
	return nil
}
