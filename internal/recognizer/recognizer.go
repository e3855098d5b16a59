// Package recognizer turns validated audio into transcripts.
//
// An Arbitrator owns one lazily loaded model per supported language. Models
// come from a Loader (Vosk directories on disk, or remote Whisper endpoints),
// are loaded at most once per language even under concurrent first use, and
// are shared read-only afterwards. In auto mode the Arbitrator runs every
// available model and keeps the transcript whose text looks most like the
// language of the model that produced it.
package recognizer

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/nadzzz/dunning/internal/audio"
	"github.com/nadzzz/dunning/internal/langdetect"
	"github.com/nadzzz/dunning/internal/message"
)

// Transcript is the raw output of a model.
type Transcript struct {
	Text string
	// Confidence is the engine's own score in [0,1], or nil if it has none.
	Confidence *float64
}

// Model is a loaded recognition model. Transcribe must be safe for
// concurrent use and must return promptly once ctx is done.
type Model interface {
	Transcribe(ctx context.Context, s *audio.Stream) (Transcript, error)
	Close() error
}

// Loader locates and loads models for a recognition backend.
type Loader interface {
	// Name returns the backend identifier (e.g., "vosk", "whisper").
	Name() string

	// Locate reports where the model for lang lives and whether it is present.
	// It must be cheap and free of side effects.
	Locate(lang message.Language) (location string, ok bool)

	// Load instantiates the model for lang.
	Load(ctx context.Context, lang message.Language) (Model, error)
}

// Observer receives timing and outcome of loads and recognitions.
type Observer interface {
	ModelLoaded(lang message.Language, d time.Duration, err error)
	Recognized(lang message.Language, d time.Duration, err error)
}

// Option configures an Arbitrator.
type Option func(*Arbitrator)

// WithObserver reports loads and recognitions to o.
func WithObserver(o Observer) Option {
	return func(a *Arbitrator) { a.obs = o }
}

// Arbitrator is safe for concurrent use.
type Arbitrator struct {
	loader   Loader
	detector *langdetect.Detector
	obs      Observer
	slots    map[message.Language]*slot
}

// slot guards the first load of one language. Waiting for another request's
// load honors the waiter's context. A failed load leaves the slot empty so a
// later request may try again.
type slot struct {
	sem   *semaphore.Weighted
	model Model
}

// New creates an Arbitrator over loader. The detector judges candidate
// transcripts in auto mode.
func New(loader Loader, detector *langdetect.Detector, opts ...Option) *Arbitrator {
	a := &Arbitrator{
		loader:   loader,
		detector: detector,
		obs:      nopObserver{},
		slots:    make(map[message.Language]*slot, len(message.SupportedLanguages)),
	}
	for _, l := range message.SupportedLanguages {
		a.slots[l] = &slot{sem: semaphore.NewWeighted(1)}
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Backend returns the loader's name.
func (a *Arbitrator) Backend() string { return a.loader.Name() }

// IsModelAvailable reports whether the model for lang is installed.
func (a *Arbitrator) IsModelAvailable(lang message.Language) bool {
	if !lang.Supported() {
		return false
	}
	_, ok := a.loader.Locate(lang)
	return ok
}

// AvailableLanguages returns the languages with installed models, Russian first.
func (a *Arbitrator) AvailableLanguages() []message.Language {
	var out []message.Language
	for _, l := range message.SupportedLanguages {
		if a.IsModelAvailable(l) {
			out = append(out, l)
		}
	}
	return out
}

// Warm loads every available model. Languages that fail to load are
// reported together; the others stay loaded.
func (a *Arbitrator) Warm(ctx context.Context) error {
	var errs []error
	for _, l := range a.AvailableLanguages() {
		if _, err := a.model(ctx, l); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Recognize transcribes s with the model for lang.
func (a *Arbitrator) Recognize(ctx context.Context, s *audio.Stream, lang message.Language) (*message.RecognitionResult, error) {
	if err := s.Check(); err != nil {
		return nil, err
	}
	return a.recognize(ctx, s, lang)
}

func (a *Arbitrator) recognize(ctx context.Context, s *audio.Stream, lang message.Language) (*message.RecognitionResult, error) {
	m, err := a.model(ctx, lang)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	tr, err := m.Transcribe(ctx, s)
	switch {
	case ctx.Err() != nil:
		// Abandoned; whatever the engine returned is discarded.
		err = ctx.Err()
	case err != nil:
		err = &RecognitionError{Language: lang, Op: "transcribe", Err: err}
	}
	a.obs.Recognized(lang, time.Since(start), err)
	if err != nil {
		return nil, err
	}

	return &message.RecognitionResult{
		Transcript:       strings.TrimSpace(tr.Text),
		Language:         lang,
		EngineConfidence: tr.Confidence,
	}, nil
}

// RecognizeAuto runs every available model and keeps the best transcript.
//
// With one model installed only that model runs. With several, they run
// concurrently and the winner is the candidate whose transcript the detector
// assigns, with the highest confidence, to the language of its own model.
// If no candidate agrees with its model, the highest engine confidence wins.
// Russian wins every tie.
func (a *Arbitrator) RecognizeAuto(ctx context.Context, s *audio.Stream) (*message.RecognitionResult, error) {
	if err := s.Check(); err != nil {
		return nil, err
	}
	langs := a.AvailableLanguages()
	switch len(langs) {
	case 0:
		return nil, &ModelNotFoundError{Language: message.LanguageAuto}
	case 1:
		return a.recognize(ctx, s, langs[0])
	}

	results := make([]*message.RecognitionResult, len(langs))
	errs := make([]error, len(langs))
	var g errgroup.Group
	for i, l := range langs {
		g.Go(func() error {
			results[i], errs[i] = a.recognize(ctx, s, l)
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if best := a.arbitrate(results); best != nil {
		return best, nil
	}
	return nil, errs[0]
}

// arbitrate picks a winner among candidates; nil entries are failures.
// Candidates are in Russian-first order and only a strictly better score
// displaces the current pick.
func (a *Arbitrator) arbitrate(candidates []*message.RecognitionResult) *message.RecognitionResult {
	var best *message.RecognitionResult
	bestScore := -1.0
	for _, c := range candidates {
		if c == nil {
			continue
		}
		lang, conf := a.detector.DetectWithConfidence(c.Transcript)
		if lang == c.Language && conf > bestScore {
			best, bestScore = c, conf
		}
	}
	if best != nil {
		slog.Debug("auto recognition: transcript matches its model", "language", best.Language, "confidence", bestScore)
		return best
	}

	for _, c := range candidates {
		if c == nil {
			continue
		}
		score := 0.0
		if c.EngineConfidence != nil {
			score = *c.EngineConfidence
		}
		if best == nil || score > bestScore {
			best, bestScore = c, score
		}
	}
	if best != nil {
		slog.Debug("auto recognition: no transcript matches its model, using engine confidence",
			"language", best.Language, "confidence", bestScore)
	}
	return best
}

// model returns the loaded model for lang, loading it on first use.
func (a *Arbitrator) model(ctx context.Context, lang message.Language) (Model, error) {
	sl, ok := a.slots[lang]
	if !ok {
		return nil, &ModelNotFoundError{Language: lang}
	}
	path, ok := a.loader.Locate(lang)
	if !ok {
		return nil, &ModelNotFoundError{Language: lang, Path: path}
	}

	if err := sl.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer sl.sem.Release(1)
	if sl.model != nil {
		return sl.model, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start := time.Now()
	m, err := a.loader.Load(ctx, lang)
	a.obs.ModelLoaded(lang, time.Since(start), err)
	if err != nil {
		var notFound *ModelNotFoundError
		switch {
		case errors.As(err, &notFound):
			return nil, err
		case ctx.Err() != nil:
			return nil, ctx.Err()
		}
		return nil, &RecognitionError{Language: lang, Op: "load", Err: err}
	}
	slog.Info("recognition model loaded", "backend", a.loader.Name(), "language", lang, "path", path, "elapsed", time.Since(start))
	sl.model = m
	return m, nil
}

// Close releases every loaded model.
func (a *Arbitrator) Close() error {
	var errs []error
	for _, l := range message.SupportedLanguages {
		sl := a.slots[l]
		_ = sl.sem.Acquire(context.Background(), 1)
		if sl.model != nil {
			errs = append(errs, sl.model.Close())
			sl.model = nil
		}
		sl.sem.Release(1)
	}
	return errors.Join(errs...)
}

type nopObserver struct{}

func (nopObserver) ModelLoaded(message.Language, time.Duration, error) {}
func (nopObserver) Recognized(message.Language, time.Duration, error)  {}
