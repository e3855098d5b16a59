// Package dispatch implements the request pipeline behind every transport.
//
// A voice request is validated, recognized, language-scored and classified;
// a text request skips straight to classification. Each outcome is then
// forwarded to the configured targets. Forwarding is best effort: the caller
// always receives the result, even when no target accepted it.
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"path/filepath"
	"strings"
	"time"

	"github.com/nadzzz/dunning/internal/audio"
	"github.com/nadzzz/dunning/internal/classifier"
	"github.com/nadzzz/dunning/internal/langdetect"
	"github.com/nadzzz/dunning/internal/lexicon"
	"github.com/nadzzz/dunning/internal/message"
	"github.com/nadzzz/dunning/internal/transport"
	"github.com/nadzzz/dunning/internal/tts"
)

// Error codes carried by RequestError.
const (
	CodeInvalidFileType = "INVALID_FILE_TYPE"
	CodeInvalidRequest  = "INVALID_REQUEST"
)

// forwardTimeout bounds delivery to all targets of one outcome.
const forwardTimeout = 10 * time.Second

// RequestError is a request the pipeline refused before doing any work.
type RequestError struct {
	Code    string
	Message string
}

func (e *RequestError) Error() string { return e.Message }

func badRequest(format string, args ...any) *RequestError {
	return &RequestError{Code: CodeInvalidRequest, Message: fmt.Sprintf(format, args...)}
}

// Recognizer turns validated audio into a transcript.
type Recognizer interface {
	Recognize(ctx context.Context, s *audio.Stream, lang message.Language) (*message.RecognitionResult, error)
	RecognizeAuto(ctx context.Context, s *audio.Stream) (*message.RecognitionResult, error)
	IsModelAvailable(lang message.Language) bool
	AvailableLanguages() []message.Language
}

// Recorder receives pipeline events for metrics.
type Recorder interface {
	RecordClassification(c message.Category, lang message.Language)
	RecordAudioRejection(reason string)
	RecordAudioAccepted(d time.Duration)
	RecordForwardFailure(target string)
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithSynthesizer enables prompt audio.
func WithSynthesizer(s tts.Synthesizer) Option {
	return func(d *Dispatcher) { d.synthesizer = s }
}

// WithTargets sets where outcomes are forwarded and the senders, keyed by
// protocol, that reach them.
func WithTargets(targets []message.Target, senders map[string]transport.Sender) Option {
	return func(d *Dispatcher) {
		d.targets = targets
		d.senders = senders
	}
}

// WithRecorder sets the metrics sink.
func WithRecorder(r Recorder) Option {
	return func(d *Dispatcher) { d.recorder = r }
}

// WithTimeout bounds recognition of a single request. Zero means no bound
// beyond the caller's context.
func WithTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) { d.timeout = timeout }
}

// WithVersion sets the version reported by Health.
func WithVersion(v string) Option {
	return func(d *Dispatcher) { d.version = v }
}

// WithClock overrides time.Now for timestamps and processing time.
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) { d.now = now }
}

// Dispatcher is the request pipeline. It implements transport.Service.
type Dispatcher struct {
	recognizer  Recognizer
	detector    *langdetect.Detector
	classifier  *classifier.Classifier
	lex         *lexicon.Table
	synthesizer tts.Synthesizer // nil if TTS is disabled
	targets     []message.Target
	senders     map[string]transport.Sender
	recorder    Recorder
	timeout     time.Duration
	version     string
	now         func() time.Time
}

var _ transport.Service = (*Dispatcher)(nil)

// New creates a Dispatcher.
func New(rec Recognizer, detector *langdetect.Detector, cls *classifier.Classifier, lex *lexicon.Table, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		recognizer: rec,
		detector:   detector,
		classifier: cls,
		lex:        lex,
		recorder:   nopRecorder{},
		version:    "dev",
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// ProcessVoice runs the full voice pipeline for one upload.
func (d *Dispatcher) ProcessVoice(ctx context.Context, req *message.VoiceRequest) (*message.VoiceResult, error) {
	start := d.now()
	if req.ID == "" {
		req.ID = message.NewRequestID()
	}
	logger := slog.With("request_id", req.ID)

	if req.Filename != "" && !strings.EqualFold(filepath.Ext(req.Filename), ".wav") {
		return nil, &RequestError{Code: CodeInvalidFileType, Message: "a WAV file is required"}
	}
	pref, ok := message.ParsePreference(string(req.Language))
	if !ok {
		return nil, badRequest("unsupported language %q", req.Language)
	}

	stream, err := audio.Validate(req.Audio)
	if err != nil {
		var fe *audio.FormatError
		if errors.As(err, &fe) {
			d.recorder.RecordAudioRejection(string(fe.Reason))
		}
		logger.Info("audio rejected", "error", err)
		return nil, err
	}
	d.recorder.RecordAudioAccepted(stream.Duration())
	logger.Info("voice processing started", "language", pref, "duration", stream.Duration())

	rctx := ctx
	if d.timeout > 0 {
		var cancel context.CancelFunc
		rctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	var rec *message.RecognitionResult
	if pref == message.LanguageAuto {
		rec, err = d.recognizer.RecognizeAuto(rctx, stream)
	} else {
		rec, err = d.recognizer.Recognize(rctx, stream, pref)
	}
	if err != nil {
		logger.Error("recognition failed", "error", err)
		return nil, err
	}
	logger.Debug("recognition complete", "language", rec.Language, "text_length", len(rec.Transcript))

	var langConf float64
	if rec.Transcript != "" {
		_, langConf = d.detector.DetectWithConfidence(rec.Transcript)
	}

	cls := d.classify(rec.Transcript, rec.Language)
	d.forward(ctx, logger, &message.CallOutcome{
		RequestID:      req.ID,
		Source:         "voice",
		Transcript:     rec.Transcript,
		Language:       rec.Language,
		Classification: cls.ClassificationResult,
		ClassifiedAt:   d.now().UTC(),
	})

	elapsed := d.now().Sub(start)
	logger.Info("voice processing complete", "category", cls.Category, "duration", elapsed)

	return &message.VoiceResult{
		Success:            true,
		RequestID:          req.ID,
		Timestamp:          d.now().UTC(),
		Transcript:         rec.Transcript,
		DetectedLanguage:   rec.Language,
		LanguageConfidence: round2(langConf),
		Classification:     cls,
		ProcessingTimeMs:   round2(float64(elapsed.Microseconds()) / 1000),
		AudioDurationSec:   round2(stream.Duration().Seconds()),
	}, nil
}

// ClassifyText classifies a transcript supplied by the caller. With an auto
// preference the language is detected, and unknown falls back to Russian.
func (d *Dispatcher) ClassifyText(ctx context.Context, req *message.TextRequest) (*message.TextResult, error) {
	if req.ID == "" {
		req.ID = message.NewRequestID()
	}
	logger := slog.With("request_id", req.ID)

	if strings.TrimSpace(req.Text) == "" {
		return nil, badRequest("text is required")
	}
	lang, ok := message.ParsePreference(string(req.Language))
	if !ok {
		return nil, badRequest("unsupported language %q", req.Language)
	}
	if lang == message.LanguageAuto {
		lang = d.detector.Detect(req.Text)
		if lang == message.LanguageUnknown {
			lang = message.LanguageRU
		}
	}

	cls := d.classify(req.Text, lang)
	d.forward(ctx, logger, &message.CallOutcome{
		RequestID:      req.ID,
		Source:         "text",
		Transcript:     req.Text,
		Language:       lang,
		Classification: cls.ClassificationResult,
		ClassifiedAt:   d.now().UTC(),
	})
	logger.Info("text classified", "language", lang, "category", cls.Category)

	return &message.TextResult{
		Success:          true,
		RequestID:        req.ID,
		Timestamp:        d.now().UTC(),
		Text:             req.Text,
		DetectedLanguage: lang,
		Classification:   cls,
	}, nil
}

func (d *Dispatcher) classify(transcript string, lang message.Language) message.Classification {
	res := d.classifier.Classify(transcript, lang)
	d.recorder.RecordClassification(res.Category, lang)
	return message.Classification{
		ClassificationResult: res,
		CategoryDescription:  d.classifier.Describe(res.Category, lang),
	}
}

// forward delivers an outcome to every target. Delivery outlives a
// disconnected caller but not forwardTimeout.
func (d *Dispatcher) forward(ctx context.Context, logger *slog.Logger, outcome *message.CallOutcome) {
	if len(d.targets) == 0 {
		return
	}
	payload, err := json.Marshal(outcome)
	if err != nil {
		logger.Error("marshalling call outcome", "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), forwardTimeout)
	defer cancel()

	for _, target := range d.targets {
		s, ok := d.senders[target.Protocol]
		if !ok {
			logger.Warn("no transport for target protocol", "protocol", target.Protocol, "target", target.ServiceName)
			d.recorder.RecordForwardFailure(target.ServiceName)
			continue
		}
		if err := s.Send(ctx, target, payload); err != nil {
			logger.Warn("failed to forward outcome", "target", target.ServiceName, "error", err)
			d.recorder.RecordForwardFailure(target.ServiceName)
			continue
		}
		logger.Debug("forwarded outcome", "target", target.ServiceName)
	}
}

// Prompt renders the collection prompt and, when a synthesizer is set,
// attaches its audio. Synthesis failures leave a text-only result.
func (d *Dispatcher) Prompt(ctx context.Context, req *message.PromptRequest) (*message.PromptResult, error) {
	id := message.NewRequestID()
	logger := slog.With("request_id", id, "client_id", req.ClientID)

	text, lang, err := tts.RenderPrompt(d.lex, req)
	if err != nil {
		if errors.Is(err, tts.ErrInvalidPrompt) {
			return nil, badRequest("%v", err)
		}
		return nil, err
	}
	res := &message.PromptResult{RequestID: id, Text: text, Language: lang}

	if d.synthesizer != nil {
		audioRes, err := d.synthesizer.Synthesize(ctx, text, tts.SynthesizeOpts{Language: lang})
		if err != nil {
			logger.Warn("TTS synthesis failed, continuing without audio", "error", err)
		} else {
			res.SetAudioBytes(audioRes.Audio)
			res.ContentType = audioRes.ContentType
			logger.Info("TTS synthesis complete", "audio_bytes", len(audioRes.Audio))
		}
	}
	return res, nil
}

// Health reports healthy when every model is usable, degraded when some are
// and unhealthy when none are.
func (d *Dispatcher) Health(_ context.Context) *message.HealthStatus {
	models := make(map[message.Language]bool, len(message.SupportedLanguages))
	up := 0
	for _, l := range message.SupportedLanguages {
		models[l] = d.recognizer.IsModelAvailable(l)
		if models[l] {
			up++
		}
	}

	status := message.HealthDegraded
	switch up {
	case len(models):
		status = message.HealthHealthy
	case 0:
		status = message.HealthUnhealthy
	}

	available := d.recognizer.AvailableLanguages()
	if available == nil {
		available = []message.Language{}
	}
	return &message.HealthStatus{
		Status:             status,
		Timestamp:          d.now().UTC(),
		Version:            d.version,
		Models:             models,
		AvailableLanguages: available,
	}
}

// Languages lists the supported languages in preference order.
func (d *Dispatcher) Languages() []message.LanguageInfo {
	out := make([]message.LanguageInfo, 0, len(message.SupportedLanguages))
	for _, l := range message.SupportedLanguages {
		out = append(out, message.LanguageInfo{
			Code:      l,
			Name:      d.lex.Lang(l).Name,
			Available: d.recognizer.IsModelAvailable(l),
		})
	}
	return out
}

// Categories lists the taxonomy described in lang, Russian when lang is
// not supported.
func (d *Dispatcher) Categories(lang message.Language) []message.CategoryInfo {
	if !lang.Supported() {
		lang = message.LanguageRU
	}
	out := make([]message.CategoryInfo, 0, len(message.Categories))
	for _, c := range message.Categories {
		out = append(out, message.CategoryInfo{Code: c, Description: d.classifier.Describe(c, lang)})
	}
	return out
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

type nopRecorder struct{}

func (nopRecorder) RecordClassification(message.Category, message.Language) {}
func (nopRecorder) RecordAudioRejection(string)                             {}
func (nopRecorder) RecordAudioAccepted(time.Duration)                       {}
func (nopRecorder) RecordForwardFailure(string)                             {}
