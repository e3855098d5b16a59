// Package whisper transcribes audio through Whisper-compatible HTTP servers.
//
// Two API flavors are supported:
//   - "openai": OpenAI-compatible /v1/audio/transcriptions (OpenAI, whisper.cpp
//     server, faster-whisper)
//   - "asr":    ahmetoner/whisper-asr-webservice (POST /asr with query params)
//
// Each language is served by its own endpoint. A model is "available" when an
// endpoint is configured for it; loading is free and opens no connection.
package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"

	"github.com/nadzzz/dunning/internal/audio"
	"github.com/nadzzz/dunning/internal/config"
	"github.com/nadzzz/dunning/internal/message"
	"github.com/nadzzz/dunning/internal/recognizer"
)

// Loader builds per-language transcription clients from config.
type Loader struct {
	endpoints map[message.Language]string
	apiType   string
	apiKey    string
	model     string
	vadFilter bool
	client    *http.Client
}

// New creates a loader from config. A nil client means http.DefaultClient.
func New(cfg config.WhisperConfig, client *http.Client) *Loader {
	if client == nil {
		client = http.DefaultClient
	}
	t := cfg.Type
	if t == "" {
		t = "openai"
	}
	endpoints := make(map[message.Language]string, len(cfg.Endpoints))
	for code, ep := range cfg.Endpoints {
		if lang := message.Language(code); lang.Supported() && ep != "" {
			endpoints[lang] = ep
		}
	}
	return &Loader{
		endpoints: endpoints,
		apiType:   t,
		apiKey:    cfg.APIKey,
		model:     cfg.Model,
		vadFilter: cfg.VADFilter,
		client:    client,
	}
}

// Name returns the backend identifier.
func (l *Loader) Name() string { return config.BackendWhisper }

// Locate returns the endpoint for lang.
func (l *Loader) Locate(lang message.Language) (string, bool) {
	ep, ok := l.endpoints[lang]
	return ep, ok
}

// Load returns a client bound to the endpoint for lang.
func (l *Loader) Load(_ context.Context, lang message.Language) (recognizer.Model, error) {
	ep, ok := l.endpoints[lang]
	if !ok {
		return nil, &recognizer.ModelNotFoundError{Language: lang}
	}
	if _, err := url.Parse(ep); err != nil {
		return nil, fmt.Errorf("whisper endpoint for %s: %w", lang, err)
	}
	return &model{l: l, lang: lang, endpoint: ep}, nil
}

type model struct {
	l        *Loader
	lang     message.Language
	endpoint string
}

// response is the verbose_json body returned by both flavors.
type response struct {
	Text     string `json:"text"`
	Language string `json:"language"`
	Segments []struct {
		AvgLogprob float64 `json:"avg_logprob"`
	} `json:"segments"`
}

func (m *model) Transcribe(ctx context.Context, s *audio.Stream) (recognizer.Transcript, error) {
	var (
		req *http.Request
		err error
	)
	switch m.l.apiType {
	case "asr":
		req, err = m.asrRequest(ctx, s)
	default:
		req, err = m.openAIRequest(ctx, s)
	}
	if err != nil {
		return recognizer.Transcript{}, err
	}
	if m.l.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+m.l.apiKey)
	}

	resp, err := m.l.client.Do(req)
	if err != nil {
		return recognizer.Transcript{}, fmt.Errorf("transcription request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return recognizer.Transcript{}, fmt.Errorf("transcription failed (status %d): %s", resp.StatusCode, respBody)
	}

	var result response
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return recognizer.Transcript{}, fmt.Errorf("decoding transcription: %w", err)
	}

	slog.Debug("whisper transcription complete", "language", m.lang, "text_length", len(result.Text), "segments", len(result.Segments))
	return recognizer.Transcript{Text: result.Text, Confidence: confidence(result)}, nil
}

// asrRequest builds a whisper-asr-webservice request.
// API: POST /asr?task=transcribe&language=ru&output=json&vad_filter=true
// Body: multipart/form-data with field "audio_file"
func (m *model) asrRequest(ctx context.Context, s *audio.Stream) (*http.Request, error) {
	body, contentType, err := multipartBody("audio_file", s, nil)
	if err != nil {
		return nil, err
	}

	q := make(url.Values)
	q.Set("task", "transcribe")
	q.Set("output", "json")
	q.Set("encode", "true")
	q.Set("word_timestamps", "false")
	q.Set("language", string(m.lang))
	if m.l.vadFilter {
		q.Set("vad_filter", "true")
	}

	sep := "?"
	if strings.Contains(m.endpoint, "?") {
		sep = "&"
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.endpoint+sep+q.Encode(), body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	return req, nil
}

// openAIRequest builds an OpenAI-compatible transcription request.
func (m *model) openAIRequest(ctx context.Context, s *audio.Stream) (*http.Request, error) {
	fields := map[string]string{
		"language":        string(m.lang),
		"response_format": "verbose_json",
	}
	if m.l.model != "" {
		fields["model"] = m.l.model
	}
	body, contentType, err := multipartBody("file", s, fields)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	return req, nil
}

func multipartBody(field string, s *audio.Stream, fields map[string]string) (*bytes.Buffer, string, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile(field, "audio.wav")
	if err != nil {
		return nil, "", fmt.Errorf("creating form file: %w", err)
	}
	if _, err := part.Write(s.Bytes()); err != nil {
		return nil, "", fmt.Errorf("writing audio: %w", err)
	}
	for k, v := range fields {
		if err := writer.WriteField(k, v); err != nil {
			return nil, "", fmt.Errorf("writing field %s: %w", k, err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("closing form: %w", err)
	}
	return body, writer.FormDataContentType(), nil
}

// confidence maps the mean segment log-probability to a probability. Servers
// that omit segments give no confidence.
func confidence(r response) *float64 {
	if len(r.Segments) == 0 {
		return nil
	}
	var sum float64
	for _, seg := range r.Segments {
		sum += seg.AvgLogprob
	}
	c := min(math.Exp(sum/float64(len(r.Segments))), 1.0)
	return &c
}

func (m *model) Close() error { return nil }
