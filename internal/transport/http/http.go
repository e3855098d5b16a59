// Package http implements the REST transport for dunning.
//
// The API lives under /api/voice: uploads are recognized and classified,
// transcripts are classified directly, and collection prompts are rendered.
// Swagger UI is served from /swagger/.
package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"sync"
	"time"

	httpSwagger "github.com/swaggo/http-swagger/v2"

	"github.com/nadzzz/dunning/internal/audio"
	"github.com/nadzzz/dunning/internal/config"
	"github.com/nadzzz/dunning/internal/dispatch"
	"github.com/nadzzz/dunning/internal/message"
	"github.com/nadzzz/dunning/internal/recognizer"
	"github.com/nadzzz/dunning/internal/transport"
)

// Error codes returned in message.ErrorResponse.
const (
	CodeInvalidAudioFormat = "INVALID_AUDIO_FORMAT"
	CodePayloadTooLarge    = "PAYLOAD_TOO_LARGE"
	CodeModelNotFound      = "MODEL_NOT_FOUND"
	CodeSTTError           = "STT_ERROR"
	CodeTimeout            = "TIMEOUT"
	CodeInternalError      = "INTERNAL_ERROR"
)

// Recorder receives per-request metrics.
type Recorder interface {
	RecordHTTPRequest(method, endpoint, statusCode string, d time.Duration)
}

// Option configures a Transport.
type Option func(*Transport)

// WithRecorder records request counts and latency.
func WithRecorder(r Recorder) Option {
	return func(t *Transport) { t.recorder = r }
}

// WithClient sets the client used by Send.
func WithClient(c *http.Client) Option {
	return func(t *Transport) { t.client = c }
}

// Transport implements transport.Transport over HTTP.
type Transport struct {
	port      int
	maxUpload int64
	recorder  Recorder
	client    *http.Client

	mu     sync.Mutex
	server *http.Server
	closed bool
}

var _ transport.Transport = (*Transport)(nil)

// New creates a new HTTP transport.
func New(cfg config.HTTPConfig, opts ...Option) *Transport {
	t := &Transport{
		port:      cfg.Port,
		maxUpload: cfg.MaxUploadMB << 20,
		client:    &http.Client{Timeout: 10 * time.Second},
	}
	if t.maxUpload <= 0 {
		t.maxUpload = 25 << 20
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Name returns the transport identifier.
func (t *Transport) Name() string { return "http" }

// Handler returns the API routes backed by svc.
func (t *Transport) Handler(svc transport.Service) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/voice/health", func(w http.ResponseWriter, r *http.Request) {
		t.handleHealth(w, r, svc)
	})
	mux.HandleFunc("POST /api/voice/process", func(w http.ResponseWriter, r *http.Request) {
		t.handleProcess(w, r, svc)
	})
	mux.HandleFunc("POST /api/voice/classify", func(w http.ResponseWriter, r *http.Request) {
		t.handleClassify(w, r, svc)
	})
	mux.HandleFunc("GET /api/voice/languages", func(w http.ResponseWriter, r *http.Request) {
		t.handleLanguages(w, r, svc)
	})
	mux.HandleFunc("GET /api/voice/categories", func(w http.ResponseWriter, r *http.Request) {
		t.handleCategories(w, r, svc)
	})
	mux.HandleFunc("POST /api/voice/prompt", func(w http.ResponseWriter, r *http.Request) {
		t.handlePrompt(w, r, svc)
	})

	// Swagger UI over the document registered by package docs.
	mux.Handle("GET /swagger/", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))

	if t.recorder == nil {
		return mux
	}
	return t.instrument(mux)
}

// Listen starts the HTTP server and serves requests from svc.
func (t *Transport) Listen(ctx context.Context, svc transport.Service) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", t.port),
		Handler:           t.Handler(svc),
		ReadHeaderTimeout: 10 * time.Second,
	}
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.server = srv
	t.mu.Unlock()

	slog.Info("http transport listening", "port", t.port, "max_upload_bytes", t.maxUpload)

	stop := context.AfterFunc(ctx, func() {
		slog.Info("http transport shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	})
	defer stop()

	if err := srv.ListenAndServe(); err != http.ErrServerClosed {
		return fmt.Errorf("http listen: %w", err)
	}
	return nil
}

// handleHealth reports model availability.
//
// @Summary     Service health
// @Description Reports which recognition models are usable: healthy (all), degraded (some) or unhealthy (none).
// @Tags        voice
// @Produce     json
// @Success     200  {object}  message.HealthStatus
// @Router      /api/voice/health [get]
func (t *Transport) handleHealth(w http.ResponseWriter, r *http.Request, svc transport.Service) {
	writeJSON(w, http.StatusOK, svc.Health(r.Context()))
}

// handleProcess recognizes and classifies an uploaded reply.
//
// @Summary     Recognize and classify a voice reply
// @Description Accepts a 16 kHz mono 16-bit PCM WAV either as multipart field "audio" (with form field
// @Description "language") or as a raw audio/wav body (with query parameter "language").
// @Description The reply is transcribed and sorted into one of six categories.
// @Tags        voice
// @Accept      multipart/form-data
// @Accept      audio/wav
// @Produce     json
// @Param       audio     formData  file    false  "WAV file (16kHz, mono, 16-bit)"
// @Param       language  formData  string  false  "Recognition language"  Enums(ru, kk, auto)  default(auto)
// @Success     200  {object}  message.VoiceResult
// @Failure     400  {object}  message.ErrorResponse  "Invalid file type or audio format"
// @Failure     413  {object}  message.ErrorResponse  "Upload too large"
// @Failure     500  {object}  message.ErrorResponse  "Recognition error"
// @Failure     503  {object}  message.ErrorResponse  "Recognition model not installed"
// @Router      /api/voice/process [post]
func (t *Transport) handleProcess(w http.ResponseWriter, r *http.Request, svc transport.Service) {
	req := &message.VoiceRequest{ID: message.NewRequestID()}
	r.Body = http.MaxBytesReader(w, r.Body, t.maxUpload)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "multipart/form-data":
		if err := r.ParseMultipartForm(t.maxUpload); err != nil {
			writeError(w, req.ID, invalidInput("invalid multipart form", err))
			return
		}
		defer r.MultipartForm.RemoveAll()

		f, hdr, err := r.FormFile("audio")
		if err != nil {
			writeError(w, req.ID, &dispatch.RequestError{Code: dispatch.CodeInvalidRequest, Message: "multipart field \"audio\" is required"})
			return
		}
		defer f.Close()
		if req.Audio, err = io.ReadAll(f); err != nil {
			writeError(w, req.ID, fmt.Errorf("reading upload: %w", err))
			return
		}
		if hdr.Filename == "" {
			writeError(w, req.ID, &dispatch.RequestError{Code: dispatch.CodeInvalidFileType, Message: "a WAV file is required"})
			return
		}
		req.Filename = hdr.Filename
		req.Language = message.Language(r.FormValue("language"))

	case "audio/wav", "audio/x-wav", "audio/wave", "application/octet-stream", "":
		audioData, err := io.ReadAll(r.Body)
		if err != nil {
			writeError(w, req.ID, fmt.Errorf("reading audio: %w", err))
			return
		}
		req.Audio = audioData
		req.Language = message.Language(r.URL.Query().Get("language"))

	default:
		writeError(w, req.ID, &dispatch.RequestError{Code: dispatch.CodeInvalidFileType, Message: "a WAV file is required"})
		return
	}

	result, err := svc.ProcessVoice(r.Context(), req)
	if err != nil {
		writeError(w, req.ID, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleClassify classifies a transcript.
//
// @Summary     Classify a text reply
// @Description Classifies a debtor reply that is already transcribed or typed in.
// @Description With language "auto" the language is detected, falling back to Russian.
// @Tags        voice
// @Accept      json
// @Produce     json
// @Param       request  body      message.TextRequest  true  "Reply text"
// @Success     200  {object}  message.TextResult
// @Failure     400  {object}  message.ErrorResponse  "Invalid request"
// @Router      /api/voice/classify [post]
func (t *Transport) handleClassify(w http.ResponseWriter, r *http.Request, svc transport.Service) {
	req := &message.TextRequest{ID: message.NewRequestID()}
	if !decodeJSON(w, r, req.ID, req) {
		return
	}
	result, err := svc.ClassifyText(r.Context(), req)
	if err != nil {
		writeError(w, req.ID, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type languagesResponse struct {
	Languages []message.LanguageInfo `json:"languages"`
}

// handleLanguages lists supported languages.
//
// @Summary     Supported languages
// @Tags        voice
// @Produce     json
// @Success     200  {object}  languagesResponse
// @Router      /api/voice/languages [get]
func (t *Transport) handleLanguages(w http.ResponseWriter, _ *http.Request, svc transport.Service) {
	writeJSON(w, http.StatusOK, languagesResponse{Languages: svc.Languages()})
}

type categoriesResponse struct {
	Categories []message.CategoryInfo `json:"categories"`
}

// handleCategories lists the classification categories.
//
// @Summary     Classification categories
// @Tags        voice
// @Produce     json
// @Param       language  query  string  false  "Description language"  Enums(ru, kk)  default(ru)
// @Success     200  {object}  categoriesResponse
// @Failure     400  {object}  message.ErrorResponse  "Unsupported language"
// @Router      /api/voice/categories [get]
func (t *Transport) handleCategories(w http.ResponseWriter, r *http.Request, svc transport.Service) {
	lang := message.Language(r.URL.Query().Get("language"))
	if lang == "" {
		lang = message.LanguageRU
	}
	if !lang.Supported() {
		writeError(w, message.NewRequestID(), &dispatch.RequestError{
			Code:    dispatch.CodeInvalidRequest,
			Message: fmt.Sprintf("unsupported language %q", lang),
		})
		return
	}
	writeJSON(w, http.StatusOK, categoriesResponse{Categories: svc.Categories(lang)})
}

// handlePrompt renders the collection call prompt.
//
// @Summary     Collection prompt
// @Description Renders the greeting read to the debtor and, when TTS is enabled, synthesizes it.
// @Description Audio is returned base64-encoded.
// @Tags        voice
// @Accept      json
// @Produce     json
// @Param       request  body      message.PromptRequest  true  "Debtor details"
// @Success     200  {object}  message.PromptResult
// @Failure     400  {object}  message.ErrorResponse  "Invalid request"
// @Router      /api/voice/prompt [post]
func (t *Transport) handlePrompt(w http.ResponseWriter, r *http.Request, svc transport.Service) {
	var req message.PromptRequest
	id := message.NewRequestID()
	if !decodeJSON(w, r, id, &req) {
		return
	}
	result, err := svc.Prompt(r.Context(), &req)
	if err != nil {
		writeError(w, id, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, requestID string, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, requestID, invalidInput("invalid json", err))
		return false
	}
	return true
}

// invalidInput turns a body parsing error into a bad request, keeping
// oversized bodies distinguishable.
func invalidInput(what string, err error) error {
	var tooBig *http.MaxBytesError
	if errors.As(err, &tooBig) {
		return err
	}
	return &dispatch.RequestError{Code: dispatch.CodeInvalidRequest, Message: what + ": " + err.Error()}
}

// errorStatus maps a pipeline error to its HTTP status and error code.
func errorStatus(err error) (int, string) {
	var (
		reqErr   *dispatch.RequestError
		tooBig   *http.MaxBytesError
		notFound *recognizer.ModelNotFoundError
		recErr   *recognizer.RecognitionError
	)
	switch {
	case errors.As(err, &reqErr):
		return http.StatusBadRequest, reqErr.Code
	case errors.Is(err, audio.ErrFormat):
		return http.StatusBadRequest, CodeInvalidAudioFormat
	case errors.As(err, &tooBig):
		return http.StatusRequestEntityTooLarge, CodePayloadTooLarge
	case errors.As(err, &notFound):
		return http.StatusServiceUnavailable, CodeModelNotFound
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, CodeTimeout
	case errors.As(err, &recErr):
		return http.StatusInternalServerError, CodeSTTError
	}
	return http.StatusInternalServerError, CodeInternalError
}

func writeError(w http.ResponseWriter, requestID string, err error) {
	status, code := errorStatus(err)
	if status >= http.StatusInternalServerError {
		slog.Error("request failed", "request_id", requestID, "code", code, "error", err)
	}
	writeJSON(w, status, message.ErrorResponse{
		Success:   false,
		Error:     err.Error(),
		ErrorCode: code,
		RequestID: requestID,
		Timestamp: time.Now().UTC(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// statusWriter captures the status code for metrics.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (s *statusWriter) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (t *Transport) instrument(mux *http.ServeMux) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		mux.ServeHTTP(sw, r)

		// The mux records the matched pattern on the request.
		endpoint := r.Pattern
		if endpoint == "" {
			endpoint = "unmatched"
		}
		t.recorder.RecordHTTPRequest(r.Method, endpoint, strconv.Itoa(sw.status), time.Since(start))
	})
}

// Send delivers a payload to an HTTP target via POST.
func (t *Transport) Send(ctx context.Context, target message.Target, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("http send: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if target.Token != "" {
		req.Header.Set("Authorization", "Bearer "+target.Token)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("http send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("http send: status %d: %s", resp.StatusCode, body)
	}

	slog.Debug("http send success", "target", target.Endpoint, "status", resp.StatusCode)
	return nil
}

// Close gracefully shuts down the HTTP server.
func (t *Transport) Close() error {
	t.mu.Lock()
	t.closed = true
	srv := t.server
	t.mu.Unlock()
	if srv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}
