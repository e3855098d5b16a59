package dispatch

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nadzzz/dunning/internal/audio"
	"github.com/nadzzz/dunning/internal/classifier"
	"github.com/nadzzz/dunning/internal/langdetect"
	"github.com/nadzzz/dunning/internal/lexicon"
	"github.com/nadzzz/dunning/internal/message"
	"github.com/nadzzz/dunning/internal/recognizer"
	"github.com/nadzzz/dunning/internal/transport"
	"github.com/nadzzz/dunning/internal/tts"
)

var almaty = time.FixedZone("ALMT", 5*60*60)

var fixedNow = time.Date(2026, time.March, 14, 10, 0, 0, 0, almaty)

type fakeRecognizer struct {
	result    message.RecognitionResult
	err       error
	block     bool
	available map[message.Language]bool

	mu    sync.Mutex
	calls []message.Language // auto for RecognizeAuto
}

func (f *fakeRecognizer) run(ctx context.Context, lang message.Language) (*message.RecognitionResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, lang)
	f.mu.Unlock()
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.err != nil {
		return nil, f.err
	}
	res := f.result
	return &res, nil
}

func (f *fakeRecognizer) Recognize(ctx context.Context, _ *audio.Stream, lang message.Language) (*message.RecognitionResult, error) {
	return f.run(ctx, lang)
}

func (f *fakeRecognizer) RecognizeAuto(ctx context.Context, _ *audio.Stream) (*message.RecognitionResult, error) {
	return f.run(ctx, message.LanguageAuto)
}

func (f *fakeRecognizer) IsModelAvailable(lang message.Language) bool { return f.available[lang] }

func (f *fakeRecognizer) AvailableLanguages() []message.Language {
	var out []message.Language
	for _, l := range message.SupportedLanguages {
		if f.available[l] {
			out = append(out, l)
		}
	}
	return out
}

type fakeSender struct {
	err      error
	mu       sync.Mutex
	payloads [][]byte
}

func (s *fakeSender) Send(_ context.Context, _ message.Target, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.payloads = append(s.payloads, payload)
	return s.err
}

type fakeRecorder struct {
	rejections []string
	forwards   []string
	classified []message.Category
}

func (r *fakeRecorder) RecordClassification(c message.Category, _ message.Language) {
	r.classified = append(r.classified, c)
}
func (r *fakeRecorder) RecordAudioRejection(reason string) { r.rejections = append(r.rejections, reason) }
func (r *fakeRecorder) RecordAudioAccepted(time.Duration)   {}
func (r *fakeRecorder) RecordForwardFailure(target string)  { r.forwards = append(r.forwards, target) }

type fakeSynth struct{ err error }

func (s fakeSynth) Synthesize(_ context.Context, text string, opts tts.SynthesizeOpts) (*tts.SynthesizeResult, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &tts.SynthesizeResult{Audio: []byte("RIFF" + string(opts.Language)), ContentType: "audio/wav"}, nil
}

func (fakeSynth) Close() error { return nil }

func newDispatcher(t *testing.T, rec Recognizer, opts ...Option) *Dispatcher {
	t.Helper()
	lex := lexicon.MustDefault()
	cls := classifier.New(lex,
		classifier.WithClock(func() time.Time { return fixedNow }),
		classifier.WithLocation(almaty),
	)
	opts = append([]Option{WithClock(func() time.Time { return fixedNow })}, opts...)
	return New(rec, langdetect.New(lex), cls, lex, opts...)
}

// oneSecond is a valid 16 kHz mono 16-bit upload.
func oneSecond() []byte {
	return audio.EncodeWAV(make([]byte, 32000), audio.SampleRate, audio.Channels, audio.BitDepth)
}

func TestProcessVoice(t *testing.T) {
	rec := &fakeRecognizer{result: message.RecognitionResult{Transcript: "Ертең міндетті төлеймін", Language: message.LanguageKK}}
	sender := &fakeSender{}
	d := newDispatcher(t, rec, WithTargets(
		[]message.Target{{ServiceName: "crm", Endpoint: "http://crm.local/hook", Protocol: "http"}},
		map[string]transport.Sender{"http": sender},
	))

	res, err := d.ProcessVoice(context.Background(), &message.VoiceRequest{
		ID:       "req12345",
		Audio:    oneSecond(),
		Filename: "reply.WAV",
		Language: message.LanguageKK,
	})
	if err != nil {
		t.Fatalf("ProcessVoice: %v", err)
	}
	if !res.Success || res.RequestID != "req12345" {
		t.Errorf("result = %+v", res)
	}
	if res.DetectedLanguage != message.LanguageKK || res.LanguageConfidence != 1 {
		t.Errorf("language = %s (%v), want kk (1)", res.DetectedLanguage, res.LanguageConfidence)
	}
	if res.AudioDurationSec != 1 {
		t.Errorf("AudioDurationSec = %v, want 1", res.AudioDurationSec)
	}
	c := res.Classification
	if c.Category != message.CategoryPromise || c.PromisedDate != "2026-03-15" || c.CategoryDescription != "Төлеу уәдесі" {
		t.Errorf("classification = %+v", c)
	}
	if len(rec.calls) != 1 || rec.calls[0] != message.LanguageKK {
		t.Errorf("recognizer calls = %v", rec.calls)
	}

	if len(sender.payloads) != 1 {
		t.Fatalf("forwarded %d payloads, want 1", len(sender.payloads))
	}
	var out message.CallOutcome
	if err := json.Unmarshal(sender.payloads[0], &out); err != nil {
		t.Fatal(err)
	}
	if out.RequestID != "req12345" || out.Source != "voice" || out.Classification.Category != message.CategoryPromise {
		t.Errorf("forwarded outcome = %+v", out)
	}
}

func TestProcessVoiceAuto(t *testing.T) {
	rec := &fakeRecognizer{result: message.RecognitionResult{Transcript: "", Language: message.LanguageRU}}
	d := newDispatcher(t, rec)

	res, err := d.ProcessVoice(context.Background(), &message.VoiceRequest{Audio: oneSecond()})
	if err != nil {
		t.Fatalf("ProcessVoice: %v", err)
	}
	if len(rec.calls) != 1 || rec.calls[0] != message.LanguageAuto {
		t.Errorf("recognizer calls = %v, want one auto call", rec.calls)
	}
	if len(res.RequestID) != 8 {
		t.Errorf("RequestID = %q, want 8 characters", res.RequestID)
	}
	if res.Classification.Category != message.CategoryHangup || res.LanguageConfidence != 0 {
		t.Errorf("silence = %+v (lang conf %v)", res.Classification, res.LanguageConfidence)
	}
}

func TestProcessVoiceRejects(t *testing.T) {
	tests := []struct {
		name     string
		req      message.VoiceRequest
		wantCode string
	}{
		{"non wav filename", message.VoiceRequest{Audio: oneSecond(), Filename: "reply.mp3"}, CodeInvalidFileType},
		{"unknown language", message.VoiceRequest{Audio: oneSecond(), Language: "en"}, CodeInvalidRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &fakeRecognizer{}
			d := newDispatcher(t, rec)
			_, err := d.ProcessVoice(context.Background(), &tt.req)
			var re *RequestError
			if !errors.As(err, &re) || re.Code != tt.wantCode {
				t.Fatalf("err = %v, want RequestError %s", err, tt.wantCode)
			}
			if len(rec.calls) != 0 {
				t.Error("recognizer was called for a rejected request")
			}
		})
	}
}

func TestProcessVoiceBadAudio(t *testing.T) {
	rec := &fakeRecognizer{}
	metrics := &fakeRecorder{}
	d := newDispatcher(t, rec, WithRecorder(metrics))

	_, err := d.ProcessVoice(context.Background(), &message.VoiceRequest{
		Audio: audio.EncodeWAV(make([]byte, 1600), 8000, 1, 16),
	})
	if !errors.Is(err, audio.ErrFormat) {
		t.Fatalf("err = %v, want audio.ErrFormat", err)
	}
	if len(metrics.rejections) != 1 || metrics.rejections[0] != "wrong_sample_rate" {
		t.Errorf("rejections = %v", metrics.rejections)
	}
	if len(rec.calls) != 0 {
		t.Error("recognizer was called for invalid audio")
	}
}

func TestProcessVoiceRecognitionErrors(t *testing.T) {
	rec := &fakeRecognizer{err: &recognizer.ModelNotFoundError{Language: message.LanguageKK}}
	d := newDispatcher(t, rec)
	_, err := d.ProcessVoice(context.Background(), &message.VoiceRequest{Audio: oneSecond(), Language: message.LanguageKK})
	var mnf *recognizer.ModelNotFoundError
	if !errors.As(err, &mnf) {
		t.Fatalf("err = %v, want ModelNotFoundError", err)
	}
}

func TestProcessVoiceTimeout(t *testing.T) {
	d := newDispatcher(t, &fakeRecognizer{block: true}, WithTimeout(20*time.Millisecond))
	_, err := d.ProcessVoice(context.Background(), &message.VoiceRequest{Audio: oneSecond(), Language: message.LanguageRU})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want DeadlineExceeded", err)
	}
}

func TestForwardFailuresDoNotFailRequest(t *testing.T) {
	metrics := &fakeRecorder{}
	failing := &fakeSender{err: errors.New("connection refused")}
	d := newDispatcher(t, &fakeRecognizer{}, WithRecorder(metrics), WithTargets(
		[]message.Target{
			{ServiceName: "crm", Protocol: "http"},
			{ServiceName: "queue", Protocol: "mqtt"},
		},
		map[string]transport.Sender{"http": failing},
	))

	res, err := d.ClassifyText(context.Background(), &message.TextRequest{Text: "Не буду платить", Language: message.LanguageRU})
	if err != nil {
		t.Fatalf("ClassifyText: %v", err)
	}
	if res.Classification.Category != message.CategoryIgnore {
		t.Errorf("Category = %s", res.Classification.Category)
	}
	if len(failing.payloads) != 1 {
		t.Errorf("http sender got %d payloads", len(failing.payloads))
	}
	if len(metrics.forwards) != 2 {
		t.Errorf("forward failures = %v, want crm and queue", metrics.forwards)
	}
	if len(metrics.classified) != 1 || metrics.classified[0] != message.CategoryIgnore {
		t.Errorf("classifications = %v", metrics.classified)
	}
}

func TestClassifyTextLanguage(t *testing.T) {
	d := newDispatcher(t, &fakeRecognizer{})
	tests := []struct {
		text string
		pref message.Language
		want message.Language
	}{
		{"Ертең міндетті төлеймін", message.LanguageAuto, message.LanguageKK},
		{"Я заплачу завтра", "", message.LanguageRU},
		{"hello", message.LanguageAuto, message.LanguageRU},
		{"Ертең төлеймін", message.LanguageRU, message.LanguageRU},
	}
	for _, tt := range tests {
		res, err := d.ClassifyText(context.Background(), &message.TextRequest{Text: tt.text, Language: tt.pref})
		if err != nil {
			t.Fatalf("ClassifyText(%q): %v", tt.text, err)
		}
		if res.DetectedLanguage != tt.want {
			t.Errorf("ClassifyText(%q, %q) language = %s, want %s", tt.text, tt.pref, res.DetectedLanguage, tt.want)
		}
		if res.Text != tt.text {
			t.Errorf("Text = %q", res.Text)
		}
	}
}

func TestClassifyTextRejects(t *testing.T) {
	d := newDispatcher(t, &fakeRecognizer{})
	for _, req := range []message.TextRequest{{Text: "   "}, {Text: "привет", Language: "de"}} {
		_, err := d.ClassifyText(context.Background(), &req)
		var re *RequestError
		if !errors.As(err, &re) || re.Code != CodeInvalidRequest {
			t.Errorf("ClassifyText(%+v) err = %v, want INVALID_REQUEST", req, err)
		}
	}
}

func TestPrompt(t *testing.T) {
	req := &message.PromptRequest{FullName: "Иванов Иван", Creditor: "Kaspi", Amount: 1000, DaysOverdue: 5, Language: message.LanguageKK}

	d := newDispatcher(t, &fakeRecognizer{}, WithSynthesizer(fakeSynth{}))
	res, err := d.Prompt(context.Background(), req)
	if err != nil {
		t.Fatalf("Prompt: %v", err)
	}
	if res.Language != message.LanguageKK || res.Text == "" || res.ContentType != "audio/wav" {
		t.Errorf("result = %+v", res)
	}
	if raw, _ := base64.StdEncoding.DecodeString(res.Audio); string(raw) != "RIFFkk" {
		t.Errorf("audio = %q", raw)
	}

	d = newDispatcher(t, &fakeRecognizer{}, WithSynthesizer(fakeSynth{err: errors.New("piper down")}))
	res, err = d.Prompt(context.Background(), req)
	if err != nil {
		t.Fatalf("Prompt with failing TTS: %v", err)
	}
	if res.Audio != "" || res.Text == "" {
		t.Errorf("result = %+v, want text only", res)
	}

	_, err = d.Prompt(context.Background(), &message.PromptRequest{Amount: 10})
	var re *RequestError
	if !errors.As(err, &re) {
		t.Errorf("err = %v, want RequestError", err)
	}
}

func TestHealth(t *testing.T) {
	tests := []struct {
		available map[message.Language]bool
		want      message.HealthState
	}{
		{map[message.Language]bool{message.LanguageRU: true, message.LanguageKK: true}, message.HealthHealthy},
		{map[message.Language]bool{message.LanguageRU: true}, message.HealthDegraded},
		{nil, message.HealthUnhealthy},
	}
	for _, tt := range tests {
		d := newDispatcher(t, &fakeRecognizer{available: tt.available}, WithVersion("1.2.3"))
		h := d.Health(context.Background())
		if h.Status != tt.want {
			t.Errorf("available %v: status = %s, want %s", tt.available, h.Status, tt.want)
		}
		if h.Version != "1.2.3" || len(h.Models) != 2 || h.AvailableLanguages == nil {
			t.Errorf("health = %+v", h)
		}
	}
}

func TestLanguagesAndCategories(t *testing.T) {
	d := newDispatcher(t, &fakeRecognizer{available: map[message.Language]bool{message.LanguageKK: true}})

	langs := d.Languages()
	if len(langs) != 2 || langs[0].Code != message.LanguageRU || langs[0].Available || !langs[1].Available {
		t.Errorf("Languages = %+v", langs)
	}
	if langs[1].Name != "Қазақша" {
		t.Errorf("kk name = %q", langs[1].Name)
	}

	cats := d.Categories("xx")
	if len(cats) != len(message.Categories) {
		t.Fatalf("Categories = %+v", cats)
	}
	if cats[0].Code != message.CategoryIgnore || cats[0].Description != "Отказ от оплаты" {
		t.Errorf("first category = %+v", cats[0])
	}
	if kk := d.Categories(message.LanguageKK); kk[5].Description != "Байланыс ақаулығы" {
		t.Errorf("kk hangup = %+v", kk[5])
	}
}
