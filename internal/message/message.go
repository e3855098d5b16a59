// Package message defines the core data types flowing through the dunning pipeline.
package message

import (
	"encoding/base64"
	"time"

	"github.com/google/uuid"
)

// NewRequestID returns a short random identifier for correlating a request
// with its logs and forwarded outcome.
func NewRequestID() string {
	return uuid.NewString()[:8]
}

// Language is the language tag of a transcript or a recognition model.
type Language string

const (
	LanguageRU      Language = "ru"
	LanguageKK      Language = "kk"
	LanguageUnknown Language = "unknown"

	// LanguageAuto is a request preference, never a detection result.
	LanguageAuto Language = "auto"
)

// SupportedLanguages lists the languages with recognition models, in
// preference order. Russian comes first: it is the fallback on ambiguity.
var SupportedLanguages = []Language{LanguageRU, LanguageKK}

// ParsePreference parses a caller-supplied language preference.
// The empty string means auto.
func ParsePreference(s string) (Language, bool) {
	switch Language(s) {
	case "", LanguageAuto:
		return LanguageAuto, true
	case LanguageRU, LanguageKK:
		return Language(s), true
	}
	return "", false
}

// Supported reports whether l has a recognition model slot.
func (l Language) Supported() bool {
	return l == LanguageRU || l == LanguageKK
}

// Category is one of the closed set of debtor intents.
type Category string

const (
	CategoryPromise     Category = "promise"
	CategoryIgnore      Category = "ignore"
	CategoryHelp        Category = "help"
	CategoryWrongNumber Category = "wrong_number"
	CategoryThirdParty  Category = "third_party"
	CategoryHangup      Category = "hangup"
)

// Categories is the full taxonomy in presentation order.
var Categories = []Category{
	CategoryIgnore,
	CategoryPromise,
	CategoryHelp,
	CategoryWrongNumber,
	CategoryThirdParty,
	CategoryHangup,
}

// SubstantiveCategories are the categories backed by keyword evidence.
// Hangup is only ever selected by default.
var SubstantiveCategories = []Category{
	CategoryPromise,
	CategoryIgnore,
	CategoryHelp,
	CategoryWrongNumber,
	CategoryThirdParty,
}

// Substantive reports whether c is scored from keyword evidence.
func (c Category) Substantive() bool {
	for _, s := range SubstantiveCategories {
		if s == c {
			return true
		}
	}
	return false
}

// RecognitionResult is the outcome of speech recognition for one stream.
type RecognitionResult struct {
	Transcript string   `json:"transcript"`
	Language   Language `json:"language"`

	// EngineConfidence is reported by engines that expose one (nil otherwise).
	EngineConfidence *float64 `json:"engine_confidence,omitempty"`
}

// ClassificationResult is the outcome of classifying one transcript.
type ClassificationResult struct {
	Category   Category `json:"category"`
	Confidence float64  `json:"confidence"`

	// MatchedKeywords holds the lexical evidence for Category in scan order.
	// Never nil, so it always serializes as a JSON array.
	MatchedKeywords []string `json:"matched_keywords"`

	// PromisedDate is an ISO calendar date (YYYY-MM-DD), set only for promises
	// that name a recognizable relative date.
	PromisedDate string `json:"promised_date,omitempty"`

	// Reason is the hardship clause, set only for help requests.
	Reason string `json:"reason,omitempty"`
}

// Classification is a ClassificationResult decorated for presentation.
type Classification struct {
	ClassificationResult
	CategoryDescription string `json:"category_description"`
}

// VoiceRequest is an uploaded debtor reply to recognize and classify.
type VoiceRequest struct {
	ID string `json:"id"`

	// Audio is the raw upload, expected to be 16 kHz mono 16-bit PCM WAV.
	Audio []byte `json:"-"`

	// Filename is the client-side name of the upload, if any.
	Filename string `json:"filename,omitempty"`

	// Language is the recognition preference: ru, kk or auto.
	Language Language `json:"language"`
}

// VoiceResult is the response to a VoiceRequest.
type VoiceResult struct {
	Success   bool      `json:"success"`
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`

	Transcript         string   `json:"transcript"`
	DetectedLanguage   Language `json:"detected_language"`
	LanguageConfidence float64  `json:"language_confidence"`

	Classification Classification `json:"classification"`

	ProcessingTimeMs float64 `json:"processing_time_ms"`
	AudioDurationSec float64 `json:"audio_duration_sec"`
}

// TextRequest is a transcript supplied directly by the caller.
type TextRequest struct {
	ID       string   `json:"-"`
	Text     string   `json:"text"`
	Language Language `json:"language,omitempty"`
}

// TextResult is the response to a TextRequest.
type TextResult struct {
	Success          bool           `json:"success"`
	RequestID        string         `json:"request_id"`
	Timestamp        time.Time      `json:"timestamp"`
	Text             string         `json:"text"`
	DetectedLanguage Language       `json:"detected_language"`
	Classification   Classification `json:"classification"`
}

// HealthState summarizes model availability.
type HealthState string

const (
	HealthHealthy   HealthState = "healthy"
	HealthDegraded  HealthState = "degraded"
	HealthUnhealthy HealthState = "unhealthy"
)

// HealthStatus reports which recognition models are usable.
type HealthStatus struct {
	Status             HealthState       `json:"status"`
	Timestamp          time.Time         `json:"timestamp"`
	Version            string            `json:"version"`
	Models             map[Language]bool `json:"models"`
	AvailableLanguages []Language        `json:"available_languages"`
}

// LanguageInfo describes a supported language.
type LanguageInfo struct {
	Code      Language `json:"code"`
	Name      string   `json:"name"`
	Available bool     `json:"available"`
}

// CategoryInfo is a category with its localized description.
type CategoryInfo struct {
	Code        Category `json:"code"`
	Description string   `json:"description"`
}

// ErrorResponse is the body of every failed API call.
type ErrorResponse struct {
	Success   bool      `json:"success"`
	Error     string    `json:"error"`
	ErrorCode string    `json:"error_code"`
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
}

// PromptRequest describes the debtor a collection prompt is addressed to.
type PromptRequest struct {
	ClientID    string   `json:"client_id,omitempty"`
	FullName    string   `json:"fio"`
	Creditor    string   `json:"creditor"`
	Amount      float64  `json:"amount"`
	DaysOverdue int      `json:"days_overdue"`
	Language    Language `json:"language,omitempty"`
}

// PromptResult carries the prompt text and, when TTS is enabled, its audio.
type PromptResult struct {
	RequestID   string   `json:"request_id"`
	Text        string   `json:"text"`
	Language    Language `json:"language"`
	Audio       string   `json:"audio,omitempty"`
	ContentType string   `json:"content_type,omitempty"`
}

// SetAudioBytes base64-encodes raw audio bytes into Audio.
func (r *PromptResult) SetAudioBytes(audio []byte) {
	if len(audio) > 0 {
		r.Audio = base64.StdEncoding.EncodeToString(audio)
	}
}

// Target defines a downstream service that receives call outcomes.
type Target struct {
	// ServiceName is a human-readable identifier (e.g., "crm").
	ServiceName string `json:"service_name"`

	// Endpoint is the address to reach this target.
	Endpoint string `json:"endpoint"`

	// Protocol selects the transport used to deliver ("http").
	Protocol string `json:"protocol"`

	// Token is sent as a bearer credential when non-empty.
	Token string `json:"-"`
}

// CallOutcome is the payload forwarded to targets after a classification.
type CallOutcome struct {
	RequestID      string               `json:"request_id"`
	Source         string               `json:"source"` // "voice" or "text"
	Transcript     string               `json:"transcript"`
	Language       Language             `json:"language"`
	Classification ClassificationResult `json:"classification"`
	ClassifiedAt   time.Time            `json:"classified_at"`
}
