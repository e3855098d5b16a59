// Package metrics defines the Prometheus collectors of the dunning service.
package metrics

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/nadzzz/dunning/internal/message"
)

// Metrics contains all Prometheus metrics for the dunning service
type Metrics struct {
	// Classification metrics
	Classifications *prometheus.CounterVec

	// Recognition metrics
	Recognitions        *prometheus.CounterVec
	RecognitionDuration *prometheus.HistogramVec
	ModelLoads          *prometheus.CounterVec
	ModelLoadDuration   *prometheus.HistogramVec

	// Audio metrics
	AudioRejections *prometheus.CounterVec
	AudioDuration   prometheus.Histogram

	// Forwarding metrics
	ForwardFailures *prometheus.CounterVec

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// New creates all metrics and registers them with reg. A nil reg uses the
// default registry.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Metrics{
		Classifications: f.NewCounterVec(prometheus.CounterOpts{
			Name: "dunning_classifications_total",
			Help: "Total number of classified replies",
		}, []string{"category", "language"}),

		Recognitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "dunning_recognitions_total",
			Help: "Total number of recognition attempts",
		}, []string{"language", "outcome"}),
		RecognitionDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "dunning_recognition_duration_seconds",
			Help:    "Duration of recognition calls",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms to ~25s
		}, []string{"language"}),
		ModelLoads: f.NewCounterVec(prometheus.CounterOpts{
			Name: "dunning_model_loads_total",
			Help: "Total number of recognition model loads",
		}, []string{"language", "outcome"}),
		ModelLoadDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "dunning_model_load_duration_seconds",
			Help:    "Duration of recognition model loads",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~50s
		}, []string{"language"}),

		AudioRejections: f.NewCounterVec(prometheus.CounterOpts{
			Name: "dunning_audio_rejections_total",
			Help: "Total number of rejected audio uploads",
		}, []string{"reason"}),
		AudioDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "dunning_audio_duration_seconds",
			Help:    "Duration of accepted audio uploads",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 8), // 0.5s to ~1 minute
		}),

		ForwardFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "dunning_forward_failures_total",
			Help: "Total number of outcomes that could not be delivered to a target",
		}, []string{"target"}),

		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "dunning_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status_code"}),
		HTTPRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "dunning_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
	}
}

// RecordClassification counts one classified reply
func (m *Metrics) RecordClassification(c message.Category, lang message.Language) {
	m.Classifications.WithLabelValues(string(c), string(lang)).Inc()
}

// RecordAudioRejection counts one rejected upload
func (m *Metrics) RecordAudioRejection(reason string) {
	m.AudioRejections.WithLabelValues(reason).Inc()
}

// RecordAudioAccepted records the duration of an accepted upload
func (m *Metrics) RecordAudioAccepted(d time.Duration) {
	m.AudioDuration.Observe(d.Seconds())
}

// RecordForwardFailure counts one failed delivery to target
func (m *Metrics) RecordForwardFailure(target string) {
	m.ForwardFailures.WithLabelValues(target).Inc()
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, d time.Duration) {
	m.HTTPRequests.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(d.Seconds())
}

// ModelLoaded records a model load. It satisfies recognizer.Observer.
func (m *Metrics) ModelLoaded(lang message.Language, d time.Duration, err error) {
	m.ModelLoads.WithLabelValues(string(lang), outcome(err)).Inc()
	m.ModelLoadDuration.WithLabelValues(string(lang)).Observe(d.Seconds())
}

// Recognized records a recognition call. It satisfies recognizer.Observer.
func (m *Metrics) Recognized(lang message.Language, d time.Duration, err error) {
	m.Recognitions.WithLabelValues(string(lang), outcome(err)).Inc()
	m.RecognitionDuration.WithLabelValues(string(lang)).Observe(d.Seconds())
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	}
	return "error"
}
