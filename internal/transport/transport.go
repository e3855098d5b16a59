// Package transport defines the interface for pluggable request transports.
//
// Each transport (HTTP, gRPC) exposes the Service to its clients. Transports
// that can also reach downstream systems act as Senders for forwarding call
// outcomes; the dispatcher picks one by the target's protocol.
package transport

import (
	"context"

	"github.com/nadzzz/dunning/internal/message"
)

// Service is the set of operations a transport exposes. The dispatcher
// implements it.
type Service interface {
	// ProcessVoice validates, recognizes and classifies an uploaded reply.
	ProcessVoice(ctx context.Context, req *message.VoiceRequest) (*message.VoiceResult, error)

	// ClassifyText classifies a transcript supplied by the caller.
	ClassifyText(ctx context.Context, req *message.TextRequest) (*message.TextResult, error)

	// Prompt renders, and synthesizes when TTS is enabled, the call prompt.
	Prompt(ctx context.Context, req *message.PromptRequest) (*message.PromptResult, error)

	// Health reports recognition model availability.
	Health(ctx context.Context) *message.HealthStatus

	// Languages lists the supported languages and whether their models are usable.
	Languages() []message.LanguageInfo

	// Categories lists the taxonomy with descriptions in lang.
	Categories(lang message.Language) []message.CategoryInfo
}

// Sender delivers a payload to a downstream target.
type Sender interface {
	Send(ctx context.Context, target message.Target, payload []byte) error
}

// Transport is the interface that every transport adapter must implement.
type Transport interface {
	Sender

	// Name returns the transport identifier (e.g., "grpc", "http").
	Name() string

	// Listen starts accepting requests and serves them from svc.
	// It blocks until the context is cancelled.
	Listen(ctx context.Context, svc Service) error

	// Close gracefully shuts down the transport, draining in-flight work.
	Close() error
}
