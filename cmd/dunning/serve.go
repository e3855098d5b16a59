package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"slices"
	"strings"
	"sync"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	_ "github.com/nadzzz/dunning/docs"
	"github.com/nadzzz/dunning/internal/classifier"
	"github.com/nadzzz/dunning/internal/config"
	"github.com/nadzzz/dunning/internal/dispatch"
	"github.com/nadzzz/dunning/internal/health"
	"github.com/nadzzz/dunning/internal/langdetect"
	"github.com/nadzzz/dunning/internal/message"
	"github.com/nadzzz/dunning/internal/metrics"
	"github.com/nadzzz/dunning/internal/recognizer"
	"github.com/nadzzz/dunning/internal/recognizer/whisper"
	"github.com/nadzzz/dunning/internal/transport"
	grpctransport "github.com/nadzzz/dunning/internal/transport/grpc"
	httptransport "github.com/nadzzz/dunning/internal/transport/http"
	"github.com/nadzzz/dunning/internal/tts"
	"github.com/nadzzz/dunning/internal/tts/piper"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the recognition and classification service",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			// Create root context with signal handling for graceful shutdown.
			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()
			return serve(ctx, cfg)
		},
	}
}

func newLoader(cfg config.RecognizerConfig) (recognizer.Loader, error) {
	switch cfg.Backend {
	case config.BackendVosk:
		slog.Info("using vosk recognizer", "models_dir", cfg.Vosk.ModelsDir)
		return newVoskLoader(cfg.Vosk)
	case config.BackendWhisper:
		slog.Info("using whisper recognizer", "type", cfg.Whisper.Type, "languages", len(cfg.Whisper.Endpoints))
		return whisper.New(cfg.Whisper, &http.Client{}), nil
	}
	return nil, fmt.Errorf("unknown recognizer backend %q", cfg.Backend)
}

// targets returns configured targets ordered by name; protocol defaults to http.
func targets(cfg map[string]config.Target) []message.Target {
	out := make([]message.Target, 0, len(cfg))
	for name, t := range cfg {
		proto := t.Protocol
		if proto == "" {
			proto = "http"
		}
		out = append(out, message.Target{ServiceName: name, Endpoint: t.Endpoint, Protocol: proto, Token: t.Token})
	}
	slices.SortFunc(out, func(a, b message.Target) int {
		return strings.Compare(a.ServiceName, b.ServiceName)
	})
	return out
}

func serve(ctx context.Context, cfg *config.Config) error {
	slog.Info("dunning starting", "version", version)

	lex, err := loadLexicon(cfg)
	if err != nil {
		return err
	}
	loc, err := cfg.Classifier.Location()
	if err != nil {
		return err
	}
	detector := langdetect.New(lex)
	cls := classifier.New(lex, classifier.WithLocation(loc))

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	loader, err := newLoader(cfg.Recognizer)
	if err != nil {
		return err
	}
	arb := recognizer.New(loader, detector, recognizer.WithObserver(m))
	defer arb.Close()
	slog.Info("recognition models", "available", arb.AvailableLanguages())
	if cfg.Recognizer.Preload {
		if err := arb.Warm(ctx); err != nil {
			slog.Warn("some recognition models failed to load", "error", err)
		}
	}

	var synth tts.Synthesizer
	if cfg.TTS.Enabled {
		if cfg.TTS.Backend != "piper" {
			return fmt.Errorf("unknown tts backend %q", cfg.TTS.Backend)
		}
		synth = piper.New(cfg.TTS.Piper)
		defer synth.Close()
		slog.Info("TTS enabled", "backend", cfg.TTS.Backend, "endpoint", cfg.TTS.Piper.Endpoint)
	}

	// The HTTP transport also delivers outcomes, even when it does not listen.
	httpT := httptransport.New(cfg.Transports.HTTP, httptransport.WithRecorder(m))
	var transports []transport.Transport
	if cfg.Transports.HTTP.Enabled {
		transports = append(transports, httpT)
	}
	if cfg.Transports.GRPC.Enabled {
		transports = append(transports, grpctransport.New(cfg.Transports.GRPC))
	}
	if len(transports) == 0 {
		return fmt.Errorf("no transports enabled: enable at least one in config")
	}

	dispatcher := dispatch.New(arb, detector, cls, lex,
		dispatch.WithSynthesizer(synth),
		dispatch.WithTargets(targets(cfg.Targets), map[string]transport.Sender{httpT.Name(): httpT}),
		dispatch.WithRecorder(m),
		dispatch.WithTimeout(cfg.Recognizer.Timeout),
		dispatch.WithVersion(version),
	)

	// Start health check server.
	healthServer := health.New(cfg.Server.HealthPort,
		health.WithGatherer(reg),
		health.WithStatus(dispatcher.Health),
	)
	go func() {
		if err := healthServer.ListenAndServe(ctx); err != nil {
			slog.Error("health server failed", "error", err)
		}
	}()

	// Start all transports.
	var wg sync.WaitGroup
	for _, t := range transports {
		wg.Add(1)
		go func() {
			defer wg.Done()
			slog.Info("starting transport", "name", t.Name())
			if err := t.Listen(ctx, dispatcher); err != nil {
				slog.Error("transport failed", "name", t.Name(), "error", err)
			}
		}()
	}

	healthServer.SetReady(true)
	slog.Info("dunning ready",
		"transports", len(transports),
		"health_port", cfg.Server.HealthPort,
		"targets", len(cfg.Targets))

	// Block until shutdown signal.
	<-ctx.Done()
	slog.Info("shutdown signal received, draining...")

	for _, t := range transports {
		if err := t.Close(); err != nil {
			slog.Error("transport close error", "name", t.Name(), "error", err)
		}
	}

	wg.Wait()
	slog.Info("dunning stopped")
	return nil
}
