// Package config handles loading and validating the dunning configuration.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
	_ "time/tzdata" // classifier time zones must resolve on minimal images

	"github.com/spf13/viper"
)

// Recognizer backends.
const (
	BackendVosk    = "vosk"
	BackendWhisper = "whisper"
)

// Config is the root configuration for the dunning service.
type Config struct {
	Server     ServerConfig      `mapstructure:"server"`
	Transports TransportsConfig  `mapstructure:"transports"`
	Recognizer RecognizerConfig  `mapstructure:"recognizer"`
	Lexicon    LexiconConfig     `mapstructure:"lexicon"`
	Classifier ClassifierConfig  `mapstructure:"classifier"`
	TTS        TTSConfig         `mapstructure:"tts"`
	Targets    map[string]Target `mapstructure:"targets"`
	Logging    LoggingConfig     `mapstructure:"logging"`
}

// ServerConfig holds the health check server settings.
type ServerConfig struct {
	HealthPort int `mapstructure:"health_port"`
}

// TransportsConfig holds the configuration for each transport layer.
type TransportsConfig struct {
	GRPC GRPCConfig `mapstructure:"grpc"`
	HTTP HTTPConfig `mapstructure:"http"`
}

// GRPCConfig configures the gRPC health transport.
type GRPCConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
	// RefreshInterval is how often model availability is re-published.
	RefreshInterval time.Duration `mapstructure:"refresh_interval"`
}

// HTTPConfig configures the REST transport.
type HTTPConfig struct {
	Enabled     bool  `mapstructure:"enabled"`
	Port        int   `mapstructure:"port"`
	MaxUploadMB int64 `mapstructure:"max_upload_mb"`
}

// RecognizerConfig selects and configures the speech recognition backend.
type RecognizerConfig struct {
	Backend string `mapstructure:"backend"` // "vosk" or "whisper"
	// Timeout bounds a single recognition request; zero means no limit.
	Timeout time.Duration `mapstructure:"timeout"`
	// Preload loads every available model at startup instead of on first use.
	Preload bool          `mapstructure:"preload"`
	Vosk    VoskConfig    `mapstructure:"vosk"`
	Whisper WhisperConfig `mapstructure:"whisper"`
}

// VoskConfig locates Vosk model directories on the host.
//
// Models maps a language code to a directory. Relative directories are
// resolved against ModelsDir.
type VoskConfig struct {
	ModelsDir string            `mapstructure:"models_dir"`
	Models    map[string]string `mapstructure:"models"`
}

// WhisperConfig holds settings for Whisper-compatible transcription servers.
//
// Each language gets its own endpoint so a deployment can run a model tuned
// for Kazakh next to one tuned for Russian. A language without an endpoint
// has no model.
type WhisperConfig struct {
	Endpoints map[string]string `mapstructure:"endpoints"` // language code -> transcription URL
	Type      string            `mapstructure:"type"`      // "openai" (default) or "asr" (ahmetoner/whisper-asr-webservice)
	APIKey    string            `mapstructure:"api_key"`
	Model     string            `mapstructure:"model"`
	VADFilter bool              `mapstructure:"vad_filter"`
}

// LexiconConfig points at an optional replacement lexicon.
type LexiconConfig struct {
	Path string `mapstructure:"path"` // empty uses the built-in table
}

// ClassifierConfig holds classification settings.
type ClassifierConfig struct {
	// Timezone is the IANA zone in which "today" and "tomorrow" are resolved.
	Timezone string `mapstructure:"timezone"`
}

// Location returns the classifier's time zone.
func (c ClassifierConfig) Location() (*time.Location, error) {
	if c.Timezone == "" || strings.EqualFold(c.Timezone, "local") {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("classifier timezone: %w", err)
	}
	return loc, nil
}

// Target defines a downstream service that receives classification outcomes.
type Target struct {
	Endpoint string `mapstructure:"endpoint"`
	Protocol string `mapstructure:"protocol"`
	Token    string `mapstructure:"token"`
}

// TTSConfig selects and configures the text-to-speech backend.
type TTSConfig struct {
	Enabled bool        `mapstructure:"enabled"`
	Backend string      `mapstructure:"backend"` // "piper"
	Piper   PiperConfig `mapstructure:"piper"`
}

// PiperConfig holds Piper TTS settings (Wyoming protocol).
//
// For a single Piper instance that serves both languages, set Endpoint.
// For per-language instances set Endpoints, which maps language codes to
// Wyoming TCP endpoints; Endpoint is then the fallback.
type PiperConfig struct {
	Endpoint  string            `mapstructure:"endpoint"`  // Default Wyoming TCP endpoint (host:port)
	Endpoints map[string]string `mapstructure:"endpoints"` // language code -> Wyoming TCP endpoint
	Voices    map[string]string `mapstructure:"voices"`    // language code -> Piper voice model name
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, text
}

// Load reads the configuration from file, environment variables, and defaults.
// If configFile is non-empty it is used directly; otherwise the standard
// search order applies: ./dunning.yaml, ./configs/dunning.yaml, /etc/dunning/dunning.yaml.
func Load(configFile string) (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("server.health_port", 8081)
	v.SetDefault("transports.grpc.enabled", false)
	v.SetDefault("transports.grpc.port", 50051)
	v.SetDefault("transports.grpc.refresh_interval", "30s")
	v.SetDefault("transports.http.enabled", true)
	v.SetDefault("transports.http.port", 8080)
	v.SetDefault("transports.http.max_upload_mb", 25)
	v.SetDefault("recognizer.backend", BackendVosk)
	v.SetDefault("recognizer.timeout", "60s")
	v.SetDefault("recognizer.preload", false)
	v.SetDefault("recognizer.vosk.models_dir", "./models")
	v.SetDefault("recognizer.vosk.models", map[string]string{
		"ru": "vosk-model-small-ru",
		"kk": "vosk-model-small-kz",
	})
	v.SetDefault("recognizer.whisper.type", "openai")
	v.SetDefault("recognizer.whisper.vad_filter", false)
	v.SetDefault("lexicon.path", "")
	v.SetDefault("classifier.timezone", "Asia/Almaty")
	v.SetDefault("tts.enabled", false)
	v.SetDefault("tts.backend", "piper")
	v.SetDefault("tts.piper.endpoint", "localhost:10200")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	// Config file
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("dunning")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/dunning")
	}

	// Environment variables: DUNNING_SERVER_HEALTH_PORT, DUNNING_RECOGNIZER_BACKEND, etc.
	v.SetEnvPrefix("DUNNING")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file (optional: env vars and defaults are sufficient)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		slog.Info("no config file found, using defaults and environment variables")
	} else {
		slog.Info("loaded config file", "path", v.ConfigFileUsed())
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	// Resolve env var references in sensitive fields (e.g., "${WHISPER_API_KEY}")
	cfg.Recognizer.Whisper.APIKey = resolveEnvRef(cfg.Recognizer.Whisper.APIKey)
	for name, target := range cfg.Targets {
		target.Token = resolveEnvRef(target.Token)
		cfg.Targets[name] = target
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports every setting that would make the service misbehave.
func (c *Config) Validate() error {
	var errs []error
	switch c.Recognizer.Backend {
	case BackendVosk:
	case BackendWhisper:
		switch c.Recognizer.Whisper.Type {
		case "", "openai", "asr":
		default:
			errs = append(errs, fmt.Errorf("recognizer.whisper.type: unknown type %q", c.Recognizer.Whisper.Type))
		}
	default:
		errs = append(errs, fmt.Errorf("recognizer.backend: unknown backend %q", c.Recognizer.Backend))
	}
	if c.Recognizer.Timeout < 0 {
		errs = append(errs, fmt.Errorf("recognizer.timeout must not be negative, got %s", c.Recognizer.Timeout))
	}
	if _, err := c.Classifier.Location(); err != nil {
		errs = append(errs, err)
	}
	if c.Transports.HTTP.Enabled && c.Transports.HTTP.MaxUploadMB <= 0 {
		errs = append(errs, fmt.Errorf("transports.http.max_upload_mb must be positive, got %d", c.Transports.HTTP.MaxUploadMB))
	}
	for name, t := range c.Targets {
		if t.Endpoint == "" {
			errs = append(errs, fmt.Errorf("targets.%s: endpoint is empty", name))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// resolveEnvRef replaces "${VAR_NAME}" patterns with the corresponding env var value.
func resolveEnvRef(val string) string {
	if strings.HasPrefix(val, "${") && strings.HasSuffix(val, "}") {
		envKey := val[2 : len(val)-1]
		if envVal := os.Getenv(envKey); envVal != "" {
			return envVal
		}
	}
	return val
}

// SetupLogging configures the global slog logger based on config. Logs go to
// stderr so that CLI commands can print results on stdout.
func SetupLogging(cfg LoggingConfig) {
	slog.SetDefault(NewLogger(cfg, os.Stderr))
}

// NewLogger builds a logger writing to w.
func NewLogger(cfg LoggingConfig, w io.Writer) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if strings.ToLower(cfg.Format) == "text" {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}
	return slog.New(handler)
}
