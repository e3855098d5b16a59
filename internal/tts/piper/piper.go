// Package piper implements the TTS Synthesizer using a Piper Wyoming protocol server.
//
// Piper is a fast, local neural text-to-speech system with voices for both
// Russian and Kazakh. The linuxserver/piper container exposes the Wyoming
// protocol on TCP port 10200.
//
// Wyoming protocol format (per event):
//
//	<json_length> <payload_length>\n
//	<json_bytes>\n
//	<payload_bytes>   (if payload_length > 0)
package piper

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/nadzzz/dunning/internal/audio"
	"github.com/nadzzz/dunning/internal/config"
	"github.com/nadzzz/dunning/internal/message"
	"github.com/nadzzz/dunning/internal/tts"
)

// defaultVoices maps languages to Piper voice model names.
var defaultVoices = map[message.Language]string{
	message.LanguageRU: "ru_RU-ruslan-medium",
	message.LanguageKK: "kk_KZ-issai-high",
}

// maxPayload bounds a single Wyoming payload; Piper sends small audio chunks.
const maxPayload = 4 << 20

// Synthesizer implements tts.Synthesizer using the Wyoming protocol.
type Synthesizer struct {
	endpoint  string                      // default host:port of the Piper Wyoming server
	endpoints map[message.Language]string // per-language Piper instances
	voices    map[message.Language]string
}

// New creates a new Piper synthesizer from config.
func New(cfg config.PiperConfig) *Synthesizer {
	voices := make(map[message.Language]string, len(defaultVoices))
	for k, v := range defaultVoices {
		voices[k] = v
	}
	for k, v := range cfg.Voices {
		voices[message.Language(k)] = v
	}

	endpoints := make(map[message.Language]string, len(cfg.Endpoints))
	for lang, ep := range cfg.Endpoints {
		endpoints[message.Language(lang)] = hostPort(ep)
	}

	return &Synthesizer{
		endpoint:  hostPort(cfg.Endpoint),
		endpoints: endpoints,
		voices:    voices,
	}
}

func hostPort(ep string) string {
	ep = strings.TrimPrefix(ep, "tcp://")
	return strings.TrimPrefix(ep, "http://")
}

// Synthesize sends text to the Piper server and returns synthesized audio as WAV.
func (s *Synthesizer) Synthesize(ctx context.Context, text string, opts tts.SynthesizeOpts) (*tts.SynthesizeResult, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("empty text for synthesis")
	}

	voice := opts.Voice
	if voice == "" {
		voice = s.voices[opts.Language]
	}
	if voice == "" {
		voice = s.voices[message.LanguageRU]
	}

	endpoint := s.endpoints[opts.Language]
	if endpoint == "" {
		endpoint = s.endpoint
	}
	if endpoint == "" {
		return nil, fmt.Errorf("no piper endpoint configured for language %q", opts.Language)
	}

	slog.Debug("piper synthesize", "text_length", len(text), "voice", voice, "language", opts.Language, "endpoint", endpoint)

	dialer := net.Dialer{Timeout: 10 * time.Second}
	conn, err := dialer.DialContext(ctx, "tcp", endpoint)
	if err != nil {
		return nil, fmt.Errorf("connecting to piper: %w", err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	} else {
		_ = conn.SetDeadline(time.Now().Add(30 * time.Second))
	}
	stop := context.AfterFunc(ctx, func() { _ = conn.SetDeadline(time.Now()) })
	defer stop()

	err = writeEvent(conn, event{
		Type: "synthesize",
		Data: map[string]any{
			"text":  text,
			"voice": map[string]any{"name": voice},
		},
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("sending synthesize event: %w", err)
	}

	res, err := collect(bufio.NewReader(conn))
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}
	return res, nil
}

// collect reads audio-start, audio-chunk* and audio-stop and assembles a WAV.
func collect(r *bufio.Reader) (*tts.SynthesizeResult, error) {
	var (
		pcm      bytes.Buffer
		rate     = 22050
		channels = 1
		width    = 2
	)
	for {
		evt, payload, err := readEvent(r)
		if err != nil {
			return nil, fmt.Errorf("reading piper event: %w", err)
		}

		switch evt.Type {
		case "audio-start":
			rate = intField(evt.Data, "rate", rate)
			channels = intField(evt.Data, "channels", channels)
			width = intField(evt.Data, "width", width)
			slog.Debug("piper audio-start", "rate", rate, "channels", channels, "width", width)

		case "audio-chunk":
			pcm.Write(payload)

		case "audio-stop":
			slog.Debug("piper audio-stop", "pcm_bytes", pcm.Len())
			return &tts.SynthesizeResult{
				Audio:       audio.EncodeWAV(pcm.Bytes(), rate, channels, width*8),
				ContentType: "audio/wav",
				SampleRate:  rate,
				Channels:    channels,
			}, nil

		case "error":
			msg, _ := evt.Data["text"].(string)
			if msg == "" {
				msg = "unknown error"
			}
			return nil, fmt.Errorf("piper error: %s", msg)

		default:
			slog.Debug("piper unknown event", "type", evt.Type)
		}
	}
}

func intField(data map[string]any, key string, def int) int {
	if v, ok := data[key].(float64); ok && v > 0 {
		return int(v)
	}
	return def
}

// Close is a no-op; connections are per-request.
func (s *Synthesizer) Close() error { return nil }

// --- Wyoming protocol helpers ---

type event struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data,omitempty"`
}

// writeEvent sends a Wyoming event with an optional payload in one write.
func writeEvent(w io.Writer, evt event, payload []byte) error {
	body, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshalling event: %w", err)
	}

	var buf bytes.Buffer
	buf.Grow(len(body) + len(payload) + 24)
	fmt.Fprintf(&buf, "%d %d\n", len(body), len(payload))
	buf.Write(body)
	buf.WriteByte('\n')
	buf.Write(payload)
	_, err = w.Write(buf.Bytes())
	return err
}

// readEvent reads one Wyoming event.
func readEvent(r *bufio.Reader) (*event, []byte, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		return nil, nil, fmt.Errorf("reading header: %w", err)
	}
	fields := strings.Fields(line)
	if len(fields) != 2 {
		return nil, nil, fmt.Errorf("invalid wyoming header: %q", strings.TrimSpace(line))
	}
	jsonLen, err := strconv.Atoi(fields[0])
	if err != nil || jsonLen < 0 {
		return nil, nil, fmt.Errorf("invalid json_length %q", fields[0])
	}
	payloadLen, err := strconv.Atoi(fields[1])
	if err != nil || payloadLen < 0 || payloadLen > maxPayload {
		return nil, nil, fmt.Errorf("invalid payload_length %q", fields[1])
	}

	body := make([]byte, jsonLen+1) // trailing \n
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, nil, fmt.Errorf("reading json: %w", err)
	}
	var evt event
	if err := json.Unmarshal(body[:jsonLen], &evt); err != nil {
		return nil, nil, fmt.Errorf("unmarshalling event: %w", err)
	}

	var payload []byte
	if payloadLen > 0 {
		payload = make([]byte, payloadLen)
		if _, err := io.ReadFull(r, payload); err != nil {
			return nil, nil, fmt.Errorf("reading payload: %w", err)
		}
	}
	return &evt, payload, nil
}
