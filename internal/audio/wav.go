// Package audio validates uploaded replies before they reach speech recognition.
//
// Only one format is accepted: RIFF/WAVE, linear PCM, 16 kHz, mono, 16-bit.
// Anything else is rejected with a *FormatError naming the offending value.
package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"time"
)

// Required stream parameters.
const (
	SampleRate = 16000
	Channels   = 1
	BitDepth   = 16
)

const (
	formatPCM        = 1
	formatExtensible = 0xFFFE
)

// ErrFormat matches every *FormatError via errors.Is.
var ErrFormat = errors.New("invalid audio format")

// Reason classifies a FormatError.
type Reason string

const (
	ReasonNotWAV          Reason = "not_wav"
	ReasonWrongChannels   Reason = "wrong_channels"
	ReasonWrongSampleRate Reason = "wrong_sample_rate"
	ReasonWrongBitDepth   Reason = "wrong_bit_depth"
)

// FormatError reports why a buffer is not an acceptable stream.
type FormatError struct {
	Reason Reason
	// Value is the offending channel count, sample rate or bit depth.
	Value int
	// Detail explains a ReasonNotWAV failure.
	Detail string
}

func (e *FormatError) Error() string {
	switch e.Reason {
	case ReasonWrongChannels:
		return fmt.Sprintf("audio must be mono (%d channel), got %d channels", Channels, e.Value)
	case ReasonWrongSampleRate:
		return fmt.Sprintf("sample rate must be %d Hz, got %d Hz", SampleRate, e.Value)
	case ReasonWrongBitDepth:
		return fmt.Sprintf("bit depth must be %d-bit, got %d-bit", BitDepth, e.Value)
	default:
		return "not a WAV file: " + e.Detail
	}
}

// Is makes errors.Is(err, ErrFormat) true for any FormatError.
func (e *FormatError) Is(target error) bool { return target == ErrFormat }

func notWAV(format string, args ...any) *FormatError {
	return &FormatError{Reason: ReasonNotWAV, Detail: fmt.Sprintf(format, args...)}
}

// Stream is a validated WAV buffer. The zero value is not valid; streams are
// only produced by Validate. Callers must not modify the returned slices.
type Stream struct {
	data       []byte
	pcm        []byte
	sampleRate int
	channels   int
	bitDepth   int
	validated  bool
}

func (s *Stream) Bytes() []byte   { return s.data }
func (s *Stream) PCM() []byte     { return s.pcm }
func (s *Stream) SampleRate() int { return s.sampleRate }
func (s *Stream) Channels() int   { return s.channels }
func (s *Stream) BitDepth() int   { return s.bitDepth }

// Duration is the playback length of the PCM payload.
func (s *Stream) Duration() time.Duration {
	bytesPerSec := s.sampleRate * s.channels * s.bitDepth / 8
	if bytesPerSec == 0 {
		return 0
	}
	return time.Duration(len(s.pcm)) * time.Second / time.Duration(bytesPerSec)
}

// Check re-verifies that s came from Validate and still has the required
// parameters.
func (s *Stream) Check() error {
	if s == nil || !s.validated {
		return notWAV("stream was not validated")
	}
	return checkParams(s.channels, s.sampleRate, s.bitDepth)
}

type header struct {
	format     uint16
	channels   int
	sampleRate int
	bitDepth   int
}

// Validate parses buf as a RIFF/WAVE container and returns a Stream when the
// format is 16 kHz mono 16-bit PCM. The buffer is copied.
func Validate(buf []byte) (*Stream, error) {
	h, start, end, err := parse(buf)
	if err != nil {
		return nil, err
	}
	if h.format != formatPCM && h.format != formatExtensible {
		return nil, notWAV("unsupported encoding %d (only PCM is supported)", h.format)
	}
	if err := checkParams(h.channels, h.sampleRate, h.bitDepth); err != nil {
		return nil, err
	}

	data := bytes.Clone(buf)
	return &Stream{
		data:       data,
		pcm:        data[start:end],
		sampleRate: h.sampleRate,
		channels:   h.channels,
		bitDepth:   h.bitDepth,
		validated:  true,
	}, nil
}

func checkParams(channels, sampleRate, bitDepth int) error {
	if channels != Channels {
		return &FormatError{Reason: ReasonWrongChannels, Value: channels}
	}
	if sampleRate != SampleRate {
		return &FormatError{Reason: ReasonWrongSampleRate, Value: sampleRate}
	}
	if bitDepth != BitDepth {
		return &FormatError{Reason: ReasonWrongBitDepth, Value: bitDepth}
	}
	return nil
}

// parse walks the RIFF chunks and returns the fmt header and the bounds of
// the data payload.
func parse(buf []byte) (h header, start, end int, err error) {
	if len(buf) < 12 {
		return h, 0, 0, notWAV("buffer too short: %d bytes", len(buf))
	}
	if string(buf[0:4]) != "RIFF" {
		return h, 0, 0, notWAV("missing RIFF signature")
	}
	if string(buf[8:12]) != "WAVE" {
		return h, 0, 0, notWAV("missing WAVE format")
	}

	haveFmt, haveData := false, false
	pos := 12
	for pos+8 <= len(buf) && !(haveFmt && haveData) {
		id := string(buf[pos : pos+4])
		size := int(binary.LittleEndian.Uint32(buf[pos+4 : pos+8]))
		body := pos + 8
		chunkEnd := body + size
		if chunkEnd > len(buf) {
			if id != "data" {
				return h, 0, 0, notWAV("chunk %q overruns buffer", id)
			}
			// Streaming writers leave the data size unset; take what is there.
			chunkEnd = len(buf)
		}

		switch id {
		case "fmt ":
			if size < 16 {
				return h, 0, 0, notWAV("fmt chunk too short: %d bytes", size)
			}
			f := buf[body:chunkEnd]
			h.format = binary.LittleEndian.Uint16(f[0:2])
			h.channels = int(binary.LittleEndian.Uint16(f[2:4]))
			h.sampleRate = int(binary.LittleEndian.Uint32(f[4:8]))
			h.bitDepth = int(binary.LittleEndian.Uint16(f[14:16]))
			haveFmt = true
		case "data":
			start, end = body, chunkEnd
			haveData = true
		}
		// Chunks are word-aligned.
		pos = chunkEnd + size%2
	}

	if !haveFmt {
		return h, 0, 0, notWAV("missing fmt chunk")
	}
	if !haveData {
		return h, 0, 0, notWAV("missing data chunk")
	}
	return h, start, end, nil
}
