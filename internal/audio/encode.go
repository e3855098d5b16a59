package audio

import (
	"bytes"
	"encoding/binary"
)

// EncodeWAV wraps raw little-endian PCM in a canonical 44-byte WAV header.
func EncodeWAV(pcm []byte, sampleRate, channels, bitDepth int) []byte {
	bytesPerSample := bitDepth / 8
	dataLen := len(pcm)

	buf := &bytes.Buffer{}
	buf.Grow(44 + dataLen)

	buf.WriteString("RIFF")
	_ = binary.Write(buf, binary.LittleEndian, uint32(36+dataLen))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	_ = binary.Write(buf, binary.LittleEndian, uint32(16))
	_ = binary.Write(buf, binary.LittleEndian, uint16(formatPCM))
	_ = binary.Write(buf, binary.LittleEndian, uint16(channels))
	_ = binary.Write(buf, binary.LittleEndian, uint32(sampleRate))
	_ = binary.Write(buf, binary.LittleEndian, uint32(sampleRate*channels*bytesPerSample)) // byte rate
	_ = binary.Write(buf, binary.LittleEndian, uint16(channels*bytesPerSample))            // block align
	_ = binary.Write(buf, binary.LittleEndian, uint16(bitDepth))

	buf.WriteString("data")
	_ = binary.Write(buf, binary.LittleEndian, uint32(dataLen))
	buf.Write(pcm)

	return buf.Bytes()
}

