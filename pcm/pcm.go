// Package pcm converts between normalized float audio, 16-bit little-endian
// PCM and the base64 blobs carried by the live session.
package pcm

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

const (
	BitsPerSample = 16
	SampleWidth   = BitsPerSample / 8

	InputSampleRate  = 16000
	OutputSampleRate = 24000
)

var ErrOddLength = errors.New("pcm: byte count is not a whole number of frames")

// Blob is one transport-encoded audio frame.
type Blob struct {
	Data     string `json:"data"`
	MIMEType string `json:"mimeType"`
}

// MIMEType returns the format tag for raw PCM16 at rate.
func MIMEType(rate int) string {
	return "audio/pcm;rate=" + strconv.Itoa(rate)
}

// ParseRate extracts the rate parameter from a MIME type such as
// "audio/pcm;rate=24000".
func ParseRate(mimeType string) (int, bool) {
	_, params, found := strings.Cut(mimeType, ";")
	if !found {
		return 0, false
	}
	for _, p := range strings.Split(params, ";") {
		k, v, ok := strings.Cut(strings.TrimSpace(p), "=")
		if !ok || !strings.EqualFold(k, "rate") {
			continue
		}
		rate, err := strconv.Atoi(v)
		if err != nil || rate <= 0 {
			return 0, false
		}
		return rate, true
	}
	return 0, false
}

// ToInt16 scales f by 32768 and saturates to the int16 range. Out-of-range
// input (including exactly 1.0) clips instead of wrapping.
func ToInt16(f float32) int16 {
	v := math.Round(float64(f) * 32768)
	switch {
	case math.IsNaN(v):
		return 0
	case v > math.MaxInt16:
		return math.MaxInt16
	case v < math.MinInt16:
		return math.MinInt16
	}
	return int16(v)
}

// EncodePCM16 packs samples as little-endian signed 16-bit integers.
func EncodePCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*SampleWidth)
	for i, f := range samples {
		binary.LittleEndian.PutUint16(out[i*SampleWidth:], uint16(ToInt16(f)))
	}
	return out
}

// EncodeBlob converts one captured block into a transport frame.
func EncodeBlob(samples []float32, rate int) Blob {
	return Blob{
		Data:     Encode(EncodePCM16(samples)),
		MIMEType: MIMEType(rate),
	}
}

func Encode(raw []byte) string {
	return base64.StdEncoding.EncodeToString(raw)
}

func DecodeBase64(s string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("pcm: base64: %w", err)
	}
	return raw, nil
}

// Buffer holds de-interleaved float samples ready for playback.
type Buffer struct {
	SampleRate int
	Channels   [][]float32
}

func (b Buffer) Frames() int {
	if len(b.Channels) == 0 {
		return 0
	}
	return len(b.Channels[0])
}

// Duration is the playback length in seconds.
func (b Buffer) Duration() float64 {
	if b.SampleRate <= 0 {
		return 0
	}
	return float64(b.Frames()) / float64(b.SampleRate)
}

// Mono returns the buffer as a single channel, averaging when there are
// several.
func (b Buffer) Mono() []float32 {
	switch len(b.Channels) {
	case 0:
		return nil
	case 1:
		return b.Channels[0]
	}
	out := make([]float32, b.Frames())
	scale := 1 / float32(len(b.Channels))
	for _, ch := range b.Channels {
		for i, s := range ch {
			out[i] += s * scale
		}
	}
	return out
}

// DecodePCM16 de-interleaves little-endian PCM16 into a Buffer.
func DecodePCM16(data []byte, rate, channels int) (Buffer, error) {
	if rate <= 0 || channels <= 0 {
		return Buffer{}, fmt.Errorf("pcm: invalid format rate=%d channels=%d", rate, channels)
	}
	frameBytes := SampleWidth * channels
	if len(data)%frameBytes != 0 {
		return Buffer{}, fmt.Errorf("%w: %d bytes, %d-byte frames", ErrOddLength, len(data), frameBytes)
	}
	frames := len(data) / frameBytes
	buf := Buffer{SampleRate: rate, Channels: make([][]float32, channels)}
	for c := range buf.Channels {
		buf.Channels[c] = make([]float32, frames)
	}
	for i := range frames {
		for c := range channels {
			s := int16(binary.LittleEndian.Uint16(data[(i*channels+c)*SampleWidth:]))
			buf.Channels[c][i] = float32(s) / 32768
		}
	}
	return buf, nil
}

// DecodeChunk reverses the transport encoding of an inbound audio chunk and
// decodes it as mono PCM16.
func DecodeChunk(data string, rate int) (Buffer, error) {
	raw, err := DecodeBase64(data)
	if err != nil {
		return Buffer{}, err
	}
	return DecodePCM16(raw, rate, 1)
}

// Int16 converts a buffer channel back to integer samples.
func Int16(samples []float32) []int16 {
	out := make([]int16, len(samples))
	for i, f := range samples {
		out[i] = ToInt16(f)
	}
	return out
}
