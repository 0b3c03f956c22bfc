package audio

import "strings"

const WAVHeaderSize = 44

// DefaultBlockSize is the number of frames delivered per capture callback.
const DefaultBlockSize = 4096

var btKeywords = []string{
	"airpods", "beats", "bose", "wh-1000", "wf-1000",
	"sony wh-", "sony wf-",
	"jabra", "galaxy buds", "pixel buds", "powerbeats",
	"jbl ", "sennheiser momentum", "plantronics",
	"tozo", "anker soundcore", "skullcandy",
	"bluetooth", " bt ", " bt)", " bt]", "(bt)", "[bt]",
}

func IsBluetooth(name string) bool {
	lower := strings.ToLower(name)
	for _, kw := range btKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// DataCallback receives one mono block of normalized samples in [-1,1]
// together with the rate the device captured it at.
type DataCallback func(samples []float32, sampleRate uint32)

// RenderCallback fills out with mono samples for playback.
type RenderCallback func(out []float32)

type CaptureConfig struct {
	SampleRate uint32 // 0 = device native rate
	BlockSize  uint32
}

type PlaybackConfig struct {
	SampleRate uint32
}

type DeviceInfo struct {
	ID   string // opaque platform-specific identifier
	Name string
}

type Context interface {
	Devices() ([]DeviceInfo, error)
	NewCapture(device *DeviceInfo, config CaptureConfig) (CaptureDevice, error)
	NewPlayback(config PlaybackConfig) (PlaybackDevice, error)
	Close()
}

type CaptureDevice interface {
	Start() error
	Stop()
	Close()
	SetCallback(cb DataCallback)
	ClearCallback()
	DeviceName() string
}

type PlaybackDevice interface {
	Start() error
	Stop()
	Close()
	SetRenderer(r RenderCallback)
	SampleRate() uint32
}

// blocker regroups arbitrarily sized sample runs into fixed-size blocks.
type blocker struct {
	size int
	buf  []float32
}

func newBlocker(size uint32) *blocker {
	if size == 0 {
		size = DefaultBlockSize
	}
	return &blocker{size: int(size), buf: make([]float32, 0, size)}
}

func (b *blocker) push(samples []float32, emit func([]float32)) {
	for len(samples) > 0 {
		n := min(b.size-len(b.buf), len(samples))
		b.buf = append(b.buf, samples[:n]...)
		samples = samples[n:]
		if len(b.buf) == b.size {
			block := make([]float32, b.size)
			copy(block, b.buf)
			b.buf = b.buf[:0]
			emit(block)
		}
	}
}

func (b *blocker) reset() {
	b.buf = b.buf[:0]
}
