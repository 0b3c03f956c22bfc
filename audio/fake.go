package audio

import (
	"encoding/binary"
	"fmt"
	"os"
	"sync"
	"time"
)

// FakeContext serves capture blocks from memory (or a 16-bit mono WAV file)
// and playback devices that are only rendered when the caller asks.
type FakeContext struct {
	samples  []float32
	rate     uint32
	realtime bool

	mu        sync.Mutex
	captures  []*FakeCapture
	playbacks []*FakePlayback
	// CaptureErr and PlaybackErr make the next NewCapture/NewPlayback fail.
	CaptureErr  error
	PlaybackErr error
}

func NewFakeContext(samples []float32, rate uint32, realtime bool) *FakeContext {
	return &FakeContext{samples: samples, rate: rate, realtime: realtime}
}

// NewFakeContextFromWAV loads a canonical 44-byte-header PCM16 mono WAV.
func NewFakeContextFromWAV(wavPath string, realtime bool) (*FakeContext, error) {
	data, err := os.ReadFile(wavPath)
	if err != nil {
		return nil, err
	}
	if len(data) < WAVHeaderSize {
		return nil, fmt.Errorf("%s: not a WAV file", wavPath)
	}
	rate := binary.LittleEndian.Uint32(data[24:28])
	pcm := data[WAVHeaderSize:]
	samples := make([]float32, len(pcm)/2)
	for i := range samples {
		samples[i] = float32(int16(binary.LittleEndian.Uint16(pcm[i*2:]))) / 32768
	}
	return NewFakeContext(samples, rate, realtime), nil
}

func (f *FakeContext) Devices() ([]DeviceInfo, error) {
	return []DeviceInfo{{ID: "fake", Name: "fake"}}, nil
}

func (f *FakeContext) Close() {}

func (f *FakeContext) NewCapture(_ *DeviceInfo, config CaptureConfig) (CaptureDevice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.CaptureErr; err != nil {
		f.CaptureErr = nil
		return nil, err
	}
	rate := f.rate
	if config.SampleRate != 0 && rate == 0 {
		rate = config.SampleRate
	}
	c := &FakeCapture{
		samples:   f.samples,
		rate:      rate,
		blockSize: newBlocker(config.BlockSize).size,
		realtime:  f.realtime,
	}
	f.captures = append(f.captures, c)
	return c, nil
}

func (f *FakeContext) NewPlayback(config PlaybackConfig) (PlaybackDevice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.PlaybackErr; err != nil {
		f.PlaybackErr = nil
		return nil, err
	}
	p := &FakePlayback{rate: config.SampleRate, realtime: f.realtime}
	f.playbacks = append(f.playbacks, p)
	return p, nil
}

// LastCapture returns the most recently created capture device.
func (f *FakeContext) LastCapture() *FakeCapture {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.captures) == 0 {
		return nil
	}
	return f.captures[len(f.captures)-1]
}

// LastPlayback returns the most recently created playback device.
func (f *FakeContext) LastPlayback() *FakePlayback {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.playbacks) == 0 {
		return nil
	}
	return f.playbacks[len(f.playbacks)-1]
}

type FakeCapture struct {
	samples   []float32
	rate      uint32
	blockSize int
	realtime  bool

	mu       sync.Mutex
	cb       DataCallback
	started  bool
	closed   bool
	stopCh   chan struct{}
	feedDone chan struct{}
}

func (f *FakeCapture) SetCallback(cb DataCallback) {
	f.mu.Lock()
	f.cb = cb
	f.mu.Unlock()
}

func (f *FakeCapture) ClearCallback() {
	f.mu.Lock()
	f.cb = nil
	f.mu.Unlock()
}

func (f *FakeCapture) DeviceName() string { return "fake" }

// Started reports whether the device is currently capturing.
func (f *FakeCapture) Started() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.started
}

// Closed reports whether Close has been called.
func (f *FakeCapture) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// Emit delivers one block to the callback as if the device produced it.
// It is a no-op while the device is stopped.
func (f *FakeCapture) Emit(block []float32) {
	f.mu.Lock()
	cb := f.cb
	started := f.started
	rate := f.rate
	f.mu.Unlock()
	if cb != nil && started {
		cb(block, rate)
	}
}

func (f *FakeCapture) Start() error {
	f.mu.Lock()
	f.started = true
	f.stopCh = make(chan struct{})
	f.feedDone = make(chan struct{})
	stopCh, feedDone := f.stopCh, f.feedDone
	f.mu.Unlock()

	if !f.realtime || len(f.samples) == 0 || f.rate == 0 {
		close(feedDone)
		return nil
	}

	interval := time.Duration(f.blockSize) * time.Second / time.Duration(f.rate)
	go func() {
		defer close(feedDone)
		silence := make([]float32, f.blockSize)
		pos := 0
		for {
			if pos < len(f.samples) {
				end := min(pos+f.blockSize, len(f.samples))
				block := make([]float32, f.blockSize)
				copy(block, f.samples[pos:end])
				pos = end
				f.Emit(block)
			} else {
				f.Emit(silence)
			}
			select {
			case <-stopCh:
				return
			case <-time.After(interval):
			}
		}
	}()
	return nil
}

func (f *FakeCapture) Stop() {
	f.mu.Lock()
	if !f.started {
		f.mu.Unlock()
		return
	}
	f.started = false
	stopCh, feedDone := f.stopCh, f.feedDone
	f.mu.Unlock()

	close(stopCh)
	<-feedDone
}

func (f *FakeCapture) Close() {
	f.Stop()
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
}

const fakePlaybackPeriod = 20 * time.Millisecond

// FakePlayback is advanced with Pump. A realtime one also pumps itself
// every 20ms while started, discarding the output.
type FakePlayback struct {
	rate     uint32
	realtime bool

	mu       sync.Mutex
	renderer RenderCallback
	started  bool
	closed   bool
	rendered []float32
	stopCh   chan struct{}
	pumpDone chan struct{}
}

func (p *FakePlayback) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return nil
	}
	p.started = true
	if !p.realtime || p.rate == 0 {
		return nil
	}
	p.stopCh = make(chan struct{})
	p.pumpDone = make(chan struct{})
	go p.pumpLoop(p.stopCh, p.pumpDone)
	return nil
}

func (p *FakePlayback) pumpLoop(stopCh, done chan struct{}) {
	defer close(done)
	frames := int(p.rate) * int(fakePlaybackPeriod/time.Millisecond) / 1000
	out := make([]float32, frames)
	ticker := time.NewTicker(fakePlaybackPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			p.mu.Lock()
			r := p.renderer
			p.mu.Unlock()
			if r != nil {
				r(out)
			}
		}
	}
}

func (p *FakePlayback) Stop() {
	p.mu.Lock()
	p.started = false
	stopCh, done := p.stopCh, p.pumpDone
	p.stopCh, p.pumpDone = nil, nil
	p.mu.Unlock()
	if stopCh != nil {
		close(stopCh)
		<-done
	}
}

func (p *FakePlayback) Close() {
	p.Stop()
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
}

func (p *FakePlayback) SetRenderer(r RenderCallback) {
	p.mu.Lock()
	p.renderer = r
	p.mu.Unlock()
}

func (p *FakePlayback) SampleRate() uint32 { return p.rate }

// Renderer returns the callback last set, so tests can keep pulling from
// the mixer after the device is closed.
func (p *FakePlayback) Renderer() RenderCallback {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.renderer
}

// Closed reports whether Close has been called.
func (p *FakePlayback) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// Pump renders n frames through the renderer and keeps them for inspection.
func (p *FakePlayback) Pump(n int) []float32 {
	p.mu.Lock()
	r := p.renderer
	p.mu.Unlock()
	out := make([]float32, n)
	if r != nil {
		r(out)
	}
	p.mu.Lock()
	p.rendered = append(p.rendered, out...)
	p.mu.Unlock()
	return out
}

// Rendered returns everything pumped so far.
func (p *FakePlayback) Rendered() []float32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]float32(nil), p.rendered...)
}
