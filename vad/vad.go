// Package vad flags whether the outbound audio currently carries speech.
package vad

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"juru/pcm"

	webrtcvad "github.com/maxhawkins/go-webrtcvad"
)

const (
	mode     = 3
	frameMs  = 20
	debounce = 3  // consecutive speech frames to confirm voice
	hangover = 15 // silent frames before voice is released
)

// Rates lists the sample rates webrtc VAD accepts.
var Rates = []int{8000, 16000, 32000, 48000}

func SupportedRate(rate int) bool {
	return slices.Contains(Rates, rate)
}

// Detector consumes mono PCM16 at a fixed rate and tracks a debounced
// speaking flag.
type Detector struct {
	vad        *webrtcvad.VAD
	rate       int
	frameBytes int // 640 at 16 kHz

	mu            sync.Mutex
	buf           []byte
	speaking      bool
	lastVoiceTime time.Time
	speechRun     int
	silenceRun    int
	totalFrames   int
	speechFrames  int
}

func New(rate int) (*Detector, error) {
	if !SupportedRate(rate) {
		return nil, fmt.Errorf("vad: unsupported sample rate %d (want one of %v)", rate, Rates)
	}
	v, err := webrtcvad.New()
	if err != nil {
		return nil, err
	}
	if err := v.SetMode(mode); err != nil {
		return nil, err
	}
	return &Detector{
		vad:        v,
		rate:       rate,
		frameBytes: rate * frameMs / 1000 * pcm.SampleWidth,
	}, nil
}

// Process feeds PCM16 bytes of any length and reports whether the speaking
// flag flipped.
func (d *Detector) Process(data []byte) (changed bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	was := d.speaking
	d.buf = append(d.buf, data...)
	for len(d.buf) >= d.frameBytes {
		frame := d.buf[:d.frameBytes]
		d.buf = d.buf[d.frameBytes:]

		active, err := d.vad.Process(d.rate, frame)
		if err != nil {
			continue
		}
		d.totalFrames++
		if active {
			d.speechFrames++
			d.speechRun++
			d.silenceRun = 0
			if d.speaking {
				d.lastVoiceTime = time.Now()
			} else if d.speechRun >= debounce {
				d.speaking = true
				d.lastVoiceTime = time.Now()
			}
		} else {
			d.speechRun = 0
			d.silenceRun++
			if d.speaking && d.silenceRun >= hangover {
				d.speaking = false
			}
		}
	}
	return was != d.speaking
}

func (d *Detector) Speaking() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.speaking
}

func (d *Detector) LastVoiceTime() time.Time {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastVoiceTime
}

func (d *Detector) Stats() (total, speech int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.totalFrames, d.speechFrames
}

func (d *Detector) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.buf = d.buf[:0]
	d.speaking = false
	d.lastVoiceTime = time.Time{}
	d.speechRun = 0
	d.silenceRun = 0
}
