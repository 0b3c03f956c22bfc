package playback

import (
	"math"
	"sync"

	"juru/audio"
	"juru/pcm"
)

// Mixer renders scheduled voices into an output device. Its clock is the
// number of frames the device has pulled.
type Mixer struct {
	rate int

	mu     sync.Mutex
	frames int64
	voices []*mixVoice
}

type mixVoice struct {
	m       *Mixer
	samples []float32
	start   int64
	onEnded func()
}

func NewMixer(rate int) *Mixer {
	return &Mixer{rate: rate}
}

func (m *Mixer) SampleRate() int { return m.rate }

func (m *Mixer) Now() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return float64(m.frames) / float64(m.rate)
}

// Play implements Output. Buffers at another rate are converted to the
// mixer rate first.
func (m *Mixer) Play(buf pcm.Buffer, at float64, onEnded func()) Voice {
	samples := buf.Mono()
	if buf.SampleRate != m.rate {
		samples = audio.Convert(samples, uint32(buf.SampleRate), uint32(m.rate))
	}
	v := &mixVoice{
		m:       m,
		samples: samples,
		start:   int64(math.Round(at * float64(m.rate))),
		onEnded: onEnded,
	}
	m.mu.Lock()
	m.voices = append(m.voices, v)
	m.mu.Unlock()
	return v
}

func (v *mixVoice) Stop() {
	m := v.m
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, other := range m.voices {
		if other == v {
			m.voices = append(m.voices[:i], m.voices[i+1:]...)
			return
		}
	}
}

// Active returns the number of voices not yet finished.
func (m *Mixer) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.voices)
}

// Render fills out with the sum of every voice overlapping the next
// len(out) frames and advances the clock. It is the device's pull callback.
func (m *Mixer) Render(out []float32) {
	clear(out)

	m.mu.Lock()
	from := m.frames
	to := from + int64(len(out))
	var finished []func()
	kept := m.voices[:0]
	for _, v := range m.voices {
		end := v.start + int64(len(v.samples))
		lo := max(v.start, from)
		hi := min(end, to)
		for f := lo; f < hi; f++ {
			out[f-from] += v.samples[f-v.start]
		}
		if end <= to {
			if v.onEnded != nil {
				finished = append(finished, v.onEnded)
			}
			continue
		}
		kept = append(kept, v)
	}
	clear(m.voices[len(kept):])
	m.voices = kept
	m.frames = to
	m.mu.Unlock()

	for i, s := range out {
		out[i] = max(-1, min(1, s))
	}
	for _, fn := range finished {
		fn()
	}
}
