package vad

import (
	"math"
	"math/rand"
	"testing"

	"juru/pcm"
)

func genSilence(durationMs int) []byte {
	return make([]byte, pcm.InputSampleRate*durationMs/1000*2)
}

// genBabble is noisy voiced signal with a harmonic stack, closer to speech
// than a pure tone.
func genBabble(durationMs int) []byte {
	rng := rand.New(rand.NewSource(7))
	n := pcm.InputSampleRate * durationMs / 1000
	samples := make([]float32, n)
	for i := range samples {
		t := float64(i) / pcm.InputSampleRate
		var s float64
		for h := 1; h <= 8; h++ {
			s += math.Sin(2*math.Pi*140*float64(h)*t) / float64(h)
		}
		samples[i] = float32(0.3*s + 0.05*rng.NormFloat64())
	}
	return pcm.EncodePCM16(samples)
}

func TestSilence(t *testing.T) {
	d, err := New(pcm.InputSampleRate)
	if err != nil {
		t.Fatal(err)
	}
	if d.Process(genSilence(200)) {
		t.Error("silence flipped the flag")
	}
	if d.Speaking() {
		t.Error("expected no voice on silence")
	}
	total, speech := d.Stats()
	if total != 10 || speech != 0 {
		t.Errorf("Stats = %d, %d; want 10, 0", total, speech)
	}
}

func TestOddChunkSizes(t *testing.T) {
	d, err := New(pcm.InputSampleRate)
	if err != nil {
		t.Fatal(err)
	}
	// 100-byte chunks do not line up with 640-byte frames
	silence := genSilence(200)
	for i := 0; i < len(silence); i += 100 {
		d.Process(silence[i:min(i+100, len(silence))])
	}
	if total, _ := d.Stats(); total != 10 {
		t.Errorf("processed %d frames, want 10", total)
	}
}

func TestSpeechThenRelease(t *testing.T) {
	d, err := New(pcm.InputSampleRate)
	if err != nil {
		t.Fatal(err)
	}
	d.Process(genBabble(400))
	if !d.Speaking() {
		t.Skip("synthetic babble not classified as speech")
	}
	if d.LastVoiceTime().IsZero() {
		t.Error("LastVoiceTime not set")
	}
	// hangover keeps the flag up briefly, then silence releases it
	d.Process(genSilence(100))
	if !d.Speaking() {
		t.Error("released before hangover")
	}
	d.Process(genSilence(400))
	if d.Speaking() {
		t.Error("still speaking after long silence")
	}
}

func TestReset(t *testing.T) {
	d, err := New(pcm.InputSampleRate)
	if err != nil {
		t.Fatal(err)
	}
	d.Process(genBabble(200))
	d.Reset()
	if d.Speaking() {
		t.Error("expected no voice after reset")
	}
	if !d.LastVoiceTime().IsZero() {
		t.Error("expected zero LastVoiceTime after reset")
	}
}

func TestRates(t *testing.T) {
	for _, tt := range []struct {
		rate   int
		ok     bool
		frames int // 200 ms of silence
	}{
		{8000, true, 10},
		{16000, true, 10},
		{48000, true, 10},
		{22050, false, 0},
		{24000, false, 0},
	} {
		d, err := New(tt.rate)
		if (err == nil) != tt.ok {
			t.Errorf("New(%d) err = %v, want ok=%v", tt.rate, err, tt.ok)
			continue
		}
		if err != nil {
			continue
		}
		d.Process(make([]byte, tt.rate*200/1000*2))
		if total, _ := d.Stats(); total != tt.frames {
			t.Errorf("%d Hz: processed %d frames, want %d", tt.rate, total, tt.frames)
		}
	}
}
