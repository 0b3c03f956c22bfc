// Package doctor runs the system checks behind `juru doctor`.
package doctor

import (
	"context"
	"fmt"
	"io"
	"math"
	"sync"
	"time"

	"juru/audio"
	"juru/hotkey"
	"juru/live"
	"juru/pcm"
	"juru/playback"
	"juru/session"
	"juru/vad"
)

type Options struct {
	Audio  audio.Context
	Device *audio.DeviceInfo
	// Hotkey is skipped when nil.
	Hotkey hotkey.Hotkey
	// Dialer is skipped when nil, e.g. without an API key.
	Dialer live.Dialer
	Model  string
	Out    io.Writer

	Listen  time.Duration
	Timeout time.Duration
}

func (o *Options) setDefaults() {
	if o.Listen == 0 {
		o.Listen = 3 * time.Second
	}
	if o.Timeout == 0 {
		o.Timeout = 10 * time.Second
	}
	if o.Out == nil {
		o.Out = io.Discard
	}
}

// Run executes every check and returns an exit code (0 = all pass).
func Run(ctx context.Context, opts Options) int {
	opts.setDefaults()
	out := opts.Out

	fmt.Fprintln(out, "juru doctor - system diagnostics")
	fmt.Fprintln(out, "================================")

	checks := []struct {
		name string
		run  func(context.Context, Options) bool
	}{
		{"Hotkey detection", checkHotkey},
		{"Microphone", checkMicrophone},
		{"Speaker", checkSpeaker},
		{"Live connection", checkConnection},
	}
	failed := 0
	for i, c := range checks {
		fmt.Fprintf(out, "\n[%d/%d] %s\n", i+1, len(checks), c.name)
		if ctx.Err() != nil {
			fmt.Fprintln(out, "  FAIL: interrupted")
			return 1
		}
		if !c.run(ctx, opts) {
			failed++
		}
	}

	fmt.Fprintln(out)
	if failed > 0 {
		fmt.Fprintf(out, "%d check(s) failed. See details above.\n", failed)
		return 1
	}
	fmt.Fprintln(out, "All checks passed!")
	return 0
}

func checkHotkey(ctx context.Context, o Options) bool {
	if o.Hotkey == nil {
		fmt.Fprintln(o.Out, "  SKIP: no hotkey")
		return true
	}
	fmt.Fprintf(o.Out, "Press %s...\n", hotkey.Combo)
	if err := o.Hotkey.Register(); err != nil {
		fmt.Fprintf(o.Out, "  FAIL: could not register hotkey: %v\n", err)
		return false
	}
	defer o.Hotkey.Unregister()

	select {
	case <-o.Hotkey.Keydown():
	case <-time.After(o.Timeout):
		fmt.Fprintln(o.Out, "  FAIL: timeout waiting for hotkey")
		return false
	case <-ctx.Done():
		return false
	}
	select {
	case <-o.Hotkey.Keyup():
	case <-time.After(5 * time.Second):
	case <-ctx.Done():
	}
	// evdev grabs can leave the terminal in raw mode
	resetTerminal()
	fmt.Fprintln(o.Out, "  PASS: hotkey detected")
	return true
}

func checkMicrophone(ctx context.Context, o Options) bool {
	capture, err := o.Audio.NewCapture(o.Device, audio.CaptureConfig{BlockSize: 1024})
	if err != nil {
		fmt.Fprintf(o.Out, "  FAIL: cannot open microphone: %v\n", err)
		return false
	}
	defer capture.Close()
	fmt.Fprintf(o.Out, "Using device: %s\n", capture.DeviceName())

	det, err := vad.New(pcm.InputSampleRate)
	if err != nil {
		fmt.Fprintf(o.Out, "  Warning: voice detection unavailable: %v\n", err)
	}

	var (
		mu     sync.Mutex
		blocks int
		peak   float64
	)
	capture.SetCallback(func(samples []float32, rate uint32) {
		level := audio.RMS(samples)
		mu.Lock()
		defer mu.Unlock()
		blocks++
		peak = math.Max(peak, level)
		if det != nil {
			det.Process(pcm.EncodePCM16(audio.Resample(samples, rate, pcm.InputSampleRate)))
		}
	})
	if err := capture.Start(); err != nil {
		fmt.Fprintf(o.Out, "  FAIL: cannot start microphone: %v\n", err)
		return false
	}
	fmt.Fprintf(o.Out, "  Speak for %s...\n", o.Listen)
	select {
	case <-time.After(o.Listen):
	case <-ctx.Done():
	}
	capture.Stop()
	capture.ClearCallback()

	mu.Lock()
	defer mu.Unlock()
	if blocks == 0 {
		fmt.Fprintln(o.Out, "  FAIL: no audio captured")
		return false
	}
	fmt.Fprintf(o.Out, "  %d blocks, peak level %.3f\n", blocks, peak)
	if det != nil {
		total, speech := det.Stats()
		fmt.Fprintf(o.Out, "  speech in %d of %d frames\n", speech, total)
	}
	if peak < 0.01 {
		fmt.Fprintln(o.Out, "  Warning: no voice detected, check the input volume")
	}
	fmt.Fprintln(o.Out, "  PASS: microphone delivers audio")
	return true
}

const toneDuration = 400 * time.Millisecond

func tone(rate int, freq float64, d time.Duration) pcm.Buffer {
	n := int(float64(rate) * d.Seconds())
	s := make([]float32, n)
	for i := range s {
		s[i] = float32(0.2 * math.Sin(2*math.Pi*freq*float64(i)/float64(rate)))
	}
	return pcm.Buffer{SampleRate: rate, Channels: [][]float32{s}}
}

func checkSpeaker(ctx context.Context, o Options) bool {
	out, err := o.Audio.NewPlayback(audio.PlaybackConfig{SampleRate: pcm.OutputSampleRate})
	if err != nil {
		fmt.Fprintf(o.Out, "  FAIL: cannot open speaker: %v\n", err)
		return false
	}
	defer out.Close()

	rate := int(out.SampleRate())
	if rate <= 0 {
		rate = pcm.OutputSampleRate
	}
	mixer := playback.NewMixer(rate)
	out.SetRenderer(mixer.Render)
	if err := out.Start(); err != nil {
		fmt.Fprintf(o.Out, "  FAIL: cannot start speaker: %v\n", err)
		return false
	}

	done := make(chan struct{})
	sched := playback.NewScheduler(mixer)
	sched.Schedule(tone(pcm.OutputSampleRate, 440, toneDuration), func(uint64) { close(done) })
	fmt.Fprintln(o.Out, "  Playing a short tone...")
	select {
	case <-done:
	case <-time.After(toneDuration + o.Timeout):
		sched.Interrupt()
		fmt.Fprintln(o.Out, "  FAIL: speaker did not consume audio")
		return false
	case <-ctx.Done():
		sched.Interrupt()
		return false
	}
	out.Stop()
	fmt.Fprintln(o.Out, "  PASS: tone played")
	return true
}

func checkConnection(ctx context.Context, o Options) bool {
	if o.Dialer == nil {
		fmt.Fprintln(o.Out, "  SKIP: no API key")
		return true
	}
	ctx, cancel := context.WithTimeout(ctx, o.Timeout)
	defer cancel()

	begin := time.Now()
	st, err := o.Dialer.Dial(ctx, live.Config{
		Model:       o.Model,
		Instruction: session.IndonesianToJapanese.Instruction(),
	})
	if err != nil {
		fmt.Fprintf(o.Out, "  FAIL: %v\n", err)
		return false
	}
	st.Close()
	fmt.Fprintf(o.Out, "  PASS: session accepted in %dms\n", time.Since(begin).Milliseconds())
	return true
}
