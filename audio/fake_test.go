package audio

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeWAV(t *testing.T, path string, rate uint32, samples []int16) {
	t.Helper()
	dataSize := len(samples) * 2
	buf := make([]byte, WAVHeaderSize+dataSize)
	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(WAVHeaderSize-8+dataSize))
	copy(buf[8:12], "WAVE")
	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], 1)
	binary.LittleEndian.PutUint16(buf[22:24], 1)
	binary.LittleEndian.PutUint32(buf[24:28], rate)
	binary.LittleEndian.PutUint32(buf[28:32], rate*2)
	binary.LittleEndian.PutUint16(buf[32:34], 2)
	binary.LittleEndian.PutUint16(buf[34:36], 16)
	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataSize))
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[WAVHeaderSize+i*2:], uint16(s))
	}
	if err := os.WriteFile(path, buf, 0644); err != nil {
		t.Fatal(err)
	}
}

func TestFakeContextFromWAV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "in.wav")
	writeWAV(t, path, 44100, []int16{16384, -16384, 0})

	ctx, err := NewFakeContextFromWAV(path, false)
	if err != nil {
		t.Fatal(err)
	}
	if ctx.rate != 44100 {
		t.Errorf("rate = %d, want 44100", ctx.rate)
	}
	want := []float32{0.5, -0.5, 0}
	for i, w := range want {
		if ctx.samples[i] != w {
			t.Errorf("samples[%d] = %v, want %v", i, ctx.samples[i], w)
		}
	}
}

func TestFakeCaptureEmitOnlyWhileStarted(t *testing.T) {
	ctx := NewFakeContext(nil, 48000, false)
	dev, err := ctx.NewCapture(nil, CaptureConfig{BlockSize: 4})
	if err != nil {
		t.Fatal(err)
	}
	capture := dev.(*FakeCapture)

	var got int
	var gotRate uint32
	capture.SetCallback(func(samples []float32, rate uint32) {
		got += len(samples)
		gotRate = rate
	})

	capture.Emit(make([]float32, 4))
	if got != 0 {
		t.Fatal("block delivered before Start")
	}
	if err := capture.Start(); err != nil {
		t.Fatal(err)
	}
	capture.Emit(make([]float32, 4))
	if got != 4 || gotRate != 48000 {
		t.Errorf("got %d samples at %d Hz, want 4 at 48000", got, gotRate)
	}
	capture.Close()
	if !capture.Closed() || capture.Started() {
		t.Error("Close should stop and mark closed")
	}
	capture.Close() // idempotent
}

func TestFakeCaptureRealtimeFeeds(t *testing.T) {
	samples := make([]float32, 64)
	ctx := NewFakeContext(samples, 16000, true)
	dev, _ := ctx.NewCapture(nil, CaptureConfig{BlockSize: 16})

	blocks := make(chan int, 64)
	dev.SetCallback(func(s []float32, _ uint32) {
		select {
		case blocks <- len(s):
		default:
		}
	})
	if err := dev.Start(); err != nil {
		t.Fatal(err)
	}
	defer dev.Close()

	select {
	case n := <-blocks:
		if n != 16 {
			t.Errorf("block size = %d, want 16", n)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no block delivered")
	}
}

func TestFakePlaybackPump(t *testing.T) {
	ctx := NewFakeContext(nil, 0, false)
	dev, err := ctx.NewPlayback(PlaybackConfig{SampleRate: 24000})
	if err != nil {
		t.Fatal(err)
	}
	pb := dev.(*FakePlayback)
	if pb.SampleRate() != 24000 {
		t.Errorf("SampleRate = %d", pb.SampleRate())
	}
	pb.SetRenderer(func(out []float32) {
		for i := range out {
			out[i] = 0.5
		}
	})
	out := pb.Pump(3)
	if len(out) != 3 || out[2] != 0.5 {
		t.Errorf("Pump = %v", out)
	}
	if len(pb.Rendered()) != 3 {
		t.Errorf("Rendered len = %d", len(pb.Rendered()))
	}
}

func TestFakeContextInjectedErrors(t *testing.T) {
	ctx := NewFakeContext(nil, 16000, false)
	ctx.CaptureErr = os.ErrPermission
	if _, err := ctx.NewCapture(nil, CaptureConfig{}); err == nil {
		t.Error("expected injected capture error")
	}
	if _, err := ctx.NewCapture(nil, CaptureConfig{}); err != nil {
		t.Errorf("injected error should be consumed, got %v", err)
	}
}
