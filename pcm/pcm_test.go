package pcm

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
	"math/rand"
	"testing"
)

func TestPCM16RoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	raw := make([]byte, 4096)
	rng.Read(raw)
	// include the extremes explicitly
	binary.LittleEndian.PutUint16(raw[0:], uint16(0x8000))
	binary.LittleEndian.PutUint16(raw[2:], uint16(0x7fff))

	buf, err := DecodePCM16(raw, InputSampleRate, 1)
	if err != nil {
		t.Fatal(err)
	}
	if buf.Frames() != len(raw)/2 {
		t.Fatalf("Frames = %d, want %d", buf.Frames(), len(raw)/2)
	}
	got := EncodePCM16(buf.Channels[0])
	if !bytes.Equal(got, raw) {
		t.Fatal("decode then encode is not byte-identical")
	}
}

func TestBase64RoundTrip(t *testing.T) {
	for _, raw := range [][]byte{{}, {0}, {1, 2, 3}, bytes.Repeat([]byte{0xff, 0x00}, 1000)} {
		back, err := DecodeBase64(Encode(raw))
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(back, raw) {
			t.Errorf("round trip of %d bytes differs", len(raw))
		}
	}
}

func TestDecodeBase64Malformed(t *testing.T) {
	if _, err := DecodeBase64("not base64!!"); err == nil {
		t.Error("expected error for malformed input")
	}
}

func TestToInt16Saturates(t *testing.T) {
	for _, tt := range []struct {
		in   float32
		want int16
	}{
		{0, 0},
		{0.5, 16384},
		{-0.5, -16384},
		{-1, math.MinInt16},
		{1, math.MaxInt16},
		{1.5, math.MaxInt16},
		{-3, math.MinInt16},
		{float32(math.NaN()), 0},
	} {
		if got := ToInt16(tt.in); got != tt.want {
			t.Errorf("ToInt16(%v) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestEncodeBlob(t *testing.T) {
	blob := EncodeBlob([]float32{0.5, -0.5}, InputSampleRate)
	if blob.MIMEType != "audio/pcm;rate=16000" {
		t.Errorf("MIMEType = %q", blob.MIMEType)
	}
	raw, err := DecodeBase64(blob.Data)
	if err != nil {
		t.Fatal(err)
	}
	want := []byte{0x00, 0x40, 0x00, 0xc0}
	if !bytes.Equal(raw, want) {
		t.Errorf("raw = % x, want % x", raw, want)
	}
}

func TestDecodePCM16Errors(t *testing.T) {
	if _, err := DecodePCM16([]byte{1, 2, 3}, OutputSampleRate, 1); !errors.Is(err, ErrOddLength) {
		t.Errorf("odd length: err = %v, want ErrOddLength", err)
	}
	if _, err := DecodePCM16([]byte{1, 2}, OutputSampleRate, 2); !errors.Is(err, ErrOddLength) {
		t.Errorf("partial stereo frame: err = %v, want ErrOddLength", err)
	}
	if _, err := DecodePCM16([]byte{1, 2}, 0, 1); err == nil {
		t.Error("expected error for zero rate")
	}
}

func TestDecodePCM16Stereo(t *testing.T) {
	raw := EncodePCM16([]float32{0.5, -0.5, 0.25, 0.75})
	buf, err := DecodePCM16(raw, 48000, 2)
	if err != nil {
		t.Fatal(err)
	}
	if buf.Frames() != 2 {
		t.Fatalf("Frames = %d, want 2", buf.Frames())
	}
	if buf.Channels[0][1] != 0.25 || buf.Channels[1][1] != 0.75 {
		t.Errorf("channels = %v", buf.Channels)
	}
	mono := buf.Mono()
	if mono[0] != 0 || mono[1] != 0.5 {
		t.Errorf("Mono = %v, want [0 0.5]", mono)
	}
}

func TestDuration(t *testing.T) {
	buf, err := DecodeChunk(Encode(make([]byte, 2*OutputSampleRate/2)), OutputSampleRate)
	if err != nil {
		t.Fatal(err)
	}
	if got := buf.Duration(); got != 0.5 {
		t.Errorf("Duration = %v, want 0.5", got)
	}
	if (Buffer{}).Duration() != 0 {
		t.Error("empty buffer should have zero duration")
	}
}

func TestParseRate(t *testing.T) {
	for _, tt := range []struct {
		in   string
		want int
		ok   bool
	}{
		{"audio/pcm;rate=24000", 24000, true},
		{"audio/pcm; rate=16000", 16000, true},
		{"audio/pcm", 0, false},
		{"audio/pcm;rate=abc", 0, false},
		{"audio/pcm;channels=1;rate=8000", 8000, true},
	} {
		got, ok := ParseRate(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ParseRate(%q) = %d, %v; want %d, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}
