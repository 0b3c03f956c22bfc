package audio

import (
	"math"
	"testing"
)

func TestResampleEqualRates(t *testing.T) {
	in := []float32{0.1, -0.2, 0.3, 1, -1}
	out := Resample(in, 16000, 16000)
	if len(out) != len(in) {
		t.Fatalf("len = %d, want %d", len(out), len(in))
	}
	if &out[0] != &in[0] {
		t.Error("equal rates should return the input slice, not a copy")
	}
	for i := range in {
		if out[i] != in[i] {
			t.Errorf("out[%d] = %v, want %v", i, out[i], in[i])
		}
	}
}

func TestResampleHalfRate(t *testing.T) {
	in := []float32{0.5, 0.25, -1, 0.5}
	out := Resample(in, 32000, 16000)
	want := []float32{0.375, -0.25}
	if len(out) != len(want) {
		t.Fatalf("len = %d, want %d", len(out), len(want))
	}
	for i := range want {
		if out[i] != want[i] {
			t.Errorf("out[%d] = %v, want %v", i, out[i], want[i])
		}
	}
}

func TestResampleEmpty(t *testing.T) {
	out := Resample(nil, 48000, 16000)
	if len(out) != 0 {
		t.Errorf("len = %d, want 0", len(out))
	}
}

func TestResampleLengths(t *testing.T) {
	for _, tt := range []struct {
		name     string
		src, dst uint32
		in, want int
	}{
		{"48k to 16k", 48000, 16000, 4096, 1365},
		{"44.1k to 16k", 44100, 16000, 4096, 1486},
		{"8k to 16k", 8000, 16000, 100, 200},
		{"single sample down", 48000, 16000, 1, 0},
	} {
		t.Run(tt.name, func(t *testing.T) {
			out := Resample(make([]float32, tt.in), tt.src, tt.dst)
			if len(out) != tt.want {
				t.Errorf("len = %d, want %d", len(out), tt.want)
			}
		})
	}
}

func TestResampleUpsampleEmptyWindows(t *testing.T) {
	// 1:2 upsampling leaves every other window empty, which must yield 0.
	in := []float32{0.5, 0.5}
	out := Resample(in, 8000, 16000)
	if len(out) != 4 {
		t.Fatalf("len = %d, want 4", len(out))
	}
	for i, v := range out {
		if math.IsNaN(float64(v)) {
			t.Fatalf("out[%d] is NaN", i)
		}
	}
	nonZero := 0
	for _, v := range out {
		if v != 0 {
			nonZero++
		}
	}
	if nonZero == 0 {
		t.Error("expected some non-zero output samples")
	}
}

func TestResampleConstantSignal(t *testing.T) {
	in := make([]float32, 4800)
	for i := range in {
		in[i] = 0.25
	}
	for _, v := range Resample(in, 48000, 16000) {
		if v != 0.25 {
			t.Fatalf("got %v, want 0.25", v)
		}
	}
}

func TestRMS(t *testing.T) {
	if got := RMS(nil); got != 0 {
		t.Errorf("RMS(nil) = %v, want 0", got)
	}
	if got := RMS([]float32{0.5, -0.5, 0.5, -0.5}); math.Abs(got-0.5) > 1e-9 {
		t.Errorf("RMS = %v, want 0.5", got)
	}
}

func TestBlockerFixedSize(t *testing.T) {
	b := newBlocker(4)
	var blocks [][]float32
	emit := func(blk []float32) { blocks = append(blocks, blk) }

	b.push([]float32{1, 2, 3}, emit)
	if len(blocks) != 0 {
		t.Fatalf("emitted %d blocks before size reached", len(blocks))
	}
	b.push([]float32{4, 5, 6, 7, 8, 9}, emit)
	if len(blocks) != 2 {
		t.Fatalf("emitted %d blocks, want 2", len(blocks))
	}
	if blocks[1][0] != 5 || blocks[1][3] != 8 {
		t.Errorf("second block = %v", blocks[1])
	}
	b.reset()
	b.push([]float32{1, 2, 3}, emit)
	if len(blocks) != 2 {
		t.Error("reset should discard the pending partial block")
	}
}

func TestInterpolateDoubleRate(t *testing.T) {
	in := []float32{0, 0.5, 1, 0.5}
	out := Interpolate(in, 24000, 48000)
	want := []float32{0, 0.25, 0.5, 0.75, 1, 0.75, 0.5, 0.5}
	if len(out) != len(want) {
		t.Fatalf("len = %d, want %d", len(out), len(want))
	}
	for i := range want {
		if out[i] != want[i] {
			t.Errorf("out[%d] = %v, want %v", i, out[i], want[i])
		}
	}
}

func TestInterpolateHasNoGaps(t *testing.T) {
	in := make([]float32, 240)
	for i := range in {
		in[i] = 0.5
	}
	for _, dst := range []uint32{44100, 48000, 96000} {
		out := Interpolate(in, 24000, dst)
		for i, s := range out {
			if s != 0.5 {
				t.Fatalf("%d Hz: out[%d] = %v, want 0.5", dst, i, s)
			}
		}
	}
}

func TestConvertDirection(t *testing.T) {
	up := Convert([]float32{0.5, 0.5}, 8000, 16000)
	for i, s := range up {
		if s != 0.5 {
			t.Errorf("up[%d] = %v, want 0.5", i, s)
		}
	}
	down := Convert([]float32{0.5, 0.25, -1, 0.5}, 32000, 16000)
	if len(down) != 2 || down[0] != 0.375 || down[1] != -0.25 {
		t.Errorf("down = %v, want [0.375 -0.25]", down)
	}
	if out := Convert(nil, 24000, 48000); len(out) != 0 {
		t.Errorf("empty input gave %d samples", len(out))
	}
}
