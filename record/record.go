// Package record writes a session's outbound and translated audio to FLAC.
package record

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"juru/audio"
	"juru/pcm"

	"github.com/mewkiz/flac"
	"github.com/mewkiz/flac/frame"
	"github.com/mewkiz/flac/meta"
)

const BlockSize = 4096

// Track encodes one mono stream. Samples are buffered into fixed-size
// frames; the tail is written on Close.
type Track struct {
	mu      sync.Mutex
	enc     *flac.Encoder
	rate    uint32
	pending []int16
	total   uint64
	closed  bool
}

// NewTrack starts a FLAC stream on w. When w is also an io.Seeker the
// stream header is patched with the final sample count on Close.
func NewTrack(w io.Writer, rate int) (*Track, error) {
	info := &meta.StreamInfo{
		BlockSizeMin:  16,
		BlockSizeMax:  BlockSize,
		SampleRate:    uint32(rate),
		NChannels:     1,
		BitsPerSample: pcm.BitsPerSample,
	}
	enc, err := flac.NewEncoder(w, info)
	if err != nil {
		return nil, fmt.Errorf("creating flac encoder: %w", err)
	}
	enc.EnablePredictionAnalysis(true)
	return &Track{enc: enc, rate: uint32(rate)}, nil
}

func (t *Track) Write(samples []float32) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return errors.New("record: write on closed track")
	}
	t.pending = append(t.pending, pcm.Int16(samples)...)
	for len(t.pending) >= BlockSize {
		if err := t.writeFrame(t.pending[:BlockSize]); err != nil {
			return err
		}
		t.pending = t.pending[BlockSize:]
	}
	return nil
}

func (t *Track) writeFrame(block []int16) error {
	samples32 := make([]int32, len(block))
	for i, s := range block {
		samples32[i] = int32(s)
	}

	f := &frame.Frame{
		Header: frame.Header{
			BlockSize:     uint16(len(block)),
			SampleRate:    t.rate,
			Channels:      frame.ChannelsMono,
			BitsPerSample: pcm.BitsPerSample,
		},
		Subframes: []*frame.Subframe{{
			SubHeader: frame.SubHeader{Pred: frame.PredVerbatim},
			Samples:   samples32,
			NSamples:  len(block),
		}},
	}
	if err := t.enc.WriteFrame(f); err != nil {
		return fmt.Errorf("writing flac frame: %w", err)
	}
	t.total += uint64(len(block))
	return nil
}

// WriteRate writes samples captured at rate, converting them to the
// track's rate first.
func (t *Track) WriteRate(samples []float32, rate int) error {
	if rate > 0 && uint32(rate) != t.rate {
		samples = audio.Convert(samples, uint32(rate), t.rate)
	}
	return t.Write(samples)
}

func (t *Track) Rate() int { return int(t.rate) }

// Frames is the number of samples encoded so far.
func (t *Track) Frames() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.total
}

// Close flushes the tail and closes the underlying writer.
func (t *Track) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	var err error
	if len(t.pending) > 0 {
		err = t.writeFrame(t.pending)
		t.pending = nil
	}
	return errors.Join(err, t.enc.Close())
}

// Recorder holds the two tracks of one session.
type Recorder struct {
	Input  *Track
	Output *Track
	paths  []string
}

// New creates <dir>/<id>-input.flac and <dir>/<id>-output.flac.
func New(dir, id string, inputRate, outputRate int) (*Recorder, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("record: %w", err)
	}
	r := &Recorder{}
	var err error
	if r.Input, err = r.open(filepath.Join(dir, id+"-input.flac"), inputRate); err != nil {
		return nil, err
	}
	if r.Output, err = r.open(filepath.Join(dir, id+"-output.flac"), outputRate); err != nil {
		r.Input.Close()
		return nil, err
	}
	return r, nil
}

func (r *Recorder) open(path string, rate int) (*Track, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("record: %w", err)
	}
	t, err := NewTrack(f, rate)
	if err != nil {
		f.Close()
		return nil, err
	}
	r.paths = append(r.paths, path)
	return t, nil
}

func (r *Recorder) Paths() []string { return r.paths }

func (r *Recorder) Close() error {
	return errors.Join(r.Input.Close(), r.Output.Close())
}
