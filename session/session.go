package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"juru/audio"
	"juru/live"
	"juru/log"
	"juru/pcm"
	"juru/playback"
	"juru/record"
	"juru/vad"

	"github.com/google/uuid"
)

// session is the resource set of one Start. Only the controller loop
// touches it, except for the fields the device callbacks read (quit, sendq,
// dropped, vad, rec), which are fixed or synchronized.
type session struct {
	id      string
	gen     uint64
	dir     Direction
	device  string
	started time.Time

	capture  audio.CaptureDevice
	output   audio.PlaybackDevice
	mixer    *playback.Mixer
	sched    *playback.Scheduler
	stream   live.Stream
	rec      *record.Recorder
	vad      *vad.Detector
	sendq    chan pcm.Blob
	quit     chan struct{}
	quitOnce sync.Once

	dialCancel context.CancelFunc
	connectDur time.Duration
	dropped    atomic.Int64

	chunks        int
	interruptions int
	turns         int
}

func newSession(gen uint64, dir Direction, queue int) *session {
	return &session{
		id:      uuid.NewString(),
		gen:     gen,
		dir:     dir,
		started: time.Now(),
		sendq:   make(chan pcm.Blob, queue),
		quit:    make(chan struct{}),
	}
}

// acquire opens the capture device and the output path. Whatever was
// acquired before a failure is released by the caller's teardown.
func (c *Controller) acquire(s *session) error {
	capture, err := c.cfg.Audio.NewCapture(c.cfg.Device, audio.CaptureConfig{BlockSize: c.cfg.BlockSize})
	if err != nil {
		return fmt.Errorf("open microphone: %w", err)
	}
	s.capture = capture
	s.device = capture.DeviceName()

	out, err := c.cfg.Audio.NewPlayback(audio.PlaybackConfig{SampleRate: uint32(c.cfg.OutputRate)})
	if err != nil {
		return fmt.Errorf("open speaker: %w", err)
	}
	s.output = out
	rate := int(out.SampleRate())
	if rate <= 0 {
		rate = c.cfg.OutputRate
	}
	s.mixer = playback.NewMixer(rate)
	s.sched = playback.NewScheduler(s.mixer)
	out.SetRenderer(s.mixer.Render)
	if err := out.Start(); err != nil {
		return fmt.Errorf("start speaker: %w", err)
	}

	if c.cfg.RecordDir != "" {
		rec, err := record.New(c.cfg.RecordDir, s.id, c.cfg.InputRate, c.cfg.OutputRate)
		if err != nil {
			log.Warnf("recording disabled: %v", err)
		} else {
			s.rec = rec
		}
	}
	if c.cfg.VAD {
		d, err := vad.New(c.cfg.InputRate)
		if err != nil {
			log.Warnf("voice activity disabled: %v", err)
		} else {
			s.vad = d
		}
	}
	return nil
}

// guard runs one release step so that a failing or panicking step never
// keeps the others from running.
func guard(step string, fn func() error) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("teardown %s panicked: %v", step, r)
		}
	}()
	if err := fn(); err != nil {
		log.Warnf("teardown %s: %v", step, err)
	}
}

// teardown releases every resource of the current session. The caller sets
// the resulting status.
func (c *Controller) teardown(reason string) {
	s := c.sess
	c.sess = nil
	s.quitOnce.Do(func() { close(s.quit) })

	if s.dialCancel != nil {
		s.dialCancel()
	}
	if s.stream != nil {
		guard("stream", s.stream.Close)
	}
	if s.capture != nil {
		guard("capture", func() error {
			s.capture.ClearCallback()
			s.capture.Stop()
			s.capture.Close()
			return nil
		})
	}
	if s.rec != nil {
		guard("recorder", s.rec.Close)
	}
	if s.sched != nil {
		guard("playback units", func() error {
			if n := s.sched.Interrupt(); n > 0 {
				log.Infof("stopped %d playback units", n)
			}
			return nil
		})
	}
	if s.output != nil {
		guard("speaker", func() error {
			s.output.Stop()
			s.output.Close()
			return nil
		})
	}
	if s.vad != nil {
		s.vad.Reset()
		c.cfg.Sink.VoiceActivity(false)
	}
	c.asm.ResetBuffers()
	c.cfg.Metrics.SessionEnded()

	stats := log.StreamStatsData{
		ConnectMs:      float64(s.connectDur.Milliseconds()),
		DroppedFrames:  int(s.dropped.Load()),
		ChunksPlayed:   s.chunks,
		Interruptions:  s.interruptions,
		Turns:          s.turns,
		SessionSeconds: time.Since(s.started).Seconds(),
	}
	if r, ok := s.stream.(live.StatsReporter); ok {
		st := r.Stats()
		stats.SentFrames = st.SentFrames
		stats.SentKB = float64(st.SentBytes) / 1024
		stats.RecvMessages = st.RecvMessages
	}
	log.StreamStats(s.id, stats)
	log.SessionEnd(s.id, reason, len(c.asm.Entries()), time.Since(s.started))
}

// receive applies one server message: transcript deltas (input before
// output), turn completion, the audio chunk, then interruption.
func (c *Controller) receive(s *session, msg live.ServerMessage) {
	if msg.Error != nil {
		c.fail(kindRemote, msg.Error)
		return
	}
	if msg.GoAway != nil {
		log.Warnf("server going away in %s", msg.GoAway.TimeLeft)
	}
	sc := msg.Content
	if sc == nil {
		return
	}

	changed := false
	if sc.InputTranscript != nil && *sc.InputTranscript != "" {
		c.asm.AddInput(*sc.InputTranscript)
		changed = true
	}
	if sc.OutputTranscript != nil && *sc.OutputTranscript != "" {
		c.asm.AddOutput(*sc.OutputTranscript)
		changed = true
	}
	if sc.TurnComplete {
		for _, e := range c.asm.CompleteTurn() {
			log.TranscriptLine(string(e.Speaker), e.Text)
		}
		s.turns++
		c.cfg.Metrics.TurnCompleted()
		changed = true
	}
	if changed {
		c.publishTranscript()
	}

	if sc.Audio != nil {
		if err := c.play(s, sc.Audio); err != nil {
			c.fail(kindDecode, err)
			return
		}
	}

	if sc.Interrupted {
		n := s.sched.Interrupt()
		s.interruptions++
		c.cfg.Metrics.Interrupted()
		log.Infof("interrupted, cancelled %d playback units", n)
	}
}

func (c *Controller) play(s *session, blob *pcm.Blob) error {
	rate, ok := pcm.ParseRate(blob.MIMEType)
	if !ok {
		rate = c.cfg.OutputRate
	}
	buf, err := pcm.DecodeChunk(blob.Data, rate)
	if err != nil {
		return fmt.Errorf("decode audio chunk: %w", err)
	}
	if buf.Frames() == 0 {
		return nil
	}
	gen := s.gen
	s.sched.Schedule(buf, func(id uint64) {
		c.post(s, unitEnded{gen: gen, id: id})
	})
	s.chunks++
	c.cfg.Metrics.ChunkScheduled()
	if s.rec != nil {
		if err := s.rec.Output.WriteRate(buf.Mono(), buf.SampleRate); err != nil {
			log.Warnf("record output: %v", err)
		}
	}
	return nil
}

// lost handles the end of the inbound stream.
func (c *Controller) lost(err error) {
	switch {
	case errors.Is(err, io.EOF):
		log.Info("remote closed the session")
		c.teardown("remote_close")
		c.publish(Idle, "")
	case errors.Is(err, live.ErrMalformedMessage):
		c.fail(kindParse, err)
	default:
		c.fail(kindTransport, fmt.Errorf("connection lost: %w", err))
	}
}

type event interface {
	generation() uint64
}

type dialed struct {
	gen    uint64
	stream live.Stream
	err    error
	took   time.Duration
}

type received struct {
	gen uint64
	msg live.ServerMessage
}

type recvFailed struct {
	gen uint64
	err error
}

type sendFailed struct {
	gen uint64
	err error
}

type unitEnded struct {
	gen uint64
	id  uint64
}

func (e dialed) generation() uint64     { return e.gen }
func (e received) generation() uint64   { return e.gen }
func (e recvFailed) generation() uint64 { return e.gen }
func (e sendFailed) generation() uint64 { return e.gen }
func (e unitEnded) generation() uint64  { return e.gen }
