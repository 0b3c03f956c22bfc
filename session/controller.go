// Package session runs one live translation session at a time: it owns the
// microphone, the remote stream, playback and the transcript, and moves
// through IDLE, CONNECTING, LISTENING and ERROR.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"juru/audio"
	"juru/live"
	"juru/log"
	"juru/metrics"
	"juru/pcm"
	"juru/transcript"
)

var (
	ErrSessionActive = errors.New("session: already active")
	ErrClosed        = errors.New("session: controller closed")
)

const (
	defaultSendQueue = 64
	eventQueue       = 256
)

type Config struct {
	Audio  audio.Context
	Dialer live.Dialer
	// Device is the capture device; nil picks the system default.
	Device *audio.DeviceInfo

	Model      string
	BlockSize  uint32
	InputRate  int
	OutputRate int
	Merge      transcript.MatchMode
	SendQueue  int

	// RecordDir enables FLAC recording of both directions.
	RecordDir string
	VAD       bool

	Metrics *metrics.Metrics
	Sink    Sink
}

func (c *Config) setDefaults() {
	if c.BlockSize == 0 {
		c.BlockSize = audio.DefaultBlockSize
	}
	if c.InputRate == 0 {
		c.InputRate = pcm.InputSampleRate
	}
	if c.OutputRate == 0 {
		c.OutputRate = pcm.OutputSampleRate
	}
	if c.SendQueue <= 0 {
		c.SendQueue = defaultSendQueue
	}
	if c.Model == "" {
		c.Model = live.DefaultModel
	}
	if c.Sink == nil {
		c.Sink = nopSink{}
	}
}

// Controller serializes every state change on one goroutine. Public methods
// are safe for concurrent use.
type Controller struct {
	cfg Config

	cmds   chan command
	events chan event
	done   chan struct{}

	closeOnce sync.Once

	mu      sync.Mutex
	status  Status
	errMsg  string
	entries []transcript.Entry
	current *Info
	changed chan struct{}

	// owned by the loop goroutine
	gen  uint64
	sess *session
	asm  *transcript.Assembler
}

// Info describes the running session.
type Info struct {
	ID        string
	Direction Direction
	Device    string
	Started   time.Time
}

type command struct {
	kind  commandKind
	dir   Direction
	reply chan error
}

type commandKind int

const (
	cmdStart commandKind = iota
	cmdStop
	cmdClose
)

func New(cfg Config) *Controller {
	cfg.setDefaults()
	c := &Controller{
		cfg:     cfg,
		cmds:    make(chan command),
		events:  make(chan event, eventQueue),
		done:    make(chan struct{}),
		changed: make(chan struct{}),
		asm:     transcript.NewAssembler(cfg.Merge),
	}
	go c.run()
	return c
}

func (c *Controller) do(cmd command) error {
	cmd.reply = make(chan error, 1)
	select {
	case c.cmds <- cmd:
	case <-c.done:
		return ErrClosed
	}
	return <-cmd.reply
}

// Start opens a new session. It returns once devices are acquired and the
// connection is being dialed; the status moves to LISTENING when the remote
// side accepts. Acquisition failures are returned and also leave the
// controller in ERROR.
func (c *Controller) Start(dir Direction) error {
	if _, err := ParseDirection(string(dir)); err != nil {
		return err
	}
	return c.do(command{kind: cmdStart, dir: dir})
}

// Stop tears down any session and returns to IDLE. It is safe in every state.
func (c *Controller) Stop() {
	c.do(command{kind: cmdStop})
}

// Close stops the session and ends the controller goroutine.
func (c *Controller) Close() {
	c.closeOnce.Do(func() {
		c.do(command{kind: cmdClose})
		<-c.done
	})
}

func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// LastError is the message of the failure that put the controller in
// ERROR. It is cleared by the next Start or Stop.
func (c *Controller) LastError() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.errMsg
}

func (c *Controller) TranscriptionLog() []transcript.Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]transcript.Entry(nil), c.entries...)
}

// Session returns the running session, or nil.
func (c *Controller) Session() *Info {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return nil
	}
	info := *c.current
	return &info
}

// WaitStatus blocks until the status satisfies ok or ctx ends.
func (c *Controller) WaitStatus(ctx context.Context, ok func(Status) bool) (Status, error) {
	for {
		c.mu.Lock()
		st, changed := c.status, c.changed
		c.mu.Unlock()
		if ok(st) {
			return st, nil
		}
		select {
		case <-changed:
		case <-ctx.Done():
			return st, ctx.Err()
		}
	}
}

func (c *Controller) run() {
	defer close(c.done)
	for {
		select {
		case cmd := <-c.cmds:
			switch cmd.kind {
			case cmdStart:
				cmd.reply <- c.start(cmd.dir)
			case cmdStop:
				c.stop()
				cmd.reply <- nil
			case cmdClose:
				c.stop()
				cmd.reply <- nil
				return
			}
		case ev := <-c.events:
			c.handle(ev)
		}
	}
}

// publish copies loop state into the snapshot read by the UI.
func (c *Controller) publish(status Status, errMsg string) {
	entries := c.asm.Entries()
	var info *Info
	if s := c.sess; s != nil {
		info = &Info{ID: s.id, Direction: s.dir, Device: s.device, Started: s.started}
	}

	c.mu.Lock()
	statusChanged := c.status != status || c.errMsg != errMsg
	c.status = status
	c.errMsg = errMsg
	c.entries = entries
	c.current = info
	close(c.changed)
	c.changed = make(chan struct{})
	c.mu.Unlock()

	if statusChanged {
		c.cfg.Sink.StatusChanged(status, errMsg)
	}
}

func (c *Controller) publishTranscript() {
	entries := c.asm.Entries()
	c.mu.Lock()
	c.entries = entries
	c.mu.Unlock()
	c.cfg.Sink.TranscriptChanged(entries)
}

func (c *Controller) start(dir Direction) error {
	if c.Status().Active() {
		log.Warn("start ignored: session already active")
		return ErrSessionActive
	}

	c.asm.Clear()
	c.gen++
	s := newSession(c.gen, dir, c.cfg.SendQueue)
	c.sess = s
	c.publishTranscript()
	c.publish(Connecting, "")
	c.cfg.Metrics.SessionStarted()

	if err := c.acquire(s); err != nil {
		c.fail(kindAcquire, err)
		return err
	}
	log.SessionStart(s.id, string(dir), c.cfg.Model, s.device)
	c.dial(s)
	return nil
}

func (c *Controller) stop() {
	if c.sess != nil {
		c.teardown("stop")
	}
	c.asm.ResetBuffers()
	c.publish(Idle, "")
}

const (
	kindAcquire   = "acquire"
	kindTransport = "transport"
	kindRemote    = "remote"
	kindParse     = "parse"
	kindDecode    = "decode"
)

// fail is the single error path: release everything, then surface err as
// ERROR until the next Start or Stop.
func (c *Controller) fail(kind string, err error) {
	log.Errorf("session %s error: %v", kind, err)
	c.cfg.Metrics.SessionError(kind)
	if c.sess != nil {
		c.teardown(kind)
	}
	c.asm.ResetBuffers()
	c.publish(Error, err.Error())
}

// post hands an event from a session goroutine to the loop. It gives up
// once the session is torn down.
func (c *Controller) post(s *session, ev event) bool {
	select {
	case c.events <- ev:
		return true
	case <-s.quit:
		return false
	case <-c.done:
		return false
	}
}

func (c *Controller) dial(s *session) {
	ctx, cancel := context.WithCancel(context.Background())
	s.dialCancel = cancel
	cfg := live.Config{
		Model:               c.cfg.Model,
		Instruction:         s.dir.Instruction(),
		InputTranscription:  true,
		OutputTranscription: true,
	}
	go func() {
		begin := time.Now()
		st, err := c.cfg.Dialer.Dial(ctx, cfg)
		ev := dialed{gen: s.gen, stream: st, err: err, took: time.Since(begin)}
		if !c.post(s, ev) && st != nil {
			st.Close()
		}
	}()
}

func (c *Controller) handle(ev event) {
	s := c.sess
	if s == nil || ev.generation() != s.gen {
		if d, ok := ev.(dialed); ok && d.stream != nil {
			d.stream.Close()
		}
		return
	}

	switch ev := ev.(type) {
	case dialed:
		c.opened(s, ev)
	case received:
		c.receive(s, ev.msg)
	case recvFailed:
		c.lost(ev.err)
	case sendFailed:
		c.fail(kindTransport, fmt.Errorf("send audio: %w", ev.err))
	case unitEnded:
		s.sched.Ended(ev.id)
	}
}

func (c *Controller) opened(s *session, ev dialed) {
	if ev.err != nil {
		c.fail(kindAcquire, fmt.Errorf("connect: %w", ev.err))
		return
	}
	s.stream = ev.stream
	s.connectDur = ev.took
	c.cfg.Metrics.Connected(ev.took.Seconds())
	log.Infof("session %s connected in %dms", s.id, ev.took.Milliseconds())

	go c.runSender(s, ev.stream)
	go c.runReader(s, ev.stream)

	s.capture.SetCallback(c.captureFunc(s))
	if err := s.capture.Start(); err != nil {
		c.fail(kindAcquire, fmt.Errorf("start capture: %w", err))
		return
	}
	c.publish(Listening, "")
}

func (c *Controller) runSender(s *session, st live.Stream) {
	for {
		select {
		case <-s.quit:
			return
		case blob := <-s.sendq:
			if err := st.SendAudio(blob); err != nil {
				c.post(s, sendFailed{gen: s.gen, err: err})
				return
			}
			c.cfg.Metrics.FrameSent(len(blob.Data))
		}
	}
}

func (c *Controller) runReader(s *session, st live.Stream) {
	for {
		msg, err := st.Recv()
		if err != nil {
			c.post(s, recvFailed{gen: s.gen, err: err})
			return
		}
		c.cfg.Metrics.MessageReceived()
		if !c.post(s, received{gen: s.gen, msg: msg}) {
			return
		}
	}
}

// captureFunc runs on the capture device thread. It must never block:
// frames that do not fit in the send queue are dropped.
func (c *Controller) captureFunc(s *session) audio.DataCallback {
	inRate := c.cfg.InputRate
	mime := pcm.MIMEType(inRate)
	return func(samples []float32, rate uint32) {
		level := audio.RMS(samples)
		c.cfg.Metrics.Level(level)
		c.cfg.Sink.AudioLevel(level)

		block := audio.Resample(samples, rate, uint32(inRate))
		raw := pcm.EncodePCM16(block)
		if s.vad != nil && s.vad.Process(raw) {
			c.cfg.Sink.VoiceActivity(s.vad.Speaking())
		}
		if s.rec != nil {
			if err := s.rec.Input.Write(block); err != nil {
				log.Warnf("record input: %v", err)
			}
		}

		select {
		case s.sendq <- pcm.Blob{Data: pcm.Encode(raw), MIMEType: mime}:
		default:
			n := s.dropped.Add(1)
			c.cfg.Metrics.FrameDropped()
			log.Warnf("send queue full, dropped frame (%d so far)", n)
		}
	}
}
