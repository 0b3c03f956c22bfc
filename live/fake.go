package live

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"juru/pcm"
)

// FakeDialer hands out FakeStreams. Tests drive each stream through Push,
// Fail and Hangup.
type FakeDialer struct {
	mu      sync.Mutex
	err     error
	gate    chan struct{}
	streams []*FakeStream
	dialed  chan *FakeStream
	script  func(*FakeStream)
}

func NewFakeDialer() *FakeDialer {
	return &FakeDialer{dialed: make(chan *FakeStream, 16)}
}

// FailNext makes the next Dial return err.
func (d *FakeDialer) FailNext(err error) {
	d.mu.Lock()
	d.err = err
	d.mu.Unlock()
}

// Hold blocks Dial until the returned release func is called or the dial
// context ends.
func (d *FakeDialer) Hold() (release func()) {
	gate := make(chan struct{})
	d.mu.Lock()
	d.gate = gate
	d.mu.Unlock()
	var once sync.Once
	return func() { once.Do(func() { close(gate) }) }
}

// OnDial runs fn on every new stream in its own goroutine.
func (d *FakeDialer) OnDial(fn func(*FakeStream)) {
	d.mu.Lock()
	d.script = fn
	d.mu.Unlock()
}

func (d *FakeDialer) Dial(ctx context.Context, cfg Config) (Stream, error) {
	d.mu.Lock()
	err, gate, script := d.err, d.gate, d.script
	d.err = nil
	d.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}

	s := newFakeStream(cfg)
	d.mu.Lock()
	d.streams = append(d.streams, s)
	d.mu.Unlock()
	select {
	case d.dialed <- s:
	default:
	}
	if script != nil {
		go script(s)
	}
	return s, nil
}

// Next waits for the next successful Dial.
func (d *FakeDialer) Next(timeout time.Duration) (*FakeStream, error) {
	select {
	case s := <-d.dialed:
		return s, nil
	case <-time.After(timeout):
		return nil, errors.New("no dial within timeout")
	}
}

func (d *FakeDialer) Streams() []*FakeStream {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*FakeStream(nil), d.streams...)
}

type recvResult struct {
	msg ServerMessage
	err error
}

type FakeStream struct {
	Config Config

	mu      sync.Mutex
	sent    []pcm.Blob
	sendErr error
	notify  chan struct{}

	recv      chan recvResult
	closed    chan struct{}
	closeOnce sync.Once
}

func newFakeStream(cfg Config) *FakeStream {
	return &FakeStream{
		Config: cfg,
		notify: make(chan struct{}, 1),
		recv:   make(chan recvResult, 64),
		closed: make(chan struct{}),
	}
}

func (s *FakeStream) SendAudio(blob pcm.Blob) error {
	select {
	case <-s.closed:
		return errors.New("fake: send on closed stream")
	default:
	}
	s.mu.Lock()
	if err := s.sendErr; err != nil {
		s.mu.Unlock()
		return err
	}
	s.sent = append(s.sent, blob)
	s.mu.Unlock()
	select {
	case s.notify <- struct{}{}:
	default:
	}
	return nil
}

func (s *FakeStream) Recv() (ServerMessage, error) {
	select {
	case r := <-s.recv:
		return r.msg, r.err
	case <-s.closed:
		return ServerMessage{}, io.EOF
	}
}

func (s *FakeStream) Close() error {
	s.closeOnce.Do(func() { close(s.closed) })
	return nil
}

func (s *FakeStream) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Stats{SentFrames: len(s.sent)}
	for _, b := range s.sent {
		st.SentBytes += uint64(len(b.Data))
	}
	return st
}

// Push delivers msg to the next Recv.
func (s *FakeStream) Push(msg ServerMessage) {
	s.deliver(recvResult{msg: msg})
}

func (s *FakeStream) deliver(r recvResult) {
	select {
	case s.recv <- r:
	case <-s.closed:
	}
}

// PushRaw parses data like the real client would and delivers the result,
// including parse errors.
func (s *FakeStream) PushRaw(data []byte) {
	msg, err := ParseServerMessage(data)
	s.deliver(recvResult{msg: msg, err: err})
}

// Fail makes the next Recv return err.
func (s *FakeStream) Fail(err error) {
	s.deliver(recvResult{err: err})
}

// Hangup simulates the server closing the connection normally.
func (s *FakeStream) Hangup() {
	s.deliver(recvResult{err: io.EOF})
}

// FailSends makes every later SendAudio return err.
func (s *FakeStream) FailSends(err error) {
	s.mu.Lock()
	s.sendErr = err
	s.mu.Unlock()
}

func (s *FakeStream) Sent() []pcm.Blob {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]pcm.Blob(nil), s.sent...)
}

// WaitSent blocks until at least n frames were sent.
func (s *FakeStream) WaitSent(n int, timeout time.Duration) error {
	deadline := time.After(timeout)
	for {
		s.mu.Lock()
		got := len(s.sent)
		s.mu.Unlock()
		if got >= n {
			return nil
		}
		select {
		case <-s.notify:
		case <-deadline:
			return fmt.Errorf("sent %d frames, want %d", got, n)
		}
	}
}

func (s *FakeStream) Closed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

// Echo answers every n received frames with a full turn: the frame count as
// both transcripts and the received audio played back as the translation.
// It is the remote used by headless test runs.
func Echo(n int) func(*FakeStream) {
	return func(s *FakeStream) {
		next := n
		for turn := 1; ; turn++ {
			if err := s.waitSentOrClose(next); err != nil {
				return
			}
			sent := s.Sent()
			var samples []float32
			rate := pcm.InputSampleRate
			for _, b := range sent[next-n : next] {
				if r, ok := pcm.ParseRate(b.MIMEType); ok {
					rate = r
				}
				buf, err := pcm.DecodeChunk(b.Data, rate)
				if err != nil {
					s.Fail(err)
					return
				}
				samples = append(samples, buf.Mono()...)
			}
			in := fmt.Sprintf("turn %d heard", turn)
			out := fmt.Sprintf("turn %d spoken", turn)
			audio := pcm.EncodeBlob(samples, rate)
			s.Push(ServerMessage{Content: &ServerContent{InputTranscript: &in}})
			s.Push(ServerMessage{Content: &ServerContent{OutputTranscript: &out, Audio: &audio}})
			s.Push(ServerMessage{Content: &ServerContent{TurnComplete: true}})
			next += n
		}
	}
}

func (s *FakeStream) waitSentOrClose(n int) error {
	for {
		if err := s.WaitSent(n, 100*time.Millisecond); err == nil {
			return nil
		}
		if s.Closed() {
			return io.EOF
		}
	}
}
