// Package playback keeps streamed audio chunks on one gapless timeline.
package playback

import "juru/pcm"

// Clock reports the playback position of the output, in seconds.
type Clock interface {
	Now() float64
}

// Voice is a started unit that can be cut off.
type Voice interface {
	Stop()
}

// Output starts a buffer at an absolute clock time. onEnded fires once when
// the buffer finishes naturally; it never fires for a stopped voice.
type Output interface {
	Clock
	Play(buf pcm.Buffer, at float64, onEnded func()) Voice
}

// Unit is one scheduled chunk.
type Unit struct {
	ID    uint64
	Start float64
	End   float64
	voice Voice
}

// Scheduler is not safe for concurrent use; the session event loop owns it.
type Scheduler struct {
	out   Output
	next  float64
	seq   uint64
	units map[uint64]*Unit
}

func NewScheduler(out Output) *Scheduler {
	return &Scheduler{out: out, units: make(map[uint64]*Unit)}
}

// Schedule queues buf right after the previous chunk, or at the current
// clock time if the timeline has fallen behind. ended is called with the
// unit id when it finishes playing; callers route it back through Ended.
func (s *Scheduler) Schedule(buf pcm.Buffer, ended func(id uint64)) *Unit {
	s.next = max(s.next, s.out.Now())
	s.seq++
	u := &Unit{ID: s.seq, Start: s.next, End: s.next + buf.Duration()}
	id := u.ID
	u.voice = s.out.Play(buf, u.Start, func() {
		if ended != nil {
			ended(id)
		}
	})
	s.next = u.End
	s.units[u.ID] = u
	return u
}

// Ended drops a unit whose playback finished.
func (s *Scheduler) Ended(id uint64) {
	delete(s.units, id)
}

// Interrupt stops everything queued or playing and rewinds the timeline so
// the next chunk starts at "now".
func (s *Scheduler) Interrupt() int {
	n := len(s.units)
	for id, u := range s.units {
		if u.voice != nil {
			u.voice.Stop()
		}
		delete(s.units, id)
	}
	s.next = 0
	return n
}

// Reset is the teardown form of Interrupt.
func (s *Scheduler) Reset() {
	s.Interrupt()
}

func (s *Scheduler) NextStartTime() float64 { return s.next }

// Active is the number of units not yet ended or stopped.
func (s *Scheduler) Active() int { return len(s.units) }
