package playback

import (
	"testing"

	"juru/pcm"
)

type fakeVoice struct {
	stopped bool
}

func (v *fakeVoice) Stop() { v.stopped = true }

type played struct {
	at      float64
	onEnded func()
	voice   *fakeVoice
}

type fakeOutput struct {
	now    float64
	played []played
}

func (o *fakeOutput) Now() float64 { return o.now }

func (o *fakeOutput) Play(buf pcm.Buffer, at float64, onEnded func()) Voice {
	v := &fakeVoice{}
	o.played = append(o.played, played{at: at, onEnded: onEnded, voice: v})
	return v
}

func secs(d float64) pcm.Buffer {
	rate := 1000
	return pcm.Buffer{SampleRate: rate, Channels: [][]float32{make([]float32, int(d*float64(rate)))}}
}

func TestScheduleContiguous(t *testing.T) {
	out := &fakeOutput{now: 2}
	s := NewScheduler(out)

	a := s.Schedule(secs(0.5), nil)
	out.now = 2.1
	b := s.Schedule(secs(0.25), nil)
	c := s.Schedule(secs(1), nil)

	for i, tt := range []struct {
		u          *Unit
		start, end float64
	}{
		{a, 2, 2.5},
		{b, 2.5, 2.75},
		{c, 2.75, 3.75},
	} {
		if tt.u.Start != tt.start || tt.u.End != tt.end {
			t.Errorf("unit %d = [%v, %v), want [%v, %v)", i, tt.u.Start, tt.u.End, tt.start, tt.end)
		}
		if out.played[i].at != tt.start {
			t.Errorf("unit %d played at %v, want %v", i, out.played[i].at, tt.start)
		}
	}
	if s.NextStartTime() != 3.75 {
		t.Errorf("NextStartTime = %v, want 3.75", s.NextStartTime())
	}
	if s.Active() != 3 {
		t.Errorf("Active = %d, want 3", s.Active())
	}
}

func TestScheduleCatchesUpToClock(t *testing.T) {
	out := &fakeOutput{}
	s := NewScheduler(out)
	s.Schedule(secs(0.5), nil)

	// timeline ran dry: next chunk starts now, not in the past
	out.now = 4
	u := s.Schedule(secs(0.5), nil)
	if u.Start != 4 {
		t.Errorf("Start = %v, want 4", u.Start)
	}
}

func TestEndedRemovesUnit(t *testing.T) {
	out := &fakeOutput{}
	s := NewScheduler(out)

	var ended []uint64
	cb := func(id uint64) {
		ended = append(ended, id)
		s.Ended(id)
	}
	a := s.Schedule(secs(0.1), cb)
	s.Schedule(secs(0.1), cb)

	out.played[0].onEnded()
	if len(ended) != 1 || ended[0] != a.ID {
		t.Fatalf("ended = %v, want [%d]", ended, a.ID)
	}
	if s.Active() != 1 {
		t.Errorf("Active = %d, want 1", s.Active())
	}
	// unknown ids are ignored
	s.Ended(999)
	if s.Active() != 1 {
		t.Errorf("Active = %d after unknown id, want 1", s.Active())
	}
}

func TestInterrupt(t *testing.T) {
	out := &fakeOutput{now: 1}
	s := NewScheduler(out)
	for range 3 {
		s.Schedule(secs(1), nil)
	}

	if n := s.Interrupt(); n != 3 {
		t.Errorf("Interrupt stopped %d, want 3", n)
	}
	for i, p := range out.played {
		if !p.voice.stopped {
			t.Errorf("voice %d not stopped", i)
		}
	}
	if s.Active() != 0 || s.NextStartTime() != 0 {
		t.Errorf("after interrupt: Active=%d next=%v", s.Active(), s.NextStartTime())
	}

	out.now = 1.5
	u := s.Schedule(secs(0.5), nil)
	if u.Start != 1.5 {
		t.Errorf("first unit after interrupt starts at %v, want 1.5", u.Start)
	}
	if n := s.Interrupt(); n != 1 {
		t.Errorf("second Interrupt stopped %d, want 1", n)
	}
	if n := s.Interrupt(); n != 0 {
		t.Errorf("empty Interrupt stopped %d, want 0", n)
	}
}
