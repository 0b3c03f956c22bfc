package hotkey

import (
	"context"
	"sync"
	"time"
)

type Mode string

const (
	ModePTT    Mode = "ptt"
	ModeToggle Mode = "toggle"
)

// Event asks the caller to start or stop a session.
type Event struct {
	Start bool
	Mode  Mode
}

// Trigger turns one chord into push-to-talk and tap-to-toggle. A press
// starts a session at once. Holding past longPress makes it push-to-talk,
// stopping on release; a shorter tap latches it on until the next tap.
type Trigger struct {
	hk        Hotkey
	longPress time.Duration
	events    chan Event

	mu   sync.Mutex
	mode Mode
}

func NewTrigger(hk Hotkey, longPress time.Duration) *Trigger {
	return &Trigger{hk: hk, longPress: longPress, events: make(chan Event, 1)}
}

func (t *Trigger) Events() <-chan Event { return t.events }

// Mode reports how the running session was started; empty when idle.
func (t *Trigger) Mode() Mode {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.mode
}

func (t *Trigger) setMode(m Mode) {
	t.mu.Lock()
	t.mode = m
	t.mu.Unlock()
}

func (t *Trigger) emit(ctx context.Context, ev Event) bool {
	select {
	case t.events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

func (t *Trigger) wait(ctx context.Context, ch <-chan struct{}) bool {
	select {
	case <-ch:
		return true
	case <-ctx.Done():
		return false
	}
}

// Run processes chord presses until ctx ends.
func (t *Trigger) Run(ctx context.Context) {
	for {
		if !t.wait(ctx, t.hk.Keydown()) {
			return
		}
		t.setMode(ModeToggle)
		if !t.emit(ctx, Event{Start: true, Mode: ModeToggle}) {
			return
		}

		timer := time.NewTimer(t.longPress)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			t.setMode(ModePTT)
			if !t.wait(ctx, t.hk.Keyup()) {
				return
			}
		case <-t.hk.Keyup():
			timer.Stop()
			// latched: the next full tap stops
			if !t.wait(ctx, t.hk.Keydown()) || !t.wait(ctx, t.hk.Keyup()) {
				return
			}
		}
		mode := t.Mode()
		t.setMode("")
		if !t.emit(ctx, Event{Start: false, Mode: mode}) {
			return
		}
	}
}
