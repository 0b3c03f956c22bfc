package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"juru/audio"
	"juru/config"
	"juru/hotkey"
	"juru/live"
	"juru/log"
	"juru/metrics"
	"juru/session"
	"juru/transcript"
)

const (
	// echoFrames is how many outbound frames the fake remote collects before
	// answering with a turn.
	echoFrames  = 4
	waitTimeout = 10 * time.Second
)

// runTestMode runs headless: the WAV file plays as the microphone in real
// time, the remote echoes every few frames back as a translated turn, and
// stdin drives the session:
//
//	START [id_to_jp|jp_to_id]  STOP  KEYDOWN  KEYUP  FLIP
//	WAIT_LISTENING  WAIT_IDLE  WAIT_ERROR  WAIT_TURNS n
//	LOG  SLEEP ms  QUIT
func runTestMode(ctx context.Context, cfg config.Config, m *metrics.Metrics, in io.Reader, out io.Writer) error {
	actx, err := audio.NewFakeContextFromWAV(cfg.Test, true)
	if err != nil {
		return fmt.Errorf("load %s: %w", cfg.Test, err)
	}
	defer actx.Close()

	dialer := live.NewFakeDialer()
	dialer.OnDial(live.Echo(echoFrames))
	hk := hotkey.NewFake()

	sink := newPrintSink(out)
	a := &app{dir: cfg.Direction}
	a.ctrl = session.New(sessionConfig(cfg, actx, dialer, nil, m, sink))
	defer a.ctrl.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	trig := hotkey.NewTrigger(hk, cfg.LongPress)
	go trig.Run(ctx)
	go a.drive(ctx, trig.Events(), nil)

	log.Infof("test mode: %s", cfg.Test)
	t := &testDriver{app: a, hk: hk, sink: sink}
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return nil
		}
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		if fields[0] == "QUIT" {
			return nil
		}
		if err := t.exec(ctx, fields[0], fields[1:]); err != nil {
			sink.printf("ERROR %s: %v", fields[0], err)
		}
	}
	return scanner.Err()
}

type testDriver struct {
	app  *app
	hk   *hotkey.Fake
	sink *printSink
}

func (t *testDriver) exec(ctx context.Context, cmd string, args []string) error {
	ctrl := t.app.ctrl
	switch cmd {
	case "START":
		if len(args) > 0 {
			dir, err := session.ParseDirection(args[0])
			if err != nil {
				return err
			}
			t.app.mu.Lock()
			t.app.dir = dir
			t.app.mu.Unlock()
		}
		return ctrl.Start(t.app.direction())
	case "STOP":
		ctrl.Stop()
	case "KEYDOWN":
		t.hk.Press()
	case "KEYUP":
		t.hk.Release()
	case "FLIP":
		dir, ok := t.app.flip()
		if !ok {
			return session.ErrSessionActive
		}
		t.sink.printf("DIRECTION %s", dir)
	case "WAIT_LISTENING":
		return t.waitStatus(ctx, session.Listening)
	case "WAIT_IDLE":
		return t.waitStatus(ctx, session.Idle)
	case "WAIT_ERROR":
		return t.waitStatus(ctx, session.Error)
	case "WAIT_TURNS":
		if len(args) != 1 {
			return errors.New("usage: WAIT_TURNS n")
		}
		n, err := strconv.Atoi(args[0])
		if err != nil {
			return err
		}
		return t.waitTurns(ctx, n)
	case "LOG":
		for _, e := range ctrl.TranscriptionLog() {
			state := "final"
			if e.Partial {
				state = "partial"
			}
			t.sink.printf("LOG %s %s: %s", state, e.Speaker, e.Text)
		}
	case "SLEEP":
		if len(args) != 1 {
			return errors.New("usage: SLEEP ms")
		}
		ms, err := strconv.Atoi(args[0])
		if err != nil {
			return err
		}
		select {
		case <-time.After(time.Duration(ms) * time.Millisecond):
		case <-ctx.Done():
		}
	default:
		return errors.New("unknown command")
	}
	return nil
}

func (t *testDriver) waitStatus(ctx context.Context, want session.Status) error {
	ctx, cancel := context.WithTimeout(ctx, waitTimeout)
	defer cancel()
	got, err := t.app.ctrl.WaitStatus(ctx, func(s session.Status) bool { return s == want })
	if err != nil {
		return fmt.Errorf("status %s after %s", got, waitTimeout)
	}
	return nil
}

// waitTurns waits until the log holds n finished translations.
func (t *testDriver) waitTurns(ctx context.Context, n int) error {
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	deadline := time.After(waitTimeout)
	for {
		got := 0
		for _, e := range t.app.ctrl.TranscriptionLog() {
			if e.Speaker == transcript.Model && !e.Partial {
				got++
			}
		}
		if got >= n {
			return nil
		}
		select {
		case <-ticker.C:
		case <-deadline:
			return fmt.Errorf("%d of %d turns after %s", got, n, waitTimeout)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
