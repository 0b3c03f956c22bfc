package main

import (
	"bytes"
	"context"
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"juru/audio"
	"juru/config"
	"juru/metrics"
	"juru/session"
	"juru/transcript"
)

func writeTestWAV(t *testing.T, rate uint32, d time.Duration) string {
	t.Helper()
	n := int(float64(rate) * d.Seconds())
	buf := make([]byte, audio.WAVHeaderSize+n*2)
	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(len(buf)-8))
	copy(buf[8:12], "WAVE")
	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], 1)
	binary.LittleEndian.PutUint16(buf[22:24], 1)
	binary.LittleEndian.PutUint32(buf[24:28], rate)
	binary.LittleEndian.PutUint32(buf[28:32], rate*2)
	binary.LittleEndian.PutUint16(buf[32:34], 2)
	binary.LittleEndian.PutUint16(buf[34:36], 16)
	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(n*2))
	for i := range n {
		s := int16(8000 * math.Sin(2*math.Pi*300*float64(i)/float64(rate)))
		binary.LittleEndian.PutUint16(buf[audio.WAVHeaderSize+i*2:], uint16(s))
	}
	path := filepath.Join(t.TempDir(), "speech.wav")
	if err := os.WriteFile(path, buf, 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func testConfig(t *testing.T) config.Config {
	return config.Config{
		Direction:  session.IndonesianToJapanese,
		Model:      "test-model",
		Merge:      transcript.MatchBySpeaker,
		BlockSize:  1024,
		InputRate:  16000,
		OutputRate: 24000,
		SendQueue:  64,
		LongPress:  100 * time.Millisecond,
		Test:       writeTestWAV(t, 16000, time.Second),
	}
}

func runScript(t *testing.T, cfg config.Config, script string) string {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	var out bytes.Buffer
	if err := runTestMode(ctx, cfg, metrics.New(), strings.NewReader(script), &out); err != nil {
		t.Fatalf("runTestMode: %v", err)
	}
	return out.String()
}

func assertLines(t *testing.T, out string, want ...string) {
	t.Helper()
	rest := out
	for _, w := range want {
		i := strings.Index(rest, w+"\n")
		if i < 0 {
			t.Fatalf("missing %q in order; output:\n%s", w, out)
		}
		rest = rest[i+len(w)+1:]
	}
}

func TestTestModeSession(t *testing.T) {
	out := runScript(t, testConfig(t), `START
WAIT_LISTENING
WAIT_TURNS 2
LOG
STOP
WAIT_IDLE
QUIT
`)
	assertLines(t, out,
		"STATUS CONNECTING",
		"STATUS LISTENING",
		"user: turn 1 heard",
		"model: turn 1 spoken",
		"user: turn 2 heard",
		"model: turn 2 spoken",
		"LOG final user: turn 1 heard",
		"STATUS IDLE",
	)
	if strings.Contains(out, "ERROR") {
		t.Errorf("unexpected error:\n%s", out)
	}
}

func TestTestModePushToTalk(t *testing.T) {
	out := runScript(t, testConfig(t), `KEYDOWN
WAIT_LISTENING
SLEEP 300
KEYUP
WAIT_IDLE
QUIT
`)
	assertLines(t, out, "STATUS CONNECTING", "STATUS LISTENING", "STATUS IDLE")
}

func TestTestModeDirection(t *testing.T) {
	out := runScript(t, testConfig(t), `FLIP
START
WAIT_LISTENING
FLIP
STOP
WAIT_IDLE
START jp_to_id
START
STOP
START martian
QUIT
`)
	assertLines(t, out,
		"DIRECTION jp_to_id",
		"STATUS LISTENING",
		"ERROR FLIP: "+session.ErrSessionActive.Error(),
		"STATUS IDLE",
		"ERROR START: "+session.ErrSessionActive.Error(),
		`ERROR START: unknown direction "martian" (want id_to_jp or jp_to_id)`,
	)
}

func TestTestModeBadCommands(t *testing.T) {
	out := runScript(t, testConfig(t), `BOGUS

WAIT_TURNS
SLEEP soon
QUIT
START
`)
	assertLines(t, out,
		"ERROR BOGUS: unknown command",
		"ERROR WAIT_TURNS: usage: WAIT_TURNS n",
		`ERROR SLEEP: strconv.Atoi: parsing "soon": invalid syntax`,
	)
	if strings.Contains(out, "STATUS") {
		t.Errorf("commands after QUIT ran:\n%s", out)
	}
}

func TestTestModeMissingWAV(t *testing.T) {
	cfg := testConfig(t)
	cfg.Test = filepath.Join(t.TempDir(), "missing.wav")
	err := runTestMode(context.Background(), cfg, nil, strings.NewReader("QUIT\n"), &bytes.Buffer{})
	if err == nil {
		t.Fatal("expected an error for a missing WAV file")
	}
}
