package main

import (
	"fmt"
	"io"
	"sync"

	"juru/session"
	"juru/transcript"
)

// printSink writes status changes and finished transcript lines as plain
// text. It backs --tui=false and the headless test mode.
type printSink struct {
	mu      sync.Mutex
	w       io.Writer
	printed int
}

func newPrintSink(w io.Writer) *printSink {
	return &printSink{w: w}
}

func (s *printSink) StatusChanged(st session.Status, msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if msg != "" {
		fmt.Fprintf(s.w, "STATUS %s %s\n", st, msg)
		return
	}
	fmt.Fprintf(s.w, "STATUS %s\n", st)
}

// TranscriptChanged prints each entry once, when it becomes final. Entries
// are frozen turn by turn, so the final ones always form a prefix.
func (s *printSink) TranscriptChanged(entries []transcript.Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(entries) < s.printed {
		s.printed = 0
	}
	for s.printed < len(entries) && !entries[s.printed].Partial {
		e := entries[s.printed]
		fmt.Fprintf(s.w, "%s: %s\n", e.Speaker, e.Text)
		s.printed++
	}
}

// printf writes a line that is not a controller notification, under the
// same lock so lines never interleave.
func (s *printSink) printf(format string, args ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintf(s.w, format+"\n", args...)
}

func (s *printSink) AudioLevel(float64) {}
func (s *printSink) VoiceActivity(bool) {}
