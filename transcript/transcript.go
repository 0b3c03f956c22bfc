// Package transcript merges streamed transcription deltas into a display log.
package transcript

import "fmt"

type Speaker string

const (
	User  Speaker = "user"
	Model Speaker = "model"
)

// Entry is one line of the log. A partial entry may still grow; a final one
// never changes.
type Entry struct {
	Speaker Speaker
	Text    string
	Partial bool
}

// MatchMode decides which existing entry a delta may extend.
type MatchMode int

const (
	// MatchBySpeaker extends the speaker's most recent entry even when the
	// other speaker has spoken since.
	MatchBySpeaker MatchMode = iota
	// MatchLastEntry only extends the very last entry of the log, so
	// interleaved deltas start a fresh entry.
	MatchLastEntry
)

func (m MatchMode) String() string {
	switch m {
	case MatchBySpeaker:
		return "speaker"
	case MatchLastEntry:
		return "last"
	}
	return fmt.Sprintf("MatchMode(%d)", int(m))
}

func ParseMatchMode(s string) (MatchMode, error) {
	switch s {
	case "", "speaker":
		return MatchBySpeaker, nil
	case "last":
		return MatchLastEntry, nil
	}
	return 0, fmt.Errorf("unknown merge mode %q (want speaker or last)", s)
}

// Assembler is not safe for concurrent use.
type Assembler struct {
	mode    MatchMode
	entries []Entry
	input   string
	output  string
}

func NewAssembler(mode MatchMode) *Assembler {
	return &Assembler{mode: mode}
}

// AddInput appends a delta of the user's recognized speech.
func (a *Assembler) AddInput(delta string) Entry {
	a.input += delta
	return a.upsert(User, a.input)
}

// AddOutput appends a delta of the model's translated speech.
func (a *Assembler) AddOutput(delta string) Entry {
	a.output += delta
	return a.upsert(Model, a.output)
}

func (a *Assembler) upsert(sp Speaker, text string) Entry {
	if i := a.match(sp); i >= 0 && a.entries[i].Partial {
		a.entries[i].Text = text
		return a.entries[i]
	}
	e := Entry{Speaker: sp, Text: text, Partial: true}
	a.entries = append(a.entries, e)
	return e
}

func (a *Assembler) match(sp Speaker) int {
	switch a.mode {
	case MatchLastEntry:
		if n := len(a.entries); n > 0 && a.entries[n-1].Speaker == sp {
			return n - 1
		}
	default:
		for i := len(a.entries) - 1; i >= 0; i-- {
			if a.entries[i].Speaker == sp {
				return i
			}
		}
	}
	return -1
}

// CompleteTurn freezes every entry and returns the ones that were partial.
func (a *Assembler) CompleteTurn() []Entry {
	var frozen []Entry
	for i := range a.entries {
		if a.entries[i].Partial {
			a.entries[i].Partial = false
			frozen = append(frozen, a.entries[i])
		}
	}
	a.ResetBuffers()
	return frozen
}

// ResetBuffers drops in-progress text without touching the log.
func (a *Assembler) ResetBuffers() {
	a.input = ""
	a.output = ""
}

func (a *Assembler) Clear() {
	a.entries = nil
	a.ResetBuffers()
}

func (a *Assembler) Entries() []Entry {
	out := make([]Entry, len(a.entries))
	copy(out, a.entries)
	return out
}

// LastFinal returns the text of the latest finalized entry by sp.
func (a *Assembler) LastFinal(sp Speaker) (string, bool) {
	return LastFinal(a.entries, sp)
}

// LastFinal searches a log snapshot, newest first.
func LastFinal(entries []Entry, sp Speaker) (string, bool) {
	for i := len(entries) - 1; i >= 0; i-- {
		if e := entries[i]; e.Speaker == sp && !e.Partial {
			return e.Text, true
		}
	}
	return "", false
}
