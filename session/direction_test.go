package session

import (
	"strings"
	"testing"
)

func TestParseDirection(t *testing.T) {
	for _, s := range []string{"id_to_jp", "jp_to_id"} {
		d, err := ParseDirection(s)
		if err != nil || string(d) != s {
			t.Errorf("ParseDirection(%q) = %q, %v", s, d, err)
		}
	}
	for _, s := range []string{"", "ID_TO_JP", "en_to_jp"} {
		if _, err := ParseDirection(s); err == nil {
			t.Errorf("ParseDirection(%q) succeeded", s)
		}
	}
}

func TestDirectionLanguages(t *testing.T) {
	tests := []struct {
		d              Direction
		source, target string
		label          string
	}{
		{IndonesianToJapanese, "Indonesian", "Japanese", "ID → JP"},
		{JapaneseToIndonesian, "Japanese", "Indonesian", "JP → ID"},
	}
	for _, tt := range tests {
		if tt.d.Source() != tt.source || tt.d.Target() != tt.target {
			t.Errorf("%s: %s -> %s", tt.d, tt.d.Source(), tt.d.Target())
		}
		if tt.d.Label() != tt.label {
			t.Errorf("%s: Label = %q", tt.d, tt.d.Label())
		}
		if tt.d.Flip().Flip() != tt.d || tt.d.Flip() == tt.d {
			t.Errorf("%s: Flip = %s", tt.d, tt.d.Flip())
		}
		ins := tt.d.Instruction()
		if !strings.Contains(ins, "Translate any "+tt.source+" speech") || !strings.Contains(ins, "Only respond with the "+tt.target+" translation") {
			t.Errorf("%s: Instruction = %q", tt.d, ins)
		}
	}
}

func TestStatusNames(t *testing.T) {
	for st, want := range map[Status]string{
		Idle:       "IDLE",
		Connecting: "CONNECTING",
		Listening:  "LISTENING",
		Error:      "ERROR",
	} {
		if st.String() != want {
			t.Errorf("%d.String() = %q, want %q", st, st.String(), want)
		}
	}
	if Idle.Active() || Error.Active() || !Connecting.Active() || !Listening.Active() {
		t.Error("Active reports the wrong states")
	}
}
