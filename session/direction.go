package session

import "fmt"

// Direction selects source and target language for a session.
type Direction string

const (
	IndonesianToJapanese Direction = "id_to_jp"
	JapaneseToIndonesian Direction = "jp_to_id"
)

var directions = map[Direction]struct {
	source, target string
}{
	IndonesianToJapanese: {"Indonesian", "Japanese"},
	JapaneseToIndonesian: {"Japanese", "Indonesian"},
}

func ParseDirection(s string) (Direction, error) {
	d := Direction(s)
	if _, ok := directions[d]; !ok {
		return "", fmt.Errorf("unknown direction %q (want id_to_jp or jp_to_id)", s)
	}
	return d, nil
}

func (d Direction) Source() string { return directions[d].source }
func (d Direction) Target() string { return directions[d].target }

// Label is the short form shown in the UI, e.g. "ID → JP".
func (d Direction) Label() string {
	switch d {
	case IndonesianToJapanese:
		return "ID → JP"
	case JapaneseToIndonesian:
		return "JP → ID"
	}
	return string(d)
}

// Flip returns the opposite direction.
func (d Direction) Flip() Direction {
	if d == JapaneseToIndonesian {
		return IndonesianToJapanese
	}
	return JapaneseToIndonesian
}

// Instruction is the system prompt that makes the model a translator.
func (d Direction) Instruction() string {
	return fmt.Sprintf("You are a real-time translator. Translate any %s speech you hear into %s and speak it out loud. "+
		"Only respond with the %s translation. Do not add any conversational filler.",
		d.Source(), d.Target(), d.Target())
}
