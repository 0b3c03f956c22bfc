package session

import "juru/transcript"

type Status int

const (
	Idle Status = iota
	Connecting
	Listening
	Error
)

func (s Status) String() string {
	switch s {
	case Idle:
		return "IDLE"
	case Connecting:
		return "CONNECTING"
	case Listening:
		return "LISTENING"
	case Error:
		return "ERROR"
	}
	return "UNKNOWN"
}

// Active reports whether a session holds resources in this state.
func (s Status) Active() bool {
	return s == Connecting || s == Listening
}

// Sink receives UI notifications. StatusChanged and TranscriptChanged are
// called from the controller goroutine; AudioLevel and VoiceActivity from
// the capture device thread.
type Sink interface {
	StatusChanged(status Status, errMsg string)
	TranscriptChanged(entries []transcript.Entry)
	AudioLevel(rms float64)
	VoiceActivity(speaking bool)
}

type nopSink struct{}

func (nopSink) StatusChanged(Status, string)          {}
func (nopSink) TranscriptChanged([]transcript.Entry) {}
func (nopSink) AudioLevel(float64)                   {}
func (nopSink) VoiceActivity(bool)                   {}
