package live

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"juru/pcm"
)

var ErrMalformedMessage = errors.New("live: malformed server message")

// ServerMessage is one validated inbound message. Every field is optional;
// nil or false means the server did not send it.
type ServerMessage struct {
	SetupComplete bool
	Error         *RemoteError
	Content       *ServerContent
	GoAway        *GoAway
}

type RemoteError struct {
	Message string
}

func (e *RemoteError) Error() string { return "remote: " + e.Message }

// ServerContent carries the transcript deltas, turn signals and audio of a
// model turn.
type ServerContent struct {
	InputTranscript  *string
	OutputTranscript *string
	TurnComplete     bool
	Interrupted      bool
	Audio            *pcm.Blob
}

// GoAway announces the server will drop the connection soon.
type GoAway struct {
	TimeLeft string
}

type wireMessage struct {
	SetupComplete *json.RawMessage `json:"setupComplete"`
	Error         *struct {
		Message string `json:"message"`
		Code    int    `json:"code"`
	} `json:"error"`
	ServerContent *struct {
		InputTranscription  *wireTranscription `json:"inputTranscription"`
		OutputTranscription *wireTranscription `json:"outputTranscription"`
		TurnComplete        bool               `json:"turnComplete"`
		Interrupted         bool               `json:"interrupted"`
		ModelTurn           *struct {
			Parts []struct {
				InlineData *pcm.Blob `json:"inlineData"`
			} `json:"parts"`
		} `json:"modelTurn"`
	} `json:"serverContent"`
	GoAway *struct {
		TimeLeft string `json:"timeLeft"`
	} `json:"goAway"`
}

type wireTranscription struct {
	Text *string `json:"text"`
}

// ParseServerMessage decodes and validates one inbound frame. Unknown fields
// are ignored; a message carrying none of the known fields is valid and
// empty.
func ParseServerMessage(data []byte) (ServerMessage, error) {
	var w wireMessage
	if err := json.Unmarshal(data, &w); err != nil {
		return ServerMessage{}, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}

	var msg ServerMessage
	msg.SetupComplete = w.SetupComplete != nil
	if w.Error != nil {
		text := strings.TrimSpace(w.Error.Message)
		if text == "" {
			text = fmt.Sprintf("error code %d", w.Error.Code)
		}
		msg.Error = &RemoteError{Message: text}
	}
	if w.GoAway != nil {
		msg.GoAway = &GoAway{TimeLeft: w.GoAway.TimeLeft}
	}

	sc := w.ServerContent
	if sc == nil {
		return msg, nil
	}
	c := &ServerContent{TurnComplete: sc.TurnComplete, Interrupted: sc.Interrupted}
	if sc.InputTranscription != nil {
		c.InputTranscript = sc.InputTranscription.Text
	}
	if sc.OutputTranscription != nil {
		c.OutputTranscript = sc.OutputTranscription.Text
	}
	if sc.ModelTurn != nil && len(sc.ModelTurn.Parts) > 0 {
		if blob := sc.ModelTurn.Parts[0].InlineData; blob != nil {
			if blob.MIMEType != "" && !strings.HasPrefix(blob.MIMEType, "audio/") {
				return ServerMessage{}, fmt.Errorf("%w: inline data of type %q", ErrMalformedMessage, blob.MIMEType)
			}
			c.Audio = blob
		}
	}
	msg.Content = c
	return msg, nil
}

type setupMessage struct {
	Setup setup `json:"setup"`
}

type setup struct {
	Model                    string           `json:"model"`
	GenerationConfig         generationConfig `json:"generationConfig"`
	SystemInstruction        *content         `json:"systemInstruction,omitempty"`
	InputAudioTranscription  *struct{}        `json:"inputAudioTranscription,omitempty"`
	OutputAudioTranscription *struct{}        `json:"outputAudioTranscription,omitempty"`
}

type generationConfig struct {
	ResponseModalities []string `json:"responseModalities"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type realtimeInputMessage struct {
	RealtimeInput struct {
		Audio pcm.Blob `json:"audio"`
	} `json:"realtimeInput"`
}

func newSetupMessage(cfg Config) setupMessage {
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	if !strings.HasPrefix(model, "models/") {
		model = "models/" + model
	}
	s := setup{
		Model:            model,
		GenerationConfig: generationConfig{ResponseModalities: []string{"AUDIO"}},
	}
	if cfg.Instruction != "" {
		s.SystemInstruction = &content{Parts: []part{{Text: cfg.Instruction}}}
	}
	if cfg.InputTranscription {
		s.InputAudioTranscription = &struct{}{}
	}
	if cfg.OutputTranscription {
		s.OutputAudioTranscription = &struct{}{}
	}
	return setupMessage{Setup: s}
}
