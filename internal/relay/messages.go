package relay

import (
	"encoding/json"
	"fmt"
)

// Control message types accepted from the client.
const (
	ControlGreeting   = "ai_greeting"
	ControlUserText   = "user_message"
	ControlStartVoice = "start_realtime_voice"
	ControlStopVoice  = "stop_realtime_voice"
)

// Status message types sent to the client.
const (
	StatusVoice          = "voice_status"
	StatusTurnComplete   = "ai_turn_complete"
	StatusSpeechComplete = "speech_complete"
	StatusError          = "error"
)

// Voice status values.
const (
	VoiceListening = "listening"
	VoiceStopped   = "stopped"
)

// ControlMessage is a JSON control frame from the client.
type ControlMessage struct {
	Type    string `json:"type"`
	Message string `json:"message,omitempty"`
}

// StatusMessage is a JSON status frame sent to the client.
type StatusMessage struct {
	Type   string `json:"type"`
	Status string `json:"status,omitempty"`
}

// ParseControl decodes and validates a client control frame.
func ParseControl(data []byte) (ControlMessage, error) {
	var msg ControlMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return ControlMessage{}, fmt.Errorf("invalid control JSON: %w", err)
	}

	switch msg.Type {
	case ControlGreeting, ControlUserText, ControlStartVoice, ControlStopVoice:
		return msg, nil
	default:
		return ControlMessage{}, fmt.Errorf("unknown control type %q", msg.Type)
	}
}

func marshalStatus(msgType, status string) []byte {
	data, _ := json.Marshal(StatusMessage{Type: msgType, Status: status})
	return data
}
