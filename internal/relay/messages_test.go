package relay

import (
	"encoding/json"
	"testing"
)

func TestParseControl(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantType string
		wantMsg  string
		wantErr  bool
	}{
		{
			name:     "greeting with message",
			input:    `{"type":"ai_greeting","message":"Hello!"}`,
			wantType: ControlGreeting,
			wantMsg:  "Hello!",
		},
		{
			name:     "user message",
			input:    `{"type":"user_message","message":"where is the gym?"}`,
			wantType: ControlUserText,
			wantMsg:  "where is the gym?",
		},
		{
			name:     "start voice",
			input:    `{"type":"start_realtime_voice"}`,
			wantType: ControlStartVoice,
		},
		{
			name:     "stop voice",
			input:    `{"type":"stop_realtime_voice"}`,
			wantType: ControlStopVoice,
		},
		{
			name:    "invalid JSON",
			input:   `{"type":`,
			wantErr: true,
		},
		{
			name:    "unknown type",
			input:   `{"type":"barge_in"}`,
			wantErr: true,
		},
		{
			name:    "missing type",
			input:   `{"message":"hi"}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := ParseControl([]byte(tt.input))
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseControl(%q) succeeded, want error", tt.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseControl(%q) failed: %v", tt.input, err)
			}
			if msg.Type != tt.wantType {
				t.Errorf("Type = %q, want %q", msg.Type, tt.wantType)
			}
			if msg.Message != tt.wantMsg {
				t.Errorf("Message = %q, want %q", msg.Message, tt.wantMsg)
			}
		})
	}
}

func TestMarshalStatus(t *testing.T) {
	data := marshalStatus(StatusVoice, VoiceListening)

	var msg StatusMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("marshalStatus produced invalid JSON: %v", err)
	}
	if msg.Type != StatusVoice || msg.Status != VoiceListening {
		t.Errorf("status = %+v, want voice_status/listening", msg)
	}

	// Bare status types omit the status field entirely.
	data = marshalStatus(StatusTurnComplete, "")
	if string(data) != `{"type":"ai_turn_complete"}` {
		t.Errorf("bare status = %s, want compact form", data)
	}
}
