// Package speech defines the streaming speech-generation backend used by
// relay sessions, plus the Gemini Live implementation.
package speech

import "context"

// EventKind discriminates backend response events.
type EventKind int

const (
	// EventAudio carries one synthesized audio frame.
	EventAudio EventKind = iota
	// EventText carries a text fragment; relays use it for diagnostics only.
	EventText
	// EventTurnComplete marks the end of one model turn.
	EventTurnComplete
	// EventSetupComplete arrives at most once, right after the session opens.
	EventSetupComplete
)

// Event is one response event from the backend session.
type Event struct {
	Kind  EventKind
	Audio []byte // set for EventAudio
	Text  string // set for EventText
}

// SessionConfig selects the model, voice and behavior of one session.
type SessionConfig struct {
	Model        string
	Voice        string
	Instructions string
}

// Session is one open streaming session. Events arrive in backend emission
// order and the channel is closed when the session ends. SendText and
// SendAudio may be called from multiple goroutines.
type Session interface {
	// SendText forwards one user text turn.
	SendText(ctx context.Context, text string) error

	// SendAudio forwards raw PCM16 mono audio at the given sample rate.
	SendAudio(ctx context.Context, audio []byte, sampleRate int) error

	// Events returns the channel of response events.
	Events() <-chan Event

	// Errors returns the channel of session errors. An error here is
	// terminal for the session.
	Errors() <-chan error

	// Close tears the session down. Safe to call more than once.
	Close() error
}

// Opener opens backend sessions. Exactly one session is opened per client
// connection.
type Opener interface {
	Open(ctx context.Context, cfg SessionConfig) (Session, error)
}
