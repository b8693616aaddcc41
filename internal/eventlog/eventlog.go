package eventlog

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// EventType represents the type of relay session event
type EventType string

const (
	EventSessionStarted     EventType = "session_started"
	EventBackendConnected   EventType = "backend_connected"
	EventSetupComplete      EventType = "setup_complete"
	EventGreetingSent       EventType = "greeting_sent"
	EventVoiceStarted       EventType = "voice_started"
	EventVoiceStopped       EventType = "voice_stopped"
	EventUtteranceForwarded EventType = "utterance_forwarded"
	EventTextTurn           EventType = "text_turn"
	EventTurnComplete       EventType = "turn_complete"
	EventBackendError       EventType = "backend_error"
	EventSessionEnded       EventType = "session_ended"
)

// Logger provides async event logging to the database
type Logger struct {
	db *pgxpool.Pool
}

// New creates a new event logger. A nil pool disables logging.
func New(db *pgxpool.Pool) *Logger {
	return &Logger{db: db}
}

// Log writes an event to the database synchronously
func (l *Logger) Log(ctx context.Context, sessionID string, eventType EventType, data map[string]any) error {
	if l == nil || l.db == nil || sessionID == "" {
		return nil // Silently skip if no DB or session ID
	}

	dataJSON, err := json.Marshal(data)
	if err != nil {
		dataJSON = []byte("{}")
	}

	_, err = l.db.Exec(ctx, `
		INSERT INTO session_events (session_id, event_type, event_data)
		VALUES ($1, $2, $3)
	`, sessionID, string(eventType), dataJSON)

	return err
}

// LogAsync logs an event without blocking the caller
func (l *Logger) LogAsync(sessionID string, eventType EventType, data map[string]any) {
	if l == nil || l.db == nil || sessionID == "" {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = l.Log(ctx, sessionID, eventType, data)
	}()
}
