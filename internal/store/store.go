package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Store struct {
	db *pgxpool.Pool
}

func New(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

// TourSession represents one relay session between a browser client and
// the speech backend.
type TourSession struct {
	ID         string     `json:"id"`
	RemoteAddr string     `json:"remote_addr"`
	Model      string     `json:"model"`
	Voice      string     `json:"voice"`
	StartedAt  time.Time  `json:"started_at"`
	EndedAt    *time.Time `json:"ended_at,omitempty"`
	EndReason  *string    `json:"end_reason,omitempty"`
	TurnCount  int        `json:"turn_count"`
}

// Turn represents one conversational turn forwarded during a session.
type Turn struct {
	Speaker    string    `json:"speaker"` // "user" or "assistant"
	Kind       string    `json:"kind"`    // "text" or "audio"
	Text       *string   `json:"text,omitempty"`
	AudioBytes int       `json:"audio_bytes"`
	Sequence   int       `json:"sequence"`
	CreatedAt  time.Time `json:"created_at"`
}

// CreateTourSession inserts a new session row and returns its ID.
func (s *Store) CreateTourSession(ctx context.Context, remoteAddr, model, voice string) (string, error) {
	var id string
	err := s.db.QueryRow(ctx, `
		INSERT INTO tour_sessions (remote_addr, model, voice, started_at)
		VALUES ($1, $2, $3, now())
		RETURNING id
	`, remoteAddr, model, voice).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("failed to create session: %w", err)
	}
	return id, nil
}

// EndTourSession marks a session as ended with the given reason.
func (s *Store) EndTourSession(ctx context.Context, id, reason string, at time.Time) error {
	_, err := s.db.Exec(ctx, `
		UPDATE tour_sessions SET ended_at = $2, end_reason = $3 WHERE id = $1
	`, id, at, reason)
	return err
}

// InsertTurn records one forwarded turn for a session.
func (s *Store) InsertTurn(ctx context.Context, sessionID string, t Turn) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO session_turns (session_id, speaker, kind, text, audio_bytes, sequence, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, sessionID, t.Speaker, t.Kind, t.Text, t.AudioBytes, t.Sequence, t.CreatedAt)
	return err
}

// ListSessions returns the most recent sessions with their turn counts.
func (s *Store) ListSessions(ctx context.Context, limit int) ([]TourSession, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	rows, err := s.db.Query(ctx, `
		SELECT ts.id, ts.remote_addr, ts.model, ts.voice, ts.started_at, ts.ended_at, ts.end_reason,
		       (SELECT count(*) FROM session_turns st WHERE st.session_id = ts.id) AS turn_count
		FROM tour_sessions ts
		ORDER BY ts.started_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []TourSession
	for rows.Next() {
		var ts TourSession
		if err := rows.Scan(&ts.ID, &ts.RemoteAddr, &ts.Model, &ts.Voice, &ts.StartedAt, &ts.EndedAt, &ts.EndReason, &ts.TurnCount); err != nil {
			return nil, err
		}
		sessions = append(sessions, ts)
	}
	return sessions, rows.Err()
}

// GetSession returns one session by ID.
func (s *Store) GetSession(ctx context.Context, id string) (*TourSession, error) {
	var ts TourSession
	err := s.db.QueryRow(ctx, `
		SELECT id, remote_addr, model, voice, started_at, ended_at, end_reason,
		       (SELECT count(*) FROM session_turns st WHERE st.session_id = tour_sessions.id)
		FROM tour_sessions WHERE id = $1
	`, id).Scan(&ts.ID, &ts.RemoteAddr, &ts.Model, &ts.Voice, &ts.StartedAt, &ts.EndedAt, &ts.EndReason, &ts.TurnCount)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &ts, nil
}

// GetSessionTurns returns the turns of one session in sequence order.
func (s *Store) GetSessionTurns(ctx context.Context, sessionID string) ([]Turn, error) {
	rows, err := s.db.Query(ctx, `
		SELECT speaker, kind, text, audio_bytes, sequence, created_at
		FROM session_turns WHERE session_id = $1
		ORDER BY sequence ASC
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var turns []Turn
	for rows.Next() {
		var t Turn
		if err := rows.Scan(&t.Speaker, &t.Kind, &t.Text, &t.AudioBytes, &t.Sequence, &t.CreatedAt); err != nil {
			return nil, err
		}
		turns = append(turns, t)
	}
	return turns, rows.Err()
}
