// Package relay implements the per-connection forwarding session between a
// browser client and a streaming speech backend.
package relay

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/vtourlabs/cadenza-voice/internal/eventlog"
	"github.com/vtourlabs/cadenza-voice/internal/speech"
	"github.com/vtourlabs/cadenza-voice/internal/store"
	"github.com/vtourlabs/cadenza-voice/internal/vad"
)

// State is the lifecycle state of a relay session.
type State int

const (
	StateConnecting State = iota
	StateActive
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateActive:
		return "active"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Frame is one client message: either a JSON control frame or a binary
// audio chunk.
type Frame struct {
	Binary bool
	Data   []byte
}

// ClientTransport is the client-side connection as seen by the session.
// Receive blocks until the next frame arrives; it returns an error on
// disconnect. Sends fail once the connection is closed, which the session
// treats as a disconnect. Close must be safe to call more than once.
type ClientTransport interface {
	Receive() (Frame, error)
	SendText(data []byte) error
	SendBinary(data []byte) error
	Close() error
}

// Config parameterizes one relay session. One config value replaces the
// per-model server variants: model, voice, greeting and status framing all
// come from here.
type Config struct {
	Model        string
	Voice        string
	Instructions string

	// Greeting is the text turn sent to the backend when setup completes,
	// and the fallback payload for an ai_greeting control message.
	Greeting        string
	DisableGreeting bool

	// TurnCompleteStatus is the status type echoed to the client when the
	// backend finishes a turn (ai_turn_complete or speech_complete).
	TurnCompleteStatus string

	// SampleRate of inbound client audio in Hz.
	SampleRate int

	VAD vad.Config

	// TeardownGrace bounds how long teardown waits for the outbound flow
	// when the backend is unresponsive.
	TeardownGrace time.Duration

	// Optional persistence. Nil disables recording.
	Store     *store.Store
	Events    *eventlog.Logger
	SessionID string
}

// Session owns one client connection and one backend streaming session and
// forwards between them until either side goes away.
type Session struct {
	cfg    Config
	client ClientTransport
	opener speech.Opener
	logger *log.Logger

	backend     speech.Session
	seg         *vad.Segmenter
	voiceActive bool

	turnMu  sync.Mutex
	turnSeq int

	// Assistant audio bytes accumulated since the last turn-complete.
	assistantAudio int

	stateMu sync.Mutex
	state   State

	ctx          context.Context
	cancel       context.CancelFunc
	outboundDone chan struct{}
}

// New creates a relay session for one client connection. The backend session
// is opened by Run.
func New(cfg Config, client ClientTransport, opener speech.Opener, logger *log.Logger) *Session {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}
	if cfg.TeardownGrace <= 0 {
		cfg.TeardownGrace = 5 * time.Second
	}
	if cfg.TurnCompleteStatus == "" {
		cfg.TurnCompleteStatus = StatusTurnComplete
	}

	return &Session{
		cfg:    cfg,
		client: client,
		opener: opener,
		logger: logger,
		seg:    vad.New(cfg.VAD),
		state:  StateConnecting,
	}
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.state
}

func (s *Session) setState(st State) {
	s.stateMu.Lock()
	s.state = st
	s.stateMu.Unlock()
}

// Run drives the session until the client disconnects, the backend session
// ends, or ctx is cancelled. It always returns with the session closed and
// both flows stopped; teardown is bounded by the configured grace period.
func (s *Session) Run(ctx context.Context) error {
	s.ctx, s.cancel = context.WithCancel(ctx)
	defer s.cancel()

	backend, err := s.opener.Open(s.ctx, speech.SessionConfig{
		Model:        s.cfg.Model,
		Voice:        s.cfg.Voice,
		Instructions: s.cfg.Instructions,
	})
	if err != nil {
		s.setState(StateClosed)
		_ = s.client.SendText(marshalStatus(StatusError, "backend_unavailable"))
		_ = s.client.Close()
		return fmt.Errorf("failed to open backend session: %w", err)
	}
	s.backend = backend
	s.setState(StateActive)
	s.cfg.Events.LogAsync(s.cfg.SessionID, eventlog.EventBackendConnected, nil)

	// Make sure a blocked client read ends with the session.
	go func() {
		<-s.ctx.Done()
		_ = s.client.Close()
	}()

	s.outboundDone = make(chan struct{})
	go s.outboundLoop()

	s.inboundLoop()

	// Teardown. Close may block on an unresponsive backend, so it runs
	// detached and the wait for the outbound flow is bounded.
	s.cancel()
	go func() { _ = backend.Close() }()
	select {
	case <-s.outboundDone:
	case <-time.After(s.cfg.TeardownGrace):
		s.logger.Printf("relay: outbound flow did not stop within %s, abandoning", s.cfg.TeardownGrace)
	}
	_ = s.client.Close()
	s.setState(StateClosed)
	return nil
}

// inboundLoop forwards client frames to the backend until disconnect.
func (s *Session) inboundLoop() {
	for {
		select {
		case <-s.ctx.Done():
			return
		default:
		}

		frame, err := s.client.Receive()
		if err != nil {
			s.logger.Printf("relay: client disconnected: %v", err)
			return
		}

		if frame.Binary {
			s.handleAudio(frame.Data)
		} else {
			s.handleControl(frame.Data)
		}
	}
}

// handleControl processes one JSON control frame. Malformed frames are
// logged and ignored; the session continues.
func (s *Session) handleControl(data []byte) {
	msg, err := ParseControl(data)
	if err != nil {
		s.logger.Printf("relay: ignoring malformed control message: %v", err)
		return
	}

	switch msg.Type {
	case ControlGreeting:
		text := msg.Message
		if text == "" {
			text = s.cfg.Greeting
		}
		s.forwardTextTurn(text)

	case ControlUserText:
		s.forwardTextTurn(msg.Message)

	case ControlStartVoice:
		s.voiceActive = true
		s.seg.Reset()
		if err := s.client.SendText(marshalStatus(StatusVoice, VoiceListening)); err != nil {
			s.logger.Printf("relay: failed to send voice status: %v", err)
		}
		s.cfg.Events.LogAsync(s.cfg.SessionID, eventlog.EventVoiceStarted, nil)

	case ControlStopVoice:
		s.voiceActive = false
		s.seg.Reset()
		if err := s.client.SendText(marshalStatus(StatusVoice, VoiceStopped)); err != nil {
			s.logger.Printf("relay: failed to send voice status: %v", err)
		}
		s.cfg.Events.LogAsync(s.cfg.SessionID, eventlog.EventVoiceStopped, nil)
	}
}

// handleAudio processes one binary audio chunk. With voice mode active the
// chunk runs through the segmenter and only completed utterances are
// forwarded as one audio turn; otherwise the chunk streams straight through.
func (s *Session) handleAudio(chunk []byte) {
	if !s.voiceActive {
		if err := s.backend.SendAudio(s.ctx, chunk, s.cfg.SampleRate); err != nil {
			s.logger.Printf("relay: failed to forward audio chunk: %v", err)
		}
		return
	}

	utterance, ok := s.seg.Process(chunk)
	if !ok {
		return
	}

	if err := s.backend.SendAudio(s.ctx, utterance, s.cfg.SampleRate); err != nil {
		s.logger.Printf("relay: failed to forward utterance: %v", err)
		return
	}
	s.recordTurn("user", "audio", "", len(utterance))
	s.cfg.Events.LogAsync(s.cfg.SessionID, eventlog.EventUtteranceForwarded, map[string]any{"bytes": len(utterance)})
}

func (s *Session) forwardTextTurn(text string) {
	if text == "" {
		return
	}
	if err := s.backend.SendText(s.ctx, text); err != nil {
		s.logger.Printf("relay: failed to forward text turn: %v", err)
		return
	}
	s.recordTurn("user", "text", text, 0)
	s.cfg.Events.LogAsync(s.cfg.SessionID, eventlog.EventTextTurn, map[string]any{"chars": len(text)})
}

// outboundLoop forwards backend events to the client until the backend
// session ends or the session context is cancelled. It never delivers a
// partial event after cancellation.
func (s *Session) outboundLoop() {
	defer close(s.outboundDone)

	for {
		select {
		case <-s.ctx.Done():
			return

		case err, ok := <-s.backend.Errors():
			if !ok {
				return
			}
			s.logger.Printf("relay: backend session error: %v", err)
			s.cfg.Events.LogAsync(s.cfg.SessionID, eventlog.EventBackendError, map[string]any{"error": err.Error()})
			s.cancel()
			return

		case ev, ok := <-s.backend.Events():
			if !ok {
				s.logger.Printf("relay: backend event stream closed")
				s.cancel()
				return
			}
			if err := s.handleBackendEvent(ev); err != nil {
				s.logger.Printf("relay: stopping outbound flow: %v", err)
				s.cancel()
				return
			}
		}
	}
}

func (s *Session) handleBackendEvent(ev speech.Event) error {
	switch ev.Kind {
	case speech.EventAudio:
		// Forward immediately and in arrival order; audio latency is the
		// whole point of this path.
		if err := s.client.SendBinary(ev.Audio); err != nil {
			return fmt.Errorf("client audio send failed: %w", err)
		}
		s.assistantAudio += len(ev.Audio)

	case speech.EventTurnComplete:
		if err := s.client.SendText(marshalStatus(s.cfg.TurnCompleteStatus, "")); err != nil {
			return fmt.Errorf("client status send failed: %w", err)
		}
		s.recordTurn("assistant", "audio", "", s.assistantAudio)
		s.assistantAudio = 0
		s.cfg.Events.LogAsync(s.cfg.SessionID, eventlog.EventTurnComplete, nil)

	case speech.EventText:
		// Diagnostics only; the client plays audio.
		s.logger.Printf("relay: backend text fragment: %q", ev.Text)

	case speech.EventSetupComplete:
		s.cfg.Events.LogAsync(s.cfg.SessionID, eventlog.EventSetupComplete, nil)
		if !s.cfg.DisableGreeting && s.cfg.Greeting != "" {
			if err := s.backend.SendText(s.ctx, s.cfg.Greeting); err != nil {
				s.logger.Printf("relay: failed to send greeting turn: %v", err)
			} else {
				s.cfg.Events.LogAsync(s.cfg.SessionID, eventlog.EventGreetingSent, nil)
			}
		}
	}
	return nil
}

// recordTurn persists one forwarded turn when a store is configured.
func (s *Session) recordTurn(speaker, kind, text string, audioBytes int) {
	if s.cfg.Store == nil || s.cfg.SessionID == "" {
		return
	}

	s.turnMu.Lock()
	s.turnSeq++
	seq := s.turnSeq
	s.turnMu.Unlock()

	turn := store.Turn{
		Speaker:    speaker,
		Kind:       kind,
		AudioBytes: audioBytes,
		Sequence:   seq,
		CreatedAt:  time.Now().UTC(),
	}
	if text != "" {
		turn.Text = &text
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.cfg.Store.InsertTurn(ctx, s.cfg.SessionID, turn); err != nil {
		s.logger.Printf("relay: failed to record turn: %v", err)
	}
}
