package httpapi

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/vtourlabs/cadenza-voice/internal/eventlog"
	"github.com/vtourlabs/cadenza-voice/internal/relay"
	"github.com/vtourlabs/cadenza-voice/internal/vad"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleTourWS upgrades the connection and runs one relay session against
// the speech backend for its lifetime.
func (r *Router) handleTourWS(w http.ResponseWriter, req *http.Request) {
	conn, err := upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.logger.Printf("tour_ws: upgrade failed: %v", err)
		return
	}

	r.logger.Printf("tour_ws: client connected: %s", req.RemoteAddr)

	var sessionID string
	if r.store != nil {
		ctx, cancel := context.WithTimeout(req.Context(), 5*time.Second)
		sessionID, err = r.store.CreateTourSession(ctx, req.RemoteAddr, r.cfg.GeminiModel, r.cfg.GeminiVoice)
		cancel()
		if err != nil {
			r.logger.Printf("tour_ws: failed to create session row: %v", err)
			sessionID = "" // relay continues without persistence
		}
	}
	r.eventLog.LogAsync(sessionID, eventlog.EventSessionStarted, map[string]any{"remote_addr": req.RemoteAddr})

	session := relay.New(relay.Config{
		Model:              r.cfg.GeminiModel,
		Voice:              r.cfg.GeminiVoice,
		Instructions:       r.cfg.SystemInstruction,
		Greeting:           r.cfg.GreetingText,
		DisableGreeting:    r.cfg.DisableGreeting,
		TurnCompleteStatus: r.cfg.TurnCompleteStatus,
		SampleRate:         r.cfg.SampleRate,
		VAD: vad.Config{
			VoiceThreshold: r.cfg.VoiceThreshold,
			SilenceFrames:  r.cfg.SilenceFrames,
		},
		TeardownGrace: r.cfg.TeardownGrace,
		Store:         r.store,
		Events:        r.eventLog,
		SessionID:     sessionID,
	}, newWSTransport(conn), r.opener, r.logger)

	endReason := "client_disconnect"
	if err := session.Run(req.Context()); err != nil {
		r.logger.Printf("tour_ws: session ended with error: %v", err)
		captureError(req, err, "tour_ws: relay session failed")
		endReason = "backend_error"
	}

	if r.store != nil && sessionID != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := r.store.EndTourSession(ctx, sessionID, endReason, time.Now().UTC()); err != nil {
			r.logger.Printf("tour_ws: failed to end session row: %v", err)
		}
	}
	r.eventLog.LogAsync(sessionID, eventlog.EventSessionEnded, map[string]any{"reason": endReason})

	r.logger.Printf("tour_ws: session ended for %s", req.RemoteAddr)
}

// wsTransport adapts a gorilla connection to the relay's client transport.
// Writes are serialized because both relay flows send to the client.
type wsTransport struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func newWSTransport(conn *websocket.Conn) *wsTransport {
	return &wsTransport{conn: conn}
}

func (t *wsTransport) Receive() (relay.Frame, error) {
	for {
		msgType, data, err := t.conn.ReadMessage()
		if err != nil {
			return relay.Frame{}, err
		}
		switch msgType {
		case websocket.BinaryMessage:
			return relay.Frame{Binary: true, Data: data}, nil
		case websocket.TextMessage:
			return relay.Frame{Data: data}, nil
		default:
			// Control frames are handled by gorilla; skip anything else.
		}
	}
}

func (t *wsTransport) SendText(data []byte) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	return t.conn.WriteMessage(websocket.TextMessage, data)
}

func (t *wsTransport) SendBinary(data []byte) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	return t.conn.WriteMessage(websocket.BinaryMessage, data)
}

func (t *wsTransport) Close() error {
	return t.conn.Close()
}
