package httpapi

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/vtourlabs/cadenza-voice/internal/speech"
)

type stubBackend struct {
	events chan speech.Event
	errs   chan error

	mu     sync.Mutex
	texts  []string
	audio  [][]byte
	closed bool
}

func newStubBackend() *stubBackend {
	return &stubBackend{
		events: make(chan speech.Event, 32),
		errs:   make(chan error, 4),
	}
}

func (b *stubBackend) SendText(_ context.Context, text string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.texts = append(b.texts, text)
	return nil
}

func (b *stubBackend) SendAudio(_ context.Context, pcm []byte, _ int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.audio = append(b.audio, append([]byte(nil), pcm...))
	return nil
}

func (b *stubBackend) Events() <-chan speech.Event { return b.events }
func (b *stubBackend) Errors() <-chan error        { return b.errs }

func (b *stubBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.closed {
		b.closed = true
		close(b.events)
	}
	return nil
}

type stubOpener struct {
	backend *stubBackend
	err     error

	mu     sync.Mutex
	opened []speech.SessionConfig
}

func (o *stubOpener) Open(_ context.Context, cfg speech.SessionConfig) (speech.Session, error) {
	o.mu.Lock()
	o.opened = append(o.opened, cfg)
	o.mu.Unlock()
	if o.err != nil {
		return nil, o.err
	}
	return o.backend, nil
}

func newTestServer(t *testing.T, opener speech.Opener) *httptest.Server {
	t.Helper()
	handler := NewRouter(RouterConfig{
		GeminiModel:     "gemini-2.0-flash-exp",
		GeminiVoice:     "Aoede",
		DisableGreeting: true,
		SampleRate:      16000,
		TeardownGrace:   time.Second,
	}, log.New(io.Discard, "", 0), nil, nil, opener)
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func dialWS(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	return conn
}

func TestTourWSVoiceStatusRoundTrip(t *testing.T) {
	backend := newStubBackend()
	srv := newTestServer(t, &stubOpener{backend: backend})
	conn := dialWS(t, srv)

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type": "start_realtime_voice"}`)); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	mt, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if mt != websocket.TextMessage {
		t.Fatalf("message type = %d, want text", mt)
	}
	got := string(data)
	if !strings.Contains(got, `"voice_status"`) || !strings.Contains(got, `"listening"`) {
		t.Errorf("unexpected reply: %s", got)
	}
}

func TestTourWSBackendAudioDeliveredAsBinary(t *testing.T) {
	backend := newStubBackend()
	srv := newTestServer(t, &stubOpener{backend: backend})
	conn := dialWS(t, srv)

	pcm := []byte{0x01, 0x02, 0x03, 0x04}
	backend.events <- speech.Event{Kind: speech.EventAudio, Audio: pcm}
	backend.events <- speech.Event{Kind: speech.EventTurnComplete}

	mt, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if mt != websocket.BinaryMessage {
		t.Fatalf("message type = %d, want binary", mt)
	}
	if string(data) != string(pcm) {
		t.Errorf("audio payload = %v, want %v", data, pcm)
	}

	mt, data, err = conn.ReadMessage()
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if mt != websocket.TextMessage || !strings.Contains(string(data), `"ai_turn_complete"`) {
		t.Errorf("expected turn complete status, got type %d: %s", mt, data)
	}
}

func TestTourWSUserMessageForwarded(t *testing.T) {
	backend := newStubBackend()
	opener := &stubOpener{backend: backend}
	srv := newTestServer(t, opener)
	conn := dialWS(t, srv)

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type": "user_message", "message": "show me the kitchen"}`)); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		backend.mu.Lock()
		n := len(backend.texts)
		backend.mu.Unlock()
		if n > 0 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	backend.mu.Lock()
	defer backend.mu.Unlock()
	if len(backend.texts) != 1 || backend.texts[0] != "show me the kitchen" {
		t.Errorf("forwarded texts = %v, want the user message", backend.texts)
	}
}

func TestTourWSBackendOpenFailure(t *testing.T) {
	srv := newTestServer(t, &stubOpener{err: errors.New("quota exceeded")})
	conn := dialWS(t, srv)

	mt, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if mt != websocket.TextMessage || !strings.Contains(string(data), `"error"`) {
		t.Errorf("expected error status, got type %d: %s", mt, data)
	}

	// The relay closes the connection after reporting the failure.
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Error("expected connection to be closed")
	}
}

func TestTourWSOpenerReceivesSessionSettings(t *testing.T) {
	backend := newStubBackend()
	opener := &stubOpener{backend: backend}
	srv := newTestServer(t, opener)
	conn := dialWS(t, srv)

	// Force a round trip so the session is fully started before asserting.
	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type": "start_realtime_voice"}`)); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if _, _, err := conn.ReadMessage(); err != nil {
		t.Fatalf("read failed: %v", err)
	}

	opener.mu.Lock()
	defer opener.mu.Unlock()
	if len(opener.opened) != 1 {
		t.Fatalf("opener called %d times, want 1", len(opener.opened))
	}
	if opener.opened[0].Model != "gemini-2.0-flash-exp" {
		t.Errorf("model = %q", opener.opened[0].Model)
	}
	if opener.opened[0].Voice != "Aoede" {
		t.Errorf("voice = %q", opener.opened[0].Voice)
	}
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(t, &stubOpener{backend: newStubBackend()})

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	if resp.Header.Get("Access-Control-Allow-Origin") != "*" {
		t.Error("missing CORS header")
	}
}

func TestCORSPreflight(t *testing.T) {
	srv := newTestServer(t, &stubOpener{backend: newStubBackend()})

	req, _ := http.NewRequest(http.MethodOptions, srv.URL+"/get-token", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusNoContent)
	}
}

func TestListSessionsWithoutStore(t *testing.T) {
	srv := newTestServer(t, &stubOpener{backend: newStubBackend()})

	resp, err := http.Get(srv.URL + "/api/sessions")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusServiceUnavailable)
	}
}
