package httpapi

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/vtourlabs/cadenza-voice/internal/eventlog"
	"github.com/vtourlabs/cadenza-voice/internal/speech"
	"github.com/vtourlabs/cadenza-voice/internal/store"
)

type RouterConfig struct {
	PublicBaseURL string

	// LiveKit token issuance
	LiveKitAPIKey    string
	LiveKitAPISecret string
	LiveKitURL       string
	TokenTTL         time.Duration

	// Speech backend session settings
	GeminiModel       string
	GeminiVoice       string
	SystemInstruction string
	GreetingText      string
	DisableGreeting   bool

	// TurnCompleteStatus selects the status type sent when the backend
	// finishes a turn (ai_turn_complete or speech_complete).
	TurnCompleteStatus string

	// Client audio and segmentation settings
	SampleRate     int
	VoiceThreshold float64
	SilenceFrames  int
	TeardownGrace  time.Duration

	// Static tour assets; empty disables the static routes
	AssetsDir string
}

type Router struct {
	cfg      RouterConfig
	logger   *log.Logger
	store    *store.Store
	eventLog *eventlog.Logger
	opener   speech.Opener
	mux      *http.ServeMux
}

func NewRouter(cfg RouterConfig, logger *log.Logger, s *store.Store, eventLog *eventlog.Logger, opener speech.Opener) http.Handler {
	r := &Router{
		cfg:      cfg,
		logger:   logger,
		store:    s,
		eventLog: eventLog,
		opener:   opener,
		mux:      http.NewServeMux(),
	}

	r.routes()
	return withSentryRecovery(withCORS(r.mux))
}

func (r *Router) routes() {
	// Health check
	r.mux.HandleFunc("GET /healthz", r.handleHealthz)

	// Relay endpoint for the tour frontend
	r.mux.HandleFunc("GET /ws", r.handleTourWS)

	// LiveKit room token issuance
	r.mux.HandleFunc("POST /get-token", r.handleGetToken)

	// Session logs (for debugging; requires DATABASE_URL)
	r.mux.HandleFunc("GET /api/sessions", r.handleListSessions)
	r.mux.HandleFunc("GET /api/sessions/{id}", r.handleGetSession)

	// Tour assets
	if r.cfg.AssetsDir != "" {
		r.staticRoutes()
	}
}

func (r *Router) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func withSentryRecovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				hub := sentry.CurrentHub().Clone()
				hub.Scope().SetRequest(req)
				hub.RecoverWithContext(req.Context(), err)
				hub.Flush(2 * time.Second)
				http.Error(w, `{"error": "internal server error"}`, http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, req)
	})
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization")
		if req.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, req)
	})
}

// captureError sends an error to Sentry with request context
func captureError(req *http.Request, err error, msg string) {
	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetRequest(req)
		scope.SetExtra("message", msg)
		sentry.CaptureException(err)
	})
}
