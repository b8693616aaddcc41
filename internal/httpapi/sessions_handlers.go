package httpapi

import (
	"net/http"
	"strconv"

	"github.com/vtourlabs/cadenza-voice/internal/store"
)

// handleListSessions returns recent relay sessions.
func (r *Router) handleListSessions(w http.ResponseWriter, req *http.Request) {
	if r.store == nil {
		http.Error(w, `{"error": "session storage not configured"}`, http.StatusServiceUnavailable)
		return
	}

	limit := 50
	if v := req.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	sessions, err := r.store.ListSessions(req.Context(), limit)
	if err != nil {
		r.logger.Printf("sessions: list failed: %v", err)
		captureError(req, err, "sessions: list failed")
		http.Error(w, `{"error": "failed to list sessions"}`, http.StatusInternalServerError)
		return
	}
	if sessions == nil {
		sessions = []store.TourSession{}
	}

	writeJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

// handleGetSession returns one session with its forwarded turns.
func (r *Router) handleGetSession(w http.ResponseWriter, req *http.Request) {
	if r.store == nil {
		http.Error(w, `{"error": "session storage not configured"}`, http.StatusServiceUnavailable)
		return
	}

	id := req.PathValue("id")
	session, err := r.store.GetSession(req.Context(), id)
	if err != nil {
		r.logger.Printf("sessions: get %s failed: %v", id, err)
		http.Error(w, `{"error": "failed to load session"}`, http.StatusInternalServerError)
		return
	}
	if session == nil {
		http.Error(w, `{"error": "session not found"}`, http.StatusNotFound)
		return
	}

	turns, err := r.store.GetSessionTurns(req.Context(), id)
	if err != nil {
		r.logger.Printf("sessions: turns for %s failed: %v", id, err)
		http.Error(w, `{"error": "failed to load session turns"}`, http.StatusInternalServerError)
		return
	}
	if turns == nil {
		turns = []store.Turn{}
	}

	writeJSON(w, http.StatusOK, map[string]any{"session": session, "turns": turns})
}
