package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// defaultTokenTTL bounds room token validity when no TTL is configured.
const defaultTokenTTL = 6 * time.Hour

// videoGrant mirrors the LiveKit video grant claim: join/publish/subscribe
// rights scoped to one room.
type videoGrant struct {
	Room         string `json:"room,omitempty"`
	RoomJoin     bool   `json:"roomJoin,omitempty"`
	CanPublish   *bool  `json:"canPublish,omitempty"`
	CanSubscribe *bool  `json:"canSubscribe,omitempty"`
}

// roomTokenClaims is the LiveKit access token payload.
type roomTokenClaims struct {
	jwt.RegisteredClaims
	Video videoGrant `json:"video"`
}

type tokenRequest struct {
	RoomName        string `json:"roomName"`
	ParticipantName string `json:"participantName"`
}

type tokenResponse struct {
	Token string `json:"token"`
	URL   string `json:"url"`
}

// handleGetToken mints a LiveKit access token for one participant in one
// room. Credentials are validated at startup, never here.
func (r *Router) handleGetToken(w http.ResponseWriter, req *http.Request) {
	var body tokenRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		http.Error(w, `{"error": "invalid request body"}`, http.StatusBadRequest)
		return
	}

	body.RoomName = strings.TrimSpace(body.RoomName)
	body.ParticipantName = strings.TrimSpace(body.ParticipantName)
	if body.RoomName == "" || body.ParticipantName == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "roomName and participantName are required",
		})
		return
	}

	token, err := r.mintRoomToken(body.RoomName, body.ParticipantName)
	if err != nil {
		r.logger.Printf("token: failed to mint token for room %s: %v", body.RoomName, err)
		captureError(req, err, "token: signing failed")
		http.Error(w, `{"error": "failed to create token"}`, http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, tokenResponse{Token: token, URL: r.cfg.LiveKitURL})
}

// mintRoomToken signs a LiveKit-compatible JWT granting join, publish and
// subscribe rights for the given room and identity.
func (r *Router) mintRoomToken(room, identity string) (string, error) {
	ttl := r.cfg.TokenTTL
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}

	now := time.Now()
	yes := true
	claims := roomTokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    r.cfg.LiveKitAPIKey,
			Subject:   identity,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Video: videoGrant{
			Room:         room,
			RoomJoin:     true,
			CanPublish:   &yes,
			CanSubscribe: &yes,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(r.cfg.LiveKitAPISecret))
}
