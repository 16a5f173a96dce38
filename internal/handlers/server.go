// internal/handlers/server.go
package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/jason-s-yu/nightstake/internal/auth"
	"github.com/jason-s-yu/nightstake/internal/game"
	"github.com/jason-s-yu/nightstake/internal/middleware"
	"github.com/jason-s-yu/nightstake/internal/models"
	"github.com/jason-s-yu/nightstake/internal/realtime"
	"github.com/sirupsen/logrus"
)

// authCookie carries the session token for browser clients.
const authCookie = "auth_token"

var errMissingToken = errors.New("missing auth token")

// HistoryReader serves the recorded event log of a match.
type HistoryReader interface {
	ListMatchEvents(ctx context.Context, matchID uuid.UUID) ([]models.MatchEventRecord, error)
}

// Server holds everything the HTTP and WebSocket handlers need.
type Server struct {
	Manager    *game.Manager
	Hub        *realtime.Hub
	Issuer     *auth.Issuer
	Challenges *auth.Challenges
	Logger     logrus.FieldLogger

	// History is nil when no database is configured.
	History HistoryReader
	// Metrics serves /metrics when set.
	Metrics http.Handler
	// OriginPatterns are passed to websocket.Accept.
	OriginPatterns []string
}

// Routes registers every endpoint on a fresh mux wrapped in the logging middleware.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /auth/challenge", s.challengeHandler)
	mux.HandleFunc("POST /auth/session", s.sessionHandler)

	mux.HandleFunc("POST /match/create", s.authed(s.createHandler))
	mux.HandleFunc("POST /match/join", s.authed(s.joinByCodeHandler))
	mux.HandleFunc("GET /room/{code}", s.lookupHandler)
	mux.HandleFunc("GET /match/{id}", s.getMatchHandler)
	mux.HandleFunc("GET /match/{id}/history", s.historyHandler)
	mux.HandleFunc("POST /match/{id}/join", s.authed(s.joinHandler))
	mux.HandleFunc("POST /match/{id}/leave", s.authed(s.leaveHandler))
	mux.HandleFunc("POST /match/{id}/stake", s.authed(s.stakeHandler))
	mux.HandleFunc("POST /match/{id}/ready", s.authed(s.readyHandler))
	mux.HandleFunc("POST /match/{id}/night", s.authed(s.nightHandler))
	mux.HandleFunc("POST /match/{id}/task", s.authed(s.taskHandler))
	mux.HandleFunc("POST /match/{id}/vote", s.authed(s.voteHandler))
	mux.HandleFunc("POST /match/{id}/visibility", s.authed(s.visibilityHandler))
	mux.HandleFunc("PATCH /match/{id}/settings", s.authed(s.settingsHandler))
	mux.HandleFunc("GET /match/{id}/ws", s.wsHandler)
	mux.HandleFunc("GET /lobbies", s.lobbiesHandler)

	mux.HandleFunc("GET /health", s.healthHandler)
	if s.Metrics != nil {
		mux.Handle("GET /metrics", s.Metrics)
	}

	return middleware.LogMiddleware(s.Logger)(mux)
}

// participantFrom resolves the wallet address of the caller from a bearer token, the
// auth_token cookie or, for WebSocket upgrades, the token query parameter.
func (s *Server) participantFrom(r *http.Request) (string, error) {
	token := bearerToken(r.Header.Get("Authorization"))
	if token == "" {
		if ck, err := r.Cookie(authCookie); err == nil {
			token = ck.Value
		}
	}
	if token == "" {
		token = r.URL.Query().Get("token")
	}
	if token == "" {
		return "", errMissingToken
	}
	return s.Issuer.AuthenticateJWT(token)
}

type authedHandler func(w http.ResponseWriter, r *http.Request, participant string)

func (s *Server) authed(next authedHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		participant, err := s.participantFrom(r)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "Unauthenticated", err.Error())
			return
		}
		next(w, r, participant)
	}
}

// matchID parses the {id} path value, writing a 400 when it is malformed.
func matchID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "BadRequest", "invalid match id")
		return uuid.Nil, false
	}
	return id, true
}

func (s *Server) healthHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":        "ok",
		"activeMatches": s.Manager.ActiveMatches(),
	})
}
