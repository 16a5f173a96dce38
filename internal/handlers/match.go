// internal/handlers/match.go
package handlers

import (
	"errors"
	"net/http"

	"github.com/jason-s-yu/nightstake/internal/game"
	"github.com/jason-s-yu/nightstake/internal/models"
)

func (s *Server) createHandler(w http.ResponseWriter, r *http.Request, participant string) {
	var req createRequest
	if err := decode(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	view, err := s.Manager.CreateMatch(r.Context(), req.toGame(participant))
	if err != nil {
		writeGameError(w, s.Logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

func (s *Server) joinByCodeHandler(w http.ResponseWriter, r *http.Request, participant string) {
	var req joinCodeRequest
	if err := decode(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	view, err := s.Manager.JoinByCode(req.Code, participant)
	if err != nil {
		writeGameError(w, s.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) joinHandler(w http.ResponseWriter, r *http.Request, participant string) {
	id, ok := matchID(w, r)
	if !ok {
		return
	}
	view, err := s.Manager.JoinMatch(id, participant)
	if err != nil {
		writeGameError(w, s.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) leaveHandler(w http.ResponseWriter, r *http.Request, participant string) {
	id, ok := matchID(w, r)
	if !ok {
		return
	}
	if err := s.Manager.LeaveMatch(id, participant); err != nil {
		writeGameError(w, s.Logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) stakeHandler(w http.ResponseWriter, r *http.Request, participant string) {
	id, ok := matchID(w, r)
	if !ok {
		return
	}
	var req stakeRequest
	if err := decode(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	view, err := s.Manager.RecordStake(r.Context(), id, participant, req.TxHash)
	if err != nil {
		writeGameError(w, s.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) readyHandler(w http.ResponseWriter, r *http.Request, participant string) {
	id, ok := matchID(w, r)
	if !ok {
		return
	}
	if err := s.Manager.MarkReady(id, participant); err != nil {
		writeGameError(w, s.Logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) nightHandler(w http.ResponseWriter, r *http.Request, participant string) {
	id, ok := matchID(w, r)
	if !ok {
		return
	}
	var req nightRequest
	if err := decode(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	if err := s.Manager.SubmitNightAction(id, participant, game.NightAction{Target: req.Target}); err != nil {
		writeGameError(w, s.Logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) taskHandler(w http.ResponseWriter, r *http.Request, participant string) {
	id, ok := matchID(w, r)
	if !ok {
		return
	}
	var req taskRequest
	if err := decode(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	res, err := s.Manager.SubmitTaskAnswer(id, participant, req.Answer)
	if err != nil {
		writeGameError(w, s.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) voteHandler(w http.ResponseWriter, r *http.Request, participant string) {
	id, ok := matchID(w, r)
	if !ok {
		return
	}
	var req targetRequest
	if err := decode(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	if err := s.Manager.SubmitVote(id, participant, req.Target); err != nil {
		writeGameError(w, s.Logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) visibilityHandler(w http.ResponseWriter, r *http.Request, participant string) {
	id, ok := matchID(w, r)
	if !ok {
		return
	}
	public, err := s.Manager.ToggleVisibility(id, participant)
	if err != nil {
		writeGameError(w, s.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"public": public})
}

func (s *Server) settingsHandler(w http.ResponseWriter, r *http.Request, participant string) {
	id, ok := matchID(w, r)
	if !ok {
		return
	}
	var req settingsRequest
	if err := decode(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	settings, err := s.Manager.UpdateSettings(id, participant, game.SettingsPatch(req))
	if err != nil {
		writeGameError(w, s.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

// getMatchHandler returns the caller's participant view when they belong to the match and
// the public view otherwise.
func (s *Server) getMatchHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := matchID(w, r)
	if !ok {
		return
	}
	if participant, err := s.participantFrom(r); err == nil {
		view, err := s.Manager.ParticipantView(id, participant)
		if err == nil {
			writeJSON(w, http.StatusOK, view)
			return
		}
		if !errors.Is(err, game.ErrNotAMember) {
			writeGameError(w, s.Logger, err)
			return
		}
	}
	view, err := s.Manager.PublicView(id)
	if err != nil {
		writeGameError(w, s.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) lookupHandler(w http.ResponseWriter, r *http.Request) {
	req := joinCodeRequest{Code: r.PathValue("code")}
	if err := validate(&req); err != nil {
		writeBadRequest(w, err)
		return
	}
	view, err := s.Manager.Lookup(req.Code)
	if err != nil {
		writeGameError(w, s.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) lobbiesHandler(w http.ResponseWriter, r *http.Request) {
	lobbies := s.Manager.PublicLobbies(r.Context())
	if lobbies == nil {
		lobbies = []models.LobbySummary{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"lobbies": lobbies})
}

func (s *Server) historyHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := matchID(w, r)
	if !ok {
		return
	}
	if s.History == nil {
		writeError(w, http.StatusServiceUnavailable, "ExternalServiceFailure", "match history is not configured")
		return
	}
	events, err := s.History.ListMatchEvents(r.Context(), id)
	if err != nil {
		s.Logger.WithField("match", id).Errorf("list match events: %v", err)
		writeError(w, http.StatusBadGateway, "ExternalServiceFailure", "could not load match history")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"matchId": id, "events": events})
}
