// internal/handlers/ws.go
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/cohesivestack/valgo"
	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/jason-s-yu/nightstake/internal/game"
	"github.com/jason-s-yu/nightstake/internal/middleware"
	"github.com/jason-s-yu/nightstake/internal/realtime"
	"github.com/sirupsen/logrus"
)

// matchSubprotocol is the only subprotocol the match socket speaks.
const matchSubprotocol = "match"

var wsMessageTypes = []string{"ready", "night_action", "task_answer", "vote", "leave", "sync"}

// wsMessage is one client action on the match socket. Ref is echoed back on the reply.
type wsMessage struct {
	Type   string `json:"type"`
	Target string `json:"target,omitempty"`
	Answer string `json:"answer,omitempty"`
	Ref    string `json:"ref,omitempty"`
}

func (m *wsMessage) Validate() *valgo.Validation {
	v := valgo.Is(valgo.String(m.Type, "type", "Message type").InSlice(wsMessageTypes))
	switch m.Type {
	case "vote":
		v.Is(valgo.String(m.Target, "target", "Target").Not().Blank())
	case "task_answer":
		v.Is(valgo.String(m.Answer, "answer", "Answer").Not().Blank().MaxLength(256))
	}
	return v
}

type wsAck struct {
	Type   string `json:"type"`
	Action string `json:"action"`
	Ref    string `json:"ref,omitempty"`
	Result any    `json:"result,omitempty"`
}

type wsError struct {
	errorBody
	Ref string `json:"ref,omitempty"`
}

// wsHandler upgrades to the match socket. Authenticated callers receive their private events;
// callers without a token watch as spectators.
func (s *Server) wsHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := matchID(w, r)
	if !ok {
		return
	}
	if _, err := s.Manager.PublicView(id); err != nil {
		writeGameError(w, s.Logger, err)
		return
	}
	participant, err := s.participantFrom(r)
	if err != nil && !errors.Is(err, errMissingToken) {
		writeError(w, http.StatusUnauthorized, "Unauthenticated", err.Error())
		return
	}

	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		Subprotocols:   []string{matchSubprotocol},
		OriginPatterns: s.OriginPatterns,
	})
	if err != nil {
		s.Logger.Warnf("websocket accept error for match %s: %v", id, err)
		return
	}
	defer c.Close(websocket.StatusInternalError, "handler finished")

	if c.Subprotocol() != matchSubprotocol {
		c.Close(BadSubprotocolError, "client must speak the match subprotocol")
		return
	}

	client := s.Hub.Register(id, participant)
	defer s.Hub.Unregister(client)
	middleware.LogWebSocketConnect(s.Logger, r.RemoteAddr, r.URL.Path)

	logger := s.Logger.WithFields(logrus.Fields{"match": id, "participant": participant})
	if !s.sendInitialState(client) {
		c.Close(InvalidMatchIDError, "match no longer exists")
		return
	}

	err = s.Hub.Serve(r.Context(), c, client, func(ctx context.Context, data []byte) {
		s.handleWSMessage(ctx, client, data, logger)
	})
	middleware.LogWebSocketDisconnect(s.Logger, r.RemoteAddr, r.URL.Path, err)
	c.Close(websocket.StatusNormalClosure, "")
}

// sendInitialState queues the view the client starts from. It reports false when the match
// is gone.
func (s *Server) sendInitialState(client *realtime.Client) bool {
	if client.Participant != "" {
		err := s.Manager.SyncParticipant(client.MatchID, client.Participant)
		if err == nil {
			return true
		}
		if !errors.Is(err, game.ErrNotAMember) {
			return false
		}
	}
	view, err := s.Manager.PublicView(client.MatchID)
	if err != nil {
		return false
	}
	s.Hub.Send(client, game.EncodeEvent(game.Event{
		Type:    game.EventSyncState,
		MatchID: view.ID,
		Phase:   view.Phase,
		State:   view,
		At:      time.Now(),
	}))
	return true
}

func (s *Server) handleWSMessage(_ context.Context, client *realtime.Client, data []byte, logger logrus.FieldLogger) {
	var msg wsMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		s.replyError(client, "", "BadRequest", "invalid JSON")
		return
	}
	if err := validate(&msg); err != nil {
		s.replyError(client, msg.Ref, "BadRequest", err.Error())
		return
	}
	if client.Participant == "" {
		s.replyError(client, msg.Ref, "Unauthenticated", "spectators cannot act")
		return
	}

	result, err := s.dispatch(client.MatchID, client.Participant, &msg)
	if err != nil {
		kind := game.ErrorKind(err)
		if kind == "Internal" {
			logger.Errorf("ws %s: %v", msg.Type, err)
			s.replyError(client, msg.Ref, kind, "internal error")
			return
		}
		s.replyError(client, msg.Ref, kind, err.Error())
		return
	}
	reply, _ := json.Marshal(wsAck{Type: "ack", Action: msg.Type, Ref: msg.Ref, Result: result})
	s.Hub.Send(client, reply)
}

func (s *Server) dispatch(id uuid.UUID, participant string, msg *wsMessage) (any, error) {
	mg := s.Manager
	switch msg.Type {
	case "ready":
		return nil, mg.MarkReady(id, participant)
	case "night_action":
		return nil, mg.SubmitNightAction(id, participant, game.NightAction{Target: msg.Target})
	case "task_answer":
		res, err := mg.SubmitTaskAnswer(id, participant, msg.Answer)
		if err != nil {
			return nil, err
		}
		return res, nil
	case "vote":
		return nil, mg.SubmitVote(id, participant, msg.Target)
	case "leave":
		return nil, mg.LeaveMatch(id, participant)
	default: // sync
		return nil, mg.SyncParticipant(id, participant)
	}
}

func (s *Server) replyError(client *realtime.Client, ref, kind, msg string) {
	data, _ := json.Marshal(wsError{errorBody: errorBody{Type: "error", Kind: kind, Message: msg}, Ref: ref})
	s.Hub.Send(client, data)
}
