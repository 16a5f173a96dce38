// internal/realtime/hub.go
package realtime

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/jason-s-yu/nightstake/internal/game"
	"github.com/sirupsen/logrus"
)

const (
	defaultBuffer = 32
	writeTimeout  = 5 * time.Second
	pingInterval  = 30 * time.Second
	pingTimeout   = 15 * time.Second
)

// Client is one WebSocket connection watching a match. Participant is empty for spectators,
// who receive broadcasts but never private events.
type Client struct {
	MatchID     uuid.UUID
	Participant string

	out     chan []byte
	dropped atomic.Int64
}

// push enqueues a frame without blocking. Frames for a slow client are dropped; the client
// catches up from the next sync_state.
func (c *Client) push(data []byte) bool {
	select {
	case c.out <- data:
		return true
	default:
		c.dropped.Add(1)
		return false
	}
}

// Hub routes match events to the WebSocket clients of each match. It implements
// game.Broadcaster.
type Hub struct {
	mu     sync.RWMutex
	rooms  map[uuid.UUID]map[*Client]struct{}
	buffer int
	logger logrus.FieldLogger
}

var _ game.Broadcaster = (*Hub)(nil)

func NewHub(buffer int, logger logrus.FieldLogger) *Hub {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	return &Hub{
		rooms:  make(map[uuid.UUID]map[*Client]struct{}),
		buffer: buffer,
		logger: logger.WithField("component", "realtime"),
	}
}

// Register adds a client for participant to the match room.
func (h *Hub) Register(matchID uuid.UUID, participant string) *Client {
	c := &Client{MatchID: matchID, Participant: participant, out: make(chan []byte, h.buffer)}
	h.mu.Lock()
	defer h.mu.Unlock()
	room, ok := h.rooms[matchID]
	if !ok {
		room = make(map[*Client]struct{})
		h.rooms[matchID] = room
	}
	room[c] = struct{}{}
	return c
}

// Dropped reports how many frames were discarded for c.
func (c *Client) Dropped() int64 { return c.dropped.Load() }

// Unregister removes c; the room is dropped with its last client.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	room, ok := h.rooms[c.MatchID]
	if !ok {
		return
	}
	delete(room, c)
	if len(room) == 0 {
		delete(h.rooms, c.MatchID)
	}
}

// Clients returns the number of connections watching matchID.
func (h *Hub) Clients(matchID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[matchID])
}

func (h *Hub) Broadcast(matchID uuid.UUID, ev game.Event) {
	h.deliver(matchID, ev, func(*Client) bool { return true })
}

func (h *Hub) SendTo(matchID uuid.UUID, participant string, ev game.Event) {
	if participant == "" {
		return
	}
	h.deliver(matchID, ev, func(c *Client) bool { return c.Participant == participant })
}

func (h *Hub) deliver(matchID uuid.UUID, ev game.Event, match func(*Client) bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	room := h.rooms[matchID]
	if len(room) == 0 {
		return
	}
	data := game.EncodeEvent(ev)
	for c := range room {
		if !match(c) {
			continue
		}
		if !c.push(data) {
			h.logger.WithFields(logrus.Fields{"match": matchID, "participant": c.Participant, "type": ev.Type}).
				Warn("client buffer full, dropped event")
		}
	}
}

// Send queues a frame for c alone, used for replies to its own messages.
func (h *Hub) Send(c *Client, data []byte) {
	if !c.push(data) {
		h.logger.WithFields(logrus.Fields{"match": c.MatchID, "participant": c.Participant}).
			Warn("client buffer full, dropped reply")
	}
}

// Serve runs the write pump and the read loop for ws until either side stops. Each text
// message is handed to onMessage.
func (h *Hub) Serve(ctx context.Context, ws *websocket.Conn, c *Client, onMessage func(ctx context.Context, data []byte)) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go h.writePump(ctx, cancel, ws, c)

	for {
		typ, data, err := ws.Read(ctx)
		if err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				return nil
			}
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if typ != websocket.MessageText {
			continue
		}
		onMessage(ctx, data)
	}
}

func (h *Hub) writePump(ctx context.Context, cancel context.CancelFunc, ws *websocket.Conn, c *Client) {
	defer cancel()
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case data := <-c.out:
			writeCtx, done := context.WithTimeout(ctx, writeTimeout)
			err := ws.Write(writeCtx, websocket.MessageText, data)
			done()
			if err != nil {
				h.logger.WithFields(logrus.Fields{"match": c.MatchID, "participant": c.Participant}).
					Warnf("write failed: %v", err)
				return
			}
		case <-ticker.C:
			pingCtx, done := context.WithTimeout(ctx, pingTimeout)
			err := ws.Ping(pingCtx)
			done()
			if err != nil {
				h.logger.WithFields(logrus.Fields{"match": c.MatchID, "participant": c.Participant}).
					Warnf("ping failed: %v", err)
				return
			}
		}
	}
}
