// internal/game/events.go
package game

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/nightstake/internal/models"
)

// EventType names an event pushed to the realtime sinks.
type EventType string

const (
	EventMatchCreated          EventType = "match_created"
	EventParticipantJoined     EventType = "participant_joined"
	EventParticipantLeft       EventType = "participant_left"
	EventStakeRecorded         EventType = "stake_recorded"
	EventMatchCancelled        EventType = "match_cancelled"
	EventSettingsUpdated       EventType = "settings_updated"
	EventVisibilityChanged     EventType = "visibility_changed"
	EventPhaseChanged          EventType = "phase_changed"
	EventTimerStarted          EventType = "timer_started"
	EventTimerTick             EventType = "timer_tick"
	EventReadyUpdate           EventType = "ready_update"
	EventNightSubmitted        EventType = "night_submitted"
	EventNightResolved         EventType = "night_resolved"
	EventTaskResult            EventType = "task_result"
	EventVoteCast              EventType = "vote_cast"
	EventVoteResolved          EventType = "vote_resolved"
	EventParticipantEliminated EventType = "participant_eliminated"
	EventMatchEnded            EventType = "match_ended"
	EventSettlementSubmitted   EventType = "settlement_submitted"

	// EventMatchTimeout and EventPhaseTimeout precede a transition forced by the monitor.
	EventMatchTimeout EventType = "game_timeout"
	EventPhaseTimeout EventType = "phase_timeout"

	// EventSyncState is private: it carries the recipient's participant view.
	EventSyncState EventType = "sync_state"
)

// Event is the envelope every sink receives. State holds a PublicView for broadcasts and a
// ParticipantView for sync_state; ticks leave it nil.
type Event struct {
	Type        EventType      `json:"type"`
	MatchID     uuid.UUID      `json:"matchId"`
	Phase       Phase          `json:"phase"`
	Participant string         `json:"participant,omitempty"`
	TimeLeft    *int           `json:"timeLeft,omitempty"`
	Payload     map[string]any `json:"payload,omitempty"`
	State       any            `json:"state,omitempty"`
	At          time.Time      `json:"at"`
}

// Broadcaster delivers events to connected clients. Implementations must not block and
// must not call back into the Manager.
type Broadcaster interface {
	Broadcast(matchID uuid.UUID, ev Event)
	SendTo(matchID uuid.UUID, participant string, ev Event)
}

// Broadcasters fans every event out to each sink in order.
type Broadcasters []Broadcaster

func (bs Broadcasters) Broadcast(matchID uuid.UUID, ev Event) {
	for _, b := range bs {
		b.Broadcast(matchID, ev)
	}
}

func (bs Broadcasters) SendTo(matchID uuid.UUID, participant string, ev Event) {
	for _, b := range bs {
		b.SendTo(matchID, participant, ev)
	}
}

// Settlement is the on-chain side of a match.
type Settlement interface {
	CreateOnChainMatch(ctx context.Context, stake uint64, minPlayers int) (string, error)
	Settle(ctx context.Context, chainMatchID string, payouts []Payout) (string, error)
	MatchStatus(ctx context.Context, chainMatchID string) (string, error)
}

// Persistence mirrors match metadata for recovery and lobby listing. The in-memory match
// stays authoritative.
type Persistence interface {
	SaveMatch(ctx context.Context, rec models.MatchRecord) error
	ListPublicLobbies(ctx context.Context) ([]models.LobbySummary, error)
}

// Metrics receives orchestrator counters.
type Metrics interface {
	MatchCreated()
	MatchStarted()
	MatchEnded(reason WinReason)
	PhaseEntered(p Phase)
	ActiveMatches(n int)
	StuckMatchForced(kind string)
	SettlementFailed()
}

type noopBroadcaster struct{}

func (noopBroadcaster) Broadcast(uuid.UUID, Event) {}
func (noopBroadcaster) SendTo(uuid.UUID, string, Event) {}

type noopMetrics struct{}

func (noopMetrics) MatchCreated() {}
func (noopMetrics) MatchStarted() {}
func (noopMetrics) MatchEnded(WinReason) {}
func (noopMetrics) PhaseEntered(Phase) {}
func (noopMetrics) ActiveMatches(int) {}
func (noopMetrics) StuckMatchForced(string) {}
func (noopMetrics) SettlementFailed() {}
