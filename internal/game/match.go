// internal/game/match.go
package game

import (
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// NightAction is what a participant submits during the night. The effect of the target
// depends on the submitter's role: Killer kills, Protector saves, Investigator investigates.
// Bystanders submit an empty target to signal they are done.
type NightAction struct {
	Target string `json:"target,omitempty"`
}

// StakeRecord is one participant's recorded on-chain stake.
type StakeRecord struct {
	TxHash   string    `json:"txHash"`
	Amount   uint64    `json:"amount"`
	StakedAt time.Time `json:"stakedAt"`
}

// StakeInfo is the stake metadata of a match. Mutable only while in Lobby.
type StakeInfo struct {
	Amount          uint64                 `json:"stakeAmount"`
	MinParticipants int                    `json:"minPlayers"`
	MaxParticipants int                    `json:"maxPlayers"`
	ChainMatchID    string                 `json:"chainMatchId,omitempty"`
	Stakes          map[string]StakeRecord `json:"-"`
}

// TotalStaked is the pool formed by all recorded stakes.
func (s StakeInfo) TotalStaked() uint64 {
	var total uint64
	for _, st := range s.Stakes {
		total += st.Amount
	}
	return total
}

// Investigation is one resolved investigation, visible only to its investigator.
type Investigation struct {
	Day          int    `json:"day"`
	Investigator string `json:"investigator"`
	Target       string `json:"target"`
	Result       Role   `json:"result"`
}

// Match is the aggregate root of one play-through. Every field is guarded by mu and
// mutated only by the Manager.
type Match struct {
	ID       uuid.UUID
	JoinCode string
	Creator  string
	Public   bool

	// Participants is in join order.
	Participants []string
	Roles        map[string]Role
	RoleCommit   string
	roleSalt     string

	Phase Phase
	Day   int

	// Eliminated is append-only; the last entry is the most recent elimination.
	Eliminated []string
	Winners    []string
	WinReason  WinReason
	WinFaction Faction

	NightSubmissions map[string]NightAction
	NightResult      *NightResolution
	Investigations   []Investigation

	Task       *Task
	TaskCounts map[string]int

	Votes          map[string]string
	VoteResult     *VoteResult
	votingResolved bool
	pendingWin     *WinResult

	Stake    StakeInfo
	Settings Settings

	Reward       *RewardSummary
	SettlementTx string

	CreatedAt      time.Time
	StartedAt      time.Time
	PhaseStartedAt time.Time
	EndedAt        time.Time

	startScheduled bool
	// version counts persisted snapshots so the mirror can discard stale writes.
	version int64

	mu sync.Mutex
}

func newMatch(id uuid.UUID, code, creator string, stake StakeInfo, settings Settings, public bool, now time.Time) *Match {
	if stake.Stakes == nil {
		stake.Stakes = make(map[string]StakeRecord)
	}
	return &Match{
		ID:               id,
		JoinCode:         code,
		Creator:          creator,
		Public:           public,
		Participants:     []string{creator},
		Roles:            make(map[string]Role),
		Phase:            PhaseLobby,
		Day:              1,
		NightSubmissions: make(map[string]NightAction),
		TaskCounts:       make(map[string]int),
		Votes:            make(map[string]string),
		Stake:            stake,
		Settings:         settings,
		CreatedAt:        now,
	}
}

// IsMember reports whether p ever joined the match (alive or not).
func (m *Match) IsMember(p string) bool {
	return slices.Contains(m.Participants, p)
}

// IsEliminated reports whether p is out of play.
func (m *Match) IsEliminated(p string) bool {
	return slices.Contains(m.Eliminated, p)
}

// IsAlive reports whether p is a member still in play.
func (m *Match) IsAlive(p string) bool {
	return m.IsMember(p) && !m.IsEliminated(p)
}

// Alive returns the alive participants in join order.
func (m *Match) Alive() []string {
	alive := make([]string, 0, len(m.Participants))
	for _, p := range m.Participants {
		if !m.IsEliminated(p) {
			alive = append(alive, p)
		}
	}
	return alive
}

// eliminate appends p to the elimination set unless already present.
func (m *Match) eliminate(p string) bool {
	if !m.IsMember(p) || m.IsEliminated(p) {
		return false
	}
	m.Eliminated = append(m.Eliminated, p)
	delete(m.NightSubmissions, p)
	delete(m.Votes, p)
	return true
}

func (m *Match) removeParticipant(p string) {
	m.Participants = slices.DeleteFunc(m.Participants, func(s string) bool { return s == p })
	delete(m.Stake.Stakes, p)
}

func (m *Match) allStaked() bool {
	for _, p := range m.Participants {
		if _, ok := m.Stake.Stakes[p]; !ok {
			return false
		}
	}
	return true
}

// readyToStart reports whether quorum is met and every participant has staked.
func (m *Match) readyToStart() bool {
	return len(m.Participants) >= m.Stake.MinParticipants && m.allStaked()
}

func (m *Match) allAliveSubmittedNight() bool {
	for _, p := range m.Alive() {
		if _, ok := m.NightSubmissions[p]; !ok {
			return false
		}
	}
	return true
}

func (m *Match) allAliveSubmittedTask() bool {
	if m.Task == nil {
		return false
	}
	for _, p := range m.Alive() {
		if _, ok := m.Task.Submissions[p]; !ok {
			return false
		}
	}
	return true
}

// totalTaskSuccesses sums every participant's personal success counter.
func (m *Match) totalTaskSuccesses() int {
	total := 0
	for _, c := range m.TaskCounts {
		total += c
	}
	return total
}

func (m *Match) phaseSeconds(p Phase) int {
	switch p {
	case PhaseNight:
		return m.Settings.NightSeconds
	case PhaseResolution:
		return m.Settings.ResolutionSeconds
	case PhaseTask:
		return m.Settings.TaskSeconds
	case PhaseVoting:
		return m.Settings.VotingSeconds
	case PhaseLobby, PhaseEnded:
		return 0
	}
	return 0
}

// setPhase moves the match to next and clears round-scoped maps.
func (m *Match) setPhase(next Phase, now time.Time) {
	m.Phase = next
	m.PhaseStartedAt = now
	switch next {
	case PhaseNight:
		m.NightSubmissions = make(map[string]NightAction)
		m.NightResult = nil
		m.Votes = make(map[string]string)
		m.VoteResult = nil
		m.votingResolved = false
		m.Task = nil
	case PhaseResolution:
		// The night result stays visible during resolution.
	case PhaseTask:
		m.NightSubmissions = make(map[string]NightAction)
	case PhaseVoting:
		m.Votes = make(map[string]string)
		m.VoteResult = nil
		m.votingResolved = false
	case PhaseEnded:
		m.EndedAt = now
	case PhaseLobby:
	}
}
