// internal/game/sync_state.go
package game

import (
	"time"

	"github.com/google/uuid"
)

// ParticipantSummary is the public line of one roster entry.
type ParticipantSummary struct {
	Address   string `json:"address"`
	Alive     bool   `json:"alive"`
	Staked    bool   `json:"staked"`
	TaskCount int    `json:"taskCount"`
}

// StakeView is the public stake metadata.
type StakeView struct {
	Amount       uint64 `json:"stakeAmount"`
	MinPlayers   int    `json:"minPlayers"`
	MaxPlayers   int    `json:"maxPlayers"`
	ChainMatchID string `json:"chainMatchId,omitempty"`
	TotalStaked  uint64 `json:"totalStaked"`
}

// PublicTask omits the puzzle body so spectators cannot see it.
type PublicTask struct {
	ID        uuid.UUID `json:"id"`
	Type      TaskType  `json:"type"`
	Submitted int       `json:"submitted"`
}

// PublicView is safe to broadcast: no roles, salts or pending action contents.
type PublicView struct {
	ID           uuid.UUID            `json:"id"`
	JoinCode     string               `json:"joinCode"`
	Creator      string               `json:"creator"`
	Public       bool                 `json:"public"`
	Phase        Phase                `json:"phase"`
	Day          int                  `json:"day"`
	Participants []ParticipantSummary `json:"participants"`
	Eliminated   []string             `json:"eliminated"`
	Settings     Settings             `json:"settings"`
	Stake        StakeView            `json:"stake"`
	RoleCommit   string               `json:"roleCommit,omitempty"`

	TimeLeft     int  `json:"timeLeft"`
	TimerRunning bool `json:"timerRunning"`
	ReadyCount   int  `json:"readyCount"`

	NightSubmitted int              `json:"nightSubmitted"`
	NightResult    *NightResolution `json:"nightResult,omitempty"`
	Task           *PublicTask      `json:"task,omitempty"`
	TaskProgress   int              `json:"taskProgress"`
	VotesCast      int              `json:"votesCast"`
	VoteResult     *VoteResult      `json:"voteResult,omitempty"`

	Winners      []string       `json:"winners,omitempty"`
	WinReason    WinReason      `json:"winReason,omitempty"`
	WinFaction   Faction        `json:"winFaction,omitempty"`
	Reward       *RewardSummary `json:"reward,omitempty"`
	SettlementTx string         `json:"settlementTx,omitempty"`

	CreatedAt time.Time  `json:"createdAt"`
	StartedAt *time.Time `json:"startedAt,omitempty"`
}

// InvestigationReveal is what an investigator learns about one target.
type InvestigationReveal struct {
	Target string `json:"target"`
	Role   Role   `json:"role"`
}

// ParticipantView is the public view plus what one participant is entitled to see.
type ParticipantView struct {
	PublicView

	You   string `json:"you"`
	Role  *Role  `json:"role,omitempty"`
	Alive bool   `json:"alive"`

	NightAction  *NightAction         `json:"nightAction,omitempty"`
	Pending      *InvestigationReveal `json:"pendingInvestigation,omitempty"`
	Reveals      []Investigation      `json:"investigations,omitempty"`
	TaskPuzzle   *Task                `json:"taskPuzzle,omitempty"`
	TaskAnswered bool                 `json:"taskAnswered"`
	TaskCorrect  *bool                `json:"taskCorrect,omitempty"`
	Vote         string               `json:"vote,omitempty"`

	// Roles and RoleSalt are filled at Ended, and Roles also for an eliminated killer.
	Roles    map[string]Role `json:"roles,omitempty"`
	RoleSalt string          `json:"roleSalt,omitempty"`
}

// publicView builds the broadcast view. Caller holds m.mu.
func (mg *Manager) publicView(m *Match) PublicView {
	v := PublicView{
		ID:             m.ID,
		JoinCode:       m.JoinCode,
		Creator:        m.Creator,
		Public:         m.Public,
		Phase:          m.Phase,
		Day:            m.Day,
		Eliminated:     append([]string{}, m.Eliminated...),
		Settings:       m.Settings,
		RoleCommit:     m.RoleCommit,
		NightSubmitted: len(m.NightSubmissions),
		TaskProgress:   m.totalTaskSuccesses(),
		VotesCast:      len(m.Votes),
		CreatedAt:      m.CreatedAt,
		Stake: StakeView{
			Amount:       m.Stake.Amount,
			MinPlayers:   m.Stake.MinParticipants,
			MaxPlayers:   m.Stake.MaxParticipants,
			ChainMatchID: m.Stake.ChainMatchID,
			TotalStaked:  m.Stake.TotalStaked(),
		},
	}
	for _, p := range m.Participants {
		_, staked := m.Stake.Stakes[p]
		v.Participants = append(v.Participants, ParticipantSummary{
			Address:   p,
			Alive:     !m.IsEliminated(p),
			Staked:    staked,
			TaskCount: m.TaskCounts[p],
		})
	}
	if !m.StartedAt.IsZero() {
		started := m.StartedAt
		v.StartedAt = &started
	}
	v.TimeLeft, v.TimerRunning = mg.timers.Remaining(m.ID)
	v.ReadyCount = mg.timers.ReadyCount(m.ID)

	if m.NightResult != nil {
		nr := NightResolution{Day: m.NightResult.Day, Killed: m.NightResult.Killed, Saved: m.NightResult.Saved}
		v.NightResult = &nr
	}
	if m.Task != nil {
		v.Task = &PublicTask{ID: m.Task.ID, Type: m.Task.Type, Submitted: len(m.Task.Submissions)}
	}
	if m.votingResolved && m.VoteResult != nil {
		vr := *m.VoteResult
		v.VoteResult = &vr
	}
	if m.Phase == PhaseEnded {
		v.Winners = append([]string{}, m.Winners...)
		v.WinReason = m.WinReason
		v.WinFaction = m.WinFaction
		v.Reward = m.Reward
		v.SettlementTx = m.SettlementTx
	}
	return v
}

// participantView layers p's private information over the public view. Caller holds m.mu.
func (mg *Manager) participantView(m *Match, p string) ParticipantView {
	v := ParticipantView{
		PublicView: mg.publicView(m),
		You:        p,
		Alive:      m.IsAlive(p),
	}
	role, hasRole := m.Roles[p]
	if hasRole {
		v.Role = &role
	}

	if act, ok := m.NightSubmissions[p]; ok {
		a := act
		v.NightAction = &a
		if hasRole && role == RoleInvestigator && m.Phase == PhaseNight && act.Target != "" {
			if r, ok := m.Roles[act.Target]; ok {
				v.Pending = &InvestigationReveal{Target: act.Target, Role: r}
			}
		}
	}
	for _, inv := range m.Investigations {
		if inv.Investigator == p {
			v.Reveals = append(v.Reveals, inv)
		}
	}

	if m.Task != nil {
		v.TaskPuzzle = m.Task
		if correct, ok := m.Task.results[p]; ok {
			v.TaskAnswered = true
			v.TaskCorrect = &correct
		}
	}
	v.Vote = m.Votes[p]

	eliminatedKiller := hasRole && role == RoleKiller && m.IsEliminated(p)
	if m.Phase == PhaseEnded || eliminatedKiller {
		v.Roles = make(map[string]Role, len(m.Roles))
		for k, r := range m.Roles {
			v.Roles[k] = r
		}
	}
	if m.Phase == PhaseEnded {
		v.RoleSalt = m.roleSalt
	}
	return v
}
