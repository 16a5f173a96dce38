// internal/game/lobby.go
package game

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/nightstake/internal/models"
)

// CreateRequest describes a new match. Nil fields take the configured defaults.
type CreateRequest struct {
	Creator         string
	StakeAmount     *uint64
	MinParticipants *int
	MaxParticipants *int
	Public          bool
	Settings        *SettingsPatch
}

// CreateMatch allocates a match in Lobby with the creator as first participant. The chain
// match is registered first so participants can stake against it; a chain failure leaves the
// match off-chain and is only logged.
func (mg *Manager) CreateMatch(ctx context.Context, req CreateRequest) (PublicView, error) {
	if req.Creator == "" {
		return PublicView{}, fmt.Errorf("%w: creator is required", ErrInvalidConfig)
	}
	settings := DefaultSettings()
	if req.Settings != nil {
		settings = req.Settings.Apply(settings)
	}
	if err := ValidateSettings(settings); err != nil {
		return PublicView{}, err
	}

	stake := mg.cfg.DefaultStake
	if req.StakeAmount != nil {
		stake = *req.StakeAmount
	}
	maxP := mg.cfg.MaxParticipants
	if req.MaxParticipants != nil {
		if *req.MaxParticipants > mg.cfg.MaxParticipants {
			return PublicView{}, fmt.Errorf("%w: maxPlayers above %d", ErrInvalidConfig, mg.cfg.MaxParticipants)
		}
		maxP = *req.MaxParticipants
	}
	minP := mg.cfg.DefaultMinParticipants
	if req.Settings != nil && req.Settings.MinParticipants != nil {
		minP = *req.Settings.MinParticipants
	}
	if req.MinParticipants != nil {
		minP = *req.MinParticipants
	}
	if req.MinParticipants == nil && minP > maxP {
		minP = maxP
	}
	if err := validateParticipantBounds(minP, maxP); err != nil {
		return PublicView{}, err
	}
	if stake == 0 {
		return PublicView{}, fmt.Errorf("%w: stake amount must be positive", ErrInvalidConfig)
	}
	// A full roster of stakes must fit the pool.
	if stake > math.MaxUint64/uint64(maxP) {
		return PublicView{}, fmt.Errorf("%w: stake amount above %d", ErrInvalidConfig, uint64(math.MaxUint64)/uint64(maxP))
	}

	var chainID string
	if mg.settlement != nil {
		cctx, cancel := context.WithTimeout(ctx, mg.cfg.ChainTimeout)
		id, err := mg.settlement.CreateOnChainMatch(cctx, stake, minP)
		cancel()
		if err != nil {
			mg.logger.WithField("creator", req.Creator).Warnf("create on-chain match failed, continuing off-chain: %v", err)
		} else {
			chainID = id
		}
	}

	now := mg.now()
	m, err := mg.store.insert(func(code string) *Match {
		return newMatch(uuid.New(), code, req.Creator, StakeInfo{
			Amount:          stake,
			MinParticipants: minP,
			MaxParticipants: maxP,
			ChainMatchID:    chainID,
		}, settings, req.Public, now)
	})
	if err != nil {
		return PublicView{}, err
	}
	mg.metrics.MatchCreated()
	mg.metrics.ActiveMatches(mg.store.count())

	var view PublicView
	err = mg.withMatch(m.ID, func(m *Match, fx *effects) error {
		mg.emit(m, fx, EventMatchCreated, m.Creator, map[string]any{"joinCode": m.JoinCode})
		view = mg.publicView(m)
		return nil
	})
	mg.log(m).WithField("participant", req.Creator).Infof("match created with code %s", m.JoinCode)
	return view, err
}

// JoinMatch appends participant to a match in Lobby. Joining twice is a no-op.
func (mg *Manager) JoinMatch(id uuid.UUID, participant string) (PublicView, error) {
	var view PublicView
	err := mg.withMatch(id, func(m *Match, fx *effects) error {
		if err := mg.joinLocked(m, fx, participant); err != nil {
			return err
		}
		view = mg.publicView(m)
		return nil
	})
	return view, err
}

// JoinByCode is JoinMatch addressed by join code.
func (mg *Manager) JoinByCode(code, participant string) (PublicView, error) {
	m, ok := mg.store.byCode(code)
	if !ok {
		return PublicView{}, fmt.Errorf("%w: code %s", ErrNotFound, code)
	}
	return mg.JoinMatch(m.ID, participant)
}

func (mg *Manager) joinLocked(m *Match, fx *effects, participant string) error {
	if participant == "" {
		return fmt.Errorf("%w: participant is required", ErrNotAMember)
	}
	if m.Phase != PhaseLobby {
		return fmt.Errorf("%w: match is %s", ErrAlreadyStarted, m.Phase)
	}
	if m.IsMember(participant) {
		return nil
	}
	if len(m.Participants) >= m.Stake.MaxParticipants {
		return fmt.Errorf("%w: %d/%d", ErrFull, len(m.Participants), m.Stake.MaxParticipants)
	}
	m.Participants = append(m.Participants, participant)
	mg.emit(m, fx, EventParticipantJoined, participant, nil)
	return nil
}

// RecordStake marks participant as staked, joining them first if needed. Once quorum is met
// and everyone staked, a start is scheduled StartDelay later; at most one start is pending.
func (mg *Manager) RecordStake(ctx context.Context, id uuid.UUID, participant, txHash string) (PublicView, error) {
	var chainID string
	if err := mg.read(id, func(m *Match) error {
		chainID = m.Stake.ChainMatchID
		return nil
	}); err != nil {
		return PublicView{}, err
	}
	if mg.settlement != nil && chainID != "" {
		cctx, cancel := context.WithTimeout(ctx, mg.cfg.ChainTimeout)
		_, err := mg.settlement.MatchStatus(cctx, chainID)
		cancel()
		if err != nil {
			return PublicView{}, fmt.Errorf("%w: check chain match %s: %v", ErrExternalService, chainID, err)
		}
	}

	var view PublicView
	err := mg.withMatch(id, func(m *Match, fx *effects) error {
		if m.Phase != PhaseLobby {
			return fmt.Errorf("%w: match is %s", ErrAlreadyStarted, m.Phase)
		}
		if err := mg.joinLocked(m, fx, participant); err != nil {
			return err
		}
		if _, staked := m.Stake.Stakes[participant]; !staked {
			m.Stake.Stakes[participant] = StakeRecord{TxHash: txHash, Amount: m.Stake.Amount, StakedAt: mg.now()}
			mg.emit(m, fx, EventStakeRecorded, participant, map[string]any{
				"txHash":      txHash,
				"totalStaked": m.Stake.TotalStaked(),
			})
		}
		mg.maybeScheduleStart(m, fx)
		view = mg.publicView(m)
		return nil
	})
	return view, err
}

func (mg *Manager) maybeScheduleStart(m *Match, fx *effects) {
	if m.Phase == PhaseLobby && !m.startScheduled && m.readyToStart() {
		m.startScheduled = true
		fx.scheduleStart = true
		mg.log(m).Infof("all %d participants staked, starting in %s", len(m.Participants), mg.cfg.StartDelay)
	}
}

func (mg *Manager) scheduleStart(id uuid.UUID) {
	mg.startsMu.Lock()
	defer mg.startsMu.Unlock()
	if prev, ok := mg.starts[id]; ok {
		prev.Stop()
	}
	mg.starts[id] = time.AfterFunc(mg.cfg.StartDelay, func() {
		mg.startsMu.Lock()
		delete(mg.starts, id)
		mg.startsMu.Unlock()

		err := mg.withMatch(id, func(m *Match, fx *effects) error {
			m.startScheduled = false
			if m.Phase != PhaseLobby || !m.readyToStart() {
				return nil
			}
			return mg.startLocked(m, fx)
		})
		if err != nil && !errors.Is(err, ErrNotFound) {
			mg.logger.WithField("match", id).Errorf("scheduled start failed: %v", err)
		}
	})
}

// StartMatch assigns roles and enters the first night with a prepared clock that waits for
// the ready protocol.
func (mg *Manager) StartMatch(id uuid.UUID) error {
	return mg.withMatch(id, func(m *Match, fx *effects) error {
		if m.Phase != PhaseLobby {
			return fmt.Errorf("%w: match is %s", ErrAlreadyStarted, m.Phase)
		}
		if !m.readyToStart() {
			return fmt.Errorf("%w: %d/%d participants, all staked: %v", ErrNotReady,
				len(m.Participants), m.Stake.MinParticipants, m.allStaked())
		}
		return mg.startLocked(m, fx)
	})
}

func (mg *Manager) startLocked(m *Match, fx *effects) error {
	roles, err := mg.assignRoles(m.Participants)
	if err != nil {
		return err
	}
	commit, salt, err := CommitRoles(roles)
	if err != nil {
		return err
	}
	m.Roles = roles
	m.RoleCommit = commit
	m.roleSalt = salt
	m.StartedAt = mg.now()
	m.Day = 1
	mg.metrics.MatchStarted()
	fx.chainStatus = m.Stake.ChainMatchID

	mg.enterPhase(m, fx, PhaseNight, false)
	mg.log(m).Infof("match started with %d participants", len(m.Participants))
	return nil
}

// LeaveMatch removes a participant in Lobby, cancelling the match when the creator leaves or
// the roster empties. In a running match the participant is eliminated instead and forfeits
// their stake. Leaving an ended match, or leaving twice, is a no-op.
func (mg *Manager) LeaveMatch(id uuid.UUID, participant string) error {
	return mg.withMatch(id, func(m *Match, fx *effects) error {
		if !m.IsMember(participant) {
			return fmt.Errorf("%w: %s", ErrNotAMember, participant)
		}
		switch m.Phase {
		case PhaseLobby:
			m.removeParticipant(participant)
			if participant == m.Creator || len(m.Participants) == 0 {
				mg.emit(m, fx, EventMatchCancelled, participant, map[string]any{"reason": "creator_left"})
				fx.cancelled = true
				fx.evict = true
				mg.log(m).Info("lobby cancelled")
				return nil
			}
			mg.emit(m, fx, EventParticipantLeft, participant, nil)
			return nil
		case PhaseNight, PhaseResolution, PhaseTask, PhaseVoting:
			if !m.eliminate(participant) {
				return nil
			}
			if m.Task != nil {
				delete(m.Task.Submissions, participant)
				delete(m.Task.results, participant)
			}
			mg.emit(m, fx, EventParticipantLeft, participant, nil)
			mg.emit(m, fx, EventParticipantEliminated, participant, map[string]any{"cause": "left"})
			if win := EvaluateWin(m); win != nil {
				mg.endLocked(m, fx, *win)
				return nil
			}
			mg.checkEarlyCompletion(m, fx)
			return nil
		case PhaseEnded:
			return nil
		}
		return nil
	})
}

// ToggleVisibility flips public/private. Creator only, Lobby only.
func (mg *Manager) ToggleVisibility(id uuid.UUID, actor string) (bool, error) {
	var public bool
	err := mg.withMatch(id, func(m *Match, fx *effects) error {
		if m.Phase != PhaseLobby {
			return fmt.Errorf("%w: visibility is fixed once started", ErrInvalidPhase)
		}
		if actor != m.Creator {
			return fmt.Errorf("%w: %s", ErrUnauthorized, actor)
		}
		m.Public = !m.Public
		public = m.Public
		mg.emit(m, fx, EventVisibilityChanged, actor, map[string]any{"public": public})
		return nil
	})
	return public, err
}

// UpdateSettings applies a validated patch. Creator only, Lobby only.
func (mg *Manager) UpdateSettings(id uuid.UUID, actor string, patch SettingsPatch) (Settings, error) {
	var out Settings
	err := mg.withMatch(id, func(m *Match, fx *effects) error {
		if m.Phase != PhaseLobby {
			return fmt.Errorf("%w: settings are fixed once started", ErrInvalidPhase)
		}
		if actor != m.Creator {
			return fmt.Errorf("%w: %s", ErrUnauthorized, actor)
		}
		next := patch.Apply(m.Settings)
		if err := ValidateSettings(next); err != nil {
			return err
		}
		minP := m.Stake.MinParticipants
		if patch.MinParticipants != nil {
			minP = *patch.MinParticipants
			if err := validateParticipantBounds(minP, m.Stake.MaxParticipants); err != nil {
				return err
			}
		}
		m.Settings = next
		m.Stake.MinParticipants = minP
		out = next
		mg.emit(m, fx, EventSettingsUpdated, actor, map[string]any{"settings": next, "minPlayers": minP})
		mg.maybeScheduleStart(m, fx)
		return nil
	})
	return out, err
}

// PublicLobbies lists joinable public matches from persistence, falling back to memory
// when persistence is absent or fails.
func (mg *Manager) PublicLobbies(ctx context.Context) []models.LobbySummary {
	if mg.persistence != nil {
		pctx, cancel := context.WithTimeout(ctx, mg.cfg.PersistTimeout)
		lobbies, err := mg.persistence.ListPublicLobbies(pctx)
		cancel()
		if err == nil {
			return lobbies
		}
		mg.logger.Warnf("list public lobbies from persistence, using memory: %v", err)
	}

	var out []models.LobbySummary
	for _, m := range mg.store.snapshot() {
		m.mu.Lock()
		if m.Phase == PhaseLobby && m.Public && len(m.Participants) < m.Stake.MaxParticipants {
			out = append(out, models.LobbySummary{
				ID:           m.ID,
				JoinCode:     m.JoinCode,
				Creator:      m.Creator,
				Participants: len(m.Participants),
				MinPlayers:   m.Stake.MinParticipants,
				MaxPlayers:   m.Stake.MaxParticipants,
				StakeAmount:  m.Stake.Amount,
				CreatedAt:    m.CreatedAt,
			})
		}
		m.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}
