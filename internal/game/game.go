// internal/game/game.go
package game

import (
	"fmt"

	"github.com/google/uuid"
)

// TaskResult is returned to the participant who answered.
type TaskResult struct {
	Correct      bool `json:"correct"`
	TaskCount    int  `json:"taskCount"`
	Duplicate    bool `json:"duplicate"`
	GameComplete bool `json:"gameComplete"`
}

// MarkReady signals that participant's client is ready for the prepared clock to run.
func (mg *Manager) MarkReady(id uuid.UUID, participant string) error {
	return mg.withMatch(id, func(m *Match, fx *effects) error {
		if err := requireAlive(m, participant); err != nil {
			return err
		}
		if !m.Phase.Active() {
			return fmt.Errorf("%w: no phase to get ready for in %s", ErrInvalidPhase, m.Phase)
		}
		count, started := mg.timers.MarkReady(m.ID, participant, m.Alive())
		if count == 0 {
			// The clock is already counting down.
			return nil
		}
		mg.emit(m, fx, EventReadyUpdate, participant, map[string]any{
			"ready": count,
			"alive": len(m.Alive()),
		})
		if started {
			mg.emitTimerStarted(m, fx)
		}
		return nil
	})
}

// SubmitNightAction records participant's action for the current night. The night resolves
// early once every alive participant has submitted.
func (mg *Manager) SubmitNightAction(id uuid.UUID, participant string, action NightAction) error {
	return mg.withMatch(id, func(m *Match, fx *effects) error {
		if m.Phase != PhaseNight {
			return fmt.Errorf("%w: night actions only during night, match is %s", ErrInvalidPhase, m.Phase)
		}
		if err := requireAlive(m, participant); err != nil {
			return err
		}
		switch m.Roles[participant] {
		case RoleBystander:
			action.Target = ""
		case RoleKiller, RoleProtector, RoleInvestigator:
			if action.Target != "" {
				if err := requireAlive(m, action.Target); err != nil {
					return fmt.Errorf("target: %w", err)
				}
			}
		}
		m.NightSubmissions[participant] = action
		mg.emit(m, fx, EventNightSubmitted, participant, map[string]any{
			"submitted": len(m.NightSubmissions),
			"alive":     len(m.Alive()),
		})
		if m.allAliveSubmittedNight() {
			mg.resolveNight(m, fx)
		}
		return nil
	})
}

// SubmitTaskAnswer checks participant's answer once per task. A resubmission returns the
// first result without touching the counters.
func (mg *Manager) SubmitTaskAnswer(id uuid.UUID, participant, answer string) (TaskResult, error) {
	var res TaskResult
	err := mg.withMatch(id, func(m *Match, fx *effects) error {
		if m.Phase != PhaseTask || m.Task == nil {
			return fmt.Errorf("%w: answers only during task, match is %s", ErrInvalidPhase, m.Phase)
		}
		if err := requireAlive(m, participant); err != nil {
			return err
		}
		correct, first := m.Task.submit(participant, answer)
		res = TaskResult{Correct: correct, TaskCount: m.TaskCounts[participant], Duplicate: !first}
		if !first {
			return nil
		}
		if correct {
			m.TaskCounts[participant]++
		} else if m.TaskCounts[participant] > 0 {
			m.TaskCounts[participant]--
		}
		res.TaskCount = m.TaskCounts[participant]
		mg.emit(m, fx, EventTaskResult, participant, map[string]any{
			"success":   correct,
			"taskCount": res.TaskCount,
			"progress":  m.totalTaskSuccesses(),
			"threshold": m.Settings.TaskThreshold,
		})

		if win := EvaluateWin(m); win != nil {
			res.GameComplete = true
			mg.endLocked(m, fx, *win)
			return nil
		}
		if m.allAliveSubmittedTask() {
			mg.enterPhase(m, fx, PhaseVoting, true)
		}
		return nil
	})
	return res, err
}

// SubmitVote records voter's choice. Voting never resolves early; the clock decides.
func (mg *Manager) SubmitVote(id uuid.UUID, voter, target string) error {
	return mg.withMatch(id, func(m *Match, fx *effects) error {
		if m.Phase != PhaseVoting || m.votingResolved {
			return fmt.Errorf("%w: votes only while voting is open, match is %s", ErrInvalidPhase, m.Phase)
		}
		if err := requireAlive(m, voter); err != nil {
			return err
		}
		if err := requireAlive(m, target); err != nil {
			return fmt.Errorf("target: %w", err)
		}
		m.Votes[voter] = target
		mg.emit(m, fx, EventVoteCast, voter, map[string]any{
			"votesCast": len(m.Votes),
			"alive":     len(m.Alive()),
		})
		return nil
	})
}

// EndMatch forces the terminal transition of a running match. If no win condition holds the
// match ends as a draw won by the alive participants. Ending twice is a no-op.
func (mg *Manager) EndMatch(id uuid.UUID) error {
	return mg.withMatch(id, func(m *Match, fx *effects) error {
		switch m.Phase {
		case PhaseEnded:
			return nil
		case PhaseLobby:
			return fmt.Errorf("%w: match has not started", ErrInvalidPhase)
		case PhaseNight, PhaseResolution, PhaseTask, PhaseVoting:
		}
		mg.forceEnd(m, fx)
		return nil
	})
}

func (mg *Manager) forceEnd(m *Match, fx *effects) {
	win := EvaluateWin(m)
	if win == nil {
		win = timeoutVerdict(m)
	}
	mg.endLocked(m, fx, *win)
}

func requireAlive(m *Match, p string) error {
	if !m.IsMember(p) {
		return fmt.Errorf("%w: %s", ErrNotAMember, p)
	}
	if m.IsEliminated(p) {
		return fmt.Errorf("%w: %s", ErrAlreadyEliminated, p)
	}
	return nil
}

// enterPhase moves m to next, clearing round state and re-arming the clock. The previous
// clock is always cleared by Prepare before the new one exists.
func (mg *Manager) enterPhase(m *Match, fx *effects, next Phase, startNow bool) {
	if !m.Phase.CanTransitionTo(next) {
		mg.log(m).Errorf("illegal transition to %s ignored", next)
		return
	}
	prev := m.Phase
	m.setPhase(next, mg.now())
	if next == PhaseTask {
		m.Task = mg.newTask()
	}
	mg.metrics.PhaseEntered(next)

	seconds := m.phaseSeconds(next)
	mg.timers.Prepare(m.ID, seconds)
	mg.emit(m, fx, EventPhaseChanged, "", map[string]any{
		"from":     prev,
		"to":       next,
		"day":      m.Day,
		"duration": seconds,
	})
	if startNow && mg.timers.StartNow(m.ID) {
		mg.emitTimerStarted(m, fx)
	}
	mg.log(m).Debugf("entered %s, day %d", next, m.Day)
}

func (mg *Manager) emitTimerStarted(m *Match, fx *effects) {
	left, _ := mg.timers.Remaining(m.ID)
	mg.emit(m, fx, EventTimerStarted, "", map[string]any{"timeLeft": left})
}

// handleTimerExpired runs the resolver owed by the current phase.
func (mg *Manager) handleTimerExpired(m *Match, fx *effects) {
	switch m.Phase {
	case PhaseNight:
		mg.resolveNight(m, fx)
	case PhaseResolution:
		mg.enterPhase(m, fx, PhaseTask, true)
	case PhaseTask:
		mg.enterPhase(m, fx, PhaseVoting, true)
	case PhaseVoting:
		if !m.votingResolved {
			mg.resolveVotes(m, fx)
			return
		}
		if m.pendingWin != nil {
			mg.endLocked(m, fx, *m.pendingWin)
			return
		}
		// Re-check in case a leave during the display window changed the outcome.
		if win := EvaluateWin(m); win != nil {
			mg.endLocked(m, fx, *win)
			return
		}
		m.Day++
		mg.enterPhase(m, fx, PhaseNight, true)
	case PhaseLobby, PhaseEnded:
	}
}

func (mg *Manager) resolveNight(m *Match, fx *effects) {
	if m.Phase != PhaseNight {
		return
	}
	res := ResolveNight(m)
	applyNight(m, res)

	mg.emit(m, fx, EventNightResolved, "", map[string]any{
		"day":    res.Day,
		"killed": res.Killed,
		"saved":  res.Saved,
	})
	if res.Killed != "" {
		mg.emit(m, fx, EventParticipantEliminated, res.Killed, map[string]any{"cause": "night"})
	}
	if res.Investigated != "" {
		mg.emitTo(m, fx, res.Investigator, EventNightResolved, map[string]any{
			"investigated": res.Investigated,
			"role":         *res.InvestigationResult,
		})
	}
	mg.log(m).WithField("killed", res.Killed).Infof("night %d resolved", res.Day)

	if win := EvaluateWin(m); win != nil {
		mg.endLocked(m, fx, *win)
		return
	}
	mg.enterPhase(m, fx, PhaseResolution, true)
}

// resolveVotes tallies once per round and holds the result on screen for the display window.
func (mg *Manager) resolveVotes(m *Match, fx *effects) {
	if m.Phase != PhaseVoting || m.votingResolved {
		return
	}
	res := TallyVotes(m)
	applyVotes(m, res)
	m.pendingWin = EvaluateWin(m)

	mg.emit(m, fx, EventVoteResolved, res.Eliminated, map[string]any{
		"outcome":    res.Outcome,
		"eliminated": res.Eliminated,
		"tally":      res.Tally,
		"gameOver":   m.pendingWin != nil,
	})
	if res.Eliminated != "" {
		mg.emit(m, fx, EventParticipantEliminated, res.Eliminated, map[string]any{"cause": "vote"})
	}
	mg.log(m).WithField("outcome", res.Outcome).Infof("votes resolved for day %d", m.Day)

	mg.timers.Prepare(m.ID, mg.cfg.VoteDisplaySeconds)
	if mg.timers.StartNow(m.ID) {
		mg.emitTimerStarted(m, fx)
	}
}

// checkEarlyCompletion advances the phase when a leave left every remaining participant done.
func (mg *Manager) checkEarlyCompletion(m *Match, fx *effects) {
	if mg.timers.RecheckReady(m.ID, m.Alive()) {
		mg.emitTimerStarted(m, fx)
	}
	switch m.Phase {
	case PhaseNight:
		if m.allAliveSubmittedNight() {
			mg.resolveNight(m, fx)
		}
	case PhaseTask:
		if m.allAliveSubmittedTask() {
			mg.enterPhase(m, fx, PhaseVoting, true)
		}
	case PhaseLobby, PhaseResolution, PhaseVoting, PhaseEnded:
	}
}

// endLocked freezes the match at Ended, computes rewards and queues settlement.
func (mg *Manager) endLocked(m *Match, fx *effects, win WinResult) {
	if m.Phase == PhaseEnded {
		return
	}
	mg.timers.Stop(m.ID)
	m.Winners = append([]string(nil), win.Winners...)
	m.WinReason = win.Reason
	m.WinFaction = win.Faction
	m.pendingWin = nil
	m.setPhase(PhaseEnded, mg.now())

	reward := CalculateRewards(m, win)
	m.Reward = &reward
	mg.metrics.PhaseEntered(PhaseEnded)
	mg.metrics.MatchEnded(win.Reason)

	mg.emit(m, fx, EventMatchEnded, "", map[string]any{
		"winners":    m.Winners,
		"reason":     win.Reason,
		"faction":    win.Faction,
		"roles":      m.Roles,
		"roleSalt":   m.roleSalt,
		"roleCommit": m.RoleCommit,
		"reward":     reward,
	})
	fx.settle = &settleJob{chainMatchID: m.Stake.ChainMatchID, payouts: reward.NonZero()}
	mg.log(m).WithField("reason", win.Reason).Infof("match ended, winners %v", m.Winners)
}

// onTimerTick is the clock callback. Stale epochs are dropped.
func (mg *Manager) onTimerTick(id uuid.UUID, epoch uint64) {
	_ = mg.withMatch(id, func(m *Match, fx *effects) error {
		remaining, ok := mg.timers.Advance(id, epoch)
		if !ok {
			return nil
		}
		if remaining > 0 {
			fx.events = append(fx.events, Event{
				Type:     EventTimerTick,
				MatchID:  m.ID,
				Phase:    m.Phase,
				TimeLeft: intPtr(remaining),
				At:       mg.now(),
			})
			fx.noSync = true
			return nil
		}
		mg.handleTimerExpired(m, fx)
		return nil
	})
}

// onReadyGrace starts a prepared clock once the grace period after the first ready signal ends.
func (mg *Manager) onReadyGrace(id uuid.UUID, epoch uint64) {
	_ = mg.withMatch(id, func(m *Match, fx *effects) error {
		if !mg.timers.Current(id, epoch) {
			return nil
		}
		if mg.timers.StartNow(id) {
			mg.emitTimerStarted(m, fx)
		}
		return nil
	})
}
