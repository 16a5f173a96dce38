// internal/game/win.go
package game

// WinReason records which terminal condition fired.
type WinReason string

const (
	WinReasonNone              WinReason = ""
	WinReasonTasks             WinReason = "tasks_completed"
	WinReasonKillersEliminated WinReason = "killers_eliminated"
	WinReasonKillerParity      WinReason = "killer_parity"
	WinReasonTimeout           WinReason = "timeout"
	WinReasonCancelled         WinReason = "cancelled"
)

// WinResult is a terminal verdict.
type WinResult struct {
	Faction Faction   `json:"faction"`
	Reason  WinReason `json:"reason"`
	Winners []string  `json:"winners"`
}

// EvaluateWin checks terminal conditions from scratch, first match wins:
// task threshold, then no killers alive, then killers at parity.
// It returns nil while the match should continue.
func EvaluateWin(m *Match) *WinResult {
	var killers, town []string
	for _, p := range m.Alive() {
		if m.Roles[p].Faction() == FactionKiller {
			killers = append(killers, p)
		} else {
			town = append(town, p)
		}
	}

	switch {
	case m.totalTaskSuccesses() >= m.Settings.TaskThreshold:
		return m.verdict(FactionTown, WinReasonTasks, town)
	case len(killers) == 0:
		return m.verdict(FactionTown, WinReasonKillersEliminated, town)
	case len(killers) >= len(town):
		return m.verdict(FactionKiller, WinReasonKillerParity, killers)
	}
	return nil
}

// verdict guarantees a non-empty winner set: when no member of the winning faction is
// alive, the faction's role holders win.
func (m *Match) verdict(f Faction, reason WinReason, alive []string) *WinResult {
	winners := alive
	if len(winners) == 0 {
		for _, p := range m.Participants {
			if m.Roles[p].Faction() == f {
				winners = append(winners, p)
			}
		}
	}
	return &WinResult{Faction: f, Reason: reason, Winners: winners}
}

// timeoutVerdict ends a stuck match as a draw won by whoever is still alive.
func timeoutVerdict(m *Match) *WinResult {
	winners := m.Alive()
	if len(winners) == 0 {
		winners = append([]string(nil), m.Participants...)
	}
	return &WinResult{Faction: FactionNone, Reason: WinReasonTimeout, Winners: winners}
}
