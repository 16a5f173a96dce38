// internal/game/phase.go
package game

import (
	"fmt"
)

// Phase is the primary state variable of a match.
type Phase int

const (
	PhaseLobby Phase = iota
	PhaseNight
	PhaseResolution
	PhaseTask
	PhaseVoting
	PhaseEnded
)

var phaseNames = [...]string{
	PhaseLobby:      "lobby",
	PhaseNight:      "night",
	PhaseResolution: "resolution",
	PhaseTask:       "task",
	PhaseVoting:     "voting",
	PhaseEnded:      "ended",
}

func (p Phase) String() string {
	if p < PhaseLobby || p > PhaseEnded {
		return fmt.Sprintf("phase(%d)", int(p))
	}
	return phaseNames[p]
}

// MarshalText encodes the phase by name so views and persisted records stay readable.
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText parses a phase name produced by MarshalText.
func (p *Phase) UnmarshalText(b []byte) error {
	for i, name := range phaseNames {
		if name == string(b) {
			*p = Phase(i)
			return nil
		}
	}
	return fmt.Errorf("unknown phase %q", string(b))
}

// Active reports whether the phase belongs to a running round.
func (p Phase) Active() bool {
	return p != PhaseLobby && p != PhaseEnded
}

// CanTransitionTo reports whether target is a legal successor of p.
// Night, Resolution and Voting may also jump to Ended when a win condition fires.
func (p Phase) CanTransitionTo(target Phase) bool {
	switch p {
	case PhaseLobby:
		return target == PhaseNight || target == PhaseEnded
	case PhaseNight:
		return target == PhaseResolution || target == PhaseEnded
	case PhaseResolution:
		return target == PhaseTask || target == PhaseEnded
	case PhaseTask:
		return target == PhaseVoting || target == PhaseEnded
	case PhaseVoting:
		return target == PhaseNight || target == PhaseEnded
	case PhaseEnded:
		return false
	}
	return false
}

// Role is the secret role of a participant.
type Role int

const (
	RoleBystander Role = iota
	RoleKiller
	RoleProtector
	RoleInvestigator
)

var roleNames = [...]string{
	RoleBystander:    "Bystander",
	RoleKiller:       "Killer",
	RoleProtector:    "Protector",
	RoleInvestigator: "Investigator",
}

func (r Role) String() string {
	if r < RoleBystander || r > RoleInvestigator {
		return fmt.Sprintf("role(%d)", int(r))
	}
	return roleNames[r]
}

func (r Role) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

func (r *Role) UnmarshalText(b []byte) error {
	for i, name := range roleNames {
		if name == string(b) {
			*r = Role(i)
			return nil
		}
	}
	return fmt.Errorf("unknown role %q", string(b))
}

// Faction returns the side the role plays for.
func (r Role) Faction() Faction {
	if r == RoleKiller {
		return FactionKiller
	}
	return FactionTown
}

// Faction groups roles into the two competing sides. FactionNone marks a draw.
type Faction int

const (
	FactionNone Faction = iota
	FactionKiller
	FactionTown
)

func (f Faction) String() string {
	switch f {
	case FactionKiller:
		return "killer"
	case FactionTown:
		return "town"
	default:
		return "none"
	}
}

func (f Faction) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}
