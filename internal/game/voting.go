// internal/game/voting.go
package game

// VoteOutcome classifies a tally for client messaging.
type VoteOutcome string

const (
	VoteNoVotes          VoteOutcome = "no_votes"
	VoteTie              VoteOutcome = "tie"
	VoteKillerEliminated VoteOutcome = "killer_eliminated"
	VoteOtherEliminated  VoteOutcome = "other_eliminated"
)

// VoteResult is one round's tally.
type VoteResult struct {
	Day        int            `json:"day"`
	Outcome    VoteOutcome    `json:"outcome"`
	Eliminated string         `json:"eliminated,omitempty"`
	Tally      map[string]int `json:"tally"`
}

// TallyVotes counts votes by plurality. A shared maximum is a tie; votes for targets that
// are already out of play are ignored.
func TallyVotes(m *Match) VoteResult {
	res := VoteResult{Day: m.Day, Tally: make(map[string]int)}
	for voter, target := range m.Votes {
		if !m.IsAlive(voter) || !m.IsAlive(target) {
			continue
		}
		res.Tally[target]++
	}
	if len(res.Tally) == 0 {
		res.Outcome = VoteNoVotes
		return res
	}

	best, top := 0, ""
	tied := false
	for target, n := range res.Tally {
		switch {
		case n > best:
			best, top, tied = n, target, false
		case n == best:
			tied = true
		}
	}
	if tied {
		res.Outcome = VoteTie
		return res
	}

	res.Eliminated = top
	if m.Roles[top].Faction() == FactionKiller {
		res.Outcome = VoteKillerEliminated
	} else {
		res.Outcome = VoteOtherEliminated
	}
	return res
}

func applyVotes(m *Match, res VoteResult) {
	if res.Eliminated != "" {
		m.eliminate(res.Eliminated)
	}
	m.VoteResult = &res
	m.votingResolved = true
}
