// internal/game/reward.go
package game

import (
	"slices"
)

// Payout is one participant's line in the settlement.
type Payout struct {
	Participant   string `json:"participant"`
	Role          Role   `json:"role"`
	StakeAmount   uint64 `json:"stakeAmount"`
	RewardAmount  uint64 `json:"rewardAmount"`
	TotalReceived uint64 `json:"totalReceived"`
}

// RewardSummary is the full distribution handed to settlement.
type RewardSummary struct {
	TotalPool      uint64   `json:"totalPool"`
	HouseCut       uint64   `json:"houseCut"`
	RewardPool     uint64   `json:"rewardPool"`
	StakePerPlayer uint64   `json:"stakePerPlayer"`
	Payouts        []Payout `json:"payouts"`
}

// NonZero returns only the payouts that move funds.
func (r RewardSummary) NonZero() []Payout {
	out := make([]Payout, 0, len(r.Payouts))
	for _, p := range r.Payouts {
		if p.TotalReceived > 0 {
			out = append(out, p)
		}
	}
	return out
}

// CalculateRewards splits the staked pool after the house cut. Every participant gets a
// line; losers receive zero.
//
// A killer win pays the killer winners. A town win pays every non-killer role holder,
// eliminated or not. A draw pays the winners.
func CalculateRewards(m *Match, win WinResult) RewardSummary {
	total := m.Stake.TotalStaked()
	cut := basisPoints(total, HouseCutBps)
	sum := RewardSummary{
		TotalPool:  total,
		HouseCut:   cut,
		RewardPool: total - cut,
	}
	if n := len(m.Participants); n > 0 {
		sum.StakePerPlayer = total / uint64(n)
	}

	var recipients []string
	switch win.Faction {
	case FactionKiller:
		for _, p := range win.Winners {
			if m.Roles[p].Faction() == FactionKiller {
				recipients = append(recipients, p)
			}
		}
	case FactionTown:
		for _, p := range m.Participants {
			if m.Roles[p].Faction() == FactionTown {
				recipients = append(recipients, p)
			}
		}
	case FactionNone:
		recipients = win.Winners
	}

	var share uint64
	if len(recipients) > 0 {
		share = sum.RewardPool / uint64(len(recipients))
	}
	for _, p := range m.Participants {
		po := Payout{Participant: p, Role: m.Roles[p], StakeAmount: sum.StakePerPlayer}
		if slices.Contains(recipients, p) {
			po.RewardAmount = share
			po.TotalReceived = share
		}
		sum.Payouts = append(sum.Payouts, po)
	}
	return sum
}

// basisPoints returns floor(amount*bps/10000) without overflowing the product.
func basisPoints(amount, bps uint64) uint64 {
	return amount/10000*bps + amount%10000*bps/10000
}
