// internal/game/resolvers_test.go
package game

import (
	mrand "math/rand/v2"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fixture builds a running match with fixed roles and equal stakes.
func fixture(roles map[string]Role, order ...string) *Match {
	m := newMatch(uuid.New(), "ABC123", order[0], StakeInfo{Amount: 100000, MinParticipants: len(order), MaxParticipants: 10}, DefaultSettings(), false, time.Now())
	m.Participants = append([]string(nil), order...)
	for _, p := range order {
		m.Roles[p] = roles[p]
		m.Stake.Stakes[p] = StakeRecord{TxHash: "tx-" + p, Amount: 100000}
	}
	m.Phase = PhaseNight
	return m
}

func fourPlayers() *Match {
	return fixture(map[string]Role{
		"k": RoleKiller, "p": RoleProtector, "i": RoleInvestigator, "b": RoleBystander,
	}, "k", "p", "i", "b")
}

func TestAssignRoles(t *testing.T) {
	r := mrand.New(mrand.NewPCG(1, 2))
	for n := 3; n <= 10; n++ {
		roles, err := AssignRoles(players(n), r)
		require.NoError(t, err)
		counts := map[Role]int{}
		for _, role := range roles {
			counts[role]++
		}
		assert.Equal(t, 1, counts[RoleKiller])
		assert.Equal(t, 1, counts[RoleProtector])
		assert.Equal(t, 1, counts[RoleInvestigator])
		assert.Equal(t, n-3, counts[RoleBystander])
	}

	_, err := AssignRoles(players(2), r)
	assert.ErrorIs(t, err, ErrNotReady)
}

func TestRoleCommitment(t *testing.T) {
	roles := map[string]Role{"a": RoleKiller, "b": RoleProtector, "c": RoleInvestigator}
	commit, salt, err := CommitRoles(roles)
	require.NoError(t, err)
	assert.Len(t, salt, 64)
	assert.Len(t, commit, 64)
	assert.True(t, VerifyRoleCommitment(roles, salt, commit))

	_, salt2, err := CommitRoles(roles)
	require.NoError(t, err)
	assert.NotEqual(t, salt, salt2)

	tampered := map[string]Role{"a": RoleProtector, "b": RoleKiller, "c": RoleInvestigator}
	assert.False(t, VerifyRoleCommitment(tampered, salt, commit))
	assert.False(t, VerifyRoleCommitment(roles, salt2, commit))
}

func TestResolveNight(t *testing.T) {
	tests := []struct {
		name    string
		actions map[string]string
		dead    []string
		killed  string
		saved   string
	}{
		{name: "kill", actions: map[string]string{"k": "b", "p": "i"}, killed: "b"},
		{name: "save", actions: map[string]string{"k": "b", "p": "b"}, saved: "b"},
		{name: "no kill submitted", actions: map[string]string{"p": "b"}},
		{name: "protector self save", actions: map[string]string{"k": "p", "p": "p"}, saved: "p"},
		{name: "eliminated protector cannot save", actions: map[string]string{"k": "b", "p": "b"}, dead: []string{"p"}, killed: "b"},
		{name: "target already dead", actions: map[string]string{"k": "b"}, dead: []string{"b"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := fourPlayers()
			m.Eliminated = tt.dead
			for p, target := range tt.actions {
				m.NightSubmissions[p] = NightAction{Target: target}
			}
			res := ResolveNight(m)
			assert.Equal(t, tt.killed, res.Killed)
			assert.Equal(t, tt.saved, res.Saved)
			assert.Equal(t, tt.killed == "", res.Peaceful())
			assert.Empty(t, m.NightResult, "resolution is pure")
		})
	}
}

func TestApplyNightRecordsInvestigation(t *testing.T) {
	m := fourPlayers()
	m.NightSubmissions["k"] = NightAction{Target: "i"}
	m.NightSubmissions["i"] = NightAction{Target: "k"}

	res := ResolveNight(m)
	require.NotNil(t, res.InvestigationResult)
	assert.Equal(t, RoleKiller, *res.InvestigationResult)

	applyNight(m, res)
	assert.Equal(t, []string{"i"}, m.Eliminated)
	require.Len(t, m.Investigations, 1)
	assert.Equal(t, Investigation{Day: 1, Investigator: "i", Target: "k", Result: RoleKiller}, m.Investigations[0])
	assert.NotContains(t, m.NightSubmissions, "i")
}

func TestTallyVotes(t *testing.T) {
	order := []string{"a", "b", "c", "d", "e", "f"}
	roles := map[string]Role{"a": RoleKiller, "b": RoleProtector, "c": RoleInvestigator, "d": RoleBystander, "e": RoleBystander, "f": RoleBystander}

	t.Run("tie", func(t *testing.T) {
		m := fixture(roles, order...)
		m.Votes = map[string]string{"b": "a", "c": "a", "d": "b", "e": "b", "f": "c"}
		res := TallyVotes(m)
		assert.Equal(t, VoteTie, res.Outcome)
		assert.Empty(t, res.Eliminated)
		assert.Equal(t, map[string]int{"a": 2, "b": 2, "c": 1}, res.Tally)
	})
	t.Run("killer out", func(t *testing.T) {
		m := fixture(roles, order...)
		m.Votes = map[string]string{"b": "a", "c": "a", "d": "a", "a": "b"}
		res := TallyVotes(m)
		assert.Equal(t, VoteKillerEliminated, res.Outcome)
		assert.Equal(t, "a", res.Eliminated)
	})
	t.Run("bystander out", func(t *testing.T) {
		m := fixture(roles, order...)
		m.Votes = map[string]string{"a": "d", "b": "d", "c": "e"}
		res := TallyVotes(m)
		assert.Equal(t, VoteOtherEliminated, res.Outcome)
		assert.Equal(t, "d", res.Eliminated)
	})
	t.Run("no votes", func(t *testing.T) {
		res := TallyVotes(fixture(roles, order...))
		assert.Equal(t, VoteNoVotes, res.Outcome)
	})
	t.Run("dead voters and targets ignored", func(t *testing.T) {
		m := fixture(roles, order...)
		m.Eliminated = []string{"f", "e"}
		m.Votes = map[string]string{"f": "a", "e": "a", "b": "e", "c": "d"}
		res := TallyVotes(m)
		assert.Equal(t, map[string]int{"d": 1}, res.Tally)
		assert.Equal(t, "d", res.Eliminated)
	})
}

func TestEvaluateWin(t *testing.T) {
	t.Run("continues", func(t *testing.T) {
		assert.Nil(t, EvaluateWin(fourPlayers()))
	})
	t.Run("tasks beat parity", func(t *testing.T) {
		m := fourPlayers()
		m.Eliminated = []string{"p", "i"}
		m.TaskCounts["b"] = 4
		win := EvaluateWin(m)
		require.NotNil(t, win)
		assert.Equal(t, WinReasonTasks, win.Reason)
		assert.Equal(t, []string{"b"}, win.Winners)
	})
	t.Run("killers eliminated", func(t *testing.T) {
		m := fourPlayers()
		m.Eliminated = []string{"k"}
		win := EvaluateWin(m)
		require.NotNil(t, win)
		assert.Equal(t, FactionTown, win.Faction)
		assert.Equal(t, []string{"p", "i", "b"}, win.Winners)
	})
	t.Run("parity", func(t *testing.T) {
		m := fourPlayers()
		m.Eliminated = []string{"b", "i"}
		win := EvaluateWin(m)
		require.NotNil(t, win)
		assert.Equal(t, WinReasonKillerParity, win.Reason)
		assert.Equal(t, []string{"k"}, win.Winners)
	})
	t.Run("nobody alive falls back to role holders", func(t *testing.T) {
		m := fourPlayers()
		m.Eliminated = []string{"k", "p", "i", "b"}
		win := EvaluateWin(m)
		require.NotNil(t, win)
		assert.Equal(t, WinReasonKillersEliminated, win.Reason)
		assert.Equal(t, []string{"p", "i", "b"}, win.Winners)
	})
	t.Run("timeout draw", func(t *testing.T) {
		m := fourPlayers()
		m.Eliminated = []string{"b"}
		win := timeoutVerdict(m)
		assert.Equal(t, FactionNone, win.Faction)
		assert.Equal(t, []string{"k", "p", "i"}, win.Winners)
	})
}

func TestCalculateRewards(t *testing.T) {
	t.Run("killer takes the pool", func(t *testing.T) {
		m := fourPlayers()
		sum := CalculateRewards(m, WinResult{Faction: FactionKiller, Reason: WinReasonKillerParity, Winners: []string{"k"}})
		assert.Equal(t, uint64(400000), sum.TotalPool)
		assert.Equal(t, uint64(8000), sum.HouseCut)
		assert.Equal(t, uint64(392000), sum.RewardPool)
		assert.Equal(t, uint64(100000), sum.StakePerPlayer)
		require.Len(t, sum.Payouts, 4)
		for _, po := range sum.Payouts {
			if po.Participant == "k" {
				assert.Equal(t, uint64(392000), po.TotalReceived)
			} else {
				assert.Zero(t, po.TotalReceived)
			}
		}
		assert.Len(t, sum.NonZero(), 1)
	})
	t.Run("town shares include the eliminated", func(t *testing.T) {
		m := fourPlayers()
		m.Eliminated = []string{"b"}
		sum := CalculateRewards(m, WinResult{Faction: FactionTown, Reason: WinReasonKillersEliminated, Winners: []string{"p", "i"}})
		nz := sum.NonZero()
		require.Len(t, nz, 3)
		for _, po := range nz {
			assert.Equal(t, uint64(130666), po.RewardAmount)
			assert.NotEqual(t, "k", po.Participant)
		}
	})
	t.Run("draw pays winners", func(t *testing.T) {
		m := fourPlayers()
		sum := CalculateRewards(m, WinResult{Faction: FactionNone, Reason: WinReasonTimeout, Winners: []string{"k", "b"}})
		assert.Len(t, sum.NonZero(), 2)
		assert.Equal(t, uint64(196000), sum.NonZero()[0].TotalReceived)
	})
	t.Run("empty pool", func(t *testing.T) {
		m := fourPlayers()
		m.Stake.Stakes = map[string]StakeRecord{}
		sum := CalculateRewards(m, WinResult{Faction: FactionKiller, Winners: []string{"k"}})
		assert.Zero(t, sum.TotalPool)
		assert.Empty(t, sum.NonZero())
	})
	t.Run("large pool keeps the house cut", func(t *testing.T) {
		m := fourPlayers()
		for p := range m.Stake.Stakes {
			m.Stake.Stakes[p] = StakeRecord{Amount: 1 << 60}
		}
		sum := CalculateRewards(m, WinResult{Faction: FactionKiller, Winners: []string{"k"}})
		assert.Equal(t, uint64(1<<62), sum.TotalPool)
		assert.Equal(t, uint64(92233720368547758), sum.HouseCut)
		assert.Equal(t, uint64(4519452298058840146), sum.RewardPool)
		assert.Equal(t, sum.RewardPool, sum.NonZero()[0].TotalReceived)
	})
}

func TestBasisPoints(t *testing.T) {
	assert.Equal(t, uint64(8000), basisPoints(400000, HouseCutBps))
	assert.Equal(t, uint64(1), basisPoints(50, HouseCutBps))
	assert.Zero(t, basisPoints(49, HouseCutBps))
	assert.Equal(t, uint64(18446744073709551615/50), basisPoints(18446744073709551615, HouseCutBps))
}

func TestGenerateTaskIsSolvable(t *testing.T) {
	r := mrand.New(mrand.NewPCG(3, 4))
	seen := map[TaskType]bool{}
	for range 200 {
		task := GenerateTask(r)
		seen[task.Type] = true
		switch task.Type {
		case TaskMemoryWords:
			require.Len(t, task.Data.Words, 3)
			assert.NotEqual(t, task.Data.Words[0], task.Data.Words[1])
			assert.True(t, task.Check(strings.ToUpper(strings.Join(task.Data.Words, " "))))
		case TaskMemoryNumber:
			require.Len(t, task.Data.Number, 5)
			assert.True(t, task.Check(" "+task.Data.Number+" "))
		case TaskCaptcha:
			require.Len(t, task.Data.Captcha, 5)
			assert.True(t, task.Check(strings.ToLower(task.Data.Captcha)))
		case TaskMath:
			assert.True(t, task.Check(solve(task)))
		}
		assert.False(t, task.Check("not an answer"))
	}
	assert.Len(t, seen, 4)
}

func TestTaskSubmitOnce(t *testing.T) {
	task := GenerateTask(mrand.New(mrand.NewPCG(5, 6)))
	correct, first := task.submit("a", solve(task))
	assert.True(t, correct)
	assert.True(t, first)

	correct, first = task.submit("a", "wrong")
	assert.True(t, correct, "first result sticks")
	assert.False(t, first)
}

func TestEvalEquation(t *testing.T) {
	v, err := evalEquation("12 * 4")
	require.NoError(t, err)
	assert.Equal(t, 48, v)
	v, err = evalEquation("3 - 50")
	require.NoError(t, err)
	assert.Equal(t, -47, v)

	_, err = evalEquation("3 / 4")
	assert.Error(t, err)
	_, err = evalEquation("3+4")
	assert.Error(t, err)
}

func TestPhaseTransitions(t *testing.T) {
	assert.True(t, PhaseLobby.CanTransitionTo(PhaseNight))
	assert.True(t, PhaseVoting.CanTransitionTo(PhaseNight))
	assert.True(t, PhaseTask.CanTransitionTo(PhaseEnded))
	assert.False(t, PhaseNight.CanTransitionTo(PhaseTask))
	assert.False(t, PhaseEnded.CanTransitionTo(PhaseLobby))

	var p Phase
	require.NoError(t, p.UnmarshalText([]byte("voting")))
	assert.Equal(t, PhaseVoting, p)
	assert.Error(t, p.UnmarshalText([]byte("dusk")))
}

func TestErrorKind(t *testing.T) {
	assert.Equal(t, "NotFound", ErrorKind(ErrNotFound))
	assert.Equal(t, "ExternalServiceFailure", ErrorKind(ErrExternalService))
	assert.Equal(t, "Internal", ErrorKind(assert.AnError))
}
