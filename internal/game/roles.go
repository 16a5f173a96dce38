// internal/game/roles.go
package game

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"fmt"
	mrand "math/rand/v2"

	"golang.org/x/crypto/sha3"
)

// AssignRoles deals one Killer, one Protector and one Investigator, and Bystander to the rest.
// participants must hold at least MinParticipantsFloor entries.
func AssignRoles(participants []string, r *mrand.Rand) (map[string]Role, error) {
	if len(participants) < MinParticipantsFloor {
		return nil, fmt.Errorf("%w: need at least %d participants, have %d", ErrNotReady, MinParticipantsFloor, len(participants))
	}
	deck := make([]Role, len(participants))
	deck[0], deck[1], deck[2] = RoleKiller, RoleProtector, RoleInvestigator
	r.Shuffle(len(deck), func(i, j int) { deck[i], deck[j] = deck[j], deck[i] })

	roles := make(map[string]Role, len(participants))
	for i, p := range participants {
		roles[p] = deck[i]
	}
	return roles, nil
}

// CommitRoles binds an assignment to a fresh random salt. The salt stays secret until the
// match ends, at which point anyone can recompute the commitment with VerifyRoleCommitment.
func CommitRoles(roles map[string]Role) (commit, salt string, err error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", "", fmt.Errorf("generate salt: %w", err)
	}
	salt = hex.EncodeToString(buf)
	commit, err = roleCommitment(roles, salt)
	return commit, salt, err
}

// VerifyRoleCommitment reports whether roles and salt hash to commit.
func VerifyRoleCommitment(roles map[string]Role, salt, commit string) bool {
	got, err := roleCommitment(roles, salt)
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(commit)) == 1
}

// roleCommitment hashes the role map as JSON (keys sorted) followed by the salt.
func roleCommitment(roles map[string]Role, salt string) (string, error) {
	data, err := json.Marshal(roles)
	if err != nil {
		return "", fmt.Errorf("encode roles: %w", err)
	}
	h := sha3.New256()
	h.Write(data)
	h.Write([]byte(salt))
	return hex.EncodeToString(h.Sum(nil)), nil
}

// holderOf returns the alive holder of role, if any.
func holderOf(m *Match, role Role) (string, bool) {
	for _, p := range m.Participants {
		if m.Roles[p] == role && !m.IsEliminated(p) {
			return p, true
		}
	}
	return "", false
}
