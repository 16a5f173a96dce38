// internal/models/match.go
package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// MatchRecord mirrors a row in the matches table. It is a best-effort snapshot; the live
// match in memory is authoritative while it is running.
type MatchRecord struct {
	ID           uuid.UUID `json:"id"`
	JoinCode     string    `json:"join_code"`
	Creator      string    `json:"creator"`
	Status       string    `json:"status"` // lobby, night, resolution, task, voting, ended
	Public       bool      `json:"public"`
	Participants []string  `json:"participants"`
	Day          int       `json:"day"`
	Eliminated   []string  `json:"eliminated"`

	StakeAmount  uint64 `json:"stake_amount"`
	MinPlayers   int    `json:"min_players"`
	MaxPlayers   int    `json:"max_players"`
	ChainMatchID string `json:"chain_match_id"`

	// Settings is the JSON encoded duration config.
	Settings json.RawMessage `json:"settings"`

	RoleCommit string `json:"role_commit"`
	// RoleSalt is only filled once the match has ended.
	RoleSalt     string   `json:"role_salt,omitempty"`
	Winners      []string `json:"winners"`
	WinReason    string   `json:"win_reason"`
	SettlementTx string   `json:"settlement_tx"`

	CreatedAt time.Time  `json:"created_at"`
	StartedAt *time.Time `json:"started_at,omitempty"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`

	// Version increases with every snapshot of the match.
	Version int64 `json:"version"`
}

// LobbySummary is the public listing entry of a joinable match.
type LobbySummary struct {
	ID           uuid.UUID `json:"id"`
	JoinCode     string    `json:"joinCode"`
	Creator      string    `json:"creator"`
	Participants int       `json:"participants"`
	MinPlayers   int       `json:"minPlayers"`
	MaxPlayers   int       `json:"maxPlayers"`
	StakeAmount  uint64    `json:"stakeAmount"`
	CreatedAt    time.Time `json:"createdAt"`
}
