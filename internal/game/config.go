// internal/game/config.go
package game

import (
	"fmt"
	"time"

	"github.com/cohesivestack/valgo"
)

// Duration bounds (seconds) enforced on creator supplied settings.
const (
	MinNightSeconds      = 1
	MaxNightSeconds      = 120
	MinResolutionSeconds = 1
	MaxResolutionSeconds = 60
	MinTaskSeconds       = 1
	MaxTaskSeconds       = 180
	MinVotingSeconds     = 1
	MaxVotingSeconds     = 60
	MinTaskThreshold     = 2
	MaxTaskThreshold     = 20

	// MinParticipantsFloor is the smallest roster that can hold the three active roles.
	MinParticipantsFloor = 3

	// HouseCutBps is the share of the pool kept by the house, in basis points.
	HouseCutBps = 200
)

// Settings holds the per-match phase lengths and the task win threshold.
type Settings struct {
	NightSeconds      int `json:"nightPhaseDuration"`
	ResolutionSeconds int `json:"resolutionPhaseDuration"`
	TaskSeconds       int `json:"taskPhaseDuration"`
	VotingSeconds     int `json:"votingPhaseDuration"`
	TaskThreshold     int `json:"maxTaskCount"`
}

// DefaultSettings are used when a creator supplies no settings.
func DefaultSettings() Settings {
	return Settings{
		NightSeconds:      30,
		ResolutionSeconds: 10,
		TaskSeconds:       30,
		VotingSeconds:     10,
		TaskThreshold:     4,
	}
}

// SettingsPatch is a partial update; nil fields keep their current value.
type SettingsPatch struct {
	NightSeconds      *int `json:"nightPhaseDuration,omitempty"`
	ResolutionSeconds *int `json:"resolutionPhaseDuration,omitempty"`
	TaskSeconds       *int `json:"taskPhaseDuration,omitempty"`
	VotingSeconds     *int `json:"votingPhaseDuration,omitempty"`
	TaskThreshold     *int `json:"maxTaskCount,omitempty"`
	MinParticipants   *int `json:"minPlayers,omitempty"`
}

// Apply returns s with every non-nil patch field applied.
func (p SettingsPatch) Apply(s Settings) Settings {
	if p.NightSeconds != nil {
		s.NightSeconds = *p.NightSeconds
	}
	if p.ResolutionSeconds != nil {
		s.ResolutionSeconds = *p.ResolutionSeconds
	}
	if p.TaskSeconds != nil {
		s.TaskSeconds = *p.TaskSeconds
	}
	if p.VotingSeconds != nil {
		s.VotingSeconds = *p.VotingSeconds
	}
	if p.TaskThreshold != nil {
		s.TaskThreshold = *p.TaskThreshold
	}
	return s
}

// ValidateSettings checks every duration and the threshold against their bounds.
func ValidateSettings(s Settings) error {
	v := valgo.
		Is(valgo.Int(s.NightSeconds, "nightPhaseDuration", "Night phase duration").
			Between(MinNightSeconds, MaxNightSeconds)).
		Is(valgo.Int(s.ResolutionSeconds, "resolutionPhaseDuration", "Resolution phase duration").
			Between(MinResolutionSeconds, MaxResolutionSeconds)).
		Is(valgo.Int(s.TaskSeconds, "taskPhaseDuration", "Task phase duration").
			Between(MinTaskSeconds, MaxTaskSeconds)).
		Is(valgo.Int(s.VotingSeconds, "votingPhaseDuration", "Voting phase duration").
			Between(MinVotingSeconds, MaxVotingSeconds)).
		Is(valgo.Int(s.TaskThreshold, "maxTaskCount", "Max task count").
			Between(MinTaskThreshold, MaxTaskThreshold))
	if !v.Valid() {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, v.Error())
	}
	return nil
}

// Config carries the process-wide knobs of the orchestrator. Zero values are replaced by
// DefaultConfig values in NewManager.
type Config struct {
	DefaultStake           uint64
	DefaultMinParticipants int
	MaxParticipants        int

	// StartDelay separates the last stake from the start so clients can show the roster.
	StartDelay time.Duration
	// ReadyGrace bounds how long the ready protocol waits after the first ready signal.
	ReadyGrace time.Duration
	// TickInterval is one countdown second. Tests shrink it.
	TickInterval time.Duration
	// VoteDisplaySeconds is how long a tally stays on screen before the next night.
	VoteDisplaySeconds int

	PersistTimeout time.Duration
	ChainTimeout   time.Duration
}

// DefaultConfig mirrors the production defaults.
func DefaultConfig() Config {
	return Config{
		DefaultStake:           100000,
		DefaultMinParticipants: 4,
		MaxParticipants:        10,
		StartDelay:             3 * time.Second,
		ReadyGrace:             5 * time.Second,
		TickInterval:           time.Second,
		VoteDisplaySeconds:     5,
		PersistTimeout:         2 * time.Second,
		ChainTimeout:           10 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.DefaultStake == 0 {
		c.DefaultStake = d.DefaultStake
	}
	if c.DefaultMinParticipants == 0 {
		c.DefaultMinParticipants = d.DefaultMinParticipants
	}
	if c.MaxParticipants == 0 {
		c.MaxParticipants = d.MaxParticipants
	}
	if c.StartDelay == 0 {
		c.StartDelay = d.StartDelay
	}
	if c.ReadyGrace == 0 {
		c.ReadyGrace = d.ReadyGrace
	}
	if c.TickInterval == 0 {
		c.TickInterval = d.TickInterval
	}
	if c.VoteDisplaySeconds == 0 {
		c.VoteDisplaySeconds = d.VoteDisplaySeconds
	}
	if c.PersistTimeout == 0 {
		c.PersistTimeout = d.PersistTimeout
	}
	if c.ChainTimeout == 0 {
		c.ChainTimeout = d.ChainTimeout
	}
	return c
}

func validateParticipantBounds(min, max int) error {
	v := valgo.Is(valgo.Int(min, "minPlayers", "Minimum players").Between(MinParticipantsFloor, max))
	if !v.Valid() {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, v.Error())
	}
	return nil
}
