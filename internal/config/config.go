// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jason-s-yu/nightstake/internal/game"
	"github.com/spf13/viper"
)

const envPrefix = "NIGHTSTAKE"

// Config is the process configuration shared by the server and the historian.
type Config struct {
	LogLevel string         `mapstructure:"log_level"`
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Chain    ChainConfig    `mapstructure:"chain"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Game     GameConfig     `mapstructure:"game"`
	Monitor  MonitorConfig  `mapstructure:"monitor"`
	History  HistoryConfig  `mapstructure:"historian"`
}

type ServerConfig struct {
	Addr string `mapstructure:"addr"`
	// AllowedOrigins feeds the websocket origin check; empty means same-origin only.
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type DatabaseConfig struct {
	URL string `mapstructure:"url"`
}

type RedisConfig struct {
	Addr   string `mapstructure:"addr"`
	DB     int    `mapstructure:"db"`
	Queue  string `mapstructure:"queue"`
	Buffer int    `mapstructure:"buffer"`
}

// ChainConfig points at the settlement relay. An empty URL runs matches off-chain.
type ChainConfig struct {
	URL        string        `mapstructure:"url"`
	Timeout    time.Duration `mapstructure:"timeout"`
	MaxRetries uint64        `mapstructure:"max_retries"`
}

type AuthConfig struct {
	// TokenExpire of 0 issues tokens without an exp claim.
	TokenExpire time.Duration `mapstructure:"token_expire"`
	KeyPath     string        `mapstructure:"key_path"`
}

type GameConfig struct {
	DefaultStake       uint64        `mapstructure:"default_stake"`
	DefaultMinPlayers  int           `mapstructure:"default_min_players"`
	MaxPlayers         int           `mapstructure:"max_players"`
	StartDelay         time.Duration `mapstructure:"start_delay"`
	ReadyGrace         time.Duration `mapstructure:"ready_grace"`
	TickInterval       time.Duration `mapstructure:"tick_interval"`
	VoteDisplaySeconds int           `mapstructure:"vote_display_seconds"`
	PersistTimeout     time.Duration `mapstructure:"persist_timeout"`
	ChainTimeout       time.Duration `mapstructure:"chain_timeout"`
}

type MonitorConfig struct {
	Interval  time.Duration `mapstructure:"interval"`
	MaxMatch  time.Duration `mapstructure:"max_match"`
	MaxPhase  time.Duration `mapstructure:"max_phase"`
	Retention time.Duration `mapstructure:"retention"`
}

type HistoryConfig struct {
	BatchSize  int           `mapstructure:"batch_size"`
	FlushDelay time.Duration `mapstructure:"flush_delay"`
	Inactivity time.Duration `mapstructure:"inactivity"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "info")
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.allowed_origins", []string{})
	v.SetDefault("database.url", "")
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.queue", "nightstake_events")
	v.SetDefault("redis.buffer", 1024)
	v.SetDefault("chain.url", "")
	v.SetDefault("chain.timeout", "10s")
	v.SetDefault("chain.max_retries", 3)
	v.SetDefault("auth.token_expire", "72h")
	v.SetDefault("auth.key_path", "")

	d := game.DefaultConfig()
	v.SetDefault("game.default_stake", d.DefaultStake)
	v.SetDefault("game.default_min_players", d.DefaultMinParticipants)
	v.SetDefault("game.max_players", d.MaxParticipants)
	v.SetDefault("game.start_delay", d.StartDelay)
	v.SetDefault("game.ready_grace", d.ReadyGrace)
	v.SetDefault("game.tick_interval", d.TickInterval)
	v.SetDefault("game.vote_display_seconds", d.VoteDisplaySeconds)
	v.SetDefault("game.persist_timeout", d.PersistTimeout)
	v.SetDefault("game.chain_timeout", d.ChainTimeout)

	m := game.DefaultMonitorConfig()
	v.SetDefault("monitor.interval", m.Interval)
	v.SetDefault("monitor.max_match", m.MaxMatch)
	v.SetDefault("monitor.max_phase", m.MaxPhase)
	v.SetDefault("monitor.retention", m.EndedRetention)

	v.SetDefault("historian.batch_size", 20)
	v.SetDefault("historian.flush_delay", "500ms")
	v.SetDefault("historian.inactivity", "10m")
}

// Load reads defaults, then ./configs/nightstake.yaml if present, then NIGHTSTAKE_* env
// vars (NIGHTSTAKE_GAME_START_DELAY overrides game.start_delay).
func Load(paths ...string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("nightstake")
	v.SetConfigType("yaml")
	if len(paths) == 0 {
		paths = []string{"./configs", "."}
	}
	for _, p := range paths {
		v.AddConfigPath(p)
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &cfg, nil
}

// GameConfig converts the game section to the orchestrator's configuration.
func (c *Config) GameConfig() game.Config {
	return game.Config{
		DefaultStake:           c.Game.DefaultStake,
		DefaultMinParticipants: c.Game.DefaultMinPlayers,
		MaxParticipants:        c.Game.MaxPlayers,
		StartDelay:             c.Game.StartDelay,
		ReadyGrace:             c.Game.ReadyGrace,
		TickInterval:           c.Game.TickInterval,
		VoteDisplaySeconds:     c.Game.VoteDisplaySeconds,
		PersistTimeout:         c.Game.PersistTimeout,
		ChainTimeout:           c.Game.ChainTimeout,
	}
}

// MonitorConfig converts the monitor section.
func (c *Config) MonitorConfig() game.MonitorConfig {
	return game.MonitorConfig{
		Interval:       c.Monitor.Interval,
		MaxMatch:       c.Monitor.MaxMatch,
		MaxPhase:       c.Monitor.MaxPhase,
		EndedRetention: c.Monitor.Retention,
	}
}
