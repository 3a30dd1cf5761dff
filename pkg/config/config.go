package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const EnvPrefix = "SCRIBBLE"

type Config struct {
	Addr          string        `mapstructure:"addr"`
	LogLevel      string        `mapstructure:"log_level"`
	AllowedOrigin string        `mapstructure:"allowed_origin"`
	DatabaseURL   string        `mapstructure:"database_url"`
	TLS           TLSConfig     `mapstructure:"tls"`
	Game          GameConfig    `mapstructure:"game"`
	Network       NetworkConfig `mapstructure:"network"`
	Archive       ArchiveConfig `mapstructure:"archive"`
}

type TLSConfig struct {
	CertFile string `mapstructure:"cert_file"`
	KeyFile  string `mapstructure:"key_file"`
}

// Enabled reports whether both halves of the key pair are configured.
func (c TLSConfig) Enabled() bool {
	return c.CertFile != "" && c.KeyFile != ""
}

type GameConfig struct {
	DrawDuration    time.Duration `mapstructure:"draw_duration"`
	AdvanceDelay    time.Duration `mapstructure:"advance_delay"`
	WordChoices     int           `mapstructure:"word_choices"`
	DefaultRounds   int           `mapstructure:"default_rounds"`
	MaxRounds       int           `mapstructure:"max_rounds"`
	MaxPlayers      int           `mapstructure:"max_players"`
	DefaultCategory string        `mapstructure:"default_category"`
	// IdleTimeout is how long a room may have nobody connected before it is reaped.
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
}

type NetworkConfig struct {
	SendBuffer   int           `mapstructure:"send_buffer"`
	InboundRate  float64       `mapstructure:"inbound_rate"`
	InboundBurst int           `mapstructure:"inbound_burst"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	PongWait     time.Duration `mapstructure:"pong_wait"`
}

type ArchiveConfig struct {
	Interval time.Duration `mapstructure:"interval"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("addr", ":8000")
	v.SetDefault("log_level", "info")
	v.SetDefault("allowed_origin", "*")
	v.SetDefault("database_url", "")
	v.SetDefault("tls.cert_file", "")
	v.SetDefault("tls.key_file", "")

	v.SetDefault("game.draw_duration", 60*time.Second)
	v.SetDefault("game.advance_delay", 3*time.Second)
	v.SetDefault("game.word_choices", 3)
	v.SetDefault("game.default_rounds", 5)
	v.SetDefault("game.max_rounds", 10)
	v.SetDefault("game.max_players", 12)
	v.SetDefault("game.default_category", "animals")
	v.SetDefault("game.idle_timeout", 10*time.Minute)

	v.SetDefault("network.send_buffer", 64)
	v.SetDefault("network.inbound_rate", 60.0)
	v.SetDefault("network.inbound_burst", 120)
	v.SetDefault("network.write_timeout", 10*time.Second)
	v.SetDefault("network.pong_wait", 60*time.Second)

	v.SetDefault("archive.interval", 5*time.Second)
}

// Load reads defaults, then the optional file at path, then SCRIBBLE_* environment overrides.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %v", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %v", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("addr must not be empty")
	}
	if c.TLS.CertFile != "" && c.TLS.KeyFile == "" || c.TLS.CertFile == "" && c.TLS.KeyFile != "" {
		return fmt.Errorf("tls requires both cert_file and key_file")
	}

	durations := map[string]time.Duration{
		"game.draw_duration":    c.Game.DrawDuration,
		"game.advance_delay":    c.Game.AdvanceDelay,
		"game.idle_timeout":     c.Game.IdleTimeout,
		"network.write_timeout": c.Network.WriteTimeout,
		"network.pong_wait":     c.Network.PongWait,
		"archive.interval":      c.Archive.Interval,
	}
	for key, d := range durations {
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", key, d)
		}
	}

	counts := map[string]int{
		"game.word_choices":     c.Game.WordChoices,
		"game.default_rounds":   c.Game.DefaultRounds,
		"game.max_rounds":       c.Game.MaxRounds,
		"game.max_players":      c.Game.MaxPlayers,
		"network.send_buffer":   c.Network.SendBuffer,
		"network.inbound_burst": c.Network.InboundBurst,
	}
	for key, n := range counts {
		if n <= 0 {
			return fmt.Errorf("%s must be positive, got %d", key, n)
		}
	}

	if c.Network.InboundRate <= 0 {
		return fmt.Errorf("network.inbound_rate must be positive, got %v", c.Network.InboundRate)
	}
	if c.Game.DefaultRounds > c.Game.MaxRounds {
		return fmt.Errorf("game.default_rounds (%d) exceeds game.max_rounds (%d)", c.Game.DefaultRounds, c.Game.MaxRounds)
	}
	if c.Game.MaxPlayers < 2 {
		return fmt.Errorf("game.max_players must be at least 2, got %d", c.Game.MaxPlayers)
	}

	return nil
}
