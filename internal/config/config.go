// Package config provides Viper-based configuration loading for the
// multiworld bot.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/cory-johannsen/multiworld/internal/backoff"
)

// ServiceConfig locates the multiworld service.
type ServiceConfig struct {
	// BaseAddress is the service root, e.g. "wss://mw.alttpr.com".
	BaseAddress string `mapstructure:"base_address"`
	// LobbyEndpoint is the lobby path below BaseAddress.
	LobbyEndpoint string `mapstructure:"lobby_endpoint"`
	// DefaultGameKind is the endpoint family used by join: "mw", "s1p", or "game".
	DefaultGameKind string `mapstructure:"default_game_kind"`
}

// BotConfig holds the bot's identity.
type BotConfig struct {
	// Token is the identity stamped on every outbound frame.
	Token string `mapstructure:"token"`
	// Name is the display name used when knocking.
	Name string `mapstructure:"name"`
	// SweepInterval is how often expired creation tokens are evicted.
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

// ConsoleConfig controls where the operator console is attached.
type ConsoleConfig struct {
	// Stdin attaches a console to the process's stdin and stdout.
	Stdin bool `mapstructure:"stdin"`
	// Color enables ANSI styling of console output.
	Color bool `mapstructure:"color"`
}

// SessionConfig holds the settings shared by every websocket session.
type SessionConfig struct {
	HandshakeTimeout time.Duration `mapstructure:"handshake_timeout"`
	// WriteTimeout bounds each frame write; zero disables the deadline.
	WriteTimeout time.Duration  `mapstructure:"write_timeout"`
	InboxSize    int            `mapstructure:"inbox_size"`
	Backoff      backoff.Config `mapstructure:"backoff"`
}

// LobbyConfig holds lobby session settings.
type LobbyConfig struct {
	// CreationTokenTTL bounds how long a Create waits for RoomReady. Zero
	// disables expiry.
	CreationTokenTTL time.Duration `mapstructure:"creation_token_ttl"`
}

// ImporterConfig holds the content API settings used by import.
type ImporterConfig struct {
	URL     string        `mapstructure:"url"`
	Token   string        `mapstructure:"token"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// Enabled reports whether a content API is configured.
func (i ImporterConfig) Enabled() bool {
	return i.URL != ""
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", "error".
	Level string `mapstructure:"level"`
	// Format is the log output format: "json" or "console".
	Format string `mapstructure:"format"`
}

// Config is the top-level application configuration.
type Config struct {
	Service  ServiceConfig  `mapstructure:"service"`
	Bot      BotConfig      `mapstructure:"bot"`
	Session  SessionConfig  `mapstructure:"session"`
	Lobby    LobbyConfig    `mapstructure:"lobby"`
	Importer ImporterConfig `mapstructure:"importer"`
	Console  ConsoleConfig  `mapstructure:"console"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// Validate checks all configuration invariants.
//
// Postcondition: Returns nil if configuration is valid, or an error describing all violations.
func (c Config) Validate() error {
	var errs []string

	for _, err := range []error{
		validateService(c.Service),
		validateBot(c.Bot),
		validateSession(c.Session),
		validateLobby(c.Lobby),
		validateImporter(c.Importer),
		validateLogging(c.Logging),
	} {
		if err != nil {
			errs = append(errs, err.Error())
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func validateService(s ServiceConfig) error {
	var errs []string
	u, err := url.Parse(s.BaseAddress)
	switch {
	case s.BaseAddress == "":
		errs = append(errs, "service.base_address must not be empty")
	case err != nil:
		errs = append(errs, fmt.Sprintf("service.base_address is malformed: %v", err))
	case u.Scheme != "ws" && u.Scheme != "wss":
		errs = append(errs, fmt.Sprintf("service.base_address scheme must be ws or wss, got %q", u.Scheme))
	}
	validKinds := map[string]bool{"mw": true, "s1p": true, "game": true}
	if !validKinds[s.DefaultGameKind] {
		errs = append(errs, fmt.Sprintf("service.default_game_kind must be one of [mw, s1p, game], got %q", s.DefaultGameKind))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateBot(b BotConfig) error {
	var errs []string
	if b.Token == "" {
		errs = append(errs, "bot.token must not be empty")
	}
	if b.Name == "" {
		errs = append(errs, "bot.name must not be empty")
	}
	if b.SweepInterval <= 0 {
		errs = append(errs, fmt.Sprintf("bot.sweep_interval must be positive, got %s", b.SweepInterval))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateSession(s SessionConfig) error {
	var errs []string
	if s.HandshakeTimeout <= 0 {
		errs = append(errs, "session.handshake_timeout must be positive")
	}
	if s.WriteTimeout < 0 {
		errs = append(errs, "session.write_timeout must not be negative")
	}
	if s.InboxSize < 1 {
		errs = append(errs, fmt.Sprintf("session.inbox_size must be >= 1, got %d", s.InboxSize))
	}
	b := s.Backoff
	if b.Initial <= 0 {
		errs = append(errs, "session.backoff.initial must be positive")
	}
	if b.Multiplier < 1 {
		errs = append(errs, fmt.Sprintf("session.backoff.multiplier must be >= 1, got %g", b.Multiplier))
	}
	if b.Max < b.Initial {
		errs = append(errs, fmt.Sprintf("session.backoff.max (%s) must be >= initial (%s)", b.Max, b.Initial))
	}
	if b.Randomization < 0 || b.Randomization >= 1 {
		errs = append(errs, fmt.Sprintf("session.backoff.randomization must be in [0, 1), got %g", b.Randomization))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateLobby(l LobbyConfig) error {
	if l.CreationTokenTTL < 0 {
		return errors.New("lobby.creation_token_ttl must not be negative")
	}
	return nil
}

func validateImporter(i ImporterConfig) error {
	var errs []string
	if i.Enabled() {
		u, err := url.Parse(i.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			errs = append(errs, fmt.Sprintf("importer.url must be an http or https url, got %q", i.URL))
		}
	}
	if i.Timeout < 0 {
		errs = append(errs, "importer.timeout must not be negative")
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateLogging(l LoggingConfig) error {
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[l.Level] {
		return fmt.Errorf("logging.level must be one of [debug, info, warn, error], got %q", l.Level)
	}
	validFormats := map[string]bool{"json": true, "console": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("logging.format must be one of [json, console], got %q", l.Format)
	}
	return nil
}

// Load reads configuration from the given file path, applies environment variable
// overrides, and validates the result. An empty path uses defaults and the
// environment only.
//
// Postcondition: Returns a valid Config or a non-nil error.
func Load(path string) (Config, error) {
	v := NewViper()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("reading config file: %w", err)
		}
	}
	return LoadFromViper(v)
}

// NewViper returns a Viper instance with defaults and MULTIWORLD_ environment
// overrides applied.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix("MULTIWORLD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	return v
}

// LoadFromViper builds a Config from an already-configured Viper instance.
//
// Precondition: v must be non-nil and have configuration values set.
// Postcondition: Returns a valid Config or a non-nil error.
func LoadFromViper(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshalling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("service.base_address", "wss://mw.alttpr.com")
	v.SetDefault("service.lobby_endpoint", "api/lobby/")
	v.SetDefault("service.default_game_kind", "mw")

	// Registered so environment overrides reach Unmarshal.
	v.SetDefault("bot.token", "")
	v.SetDefault("bot.name", "multiworld-bot")
	v.SetDefault("bot.sweep_interval", "1m")

	def := backoff.DefaultConfig()
	v.SetDefault("session.handshake_timeout", "10s")
	v.SetDefault("session.write_timeout", "10s")
	v.SetDefault("session.inbox_size", 64)
	v.SetDefault("session.backoff.initial", def.Initial.String())
	v.SetDefault("session.backoff.multiplier", def.Multiplier)
	v.SetDefault("session.backoff.max", def.Max.String())
	v.SetDefault("session.backoff.randomization", def.Randomization)

	v.SetDefault("lobby.creation_token_ttl", "10m")

	v.SetDefault("importer.url", "")
	v.SetDefault("importer.token", "")
	v.SetDefault("importer.timeout", "30s")

	v.SetDefault("console.stdin", false)
	v.SetDefault("console.color", true)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}
