package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/cory-johannsen/multiworld/internal/backoff"
)

func validConfig() Config {
	return Config{
		Service: ServiceConfig{
			BaseAddress:     "wss://mw.alttpr.com",
			LobbyEndpoint:   "api/lobby/",
			DefaultGameKind: "mw",
		},
		Bot: BotConfig{
			Token:         "bot-token",
			Name:          "helper-bot",
			SweepInterval: time.Minute,
		},
		Session: SessionConfig{
			HandshakeTimeout: 10 * time.Second,
			WriteTimeout:     10 * time.Second,
			InboxSize:        64,
			Backoff:          backoff.DefaultConfig(),
		},
		Lobby: LobbyConfig{CreationTokenTTL: 10 * time.Minute},
		Importer: ImporterConfig{
			URL:     "https://alttpr.com/api/randomizer",
			Timeout: 30 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

func TestValidConfig(t *testing.T) {
	cfg := validConfig()
	assert.NoError(t, cfg.Validate())
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.yaml")
	err := os.WriteFile(path, []byte(`
service:
  base_address: ws://127.0.0.1:8080
  default_game_kind: s1p
bot:
  token: file-token
  name: racer
session:
  inbox_size: 8
  backoff:
    initial: 250ms
    multiplier: 1.5
    max: 5s
    randomization: 0.25
lobby:
  creation_token_ttl: 2m
importer:
  url: http://127.0.0.1:9000/generate
console:
  stdin: true
logging:
  level: debug
  format: console
`), 0644)
	require.NoError(t, err)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "ws://127.0.0.1:8080", cfg.Service.BaseAddress)
	assert.Equal(t, "api/lobby/", cfg.Service.LobbyEndpoint, "defaults fill absent keys")
	assert.Equal(t, "s1p", cfg.Service.DefaultGameKind)
	assert.Equal(t, "file-token", cfg.Bot.Token)
	assert.Equal(t, "racer", cfg.Bot.Name)
	assert.Equal(t, 8, cfg.Session.InboxSize)
	assert.Equal(t, 10*time.Second, cfg.Session.HandshakeTimeout)
	assert.Equal(t, backoff.Config{Initial: 250 * time.Millisecond, Multiplier: 1.5, Max: 5 * time.Second, Randomization: 0.25}, cfg.Session.Backoff)
	assert.Equal(t, 2*time.Minute, cfg.Lobby.CreationTokenTTL)
	assert.True(t, cfg.Importer.Enabled())
	assert.Equal(t, 30*time.Second, cfg.Importer.Timeout)
	assert.True(t, cfg.Console.Stdin)
	assert.True(t, cfg.Console.Color)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Setenv("MULTIWORLD_BOT_TOKEN", "env-token")
	t.Setenv("MULTIWORLD_SERVICE_BASE_ADDRESS", "wss://staging.example.test")
	t.Setenv("MULTIWORLD_SESSION_BACKOFF_MAX", "90s")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "env-token", cfg.Bot.Token)
	assert.Equal(t, "wss://staging.example.test", cfg.Service.BaseAddress)
	assert.Equal(t, 90*time.Second, cfg.Session.Backoff.Max)
	assert.False(t, cfg.Importer.Enabled())
}

func TestLoad_DefaultsRequireToken(t *testing.T) {
	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bot.token must not be empty")
}

func TestLoadInvalidPath(t *testing.T) {
	_, err := Load("/nonexistent/path.yaml")
	assert.Error(t, err)
}

func TestLoadFromViper(t *testing.T) {
	v := NewViper()
	v.Set("bot.token", "viper-token")
	cfg, err := LoadFromViper(v)
	require.NoError(t, err)
	assert.Equal(t, "viper-token", cfg.Bot.Token)
	assert.Equal(t, backoff.DefaultConfig(), cfg.Session.Backoff)
	assert.Equal(t, 10*time.Minute, cfg.Lobby.CreationTokenTTL)
}

func TestValidate_AggregatesViolations(t *testing.T) {
	cfg := validConfig()
	cfg.Bot.Token = ""
	cfg.Session.InboxSize = 0
	cfg.Logging.Level = "trace"

	err := cfg.Validate()
	require.Error(t, err)
	msg := err.Error()
	assert.True(t, strings.HasPrefix(msg, "configuration validation failed: "))
	assert.Contains(t, msg, "bot.token")
	assert.Contains(t, msg, "session.inbox_size")
	assert.Contains(t, msg, "logging.level")
}

func TestValidateBaseAddress(t *testing.T) {
	for _, addr := range []string{"ws://localhost:8080", "wss://mw.alttpr.com"} {
		cfg := validConfig()
		cfg.Service.BaseAddress = addr
		assert.NoError(t, cfg.Validate(), "address %q should be valid", addr)
	}
	for _, addr := range []string{"", "https://mw.alttpr.com", "mw.alttpr.com", "ws://[::1"} {
		cfg := validConfig()
		cfg.Service.BaseAddress = addr
		assert.Error(t, cfg.Validate(), "address %q should be rejected", addr)
	}
}

func TestValidateDefaultGameKind(t *testing.T) {
	for _, kind := range []string{"mw", "s1p", "game"} {
		cfg := validConfig()
		cfg.Service.DefaultGameKind = kind
		assert.NoError(t, cfg.Validate(), "kind %q should be valid", kind)
	}
	cfg := validConfig()
	cfg.Service.DefaultGameKind = "lobby"
	assert.Error(t, cfg.Validate())
}

func TestValidateBotName(t *testing.T) {
	cfg := validConfig()
	cfg.Bot.Name = ""
	assert.Error(t, cfg.Validate())

	cfg = validConfig()
	cfg.Bot.SweepInterval = 0
	assert.Error(t, cfg.Validate())
}

func TestValidateSessionTimeouts(t *testing.T) {
	cfg := validConfig()
	cfg.Session.HandshakeTimeout = 0
	assert.Error(t, cfg.Validate())

	cfg = validConfig()
	cfg.Session.WriteTimeout = 0
	assert.NoError(t, cfg.Validate(), "zero write timeout disables the deadline")

	cfg = validConfig()
	cfg.Session.WriteTimeout = -time.Second
	assert.Error(t, cfg.Validate())
}

func TestValidateBackoff(t *testing.T) {
	tests := map[string]func(*backoff.Config){
		"zero initial":      func(b *backoff.Config) { b.Initial = 0 },
		"shrinking":         func(b *backoff.Config) { b.Multiplier = 0.5 },
		"max below initial": func(b *backoff.Config) { b.Max = b.Initial / 2 },
		"negative jitter":   func(b *backoff.Config) { b.Randomization = -0.1 },
		"full jitter":       func(b *backoff.Config) { b.Randomization = 1 },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			cfg := validConfig()
			mutate(&cfg.Session.Backoff)
			assert.ErrorContains(t, cfg.Validate(), "session.backoff")
		})
	}
}

func TestValidateLobbyTTL(t *testing.T) {
	cfg := validConfig()
	cfg.Lobby.CreationTokenTTL = 0
	assert.NoError(t, cfg.Validate(), "zero disables expiry")

	cfg.Lobby.CreationTokenTTL = -time.Second
	assert.Error(t, cfg.Validate())
}

func TestValidateImporter(t *testing.T) {
	cfg := validConfig()
	cfg.Importer.URL = ""
	assert.NoError(t, cfg.Validate(), "importer is optional")

	cfg = validConfig()
	cfg.Importer.URL = "ftp://alttpr.com/api"
	assert.ErrorContains(t, cfg.Validate(), "importer.url")

	cfg = validConfig()
	cfg.Importer.Timeout = -time.Second
	assert.ErrorContains(t, cfg.Validate(), "importer.timeout")
}

func TestValidateLoggingLevel(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error"} {
		cfg := validConfig()
		cfg.Logging.Level = level
		assert.NoError(t, cfg.Validate(), "level %q should be valid", level)
	}
	cfg := validConfig()
	cfg.Logging.Level = "trace"
	assert.Error(t, cfg.Validate())
}

func TestValidateLoggingFormat(t *testing.T) {
	for _, format := range []string{"json", "console"} {
		cfg := validConfig()
		cfg.Logging.Format = format
		assert.NoError(t, cfg.Validate(), "format %q should be valid", format)
	}
	cfg := validConfig()
	cfg.Logging.Format = "xml"
	assert.Error(t, cfg.Validate())
}

// Property-based tests

func TestPropertyInboxSizeValidation(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		size := rapid.IntRange(-100, 10000).Draw(t, "inbox_size")
		cfg := validConfig()
		cfg.Session.InboxSize = size
		err := cfg.Validate()
		if size >= 1 && err != nil {
			t.Fatalf("valid inbox size %d rejected: %v", size, err)
		}
		if size < 1 && err == nil {
			t.Fatalf("invalid inbox size %d accepted", size)
		}
	})
}

func TestPropertyBackoffCeilingNeverBelowInitial(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		initial := time.Duration(rapid.Int64Range(1, int64(time.Minute)).Draw(t, "initial"))
		ceiling := time.Duration(rapid.Int64Range(1, int64(2*time.Minute)).Draw(t, "max"))
		cfg := validConfig()
		cfg.Session.Backoff.Initial = initial
		cfg.Session.Backoff.Max = ceiling
		err := cfg.Validate()
		if (ceiling >= initial) != (err == nil) {
			t.Fatalf("initial=%s max=%s: got err=%v", initial, ceiling, err)
		}
	})
}
