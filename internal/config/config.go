package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// HTTP + WebSocket listener
	HTTPHost string
	HTTPPort int

	// Storage
	DatabaseURL string

	// Auth
	AuthSecret    string
	TokenTTL      time.Duration
	AllowedOrigin string // "*" allows any Origin on socket upgrades

	// Consensus
	ScorerQuorum         int
	ConsensusWindow      time.Duration
	ConsensusWindowBalls int
	SingleScorerFallback bool

	// Command handling
	CommandTimeout time.Duration

	// Rule presets
	RulePresetsPath string

	// Fanout
	ClientSendBuffer int

	// Archive export; empty disables
	ArchiveDir string

	// Telemetry
	LogLevel string
}

func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		HTTPHost: envStr("HTTP_HOST", "0.0.0.0"),
		HTTPPort: envInt("HTTP_PORT", 8654),

		DatabaseURL: envStr("DATABASE_URL", "data/crease.db"),

		// SIGNING_SECRET is the documented key; AUTH_SECRET is still
		// honored for deployments configured before the rename.
		AuthSecret:    envStr("SIGNING_SECRET", envStr("AUTH_SECRET", "")),
		TokenTTL:      time.Duration(envInt("TOKEN_TTL_HOURS", 12)) * time.Hour,
		AllowedOrigin: envStr("ALLOWED_ORIGIN", "*"),

		// A delivery stays provisional until the second bench confirms it.
		// The window bounds how long (wall clock) and how far (later
		// deliveries from the other bench) we wait before falling back.
		ScorerQuorum:         envInt("SCORER_QUORUM", 2),
		ConsensusWindow:      time.Duration(envInt("CONSENSUS_WINDOW_SEC", 30)) * time.Second,
		ConsensusWindowBalls: envInt("CONSENSUS_WINDOW_BALLS", 8),
		// Off unless opted into: accepting a lone bench's word on expiry
		// is a tournament policy decision, not a convenience.
		SingleScorerFallback: envStr("SINGLE_SCORER_FALLBACK", "false") == "true",

		CommandTimeout: time.Duration(envInt("COMMAND_TIMEOUT_SEC", 5)) * time.Second,

		RulePresetsPath: envStr("RULE_PRESETS_PATH", "internal/config/rule_presets.yaml"),

		ClientSendBuffer: envInt("CLIENT_SEND_BUFFER", 256),

		ArchiveDir: envStr("ARCHIVE_DIR", ""),

		LogLevel: envStr("LOG_LEVEL", "info"),
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
