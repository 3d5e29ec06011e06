package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds all runtime settings. Values come from the environment,
// with .env as a fallback for local runs.
type Config struct {
	DiscordToken string `env:"DISCORD_TOKEN,notEmpty"`
	DataDir      string `env:"DATA_DIR" envDefault:"data"`
	LogLevel     string `env:"LOG_LEVEL" envDefault:"info"`

	// Completion API (OpenAI-compatible chat endpoint).
	AIBaseURL      string        `env:"AI_BASE_URL" envDefault:"https://text.pollinations.ai/openai"`
	AIAPIKey       string        `env:"AI_API_KEY"`
	AIModel        string        `env:"AI_MODEL" envDefault:"openai"`
	AITimeout      time.Duration `env:"AI_TIMEOUT" envDefault:"25s"`
	MaxReplyTokens int           `env:"AI_MAX_REPLY_TOKENS" envDefault:"400"`
	Temperature    float64       `env:"AI_TEMPERATURE" envDefault:"0.8"`

	// Mind tuning.
	BotName            string        `env:"BOT_NAME" envDefault:"velvet"`
	Keywords           []string      `env:"CHAT_KEYWORDS" envSeparator:","`
	ScopeMode          string        `env:"MEMORY_SCOPE" envDefault:"peruser"` // "peruser" | "shared"
	GateMode           string        `env:"GATE_MODE" envDefault:"heuristic"`  // "heuristic" | "classifier"
	ContextTokenBudget int           `env:"CONTEXT_TOKEN_BUDGET" envDefault:"3000"`
	CondenseInterval   int           `env:"CONDENSE_INTERVAL" envDefault:"24"`
	MaxTurns           int           `env:"MAX_TURNS" envDefault:"60"`
	ReplyCooldown      time.Duration `env:"REPLY_COOLDOWN" envDefault:"45s"`
	ContinuityWindow   time.Duration `env:"CONTINUITY_WINDOW" envDefault:"30s"`
	PersonaPath        string        `env:"PERSONA_PATH" envDefault:"data/persona.md"`

	// Persistence flush timers (short-term history vs long-term memory).
	HistoryFlushInterval time.Duration `env:"HISTORY_FLUSH_INTERVAL" envDefault:"2m"`
	MemoryFlushInterval  time.Duration `env:"MEMORY_FLUSH_INTERVAL" envDefault:"15m"`

	// Managed service tool dispatch. Empty name disables it.
	ManagedService    string `env:"MANAGED_SERVICE"`
	ManagedServiceCmd string `env:"MANAGED_SERVICE_CMD"`
}

// New loads .env (if present) and parses the environment into a Config.
func New() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}

	switch cfg.ScopeMode {
	case "peruser", "shared":
	default:
		return nil, fmt.Errorf("MEMORY_SCOPE must be 'peruser' or 'shared', got %q", cfg.ScopeMode)
	}
	switch cfg.GateMode {
	case "heuristic", "classifier":
	default:
		return nil, fmt.Errorf("GATE_MODE must be 'heuristic' or 'classifier', got %q", cfg.GateMode)
	}
	if cfg.CondenseInterval < 2 {
		return nil, fmt.Errorf("CONDENSE_INTERVAL must be at least 2, got %d", cfg.CondenseInterval)
	}
	if cfg.MaxTurns < cfg.CondenseInterval {
		cfg.MaxTurns = cfg.CondenseInterval
	}

	return cfg, nil
}
