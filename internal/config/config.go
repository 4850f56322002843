// Package config loads the runtime configuration from the environment, with
// optional .env support for local development.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// ErrMissingEnv marks a required environment key that is absent.
var ErrMissingEnv = errors.New("missing required environment variable")

// Default model identifiers used when the environment leaves them unset.
const (
	DefaultGrokModel      = "grok-2-latest"
	DefaultAnthropicModel = "claude-sonnet-4-5"
	DefaultGrokBaseURL    = "https://api.x.ai/v1"

	defaultApprovalTTLSeconds = 600
)

// CostRate is the USD price per one million tokens for one provider.
type CostRate struct {
	InPer1M  float64
	OutPer1M float64
}

// Telegram configures the bot surface.
type Telegram struct {
	BotToken           string
	AllowedChatIDs     []int64
	AdminChatIDs       []int64
	RateLimitSeconds   int
	ApprovalTTLSeconds int
	ShowUsage          bool
}

// Config is the full runtime configuration.
type Config struct {
	GrokAPIKey  string
	GrokModel   string
	GrokBaseURL string

	AnthropicAPIKey string
	AnthropicModel  string

	Telegram Telegram

	// CostRates maps an upper-case provider name to its token pricing,
	// populated from COST_<PROVIDER>_USD_PER_1M_IN|OUT keys.
	CostRates map[string]CostRate
}

// Load reads configuration from the environment. A .env file in the working
// directory is merged in first when present; real environment variables win.
func Load() (*Config, error) {
	// Ignore a missing .env; only the environment is authoritative.
	_ = godotenv.Load()

	cfg := &Config{
		GrokAPIKey:      os.Getenv("GROK_API_KEY"),
		GrokModel:       envOr("GROK_MODEL", DefaultGrokModel),
		GrokBaseURL:     envOr("GROK_BASE_URL", DefaultGrokBaseURL),
		AnthropicAPIKey: os.Getenv("ANTHROPIC_API_KEY"),
		AnthropicModel:  envOr("ANTHROPIC_MODEL", DefaultAnthropicModel),
		Telegram: Telegram{
			BotToken:           os.Getenv("TELEGRAM_BOT_TOKEN"),
			AllowedChatIDs:     parseChatIDs(os.Getenv("TELEGRAM_ALLOWED_CHAT_IDS")),
			AdminChatIDs:       parseChatIDs(os.Getenv("TELEGRAM_ADMIN_CHAT_IDS")),
			RateLimitSeconds:   envInt("TELEGRAM_RATE_LIMIT_SECONDS", 0),
			ApprovalTTLSeconds: envInt("TELEGRAM_APPROVAL_TTL_SECONDS", defaultApprovalTTLSeconds),
			ShowUsage:          envBool("TELEGRAM_SHOW_USAGE"),
		},
		CostRates: parseCostRates(os.Environ()),
	}
	return cfg, nil
}

// RequireGrok verifies the mandatory Grok credential is present.
func (c *Config) RequireGrok() error {
	if strings.TrimSpace(c.GrokAPIKey) == "" {
		return fmt.Errorf("%w: GROK_API_KEY", ErrMissingEnv)
	}
	return nil
}

// RequireTelegram verifies the bot token is present.
func (c *Config) RequireTelegram() error {
	if strings.TrimSpace(c.Telegram.BotToken) == "" {
		return fmt.Errorf("%w: TELEGRAM_BOT_TOKEN", ErrMissingEnv)
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}

func envBool(key string) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

func parseChatIDs(raw string) []int64 {
	var ids []int64
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids
}

// parseCostRates extracts COST_<PROVIDER>_USD_PER_1M_IN|OUT entries from an
// environment snapshot.
func parseCostRates(environ []string) map[string]CostRate {
	rates := make(map[string]CostRate)
	for _, entry := range environ {
		key, value, ok := strings.Cut(entry, "=")
		if !ok || !strings.HasPrefix(key, "COST_") {
			continue
		}
		var provider, field string
		switch {
		case strings.HasSuffix(key, "_USD_PER_1M_IN"):
			provider = strings.TrimSuffix(strings.TrimPrefix(key, "COST_"), "_USD_PER_1M_IN")
			field = "in"
		case strings.HasSuffix(key, "_USD_PER_1M_OUT"):
			provider = strings.TrimSuffix(strings.TrimPrefix(key, "COST_"), "_USD_PER_1M_OUT")
			field = "out"
		default:
			continue
		}
		if provider == "" {
			continue
		}
		amount, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil || amount < 0 {
			continue
		}
		rate := rates[provider]
		if field == "in" {
			rate.InPer1M = amount
		} else {
			rate.OutPer1M = amount
		}
		rates[provider] = rate
	}
	return rates
}
