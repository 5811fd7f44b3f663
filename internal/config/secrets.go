package config

import (
	"fmt"
	"os"
	"strings"
)

// Secrets is everything resolved from the environment rather than the TOML
// file. Per-account token variables carry the handle as an uppercase
// suffix (TWITTER_ACCESS_TOKEN_MYBOT); the unsuffixed variable is the
// fallback for single-account setups.
type Secrets struct {
	TwitterClientID     string
	TwitterClientSecret string
	AccessToken         string
	RefreshToken        string
	LLMAPIKey           string
	DatabaseURL         string
}

// envSuffix turns a handle into an environment-variable suffix.
func envSuffix(handle string) string {
	s := strings.ToUpper(NormalizeHandle(handle))
	var b strings.Builder
	for _, r := range s {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}
	return b.String()
}

func lookup(name, handle string) string {
	if handle != "" {
		if v := os.Getenv(name + "_" + envSuffix(handle)); v != "" {
			return v
		}
	}
	return os.Getenv(name)
}

// LoadSecrets resolves the credentials for one account. Missing required
// Twitter credentials are a configuration fault and fail immediately; a
// missing LLM key is not fatal (the bot runs in log-only mode).
func LoadSecrets(cfg *Config, handle string) (Secrets, error) {
	s := Secrets{
		TwitterClientID:     os.Getenv("TWITTER_CLIENT_ID"),
		TwitterClientSecret: os.Getenv("TWITTER_CLIENT_SECRET"),
		AccessToken:         lookup("TWITTER_ACCESS_TOKEN", handle),
		RefreshToken:        lookup("TWITTER_REFRESH_TOKEN", handle),
		DatabaseURL:         os.Getenv("DATABASE_URL"),
	}

	switch cfg.LLM.Provider {
	case "gemini":
		s.LLMAPIKey = os.Getenv("GEMINI_API_KEY")
	default:
		s.LLMAPIKey = os.Getenv("ANTHROPIC_API_KEY")
	}

	var missing []string
	if s.TwitterClientID == "" {
		missing = append(missing, "TWITTER_CLIENT_ID")
	}
	if s.TwitterClientSecret == "" {
		missing = append(missing, "TWITTER_CLIENT_SECRET")
	}
	if s.AccessToken == "" {
		missing = append(missing, "TWITTER_ACCESS_TOKEN")
	}
	if s.RefreshToken == "" {
		missing = append(missing, "TWITTER_REFRESH_TOKEN")
	}
	if len(missing) > 0 {
		return Secrets{}, fmt.Errorf("missing required environment variables for @%s: %s",
			NormalizeHandle(handle), strings.Join(missing, ", "))
	}
	return s, nil
}
