// Package config loads the TOML configuration file and resolves secrets
// from the environment (optionally seeded from a .env file). The rest of
// the program only ever sees resolved values passed in at construction.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// DefaultPath is the config file location when --config is not given.
const DefaultPath = "config.toml"

const (
	defaultReplyPrompt = "You write short, conversational replies on behalf of the account's persona. " +
		"Match the language of the original tweet, stay concrete and natural, avoid hype and profit " +
		"promises, and keep every reply well under 280 characters. Never sound like a marketing bot."

	defaultClassificationPrompt = "You triage tweets for an outreach bot. Reply only when the tweet is " +
		"genuinely about the bot's topic area and a mention would add value for the audience. Skip ads, " +
		"giveaways, unrelated chatter, personal complaints, and sensitive news. Respond with strict JSON: " +
		`{"decision": "reply|skip", "reason": string, "confidence": number between 0 and 1}. ` +
		"When uncertain, choose skip."
)

// Config is the on-disk TOML shape.
type Config struct {
	Version  int             `toml:"version"`
	Bot      BotConfig       `toml:"bot"`
	LLM      LLMConfig       `toml:"llm"`
	Report   ReportConfig    `toml:"report"`
	Email    EmailConfig     `toml:"email"`
	Accounts []AccountConfig `toml:"accounts"`
}

type BotConfig struct {
	PollIntervalSeconds int    `toml:"poll_interval_seconds"`
	MaxPostsPerRun      int    `toml:"max_posts_per_run"`
	MaxHistory          int    `toml:"max_history"`
	DryRun              bool   `toml:"dry_run"`
	DataDir             string `toml:"data_dir"`
}

type LLMConfig struct {
	Provider             string `toml:"provider"`
	Model                string `toml:"model"`
	ClassifierModel      string `toml:"classifier_model"`
	ClassifyFirst        bool   `toml:"classify_first"`
	ReplyPrompt          string `toml:"reply_prompt"`
	ClassificationPrompt string `toml:"classification_prompt"`
}

type ReportConfig struct {
	Enabled   bool   `toml:"enabled"`
	Time      string `toml:"time"` // "08:00" local to Timezone
	Timezone  string `toml:"timezone"`
	OutputDir string `toml:"output_dir"`
	EmailTo   string `toml:"email_to"`
}

type EmailConfig struct {
	Provider string `toml:"provider"`
	SMTPHost string `toml:"smtp_host"`
	SMTPPort int    `toml:"smtp_port"`
	SMTPUser string `toml:"smtp_user"`
	SMTPPass string `toml:"smtp_pass"`
	FromAddr string `toml:"from_address"`
}

type AccountConfig struct {
	Handle        string   `toml:"handle"`
	SearchQuery   string   `toml:"search_query"`
	IgnoreHandles []string `toml:"ignore_handles"`
	Scopes        []string `toml:"scopes"`
}

// Default returns a Config with sensible defaults
func Default() *Config {
	return &Config{
		Version: 1,
		Bot: BotConfig{
			PollIntervalSeconds: 300,
			MaxPostsPerRun:      10,
			MaxHistory:          500,
			DataDir:             "data",
		},
		LLM: LLMConfig{
			Provider:             "anthropic",
			Model:                "claude-sonnet-4-20250514",
			ClassifierModel:      "claude-3-5-haiku-20241022",
			ClassifyFirst:        true,
			ReplyPrompt:          defaultReplyPrompt,
			ClassificationPrompt: defaultClassificationPrompt,
		},
		Report: ReportConfig{
			Time:      "08:00",
			Timezone:  "UTC",
			OutputDir: "reports",
		},
		Email: EmailConfig{
			Provider: "smtp",
			SMTPPort: 587,
		},
	}
}

// Load reads config from disk and fills in zero-valued fields from the
// defaults so a minimal file stays valid.
func Load(path string) (*Config, error) {
	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	return &cfg, nil
}

// Save writes config to disk
func (c *Config) Save(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()
	return toml.NewEncoder(f).Encode(c)
}

func applyDefaults(cfg *Config) {
	def := Default()
	if cfg.Bot.PollIntervalSeconds <= 0 {
		cfg.Bot.PollIntervalSeconds = def.Bot.PollIntervalSeconds
	}
	if cfg.Bot.MaxPostsPerRun <= 0 {
		cfg.Bot.MaxPostsPerRun = def.Bot.MaxPostsPerRun
	}
	if cfg.Bot.MaxHistory <= 0 {
		cfg.Bot.MaxHistory = def.Bot.MaxHistory
	}
	if cfg.Bot.DataDir == "" {
		cfg.Bot.DataDir = def.Bot.DataDir
	}
	if cfg.LLM.Provider == "" {
		cfg.LLM.Provider = def.LLM.Provider
	}
	if cfg.LLM.Model == "" {
		cfg.LLM.Model = def.LLM.Model
	}
	if cfg.LLM.ReplyPrompt == "" {
		cfg.LLM.ReplyPrompt = def.LLM.ReplyPrompt
	}
	if cfg.LLM.ClassificationPrompt == "" {
		cfg.LLM.ClassificationPrompt = def.LLM.ClassificationPrompt
	}
	if cfg.Report.Time == "" {
		cfg.Report.Time = def.Report.Time
	}
	if cfg.Report.Timezone == "" {
		cfg.Report.Timezone = def.Report.Timezone
	}
	if cfg.Report.OutputDir == "" {
		cfg.Report.OutputDir = def.Report.OutputDir
	}
}

// StatePath returns the per-account state file path.
func (c *Config) StatePath(handle string) string {
	return filepath.Join(c.Bot.DataDir, "state_"+NormalizeHandle(handle)+".json")
}

// TokenPath returns the per-account token file path.
func (c *Config) TokenPath(handle string) string {
	return filepath.Join(c.Bot.DataDir, "token_"+NormalizeHandle(handle)+".json")
}

// ArchivePath returns the shared activity archive path.
func (c *Config) ArchivePath() string {
	return filepath.Join(c.Bot.DataDir, "archive.db")
}

// Account returns the account block for handle (case-insensitive,
// @-stripped), or an error naming the handle when it is not configured.
func (c *Config) Account(handle string) (AccountConfig, error) {
	want := NormalizeHandle(handle)
	for _, acct := range c.Accounts {
		if NormalizeHandle(acct.Handle) == want {
			return acct, nil
		}
	}
	return AccountConfig{}, fmt.Errorf("no account configured for handle %q", handle)
}

// NormalizeHandle lower-cases a handle and strips any leading @.
func NormalizeHandle(handle string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(handle), "@"))
}
