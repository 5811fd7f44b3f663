package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, 1, cfg.Version)
	assert.Equal(t, 300, cfg.Bot.PollIntervalSeconds)
	assert.Equal(t, 10, cfg.Bot.MaxPostsPerRun)
	assert.Equal(t, 500, cfg.Bot.MaxHistory)
	assert.Equal(t, "data", cfg.Bot.DataDir)
	assert.Equal(t, "anthropic", cfg.LLM.Provider)
	assert.True(t, cfg.LLM.ClassifyFirst)
	assert.NotEmpty(t, cfg.LLM.ReplyPrompt)
	assert.NotEmpty(t, cfg.LLM.ClassificationPrompt)
	assert.Equal(t, "08:00", cfg.Report.Time)
	assert.Equal(t, "UTC", cfg.Report.Timezone)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf", "config.toml")

	cfg := Default()
	cfg.Bot.DryRun = true
	cfg.Bot.PollIntervalSeconds = 60
	cfg.Accounts = []AccountConfig{
		{Handle: "mybot", SearchQuery: "#golang -is:retweet", IgnoreHandles: []string{"@spam"}},
	}
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.True(t, loaded.Bot.DryRun)
	assert.Equal(t, 60, loaded.Bot.PollIntervalSeconds)
	require.Len(t, loaded.Accounts, 1)
	assert.Equal(t, "#golang -is:retweet", loaded.Accounts[0].SearchQuery)
	assert.Equal(t, []string{"@spam"}, loaded.Accounts[0].IgnoreHandles)
}

func TestLoadFillsDefaultsForMinimalFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	minimal := `
version = 1

[[accounts]]
handle = "mybot"
search_query = "#golang"
`
	require.NoError(t, os.WriteFile(path, []byte(minimal), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 300, cfg.Bot.PollIntervalSeconds)
	assert.Equal(t, 500, cfg.Bot.MaxHistory)
	assert.Equal(t, "anthropic", cfg.LLM.Provider)
	assert.Equal(t, "reports", cfg.Report.OutputDir)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	require.Error(t, err)
}

func TestAccountLookup(t *testing.T) {
	cfg := Default()
	cfg.Accounts = []AccountConfig{
		{Handle: "MyBot", SearchQuery: "#golang"},
		{Handle: "other", SearchQuery: "#rustlang"},
	}

	acct, err := cfg.Account("@mybot")
	require.NoError(t, err)
	assert.Equal(t, "#golang", acct.SearchQuery)

	_, err = cfg.Account("ghost")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ghost")
}

func TestPaths(t *testing.T) {
	cfg := Default()
	cfg.Bot.DataDir = "/var/lib/replybot"
	assert.Equal(t, "/var/lib/replybot/state_mybot.json", cfg.StatePath("@MyBot"))
	assert.Equal(t, "/var/lib/replybot/token_mybot.json", cfg.TokenPath("mybot"))
	assert.Equal(t, "/var/lib/replybot/archive.db", cfg.ArchivePath())
}

func TestNormalizeHandle(t *testing.T) {
	assert.Equal(t, "mybot", NormalizeHandle(" @MyBot "))
	assert.Equal(t, "mybot", NormalizeHandle("mybot"))
	assert.Equal(t, "", NormalizeHandle("@"))
}

func setRequiredTwitterEnv(t *testing.T) {
	t.Helper()
	t.Setenv("TWITTER_CLIENT_ID", "cid")
	t.Setenv("TWITTER_CLIENT_SECRET", "csecret")
	t.Setenv("TWITTER_ACCESS_TOKEN", "atoken")
	t.Setenv("TWITTER_REFRESH_TOKEN", "rtoken")
}

func TestLoadSecrets(t *testing.T) {
	setRequiredTwitterEnv(t)
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant-test")
	t.Setenv("DATABASE_URL", "postgres://localhost/replybot")

	s, err := LoadSecrets(Default(), "mybot")
	require.NoError(t, err)
	assert.Equal(t, "cid", s.TwitterClientID)
	assert.Equal(t, "atoken", s.AccessToken)
	assert.Equal(t, "sk-ant-test", s.LLMAPIKey)
	assert.Equal(t, "postgres://localhost/replybot", s.DatabaseURL)
}

func TestLoadSecretsPerHandleOverride(t *testing.T) {
	setRequiredTwitterEnv(t)
	t.Setenv("TWITTER_ACCESS_TOKEN_MYBOT", "atoken-mybot")
	t.Setenv("TWITTER_REFRESH_TOKEN_MYBOT", "rtoken-mybot")

	s, err := LoadSecrets(Default(), "@MyBot")
	require.NoError(t, err)
	assert.Equal(t, "atoken-mybot", s.AccessToken)
	assert.Equal(t, "rtoken-mybot", s.RefreshToken)
}

func TestLoadSecretsGeminiKey(t *testing.T) {
	setRequiredTwitterEnv(t)
	t.Setenv("GEMINI_API_KEY", "gm-test")
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant-test")

	cfg := Default()
	cfg.LLM.Provider = "gemini"
	s, err := LoadSecrets(cfg, "mybot")
	require.NoError(t, err)
	assert.Equal(t, "gm-test", s.LLMAPIKey)
}

func TestLoadSecretsMissingRequired(t *testing.T) {
	t.Setenv("TWITTER_CLIENT_ID", "cid")
	t.Setenv("TWITTER_CLIENT_SECRET", "")
	t.Setenv("TWITTER_ACCESS_TOKEN", "")
	t.Setenv("TWITTER_REFRESH_TOKEN", "rtoken")

	_, err := LoadSecrets(Default(), "mybot")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TWITTER_CLIENT_SECRET")
	assert.Contains(t, err.Error(), "TWITTER_ACCESS_TOKEN")
	assert.NotContains(t, err.Error(), "TWITTER_CLIENT_ID")
}

func TestLoadSecretsMissingLLMKeyNotFatal(t *testing.T) {
	setRequiredTwitterEnv(t)
	t.Setenv("ANTHROPIC_API_KEY", "")

	s, err := LoadSecrets(Default(), "mybot")
	require.NoError(t, err)
	assert.Empty(t, s.LLMAPIKey)
}
