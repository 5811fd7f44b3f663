package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newArchive(t *testing.T) *Archive {
	t.Helper()
	a, err := OpenArchive(filepath.Join(t.TempDir(), "nested", "archive.db"))
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })
	return a
}

func TestArchiveRecordAndQueryReplies(t *testing.T) {
	a := newArchive(t)
	now := time.Now()

	require.NoError(t, a.RecordReply(SentReply{
		AccountHandle: "mybot",
		PostID:        100,
		PostAuthor:    "alice",
		PostText:      "original",
		ReplyText:     "reply one",
		CreatedAt:     now.Add(-2 * time.Hour),
	}))
	require.NoError(t, a.RecordReply(SentReply{
		AccountHandle: "mybot",
		PostID:        101,
		PostAuthor:    "bob",
		ReplyText:     "reply two",
		DryRun:        true,
		CreatedAt:     now.Add(-1 * time.Hour),
	}))
	require.NoError(t, a.RecordReply(SentReply{
		AccountHandle: "otherbot",
		PostID:        50,
		ReplyText:     "ancient",
		CreatedAt:     now.Add(-48 * time.Hour),
	}))

	replies, err := a.RepliesSince(now.Add(-24 * time.Hour))
	require.NoError(t, err)
	require.Len(t, replies, 2)
	// Oldest first.
	assert.Equal(t, int64(100), replies[0].PostID)
	assert.Equal(t, int64(101), replies[1].PostID)
	assert.True(t, replies[1].DryRun)
	assert.Equal(t, "alice", replies[0].PostAuthor)
}

func TestArchiveRecordExchange(t *testing.T) {
	a := newArchive(t)
	require.NoError(t, a.RecordExchange(LLMExchange{
		Provider:    "anthropic",
		Model:       "claude-sonnet-4-20250514",
		Instruction: "triage",
		Payload:     `{"tweet_text":"hi"}`,
		Response:    `{"decision":"skip"}`,
	}))
	require.NoError(t, a.RecordExchange(LLMExchange{
		Provider: "gemini",
		Model:    "gemini-2.5-flash",
		Error:    "rate limited",
	}))
}

func TestArchiveDefaultsCreatedAt(t *testing.T) {
	a := newArchive(t)
	require.NoError(t, a.RecordReply(SentReply{AccountHandle: "mybot", PostID: 7, ReplyText: "x"}))

	replies, err := a.RepliesSince(time.Now().Add(-time.Minute))
	require.NoError(t, err)
	require.Len(t, replies, 1)
	assert.WithinDuration(t, time.Now(), replies[0].CreatedAt, time.Minute)
}
