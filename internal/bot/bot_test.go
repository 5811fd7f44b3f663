package bot

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jshapland/replybot/internal/store"
	"github.com/jshapland/replybot/internal/types"
)

type fakeClient struct {
	posts       []types.Post
	fetchErr    error
	lastSinceID int64
	replies     []int64
	failPostIDs map[int64]bool
}

func (f *fakeClient) FetchRecent(ctx context.Context, maxResults int, sinceID int64) ([]types.Post, error) {
	f.lastSinceID = sinceID
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return f.posts, nil
}

func (f *fakeClient) PostReply(ctx context.Context, postID int64, text string) error {
	if f.failPostIDs[postID] {
		return errors.New("post failed")
	}
	f.replies = append(f.replies, postID)
	return nil
}

type fakeEngine struct {
	classifyFirst bool
	skipIDs       map[int64]bool
	draft         string
}

func (f *fakeEngine) ClassifyFirst() bool { return f.classifyFirst }

func (f *fakeEngine) Classify(ctx context.Context, post types.Post) types.ReplyDecision {
	if f.skipIDs[post.ID] {
		return types.ReplyDecision{ShouldReply: false, Reason: "off_topic"}
	}
	return types.ReplyDecision{ShouldReply: true, Reason: "relevant", Confidence: 0.9}
}

func (f *fakeEngine) Draft(ctx context.Context, post types.Post) string {
	return f.draft
}

type memoryStates struct {
	state store.BotState
	saves int
}

func (m *memoryStates) Load(ctx context.Context) (store.BotState, error) { return m.state, nil }

func (m *memoryStates) Save(ctx context.Context, s store.BotState) error {
	m.state = s
	m.saves++
	return nil
}

type fakeRecorder struct {
	replies []store.SentReply
}

func (f *fakeRecorder) RecordReply(r store.SentReply) error {
	f.replies = append(f.replies, r)
	return nil
}

func passthrough(text string, limit int) string { return strings.TrimSpace(text) }

func post(id int64, handle string) types.Post {
	return types.Post{ID: id, Text: "post " + handle, AuthorHandle: handle}
}

func newTestBot(cfg Config, client *fakeClient, engine *fakeEngine, states *memoryStates, rec *fakeRecorder) *Bot {
	if cfg.ReplyLimit == 0 {
		cfg.ReplyLimit = 280
	}
	var dec Decider
	if engine != nil {
		dec = engine
	}
	var r ReplyRecorder
	if rec != nil {
		r = rec
	}
	return New(cfg, client, dec, states, passthrough, r)
}

func TestCycleEmptyFetch(t *testing.T) {
	client := &fakeClient{}
	states := &memoryStates{}
	b := newTestBot(Config{Handle: "mybot"}, client, &fakeEngine{draft: "hi"}, states, nil)

	sent, err := b.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, sent)
	// State is saved unchanged even on an empty batch.
	assert.Equal(t, 1, states.saves)
	assert.Equal(t, int64(0), states.state.LastSeen())
}

func TestCycleRepliesAndAdvancesWatermark(t *testing.T) {
	client := &fakeClient{posts: []types.Post{post(300, "alice"), post(200, "bob"), post(100, "carol")}}
	states := &memoryStates{}
	rec := &fakeRecorder{}
	b := newTestBot(Config{Handle: "mybot"}, client, &fakeEngine{draft: "thanks!"}, states, rec)

	sent, err := b.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, sent)
	assert.Equal(t, []int64{300, 200, 100}, client.replies)
	assert.Equal(t, int64(300), states.state.LastSeen())
	assert.ElementsMatch(t, []int64{100, 200, 300}, states.state.ProcessedIDs)
	require.Len(t, rec.replies, 3)
	assert.Equal(t, "mybot", rec.replies[0].AccountHandle)
	assert.False(t, rec.replies[0].DryRun)
}

func TestCycleIgnoreListSkips(t *testing.T) {
	client := &fakeClient{posts: []types.Post{post(3, "Alice"), post(2, "Spammer"), post(1, "bob")}}
	states := &memoryStates{}
	b := newTestBot(Config{
		Handle:        "mybot",
		IgnoreHandles: []string{" @SPAMMER "},
	}, client, &fakeEngine{draft: "hi"}, states, nil)

	sent, err := b.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, sent)
	assert.Equal(t, []int64{3, 1}, client.replies)
	// Ignored posts still count as processed and still move the watermark.
	assert.ElementsMatch(t, []int64{1, 2, 3}, states.state.ProcessedIDs)
	assert.Equal(t, int64(3), states.state.LastSeen())
}

func TestCycleSkipsOwnPosts(t *testing.T) {
	client := &fakeClient{posts: []types.Post{post(2, "MyBot"), post(1, "alice")}}
	states := &memoryStates{}
	b := newTestBot(Config{Handle: "mybot"}, client, &fakeEngine{draft: "hi"}, states, nil)

	sent, err := b.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
	assert.Equal(t, []int64{1}, client.replies)
	assert.ElementsMatch(t, []int64{1, 2}, states.state.ProcessedIDs)
}

func TestCycleDedupAcrossCycles(t *testing.T) {
	client := &fakeClient{posts: []types.Post{post(10, "alice"), post(9, "bob")}}
	states := &memoryStates{state: store.BotState{ProcessedIDs: []int64{10}}}
	b := newTestBot(Config{Handle: "mybot"}, client, &fakeEngine{draft: "hi"}, states, nil)

	sent, err := b.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
	assert.Equal(t, []int64{9}, client.replies)
	// 10 is not re-appended to the history.
	assert.ElementsMatch(t, []int64{10, 9}, states.state.ProcessedIDs)
}

func TestCyclePostFailureRetriedNextCycle(t *testing.T) {
	client := &fakeClient{
		posts:       []types.Post{post(5, "alice"), post(4, "bob")},
		failPostIDs: map[int64]bool{5: true},
	}
	states := &memoryStates{}
	b := newTestBot(Config{Handle: "mybot"}, client, &fakeEngine{draft: "hi"}, states, nil)

	sent, err := b.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
	// The failed post is not marked processed, but the watermark still
	// advances over it.
	assert.ElementsMatch(t, []int64{4}, states.state.ProcessedIDs)
	assert.Equal(t, int64(5), states.state.LastSeen())

	// Next cycle: the same post comes back and succeeds this time.
	client.failPostIDs = nil
	sent, err = b.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
	assert.ElementsMatch(t, []int64{4, 5}, states.state.ProcessedIDs)
}

func TestCycleClassifierSkip(t *testing.T) {
	client := &fakeClient{posts: []types.Post{post(2, "alice"), post(1, "bob")}}
	states := &memoryStates{}
	engine := &fakeEngine{classifyFirst: true, skipIDs: map[int64]bool{2: true}, draft: "hi"}
	b := newTestBot(Config{Handle: "mybot"}, client, engine, states, nil)

	sent, err := b.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
	assert.Equal(t, []int64{1}, client.replies)
	assert.ElementsMatch(t, []int64{1, 2}, states.state.ProcessedIDs)
}

func TestCycleEmptyDraftSkips(t *testing.T) {
	client := &fakeClient{posts: []types.Post{post(1, "alice")}}
	states := &memoryStates{}
	b := newTestBot(Config{Handle: "mybot"}, client, &fakeEngine{draft: "   "}, states, nil)

	sent, err := b.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, sent)
	assert.Empty(t, client.replies)
	assert.ElementsMatch(t, []int64{1}, states.state.ProcessedIDs)
}

func TestCycleNoEngineSkipsAll(t *testing.T) {
	client := &fakeClient{posts: []types.Post{post(2, "alice"), post(1, "bob")}}
	states := &memoryStates{}
	b := newTestBot(Config{Handle: "mybot"}, client, nil, states, nil)

	sent, err := b.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, sent)
	assert.Empty(t, client.replies)
	// Posts are consumed so the same batch is never reconsidered.
	assert.ElementsMatch(t, []int64{1, 2}, states.state.ProcessedIDs)
	assert.Equal(t, int64(2), states.state.LastSeen())
}

func TestCycleDryRun(t *testing.T) {
	client := &fakeClient{posts: []types.Post{post(1, "alice")}}
	states := &memoryStates{}
	rec := &fakeRecorder{}
	b := newTestBot(Config{Handle: "mybot", DryRun: true}, client, &fakeEngine{draft: "hi"}, states, rec)

	sent, err := b.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, sent)
	assert.Empty(t, client.replies)
	assert.ElementsMatch(t, []int64{1}, states.state.ProcessedIDs)
	require.Len(t, rec.replies, 1)
	assert.True(t, rec.replies[0].DryRun)
}

func TestCycleWatermarkMonotonic(t *testing.T) {
	client := &fakeClient{posts: []types.Post{post(50, "alice")}}
	states := &memoryStates{}
	states.state.SetLastSeen(500)
	b := newTestBot(Config{Handle: "mybot"}, client, &fakeEngine{draft: "hi"}, states, nil)

	_, err := b.RunCycle(context.Background())
	require.NoError(t, err)
	// A batch of lower IDs never moves the watermark backwards.
	assert.Equal(t, int64(500), states.state.LastSeen())
}

func TestCycleSinceIDPassedToFetch(t *testing.T) {
	client := &fakeClient{}
	states := &memoryStates{}
	states.state.SetLastSeen(42)
	b := newTestBot(Config{Handle: "mybot"}, client, &fakeEngine{draft: "hi"}, states, nil)

	_, err := b.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(42), client.lastSinceID)
}

func TestCycleFetchErrorAborts(t *testing.T) {
	client := &fakeClient{fetchErr: errors.New("boom")}
	states := &memoryStates{}
	b := newTestBot(Config{Handle: "mybot"}, client, &fakeEngine{draft: "hi"}, states, nil)

	_, err := b.RunCycle(context.Background())
	require.Error(t, err)
	assert.Equal(t, 0, states.saves)
}
