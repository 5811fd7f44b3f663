// Package bot drives the polling cycle: fetch new posts, filter them
// against the processed history, decide and draft replies, post them, and
// advance the durable watermark.
package bot

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/jshapland/replybot/internal/store"
	"github.com/jshapland/replybot/internal/types"
)

// SearchPoster is the slice of the Twitter client the bot needs.
type SearchPoster interface {
	FetchRecent(ctx context.Context, maxResults int, sinceID int64) ([]types.Post, error)
	PostReply(ctx context.Context, postID int64, text string) error
}

// Decider is the slice of the decision engine the bot needs.
type Decider interface {
	ClassifyFirst() bool
	Classify(ctx context.Context, post types.Post) types.ReplyDecision
	Draft(ctx context.Context, post types.Post) string
}

// Sanitizer normalizes and length-limits a drafted reply.
type Sanitizer func(text string, limit int) string

// ReplyRecorder receives successfully handled replies for the archive.
type ReplyRecorder interface {
	RecordReply(r store.SentReply) error
}

// Config carries the resolved per-account settings the loop consumes.
type Config struct {
	Handle         string
	SearchQuery    string
	PollInterval   time.Duration
	MaxPostsPerRun int
	IgnoreHandles  []string
	DryRun         bool
	ReplyLimit     int
}

// Bot runs the polling loop for a single account. It owns no shared state:
// each account gets its own Bot, state store, and token store.
type Bot struct {
	cfg      Config
	client   SearchPoster
	engine   Decider // nil when no LLM credential is configured
	states   store.StateStore
	sanitize Sanitizer
	recorder ReplyRecorder // nil disables archiving
	ignored  map[string]bool
}

// New assembles a bot. engine and recorder may be nil. The bot's own handle
// is always in the ignore set so it never answers itself.
func New(cfg Config, client SearchPoster, engine Decider, states store.StateStore, sanitize Sanitizer, recorder ReplyRecorder) *Bot {
	ignored := make(map[string]bool, len(cfg.IgnoreHandles)+1)
	for _, h := range append([]string{cfg.Handle}, cfg.IgnoreHandles...) {
		h = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(h), "@"))
		if h != "" {
			ignored[h] = true
		}
	}
	return &Bot{
		cfg:      cfg,
		client:   client,
		engine:   engine,
		states:   states,
		sanitize: sanitize,
		recorder: recorder,
		ignored:  ignored,
	}
}

// Run polls until ctx is cancelled. The inter-cycle sleep is interrupted by
// cancellation so shutdown does not wait out the poll interval.
func (b *Bot) Run(ctx context.Context) {
	log.Printf("[%s] Auto-reply bot started; polling every %s", b.cfg.Handle, b.cfg.PollInterval)
	if b.cfg.DryRun {
		log.Printf("[%s] Dry run mode enabled; replies will not be posted", b.cfg.Handle)
	}
	for {
		if ctx.Err() != nil {
			log.Printf("[%s] Stop signal received; exiting bot loop", b.cfg.Handle)
			return
		}
		replies, err := b.RunCycle(ctx)
		if err != nil {
			log.Printf("[%s] Cycle failed: %v", b.cfg.Handle, err)
		} else {
			log.Printf("[%s] Cycle complete. Replies sent: %d", b.cfg.Handle, replies)
		}
		select {
		case <-time.After(b.cfg.PollInterval):
		case <-ctx.Done():
			log.Printf("[%s] Stop signal received; exiting bot loop", b.cfg.Handle)
			return
		}
	}
}

// RunCycle processes one batch and returns the number of replies sent.
// Fetch and state-store faults abort the cycle (the next cycle retries from
// the same watermark); per-post faults are logged and skipped over.
func (b *Bot) RunCycle(ctx context.Context) (int, error) {
	log.Printf("[%s] Fetching posts for query %q", b.cfg.Handle, b.cfg.SearchQuery)
	state, err := b.states.Load(ctx)
	if err != nil {
		return 0, err
	}

	posts, err := b.client.FetchRecent(ctx, b.cfg.MaxPostsPerRun, state.LastSeen())
	if err != nil {
		return 0, err
	}
	if len(posts) == 0 {
		log.Printf("[%s] No posts found for query %q", b.cfg.Handle, b.cfg.SearchQuery)
		if err := b.states.Save(ctx, state); err != nil {
			return 0, err
		}
		return 0, nil
	}

	log.Printf("[%s] Fetched %d posts", b.cfg.Handle, len(posts))
	processed := make(map[int64]bool, len(state.ProcessedIDs))
	for _, id := range state.ProcessedIDs {
		processed[id] = true
	}

	// The watermark covers the whole batch, including skipped posts, so an
	// entirely-skipped batch still advances and is never re-fetched.
	highestSeen := state.LastSeen()
	repliesSent := 0

	markProcessed := func(id int64) {
		processed[id] = true
		state.ProcessedIDs = append(state.ProcessedIDs, id)
	}

	// Posts are walked in the order the client returns them, which is
	// popularity-ranked: when only part of the batch survives filtering,
	// high-engagement posts get answered first.
	for _, post := range posts {
		if post.ID > highestSeen {
			highestSeen = post.ID
		}
		if processed[post.ID] {
			log.Printf("[%s] Skipping already processed post %d", b.cfg.Handle, post.ID)
			continue
		}
		if b.ignored[strings.ToLower(post.AuthorHandle)] {
			log.Printf("[%s] Skipping post %d by ignored handle @%s", b.cfg.Handle, post.ID, post.AuthorHandle)
			markProcessed(post.ID)
			continue
		}

		preview := strings.Join(strings.Fields(post.Text), " ")
		log.Printf("[%s] Processing post %d by @%s: %s", b.cfg.Handle, post.ID, post.AuthorHandle, preview)

		if b.engine == nil {
			log.Printf("[%s] Skipping reply for post %d: no LLM credential configured", b.cfg.Handle, post.ID)
			markProcessed(post.ID)
			continue
		}

		if b.engine.ClassifyFirst() {
			decision := b.engine.Classify(ctx, post)
			if !decision.ShouldReply {
				log.Printf("[%s] Skipping post %d (@%s) | classifier=%s confidence=%.2f",
					b.cfg.Handle, post.ID, post.AuthorHandle, decision.Reason, decision.Confidence)
				markProcessed(post.ID)
				continue
			}
		}

		reply := b.sanitize(b.engine.Draft(ctx, post), b.cfg.ReplyLimit)
		if reply == "" {
			log.Printf("[%s] No reply generated for post %d", b.cfg.Handle, post.ID)
			markProcessed(post.ID)
			continue
		}
		log.Printf("[%s] Reply content for post %d: %s", b.cfg.Handle, post.ID, reply)

		if b.cfg.DryRun {
			log.Printf("[%s] Dry run enabled; not posting reply for post %d", b.cfg.Handle, post.ID)
			b.archiveReply(post, reply, true)
			markProcessed(post.ID)
			continue
		}

		log.Printf("[%s] Posting reply to post %d", b.cfg.Handle, post.ID)
		if err := b.client.PostReply(ctx, post.ID, reply); err != nil {
			// Not marked processed: the post is retried next cycle.
			log.Printf("[%s] Failed to post reply to post %d: %v", b.cfg.Handle, post.ID, err)
			continue
		}
		b.archiveReply(post, reply, false)
		markProcessed(post.ID)
		repliesSent++
	}

	if highestSeen > 0 {
		state.SetLastSeen(highestSeen)
	}
	if err := b.states.Save(ctx, state); err != nil {
		return repliesSent, err
	}
	return repliesSent, nil
}

func (b *Bot) archiveReply(post types.Post, reply string, dryRun bool) {
	if b.recorder == nil {
		return
	}
	err := b.recorder.RecordReply(store.SentReply{
		AccountHandle: b.cfg.Handle,
		PostID:        post.ID,
		PostAuthor:    post.AuthorHandle,
		PostText:      post.Text,
		ReplyText:     reply,
		DryRun:        dryRun,
	})
	if err != nil {
		log.Printf("[%s] Failed to archive reply for post %d: %v", b.cfg.Handle, post.ID, err)
	}
}
