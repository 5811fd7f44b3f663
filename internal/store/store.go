// Package store provides the durable state for the bot: per-account polling
// state, OAuth2 tokens, and an append-only archive of activity. State and
// tokens have JSON-file and Postgres backends; the archive is SQLite.
package store

import "context"

// DefaultMaxHistory bounds how many processed post IDs are retained.
const DefaultMaxHistory = 500

// StateStore persists BotState. Load never fails on a missing or corrupt
// record: it falls back to the empty state so a hand-edited or deleted file
// is a valid starting point.
type StateStore interface {
	Load(ctx context.Context) (BotState, error)
	Save(ctx context.Context, state BotState) error
}

// TokenStore persists the OAuth2 credential pair. Load returns (nil, nil)
// when no usable record exists. Implementations must not cache: every Load
// re-reads durable storage so tokens rotated by another process instance
// are picked up.
type TokenStore interface {
	Load(ctx context.Context) (*OAuth2Token, error)
	Save(ctx context.Context, token *OAuth2Token) error
}
