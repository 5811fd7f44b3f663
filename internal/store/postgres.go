package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres holds a connection pool shared by the per-account state and
// token stores. Rows are keyed by account handle so accounts stay isolated
// inside one database.
type Postgres struct {
	Pool *pgxpool.Pool
}

// NewPostgres connects to connStr and creates the schema if needed.
func NewPostgres(ctx context.Context, connStr string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}
	p := &Postgres{Pool: pool}
	if err := p.initSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return p, nil
}

func (p *Postgres) initSchema(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS bot_state (
			handle TEXT PRIMARY KEY,
			last_seen_id BIGINT,
			processed_ids BIGINT[] NOT NULL DEFAULT '{}'
		)`,
		`CREATE TABLE IF NOT EXISTS oauth_tokens (
			handle TEXT PRIMARY KEY,
			access_token TEXT NOT NULL,
			refresh_token TEXT NOT NULL,
			expires_at DOUBLE PRECISION,
			scope TEXT NOT NULL DEFAULT ''
		)`,
	}
	for _, q := range queries {
		if _, err := p.Pool.Exec(ctx, q); err != nil {
			return fmt.Errorf("failed to init schema: %w", err)
		}
	}
	return nil
}

// Close releases the pool.
func (p *Postgres) Close() {
	p.Pool.Close()
}

// StateStore returns the Postgres-backed StateStore for one account.
func (p *Postgres) StateStore(handle string, maxHistory int) *PostgresState {
	if maxHistory <= 0 {
		maxHistory = DefaultMaxHistory
	}
	return &PostgresState{pool: p.Pool, handle: handle, maxHistory: maxHistory}
}

// TokenStore returns the Postgres-backed TokenStore for one account.
func (p *Postgres) TokenStore(handle string) *PostgresTokens {
	return &PostgresTokens{pool: p.Pool, handle: handle}
}

// PostgresState implements StateStore on a bot_state row.
type PostgresState struct {
	pool       *pgxpool.Pool
	handle     string
	maxHistory int
}

// Load returns the stored state, or the empty state when no row exists.
func (s *PostgresState) Load(ctx context.Context) (BotState, error) {
	var state BotState
	err := s.pool.QueryRow(ctx,
		`SELECT last_seen_id, processed_ids FROM bot_state WHERE handle = $1`,
		s.handle,
	).Scan(&state.LastSeenID, &state.ProcessedIDs)
	if err == pgx.ErrNoRows {
		return BotState{}, nil
	}
	if err != nil {
		return BotState{}, fmt.Errorf("load state for %s: %w", s.handle, err)
	}
	return state, nil
}

// Save upserts the account's row, truncating the processed-ID history.
func (s *PostgresState) Save(ctx context.Context, state BotState) error {
	if len(state.ProcessedIDs) > s.maxHistory {
		state.ProcessedIDs = state.ProcessedIDs[len(state.ProcessedIDs)-s.maxHistory:]
	}
	if state.ProcessedIDs == nil {
		state.ProcessedIDs = []int64{}
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO bot_state (handle, last_seen_id, processed_ids) VALUES ($1, $2, $3)
		 ON CONFLICT (handle) DO UPDATE SET last_seen_id = $2, processed_ids = $3`,
		s.handle, state.LastSeenID, state.ProcessedIDs)
	if err != nil {
		return fmt.Errorf("save state for %s: %w", s.handle, err)
	}
	return nil
}

// PostgresTokens implements TokenStore on an oauth_tokens row.
type PostgresTokens struct {
	pool   *pgxpool.Pool
	handle string
}

// Load returns the stored token, or (nil, nil) when no row exists.
func (s *PostgresTokens) Load(ctx context.Context) (*OAuth2Token, error) {
	var token OAuth2Token
	err := s.pool.QueryRow(ctx,
		`SELECT access_token, refresh_token, expires_at, scope FROM oauth_tokens WHERE handle = $1`,
		s.handle,
	).Scan(&token.AccessToken, &token.RefreshToken, &token.ExpiresAt, &token.Scope)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load token for %s: %w", s.handle, err)
	}
	if token.AccessToken == "" || token.RefreshToken == "" {
		return nil, nil
	}
	return &token, nil
}

// Save upserts the account's token row.
func (s *PostgresTokens) Save(ctx context.Context, token *OAuth2Token) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO oauth_tokens (handle, access_token, refresh_token, expires_at, scope)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (handle) DO UPDATE SET
			access_token = $2, refresh_token = $3, expires_at = $4, scope = $5`,
		s.handle, token.AccessToken, token.RefreshToken, token.ExpiresAt, token.Scope)
	if err != nil {
		return fmt.Errorf("save token for %s: %w", s.handle, err)
	}
	return nil
}
