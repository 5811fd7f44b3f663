package store

import (
	"database/sql"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Archive is an append-only SQLite record of what the bot did: replies it
// sent and every LLM exchange. The cycle loop never reads it; it exists for
// the daily report and for debugging.
type Archive struct {
	db *sql.DB
}

// SentReply is one row of the reply history.
type SentReply struct {
	ID            int64
	AccountHandle string
	PostID        int64
	PostAuthor    string
	PostText      string
	ReplyText     string
	DryRun        bool
	CreatedAt     time.Time
}

// LLMExchange is one prompt/response pair sent to a provider.
type LLMExchange struct {
	Provider    string
	Model       string
	Instruction string
	Payload     string
	Response    string
	Error       string
}

// OpenArchive opens (or creates) the archive database at dbPath.
func OpenArchive(dbPath string) (*Archive, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	a := &Archive{db: db}
	if err := a.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return a, nil
}

// Close closes the database connection
func (a *Archive) Close() error {
	return a.db.Close()
}

func (a *Archive) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS replies (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		account_handle TEXT NOT NULL,
		post_id INTEGER NOT NULL,
		post_author TEXT,
		post_text TEXT,
		reply_text TEXT NOT NULL,
		dry_run BOOLEAN NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS llm_exchanges (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		provider TEXT NOT NULL,
		model TEXT NOT NULL,
		instruction TEXT,
		payload TEXT,
		response TEXT,
		error TEXT,
		created_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_replies_created_at ON replies(created_at);
	CREATE INDEX IF NOT EXISTS idx_exchanges_created_at ON llm_exchanges(created_at);
	`
	_, err := a.db.Exec(schema)
	return err
}

// RecordReply appends a sent (or dry-run) reply to the history.
func (a *Archive) RecordReply(r SentReply) error {
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	_, err := a.db.Exec(`
		INSERT INTO replies (account_handle, post_id, post_author, post_text, reply_text, dry_run, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, r.AccountHandle, r.PostID, r.PostAuthor, r.PostText, r.ReplyText, r.DryRun, r.CreatedAt)
	return err
}

// RecordExchange appends an LLM prompt/response pair.
func (a *Archive) RecordExchange(e LLMExchange) error {
	_, err := a.db.Exec(`
		INSERT INTO llm_exchanges (provider, model, instruction, payload, response, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, e.Provider, e.Model, e.Instruction, e.Payload, e.Response, e.Error, time.Now())
	return err
}

// RepliesSince returns replies recorded at or after the given instant,
// oldest first.
func (a *Archive) RepliesSince(since time.Time) ([]SentReply, error) {
	rows, err := a.db.Query(`
		SELECT id, account_handle, post_id, post_author, post_text, reply_text, dry_run, created_at
		FROM replies
		WHERE created_at >= ?
		ORDER BY created_at ASC
	`, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var replies []SentReply
	for rows.Next() {
		var r SentReply
		err := rows.Scan(&r.ID, &r.AccountHandle, &r.PostID, &r.PostAuthor,
			&r.PostText, &r.ReplyText, &r.DryRun, &r.CreatedAt)
		if err != nil {
			return nil, err
		}
		replies = append(replies, r)
	}
	return replies, rows.Err()
}
