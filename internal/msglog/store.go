// Package msglog persists a rolling log of conversation text so the draft
// pipeline can assemble recent context. WhatsApp offers no on-demand history
// fetch, so every inbound and outbound text is recorded as it happens.
package msglog

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3" // sqlite driver
)

// keepPerPeer caps the retained rows per conversation; older rows are pruned.
const keepPerPeer = 500

// Entry is one logged message.
type Entry struct {
	FromMe    bool
	Text      string
	Timestamp time.Time
}

// Store is a sqlite-backed message log. Safe for concurrent use
// (database/sql serializes access to the single connection pool).
type Store struct {
	db *sql.DB
}

// Open creates or opens the log database at path and ensures the schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?_foreign_keys=1&_journal_mode=WAL", path))
	if err != nil {
		return nil, fmt.Errorf("open message log: %w", err)
	}

	const schema = `
CREATE TABLE IF NOT EXISTS messages (
	id      INTEGER PRIMARY KEY AUTOINCREMENT,
	peer_id INTEGER NOT NULL,
	from_me INTEGER NOT NULL,
	text    TEXT    NOT NULL,
	ts      INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_messages_peer ON messages(peer_id, id);`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure message log schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Record appends one message to a peer's log and prunes entries beyond the
// per-peer cap.
func (s *Store) Record(ctx context.Context, peerID int64, fromMe bool, text string, ts time.Time) error {
	if _, err := s.db.ExecContext(ctx,
		"INSERT INTO messages (peer_id, from_me, text, ts) VALUES (?, ?, ?, ?)",
		peerID, fromMe, text, ts.Unix(),
	); err != nil {
		return fmt.Errorf("record message: %w", err)
	}

	_, err := s.db.ExecContext(ctx, `
DELETE FROM messages WHERE peer_id = ? AND id NOT IN (
	SELECT id FROM messages WHERE peer_id = ? ORDER BY id DESC LIMIT ?
)`, peerID, peerID, keepPerPeer)
	if err != nil {
		return fmt.Errorf("prune message log: %w", err)
	}
	return nil
}

// Recent returns up to limit messages for peer, newest first.
func (s *Store) Recent(ctx context.Context, peerID int64, limit int) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT from_me, text, ts FROM messages WHERE peer_id = ? ORDER BY id DESC LIMIT ?",
		peerID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query message log: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var fromMe int
		var ts int64
		if err := rows.Scan(&fromMe, &e.Text, &ts); err != nil {
			return nil, fmt.Errorf("scan message log row: %w", err)
		}
		e.FromMe = fromMe != 0
		e.Timestamp = time.Unix(ts, 0)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Close releases the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
