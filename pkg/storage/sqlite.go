package storage

import (
	"database/sql"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"wcferry/pkg/protocol"
)

// SQLiteStore implements Store using a SQLite backend
type SQLiteStore struct {
	db *sql.DB
	mu sync.RWMutex
}

// NewHistoryStore creates a SQLite-backed message history store
func NewHistoryStore(dbPath string) (Store, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}

	store := &SQLiteStore{db: db}
	if err := store.initDB(); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// initDB initializes the database schema
func (s *SQLiteStore) initDB() error {
	schema := `
	CREATE TABLE IF NOT EXISTS messages (
		id INTEGER PRIMARY KEY,
		kind INTEGER NOT NULL,
		is_self INTEGER NOT NULL DEFAULT 0,
		is_group INTEGER NOT NULL DEFAULT 0,
		timestamp INTEGER NOT NULL,
		room_id TEXT,
		sender TEXT,
		content TEXT,
		sign TEXT,
		thumb TEXT,
		extra TEXT,
		xml TEXT,
		received_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_messages_sender ON messages(sender);
	CREATE INDEX IF NOT EXISTS idx_messages_timestamp ON messages(timestamp DESC);
	`
	_, err := s.db.Exec(schema)
	return err
}

// SaveMessage persists one incoming chat message. Replays of the same
// message id overwrite the earlier row.
func (s *SQLiteStore) SaveMessage(msg *protocol.ChatMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO messages
		(id, kind, is_self, is_group, timestamp, room_id, sender, content, sign, thumb, extra, xml)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		int64(msg.ID), msg.Kind, msg.IsSelf, msg.IsGroup, msg.Timestamp,
		msg.RoomID, msg.Sender, msg.Content, msg.Sign, msg.Thumb, msg.Extra, msg.XML)
	return err
}

// RecentMessages returns the newest messages, newest first
func (s *SQLiteStore) RecentMessages(limit int) ([]*protocol.ChatMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT id, kind, is_self, is_group, timestamp, room_id, sender, content, sign, thumb, extra, xml
		FROM messages ORDER BY timestamp DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMessages(rows)
}

// MessagesFrom returns the newest messages from one sender, newest first
func (s *SQLiteStore) MessagesFrom(sender string, limit int) ([]*protocol.ChatMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT id, kind, is_self, is_group, timestamp, room_id, sender, content, sign, thumb, extra, xml
		FROM messages WHERE sender = ? ORDER BY timestamp DESC, id DESC LIMIT ?`, sender, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMessages(rows)
}

// Count returns the number of stored messages
func (s *SQLiteStore) Count() (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	err := s.db.QueryRow(`SELECT COUNT(*) FROM messages`).Scan(&n)
	return n, err
}

// Close releases the underlying database
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

func scanMessages(rows *sql.Rows) ([]*protocol.ChatMessage, error) {
	var out []*protocol.ChatMessage
	for rows.Next() {
		var (
			msg protocol.ChatMessage
			id  int64
		)
		err := rows.Scan(&id, &msg.Kind, &msg.IsSelf, &msg.IsGroup, &msg.Timestamp,
			&msg.RoomID, &msg.Sender, &msg.Content, &msg.Sign, &msg.Thumb, &msg.Extra, &msg.XML)
		if err != nil {
			return nil, err
		}
		msg.ID = uint64(id)
		out = append(out, &msg)
	}
	return out, rows.Err()
}
