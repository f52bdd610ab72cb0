package storage

import "wcferry/pkg/protocol"

// Store is the message history interface
type Store interface {
	// SaveMessage persists one incoming chat message
	SaveMessage(msg *protocol.ChatMessage) error
	// RecentMessages returns the newest messages, newest first
	RecentMessages(limit int) ([]*protocol.ChatMessage, error)
	// MessagesFrom returns the newest messages from one sender, newest first
	MessagesFrom(sender string, limit int) ([]*protocol.ChatMessage, error)
	// Count returns the number of stored messages
	Count() (int64, error)
	// Close releases the underlying database
	Close() error
}
