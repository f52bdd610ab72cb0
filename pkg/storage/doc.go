// Package storage provides the optional local message history store.
//
// When history is enabled in the configuration, the client records every
// incoming chat message so bots can answer "what did I miss" style queries
// without re-reading the peer's databases.
//
// Usage:
//
//	store, err := storage.NewHistoryStore("./messages.db")
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer store.Close()
//
//	err = store.SaveMessage(msg)
//	recent, err := store.RecentMessages(50)
//
// The Store interface allows alternative backends; the provided
// implementation uses SQLite.
package storage
