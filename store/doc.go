// Package store defines persistence for conversation history.
//
// A HistoryStore keeps the messages of each chat session in order, so a
// window memory can be rebuilt after a restart or shared by several server
// replicas. The backends live in subpackages:
//
//   - store/memory: process-local maps, the default
//   - store/file: one JSON lines file per session
//   - store/redis: a Redis list per session
//   - store/sqlite: a single SQLite table
//   - store/postgres: a single PostgreSQL table accessed through pgx
//
// All implementations return ErrSessionNotFound from Load when a session has
// never been written, and ErrInvalidSession when the session ID is empty.
//
//	hs, err := sqlite.NewSqliteHistoryStore(sqlite.SqliteOptions{Path: "history.db"})
//	if err != nil {
//		return err
//	}
//	defer hs.Close()
//
//	err = hs.Append(ctx, "session-1", &store.Message{Role: "human", Content: "hi"})
package store
