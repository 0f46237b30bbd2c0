// Package store defines the persistence model for chat sessions and the
// document registry, plus the interfaces every backend implements.
//
// Backends live in sub-packages:
//   - store/file: JSON files on disk, the default for a single user
//   - store/memory: process memory, used in tests and for throwaway runs
//   - store/sqlite: a single database file
//   - store/postgres: a shared PostgreSQL database (sessions only)
//   - store/redis: Redis keys with optional TTL (sessions only)
//
// # Sessions
//
// A Session owns an ordered message log and the set of documents it asks
// questions about. Backends must keep AppendMessages atomic per call, so a
// question and its answer are stored together or not at all.
//
//	sessions, err := sqlite.NewSessionStore(sqlite.Options{Path: "./educhat.db"})
//	if err != nil {
//	    return err
//	}
//	defer sessions.Close()
//
//	err = sessions.CreateSession(ctx, &store.Session{ID: id, DocumentIDs: docs})
//
// # Documents
//
// The DocumentRegistry records uploaded documents and their extracted text.
// The status moves uploaded -> processing -> processed, or to error when
// indexing fails. Processed is kept in step with the status.
package store
