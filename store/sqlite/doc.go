// Package sqlite stores chat sessions and the document registry in a single
// SQLite database file.
//
// Three tables are created on open, all sharing a configurable prefix:
// sessions, messages (keyed by session and sequence number) and documents.
// Appending messages runs in one transaction, so a question and its answer
// are committed together.
//
//	s, err := sqlite.New(sqlite.Options{Path: "./data/educhat.db"})
//	if err != nil {
//		return err
//	}
//	defer s.Close()
//
// Use ":memory:" as the path for a throwaway database.
package sqlite
