package store

import (
	"context"
	"fmt"

	"github.com/cespare/xxhash/v2"

	"github.com/smallnest/educhat/rag"
)

// Persister stores built document indexes. Implementations must make Save
// atomic with respect to Load: a reader sees either the previous index or
// the new one, never a partial write.
type Persister interface {
	// Save stores idx, replacing any previous index for the same document,
	// and records where it was written in idx.PersistedPath.
	Save(ctx context.Context, idx *rag.DocumentIndex) error
	// Load returns the stored index or rag.ErrIndexNotFound.
	Load(ctx context.Context, documentID string) (*rag.DocumentIndex, error)
	// Delete removes the stored index. Deleting a missing index is not an error.
	Delete(ctx context.Context, documentID string) error
}

// ContentHash fingerprints document text so a changed document is rebuilt.
func ContentHash(text string) string {
	return fmt.Sprintf("%016x", xxhash.Sum64String(text))
}
