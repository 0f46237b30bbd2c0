package store

import (
	"context"
	"sync"

	"github.com/smallnest/educhat/rag"
)

// MemoryPersister keeps indexes in process memory. Nothing survives a
// restart; it is used when no index backend is configured and in tests.
type MemoryPersister struct {
	mu      sync.RWMutex
	indexes map[string]*rag.DocumentIndex
	saves   int
}

var _ Persister = (*MemoryPersister)(nil)

// NewMemoryPersister creates an empty MemoryPersister
func NewMemoryPersister() *MemoryPersister {
	return &MemoryPersister{indexes: make(map[string]*rag.DocumentIndex)}
}

// Save stores the index
func (p *MemoryPersister) Save(ctx context.Context, idx *rag.DocumentIndex) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	idx.PersistedPath = "memory://" + idx.DocumentID
	p.indexes[idx.DocumentID] = idx
	p.saves++
	return nil
}

// Load returns the stored index
func (p *MemoryPersister) Load(ctx context.Context, documentID string) (*rag.DocumentIndex, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	idx, ok := p.indexes[documentID]
	if !ok {
		return nil, rag.ErrIndexNotFound
	}
	return idx, nil
}

// Delete removes the stored index
func (p *MemoryPersister) Delete(ctx context.Context, documentID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	delete(p.indexes, documentID)
	return nil
}

// Saves returns the number of successful Save calls.
func (p *MemoryPersister) Saves() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.saves
}
