package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"

	"github.com/smallnest/educhat/rag"
)

const indexFileName = "index.json"

// ErrInvalidDocumentID is returned for IDs that cannot name an index
// directory, such as "" or "..".
var ErrInvalidDocumentID = errors.New("invalid document id")

// FilePersister stores each document index as JSON under
// <dir>/<document_id>/index.json. Writes go to a temporary file in the same
// directory and are renamed into place.
type FilePersister struct {
	dir string
}

var _ Persister = (*FilePersister)(nil)

// NewFilePersister creates the index directory if needed.
func NewFilePersister(dir string) (*FilePersister, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create index directory %s: %w", dir, err)
	}
	return &FilePersister{dir: dir}, nil
}

// documentDir maps documentID to one directory directly below the index
// directory. PathEscape takes care of separators; "." and ".." survive
// escaping and are rejected.
func (p *FilePersister) documentDir(documentID string) (string, error) {
	name := url.PathEscape(documentID)
	if name == "" || name == "." || name == ".." || filepath.Base(name) != name {
		return "", fmt.Errorf("%w: %q", ErrInvalidDocumentID, documentID)
	}
	return filepath.Join(p.dir, name), nil
}

// Path returns the file an index for documentID is stored in, or "" when
// the ID is not usable as a directory name.
func (p *FilePersister) Path(documentID string) string {
	dir, err := p.documentDir(documentID)
	if err != nil {
		return ""
	}
	return filepath.Join(dir, indexFileName)
}

// Save writes the index atomically
func (p *FilePersister) Save(ctx context.Context, idx *rag.DocumentIndex) error {
	dir, err := p.documentDir(idx.DocumentID)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create index directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, indexFileName+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp index file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := json.NewEncoder(tmp).Encode(idx); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to encode index %s: %w", idx.DocumentID, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write index %s: %w", idx.DocumentID, err)
	}

	path := filepath.Join(dir, indexFileName)
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to move index into place: %w", err)
	}

	idx.PersistedPath = path
	return nil
}

// Load reads and validates the stored index
func (p *FilePersister) Load(ctx context.Context, documentID string) (*rag.DocumentIndex, error) {
	dir, err := p.documentDir(documentID)
	if err != nil {
		return nil, err
	}
	path := filepath.Join(dir, indexFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, rag.ErrIndexNotFound
		}
		return nil, fmt.Errorf("failed to read index %s: %w", documentID, err)
	}

	var idx rag.DocumentIndex
	if err := json.Unmarshal(data, &idx); err != nil {
		return nil, fmt.Errorf("failed to decode index %s: %w", documentID, err)
	}
	if err := idx.Validate(); err != nil {
		return nil, err
	}

	idx.PersistedPath = path
	return &idx, nil
}

// Delete removes the document's index directory
func (p *FilePersister) Delete(ctx context.Context, documentID string) error {
	dir, err := p.documentDir(documentID)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("failed to delete index %s: %w", documentID, err)
	}
	return nil
}
