package chat

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/smallnest/educhat/rag"
	"github.com/smallnest/educhat/store"
)

// Ingest extracts the text of the file at path, registers it as a document
// and builds its index. When title is empty the extracted title is used.
//
// A registered document whose index could not be built is returned together
// with the error; its status is store.StatusError and a later turn or
// Reprocess retries the build.
func (s *Service) Ingest(ctx context.Context, path, title string) (*store.Document, error) {
	extracted, err := s.extractors.ExtractFile(ctx, path)
	if err != nil {
		return nil, err
	}
	if title == "" {
		title = extracted.Title
	}

	doc := &store.Document{
		ID:        uuid.NewString(),
		Title:     title,
		FileType:  extracted.FileType,
		FilePath:  path,
		Status:    store.StatusProcessing,
		CreatedAt: s.now().UTC(),
		Text:      extracted.Text,
	}
	if s.uploadDir != "" {
		dst := filepath.Join(s.uploadDir, doc.ID+strings.ToLower(filepath.Ext(path)))
		if err := copyFile(path, dst); err != nil {
			return nil, fmt.Errorf("storing upload %s: %w", filepath.Base(path), err)
		}
		doc.FilePath = dst
	}

	if err := s.documents.PutDocument(ctx, doc); err != nil {
		return nil, fmt.Errorf("registering document %s: %w", doc.ID, err)
	}
	s.logger.Info("registered %s as %s (%s, %v words)", filepath.Base(path), doc.ID, doc.FileType, extracted.Metadata["word_count"])

	if err := s.index(ctx, doc); err != nil {
		return doc, fmt.Errorf("indexing document %s: %w", doc.ID, err)
	}
	return doc, nil
}

// Reprocess drops the index of a registered document, evicts every chain
// built over it and indexes it again.
func (s *Service) Reprocess(ctx context.Context, documentID string) (*store.Document, error) {
	doc, err := s.documents.GetDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}

	if err := s.indexes.Invalidate(ctx, documentID); err != nil {
		return nil, fmt.Errorf("invalidating index of %s: %w", documentID, err)
	}
	n := s.chains.EvictDocument(documentID)
	s.logger.Info("reprocessing %s: %d chains evicted", documentID, n)

	if err := s.documents.SetStatus(ctx, documentID, store.StatusProcessing); err != nil {
		return nil, err
	}
	if err := s.index(ctx, doc); err != nil {
		return doc, fmt.Errorf("indexing document %s: %w", documentID, err)
	}
	return doc, nil
}

// Documents returns the registered documents ordered by creation time.
func (s *Service) Documents(ctx context.Context) ([]*store.Document, error) {
	return s.documents.ListDocuments(ctx)
}

// Document returns one registry record.
func (s *Service) Document(ctx context.Context, id string) (*store.Document, error) {
	return s.documents.GetDocument(ctx, id)
}

// Index returns the stored index of a document, or rag.ErrIndexNotFound.
func (s *Service) Index(ctx context.Context, documentID string) (*rag.DocumentIndex, error) {
	return s.indexes.Load(ctx, documentID)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
