package rag

import "errors"

// Index errors.
var (
	// ErrEmbeddingUnavailable means the embedding capability failed or could not be reached.
	ErrEmbeddingUnavailable = errors.New("embedding capability unavailable")
	// ErrEmptyContent means the document text produced no chunks.
	ErrEmptyContent = errors.New("document has no extractable content")
	// ErrIndexNotFound is returned by persisters when no index is stored for a document.
	ErrIndexNotFound = errors.New("index not found")
	// ErrModelMismatch means an index was built with a different embedding model
	// or dimension than the rest of a retrieval scope.
	ErrModelMismatch = errors.New("embedding model mismatch")
)

// Fusion and chain errors.
var (
	// ErrNoDocuments means a chain was requested for an empty document set.
	ErrNoDocuments = errors.New("no documents selected")
	// ErrNoValidDocuments means every requested document failed to index.
	ErrNoValidDocuments = errors.New("no valid documents")
	// ErrDocumentNotFound means the registry has no record of a requested document.
	ErrDocumentNotFound = errors.New("document not found")
	// ErrGenerationFailed wraps failures of the generation capability.
	ErrGenerationFailed = errors.New("generation failed")
)
