// Package rag holds the data model shared by the retrieval packages.
//
// A document's text is split into Chunks, each embedded into a vector. The
// chunks, vectors and document metadata form a DocumentIndex, built and
// persisted once per document by rag/store. A question over several
// documents searches a CombinedIndex, the union of their indexes built by
// rag/fusion, and every retrieved chunk is reported back as a SourceRef.
//
// # Embedders
//
// The Embedder interface is the embedding capability:
//
//	type Embedder interface {
//		EmbedDocument(ctx context.Context, text string) ([]float32, error)
//		EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
//		GetDimension() int
//	}
//
// Embedders that also implement ModelIdentifier have their model recorded in
// every index they build, so a model change triggers a rebuild. Any
// langchaingo embeddings.Embedder can be adapted:
//
//	emb := rag.NewLangChainEmbedder(lcEmbedder, "text-embedding-3-small")
//
// # Similarity
//
// Metric selects how chunks are ranked: MetricCosine (higher is closer) or
// MetricL2 (scored as 1/(1+d) for distance d, so higher is still closer).
//
// # Errors
//
// Errors are sentinels checked with errors.Is:
//
//   - ErrEmbeddingUnavailable, ErrEmptyContent: a document could not be indexed
//   - ErrNoDocuments: a question named no documents
//   - ErrNoValidDocuments: none of the named documents could be used
//   - ErrGenerationFailed: the language model failed
package rag
