// EduChat - Chat With Your Study Documents
//
// EduChat is a retrieval-augmented generation (RAG) core for study
// assistants. It turns uploaded documents into per-document vector indexes,
// fuses them into one searchable scope per question, and answers questions
// in a conversation that remembers earlier turns, citing the passages it
// used.
//
// # Quick Start
//
// Install the command:
//
//	go install github.com/smallnest/educhat/cmd/educhat@latest
//
// Index a document, start a session and ask:
//
//	export OPENAI_API_KEY=sk-...
//	educhat ingest notes/physics101.pdf
//	educhat session new --title "Exam prep" --docs <doc-id>
//	educhat ask <session-id> "What is inertia?"
//	educhat ask <session-id> --mode eli5 "And why does it matter?"
//
// # Library Use
//
//	indexes := store.NewIndexStore(embedder, &store.Options{Splitter: sp, Persister: p})
//	chains := chain.NewCache(fusion.New(indexes, registry), embedder, llm, chain.Options{})
//	svc, _ := chat.New(chat.Config{
//		Sessions:  sessions,
//		Documents: registry,
//		Indexes:   indexes,
//		Chains:    chains,
//	})
//
//	reply, err := svc.Ask(ctx, sessionID, []string{"physics101"}, chain.ModeStandard, "What is inertia?")
//	fmt.Println(reply.Answer)
//	for _, src := range reply.Sources {
//		fmt.Printf("%s: %s\n", src.SourceLabel, src.Excerpt)
//	}
//
// # Packages
//
//   - rag: shared data model, similarity metrics and the error taxonomy
//   - rag/splitter: character chunking with overlap
//   - rag/store: per-document index builds, persisted to files or Redis
//   - rag/fusion: combines document indexes for a multi-document question
//   - rag/retriever: top-k and MMR retrieval over a combined index
//   - rag/chain: conversational chains and the per-session chain cache
//   - rag/loader: text extraction for text, markdown, HTML, PDF and DOCX
//   - chat: the turn state machine, fallbacks and ingestion
//   - store: sessions and the document registry, with file, memory, SQLite,
//     Redis and PostgreSQL backends
//   - llms/openai: chat completions and embeddings over OpenAI compatible APIs
//   - memory: conversation buffer memory
//   - config, log, metrics: configuration, logging and Prometheus metrics
//
// # Failure Handling
//
// A failing embedding or generation provider never fails a turn. Documents
// that cannot be indexed are skipped, and when nothing usable is left the
// assistant answers with a fallback message naming the problem. Either way
// the question and the answer are both written to the session log.
package educhat // import "github.com/smallnest/educhat"
