// Package openai provides an llms.Model and a rag.Embedder backed by the
// OpenAI API, or any endpoint that speaks the same protocol.
//
// The API key is read from OPENAI_API_KEY and the endpoint from
// OPENAI_BASE_URL unless set with options. Rate limited and 5xx responses
// are retried with exponential backoff.
package openai
