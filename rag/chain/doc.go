// Package chain holds the conversational retrieval chains and the cache
// that shares them between turns.
//
// A chain is identified by a Key of session, document set and Mode. The
// document set is normalized, so asking about ["b", "a"] and ["a", "b"] in
// the same session and mode continues the same conversation. Each chain
// owns a retriever over the fused index of its documents and a fresh
// conversation buffer.
//
//	cache := chain.NewCache(fuser, embedder, llm, chain.Options{TopK: 5})
//	c, err := cache.GetOrCreate(ctx, sessionID, []string{"physics101"}, chain.ModeELI5)
//	if err != nil {
//	    return err
//	}
//	answer, err := c.Ask(ctx, "What is inertia?")
//
// Prompts follow two templates: ModeStandard answers directly from the
// retrieved context, ModeELI5 asks for simple language and analogies.
package chain
