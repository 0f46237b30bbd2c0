// Package memory holds conversation history for a retrieval chain.
//
// Buffer stores the messages of one chat and renders the recent ones as a
// "Human:/AI:" transcript for prompt templates. It can be seeded from a
// stored session log so a restarted process keeps the conversation going:
//
//	buf := memory.NewBuffer(10) // last 10 turns in prompts
//	buf.AddTurn("What is inertia?", "Resistance to changes in motion.")
//	prompt := buf.History()
package memory
