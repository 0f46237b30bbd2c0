// Package chat coordinates conversation turns over the retrieval core.
//
// A Service resolves the documents of a turn, indexing any that are not yet
// indexed, looks up the session's chain in the chain cache and asks it the
// question. Failures of the embedding or generation capability never reach
// the caller: the turn ends with a canned fallback answer, and the user
// question and the assistant answer are both appended to the session log.
//
//	svc, err := chat.New(chat.Config{
//	    Sessions:  sessions,
//	    Documents: documents,
//	    Indexes:   indexes,
//	    Chains:    chains,
//	})
//	if err != nil {
//	    return err
//	}
//
//	sess, _ := svc.CreateSession(ctx, "Exam prep", []string{"physics101"})
//	reply, err := svc.AskSession(ctx, sess.ID, chain.ModeStandard, "What is inertia?")
//
// Each turn moves through Idle, ResolvingDocuments, Retrieving, Generating
// and ends in Completed or Errored. Reply.States records the path taken.
package chat
