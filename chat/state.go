package chat

import (
	"errors"
	"fmt"
	"strings"

	"github.com/smallnest/educhat/rag"
	"github.com/smallnest/educhat/rag/chain"
)

// State is a step of a conversation turn.
type State string

const (
	StateIdle               State = "idle"
	StateResolvingDocuments State = "resolving_documents"
	StateRetrieving         State = "retrieving"
	StateGenerating         State = "generating"
	StateCompleted          State = "completed"
	StateErrored            State = "errored"
)

// Terminal reports whether no further transition is allowed from s.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateErrored
}

// Reply is the outcome of one turn. A fallback reply still carries an
// Answer, which is the text stored as the assistant message.
type Reply struct {
	SessionID string
	Question  string
	Mode      chain.Mode
	Answer    string
	Sources   []rag.SourceRef

	// Fallback is set when Answer is a canned message rather than a
	// generated one. Err carries the classified failure.
	Fallback bool
	Err      error

	// Unusable lists why requested documents were left out of the turn.
	Unusable []string
	// Used holds the document IDs the answer was retrieved from.
	Used []string

	States []State
}

// State returns the last state the turn reached.
func (r *Reply) State() State {
	if len(r.States) == 0 {
		return StateIdle
	}
	return r.States[len(r.States)-1]
}

func (r *Reply) enter(s State) {
	if r.State().Terminal() {
		return
	}
	r.States = append(r.States, s)
}

func newReply(sessionID, question string, mode chain.Mode) *Reply {
	return &Reply{
		SessionID: sessionID,
		Question:  question,
		Mode:      mode,
		Sources:   []rag.SourceRef{},
		States:    []State{StateIdle},
	}
}

const (
	unusableDocumentsText = "I'm sorry, I couldn't access the documents due to the following issues: %s. " +
		"Please try again later or select different documents."
	noValidDocumentsText = "I'm sorry, I couldn't access the documents. This could be due to processing issues " +
		"or missing embeddings. Please try again later or select different documents."
	processingErrorText = "I'm sorry, I encountered an error while processing your request. " +
		"Please try again or select different documents."
)

// fail turns r into a fallback reply for err.
func (r *Reply) fail(err error) {
	r.Fallback = true
	r.Err = err
	r.Sources = []rag.SourceRef{}
	r.Answer = fallbackText(err, r.Unusable)
	r.enter(StateErrored)
}

func fallbackText(err error, unusable []string) string {
	switch {
	case errors.Is(err, rag.ErrNoValidDocuments) && len(unusable) > 0:
		return fmt.Sprintf(unusableDocumentsText, strings.Join(unusable, ". "))
	case errors.Is(err, rag.ErrNoValidDocuments):
		return noValidDocumentsText
	default:
		return processingErrorText
	}
}

func outcome(r *Reply) string {
	if r.Fallback {
		return "fallback"
	}
	return "completed"
}
