package chain

import (
	"github.com/tmc/langchaingo/prompts"
)

const standardTemplate = `You are an AI assistant helping with document-based questions.
Use the following pieces of retrieved context to answer the user's question.
If you don't know the answer, just say that you don't know, don't try to make up an answer.

Retrieved context:
{{.context}}

Chat History:
{{.chat_history}}

User: {{.question}}
AI Assistant:`

const eli5Template = `You are an AI assistant helping explain complex topics in simple terms.
Use the following pieces of retrieved context to answer the user's question.
Explain like you would to a 5-year-old using simple language, helpful analogies, and clear examples.
If you don't know the answer, just say that you don't know, don't try to make up an answer.

Retrieved context:
{{.context}}

Chat History:
{{.chat_history}}

User: {{.question}}
AI Assistant:`

const condenseTemplate = `Given the following conversation and a follow up question, rephrase the follow up question to be a standalone question, in its original language.

Chat History:
{{.chat_history}}
Follow Up Input: {{.question}}
Standalone question:`

var answerVariables = []string{"context", "chat_history", "question"}

// PromptFor returns the answer prompt template for mode.
func PromptFor(mode Mode) prompts.PromptTemplate {
	if mode == ModeELI5 {
		return prompts.NewPromptTemplate(eli5Template, answerVariables)
	}
	return prompts.NewPromptTemplate(standardTemplate, answerVariables)
}

// CondensePrompt rewrites a follow-up question into a standalone one.
func CondensePrompt() prompts.PromptTemplate {
	return prompts.NewPromptTemplate(condenseTemplate, []string{"chat_history", "question"})
}
