package quiz

import (
	"github.com/tmc/langchaingo/prompts"
)

var difficultyInstructions = map[Difficulty]string{
	DifficultyEasy:   "Make the questions straightforward, covering basic concepts from the documents.",
	DifficultyMedium: "Make the questions moderately challenging, requiring some understanding of concepts from the documents.",
	DifficultyHard:   "Make the questions challenging, requiring deep understanding of concepts from the documents.",
}

const systemTemplate = `You are a quiz generator AI.
Generate {{.num_questions}} {{.difficulty}} level questions{{.topic_clause}} based on the document content I provide.
{{.difficulty_instruction}}

Include the following question types: {{.question_types}}.

For multiple choice questions:
- Include 4 options
- Only ONE option should be correct
- Make the options plausible and relevant to the question

For true/false questions:
- The answer should be either "True" or "False"

For short answer questions:
- The answer should be concise, typically 1-3 words

Each question must include:
1. The question text
2. Question type (multiple_choice, true_false, or short_answer)
3. Options (for multiple choice)
4. The correct answer
5. A brief explanation of why the answer is correct

All questions must be directly answerable from the document content provided.

DOCUMENT CONTENT:
{{.content}}

Return the quiz in the following JSON format:
` + "```json" + `
{
  "topic": "Optional topic name",
  "questions": [
    {
      "question": "Question text",
      "type": "question_type",
      "options": ["Option 1", "Option 2", "Option 3", "Option 4"],
      "answer": "Correct answer",
      "explanation": "Explanation of the correct answer"
    }
  ]
}
` + "```"

const humanTemplate = `Generate a {{.difficulty}} level quiz with {{.num_questions}} questions of types: {{.question_types}}.{{.topic_request}}`

// Prompt returns the chat template used to ask for a quiz.
func Prompt() prompts.ChatPromptTemplate {
	return prompts.NewChatPromptTemplate([]prompts.MessageFormatter{
		prompts.NewSystemMessagePromptTemplate(systemTemplate,
			[]string{"num_questions", "difficulty", "topic_clause", "difficulty_instruction", "question_types", "content"}),
		prompts.NewHumanMessagePromptTemplate(humanTemplate,
			[]string{"difficulty", "num_questions", "question_types", "topic_request"}),
	})
}
