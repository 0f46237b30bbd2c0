// Package quiz generates study quizzes from the extracted text of
// registered documents.
//
// A Generator concatenates the text of the requested documents (each capped
// at DefaultMaxDocumentChars), asks the model for questions in a fixed JSON
// shape and parses the reply:
//
//	g := quiz.New(llm, registry)
//	q, err := g.Generate(ctx, quiz.Request{
//		DocumentIDs:   []string{"physics101"},
//		NumQuestions:  3,
//		QuestionTypes: []quiz.QuestionType{quiz.MultipleChoice, quiz.ShortAnswer},
//		Difficulty:    quiz.DifficultyHard,
//	})
//
// GenerateTopic narrows the questions to one topic.
package quiz
