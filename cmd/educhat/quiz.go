package main

import (
	"encoding/json"
	"errors"

	"github.com/spf13/cobra"

	"github.com/smallnest/educhat/quiz"
)

func (c *cli) newQuizCmd() *cobra.Command {
	var (
		docs       []string
		num        int
		types      []string
		difficulty string
		topic      string
		asJSON     bool
	)

	cmd := &cobra.Command{
		Use:   "quiz",
		Short: "Generate a quiz from documents",
		Long: `Generates questions, answers and explanations from the extracted text of
the given documents. --topic narrows the questions to one subject.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(docs) == 0 {
				return errors.New("at least one --docs document ID is required")
			}
			req := quiz.Request{
				DocumentIDs:  docs,
				NumQuestions: num,
				Difficulty:   quiz.Difficulty(difficulty),
			}
			for _, t := range types {
				req.QuestionTypes = append(req.QuestionTypes, quiz.QuestionType(t))
			}

			var (
				q   *quiz.Quiz
				err error
			)
			if topic != "" {
				q, err = c.app.quiz.GenerateTopic(cmd.Context(), topic, req)
			} else {
				q, err = c.app.quiz.Generate(cmd.Context(), req)
			}
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(q)
			}
			renderQuiz(cmd.OutOrStdout(), q)
			return nil
		},
	}
	cmd.Flags().StringSliceVarP(&docs, "docs", "d", nil, "document IDs to build the quiz from")
	cmd.Flags().IntVarP(&num, "num", "n", 5, "number of questions")
	cmd.Flags().StringSliceVarP(&types, "types", "t", []string{string(quiz.MultipleChoice), string(quiz.TrueFalse)},
		"question types: multiple_choice, true_false, short_answer")
	cmd.Flags().StringVar(&difficulty, "difficulty", string(quiz.DifficultyMedium), "easy, medium or hard")
	cmd.Flags().StringVar(&topic, "topic", "", "focus the questions on one topic")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the quiz as JSON")
	return cmd
}
