package main

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/p-n-ai/study-pilot/internal/quiz"
	"github.com/p-n-ai/study-pilot/internal/study"
)

type quizOptions struct {
	course  string
	topic   string
	learner string
	size    int
	seed    uint64
}

func newQuizCmd(root *rootOptions) *cobra.Command {
	opts := &quizOptions{}
	cmd := &cobra.Command{
		Use:   "quiz",
		Short: "Take an adaptive quiz in the terminal",
		Long: `Generate a quiz from the catalog, read one answer per line and grade it.

Mastery is kept in memory for the length of the session only. Multiple-choice
questions accept the option text or its letter.

Examples:
  studypilot quiz --course cs201
  studypilot quiz --course cs201 --topic T1 --size 5`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuiz(cmd, root, opts)
		},
	}
	cmd.Flags().StringVar(&opts.course, "course", "", "Course ID (required)")
	cmd.Flags().StringVar(&opts.topic, "topic", "", "Restrict the quiz to one topic")
	cmd.Flags().StringVar(&opts.learner, "learner", "cli", "Learner ID")
	cmd.Flags().IntVar(&opts.size, "size", 10, "Number of questions")
	cmd.Flags().Uint64Var(&opts.seed, "seed", 0, "Selection seed (0 picks one at random)")
	_ = cmd.MarkFlagRequired("course")
	return cmd
}

func runQuiz(cmd *cobra.Command, root *rootOptions, opts *quizOptions) error {
	catalog, err := root.loadCatalog()
	if err != nil {
		return err
	}
	if _, err := requireCourse(catalog, opts.course); err != nil {
		return err
	}

	cfg := study.ServiceConfig{Catalog: catalog}
	if opts.seed != 0 {
		cfg.Selector = quiz.NewSeededSelector(opts.seed)
	}
	svc, err := study.NewService(cfg)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	q, err := svc.GenerateQuiz(ctx, study.QuizRequest{
		LearnerID: opts.learner,
		CourseID:  opts.course,
		TopicID:   opts.topic,
		Size:      opts.size,
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if !q.Available {
		fmt.Fprintln(out, "No questions available for this selection yet.")
		return nil
	}

	scanner := bufio.NewScanner(cmd.InOrStdin())
	responses := make([]string, 0, len(q.Questions))
	for i, v := range q.Questions {
		fmt.Fprintf(out, "\nQ%d. [%s, %s] %s\n", i+1, v.TopicName, v.Difficulty, v.Text)
		for j, opt := range v.Options {
			fmt.Fprintf(out, "   %c) %s\n", 'a'+j, opt)
		}
		fmt.Fprint(out, "> ")

		answer := ""
		if scanner.Scan() {
			answer = strings.TrimSpace(scanner.Text())
		}
		responses = append(responses, answer)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read answers: %w", err)
	}

	sub, err := svc.SubmitQuiz(ctx, q.ID, responses)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "\n\nScore: %d/%d (%.1f%%)\n", sub.Score, sub.Total, sub.Percentage)
	for i, r := range sub.Results {
		mark := "correct"
		if !r.Correct {
			mark = "wrong, answer: " + r.CorrectAnswer
		}
		fmt.Fprintf(out, "  Q%d %s\n", i+1, mark)
		if !r.Correct && r.Explanation != "" {
			fmt.Fprintf(out, "     %s\n", r.Explanation)
		}
	}

	fmt.Fprintln(out, "\nMastery:")
	for _, m := range sub.MasteryUpdates {
		topic, _ := catalog.Topic(m.TopicID)
		fmt.Fprintf(out, "  %-30s %5.1f%% -> %5.1f%%\n", topic.Name, m.Before*100, m.After*100)
	}
	return nil
}
