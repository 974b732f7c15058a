package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/p-n-ai/study-pilot/internal/mastery"
)

type projectOptions struct {
	mastery   float64
	target    float64
	accuracy  float64
	responses string
	pLearn    float64
	pGuess    float64
	pSlip     float64
}

func newProjectCmd() *cobra.Command {
	opts := &projectOptions{}
	cmd := &cobra.Command{
		Use:   "project",
		Short: "Project mastery growth for a topic",
		Long: `Estimate how many questions a learner needs to reach a mastery target, and
optionally trace mastery through a sequence of answers (1 correct, 0 wrong).

Examples:
  studypilot project --mastery 0.4
  studypilot project --mastery 0 --responses 1,1,0,1`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProject(cmd, opts)
		},
	}
	cmd.Flags().Float64Var(&opts.mastery, "mastery", 0, "Current mastery in [0, 1]")
	cmd.Flags().Float64Var(&opts.target, "target", mastery.DefaultTarget, "Target mastery")
	cmd.Flags().Float64Var(&opts.accuracy, "accuracy", mastery.DefaultAssumedAccuracy, "Assumed answer accuracy")
	cmd.Flags().StringVar(&opts.responses, "responses", "", "Comma-separated answers to trace, e.g. 1,0,1")
	cmd.Flags().Float64Var(&opts.pLearn, "p-learn", mastery.DefaultParams.PLearn, "Learning probability per attempt")
	cmd.Flags().Float64Var(&opts.pGuess, "p-guess", mastery.DefaultParams.PGuess, "Guess probability")
	cmd.Flags().Float64Var(&opts.pSlip, "p-slip", mastery.DefaultParams.PSlip, "Slip probability")
	return cmd
}

func runProject(cmd *cobra.Command, opts *projectOptions) error {
	for name, v := range map[string]float64{"mastery": opts.mastery, "target": opts.target, "accuracy": opts.accuracy} {
		if v < 0 || v > 1 {
			return fmt.Errorf("--%s must be within [0, 1], got %v", name, v)
		}
	}
	tracker, err := mastery.NewTracker(mastery.Params{PLearn: opts.pLearn, PGuess: opts.pGuess, PSlip: opts.pSlip})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Current mastery:      %.1f%%\n", opts.mastery*100)
	fmt.Fprintf(out, "Suggested difficulty: %s\n", mastery.RecommendDifficulty(opts.mastery))
	fmt.Fprintf(out, "Questions to %.0f%%:     %d (at %.0f%% accuracy)\n",
		opts.target*100, tracker.ProjectQuestionsToMastery(opts.mastery, opts.target, opts.accuracy), opts.accuracy*100)

	if opts.responses == "" {
		return nil
	}
	answers, err := parseResponses(opts.responses)
	if err != nil {
		return err
	}
	final, history := tracker.UpdateSequence(opts.mastery, answers)

	fmt.Fprintln(out, "\nTrace:")
	fmt.Fprintf(out, "   0 start   %5.1f%%\n", history[0]*100)
	for i, p := range history[1:] {
		mark := "wrong"
		if answers[i] {
			mark = "correct"
		}
		fmt.Fprintf(out, "  %2d %-7s %5.1f%%\n", i+1, mark, p*100)
	}
	fmt.Fprintf(out, "Final mastery: %.1f%%\n", final*100)
	return nil
}

func parseResponses(raw string) ([]bool, error) {
	parts := strings.Split(raw, ",")
	out := make([]bool, 0, len(parts))
	for _, p := range parts {
		switch strings.ToLower(strings.TrimSpace(p)) {
		case "1", "c", "correct", "true":
			out = append(out, true)
		case "0", "x", "wrong", "false":
			out = append(out, false)
		default:
			return nil, fmt.Errorf("invalid response %q: use 1 for correct and 0 for wrong", p)
		}
	}
	return out, nil
}
