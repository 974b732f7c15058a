package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/p-n-ai/study-pilot/internal/roadmap"
)

type roadmapOptions struct {
	course     string
	goal       string
	start      string
	hours      float64
	focus      []string
	mastery    map[string]string
	xlsxPath   string
	jsonOutput bool
}

func newRoadmapCmd(root *rootOptions) *cobra.Command {
	opts := &roadmapOptions{}
	cmd := &cobra.Command{
		Use:   "roadmap",
		Short: "Plan study weeks until a goal date",
		Long: `Build a week-by-week study roadmap for a course.

Topic mastery defaults to 0 and can be given per topic with --mastery.

Examples:
  studypilot roadmap --course cs201 --goal 2025-06-01 --hours 8
  studypilot roadmap --course cs201 --goal 2025-06-01 --hours 8 --mastery T1=0.8,T2=0.35 --focus trees
  studypilot roadmap --course cs201 --goal 2025-06-01 --hours 8 --xlsx plan.xlsx`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRoadmap(cmd, root, opts)
		},
	}
	cmd.Flags().StringVar(&opts.course, "course", "", "Course ID (required)")
	cmd.Flags().StringVar(&opts.goal, "goal", "", "Goal date, YYYY-MM-DD (required)")
	cmd.Flags().StringVar(&opts.start, "start", "", "Start date, YYYY-MM-DD (default today)")
	cmd.Flags().Float64Var(&opts.hours, "hours", 10, "Study hours per week")
	cmd.Flags().StringSliceVar(&opts.focus, "focus", nil, "Focus areas matched against topic names")
	cmd.Flags().StringToStringVar(&opts.mastery, "mastery", nil, "Current mastery per topic, e.g. T1=0.8")
	cmd.Flags().StringVar(&opts.xlsxPath, "xlsx", "", "Also write the roadmap to this .xlsx file")
	cmd.Flags().BoolVar(&opts.jsonOutput, "json", false, "Print the roadmap as JSON")
	_ = cmd.MarkFlagRequired("course")
	_ = cmd.MarkFlagRequired("goal")
	return cmd
}

func runRoadmap(cmd *cobra.Command, root *rootOptions, opts *roadmapOptions) error {
	catalog, err := root.loadCatalog()
	if err != nil {
		return err
	}
	course, err := requireCourse(catalog, opts.course)
	if err != nil {
		return err
	}

	masteryMap, err := parseMastery(opts.mastery)
	if err != nil {
		return err
	}
	for id := range masteryMap {
		if cid, ok := catalog.CourseOfTopic(id); !ok || cid != course.ID {
			return fmt.Errorf("topic %q is not part of course %s", id, course.ID)
		}
	}

	plan, err := roadmap.NewScheduler().Generate(roadmap.Request{
		CourseID:     course.ID,
		CourseName:   course.Name,
		Topics:       catalog.Topics(course.ID),
		Mastery:      masteryMap,
		GoalDate:     opts.goal,
		HoursPerWeek: opts.hours,
		StartDate:    opts.start,
		FocusAreas:   opts.focus,
	})
	if err != nil {
		return err
	}

	if opts.xlsxPath != "" {
		if err := writeXLSX(plan, opts.xlsxPath); err != nil {
			return err
		}
	}

	out := cmd.OutOrStdout()
	if opts.jsonOutput {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(plan)
	}

	fmt.Fprintf(out, "%s: %s to %s, %d weeks\n\n", plan.CourseName, plan.StartDate, plan.GoalDate, plan.TotalWeeks)
	for _, w := range plan.Weeks {
		quizMark := ""
		if w.QuizRecommended {
			quizMark = "  [quiz]"
		}
		fmt.Fprintf(out, "Week %d (%s to %s), %.1fh%s\n", w.Number, w.StartDate, w.EndDate, w.TotalHours, quizMark)
		for _, s := range w.Sessions {
			fmt.Fprintf(out, "  %-30s %4.1fh  %s\n", s.TopicName, s.DurationHours, s.Priority)
		}
		for _, m := range w.Milestones {
			fmt.Fprintf(out, "  * %s\n", m)
		}
	}
	fmt.Fprintf(out, "\n%s\n", plan.Summary)
	if opts.xlsxPath != "" {
		fmt.Fprintf(out, "Wrote %s\n", opts.xlsxPath)
	}
	return nil
}

func parseMastery(raw map[string]string) (map[string]float64, error) {
	out := make(map[string]float64, len(raw))
	for id, v := range raw {
		m, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil || m < 0 || m > 1 {
			return nil, fmt.Errorf("mastery for %s must be a number in [0, 1], got %q", id, v)
		}
		out[id] = m
	}
	return out, nil
}

func writeXLSX(plan roadmap.Roadmap, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := roadmap.ExportXLSX(plan, f); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
