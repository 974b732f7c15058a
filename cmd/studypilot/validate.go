package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/p-n-ai/study-pilot/internal/curriculum"
)

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <catalog-dir>",
		Short: "Check every course file in a catalog directory",
		Long: `Load a catalog directory, validating each course file against the course
schema and checking topic and question references.

Examples:
  studypilot validate ./catalog`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			catalog, err := curriculum.Load(args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%-12s  %-40s  %6s  %9s\n", "ID", "Name", "Topics", "Questions")
			fmt.Fprintln(out, strings.Repeat("-", 73))
			for _, c := range catalog.Courses() {
				name := c.Name
				if len(name) > 40 {
					name = name[:37] + "..."
				}
				fmt.Fprintf(out, "%-12s  %-40s  %6d  %9d\n",
					c.ID, name, len(catalog.Topics(c.ID)), len(catalog.Questions(c.ID)))
			}
			fmt.Fprintf(out, "\n%d courses, %d questions, fingerprint %s\n",
				len(catalog.Courses()), catalog.Size(), catalog.Fingerprint())
			return nil
		},
	}
}
