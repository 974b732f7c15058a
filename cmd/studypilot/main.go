// Command studypilot validates course catalogs and runs quizzes, roadmaps and
// mastery projections from the terminal.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/p-n-ai/study-pilot/internal/curriculum"
	"github.com/p-n-ai/study-pilot/internal/platform/config"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

type rootOptions struct {
	catalogPath string
	verbose     bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	defaultCatalog := "./catalog"
	if cfg, err := config.Load(); err == nil {
		defaultCatalog = cfg.CatalogPath
	}

	cmd := &cobra.Command{
		Use:           "studypilot",
		Short:         "Adaptive quizzes and study roadmaps",
		Long:          "studypilot tracks topic mastery, builds adaptive quizzes and plans week-by-week study roadmaps from a course catalog.",
		SilenceUsage:  true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := slog.LevelWarn
			if opts.verbose {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level})))
		},
	}
	cmd.PersistentFlags().StringVar(&opts.catalogPath, "catalog", defaultCatalog, "Course catalog directory (overrides LEARN_CATALOG_PATH)")
	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Log debug output to stderr")

	cmd.AddCommand(newValidateCmd())
	cmd.AddCommand(newQuizCmd(opts))
	cmd.AddCommand(newRoadmapCmd(opts))
	cmd.AddCommand(newProjectCmd())
	return cmd
}

func (o *rootOptions) loadCatalog() (*curriculum.Catalog, error) {
	catalog, err := curriculum.Load(o.catalogPath)
	if err != nil {
		return nil, fmt.Errorf("load catalog %s: %w", o.catalogPath, err)
	}
	return catalog, nil
}

func requireCourse(catalog *curriculum.Catalog, id string) (curriculum.Course, error) {
	course, ok := catalog.Course(id)
	if !ok {
		return curriculum.Course{}, fmt.Errorf("course %q not found in catalog", id)
	}
	return course, nil
}
