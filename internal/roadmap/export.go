package roadmap

import (
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Sheet names written by ExportXLSX.
const (
	PlanSheet    = "Roadmap"
	SummarySheet = "Summary"
)

var planHeader = []any{
	"Week", "Start", "End", "Topic", "Hours", "Priority", "Activities", "Milestones", "Quiz", "Reflection",
}

// ExportXLSX writes r as a workbook with one row per session on the Roadmap
// sheet and the plan totals on the Summary sheet. Weeks without sessions get
// a single row so milestones are not lost.
func ExportXLSX(r Roadmap, w io.Writer) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", PlanSheet); err != nil {
		return fmt.Errorf("renaming sheet: %w", err)
	}
	if err := f.SetSheetRow(PlanSheet, "A1", &planHeader); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("creating style: %w", err)
	}
	last, _ := excelize.CoordinatesToCellName(len(planHeader), 1)
	if err := f.SetCellStyle(PlanSheet, "A1", last, bold); err != nil {
		return fmt.Errorf("styling header: %w", err)
	}

	row := 2
	for _, week := range r.Weeks {
		milestones := strings.Join(week.Milestones, "; ")
		if len(week.Sessions) == 0 {
			if err := writeRow(f, row, []any{
				week.Number, week.StartDate, week.EndDate, "", 0.0, "", "", milestones, week.QuizRecommended, week.Reflection,
			}); err != nil {
				return err
			}
			row++
			continue
		}
		for _, s := range week.Sessions {
			if err := writeRow(f, row, []any{
				week.Number, week.StartDate, week.EndDate, s.TopicName, s.DurationHours, string(s.Priority),
				strings.Join(s.Activities, "; "), milestones, week.QuizRecommended, week.Reflection,
			}); err != nil {
				return err
			}
			row++
		}
	}
	if err := f.SetColWidth(PlanSheet, "D", "D", 32); err != nil {
		return fmt.Errorf("sizing columns: %w", err)
	}
	if err := f.SetColWidth(PlanSheet, "G", "G", 60); err != nil {
		return fmt.Errorf("sizing columns: %w", err)
	}

	if _, err := f.NewSheet(SummarySheet); err != nil {
		return fmt.Errorf("creating summary sheet: %w", err)
	}
	summary := [][]any{
		{"Course", r.CourseName},
		{"Start date", r.StartDate},
		{"Goal date", r.GoalDate},
		{"Weeks", r.TotalWeeks},
		{"Hours per week", r.HoursPerWeek},
		{"Planned hours", plannedHours(r)},
		{"Summary", r.Summary},
	}
	for i, values := range summary {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow(SummarySheet, cell, &values); err != nil {
			return fmt.Errorf("writing summary: %w", err)
		}
	}
	if err := f.SetCellStyle(SummarySheet, "A1", fmt.Sprintf("A%d", len(summary)), bold); err != nil {
		return fmt.Errorf("styling summary: %w", err)
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("writing workbook: %w", err)
	}
	return nil
}

func writeRow(f *excelize.File, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return fmt.Errorf("row %d: %w", row, err)
	}
	if err := f.SetSheetRow(PlanSheet, cell, &values); err != nil {
		return fmt.Errorf("writing row %d: %w", row, err)
	}
	return nil
}

func plannedHours(r Roadmap) float64 {
	var total float64
	for _, w := range r.Weeks {
		total += w.TotalHours
	}
	return round1(total)
}
