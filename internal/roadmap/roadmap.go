// Package roadmap plans a learner's weekly study time across course topics
// until a goal date.
package roadmap

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"
	"time"

	"golang.org/x/text/cases"

	"github.com/p-n-ai/study-pilot/internal/curriculum"
)

// ErrInvalidInput is returned for a missing or malformed goal date, a goal
// date beyond the scheduler's horizon, a malformed start date, or a
// non-positive weekly hour budget.
var ErrInvalidInput = errors.New("roadmap: invalid input")

// DateLayout is the calendar date format used by requests and plans.
const DateLayout = "2006-01-02"

// DefaultMaxWeeks is the longest plan a Scheduler builds unless configured.
const DefaultMaxWeeks = 156

const (
	focusBoost         = 1.5
	earlinessWeeks     = 10
	earlinessPerWeek   = 0.05
	strugglingMastery  = 0.4
	weakMastery        = 0.5
	improvedMastery    = 0.8
	adjustDefault      = 0.5
	maxSummaryTopics   = 3
	checkpointInterval = 3
)

// Level is a session priority label.
type Level string

const (
	High   Level = "high"
	Medium Level = "medium"
	Low    Level = "low"
)

func levelOf(priority float64) Level {
	switch {
	case priority > 0.7:
		return High
	case priority > 0.4:
		return Medium
	default:
		return Low
	}
}

// Session is one topic's share of a week.
type Session struct {
	TopicID       string   `json:"topic_id"`
	TopicName     string   `json:"topic_name"`
	DurationHours float64  `json:"duration_hours"`
	Priority      Level    `json:"priority"`
	Activities    []string `json:"activities"`
	Resources     []string `json:"resources"`
}

// Week is one week of a roadmap.
type Week struct {
	Number          int       `json:"week_number"`
	StartDate       string    `json:"start_date"`
	EndDate         string    `json:"end_date"`
	FocusTopics     []string  `json:"focus_topics"`
	Sessions        []Session `json:"sessions"`
	TotalHours      float64   `json:"total_hours"`
	Milestones      []string  `json:"milestones"`
	QuizRecommended bool      `json:"quiz_recommended"`
	Reflection      string    `json:"reflection"`
}

// Roadmap is a complete week-by-week plan.
type Roadmap struct {
	LearnerID    string    `json:"learner_id,omitempty"`
	CourseID     string    `json:"course_id"`
	CourseName   string    `json:"course_name"`
	GoalDate     string    `json:"goal_date"`
	StartDate    string    `json:"start_date"`
	TotalWeeks   int       `json:"total_weeks"`
	HoursPerWeek float64   `json:"hours_per_week"`
	Weeks        []Week    `json:"weeks"`
	Summary      string    `json:"summary"`
	GeneratedAt  time.Time `json:"generated_at"`
}

// Request is the input to Generate. Topics should be in syllabus order; the
// summary lists weak topics in that order. Mastery defaults to 0 for topics
// it does not mention. StartDate defaults to today.
type Request struct {
	CourseID     string
	CourseName   string
	Topics       []curriculum.Topic
	Mastery      map[string]float64
	GoalDate     string
	HoursPerWeek float64
	StartDate    string
	FocusAreas   []string
}

// Scheduler generates roadmaps.
type Scheduler struct {
	now      func() time.Time
	maxWeeks int
}

// NewScheduler creates a Scheduler using the wall clock.
func NewScheduler() *Scheduler {
	return NewSchedulerWithClock(time.Now)
}

// NewSchedulerWithClock creates a Scheduler with a fixed clock, for tests and
// reproducible CLI output.
func NewSchedulerWithClock(now func() time.Time) *Scheduler {
	return &Scheduler{now: now, maxWeeks: DefaultMaxWeeks}
}

// WithMaxWeeks sets the longest plan s will build and returns s. Goal dates
// further out are rejected. Non-positive values keep the current limit.
func (s *Scheduler) WithMaxWeeks(n int) *Scheduler {
	if n > 0 {
		s.maxWeeks = n
	}
	return s
}

type plannedTopic struct {
	topic    curriculum.Topic
	mastery  float64
	priority float64
}

// Generate builds a roadmap. Topics are ordered by syllabus week and, within a
// week, by descending priority, then dealt out across the available weeks so
// each topic is scheduled exactly once. A goal date that is past or less than
// a week away still yields a one-week plan.
func (s *Scheduler) Generate(req Request) (Roadmap, error) {
	if strings.TrimSpace(req.GoalDate) == "" {
		return Roadmap{}, fmt.Errorf("%w: goal date is required", ErrInvalidInput)
	}
	goal, err := time.Parse(DateLayout, req.GoalDate)
	if err != nil {
		return Roadmap{}, fmt.Errorf("%w: goal date %q: %v", ErrInvalidInput, req.GoalDate, err)
	}
	if !(req.HoursPerWeek > 0) || math.IsInf(req.HoursPerWeek, 0) {
		return Roadmap{}, fmt.Errorf("%w: hours per week must be positive, got %v", ErrInvalidInput, req.HoursPerWeek)
	}

	now := s.now().UTC()
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	if req.StartDate != "" {
		if start, err = time.Parse(DateLayout, req.StartDate); err != nil {
			return Roadmap{}, fmt.Errorf("%w: start date %q: %v", ErrInvalidInput, req.StartDate, err)
		}
	}

	days := int(math.Floor(goal.Sub(start).Hours() / 24))
	weeks := max(1, floorDiv(days, 7))
	if weeks > s.maxWeeks {
		return Roadmap{}, fmt.Errorf("%w: goal date %s is %d weeks away, the limit is %d", ErrInvalidInput, req.GoalDate, weeks, s.maxWeeks)
	}

	planned := make([]plannedTopic, len(req.Topics))
	for i, t := range req.Topics {
		m := req.Mastery[t.ID]
		planned[i] = plannedTopic{topic: t, mastery: m, priority: priority(t, m, req.FocusAreas)}
	}
	slices.SortStableFunc(planned, func(a, b plannedTopic) int {
		if a.topic.Week != b.topic.Week {
			return a.topic.Week - b.topic.Week
		}
		switch {
		case a.priority > b.priority:
			return -1
		case a.priority < b.priority:
			return 1
		}
		return 0
	})

	return Roadmap{
		CourseID:     req.CourseID,
		CourseName:   req.CourseName,
		GoalDate:     req.GoalDate,
		StartDate:    start.Format(DateLayout),
		TotalWeeks:   weeks,
		HoursPerWeek: req.HoursPerWeek,
		Weeks:        distribute(planned, weeks, req.HoursPerWeek, start),
		Summary:      summary(req, weeks),
		GeneratedAt:  now,
	}, nil
}

func floorDiv(a, b int) int {
	q := a / b
	if a%b != 0 && (a < 0) != (b < 0) {
		q--
	}
	return q
}

func priority(t curriculum.Topic, m float64, focusAreas []string) float64 {
	p := 1 - m

	fold := cases.Fold()
	name := fold.String(t.Name)
	for _, focus := range focusAreas {
		focus = strings.TrimSpace(focus)
		if focus != "" && strings.Contains(name, fold.String(focus)) {
			p *= focusBoost
		}
	}

	p += max(0, float64(earlinessWeeks-t.Week)*earlinessPerWeek)
	return max(0, min(1, p))
}

// distribute deals topics out in order. Each week takes len/weeks topics and
// the first len%weeks weeks take one more. With fewer topics than weeks the
// trailing weeks are empty.
func distribute(planned []plannedTopic, weeks int, hoursPerWeek float64, start time.Time) []Week {
	perWeek := max(1, len(planned)/weeks)
	extra := max(0, len(planned)-perWeek*weeks)

	out := make([]Week, 0, weeks)
	cursor := 0
	for n := 1; n <= weeks; n++ {
		take := perWeek
		if n <= extra {
			take++
		}
		take = min(take, len(planned)-cursor)
		chunk := planned[cursor : cursor+take]
		cursor += take

		weekStart := start.AddDate(0, 0, 7*(n-1))
		week := Week{
			Number:      n,
			StartDate:   weekStart.Format(DateLayout),
			EndDate:     weekStart.AddDate(0, 0, 6).Format(DateLayout),
			FocusTopics: make([]string, 0, len(chunk)),
			Sessions:    make([]Session, 0, len(chunk)),
			Milestones:  milestones(n, weeks),
		}

		var struggling []string
		for _, pt := range chunk {
			weight := 0.5 + 0.3*pt.priority + 0.2*(1-pt.mastery)
			hours := round1(hoursPerWeek / float64(len(chunk)) * weight)

			week.FocusTopics = append(week.FocusTopics, pt.topic.Name)
			week.Sessions = append(week.Sessions, Session{
				TopicID:       pt.topic.ID,
				TopicName:     pt.topic.Name,
				DurationHours: hours,
				Priority:      levelOf(pt.priority),
				Activities:    activities(pt.topic.Name, pt.mastery),
				Resources:     slices.Clone(pt.topic.Resources),
			})
			week.TotalHours += hours

			if pt.mastery < strugglingMastery {
				struggling = append(struggling, pt.topic.Name)
			}
			if pt.mastery < weakMastery {
				week.QuizRecommended = true
			}
		}
		week.TotalHours = round1(week.TotalHours)
		if n%2 == 0 {
			week.QuizRecommended = true
		}
		week.Reflection = reflection(struggling, n, weeks)

		out = append(out, week)
	}
	return out
}

func round1(v float64) float64 {
	return math.RoundToEven(v*10) / 10
}

func milestones(week, total int) []string {
	switch {
	case week == total:
		return []string{"Final review and exam preparation"}
	case week%checkpointInterval == 0:
		return []string{fmt.Sprintf("Checkpoint: Review weeks %d-%d", week-2, week)}
	default:
		return []string{}
	}
}

func activities(topicName string, m float64) []string {
	switch {
	case m < 0.3:
		return []string{
			"Read course notes on " + topicName,
			"Watch lecture videos if available",
			"Create concept summary notes",
			"Try basic practice problems",
		}
	case m < 0.6:
		return []string{
			"Review key concepts and formulas",
			"Solve practice problems (medium difficulty)",
			"Work through past exam questions",
			"Create flashcards for memorization",
		}
	default:
		return []string{
			"Attempt challenging problems",
			"Teach concepts to study partner",
			"Take practice quizzes",
			"Review edge cases and exceptions",
		}
	}
}

func reflection(struggling []string, week, total int) string {
	switch {
	case len(struggling) == 1:
		return fmt.Sprintf("Adjusted plan to prioritize '%s' which needs more attention.", struggling[0])
	case len(struggling) > 1:
		return fmt.Sprintf("Adjusted plan: Focused extra time on %d challenging topics.", len(struggling))
	case week == 1:
		return "Kickoff: Starting with foundational concepts to build momentum."
	case week == total:
		return "Final Push: Intensive review and practice for mastery."
	default:
		return "On Track: Continuing steady progress through the syllabus."
	}
}

func summary(req Request, weeks int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Your %d-week study plan for %s includes %.0f total study hours leading up to %s.",
		weeks, req.CourseName, float64(weeks)*req.HoursPerWeek, req.GoalDate)

	var weak []string
	for _, t := range req.Topics {
		if len(weak) == maxSummaryTopics {
			break
		}
		if req.Mastery[t.ID] < weakMastery {
			weak = append(weak, t.Name)
		}
	}
	if len(weak) > 0 {
		fmt.Fprintf(&b, " Focus areas based on your current progress: %s.", strings.Join(weak, ", "))
	}

	b.WriteString(" Remember to take quizzes regularly to track your mastery!")
	return b.String()
}

// Adjust re-reads a roadmap against updated mastery. Topics above 0.8 count as
// improved and below 0.4 as struggling; topics missing from newMastery count
// as 0.5. When both groups are non-empty a note is appended to the summary.
// Sessions are left as generated.
func Adjust(r Roadmap, newMastery map[string]float64) Roadmap {
	var improved, struggling int
	for _, w := range r.Weeks {
		for _, s := range w.Sessions {
			m, ok := newMastery[s.TopicID]
			if !ok {
				m = adjustDefault
			}
			switch {
			case m > improvedMastery:
				improved++
			case m < strugglingMastery:
				struggling++
			}
		}
	}

	if improved > 0 && struggling > 0 {
		r.Summary += fmt.Sprintf(" Adjusted to focus more on: %d topics needing attention.", struggling)
	}
	return r
}
