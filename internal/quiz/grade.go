package quiz

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"golang.org/x/text/cases"

	"github.com/p-n-ai/study-pilot/internal/curriculum"
	"github.com/p-n-ai/study-pilot/internal/mastery"
)

// ErrInvalidInput is returned when quiz input is malformed.
var ErrInvalidInput = errors.New("quiz: invalid input")

// Result is the outcome of grading one response.
type Result struct {
	QuestionID    string `json:"question_id"`
	TopicID       string `json:"topic_id"`
	Response      string `json:"response"`
	Correct       bool   `json:"correct"`
	CorrectAnswer string `json:"correct_answer"`
	Explanation   string `json:"explanation,omitempty"`
	Citation      string `json:"citation,omitempty"`
}

// TopicScore is the per-topic slice of a graded quiz.
type TopicScore struct {
	Correct    int     `json:"correct"`
	Total      int     `json:"total"`
	Percentage float64 `json:"percentage"`
}

// Grade summarizes a graded quiz.
type Grade struct {
	Score          int                   `json:"score"`
	Total          int                   `json:"total"`
	Percentage     float64               `json:"percentage"`
	Results        []Result              `json:"results"`
	TopicBreakdown map[string]TopicScore `json:"topic_breakdown"`
}

// GradeResponse checks one response. Matching ignores surrounding space and
// case; a multiple-choice response may also name the option by letter (a, b, ...).
func GradeResponse(q curriculum.Question, response string) Result {
	// Casers keep state and are not safe for concurrent use.
	fold := cases.Fold()
	norm := func(s string) string { return fold.String(strings.TrimSpace(s)) }

	got, want := norm(response), norm(q.CorrectAnswer)
	correct := got == want
	if !correct && q.Type == curriculum.MultipleChoice {
		for i, opt := range q.Options {
			if norm(opt) == want && got == string(rune('a'+i)) {
				correct = true
				break
			}
		}
	}

	return Result{
		QuestionID:    q.ID,
		TopicID:       q.TopicID,
		Response:      response,
		Correct:       correct,
		CorrectAnswer: q.CorrectAnswer,
		Explanation:   q.Explanation,
		Citation:      q.Citation,
	}
}

// GradeQuiz grades responses against questions pairwise. Extra questions or
// responses beyond the shorter list are not graded, but Total always counts
// every question.
func GradeQuiz(questions []curriculum.Question, responses []string) Grade {
	g := Grade{
		Total:          len(questions),
		Results:        make([]Result, 0, min(len(questions), len(responses))),
		TopicBreakdown: make(map[string]TopicScore),
	}

	for i := range min(len(questions), len(responses)) {
		r := GradeResponse(questions[i], responses[i])
		g.Results = append(g.Results, r)

		ts := g.TopicBreakdown[r.TopicID]
		ts.Total++
		if r.Correct {
			ts.Correct++
			g.Score++
		}
		g.TopicBreakdown[r.TopicID] = ts
	}

	g.Percentage = percentage(g.Score, g.Total)
	for id, ts := range g.TopicBreakdown {
		ts.Percentage = percentage(ts.Correct, ts.Total)
		g.TopicBreakdown[id] = ts
	}
	return g
}

// GradeQuizStrict is GradeQuiz but rejects a response count that differs
// from the question count.
func GradeQuizStrict(questions []curriculum.Question, responses []string) (Grade, error) {
	if len(questions) != len(responses) {
		return Grade{}, fmt.Errorf("%w: %d responses for %d questions", ErrInvalidInput, len(responses), len(questions))
	}
	return GradeQuiz(questions, responses), nil
}

func percentage(correct, total int) float64 {
	if total == 0 {
		return 0
	}
	return math.RoundToEven(1000*float64(correct)/float64(total)) / 10
}

// QuestionView is a question as shown to a learner, without its answer.
type QuestionView struct {
	ID         string                  `json:"id"`
	TopicID    string                  `json:"topic_id"`
	TopicName  string                  `json:"topic_name,omitempty"`
	Text       string                  `json:"text"`
	Type       curriculum.QuestionType `json:"question_type"`
	Options    []string                `json:"options,omitempty"`
	Difficulty mastery.Difficulty      `json:"difficulty"`
}

// View hides the answer fields of q.
func View(q curriculum.Question, topicName string) QuestionView {
	return QuestionView{
		ID:         q.ID,
		TopicID:    q.TopicID,
		TopicName:  topicName,
		Text:       q.Text,
		Type:       q.Type,
		Options:    q.Options,
		Difficulty: q.Difficulty,
	}
}
