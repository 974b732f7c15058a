package curriculum

import (
	"slices"

	"github.com/p-n-ai/study-pilot/internal/mastery"
)

// QuestionType is the answer format of a question.
type QuestionType string

const (
	MultipleChoice QuestionType = "mcq"
	TrueFalse      QuestionType = "true_false"
	ShortAnswer    QuestionType = "short_answer"
)

// Course is a course file: its topics and its question bank.
type Course struct {
	ID          string         `yaml:"id" json:"id"`
	Code        string         `yaml:"code" json:"code,omitempty"`
	Name        string         `yaml:"name" json:"name"`
	Description string         `yaml:"description" json:"description,omitempty"`
	Syllabus    []SyllabusWeek `yaml:"syllabus" json:"syllabus,omitempty"`
	Topics      []Topic        `yaml:"topics" json:"topics"`
	Questions   []Question     `yaml:"questions" json:"-"`
}

// SyllabusWeek is a week entry of a course that has no explicit topic list.
type SyllabusWeek struct {
	Week        int      `yaml:"week" json:"week"`
	Topic       string   `yaml:"topic" json:"topic"`
	Description string   `yaml:"description" json:"description,omitempty"`
	Subtopics   []string `yaml:"subtopics" json:"subtopics,omitempty"`
}

// Topic is a knowledge component of a course.
type Topic struct {
	ID            string   `yaml:"id" json:"id"`
	Name          string   `yaml:"name" json:"name"`
	Description   string   `yaml:"description" json:"description,omitempty"`
	Week          int      `yaml:"week" json:"week_number"`
	Difficulty    float64  `yaml:"difficulty" json:"difficulty"`
	Prerequisites []string `yaml:"prerequisites" json:"prerequisites,omitempty"`
	Concepts      []string `yaml:"concepts" json:"concepts,omitempty"`
	Resources     []string `yaml:"resources" json:"resources,omitempty"`
}

// Question is an immutable question bank entry.
type Question struct {
	ID            string             `yaml:"id" json:"id"`
	TopicID       string             `yaml:"topic_id" json:"topic_id"`
	Text          string             `yaml:"text" json:"text"`
	Difficulty    mastery.Difficulty `yaml:"difficulty" json:"difficulty"`
	Type          QuestionType       `yaml:"type" json:"question_type"`
	Options       []string           `yaml:"options" json:"options,omitempty"`
	CorrectAnswer string             `yaml:"correct_answer" json:"correct_answer"`
	Explanation   string             `yaml:"explanation" json:"explanation,omitempty"`
	Citation      string             `yaml:"citation" json:"citation,omitempty"`
}

func (c Course) clone() Course {
	c.Syllabus = slices.Clone(c.Syllabus)
	for i := range c.Syllabus {
		c.Syllabus[i].Subtopics = slices.Clone(c.Syllabus[i].Subtopics)
	}
	c.Topics = slices.Clone(c.Topics)
	for i := range c.Topics {
		c.Topics[i] = c.Topics[i].clone()
	}
	c.Questions = slices.Clone(c.Questions)
	for i := range c.Questions {
		c.Questions[i] = c.Questions[i].clone()
	}
	return c
}

func (t Topic) clone() Topic {
	t.Prerequisites = slices.Clone(t.Prerequisites)
	t.Concepts = slices.Clone(t.Concepts)
	t.Resources = slices.Clone(t.Resources)
	return t
}

func (q Question) clone() Question {
	q.Options = slices.Clone(q.Options)
	return q
}

func cloneAll[T interface{ clone() T }](items []T) []T {
	if items == nil {
		return nil
	}
	out := make([]T, len(items))
	for i, item := range items {
		out[i] = item.clone()
	}
	return out
}
