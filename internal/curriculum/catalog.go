package curriculum

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"golang.org/x/crypto/blake2b"

	"github.com/p-n-ai/study-pilot/internal/mastery"
)

// ErrInvalidCourse is returned when a course document fails validation.
var ErrInvalidCourse = errors.New("curriculum: invalid course")

const defaultTopicDifficulty = 0.5

type poolKey struct {
	topicID    string
	difficulty mastery.Difficulty
}

// Catalog is the read-only set of courses, topics and questions loaded at
// startup. It is never mutated after construction and is safe for concurrent
// use. Values returned by its accessors are deep copies.
type Catalog struct {
	courses      map[string]Course
	courseOrder  []string
	topics       map[string]Topic
	topicCourse  map[string]string
	questions    map[string]Question
	byCourse     map[string][]Question
	byDifficulty map[poolKey][]Question
	fingerprint  string
}

// NewCatalog validates courses and indexes them. Topics missing a week are
// placed by their position, topics missing a difficulty get 0.5, and a course
// with no topics derives them from its syllabus.
func NewCatalog(courses []Course) (*Catalog, error) {
	c := &Catalog{
		courses:      make(map[string]Course),
		topics:       make(map[string]Topic),
		topicCourse:  make(map[string]string),
		questions:    make(map[string]Question),
		byCourse:     make(map[string][]Question),
		byDifficulty: make(map[poolKey][]Question),
	}

	var errs []error
	for _, course := range courses {
		course = withDefaults(course)
		if err := c.add(course); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	slices.Sort(c.courseOrder)
	fp, err := fingerprint(c)
	if err != nil {
		return nil, err
	}
	c.fingerprint = fp
	return c, nil
}

func withDefaults(course Course) Course {
	course = course.clone()
	if len(course.Topics) == 0 && len(course.Syllabus) > 0 {
		course.Topics = topicsFromSyllabus(course)
	}

	topics := make([]Topic, len(course.Topics))
	for i, t := range course.Topics {
		if t.Week == 0 {
			t.Week = i + 1
		}
		if t.Difficulty == 0 {
			t.Difficulty = defaultTopicDifficulty
		}
		topics[i] = t
	}
	course.Topics = topics

	questions := make([]Question, len(course.Questions))
	for i, q := range course.Questions {
		if q.Difficulty == "" {
			q.Difficulty = mastery.Medium
		}
		if q.Type == "" {
			q.Type = ShortAnswer
			if len(q.Options) > 0 {
				q.Type = MultipleChoice
			}
		}
		questions[i] = q
	}
	course.Questions = questions
	return course
}

func topicsFromSyllabus(course Course) []Topic {
	topics := make([]Topic, 0, len(course.Syllabus))
	for i, w := range course.Syllabus {
		week := w.Week
		if week == 0 {
			week = i + 1
		}
		name := w.Topic
		if name == "" {
			name = fmt.Sprintf("Week %d", week)
		}
		topics = append(topics, Topic{
			ID:          course.ID + "-W" + strconv.Itoa(week),
			Name:        name,
			Description: w.Description,
			Week:        week,
			Concepts:    w.Subtopics,
		})
	}
	return topics
}

func (c *Catalog) add(course Course) error {
	if course.ID == "" {
		return fmt.Errorf("%w: course id is empty", ErrInvalidCourse)
	}
	if _, dup := c.courses[course.ID]; dup {
		return fmt.Errorf("%w: duplicate course %q", ErrInvalidCourse, course.ID)
	}

	var errs []error
	local := make(map[string]bool, len(course.Topics))
	for _, t := range course.Topics {
		switch {
		case t.ID == "":
			errs = append(errs, fmt.Errorf("%w: course %q: topic with empty id", ErrInvalidCourse, course.ID))
			continue
		case c.topics[t.ID].ID != "" || local[t.ID]:
			errs = append(errs, fmt.Errorf("%w: course %q: duplicate topic %q", ErrInvalidCourse, course.ID, t.ID))
			continue
		case t.Week < 1:
			errs = append(errs, fmt.Errorf("%w: topic %q: week must be >= 1", ErrInvalidCourse, t.ID))
		case t.Difficulty < 0 || t.Difficulty > 1:
			errs = append(errs, fmt.Errorf("%w: topic %q: difficulty must be in [0,1]", ErrInvalidCourse, t.ID))
		}
		local[t.ID] = true
	}
	for _, t := range course.Topics {
		for _, pre := range t.Prerequisites {
			if !local[pre] {
				errs = append(errs, fmt.Errorf("%w: topic %q: unknown prerequisite %q", ErrInvalidCourse, t.ID, pre))
			}
		}
	}

	seen := make(map[string]bool, len(course.Questions))
	for _, q := range course.Questions {
		if err := validateQuestion(q, local); err != nil {
			errs = append(errs, fmt.Errorf("course %q: %w", course.ID, err))
			continue
		}
		if seen[q.ID] || c.questions[q.ID].ID != "" {
			errs = append(errs, fmt.Errorf("%w: course %q: duplicate question %q", ErrInvalidCourse, course.ID, q.ID))
			continue
		}
		seen[q.ID] = true
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}

	c.courses[course.ID] = course
	c.courseOrder = append(c.courseOrder, course.ID)
	for _, t := range course.Topics {
		c.topics[t.ID] = t
		c.topicCourse[t.ID] = course.ID
	}
	for _, q := range course.Questions {
		c.questions[q.ID] = q
		c.byCourse[course.ID] = append(c.byCourse[course.ID], q)
		key := poolKey{topicID: q.TopicID, difficulty: q.Difficulty}
		c.byDifficulty[key] = append(c.byDifficulty[key], q)
	}
	return nil
}

func validateQuestion(q Question, topics map[string]bool) error {
	if q.ID == "" {
		return fmt.Errorf("%w: question with empty id", ErrInvalidCourse)
	}
	if !topics[q.TopicID] {
		return fmt.Errorf("%w: question %q: unknown topic %q", ErrInvalidCourse, q.ID, q.TopicID)
	}
	switch q.Difficulty {
	case mastery.Easy, mastery.Medium, mastery.Hard:
	default:
		return fmt.Errorf("%w: question %q: difficulty %q", ErrInvalidCourse, q.ID, q.Difficulty)
	}
	if strings.TrimSpace(q.CorrectAnswer) == "" {
		return fmt.Errorf("%w: question %q: correct answer is empty", ErrInvalidCourse, q.ID)
	}

	switch q.Type {
	case MultipleChoice:
		if len(q.Options) < 2 {
			return fmt.Errorf("%w: question %q: multiple choice needs at least 2 options", ErrInvalidCourse, q.ID)
		}
		if !slices.ContainsFunc(q.Options, func(o string) bool {
			return strings.EqualFold(strings.TrimSpace(o), strings.TrimSpace(q.CorrectAnswer))
		}) {
			return fmt.Errorf("%w: question %q: correct answer is not one of the options", ErrInvalidCourse, q.ID)
		}
	case TrueFalse, ShortAnswer:
	default:
		return fmt.Errorf("%w: question %q: type %q", ErrInvalidCourse, q.ID, q.Type)
	}
	return nil
}

// fingerprint hashes the catalog contents so caches can be keyed by catalog version.
func fingerprint(c *Catalog) (string, error) {
	h, err := blake2b.New256(nil)
	if err != nil {
		return "", fmt.Errorf("creating catalog hash: %w", err)
	}
	enc := json.NewEncoder(h)
	for _, id := range c.courseOrder {
		course := c.courses[id]
		if err := enc.Encode(course); err != nil {
			return "", fmt.Errorf("hashing course %q: %w", id, err)
		}
		if err := enc.Encode(course.Questions); err != nil {
			return "", fmt.Errorf("hashing questions of %q: %w", id, err)
		}
	}
	return hex.EncodeToString(h.Sum(nil))[:16], nil
}

// Fingerprint returns a short content hash of the catalog.
func (c *Catalog) Fingerprint() string {
	return c.fingerprint
}

// Course returns a course by ID.
func (c *Catalog) Course(id string) (Course, bool) {
	course, ok := c.courses[id]
	if !ok {
		return Course{}, false
	}
	return course.clone(), true
}

// Courses returns all courses ordered by ID.
func (c *Catalog) Courses() []Course {
	out := make([]Course, 0, len(c.courseOrder))
	for _, id := range c.courseOrder {
		out = append(out, c.courses[id].clone())
	}
	return out
}

// Topic returns a topic by ID.
func (c *Catalog) Topic(id string) (Topic, bool) {
	t, ok := c.topics[id]
	return t.clone(), ok
}

// CourseOfTopic returns the ID of the course owning a topic.
func (c *Catalog) CourseOfTopic(topicID string) (string, bool) {
	id, ok := c.topicCourse[topicID]
	return id, ok
}

// Topics returns a course's topics in syllabus order (week, then ID).
func (c *Catalog) Topics(courseID string) []Topic {
	course, ok := c.courses[courseID]
	if !ok {
		return nil
	}
	topics := cloneAll(course.Topics)
	slices.SortStableFunc(topics, func(a, b Topic) int {
		if a.Week != b.Week {
			return a.Week - b.Week
		}
		return strings.Compare(a.ID, b.ID)
	})
	return topics
}

// Question returns a question by ID.
func (c *Catalog) Question(id string) (Question, bool) {
	q, ok := c.questions[id]
	return q.clone(), ok
}

// Questions returns a course's question bank.
func (c *Catalog) Questions(courseID string) []Question {
	return cloneAll(c.byCourse[courseID])
}

// Pool returns the questions for a topic at one difficulty, in catalog order.
func (c *Catalog) Pool(topicID string, d mastery.Difficulty) []Question {
	return cloneAll(c.byDifficulty[poolKey{topicID: topicID, difficulty: d}])
}

// Size returns the number of questions in the catalog.
func (c *Catalog) Size() int {
	return len(c.questions)
}
