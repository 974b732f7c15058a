package study

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/p-n-ai/study-pilot/internal/curriculum"
	"github.com/p-n-ai/study-pilot/internal/mastery"
	"github.com/p-n-ai/study-pilot/internal/quiz"
	"github.com/p-n-ai/study-pilot/internal/roadmap"
)

const (
	defaultQuizSize       = 10
	maxQuizSize           = 100
	maxMasteryRetries     = 3
	recommendationMastery = 0.6
	maxRecommendations    = 5
)

// RoadmapStore caches the latest roadmap per learner and course.
type RoadmapStore interface {
	Get(ctx context.Context, learnerID, courseID string) (roadmap.Roadmap, bool, error)
	Set(ctx context.Context, plan roadmap.Roadmap) error
}

// ServiceConfig holds dependencies for the Service.
type ServiceConfig struct {
	Catalog         *curriculum.Catalog
	Repository      Repository         // default in-memory
	Events          EventLogger        // default NopEventLogger
	Cache           RoadmapStore       // optional
	Tracker         *mastery.Tracker   // default mastery.DefaultTracker()
	Selector        *quiz.Selector     // default randomly seeded
	Scheduler       *roadmap.Scheduler // default wall clock
	DefaultQuizSize int                // default 10
	Now             func() time.Time
}

// Service runs the quiz and roadmap flows against the catalog and repository.
type Service struct {
	catalog   *curriculum.Catalog
	repo      Repository
	events    EventLogger
	cache     RoadmapStore
	tracker   *mastery.Tracker
	selector  *quiz.Selector
	scheduler *roadmap.Scheduler
	quizSize  int
	now       func() time.Time
}

// NewService creates a Service. A catalog is required.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Catalog == nil {
		return nil, fmt.Errorf("catalog is nil")
	}
	repo := cfg.Repository
	if repo == nil {
		repo = NewMemoryRepository()
	}
	events := cfg.Events
	if events == nil {
		events = NopEventLogger{}
	}
	tracker := cfg.Tracker
	if tracker == nil {
		tracker = mastery.DefaultTracker()
	}
	selector := cfg.Selector
	if selector == nil {
		selector = quiz.NewSelector(nil)
	}
	scheduler := cfg.Scheduler
	if scheduler == nil {
		scheduler = roadmap.NewScheduler()
	}
	quizSize := cfg.DefaultQuizSize
	if quizSize == 0 {
		quizSize = defaultQuizSize
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		catalog:   cfg.Catalog,
		repo:      repo,
		events:    events,
		cache:     cfg.Cache,
		tracker:   tracker,
		selector:  selector,
		scheduler: scheduler,
		quizSize:  quizSize,
		now:       now,
	}, nil
}

// Catalog returns the catalog the service reads course content from.
func (s *Service) Catalog() *curriculum.Catalog {
	return s.catalog
}

// TopicsForCourse returns a course's topics in syllabus order.
func (s *Service) TopicsForCourse(courseID string) ([]curriculum.Topic, error) {
	if _, ok := s.catalog.Course(courseID); !ok {
		return nil, fmt.Errorf("%w: course %s", ErrNotFound, courseID)
	}
	return s.catalog.Topics(courseID), nil
}

// MasteryMap returns the learner's mastery for every topic of a course.
// Topics never attempted are reported at 0.
func (s *Service) MasteryMap(ctx context.Context, learnerID, courseID string) (map[string]float64, error) {
	_, states, err := s.courseStates(ctx, learnerID, courseID)
	if err != nil {
		return nil, err
	}
	return mastery.Values(states), nil
}

// courseStates returns the course topics and a state for each, defaulting
// unattempted topics to a fresh state.
func (s *Service) courseStates(ctx context.Context, learnerID, courseID string) ([]curriculum.Topic, map[string]mastery.State, error) {
	topics, err := s.TopicsForCourse(courseID)
	if err != nil {
		return nil, nil, err
	}
	ids := make([]string, len(topics))
	for i, t := range topics {
		ids[i] = t.ID
	}

	stored, err := s.repo.MasteryMap(ctx, learnerID, ids)
	if err != nil {
		return nil, nil, fmt.Errorf("loading mastery: %w", err)
	}
	states := make(map[string]mastery.State, len(topics))
	for _, id := range ids {
		st, ok := stored[id]
		if !ok {
			st = mastery.NewState(learnerID, id, s.tracker.Params())
		}
		states[id] = st
	}
	return topics, states, nil
}

// QuizRequest asks for a quiz. A zero Size uses the configured default.
// With TopicID set the quiz covers that topic only.
type QuizRequest struct {
	LearnerID string `json:"learner_id"`
	CourseID  string `json:"course_id"`
	TopicID   string `json:"topic_id,omitempty"`
	Size      int    `json:"size,omitempty"`
}

// Quiz is a generated quiz as shown to the learner. Available is false when
// the course or topic has no questions yet; such quizzes are not stored.
type Quiz struct {
	ID        string              `json:"id,omitempty"`
	LearnerID string              `json:"learner_id"`
	CourseID  string              `json:"course_id"`
	TopicID   string              `json:"topic_id,omitempty"`
	Available bool                `json:"available"`
	Questions []quiz.QuestionView `json:"questions"`
	CreatedAt time.Time           `json:"created_at"`
}

// GenerateQuiz selects and stores a quiz. Without a topic, questions are
// spread over the course by the learner's current mastery.
func (s *Service) GenerateQuiz(ctx context.Context, req QuizRequest) (Quiz, error) {
	if err := requireIDs(req.LearnerID, req.CourseID); err != nil {
		return Quiz{}, err
	}
	n := req.Size
	if n == 0 {
		n = s.quizSize
	}
	if n < 0 || n > maxQuizSize {
		return Quiz{}, fmt.Errorf("%w: quiz size must be between 1 and %d", ErrInvalidInput, maxQuizSize)
	}

	if _, ok := s.catalog.Course(req.CourseID); !ok {
		return Quiz{}, fmt.Errorf("%w: course %s", ErrNotFound, req.CourseID)
	}

	var selected []curriculum.Question
	if req.TopicID != "" {
		if courseID, ok := s.catalog.CourseOfTopic(req.TopicID); !ok || courseID != req.CourseID {
			return Quiz{}, fmt.Errorf("%w: topic %s in course %s", ErrNotFound, req.TopicID, req.CourseID)
		}
		selected = s.selector.SelectSingleTopic(s.catalog, req.TopicID, n)
	} else {
		masteryMap, err := s.MasteryMap(ctx, req.LearnerID, req.CourseID)
		if err != nil {
			return Quiz{}, err
		}
		selected = s.selector.SelectAdaptive(s.catalog, masteryMap, n)
	}

	out := Quiz{
		LearnerID: req.LearnerID,
		CourseID:  req.CourseID,
		TopicID:   req.TopicID,
		Questions: []quiz.QuestionView{},
		CreatedAt: s.now().UTC(),
	}
	if len(selected) == 0 {
		slog.Warn("no questions available",
			"learner_id", req.LearnerID,
			"course_id", req.CourseID,
			"topic_id", req.TopicID,
		)
		return out, nil
	}

	instance := QuizInstance{
		ID:          uuid.NewString(),
		LearnerID:   req.LearnerID,
		CourseID:    req.CourseID,
		TopicID:     req.TopicID,
		QuestionIDs: make([]string, len(selected)),
		CreatedAt:   out.CreatedAt,
	}
	for i, q := range selected {
		instance.QuestionIDs[i] = q.ID
		topic, _ := s.catalog.Topic(q.TopicID)
		out.Questions = append(out.Questions, quiz.View(q, topic.Name))
	}
	if err := s.repo.PersistQuizInstance(ctx, instance); err != nil {
		return Quiz{}, fmt.Errorf("saving quiz: %w", err)
	}

	out.ID = instance.ID
	out.Available = true
	slog.Info("quiz generated",
		"quiz_id", out.ID,
		"learner_id", req.LearnerID,
		"course_id", req.CourseID,
		"questions", len(out.Questions),
	)
	return out, nil
}

// MasteryChange is one topic's mastery movement after a submission.
type MasteryChange struct {
	TopicID  string  `json:"topic_id"`
	Before   float64 `json:"before"`
	After    float64 `json:"after"`
	Attempts int     `json:"attempts"`
}

// Submission is a graded quiz with the resulting mastery changes.
type Submission struct {
	QuizID string `json:"quiz_id"`
	quiz.Grade
	MasteryUpdates []MasteryChange `json:"mastery_updates"`
}

// SubmitQuiz grades responses, records them on the quiz, and applies each
// graded response to the learner's mastery of its topic. Responses must
// match the quiz's question count. A quiz can be submitted once; a failed
// submission stores nothing and leaves the quiz open.
func (s *Service) SubmitQuiz(ctx context.Context, quizID string, responses []string) (Submission, error) {
	if quizID == "" {
		return Submission{}, fmt.Errorf("%w: quiz id is required", ErrInvalidInput)
	}

	instance, err := s.repo.GetQuizInstance(ctx, quizID)
	if err != nil {
		return Submission{}, err
	}
	if instance.Completed() {
		return Submission{}, fmt.Errorf("%w: %s", ErrAlreadySubmitted, quizID)
	}

	questions := make([]curriculum.Question, len(instance.QuestionIDs))
	for i, id := range instance.QuestionIDs {
		q, ok := s.catalog.Question(id)
		if !ok {
			return Submission{}, fmt.Errorf("%w: question %s of quiz %s", ErrNotFound, id, quizID)
		}
		questions[i] = q
	}

	grade, err := quiz.GradeQuizStrict(questions, responses)
	if err != nil {
		return Submission{}, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}

	outcomes := make(map[string][]bool)
	var order []string
	for _, r := range grade.Results {
		if _, seen := outcomes[r.TopicID]; !seen {
			order = append(order, r.TopicID)
		}
		outcomes[r.TopicID] = append(outcomes[r.TopicID], r.Correct)
	}

	now := s.now().UTC()
	instance.Responses = responses
	instance.Score = grade.Score
	instance.Percentage = grade.Percentage
	instance.CompletedAt = &now

	sub := Submission{QuizID: quizID, Grade: grade}
	for attempt := 1; ; attempt++ {
		changes, writes, err := s.foldOutcomes(ctx, instance.LearnerID, order, outcomes, now)
		if err != nil {
			return Submission{}, err
		}
		err = s.repo.CompleteQuizInstance(ctx, instance, writes)
		if err == nil {
			sub.MasteryUpdates = changes
			break
		}
		if !errors.Is(err, ErrStaleMastery) {
			return Submission{}, err
		}
		if attempt == maxMasteryRetries {
			return Submission{}, fmt.Errorf("submitting quiz %s: gave up after %d attempts: %w", quizID, attempt, err)
		}
		slog.Debug("mastery write conflict, retrying",
			"quiz_id", quizID,
			"learner_id", instance.LearnerID,
			"attempt", attempt,
		)
	}

	for _, change := range sub.MasteryUpdates {
		s.logEvent(ctx, Event{
			LearnerID: instance.LearnerID,
			CourseID:  instance.CourseID,
			EventType: EventMasteryUpdated,
			Data: map[string]any{
				"topic_id": change.TopicID,
				"before":   change.Before,
				"after":    change.After,
				"attempts": change.Attempts,
			},
			CreatedAt: now,
		})
	}

	s.logEvent(ctx, Event{
		LearnerID: instance.LearnerID,
		CourseID:  instance.CourseID,
		EventType: EventQuizSubmitted,
		Data: map[string]any{
			"quiz_id":    quizID,
			"score":      grade.Score,
			"total":      grade.Total,
			"percentage": grade.Percentage,
		},
		CreatedAt: now,
	})

	slog.Info("quiz submitted",
		"quiz_id", quizID,
		"learner_id", instance.LearnerID,
		"score", grade.Score,
		"total", grade.Total,
	)
	return sub, nil
}

// foldOutcomes reads each topic's current mastery and applies its graded
// responses in order. The writes carry the attempt counts that were read.
func (s *Service) foldOutcomes(ctx context.Context, learnerID string, order []string, outcomes map[string][]bool, now time.Time) ([]MasteryChange, []MasteryWrite, error) {
	changes := make([]MasteryChange, 0, len(order))
	writes := make([]MasteryWrite, 0, len(order))
	for _, topicID := range order {
		state, err := s.repo.GetOrCreateMasteryState(ctx, learnerID, topicID, s.tracker.Params())
		if err != nil {
			return nil, nil, fmt.Errorf("reading mastery of %s: %w", topicID, err)
		}

		next := state
		for _, correct := range outcomes[topicID] {
			next = next.Apply(correct, now)
		}
		writes = append(writes, MasteryWrite{State: next, PrevAttempts: state.Attempts})
		changes = append(changes, MasteryChange{TopicID: topicID, Before: state.Mastery, After: next.Mastery, Attempts: next.Attempts})
	}
	return changes, writes, nil
}

// RoadmapInput asks for a study plan. StartDate defaults to today.
type RoadmapInput struct {
	LearnerID    string   `json:"learner_id"`
	CourseID     string   `json:"course_id"`
	GoalDate     string   `json:"goal_date"`
	HoursPerWeek float64  `json:"hours_per_week"`
	StartDate    string   `json:"start_date,omitempty"`
	FocusAreas   []string `json:"focus_areas,omitempty"`
}

// GenerateRoadmap plans the learner's weeks until the goal date from current
// mastery, then stores and caches the plan.
func (s *Service) GenerateRoadmap(ctx context.Context, in RoadmapInput) (roadmap.Roadmap, error) {
	if err := requireIDs(in.LearnerID, in.CourseID); err != nil {
		return roadmap.Roadmap{}, err
	}
	course, ok := s.catalog.Course(in.CourseID)
	if !ok {
		return roadmap.Roadmap{}, fmt.Errorf("%w: course %s", ErrNotFound, in.CourseID)
	}

	topics, states, err := s.courseStates(ctx, in.LearnerID, in.CourseID)
	if err != nil {
		return roadmap.Roadmap{}, err
	}

	plan, err := s.scheduler.Generate(roadmap.Request{
		CourseID:     course.ID,
		CourseName:   course.Name,
		Topics:       topics,
		Mastery:      mastery.Values(states),
		GoalDate:     in.GoalDate,
		HoursPerWeek: in.HoursPerWeek,
		StartDate:    in.StartDate,
		FocusAreas:   in.FocusAreas,
	})
	if errors.Is(err, roadmap.ErrInvalidInput) {
		return roadmap.Roadmap{}, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	if err != nil {
		return roadmap.Roadmap{}, err
	}
	plan.LearnerID = in.LearnerID

	if err := s.repo.PersistRoadmap(ctx, plan); err != nil {
		return roadmap.Roadmap{}, fmt.Errorf("saving roadmap: %w", err)
	}
	s.cacheRoadmap(ctx, plan)

	s.logEvent(ctx, Event{
		LearnerID: in.LearnerID,
		CourseID:  in.CourseID,
		EventType: EventRoadmapGenerated,
		Data: map[string]any{
			"weeks":          plan.TotalWeeks,
			"hours_per_week": plan.HoursPerWeek,
			"goal_date":      plan.GoalDate,
		},
		CreatedAt: plan.GeneratedAt,
	})

	slog.Info("roadmap generated",
		"learner_id", in.LearnerID,
		"course_id", in.CourseID,
		"weeks", plan.TotalWeeks,
	)
	return plan, nil
}

// LatestRoadmap returns the most recently generated roadmap, from the cache
// when possible.
func (s *Service) LatestRoadmap(ctx context.Context, learnerID, courseID string) (roadmap.Roadmap, error) {
	if err := requireIDs(learnerID, courseID); err != nil {
		return roadmap.Roadmap{}, err
	}

	if s.cache != nil {
		plan, ok, err := s.cache.Get(ctx, learnerID, courseID)
		if err != nil {
			slog.Warn("roadmap cache read failed", "learner_id", learnerID, "course_id", courseID, "error", err)
		}
		if ok {
			return plan, nil
		}
	}

	plan, err := s.repo.LatestRoadmap(ctx, learnerID, courseID)
	if err != nil {
		return roadmap.Roadmap{}, err
	}
	s.cacheRoadmap(ctx, plan)
	return plan, nil
}

// AdjustRoadmap returns the latest roadmap re-read against current mastery.
// The stored plan is not changed.
func (s *Service) AdjustRoadmap(ctx context.Context, learnerID, courseID string) (roadmap.Roadmap, error) {
	plan, err := s.LatestRoadmap(ctx, learnerID, courseID)
	if err != nil {
		return roadmap.Roadmap{}, err
	}
	current, err := s.MasteryMap(ctx, learnerID, courseID)
	if err != nil {
		return roadmap.Roadmap{}, err
	}
	return roadmap.Adjust(plan, current), nil
}

func (s *Service) cacheRoadmap(ctx context.Context, plan roadmap.Roadmap) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, plan); err != nil {
		slog.Warn("roadmap cache write failed",
			"learner_id", plan.LearnerID,
			"course_id", plan.CourseID,
			"error", err,
		)
	}
}

// Recommendation points a learner at a weak topic.
type Recommendation struct {
	TopicID         string             `json:"topic_id"`
	TopicName       string             `json:"topic_name"`
	CurrentMastery  float64            `json:"current_mastery"`
	Priority        float64            `json:"priority"`
	Difficulty      mastery.Difficulty `json:"difficulty"`
	QuestionsNeeded int                `json:"questions_needed"`
}

// Recommendations lists up to five topics below 0.6 mastery, most urgent
// first. Prerequisites of other topics and topics left unpractised rank
// higher. CurrentMastery is a percentage.
func (s *Service) Recommendations(ctx context.Context, learnerID, courseID string) ([]Recommendation, error) {
	if err := requireIDs(learnerID, courseID); err != nil {
		return nil, err
	}
	topics, states, err := s.courseStates(ctx, learnerID, courseID)
	if err != nil {
		return nil, err
	}

	prerequisites := make(map[string]bool)
	for _, t := range topics {
		for _, id := range t.Prerequisites {
			prerequisites[id] = true
		}
	}
	now := s.now()
	priority := make(map[string]float64, len(topics))
	for _, t := range topics {
		st := states[t.ID]
		days := 0
		if st.Attempts > 0 && !st.UpdatedAt.IsZero() {
			days = max(0, int(now.Sub(st.UpdatedAt).Hours()/24))
		}
		priority[t.ID] = mastery.Priority(st.Mastery, prerequisites[t.ID], days)
	}

	weak := slices.DeleteFunc(slices.Clone(topics), func(t curriculum.Topic) bool {
		return states[t.ID].Mastery >= recommendationMastery
	})
	slices.SortStableFunc(weak, func(a, b curriculum.Topic) int {
		return cmp.Compare(priority[b.ID], priority[a.ID])
	})

	out := make([]Recommendation, 0, min(len(weak), maxRecommendations))
	for _, t := range weak[:min(len(weak), maxRecommendations)] {
		m := states[t.ID].Mastery
		out = append(out, Recommendation{
			TopicID:         t.ID,
			TopicName:       t.Name,
			CurrentMastery:  percent(m),
			Priority:        math.RoundToEven(priority[t.ID]*100) / 100,
			Difficulty:      mastery.RecommendDifficulty(m),
			QuestionsNeeded: s.tracker.ProjectQuestionsToMastery(m, mastery.DefaultTarget, mastery.DefaultAssumedAccuracy),
		})
	}
	return out, nil
}

// TopicProgress is one topic's line in a progress overview.
type TopicProgress struct {
	TopicID   string  `json:"topic_id"`
	TopicName string  `json:"topic_name"`
	Mastery   float64 `json:"mastery"`
	Attempts  int     `json:"attempts"`
	Correct   int     `json:"correct"`
	Accuracy  float64 `json:"accuracy"`
}

// Progress is a learner's standing in a course. Mastery and accuracy values
// are percentages.
type Progress struct {
	LearnerID      string          `json:"learner_id"`
	CourseID       string          `json:"course_id"`
	CourseName     string          `json:"course_name"`
	Topics         []TopicProgress `json:"topics"`
	AverageMastery float64         `json:"average_mastery"`
}

// Progress reports per-topic mastery for a course.
func (s *Service) Progress(ctx context.Context, learnerID, courseID string) (Progress, error) {
	if err := requireIDs(learnerID, courseID); err != nil {
		return Progress{}, err
	}
	topics, states, err := s.courseStates(ctx, learnerID, courseID)
	if err != nil {
		return Progress{}, err
	}
	course, _ := s.catalog.Course(courseID)

	p := Progress{
		LearnerID:  learnerID,
		CourseID:   courseID,
		CourseName: course.Name,
		Topics:     make([]TopicProgress, 0, len(topics)),
	}
	var sum float64
	for _, t := range topics {
		st := states[t.ID]
		tp := TopicProgress{
			TopicID:   t.ID,
			TopicName: t.Name,
			Mastery:   percent(st.Mastery),
			Attempts:  st.Attempts,
			Correct:   st.CorrectCount,
			Accuracy:  percent(st.Accuracy()),
		}
		sum += tp.Mastery
		p.Topics = append(p.Topics, tp)
	}
	if len(p.Topics) > 0 {
		p.AverageMastery = math.RoundToEven(10*sum/float64(len(p.Topics))) / 10
	}
	return p, nil
}

func (s *Service) logEvent(ctx context.Context, event Event) {
	if err := s.events.LogEvent(ctx, event); err != nil {
		slog.Warn("failed to log event",
			"type", event.EventType,
			"learner_id", event.LearnerID,
			"error", err,
		)
	}
}

func requireIDs(learnerID, courseID string) error {
	switch {
	case strings.TrimSpace(learnerID) == "":
		return fmt.Errorf("%w: learner id is required", ErrInvalidInput)
	case strings.TrimSpace(courseID) == "":
		return fmt.Errorf("%w: course id is required", ErrInvalidInput)
	}
	return nil
}

func percent(m float64) float64 {
	return math.RoundToEven(m*1000) / 10
}
