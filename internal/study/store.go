// Package study wires mastery tracking, quiz selection and roadmap planning to
// persistence. Every caller (HTTP server, CLI) goes through its Service.
package study

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/p-n-ai/study-pilot/internal/mastery"
	"github.com/p-n-ai/study-pilot/internal/roadmap"
)

var (
	// ErrInvalidInput is returned for malformed requests.
	ErrInvalidInput = errors.New("study: invalid input")
	// ErrNotFound is returned when a course, quiz or roadmap does not exist.
	ErrNotFound = errors.New("study: not found")
	// ErrAlreadySubmitted is returned when a quiz is submitted twice.
	ErrAlreadySubmitted = errors.New("study: quiz already submitted")
	// ErrStaleMastery is returned when a mastery state changed since it was read.
	ErrStaleMastery = errors.New("study: mastery state changed concurrently")
)

// QuizInstance is a generated quiz and, once submitted, its responses.
type QuizInstance struct {
	ID          string     `json:"id"`
	LearnerID   string     `json:"learner_id"`
	CourseID    string     `json:"course_id"`
	TopicID     string     `json:"topic_id,omitempty"`
	QuestionIDs []string   `json:"questions"`
	Responses   []string   `json:"responses,omitempty"`
	Score       int        `json:"score"`
	Percentage  float64    `json:"percentage"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Completed reports whether responses have been recorded.
func (q QuizInstance) Completed() bool {
	return q.CompletedAt != nil
}

// Repository persists learner state. Course content is read from the
// curriculum catalog, not from the repository.
type Repository interface {
	// MasteryMap returns the stored states for the given topics. Topics never
	// attempted are absent.
	MasteryMap(ctx context.Context, learnerID string, topicIDs []string) (map[string]mastery.State, error)
	// GetOrCreateMasteryState returns the state for a pair, storing a fresh one
	// with params if none exists.
	GetOrCreateMasteryState(ctx context.Context, learnerID, topicID string, params mastery.Params) (mastery.State, error)

	PersistQuizInstance(ctx context.Context, q QuizInstance) error
	GetQuizInstance(ctx context.Context, id string) (QuizInstance, error)
	// CompleteQuizInstance records responses and score together with the
	// mastery writes they produced, exactly once. Nothing is stored when the
	// quiz was already completed (ErrAlreadySubmitted) or when any write is
	// stale (ErrStaleMastery).
	CompleteQuizInstance(ctx context.Context, q QuizInstance, writes []MasteryWrite) error

	PersistRoadmap(ctx context.Context, r roadmap.Roadmap) error
	LatestRoadmap(ctx context.Context, learnerID, courseID string) (roadmap.Roadmap, error)
}

// MasteryWrite is a mastery state to store. It only applies while the stored
// attempt count still equals PrevAttempts.
type MasteryWrite struct {
	State        mastery.State
	PrevAttempts int
}

type pairKey struct {
	learnerID string
	topicID   string
}

type planKey struct {
	learnerID string
	courseID  string
}

// MemoryRepository is an in-memory Repository for tests and the CLI.
type MemoryRepository struct {
	mu       sync.RWMutex
	mastery  map[pairKey]mastery.State
	quizzes  map[string]QuizInstance
	roadmaps map[planKey]roadmap.Roadmap
}

// NewMemoryRepository creates an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		mastery:  make(map[pairKey]mastery.State),
		quizzes:  make(map[string]QuizInstance),
		roadmaps: make(map[planKey]roadmap.Roadmap),
	}
}

func (r *MemoryRepository) MasteryMap(_ context.Context, learnerID string, topicIDs []string) (map[string]mastery.State, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]mastery.State)
	for _, id := range topicIDs {
		if s, ok := r.mastery[pairKey{learnerID, id}]; ok {
			out[id] = s
		}
	}
	return out, nil
}

func (r *MemoryRepository) GetOrCreateMasteryState(_ context.Context, learnerID, topicID string, params mastery.Params) (mastery.State, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := pairKey{learnerID, topicID}
	if s, ok := r.mastery[key]; ok {
		return s, nil
	}
	s := mastery.NewState(learnerID, topicID, params)
	s.UpdatedAt = time.Now().UTC()
	r.mastery[key] = s
	return s, nil
}

func (r *MemoryRepository) PersistQuizInstance(_ context.Context, q QuizInstance) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	q.QuestionIDs = slices.Clone(q.QuestionIDs)
	r.quizzes[q.ID] = q
	return nil
}

func (r *MemoryRepository) GetQuizInstance(_ context.Context, id string) (QuizInstance, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	q, ok := r.quizzes[id]
	if !ok {
		return QuizInstance{}, fmt.Errorf("%w: quiz %s", ErrNotFound, id)
	}
	q.QuestionIDs = slices.Clone(q.QuestionIDs)
	q.Responses = slices.Clone(q.Responses)
	return q, nil
}

func (r *MemoryRepository) CompleteQuizInstance(_ context.Context, q QuizInstance, writes []MasteryWrite) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.quizzes[q.ID]
	if !ok {
		return fmt.Errorf("%w: quiz %s", ErrNotFound, q.ID)
	}
	if stored.Completed() {
		return fmt.Errorf("%w: %s", ErrAlreadySubmitted, q.ID)
	}
	for _, w := range writes {
		key := pairKey{w.State.LearnerID, w.State.TopicID}
		if current, ok := r.mastery[key]; ok && current.Attempts != w.PrevAttempts {
			return fmt.Errorf("%w: %s/%s", ErrStaleMastery, w.State.LearnerID, w.State.TopicID)
		}
	}
	for _, w := range writes {
		r.mastery[pairKey{w.State.LearnerID, w.State.TopicID}] = w.State
	}

	completedAt := time.Now().UTC()
	if q.CompletedAt != nil {
		completedAt = *q.CompletedAt
	}
	stored.Responses = slices.Clone(q.Responses)
	stored.Score = q.Score
	stored.Percentage = q.Percentage
	stored.CompletedAt = &completedAt
	r.quizzes[q.ID] = stored
	return nil
}

func (r *MemoryRepository) PersistRoadmap(_ context.Context, plan roadmap.Roadmap) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := planKey{plan.LearnerID, plan.CourseID}
	if prev, ok := r.roadmaps[key]; ok && prev.GeneratedAt.After(plan.GeneratedAt) {
		return nil
	}
	r.roadmaps[key] = plan
	return nil
}

func (r *MemoryRepository) LatestRoadmap(_ context.Context, learnerID, courseID string) (roadmap.Roadmap, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	plan, ok := r.roadmaps[planKey{learnerID, courseID}]
	if !ok {
		return roadmap.Roadmap{}, fmt.Errorf("%w: roadmap for %s/%s", ErrNotFound, learnerID, courseID)
	}
	return plan, nil
}
