// Package quiz selects adaptive quizzes from a question catalog and grades them.
package quiz

import (
	"math"
	"math/rand/v2"
	"slices"
	"sync"

	"github.com/p-n-ai/study-pilot/internal/curriculum"
	"github.com/p-n-ai/study-pilot/internal/mastery"
)

const coverageFloor = 0.1

// Single-topic difficulty mix.
const (
	easyShare   = 0.3
	mediumShare = 0.5
	hardShare   = 0.2
)

// Selector picks quiz questions. Shuffling draws from the injected random
// source, so a fixed seed yields a fixed selection.
type Selector struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewSelector creates a Selector drawing from rng. A nil rng is replaced by a
// randomly seeded source.
func NewSelector(rng *rand.Rand) *Selector {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &Selector{rng: rng}
}

// NewSeededSelector creates a deterministic Selector.
func NewSeededSelector(seed uint64) *Selector {
	return NewSelector(rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)))
}

func (s *Selector) shuffle(qs []curriculum.Question) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rng.Shuffle(len(qs), func(i, j int) { qs[i], qs[j] = qs[j], qs[i] })
}

// Pools serves the questions of a topic at one difficulty. Each call returns
// a slice the caller may reorder. *curriculum.Catalog implements it.
type Pools interface {
	Pool(topicID string, d mastery.Difficulty) []curriculum.Question
}

var difficulties = []mastery.Difficulty{mastery.Easy, mastery.Medium, mastery.Hard}

// SelectAdaptive picks up to n questions across the topics of masteryMap.
// Weaker topics get proportionally more questions, every listed topic gets at
// least one, and each topic prefers questions at its recommended difficulty.
// Topics missing from masteryMap are never drawn from.
func (s *Selector) SelectAdaptive(pools Pools, masteryMap map[string]float64, n int) []curriculum.Question {
	if pools == nil || n <= 0 || len(masteryMap) == 0 {
		return nil
	}

	topicIDs := make([]string, 0, len(masteryMap))
	var total float64
	for id, m := range masteryMap {
		topicIDs = append(topicIDs, id)
		total += weight(m)
	}
	slices.Sort(topicIDs)

	var selected []curriculum.Question
	for _, id := range topicIDs {
		m := masteryMap[id]
		ordered := s.orderByTarget(pools, id, mastery.RecommendDifficulty(m))
		if len(ordered) == 0 {
			continue
		}
		count := max(1, int(math.RoundToEven(float64(n)*weight(m)/total)))
		selected = append(selected, ordered[:min(count, len(ordered))]...)
	}

	s.shuffle(selected)
	return selected[:min(n, len(selected))]
}

func weight(m float64) float64 {
	return (1 - m) + coverageFloor
}

// orderByTarget returns the topic's questions with the target-difficulty pool
// first; both halves are shuffled. The challenge band has no catalog
// questions of its own and is served by hard questions.
func (s *Selector) orderByTarget(pools Pools, topicID string, target mastery.Difficulty) []curriculum.Question {
	if target == mastery.Challenge {
		target = mastery.Hard
	}

	matching := pools.Pool(topicID, target)
	var others []curriculum.Question
	for _, d := range difficulties {
		if d != target {
			others = append(others, pools.Pool(topicID, d)...)
		}
	}
	s.shuffle(matching)
	s.shuffle(others)
	return append(matching, others...)
}

// SelectSingleTopic picks up to n questions for one topic, aiming for a
// 30/50/20 easy/medium/hard mix and backfilling from any difficulty.
func (s *Selector) SelectSingleTopic(pools Pools, topicID string, n int) []curriculum.Question {
	if pools == nil || n <= 0 {
		return nil
	}

	buckets := make(map[mastery.Difficulty][]curriculum.Question, len(difficulties))
	var all []curriculum.Question
	for _, d := range difficulties {
		buckets[d] = pools.Pool(topicID, d)
		all = append(all, buckets[d]...)
	}
	if len(all) <= n {
		s.shuffle(all)
		return all
	}

	var selected, leftovers []curriculum.Question
	for _, mix := range []struct {
		difficulty mastery.Difficulty
		share      float64
	}{
		{mastery.Easy, easyShare},
		{mastery.Medium, mediumShare},
		{mastery.Hard, hardShare},
	} {
		bucket := buckets[mix.difficulty]
		if len(bucket) == 0 {
			continue
		}
		s.shuffle(bucket)
		want := min(len(bucket), max(1, int(float64(n)*mix.share)))
		selected = append(selected, bucket[:want]...)
		leftovers = append(leftovers, bucket[want:]...)
	}

	if short := n - len(selected); short > 0 {
		s.shuffle(leftovers)
		selected = append(selected, leftovers[:min(short, len(leftovers))]...)
	}

	s.shuffle(selected)
	return selected[:min(n, len(selected))]
}
