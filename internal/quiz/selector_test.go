package quiz_test

import (
	"fmt"
	"slices"
	"testing"

	"github.com/p-n-ai/study-pilot/internal/curriculum"
	"github.com/p-n-ai/study-pilot/internal/mastery"
	"github.com/p-n-ai/study-pilot/internal/quiz"
)

// bank builds count questions per difficulty for a topic.
func bank(topicID string, counts map[mastery.Difficulty]int) []curriculum.Question {
	var qs []curriculum.Question
	for _, d := range []mastery.Difficulty{mastery.Easy, mastery.Medium, mastery.Hard} {
		for i := range counts[d] {
			qs = append(qs, curriculum.Question{
				ID:            fmt.Sprintf("%s-%s-%d", topicID, d, i),
				TopicID:       topicID,
				Text:          "question",
				Difficulty:    d,
				Type:          curriculum.ShortAnswer,
				CorrectAnswer: "answer",
			})
		}
	}
	return qs
}

// catalogOf builds a one-course catalog holding questions, with a topic per
// distinct topic ID.
func catalogOf(t *testing.T, questions ...[]curriculum.Question) *curriculum.Catalog {
	t.Helper()
	qs := slices.Concat(questions...)
	var topics []curriculum.Topic
	seen := map[string]bool{}
	for _, q := range qs {
		if !seen[q.TopicID] {
			seen[q.TopicID] = true
			topics = append(topics, curriculum.Topic{ID: q.TopicID, Name: "Topic " + q.TopicID})
		}
	}
	catalog, err := curriculum.NewCatalog([]curriculum.Course{{ID: "c", Name: "Course", Topics: topics, Questions: qs}})
	if err != nil {
		t.Fatalf("NewCatalog() error = %v", err)
	}
	return catalog
}

func ids(qs []curriculum.Question) []string {
	out := make([]string, len(qs))
	for i, q := range qs {
		out[i] = q.ID
	}
	return out
}

func countBy[K comparable](qs []curriculum.Question, key func(curriculum.Question) K) map[K]int {
	out := make(map[K]int)
	for _, q := range qs {
		out[key(q)]++
	}
	return out
}

func byTopic(q curriculum.Question) string                  { return q.TopicID }
func byDifficulty(q curriculum.Question) mastery.Difficulty { return q.Difficulty }

func TestSelectAdaptive_SameSeedSameQuiz(t *testing.T) {
	questions := catalogOf(t,
		bank("A", map[mastery.Difficulty]int{mastery.Easy: 4, mastery.Medium: 4, mastery.Hard: 4}),
		bank("B", map[mastery.Difficulty]int{mastery.Easy: 4, mastery.Medium: 4, mastery.Hard: 4}),
	)
	masteryMap := map[string]float64{"A": 0.2, "B": 0.7}

	first := quiz.NewSeededSelector(42).SelectAdaptive(questions, masteryMap, 8)
	second := quiz.NewSeededSelector(42).SelectAdaptive(questions, masteryMap, 8)

	if !slices.Equal(ids(first), ids(second)) {
		t.Errorf("same seed produced different quizzes:\n%v\n%v", ids(first), ids(second))
	}
}

func TestSelectAdaptive_WeakTopicsGetMore(t *testing.T) {
	questions := catalogOf(t,
		bank("A", map[mastery.Difficulty]int{mastery.Easy: 10}),
		bank("B", map[mastery.Difficulty]int{mastery.Hard: 10}),
	)

	got := quiz.NewSeededSelector(1).SelectAdaptive(questions, map[string]float64{"A": 0.1, "B": 0.9}, 10)

	counts := countBy(got, byTopic)
	if counts["A"] != 8 || counts["B"] != 2 {
		t.Errorf("topic counts = %v, want A:8 B:2", counts)
	}
}

func TestSelectAdaptive_StrongTopicKeepsOneQuestion(t *testing.T) {
	questions := catalogOf(t,
		bank("A", map[mastery.Difficulty]int{mastery.Medium: 10}),
		bank("B", map[mastery.Difficulty]int{mastery.Hard: 10}),
	)

	got := quiz.NewSeededSelector(7).SelectAdaptive(questions, map[string]float64{"A": 0, "B": 0.95}, 5)

	counts := countBy(got, byTopic)
	if counts["B"] != 1 || counts["A"] != 4 {
		t.Errorf("topic counts = %v, want A:4 B:1", counts)
	}
}

func TestSelectAdaptive_PrefersRecommendedDifficulty(t *testing.T) {
	tests := []struct {
		name    string
		mastery float64
		want    mastery.Difficulty
	}{
		{"novice gets easy", 0.1, mastery.Easy},
		{"developing gets medium", 0.45, mastery.Medium},
		{"proficient gets hard", 0.7, mastery.Hard},
		{"challenge band served by hard", 0.9, mastery.Hard},
	}

	questions := catalogOf(t, bank("A", map[mastery.Difficulty]int{mastery.Easy: 5, mastery.Medium: 5, mastery.Hard: 5}))
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := quiz.NewSeededSelector(3).SelectAdaptive(questions, map[string]float64{"A": tt.mastery}, 3)
			if len(got) != 3 {
				t.Fatalf("len = %d, want 3", len(got))
			}
			for _, q := range got {
				if q.Difficulty != tt.want {
					t.Errorf("question %s difficulty = %s, want %s", q.ID, q.Difficulty, tt.want)
				}
			}
		})
	}
}

func TestSelectAdaptive_FallsBackToOtherDifficulties(t *testing.T) {
	questions := catalogOf(t, bank("A", map[mastery.Difficulty]int{mastery.Easy: 1, mastery.Hard: 4}))

	got := quiz.NewSeededSelector(5).SelectAdaptive(questions, map[string]float64{"A": 0}, 3)

	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	if counts := countBy(got, byDifficulty); counts[mastery.Easy] != 1 {
		t.Errorf("difficulty counts = %v, want the single easy question included", counts)
	}
}

func TestSelectAdaptive_Properties(t *testing.T) {
	questions := catalogOf(t,
		bank("A", map[mastery.Difficulty]int{mastery.Easy: 3, mastery.Medium: 2}),
		bank("B", map[mastery.Difficulty]int{mastery.Hard: 2}),
		bank("C", map[mastery.Difficulty]int{mastery.Medium: 6}),
		bank("D", map[mastery.Difficulty]int{mastery.Easy: 6}),
	)
	masteryMap := map[string]float64{"A": 0.3, "B": 0.5, "C": 0.8}

	for seed := range uint64(50) {
		for _, n := range []int{1, 3, 5, 10, 40} {
			got := quiz.NewSeededSelector(seed).SelectAdaptive(questions, masteryMap, n)

			if len(got) > n {
				t.Fatalf("seed %d n %d: len = %d", seed, n, len(got))
			}
			seen := map[string]bool{}
			for _, q := range got {
				if seen[q.ID] {
					t.Fatalf("seed %d n %d: duplicate %s", seed, n, q.ID)
				}
				seen[q.ID] = true
				if q.TopicID == "D" {
					t.Fatalf("seed %d n %d: picked topic outside the mastery map", seed, n)
				}
			}
		}
	}
}

func TestSelectAdaptive_Empty(t *testing.T) {
	sel := quiz.NewSeededSelector(1)
	questions := catalogOf(t, bank("A", map[mastery.Difficulty]int{mastery.Easy: 2}))

	if got := sel.SelectAdaptive(catalogOf(t), map[string]float64{"A": 0.5}, 5); len(got) != 0 {
		t.Errorf("empty catalog: len = %d", len(got))
	}
	if got := sel.SelectAdaptive(questions, map[string]float64{"A": 0.5}, 0); len(got) != 0 {
		t.Errorf("n = 0: len = %d", len(got))
	}
	if got := sel.SelectAdaptive(questions, nil, 5); len(got) != 0 {
		t.Errorf("no topics: len = %d", len(got))
	}
}

func TestSelectSingleTopic_ReturnsAllWhenFew(t *testing.T) {
	questions := catalogOf(t,
		bank("A", map[mastery.Difficulty]int{mastery.Easy: 2, mastery.Hard: 1}),
		bank("B", map[mastery.Difficulty]int{mastery.Easy: 5}),
	)

	got := quiz.NewSeededSelector(1).SelectSingleTopic(questions, "A", 10)

	if len(got) != 3 {
		t.Fatalf("len = %d, want all 3 questions of topic A", len(got))
	}
	if counts := countBy(got, byTopic); counts["A"] != 3 {
		t.Errorf("topic counts = %v", counts)
	}
}

func TestSelectSingleTopic_Mix(t *testing.T) {
	tests := []struct {
		name string
		pool map[mastery.Difficulty]int
		n    int
		want map[mastery.Difficulty]int
	}{
		{
			name: "full pools",
			pool: map[mastery.Difficulty]int{mastery.Easy: 10, mastery.Medium: 10, mastery.Hard: 10},
			n:    10,
			want: map[mastery.Difficulty]int{mastery.Easy: 3, mastery.Medium: 5, mastery.Hard: 2},
		},
		{
			name: "backfills from leftovers",
			pool: map[mastery.Difficulty]int{mastery.Medium: 2, mastery.Hard: 10},
			n:    10,
			want: map[mastery.Difficulty]int{mastery.Medium: 2, mastery.Hard: 8},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := quiz.NewSeededSelector(9).SelectSingleTopic(catalogOf(t, bank("A", tt.pool)), "A", tt.n)
			if len(got) != tt.n {
				t.Fatalf("len = %d, want %d", len(got), tt.n)
			}
			counts := countBy(got, byDifficulty)
			for d, want := range tt.want {
				if counts[d] != want {
					t.Errorf("%s = %d, want %d (all: %v)", d, counts[d], want, counts)
				}
			}
		})
	}
}

func TestSelectSingleTopic_SmallQuizTruncates(t *testing.T) {
	questions := catalogOf(t, bank("A", map[mastery.Difficulty]int{mastery.Easy: 5, mastery.Medium: 5, mastery.Hard: 5}))

	got := quiz.NewSeededSelector(2).SelectSingleTopic(questions, "A", 2)

	if len(got) != 2 {
		t.Errorf("len = %d, want 2", len(got))
	}
}

func TestSelectSingleTopic_UnknownTopic(t *testing.T) {
	questions := catalogOf(t, bank("A", map[mastery.Difficulty]int{mastery.Easy: 5}))
	if got := quiz.NewSeededSelector(2).SelectSingleTopic(questions, "Z", 5); len(got) != 0 {
		t.Errorf("len = %d, want 0", len(got))
	}
}

func TestSelectSingleTopic_ExactPoolAlwaysReturnsAll(t *testing.T) {
	questions := catalogOf(t,
		bank("A", map[mastery.Difficulty]int{mastery.Easy: 2, mastery.Medium: 2, mastery.Hard: 1}),
		bank("B", map[mastery.Difficulty]int{mastery.Medium: 3}),
	)
	want := ids(bank("A", map[mastery.Difficulty]int{mastery.Easy: 2, mastery.Medium: 2, mastery.Hard: 1}))
	slices.Sort(want)

	for i := range 20 {
		got := ids(quiz.NewSelector(nil).SelectSingleTopic(questions, "A", 5))
		slices.Sort(got)
		if !slices.Equal(got, want) {
			t.Fatalf("run %d: got %v, want every question of topic A", i, got)
		}
	}
}

func TestSelector_DoesNotReorderCatalog(t *testing.T) {
	questions := catalogOf(t, bank("A", map[mastery.Difficulty]int{mastery.Easy: 3}))
	before := ids(questions.Pool("A", mastery.Easy))

	quiz.NewSeededSelector(4).SelectSingleTopic(questions, "A", 5)
	quiz.NewSeededSelector(4).SelectAdaptive(questions, map[string]float64{"A": 0.1}, 5)

	if !slices.Equal(before, ids(questions.Pool("A", mastery.Easy))) {
		t.Error("selection must not reorder the catalog's pools")
	}
}
