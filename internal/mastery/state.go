package mastery

import "time"

// State is the mastery record for one (learner, topic) pair.
type State struct {
	LearnerID    string    `json:"learner_id"`
	TopicID      string    `json:"topic_id"`
	Mastery      float64   `json:"mastery"`
	PLearn       float64   `json:"p_learn"`
	PGuess       float64   `json:"p_guess"`
	PSlip        float64   `json:"p_slip"`
	Attempts     int       `json:"attempts"`
	CorrectCount int       `json:"correct_count"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// NewState returns the initial state for a pair that has never been observed.
func NewState(learnerID, topicID string, params Params) State {
	return State{
		LearnerID: learnerID,
		TopicID:   topicID,
		Mastery:   0,
		PLearn:    params.PLearn,
		PGuess:    params.PGuess,
		PSlip:     params.PSlip,
	}
}

// Params returns the tracing parameters stored on the state.
func (s State) Params() Params {
	return Params{PLearn: s.PLearn, PGuess: s.PGuess, PSlip: s.PSlip}
}

// Apply returns a copy of s updated with one graded response.
func (s State) Apply(correct bool, now time.Time) State {
	s.Mastery = s.Params().Update(s.Mastery, correct)
	s.Attempts++
	if correct {
		s.CorrectCount++
	}
	s.UpdatedAt = now
	return s
}

// Accuracy returns the share of correct attempts, or 0 before the first attempt.
func (s State) Accuracy() float64 {
	if s.Attempts == 0 {
		return 0
	}
	return float64(s.CorrectCount) / float64(s.Attempts)
}

// Values flattens a state map to topic → mastery.
func Values(states map[string]State) map[string]float64 {
	out := make(map[string]float64, len(states))
	for id, s := range states {
		out[id] = s.Mastery
	}
	return out
}
