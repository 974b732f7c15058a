// Package mastery implements Bayesian knowledge tracing for per-topic mastery.
//
// Mastery is modelled as a hidden binary state (mastered or not). Each graded
// response is an observation: a Bayes step conditions the prior on the
// response, then a learning transition models the chance of learning from the
// attempt itself.
package mastery

import (
	"errors"
	"fmt"
)

// ErrInvalidParameters is returned when tracing parameters fall outside [0, 1].
var ErrInvalidParameters = errors.New("mastery: parameters out of bounds")

const (
	// DefaultTarget is the mastery probability treated as "mastered" by projections.
	DefaultTarget = 0.95
	// DefaultAssumedAccuracy is the expected share of correct answers used by projections.
	DefaultAssumedAccuracy = 0.7

	maxProjectedQuestions = 100
)

// Params are the per-topic knowledge tracing parameters.
type Params struct {
	PLearn float64 `json:"p_learn" yaml:"p_learn"` // P(T): learning per attempt
	PGuess float64 `json:"p_guess" yaml:"p_guess"` // P(G): correct while not mastered
	PSlip  float64 `json:"p_slip" yaml:"p_slip"`   // P(S): incorrect while mastered
}

// DefaultParams are applied to every lazily created mastery state.
var DefaultParams = Params{PLearn: 0.3, PGuess: 0.25, PSlip: 0.1}

// Validate checks that every parameter is a probability.
func (p Params) Validate() error {
	for name, v := range map[string]float64{"p_learn": p.PLearn, "p_guess": p.PGuess, "p_slip": p.PSlip} {
		if v < 0 || v > 1 {
			return fmt.Errorf("%w: %s = %f", ErrInvalidParameters, name, v)
		}
	}
	return nil
}

// Update returns the mastery probability after observing one response.
// The result is always within [0, 1].
func (p Params) Update(prior float64, correct bool) float64 {
	var num, den float64
	if correct {
		num = (1 - p.PSlip) * prior
		den = num + p.PGuess*(1-prior)
	} else {
		num = p.PSlip * prior
		den = num + (1-p.PGuess)*(1-prior)
	}

	posterior := prior
	if den != 0 {
		posterior = num / den
	}

	return clamp01(posterior + (1-posterior)*p.PLearn)
}

// Tracker applies a fixed parameter set to mastery estimates.
type Tracker struct {
	params Params
}

// NewTracker creates a Tracker, rejecting parameters outside [0, 1].
func NewTracker(params Params) (*Tracker, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return &Tracker{params: params}, nil
}

// DefaultTracker returns a Tracker using DefaultParams.
func DefaultTracker() *Tracker {
	return &Tracker{params: DefaultParams}
}

// Params returns the tracker's parameters.
func (t *Tracker) Params() Params {
	return t.params
}

// Update returns the mastery probability after observing one response.
func (t *Tracker) Update(p float64, correct bool) float64 {
	return t.params.Update(p, correct)
}

// UpdateSequence replays responses from p0 and returns the final estimate
// together with the full trajectory (p0 first).
func (t *Tracker) UpdateSequence(p0 float64, responses []bool) (float64, []float64) {
	p := p0
	history := make([]float64, 0, len(responses)+1)
	history = append(history, p)
	for _, correct := range responses {
		p = t.Update(p, correct)
		history = append(history, p)
	}
	return p, history
}

// ProjectQuestionsToMastery estimates how many questions are needed to move
// from current to target, mixing the correct and incorrect branches by the
// assumed accuracy. The estimate is capped at 100 questions.
func (t *Tracker) ProjectQuestionsToMastery(current, target, assumedAccuracy float64) int {
	if current >= target {
		return 0
	}

	p := current
	n := 0
	for p < target && n < maxProjectedQuestions {
		ifCorrect := t.Update(p, true)
		ifIncorrect := t.Update(p, false)
		p = assumedAccuracy*ifCorrect + (1-assumedAccuracy)*ifIncorrect
		n++
	}
	return n
}

// Difficulty is a recommended question difficulty band.
type Difficulty string

const (
	Easy      Difficulty = "easy"
	Medium    Difficulty = "medium"
	Hard      Difficulty = "hard"
	Challenge Difficulty = "challenge"
)

// RecommendDifficulty maps a mastery estimate to a difficulty band.
func RecommendDifficulty(m float64) Difficulty {
	switch {
	case m < 0.3:
		return Easy
	case m < 0.6:
		return Medium
	case m < 0.85:
		return Hard
	default:
		return Challenge
	}
}

// Priority scores how urgently a topic needs attention, in [0, 1].
// Prerequisites of upcoming topics are boosted by 30% and topics left
// unpractised gain up to 0.2.
func Priority(m float64, isPrerequisite bool, daysSincePractice int) float64 {
	p := 1 - m
	if isPrerequisite {
		p *= 1.3
	}
	p += min(0.2, float64(daysSincePractice)*0.02)
	return clamp01(p)
}

func clamp01(v float64) float64 {
	return max(0, min(1, v))
}
