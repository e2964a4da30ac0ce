package tuning

import "context"

// Objective scores a parameter vector; lower is better.
type Objective func(ctx context.Context, x []float64) (float64, error)

// Bounds is the closed box a tuner keeps candidates in.
type Bounds struct {
	Lower []float64
	Upper []float64
}

func (b Bounds) Dim() int {
	return len(b.Lower)
}

// Clamp projects x into the box in place and returns it.
func (b Bounds) Clamp(x []float64) []float64 {
	for i := range x {
		if x[i] < b.Lower[i] {
			x[i] = b.Lower[i]
		}
		if x[i] > b.Upper[i] {
			x[i] = b.Upper[i]
		}
	}
	return x
}

type TuneReport struct {
	AttemptsPlanned      int `json:"attempts_planned"`
	AttemptsExecuted     int `json:"attempts_executed"`
	CandidateEvaluations int `json:"candidate_evaluations"`
	AcceptedCandidates   int `json:"accepted_candidates"`
	RejectedCandidates   int `json:"rejected_candidates"`
}

type Result struct {
	X      []float64
	Value  float64
	Report TuneReport
}

// Tuner refines a starting point inside bounds within an attempt budget.
type Tuner interface {
	Name() string
	Tune(ctx context.Context, x []float64, bounds Bounds, attempts int, objective Objective) (Result, error)
}
