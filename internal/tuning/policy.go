package tuning

import "fmt"

// AttemptPolicy decides how many polish attempts a problem of the given
// dimension receives.
type AttemptPolicy interface {
	Name() string
	Attempts(baseAttempts, dims int) int
}

type FixedAttemptPolicy struct{}

func (FixedAttemptPolicy) Name() string { return "fixed" }

func (FixedAttemptPolicy) Attempts(baseAttempts, _ int) int {
	if baseAttempts < 0 {
		return 0
	}
	return baseAttempts
}

// DimensionScaledAttemptPolicy grows attempts linearly with the number of
// free parameters.
type DimensionScaledAttemptPolicy struct {
	Scale       float64
	MaxAttempts int
}

func (DimensionScaledAttemptPolicy) Name() string { return "dimension_scaled" }

func (p DimensionScaledAttemptPolicy) Attempts(baseAttempts, dims int) int {
	if baseAttempts <= 0 {
		return 0
	}
	scale := p.Scale
	if scale <= 0 {
		scale = 1.0
	}
	attempts := int(float64(baseAttempts) * scale * float64(max(dims, 1)))
	if p.MaxAttempts > 0 && attempts > p.MaxAttempts {
		attempts = p.MaxAttempts
	}
	return attempts
}

func AttemptPolicyFromConfig(name string, param float64) (AttemptPolicy, error) {
	switch name {
	case "", "fixed", "const":
		return FixedAttemptPolicy{}, nil
	case "dimension_scaled":
		return DimensionScaledAttemptPolicy{Scale: param}, nil
	default:
		return nil, fmt.Errorf("unsupported polish attempt policy: %s", name)
	}
}
