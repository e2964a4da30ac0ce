package fitting

import "fmt"

// Method selects the global optimiser used by Fit.
type Method int

const (
	MethodDE Method = iota
	MethodLocal
)

func (m Method) String() string {
	switch m {
	case MethodDE:
		return "DE"
	case MethodLocal:
		return "local"
	default:
		return fmt.Sprintf("Method(%d)", int(m))
	}
}

func ParseMethod(name string) (Method, error) {
	switch name {
	case "", "DE", "de", "differential_evolution":
		return MethodDE, nil
	case "local", "nelder_mead":
		return MethodLocal, nil
	default:
		return 0, fmt.Errorf("unsupported fit method %q", name)
	}
}

func (m Method) MarshalText() ([]byte, error) {
	switch m {
	case MethodDE, MethodLocal:
		return []byte(m.String()), nil
	default:
		return nil, fmt.Errorf("cannot marshal fit method %d", int(m))
	}
}

func (m *Method) UnmarshalText(text []byte) error {
	parsed, err := ParseMethod(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
