package model

import "fmt"

// Forager enumerates the behavioral model families the fitting engine can
// evaluate. The zero value is invalid.
type Forager int

const (
	ForagerUnknown Forager = iota
	LossCounting
	RW1972Epsi
	LNPSoftmax
	RW1972Softmax
	Hattori2019
	Bari2019
	LNPSoftmaxCK
	RW1972SoftmaxCK
	Hattori2019CK
	Bari2019CK
)

var foragerNames = map[Forager]string{
	LossCounting:    "LossCounting",
	RW1972Epsi:      "RW1972_epsi",
	LNPSoftmax:      "LNP_softmax",
	RW1972Softmax:   "RW1972_softmax",
	Hattori2019:     "Hattori2019",
	Bari2019:        "Bari2019",
	LNPSoftmaxCK:    "LNP_softmax_CK",
	RW1972SoftmaxCK: "RW1972_softmax_CK",
	Hattori2019CK:   "Hattori2019_CK",
	Bari2019CK:      "Bari2019_CK",
}

func (f Forager) String() string {
	if name, ok := foragerNames[f]; ok {
		return name
	}
	return fmt.Sprintf("Forager(%d)", int(f))
}

func (f Forager) Valid() bool {
	_, ok := foragerNames[f]
	return ok
}

// ParseForager maps the canonical model family name back to its enum value.
func ParseForager(name string) (Forager, error) {
	for f, n := range foragerNames {
		if n == name {
			return f, nil
		}
	}
	return ForagerUnknown, fmt.Errorf("unknown forager %q", name)
}

func (f Forager) MarshalText() ([]byte, error) {
	if !f.Valid() {
		return nil, fmt.Errorf("cannot marshal invalid forager %d", int(f))
	}
	return []byte(f.String()), nil
}

func (f *Forager) UnmarshalText(text []byte) error {
	parsed, err := ParseForager(string(text))
	if err != nil {
		return err
	}
	*f = parsed
	return nil
}
