package comparison

import (
	"fmt"

	"foragerfit/internal/model"
)

// Combine returns the union of two comparisons fit on the same history.
// Neither input is modified. Derived columns are recomputed over the union
// because the set minimum may move.
func Combine(a, b *Comparison) (*Comparison, error) {
	if a == nil || b == nil {
		return nil, fmt.Errorf("%w: nil comparison", ErrCombineMismatch)
	}
	if !a.history.Equal(b.history) {
		return nil, ErrCombineMismatch
	}
	if len(a.raw) != len(a.models) || len(b.raw) != len(b.models) {
		return nil, fmt.Errorf("combine requires fitted comparisons (%d/%d and %d/%d fits)", len(a.raw), len(a.models), len(b.raw), len(b.models))
	}

	out := &Comparison{history: a.history.Clone(), logger: a.logger}
	out.models = append(a.Models(), b.Models()...)
	out.raw = append(a.RawResults(), b.raw...)
	out.rows = DeriveTable(out.models, out.raw)

	out.cv = a.CV()
	for _, row := range b.cv {
		row.ModelIndex += len(a.models)
		out.cv = append(out.cv, row)
	}
	return out, nil
}

// CombineRecords is Combine over persisted snapshots.
func CombineRecords(a, b model.ComparisonRecord) (model.ComparisonRecord, error) {
	ca, err := FromRecord(a, nil)
	if err != nil {
		return model.ComparisonRecord{}, err
	}
	cb, err := FromRecord(b, nil)
	if err != nil {
		return model.ComparisonRecord{}, err
	}
	combined, err := Combine(ca, cb)
	if err != nil {
		return model.ComparisonRecord{}, err
	}
	return combined.Record(), nil
}
