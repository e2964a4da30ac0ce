package comparison

import (
	"fmt"

	"go.uber.org/zap"

	"foragerfit/internal/model"
)

// Record snapshots the comparison for persistence.
func (c *Comparison) Record() model.ComparisonRecord {
	return model.ComparisonRecord{
		History:      c.history.Clone(),
		Models:       c.Models(),
		Rows:         c.Rows(),
		Raw:          c.RawResults(),
		CV:           c.CV(),
		TrialNumbers: c.TrialNumbers(),
	}
}

// FromRecord restores a comparison. Rows are re-derived from the raw fits
// rather than trusted from the record.
func FromRecord(rec model.ComparisonRecord, logger *zap.Logger) (*Comparison, error) {
	if err := rec.History.Validate(); err != nil {
		return nil, err
	}
	if len(rec.Raw) != 0 && len(rec.Raw) != len(rec.Models) {
		return nil, fmt.Errorf("record has %d raw fits for %d models", len(rec.Raw), len(rec.Models))
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Comparison{
		history: rec.History.Clone(),
		logger:  logger,
	}
	for _, spec := range rec.Models {
		c.models = append(c.models, spec.Clone())
	}
	c.raw = append([]model.FitResult(nil), rec.Raw...)
	c.cv = append([]model.CrossValidationRow(nil), rec.CV...)
	if len(c.raw) > 0 {
		c.rows = DeriveTable(c.models, c.raw)
	}
	return c, nil
}
