package comparison

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"foragerfit/internal/model"
	"foragerfit/internal/registry"
)

// DeriveTable builds the comparison table from the full set of fits. Every
// derived column depends on the set minimum, so the table is always
// rebuilt from scratch.
func DeriveTable(models []model.ModelSpec, raw []model.FitResult) []model.ComparisonRow {
	n := min(len(models), len(raw))
	rows := make([]model.ComparisonRow, n)
	if n == 0 {
		return rows
	}
	minAIC, minBIC := math.Inf(1), math.Inf(1)
	for i := 0; i < n; i++ {
		minAIC = math.Min(minAIC, raw[i].AIC)
		minBIC = math.Min(minBIC, raw[i].BIC)
	}

	var sumAIC, sumBIC float64
	for i := 0; i < n; i++ {
		res := raw[i]
		row := model.ComparisonRow{
			Index:        i + 1,
			Model:        models[i].Clone(),
			Km:           res.Km,
			AIC:          res.AIC,
			BIC:          res.BIC,
			LPTAIC:       res.LPTAIC,
			LPTBIC:       res.LPTBIC,
			LPT:          res.LPT,
			ParaNotation: registry.FreeNotation(models[i]),
			ParaFitted:   roundAll(res.X, 3),
			DeltaAIC:     res.AIC - minAIC,
			DeltaBIC:     res.BIC - minBIC,
		}
		row.RelativeLikelihoodAIC = math.Exp(-row.DeltaAIC / 2)
		row.RelativeLikelihoodBIC = math.Exp(-row.DeltaBIC / 2)
		row.Log10BFAIC = -row.DeltaAIC / (2 * math.Ln10)
		row.Log10BFBIC = -row.DeltaBIC / (2 * math.Ln10)
		if res.AIC == minAIC {
			row.BestModelAIC = 1
		}
		if res.BIC == minBIC {
			row.BestModelBIC = 1
		}
		row.NotationWithBestFit = notationWithBestFit(row.Index, row.ParaNotation, res.X)
		sumAIC += row.RelativeLikelihoodAIC
		sumBIC += row.RelativeLikelihoodBIC
		rows[i] = row
	}
	for i := range rows {
		rows[i].ModelWeightAIC = rows[i].RelativeLikelihoodAIC / sumAIC
		rows[i].ModelWeightBIC = rows[i].RelativeLikelihoodBIC / sumBIC
	}
	return rows
}

// SortByAIC returns a copy of rows ordered by ascending AIC; ties keep
// model order.
func SortByAIC(rows []model.ComparisonRow) []model.ComparisonRow {
	out := append([]model.ComparisonRow(nil), rows...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].AIC < out[j].AIC
	})
	return out
}

// BestRow returns the first row flagged best by AIC.
func BestRow(rows []model.ComparisonRow) (model.ComparisonRow, bool) {
	for _, row := range rows {
		if row.BestModelAIC == 1 {
			return row, true
		}
	}
	return model.ComparisonRow{}, false
}

func notationWithBestFit(index int, notation string, x []float64) string {
	vals := make([]string, len(x))
	for i, v := range roundAll(x, 2) {
		vals[i] = fmt.Sprintf("%g", v)
	}
	return fmt.Sprintf("(%d) %s\n[%s]", index, notation, strings.Join(vals, ", "))
}

func roundAll(xs []float64, digits int) []float64 {
	scale := math.Pow(10, float64(digits))
	out := make([]float64, len(xs))
	for i, v := range xs {
		out[i] = math.Round(v*scale) / scale
	}
	return out
}
