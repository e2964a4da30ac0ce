package group

import (
	"math"

	"foragerfit/internal/model"
)

// PopulationRow is one subject-session line of the population table.
// Optional metrics are NaN when absent.
type PopulationRow struct {
	Subject            string
	SessionIdx         int
	SessionNumber      int
	Trials             int
	BestModel          int
	AccuracyNONCV      float64
	AccuracyBiasOnly   float64
	AccuracySugrue     float64
	CVFit              float64
	CVTest             float64
	CVTestBiasOnly     float64
	ForagingEfficiency float64
	FittedParams       []float64
	DeltaAIC           []float64
}

// RawLPTAICRow carries one session's LPT_AIC for every model.
type RawLPTAICRow struct {
	Subject       string
	SessionIdx    int
	SessionNumber int
	LPTAIC        []float64
}

type SubjectBlockSwitch struct {
	Subject string
	model.BlockSwitchRecord
}

// Population is the set of named group tables.
type Population struct {
	Subjects         int
	ParaNotation     []string
	FittedParaNames  []string
	ContrastNotation []string
	KFold            int
	Rows             []PopulationRow
	RawLPTAIC        []RawLPTAICRow
	BlockSwitches    []SubjectBlockSwitch
}

// BuildPopulation concatenates subject summaries. Column headers are taken
// from the last summary.
func BuildPopulation(summaries []SubjectSummary) Population {
	var pop Population
	for _, sum := range summaries {
		pop.Subjects++
		pop.ParaNotation = sum.ParaNotation
		pop.FittedParaNames = sum.FittedParaNames
		pop.ContrastNotation = sum.ContrastNotation
		if sum.KFold > 0 {
			pop.KFold = sum.KFold
		}
		for ss, s := range sum.Sessions {
			pop.Rows = append(pop.Rows, PopulationRow{
				Subject:            sum.Subject,
				SessionIdx:         s.SessionIdx,
				SessionNumber:      s.SessionNumber,
				Trials:             s.Trials,
				BestModel:          s.BestModel,
				AccuracyNONCV:      s.AccuracyNONCV,
				AccuracyBiasOnly:   orNaN(s.AccuracyBiasOnly),
				AccuracySugrue:     s.AccuracySugrue,
				CVFit:              orNaN(s.CVFit),
				CVTest:             orNaN(s.CVTest),
				CVTestBiasOnly:     orNaN(s.CVTestBiasOnly),
				ForagingEfficiency: s.ForagingEfficiency,
				FittedParams:       append([]float64(nil), s.FittedParams...),
				DeltaAIC:           append([]float64(nil), s.DeltaAIC...),
			})
			lpt := make([]float64, len(sum.LPTAIC))
			for m := range sum.LPTAIC {
				lpt[m] = sum.LPTAIC[m][ss]
			}
			pop.RawLPTAIC = append(pop.RawLPTAIC, RawLPTAICRow{
				Subject:       sum.Subject,
				SessionIdx:    s.SessionIdx,
				SessionNumber: s.SessionNumber,
				LPTAIC:        lpt,
			})
		}
		for _, rec := range sum.BlockSwitches {
			pop.BlockSwitches = append(pop.BlockSwitches, SubjectBlockSwitch{Subject: sum.Subject, BlockSwitchRecord: rec})
		}
	}
	return pop
}

func orNaN(v *float64) float64 {
	if v == nil {
		return math.NaN()
	}
	return *v
}
