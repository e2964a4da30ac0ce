// Package stats exports comparison and population tables as CSV and JSON
// artifacts.
package stats

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"foragerfit/internal/group"
	"foragerfit/internal/model"
)

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func writeCSV(path string, write func(w *csv.Writer) error) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := write(writer); err != nil {
		return err
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return err
	}
	return file.Close()
}

// WriteComparisonCSV writes one line per model in table order.
func WriteComparisonCSV(w io.Writer, rows []model.ComparisonRow) error {
	writer := csv.NewWriter(w)
	header := []string{
		"model", "forager", "Km", "AIC", "BIC", "LPT", "LPT_AIC", "LPT_BIC",
		"delta_AIC", "delta_BIC", "relative_likelihood_AIC", "relative_likelihood_BIC",
		"model_weight_AIC", "model_weight_BIC", "log10_BF_AIC", "log10_BF_BIC",
		"best_model_AIC", "best_model_BIC", "para_notation", "para_fitted",
	}
	if err := writer.Write(header); err != nil {
		return err
	}
	for _, row := range rows {
		fitted := ""
		for i, v := range row.ParaFitted {
			if i > 0 {
				fitted += " "
			}
			fitted += formatFloat(v)
		}
		rec := []string{
			strconv.Itoa(row.Index), row.Model.Forager.String(), strconv.Itoa(row.Km),
			formatFloat(row.AIC), formatFloat(row.BIC), formatFloat(row.LPT), formatFloat(row.LPTAIC), formatFloat(row.LPTBIC),
			formatFloat(row.DeltaAIC), formatFloat(row.DeltaBIC), formatFloat(row.RelativeLikelihoodAIC), formatFloat(row.RelativeLikelihoodBIC),
			formatFloat(row.ModelWeightAIC), formatFloat(row.ModelWeightBIC), formatFloat(row.Log10BFAIC), formatFloat(row.Log10BFBIC),
			strconv.Itoa(row.BestModelAIC), strconv.Itoa(row.BestModelBIC), row.ParaNotation, fitted,
		}
		if err := writer.Write(rec); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// WritePopulationCSV writes one line per subject session. Fitted parameter
// and contrast columns are named after the population headers.
func WritePopulationCSV(path string, pop group.Population) error {
	return writeCSV(path, func(w *csv.Writer) error {
		header := []string{
			"subject", "session_idx", "session_number", "n_trials", "session_best",
			"prediction_accuracy_NONCV", "prediction_accuracy_bias_only", "prediction_accuracy_Sugrue_NONCV",
			"prediction_accuracy_CV_fit", "prediction_accuracy_CV_test", "prediction_accuracy_CV_test_bias_only",
			"foraging_efficiency",
		}
		for _, name := range pop.FittedParaNames {
			header = append(header, "fitted_"+name)
		}
		for _, notation := range pop.ContrastNotation {
			header = append(header, "delta_AIC "+notation)
		}
		if err := w.Write(header); err != nil {
			return err
		}
		for _, row := range pop.Rows {
			rec := []string{
				row.Subject, strconv.Itoa(row.SessionIdx), strconv.Itoa(row.SessionNumber), strconv.Itoa(row.Trials), strconv.Itoa(row.BestModel),
				formatFloat(row.AccuracyNONCV), formatFloat(row.AccuracyBiasOnly), formatFloat(row.AccuracySugrue),
				formatFloat(row.CVFit), formatFloat(row.CVTest), formatFloat(row.CVTestBiasOnly),
				formatFloat(row.ForagingEfficiency),
			}
			rec = appendPadded(rec, row.FittedParams, len(pop.FittedParaNames))
			rec = appendPadded(rec, row.DeltaAIC, len(pop.ContrastNotation))
			if err := w.Write(rec); err != nil {
				return err
			}
		}
		return nil
	})
}

// appendPadded writes exactly width values, NaN-filling missing ones.
func appendPadded(rec []string, values []float64, width int) []string {
	for i := 0; i < width; i++ {
		if i < len(values) {
			rec = append(rec, formatFloat(values[i]))
		} else {
			rec = append(rec, "NaN")
		}
	}
	return rec
}

// WriteRawLPTAICCSV writes one line per subject session with the LPT_AIC of
// every model.
func WriteRawLPTAICCSV(path string, pop group.Population) error {
	return writeCSV(path, func(w *csv.Writer) error {
		header := []string{"subject", "session_idx", "session_number"}
		for i, notation := range pop.ParaNotation {
			header = append(header, fmt.Sprintf("(%d) %s", i+1, notation))
		}
		if err := w.Write(header); err != nil {
			return err
		}
		for _, row := range pop.RawLPTAIC {
			rec := []string{row.Subject, strconv.Itoa(row.SessionIdx), strconv.Itoa(row.SessionNumber)}
			rec = appendPadded(rec, row.LPTAIC, len(pop.ParaNotation))
			if err := w.Write(rec); err != nil {
				return err
			}
		}
		return nil
	})
}

// WriteBlockSwitchCSV writes one line per retained switch. Trace columns are
// offsets relative to the switch trial.
func WriteBlockSwitchCSV(path string, switches []group.SubjectBlockSwitch, prevAlign int) error {
	return writeCSV(path, func(w *csv.Writer) error {
		width := 0
		for _, s := range switches {
			if len(s.Choice) > width {
				width = len(s.Choice)
			}
		}
		header := []string{"subject", "session_num", "block_switch", "prev_length", "next_length", "prev_p_R", "next_p_R", "change_p_R", "normalized"}
		for i := 0; i < width; i++ {
			header = append(header, fmt.Sprintf("choice_%d", i-prevAlign))
		}
		for i := 0; i < width; i++ {
			header = append(header, fmt.Sprintf("choice_norm_%d", i-prevAlign))
		}
		if err := w.Write(header); err != nil {
			return err
		}
		for _, s := range switches {
			rec := []string{
				s.Subject, strconv.Itoa(s.SessionID), strconv.Itoa(s.BlockSwitch), strconv.Itoa(s.PrevLength), strconv.Itoa(s.NextLength),
				formatFloat(s.PrevP), formatFloat(s.NextP), formatFloat(s.ChangeP), strconv.FormatBool(s.Normalized),
			}
			rec = appendPadded(rec, s.Choice, width)
			rec = appendPadded(rec, s.ChoiceNorm, width)
			if err := w.Write(rec); err != nil {
				return err
			}
		}
		return nil
	})
}
