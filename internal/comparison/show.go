package comparison

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	bestStyle   = cellStyle.Bold(true)
)

// Show renders the AIC-sorted table for terminal output.
func (c *Comparison) Show() string {
	if len(c.rows) == 0 {
		return "no fitted models\n"
	}
	sorted := c.Sorted()
	rows := make([][]string, 0, len(sorted))
	for _, r := range sorted {
		fitted := make([]string, len(r.ParaFitted))
		for i, v := range r.ParaFitted {
			fitted[i] = fmt.Sprintf("%g", v)
		}
		rows = append(rows, []string{
			fmt.Sprintf("%d", r.Index),
			r.Model.Forager.String(),
			fmt.Sprintf("%d", r.Km),
			fmt.Sprintf("%.2f", r.AIC),
			fmt.Sprintf("%.2f", r.Log10BFAIC),
			fmt.Sprintf("%.3f", r.ModelWeightAIC),
			fmt.Sprintf("%.2f", r.BIC),
			r.ParaNotation,
			"[" + strings.Join(fitted, ", ") + "]",
		})
	}
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("#", "model", "Km", "AIC", "log10_BF_AIC", "weight_AIC", "BIC", "para_notation", "para_fitted").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return headerStyle
			case row == 0:
				return bestStyle
			default:
				return cellStyle
			}
		})
	return fmt.Sprintf("%d trials\n%s\n", c.TrialNumbers(), t.Render())
}

func (c *Comparison) TrialNumbers() int {
	if len(c.raw) > 0 {
		return c.raw[0].TrialNumbers
	}
	return c.history.Trials()
}
