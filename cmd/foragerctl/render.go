package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"foragerfit/internal/model"
	"foragerfit/pkg/foragerfit"
)

var headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
var cellStyle = lipgloss.NewStyle().Padding(0, 1)

func render(headers []string, rows [][]string) string {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
	return t.Render() + "\n"
}

func renderRuns(runs []model.RunRecord) string {
	if len(runs) == 0 {
		return "no runs recorded\n"
	}
	rows := make([][]string, 0, len(runs))
	for _, r := range runs {
		rows = append(rows, []string{
			r.ID,
			r.Kind,
			r.Prefix,
			r.StartedAt.Format("2006-01-02 15:04:05"),
			fmt.Sprintf("%.1fs", r.Duration),
			fmt.Sprintf("%d", len(r.Subjects)),
			strings.Join(r.Failed, ","),
		})
	}
	return render([]string{"id", "kind", "prefix", "started", "duration", "subjects", "failed"}, rows)
}

// renderFullQ prints, per arm, the transition probabilities of every
// run-length bin. The terminal bin cannot stay.
func renderFullQ(res foragerfit.FullQResult) string {
	var b strings.Builder
	trials := res.History.Trials()
	rate := 0.0
	if trials > 0 {
		rate = res.History.TotalReward() / float64(trials)
	}
	fmt.Fprintf(&b, "%d trials, reward rate %.3f\n", trials, rate)
	for arm, policy := range res.Policy {
		if len(policy) == 0 {
			continue
		}
		headers := []string{"run"}
		for other := range res.Policy {
			if other != arm {
				headers = append(headers, fmt.Sprintf("switch->%d", other))
			}
		}
		headers = append(headers, "stay")
		rows := make([][]string, 0, len(policy))
		for run, probs := range policy {
			row := []string{fmt.Sprintf("%d", run+1)}
			for _, p := range probs {
				row = append(row, fmt.Sprintf("%.3f", p))
			}
			for len(row) < len(headers) {
				row = append(row, "-")
			}
			rows = append(rows, row)
		}
		fmt.Fprintf(&b, "arm %d\n", arm)
		b.WriteString(render(headers, rows))
	}
	return b.String()
}
