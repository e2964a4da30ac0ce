// Package dataset loads raw per-subject session recordings and formats them
// into choice/reward histories.
package dataset

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"foragerfit/internal/model"
)

var ErrNoTrials = errors.New("no valid trials")

// Raw holds one subject's recording. Choice is 0 for ignored trials,
// 1 for left and 2 for right.
type Raw struct {
	Choice  []int     `json:"choice"`
	Reward  []float64 `json:"reward"`
	P1      []float64 `json:"p1"`
	P2      []float64 `json:"p2"`
	Session []int     `json:"session"`
}

type Subject struct {
	Name    string
	Path    string
	History model.ChoiceRewardHistory
}

var columns = []string{"choice", "reward", "p1", "p2", "session"}

// Format drops ignored trials, maps choices to 0/1 and builds the 2×T
// reward matrix from the chosen arm's outcome.
func Format(raw Raw) (model.ChoiceRewardHistory, error) {
	n := len(raw.Choice)
	for i, l := range []int{len(raw.Reward), len(raw.P1), len(raw.P2), len(raw.Session)} {
		if l != n {
			return model.ChoiceRewardHistory{}, fmt.Errorf("%w: %s has %d trials, choice has %d", model.ErrInputShape, columns[i+1], l, n)
		}
	}
	h := model.ChoiceRewardHistory{
		Rewards:             [][]float64{{}, {}},
		RewardProbabilities: [][]float64{{}, {}},
	}
	for t, c := range raw.Choice {
		switch c {
		case 0:
			continue
		case 1, 2:
		default:
			return model.ChoiceRewardHistory{}, fmt.Errorf("trial %d: invalid choice %d", t, c)
		}
		choice := c - 1
		h.Choices = append(h.Choices, choice)
		h.SessionIDs = append(h.SessionIDs, raw.Session[t])
		for arm := 0; arm < 2; arm++ {
			r := 0.0
			if arm == choice && raw.Reward[t] > 0 {
				r = 1
			}
			h.Rewards[arm] = append(h.Rewards[arm], r)
		}
		h.RewardProbabilities[0] = append(h.RewardProbabilities[0], raw.P1[t])
		h.RewardProbabilities[1] = append(h.RewardProbabilities[1], raw.P2[t])
	}
	if len(h.Choices) == 0 {
		return model.ChoiceRewardHistory{}, ErrNoTrials
	}
	return h, nil
}

// ReadCSV parses a headed CSV with the columns choice, reward, p1, p2 and
// session in any order.
func ReadCSV(r io.Reader) (Raw, error) {
	records, err := csv.NewReader(r).ReadAll()
	if err != nil {
		return Raw{}, err
	}
	if len(records) == 0 {
		return Raw{}, errors.New("csv is empty")
	}
	pos := make(map[string]int, len(columns))
	for i, h := range records[0] {
		pos[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, col := range columns {
		if _, ok := pos[col]; !ok {
			return Raw{}, fmt.Errorf("csv is missing column %q", col)
		}
	}

	var raw Raw
	for line, rec := range records[1:] {
		field := func(col string) string {
			return strings.TrimSpace(rec[pos[col]])
		}
		ints := make(map[string]int, 2)
		for _, col := range []string{"choice", "session"} {
			v, err := strconv.Atoi(field(col))
			if err != nil {
				return Raw{}, fmt.Errorf("line %d: %s: %w", line+2, col, err)
			}
			ints[col] = v
		}
		floats := make(map[string]float64, 3)
		for _, col := range []string{"reward", "p1", "p2"} {
			v, err := strconv.ParseFloat(field(col), 64)
			if err != nil {
				return Raw{}, fmt.Errorf("line %d: %s: %w", line+2, col, err)
			}
			floats[col] = v
		}
		raw.Choice = append(raw.Choice, ints["choice"])
		raw.Session = append(raw.Session, ints["session"])
		raw.Reward = append(raw.Reward, floats["reward"])
		raw.P1 = append(raw.P1, floats["p1"])
		raw.P2 = append(raw.P2, floats["p2"])
	}
	return raw, nil
}

// LoadFile reads a .csv or .json recording and formats it.
func LoadFile(path string) (Subject, error) {
	f, err := os.Open(path)
	if err != nil {
		return Subject{}, err
	}
	defer f.Close()

	var raw Raw
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".csv":
		raw, err = ReadCSV(f)
	case ".json":
		err = json.NewDecoder(f).Decode(&raw)
	default:
		return Subject{}, fmt.Errorf("unsupported recording format %q", ext)
	}
	if err != nil {
		return Subject{}, fmt.Errorf("read %s: %w", path, err)
	}
	h, err := Format(raw)
	if err != nil {
		return Subject{}, fmt.Errorf("format %s: %w", path, err)
	}
	base := filepath.Base(path)
	return Subject{
		Name:    strings.TrimSuffix(base, filepath.Ext(base)),
		Path:    path,
		History: h,
	}, nil
}

// Discover lists the recording files under dir, recursively, in lexical
// order.
func Discover(dir string) ([]string, error) {
	var out []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		switch strings.ToLower(filepath.Ext(path)) {
		case ".csv", ".json":
			out = append(out, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(out)
	return out, nil
}
