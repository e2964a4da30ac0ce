package stats

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"foragerfit/internal/group"
)

const (
	populationFile    = "population.csv"
	rawLPTAICFile     = "raw_LPT_AIC.csv"
	blockSwitchFile   = "block_switch.csv"
	summariesFile     = "subject_summaries.json"
	groupManifestFile = "manifest.json"
)

// GroupManifest describes one exported set of group tables.
type GroupManifest struct {
	RunID            string        `json:"run_id"`
	Prefix           string        `json:"prefix"`
	CreatedAt        time.Time     `json:"created_at"`
	Subjects         []string      `json:"subjects"`
	Failed           []string      `json:"failed,omitempty"`
	KFold            int           `json:"k_fold,omitempty"`
	ParaNotation     []string      `json:"para_notation"`
	ContrastNotation []string      `json:"delta_AIC_para_notation,omitempty"`
	Options          group.Options `json:"options"`
	Files            []string      `json:"files"`
}

// WriteGroupArtifacts writes the population tables, the per-subject
// summaries and a manifest under baseDir/runID and returns that directory.
func WriteGroupArtifacts(baseDir string, manifest GroupManifest, summaries []group.SubjectSummary) (string, error) {
	groupDir := filepath.Join(baseDir, manifest.RunID)
	if err := os.MkdirAll(groupDir, 0o755); err != nil {
		return "", err
	}

	pop := group.BuildPopulation(summaries)
	manifest.KFold = pop.KFold
	manifest.ParaNotation = pop.ParaNotation
	manifest.ContrastNotation = pop.ContrastNotation
	manifest.Subjects = manifest.Subjects[:0:0]
	for _, s := range summaries {
		manifest.Subjects = append(manifest.Subjects, s.Subject)
	}

	if err := WritePopulationCSV(filepath.Join(groupDir, populationFile), pop); err != nil {
		return "", err
	}
	if err := WriteRawLPTAICCSV(filepath.Join(groupDir, rawLPTAICFile), pop); err != nil {
		return "", err
	}
	if err := WriteBlockSwitchCSV(filepath.Join(groupDir, blockSwitchFile), pop.BlockSwitches, manifest.Options.BlockSwitch.PrevAlign); err != nil {
		return "", err
	}
	if err := writeJSON(filepath.Join(groupDir, summariesFile), summaries); err != nil {
		return "", err
	}
	manifest.Files = []string{populationFile, rawLPTAICFile, blockSwitchFile, summariesFile}
	if err := writeJSON(filepath.Join(groupDir, groupManifestFile), manifest); err != nil {
		return "", err
	}
	return groupDir, nil
}

// ReadGroupManifest loads the manifest of a previous export.
func ReadGroupManifest(groupDir string) (GroupManifest, error) {
	data, err := os.ReadFile(filepath.Join(groupDir, groupManifestFile))
	if err != nil {
		return GroupManifest{}, err
	}
	var manifest GroupManifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return GroupManifest{}, err
	}
	return manifest, nil
}

func writeJSON(path string, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o644)
}
