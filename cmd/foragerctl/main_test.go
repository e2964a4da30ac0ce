package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"foragerfit/internal/config"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func writeConfig(t *testing.T, dir string) string {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Storage.DBPath = filepath.Join(dir, "fit.db")
	cfg.Fit.Method = "local"
	cfg.Fit.Models = []int{5, 12}
	cfg.Fit.LocalStarts = 2
	cfg.Fit.LocalMaxEvaluations = 200
	cfg.Logging.Level = "error"
	cfg.FullQ.Trials = 200
	path := filepath.Join(dir, "foragerfit.yaml")
	require.NoError(t, cfg.Save(path))
	return path
}

func writeRecording(t *testing.T, dir, name string) {
	t.Helper()
	var b strings.Builder
	b.WriteString("session,choice,reward,p1,p2\n")
	for s := 1; s <= 2; s++ {
		for i := 0; i < 50; i++ {
			fmt.Fprintf(&b, "%d,%d,%d,0.4,0.1\n", s, 1+i%4/3, i%2)
		}
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(b.String()), 0o644))
}

func TestFitShowAndRunsShareSQLiteStore(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeConfig(t, dir)
	dataDir := filepath.Join(dir, "data")
	require.NoError(t, os.MkdirAll(dataDir, 0o755))
	writeRecording(t, dataDir, "mouse_a.csv")

	out, err := execute(t, "--config", cfgPath, "fit", dataDir, "--prefix", "run_")
	require.NoError(t, err)
	assert.Contains(t, out, "succeeded=1 failed=0")

	out, err = execute(t, "--config", cfgPath, "show", "mouse_a", "--prefix", "run_")
	require.NoError(t, err)
	assert.Contains(t, out, "100 trials")
	assert.Contains(t, out, "RW1972_softmax")

	out, err = execute(t, "--config", cfgPath, "show", "mouse_a", "--prefix", "run_", "--session", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "50 trials")

	out, err = execute(t, "--config", cfgPath, "show", "mouse_a", "--prefix", "run_", "--csv")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "model,forager,Km,AIC"))
	assert.True(t, strings.HasPrefix(lines[1], "1,RW1972_softmax,2,"))
	assert.True(t, strings.HasPrefix(lines[2], "2,RW1972_softmax,3,"))

	out, err = execute(t, "--config", cfgPath, "runs")
	require.NoError(t, err)
	assert.Contains(t, out, "fit")
	assert.Contains(t, out, "run_")
}

func TestCombineRequiresOut(t *testing.T) {
	cfgPath := writeConfig(t, t.TempDir())
	_, err := execute(t, "--config", cfgPath, "combine", "a_", "b_")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--out")
}

func TestFullQPrintsPolicy(t *testing.T) {
	cfgPath := writeConfig(t, t.TempDir())
	out, err := execute(t, "--config", cfgPath, "--store", "memory", "fullq", "--seed", "3")
	require.NoError(t, err)
	assert.Contains(t, out, "200 trials")
	assert.Contains(t, out, "arm 0")
	assert.Contains(t, out, "arm 1")
	assert.Contains(t, out, "stay")
}

func TestConfigInitWritesLoadableYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "out.yaml")
	out, err := execute(t, "--store", "memory", "--workers", "3", "config", "init", path)
	require.NoError(t, err)
	assert.Contains(t, out, "wrote")

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.Storage.Backend)
	assert.Equal(t, 3, cfg.Fit.Workers)
}

func TestInvalidStoreOverrideFails(t *testing.T) {
	_, err := execute(t, "--store", "postgres", "runs")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid storage backend")
}
