package foragerfit

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"foragerfit/internal/fitting"
	"foragerfit/internal/fullstateq"
	"foragerfit/internal/group"
)

func writeRecording(t *testing.T, dir, name string) {
	t.Helper()
	var b strings.Builder
	b.WriteString("session,choice,reward,p1,p2\n")
	for s := 1; s <= 2; s++ {
		for i := 0; i < 60; i++ {
			p1, p2 := 0.4, 0.1
			if i >= 30 {
				p1, p2 = 0.1, 0.4
			}
			choice := 1
			if i >= 34 {
				choice = 2
			}
			fmt.Fprintf(&b, "%d,%d,%d,%g,%g\n", s, choice, i%3%2, p1, p2)
		}
	}
	if err := os.WriteFile(filepath.Join(dir, name), []byte(b.String()), 0o644); err != nil {
		t.Fatalf("write recording: %v", err)
	}
}

func cheapSettings() *fitting.Settings {
	s := fitting.DefaultSettings()
	s.LocalStarts = 2
	s.LocalMaxEvaluations = 200
	return &s
}

func TestClientFitShowAndRuns(t *testing.T) {
	dataDir := t.TempDir()
	writeRecording(t, dataDir, "m1.csv")

	ctx := context.Background()
	client, err := New(ctx, Options{
		StoreKind: "memory",
		Method:    fitting.MethodLocal,
		Settings:  cheapSettings(),
		Models:    []int{5, 12},
	})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	t.Cleanup(func() {
		_ = client.Close()
	})

	summary, err := client.FitDir(ctx, dataDir, "run_")
	if err != nil {
		t.Fatalf("fit dir: %v", err)
	}
	if len(summary.Succeeded) != 1 || summary.Succeeded[0] != "m1" || summary.RunID == "" {
		t.Fatalf("unexpected summary: %+v", summary)
	}

	subjects, err := client.Subjects(ctx, "run_")
	if err != nil || len(subjects) != 1 {
		t.Fatalf("subjects: %v %v", subjects, err)
	}

	grand, err := client.Show(ctx, "run_", "m1", 0)
	if err != nil {
		t.Fatalf("show grand: %v", err)
	}
	if !strings.Contains(grand, "RW1972_softmax") {
		t.Fatalf("grand table missing model name:\n%s", grand)
	}
	var csvOut strings.Builder
	if err := client.ShowCSV(ctx, &csvOut, "run_", "m1", 0); err != nil {
		t.Fatalf("show csv: %v", err)
	}
	if lines := strings.Split(strings.TrimSpace(csvOut.String()), "\n"); len(lines) != 3 {
		t.Fatalf("expected header plus 2 model rows, got %d lines", len(lines))
	}
	if _, err := client.Show(ctx, "run_", "m1", 2); err != nil {
		t.Fatalf("show session: %v", err)
	}
	if _, err := client.Show(ctx, "run_", "m1", 3); err == nil {
		t.Fatal("expected session range error")
	}
	if _, err := client.Show(ctx, "run_", "missing", 0); err == nil {
		t.Fatal("expected missing subject error")
	}

	runs, err := client.Runs(ctx)
	if err != nil {
		t.Fatalf("runs: %v", err)
	}
	if len(runs) != 1 || runs[0].ID != summary.RunID {
		t.Fatalf("unexpected runs: %+v", runs)
	}
}

func TestClientFitDirRejectsEmptyDirectory(t *testing.T) {
	ctx := context.Background()
	client, err := New(ctx, Options{})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	defer client.Close()

	if _, err := client.FitDir(ctx, t.TempDir(), "run_"); err == nil {
		t.Fatal("expected error for directory without recordings")
	}
}

func TestClientAggregateWritesArtifacts(t *testing.T) {
	dataDir := t.TempDir()
	writeRecording(t, dataDir, "m1.csv")
	writeRecording(t, dataDir, "m2.csv")

	ctx := context.Background()
	client, err := New(ctx, Options{
		StoreKind: "sqlite",
		DBPath:    filepath.Join(t.TempDir(), "fit.db"),
		Method:    fitting.MethodLocal,
		Settings:  cheapSettings(),
	})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	defer client.Close()

	if _, err := client.FitDir(ctx, dataDir, "run_"); err != nil {
		t.Fatalf("fit dir: %v", err)
	}
	out := t.TempDir()
	summary, err := client.Aggregate(ctx, "run_", group.DefaultOptions(), out)
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}
	if summary.OutputDir == "" {
		t.Fatal("expected output directory")
	}
	if len(summary.Files) != 4 || summary.Files[0] != "population.csv" {
		t.Fatalf("unexpected manifest files: %v", summary.Files)
	}
	for _, name := range []string{"population.csv", "manifest.json"} {
		if _, err := os.Stat(filepath.Join(summary.OutputDir, name)); err != nil {
			t.Fatalf("missing %s: %v", name, err)
		}
	}
}

func TestClientSimulateFullQ(t *testing.T) {
	ctx := context.Background()
	client, err := New(ctx, Options{})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	defer client.Close()

	cfg := fullstateq.DefaultConfig()
	temp := 0.2
	cfg.SoftmaxTemperature = &temp
	res, err := client.SimulateFullQ(ctx, cfg, 300, 7)
	if err != nil {
		t.Fatalf("simulate: %v", err)
	}
	if res.History.Trials() != 300 {
		t.Fatalf("expected 300 trials, got %d", res.History.Trials())
	}
	if len(res.Policy) != 2 {
		t.Fatalf("expected one policy per arm, got %d", len(res.Policy))
	}
	if _, err := client.SimulateFullQ(ctx, cfg, 0, 7); err == nil {
		t.Fatal("expected trial count error")
	}
}
