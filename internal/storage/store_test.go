package storage

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"foragerfit/internal/model"
)

func sampleResults(subject string) model.SubjectResults {
	history := model.ChoiceRewardHistory{
		Choices:             []int{0, 1, 1, 0},
		Rewards:             [][]float64{{1, 0, 0, 0}, {0, 1, 0, 0}},
		SessionIDs:          []int{1, 1, 2, 2},
		RewardProbabilities: [][]float64{{0.4, 0.4, 0.1, 0.1}, {0.1, 0.1, 0.4, 0.4}},
	}
	spec := model.ModelSpec{
		Forager:    model.RW1972Softmax,
		ParamNames: []string{"learn_rate", "softmax_temperature"},
		Lower:      []float64{0, 0.01},
		Upper:      []float64{1, 15},
	}
	grand := model.ComparisonRecord{
		History: history,
		Models:  []model.ModelSpec{spec},
		Raw: []model.FitResult{{
			Forager: model.RW1972Softmax,
			Params:  []float64{0.3, 0.2},
			X:       []float64{0.3, 0.2},
			Km:      2,
			AIC:     9.5,
		}},
		TrialNumbers: 4,
	}
	return model.SubjectResults{
		Subject:     subject,
		Grand:       grand,
		SessionWise: []model.ComparisonRecord{grand},
	}
}

func storeBackends(t *testing.T) map[string]Store {
	t.Helper()
	sqlite := NewSQLiteStore(filepath.Join(t.TempDir(), "foragerfit.db"))
	t.Cleanup(func() {
		_ = sqlite.Close()
	})
	return map[string]Store{
		"memory": NewMemoryStore(),
		"sqlite": sqlite,
	}
}

func TestStoreSubjectResultsRoundTrip(t *testing.T) {
	ctx := context.Background()
	for name, store := range storeBackends(t) {
		t.Run(name, func(t *testing.T) {
			if err := store.Init(ctx); err != nil {
				t.Fatalf("init: %v", err)
			}
			for _, subject := range []string{"m2", "m1"} {
				if err := store.SaveSubjectResults(ctx, "model_comparison_", sampleResults(subject)); err != nil {
					t.Fatalf("save %s: %v", subject, err)
				}
			}
			if err := store.SaveSubjectResults(ctx, "model_comparison_CK_", sampleResults("m3")); err != nil {
				t.Fatalf("save other prefix: %v", err)
			}

			loaded, ok, err := store.GetSubjectResults(ctx, "model_comparison_", "m1")
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			if !ok {
				t.Fatal("expected stored subject m1")
			}
			if loaded.SchemaVersion != CurrentSchemaVersion || loaded.Grand.CodecVersion != CurrentCodecVersion {
				t.Fatalf("expected stamped versions, got %+v / %+v", loaded.VersionedRecord, loaded.Grand.VersionedRecord)
			}
			want := sampleResults("m1")
			if !loaded.Grand.History.Equal(want.Grand.History) {
				t.Fatalf("history mismatch: %+v", loaded.Grand.History)
			}
			if !reflect.DeepEqual(loaded.Grand.History.RewardProbabilities, want.Grand.History.RewardProbabilities) {
				t.Fatalf("reward probabilities mismatch: %+v", loaded.Grand.History.RewardProbabilities)
			}
			if loaded.Grand.Models[0].Forager != model.RW1972Softmax || loaded.Grand.Raw[0].AIC != 9.5 {
				t.Fatalf("unexpected grand record: %+v", loaded.Grand)
			}
			if len(loaded.SessionWise) != 1 {
				t.Fatalf("expected one session record, got %d", len(loaded.SessionWise))
			}

			subjects, err := store.ListSubjects(ctx, "model_comparison_")
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			if !reflect.DeepEqual(subjects, []string{"m1", "m2"}) {
				t.Fatalf("unexpected subjects: %v", subjects)
			}

			_, ok, err = store.GetSubjectResults(ctx, "model_comparison_", "m3")
			if err != nil || ok {
				t.Fatalf("expected m3 absent under base prefix, ok=%t err=%v", ok, err)
			}
		})
	}
}

func TestStoreRunIndex(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	for name, store := range storeBackends(t) {
		t.Run(name, func(t *testing.T) {
			if err := store.Init(ctx); err != nil {
				t.Fatalf("init: %v", err)
			}
			later := model.RunRecord{ID: "b", Kind: "fit", Prefix: "p_", StartedAt: base.Add(time.Minute), Subjects: []string{"m1"}}
			earlier := model.RunRecord{ID: "a", Kind: "combine", Prefix: "p_", StartedAt: base, Failed: []string{"m9"}}
			for _, run := range []model.RunRecord{later, earlier} {
				if err := store.SaveRun(ctx, run); err != nil {
					t.Fatalf("save run %s: %v", run.ID, err)
				}
			}

			got, ok, err := store.GetRun(ctx, "a")
			if err != nil || !ok {
				t.Fatalf("get run: ok=%t err=%v", ok, err)
			}
			if got.Kind != "combine" || !got.StartedAt.Equal(base) || !reflect.DeepEqual(got.Failed, []string{"m9"}) {
				t.Fatalf("unexpected run: %+v", got)
			}

			runs, err := store.ListRuns(ctx)
			if err != nil {
				t.Fatalf("list runs: %v", err)
			}
			if len(runs) != 2 || runs[0].ID != "a" || runs[1].ID != "b" {
				t.Fatalf("expected runs ordered by start, got %+v", runs)
			}
		})
	}
}

func TestStoreRequiresInit(t *testing.T) {
	ctx := context.Background()
	for name, store := range storeBackends(t) {
		t.Run(name, func(t *testing.T) {
			if err := store.SaveSubjectResults(ctx, "", sampleResults("m1")); !errors.Is(err, errNotInitialized) {
				t.Fatalf("expected not-initialized error, got %v", err)
			}
			if _, err := store.ListRuns(ctx); !errors.Is(err, errNotInitialized) {
				t.Fatalf("expected not-initialized error, got %v", err)
			}
		})
	}
}

func TestDecodeSubjectResultsRejectsVersionMismatch(t *testing.T) {
	legacy := []byte(`{"schema_version":0,"codec_version":1,"subject":"m1"}`)
	if _, err := DecodeSubjectResults(legacy); !errors.Is(err, ErrVersionMismatch) {
		t.Fatalf("expected version mismatch, got %v", err)
	}
	if _, err := DecodeRun([]byte(`{"schema_version":1,"codec_version":2,"id":"r"}`)); !errors.Is(err, ErrVersionMismatch) {
		t.Fatalf("expected version mismatch, got %v", err)
	}
}

func TestEncodeDoesNotMutateInput(t *testing.T) {
	in := sampleResults("m1")
	if _, err := EncodeSubjectResults(in); err != nil {
		t.Fatalf("encode: %v", err)
	}
	if in.SchemaVersion != 0 || in.SessionWise[0].SchemaVersion != 0 {
		t.Fatalf("encode stamped caller's record: %+v", in.VersionedRecord)
	}
}
