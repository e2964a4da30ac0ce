package storage

import (
	"context"

	"foragerfit/internal/model"
)

// Store persists per-subject comparison results under a run prefix, plus
// the index of batch runs.
type Store interface {
	Init(ctx context.Context) error
	SaveSubjectResults(ctx context.Context, prefix string, results model.SubjectResults) error
	GetSubjectResults(ctx context.Context, prefix, subject string) (model.SubjectResults, bool, error)
	// ListSubjects returns the subjects stored under prefix in ascending order.
	ListSubjects(ctx context.Context, prefix string) ([]string, error)
	SaveRun(ctx context.Context, run model.RunRecord) error
	GetRun(ctx context.Context, id string) (model.RunRecord, bool, error)
	ListRuns(ctx context.Context) ([]model.RunRecord, error)
}
