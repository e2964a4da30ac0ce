package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"foragerfit/internal/model"
)

var errNotInitialized = errors.New("store is not initialized")

// MemoryStore keeps encoded payloads so reads never alias caller slices.
type MemoryStore struct {
	mu          sync.RWMutex
	initialized bool
	subjects    map[string]map[string][]byte
	runs        map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Init(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.initialized = true
	s.subjects = make(map[string]map[string][]byte)
	s.runs = make(map[string][]byte)
	return nil
}

func (s *MemoryStore) SaveSubjectResults(_ context.Context, prefix string, results model.SubjectResults) error {
	if results.Subject == "" {
		return errors.New("subject is required")
	}
	payload, err := EncodeSubjectResults(results)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.initialized {
		return errNotInitialized
	}
	bucket, ok := s.subjects[prefix]
	if !ok {
		bucket = make(map[string][]byte)
		s.subjects[prefix] = bucket
	}
	bucket[results.Subject] = payload
	return nil
}

func (s *MemoryStore) GetSubjectResults(_ context.Context, prefix, subject string) (model.SubjectResults, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.initialized {
		return model.SubjectResults{}, false, errNotInitialized
	}

	payload, ok := s.subjects[prefix][subject]
	if !ok {
		return model.SubjectResults{}, false, nil
	}
	results, err := DecodeSubjectResults(payload)
	if err != nil {
		return model.SubjectResults{}, false, fmt.Errorf("decode subject %s%s: %w", prefix, subject, err)
	}
	return results, true, nil
}

func (s *MemoryStore) ListSubjects(_ context.Context, prefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.initialized {
		return nil, errNotInitialized
	}

	out := make([]string, 0, len(s.subjects[prefix]))
	for subject := range s.subjects[prefix] {
		out = append(out, subject)
	}
	sort.Strings(out)
	return out, nil
}

func (s *MemoryStore) SaveRun(_ context.Context, run model.RunRecord) error {
	if run.ID == "" {
		return errors.New("run id is required")
	}
	payload, err := EncodeRun(run)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.initialized {
		return errNotInitialized
	}
	s.runs[run.ID] = payload
	return nil
}

func (s *MemoryStore) GetRun(_ context.Context, id string) (model.RunRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.initialized {
		return model.RunRecord{}, false, errNotInitialized
	}

	payload, ok := s.runs[id]
	if !ok {
		return model.RunRecord{}, false, nil
	}
	run, err := DecodeRun(payload)
	if err != nil {
		return model.RunRecord{}, false, fmt.Errorf("decode run %s: %w", id, err)
	}
	return run, true, nil
}

// ListRuns returns runs ordered by start time, oldest first.
func (s *MemoryStore) ListRuns(_ context.Context) ([]model.RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.initialized {
		return nil, errNotInitialized
	}

	out := make([]model.RunRecord, 0, len(s.runs))
	for id, payload := range s.runs {
		run, err := DecodeRun(payload)
		if err != nil {
			return nil, fmt.Errorf("decode run %s: %w", id, err)
		}
		out = append(out, run)
	}
	sortRuns(out)
	return out, nil
}

func sortRuns(runs []model.RunRecord) {
	sort.SliceStable(runs, func(i, j int) bool {
		if !runs[i].StartedAt.Equal(runs[j].StartedAt) {
			return runs[i].StartedAt.Before(runs[j].StartedAt)
		}
		return runs[i].ID < runs[j].ID
	})
}
