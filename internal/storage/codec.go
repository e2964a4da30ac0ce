package storage

import (
	"encoding/json"
	"errors"

	"foragerfit/internal/model"
)

const (
	CurrentSchemaVersion = 1
	CurrentCodecVersion  = 1
)

var ErrVersionMismatch = errors.New("record version mismatch")

func currentVersion() model.VersionedRecord {
	return model.VersionedRecord{SchemaVersion: CurrentSchemaVersion, CodecVersion: CurrentCodecVersion}
}

// EncodeSubjectResults stamps the current versions on the record and every
// nested comparison before marshalling.
func EncodeSubjectResults(r model.SubjectResults) ([]byte, error) {
	r.VersionedRecord = currentVersion()
	r.Grand.VersionedRecord = currentVersion()
	sessions := make([]model.ComparisonRecord, len(r.SessionWise))
	for i, rec := range r.SessionWise {
		rec.VersionedRecord = currentVersion()
		sessions[i] = rec
	}
	r.SessionWise = sessions
	return json.Marshal(r)
}

func DecodeSubjectResults(data []byte) (model.SubjectResults, error) {
	var results model.SubjectResults
	if err := json.Unmarshal(data, &results); err != nil {
		return model.SubjectResults{}, err
	}
	if err := checkVersion(results.VersionedRecord); err != nil {
		return model.SubjectResults{}, err
	}
	return results, nil
}

func EncodeRun(run model.RunRecord) ([]byte, error) {
	run.VersionedRecord = currentVersion()
	return json.Marshal(run)
}

func DecodeRun(data []byte) (model.RunRecord, error) {
	var run model.RunRecord
	if err := json.Unmarshal(data, &run); err != nil {
		return model.RunRecord{}, err
	}
	if err := checkVersion(run.VersionedRecord); err != nil {
		return model.RunRecord{}, err
	}
	return run, nil
}

func checkVersion(v model.VersionedRecord) error {
	if v.SchemaVersion != CurrentSchemaVersion || v.CodecVersion != CurrentCodecVersion {
		return ErrVersionMismatch
	}
	return nil
}
