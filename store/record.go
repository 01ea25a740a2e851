package store

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/tabtrain/tabtrain/pipeline"
	"github.com/tabtrain/tabtrain/pkg/errors"
)

// Record is one stored experiment row. Structured fields of the result are
// kept as JSON text, the way they are stored.
type Record struct {
	ID                    int64
	Name                  string
	DatasetName           string
	NSamples              int
	NFeatures             int
	TaskType              string
	TargetColumn          string
	ModelName             string
	HyperparamsJSON       string
	MetricsJSON           string
	FeatureImportanceJSON string
	ArtifactPath          string
	ParentID              *int64
	Version               int
	CreatedAt             time.Time
}

// NewRecord flattens res into a Record ready to insert.
func NewRecord(res *pipeline.ExperimentResult, opts SaveOptions) (*Record, error) {
	hp, err := json.Marshal(res.Hyperparams)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal hyperparams")
	}
	m, err := json.Marshal(res.Metrics)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal metrics")
	}
	fi := res.FeatureImportance
	if fi == nil {
		fi = []pipeline.FeatureImportanceItem{}
	}
	fij, err := json.Marshal(fi)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal feature importance")
	}
	name := opts.Name
	if name == "" {
		name = res.DatasetName + " / " + res.ModelName
	}
	return &Record{
		Name:                  name,
		DatasetName:           res.DatasetName,
		NSamples:              res.NSamples,
		NFeatures:             res.NFeatures,
		TaskType:              string(res.TaskType),
		TargetColumn:          res.TargetColumn,
		ModelName:             res.ModelName,
		HyperparamsJSON:       string(hp),
		MetricsJSON:           string(m),
		FeatureImportanceJSON: string(fij),
		ArtifactPath:          opts.ArtifactPath,
		ParentID:              opts.ParentID,
		Version:               1,
	}, nil
}

// Result rebuilds the ExperimentResult the record was made from, with its
// id set. JSON numbers in the hyperparameters come back as float64.
func (r *Record) Result() (*pipeline.ExperimentResult, error) {
	res := &pipeline.ExperimentResult{
		DatasetName:  r.DatasetName,
		NSamples:     r.NSamples,
		NFeatures:    r.NFeatures,
		TargetColumn: r.TargetColumn,
		TaskType:     pipeline.TaskType(r.TaskType),
		ModelName:    r.ModelName,
	}
	if err := json.Unmarshal([]byte(r.HyperparamsJSON), &res.Hyperparams); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal hyperparams")
	}
	if err := json.Unmarshal([]byte(r.MetricsJSON), &res.Metrics); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal metrics")
	}
	res.FeatureImportance = []pipeline.FeatureImportanceItem{}
	if r.FeatureImportanceJSON != "" {
		if err := json.Unmarshal([]byte(r.FeatureImportanceJSON), &res.FeatureImportance); err != nil {
			return nil, errors.Wrap(err, "failed to unmarshal feature importance")
		}
	}
	return res.WithID(r.ID), nil
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

const recordColumns = `id, name, dataset_name, n_samples, n_features, task_type, target_column,
	model_name, hyperparams_json, metrics_json, feature_importance_json, artifact_path,
	parent_experiment_id, version, created_at`

func scanRecord(s scanner) (*Record, error) {
	var (
		r         Record
		parent    sql.NullInt64
		createdAt string
	)
	err := s.Scan(&r.ID, &r.Name, &r.DatasetName, &r.NSamples, &r.NFeatures, &r.TaskType, &r.TargetColumn,
		&r.ModelName, &r.HyperparamsJSON, &r.MetricsJSON, &r.FeatureImportanceJSON, &r.ArtifactPath,
		&parent, &r.Version, &createdAt)
	if err != nil {
		return nil, err
	}
	if parent.Valid {
		id := parent.Int64
		r.ParentID = &id
	}
	if r.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, errors.Wrapf(err, "experiment %d has a malformed created_at", r.ID)
	}
	return &r, nil
}
