package pipeline

// MetricItem is one named evaluation score.
type MetricItem struct {
	Name  string  `json:"name" yaml:"name"`
	Value float64 `json:"value" yaml:"value"`
}

// FeatureImportanceItem is the share of importance attributed to one
// predictor column.
type FeatureImportanceItem struct {
	Feature    string  `json:"feature" yaml:"feature"`
	Importance float64 `json:"importance" yaml:"importance"`
}

// ExperimentResult is the structured outcome of one training run. It is
// never modified after RunExperiment returns it; WithID attaches a
// persistence id to a copy.
type ExperimentResult struct {
	ID                *int64                  `json:"id,omitempty" yaml:"id,omitempty"`
	DatasetName       string                  `json:"dataset_name" yaml:"dataset_name"`
	NSamples          int                     `json:"n_samples" yaml:"n_samples"`
	NFeatures         int                     `json:"n_features" yaml:"n_features"`
	TargetColumn      string                  `json:"target_column" yaml:"target_column"`
	TaskType          TaskType                `json:"task_type" yaml:"task_type"`
	ModelName         string                  `json:"model_name" yaml:"model_name"`
	Hyperparams       map[string]interface{}  `json:"hyperparams" yaml:"hyperparams"`
	Metrics           []MetricItem            `json:"metrics" yaml:"metrics"`
	FeatureImportance []FeatureImportanceItem `json:"feature_importance" yaml:"feature_importance"`
}

// Metric returns the value of the named metric.
func (r *ExperimentResult) Metric(name string) (float64, bool) {
	for _, m := range r.Metrics {
		if m.Name == name {
			return m.Value, true
		}
	}
	return 0, false
}

// WithID returns a deep copy of r carrying id.
func (r *ExperimentResult) WithID(id int64) *ExperimentResult {
	out := r.clone()
	out.ID = &id
	return out
}

func (r *ExperimentResult) clone() *ExperimentResult {
	out := *r
	if r.ID != nil {
		id := *r.ID
		out.ID = &id
	}
	if r.Hyperparams != nil {
		out.Hyperparams = make(map[string]interface{}, len(r.Hyperparams))
		for k, v := range r.Hyperparams {
			out.Hyperparams[k] = v
		}
	}
	out.Metrics = append([]MetricItem(nil), r.Metrics...)
	out.FeatureImportance = append([]FeatureImportanceItem{}, r.FeatureImportance...)
	return &out
}
