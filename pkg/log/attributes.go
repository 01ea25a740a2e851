package log

// Run and model context.
const (
	// RunIDKey correlates every record emitted by one experiment run.
	RunIDKey = "run.id"

	// DatasetKey names the dataset a run was submitted with.
	DatasetKey = "data.name"

	// ModelNameKey identifies the model type, e.g. "RandomForestClassifier".
	ModelNameKey = "model.name"

	// AlgorithmKey is the algorithm name requested in the configuration.
	AlgorithmKey = "model.algorithm"

	// EstimatorIDKey identifies one estimator instance.
	EstimatorIDKey = "estimator.id"

	// TaskKey is the task type: "classification" or "regression".
	TaskKey = "ml.task"

	// OperationKey is the operation being performed.
	// Standard values: "fit", "predict", "transform", "clean", "split", "evaluate".
	OperationKey = "ml.operation"

	// ComponentKey identifies the package or component emitting the record.
	ComponentKey = "ml.component"

	// PhaseKey is the lifecycle phase, e.g. "preprocessing" or "training".
	PhaseKey = "ml.phase"
)

// Data shape.
const (
	SamplesKey  = "data.samples"
	FeaturesKey = "data.features"
	TargetKey   = "data.target"
	ClassesKey  = "data.classes"

	// TrainSamplesKey and TestSamplesKey describe a train/test split.
	TrainSamplesKey = "data.train_samples"
	TestSamplesKey  = "data.test_samples"

	// StratifiedKey records whether a split preserved class proportions.
	StratifiedKey = "data.stratified"
)

// Performance and metrics.
const (
	DurationMsKey = "perf.duration_ms"
	IterationKey  = "training.iteration"
	AccuracyKey   = "metrics.accuracy"
	R2ScoreKey    = "metrics.r2_score"
)

// Error context.
const (
	ErrorCodeKey  = "error.code"
	SuggestionKey = "error.suggestion"
)

// Configuration.
const (
	HyperParamsKey = "model.hyperparams"
	RandomSeedKey  = "config.random_seed"
)

// Standard attribute values.
const (
	OperationFit       = "fit"
	OperationPredict   = "predict"
	OperationTransform = "transform"
	OperationClean     = "clean"
	OperationSplit     = "split"
	OperationEvaluate  = "evaluate"

	PhasePreprocessing = "preprocessing"
	PhaseTraining      = "training"
	PhaseTesting       = "testing"
	PhaseInference     = "inference"

	ErrorNotFitted     = "NOT_FITTED"
	ErrorEmptyData     = "EMPTY_DATA"
	ErrorInvalidConfig = "INVALID_CONFIG"
	ErrorConvergence   = "CONVERGENCE_FAILURE"
	ErrorFitFailure    = "FIT_FAILURE"
	ErrorUnknownAlgo   = "UNKNOWN_ALGORITHM"
)
