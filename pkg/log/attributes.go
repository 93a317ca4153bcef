// Package log defines standard attribute keys for pipeline logging.
//
// The keys follow a hierarchical naming convention (e.g. "data.samples",
// "pipeline.stage") so log lines from different stages can be filtered and
// joined on the same fields.

package log

// Model and Operation Context
const (
	// ModelNameKey identifies the estimator, e.g. "ConditionalForest".
	ModelNameKey = "model.name"

	// RunIDKey carries the UUID of one pipeline run. Every stage of a run
	// logs the same value.
	RunIDKey = "run.id"

	// OperationKey specifies the operation being performed.
	// Standard values: "fit", "predict", "resample", "importance", "ale", "evaluate"
	OperationKey = "ml.operation"

	// ComponentKey identifies the package emitting the record.
	ComponentKey = "ml.component"

	// StageKey names the pipeline stage: "partition", "resample", "fit",
	// "importance", "ale", "evaluate".
	StageKey = "pipeline.stage"
)

// Data Shape and Characteristics
const (
	// SamplesKey is the number of rows being processed.
	SamplesKey = "data.samples"

	// FeaturesKey is the number of feature columns.
	FeaturesKey = "data.features"

	// PartitionKey names a data partition: "training", "eval_within", "eval_future".
	PartitionKey = "data.partition"

	// FeatureKey is a single feature column name, e.g. "air_temperature_lag3".
	FeatureKey = "feature.name"

	// DriverKey is a physical driver name without lag suffix.
	DriverKey = "feature.driver"

	// LagKey is the lag in days of a feature.
	LagKey = "feature.lag"

	// ClassKey identifies a relevance class of the resampler.
	ClassKey = "resample.class"
)

// Performance and Model Metrics
const (
	// DurationMsKey records the execution time of an operation in milliseconds.
	DurationMsKey = "perf.duration_ms"

	// RMSEKey records the root mean squared error of a partition.
	RMSEKey = "metrics.rmse"

	// R2ScoreKey records the squared Pearson correlation of a partition.
	R2ScoreKey = "metrics.r2_score"

	// OOBErrorKey records the out-of-bag mean squared error of the forest.
	OOBErrorKey = "metrics.oob_mse"

	// TreesKey records the number of trees in an ensemble.
	TreesKey = "model.trees"

	// BinsKey records the number of ALE bins actually used.
	BinsKey = "ale.bins"
)

// Error and Warning Context
const (
	// ErrorTypeKey categorizes the error, e.g. "InvalidConfigurationError".
	ErrorTypeKey = "error.type"

	// SuggestionKey provides a hint for resolving the issue.
	SuggestionKey = "error.suggestion"
)

// Configuration
const (
	// RandomSeedKey records the seed driving a stochastic stage.
	RandomSeedKey = "config.random_seed"

	// WorkersKey records the number of parallel workers.
	WorkersKey = "config.workers"
)

// Standard attribute values.
const (
	OperationFit        = "fit"
	OperationPredict    = "predict"
	OperationPartition  = "partition"
	OperationResample   = "resample"
	OperationImportance = "importance"
	OperationALE        = "ale"
	OperationEvaluate   = "evaluate"

	PartitionTraining   = "training"
	PartitionEvalWithin = "eval_within"
	PartitionEvalFuture = "eval_future"
)
