// Package pipeline runs the full flux modeling flow: partitioning,
// resampling of the training set, forest fitting, importance, ALE curves and
// per-partition evaluation.
package pipeline

import (
	"context"
	"math"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/ghgforest/dataset"
	"github.com/YuminosukeSato/ghgforest/metrics"
	"github.com/YuminosukeSato/ghgforest/partition"
	"github.com/YuminosukeSato/ghgforest/pkg/errors"
	"github.com/YuminosukeSato/ghgforest/pkg/log"
	"github.com/YuminosukeSato/ghgforest/preprocessing"
	"github.com/YuminosukeSato/ghgforest/sklearn/ensemble"
	"github.com/YuminosukeSato/ghgforest/sklearn/inspection"
)

// Evaluation is the score and the raw predictions of one partition. Err is
// set when the partition could not be scored; the other partitions are
// unaffected.
type Evaluation struct {
	Partition string                  `json:"partition"`
	Mode      ensemble.PredictionMode `json:"-"`
	Scores    metrics.Scores          `json:"scores"`
	Dates     []time.Time             `json:"dates"`
	Observed  []float64               `json:"observed"`
	// Predicted is NaN for training rows without an out-of-bag tree.
	Predicted []float64 `json:"predicted"`
	Err       error     `json:"-"`
}

// Result collects everything a run produced. It holds no reference to
// global state and may be handed to any presentation layer.
type Result struct {
	RunID  uuid.UUID `json:"run_id"`
	Config Config    `json:"-"`

	Partitions *partition.Partitions        `json:"-"`
	Resampled  *preprocessing.ResampleResult `json:"-"`
	Forest     *ensemble.Forest              `json:"-"`

	Importance *inspection.ImportanceTable  `json:"importance"`
	Drivers    []inspection.DriverImportance `json:"drivers"`
	ALE        []*inspection.ALECurve        `json:"ale"`
	// SkippedALE lists the constant features that have no curve.
	SkippedALE []dataset.Feature `json:"skipped_ale,omitempty"`

	Evaluations []Evaluation `json:"evaluations"`
	Duration    time.Duration `json:"duration"`
}

// Evaluation returns the entry for the named partition.
func (r *Result) Evaluation(name string) (Evaluation, bool) {
	for _, e := range r.Evaluations {
		if e.Partition == name {
			return e, true
		}
	}
	return Evaluation{}, false
}

// LoadDataset reads the CSV at path as described by cfg and rebuilds lag
// columns when cfg.MaxLag is positive.
func LoadDataset(path string, cfg DataConfig) (*dataset.Dataset, error) {
	ds, err := dataset.ReadCSVFile(path, cfg.CSVOptions)
	if err != nil {
		return nil, err
	}
	if cfg.MaxLag > 0 {
		return dataset.WithLags(ds, cfg.MaxLag)
	}
	return ds, nil
}

// Run executes one fit of the pipeline on ds.
//
// The configuration is validated before anything is computed. Errors of the
// partitioning, resampling, fitting, importance and ALE stages abort the
// run and are returned as a StageError. Evaluation failures are recorded on
// the affected Evaluation only.
func Run(ctx context.Context, ds *dataset.Dataset, cfg Config) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	start := time.Now()
	res := &Result{RunID: uuid.New(), Config: cfg}
	logger := log.GetLoggerWithName("pipeline").With(log.RunIDKey, res.RunID.String())
	logger.Info("Starting run",
		log.SamplesKey, ds.Len(),
		log.FeaturesKey, ds.NumFeatures(),
		log.RandomSeedKey, cfg.Seed,
		log.WorkersKey, cfg.Workers,
	)

	parts, err := partition.Split(ds, cfg.partitionOptions()...)
	if err != nil {
		return nil, stageFailed(logger, log.OperationPartition, err)
	}
	res.Partitions = parts
	for _, name := range []string{partition.Training, partition.EvalWithin, partition.EvalFuture} {
		p, _ := parts.Get(name)
		logger.Debug("Partition", log.StageKey, log.OperationPartition, log.PartitionKey, name, log.SamplesKey, p.Len())
	}

	resampled, err := preprocessing.Resample(ctx, parts.Training, cfg.resampleConfig())
	if err != nil {
		return nil, stageFailed(logger, log.OperationResample, err)
	}
	res.Resampled = resampled
	train := resampled.Dataset

	forest := ensemble.NewForest(cfg.forestOptions(train.NumFeatures())...)
	if err := forest.Fit(ctx, train.X(), train.Target()); err != nil {
		return nil, stageFailed(logger, log.OperationFit, err)
	}
	res.Forest = forest

	importance, err := inspection.PermutationImportance(ctx, forest, train, cfg.importanceOptions()...)
	if err != nil {
		return nil, stageFailed(logger, log.OperationImportance, err)
	}
	res.Importance = importance
	res.Drivers = inspection.AggregateByDriver(importance)

	features, err := aleFeatures(train, cfg.ALE.Features)
	if err != nil {
		return nil, stageFailed(logger, log.OperationALE, err)
	}
	res.ALE, res.SkippedALE, err = inspection.ALEAll(ctx, forest, train, features, cfg.aleOptions()...)
	if err != nil {
		return nil, stageFailed(logger, log.OperationALE, err)
	}

	res.Evaluations = []Evaluation{
		evaluateOOB(forest, train),
		evaluate(forest, partition.EvalWithin, parts.EvalWithin),
		evaluate(forest, partition.EvalFuture, parts.EvalFuture),
	}
	for _, e := range res.Evaluations {
		if e.Err != nil {
			logger.Warn("Partition not scored",
				log.StageKey, log.OperationEvaluate,
				log.PartitionKey, e.Partition,
				"error", e.Err,
			)
			continue
		}
		logger.Info("Scored partition",
			log.StageKey, log.OperationEvaluate,
			log.PartitionKey, e.Partition,
			log.SamplesKey, e.Scores.N,
			log.RMSEKey, e.Scores.RMSE,
			log.R2ScoreKey, e.Scores.RSquared,
		)
	}

	res.Duration = time.Since(start)
	logger.Info("Finished run", log.DurationMsKey, res.Duration.Milliseconds())
	return res, nil
}

func stageFailed(logger log.Logger, stage string, err error) error {
	logger.Error("Stage failed", log.StageKey, stage, "error", err)
	return errors.NewStageError(stage, err)
}

func aleFeatures(ds *dataset.Dataset, names []string) ([]dataset.Feature, error) {
	if len(names) == 0 {
		return ds.Features(), nil
	}
	out := make([]dataset.Feature, 0, len(names))
	for _, name := range names {
		j, ok := ds.Lookup(name)
		if !ok {
			return nil, errors.NewInvalidConfigurationError("ale", "features", name, "not a column of the dataset")
		}
		out = append(out, ds.Features()[j])
	}
	return out, nil
}

// evaluateOOB scores the training set on its out-of-bag predictions. Rows
// without an out-of-bag tree are kept in the export but not scored.
func evaluateOOB(forest *ensemble.Forest, train *dataset.Dataset) Evaluation {
	e := Evaluation{
		Partition: partition.Training,
		Mode:      ensemble.OutOfBag,
		Dates:     train.Dates(),
		Observed:  train.Target(),
	}
	pred, err := forest.PredictOOB()
	if err != nil {
		e.Err = err
		return e
	}
	e.Predicted = mat.Col(nil, 0, pred)

	var p, o []float64
	for i, v := range e.Predicted {
		if !math.IsNaN(v) {
			p = append(p, v)
			o = append(o, e.Observed[i])
		}
	}
	e.Scores, e.Err = score(p, o)
	return e
}

func evaluate(forest *ensemble.Forest, name string, ds *dataset.Dataset) Evaluation {
	e := Evaluation{
		Partition: name,
		Mode:      ensemble.External,
		Dates:     ds.Dates(),
		Observed:  ds.Target(),
	}
	if ds.Len() < 2 {
		e.Err = errors.NewInsufficientDataError(log.OperationEvaluate, name+" observations", 2, ds.Len())
		return e
	}
	pred, err := forest.Predict(ds.X())
	if err != nil {
		e.Err = err
		return e
	}
	e.Predicted = mat.Col(nil, 0, pred)
	e.Scores, e.Err = score(e.Predicted, e.Observed)
	return e
}

func score(pred, obs []float64) (metrics.Scores, error) {
	if len(pred) < 2 {
		return metrics.Scores{}, errors.NewInsufficientDataError(log.OperationEvaluate, "prediction pairs", 2, len(pred))
	}
	return metrics.Evaluate(mat.NewVecDense(len(pred), pred), mat.NewVecDense(len(obs), obs))
}
