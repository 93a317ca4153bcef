package pipeline

import (
	"context"

	"gonum.org/v1/gonum/stat"

	"github.com/YuminosukeSato/ghgforest/dataset"
	"github.com/YuminosukeSato/ghgforest/pkg/errors"
	"github.com/YuminosukeSato/ghgforest/pkg/log"
	"github.com/YuminosukeSato/ghgforest/sklearn/inspection"
)

// RepeatedImportance is the importance of one feature over repeated fits.
type RepeatedImportance struct {
	Feature dataset.Feature `json:"feature"`
	Mean    float64         `json:"mean"`
	// SD is the sample standard deviation, 0 for a single run.
	SD float64 `json:"sd"`
}

// RepeatResult holds the individual runs and their averaged importance.
type RepeatResult struct {
	Runs       []*Result                     `json:"runs"`
	Importance []RepeatedImportance          `json:"importance"`
	Drivers    []inspection.DriverImportance `json:"drivers"`
}

// Repeat runs the pipeline n times with seeds cfg.Seed, cfg.Seed+1, ... and
// averages the feature importances. Runs are sequential; each one already
// uses cfg.Workers goroutines internally.
func Repeat(ctx context.Context, ds *dataset.Dataset, cfg Config, n int) (*RepeatResult, error) {
	if n < 1 {
		return nil, errors.NewInvalidConfigurationError("repeat", "n", n, "must be at least 1")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := log.GetLoggerWithName("pipeline.repeat")

	out := &RepeatResult{Runs: make([]*Result, 0, n)}
	for r := 0; r < n; r++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		runCfg := cfg
		runCfg.Seed = cfg.Seed + uint64(r)
		res, err := Run(ctx, ds, runCfg)
		if err != nil {
			return nil, errors.Wrapf(err, "repetition %d", r)
		}
		out.Runs = append(out.Runs, res)
	}

	first := out.Runs[0].Importance
	mean := &inspection.ImportanceTable{
		Features:    make([]inspection.FeatureImportance, len(first.Features)),
		Conditional: first.Conditional,
	}
	out.Importance = make([]RepeatedImportance, len(first.Features))
	for j, fi := range first.Features {
		scores := make([]float64, n)
		for r, res := range out.Runs {
			scores[r] = res.Importance.Features[j].Score
		}
		m, sd := stat.MeanStdDev(scores, nil)
		if n == 1 {
			sd = 0
		}
		out.Importance[j] = RepeatedImportance{Feature: fi.Feature, Mean: m, SD: sd}
		mean.Features[j] = inspection.FeatureImportance{Feature: fi.Feature, Score: m}
	}
	out.Drivers = inspection.AggregateByDriver(mean)

	logger.Info("Finished repeated runs", "runs", n, log.FeaturesKey, len(first.Features))
	return out, nil
}
