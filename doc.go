// Package ghgforest models the day-to-day variation of a greenhouse-gas
// flux series from lagged and unlagged environmental drivers with a forest
// of conditional inference trees, and explains the fitted forest with
// conditional permutation importance and accumulated local effect curves.
//
// # Pipeline
//
// One run of the pipeline:
//
//  1. splits the series at a day cutoff into a pre-cutoff period and an
//     eval_future holdout, and draws a random training share of the
//     pre-cutoff rows (the rest is eval_within)
//  2. rebalances the training target with SMOGN-style undersampling of
//     common values and interpolation of rare ones
//  3. fits the forest
//  4. scores every feature with conditional permutation importance and sums
//     the scores over the lags of each driver
//  5. computes an ALE curve for every feature
//  6. reports RMSE and squared Pearson correlation per partition
//
// # Quick Start
//
//	package main
//
//	import (
//	    "context"
//	    "fmt"
//	    "log"
//
//	    "github.com/YuminosukeSato/ghgforest/pipeline"
//	)
//
//	func main() {
//	    cfg := pipeline.DefaultConfig()
//	    cfg.Data.MaxLag = 7
//
//	    ds, err := pipeline.LoadDataset("flux.csv", cfg.Data)
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    res, err := pipeline.Run(context.Background(), ds, cfg)
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    for _, d := range res.Drivers {
//	        fmt.Println(d.Driver, d.Score)
//	    }
//	}
//
// The ghgforest command wraps the same flow:
//
//	ghgforest config > run.yaml
//	ghgforest run --data flux.csv --config run.yaml --lags 7 --out report
//
// # Packages
//
//   - dataset: daily tables keyed by (driver, lag) features, CSV loading
//   - partition: temporal and random split
//   - preprocessing: relevance bands, SMOGN resampling, StandardScaler
//   - sklearn/tree: conditional inference regression tree
//   - sklearn/ensemble: forest with out-of-bag bookkeeping
//   - sklearn/inspection: permutation importance and ALE
//   - metrics: RMSE, MAE and squared Pearson correlation
//   - pipeline: configuration and orchestration
//   - report: charts and JSON summary
//   - core/model: estimator interfaces
//   - core/parallel: fork-join helpers
//   - pkg/errors, pkg/log: structured errors and logging
//
// # Reproducibility
//
// Every stochastic stage draws from its own generator derived from the
// configured seed, and each tree of the forest from its own stream, so a
// run gives identical results for any number of workers.
package ghgforest
