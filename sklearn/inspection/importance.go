// Package inspection explains a fitted forest: conditional permutation
// variable importance and accumulated local effect curves.
package inspection

import (
	"cmp"
	"context"
	"encoding/binary"
	"math"
	"math/rand/v2"
	"slices"
	"sort"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/ghgforest/core/parallel"
	"github.com/YuminosukeSato/ghgforest/dataset"
	"github.com/YuminosukeSato/ghgforest/pkg/errors"
	"github.com/YuminosukeSato/ghgforest/pkg/log"
	"github.com/YuminosukeSato/ghgforest/sklearn/ensemble"
	"github.com/YuminosukeSato/ghgforest/sklearn/tree"
)

// FeatureImportance is the score of one feature column.
type FeatureImportance struct {
	Feature dataset.Feature `json:"feature"`
	Score   float64         `json:"score"`
	// Trees is the number of trees that split on the feature and had
	// out-of-bag rows.
	Trees int `json:"trees"`
	// ConditionedOn lists the variables whose cells the permutation was
	// restricted to.
	ConditionedOn []dataset.Feature `json:"conditioned_on,omitempty"`
}

// ImportanceTable holds one non-negative score per feature, in the
// dataset's column order.
type ImportanceTable struct {
	Features    []FeatureImportance `json:"features"`
	Conditional bool                `json:"conditional"`
}

// Score returns the score of f, or 0 when f is not in the table.
func (t *ImportanceTable) Score(f dataset.Feature) float64 {
	for _, fi := range t.Features {
		if fi.Feature == f {
			return fi.Score
		}
	}
	return 0
}

// Ranked returns the features by descending score.
func (t *ImportanceTable) Ranked() []FeatureImportance {
	out := slices.Clone(t.Features)
	slices.SortStableFunc(out, func(a, b FeatureImportance) int {
		return cmp.Compare(b.Score, a.Score)
	})
	return out
}

// DriverImportance is the sum of a driver's scores over its lags.
type DriverImportance struct {
	Driver string  `json:"driver"`
	Score  float64 `json:"score"`
	Lags   []int   `json:"lags"`
}

// AggregateByDriver sums the scores of each driver's lag variants. The
// result is ordered by descending score; ties keep the column order.
func AggregateByDriver(t *ImportanceTable) []DriverImportance {
	index := make(map[string]int)
	var out []DriverImportance
	for _, fi := range t.Features {
		k, ok := index[fi.Feature.Driver]
		if !ok {
			k = len(out)
			index[fi.Feature.Driver] = k
			out = append(out, DriverImportance{Driver: fi.Feature.Driver})
		}
		out[k].Score += fi.Score
		out[k].Lags = append(out[k].Lags, fi.Feature.Lag)
	}
	for k := range out {
		slices.Sort(out[k].Lags)
	}
	slices.SortStableFunc(out, func(a, b DriverImportance) int {
		return cmp.Compare(b.Score, a.Score)
	})
	return out
}

// PermutationImportance measures, for each tree and each feature the tree
// splits on, the increase of the tree's out-of-bag mean squared error when
// the feature is permuted among the out-of-bag rows. With conditional
// permutation the values are only shuffled within the cells of the grid
// formed by the tree's split points on the variables associated with the
// feature. A feature scores the mean increase over the trees that used it,
// clamped at zero; a feature no tree used scores exactly zero.
//
// ds must hold the rows the forest was fitted on, in the same order.
func PermutationImportance(ctx context.Context, forest *ensemble.Forest, ds *dataset.Dataset, opts ...ImportanceOption) (*ImportanceTable, error) {
	const stage = "importance"
	cfg := importanceConfig{
		conditional: true,
		threshold:   DefaultConditionThreshold,
		nPerm:       DefaultPermutations,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.nPerm < 1 {
		return nil, errors.NewInvalidConfigurationError(stage, "permutations", cfg.nPerm, "must be at least 1")
	}
	if !(cfg.threshold >= 0 && cfg.threshold < 1) {
		return nil, errors.NewInvalidConfigurationError(stage, "condition_threshold", cfg.threshold, "must be in [0, 1)")
	}
	if !forest.IsFitted() {
		return nil, errors.NewNotFittedError("Forest", "PermutationImportance")
	}
	X := forest.TrainingX()
	n, p := X.Dims()
	if ds.Len() != n {
		return nil, errors.NewDimensionError("PermutationImportance", n, ds.Len(), 0)
	}
	if ds.NumFeatures() != p {
		return nil, errors.NewDimensionError("PermutationImportance", p, ds.NumFeatures(), 1)
	}

	logger := log.GetLoggerWithName("inspection.importance")
	start := time.Now()
	y := forest.TrainingY()
	features := ds.Features()

	var conditioning [][]int
	if cfg.conditional {
		var err error
		conditioning, err = conditioningSets(ctx, X, cfg.threshold, cfg.workers)
		if err != nil {
			return nil, err
		}
	}

	B := forest.NumTrees()
	increase := make([][]float64, B)
	used := make([][]bool, B)
	err := parallel.ForEach(ctx, B, cfg.workers, func(ctx context.Context, b int) error {
		oob := forest.OOBRows(b)
		if len(oob) == 0 {
			return nil
		}
		t := forest.Tree(b)
		rng := rand.New(rand.NewPCG(cfg.seed, uint64(b)))
		base := treeMSE(t, X, y, oob, -1, nil)

		inc := make([]float64, p)
		u := make([]bool, p)
		permuted := make([]float64, n)
		for _, j := range t.UsedFeatures() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var cells [][]int
			if cfg.conditional {
				cells = gridCells(t, X, oob, conditioning[j])
			} else {
				cells = [][]int{oob}
			}
			var total float64
			for r := 0; r < cfg.nPerm; r++ {
				permuteWithin(rng, X, j, cells, permuted)
				total += treeMSE(t, X, y, oob, j, permuted) - base
			}
			inc[j] = total / float64(cfg.nPerm)
			u[j] = true
		}
		increase[b], used[b] = inc, u
		return nil
	})
	if err != nil {
		return nil, err
	}

	table := &ImportanceTable{Features: make([]FeatureImportance, p), Conditional: cfg.conditional}
	for j := 0; j < p; j++ {
		var sum float64
		var trees int
		for b := 0; b < B; b++ {
			if used[b] != nil && used[b][j] {
				sum += increase[b][j]
				trees++
			}
		}
		score := 0.0
		if trees > 0 {
			score = math.Max(sum/float64(trees), 0)
		}
		fi := FeatureImportance{Feature: features[j], Score: score, Trees: trees}
		if cfg.conditional {
			for _, z := range conditioning[j] {
				fi.ConditionedOn = append(fi.ConditionedOn, features[z])
			}
		}
		table.Features[j] = fi
	}

	logger.Info("Computed permutation importance",
		log.OperationKey, log.OperationImportance,
		log.FeaturesKey, p,
		log.TreesKey, B,
		"conditional", cfg.conditional,
		log.DurationMsKey, time.Since(start).Milliseconds(),
	)
	return table, nil
}

// conditioningSets returns, for every feature j, the other features whose
// association test with j gives 1 - p > threshold.
func conditioningSets(ctx context.Context, X *mat.Dense, threshold float64, workers int) ([][]int, error) {
	_, p := X.Dims()
	cols := make([][]float64, p)
	for j := range cols {
		cols[j] = mat.Col(nil, j, X)
	}
	assoc := make([][]bool, p)
	err := parallel.ForEach(ctx, p, workers, func(_ context.Context, j int) error {
		row := make([]bool, p)
		for k := j + 1; k < p; k++ {
			_, pv := tree.IndependenceTest(cols[j], cols[k])
			row[k] = 1-pv > threshold
		}
		assoc[j] = row
		return nil
	})
	if err != nil {
		return nil, err
	}
	sets := make([][]int, p)
	for j := 0; j < p; j++ {
		for k := 0; k < p; k++ {
			switch {
			case k > j && assoc[j][k], k < j && assoc[k][j]:
				sets[j] = append(sets[j], k)
			}
		}
	}
	return sets, nil
}

// gridCells groups rows by the cell they fall in on the grid spanned by
// t's split points on the variables in z. Variables t does not split on
// contribute no cuts. Cells are returned in order of first appearance.
func gridCells(t *tree.ConditionalTree, X *mat.Dense, rows []int, z []int) [][]int {
	type axis struct {
		feature int
		cuts    []float64
	}
	var axes []axis
	for _, k := range z {
		if cuts := t.SplitPoints(k); len(cuts) > 0 {
			axes = append(axes, axis{feature: k, cuts: cuts})
		}
	}
	if len(axes) == 0 {
		return [][]int{rows}
	}

	index := make(map[string]int)
	var cells [][]int
	key := make([]byte, 0, binary.MaxVarintLen64*len(axes))
	for _, i := range rows {
		key = key[:0]
		for _, a := range axes {
			// rows with x <= cut go left, so the cell is the number of cuts below x
			bin := sort.SearchFloat64s(a.cuts, X.At(i, a.feature))
			key = binary.AppendUvarint(key, uint64(bin))
		}
		c, ok := index[string(key)]
		if !ok {
			c = len(cells)
			index[string(key)] = c
			cells = append(cells, nil)
		}
		cells[c] = append(cells[c], i)
	}
	return cells
}

// permuteWithin writes into out[i], for every row i of every cell, the
// value of feature j of another row of the same cell.
func permuteWithin(rng *rand.Rand, X *mat.Dense, j int, cells [][]int, out []float64) {
	for _, cell := range cells {
		perm := rng.Perm(len(cell))
		for a, i := range cell {
			out[i] = X.At(cell[perm[a]], j)
		}
	}
}

// treeMSE is the mean squared error of t over rows. When j >= 0 feature j
// of row i is replaced by values[i].
func treeMSE(t *tree.ConditionalTree, X *mat.Dense, y []float64, rows []int, j int, values []float64) float64 {
	var sse float64
	for _, i := range rows {
		pred := t.PredictFunc(func(k int) float64 {
			if k == j {
				return values[i]
			}
			return X.At(i, k)
		})
		d := pred - y[i]
		sse += d * d
	}
	return sse / float64(len(rows))
}
