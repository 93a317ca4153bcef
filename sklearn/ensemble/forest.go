// Package ensemble implements a random forest of conditional inference
// trees with out-of-bag bookkeeping.
package ensemble

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/ghgforest/core/model"
	"github.com/YuminosukeSato/ghgforest/core/parallel"
	"github.com/YuminosukeSato/ghgforest/pkg/errors"
	"github.com/YuminosukeSato/ghgforest/pkg/log"
	"github.com/YuminosukeSato/ghgforest/sklearn/tree"
)

// Reference forest settings.
const (
	DefaultTrees    = 500
	DefaultMtry     = 5
	DefaultFraction = 0.632
)

const stage = "fit"

// PredictionMode selects which trees contribute to a prediction.
type PredictionMode int

const (
	// External averages every tree. Used for data the forest was not
	// trained on.
	External PredictionMode = iota
	// OutOfBag averages, for row i of the training matrix, only the trees
	// that did not draw row i.
	OutOfBag
)

func (m PredictionMode) String() string {
	switch m {
	case External:
		return "external"
	case OutOfBag:
		return "oob"
	}
	return "unknown"
}

var (
	_ model.Regressor = (*Forest)(nil)
	_ model.Predictor = (*Forest)(nil)
)

// Forest is an ensemble of conditional inference trees. After Fit it is
// read-only and safe for concurrent prediction.
type Forest struct {
	model.BaseEstimator

	nTrees       int
	mtry         int
	mtrySet      bool
	minCriterion float64
	minSplit     int
	minBucket    int
	maxDepth     int
	replace      bool
	fraction     float64
	seed         uint64
	workers      int

	trees []*tree.ConditionalTree
	// inBag[b][i] is how often tree b drew row i
	inBag [][]int32
	oob   [][]int
	x     *mat.Dense
	y     []float64
}

// NewForest returns an unfitted forest.
func NewForest(opts ...Option) *Forest {
	f := &Forest{
		nTrees:       DefaultTrees,
		minCriterion: tree.DefaultMinCriterion,
		minSplit:     tree.DefaultMinSplit,
		minBucket:    tree.DefaultMinBucket,
		replace:      true,
		fraction:     DefaultFraction,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *Forest) validate(n, p int) error {
	if f.nTrees < 1 {
		return errors.NewInvalidConfigurationError(stage, "n_trees", f.nTrees, "must be at least 1")
	}
	if f.mtrySet && (f.mtry < 1 || f.mtry > p) {
		return errors.NewInvalidConfigurationError(stage, "mtry", f.mtry, "must be in [1, number of features]")
	}
	if !f.replace && !(f.fraction > 0 && f.fraction <= 1) {
		return errors.NewInvalidConfigurationError(stage, "fraction", f.fraction, "must be in (0, 1]")
	}
	if n < 2 {
		return errors.NewInsufficientDataError(stage, "training observations", 2, n)
	}
	if !f.replace && int(math.Round(f.fraction*float64(n))) < 1 {
		return errors.NewInsufficientDataError(stage, "subsample observations", 1, 0)
	}
	return nil
}

// Mtry returns the candidate feature count used for p features.
func (f *Forest) Mtry(p int) int {
	if f.mtrySet {
		return f.mtry
	}
	return min(DefaultMtry, p)
}

// Fit grows every tree on its own bootstrap sample or subsample of
// (X, y). Tree b draws from the stream PCG(seed, b), so the fitted forest
// does not depend on the number of workers.
func (f *Forest) Fit(ctx context.Context, X mat.Matrix, y []float64) (err error) {
	defer errors.Recover(&err, "ensemble.Forest.Fit")

	n, p := X.Dims()
	if len(y) != n {
		return errors.NewDimensionError("Forest.Fit", n, len(y), 0)
	}
	if err := f.validate(n, p); err != nil {
		return err
	}
	if err := errors.CheckFinite(stage, "response", y); err != nil {
		return err
	}

	logger := log.GetLoggerWithName("ensemble.forest")
	start := time.Now()

	f.Reset()
	x := mat.DenseCopyOf(X)
	yy := append([]float64(nil), y...)
	mtry := f.Mtry(p)

	trees := make([]*tree.ConditionalTree, f.nTrees)
	inBag := make([][]int32, f.nTrees)
	oob := make([][]int, f.nTrees)

	err = parallel.ForEach(ctx, f.nTrees, f.workers, func(ctx context.Context, b int) error {
		rng := rand.New(rand.NewPCG(f.seed, uint64(b)))
		rows, counts := f.draw(rng, n)

		var out []int
		for i, c := range counts {
			if c == 0 {
				out = append(out, i)
			}
		}

		t := tree.NewConditionalTree(
			tree.WithMtry(mtry),
			tree.WithMinCriterion(f.minCriterion),
			tree.WithMinSplit(f.minSplit),
			tree.WithMinBucket(f.minBucket),
			tree.WithMaxDepth(f.maxDepth),
		)
		if err := t.FitRows(ctx, x, yy, rows, rng); err != nil {
			return errors.Wrapf(err, "tree %d", b)
		}
		trees[b], inBag[b], oob[b] = t, counts, out
		return nil
	})
	if err != nil {
		return err
	}

	f.trees, f.inBag, f.oob = trees, inBag, oob
	f.x, f.y = x, yy
	f.SetFitted()

	logger.Info("Fitted conditional forest",
		log.OperationKey, log.OperationFit,
		log.ModelNameKey, "ConditionalForest",
		log.SamplesKey, n,
		log.FeaturesKey, p,
		log.TreesKey, f.nTrees,
		"mtry", mtry,
		log.OOBErrorKey, f.OOBError(),
		log.DurationMsKey, time.Since(start).Milliseconds(),
	)
	return nil
}

// draw returns the multiset of rows for one tree and the draw count of
// every row.
func (f *Forest) draw(rng *rand.Rand, n int) ([]int, []int32) {
	counts := make([]int32, n)
	var rows []int
	if f.replace {
		rows = make([]int, n)
		for k := range rows {
			i := rng.IntN(n)
			rows[k] = i
			counts[i]++
		}
		return rows, counts
	}
	size := int(math.Round(f.fraction * float64(n)))
	rows = rng.Perm(n)[:size]
	for _, i := range rows {
		counts[i] = 1
	}
	return rows, counts
}

// Predict averages all trees over the rows of X.
func (f *Forest) Predict(X mat.Matrix) (*mat.VecDense, error) {
	return f.PredictWithMode(X, External)
}

// PredictOOB returns the out-of-bag prediction of every training row.
func (f *Forest) PredictOOB() (*mat.VecDense, error) {
	if !f.IsFitted() {
		return nil, errors.NewNotFittedError("Forest", "PredictOOB")
	}
	return f.PredictWithMode(f.x, OutOfBag)
}

// PredictWithMode predicts X in the given mode. OutOfBag requires X to
// have the training matrix's shape; row i is then predicted only by the
// trees whose out-of-bag set contains i, and is NaN when there is none.
func (f *Forest) PredictWithMode(X mat.Matrix, mode PredictionMode) (*mat.VecDense, error) {
	if !f.IsFitted() {
		return nil, errors.NewNotFittedError("Forest", "Predict")
	}
	r, c := X.Dims()
	n, p := f.x.Dims()
	if c != p {
		return nil, errors.NewDimensionError("Forest.Predict", p, c, 1)
	}

	if r == 0 {
		return &mat.VecDense{}, nil
	}
	out := mat.NewVecDense(r, nil)

	switch mode {
	case External:
		parallel.ParallelizeWithThreshold(r, 64, func(start, end int) {
			for i := start; i < end; i++ {
				var sum float64
				for _, t := range f.trees {
					sum += t.PredictAt(X, i)
				}
				out.SetVec(i, sum/float64(len(f.trees)))
			}
		})
	case OutOfBag:
		if r != n {
			return nil, errors.NewDimensionError("Forest.Predict(oob)", n, r, 0)
		}
		sum := make([]float64, n)
		cnt := make([]int, n)
		for b, t := range f.trees {
			for _, i := range f.oob[b] {
				sum[i] += t.PredictAt(X, i)
				cnt[i]++
			}
		}
		for i := range sum {
			if cnt[i] == 0 {
				out.SetVec(i, math.NaN())
				continue
			}
			out.SetVec(i, sum[i]/float64(cnt[i]))
		}
	default:
		return nil, errors.NewInvalidConfigurationError("predict", "mode", int(mode), "unknown prediction mode")
	}
	return out, nil
}

// OOBError returns the mean squared out-of-bag error over the rows that
// have at least one out-of-bag tree, or NaN if none has.
func (f *Forest) OOBError() float64 {
	if f.x == nil {
		return math.NaN()
	}
	pred, err := f.PredictWithMode(f.x, OutOfBag)
	if err != nil {
		return math.NaN()
	}
	var sse float64
	var m int
	for i, yi := range f.y {
		v := pred.AtVec(i)
		if math.IsNaN(v) {
			continue
		}
		d := v - yi
		sse += d * d
		m++
	}
	if m == 0 {
		return math.NaN()
	}
	return sse / float64(m)
}

// NumTrees returns the number of fitted trees.
func (f *Forest) NumTrees() int {
	return len(f.trees)
}

// Tree returns tree b.
func (f *Forest) Tree(b int) *tree.ConditionalTree {
	return f.trees[b]
}

// OOBRows returns the training rows tree b did not draw, ascending.
// Callers must not modify the slice.
func (f *Forest) OOBRows(b int) []int {
	return f.oob[b]
}

// InBagCount returns how often tree b drew training row i.
func (f *Forest) InBagCount(b, i int) int {
	return int(f.inBag[b][i])
}

// TrainingX returns the training matrix. Callers must not modify it.
func (f *Forest) TrainingX() *mat.Dense {
	return f.x
}

// TrainingY returns a copy of the training response.
func (f *Forest) TrainingY() []float64 {
	return append([]float64(nil), f.y...)
}

// NumFeatures returns the width of the training matrix.
func (f *Forest) NumFeatures() int {
	if f.x == nil {
		return 0
	}
	_, p := f.x.Dims()
	return p
}
