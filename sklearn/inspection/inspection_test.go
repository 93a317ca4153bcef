package inspection

import (
	"context"
	"math"
	"math/rand/v2"
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/ghgforest/core/model"
	"github.com/YuminosukeSato/ghgforest/dataset"
	"github.com/YuminosukeSato/ghgforest/dataset/datasettest"
	"github.com/YuminosukeSato/ghgforest/pkg/errors"
	"github.com/YuminosukeSato/ghgforest/sklearn/ensemble"
	"github.com/YuminosukeSato/ghgforest/sklearn/tree"
)

func fittedForest(t *testing.T) (*ensemble.Forest, *dataset.Dataset) {
	t.Helper()
	opts := datasettest.DefaultOptions()
	opts.Days = 400
	opts.MaxLag = 1
	opts.WithConstant = true
	ds := datasettest.Linear(opts)

	f := ensemble.NewForest(ensemble.WithTrees(30), ensemble.WithMtry(3), ensemble.WithSeed(2))
	require.NoError(t, f.Fit(context.Background(), ds.X(), ds.Target()))
	return f, ds
}

func TestPermutationImportance(t *testing.T) {
	prev := errors.SetWarningHandler(nil)
	defer errors.SetWarningHandler(prev)

	forest, ds := fittedForest(t)
	for _, conditional := range []bool{true, false} {
		table, err := PermutationImportance(context.Background(), forest, ds,
			WithConditional(conditional), WithImportanceSeed(4), WithPermutations(2))
		require.NoError(t, err)
		require.Len(t, table.Features, ds.NumFeatures())
		assert.Equal(t, conditional, table.Conditional)

		for _, fi := range table.Features {
			assert.GreaterOrEqual(t, fi.Score, 0.0, fi.Feature.Name())
		}
		constant := dataset.Feature{Driver: datasettest.Constant}
		assert.Equal(t, 0.0, table.Score(constant))
		assert.Equal(t, 0.0, table.Score(dataset.Feature{Driver: datasettest.Constant, Lag: 1}))

		signal := table.Score(dataset.Feature{Driver: datasettest.Signal})
		noise := table.Score(dataset.Feature{Driver: datasettest.Noise})
		assert.Greater(t, signal, noise)
		assert.Equal(t, dataset.Feature{Driver: datasettest.Signal}, table.Ranked()[0].Feature)

		drivers := AggregateByDriver(table)
		require.Len(t, drivers, 3)
		assert.Equal(t, datasettest.Signal, drivers[0].Driver)
		assert.Equal(t, []int{0, 1}, drivers[0].Lags)
	}
}

func TestPermutationImportanceDeterministic(t *testing.T) {
	forest, ds := fittedForest(t)
	a, err := PermutationImportance(context.Background(), forest, ds, WithImportanceSeed(8), WithImportanceWorkers(1))
	require.NoError(t, err)
	b, err := PermutationImportance(context.Background(), forest, ds, WithImportanceSeed(8), WithImportanceWorkers(3))
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestPermutationImportanceErrors(t *testing.T) {
	forest, ds := fittedForest(t)
	ctx := context.Background()

	_, err := PermutationImportance(ctx, forest, ds, WithPermutations(0))
	assert.True(t, errors.Is(err, errors.ErrInvalidConfiguration))
	_, err = PermutationImportance(ctx, forest, ds, WithConditionThreshold(1))
	assert.True(t, errors.Is(err, errors.ErrInvalidConfiguration))

	_, err = PermutationImportance(ctx, forest, ds.Subset([]int{0, 1, 2}))
	var dim *errors.DimensionError
	assert.True(t, errors.As(err, &dim))

	_, err = PermutationImportance(ctx, ensemble.NewForest(), ds)
	var nf *errors.NotFittedError
	assert.True(t, errors.As(err, &nf))

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = PermutationImportance(cancelled, forest, ds)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestAggregateByDriver(t *testing.T) {
	table := &ImportanceTable{Features: []FeatureImportance{
		{Feature: dataset.Feature{Driver: "precipitation"}, Score: 0.5},
		{Feature: dataset.Feature{Driver: "precipitation", Lag: 2}, Score: 1.5},
		{Feature: dataset.Feature{Driver: "water_table", Lag: 1}, Score: 3},
		{Feature: dataset.Feature{Driver: "water_table", Lag: 0}, Score: 0},
		{Feature: dataset.Feature{Driver: "air_temperature"}, Score: 2},
	}}
	got := AggregateByDriver(table)
	want := []DriverImportance{
		{Driver: "water_table", Score: 3, Lags: []int{0, 1}},
		{Driver: "precipitation", Score: 2, Lags: []int{0, 2}},
		{Driver: "air_temperature", Score: 2, Lags: []int{0}},
	}
	assert.Equal(t, want, got)
}

func TestGridCells(t *testing.T) {
	// root splits feature 1 at 0.5, its right child at 2
	ct := &tree.ConditionalTree{Nodes: []tree.Node{
		{Left: 1, Right: 2, Feature: 1, Threshold: 0.5},
		{Left: -1, Right: -1, Feature: -1},
		{Left: 3, Right: 4, Feature: 1, Threshold: 2},
		{Left: -1, Right: -1, Feature: -1},
		{Left: -1, Right: -1, Feature: -1},
	}}
	X := mat.NewDense(5, 2, []float64{
		9, 0.1,
		9, 0.7,
		9, 3,
		9, 0.5,
		9, 2,
	})
	rows := []int{0, 1, 2, 3, 4}

	assert.Equal(t, [][]int{{0, 3}, {1, 4}, {2}}, gridCells(ct, X, rows, []int{1}))
	assert.Equal(t, [][]int{rows}, gridCells(ct, X, rows, []int{0}), "no cuts on feature 0")
	assert.Equal(t, [][]int{rows}, gridCells(ct, X, rows, nil))
}

func TestPermuteWithin(t *testing.T) {
	X := mat.NewDense(6, 1, []float64{1, 2, 3, 10, 20, 30})
	cells := [][]int{{0, 1, 2}, {3, 4, 5}}
	out := make([]float64, 6)
	permuteWithin(rand.New(rand.NewPCG(1, 1)), X, 0, cells, out)

	low := slices.Clone(out[:3])
	high := slices.Clone(out[3:])
	slices.Sort(low)
	slices.Sort(high)
	assert.Equal(t, []float64{1, 2, 3}, low)
	assert.Equal(t, []float64{10, 20, 30}, high)
}

func linearDataset(t *testing.T, n int) *dataset.Dataset {
	t.Helper()
	rng := rand.New(rand.NewPCG(7, 7))
	start := time.Date(2020, time.January, 1, 0, 0, 0, 0, time.UTC)
	dates := make([]time.Time, n)
	y := make([]float64, n)
	X := mat.NewDense(n, 3, nil)
	for i := 0; i < n; i++ {
		dates[i] = start.AddDate(0, 0, i)
		X.Set(i, 0, rng.Float64()*10)
		X.Set(i, 1, float64(rng.IntN(3)))
		X.Set(i, 2, 1)
	}
	ds, err := dataset.New(dates, y, X, []dataset.Feature{{Driver: "x"}, {Driver: "k"}, {Driver: "flat"}})
	require.NoError(t, err)
	return ds
}

// linear predicts 3·x - k.
var linear = model.PredictorFunc(func(X mat.Matrix) (*mat.VecDense, error) {
	r, _ := X.Dims()
	out := mat.NewVecDense(r, nil)
	for i := 0; i < r; i++ {
		out.SetVec(i, 3*X.At(i, 0)-X.At(i, 1))
	}
	return out, nil
})

func TestALELinear(t *testing.T) {
	ds := linearDataset(t, 500)
	curve, err := ALE(context.Background(), linear, ds, dataset.Feature{Driver: "x"}, WithBins(20))
	require.NoError(t, err)

	require.Len(t, curve.Bins, 20)
	assert.Len(t, curve.Edges, 21)
	assert.InDelta(t, 0, curve.WeightedMean(), 1e-9)

	total := 0
	for k, b := range curve.Bins {
		total += b.Count
		assert.Equal(t, curve.Edges[k], b.Lower)
		assert.Equal(t, curve.Edges[k+1], b.Upper)
		assert.InDelta(t, 3*(b.Value-curve.Bins[0].Value), b.Effect-curve.Bins[0].Effect, 1e-9)
		if k > 0 {
			assert.Greater(t, b.Effect, curve.Bins[k-1].Effect)
		}
	}
	assert.Equal(t, ds.Len(), total)
}

func TestALEMergesDuplicateEdges(t *testing.T) {
	ds := linearDataset(t, 300)
	curve, err := ALE(context.Background(), linear, ds, dataset.Feature{Driver: "k"}, WithBins(40))
	require.NoError(t, err)

	assert.Equal(t, []float64{0, 1, 2}, curve.Edges)
	require.Len(t, curve.Bins, 2)
	assert.InDelta(t, -1, curve.Bins[1].Effect-curve.Bins[0].Effect, 1e-9)
	assert.InDelta(t, 0, curve.WeightedMean(), 1e-9)
}

func TestALEConstantFeature(t *testing.T) {
	var warnings []error
	prev := errors.SetWarningHandler(func(w error) { warnings = append(warnings, w) })
	defer errors.SetWarningHandler(prev)

	ds := linearDataset(t, 100)
	_, err := ALE(context.Background(), linear, ds, dataset.Feature{Driver: "flat"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrNumericDegeneracy))
	assert.Len(t, warnings, 1)

	curves, skipped, err := ALEAll(context.Background(), linear, ds, ds.Features(), WithBins(10))
	require.NoError(t, err)
	assert.Len(t, curves, 2)
	assert.Equal(t, []dataset.Feature{{Driver: "flat"}}, skipped)
}

func TestALEErrors(t *testing.T) {
	ds := linearDataset(t, 50)
	ctx := context.Background()

	_, err := ALE(ctx, linear, ds, dataset.Feature{Driver: "missing"})
	assert.True(t, errors.Is(err, errors.ErrInvalidConfiguration))
	_, err = ALE(ctx, linear, ds, dataset.Feature{Driver: "x"}, WithBins(0))
	assert.True(t, errors.Is(err, errors.ErrInvalidConfiguration))

	failing := model.PredictorFunc(func(mat.Matrix) (*mat.VecDense, error) {
		return nil, errors.New("model unavailable")
	})
	_, _, err = ALEAll(ctx, failing, ds, []dataset.Feature{{Driver: "x"}})
	assert.ErrorContains(t, err, "model unavailable")
}

func TestALEEmptyDataset(t *testing.T) {
	ds := linearDataset(t, 50)
	ctx := context.Background()
	empty := ds.Subset(nil)

	_, err := ALE(ctx, linear, empty, dataset.Feature{Driver: "x"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInsufficientData), "got %v", err)

	_, _, err = ALEAll(ctx, linear, empty, ds.Features())
	assert.True(t, errors.Is(err, errors.ErrInsufficientData))
}

func TestALEOnForest(t *testing.T) {
	prev := errors.SetWarningHandler(nil)
	defer errors.SetWarningHandler(prev)

	forest, ds := fittedForest(t)
	curve, err := ALE(context.Background(), forest, ds, dataset.Feature{Driver: datasettest.Signal}, WithBins(10))
	require.NoError(t, err)
	assert.InDelta(t, 0, curve.WeightedMean(), 1e-9)
	first, last := curve.Bins[0].Effect, curve.Bins[len(curve.Bins)-1].Effect
	assert.Greater(t, last-first, 10.0, "coefficient 2 over a range of 10")
	assert.False(t, math.IsNaN(first))
}
