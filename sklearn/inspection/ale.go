package inspection

import (
	"context"
	"slices"
	"sort"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/YuminosukeSato/ghgforest/core/model"
	"github.com/YuminosukeSato/ghgforest/core/parallel"
	"github.com/YuminosukeSato/ghgforest/dataset"
	"github.com/YuminosukeSato/ghgforest/pkg/errors"
	"github.com/YuminosukeSato/ghgforest/pkg/log"
)

// ALEBin is one interval (Lower, Upper] of an ALE curve. The first bin
// also contains its lower edge.
type ALEBin struct {
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
	// Value is the bin midpoint.
	Value float64 `json:"value"`
	Count int     `json:"count"`
	// Effect is the centered accumulated effect at Value.
	Effect float64 `json:"effect"`
}

// ALECurve is the accumulated local effect of one feature.
type ALECurve struct {
	Feature dataset.Feature `json:"feature"`
	Bins    []ALEBin        `json:"bins"`
	// Edges are the merged quantile edges and EdgeEffects the centered
	// accumulated effect at each of them.
	Edges       []float64 `json:"edges"`
	EdgeEffects []float64 `json:"edge_effects"`
}

// WeightedMean returns the occupancy-weighted mean effect, which is zero up
// to rounding.
func (c *ALECurve) WeightedMean() float64 {
	var sum float64
	var n int
	for _, b := range c.Bins {
		sum += float64(b.Count) * b.Effect
		n += b.Count
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// ALE computes the accumulated local effect curve of feature on the rows
// of ds.
//
// The bin edges are the 0, 1/K, ..., 1 quantiles of the feature with
// duplicates merged. For every bin the local effect is the mean, over the
// rows in the bin, of the prediction with the feature set to the upper edge
// minus the prediction with it set to the lower edge. Local effects are
// accumulated, each bin is represented by its midpoint and the average of
// its two edge effects, and the occupancy-weighted mean is subtracted.
//
// A constant feature is reported through errors.Warn and returned as a
// NumericDegeneracyWarning error.
func ALE(ctx context.Context, predictor model.Predictor, ds *dataset.Dataset, feature dataset.Feature, opts ...ALEOption) (*ALECurve, error) {
	const stage = "ale"
	cfg := aleConfig{bins: DefaultBins}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.bins < 1 {
		return nil, errors.NewInvalidConfigurationError(stage, "bins", cfg.bins, "must be at least 1")
	}
	if ds.Len() < 1 {
		return nil, errors.NewInsufficientDataError(stage, "observations", 1, ds.Len())
	}
	j := ds.FeatureIndex(feature)
	if j < 0 {
		return nil, errors.NewInvalidConfigurationError(stage, "feature", feature.Name(), "not a column of the dataset")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	x := ds.Column(j)
	sorted := slices.Clone(x)
	slices.Sort(sorted)
	if sorted[0] == sorted[len(sorted)-1] {
		w := errors.NewNumericDegeneracyWarning(stage, feature.Name(), "constant feature, no ALE curve")
		errors.Warn(w)
		return nil, errors.WithStack(w)
	}

	edges := make([]float64, 0, cfg.bins+1)
	for k := 0; k <= cfg.bins; k++ {
		edges = append(edges, stat.Quantile(float64(k)/float64(cfg.bins), stat.Empirical, sorted, nil))
	}
	edges[0], edges[cfg.bins] = sorted[0], sorted[len(sorted)-1]
	edges = slices.Compact(edges)
	K := len(edges) - 1

	members := make([][]int, K)
	for i, v := range x {
		k := max(sort.SearchFloat64s(edges, v), 1) - 1
		members[k] = append(members[k], i)
	}

	X := ds.X()
	local := make([]float64, K)
	err := parallel.ForEach(ctx, K, cfg.workers, func(_ context.Context, k int) error {
		rows := members[k]
		if len(rows) == 0 {
			return nil
		}
		lo := mat.NewDense(len(rows), ds.NumFeatures(), nil)
		for r, i := range rows {
			lo.SetRow(r, X.RawRowView(i))
		}
		hi := mat.DenseCopyOf(lo)
		for r := range rows {
			lo.Set(r, j, edges[k])
			hi.Set(r, j, edges[k+1])
		}
		fLo, err := predictor.Predict(lo)
		if err != nil {
			return err
		}
		fHi, err := predictor.Predict(hi)
		if err != nil {
			return err
		}
		var sum float64
		for r := range rows {
			sum += fHi.AtVec(r) - fLo.AtVec(r)
		}
		local[k] = sum / float64(len(rows))
		return nil
	})
	if err != nil {
		return nil, err
	}

	accumulated := make([]float64, K+1)
	for k := 0; k < K; k++ {
		accumulated[k+1] = accumulated[k] + local[k]
	}

	bins := make([]ALEBin, K)
	var weighted float64
	for k := range bins {
		bins[k] = ALEBin{
			Lower:  edges[k],
			Upper:  edges[k+1],
			Value:  (edges[k] + edges[k+1]) / 2,
			Count:  len(members[k]),
			Effect: (accumulated[k] + accumulated[k+1]) / 2,
		}
		weighted += float64(bins[k].Count) * bins[k].Effect
	}
	center := weighted / float64(len(x))
	for k := range bins {
		bins[k].Effect -= center
	}
	for k := range accumulated {
		accumulated[k] -= center
	}

	log.GetLoggerWithName("inspection.ale").Debug("Computed ALE curve",
		log.OperationKey, log.OperationALE,
		log.FeatureKey, feature.Name(),
		log.BinsKey, K,
	)
	return &ALECurve{Feature: feature, Bins: bins, Edges: edges, EdgeEffects: accumulated}, nil
}

// ALEAll computes the curve of every feature in features. Constant features
// are skipped and returned in skipped; any other error aborts.
func ALEAll(ctx context.Context, predictor model.Predictor, ds *dataset.Dataset, features []dataset.Feature, opts ...ALEOption) (curves []*ALECurve, skipped []dataset.Feature, err error) {
	for _, f := range features {
		curve, err := ALE(ctx, predictor, ds, f, opts...)
		if err != nil {
			if errors.Is(err, errors.ErrNumericDegeneracy) {
				skipped = append(skipped, f)
				continue
			}
			return nil, nil, errors.Wrapf(err, "ale %s", f.Name())
		}
		curves = append(curves, curve)
	}
	return curves, skipped, nil
}
