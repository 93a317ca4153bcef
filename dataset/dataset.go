// Package dataset holds the time-indexed observation table the pipeline
// operates on: one target column and a feature matrix keyed by
// (driver, lag) pairs.
package dataset

import (
	"time"

	"github.com/YuminosukeSato/ghgforest/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// Dataset is a table of daily observations. Rows are in timestamp order and
// the row position is the positional day index used for partitioning.
//
// A Dataset is never mutated after construction; Subset and the resampler
// build new values.
type Dataset struct {
	dates    []time.Time
	target   []float64
	x        *mat.Dense
	features []Feature
	index    map[Feature]int
	leadIn   int

	// TargetName labels the response column, e.g. "ch4_flux".
	TargetName string
}

// New validates and builds a Dataset. Dates must be strictly increasing,
// x must be len(dates) × len(features), and every value must be finite.
// x is copied.
func New(dates []time.Time, target []float64, x mat.Matrix, features []Feature) (*Dataset, error) {
	n := len(dates)
	if n == 0 {
		return nil, errors.NewInsufficientDataError("dataset", "observations", 1, 0)
	}
	if len(target) != n {
		return nil, errors.NewDimensionError("dataset.New", n, len(target), 0)
	}
	for i := 1; i < n; i++ {
		if !dates[i].After(dates[i-1]) {
			return nil, errors.NewInvalidConfigurationError("dataset", "dates", dates[i].Format(time.DateOnly),
				"timestamps must be strictly increasing and unique")
		}
	}
	if err := errors.CheckFinite("dataset", "target", target); err != nil {
		return nil, err
	}
	ds, err := build(dates, target, x, features)
	if err != nil {
		return nil, err
	}
	for j := range features {
		if err := errors.CheckFinite("dataset", features[j].Name(), ds.Column(j)); err != nil {
			return nil, err
		}
	}
	return ds, nil
}

// FromMatrix builds a derived dataset without the timestamp ordering check.
// Used for training sets that contain synthetic rows.
func FromMatrix(dates []time.Time, target []float64, x mat.Matrix, features []Feature) (*Dataset, error) {
	if len(target) != len(dates) {
		return nil, errors.NewDimensionError("dataset.FromMatrix", len(dates), len(target), 0)
	}
	return build(dates, target, x, features)
}

func build(dates []time.Time, target []float64, x mat.Matrix, features []Feature) (*Dataset, error) {
	n := len(dates)
	if n == 0 {
		return nil, errors.NewInsufficientDataError("dataset", "observations", 1, 0)
	}
	if len(features) == 0 {
		return nil, errors.NewInsufficientDataError("dataset", "feature columns", 1, 0)
	}
	r, c := x.Dims()
	if r != n {
		return nil, errors.NewDimensionError("dataset.New", n, r, 0)
	}
	if c != len(features) {
		return nil, errors.NewDimensionError("dataset.New", len(features), c, 1)
	}
	index := make(map[Feature]int, len(features))
	for j, f := range features {
		if _, dup := index[f]; dup {
			return nil, errors.NewInvalidConfigurationError("dataset", "features", f.Name(), "duplicate feature column")
		}
		index[f] = j
	}

	dense := mat.DenseCopyOf(x)
	return &Dataset{
		dates:    append([]time.Time(nil), dates...),
		target:   append([]float64(nil), target...),
		x:        dense,
		features: append([]Feature(nil), features...),
		index:    index,
	}, nil
}

// Len returns the number of rows.
func (d *Dataset) Len() int {
	return len(d.target)
}

// NumFeatures returns the number of feature columns.
func (d *Dataset) NumFeatures() int {
	return len(d.features)
}

// Features returns the column keys in column order.
func (d *Dataset) Features() []Feature {
	return append([]Feature(nil), d.features...)
}

// FeatureIndex returns the column of f, or -1.
func (d *Dataset) FeatureIndex(f Feature) int {
	if j, ok := d.index[f]; ok {
		return j
	}
	return -1
}

// Lookup resolves a column name such as "precipitation_lag2".
func (d *Dataset) Lookup(name string) (int, bool) {
	f, err := ParseFeature(name)
	if err != nil {
		return -1, false
	}
	j, ok := d.index[f]
	return j, ok
}

// LeadIn returns the number of series days that precede row 0 because
// lag construction consumed them. Row i is day LeadIn()+i+1 of the series.
// Derived datasets built by Subset or FromMatrix report 0.
func (d *Dataset) LeadIn() int {
	return d.leadIn
}

// X returns the feature matrix. Callers must not modify it.
func (d *Dataset) X() *mat.Dense {
	return d.x
}

// Target returns a copy of the target column.
func (d *Dataset) Target() []float64 {
	return append([]float64(nil), d.target...)
}

// TargetVec returns the target as a vector view sharing no memory with d.
func (d *Dataset) TargetVec() *mat.VecDense {
	return mat.NewVecDense(len(d.target), d.Target())
}

// Dates returns a copy of the row timestamps.
func (d *Dataset) Dates() []time.Time {
	return append([]time.Time(nil), d.dates...)
}

// Date returns the timestamp of row i.
func (d *Dataset) Date(i int) time.Time {
	return d.dates[i]
}

// Column returns a copy of feature column j.
func (d *Dataset) Column(j int) []float64 {
	return mat.Col(nil, j, d.x)
}

// Subset returns the rows at indices, in the given order.
func (d *Dataset) Subset(indices []int) *Dataset {
	c := len(d.features)
	x := mat.NewDense(max(len(indices), 1), max(c, 1), nil)
	dates := make([]time.Time, len(indices))
	target := make([]float64, len(indices))
	for k, i := range indices {
		dates[k] = d.dates[i]
		target[k] = d.target[i]
		for j := 0; j < c; j++ {
			x.Set(k, j, d.x.At(i, j))
		}
	}
	out := &Dataset{
		dates:      dates,
		target:     target,
		features:   d.features,
		index:      d.index,
		TargetName: d.TargetName,
	}
	if len(indices) > 0 {
		out.x = x
	} else {
		out.x = &mat.Dense{}
	}
	return out
}
