package dataset

import (
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/ghgforest/pkg/errors"
)

// WithLags adds lag 1..maxLag columns for every unlagged driver of d.
// Row t of a lag-k column holds the driver's value on day t-k, so the first
// maxLag rows are dropped and counted in LeadIn. The result is driver-major:
// each driver is followed by its lags. Columns that already carry a lag are
// discarded and rebuilt.
func WithLags(d *Dataset, maxLag int) (*Dataset, error) {
	if maxLag < 0 {
		return nil, errors.NewInvalidConfigurationError("dataset", "max_lag", maxLag, "must be non-negative")
	}
	if d.Len() <= maxLag {
		return nil, errors.NewInsufficientDataError("dataset", "observations for lagging", maxLag+1, d.Len())
	}

	var base []int
	var drivers []string
	for j, f := range d.features {
		if f.Lag == 0 {
			base = append(base, j)
			drivers = append(drivers, f.Driver)
		}
	}
	if len(base) == 0 {
		return nil, errors.NewInsufficientDataError("dataset", "unlagged driver columns", 1, 0)
	}

	features := LaggedFeatures(drivers, maxLag)
	n := d.Len() - maxLag
	x := mat.NewDense(n, len(features), nil)
	for t := 0; t < n; t++ {
		row := t + maxLag
		col := 0
		for _, j := range base {
			for lag := 0; lag <= maxLag; lag++ {
				x.Set(t, col, d.x.At(row-lag, j))
				col++
			}
		}
	}

	out, err := New(d.dates[maxLag:], d.target[maxLag:], x, features)
	if err != nil {
		return nil, err
	}
	out.TargetName = d.TargetName
	out.leadIn = d.leadIn + maxLag
	return out, nil
}
