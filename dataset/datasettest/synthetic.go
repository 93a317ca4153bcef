// Package datasettest generates synthetic daily flux series for tests.
package datasettest

import (
	"math/rand/v2"
	"time"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/YuminosukeSato/ghgforest/dataset"
)

// Driver names of the synthetic series.
const (
	Signal   = "signal"
	Noise    = "noise"
	Constant = "constant"
)

// Options controls Linear.
type Options struct {
	Days        int
	MaxLag      int
	Coefficient float64
	NoiseSD     float64
	Seed        uint64
	// WithConstant adds a driver that is identical on every day.
	WithConstant bool
}

// DefaultOptions is a four-year series with seven lags.
func DefaultOptions() Options {
	return Options{
		Days:        1460,
		MaxLag:      dataset.MaxReferenceLag,
		Coefficient: 2,
		NoiseSD:     0.5,
		Seed:        7,
	}
}

// Start is the first day of every synthetic series.
var Start = time.Date(2016, time.January, 1, 0, 0, 0, 0, time.UTC)

// Linear returns a series of Days days where target(t) = Coefficient·signal(t) + ε,
// signal and noise are i.i.d. Uniform(0, 10) drivers and ε ~ N(0, NoiseSD).
// Every driver carries lags 1..MaxLag, so the table holds Days-MaxLag rows
// and starts MaxLag days after Start.
func Linear(opts Options) *dataset.Dataset {
	raw := opts.Days
	src := rand.NewPCG(opts.Seed, opts.Seed^0x9e3779b97f4a7c15)
	uniform := distuv.Uniform{Min: 0, Max: 10, Src: src}
	eps := distuv.Normal{Mu: 0, Sigma: opts.NoiseSD, Src: src}

	drivers := []string{Signal, Noise}
	if opts.WithConstant {
		drivers = append(drivers, Constant)
	}
	features := make([]dataset.Feature, len(drivers))
	for j, d := range drivers {
		features[j] = dataset.Feature{Driver: d}
	}

	dates := make([]time.Time, raw)
	target := make([]float64, raw)
	x := mat.NewDense(raw, len(drivers), nil)
	for t := 0; t < raw; t++ {
		dates[t] = Start.AddDate(0, 0, t)
		s := uniform.Rand()
		x.Set(t, 0, s)
		x.Set(t, 1, uniform.Rand())
		if opts.WithConstant {
			x.Set(t, 2, 1)
		}
		target[t] = opts.Coefficient*s + eps.Rand()
	}

	base, err := dataset.New(dates, target, x, features)
	if err != nil {
		panic(err)
	}
	base.TargetName = "flux"
	if opts.MaxLag == 0 {
		return base
	}
	lagged, err := dataset.WithLags(base, opts.MaxLag)
	if err != nil {
		panic(err)
	}
	return lagged
}
