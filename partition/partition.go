// Package partition splits a daily series into a training set, a
// within-period evaluation set and a future evaluation set.
//
// The first CutoffDay days of the series form the pre-cutoff period. Days
// are counted from the series start, so lead-in days consumed by lag
// construction (dataset.LeadIn) count towards the cutoff. A random
// TrainFraction of them becomes the training set and the rest
// eval_within. Every row after the cutoff goes to eval_future.
package partition

import (
	"math"
	"math/rand/v2"
	"sort"

	"github.com/YuminosukeSato/ghgforest/dataset"
	"github.com/YuminosukeSato/ghgforest/pkg/errors"
	"github.com/YuminosukeSato/ghgforest/pkg/log"
)

// Names of the three partitions.
const (
	Training   = log.PartitionTraining
	EvalWithin = log.PartitionEvalWithin
	EvalFuture = log.PartitionEvalFuture
)

// Reference settings.
const (
	DefaultCutoffDay     = 1095
	DefaultTrainFraction = 0.7
)

const stage = "partition"

// Option configures Split.
type Option func(*splitter)

type splitter struct {
	cutoffDay     int
	trainFraction float64
	seed          uint64
}

// WithCutoffDay sets the last day of the pre-cutoff period. Day 1 is the
// first day of the series.
func WithCutoffDay(day int) Option {
	return func(s *splitter) {
		s.cutoffDay = day
	}
}

// WithTrainFraction sets the share of pre-cutoff rows used for training.
func WithTrainFraction(f float64) Option {
	return func(s *splitter) {
		s.trainFraction = f
	}
}

// WithSeed sets the seed of the random training draw.
func WithSeed(seed uint64) Option {
	return func(s *splitter) {
		s.seed = seed
	}
}

// Partitions holds the three datasets and the positional indices of the
// input rows that formed each of them. Indices are ascending.
type Partitions struct {
	Training   *dataset.Dataset
	EvalWithin *dataset.Dataset
	EvalFuture *dataset.Dataset

	TrainingIndices   []int
	EvalWithinIndices []int
	EvalFutureIndices []int
}

// Get returns a partition by name.
func (p *Partitions) Get(name string) (*dataset.Dataset, bool) {
	switch name {
	case Training:
		return p.Training, true
	case EvalWithin:
		return p.EvalWithin, true
	case EvalFuture:
		return p.EvalFuture, true
	}
	return nil, false
}

// Split partitions ds. The same seed always yields the same partitions.
func Split(ds *dataset.Dataset, opts ...Option) (*Partitions, error) {
	s := &splitter{
		cutoffDay:     DefaultCutoffDay,
		trainFraction: DefaultTrainFraction,
	}
	for _, opt := range opts {
		opt(s)
	}

	n := ds.Len()
	lead := ds.LeadIn()
	if s.cutoffDay < 1 {
		return nil, errors.NewInvalidConfigurationError(stage, "cutoff_day", s.cutoffDay, "must be at least 1")
	}
	if s.cutoffDay > n+lead {
		return nil, errors.NewInvalidConfigurationError(stage, "cutoff_day", s.cutoffDay, "exceeds the number of observations")
	}
	if !(s.trainFraction > 0 && s.trainFraction < 1) {
		return nil, errors.NewInvalidConfigurationError(stage, "train_fraction", s.trainFraction, "must be in (0, 1)")
	}

	pre := s.cutoffDay - lead
	if pre < 1 {
		return nil, errors.NewInsufficientDataError(stage, "pre-cutoff observations", 1, max(pre, 0))
	}
	nTrain := int(math.Round(s.trainFraction * float64(pre)))
	if nTrain < 1 {
		return nil, errors.NewInsufficientDataError(stage, Training, 1, nTrain)
	}
	if pre-nTrain < 1 {
		return nil, errors.NewInsufficientDataError(stage, EvalWithin, 1, pre-nTrain)
	}

	indices := make([]int, pre)
	for i := range indices {
		indices[i] = i
	}
	r := rand.New(rand.NewPCG(s.seed, s.seed))
	r.Shuffle(len(indices), func(i, j int) {
		indices[i], indices[j] = indices[j], indices[i]
	})

	train := append([]int(nil), indices[:nTrain]...)
	within := append([]int(nil), indices[nTrain:]...)
	sort.Ints(train)
	sort.Ints(within)

	future := make([]int, 0, n-pre)
	for i := pre; i < n; i++ {
		future = append(future, i)
	}

	logger := log.GetLoggerWithName("partition")
	logger.Debug("Partitioned dataset",
		log.OperationKey, log.OperationPartition,
		log.SamplesKey, n,
		"cutoff_day", s.cutoffDay,
		"lead_in", lead,
		"training", len(train),
		"eval_within", len(within),
		"eval_future", len(future),
	)

	return &Partitions{
		Training:          ds.Subset(train),
		EvalWithin:        ds.Subset(within),
		EvalFuture:        ds.Subset(future),
		TrainingIndices:   train,
		EvalWithinIndices: within,
		EvalFutureIndices: future,
	}, nil
}
