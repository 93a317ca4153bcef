package ensemble

// Option configures a Forest.
type Option func(*Forest)

// WithTrees sets the number of trees.
func WithTrees(n int) Option {
	return func(f *Forest) {
		f.nTrees = n
	}
}

// WithMtry sets the number of candidate features drawn at each node.
func WithMtry(m int) Option {
	return func(f *Forest) {
		f.mtry = m
		f.mtrySet = true
	}
}

// WithMinCriterion sets the 1 - p threshold a split must exceed.
func WithMinCriterion(c float64) Option {
	return func(f *Forest) {
		f.minCriterion = c
	}
}

// WithMinSplit sets the minimum node size eligible for splitting.
func WithMinSplit(n int) Option {
	return func(f *Forest) {
		f.minSplit = n
	}
}

// WithMinBucket sets the minimum size of each child node.
func WithMinBucket(n int) Option {
	return func(f *Forest) {
		f.minBucket = n
	}
}

// WithMaxDepth limits the depth of every tree. 0 means unlimited.
func WithMaxDepth(d int) Option {
	return func(f *Forest) {
		f.maxDepth = d
	}
}

// WithReplace selects bootstrap sampling (true, the default) or
// subsampling without replacement.
func WithReplace(replace bool) Option {
	return func(f *Forest) {
		f.replace = replace
	}
}

// WithFraction sets the subsample share used when sampling without
// replacement.
func WithFraction(fraction float64) Option {
	return func(f *Forest) {
		f.fraction = fraction
	}
}

// WithSeed sets the seed from which every tree's stream is derived.
func WithSeed(seed uint64) Option {
	return func(f *Forest) {
		f.seed = seed
	}
}

// WithWorkers sets the number of trees fitted concurrently. n <= 0 uses
// one worker per CPU.
func WithWorkers(n int) Option {
	return func(f *Forest) {
		f.workers = n
	}
}
