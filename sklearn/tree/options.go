package tree

// Option configures a ConditionalTree.
type Option func(*ConditionalTree)

// WithMinCriterion sets the value 1 - p that the selected variable's test
// must exceed for a node to be split. 0 splits whenever any candidate is
// associated with the response at all.
func WithMinCriterion(c float64) Option {
	return func(t *ConditionalTree) {
		t.minCriterion = c
	}
}

// WithMinSplit sets the minimum number of observations a node needs to be
// considered for splitting.
func WithMinSplit(n int) Option {
	return func(t *ConditionalTree) {
		t.minSplit = n
	}
}

// WithMinBucket sets the minimum number of observations in each child.
func WithMinBucket(n int) Option {
	return func(t *ConditionalTree) {
		t.minBucket = n
	}
}

// WithMaxDepth limits the tree depth. 0 means unlimited.
func WithMaxDepth(depth int) Option {
	return func(t *ConditionalTree) {
		t.maxDepth = depth
	}
}

// WithMtry sets the number of candidate features drawn at each node.
// 0 uses every feature.
func WithMtry(m int) Option {
	return func(t *ConditionalTree) {
		t.mtry = m
	}
}
