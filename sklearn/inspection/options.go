package inspection

// Reference settings.
const (
	DefaultConditionThreshold = 0.2
	DefaultPermutations       = 1
	DefaultBins               = 40
)

type importanceConfig struct {
	conditional bool
	threshold   float64
	nPerm       int
	seed        uint64
	workers     int
}

// ImportanceOption configures PermutationImportance.
type ImportanceOption func(*importanceConfig)

// WithConditional toggles permutation within the cells of correlated
// variables (true, the default) against plain marginal permutation.
func WithConditional(conditional bool) ImportanceOption {
	return func(c *importanceConfig) {
		c.conditional = conditional
	}
}

// WithConditionThreshold sets the 1 - p value above which a variable is
// conditioned on.
func WithConditionThreshold(threshold float64) ImportanceOption {
	return func(c *importanceConfig) {
		c.threshold = threshold
	}
}

// WithPermutations sets the number of permutations per tree and feature.
func WithPermutations(n int) ImportanceOption {
	return func(c *importanceConfig) {
		c.nPerm = n
	}
}

// WithImportanceSeed seeds the permutations.
func WithImportanceSeed(seed uint64) ImportanceOption {
	return func(c *importanceConfig) {
		c.seed = seed
	}
}

// WithImportanceWorkers sets how many trees are processed concurrently.
func WithImportanceWorkers(n int) ImportanceOption {
	return func(c *importanceConfig) {
		c.workers = n
	}
}

type aleConfig struct {
	bins    int
	workers int
}

// ALEOption configures ALE and ALEAll.
type ALEOption func(*aleConfig)

// WithBins sets the requested number of quantile bins.
func WithBins(k int) ALEOption {
	return func(c *aleConfig) {
		c.bins = k
	}
}

// WithALEWorkers sets how many bins are evaluated concurrently.
func WithALEWorkers(n int) ALEOption {
	return func(c *aleConfig) {
		c.workers = n
	}
}
