// Package tree implements conditional inference regression trees.
//
// At every node the association between each candidate feature and the
// response is measured with a permutation test, the most significant
// feature is chosen and only then is its split point searched. Separating
// variable selection from split search removes the preference of
// exhaustive-search trees for features with many distinct values.
package tree

import (
	"cmp"
	"context"
	"math"
	"math/rand/v2"
	"slices"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/ghgforest/core/model"
	"github.com/YuminosukeSato/ghgforest/pkg/errors"
)

// Defaults of an unbiased conditional forest.
const (
	DefaultMinCriterion = 0.0
	DefaultMinSplit     = 20
	DefaultMinBucket    = 7
)

// Node is one node of a fitted tree. Children are indices into
// ConditionalTree.Nodes; leaves have Left == Right == -1.
type Node struct {
	Left  int
	Right int
	Depth int

	// Split, for inner nodes. Rows with x[Feature] <= Threshold go left.
	Feature   int
	Threshold float64
	Statistic float64 // standardized test statistic of Feature
	Criterion float64 // 1 - p of Feature

	// Value is the mean response of the node's observations.
	Value float64
	Count int
}

// IsLeaf reports whether n is a terminal node.
func (n *Node) IsLeaf() bool {
	return n.Left == -1 && n.Right == -1
}

var (
	_ model.Regressor = (*ConditionalTree)(nil)
	_ model.Predictor = (*ConditionalTree)(nil)
)

// ConditionalTree is a regression tree grown with conditional inference.
type ConditionalTree struct {
	model.BaseEstimator

	Nodes []Node

	minCriterion float64
	minSplit     int
	minBucket    int
	maxDepth     int
	mtry         int
	seed         uint64

	nFeatures int
	used      []bool
}

// NewConditionalTree returns an unfitted tree with the given options.
func NewConditionalTree(opts ...Option) *ConditionalTree {
	t := &ConditionalTree{
		minCriterion: DefaultMinCriterion,
		minSplit:     DefaultMinSplit,
		minBucket:    DefaultMinBucket,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// WithSeed seeds the candidate feature draw of Fit.
func WithSeed(seed uint64) Option {
	return func(t *ConditionalTree) {
		t.seed = seed
	}
}

func (t *ConditionalTree) validate(nFeatures int) error {
	const stage = "fit"
	if !(t.minCriterion >= 0 && t.minCriterion < 1) {
		return errors.NewInvalidConfigurationError(stage, "min_criterion", t.minCriterion, "must be in [0, 1)")
	}
	if t.minSplit < 2 {
		return errors.NewInvalidConfigurationError(stage, "min_split", t.minSplit, "must be at least 2")
	}
	if t.minBucket < 1 {
		return errors.NewInvalidConfigurationError(stage, "min_bucket", t.minBucket, "must be at least 1")
	}
	if t.maxDepth < 0 {
		return errors.NewInvalidConfigurationError(stage, "max_depth", t.maxDepth, "must be non-negative")
	}
	if t.mtry < 0 || t.mtry > nFeatures {
		return errors.NewInvalidConfigurationError(stage, "mtry", t.mtry, "must be in [0, number of features]")
	}
	return nil
}

// Fit grows the tree on every row of X.
func (t *ConditionalTree) Fit(ctx context.Context, X mat.Matrix, y []float64) error {
	r, _ := X.Dims()
	rows := make([]int, r)
	for i := range rows {
		rows[i] = i
	}
	return t.FitRows(ctx, X, y, rows, rand.New(rand.NewPCG(t.seed, t.seed)))
}

// FitRows grows the tree on the given rows of X. rows may repeat an index,
// which weights that observation by its multiplicity, as a bootstrap
// sample does. rng drives the candidate feature draw.
func (t *ConditionalTree) FitRows(ctx context.Context, X mat.Matrix, y []float64, rows []int, rng *rand.Rand) error {
	r, c := X.Dims()
	if len(y) != r {
		return errors.NewDimensionError("ConditionalTree.Fit", r, len(y), 0)
	}
	if err := t.validate(c); err != nil {
		return err
	}
	if len(rows) == 0 {
		return errors.NewInsufficientDataError("fit", "tree observations", 1, 0)
	}

	t.Reset()
	t.Nodes = t.Nodes[:0]
	t.nFeatures = c
	t.used = make([]bool, c)

	g := &grower{
		tree:     t,
		ctx:      ctx,
		x:        X,
		y:        y,
		rng:      rng,
		features: make([]int, c),
	}
	for j := range g.features {
		g.features[j] = j
	}
	if _, err := g.grow(slices.Clone(rows), 0); err != nil {
		return err
	}
	t.SetFitted()
	return nil
}

type grower struct {
	tree     *ConditionalTree
	ctx      context.Context
	x        mat.Matrix
	y        []float64
	rng      *rand.Rand
	features []int
}

func (g *grower) grow(rows []int, depth int) (int, error) {
	if err := g.ctx.Err(); err != nil {
		return -1, err
	}
	t := g.tree
	n := len(rows)

	var sum float64
	yMin, yMax := math.Inf(1), math.Inf(-1)
	for _, i := range rows {
		sum += g.y[i]
		yMin, yMax = math.Min(yMin, g.y[i]), math.Max(yMax, g.y[i])
	}
	mean := sum / float64(n)

	id := len(t.Nodes)
	t.Nodes = append(t.Nodes, Node{Left: -1, Right: -1, Depth: depth, Feature: -1, Value: mean, Count: n})

	if n < t.minSplit || (t.maxDepth > 0 && depth >= t.maxDepth) || yMin == yMax {
		return id, nil
	}

	feature, stat, crit := g.selectFeature(rows)
	if feature < 0 || crit <= t.minCriterion {
		return id, nil
	}
	threshold, ok := g.splitPoint(rows, feature, mean)
	if !ok {
		return id, nil
	}

	var left, right []int
	for _, i := range rows {
		if g.x.At(i, feature) <= threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	t.used[feature] = true
	t.Nodes[id].Feature = feature
	t.Nodes[id].Threshold = threshold
	t.Nodes[id].Statistic = stat
	t.Nodes[id].Criterion = crit

	l, err := g.grow(left, depth+1)
	if err != nil {
		return -1, err
	}
	r, err := g.grow(right, depth+1)
	if err != nil {
		return -1, err
	}
	t.Nodes[id].Left = l
	t.Nodes[id].Right = r
	return id, nil
}

// selectFeature draws the candidates and returns the one with the largest
// absolute standardized statistic, which is the one with the smallest
// p-value. Ties keep the earlier candidate.
func (g *grower) selectFeature(rows []int) (feature int, stat, criterion float64) {
	p := len(g.features)
	m := g.tree.mtry
	if m == 0 || m >= p {
		m = p
	} else {
		for i := 0; i < m; i++ {
			j := i + g.rng.IntN(p-i)
			g.features[i], g.features[j] = g.features[j], g.features[i]
		}
	}

	feature = -1
	best := 0.0
	bestP := 1.0
	for _, j := range g.features[:m] {
		c, pv := independence(len(rows),
			func(k int) float64 { return g.x.At(rows[k], j) },
			func(k int) float64 { return g.y[rows[k]] })
		if pv >= 1 {
			continue
		}
		if math.Abs(c) > best {
			best, bestP, feature = math.Abs(c), pv, j
		}
	}
	return feature, best, 1 - bestP
}

type obs struct {
	x, y float64
	row  int
}

// splitPoint searches the threshold of feature that maximizes the absolute
// two-sample statistic with at least minBucket observations on each side.
func (g *grower) splitPoint(rows []int, feature int, mean float64) (float64, bool) {
	n := len(rows)
	pts := make([]obs, n)
	var syy float64
	for k, i := range rows {
		pts[k] = obs{x: g.x.At(i, feature), y: g.y[i], row: i}
		d := g.y[i] - mean
		syy += d * d
	}
	slices.SortFunc(pts, func(a, b obs) int {
		if c := cmp.Compare(a.x, b.x); c != 0 {
			return c
		}
		return cmp.Compare(a.row, b.row)
	})

	minBucket := g.tree.minBucket
	best := -1.0
	threshold := 0.0
	var sumLeft float64
	for k := 0; k < n-1; k++ {
		sumLeft += pts[k].y - mean
		if pts[k].x == pts[k+1].x {
			continue
		}
		nLeft := k + 1
		if nLeft < minBucket || n-nLeft < minBucket {
			continue
		}
		if s := math.Abs(twoSample(sumLeft, syy, nLeft, n)); s > best {
			best, threshold = s, pts[k].x
		}
	}
	return threshold, best >= 0
}

// Predict returns the leaf mean for every row of X.
func (t *ConditionalTree) Predict(X mat.Matrix) (*mat.VecDense, error) {
	if !t.IsFitted() {
		return nil, errors.NewNotFittedError("ConditionalTree", "Predict")
	}
	r, c := X.Dims()
	if c != t.nFeatures {
		return nil, errors.NewDimensionError("ConditionalTree.Predict", t.nFeatures, c, 1)
	}
	out := mat.NewVecDense(r, nil)
	for i := 0; i < r; i++ {
		out.SetVec(i, t.PredictAt(X, i))
	}
	return out, nil
}

// PredictAt predicts row i of X without validation.
func (t *ConditionalTree) PredictAt(X mat.Matrix, i int) float64 {
	return t.PredictFunc(func(j int) float64 { return X.At(i, j) })
}

// PredictFunc predicts the observation whose feature j is value(j). It lets
// callers substitute single coordinates without building a row.
func (t *ConditionalTree) PredictFunc(value func(j int) float64) float64 {
	id := 0
	for {
		node := &t.Nodes[id]
		if node.IsLeaf() {
			return node.Value
		}
		if value(node.Feature) <= node.Threshold {
			id = node.Left
		} else {
			id = node.Right
		}
	}
}

// NumFeatures returns the width of the training matrix.
func (t *ConditionalTree) NumFeatures() int {
	return t.nFeatures
}

// UsesFeature reports whether feature j appears in at least one split.
func (t *ConditionalTree) UsesFeature(j int) bool {
	return j >= 0 && j < len(t.used) && t.used[j]
}

// UsedFeatures returns the features that appear in splits, ascending.
func (t *ConditionalTree) UsedFeatures() []int {
	var out []int
	for j, u := range t.used {
		if u {
			out = append(out, j)
		}
	}
	return out
}

// SplitPoints returns the distinct thresholds of the splits on feature j,
// ascending.
func (t *ConditionalTree) SplitPoints(j int) []float64 {
	var out []float64
	for k := range t.Nodes {
		if !t.Nodes[k].IsLeaf() && t.Nodes[k].Feature == j {
			out = append(out, t.Nodes[k].Threshold)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// NumLeaves returns the number of terminal nodes.
func (t *ConditionalTree) NumLeaves() int {
	n := 0
	for k := range t.Nodes {
		if t.Nodes[k].IsLeaf() {
			n++
		}
	}
	return n
}

// Depth returns the depth of the deepest node.
func (t *ConditionalTree) Depth() int {
	d := 0
	for k := range t.Nodes {
		d = max(d, t.Nodes[k].Depth)
	}
	return d
}
