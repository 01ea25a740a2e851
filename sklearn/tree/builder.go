package tree

import (
	"math"
	"math/rand/v2"
	"sort"
)

// Criterion names accepted by the tree builders.
const (
	CriterionGini         = "gini"
	CriterionEntropy      = "entropy"
	CriterionSquaredError = "squared_error"
)

// Unlimited is the MaxDepth value meaning the tree grows until its leaves
// are pure or too small to split.
const Unlimited = -1

// Node is one node of a fitted tree. Leaves have Feature == -1.
type Node struct {
	Feature   int
	Threshold float64
	Left      int
	Right     int

	// Value is the class distribution at the node for classification trees
	// and a single mean for regression trees.
	Value []float64

	Impurity float64
	NSamples int
}

// IsLeaf reports whether the node has no children.
func (n *Node) IsLeaf() bool { return n.Feature < 0 }

// Tree is a fitted binary decision tree. Samples go left when
// x[Feature] <= Threshold.
type Tree struct {
	Nodes     []Node
	NFeatures int

	// Importances holds the total weighted impurity decrease per feature,
	// not normalized.
	Importances []float64
}

// Apply returns the index of the leaf row falls into.
func (t *Tree) Apply(row []float64) int {
	i := 0
	for !t.Nodes[i].IsLeaf() {
		n := &t.Nodes[i]
		if row[n.Feature] <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
	return i
}

// Predict returns the Value of the leaf row falls into.
func (t *Tree) Predict(row []float64) []float64 {
	return t.Nodes[t.Apply(row)].Value
}

// Depth returns the depth of the deepest leaf; a single leaf has depth 0.
func (t *Tree) Depth() int {
	var walk func(i, d int) int
	walk = func(i, d int) int {
		n := &t.Nodes[i]
		if n.IsLeaf() {
			return d
		}
		l, r := walk(n.Left, d+1), walk(n.Right, d+1)
		if l > r {
			return l
		}
		return r
	}
	return walk(0, 0)
}

// NLeaves returns the number of leaves.
func (t *Tree) NLeaves() int {
	c := 0
	for i := range t.Nodes {
		if t.Nodes[i].IsLeaf() {
			c++
		}
	}
	return c
}

// NormalizedImportances returns Importances scaled to sum to 1, or all
// zeros when the tree never split.
func (t *Tree) NormalizedImportances() []float64 {
	out := make([]float64, len(t.Importances))
	total := 0.0
	for _, v := range t.Importances {
		total += v
	}
	if total <= 0 {
		return out
	}
	for i, v := range t.Importances {
		out[i] = v / total
	}
	return out
}

// BuildConfig controls tree growth.
type BuildConfig struct {
	Criterion       string
	MaxDepth        int
	MinSamplesSplit int
	MinSamplesLeaf  int

	// MaxFeatures is the number of features drawn at each split; 0 means
	// all of them. More features are inspected when none of the drawn ones
	// yields a valid split.
	MaxFeatures int

	// NClasses is the number of classes for classification criteria. Class
	// targets are the codes 0..NClasses-1.
	NClasses int

	Rng *rand.Rand
}

// Build grows a tree on the rows of the row-major matrix data (nFeatures
// columns) listed in samples. samples may repeat rows, which is how
// bootstrap replicas are expressed.
func Build(data []float64, nFeatures int, y []float64, samples []int, cfg BuildConfig) *Tree {
	b := &builder{
		data:      data,
		nFeatures: nFeatures,
		y:         y,
		cfg:       cfg,
		tree: &Tree{
			NFeatures:   nFeatures,
			Importances: make([]float64, nFeatures),
		},
		features: make([]int, nFeatures),
	}
	if b.cfg.MinSamplesSplit < 2 {
		b.cfg.MinSamplesSplit = 2
	}
	if b.cfg.MinSamplesLeaf < 1 {
		b.cfg.MinSamplesLeaf = 1
	}
	for i := range b.features {
		b.features[i] = i
	}
	work := make([]int, len(samples))
	copy(work, samples)
	b.grow(work, 0)
	return b.tree
}

type builder struct {
	data      []float64
	nFeatures int
	y         []float64
	cfg       BuildConfig
	tree      *Tree
	features  []int
}

func (b *builder) x(row, feature int) float64 {
	return b.data[row*b.nFeatures+feature]
}

func (b *builder) classification() bool {
	return b.cfg.Criterion != CriterionSquaredError
}

// nodeStats returns the node value and impurity of samples.
func (b *builder) nodeStats(samples []int) ([]float64, float64) {
	n := float64(len(samples))
	if b.classification() {
		counts := make([]float64, b.cfg.NClasses)
		for _, s := range samples {
			counts[int(b.y[s])]++
		}
		imp := b.impurity(counts, n)
		for k := range counts {
			counts[k] /= n
		}
		return counts, imp
	}
	sum, sumSq := 0.0, 0.0
	for _, s := range samples {
		sum += b.y[s]
		sumSq += b.y[s] * b.y[s]
	}
	mean := sum / n
	return []float64{mean}, math.Max(sumSq/n-mean*mean, 0)
}

func (b *builder) impurity(counts []float64, n float64) float64 {
	if n == 0 {
		return 0
	}
	switch b.cfg.Criterion {
	case CriterionEntropy:
		e := 0.0
		for _, c := range counts {
			if c > 0 {
				p := c / n
				e -= p * math.Log2(p)
			}
		}
		return e
	default:
		g := 1.0
		for _, c := range counts {
			p := c / n
			g -= p * p
		}
		return g
	}
}

func (b *builder) grow(samples []int, depth int) int {
	value, imp := b.nodeStats(samples)
	idx := len(b.tree.Nodes)
	b.tree.Nodes = append(b.tree.Nodes, Node{
		Feature:  -1,
		Value:    value,
		Impurity: imp,
		NSamples: len(samples),
	})

	n := len(samples)
	if (b.cfg.MaxDepth >= 0 && depth >= b.cfg.MaxDepth) ||
		n < b.cfg.MinSamplesSplit ||
		n < 2*b.cfg.MinSamplesLeaf ||
		imp <= 1e-12 {
		return idx
	}

	sp, ok := b.bestSplit(samples)
	if !ok {
		return idx
	}

	left := make([]int, 0, sp.nLeft)
	right := make([]int, 0, n-sp.nLeft)
	for _, s := range samples {
		if b.x(s, sp.feature) <= sp.threshold {
			left = append(left, s)
		} else {
			right = append(right, s)
		}
	}
	b.tree.Importances[sp.feature] += math.Max(float64(n)*imp-sp.weightedChildImpurity, 0)

	l := b.grow(left, depth+1)
	r := b.grow(right, depth+1)
	node := &b.tree.Nodes[idx]
	node.Feature = sp.feature
	node.Threshold = sp.threshold
	node.Left = l
	node.Right = r
	return idx
}

type split struct {
	feature               int
	threshold             float64
	nLeft                 int
	weightedChildImpurity float64
}

type pair struct {
	x float64
	y float64
}

func (b *builder) bestSplit(samples []int) (split, bool) {
	features := b.features
	if b.cfg.MaxFeatures > 0 && b.cfg.MaxFeatures < b.nFeatures && b.cfg.Rng != nil {
		b.cfg.Rng.Shuffle(len(features), func(i, j int) { features[i], features[j] = features[j], features[i] })
	}
	limit := b.nFeatures
	if b.cfg.MaxFeatures > 0 && b.cfg.MaxFeatures < b.nFeatures {
		limit = b.cfg.MaxFeatures
	}

	n := len(samples)
	pairs := make([]pair, n)
	best := split{feature: -1}
	bestScore := math.Inf(1)

	for visited, f := range features {
		if visited >= limit && best.feature >= 0 {
			break
		}
		for k, s := range samples {
			pairs[k] = pair{x: b.x(s, f), y: b.y[s]}
		}
		sort.Slice(pairs, func(i, j int) bool { return pairs[i].x < pairs[j].x })
		if pairs[0].x == pairs[n-1].x {
			continue
		}

		score, threshold, nLeft, ok := b.scanFeature(pairs)
		if ok && score < bestScore-1e-12 {
			bestScore = score
			best = split{feature: f, threshold: threshold, nLeft: nLeft, weightedChildImpurity: score}
		}
	}
	return best, best.feature >= 0
}

// scanFeature sweeps the sorted pairs and returns the lowest
// nLeft*impLeft + nRight*impRight over valid thresholds.
func (b *builder) scanFeature(pairs []pair) (float64, float64, int, bool) {
	n := len(pairs)
	minLeaf := b.cfg.MinSamplesLeaf
	bestScore := math.Inf(1)
	bestThreshold := 0.0
	bestLeft := 0
	found := false

	if b.classification() {
		k := b.cfg.NClasses
		left := make([]float64, k)
		total := make([]float64, k)
		for _, p := range pairs {
			total[int(p.y)]++
		}
		right := make([]float64, k)
		for i := 0; i < n-1; i++ {
			left[int(pairs[i].y)]++
			if pairs[i].x == pairs[i+1].x {
				continue
			}
			nl := i + 1
			nr := n - nl
			if nl < minLeaf || nr < minLeaf {
				continue
			}
			for c := 0; c < k; c++ {
				right[c] = total[c] - left[c]
			}
			score := float64(nl)*b.impurity(left, float64(nl)) + float64(nr)*b.impurity(right, float64(nr))
			if score < bestScore {
				bestScore, bestLeft, found = score, nl, true
				bestThreshold = midpoint(pairs[i].x, pairs[i+1].x)
			}
		}
		return bestScore, bestThreshold, bestLeft, found
	}

	var sumTotal, sqTotal float64
	for _, p := range pairs {
		sumTotal += p.y
		sqTotal += p.y * p.y
	}
	var sumLeft, sqLeft float64
	for i := 0; i < n-1; i++ {
		sumLeft += pairs[i].y
		sqLeft += pairs[i].y * pairs[i].y
		if pairs[i].x == pairs[i+1].x {
			continue
		}
		nl := i + 1
		nr := n - nl
		if nl < minLeaf || nr < minLeaf {
			continue
		}
		sumRight := sumTotal - sumLeft
		sqRight := sqTotal - sqLeft
		score := (sqLeft - sumLeft*sumLeft/float64(nl)) + (sqRight - sumRight*sumRight/float64(nr))
		if score < bestScore {
			bestScore, bestLeft, found = score, nl, true
			bestThreshold = midpoint(pairs[i].x, pairs[i+1].x)
		}
	}
	return math.Max(bestScore, 0), bestThreshold, bestLeft, found
}

func midpoint(a, b float64) float64 {
	m := a/2 + b/2
	if m >= b || math.IsInf(m, 0) {
		return a
	}
	return m
}
