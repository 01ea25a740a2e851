// Package model_selection splits datasets into training and test partitions.
package model_selection

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sort"

	"github.com/tabtrain/tabtrain/pkg/errors"
)

// Split holds the row indices of a train/test partition.
type Split struct {
	Train []int
	Test  []int

	// Stratified reports whether class proportions were preserved.
	Stratified bool
}

// TestCount returns the number of test rows for n rows at testSize:
// ceil(n * testSize).
func TestCount(n int, testSize float64) int {
	return int(math.Ceil(float64(n) * testSize))
}

// CanStratify reports whether labels allow a stratified split: at least two
// classes and at least two members in every class.
func CanStratify(labels []float64) bool {
	counts := make(map[float64]int)
	for _, l := range labels {
		counts[l]++
	}
	if len(counts) < 2 {
		return false
	}
	for _, c := range counts {
		if c < 2 {
			return false
		}
	}
	return true
}

// TrainTestSplit shuffles the rows [0, n) with a PCG source seeded from
// seed and assigns TestCount(n, testSize) of them to the test partition.
//
// When stratify is non-nil and CanStratify(stratify) holds, each class
// contributes to the test partition in proportion to its size; otherwise the
// split is a plain shuffle. Every class keeps at least one training row, so
// when that leaves fewer than TestCount rows for the test partition the
// split also falls back to a plain shuffle. Both partitions are returned in ascending row
// order. A partition that would be empty is an EmptyDatasetError.
func TrainTestSplit(n int, testSize float64, seed uint64, stratify []float64) (*Split, error) {
	if testSize <= 0 || testSize >= 1 {
		return nil, errors.NewValidationError("test_size", "must be in the open interval (0, 1)", testSize)
	}
	if n == 0 {
		return nil, errors.NewEmptyDatasetError("split")
	}
	if stratify != nil && len(stratify) != n {
		return nil, errors.NewDimensionError("TrainTestSplit", n, len(stratify), 0)
	}

	nTest := TestCount(n, testSize)
	if nTest >= n {
		return nil, errors.NewEmptyDatasetError("split: training partition")
	}

	rng := rand.New(rand.NewPCG(seed, seed))

	var split *Split
	if stratify != nil && CanStratify(stratify) {
		split = stratifiedSplit(stratify, nTest, rng)
	}
	if split == nil {
		perm := rng.Perm(n)
		split = &Split{Test: perm[:nTest], Train: perm[nTest:]}
	}
	sort.Ints(split.Train)
	sort.Ints(split.Test)

	if len(split.Test) == 0 {
		return nil, errors.NewEmptyDatasetError("split: test partition")
	}
	if len(split.Train) == 0 {
		return nil, errors.NewEmptyDatasetError("split: training partition")
	}
	return split, nil
}

func stratifiedSplit(labels []float64, nTest int, rng *rand.Rand) *Split {
	members := make(map[float64][]int)
	var classes []float64
	for i, l := range labels {
		if _, ok := members[l]; !ok {
			classes = append(classes, l)
		}
		members[l] = append(members[l], i)
	}
	sort.Float64s(classes)

	alloc, ok := allocate(classes, members, len(labels), nTest)
	if !ok {
		return nil
	}

	split := &Split{Stratified: true}
	for k, c := range classes {
		rows := members[c]
		rng.Shuffle(len(rows), func(i, j int) { rows[i], rows[j] = rows[j], rows[i] })
		split.Test = append(split.Test, rows[:alloc[k]]...)
		split.Train = append(split.Train, rows[alloc[k]:]...)
	}
	return split
}

// allocate distributes nTest test rows across classes proportionally to
// their sizes. Floors are assigned first and the remainder goes to the
// classes with the largest fractional share, ties to the smaller label. No
// class gives up all of its rows; ok is false when that cap leaves the
// allocation short of nTest.
func allocate(classes []float64, members map[float64][]int, n, nTest int) (alloc []int, ok bool) {
	type share struct {
		k    int
		frac float64
	}
	alloc = make([]int, len(classes))
	shares := make([]share, len(classes))
	assigned := 0
	for k, c := range classes {
		exact := float64(nTest) * float64(len(members[c])) / float64(n)
		alloc[k] = int(math.Floor(exact))
		if alloc[k] >= len(members[c]) {
			alloc[k] = len(members[c]) - 1
		}
		shares[k] = share{k: k, frac: exact - math.Floor(exact)}
		assigned += alloc[k]
	}
	sort.SliceStable(shares, func(i, j int) bool { return shares[i].frac > shares[j].frac })

	remaining := nTest - assigned
	for remaining > 0 {
		progressed := false
		for _, s := range shares {
			if remaining == 0 {
				break
			}
			if alloc[s.k] < len(members[classes[s.k]])-1 {
				alloc[s.k]++
				remaining--
				progressed = true
			}
		}
		if !progressed {
			break
		}
	}
	return alloc, remaining == 0
}

// String describes the split sizes.
func (s *Split) String() string {
	return fmt.Sprintf("Split(train=%d, test=%d, stratified=%t)", len(s.Train), len(s.Test), s.Stratified)
}
