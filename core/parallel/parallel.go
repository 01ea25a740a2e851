// Package parallel provides the CPU-bound fan-out helpers used by the models.
package parallel

import (
	"runtime"

	"golang.org/x/sync/errgroup"
)

// chunks splits [0, items) into at most one contiguous range per CPU core.
func chunks(items int) [][2]int {
	workers := min(runtime.NumCPU(), items)
	size := (items + workers - 1) / workers
	out := make([][2]int, 0, workers)
	for start := 0; start < items; start += size {
		out = append(out, [2]int{start, min(start+size, items)})
	}
	return out
}

// Parallelize calls fn concurrently on one contiguous sub-range of
// [0, items) per CPU core and waits for all of them.
func Parallelize(items int, fn func(start, end int)) {
	if items <= 0 {
		return
	}
	var g errgroup.Group
	for _, c := range chunks(items) {
		g.Go(func() error {
			fn(c[0], c[1])
			return nil
		})
	}
	_ = g.Wait()
}

// ParallelizeWithThreshold runs fn over the whole range on the calling
// goroutine when items does not exceed threshold, and through Parallelize
// otherwise.
func ParallelizeWithThreshold(items int, threshold int, fn func(start, end int)) {
	if items <= threshold {
		fn(0, items)
		return
	}
	Parallelize(items, fn)
}

// ForEach calls fn(i) for every i in [0, n) with at most runtime.NumCPU()
// calls in flight and returns the first error. Each index is handled exactly
// once, so callers writing to slot i of a pre-sized slice need no locking.
func ForEach(n int, fn func(i int) error) error {
	var g errgroup.Group
	g.SetLimit(runtime.NumCPU())
	for i := range n {
		g.Go(func() error { return fn(i) })
	}
	return g.Wait()
}
