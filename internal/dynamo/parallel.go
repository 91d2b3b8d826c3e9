package dynamo

import (
	"runtime"

	"golang.org/x/sync/errgroup"
)

// ForEachNode calls fn for every node index in [0, n) and returns once all
// calls finished. In parallel mode nodes run concurrently, bounded by
// GOMAXPROCS; the first error is returned after the barrier.
func ForEachNode(n int, parallel bool, fn func(i int) error) error {
	if !parallel || n <= 1 {
		for i := 0; i < n; i++ {
			if err := fn(i); err != nil {
				return err
			}
		}
		return nil
	}

	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i := 0; i < n; i++ {
		g.Go(func() error {
			return fn(i)
		})
	}
	return g.Wait()
}
