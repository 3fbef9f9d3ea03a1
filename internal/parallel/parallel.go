// Package parallel runs independent jobs, such as the compilation of several
// programs, on a bounded number of goroutines.
package parallel

import (
	"runtime"
	"sync"
)

// Config controls parallel execution behavior.
type Config struct {
	Enabled      bool // Whether parallel execution is enabled.
	NumWorkers   int  // Number of worker goroutines to use.
	MinChunkSize int  // Minimum items per goroutine to avoid overhead.
}

// DefaultConfig returns one worker per CPU. Each job is a whole compilation, so
// chunks hold a single item.
func DefaultConfig() Config {
	n := runtime.NumCPU()
	return Config{
		Enabled:      n > 1,
		NumWorkers:   n,
		MinChunkSize: 1,
	}
}

// WithWorkers returns DefaultConfig limited to n workers. Zero or less keeps one
// worker per CPU.
func WithWorkers(n int) Config {
	cfg := DefaultConfig()
	if n > 0 {
		cfg.NumWorkers = n
		cfg.Enabled = n > 1
	}
	return cfg
}

// For executes f(i) for i in [0, n) with optional parallelism.
// Falls back to sequential execution if parallelism is disabled or n is too small.
func For(n int, f func(i int), cfg Config) {
	if !cfg.Enabled || cfg.NumWorkers < 2 || n < max(cfg.MinChunkSize, 2) {
		for i := 0; i < n; i++ {
			f(i)
		}
		return
	}

	var wg sync.WaitGroup
	chunkSize := max((n+cfg.NumWorkers-1)/cfg.NumWorkers, cfg.MinChunkSize, 1)

	for start := 0; start < n; start += chunkSize {
		end := min(start+chunkSize, n)
		wg.Add(1)
		go func(s, e int) {
			defer wg.Done()
			for i := s; i < e; i++ {
				f(i)
			}
		}(start, end)
	}
	wg.Wait()
}

// Map applies f to every item and returns the results and errors in item order.
// Each slot is written by exactly one goroutine.
func Map[T, R any](items []T, f func(i int, item T) (R, error), cfg Config) ([]R, []error) {
	results := make([]R, len(items))
	errs := make([]error, len(items))
	For(len(items), func(i int) {
		results[i], errs[i] = f(i, items[i])
	}, cfg)
	return results, errs
}
