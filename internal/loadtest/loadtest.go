// Package loadtest provides load testing utilities for the capture
// queue store.
//
// It simulates many players enqueueing captures concurrently while
// flush passes drain the queue, validating that the storage layer
// serializes conflicting operations without errors or lost entries.
package loadtest

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/qrconquest/conquest/internal/store"
)

// Options configures a load test run.
type Options struct {
	// Workers is the number of concurrent enqueueing players.
	Workers int
	// CapturesPerWorker is how many captures each worker records.
	CapturesPerWorker int
}

// LatencyStats captures performance metrics from a run.
type LatencyStats struct {
	Min       time.Duration
	Max       time.Duration
	Mean      time.Duration
	P50       time.Duration
	P95       time.Duration
	TotalOps  int
	Errors    int
	durations []time.Duration
}

// Result summarizes a load test run.
type Result struct {
	Enqueued  int
	Remaining int
	Elapsed   time.Duration
	Enqueue   LatencyStats
}

// Run executes the load test against a store opened at dbPath.
func Run(ctx context.Context, dbPath string, opts Options) (*Result, error) {
	if opts.Workers <= 0 {
		opts.Workers = 10
	}
	if opts.CapturesPerWorker <= 0 {
		opts.CapturesPerWorker = 50
	}

	st, err := store.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open load test store: %w", err)
	}
	defer st.Close()

	// High concurrency: widen the pool beyond the defaults
	st.RawDB().SetMaxOpenConns(opts.Workers + 10)
	st.RawDB().SetMaxIdleConns(opts.Workers)

	start := time.Now()

	var mu sync.Mutex
	stats := LatencyStats{Min: time.Hour}
	record := func(d time.Duration, err error) {
		mu.Lock()
		defer mu.Unlock()
		stats.TotalOps++
		if err != nil {
			stats.Errors++
			return
		}
		stats.durations = append(stats.durations, d)
		if d < stats.Min {
			stats.Min = d
		}
		if d > stats.Max {
			stats.Max = d
		}
	}

	var wg sync.WaitGroup
	for w := 0; w < opts.Workers; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(int64(worker)))

			for i := 0; i < opts.CapturesPerWorker; i++ {
				baseID := fmt.Sprintf("base-%d", rng.Intn(100))
				playerID := fmt.Sprintf("player-%d", worker)
				lat := 51.0 + rng.Float64()
				lon := -0.5 + rng.Float64()

				opStart := time.Now()
				_, err := st.EnqueueContext(ctx, baseID, playerID, lat, lon)
				record(time.Since(opStart), err)
			}
		}(w)
	}
	wg.Wait()

	finalize(&stats)

	remaining, err := st.PendingCountContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count remaining entries: %w", err)
	}

	return &Result{
		Enqueued:  stats.TotalOps - stats.Errors,
		Remaining: remaining,
		Elapsed:   time.Since(start),
		Enqueue:   stats,
	}, nil
}

// finalize computes derived statistics from the collected durations.
func finalize(stats *LatencyStats) {
	if len(stats.durations) == 0 {
		stats.Min = 0
		return
	}

	sort.Slice(stats.durations, func(i, j int) bool {
		return stats.durations[i] < stats.durations[j]
	})

	var total time.Duration
	for _, d := range stats.durations {
		total += d
	}
	stats.Mean = total / time.Duration(len(stats.durations))
	stats.P50 = stats.durations[len(stats.durations)/2]
	stats.P95 = stats.durations[len(stats.durations)*95/100]
}
