package propagation

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/star/satmap/internal/metrics"
	"github.com/star/satmap/internal/tle"
)

type propagateJob struct {
	entry tle.Entry
}

type propagateResult struct {
	fix       Fix
	catalogID int
	err       error
}

// WorkerPool propagates many element sets to one instant in parallel.
type WorkerPool struct {
	workers int
	logger  *slog.Logger
}

// NewWorkerPool creates a worker pool with the given number of workers.
func NewWorkerPool(workers int, logger *slog.Logger) *WorkerPool {
	if workers < 1 {
		workers = 1
	}
	return &WorkerPool{
		workers: workers,
		logger:  logger,
	}
}

// PropagateAll propagates every entry to t. Failed satellites are logged and
// skipped. Results are in no particular order.
func (wp *WorkerPool) PropagateAll(ctx context.Context, entries []tle.Entry, t time.Time) ([]Fix, int, int) {
	if len(entries) == 0 {
		return nil, 0, 0
	}

	jobs := make(chan propagateJob, wp.workers*2)
	results := make(chan propagateResult, wp.workers*2)

	var wg sync.WaitGroup
	for i := 0; i < wp.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobs {
				result := fixFor(job.entry, t)
				select {
				case results <- result:
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	go func() {
		defer close(jobs)
		for _, entry := range entries {
			select {
			case jobs <- propagateJob{entry: entry}:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	fixes := make([]Fix, 0, len(entries))
	var successCount, errorCount int
	for result := range results {
		if result.err != nil {
			errorCount++
			metrics.IncPropagationErrors("batch")
			wp.logger.Warn("propagation failed",
				"norad_id", result.catalogID,
				"error", result.err,
			)
			continue
		}
		successCount++
		fixes = append(fixes, result.fix)
	}

	return fixes, successCount, errorCount
}

func fixFor(entry tle.Entry, t time.Time) propagateResult {
	id := entry.CatalogID()
	prop, err := NewFromElements(entry.Elements)
	if err != nil {
		return propagateResult{catalogID: id, err: err}
	}
	state, err := prop.Propagate(t)
	if err != nil {
		return propagateResult{catalogID: id, err: err}
	}
	return propagateResult{
		catalogID: id,
		fix: Fix{
			CatalogID: id,
			Name:      entry.Elements.Name,
			Point:     state.Geodetic(),
			SpeedKmS:  state.Speed(),
		},
	}
}
