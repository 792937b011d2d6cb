package derive

// This file contains the batch runner. It applies one derivation to
// every track of a product using a fixed-size worker pool. Per-track
// derivations are side-effect isolated (each worker reads its own
// track's originals and writes its own track's derived path), so the
// only shared state is the pre-built read-only catalog. A failing track
// never aborts its siblings; failures are collected per track and the
// batch completes if at least one track succeeds.

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/multierr"

	"lrstool/src/helpers"
)

// TrackResult is the outcome of one track's derivation within a batch.
type TrackResult struct {
	Product  string
	Name     string
	Path     string
	Err      error
	Duration time.Duration
}

// BatchReport aggregates the outcomes of one batch run.
type BatchReport struct {
	// RunID tags every log line of the run so interleaved worker output
	// can be attributed.
	RunID string

	Kind    string
	Product string

	Succeeded []TrackResult
	Failed    []TrackResult

	Duration time.Duration

	// Err combines every per-track failure.
	Err error
}

// RunAll applies the requested derivation to every track of the
// request's product, workers tracks at a time. The request's Name field
// is ignored. The returned error is only non-nil when the batch as a
// whole failed: nothing could be dispatched, or no track succeeded.
func (e *DeriveEngine) RunAll(req Request, workers int) (*BatchReport, error) {
	started := time.Now()
	if workers <= 0 {
		workers = e.args.Workers
	}
	if workers <= 0 {
		workers = 1
	}

	product, err := e.catalog.ProductMatch(req.Product)
	if err != nil {
		return nil, err
	}
	names, err := e.catalog.Tracks(product)
	if err != nil {
		return nil, err
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("product %s has no tracks to process", product)
	}

	report := &BatchReport{
		RunID:   helpers.GenerateUUID(),
		Kind:    req.Kind,
		Product: product,
	}
	if e.logger != nil {
		e.logger.Infow("Batch run starting",
			"run_id", report.RunID,
			"kind", req.Kind,
			"product", product,
			"tracks", len(names),
			"workers", workers,
		)
	}

	tasks := make(chan string)
	results := make(chan TrackResult)

	var wg sync.WaitGroup
	for n := 0; n < workers; n++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for name := range tasks {
				trackStarted := time.Now()
				trackReq := req
				trackReq.Product = product
				trackReq.Name = name
				path, derr := e.Derive(trackReq)
				results <- TrackResult{
					Product:  product,
					Name:     name,
					Path:     path,
					Err:      derr,
					Duration: time.Since(trackStarted),
				}
			}
		}()
	}

	go func() {
		for _, name := range names {
			tasks <- name
		}
		close(tasks)
		wg.Wait()
		close(results)
	}()

	for result := range results {
		if result.Err != nil {
			report.Failed = append(report.Failed, result)
			report.Err = multierr.Append(report.Err,
				fmt.Errorf("track %s %s: %w", result.Product, result.Name, result.Err))
			if e.metrics != nil {
				e.metrics.BatchTracksTotal.WithLabelValues("failed").Inc()
			}
			if e.logger != nil {
				e.logger.Errorw("Track derivation failed",
					"run_id", report.RunID,
					"track", result.Name,
					"error", result.Err,
				)
			}
			continue
		}
		report.Succeeded = append(report.Succeeded, result)
		if e.metrics != nil {
			e.metrics.BatchTracksTotal.WithLabelValues("succeeded").Inc()
		}
	}

	sort.Slice(report.Succeeded, func(i, j int) bool { return report.Succeeded[i].Name < report.Succeeded[j].Name })
	sort.Slice(report.Failed, func(i, j int) bool { return report.Failed[i].Name < report.Failed[j].Name })

	report.Duration = time.Since(started)
	if e.metrics != nil {
		e.metrics.BatchDuration.Observe(report.Duration.Seconds())
	}
	if e.logger != nil {
		e.logger.Infow("Batch run finished",
			"run_id", report.RunID,
			"succeeded", len(report.Succeeded),
			"failed", len(report.Failed),
			"duration", report.Duration,
		)
	}

	if len(report.Succeeded) == 0 {
		return report, fmt.Errorf("batch run %s: no track succeeded: %w", report.RunID, report.Err)
	}
	return report, nil
}
