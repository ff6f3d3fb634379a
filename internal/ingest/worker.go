package ingest

import (
	"context"
	"log"
	"time"
)

// Runner executes one pipeline stage for a claimed job.
type Runner interface {
	RunStage(ctx context.Context, job *Job, stage Stage) error
}

// Worker claims jobs and walks them through the stage sequence. Any number
// of workers may run concurrently against the same table; the claim query
// is the only coordination between them.
type Worker struct {
	ID       string
	Store    Store
	Pipeline Runner
	Poll     time.Duration
}

func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.Poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.drain(ctx)
		}
	}
}

// drain claims and processes until the queue has nothing eligible, so a
// deep backlog moves at processing speed rather than one job per tick.
func (w *Worker) drain(ctx context.Context) {
	for ctx.Err() == nil {
		job, err := w.Store.Claim(ctx, w.ID)
		if err != nil {
			log.Printf("worker %s claim error: %v", w.ID, err)
			return
		}
		if job == nil {
			return
		}
		w.process(ctx, job)
	}
}

// process runs the stage walk. Errors are recorded on the job row and never
// escape: the loop moves on to the next job regardless of how this one ends.
func (w *Worker) process(ctx context.Context, job *Job) {
	for i, stage := range StageSequence {
		if i > 0 {
			// Cooperative cancellation, checked at stage boundaries only.
			status, err := w.Store.Status(ctx, job.ID)
			if err != nil {
				log.Printf("worker %s job %d status check: %v", w.ID, job.ID, err)
				return
			}
			if status == StatusPaused || status == StatusCanceled {
				log.Printf("worker %s job %d stopped: %s", w.ID, job.ID, status)
				return
			}
			if err := w.Store.AdvanceStage(ctx, job, stage); err != nil {
				log.Printf("worker %s job %d advance to %s: %v", w.ID, job.ID, stage, err)
				return
			}
		}

		if err := w.Pipeline.RunStage(ctx, job, stage); err != nil {
			perr := AsPipelineError(err)
			log.Printf("worker %s job %d stage %s failed: %v", w.ID, job.ID, stage, perr)
			if err := w.Store.RetryOrFail(ctx, job, perr); err != nil {
				log.Printf("worker %s job %d retryOrFail: %v", w.ID, job.ID, err)
			}
			return
		}

		if err := w.Store.RefreshLease(ctx, job); err != nil {
			log.Printf("worker %s job %d lease refresh: %v", w.ID, job.ID, err)
			return
		}
	}

	if err := w.Store.MarkReady(ctx, job); err != nil {
		log.Printf("worker %s job %d mark ready: %v", w.ID, job.ID, err)
	}
}

// RunStalledSweep periodically returns expired-lease jobs to the queue.
func RunStalledSweep(ctx context.Context, store Store, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := store.RequeueStalled(ctx)
			if err != nil {
				log.Printf("stalled sweep error: %v", err)
				continue
			}
			if n > 0 {
				log.Printf("stalled sweep requeued %d job(s)", n)
			}
		}
	}
}
