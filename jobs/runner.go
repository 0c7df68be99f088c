// Package jobs is the Job Runner (C7): a pool of workers partitioned by
// queue kind, claiming one job at a time from the Metadata Store and
// running a stage-specific routine with progress reporting and
// bounded-retry failure handling. No teacher file runs a background
// worker pool; this is grounded directly on spec.md §4.7's state
// machine, using goroutines+channels the way the teacher's own
// streaming code (formerly llm/streaming.go) uses them for concurrent
// work, since no worker-pool library appears anywhere in the example
// pack.
package jobs

import (
	"context"
	"log"
	"math/rand"
	"time"

	"ragbackend/config"
	"ragbackend/eventbus"
	"ragbackend/metadata"
	"ragbackend/ragerrors"
)

// Stage executes one kind of pipeline work for a document, reporting
// progress via report as it goes. Returning a retryable ragerrors.Error
// requeues the job with backoff; any other error (or a non-retryable
// kind) fails the job terminally.
type Stage func(ctx context.Context, documentID uint64, report func(progress int)) error

// Runner owns one worker pool per job kind.
type Runner struct {
	store   *metadata.Store
	bus     *eventbus.Bus
	stages  map[metadata.JobKind]Stage
	cfg     *config.Config
	workers int
}

func New(store *metadata.Store, bus *eventbus.Bus, cfg *config.Config, workersPerKind int) *Runner {
	if workersPerKind <= 0 {
		workersPerKind = 2
	}
	return &Runner{
		store:   store,
		bus:     bus,
		stages:  map[metadata.JobKind]Stage{},
		cfg:     cfg,
		workers: workersPerKind,
	}
}

// Register binds a Stage implementation to a job kind.
func (r *Runner) Register(kind metadata.JobKind, stage Stage) {
	r.stages[kind] = stage
}

// Run starts the worker pools; it blocks until ctx is cancelled.
func (r *Runner) Run(ctx context.Context) {
	for kind := range r.stages {
		for i := 0; i < r.workers; i++ {
			go r.worker(ctx, kind)
		}
	}
	<-ctx.Done()
}

func (r *Runner) worker(ctx context.Context, kind metadata.JobKind) {
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.tryClaimAndRun(ctx, kind)
		}
	}
}

func (r *Runner) tryClaimAndRun(ctx context.Context, kind metadata.JobKind) {
	job, err := r.store.ClaimJob(ctx, kind)
	if err != nil {
		log.Printf("jobs: claim %s failed: %v", kind, err)
		return
	}
	if job == nil {
		return
	}

	r.run(ctx, job)
}

func (r *Runner) run(ctx context.Context, job *metadata.Job) {
	stage := r.stages[job.Kind]
	tenantID := r.tenantForDocument(ctx, job.DocumentID)

	r.bus.Publish(ctx, eventbus.Event{
		Event: string(job.Kind) + "_started", JobID: job.ID, DocumentID: job.DocumentID,
		TenantID: tenantID, Kind: string(job.Kind), Progress: 0, Ts: eventbus.Now(),
	})

	report := func(progress int) {
		_ = r.store.UpdateJobProgress(ctx, job.ID, progress)
		r.bus.Publish(ctx, eventbus.Event{
			Event: string(job.Kind) + "_progress", JobID: job.ID, DocumentID: job.DocumentID,
			TenantID: tenantID, Kind: string(job.Kind), Progress: progress, Ts: eventbus.Now(),
		})
	}

	stageCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	err := stage(stageCtx, job.DocumentID, report)
	cancel()

	if err == nil {
		if ferr := r.store.FinalizeJob(ctx, job.ID, true, ""); ferr != nil {
			log.Printf("jobs: finalize success for job %d failed: %v", job.ID, ferr)
			return
		}
		r.enqueueNext(ctx, job)
		r.bus.Publish(ctx, eventbus.Event{
			Event: string(job.Kind) + "_done", JobID: job.ID, DocumentID: job.DocumentID,
			TenantID: tenantID, Kind: string(job.Kind), Progress: 100, Ts: eventbus.Now(),
		})
		return
	}

	if ragerrors.Retryable(err) && job.Attempts+1 < r.cfg.MaxAttempts {
		notBefore := time.Now().Add(r.backoffDelay(job.Attempts + 1))
		if ferr := r.store.RequeueJob(ctx, job.ID, notBefore); ferr != nil {
			log.Printf("jobs: requeue job %d failed: %v", job.ID, ferr)
		}
		return
	}

	msg := err.Error()
	if ferr := r.store.FinalizeJob(ctx, job.ID, false, msg); ferr != nil {
		log.Printf("jobs: finalize failure for job %d failed: %v", job.ID, ferr)
	}
	r.bus.Publish(ctx, eventbus.Event{
		Event: string(job.Kind) + "_failed", JobID: job.ID, DocumentID: job.DocumentID,
		TenantID: tenantID, Kind: string(job.Kind), Progress: job.Progress, Error: &msg, Ts: eventbus.Now(),
	})
}

// backoffDelay computes a bounded exponential backoff (spec §4.7:
// "exponential, capped"). The caller stamps the result onto the job's
// next_attempt_at so ClaimJob excludes the job from its queued-job scan
// until the delay elapses — this package never sleeps to enforce a
// backoff, since a sleeping goroutine has no effect on what a
// concurrent worker's next poll tick is allowed to claim.
func (r *Runner) backoffDelay(attempt int) time.Duration {
	base := time.Duration(r.cfg.BackoffBaseMS) * time.Millisecond
	capMS := time.Duration(r.cfg.BackoffMaxMS) * time.Millisecond
	delay := base << attempt
	if delay > capMS || delay <= 0 {
		delay = capMS
	}
	jitter := time.Duration(rand.Int63n(int64(delay)/4 + 1))
	return delay + jitter
}

func (r *Runner) enqueueNext(ctx context.Context, job *metadata.Job) {
	var next metadata.JobKind
	switch job.Kind {
	case metadata.JobParse:
		next = metadata.JobChunk
	case metadata.JobChunk:
		next = metadata.JobEmbed
	case metadata.JobEmbed:
		return
	}
	if _, err := r.store.EnqueueJob(ctx, job.DocumentID, next); err != nil {
		log.Printf("jobs: enqueue %s for document %d failed: %v", next, job.DocumentID, err)
	}
}

func (r *Runner) tenantForDocument(ctx context.Context, documentID uint64) string {
	tenantID, err := r.store.TenantForDocument(ctx, documentID)
	if err != nil {
		return ""
	}
	return tenantID
}
