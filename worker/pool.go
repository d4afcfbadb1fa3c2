// Package worker runs the bounded pool that executes conversion jobs. Each
// job walks a strict stage sequence (downloading, converting, uploading);
// the failing stage is recorded in the terminal error detail because it
// points operators at the root cause.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"converter/config"
	"converter/convert"
	"converter/format"
	"converter/metrics"
	"converter/models"
	"converter/queue"
)

type stage string

const (
	stageDownloading stage = "downloading"
	stageConverting  stage = "converting"
	stageUploading   stage = "uploading"
)

// JobQueue is the slice of the queue the pool needs. The queue's per-job
// ownership (one claimed entry per job) is what makes record writes
// single-writer; the pool adds no locking of its own.
type JobQueue interface {
	Dequeue(ctx context.Context) (*models.Job, string, error)
	Ack(ctx context.Context, raw string, job *models.Job) error
	ScheduleRetry(ctx context.Context, raw string, job *models.Job, reason string) error
	Fail(ctx context.Context, raw string, job *models.Job, reason string) error
	Requeue(ctx context.Context, raw string, job *models.Job) error
	ListProcessing(ctx context.Context) ([]string, error)
	ClaimedAt(ctx context.Context, recordID string) (time.Time, bool)
	Discard(ctx context.Context, raw string)
}

// RecordStore is the slice of the record store the pool writes through.
// Every method is a monotonic transition or a counter bump.
type RecordStore interface {
	MarkProcessing(ctx context.Context, id string) error
	MarkCompleted(ctx context.Context, id string, outputURL string) error
	MarkFailed(ctx context.Context, id string, detail string) error
	IncrementUsage(ctx context.Context, ownerID string) error
}

// BlobStore stages input and output bytes.
type BlobStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, body []byte, contentType string) (string, error)
}

// Converters resolves the category-appropriate converter for a pair.
type Converters interface {
	For(target, source format.Category) (convert.Converter, bool)
}

// Notifier receives fire-and-forget terminal events.
type Notifier interface {
	ConversionCompleted(job *models.Job, outputURL string)
	ConversionFailed(job *models.Job, detail string)
}

type Pool struct {
	cfg        *config.Config
	queue      JobQueue
	store      RecordStore
	blobs      BlobStore
	converters Converters
	notifier   Notifier
	metrics    *metrics.Metrics
	registry   *format.Registry
	rules      *format.Rules
}

func NewPool(
	cfg *config.Config,
	q JobQueue,
	store RecordStore,
	blobs BlobStore,
	converters Converters,
	notifier Notifier,
	m *metrics.Metrics,
	registry *format.Registry,
	rules *format.Rules,
) *Pool {
	return &Pool{
		cfg:        cfg,
		queue:      q,
		store:      store,
		blobs:      blobs,
		converters: converters,
		notifier:   notifier,
		metrics:    m,
		registry:   registry,
		rules:      rules,
	}
}

// Run is one worker's loop. Start cfg.WorkerCount of these.
func (p *Pool) Run(ctx context.Context, workerID int) {
	log.Printf("[Worker %d] Starting", workerID)

	for {
		select {
		case <-ctx.Done():
			log.Printf("[Worker %d] Shutting down", workerID)
			return
		default:
			job, raw, err := p.queue.Dequeue(ctx)
			if err != nil {
				if errors.Is(err, queue.ErrNoJob) || ctx.Err() != nil {
					continue
				}
				log.Printf("[Worker %d] Dequeue error: %v", workerID, err)
				time.Sleep(5 * time.Second)
				continue
			}
			p.process(ctx, workerID, raw, job)
		}
	}
}

func (p *Pool) process(ctx context.Context, workerID int, raw string, job *models.Job) {
	log.Printf("[Worker %d] Processing conversion %s (%s -> %s, attempt %d/%d)",
		workerID, job.RecordID, job.SourceFormat, job.TargetFormat, job.Attempts+1, job.MaxAttempts)

	if p.metrics != nil {
		p.metrics.WorkerBusy(1)
		defer p.metrics.WorkerBusy(-1)
	}

	// Idempotent: a previous crashed attempt may have left the record in
	// processing already.
	if err := p.store.MarkProcessing(ctx, job.RecordID); err != nil {
		log.Printf("[Worker %d] Failed to mark record processing: %v", workerID, err)
	}

	// The overall budget scales with how heavy the pair is.
	timeout := p.cfg.ConversionTimeout * time.Duration(p.rules.Complexity(job.SourceFormat, job.TargetFormat))
	jobCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	startTime := time.Now()

	input, err := p.blobs.Get(jobCtx, job.InputKey)
	if err != nil {
		p.handleFailure(ctx, workerID, raw, job, stageDownloading, err, false)
		return
	}

	source, okSource := p.registry.Lookup(job.SourceFormat)
	target, okTarget := p.registry.Lookup(job.TargetFormat)
	if !okSource || !okTarget {
		p.handleFailure(ctx, workerID, raw, job, stageConverting,
			fmt.Errorf("unknown format pair %s -> %s", job.SourceFormat, job.TargetFormat), true)
		return
	}

	converter, ok := p.converters.For(target.Category, source.Category)
	if !ok {
		p.handleFailure(ctx, workerID, raw, job, stageConverting,
			fmt.Errorf("no converter available for category %s", target.Category), true)
		return
	}

	output, err := converter.Convert(jobCtx, input, job.SourceFormat, job.TargetFormat, job.Options)
	if err != nil {
		p.handleFailure(ctx, workerID, raw, job, stageConverting, err, errors.Is(err, convert.ErrUnconvertible))
		return
	}

	outputURL, err := p.blobs.Put(jobCtx, job.OutputKey, output, target.MIMEType)
	if err != nil {
		p.handleFailure(ctx, workerID, raw, job, stageUploading, err, false)
		return
	}

	if err := p.store.MarkCompleted(ctx, job.RecordID, outputURL); err != nil {
		log.Printf("[Worker %d] Failed to mark record completed: %v", workerID, err)
	}
	if job.Authenticated() {
		if err := p.store.IncrementUsage(ctx, job.OwnerID); err != nil {
			log.Printf("[Worker %d] Failed to increment usage for %s: %v", workerID, job.OwnerID, err)
		}
	}
	if err := p.queue.Ack(ctx, raw, job); err != nil {
		log.Printf("[Worker %d] Failed to ack job %s: %v", workerID, job.RecordID, err)
	}
	if p.notifier != nil {
		p.notifier.ConversionCompleted(job, outputURL)
	}
	if p.metrics != nil {
		p.metrics.RecordOutcome(job.SourceFormat, job.TargetFormat, models.StatusCompleted)
	}

	log.Printf("[Worker %d] Conversion %s completed in %.2fs",
		workerID, job.RecordID, time.Since(startTime).Seconds())
}

// handleFailure advances the attempt counter and either schedules a retry
// or finalizes the job. terminal short-circuits the retry budget for inputs
// that can never convert.
func (p *Pool) handleFailure(ctx context.Context, workerID int, raw string, job *models.Job, st stage, cause error, terminal bool) {
	log.Printf("[Worker %d] Conversion %s failed while %s: %v", workerID, job.RecordID, st, cause)

	job.Attempts++

	if !terminal && job.Attempts < job.MaxAttempts {
		if err := p.queue.ScheduleRetry(ctx, raw, job, string(st)); err != nil {
			log.Printf("[Worker %d] Failed to schedule retry for %s: %v", workerID, job.RecordID, err)
		}
		return
	}

	detail := sanitizeFailure(st, cause)
	if err := p.queue.Fail(ctx, raw, job, detail); err != nil {
		log.Printf("[Worker %d] Failed to dead-letter job %s: %v", workerID, job.RecordID, err)
	}
	if err := p.store.MarkFailed(ctx, job.RecordID, detail); err != nil {
		log.Printf("[Worker %d] Failed to mark record failed: %v", workerID, err)
	}
	if p.notifier != nil && job.Authenticated() {
		p.notifier.ConversionFailed(job, detail)
	}
	if p.metrics != nil {
		p.metrics.RecordOutcome(job.SourceFormat, job.TargetFormat, models.StatusFailed)
	}

	log.Printf("[Worker %d] Conversion %s moved to failed after %d attempts",
		workerID, job.RecordID, job.Attempts)
}

// RecoveryLoop periodically requeues jobs whose worker died mid-processing.
// A job gets at most cfg.MaxStalls extra lives; beyond that it is failed so
// a crashing input cannot loop forever.
func (p *Pool) RecoveryLoop(ctx context.Context) {
	ticker := time.NewTicker(p.cfg.RecoveryInterval)
	defer ticker.Stop()

	log.Println("[Recovery] Starting stale job recovery loop")

	for {
		select {
		case <-ctx.Done():
			log.Println("[Recovery] Shutting down")
			return
		case <-ticker.C:
			p.recoverStalled(ctx)
		}
	}
}

func (p *Pool) recoverStalled(ctx context.Context) {
	entries, err := p.queue.ListProcessing(ctx)
	if err != nil {
		log.Printf("[Recovery] Failed to list processing queue: %v", err)
		return
	}

	recovered := 0
	for _, raw := range entries {
		var job models.Job
		if err := json.Unmarshal([]byte(raw), &job); err != nil {
			p.queue.Discard(ctx, raw)
			continue
		}

		claimRef := job.EnqueuedAt
		if claimed, ok := p.queue.ClaimedAt(ctx, job.RecordID); ok {
			claimRef = claimed
		}
		if time.Since(claimRef) <= p.cfg.StallAfter {
			continue
		}

		if job.Stalls < p.cfg.MaxStalls {
			if err := p.queue.Requeue(ctx, raw, &job); err != nil {
				log.Printf("[Recovery] Failed to requeue %s: %v", job.RecordID, err)
				continue
			}
			recovered++
			continue
		}

		detail := "conversion stalled: worker did not report completion"
		if err := p.queue.Fail(ctx, raw, &job, detail); err != nil {
			log.Printf("[Recovery] Failed to dead-letter %s: %v", job.RecordID, err)
			continue
		}
		if err := p.store.MarkFailed(ctx, job.RecordID, detail); err != nil {
			log.Printf("[Recovery] Failed to mark record failed: %v", err)
		}
		if p.notifier != nil && job.Authenticated() {
			p.notifier.ConversionFailed(&job, detail)
		}
		if p.metrics != nil {
			p.metrics.RecordOutcome(job.SourceFormat, job.TargetFormat, models.StatusFailed)
		}
	}

	if recovered > 0 {
		log.Printf("[Recovery] Recovered %d stalled jobs", recovered)
	}
}

const maxFailureDetail = 200

// sanitizeFailure builds the user-facing terminal error: the failing stage
// plus the first line of the cause, length-capped. Stack traces, secrets and
// multi-line tool output stay in the logs.
func sanitizeFailure(st stage, cause error) string {
	msg := cause.Error()
	for i, r := range msg {
		if r == '\n' || r == '\r' {
			msg = msg[:i]
			break
		}
	}
	detail := fmt.Sprintf("failed while %s: %s", st, msg)
	if len(detail) > maxFailureDetail {
		detail = detail[:maxFailureDetail]
	}
	return detail
}
