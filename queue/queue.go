// Package queue is the durable, priority-aware, retrying job queue backing
// the conversion pipeline. It is built on Redis lists: two pending lists
// (authenticated jobs outrank anonymous ones), a processing list that gives
// each in-flight job exactly one owner via the atomic BRPopLPush handoff, a
// delayed sorted set for backoff retries, and a failed list retained for
// operators.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"converter/config"
	"converter/metrics"
	"converter/models"
)

// ErrNoJob is returned by Dequeue when no work became available within the
// wait window.
var ErrNoJob = errors.New("queue: no job available")

type Queue struct {
	cfg     *config.Config
	rdb     *redis.Client
	metrics *metrics.Metrics
}

func New(cfg *config.Config, rdb *redis.Client, m *metrics.Metrics) *Queue {
	return &Queue{cfg: cfg, rdb: rdb, metrics: m}
}

func (q *Queue) pendingList(job *models.Job) string {
	if job.Priority >= models.PriorityAuthenticated {
		return q.cfg.PendingHighQueue
	}
	return q.cfg.PendingLowQueue
}

func (q *Queue) stateKey(recordID string) string {
	return q.cfg.JobStatePrefix + recordID
}

func (q *Queue) claimsKey() string {
	return q.cfg.ProcessingQueue + ":claims"
}

// Enqueue makes a job eligible for dispatch. A backing-store failure is a
// hard error to the caller; enqueue never silently drops work.
func (q *Queue) Enqueue(ctx context.Context, job *models.Job) error {
	job.EnqueuedAt = time.Now()
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to encode job: %w", err)
	}

	if err := q.rdb.LPush(ctx, q.pendingList(job), payload).Err(); err != nil {
		return fmt.Errorf("failed to enqueue job %s: %w", job.RecordID, err)
	}

	q.setState(ctx, job, "waiting", "", q.cfg.FailedRetention)
	return nil
}

// Dequeue claims the next job: high-priority list first, then a short
// blocking wait on the low-priority list. The atomic move into the
// processing list is what guarantees single ownership. Returns the raw
// payload alongside the decoded job; every later queue operation for this
// attempt needs the exact bytes to unlink them from the processing list.
func (q *Queue) Dequeue(ctx context.Context) (*models.Job, string, error) {
	raw, err := q.rdb.RPopLPush(ctx, q.cfg.PendingHighQueue, q.cfg.ProcessingQueue).Result()
	if err == redis.Nil {
		raw, err = q.rdb.BRPopLPush(ctx, q.cfg.PendingLowQueue, q.cfg.ProcessingQueue, q.cfg.DequeueWait).Result()
	}
	if err == redis.Nil {
		return nil, "", ErrNoJob
	}
	if err != nil {
		return nil, "", fmt.Errorf("failed to dequeue: %w", err)
	}

	job, err := decodeJob(raw)
	if err != nil {
		// A malformed payload can never execute; drop it from processing
		// so the recovery loop does not churn on it forever.
		q.rdb.LRem(ctx, q.cfg.ProcessingQueue, 1, raw)
		return nil, "", fmt.Errorf("failed to decode job: %w", err)
	}

	// Stamp the claim so stall detection measures time in processing, not
	// time since enqueue.
	q.rdb.HSet(ctx, q.claimsKey(), job.RecordID, time.Now().UnixMilli())
	return job, raw, nil
}

// ClaimedAt reports when a worker claimed the given record's job, if known.
func (q *Queue) ClaimedAt(ctx context.Context, recordID string) (time.Time, bool) {
	ms, err := q.rdb.HGet(ctx, q.claimsKey(), recordID).Int64()
	if err != nil {
		return time.Time{}, false
	}
	return time.UnixMilli(ms), true
}

// Ack removes a finished job from the processing list and records its
// completed state for the audit window.
func (q *Queue) Ack(ctx context.Context, raw string, job *models.Job) error {
	if err := q.rdb.LRem(ctx, q.cfg.ProcessingQueue, 1, raw).Err(); err != nil {
		return fmt.Errorf("failed to ack job %s: %w", job.RecordID, err)
	}
	q.rdb.HDel(ctx, q.claimsKey(), job.RecordID)
	q.setState(ctx, job, "completed", "", q.cfg.CompletedRetention)
	return nil
}

// ScheduleRetry parks a job in the delayed set until its backoff expires.
// The caller has already advanced the attempt counter.
func (q *Queue) ScheduleRetry(ctx context.Context, raw string, job *models.Job, reason string) error {
	if err := q.rdb.LRem(ctx, q.cfg.ProcessingQueue, 1, raw).Err(); err != nil {
		return fmt.Errorf("failed to unlink job %s: %w", job.RecordID, err)
	}

	q.rdb.HDel(ctx, q.claimsKey(), job.RecordID)

	delay := q.Backoff(job.Attempts)
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to encode job: %w", err)
	}

	due := float64(time.Now().Add(delay).UnixMilli())
	if err := q.rdb.ZAdd(ctx, q.cfg.DelayedSet, redis.Z{Score: due, Member: payload}).Err(); err != nil {
		return fmt.Errorf("failed to schedule retry for job %s: %w", job.RecordID, err)
	}

	if q.metrics != nil {
		q.metrics.RecordRetry()
	}
	q.setState(ctx, job, "retrying", reason, q.cfg.FailedRetention)
	log.Printf("[Queue] Scheduled retry %d/%d for conversion %s in %v",
		job.Attempts, job.MaxAttempts, job.RecordID, delay)
	return nil
}

// Fail moves an exhausted job to the failed list. Failed jobs are kept
// longer than completed ones; they are the ones operators need to inspect.
func (q *Queue) Fail(ctx context.Context, raw string, job *models.Job, reason string) error {
	if err := q.rdb.LRem(ctx, q.cfg.ProcessingQueue, 1, raw).Err(); err != nil {
		return fmt.Errorf("failed to unlink job %s: %w", job.RecordID, err)
	}

	q.rdb.HDel(ctx, q.claimsKey(), job.RecordID)

	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to encode job: %w", err)
	}

	pipe := q.rdb.Pipeline()
	pipe.LPush(ctx, q.cfg.FailedQueue, payload)
	pipe.Expire(ctx, q.cfg.FailedQueue, q.cfg.FailedRetention)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to dead-letter job %s: %w", job.RecordID, err)
	}

	q.setState(ctx, job, "failed", reason, q.cfg.FailedRetention)
	return nil
}

// Requeue puts a stalled job back on its pending list for one extra
// attempt. The stall counter is what bounds how often this can happen.
func (q *Queue) Requeue(ctx context.Context, raw string, job *models.Job) error {
	if err := q.rdb.LRem(ctx, q.cfg.ProcessingQueue, 1, raw).Err(); err != nil {
		return fmt.Errorf("failed to unlink job %s: %w", job.RecordID, err)
	}

	q.rdb.HDel(ctx, q.claimsKey(), job.RecordID)

	job.Stalls++
	job.EnqueuedAt = time.Now()
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to encode job: %w", err)
	}
	if err := q.rdb.LPush(ctx, q.pendingList(job), payload).Err(); err != nil {
		return fmt.Errorf("failed to requeue job %s: %w", job.RecordID, err)
	}
	q.setState(ctx, job, "waiting", "requeued after stall", q.cfg.FailedRetention)
	return nil
}

// Discard drops a processing entry that can never run (malformed payload).
func (q *Queue) Discard(ctx context.Context, raw string) {
	q.rdb.LRem(ctx, q.cfg.ProcessingQueue, 1, raw)
}

// ListProcessing returns the raw payloads currently claimed by workers.
// Used by the stall recovery loop.
func (q *Queue) ListProcessing(ctx context.Context) ([]string, error) {
	entries, err := q.rdb.LRange(ctx, q.cfg.ProcessingQueue, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list processing queue: %w", err)
	}
	return entries, nil
}

// PromoteDelayed moves every due job from the delayed set back to its
// pending list. Returns how many jobs were promoted.
func (q *Queue) PromoteDelayed(ctx context.Context) (int, error) {
	now := fmt.Sprintf("%d", time.Now().UnixMilli())
	due, err := q.rdb.ZRangeByScore(ctx, q.cfg.DelayedSet, &redis.ZRangeBy{
		Min: "-inf", Max: now, Count: 100,
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to read delayed set: %w", err)
	}

	promoted := 0
	for _, raw := range due {
		// ZRem first: whoever removes the member owns the promotion, so
		// concurrent promoters never duplicate a job.
		removed, err := q.rdb.ZRem(ctx, q.cfg.DelayedSet, raw).Result()
		if err != nil || removed == 0 {
			continue
		}
		job, err := decodeJob(raw)
		if err != nil {
			log.Printf("[Queue] Dropping malformed delayed job: %v", err)
			continue
		}
		job.EnqueuedAt = time.Now()
		payload, err := json.Marshal(job)
		if err != nil {
			continue
		}
		if err := q.rdb.LPush(ctx, q.pendingList(job), payload).Err(); err != nil {
			log.Printf("[Queue] Failed to promote job %s: %v", job.RecordID, err)
			continue
		}
		promoted++
	}
	return promoted, nil
}

// PromoteLoop periodically promotes due retries and refreshes the queue
// depth gauges. Run it as its own goroutine.
func (q *Queue) PromoteLoop(ctx context.Context) {
	ticker := time.NewTicker(q.cfg.PromoteInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := q.PromoteDelayed(ctx); err != nil {
				log.Printf("[Queue] Promote failed: %v", err)
			} else if n > 0 {
				log.Printf("[Queue] Promoted %d delayed jobs", n)
			}
			q.refreshDepths(ctx)
		}
	}
}

// Backoff returns the delay before the given retry attempt (1-indexed):
// base, 2*base, 4*base... capped by the configured ceiling.
func (q *Queue) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := q.cfg.RetryBackoffBase << (attempt - 1)
	if q.cfg.RetryBackoffCap > 0 && d > q.cfg.RetryBackoffCap {
		return q.cfg.RetryBackoffCap
	}
	return d
}

func (q *Queue) refreshDepths(ctx context.Context) {
	if q.metrics == nil {
		return
	}
	pipe := q.rdb.Pipeline()
	high := pipe.LLen(ctx, q.cfg.PendingHighQueue)
	low := pipe.LLen(ctx, q.cfg.PendingLowQueue)
	processing := pipe.LLen(ctx, q.cfg.ProcessingQueue)
	delayed := pipe.ZCard(ctx, q.cfg.DelayedSet)
	if _, err := pipe.Exec(ctx); err != nil {
		return
	}
	q.metrics.SetQueueDepths(high.Val(), low.Val(), processing.Val(), delayed.Val())
}

// setState mirrors the job's queue-level state into a per-record hash with
// a retention TTL. Best effort: the record store is the source of truth.
func (q *Queue) setState(ctx context.Context, job *models.Job, state, detail string, ttl time.Duration) {
	key := q.stateKey(job.RecordID)
	fields := map[string]interface{}{
		"state":      state,
		"attempts":   job.Attempts,
		"stalls":     job.Stalls,
		"updated_at": time.Now().Format(time.RFC3339),
	}
	if detail != "" {
		fields["detail"] = detail
	}
	pipe := q.rdb.Pipeline()
	pipe.HSet(ctx, key, fields)
	pipe.Expire(ctx, key, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		log.Printf("[Queue] Failed to record state for %s: %v", job.RecordID, err)
	}
}

func decodeJob(raw string) (*models.Job, error) {
	var job models.Job
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		return nil, err
	}
	return &job, nil
}
