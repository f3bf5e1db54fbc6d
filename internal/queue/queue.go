// Package queue implements the two durable job queues that drive campaign
// execution: campaign-tick (advance one campaign) and email-send (deliver
// one attempt). Each queue is a Redis ready list plus a delayed sorted set;
// a Lua script promotes due jobs so delayed members move atomically.
//
// Claims are reliable: a worker moves a job from the ready list into a
// per-queue processing list (with an in-flight deadline) in one atomic
// script, and only acks after the handler's decision is applied. If the
// process dies mid-job, the reaper returns the claim to the ready list once
// its visibility window lapses, so a crash never strands a job.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/coldpost/coldpost/internal/pkg/logger"
)

const (
	// QueueCampaignTick carries coarse "advance this campaign" jobs.
	QueueCampaignTick = "campaign-tick"
	// QueueEmailSend carries per-attempt delivery jobs.
	QueueEmailSend = "email-send"

	keyPrefix   = "coldpost:queue:"
	dedupeTTL   = 24 * time.Hour
	promoteSize = 100
	reapSize    = 100

	// visibilityTimeout bounds how long a claimed job may sit unacked
	// before the reaper hands it back out. Must exceed the slowest send
	// path (SMTP socket timeout is 75s).
	visibilityTimeout = 5 * time.Minute

	claimPollInterval = 200 * time.Millisecond
)

// ErrDuplicateJob is returned when a job's dedupe key is already held by a
// pending job.
var ErrDuplicateJob = errors.New("duplicate job key")

// Job is the unit of queued work. CampaignID is set on every job;
// EmailLogID only on email-send jobs.
type Job struct {
	ID          string    `json:"id"`
	Key         string    `json:"key,omitempty"`
	CampaignID  string    `json:"campaignId"`
	EmailLogID  string    `json:"emailLogId,omitempty"`
	Attempt     int       `json:"attempt"`
	MaxAttempts int       `json:"maxAttempts"`
	EnqueuedAt  time.Time `json:"enqueuedAt"`
}

type decisionKind int

const (
	decisionDone decisionKind = iota
	decisionRetry
	decisionReschedule
	decisionDrop
)

// Decision is the handler's verdict on a job.
type Decision struct {
	kind decisionKind
	at   time.Time
}

// Done acknowledges the job; its dedupe key is released.
func Done() Decision { return Decision{kind: decisionDone} }

// Retry re-enqueues the job with exponential backoff, consuming one attempt.
// Exhausted jobs are dropped.
func Retry() Decision { return Decision{kind: decisionRetry} }

// Reschedule moves the job to the given instant without consuming an
// attempt (office-hours deferral).
func Reschedule(at time.Time) Decision { return Decision{kind: decisionReschedule, at: at} }

// Drop discards the job (stale work whose backing row is gone).
func Drop() Decision { return Decision{kind: decisionDrop} }

// Handler processes one job and decides its fate.
type Handler func(ctx context.Context, job *Job) Decision

// Queue wraps the Redis connection shared by all named queues.
type Queue struct {
	rdb             *redis.Client
	log             *logger.Logger
	backoffBase     time.Duration
	promoteInterval time.Duration
}

// New creates a Queue. backoffBase is the first-retry delay; each further
// retry doubles it.
func New(rdb *redis.Client, backoffBase time.Duration) *Queue {
	if backoffBase <= 0 {
		backoffBase = 2 * time.Second
	}
	return &Queue{
		rdb:             rdb,
		log:             logger.Component("queue"),
		backoffBase:     backoffBase,
		promoteInterval: 500 * time.Millisecond,
	}
}

func readyKey(queue string) string      { return keyPrefix + queue + ":ready" }
func delayedKey(queue string) string    { return keyPrefix + queue + ":delayed" }
func processingKey(queue string) string { return keyPrefix + queue + ":processing" }
func inflightKey(queue string) string   { return keyPrefix + queue + ":inflight" }
func dedupeKey(queue, jobKey string) string {
	return keyPrefix + queue + ":key:" + jobKey
}

// promoteScript moves due members from the delayed set to the ready list.
var promoteScript = redis.NewScript(`
local due = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, ` + strconv.Itoa(promoteSize) + `)
for _, v in ipairs(due) do
  redis.call('LPUSH', KEYS[2], v)
  redis.call('ZREM', KEYS[1], v)
end
return #due
`)

// claimScript pops one job from the ready list into the processing list and
// records its visibility deadline, all in one step, so a crash between pop
// and registration cannot lose the job.
// KEYS: ready, processing, inflight. ARGV: deadline millis.
var claimScript = redis.NewScript(`
local v = redis.call('RPOPLPUSH', KEYS[1], KEYS[2])
if v then
  redis.call('ZADD', KEYS[3], ARGV[1], v)
end
return v
`)

// ackScript drops a settled claim from the processing list and the in-flight
// deadline set.
// KEYS: processing, inflight. ARGV: payload.
var ackScript = redis.NewScript(`
redis.call('LREM', KEYS[1], 1, ARGV[1])
redis.call('ZREM', KEYS[2], ARGV[1])
return 1
`)

// reapScript returns claims whose visibility deadline has passed to the
// ready list. The LREM guard means a claim acked between the range read and
// the removal is not redelivered.
// KEYS: inflight, processing, ready. ARGV: now millis.
var reapScript = redis.NewScript(`
local expired = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, ` + strconv.Itoa(reapSize) + `)
local n = 0
for _, v in ipairs(expired) do
  redis.call('ZREM', KEYS[1], v)
  if redis.call('LREM', KEYS[2], 1, v) > 0 then
    redis.call('LPUSH', KEYS[3], v)
    n = n + 1
  end
end
return n
`)

// Enqueue adds a job to the named queue, delayed by delay when positive. A
// job with a Key is deduplicated: while an identical key is pending, further
// enqueues return ErrDuplicateJob.
func (q *Queue) Enqueue(ctx context.Context, queue string, job *Job, delay time.Duration) error {
	if job.ID == "" {
		job.ID = uuid.New().String()
	}
	job.EnqueuedAt = time.Now().UTC()

	if job.Key != "" {
		ok, err := q.rdb.SetNX(ctx, dedupeKey(queue, job.Key), job.ID, dedupeTTL).Result()
		if err != nil {
			return fmt.Errorf("dedupe %s: %w", job.Key, err)
		}
		if !ok {
			return ErrDuplicateJob
		}
	}

	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}

	if delay > 0 {
		score := float64(time.Now().Add(delay).UnixMilli())
		if err := q.rdb.ZAdd(ctx, delayedKey(queue), redis.Z{Score: score, Member: data}).Err(); err != nil {
			return fmt.Errorf("enqueue delayed: %w", err)
		}
		return nil
	}
	if err := q.rdb.LPush(ctx, readyKey(queue), data).Err(); err != nil {
		return fmt.Errorf("enqueue ready: %w", err)
	}
	return nil
}

// promote moves every job due at now onto the ready list.
func (q *Queue) promote(ctx context.Context, queue string, now time.Time) (int, error) {
	n, err := promoteScript.Run(ctx, q.rdb,
		[]string{delayedKey(queue), readyKey(queue)},
		now.UnixMilli()).Int()
	if err != nil {
		return 0, fmt.Errorf("promote %s: %w", queue, err)
	}
	return n, nil
}

// claim atomically moves one ready job into the processing list, stamping
// its visibility deadline. Returns nil when the queue is empty.
func (q *Queue) claim(ctx context.Context, queue string) ([]byte, error) {
	deadline := time.Now().Add(visibilityTimeout).UnixMilli()
	res, err := claimScript.Run(ctx, q.rdb,
		[]string{readyKey(queue), processingKey(queue), inflightKey(queue)},
		deadline).Text()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("claim %s: %w", queue, err)
	}
	return []byte(res), nil
}

// ack settles a claim so the reaper will not redeliver it.
func (q *Queue) ack(ctx context.Context, queue string, raw []byte) {
	err := ackScript.Run(ctx, q.rdb,
		[]string{processingKey(queue), inflightKey(queue)}, raw).Err()
	if err != nil {
		q.log.Warn("ack failed", "queue", queue, "error", err.Error())
	}
}

// reap hands claims whose visibility window lapsed back to the ready list.
func (q *Queue) reap(ctx context.Context, queue string, now time.Time) (int, error) {
	n, err := reapScript.Run(ctx, q.rdb,
		[]string{inflightKey(queue), processingKey(queue), readyKey(queue)},
		now.UnixMilli()).Int()
	if err != nil {
		return 0, fmt.Errorf("reap %s: %w", queue, err)
	}
	return n, nil
}

// Run consumes the named queue with a fixed-size worker pool until the
// context is cancelled. A housekeeping goroutine keeps delayed jobs flowing
// and redelivers claims abandoned by crashed workers.
func (q *Queue) Run(ctx context.Context, queue string, concurrency int, handler Handler) {
	if concurrency <= 0 {
		concurrency = 1
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(q.promoteInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if _, err := q.promote(ctx, queue, time.Now()); err != nil && ctx.Err() == nil {
					q.log.Warn("promote failed", "queue", queue, "error", err.Error())
				}
				n, err := q.reap(ctx, queue, time.Now())
				if err != nil && ctx.Err() == nil {
					q.log.Warn("reap failed", "queue", queue, "error", err.Error())
				}
				if n > 0 {
					q.log.Warn("redelivered abandoned claims", "queue", queue, "count", n)
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				if ctx.Err() != nil {
					return
				}
				raw, err := q.claim(ctx, queue)
				if err != nil {
					if ctx.Err() != nil {
						return
					}
					q.log.Warn("claim failed", "queue", queue, "error", err.Error())
					time.Sleep(time.Second)
					continue
				}
				if raw == nil {
					select {
					case <-ctx.Done():
						return
					case <-time.After(claimPollInterval):
					}
					continue
				}
				q.dispatch(ctx, queue, raw, handler)
			}
		}()
	}

	q.log.Info("queue workers started", "queue", queue, "concurrency", concurrency)
	wg.Wait()
}

// dispatch decodes one claimed payload, runs the handler, and applies its
// decision. The claim is acked only once the decision is durable; a requeue
// failure leaves it in flight for the reaper to redeliver.
func (q *Queue) dispatch(ctx context.Context, queue string, data []byte, handler Handler) {
	var job Job
	if err := json.Unmarshal(data, &job); err != nil {
		q.log.Error("discarding undecodable job", "queue", queue, "error", err.Error())
		q.ack(ctx, queue, data)
		return
	}

	switch d := handler(ctx, &job); d.kind {
	case decisionDone, decisionDrop:
		q.releaseKey(ctx, queue, &job)
		q.ack(ctx, queue, data)
	case decisionRetry:
		job.Attempt++
		if job.MaxAttempts > 0 && job.Attempt >= job.MaxAttempts {
			q.log.Warn("job exhausted retries",
				"queue", queue, "job_id", job.ID, "attempts", job.Attempt)
			q.releaseKey(ctx, queue, &job)
			q.ack(ctx, queue, data)
			return
		}
		backoff := q.backoffBase << (job.Attempt - 1)
		if err := q.requeue(ctx, queue, &job, time.Now().Add(backoff)); err != nil {
			q.log.Error("requeue for retry failed", "queue", queue, "job_id", job.ID, "error", err.Error())
			return
		}
		q.ack(ctx, queue, data)
	case decisionReschedule:
		if err := q.requeue(ctx, queue, &job, d.at); err != nil {
			q.log.Error("reschedule failed", "queue", queue, "job_id", job.ID, "error", err.Error())
			return
		}
		q.ack(ctx, queue, data)
	}
}

// requeue puts an already-deduped job back on the delayed set.
func (q *Queue) requeue(ctx context.Context, queue string, job *Job, at time.Time) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	return q.rdb.ZAdd(ctx, delayedKey(queue),
		redis.Z{Score: float64(at.UnixMilli()), Member: data}).Err()
}

func (q *Queue) releaseKey(ctx context.Context, queue string, job *Job) {
	if job.Key == "" {
		return
	}
	if err := q.rdb.Del(ctx, dedupeKey(queue, job.Key)).Err(); err != nil {
		q.log.Warn("release dedupe key", "queue", queue, "key", job.Key, "error", err.Error())
	}
}

// CancelCampaign removes every pending job for a campaign from the ready
// list and the delayed set, releasing their dedupe keys. In-flight jobs are
// not touched; their handlers observe the campaign state and stand down.
func (q *Queue) CancelCampaign(ctx context.Context, queue, campaignID string) (int, error) {
	removed := 0

	ready, err := q.rdb.LRange(ctx, readyKey(queue), 0, -1).Result()
	if err != nil {
		return 0, fmt.Errorf("scan ready: %w", err)
	}
	for _, raw := range ready {
		var job Job
		if json.Unmarshal([]byte(raw), &job) != nil || job.CampaignID != campaignID {
			continue
		}
		n, err := q.rdb.LRem(ctx, readyKey(queue), 1, raw).Result()
		if err != nil {
			return removed, fmt.Errorf("remove ready job: %w", err)
		}
		if n > 0 {
			removed += int(n)
			q.releaseKey(ctx, queue, &job)
		}
	}

	delayed, err := q.rdb.ZRange(ctx, delayedKey(queue), 0, -1).Result()
	if err != nil {
		return removed, fmt.Errorf("scan delayed: %w", err)
	}
	for _, raw := range delayed {
		var job Job
		if json.Unmarshal([]byte(raw), &job) != nil || job.CampaignID != campaignID {
			continue
		}
		n, err := q.rdb.ZRem(ctx, delayedKey(queue), raw).Result()
		if err != nil {
			return removed, fmt.Errorf("remove delayed job: %w", err)
		}
		if n > 0 {
			removed += int(n)
			q.releaseKey(ctx, queue, &job)
		}
	}

	if removed > 0 {
		q.log.Info("cancelled pending jobs", "queue", queue, "campaign_id", campaignID, "count", removed)
	}
	return removed, nil
}
