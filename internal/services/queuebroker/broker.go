// Package queuebroker implements the Queue Broker: a durable, multi-channel
// priority queue with delayed visibility, per-channel rate limiting, and
// stalled-job redelivery, backed by the Job Store as its durable log.
package queuebroker

import (
	"container/heap"
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/careerforge/backend/internal/common"
	"github.com/careerforge/backend/internal/interfaces"
	"github.com/careerforge/backend/internal/models"
	"golang.org/x/time/rate"
)

// channel is one job type's in-memory delivery queue plus its durable-log
// reconciliation state.
type channel struct {
	mu      sync.Mutex
	items   entryHeap
	seq     int
	wake    chan struct{}
	limiter *rate.Limiter
	inFlight int64

	sweepOnce sync.Once
}

func newChannel(ratePerSecond float64) *channel {
	var limiter *rate.Limiter
	if ratePerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(ratePerSecond), int(ratePerSecond)+1)
	}
	return &channel{
		items:   make(entryHeap, 0),
		wake:    make(chan struct{}, 1),
		limiter: limiter,
	}
}

func (c *channel) notify() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

func (c *channel) push(job *models.Job) {
	readyAt := time.Now()
	switch {
	case job.NextRetryAt != nil:
		readyAt = *job.NextRetryAt
	case job.DelayMS > 0:
		readyAt = readyAt.Add(time.Duration(job.DelayMS) * time.Millisecond)
	}

	c.mu.Lock()
	c.seq++
	heap.Push(&c.items, &entry{
		externalID:  job.ExternalID,
		payload:     job.Payload,
		priority:    jobPriorityWeight(job),
		attempt:     job.RetryCount,
		maxAttempts: job.MaxRetries,
		readyAt:     readyAt,
		index:       c.seq,
	})
	c.mu.Unlock()
	c.notify()
}

// popDue pops the highest-priority entry if it is due, else returns nil.
func (c *channel) popDue() *entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.items) == 0 {
		return nil
	}
	top := c.items[0]
	if top.readyAt.After(time.Now()) {
		return nil
	}
	return heap.Pop(&c.items).(*entry)
}

func (c *channel) remove(externalID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, e := range c.items {
		if e.externalID == externalID {
			heap.Remove(&c.items, i)
			return true
		}
	}
	return false
}

func (c *channel) depth() (waiting, delayed int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now()
	for _, e := range c.items {
		if e.readyAt.After(now) {
			delayed++
		} else {
			waiting++
		}
	}
	return
}

// Broker implements interfaces.QueueBroker. Durability lives in the Job
// Store; Broker keeps an in-memory priority heap per job type as a
// performance cache and reconciles it against the store's due/stalled
// queries so a restart never loses a pending delivery.
type Broker struct {
	storage interfaces.StorageManager
	logger  *common.Logger
	hub     *JobEventHub
	config  *common.Config

	mu       sync.RWMutex
	channels map[string]*channel

	cancel context.CancelFunc
	wg     sync.WaitGroup
	closed atomic.Bool
}

// NewBroker creates a new Queue Broker.
func NewBroker(storage interfaces.StorageManager, logger *common.Logger, config *common.Config) *Broker {
	return &Broker{
		storage:  storage,
		logger:   logger,
		hub:      NewJobEventHub(logger),
		config:   config,
		channels: make(map[string]*channel),
	}
}

// Hub returns the internal event hub for external WebSocket handler wiring.
func (b *Broker) Hub() *JobEventHub { return b.hub }

func (b *Broker) channelFor(jobType string) *channel {
	b.mu.RLock()
	ch, ok := b.channels[jobType]
	b.mu.RUnlock()
	if ok {
		return ch
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if ch, ok := b.channels[jobType]; ok {
		return ch
	}
	ch = newChannel(b.config.JobManager.GetChannelRatePerSecond())
	b.channels[jobType] = ch
	return ch
}

func (b *Broker) safeGo(name string, fn func()) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				b.logger.Error().Str("goroutine", name).Interface("panic", r).Msg("recovered from panic in queue broker goroutine")
			}
		}()
		fn()
	}()
}

// Enqueue pushes a job onto its type's channel with delayMs visibility.
func (b *Broker) Enqueue(ctx context.Context, jobType string, job *models.Job) error {
	ch := b.channelFor(jobType)
	ch.push(job)

	b.hub.Broadcast(models.JobEvent{
		Type:      models.JobEventQueued,
		Job:       job,
		Timestamp: time.Now(),
		QueueSize: len(ch.items),
	})
	return nil
}

// Consume registers a consumer for jobType with the given concurrency. It
// also lazily starts that channel's durable-log reconciliation sweep, which
// pulls due and stalled jobs out of the Job Store so an in-memory restart
// never loses visibility of a pending delivery.
func (b *Broker) Consume(ctx context.Context, jobType string, concurrency int, handler func(context.Context, interfaces.QueueEntry) error) error {
	if concurrency <= 0 {
		concurrency = 1
	}
	ch := b.channelFor(jobType)
	ch.sweepOnce.Do(func() {
		b.safeGo("sweep-"+jobType, func() { b.sweepLoop(ctx, jobType, ch) })
	})

	var wg sync.WaitGroup
	wg.Add(concurrency)
	for i := 0; i < concurrency; i++ {
		go func(worker int) {
			defer wg.Done()
			b.consumeLoop(ctx, jobType, ch, handler)
		}(i)
	}
	wg.Wait()
	return ctx.Err()
}

func (b *Broker) consumeLoop(ctx context.Context, jobType string, ch *channel, handler func(context.Context, interfaces.QueueEntry) error) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if ch.limiter != nil {
			if err := ch.limiter.Wait(ctx); err != nil {
				return
			}
		}

		e := ch.popDue()
		if e == nil {
			select {
			case <-ctx.Done():
				return
			case <-ch.wake:
			case <-time.After(250 * time.Millisecond):
			}
			continue
		}

		atomic.AddInt64(&ch.inFlight, 1)
		func() {
			defer atomic.AddInt64(&ch.inFlight, -1)
			err := handler(ctx, interfaces.QueueEntry{
				ExternalID:  e.externalID,
				Payload:     e.payload,
				Priority:    e.priority,
				Attempt:     e.attempt,
				MaxAttempts: e.maxAttempts,
			})
			if err != nil {
				b.logger.Warn().Str("job_type", jobType).Str("external_id", e.externalID).Err(err).Msg("queue handler nacked entry")
			}
		}()
	}
}

// sweepLoop periodically reconciles the in-memory heap against the Job
// Store's due-for-delivery and stalled queries.
func (b *Broker) sweepLoop(ctx context.Context, jobType string, ch *channel) {
	interval := b.config.JobManager.GetWatcherInterval()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	reconcile := func() {
		due, err := b.storage.JobStore().ListDueForDelivery(ctx, jobType, 200)
		if err != nil {
			b.logger.Warn().Err(err).Str("job_type", jobType).Msg("sweep: failed to list due jobs")
		} else {
			for _, job := range due {
				ch.push(job)
			}
		}

		stalled, err := b.storage.JobStore().ListStalled(ctx, jobType, b.config.JobManager.GetLockDuration(), 100)
		if err != nil {
			b.logger.Warn().Err(err).Str("job_type", jobType).Msg("sweep: failed to list stalled jobs")
			return
		}
		for _, job := range stalled {
			b.logger.Warn().Str("external_id", job.ExternalID).Str("job_type", jobType).Msg("sweep: reclaiming stalled job")
			ch.push(job)
		}
	}

	reconcile()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			reconcile()
		}
	}
}

// Remove best-effort removes a not-yet-claimed entry (used by cancel).
func (b *Broker) Remove(ctx context.Context, jobType, externalID string) error {
	ch := b.channelFor(jobType)
	ch.remove(externalID)
	return nil
}

// Depth reports waiting/delayed/active counts for a channel.
func (b *Broker) Depth(ctx context.Context, jobType string) (interfaces.ChannelDepth, error) {
	ch := b.channelFor(jobType)
	waiting, delayed := ch.depth()

	_, failed, err := b.storage.JobStore().List(ctx, interfaces.QueryOptions{Type: jobType, Status: models.JobStatusFailed, PerPage: 1})
	if err != nil {
		return interfaces.ChannelDepth{}, fmt.Errorf("queuebroker: depth: %w", err)
	}
	_, completed, err := b.storage.JobStore().List(ctx, interfaces.QueryOptions{Type: jobType, Status: models.JobStatusCompleted, PerPage: 1})
	if err != nil {
		return interfaces.ChannelDepth{}, fmt.Errorf("queuebroker: depth: %w", err)
	}

	return interfaces.ChannelDepth{
		Waiting:   waiting,
		Active:    int(atomic.LoadInt64(&ch.inFlight)),
		Delayed:   delayed,
		Failed:    failed,
		Completed: completed,
	}, nil
}

// Close stops the event hub and waits for the sweep goroutines to exit. It
// does not cancel consumers or sweeps itself: both stop only when the
// context passed to Consume is cancelled, so Close blocks until then.
func (b *Broker) Close() error {
	if !b.closed.CompareAndSwap(false, true) {
		return nil
	}
	if b.cancel != nil {
		b.cancel()
	}
	b.hub.Stop()
	b.wg.Wait()
	return nil
}

var _ interfaces.QueueBroker = (*Broker)(nil)
