// Package dlq implements the DeadLetterQueue: a timer-priority set, not a
// FIFO. No delay-queue library appears in the pack's go.mod files, so it
// is built on container/heap, the standard Go idiom for priority
// scheduling (see DESIGN.md).
package dlq

import (
	"container/heap"
	"sync"
	"time"

	"github.com/luxfi/geth/log"
	"github.com/luxfi/privacy-relayer/internal/model"
	"github.com/luxfi/privacy-relayer/internal/store"
)

// Config holds the DLQ's tunables.
type Config struct {
	BaseDelay  time.Duration // default 60s
	MaxRetries int           // default 3
}

func DefaultConfig() Config {
	return Config{BaseDelay: 60 * time.Second, MaxRetries: 3}
}

type entry struct {
	intent        *model.TransferIntent
	nextAttemptAt time.Time
	index         int
}

// priorityQueue is a container/heap min-heap ordered by nextAttemptAt.
type priorityQueue []*entry

func (pq priorityQueue) Len() int { return len(pq) }
func (pq priorityQueue) Less(i, j int) bool {
	return pq[i].nextAttemptAt.Before(pq[j].nextAttemptAt)
}
func (pq priorityQueue) Swap(i, j int) {
	pq[i], pq[j] = pq[j], pq[i]
	pq[i].index, pq[j].index = i, j
}
func (pq *priorityQueue) Push(x any) {
	e := x.(*entry)
	e.index = len(*pq)
	*pq = append(*pq, e)
}
func (pq *priorityQueue) Pop() any {
	old := *pq
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*pq = old[:n-1]
	return e
}

// Requeuer is the BatchQueue-shaped sink the DLQ re-enqueues ready
// intents onto.
type Requeuer interface {
	Add(intent *model.TransferIntent) error
}

// Queue is the DeadLetterQueue. A background goroutine wakes on the
// earliest nextAttemptAt and re-inserts the intent into its chain's
// BatchQueue, or marks it permanently_failed once MAX_RETRIES is reached.
type Queue struct {
	cfg   Config
	store store.PersistentStore

	mu   sync.Mutex
	pq   priorityQueue
	wake chan struct{}
	done chan struct{}

	requeuers map[model.ChainID]Requeuer
}

func New(cfg Config, st store.PersistentStore, requeuers map[model.ChainID]Requeuer) *Queue {
	return &Queue{
		cfg:       cfg,
		store:     st,
		wake:      make(chan struct{}, 1),
		done:      make(chan struct{}),
		requeuers: requeuers,
	}
}

// Enqueue parks intent for retry after base*2^retryCount. retryCount here
// is the count BEFORE this failure; it is incremented.
func (q *Queue) Enqueue(intent *model.TransferIntent) {
	intent.RetryCount++
	if intent.RetryCount > q.cfg.MaxRetries {
		if err := q.store.UpdateStatus(intent.RequestID, model.StatusPermanentlyFailed, model.StatusUpdate{
			ErrorMessage: "exceeded max retries",
		}); err != nil {
			log.Error("dlq: failed to mark permanently_failed", "requestId", intent.RequestID, "err", err)
		}
		return
	}

	delay := q.cfg.BaseDelay * time.Duration(1<<uint(intent.RetryCount-1))
	e := &entry{intent: intent, nextAttemptAt: time.Now().Add(delay)}

	q.mu.Lock()
	heap.Push(&q.pq, e)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Run drives the background retry-timer loop until stop is closed.
func (q *Queue) Run(stop <-chan struct{}) {
	defer close(q.done)
	timer := time.NewTimer(time.Hour)
	defer timer.Stop()

	for {
		q.resetTimer(timer)
		select {
		case <-stop:
			return
		case <-q.wake:
			continue
		case <-timer.C:
			q.drainReady()
		}
	}
}

func (q *Queue) resetTimer(timer *time.Timer) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !timer.Stop() {
		select {
		case <-timer.C:
		default:
		}
	}
	if len(q.pq) == 0 {
		timer.Reset(time.Hour)
		return
	}
	d := time.Until(q.pq[0].nextAttemptAt)
	if d < 0 {
		d = 0
	}
	timer.Reset(d)
}

func (q *Queue) drainReady() {
	now := time.Now()
	for {
		q.mu.Lock()
		if len(q.pq) == 0 || q.pq[0].nextAttemptAt.After(now) {
			q.mu.Unlock()
			return
		}
		e := heap.Pop(&q.pq).(*entry)
		q.mu.Unlock()

		requeuer, ok := q.requeuers[e.intent.ChainID]
		if !ok {
			log.Error("dlq: no requeuer registered for chain", "chainId", e.intent.ChainID)
			continue
		}
		if err := requeuer.Add(e.intent); err != nil {
			log.Error("dlq: failed to requeue intent", "requestId", e.intent.RequestID, "err", err)
		}
	}
}

// Wait blocks until Run has returned, for shutdown sequencing.
func (q *Queue) Wait() {
	<-q.done
}

// Len reports the current number of parked intents, for MetricsRegistry.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pq)
}
