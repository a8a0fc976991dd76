// Package batch implements BatchQueue, the per-chain size- and
// time-triggered flush queue sitting between intent ingestion and the
// Scheduler.
package batch

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/luxfi/geth/log"
	"github.com/luxfi/privacy-relayer/internal/model"
)

// Config holds the queue's size/wait tunables.
type Config struct {
	MaxBatchSize int
	MaxBatchWait time.Duration
}

func DefaultConfig() Config {
	return Config{MaxBatchSize: 5, MaxBatchWait: 10 * time.Second}
}

// OnReady is invoked asynchronously once a batch closes, whether by size
// or by timer.
type OnReady func(batch *model.Batch)

type chainState struct {
	mu         sync.Mutex
	pending    []*model.TransferIntent
	sequence   uint64
	timer      *time.Timer
	processing bool
	queued     bool   // a flush is queued behind the in-flight one
	dispatched uint64 // Sequence of the last batch handed to onReady
}

// Queue holds one chainState per chainId and dispatches closed batches
// to onReady on their own goroutine, so Add never blocks on a consumer.
type Queue struct {
	cfg     Config
	onReady OnReady

	mu     sync.Mutex
	chains map[model.ChainID]*chainState
}

func New(cfg Config, onReady OnReady) *Queue {
	return &Queue{cfg: cfg, onReady: onReady, chains: make(map[model.ChainID]*chainState)}
}

func (q *Queue) chainFor(chainID model.ChainID) *chainState {
	q.mu.Lock()
	defer q.mu.Unlock()
	cs, ok := q.chains[chainID]
	if !ok {
		cs = &chainState{}
		q.chains[chainID] = cs
	}
	return cs
}

// Add appends intent to its chain's in-progress batch, validating it
// first. An intent with an unsupported chainId, empty amount/recipient,
// or missing requestId is rejected and never stored.
func (q *Queue) Add(intent *model.TransferIntent) error {
	if err := intent.Validate(); err != nil {
		log.Warn("batch: rejecting invalid intent", "requestId", intent.RequestID, "err", err)
		return err
	}

	cs := q.chainFor(intent.ChainID)
	cs.mu.Lock()

	cs.pending = append(cs.pending, intent)
	if cs.timer == nil {
		cs.timer = time.AfterFunc(q.cfg.MaxBatchWait, func() { q.flushTimer(intent.ChainID) })
	}

	if len(cs.pending) >= q.cfg.MaxBatchSize {
		batch := q.closeLocked(cs, intent.ChainID)
		cs.mu.Unlock()
		q.dispatch(cs, intent.ChainID, batch)
		return nil
	}
	cs.mu.Unlock()
	return nil
}

func (q *Queue) flushTimer(chainID model.ChainID) {
	cs := q.chainFor(chainID)
	cs.mu.Lock()
	if len(cs.pending) == 0 {
		cs.timer = nil
		cs.mu.Unlock()
		return
	}
	batch := q.closeLocked(cs, chainID)
	cs.mu.Unlock()
	q.dispatch(cs, chainID, batch)
}

// closeLocked snapshots and clears the pending slice into a Batch,
// stopping the wait timer. Caller must hold cs.mu.
func (q *Queue) closeLocked(cs *chainState, chainID model.ChainID) *model.Batch {
	if cs.timer != nil {
		cs.timer.Stop()
		cs.timer = nil
	}
	cs.sequence++
	batch := &model.Batch{
		BatchID:  uuid.NewString(),
		ChainID:  chainID,
		Intents:  cs.pending,
		OpenedAt: time.Now(),
		Sequence: cs.sequence,
	}
	cs.pending = nil
	return batch
}

// dispatch hands batch to onReady, serializing so a chain never has two
// concurrent batch-processing invocations: a flush that arrives while
// one is already running queues behind it. Queued batches are handed to
// onReady in Sequence (closing) order.
func (q *Queue) dispatch(cs *chainState, chainID model.ChainID, batch *model.Batch) {
	cs.mu.Lock()
	if cs.processing || batch.Sequence != cs.dispatched+1 {
		cs.queued = true
		cs.mu.Unlock()
		go q.waitAndDispatch(cs, chainID, batch)
		return
	}
	cs.processing = true
	cs.dispatched = batch.Sequence
	cs.mu.Unlock()

	go q.runReady(cs, chainID, batch)
}

func (q *Queue) waitAndDispatch(cs *chainState, chainID model.ChainID, batch *model.Batch) {
	for {
		cs.mu.Lock()
		if !cs.processing && batch.Sequence == cs.dispatched+1 {
			cs.processing = true
			cs.queued = false
			cs.dispatched = batch.Sequence
			cs.mu.Unlock()
			q.runReady(cs, chainID, batch)
			return
		}
		cs.mu.Unlock()
		time.Sleep(5 * time.Millisecond)
	}
}

func (q *Queue) runReady(cs *chainState, chainID model.ChainID, batch *model.Batch) {
	defer func() {
		cs.mu.Lock()
		cs.processing = false
		cs.mu.Unlock()
	}()
	q.onReady(batch)
}

// FlushAll force-closes every non-empty chain queue, used on shutdown.
func (q *Queue) FlushAll() {
	q.mu.Lock()
	chainIDs := make([]model.ChainID, 0, len(q.chains))
	for id := range q.chains {
		chainIDs = append(chainIDs, id)
	}
	q.mu.Unlock()

	for _, id := range chainIDs {
		cs := q.chainFor(id)
		cs.mu.Lock()
		if len(cs.pending) == 0 {
			cs.mu.Unlock()
			continue
		}
		batch := q.closeLocked(cs, id)
		cs.mu.Unlock()
		q.dispatch(cs, id, batch)
	}
}

// Depth reports the number of intents currently waiting in chainID's
// in-progress batch, for back-pressure and metrics reporting.
func (q *Queue) Depth(chainID model.ChainID) int {
	cs := q.chainFor(chainID)
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return len(cs.pending)
}

// Close drains and drops the timer for a single chain without
// dispatching its remaining intents.
func (q *Queue) Close(chainID model.ChainID) {
	cs := q.chainFor(chainID)
	cs.mu.Lock()
	defer cs.mu.Unlock()
	if cs.timer != nil {
		cs.timer.Stop()
		cs.timer = nil
	}
	cs.pending = nil
}
