// Package scheduler implements Scheduler: assigns each intent in a
// closed batch to a distinct wallet and dispatches them concurrently,
// awaiting every attempt before returning.
package scheduler

import (
	"context"
	"math/big"
	"sync"

	"github.com/luxfi/geth/common"
	"github.com/luxfi/geth/log"

	"github.com/luxfi/privacy-relayer/internal/model"
	"github.com/luxfi/privacy-relayer/internal/wallet"
)

// Sender executes a single intent against a selected wallet slot.
type Sender interface {
	Send(ctx context.Context, intent *model.TransferIntent, slot *wallet.Slot) model.ExecutionResult
}

// Requeuer re-enqueues overflow intents back onto their chain's
// BatchQueue, preserving their relative order.
type Requeuer interface {
	Add(intent *model.TransferIntent) error
}

// Scheduler assigns intents to wallets and runs them concurrently.
type Scheduler struct {
	pool     *wallet.Pool
	sender   Sender
	requeuer Requeuer
}

func New(pool *wallet.Pool, sender Sender, requeuer Requeuer) *Scheduler {
	return &Scheduler{pool: pool, sender: sender, requeuer: requeuer}
}

// estimatedFeeWei is a conservative placeholder worst-case fee used for
// the balance screen; the executor re-derives actual gas fields per send.
var estimatedFeeWei = big.NewInt(1_000_000_000_000_000) // 0.001 native token

// RunBatch assigns each intent in batch to a distinct wallet slot and
// runs all assignments concurrently, awaiting every attempt. Results are
// returned in the same order as batch.Intents. Intents beyond the
// number of wallets are held and re-queued as a tail, preserving their
// relative order.
func (s *Scheduler) RunBatch(ctx context.Context, batch *model.Batch) []model.ExecutionResult {
	slotCount := len(s.pool.Slots())
	assignable := batch.Intents
	overflow := []*model.TransferIntent{}
	if len(batch.Intents) > slotCount {
		assignable = batch.Intents[:slotCount]
		overflow = batch.Intents[slotCount:]
	}

	results := make([]model.ExecutionResult, len(assignable))
	excluded := make(map[common.Address]bool)
	assignments := make([]*wallet.Slot, len(assignable))

	for i, intent := range assignable {
		amountRat, err := model.ParseAmount(intent.Amount)
		if err != nil {
			results[i] = model.ExecutionResult{Intent: intent, Success: false, Err: err}
			continue
		}
		amountWei := model.AmountToWei(amountRat)
		slot, ok := s.pool.Select(amountWei, estimatedFeeWei, excluded)
		if !ok {
			results[i] = model.ExecutionResult{Intent: intent, Success: false,
				Err: model.ChainTransientError("no wallet available with sufficient balance", nil)}
			continue
		}
		excluded[slot.Address()] = true
		assignments[i] = slot
	}

	var wg sync.WaitGroup
	for i, intent := range assignable {
		if assignments[i] == nil {
			continue // already failed wallet selection above
		}
		i, intent, slot := i, intent, assignments[i]
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = s.sender.Send(ctx, intent, slot)
		}()
	}
	wg.Wait()

	for _, intent := range overflow {
		if err := s.requeuer.Add(intent); err != nil {
			log.Error("scheduler: failed to requeue overflow intent", "requestId", intent.RequestID, "err", err)
		}
	}

	return results
}
