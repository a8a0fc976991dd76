package scheduler

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/luxfi/privacy-relayer/internal/model"
	"github.com/luxfi/privacy-relayer/internal/wallet"
)

type fakeSender struct {
	mu   sync.Mutex
	sent []string
}

func (f *fakeSender) Send(ctx context.Context, intent *model.TransferIntent, slot *wallet.Slot) model.ExecutionResult {
	f.mu.Lock()
	f.sent = append(f.sent, intent.RequestID)
	f.mu.Unlock()
	return model.ExecutionResult{Intent: intent, Success: true, TxHash: "0xabc"}
}

type fakeRequeuer struct {
	mu       sync.Mutex
	requeued []string
}

func (f *fakeRequeuer) Add(intent *model.TransferIntent) error {
	f.mu.Lock()
	f.requeued = append(f.requeued, intent.RequestID)
	f.mu.Unlock()
	return nil
}

func newIntent(id string) *model.TransferIntent {
	return &model.TransferIntent{RequestID: id, ChainID: model.ChainSepolia, Amount: "0.01", Recipient: "0xABCDEF0123456789abcdef0123456789ABCDEF01"}
}

func TestRunBatchRequeuesOverflowWhenNoWalletsConfigured(t *testing.T) {
	// A Pool with zero slots means every intent overflows: Scheduler holds
	// none for direct dispatch and re-queues the whole batch as a tail.
	sender := &fakeSender{}
	requeuer := &fakeRequeuer{}
	sched := New(&wallet.Pool{}, sender, requeuer)

	batch := &model.Batch{
		ChainID: model.ChainSepolia,
		Intents: []*model.TransferIntent{newIntent("a"), newIntent("b")},
	}
	results := sched.RunBatch(context.Background(), batch)
	require.Len(t, results, 0)
	require.ElementsMatch(t, []string{"a", "b"}, requeuer.requeued)
}

func TestRunBatchHandlesEmptyBatch(t *testing.T) {
	sender := &fakeSender{}
	requeuer := &fakeRequeuer{}
	sched := New(&wallet.Pool{}, sender, requeuer)

	batch := &model.Batch{ChainID: model.ChainSepolia}
	results := sched.RunBatch(context.Background(), batch)
	require.Len(t, results, 0)
}
