package dlq

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/luxfi/privacy-relayer/internal/model"
	"github.com/luxfi/privacy-relayer/internal/store"
)

type fakeRequeuer struct {
	added []*model.TransferIntent
}

func (f *fakeRequeuer) Add(intent *model.TransferIntent) error {
	f.added = append(f.added, intent)
	return nil
}

func newTestIntent(requestID string) *model.TransferIntent {
	return &model.TransferIntent{
		RequestID: requestID,
		ChainID:   model.ChainSepolia,
		Amount:    "1",
		Recipient: "0xABCDEF0123456789abcdef0123456789ABCDEF01",
	}
}

func TestEnqueueMarksPermanentlyFailedPastMaxRetries(t *testing.T) {
	st := store.NewMemStore()
	intent := newTestIntent("req-1")
	require.NoError(t, st.MarkPending(&model.IntentRecord{RequestID: intent.RequestID}))
	require.NoError(t, st.UpdateStatus(intent.RequestID, model.StatusInFlight, model.StatusUpdate{}))
	require.NoError(t, st.UpdateStatus(intent.RequestID, model.StatusFailed, model.StatusUpdate{}))

	req := &fakeRequeuer{}
	q := New(Config{BaseDelay: time.Millisecond, MaxRetries: 1}, st, map[model.ChainID]Requeuer{model.ChainSepolia: req})

	intent.RetryCount = 1 // already at MaxRetries before this failure
	q.Enqueue(intent)

	record, err := st.Get(intent.RequestID)
	require.NoError(t, err)
	require.Equal(t, model.StatusPermanentlyFailed, record.Status)
	require.Empty(t, q.pq)
}

func TestRunRequeuesEntryOnceItsDelayElapses(t *testing.T) {
	st := store.NewMemStore()
	intent := newTestIntent("req-2")
	require.NoError(t, st.MarkPending(&model.IntentRecord{RequestID: intent.RequestID}))
	require.NoError(t, st.UpdateStatus(intent.RequestID, model.StatusInFlight, model.StatusUpdate{}))
	require.NoError(t, st.UpdateStatus(intent.RequestID, model.StatusFailed, model.StatusUpdate{}))

	req := &fakeRequeuer{}
	q := New(Config{BaseDelay: 10 * time.Millisecond, MaxRetries: 3}, st, map[model.ChainID]Requeuer{model.ChainSepolia: req})

	stop := make(chan struct{})
	go q.Run(stop)
	defer func() { close(stop); q.Wait() }()

	q.Enqueue(intent)

	require.Eventually(t, func() bool {
		return len(req.added) == 1
	}, time.Second, 5*time.Millisecond)
	require.Equal(t, intent.RequestID, req.added[0].RequestID)
}

func TestLenReflectsPendingEntries(t *testing.T) {
	st := store.NewMemStore()
	q := New(DefaultConfig(), st, map[model.ChainID]Requeuer{})
	require.Equal(t, 0, q.Len())

	intent := newTestIntent("req-3")
	require.NoError(t, st.MarkPending(&model.IntentRecord{RequestID: intent.RequestID}))
	require.NoError(t, st.UpdateStatus(intent.RequestID, model.StatusInFlight, model.StatusUpdate{}))
	require.NoError(t, st.UpdateStatus(intent.RequestID, model.StatusFailed, model.StatusUpdate{}))

	q.cfg.BaseDelay = time.Hour // keep it parked for the duration of this assertion
	q.Enqueue(intent)
	require.Equal(t, 1, q.Len())
}
