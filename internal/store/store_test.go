package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/luxfi/privacy-relayer/internal/model"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "relayer.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestMarkPendingIsIdempotent(t *testing.T) {
	s := openTestStore(t)
	record := &model.IntentRecord{RequestID: "req-1", ChainID: model.ChainSepolia, Amount: "1.5"}
	require.NoError(t, s.MarkPending(record))

	processed, err := s.IsProcessed("req-1")
	require.NoError(t, err)
	require.True(t, processed)

	// Second MarkPending for the same requestId is a no-op, not an error.
	require.NoError(t, s.MarkPending(&model.IntentRecord{RequestID: "req-1", ChainID: model.ChainSepolia, Amount: "9.9"}))

	got, err := s.Get("req-1")
	require.NoError(t, err)
	require.Equal(t, "1.5", got.Amount)
}

func TestIsProcessedFalseForUnknown(t *testing.T) {
	s := openTestStore(t)
	processed, err := s.IsProcessed("does-not-exist")
	require.NoError(t, err)
	require.False(t, processed)
}

func TestUpdateStatusEnforcesLegalTransitions(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.MarkPending(&model.IntentRecord{RequestID: "req-2", ChainID: model.ChainAmoy, Amount: "1"}))

	require.NoError(t, s.UpdateStatus("req-2", model.StatusInFlight, model.StatusUpdate{}))

	err := s.UpdateStatus("req-2", model.StatusPending, model.StatusUpdate{})
	require.Error(t, err)
	require.Equal(t, model.KindStorage, model.KindOf(err))

	require.NoError(t, s.UpdateStatus("req-2", model.StatusConfirmed, model.StatusUpdate{EVMTxHash: "0xabc", BlockNumber: 42}))

	got, err := s.Get("req-2")
	require.NoError(t, err)
	require.Equal(t, model.StatusConfirmed, got.Status)
	require.Equal(t, "0xabc", got.EVMTxHash)
	require.Equal(t, uint64(42), got.BlockNumber)
}

func TestListByStatusReturnsOnlyMatchingRecordsAndMovesOnTransition(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.MarkPending(&model.IntentRecord{RequestID: "req-3", ChainID: model.ChainSepolia, Amount: "1"}))
	require.NoError(t, s.MarkPending(&model.IntentRecord{RequestID: "req-4", ChainID: model.ChainSepolia, Amount: "2"}))

	pending, err := s.ListByStatus(model.StatusPending, 0)
	require.NoError(t, err)
	require.Len(t, pending, 2)

	require.NoError(t, s.UpdateStatus("req-3", model.StatusInFlight, model.StatusUpdate{}))

	pending, err = s.ListByStatus(model.StatusPending, 0)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, "req-4", pending[0].RequestID)

	inFlight, err := s.ListByStatus(model.StatusInFlight, 0)
	require.NoError(t, err)
	require.Len(t, inFlight, 1)
	require.Equal(t, "req-3", inFlight[0].RequestID)
}

func TestGetReturnsNilForUnknownRequest(t *testing.T) {
	s := openTestStore(t)
	record, err := s.Get("missing")
	require.NoError(t, err)
	require.Nil(t, record)
}
