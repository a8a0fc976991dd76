package listener

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/luxfi/privacy-relayer/internal/aleoclient"
	"github.com/luxfi/privacy-relayer/internal/breaker"
	"github.com/luxfi/privacy-relayer/internal/model"
	"github.com/luxfi/privacy-relayer/internal/ratelimit"
	"github.com/luxfi/privacy-relayer/internal/store"
)

func newTestListener(t *testing.T, srv *httptest.Server) (*Listener, *store.MemStore) {
	t.Helper()
	client := aleoclient.New([]string{srv.URL}, time.Second)
	limiter := ratelimit.New(100, 1000)
	br := breaker.New(breaker.DefaultConfig())
	st := store.NewMemStore()
	cfg := DefaultConfig("privacy_box_mvp.aleo")
	cfg.PollInterval = 20 * time.Millisecond
	return New(cfg, client, limiter, br, st), st
}

func TestExtractIntentDropsUnknownChainCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("0"))
	}))
	defer srv.Close()
	l, _ := newTestListener(t, srv)

	transition := aleoclient.Transition{
		Program:  "privacy_box_mvp.aleo",
		Function: "create_transfer_intent",
		Inputs: []aleoclient.Literal{
			{Type: "u64", Value: "1000u64"},
			{Type: "u8", Value: "99u8"}, // not in the fixed table
			{Type: "address", Value: "0xABCDEF0123456789abcdef0123456789ABCDEF01"},
		},
	}
	_, ok := l.extractIntent(transition, "tx1", 10, 0)
	require.False(t, ok)
}

func TestExtractIntentSucceedsWithAllFields(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("0"))
	}))
	defer srv.Close()
	l, _ := newTestListener(t, srv)

	transition := aleoclient.Transition{
		Program:  "privacy_box_mvp.aleo",
		Function: "create_transfer_intent",
		Inputs: []aleoclient.Literal{
			{Type: "u64", Value: "1000u64"},
			{Type: "u8", Value: "1u8"},
			{Type: "address", Value: "0xABCDEF0123456789abcdef0123456789ABCDEF01"},
		},
	}
	intent, ok := l.extractIntent(transition, "tx1", 10, 0)
	require.True(t, ok)
	require.Equal(t, "tx1", intent.RequestID)
	require.Equal(t, "1000", intent.Amount)
}

func TestDedupAndEmitSkipsAlreadyProcessed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("0"))
	}))
	defer srv.Close()
	l, st := newTestListener(t, srv)

	intent := &model.TransferIntent{
		RequestID: "dup-1",
		ChainID:   model.ChainSepolia,
		Amount:    "1",
		Recipient: "0xABCDEF0123456789abcdef0123456789ABCDEF01",
	}
	require.NoError(t, st.MarkPending(&model.IntentRecord{RequestID: "dup-1"}))

	var emitted int
	l.dedupAndEmit(intent, func(*model.TransferIntent) { emitted++ })
	require.Equal(t, 0, emitted)
}

func TestStartEstablishesInitialHeight(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("55"))
	}))
	defer srv.Close()
	l, _ := newTestListener(t, srv)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, l.Start(ctx, func(*model.TransferIntent) {}))
	require.Equal(t, uint64(55), l.lastHeight.Load())
	l.Stop()
}
