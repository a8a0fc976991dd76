package aleoclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/luxfi/privacy-relayer/internal/model"
)

func TestLatestBlockHeightAcceptsBareIntAndObject(t *testing.T) {
	bare := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("42"))
	}))
	defer bare.Close()

	obj := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"height": 99}`))
	}))
	defer obj.Close()

	c1 := New([]string{bare.URL}, time.Second)
	h, err := c1.LatestBlockHeight(context.Background())
	require.NoError(t, err)
	require.Equal(t, uint64(42), h)

	c2 := New([]string{obj.URL}, time.Second)
	h, err = c2.LatestBlockHeight(context.Background())
	require.NoError(t, err)
	require.Equal(t, uint64(99), h)
}

func TestFallbackAdvancesToNextBaseOnError(t *testing.T) {
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer bad.Close()

	good := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("7"))
	}))
	defer good.Close()

	c := New([]string{bad.URL, good.URL}, time.Second)
	h, err := c.LatestBlockHeight(context.Background())
	require.NoError(t, err)
	require.Equal(t, uint64(7), h)
}

func TestAllBasesFailingReportsSingleUpstreamError(t *testing.T) {
	bad1 := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer bad1.Close()
	bad2 := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer bad2.Close()

	c := New([]string{bad1.URL, bad2.URL}, time.Second)
	_, err := c.LatestBlockHeight(context.Background())
	require.Error(t, err)
	require.Equal(t, model.KindUpstreamUnavailable, model.KindOf(err))
}

func TestBlockTransactionsAcceptsArrayAndObjectShapes(t *testing.T) {
	arr := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"id": "tx1"}]`))
	}))
	defer arr.Close()
	obj := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"transactions": [{"id": "tx2"}]}`))
	}))
	defer obj.Close()

	c1 := New([]string{arr.URL}, time.Second)
	txs, err := c1.BlockTransactions(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	require.Equal(t, "tx1", txs[0].ID)

	c2 := New([]string{obj.URL}, time.Second)
	txs, err = c2.BlockTransactions(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	require.Equal(t, "tx2", txs[0].ID)
}
