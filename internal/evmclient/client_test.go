package evmclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/luxfi/geth/common"
)

type jsonrpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  interface{}     `json:"error"`
	ID     json.RawMessage `json:"id"`
}

func serveResult(t *testing.T, result string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID json.RawMessage `json:"id"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		resp := jsonrpcResponse{Result: json.RawMessage(result), ID: req.ID}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
}

func TestTransactionCountParsesHexQuantity(t *testing.T) {
	srv := serveResult(t, `"0x5"`)
	defer srv.Close()
	c := New(srv.URL)
	n, err := c.TransactionCount(context.Background(), common.HexToAddress("0xABCDEF0123456789abcdef0123456789ABCDEF01"))
	require.NoError(t, err)
	require.Equal(t, uint64(5), n)
}

func TestBalanceParsesHexQuantity(t *testing.T) {
	srv := serveResult(t, `"0x2386f26fc10000"`) // 0.01 ether in wei
	defer srv.Close()
	c := New(srv.URL)
	bal, err := c.Balance(context.Background(), common.HexToAddress("0xABCDEF0123456789abcdef0123456789ABCDEF01"))
	require.NoError(t, err)
	require.Equal(t, "10000000000000000", bal.String())
}

func TestTransactionReceiptReturnsNilWhenPending(t *testing.T) {
	srv := serveResult(t, `null`)
	defer srv.Close()
	c := New(srv.URL)
	receipt, err := c.TransactionReceipt(context.Background(), common.HexToHash("0x01"))
	require.NoError(t, err)
	require.Nil(t, receipt)
}

func TestTransactionReceiptParsesSuccessStatus(t *testing.T) {
	srv := serveResult(t, `{"status":"0x1","blockNumber":"0xa","transactionHash":"0x01"}`)
	defer srv.Close()
	c := New(srv.URL)
	receipt, err := c.TransactionReceipt(context.Background(), common.HexToHash("0x01"))
	require.NoError(t, err)
	require.NotNil(t, receipt)
	require.True(t, receipt.Succeeded())
	require.Equal(t, uint64(10), receipt.BlockNum())
}
