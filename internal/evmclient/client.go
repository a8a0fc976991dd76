// Package evmclient is a minimal EVM JSON-RPC client covering the
// handful of methods the executor and wallet pool need. It follows the
// same gorilla/rpc/v2/json2 request/response codec a node's utils/rpc
// package wraps around net/http.
package evmclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"

	rpc "github.com/gorilla/rpc/v2/json2"

	"github.com/luxfi/geth/common"
)

// Client issues JSON-RPC calls against a single EVM node.
type Client struct {
	url        string
	httpClient *http.Client
}

func New(url string) *Client {
	return &Client{url: url, httpClient: &http.Client{}}
}

func (c *Client) call(ctx context.Context, method string, params, reply interface{}) error {
	body, err := rpc.EncodeClientRequest(method, params)
	if err != nil {
		return fmt.Errorf("evmclient: encode %s: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("evmclient: build request for %s: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("evmclient: %s request failed: %w", method, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("evmclient: %s returned status %d", method, resp.StatusCode)
	}
	if err := rpc.DecodeClientResponse(resp.Body, reply); err != nil {
		return fmt.Errorf("evmclient: decode %s response: %w", method, err)
	}
	return nil
}

// hexUint64 decodes a "0x..."-prefixed quantity as returned by go-ethereum
// style JSON-RPC servers.
func hexUint64(s string) (uint64, error) {
	var v big.Int
	if _, ok := v.SetString(trimHexPrefix(s), 16); !ok {
		return 0, fmt.Errorf("evmclient: invalid hex quantity %q", s)
	}
	return v.Uint64(), nil
}

func trimHexPrefix(s string) string {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s[2:]
	}
	return s
}

// TransactionCount returns the pending nonce for addr.
func (c *Client) TransactionCount(ctx context.Context, addr common.Address) (uint64, error) {
	var reply string
	if err := c.call(ctx, "eth_getTransactionCount", []interface{}{addr.Hex(), "pending"}, &reply); err != nil {
		return 0, err
	}
	return hexUint64(reply)
}

// Balance returns addr's wei balance at the latest block.
func (c *Client) Balance(ctx context.Context, addr common.Address) (*big.Int, error) {
	var reply string
	if err := c.call(ctx, "eth_getBalance", []interface{}{addr.Hex(), "latest"}, &reply); err != nil {
		return nil, err
	}
	v := new(big.Int)
	if _, ok := v.SetString(trimHexPrefix(reply), 16); !ok {
		return nil, fmt.Errorf("evmclient: invalid balance response %q", reply)
	}
	return v, nil
}

// GasPrice returns the node's suggested legacy gas price.
func (c *Client) GasPrice(ctx context.Context) (*big.Int, error) {
	var reply string
	if err := c.call(ctx, "eth_gasPrice", []interface{}{}, &reply); err != nil {
		return nil, err
	}
	v := new(big.Int)
	if _, ok := v.SetString(trimHexPrefix(reply), 16); !ok {
		return nil, fmt.Errorf("evmclient: invalid gasPrice response %q", reply)
	}
	return v, nil
}

// feeHistoryResponse is the slim subset of eth_feeHistory used to derive an
// EIP-1559 priority fee suggestion.
type feeHistoryResponse struct {
	BaseFeePerGas []string   `json:"baseFeePerGas"`
	Reward        [][]string `json:"reward"`
}

// SuggestedFees derives (maxPriorityFeePerGas, maxFeePerGas) from
// eth_feeHistory's latest block, falling back to the caller when the
// node doesn't support it (pre-London chains).
func (c *Client) SuggestedFees(ctx context.Context) (priority, maxFee *big.Int, err error) {
	var reply feeHistoryResponse
	params := []interface{}{"0x1", "latest", []int{50}}
	if err := c.call(ctx, "eth_feeHistory", params, &reply); err != nil {
		return nil, nil, err
	}
	if len(reply.BaseFeePerGas) == 0 || len(reply.Reward) == 0 || len(reply.Reward[0]) == 0 {
		return nil, nil, fmt.Errorf("evmclient: empty fee history response")
	}
	baseFee := new(big.Int)
	if _, ok := baseFee.SetString(trimHexPrefix(reply.BaseFeePerGas[len(reply.BaseFeePerGas)-1]), 16); !ok {
		return nil, nil, fmt.Errorf("evmclient: invalid baseFeePerGas %q", reply.BaseFeePerGas[0])
	}
	priorityFee := new(big.Int)
	if _, ok := priorityFee.SetString(trimHexPrefix(reply.Reward[0][0]), 16); !ok {
		return nil, nil, fmt.Errorf("evmclient: invalid reward %q", reply.Reward[0][0])
	}
	maxFeePerGas := new(big.Int).Add(baseFee, priorityFee)
	maxFeePerGas.Mul(maxFeePerGas, big.NewInt(2))
	return priorityFee, maxFeePerGas, nil
}

// SendRawTransaction broadcasts a signed, RLP-encoded transaction.
func (c *Client) SendRawTransaction(ctx context.Context, rawTx []byte) (common.Hash, error) {
	var reply string
	hexEncoded := "0x" + common.Bytes2Hex(rawTx)
	if err := c.call(ctx, "eth_sendRawTransaction", []interface{}{hexEncoded}, &reply); err != nil {
		return common.Hash{}, err
	}
	return common.HexToHash(reply), nil
}

// Receipt is the subset of an eth_getTransactionReceipt response the
// executor needs.
type Receipt struct {
	Status      string `json:"status"`
	BlockNumber string `json:"blockNumber"`
	TxHash      string `json:"transactionHash"`
}

// TransactionReceipt returns nil, nil if the receipt is not yet available.
func (c *Client) TransactionReceipt(ctx context.Context, hash common.Hash) (*Receipt, error) {
	var raw json.RawMessage
	if err := c.call(ctx, "eth_getTransactionReceipt", []interface{}{hash.Hex()}, &raw); err != nil {
		if errors.Is(err, rpc.ErrNullResult) {
			return nil, nil
		}
		return nil, err
	}
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var receipt Receipt
	if err := json.Unmarshal(raw, &receipt); err != nil {
		return nil, fmt.Errorf("evmclient: decode receipt: %w", err)
	}
	return &receipt, nil
}

// Succeeded reports whether the receipt's status field indicates success.
func (r *Receipt) Succeeded() bool {
	return r.Status == "0x1"
}

// BlockNum parses BlockNumber as a uint64.
func (r *Receipt) BlockNum() uint64 {
	n, _ := hexUint64(r.BlockNumber)
	return n
}
