// Package aleoclient implements a small REST client for the Aleo
// explorer API. The surface is plain JSON-over-HTTP, not JSON-RPC, so
// it is built directly on net/http and encoding/json rather than forced
// into the gorilla/rpc json2 codec used for the EVM side (see
// DESIGN.md's standard-library justifications).
package aleoclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/luxfi/geth/log"
	"github.com/luxfi/privacy-relayer/internal/model"
)

// Transaction is a single Aleo transaction envelope, loosely typed: the
// explorer's exact shape varies by version, and only the transitions
// slice is interpreted further up the stack.
type Transaction struct {
	ID          string       `json:"id"`
	Transitions []Transition `json:"transitions"`
}

// Transition is one program invocation within a transaction.
type Transition struct {
	Program  string   `json:"program"`
	Function string   `json:"function"`
	Inputs   []Literal `json:"inputs"`
	Outputs  []Literal `json:"outputs"`
}

// Literal is a typed Aleo value as rendered by the explorer API. Only
// the Value string is used; Type is carried for diagnostics.
type Literal struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// Client talks to the Aleo explorer REST API, trying each configured
// base URL in order until one call succeeds.
type Client struct {
	httpClient *http.Client
	bases      []string
}

// New returns a Client that tries bases in order on each call. bases
// must be non-empty.
func New(bases []string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		bases:      bases,
	}
}

// LatestBlockHeight returns the chain tip as reported by the first
// responsive base URL. The response may be a bare integer or an object
// carrying a "height" field; both are accepted.
func (c *Client) LatestBlockHeight(ctx context.Context) (uint64, error) {
	var height uint64
	err := c.withFallback(ctx, "/block/height/latest", func(body []byte) error {
		var asInt uint64
		if err := json.Unmarshal(body, &asInt); err == nil {
			height = asInt
			return nil
		}
		var asObj struct {
			Height uint64 `json:"height"`
		}
		if err := json.Unmarshal(body, &asObj); err != nil {
			return fmt.Errorf("unrecognized height response: %w", err)
		}
		height = asObj.Height
		return nil
	})
	return height, err
}

// BlockTransactions returns the transactions included at the given
// height. The response may be a bare array or an object carrying a
// "transactions" field; both are accepted.
func (c *Client) BlockTransactions(ctx context.Context, height uint64) ([]Transaction, error) {
	var txs []Transaction
	path := fmt.Sprintf("/block/%d/transactions", height)
	err := c.withFallback(ctx, path, func(body []byte) error {
		var asArray []Transaction
		if err := json.Unmarshal(body, &asArray); err == nil {
			txs = asArray
			return nil
		}
		var asObj struct {
			Transactions []Transaction `json:"transactions"`
		}
		if err := json.Unmarshal(body, &asObj); err != nil {
			return fmt.Errorf("unrecognized block transactions response: %w", err)
		}
		txs = asObj.Transactions
		return nil
	})
	return txs, err
}

// Transaction fetches a single transaction envelope by id.
func (c *Client) Transaction(ctx context.Context, id string) (*Transaction, error) {
	var tx Transaction
	path := "/transaction/" + id
	err := c.withFallback(ctx, path, func(body []byte) error {
		return json.Unmarshal(body, &tx)
	})
	if err != nil {
		return nil, err
	}
	return &tx, nil
}

// withFallback tries each base URL in order, calling decode on the first
// successful response body. Failure of every base is reported as a
// single UpstreamUnavailable error, so the circuit breaker counts one
// failure per logical call rather than one per attempted base.
func (c *Client) withFallback(ctx context.Context, path string, decode func([]byte) error) error {
	var lastErr error
	for _, base := range c.bases {
		body, err := c.get(ctx, base+path)
		if err != nil {
			lastErr = err
			log.Debug("aleoclient: base URL failed, trying next", "base", base, "path", path, "err", err)
			continue
		}
		if err := decode(body); err != nil {
			lastErr = err
			continue
		}
		return nil
	}
	return model.UpstreamUnavailable(fmt.Sprintf("all Aleo endpoints failed for %s", path), lastErr)
}

func (c *Client) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("unexpected status %d from %s: %s", resp.StatusCode, url, strings.TrimSpace(string(body)))
	}
	return body, nil
}
