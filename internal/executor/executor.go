// Package executor implements EvmExecutor: broadcasting a single
// native-token transfer and waiting for its receipt, with bounded retry
// on a fresh nonce per attempt.
package executor

import (
	"context"
	"math/big"
	"time"

	"github.com/luxfi/geth/common"
	"github.com/luxfi/geth/log"

	"github.com/luxfi/privacy-relayer/internal/evmclient"
	"github.com/luxfi/privacy-relayer/internal/model"
	"github.com/luxfi/privacy-relayer/internal/wallet"
)

// Config holds the executor's retry and timeout tunables.
type Config struct {
	MaxAttempts     int
	InitialBackoff  time.Duration
	ReceiptTimeout  time.Duration
	ReceiptPollStep time.Duration
}

func DefaultConfig() Config {
	return Config{
		MaxAttempts:     3,
		InitialBackoff:  2 * time.Second,
		ReceiptTimeout:  120 * time.Second,
		ReceiptPollStep: 2 * time.Second,
	}
}

// Executor sends transfers for a single chain.
type Executor struct {
	cfg       Config
	client    *evmclient.Client
	pool      *wallet.Pool
	walletCfg wallet.Config
}

func New(cfg Config, client *evmclient.Client, pool *wallet.Pool, walletCfg wallet.Config) *Executor {
	return &Executor{cfg: cfg, client: client, pool: pool, walletCfg: walletCfg}
}

// Send dispatches intent from slot, making up to MaxAttempts attempts in
// total with exponential backoff between them. Each retry obtains a fresh
// nonce, since the prior attempt either landed on chain or definitively
// did not.
func (e *Executor) Send(ctx context.Context, intent *model.TransferIntent, slot *wallet.Slot) model.ExecutionResult {
	walletAddr := slot.Address().Hex()

	recipient, err := model.ParseRecipient(intent.Recipient)
	if err != nil {
		return model.ExecutionResult{Intent: intent, WalletAddr: walletAddr, Success: false, Err: err}
	}
	amountRat, err := model.ParseAmount(intent.Amount)
	if err != nil {
		return model.ExecutionResult{Intent: intent, WalletAddr: walletAddr, Success: false, Err: err}
	}
	amountWei := model.AmountToWei(amountRat)

	backoff := e.cfg.InitialBackoff
	var lastErr error
	for attempt := 1; attempt <= e.cfg.MaxAttempts; attempt++ {
		result := e.attempt(ctx, intent, slot, recipient, amountWei)
		if result.Success {
			return result
		}
		lastErr = result.Err
		log.Warn("executor: attempt failed", "requestId", intent.RequestID, "attempt", attempt, "err", lastErr)

		if attempt == e.cfg.MaxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return model.ExecutionResult{Intent: intent, WalletAddr: walletAddr, Success: false, Err: ctx.Err()}
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return model.ExecutionResult{Intent: intent, WalletAddr: walletAddr, Success: false, Err: lastErr}
}

// attempt reserves a fresh nonce, builds and broadcasts the transaction,
// and waits for its receipt.
func (e *Executor) attempt(ctx context.Context, intent *model.TransferIntent, slot *wallet.Slot, recipient common.Address, amountWei *big.Int) model.ExecutionResult {
	walletAddr := slot.Address().Hex()

	fees, err := slot.GasFees(ctx, e.walletCfg)
	if err != nil {
		return model.ExecutionResult{Intent: intent, WalletAddr: walletAddr, Success: false,
			Err: model.ChainTransientError("gas fee lookup failed", err)}
	}

	nonce := slot.ReserveNonce()
	tx, err := e.pool.BuildAndSignTx(slot, nonce, recipient, amountWei, fees)
	if err != nil {
		slot.ReleaseNonce(nonce)
		return model.ExecutionResult{Intent: intent, WalletAddr: walletAddr, Success: false,
			Err: model.ChainPermanentError("failed to build/sign transaction", err)}
	}

	rawTx, err := tx.MarshalBinary()
	if err != nil {
		slot.ReleaseNonce(nonce)
		return model.ExecutionResult{Intent: intent, WalletAddr: walletAddr, Success: false,
			Err: model.ChainPermanentError("failed to encode transaction", err)}
	}

	txHash, err := e.client.SendRawTransaction(ctx, rawTx)
	if err != nil {
		slot.ReleaseNonce(nonce)
		return model.ExecutionResult{Intent: intent, WalletAddr: walletAddr, Success: false,
			Err: model.ChainTransientError("broadcast failed", err)}
	}

	log.Info("executor: broadcast sent", "requestId", intent.RequestID, "wallet", walletAddr, "txHash", txHash.Hex(), "nonce", nonce)

	receipt, err := e.awaitReceipt(ctx, txHash)
	if err != nil {
		slot.ConfirmNonce()
		return model.ExecutionResult{Intent: intent, WalletAddr: walletAddr, Success: false, TxHash: txHash.Hex(),
			Err: model.ChainTransientError("receipt wait failed", err)}
	}
	slot.ConfirmNonce()

	if !receipt.Succeeded() {
		return model.ExecutionResult{Intent: intent, WalletAddr: walletAddr, Success: false, TxHash: txHash.Hex(),
			Err: model.ChainPermanentError("transaction reverted", nil)}
	}

	return model.ExecutionResult{
		Intent: intent, WalletAddr: walletAddr, Success: true,
		TxHash: txHash.Hex(), BlockNumber: receipt.BlockNum(),
	}
}

// awaitReceipt polls for a transaction receipt until it's available or
// ReceiptTimeout elapses.
func (e *Executor) awaitReceipt(ctx context.Context, txHash common.Hash) (*evmclient.Receipt, error) {
	deadline := time.Now().Add(e.cfg.ReceiptTimeout)
	ticker := time.NewTicker(e.cfg.ReceiptPollStep)
	defer ticker.Stop()

	for {
		receipt, err := e.client.TransactionReceipt(ctx, txHash)
		if err == nil && receipt != nil {
			return receipt, nil
		}
		if time.Now().After(deadline) {
			return nil, context.DeadlineExceeded
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
