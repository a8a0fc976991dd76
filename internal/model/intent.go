package model

import (
	"fmt"
	"time"
)

// TransferIntent is the unit of work flowing from an Aleo transition (or
// the HTTP registration ingress) through to EVM settlement. It is the one
// validated, statically typed record that crosses every component
// boundary in the relayer: validated once at ingress, accepted as-is by
// every downstream component.
type TransferIntent struct {
	RequestID  string
	SourceTxID string
	ChainID    ChainID
	Amount     string // human-denominated decimal, validated
	Recipient  string // 0x-prefixed 20-byte hex, validated
	CreatedAt  time.Time
	RetryCount int
}

// Validate enforces the ingress invariants shared by both the Aleo-sourced
// path and the HTTP registration path.
func (t *TransferIntent) Validate() error {
	if t.RequestID == "" {
		return ValidationError("requestId is required")
	}
	if !IsSupported(t.ChainID) {
		return ValidationError(fmt.Sprintf("unsupported chainId %d", t.ChainID))
	}
	if _, err := ParseAmount(t.Amount); err != nil {
		return err
	}
	if _, err := ParseRecipient(t.Recipient); err != nil {
		return err
	}
	return nil
}

// IntentStatus is the persisted lifecycle state of an intent. Legal
// transitions are enforced by PersistentStore.UpdateStatus, never by
// callers.
type IntentStatus string

const (
	StatusPending          IntentStatus = "pending"
	StatusInFlight         IntentStatus = "in_flight"
	StatusConfirmed        IntentStatus = "confirmed"
	StatusFailed           IntentStatus = "failed"
	StatusPermanentlyFailed IntentStatus = "permanently_failed"
)

// legalTransitions enumerates every allowed (from, to) pair. Any pair not
// present here is rejected by the store.
var legalTransitions = map[IntentStatus]map[IntentStatus]bool{
	StatusPending:  {StatusInFlight: true},
	StatusInFlight: {StatusConfirmed: true, StatusFailed: true},
	StatusFailed:   {StatusInFlight: true, StatusPermanentlyFailed: true},
}

// CanTransition reports whether moving from `from` to `to` is legal.
func CanTransition(from, to IntentStatus) bool {
	if from == to {
		return false
	}
	targets, ok := legalTransitions[from]
	if !ok {
		return false
	}
	return targets[to]
}

// IntentRecord is the durable projection of a TransferIntent's settlement
// progress, owned by PersistentStore.
type IntentRecord struct {
	RequestID     string       `json:"requestId"`
	Status        IntentStatus `json:"status"`
	AleoTxID      string       `json:"aleoTxId"`
	EVMTxHash     string       `json:"evmTxHash,omitempty"`
	BlockNumber   uint64       `json:"blockNumber,omitempty"`
	ChainID       ChainID      `json:"chainId"`
	Amount        string       `json:"amount"`
	Recipient     string       `json:"recipient"`
	ErrorMessage  string       `json:"errorMessage,omitempty"`
	RetryCount    int          `json:"retryCount"`
	FirstSeenAt   time.Time    `json:"firstSeenAt"`
	LastUpdatedAt time.Time    `json:"lastUpdatedAt"`
}

// StatusUpdate carries the fields an executor or DLQ worker may update on
// a terminal or retrying transition. Zero values mean "leave unchanged"
// except where noted.
type StatusUpdate struct {
	Status       IntentStatus
	EVMTxHash    string
	BlockNumber  uint64
	ErrorMessage string
	RetryCount   *int
}

// Batch is a bounded group of intents flushed together for one target
// chain. Created empty by BatchQueue, closed exactly once, never reopened.
type Batch struct {
	BatchID   string
	ChainID   ChainID
	Intents   []*TransferIntent
	OpenedAt  time.Time
	Sequence  uint64
}
