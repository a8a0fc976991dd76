// Package store implements PersistentStore over github.com/cockroachdb/pebble,
// an embedded LSM storage engine. Every write touches the primary
// requestId->record row and the status secondary index in a single
// pebble Batch, so isProcessed never observes a markPending that hasn't
// also updated the index: markPending must be visible to isProcessed
// before the caller proceeds to enqueue.
package store

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/cockroachdb/pebble"

	"github.com/luxfi/geth/log"
	"github.com/luxfi/privacy-relayer/internal/model"
)

const (
	primaryPrefix = "r\x00" // r\x00<requestId> -> IntentRecord JSON
	statusPrefix  = "s\x00" // s\x00<status>\x00<requestId> -> empty
)

// PersistentStore is the interface the rest of the relayer programs
// against, so tests can substitute an in-memory fake without dragging in
// pebble.
type PersistentStore interface {
	IsProcessed(requestID string) (bool, error)
	MarkPending(record *model.IntentRecord) error
	UpdateStatus(requestID string, newStatus model.IntentStatus, update model.StatusUpdate) error
	ListByStatus(status model.IntentStatus, limit int) ([]*model.IntentRecord, error)
	Get(requestID string) (*model.IntentRecord, error)
	Close() error
}

// Store is the durable requestId -> IntentRecord mapping plus a status
// secondary index.
type Store struct {
	db *pebble.DB
}

var _ PersistentStore = (*Store)(nil)

// Open initializes (or reopens) the pebble database rooted at dir. A fresh
// directory gets a fresh schema; schema migration is out of scope.
func Open(dir string) (*Store, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, model.StorageError("failed to open persistent store", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return model.StorageError("failed to close persistent store", err)
	}
	return nil
}

func primaryKey(requestID string) []byte {
	return append([]byte(primaryPrefix), requestID...)
}

func statusKey(status model.IntentStatus, requestID string) []byte {
	return []byte(string(statusPrefix) + string(status) + "\x00" + requestID)
}

// IsProcessed reports whether a record already exists for requestID,
// regardless of status.
func (s *Store) IsProcessed(requestID string) (bool, error) {
	_, closer, err := s.db.Get(primaryKey(requestID))
	if err == pebble.ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, model.StorageError("isProcessed lookup failed", err)
	}
	_ = closer.Close()
	return true, nil
}

// MarkPending inserts record if absent; first-writer wins, a no-op if a
// record for this requestID is already present.
func (s *Store) MarkPending(record *model.IntentRecord) error {
	key := primaryKey(record.RequestID)
	_, closer, err := s.db.Get(key)
	if err == nil {
		_ = closer.Close()
		return nil // already present: no-op
	}
	if err != pebble.ErrNotFound {
		return model.StorageError("markPending lookup failed", err)
	}

	record.Status = model.StatusPending
	now := time.Now()
	if record.FirstSeenAt.IsZero() {
		record.FirstSeenAt = now
	}
	record.LastUpdatedAt = now

	return s.writeLocked(record, "")
}

// UpdateStatus performs the single legal transition from the record's
// current status to newStatus, rejecting any transition not in
// model.CanTransition's table.
func (s *Store) UpdateStatus(requestID string, newStatus model.IntentStatus, update model.StatusUpdate) error {
	val, closer, err := s.db.Get(primaryKey(requestID))
	if err == pebble.ErrNotFound {
		return model.StorageError("updateStatus: no such record", fmt.Errorf("requestId=%s", requestID))
	}
	if err != nil {
		return model.StorageError("updateStatus lookup failed", err)
	}
	var record model.IntentRecord
	decodeErr := json.Unmarshal(val, &record)
	_ = closer.Close()
	if decodeErr != nil {
		return model.StorageError("updateStatus decode failed", decodeErr)
	}

	if !model.CanTransition(record.Status, newStatus) {
		return model.StorageError(
			fmt.Sprintf("illegal transition %s -> %s for %s", record.Status, newStatus, requestID), nil)
	}

	oldStatus := record.Status
	record.Status = newStatus
	if update.EVMTxHash != "" {
		record.EVMTxHash = update.EVMTxHash
	}
	if update.BlockNumber != 0 {
		record.BlockNumber = update.BlockNumber
	}
	if update.ErrorMessage != "" {
		record.ErrorMessage = update.ErrorMessage
	}
	if update.RetryCount != nil {
		record.RetryCount = *update.RetryCount
	}
	record.LastUpdatedAt = time.Now()

	return s.writeLocked(&record, oldStatus)
}

// writeLocked writes the primary row and the status index atomically via
// a single pebble Batch, removing the old status index entry (if any).
func (s *Store) writeLocked(record *model.IntentRecord, oldStatus model.IntentStatus) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return model.StorageError("failed to encode record", err)
	}

	batch := s.db.NewBatch()
	defer batch.Close()

	if oldStatus != "" && oldStatus != record.Status {
		if err := batch.Delete(statusKey(oldStatus, record.RequestID), nil); err != nil {
			return model.StorageError("failed to clear old status index", err)
		}
	}
	if err := batch.Set(primaryKey(record.RequestID), payload, nil); err != nil {
		return model.StorageError("failed to stage primary row", err)
	}
	if err := batch.Set(statusKey(record.Status, record.RequestID), nil, nil); err != nil {
		return model.StorageError("failed to stage status index", err)
	}

	if err := batch.Commit(pebble.Sync); err != nil {
		return model.StorageError("failed to commit record", err)
	}
	return nil
}

// ListByStatus returns up to limit records with the given status, used by
// the orchestrator's startup recovery sweep.
func (s *Store) ListByStatus(status model.IntentStatus, limit int) ([]*model.IntentRecord, error) {
	lower := statusKey(status, "")
	upper := statusKey(status, "\xff\xff\xff\xff")
	iter, err := s.db.NewIter(&pebble.IterOptions{LowerBound: lower, UpperBound: upper})
	if err != nil {
		return nil, model.StorageError("listByStatus iterator failed", err)
	}
	defer iter.Close()

	var out []*model.IntentRecord
	for iter.First(); iter.Valid(); iter.Next() {
		if limit > 0 && len(out) >= limit {
			break
		}
		requestID := requestIDFromStatusKey(iter.Key())
		val, closer, err := s.db.Get(primaryKey(requestID))
		if err != nil {
			log.Warn("listByStatus: primary row missing for indexed id", "requestId", requestID, "err", err)
			continue
		}
		var record model.IntentRecord
		decodeErr := json.Unmarshal(val, &record)
		_ = closer.Close()
		if decodeErr != nil {
			log.Warn("listByStatus: failed to decode record", "requestId", requestID, "err", decodeErr)
			continue
		}
		out = append(out, &record)
	}
	if err := iter.Error(); err != nil {
		return nil, model.StorageError("listByStatus iteration failed", err)
	}
	return out, nil
}

func requestIDFromStatusKey(key []byte) string {
	// key = s\x00<status>\x00<requestId>
	s := string(key)
	idx := -1
	for i := len(statusPrefix); i < len(s); i++ {
		if s[i] == 0 {
			idx = i
			break
		}
	}
	if idx == -1 || idx+1 > len(s) {
		return ""
	}
	return s[idx+1:]
}

// Get returns the record for requestID, or (nil, nil) if absent.
func (s *Store) Get(requestID string) (*model.IntentRecord, error) {
	val, closer, err := s.db.Get(primaryKey(requestID))
	if err == pebble.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, model.StorageError("get lookup failed", err)
	}
	var record model.IntentRecord
	decodeErr := json.Unmarshal(val, &record)
	_ = closer.Close()
	if decodeErr != nil {
		return nil, model.StorageError("get decode failed", decodeErr)
	}
	return &record, nil
}
