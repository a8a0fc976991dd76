package store

import (
	"sync"
	"time"

	"github.com/luxfi/privacy-relayer/internal/model"
)

// MemStore is an in-memory PersistentStore used by component tests that
// need real dedup/transition semantics without spinning up pebble.
type MemStore struct {
	mu      sync.Mutex
	records map[string]*model.IntentRecord
}

func NewMemStore() *MemStore {
	return &MemStore{records: make(map[string]*model.IntentRecord)}
}

var _ PersistentStore = (*MemStore)(nil)

func (m *MemStore) IsProcessed(requestID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.records[requestID]
	return ok, nil
}

func (m *MemStore) MarkPending(record *model.IntentRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[record.RequestID]; ok {
		return nil
	}
	now := time.Now()
	record.Status = model.StatusPending
	record.FirstSeenAt = now
	record.LastUpdatedAt = now
	cp := *record
	m.records[record.RequestID] = &cp
	return nil
}

func (m *MemStore) UpdateStatus(requestID string, newStatus model.IntentStatus, update model.StatusUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	record, ok := m.records[requestID]
	if !ok {
		return model.StorageError("no such record", nil)
	}
	if !model.CanTransition(record.Status, newStatus) {
		return model.StorageError("illegal transition", nil)
	}
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
	return nil
}

func (m *MemStore) ListByStatus(status model.IntentStatus, limit int) ([]*model.IntentRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.IntentRecord
	for _, r := range m.records {
		if r.Status == status {
			cp := *r
			out = append(out, &cp)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (m *MemStore) Get(requestID string) (*model.IntentRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.records[requestID]
	if !ok {
		return nil, nil
	}
	cp := *r
	return &cp, nil
}

func (m *MemStore) Close() error { return nil }
