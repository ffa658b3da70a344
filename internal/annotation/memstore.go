package annotation

import (
	"context"
	"sync"
)

// MemoryStore is an in-process LedgerStore. Ledgers are cloned on the way
// in and out so callers never share state with the store.
type MemoryStore struct {
	mu      sync.Mutex
	ledgers map[string]*Ledger
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{ledgers: make(map[string]*Ledger)}
}

func (m *MemoryStore) GetLedger(_ context.Context, taskID string) (*Ledger, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ledger, ok := m.ledgers[taskID]
	if !ok {
		return nil, ErrLedgerNotFound
	}
	return ledger.Clone(), nil
}

func (m *MemoryStore) SaveLedger(_ context.Context, taskID string, ledger *Ledger) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ledgers[taskID] = ledger.Clone()
	return nil
}

func (m *MemoryStore) SubmitSpans(_ context.Context, taskID, annotator string, spans []Span) (*Ledger, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ledger, ok := m.ledgers[taskID]
	if !ok {
		return nil, ErrLedgerNotFound
	}
	ledger.Submit(annotator, spans)
	return ledger.Clone(), nil
}
