package ledger

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-memory implementation of Store. It backs the server
// when no DATABASE_URL is configured and the unit tests, and reproduces the
// Postgres semantics: id assignment, insertion order, the anti-join
// selection, and the at-most-one-prediction-per-trans_num invariant.
type MemoryStore struct {
	mu          sync.RWMutex
	raw         []*RawTransaction
	rawByNum    map[string]*RawTransaction
	predictions []*Prediction
	predByNum   map[string]*Prediction
	nextRawID   int64
	nextPredID  int64
}

// NewMemoryStore creates an empty in-memory ledger store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rawByNum:   make(map[string]*RawTransaction),
		predByNum:  make(map[string]*Prediction),
		nextRawID:  1,
		nextPredID: 1,
	}
}

// Compile-time interface check
var _ Store = (*MemoryStore)(nil)

func (m *MemoryStore) InsertRaw(ctx context.Context, tx *RawTransaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.rawByNum[tx.TransNum]; exists {
		return ErrDuplicateTransaction
	}

	tx.ID = m.nextRawID
	m.nextRawID++
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now().UTC()
	}

	copied := *tx
	m.raw = append(m.raw, &copied)
	m.rawByNum[tx.TransNum] = &copied
	return nil
}

func (m *MemoryStore) LatestRaw(ctx context.Context) (*RawTransaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.raw) == 0 {
		return nil, ErrNotFound
	}
	copied := *m.raw[len(m.raw)-1]
	return &copied, nil
}

func (m *MemoryStore) NextUnscored(ctx context.Context) (*RawTransaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	// Newest first, skip anything already scored.
	for i := len(m.raw) - 1; i >= 0; i-- {
		if _, scored := m.predByNum[m.raw[i].TransNum]; !scored {
			copied := *m.raw[i]
			return &copied, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) InsertPrediction(ctx context.Context, p *Prediction) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.predByNum[p.TransNum]; exists {
		return ErrAlreadyScored
	}

	p.ID = m.nextPredID
	m.nextPredID++
	p.CreatedAt = time.Now().UTC()

	copied := *p
	m.predictions = append(m.predictions, &copied)
	m.predByNum[p.TransNum] = &copied
	return nil
}

func (m *MemoryStore) LatestPrediction(ctx context.Context) (*Prediction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.predictions) == 0 {
		return nil, ErrNotFound
	}
	copied := *m.predictions[len(m.predictions)-1]
	return &copied, nil
}

func (m *MemoryStore) ListPredictions(ctx context.Context, limit int) ([]*Prediction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if limit <= 0 || limit > len(m.predictions) {
		limit = len(m.predictions)
	}

	result := make([]*Prediction, 0, limit)
	for i := len(m.predictions) - 1; i >= 0 && len(result) < limit; i-- {
		copied := *m.predictions[i]
		result = append(result, &copied)
	}
	return result, nil
}
