package memory

import (
	"context"
	"sort"
	"sync"

	"yield-adapter-lab/internal/domain"
	"yield-adapter-lab/internal/storage"
)

// OperationStore is an in-memory implementation of storage.OperationStore.
type OperationStore struct {
	mu   sync.RWMutex
	data map[string]*domain.OperationRecord // keyed by operation_id
}

// NewOperationStore creates a new in-memory operation store.
func NewOperationStore() *OperationStore {
	return &OperationStore{
		data: make(map[string]*domain.OperationRecord),
	}
}

func validOperation(op *domain.OperationRecord) bool {
	return op != nil && op.OperationID != "" && op.RunID != "" && op.Op != ""
}

// Insert adds a new operation. Returns ErrDuplicateKey if operation_id exists.
func (s *OperationStore) Insert(_ context.Context, op *domain.OperationRecord) error {
	if !validOperation(op) {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[op.OperationID]; exists {
		return storage.ErrDuplicateKey
	}

	s.data[op.OperationID] = cloneOperation(op)
	return nil
}

// InsertBulk adds multiple operations atomically. Fails entire batch on any duplicate.
func (s *OperationStore) InsertBulk(_ context.Context, ops []*domain.OperationRecord) error {
	if len(ops) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Track keys in this batch to detect intra-batch duplicates
	batchKeys := make(map[string]struct{}, len(ops))

	for _, op := range ops {
		if !validOperation(op) {
			return storage.ErrInvalidInput
		}
		if _, exists := s.data[op.OperationID]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batchKeys[op.OperationID]; exists {
			return storage.ErrDuplicateKey
		}
		batchKeys[op.OperationID] = struct{}{}
	}

	for _, op := range ops {
		s.data[op.OperationID] = cloneOperation(op)
	}

	return nil
}

// GetByRun retrieves all operations of a run, ordered by index ASC.
func (s *OperationStore) GetByRun(_ context.Context, runID string) ([]*domain.OperationRecord, error) {
	return s.filter(func(op *domain.OperationRecord) bool { return op.RunID == runID }), nil
}

// GetByAdapter retrieves all operations of an adapter within a run, ordered by index ASC.
func (s *OperationStore) GetByAdapter(_ context.Context, runID, adapterName string) ([]*domain.OperationRecord, error) {
	return s.filter(func(op *domain.OperationRecord) bool {
		return op.RunID == runID && op.AdapterName == adapterName
	}), nil
}

func (s *OperationStore) filter(keep func(*domain.OperationRecord) bool) []*domain.OperationRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.OperationRecord
	for _, op := range s.data {
		if keep(op) {
			result = append(result, cloneOperation(op))
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Index < result[j].Index
	})

	return result
}

var _ storage.OperationStore = (*OperationStore)(nil)
