package memory

import (
	"context"
	"sort"
	"sync"

	"yield-adapter-lab/internal/domain"
	"yield-adapter-lab/internal/storage"
)

// snapshotKey is the composite key for stake snapshots.
type snapshotKey struct {
	RunID       string
	AdapterName string
	BlockNumber uint64
}

// StakeSnapshotStore is an in-memory implementation of storage.StakeSnapshotStore.
type StakeSnapshotStore struct {
	mu   sync.RWMutex
	data map[snapshotKey]*domain.StakeSnapshot
}

// NewStakeSnapshotStore creates a new in-memory stake snapshot store.
func NewStakeSnapshotStore() *StakeSnapshotStore {
	return &StakeSnapshotStore{
		data: make(map[snapshotKey]*domain.StakeSnapshot),
	}
}

// InsertBulk adds multiple snapshots. Fails entire batch on duplicate key.
func (s *StakeSnapshotStore) InsertBulk(_ context.Context, snapshots []*domain.StakeSnapshot) error {
	if len(snapshots) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	batchKeys := make(map[snapshotKey]struct{}, len(snapshots))
	for _, snap := range snapshots {
		if snap == nil || snap.RunID == "" || snap.AdapterName == "" {
			return storage.ErrInvalidInput
		}
		key := snapshotKey{snap.RunID, snap.AdapterName, snap.BlockNumber}
		if _, exists := s.data[key]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batchKeys[key]; exists {
			return storage.ErrDuplicateKey
		}
		batchKeys[key] = struct{}{}
	}

	for _, snap := range snapshots {
		s.data[snapshotKey{snap.RunID, snap.AdapterName, snap.BlockNumber}] = cloneSnapshot(snap)
	}

	return nil
}

// GetByAdapter retrieves all snapshots of an adapter within a run, ordered by block_number ASC.
func (s *StakeSnapshotStore) GetByAdapter(_ context.Context, runID, adapterName string) ([]*domain.StakeSnapshot, error) {
	return s.filter(runID, adapterName, 0, ^uint64(0)), nil
}

// GetByBlockRange retrieves snapshots of an adapter within [start, end] (inclusive).
func (s *StakeSnapshotStore) GetByBlockRange(_ context.Context, runID, adapterName string, start, end uint64) ([]*domain.StakeSnapshot, error) {
	return s.filter(runID, adapterName, start, end), nil
}

func (s *StakeSnapshotStore) filter(runID, adapterName string, start, end uint64) []*domain.StakeSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.StakeSnapshot
	for key, snap := range s.data {
		if key.RunID == runID && key.AdapterName == adapterName &&
			key.BlockNumber >= start && key.BlockNumber <= end {
			result = append(result, cloneSnapshot(snap))
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].BlockNumber < result[j].BlockNumber
	})

	return result
}

var _ storage.StakeSnapshotStore = (*StakeSnapshotStore)(nil)
