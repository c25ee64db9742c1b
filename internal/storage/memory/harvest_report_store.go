package memory

import (
	"context"
	"sort"
	"sync"

	"yield-adapter-lab/internal/domain"
	"yield-adapter-lab/internal/storage"
)

// HarvestReportStore is an in-memory implementation of storage.HarvestReportStore.
type HarvestReportStore struct {
	mu   sync.RWMutex
	data map[string]*domain.HarvestReport // keyed by report_id
}

// NewHarvestReportStore creates a new in-memory harvest report store.
func NewHarvestReportStore() *HarvestReportStore {
	return &HarvestReportStore{
		data: make(map[string]*domain.HarvestReport),
	}
}

// Insert adds a new report. Returns ErrDuplicateKey if report_id exists.
func (s *HarvestReportStore) Insert(_ context.Context, r *domain.HarvestReport) error {
	if r == nil || r.ReportID == "" || r.AdapterName == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[r.ReportID]; exists {
		return storage.ErrDuplicateKey
	}

	s.data[r.ReportID] = cloneReport(r)
	return nil
}

// GetByID retrieves a report by its ID. Returns ErrNotFound if not exists.
func (s *HarvestReportStore) GetByID(_ context.Context, reportID string) (*domain.HarvestReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, exists := s.data[reportID]
	if !exists {
		return nil, storage.ErrNotFound
	}
	return cloneReport(r), nil
}

// GetByAdapter retrieves all reports of an adapter, ordered by block_number, sequence ASC.
func (s *HarvestReportStore) GetByAdapter(_ context.Context, adapterName string) ([]*domain.HarvestReport, error) {
	return s.filter(func(r *domain.HarvestReport) bool { return r.AdapterName == adapterName }), nil
}

// GetByRun retrieves all reports of a run.
func (s *HarvestReportStore) GetByRun(_ context.Context, runID string) ([]*domain.HarvestReport, error) {
	return s.filter(func(r *domain.HarvestReport) bool { return r.RunID == runID }), nil
}

// GetAll retrieves every report.
func (s *HarvestReportStore) GetAll(_ context.Context) ([]*domain.HarvestReport, error) {
	return s.filter(func(*domain.HarvestReport) bool { return true }), nil
}

func (s *HarvestReportStore) filter(keep func(*domain.HarvestReport) bool) []*domain.HarvestReport {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.HarvestReport
	for _, r := range s.data {
		if keep(r) {
			result = append(result, cloneReport(r))
		}
	}

	sort.Slice(result, func(i, j int) bool {
		a, b := result[i], result[j]
		if a.BlockNumber != b.BlockNumber {
			return a.BlockNumber < b.BlockNumber
		}
		if a.AdapterName != b.AdapterName {
			return a.AdapterName < b.AdapterName
		}
		return a.Sequence < b.Sequence
	})

	return result
}

var _ storage.HarvestReportStore = (*HarvestReportStore)(nil)
