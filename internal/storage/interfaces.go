package storage

import (
	"context"

	"yield-adapter-lab/internal/domain"
)

// HarvestReportStore provides access to harvest_reports storage.
type HarvestReportStore interface {
	// Insert adds a new report. Returns ErrDuplicateKey if report_id exists.
	Insert(ctx context.Context, r *domain.HarvestReport) error

	// GetByID retrieves a report by its ID. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, reportID string) (*domain.HarvestReport, error)

	// GetByAdapter retrieves all reports of an adapter, ordered by block_number, sequence ASC.
	GetByAdapter(ctx context.Context, adapterName string) ([]*domain.HarvestReport, error)

	// GetByRun retrieves all reports of a run, ordered by block_number, adapter_name, sequence ASC.
	GetByRun(ctx context.Context, runID string) ([]*domain.HarvestReport, error)

	// GetAll retrieves every report, ordered by block_number, adapter_name, sequence ASC.
	GetAll(ctx context.Context) ([]*domain.HarvestReport, error)
}

// OperationStore provides access to adapter_operations storage.
type OperationStore interface {
	// Insert adds a new operation. Returns ErrDuplicateKey if operation_id exists.
	Insert(ctx context.Context, op *domain.OperationRecord) error

	// InsertBulk adds multiple operations atomically. Fails entire batch on any duplicate.
	InsertBulk(ctx context.Context, ops []*domain.OperationRecord) error

	// GetByRun retrieves all operations of a run, ordered by index ASC.
	GetByRun(ctx context.Context, runID string) ([]*domain.OperationRecord, error)

	// GetByAdapter retrieves all operations of an adapter within a run, ordered by index ASC.
	GetByAdapter(ctx context.Context, runID, adapterName string) ([]*domain.OperationRecord, error)
}

// StakeSnapshotStore provides access to stake_snapshots storage.
type StakeSnapshotStore interface {
	// InsertBulk adds multiple snapshots. Fails entire batch on duplicate (run_id, adapter_name, block_number).
	InsertBulk(ctx context.Context, snapshots []*domain.StakeSnapshot) error

	// GetByAdapter retrieves all snapshots of an adapter within a run, ordered by block_number ASC.
	GetByAdapter(ctx context.Context, runID, adapterName string) ([]*domain.StakeSnapshot, error)

	// GetByBlockRange retrieves snapshots of an adapter within [start, end] (inclusive).
	GetByBlockRange(ctx context.Context, runID, adapterName string, start, end uint64) ([]*domain.StakeSnapshot, error)
}
