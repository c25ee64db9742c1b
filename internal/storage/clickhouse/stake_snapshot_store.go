package clickhouse

import (
	"context"
	"fmt"
	"math/big"

	"yield-adapter-lab/internal/domain"
	"yield-adapter-lab/internal/storage"
)

// StakeSnapshotStore implements storage.StakeSnapshotStore using ClickHouse.
type StakeSnapshotStore struct {
	conn *Conn
}

// NewStakeSnapshotStore creates a new StakeSnapshotStore.
func NewStakeSnapshotStore(conn *Conn) *StakeSnapshotStore {
	return &StakeSnapshotStore{conn: conn}
}

// Compile-time interface check.
var _ storage.StakeSnapshotStore = (*StakeSnapshotStore)(nil)

// InsertBulk adds multiple snapshots. Fails entire batch on duplicate (run_id, adapter_name, block_number).
func (s *StakeSnapshotStore) InsertBulk(ctx context.Context, snapshots []*domain.StakeSnapshot) error {
	if len(snapshots) == 0 {
		return nil
	}

	type key struct {
		runID   string
		adapter string
		block   uint64
	}
	seen := make(map[key]struct{}, len(snapshots))
	for _, sn := range snapshots {
		if sn.Staked == nil || sn.Idle == nil {
			return storage.ErrInvalidInput
		}
		k := key{sn.RunID, sn.AdapterName, sn.BlockNumber}
		if _, exists := seen[k]; exists {
			return storage.ErrDuplicateKey
		}
		seen[k] = struct{}{}
	}

	// MergeTree does not enforce uniqueness.
	for _, sn := range snapshots {
		exists, err := s.exists(ctx, sn.RunID, sn.AdapterName, sn.BlockNumber)
		if err != nil {
			return fmt.Errorf("check exists: %w", err)
		}
		if exists {
			return storage.ErrDuplicateKey
		}
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO stake_snapshots (
			run_id, adapter_name, block_number, timestamp, staked, idle
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, sn := range snapshots {
		err = batch.Append(
			sn.RunID, sn.AdapterName, sn.BlockNumber, sn.Timestamp,
			sn.Staked.String(), sn.Idle.String(),
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}

// GetByAdapter retrieves all snapshots of an adapter within a run, ordered by block_number ASC.
func (s *StakeSnapshotStore) GetByAdapter(ctx context.Context, runID, adapterName string) ([]*domain.StakeSnapshot, error) {
	query := `
		SELECT run_id, adapter_name, block_number, timestamp, staked, idle
		FROM stake_snapshots FINAL
		WHERE run_id = ? AND adapter_name = ?
		ORDER BY block_number ASC
	`

	rows, err := s.conn.Query(ctx, query, runID, adapterName)
	if err != nil {
		return nil, fmt.Errorf("query by adapter: %w", err)
	}
	defer rows.Close()

	return scanStakeSnapshots(rows)
}

// GetByBlockRange retrieves snapshots of an adapter within [start, end] (inclusive).
func (s *StakeSnapshotStore) GetByBlockRange(ctx context.Context, runID, adapterName string, start, end uint64) ([]*domain.StakeSnapshot, error) {
	query := `
		SELECT run_id, adapter_name, block_number, timestamp, staked, idle
		FROM stake_snapshots FINAL
		WHERE run_id = ? AND adapter_name = ? AND block_number >= ? AND block_number <= ?
		ORDER BY block_number ASC
	`

	rows, err := s.conn.Query(ctx, query, runID, adapterName, start, end)
	if err != nil {
		return nil, fmt.Errorf("query by block range: %w", err)
	}
	defer rows.Close()

	return scanStakeSnapshots(rows)
}

func (s *StakeSnapshotStore) exists(ctx context.Context, runID, adapterName string, block uint64) (bool, error) {
	query := `
		SELECT count(*) FROM stake_snapshots
		WHERE run_id = ? AND adapter_name = ? AND block_number = ?
	`

	var count uint64
	err := s.conn.QueryRow(ctx, query, runID, adapterName, block).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// scanStakeSnapshots scans multiple rows.
func scanStakeSnapshots(rows chRows) ([]*domain.StakeSnapshot, error) {
	var snapshots []*domain.StakeSnapshot

	for rows.Next() {
		var sn domain.StakeSnapshot
		var staked, idle string

		err := rows.Scan(
			&sn.RunID, &sn.AdapterName, &sn.BlockNumber, &sn.Timestamp,
			&staked, &idle,
		)
		if err != nil {
			return nil, fmt.Errorf("scan stake snapshot row: %w", err)
		}

		var ok bool
		if sn.Staked, ok = new(big.Int).SetString(staked, 10); !ok {
			return nil, fmt.Errorf("invalid staked amount %q", staked)
		}
		if sn.Idle, ok = new(big.Int).SetString(idle, 10); !ok {
			return nil, fmt.Errorf("invalid idle amount %q", idle)
		}
		snapshots = append(snapshots, &sn)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stake snapshot rows: %w", err)
	}

	return snapshots, nil
}
