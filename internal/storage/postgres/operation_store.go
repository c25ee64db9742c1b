package postgres

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"yield-adapter-lab/internal/domain"
	"yield-adapter-lab/internal/storage"
)

// OperationStore implements storage.OperationStore using PostgreSQL.
type OperationStore struct {
	pool *Pool
}

// NewOperationStore creates a new OperationStore.
func NewOperationStore(pool *Pool) *OperationStore {
	return &OperationStore{pool: pool}
}

// Compile-time interface check.
var _ storage.OperationStore = (*OperationStore)(nil)

const insertOperationQuery = `
	INSERT INTO adapter_operations (
		operation_id, run_id, op_index, adapter_name, op, caller, token, amount,
		block_number, status, revert_reason
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
`

const selectOperationColumns = `
	SELECT operation_id, run_id, op_index, adapter_name, op, caller, token, amount,
		block_number, status, revert_reason
	FROM adapter_operations
`

func operationArgs(op *domain.OperationRecord) []any {
	var token *string
	if op.Token != nil {
		hex := op.Token.Hex()
		token = &hex
	}
	return []any{
		op.OperationID,
		op.RunID,
		op.Index,
		op.AdapterName,
		op.Op,
		op.Caller.Hex(),
		token,
		toNumeric(op.Amount),
		int64(op.BlockNumber),
		op.Status,
		op.RevertReason,
	}
}

// Insert adds a new operation. Returns ErrDuplicateKey if operation_id exists.
func (s *OperationStore) Insert(ctx context.Context, op *domain.OperationRecord) error {
	_, err := s.pool.Exec(ctx, insertOperationQuery, operationArgs(op)...)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert operation: %w", err)
	}
	return nil
}

// InsertBulk adds multiple operations atomically. Fails entire batch on any duplicate.
func (s *OperationStore) InsertBulk(ctx context.Context, ops []*domain.OperationRecord) error {
	if len(ops) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, op := range ops {
		if _, err := tx.Exec(ctx, insertOperationQuery, operationArgs(op)...); err != nil {
			if isDuplicateKeyError(err) {
				return storage.ErrDuplicateKey
			}
			return fmt.Errorf("insert operation in bulk: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	return nil
}

// GetByRun retrieves all operations of a run, ordered by index ASC.
func (s *OperationStore) GetByRun(ctx context.Context, runID string) ([]*domain.OperationRecord, error) {
	query := selectOperationColumns + `
		WHERE run_id = $1
		ORDER BY op_index ASC
	`

	rows, err := s.pool.Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("get operations by run: %w", err)
	}
	defer rows.Close()

	return scanOperations(rows)
}

// GetByAdapter retrieves all operations of an adapter within a run, ordered by index ASC.
func (s *OperationStore) GetByAdapter(ctx context.Context, runID, adapterName string) ([]*domain.OperationRecord, error) {
	query := selectOperationColumns + `
		WHERE run_id = $1 AND adapter_name = $2
		ORDER BY op_index ASC
	`

	rows, err := s.pool.Query(ctx, query, runID, adapterName)
	if err != nil {
		return nil, fmt.Errorf("get operations by adapter: %w", err)
	}
	defer rows.Close()

	return scanOperations(rows)
}

// scanOperations scans multiple rows into a slice of OperationRecord.
func scanOperations(rows pgx.Rows) ([]*domain.OperationRecord, error) {
	var ops []*domain.OperationRecord

	for rows.Next() {
		var op domain.OperationRecord
		var caller string
		var token *string
		var amount pgtype.Numeric
		var block int64

		err := rows.Scan(
			&op.OperationID,
			&op.RunID,
			&op.Index,
			&op.AdapterName,
			&op.Op,
			&caller,
			&token,
			&amount,
			&block,
			&op.Status,
			&op.RevertReason,
		)
		if err != nil {
			return nil, fmt.Errorf("scan operation row: %w", err)
		}

		op.Caller = common.HexToAddress(caller)
		if token != nil {
			addr := common.HexToAddress(*token)
			op.Token = &addr
		}
		if op.Amount, err = fromNumeric(amount); err != nil {
			return nil, fmt.Errorf("decode operation %s: %w", op.OperationID, err)
		}
		op.BlockNumber = uint64(block)

		ops = append(ops, &op)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate operation rows: %w", err)
	}

	return ops, nil
}
