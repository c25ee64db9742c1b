package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"yield-adapter-lab/internal/domain"
	"yield-adapter-lab/internal/storage"
)

// HarvestReportStore implements storage.HarvestReportStore using PostgreSQL.
type HarvestReportStore struct {
	pool *Pool
}

// NewHarvestReportStore creates a new HarvestReportStore.
func NewHarvestReportStore(pool *Pool) *HarvestReportStore {
	return &HarvestReportStore{pool: pool}
}

// Compile-time interface check.
var _ storage.HarvestReportStore = (*HarvestReportStore)(nil)

// rewardRow is the JSONB shape of one reward entry.
type rewardRow struct {
	Token  string `json:"token"`
	Amount string `json:"amount"`
}

const harvestReportColumns = `
	report_id, run_id, adapter_name, adapter_kind, sequence, block_number, timestamp,
	idle_deployed, staked, total_assets, prev_total, profit, loss, rewards
`

// Insert adds a new report. Returns ErrDuplicateKey if report_id exists.
func (s *HarvestReportStore) Insert(ctx context.Context, r *domain.HarvestReport) error {
	rewards, err := encodeRewards(r.Rewards)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO harvest_reports (` + harvestReportColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`

	_, err = s.pool.Exec(ctx, query,
		r.ReportID,
		r.RunID,
		r.AdapterName,
		string(r.AdapterKind),
		r.Sequence,
		int64(r.BlockNumber),
		r.Timestamp,
		toNumeric(r.IdleDeployed),
		toNumeric(r.Staked),
		toNumeric(r.TotalAssets),
		toNumeric(r.PrevTotal),
		toNumeric(r.Profit),
		toNumeric(r.Loss),
		rewards,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert harvest report: %w", err)
	}
	return nil
}

// GetByID retrieves a report by its ID. Returns ErrNotFound if not exists.
func (s *HarvestReportStore) GetByID(ctx context.Context, reportID string) (*domain.HarvestReport, error) {
	query := `SELECT ` + harvestReportColumns + ` FROM harvest_reports WHERE report_id = $1`

	r, err := scanHarvestReport(s.pool.QueryRow(ctx, query, reportID))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get harvest report by id: %w", err)
	}
	return r, nil
}

// GetByAdapter retrieves all reports of an adapter, ordered by block_number, sequence ASC.
func (s *HarvestReportStore) GetByAdapter(ctx context.Context, adapterName string) ([]*domain.HarvestReport, error) {
	query := `
		SELECT ` + harvestReportColumns + `
		FROM harvest_reports
		WHERE adapter_name = $1
		ORDER BY block_number ASC, sequence ASC
	`

	rows, err := s.pool.Query(ctx, query, adapterName)
	if err != nil {
		return nil, fmt.Errorf("get harvest reports by adapter: %w", err)
	}
	defer rows.Close()

	return scanHarvestReports(rows)
}

// GetByRun retrieves all reports of a run, ordered by block_number, adapter_name, sequence ASC.
func (s *HarvestReportStore) GetByRun(ctx context.Context, runID string) ([]*domain.HarvestReport, error) {
	query := `
		SELECT ` + harvestReportColumns + `
		FROM harvest_reports
		WHERE run_id = $1
		ORDER BY block_number ASC, adapter_name ASC, sequence ASC
	`

	rows, err := s.pool.Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("get harvest reports by run: %w", err)
	}
	defer rows.Close()

	return scanHarvestReports(rows)
}

// GetAll retrieves every report, ordered by block_number, adapter_name, sequence ASC.
func (s *HarvestReportStore) GetAll(ctx context.Context) ([]*domain.HarvestReport, error) {
	query := `
		SELECT ` + harvestReportColumns + `
		FROM harvest_reports
		ORDER BY block_number ASC, adapter_name ASC, sequence ASC
	`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("get all harvest reports: %w", err)
	}
	defer rows.Close()

	return scanHarvestReports(rows)
}

func encodeRewards(rewards []domain.RewardAmount) ([]byte, error) {
	out := make([]rewardRow, 0, len(rewards))
	for _, rw := range rewards {
		amount := "0"
		if rw.Amount != nil {
			amount = rw.Amount.String()
		}
		out = append(out, rewardRow{Token: rw.Token.Hex(), Amount: amount})
	}
	data, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("marshal rewards: %w", err)
	}
	return data, nil
}

func decodeRewards(data []byte) ([]domain.RewardAmount, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var rows []rewardRow
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("unmarshal rewards: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	out := make([]domain.RewardAmount, 0, len(rows))
	for _, row := range rows {
		amount, ok := new(big.Int).SetString(row.Amount, 10)
		if !ok {
			return nil, fmt.Errorf("invalid reward amount %q", row.Amount)
		}
		out = append(out, domain.RewardAmount{Token: common.HexToAddress(row.Token), Amount: amount})
	}
	return out, nil
}

// scanHarvestReport scans a single row into a HarvestReport.
func scanHarvestReport(row pgx.Row) (*domain.HarvestReport, error) {
	var r domain.HarvestReport
	var kind string
	var block int64
	var idle, staked, total, prev, profit, loss pgtype.Numeric
	var rewards []byte

	err := row.Scan(
		&r.ReportID,
		&r.RunID,
		&r.AdapterName,
		&kind,
		&r.Sequence,
		&block,
		&r.Timestamp,
		&idle,
		&staked,
		&total,
		&prev,
		&profit,
		&loss,
		&rewards,
	)
	if err != nil {
		return nil, err
	}

	r.AdapterKind = domain.AdapterKind(kind)
	r.BlockNumber = uint64(block)

	targets := []struct {
		dst **big.Int
		src pgtype.Numeric
	}{
		{&r.IdleDeployed, idle},
		{&r.Staked, staked},
		{&r.TotalAssets, total},
		{&r.PrevTotal, prev},
		{&r.Profit, profit},
		{&r.Loss, loss},
	}
	for _, t := range targets {
		v, err := fromNumeric(t.src)
		if err != nil {
			return nil, fmt.Errorf("decode report %s: %w", r.ReportID, err)
		}
		*t.dst = v
	}

	if r.Rewards, err = decodeRewards(rewards); err != nil {
		return nil, err
	}
	return &r, nil
}

// scanHarvestReports scans multiple rows into a slice of HarvestReport.
func scanHarvestReports(rows pgx.Rows) ([]*domain.HarvestReport, error) {
	var reports []*domain.HarvestReport

	for rows.Next() {
		r, err := scanHarvestReport(rows)
		if err != nil {
			return nil, fmt.Errorf("scan harvest report row: %w", err)
		}
		reports = append(reports, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate harvest report rows: %w", err)
	}

	return reports, nil
}
