// ./internal/state/snapshot_store.go
package state

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/lib/pq" // PostgreSQL driver for array support
	"github.com/rs/zerolog/log"

	"github.com/elys-network/fundmanager/internal/types"
)

// SaveFundSnapshot stores snapshot tagged with cycleNumber and returns its id.
func SaveFundSnapshot(ctx context.Context, cycleNumber int, snapshot types.FundSnapshot) (int64, error) {
	if DB == nil {
		return 0, ErrDBNotInitialized
	}

	snapshotJSON, err := json.Marshal(snapshot)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal fund snapshot: %w", err)
	}

	query := `
		INSERT INTO fund_snapshots (
			cycle_number, taken_at, total_value_usd, unit_supply, gross_unit_value,
			position_names, snapshot
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING snapshot_id;
	`

	var snapshotID int64
	err = DB.QueryRowContext(ctx, query,
		cycleNumber, snapshot.Timestamp,
		snapshot.TotalValue.String(), snapshot.UnitSupply.String(), snapshot.GrossUnitValue.String(),
		pq.Array(snapshot.PositionNames()), snapshotJSON,
	).Scan(&snapshotID)
	if err != nil {
		return 0, fmt.Errorf("failed to save fund snapshot: %w", err)
	}

	log.Info().
		Int64("snapshot_id", snapshotID).
		Int("cycle_number", cycleNumber).
		Str("total_value", snapshot.TotalValue.String()).
		Msg("Fund snapshot saved to database")

	return snapshotID, nil
}

// RecentSnapshots returns the latest stored snapshots, newest first.
func RecentSnapshots(ctx context.Context, limit int) ([]types.StoredSnapshot, error) {
	if DB == nil {
		return nil, ErrDBNotInitialized
	}
	if limit <= 0 || limit > maxPageSize {
		limit = 10
	}

	query := `
		SELECT
			snapshot_id, cycle_number, taken_at,
			total_value_usd, unit_supply, gross_unit_value,
			position_names, snapshot
		FROM fund_snapshots
		ORDER BY taken_at DESC
		LIMIT $1
	`
	rows, err := DB.QueryContext(ctx, query, limit)
	if err != nil {
		log.Error().Err(err).Msg("Failed to query recent fund snapshots")
		return nil, fmt.Errorf("failed to query recent fund snapshots: %w", err)
	}
	defer rows.Close()

	var snapshots []types.StoredSnapshot
	for rows.Next() {
		var s types.StoredSnapshot
		var raw []byte
		err := rows.Scan(
			&s.SnapshotID, &s.CycleNumber, &s.TakenAt,
			&s.TotalValue, &s.UnitSupply, &s.GrossValue,
			pq.Array(&s.Positions), &raw,
		)
		if err != nil {
			log.Error().Err(err).Msg("Failed to scan fund snapshot row")
			continue
		}
		s.Snapshot = json.RawMessage(raw)
		snapshots = append(snapshots, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}

	return snapshots, nil
}
