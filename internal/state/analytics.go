package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/elys-network/fundmanager/internal/types"
)

// FundSummary is the long-run view of the fund built from the journal.
type FundSummary struct {
	LatestTotalValue float64                 `json:"latest_total_value"`
	LatestUnitValue  float64                 `json:"latest_gross_unit_value"`
	LastSnapshotAt   string                  `json:"last_snapshot_at"`
	TotalSnapshots   int                     `json:"total_snapshots"`
	CurrentCycle     int                     `json:"current_cycle"`
	EventsByKind     map[types.EventKind]int `json:"events_by_kind"`
}

// GetFundSummary aggregates the latest snapshot, the cycle counter and the event counts.
func GetFundSummary(ctx context.Context) (*FundSummary, error) {
	if DB == nil {
		return nil, ErrDBNotInitialized
	}

	summary := &FundSummary{EventsByKind: make(map[types.EventKind]int)}

	query := `
		SELECT total_value_usd, gross_unit_value, taken_at
		FROM fund_snapshots
		ORDER BY taken_at DESC
		LIMIT 1
	`
	var lastSnapshot sql.NullString
	err := DB.QueryRowContext(ctx, query).Scan(&summary.LatestTotalValue, &summary.LatestUnitValue, &lastSnapshot)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to get latest fund snapshot: %w", err)
	}
	if lastSnapshot.Valid {
		summary.LastSnapshotAt = lastSnapshot.String
	}

	if err := DB.QueryRowContext(ctx, "SELECT COUNT(*) FROM fund_snapshots").Scan(&summary.TotalSnapshots); err != nil {
		log.Error().Err(err).Msg("Failed to count fund snapshots")
	}

	if summary.CurrentCycle, err = GetCurrentCycleNumber(ctx); err != nil {
		log.Error().Err(err).Msg("Failed to read cycle counter")
	}

	rows, err := DB.QueryContext(ctx, "SELECT kind, COUNT(*) FROM fund_events GROUP BY kind")
	if err != nil {
		return nil, fmt.Errorf("failed to count fund events: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var kind string
		var count int
		if err := rows.Scan(&kind, &count); err != nil {
			return nil, fmt.Errorf("failed to scan event count: %w", err)
		}
		summary.EventsByKind[types.EventKind(kind)] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}

	log.Debug().Float64("totalValue", summary.LatestTotalValue).Int("snapshots", summary.TotalSnapshots).Msg("Retrieved fund summary")
	return summary, nil
}
