// ./internal/state/journal.go
package state

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/elys-network/fundmanager/internal/types"
)

const maxPageSize = 100

// Journal persists fund events. It is registered as an event sink of the fund manager.
type Journal struct{}

// Publish stores events in a single database transaction.
func (Journal) Publish(ctx context.Context, events []types.Event) error {
	return SaveEvents(ctx, events)
}

// SaveEvents stores events atomically. Replaying an event with a known id is a no-op.
func SaveEvents(ctx context.Context, events []types.Event) error {
	if DB == nil {
		return ErrDBNotInitialized
	}
	if len(events) == 0 {
		return nil
	}

	tx, err := DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin journal transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	query := `
		INSERT INTO fund_events (event_id, kind, operation, occurred_at, payload)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (event_id) DO NOTHING;
	`
	for _, e := range events {
		payload, err := json.Marshal(e.Payload)
		if err != nil {
			return fmt.Errorf("failed to marshal %s payload: %w", e.Kind, err)
		}
		if _, err := tx.ExecContext(ctx, query, e.ID, string(e.Kind), e.Operation, e.Timestamp, payload); err != nil {
			return fmt.Errorf("failed to save %s event: %w", e.Kind, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit journal transaction: %w", err)
	}

	log.Debug().Int("events", len(events)).Str("operation", events[0].Operation).Msg("Journaled fund events")
	return nil
}

// RecentEvents returns the latest events, newest first. An empty kind returns every kind.
func RecentEvents(ctx context.Context, kind types.EventKind, limit int) ([]types.JournalEntry, error) {
	if DB == nil {
		return nil, ErrDBNotInitialized
	}
	if limit <= 0 || limit > maxPageSize {
		limit = 20
	}

	query := `
		SELECT event_id, kind, operation, occurred_at, payload
		FROM fund_events
		WHERE ($1 = '' OR kind = $1)
		ORDER BY occurred_at DESC
		LIMIT $2
	`
	rows, err := DB.QueryContext(ctx, query, string(kind), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query fund events: %w", err)
	}
	defer rows.Close()

	entries := make([]types.JournalEntry, 0, limit)
	for rows.Next() {
		var entry types.JournalEntry
		var kindStr string
		var payload []byte
		if err := rows.Scan(&entry.ID, &kindStr, &entry.Operation, &entry.OccurredAt, &payload); err != nil {
			log.Error().Err(err).Msg("Failed to scan fund event row")
			continue
		}
		entry.Kind = types.EventKind(kindStr)
		entry.Payload = json.RawMessage(payload)
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return entries, nil
}
