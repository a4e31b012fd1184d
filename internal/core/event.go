package core

import (
	"context"
	"fmt"
	"time"

	"github.com/edvin/apmec/internal/model"
)

// EventService appends to and reads the audit event log.
type EventService struct {
	db DB
}

func NewEventService(db DB) *EventService {
	return &EventService{db: db}
}

// Record appends one event. Errors are returned but callers on hot paths
// typically log and continue: a failed audit write must not fail the
// transition it describes.
func (s *EventService) Record(ctx context.Context, resourceID, resourceType, resourceState, eventType, details string) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO events (resource_id, resource_type, resource_state, event_type, timestamp, details)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		resourceID, resourceType, resourceState, eventType, time.Now().UTC(), details,
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// EventFilter narrows a List call. Zero-value fields are ignored.
type EventFilter struct {
	ResourceID   string
	ResourceType string
	EventType    string
	Limit        int
}

func (s *EventService) List(ctx context.Context, filter EventFilter) ([]model.Event, error) {
	query := `SELECT id, resource_id, resource_type, resource_state, event_type, timestamp, details
		 FROM events WHERE 1=1`
	var args []any

	if filter.ResourceID != "" {
		args = append(args, filter.ResourceID)
		query += fmt.Sprintf(" AND resource_id = $%d", len(args))
	}
	if filter.ResourceType != "" {
		args = append(args, filter.ResourceType)
		query += fmt.Sprintf(" AND resource_type = $%d", len(args))
	}
	if filter.EventType != "" {
		args = append(args, filter.EventType)
		query += fmt.Sprintf(" AND event_type = $%d", len(args))
	}

	query += " ORDER BY id DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var events []model.Event
	for rows.Next() {
		var e model.Event
		if err := rows.Scan(&e.ID, &e.ResourceID, &e.ResourceType, &e.ResourceState,
			&e.EventType, &e.Timestamp, &e.Details); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}
