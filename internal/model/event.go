package model

import "time"

// Event is an immutable audit record written alongside every status
// mutation. Events are never updated or deleted.
type Event struct {
	ID            int64     `json:"id" db:"id"`
	ResourceID    string    `json:"resource_id" db:"resource_id"`
	ResourceType  string    `json:"resource_type" db:"resource_type"`
	ResourceState string    `json:"resource_state" db:"resource_state"`
	EventType     string    `json:"event_type" db:"event_type"`
	Timestamp     time.Time `json:"timestamp" db:"timestamp"`
	Details       string    `json:"details" db:"details"`
}
