package models

import "time"

type RecipientOutcome string

const (
	RecipientPending RecipientOutcome = "pending"
	RecipientSent    RecipientOutcome = "sent"
	RecipientFailed  RecipientOutcome = "failed"
)

type BroadcastStatus string

const (
	BroadcastRunning   BroadcastStatus = "running"
	BroadcastCompleted BroadcastStatus = "completed"
)

// BroadcastReport is a point-in-time snapshot of a fan-out job. Jobs are
// ephemeral; the report is the only thing callers ever see.
type BroadcastReport struct {
	JobID       string                      `json:"job_id"`
	EventID     string                      `json:"event_id"`
	Status      BroadcastStatus             `json:"status"`
	Total       int                         `json:"total"`
	Sent        int                         `json:"sent"`
	Failed      int                         `json:"failed"`
	Pending     int                         `json:"pending"`
	Outcomes    map[string]RecipientOutcome `json:"outcomes"`
	StartedAt   time.Time                   `json:"started_at"`
	CompletedAt *time.Time                  `json:"completed_at,omitempty"`
}
