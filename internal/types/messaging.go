package types

import "time"

// IdentificationEvent is published to SQS after an identification is stored.
// The identification worker aggregates these into CloudWatch metrics.
type IdentificationEvent struct {
	EventID          string    `json:"event_id"`
	TraceID          string    `json:"trace_id"`
	IdentificationID int64     `json:"identification_id"`
	UserID           *int64    `json:"user_id,omitempty"`
	Name             string    `json:"name"`
	Type             string    `json:"type,omitempty"`
	HarmLevel        string    `json:"harm_level,omitempty"`
	Confidence       float64   `json:"confidence"`
	ImageCount       int       `json:"image_count"`
	OccurredAt       time.Time `json:"occurred_at"`
}

// EventTypeIdentificationRecorded is the SQS "event_type" attribute value.
const EventTypeIdentificationRecorded = "IdentificationRecorded"
