package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type Outcome string

const (
	OutcomeAccepted  Outcome = "ACCEPTED"
	OutcomeDuplicate Outcome = "DUPLICATE"
	OutcomeRejected  Outcome = "REJECTED"
	OutcomeFailed    Outcome = "FAILED"
)

// Delivery is the append-only audit row of one intake attempt.
type Delivery struct {
	ID             string        `gorm:"primaryKey;size:26" json:"id"`
	PrinterID      snowflake.ID  `gorm:"not null;index" json:"printer_id"`
	ExternalJobID  string        `json:"external_job_id,omitempty"`
	SignatureValid *bool         `json:"signature_valid,omitempty"`
	Outcome        Outcome       `gorm:"not null" json:"outcome"`
	ErrorCode      string        `json:"error_code,omitempty"`
	CaptureID      *snowflake.ID `json:"capture_id,omitempty"`
	ReceivedAt     time.Time     `gorm:"not null;index" json:"received_at"`
}

func (Delivery) TableName() string { return "webhook_deliveries" }
