package domain

import (
	"math"
	"time"

	"github.com/bwmarrin/snowflake"
	printjobdomain "github.com/smallbiznis/printfleet/internal/printjob/domain"
	"gorm.io/datatypes"
)

type Status string

const (
	StatusCaptured  Status = "CAPTURED"
	StatusProcessed Status = "PROCESSED"
	StatusError     Status = "ERROR"
)

// Terminal reports whether no further transition is allowed.
func (s Status) Terminal() bool {
	return s == StatusProcessed || s == StatusError
}

type Source string

const (
	SourceAPI     Source = "API"
	SourceWebhook Source = "WEBHOOK"
)

const ErrorCodeQuotaExceeded = "quota_exceeded"

// MaxTotalPages bounds pages, copies and their product so page counts fit
// the INTEGER quota and job columns.
const MaxTotalPages = math.MaxInt32

// Capture is the raw record of a job observed at a printer, before billing.
type Capture struct {
	ID            snowflake.ID      `gorm:"primaryKey" json:"id"`
	PrinterID     snowflake.ID      `gorm:"not null;uniqueIndex:ux_capture_printer_external,priority:1" json:"printer_id"`
	ExternalJobID string            `gorm:"not null;uniqueIndex:ux_capture_printer_external,priority:2" json:"external_job_id"`
	FileName      string            `gorm:"not null" json:"file_name"`
	Pages         int               `gorm:"not null" json:"pages"`
	Copies        int               `gorm:"not null" json:"copies"`
	IsColor       bool              `gorm:"not null" json:"is_color"`
	PaperSize     string            `gorm:"not null" json:"paper_size"`
	PaperType     string            `gorm:"not null" json:"paper_type"`
	Quality       string            `gorm:"not null" json:"quality"`
	UserID        *snowflake.ID     `json:"user_id,omitempty"`
	Metadata      datatypes.JSONMap `json:"metadata,omitempty"`
	Status        Status            `gorm:"not null;index" json:"status"`
	ErrorCode     string            `json:"error_code,omitempty"`
	PrintJobID    *snowflake.ID     `json:"print_job_id,omitempty"`
	Source        Source            `gorm:"not null" json:"source"`
	CapturedAt    time.Time         `gorm:"not null;index" json:"captured_at"`
	ProcessedAt   *time.Time        `json:"processed_at,omitempty"`
}

func (Capture) TableName() string { return "print_job_captures" }

// TotalPages is the billable page count.
func (c Capture) TotalPages() int {
	return c.Pages * c.Copies
}

// Outcome is the result of reconciling one capture.
type Outcome struct {
	Capture Capture                  `json:"capture"`
	Job     *printjobdomain.PrintJob `json:"job,omitempty"`
}
