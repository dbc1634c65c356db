package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type Status string

const (
	StatusOnline   Status = "ONLINE"
	StatusOffline  Status = "OFFLINE"
	StatusPrinting Status = "PRINTING"
	StatusError    Status = "ERROR"
	StatusWarning  Status = "WARNING"
)

// Levels maps a supply or tray name to a 0..100 percentage.
type Levels map[string]int

// Printer is the device record status snapshots are folded into.
type Printer struct {
	ID              snowflake.ID                `gorm:"primaryKey" json:"id"`
	Name            string                      `gorm:"not null" json:"name"`
	Model           string                      `json:"model,omitempty"`
	Location        string                      `json:"location,omitempty"`
	Department      string                      `gorm:"index" json:"department,omitempty"`
	Status          Status                      `gorm:"type:varchar(16);not null;default:'OFFLINE'" json:"status"`
	TonerLevels     datatypes.JSONType[Levels]  `json:"toner_levels"`
	PaperLevels     datatypes.JSONType[Levels]  `json:"paper_levels"`
	ErrorMessages   datatypes.JSONSlice[string] `json:"error_messages,omitempty"`
	JobQueue        int                         `gorm:"not null;default:0" json:"job_queue"`
	TotalPagesMonth int                         `gorm:"not null;default:0" json:"total_pages_month"`
	LastUpdated     *time.Time                  `json:"last_updated,omitempty"`
	CreatedAt       time.Time                   `gorm:"not null" json:"created_at"`
	UpdatedAt       time.Time                   `gorm:"not null" json:"updated_at"`
}

func (Printer) TableName() string { return "printers" }

// PrinterStatus is one complete device snapshot returned by a connector.
// Connectors return either a full snapshot or an error, never a partial one.
type PrinterStatus struct {
	Status          Status         `json:"status"`
	TonerLevels     map[string]int `json:"toner_levels,omitempty"`
	PaperLevels     map[string]int `json:"paper_levels,omitempty"`
	ErrorMessages   []string       `json:"error_messages,omitempty"`
	JobQueue        int            `json:"job_queue"`
	TotalPagesMonth int            `json:"total_pages_month"`
	LastUpdated     time.Time      `json:"last_updated"`
}

func IsValidStatus(s Status) bool {
	switch s {
	case StatusOnline, StatusOffline, StatusPrinting, StatusError, StatusWarning:
		return true
	default:
		return false
	}
}
