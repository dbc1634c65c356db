package domain

import (
	"math"
	"time"

	"github.com/bwmarrin/snowflake"
)

const StatusCompleted = "COMPLETED"

// PrintJob is the billed record produced from exactly one processed capture.
// Cost is fixed at creation.
type PrintJob struct {
	ID         snowflake.ID `gorm:"primaryKey" json:"id"`
	CaptureID  snowflake.ID `gorm:"not null;uniqueIndex" json:"capture_id"`
	PrinterID  snowflake.ID `gorm:"not null;index" json:"printer_id"`
	UserID     snowflake.ID `gorm:"not null;index" json:"user_id"`
	Department string       `gorm:"index" json:"department,omitempty"`
	FileName   string       `gorm:"not null" json:"file_name"`
	Pages      int          `gorm:"not null" json:"pages"`
	Copies     int          `gorm:"not null" json:"copies"`
	TotalPages int          `gorm:"not null" json:"total_pages"`
	IsColor    bool         `gorm:"not null" json:"is_color"`
	PaperSize  string       `gorm:"not null" json:"paper_size"`
	PaperType  string       `gorm:"not null" json:"paper_type"`
	Quality    string       `gorm:"not null" json:"quality"`
	UnitCost   float64      `gorm:"type:numeric(12,4);not null" json:"unit_cost"`
	Cost       float64      `gorm:"type:numeric(12,2);not null" json:"cost"`
	Status     string       `gorm:"not null" json:"status"`
	CreatedAt  time.Time    `gorm:"not null" json:"created_at"`
}

func (PrintJob) TableName() string { return "print_jobs" }

// PrintCost holds one department's per page rates.
type PrintCost struct {
	Department        string    `gorm:"primaryKey" json:"department"`
	BlackAndWhitePage float64   `gorm:"type:numeric(12,4);not null" json:"black_and_white_page"`
	ColorPage         float64   `gorm:"type:numeric(12,4);not null" json:"color_page"`
	UpdatedAt         time.Time `gorm:"not null" json:"updated_at"`
}

func (PrintCost) TableName() string { return "print_costs" }

// Rate returns the per page rate for the requested color mode.
func (c PrintCost) Rate(color bool) float64 {
	if color {
		return c.ColorPage
	}
	return c.BlackAndWhitePage
}

// RoundCents rounds a currency amount to two decimal places, half away from zero.
func RoundCents(v float64) float64 {
	return math.Round(v*100) / 100
}

// Price computes the cost of totalPages at rate.
func Price(totalPages int, rate float64) float64 {
	return RoundCents(float64(totalPages) * rate)
}

// EffectiveRate picks the department's rate when one exists, otherwise the
// fallback rate.
func EffectiveRate(cost *PrintCost, fallback PrintCost, color bool) float64 {
	if cost != nil {
		return cost.Rate(color)
	}
	return fallback.Rate(color)
}
