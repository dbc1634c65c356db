package domain

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/bwmarrin/snowflake"
	printjobdomain "github.com/smallbiznis/printfleet/internal/printjob/domain"
	"github.com/smallbiznis/printfleet/pkg/db/pagination"
)

type CaptureRequest struct {
	PrinterID     snowflake.ID   `json:"printer_id"`
	ExternalJobID string         `json:"external_job_id"`
	FileName      string         `json:"file_name"`
	Pages         int            `json:"pages"`
	Copies        int            `json:"copies"`
	IsColor       bool           `json:"is_color"`
	PaperSize     string         `json:"paper_size"`
	PaperType     string         `json:"paper_type"`
	Quality       string         `json:"quality"`
	UserID        *snowflake.ID  `json:"user_id,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	Source        Source         `json:"source,omitempty"`
}

type ListRequest struct {
	PrinterID snowflake.ID
	Status    string
	pagination.Pagination
}

type ListResponse struct {
	Captures []Capture `json:"captures"`
	pagination.PageInfo
}

type Service interface {
	CaptureJob(ctx context.Context, req CaptureRequest) (Capture, error)
	// ProcessCapture bills a capture exactly once. A userID overrides the
	// user stored on the capture. Calling it on a terminal capture returns
	// the recorded outcome unchanged.
	ProcessCapture(ctx context.Context, captureID snowflake.ID, userID *snowflake.ID) (Outcome, error)
	GetCapture(ctx context.Context, id snowflake.ID) (Capture, error)
	ListCaptures(ctx context.Context, req ListRequest) (ListResponse, error)
	SetDepartmentRate(ctx context.Context, department string, blackAndWhite, color float64) (*printjobdomain.PrintCost, error)
}

var (
	ErrInvalidCapture   = errors.New("invalid_capture")
	ErrDuplicateCapture = errors.New("duplicate_capture")
	ErrNotFound         = errors.New("not_found")
	ErrUserNotFound     = errors.New("user_not_found")
	ErrQuotaNotFound    = errors.New("quota_not_found")
	ErrQuotaExceeded    = errors.New("quota_exceeded")
)

// ValidationError lists the rejected fields of a capture request.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s %s", k, e.Fields[k]))
	}
	return fmt.Sprintf("%s: %s", ErrInvalidCapture, strings.Join(parts, ", "))
}

func (e *ValidationError) Unwrap() error { return ErrInvalidCapture }

// FieldErrors exposes the per field messages to transport layers.
func (e *ValidationError) FieldErrors() map[string]string { return e.Fields }
