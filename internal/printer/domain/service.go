package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

type CreateRequest struct {
	Name       string
	Model      string
	Location   string
	Department string
}

type Service interface {
	Create(ctx context.Context, req CreateRequest) (Printer, error)
	GetByID(ctx context.Context, id snowflake.ID) (Printer, error)
	// ApplyStatus folds a connector snapshot into the printer record.
	ApplyStatus(ctx context.Context, id snowflake.ID, status PrinterStatus) (Printer, error)
	// ApplyFailure marks the printer ERROR with the failure detail so the
	// record never keeps a stale healthy status.
	ApplyFailure(ctx context.Context, id snowflake.ID, detail string, at time.Time) (Printer, error)
}

var (
	ErrInvalidName   = errors.New("invalid_name")
	ErrInvalidStatus = errors.New("invalid_status")
	ErrNotFound      = errors.New("not_found")
)
