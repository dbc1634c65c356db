package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

type Service interface {
	GetJob(ctx context.Context, id snowflake.ID) (*PrintJob, error)
	// DepartmentRate returns the department's rates, or the configured
	// fallback rates when the department has none.
	DepartmentRate(ctx context.Context, department string) (PrintCost, error)
	SetDepartmentRate(ctx context.Context, department string, blackAndWhite, color float64) (*PrintCost, error)
}

var (
	ErrNotFound          = errors.New("not_found")
	ErrInvalidDepartment = errors.New("invalid_department")
	ErrInvalidRate       = errors.New("invalid_rate")
)
