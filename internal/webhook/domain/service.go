package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	capturedomain "github.com/smallbiznis/printfleet/internal/capture/domain"
	printjobdomain "github.com/smallbiznis/printfleet/internal/printjob/domain"
)

// Result describes what intake did with one delivery. A processing failure
// such as an exhausted quota is reported here, not as an error, because the
// capture itself was accepted.
type Result struct {
	DeliveryID string                   `json:"delivery_id"`
	Duplicate  bool                     `json:"duplicate"`
	Capture    *capturedomain.Capture   `json:"capture,omitempty"`
	Job        *printjobdomain.PrintJob `json:"job,omitempty"`
	ErrorCode  string                   `json:"error_code,omitempty"`
}

type Service interface {
	ProcessWebhook(ctx context.Context, printerID snowflake.ID, rawBody []byte, signature string) (Result, error)
	ListDeliveries(ctx context.Context, printerID snowflake.ID, limit int) ([]Delivery, error)
}

var (
	ErrSignatureInvalid = errors.New("signature_invalid")
	ErrInvalidPayload   = errors.New("invalid_payload")
)
