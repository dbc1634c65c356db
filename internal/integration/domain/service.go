package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

type CreateRequest struct {
	PrinterID     snowflake.ID
	Type          string
	Endpoint      string
	AuthType      string
	Credentials   Credentials
	WebhookSecret string
	PollInterval  int
	IsActive      *bool
}

// UpdateRequest is a partial update; nil fields are left untouched.
type UpdateRequest struct {
	Endpoint      *string
	AuthType      *string
	Credentials   *Credentials
	WebhookSecret *string
	PollInterval  *int
	IsActive      *bool
}

type Service interface {
	Create(ctx context.Context, req CreateRequest) (Integration, error)
	// Get returns the printer's integration for typ. An empty typ selects the
	// most recently updated active integration of any protocol.
	Get(ctx context.Context, printerID snowflake.ID, typ string) (Integration, error)
	GetByID(ctx context.Context, id snowflake.ID) (Integration, error)
	Update(ctx context.Context, id snowflake.ID, req UpdateRequest) (Integration, error)
	Delete(ctx context.Context, id snowflake.ID) error
	ListActive(ctx context.Context) ([]Integration, error)
	MarkSynced(ctx context.Context, id snowflake.ID, at time.Time) error
	RecordError(ctx context.Context, id snowflake.ID, message string) error

	// ConnectorConfig opens the integration's credentials for a connector build.
	ConnectorConfig(ctx context.Context, id snowflake.ID) (ConnectorConfig, error)
	// WebhookSecrets returns the opened secrets of the printer's active
	// integrations. An empty result means intake runs unsigned.
	WebhookSecrets(ctx context.Context, printerID snowflake.ID) ([]string, error)
}

var (
	ErrInvalidConfig        = errors.New("invalid_config")
	ErrInvalidType          = errors.New("invalid_type")
	ErrInvalidAuthType      = errors.New("invalid_auth_type")
	ErrInvalidEndpoint      = errors.New("invalid_endpoint")
	ErrInvalidCredentials   = errors.New("invalid_credentials")
	ErrInvalidPollInterval  = errors.New("invalid_poll_interval")
	ErrInvalidPrinter       = errors.New("invalid_printer")
	ErrDuplicateIntegration = errors.New("duplicate_integration")
	ErrNotFound             = errors.New("not_found")
	ErrSecretKeyMissing     = errors.New("secret_key_missing")
)
