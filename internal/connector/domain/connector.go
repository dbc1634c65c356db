package domain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/smallbiznis/printfleet/internal/config"
	integrationdomain "github.com/smallbiznis/printfleet/internal/integration/domain"
	printerdomain "github.com/smallbiznis/printfleet/internal/printer/domain"
)

// Connector reads a live status snapshot from one device. Implementations
// return either a complete status or an error, never both.
type Connector interface {
	Protocol() integrationdomain.Type
	GetStatus(ctx context.Context) (*printerdomain.PrinterStatus, error)
}

// Factory builds a connector for one integration. It must reject every
// configuration it cannot serve so failures surface before the first call.
type Factory func(cfg integrationdomain.ConnectorConfig, settings config.ConnectorConfig) (Connector, error)

var (
	ErrConnectorUnavailable = errors.New("connector_unavailable")
	ErrUnsupportedProtocol  = errors.New("unsupported_protocol")
)

type Kind string

const (
	// KindUnavailable covers timeouts, refused connections and non success
	// device replies.
	KindUnavailable Kind = "unavailable"
	// KindInvalidResponse is a reply the connector could not decode.
	KindInvalidResponse Kind = "invalid_response"
	KindUnsupported     Kind = "unsupported"
)

type Error struct {
	Kind     Kind
	Op       string
	Endpoint string
	Err      error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s %s", e.Op, e.Endpoint)
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.sentinel(), msg)
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	return target == e.sentinel()
}

func (e *Error) sentinel() error {
	if e.Kind == KindUnsupported {
		return ErrUnsupportedProtocol
	}
	return ErrConnectorUnavailable
}

// Unavailable wraps a transport failure.
func Unavailable(op, endpoint string, err error) error {
	return &Error{Kind: KindUnavailable, Op: op, Endpoint: endpoint, Err: err}
}

// InvalidResponse wraps a decoding failure.
func InvalidResponse(op, endpoint string, err error) error {
	return &Error{Kind: KindInvalidResponse, Op: op, Endpoint: endpoint, Err: err}
}

// Unsupported rejects a configuration at construction time.
func Unsupported(op, endpoint string, err error) error {
	return &Error{Kind: KindUnsupported, Op: op, Endpoint: endpoint, Err: err}
}

// RequireAuth rejects auth types outside allowed.
func RequireAuth(cfg integrationdomain.ConnectorConfig, allowed ...integrationdomain.AuthType) error {
	for _, a := range allowed {
		if cfg.AuthType == a {
			return nil
		}
	}
	return Unsupported("new", cfg.Endpoint, fmt.Errorf("auth type %s is not supported over %s", cfg.AuthType, cfg.Type))
}

// Percent converts a level and capacity pair to 0..100. Negative device
// sentinels (unknown, other) are reported as false.
func Percent(level, capacity int) (int, bool) {
	if level < 0 || capacity <= 0 {
		return 0, false
	}
	pct := level * 100 / capacity
	if pct > 100 {
		pct = 100
	}
	return pct, true
}

// Now is the timestamp source for snapshots. Tests may replace it.
var Now = func() time.Time { return time.Now().UTC() }
