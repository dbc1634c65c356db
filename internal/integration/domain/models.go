package domain

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Type is the wire protocol used to reach a printer.
type Type string

const (
	TypeSNMP Type = "SNMP"
	TypeHTTP Type = "HTTP"
	TypeIPP  Type = "IPP"
	TypeWSD  Type = "WSD"
)

// AuthType is how a connector authenticates against the device.
type AuthType string

const (
	AuthNone        AuthType = "NONE"
	AuthBasic       AuthType = "BASIC"
	AuthAPIKey      AuthType = "API_KEY"
	AuthCertificate AuthType = "CERTIFICATE"
)

const DefaultPollInterval = 300

// Integration binds one printer to one protocol endpoint. At most one row
// exists per (printer_id, type).
type Integration struct {
	ID                  snowflake.ID   `gorm:"primaryKey" json:"id"`
	PrinterID           snowflake.ID   `gorm:"not null;uniqueIndex:ux_printer_integration_type,priority:1" json:"printer_id"`
	Type                Type           `gorm:"type:varchar(16);not null;uniqueIndex:ux_printer_integration_type,priority:2" json:"type"`
	Endpoint            string         `gorm:"not null" json:"endpoint"`
	AuthType            AuthType       `gorm:"type:varchar(16);not null;default:'NONE'" json:"auth_type"`
	SealedCredentials   datatypes.JSON `gorm:"column:credentials" json:"-"`
	SealedWebhookSecret datatypes.JSON `gorm:"column:webhook_secret" json:"-"`
	PollInterval        int            `gorm:"not null;default:300" json:"poll_interval"`
	IsActive            bool           `gorm:"not null;default:true;index" json:"is_active"`
	LastSync            *time.Time     `json:"last_sync,omitempty"`
	LastError           string         `json:"last_error,omitempty"`
	CreatedAt           time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt           time.Time      `gorm:"not null" json:"updated_at"`

	HasCredentials   bool `gorm:"-" json:"has_credentials"`
	HasWebhookSecret bool `gorm:"-" json:"has_webhook_secret"`
}

func (Integration) TableName() string { return "printer_integrations" }

// Credentials is the opened form of an integration's sealed credentials.
type Credentials struct {
	Username    string `json:"username,omitempty"`
	Password    string `json:"password,omitempty"`
	APIKey      string `json:"api_key,omitempty"`
	Certificate string `json:"certificate,omitempty"`
	PrivateKey  string `json:"private_key,omitempty"`
	Community   string `json:"community,omitempty"`
}

func (c Credentials) IsZero() bool {
	return c == Credentials{}
}

// ConnectorConfig is everything a connector needs to reach one device.
type ConnectorConfig struct {
	IntegrationID snowflake.ID
	PrinterID     snowflake.ID
	Type          Type
	Endpoint      string
	AuthType      AuthType
	Credentials   Credentials
	PollInterval  time.Duration
}

func ParseType(raw string) (Type, bool) {
	switch Type(strings.ToUpper(strings.TrimSpace(raw))) {
	case TypeSNMP:
		return TypeSNMP, true
	case TypeHTTP:
		return TypeHTTP, true
	case TypeIPP:
		return TypeIPP, true
	case TypeWSD:
		return TypeWSD, true
	default:
		return "", false
	}
}

func ParseAuthType(raw string) (AuthType, bool) {
	value := strings.ToUpper(strings.TrimSpace(raw))
	if value == "" {
		return AuthNone, true
	}
	switch AuthType(value) {
	case AuthNone:
		return AuthNone, true
	case AuthBasic:
		return AuthBasic, true
	case AuthAPIKey:
		return AuthAPIKey, true
	case AuthCertificate:
		return AuthCertificate, true
	default:
		return "", false
	}
}
