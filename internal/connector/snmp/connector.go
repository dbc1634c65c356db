// Package snmp polls printers through the standard Printer MIB.
package snmp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gosnmp/gosnmp"
	"github.com/smallbiznis/printfleet/internal/config"
	"github.com/smallbiznis/printfleet/internal/connector/domain"
	integrationdomain "github.com/smallbiznis/printfleet/internal/integration/domain"
	printerdomain "github.com/smallbiznis/printfleet/internal/printer/domain"
)

type session interface {
	Get(oids []string) (*gosnmp.SnmpPacket, error)
	Walk(root string, fn gosnmp.WalkFunc) error
	Close() error
}

type target struct {
	host      string
	port      uint16
	community string
	version   gosnmp.SnmpVersion
	timeout   time.Duration
	retries   int
}

type dialFunc func(ctx context.Context, t target) (session, error)

type Connector struct {
	cfg    integrationdomain.ConnectorConfig
	target target
	dial   dialFunc
}

func New(cfg integrationdomain.ConnectorConfig, settings config.ConnectorConfig) (domain.Connector, error) {
	if err := domain.RequireAuth(cfg,
		integrationdomain.AuthNone,
		integrationdomain.AuthBasic,
		integrationdomain.AuthAPIKey,
	); err != nil {
		return nil, err
	}

	host, port, err := splitEndpoint(cfg.Endpoint, settings.SNMP.Port)
	if err != nil {
		return nil, domain.Unsupported("new", cfg.Endpoint, err)
	}

	version := gosnmp.Version2c
	if settings.SNMP.Version == "1" {
		version = gosnmp.Version1
	}

	return &Connector{
		cfg: cfg,
		target: target{
			host:      host,
			port:      port,
			community: community(cfg, settings.SNMP.Community),
			version:   version,
			timeout:   settings.Timeout,
			retries:   settings.SNMP.Retries,
		},
		dial: dial,
	}, nil
}

func community(cfg integrationdomain.ConnectorConfig, fallback string) string {
	switch {
	case cfg.Credentials.Community != "":
		return cfg.Credentials.Community
	case cfg.AuthType == integrationdomain.AuthAPIKey && cfg.Credentials.APIKey != "":
		return cfg.Credentials.APIKey
	case cfg.AuthType == integrationdomain.AuthBasic && cfg.Credentials.Password != "":
		return cfg.Credentials.Password
	case fallback != "":
		return fallback
	default:
		return "public"
	}
}

func splitEndpoint(endpoint string, defaultPort uint16) (string, uint16, error) {
	raw := strings.TrimPrefix(strings.TrimSpace(endpoint), "udp://")
	if raw == "" {
		return "", 0, errors.New("endpoint is empty")
	}
	if defaultPort == 0 {
		defaultPort = 161
	}

	host, portText, err := net.SplitHostPort(raw)
	if err != nil {
		// No port given.
		return strings.Trim(raw, "[]"), defaultPort, nil
	}
	port, err := strconv.ParseUint(portText, 10, 16)
	if err != nil || port == 0 {
		return "", 0, fmt.Errorf("invalid port %q", portText)
	}
	return host, uint16(port), nil
}

func (c *Connector) Protocol() integrationdomain.Type { return integrationdomain.TypeSNMP }

func (c *Connector) GetStatus(ctx context.Context) (*printerdomain.PrinterStatus, error) {
	t := c.target
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining > 0 && (t.timeout <= 0 || remaining < t.timeout) {
			t.timeout = remaining
		}
	}

	sess, err := c.dial(ctx, t)
	if err != nil {
		return nil, domain.Unavailable("connect", c.cfg.Endpoint, err)
	}
	defer sess.Close()

	status, err := read(ctx, sess)
	if err != nil {
		if ctx.Err() != nil {
			err = ctx.Err()
		}
		return nil, domain.Unavailable("get_status", c.cfg.Endpoint, err)
	}
	return status, nil
}

func read(ctx context.Context, sess session) (*printerdomain.PrinterStatus, error) {
	packet, err := sess.Get([]string{oidHrDeviceStatus, oidHrPrinterStatus, oidHrPrinterErrorBits, oidMarkerLifeCount})
	if err != nil {
		return nil, err
	}
	if packet == nil {
		return nil, errors.New("empty response")
	}
	if packet.Error != gosnmp.NoError {
		return nil, fmt.Errorf("snmp error %s", packet.Error)
	}

	var (
		deviceStatus  int
		printerStatus int
		errorState    []byte
		lifeCount     int
	)
	for _, pdu := range packet.Variables {
		if missing(pdu) {
			continue
		}
		switch pdu.Name {
		case oidHrDeviceStatus:
			deviceStatus, _ = toInt(pdu.Value)
		case oidHrPrinterStatus:
			printerStatus, _ = toInt(pdu.Value)
		case oidHrPrinterErrorBits:
			errorState, _ = pdu.Value.([]byte)
		case oidMarkerLifeCount:
			lifeCount, _ = toInt(pdu.Value)
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	toner, err := levels(sess, oidSuppliesDescription, oidSuppliesMaxCapacity, oidSuppliesLevel, "supply")
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	paper, err := levels(sess, oidInputName, oidInputMaxCapacity, oidInputCurrentLevel, "tray")
	if err != nil {
		return nil, err
	}

	messages, fatal, warn := decodeErrorState(errorState)
	return &printerdomain.PrinterStatus{
		Status:          mapStatus(deviceStatus, printerStatus, fatal, warn),
		TonerLevels:     toner,
		PaperLevels:     paper,
		ErrorMessages:   messages,
		TotalPagesMonth: lifeCount,
		LastUpdated:     domain.Now(),
	}, nil
}

// levels walks a name column plus capacity and level columns of the same
// table and returns percentages keyed by the lower cased name.
func levels(sess session, nameOID, maxOID, levelOID, prefix string) (map[string]int, error) {
	names := map[string]string{}
	capacity := map[string]int{}
	level := map[string]int{}

	if err := sess.Walk(nameOID, func(pdu gosnmp.SnmpPDU) error {
		if idx := index(pdu.Name, nameOID); idx != "" {
			names[idx] = strings.ToLower(strings.TrimSpace(toString(pdu.Value)))
		}
		return nil
	}); err != nil {
		return nil, err
	}
	if err := sess.Walk(maxOID, func(pdu gosnmp.SnmpPDU) error {
		if idx := index(pdu.Name, maxOID); idx != "" {
			if n, ok := toInt(pdu.Value); ok {
				capacity[idx] = n
			}
		}
		return nil
	}); err != nil {
		return nil, err
	}
	if err := sess.Walk(levelOID, func(pdu gosnmp.SnmpPDU) error {
		if idx := index(pdu.Name, levelOID); idx != "" {
			if n, ok := toInt(pdu.Value); ok {
				level[idx] = n
			}
		}
		return nil
	}); err != nil {
		return nil, err
	}

	out := map[string]int{}
	for idx, lvl := range level {
		pct, ok := domain.Percent(lvl, capacity[idx])
		if !ok {
			continue
		}
		name := names[idx]
		if name == "" {
			name = prefix + idx
		}
		out[name] = pct
	}
	return out, nil
}

func decodeErrorState(state []byte) (messages []string, fatal, warn bool) {
	messages = []string{}
	for _, eb := range errorBits {
		octet := eb.bit / 8
		if octet >= len(state) {
			continue
		}
		if state[octet]&(0x80>>(eb.bit%8)) == 0 {
			continue
		}
		messages = append(messages, eb.message)
		if eb.fatal {
			fatal = true
		} else {
			warn = true
		}
	}
	sort.Strings(messages)
	return messages, fatal, warn
}

func mapStatus(device, printer int, fatal, warn bool) printerdomain.Status {
	switch {
	case device == deviceDown || fatal:
		return printerdomain.StatusError
	case printer == printerPrinting || printer == printerWarmup:
		return printerdomain.StatusPrinting
	case device == deviceWarning || warn:
		return printerdomain.StatusWarning
	case device == deviceRunning || printer == printerIdle:
		return printerdomain.StatusOnline
	default:
		return printerdomain.StatusOffline
	}
}

func missing(pdu gosnmp.SnmpPDU) bool {
	return pdu.Type == gosnmp.NoSuchObject || pdu.Type == gosnmp.NoSuchInstance || pdu.Type == gosnmp.Null
}

func index(name, base string) string {
	name = "." + strings.TrimPrefix(name, ".")
	if strings.HasPrefix(name, base+".") {
		return strings.TrimPrefix(name, base+".")
	}
	return ""
}

func toInt(val any) (int, bool) {
	if val == nil {
		return 0, false
	}
	switch v := val.(type) {
	case int:
		return v, true
	case uint:
		return int(v), true
	case int32:
		return int(v), true
	case uint32:
		return int(v), true
	case int64:
		return int(v), true
	case uint64:
		return int(v), true
	}
	if bi := gosnmp.ToBigInt(val); bi != nil {
		return int(bi.Int64()), true
	}
	return 0, false
}

func toString(val any) string {
	switch v := val.(type) {
	case []byte:
		return string(v)
	case string:
		return v
	default:
		return ""
	}
}
