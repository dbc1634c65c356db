// Package ipp reads printer state with an IPP Get-Printer-Attributes request.
package ipp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/OpenPrinting/goipp"
	"github.com/smallbiznis/printfleet/internal/config"
	"github.com/smallbiznis/printfleet/internal/connector/domain"
	integrationdomain "github.com/smallbiznis/printfleet/internal/integration/domain"
	printerdomain "github.com/smallbiznis/printfleet/internal/printer/domain"
)

const (
	defaultPort   = "631"
	maxReplyBytes = 1 << 20
)

var requestedAttributes = []string{
	"printer-state",
	"printer-state-reasons",
	"printer-state-message",
	"marker-names",
	"marker-levels",
	"printer-input-tray",
	"queued-job-count",
	"printer-impressions-completed",
}

type Connector struct {
	cfg        integrationdomain.ConnectorConfig
	printerURI string
	target     string
	client     *http.Client
	requestID  atomic.Uint32
}

func New(cfg integrationdomain.ConnectorConfig, _ config.ConnectorConfig) (domain.Connector, error) {
	if err := domain.RequireAuth(cfg,
		integrationdomain.AuthNone,
		integrationdomain.AuthBasic,
		integrationdomain.AuthCertificate,
	); err != nil {
		return nil, err
	}

	printerURI, target, err := resolve(cfg.Endpoint)
	if err != nil {
		return nil, domain.Unsupported("new", cfg.Endpoint, err)
	}
	client, err := domain.HTTPClient(cfg)
	if err != nil {
		return nil, err
	}
	return &Connector{cfg: cfg, printerURI: printerURI, target: target, client: client}, nil
}

// resolve returns the ipp:// printer-uri attribute and the http(s) URL the
// request is posted to.
func resolve(endpoint string) (string, string, error) {
	u, err := url.Parse(strings.TrimSpace(endpoint))
	if err != nil {
		return "", "", err
	}
	if u.Host == "" {
		return "", "", errors.New("endpoint has no host")
	}

	httpURL := *u
	ippURL := *u
	switch strings.ToLower(u.Scheme) {
	case "ipp", "http":
		httpURL.Scheme, ippURL.Scheme = "http", "ipp"
	case "ipps", "https":
		httpURL.Scheme, ippURL.Scheme = "https", "ipps"
	default:
		return "", "", fmt.Errorf("scheme %q is not supported", u.Scheme)
	}
	if u.Port() == "" && (u.Scheme == "ipp" || u.Scheme == "ipps") {
		httpURL.Host = u.Hostname() + ":" + defaultPort
	}
	return ippURL.String(), httpURL.String(), nil
}

func (c *Connector) Protocol() integrationdomain.Type { return integrationdomain.TypeIPP }

func (c *Connector) GetStatus(ctx context.Context) (*printerdomain.PrinterStatus, error) {
	msg := goipp.NewRequest(goipp.DefaultVersion, goipp.OpGetPrinterAttributes, c.requestID.Add(1))
	msg.Operation.Add(goipp.MakeAttribute("attributes-charset", goipp.TagCharset, goipp.String("utf-8")))
	msg.Operation.Add(goipp.MakeAttribute("attributes-natural-language", goipp.TagLanguage, goipp.String("en-US")))
	msg.Operation.Add(goipp.MakeAttribute("printer-uri", goipp.TagURI, goipp.String(c.printerURI)))
	values := make([]goipp.Value, 0, len(requestedAttributes))
	for _, name := range requestedAttributes {
		values = append(values, goipp.String(name))
	}
	msg.Operation.Add(goipp.MakeAttr("requested-attributes", goipp.TagKeyword, values[0], values[1:]...))

	payload, err := msg.EncodeBytes()
	if err != nil {
		return nil, domain.InvalidResponse("encode", c.cfg.Endpoint, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.target, bytes.NewReader(payload))
	if err != nil {
		return nil, domain.Unavailable("get_printer_attributes", c.cfg.Endpoint, err)
	}
	req.Header.Set("Content-Type", goipp.ContentType)
	req.Header.Set("Accept", goipp.ContentType)
	domain.Authorize(req, c.cfg)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, domain.Unavailable("get_printer_attributes", c.cfg.Endpoint, err)
	}
	defer domain.CloseBody(resp.Body, maxReplyBytes)
	if resp.StatusCode/100 != 2 {
		return nil, domain.Unavailable("get_printer_attributes", c.cfg.Endpoint, fmt.Errorf("device replied %s", resp.Status))
	}

	var reply goipp.Message
	if err := reply.Decode(resp.Body); err != nil {
		if ctx.Err() != nil {
			return nil, domain.Unavailable("get_printer_attributes", c.cfg.Endpoint, ctx.Err())
		}
		return nil, domain.InvalidResponse("get_printer_attributes", c.cfg.Endpoint, err)
	}
	if code := goipp.Status(reply.Code); code != goipp.StatusOk {
		return nil, domain.Unavailable("get_printer_attributes", c.cfg.Endpoint, fmt.Errorf("ipp status %s", code))
	}

	return parse(c.cfg.Endpoint, printerAttrs(&reply))
}

func parse(endpoint string, attrs goipp.Attributes) (*printerdomain.PrinterStatus, error) {
	state, ok := firstInt(attrs, "printer-state")
	if !ok {
		return nil, domain.InvalidResponse("parse", endpoint, errors.New("printer-state missing"))
	}

	reasons := []string{}
	for _, reason := range stringValues(attrs, "printer-state-reasons") {
		if reason != "" && reason != "none" {
			reasons = append(reasons, reason)
		}
	}

	status := &printerdomain.PrinterStatus{
		Status:        mapState(state, reasons),
		TonerLevels:   markers(attrs),
		PaperLevels:   trays(attrs),
		ErrorMessages: reasons,
		LastUpdated:   domain.Now(),
	}
	if n, ok := firstInt(attrs, "queued-job-count"); ok {
		status.JobQueue = n
	}
	if n, ok := firstInt(attrs, "printer-impressions-completed"); ok {
		status.TotalPagesMonth = n
	}
	if msg := stringValues(attrs, "printer-state-message"); len(msg) > 0 && msg[0] != "" && state == 5 {
		status.ErrorMessages = append(status.ErrorMessages, msg[0])
	}
	return status, nil
}

// mapState follows RFC 8011 printer-state: 3 idle, 4 processing, 5 stopped.
func mapState(state int, reasons []string) printerdomain.Status {
	severity := ""
	for _, r := range reasons {
		switch {
		case strings.HasSuffix(r, "-error"):
			severity = "error"
		case strings.HasSuffix(r, "-warning") && severity == "":
			severity = "warning"
		}
	}

	switch state {
	case 5:
		return printerdomain.StatusError
	case 4:
		if severity == "error" {
			return printerdomain.StatusError
		}
		return printerdomain.StatusPrinting
	case 3:
		switch severity {
		case "error":
			return printerdomain.StatusError
		case "warning":
			return printerdomain.StatusWarning
		}
		return printerdomain.StatusOnline
	default:
		return printerdomain.StatusOffline
	}
}

func markers(attrs goipp.Attributes) map[string]int {
	names := stringValues(attrs, "marker-names")
	levels := ints(attrs, "marker-levels")
	out := map[string]int{}
	for i, level := range levels {
		if level < 0 {
			continue
		}
		name := "marker-" + strconv.Itoa(i+1)
		if i < len(names) && names[i] != "" {
			name = strings.ToLower(names[i])
		}
		if level > 100 {
			level = 100
		}
		out[name] = level
	}
	return out
}

// trays decodes printer-input-tray octet strings of the PWG 5100.13 form
// "type=...;level=N;maxcapacity=M;name=Tray1;".
func trays(attrs goipp.Attributes) map[string]int {
	out := map[string]int{}
	for i, raw := range stringValues(attrs, "printer-input-tray") {
		fields := map[string]string{}
		for _, part := range strings.Split(raw, ";") {
			if k, v, ok := strings.Cut(part, "="); ok {
				fields[strings.TrimSpace(k)] = strings.TrimSpace(v)
			}
		}
		level, err1 := strconv.Atoi(fields["level"])
		capacity, err2 := strconv.Atoi(fields["maxcapacity"])
		if err1 != nil || err2 != nil {
			continue
		}
		pct, ok := domain.Percent(level, capacity)
		if !ok {
			continue
		}
		name := strings.ToLower(fields["name"])
		if name == "" {
			name = "tray" + strconv.Itoa(i+1)
		}
		out[name] = pct
	}
	return out
}

func printerAttrs(msg *goipp.Message) goipp.Attributes {
	if len(msg.Printer) > 0 {
		return msg.Printer
	}
	var attrs goipp.Attributes
	for _, group := range msg.Groups {
		if group.Tag == goipp.TagPrinterGroup {
			attrs = append(attrs, group.Attrs...)
		}
	}
	return attrs
}

func find(attrs goipp.Attributes, name string) goipp.Values {
	for _, attr := range attrs {
		if attr.Name == name {
			return attr.Values
		}
	}
	return nil
}

func stringValues(attrs goipp.Attributes, name string) []string {
	values := find(attrs, name)
	out := make([]string, 0, len(values))
	for _, v := range values {
		if b, ok := v.V.(goipp.Binary); ok {
			out = append(out, strings.TrimSpace(string(b)))
			continue
		}
		out = append(out, strings.TrimSpace(v.V.String()))
	}
	return out
}

func ints(attrs goipp.Attributes, name string) []int {
	values := find(attrs, name)
	out := make([]int, 0, len(values))
	for _, v := range values {
		if n, ok := v.V.(goipp.Integer); ok {
			out = append(out, int(n))
		}
	}
	return out
}

func firstInt(attrs goipp.Attributes, name string) (int, bool) {
	if values := ints(attrs, name); len(values) > 0 {
		return values[0], true
	}
	return 0, false
}
