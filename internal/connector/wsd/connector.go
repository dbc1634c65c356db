// Package wsd reads printer state from WS-Print devices with a SOAP 1.2
// GetPrinterElements request.
package wsd

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/smallbiznis/printfleet/internal/config"
	"github.com/smallbiznis/printfleet/internal/connector/domain"
	integrationdomain "github.com/smallbiznis/printfleet/internal/integration/domain"
	printerdomain "github.com/smallbiznis/printfleet/internal/printer/domain"
)

const (
	soapContentType = "application/soap+xml; charset=utf-8"
	actionGetElems  = "http://schemas.microsoft.com/windows/2006/08/wdp/print/GetPrinterElements"
	maxBodyBytes    = 1 << 20
)

const requestTemplate = `<?xml version="1.0" encoding="utf-8"?>
<soap:Envelope xmlns:soap="http://www.w3.org/2003/05/soap-envelope" xmlns:wsa="http://schemas.xmlsoap.org/ws/2004/08/addressing" xmlns:wprt="http://schemas.microsoft.com/windows/2006/08/wdp/print">
<soap:Header>
<wsa:To>%s</wsa:To>
<wsa:Action>%s</wsa:Action>
<wsa:MessageID>urn:uuid:%s</wsa:MessageID>
<wsa:ReplyTo><wsa:Address>http://schemas.xmlsoap.org/ws/2004/08/addressing/role/anonymous</wsa:Address></wsa:ReplyTo>
</soap:Header>
<soap:Body>
<wprt:GetPrinterElementsRequest>
<wprt:RequestedElements>
<wprt:Name>wprt:PrinterStatus</wprt:Name>
<wprt:Name>wprt:PrinterConfiguration</wprt:Name>
</wprt:RequestedElements>
</wprt:GetPrinterElementsRequest>
</soap:Body>
</soap:Envelope>`

type envelope struct {
	Body struct {
		Fault *struct {
			Reason string `xml:"Reason>Text"`
		} `xml:"Fault"`
		Response *struct {
			Elements []elementData `xml:"PrinterElements>ElementData"`
		} `xml:"GetPrinterElementsResponse"`
	} `xml:"Body"`
}

type elementData struct {
	Name   string         `xml:"Name,attr"`
	Status *printerStatus `xml:"PrinterStatus"`
	Config *printerConfig `xml:"PrinterConfiguration"`
}

type printerStatus struct {
	State         string   `xml:"PrinterState"`
	PrimaryReason string   `xml:"PrinterPrimaryStateReason"`
	Reasons       []string `xml:"PrinterStateReasons>PrinterStateReason"`
	QueuedJobs    string   `xml:"QueuedJobCount"`
}

type printerConfig struct {
	Consumables []struct {
		Type  string `xml:"Type"`
		Color string `xml:"Color"`
		Level string `xml:"Level"`
	} `xml:"Consumables>ConsumableEntry"`
	InputBins []struct {
		Name  string `xml:"InputBinName"`
		Level string `xml:"Level"`
	} `xml:"InputBins>InputBinEntry"`
}

type Connector struct {
	cfg    integrationdomain.ConnectorConfig
	client *http.Client
}

func New(cfg integrationdomain.ConnectorConfig, _ config.ConnectorConfig) (domain.Connector, error) {
	if err := domain.RequireAuth(cfg, integrationdomain.AuthNone, integrationdomain.AuthBasic); err != nil {
		return nil, err
	}
	client, err := domain.HTTPClient(cfg)
	if err != nil {
		return nil, err
	}
	return &Connector{cfg: cfg, client: client}, nil
}

func (c *Connector) Protocol() integrationdomain.Type { return integrationdomain.TypeWSD }

func (c *Connector) GetStatus(ctx context.Context) (*printerdomain.PrinterStatus, error) {
	var to bytes.Buffer
	if err := xml.EscapeText(&to, []byte(c.cfg.Endpoint)); err != nil {
		return nil, domain.InvalidResponse("encode", c.cfg.Endpoint, err)
	}
	body := fmt.Sprintf(requestTemplate, to.String(), actionGetElems, uuid.NewString())

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, strings.NewReader(body))
	if err != nil {
		return nil, domain.Unavailable("get_printer_elements", c.cfg.Endpoint, err)
	}
	req.Header.Set("Content-Type", soapContentType+`; action="`+actionGetElems+`"`)
	domain.Authorize(req, c.cfg)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, domain.Unavailable("get_printer_elements", c.cfg.Endpoint, err)
	}
	defer domain.CloseBody(resp.Body, maxBodyBytes)

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, domain.Unavailable("get_printer_elements", c.cfg.Endpoint, err)
	}

	var env envelope
	if err := xml.Unmarshal(raw, &env); err != nil {
		if resp.StatusCode/100 != 2 {
			return nil, domain.Unavailable("get_printer_elements", c.cfg.Endpoint, fmt.Errorf("device replied %s", resp.Status))
		}
		return nil, domain.InvalidResponse("get_printer_elements", c.cfg.Endpoint, err)
	}
	if env.Body.Fault != nil {
		return nil, domain.Unavailable("get_printer_elements", c.cfg.Endpoint, fmt.Errorf("soap fault: %s", strings.TrimSpace(env.Body.Fault.Reason)))
	}
	if resp.StatusCode/100 != 2 {
		return nil, domain.Unavailable("get_printer_elements", c.cfg.Endpoint, fmt.Errorf("device replied %s", resp.Status))
	}
	if env.Body.Response == nil {
		return nil, domain.InvalidResponse("get_printer_elements", c.cfg.Endpoint, errors.New("response body missing"))
	}

	return build(c.cfg.Endpoint, env.Body.Response.Elements)
}

func build(endpoint string, elements []elementData) (*printerdomain.PrinterStatus, error) {
	var (
		ps  *printerStatus
		cfg *printerConfig
	)
	for i := range elements {
		if elements[i].Status != nil {
			ps = elements[i].Status
		}
		if elements[i].Config != nil {
			cfg = elements[i].Config
		}
	}
	if ps == nil {
		return nil, domain.InvalidResponse("parse", endpoint, errors.New("PrinterStatus element missing"))
	}

	reasons := []string{}
	seen := map[string]bool{}
	for _, r := range append([]string{ps.PrimaryReason}, ps.Reasons...) {
		r = strings.TrimSpace(r)
		if r == "" || strings.EqualFold(r, "None") || seen[r] {
			continue
		}
		seen[r] = true
		reasons = append(reasons, r)
	}

	status := &printerdomain.PrinterStatus{
		Status:        mapState(ps.State, reasons),
		TonerLevels:   map[string]int{},
		PaperLevels:   map[string]int{},
		ErrorMessages: reasons,
		LastUpdated:   domain.Now(),
	}
	if n, err := strconv.Atoi(strings.TrimSpace(ps.QueuedJobs)); err == nil {
		status.JobQueue = n
	}

	if cfg != nil {
		for _, c := range cfg.Consumables {
			level, err := strconv.Atoi(strings.TrimSpace(c.Level))
			if err != nil || level < 0 {
				continue
			}
			name := strings.ToLower(strings.TrimSpace(c.Color))
			if name == "" {
				name = strings.ToLower(strings.TrimSpace(c.Type))
			}
			if name == "" {
				continue
			}
			status.TonerLevels[name] = min(level, 100)
		}
		for i, bin := range cfg.InputBins {
			level, err := strconv.Atoi(strings.TrimSpace(bin.Level))
			if err != nil || level < 0 {
				continue
			}
			name := strings.ToLower(strings.TrimSpace(bin.Name))
			if name == "" {
				name = "tray" + strconv.Itoa(i+1)
			}
			status.PaperLevels[name] = min(level, 100)
		}
	}
	return status, nil
}

func mapState(state string, reasons []string) printerdomain.Status {
	switch strings.ToLower(strings.TrimSpace(state)) {
	case "stopped":
		return printerdomain.StatusError
	case "processing":
		return printerdomain.StatusPrinting
	case "idle":
		for _, r := range reasons {
			lower := strings.ToLower(r)
			if strings.Contains(lower, "low") || strings.Contains(lower, "warning") || strings.Contains(lower, "nearfull") {
				return printerdomain.StatusWarning
			}
		}
		if len(reasons) > 0 {
			return printerdomain.StatusError
		}
		return printerdomain.StatusOnline
	default:
		return printerdomain.StatusOffline
	}
}
