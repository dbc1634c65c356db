// Package httpjson polls printers that expose a JSON status document over
// plain HTTP(S).
package httpjson

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/smallbiznis/printfleet/internal/config"
	"github.com/smallbiznis/printfleet/internal/connector/domain"
	integrationdomain "github.com/smallbiznis/printfleet/internal/integration/domain"
	printerdomain "github.com/smallbiznis/printfleet/internal/printer/domain"
)

const maxBodyBytes = 1 << 20

// document is the vendor neutral status payload.
type document struct {
	Status          string         `json:"status"`
	TonerLevels     map[string]int `json:"tonerLevels"`
	PaperLevels     map[string]int `json:"paperLevels"`
	Errors          []string       `json:"errors"`
	JobQueue        int            `json:"jobQueue"`
	TotalPagesMonth int            `json:"totalPagesMonth"`
}

type Connector struct {
	cfg    integrationdomain.ConnectorConfig
	client *http.Client
}

func New(cfg integrationdomain.ConnectorConfig, _ config.ConnectorConfig) (domain.Connector, error) {
	if err := domain.RequireAuth(cfg,
		integrationdomain.AuthNone,
		integrationdomain.AuthBasic,
		integrationdomain.AuthAPIKey,
		integrationdomain.AuthCertificate,
	); err != nil {
		return nil, err
	}
	client, err := domain.HTTPClient(cfg)
	if err != nil {
		return nil, err
	}
	return &Connector{cfg: cfg, client: client}, nil
}

func (c *Connector) Protocol() integrationdomain.Type { return integrationdomain.TypeHTTP }

func (c *Connector) GetStatus(ctx context.Context) (*printerdomain.PrinterStatus, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.Endpoint, nil)
	if err != nil {
		return nil, domain.Unavailable("get_status", c.cfg.Endpoint, err)
	}
	req.Header.Set("Accept", "application/json")
	domain.Authorize(req, c.cfg)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, domain.Unavailable("get_status", c.cfg.Endpoint, err)
	}
	defer domain.CloseBody(resp.Body, maxBodyBytes)

	if resp.StatusCode/100 != 2 {
		return nil, domain.Unavailable("get_status", c.cfg.Endpoint, fmt.Errorf("device replied %s", resp.Status))
	}

	var doc document
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(&doc); err != nil {
		if ctx.Err() != nil {
			return nil, domain.Unavailable("get_status", c.cfg.Endpoint, ctx.Err())
		}
		return nil, domain.InvalidResponse("get_status", c.cfg.Endpoint, err)
	}

	status := printerdomain.Status(strings.ToUpper(strings.TrimSpace(doc.Status)))
	if !printerdomain.IsValidStatus(status) {
		return nil, domain.InvalidResponse("get_status", c.cfg.Endpoint, fmt.Errorf("unknown status %q", doc.Status))
	}

	return &printerdomain.PrinterStatus{
		Status:          status,
		TonerLevels:     clampLevels(doc.TonerLevels),
		PaperLevels:     clampLevels(doc.PaperLevels),
		ErrorMessages:   doc.Errors,
		JobQueue:        doc.JobQueue,
		TotalPagesMonth: doc.TotalPagesMonth,
		LastUpdated:     domain.Now(),
	}, nil
}

func clampLevels(in map[string]int) map[string]int {
	out := make(map[string]int, len(in))
	for k, v := range in {
		switch {
		case v < 0:
			v = 0
		case v > 100:
			v = 100
		}
		out[strings.ToLower(strings.TrimSpace(k))] = v
	}
	return out
}
