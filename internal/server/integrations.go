package server

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	integrationdomain "github.com/smallbiznis/printfleet/internal/integration/domain"
	"github.com/smallbiznis/printfleet/internal/scheduler"
	"go.uber.org/zap"
)

type credentialsRequest struct {
	Username    string `json:"username"`
	Password    string `json:"password"`
	APIKey      string `json:"apiKey"`
	Certificate string `json:"certificate"`
	PrivateKey  string `json:"privateKey"`
	Community   string `json:"community"`
}

func (r *credentialsRequest) toDomain() integrationdomain.Credentials {
	if r == nil {
		return integrationdomain.Credentials{}
	}
	return integrationdomain.Credentials{
		Username:    r.Username,
		Password:    r.Password,
		APIKey:      r.APIKey,
		Certificate: r.Certificate,
		PrivateKey:  r.PrivateKey,
		Community:   r.Community,
	}
}

type createIntegrationRequest struct {
	PrinterID     string              `json:"printerId"`
	Type          string              `json:"type"`
	Endpoint      string              `json:"endpoint"`
	AuthType      string              `json:"authType"`
	Credentials   *credentialsRequest `json:"credentials"`
	WebhookSecret string              `json:"webhookSecret"`
	PollInterval  int                 `json:"pollInterval"`
	IsActive      *bool               `json:"isActive"`
}

func (s *Server) CreateIntegration(c *gin.Context) {
	var req createIntegrationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	printerID, err := parseOptionalSnowflakeID(req.PrinterID)
	if err != nil || printerID == nil {
		AbortWithError(c, newValidationError("printerId", "invalid_printer_id", "printerId is required"))
		return
	}

	resp, err := s.integrations.Create(c.Request.Context(), integrationdomain.CreateRequest{
		PrinterID:     *printerID,
		Type:          strings.TrimSpace(req.Type),
		Endpoint:      strings.TrimSpace(req.Endpoint),
		AuthType:      strings.TrimSpace(req.AuthType),
		Credentials:   req.Credentials.toDomain(),
		WebhookSecret: req.WebhookSecret,
		PollInterval:  req.PollInterval,
		IsActive:      req.IsActive,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	s.reschedule(c.Request.Context(), resp.PrinterID)

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

// GetIntegration looks an integration up by printer and, optionally, type.
func (s *Server) GetIntegration(c *gin.Context) {
	var query struct {
		PrinterID string `form:"printerId"`
		Type      string `form:"type"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	printerID, err := parseOptionalSnowflakeID(query.PrinterID)
	if err != nil || printerID == nil {
		AbortWithError(c, newValidationError("printerId", "invalid_printer_id", "printerId is required"))
		return
	}

	resp, err := s.integrations.Get(c.Request.Context(), *printerID, strings.TrimSpace(query.Type))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetIntegrationByID(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	resp, err := s.integrations.GetByID(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

type updateIntegrationRequest struct {
	Endpoint      *string             `json:"endpoint"`
	AuthType      *string             `json:"authType"`
	Credentials   *credentialsRequest `json:"credentials"`
	WebhookSecret *string             `json:"webhookSecret"`
	PollInterval  *int                `json:"pollInterval"`
	IsActive      *bool               `json:"isActive"`
}

func (s *Server) UpdateIntegration(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req updateIntegrationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	update := integrationdomain.UpdateRequest{
		Endpoint:      req.Endpoint,
		AuthType:      req.AuthType,
		WebhookSecret: req.WebhookSecret,
		PollInterval:  req.PollInterval,
		IsActive:      req.IsActive,
	}
	if req.Credentials != nil {
		creds := req.Credentials.toDomain()
		update.Credentials = &creds
	}

	resp, err := s.integrations.Update(c.Request.Context(), id, update)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	s.reschedule(c.Request.Context(), resp.PrinterID)

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) DeleteIntegration(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	existing, err := s.integrations.GetByID(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if err := s.integrations.Delete(c.Request.Context(), id); err != nil {
		AbortWithError(c, err)
		return
	}
	s.reschedule(c.Request.Context(), existing.PrinterID)

	c.Status(http.StatusNoContent)
}

// reschedule points a running scheduler at the printer's current integration
// after it changed. A stopped scheduler picks the change up on Start.
func (s *Server) reschedule(ctx context.Context, printerID snowflake.ID) {
	if s.scheduler == nil || !s.scheduler.Status().Running {
		return
	}

	current, err := s.integrations.Get(ctx, printerID, "")
	switch {
	case errors.Is(err, integrationdomain.ErrNotFound):
		s.scheduler.RemovePrinter(printerID)
		return
	case err != nil:
		s.log.Warn("reschedule lookup failed", zap.String("printer_id", printerID.String()), zap.Error(err))
		return
	}
	if err := s.scheduler.AddPrinter(ctx, current.ID); err != nil && !errors.Is(err, scheduler.ErrNotRunning) {
		s.log.Warn("reschedule failed", zap.String("printer_id", printerID.String()), zap.Error(err))
	}
}
