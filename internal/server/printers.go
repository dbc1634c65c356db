package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	connectordomain "github.com/smallbiznis/printfleet/internal/connector/domain"
	printerdomain "github.com/smallbiznis/printfleet/internal/printer/domain"
)

type createPrinterRequest struct {
	Name       string `json:"name"`
	Model      string `json:"model"`
	Location   string `json:"location"`
	Department string `json:"department"`
}

func (s *Server) CreatePrinter(c *gin.Context) {
	var req createPrinterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.printers.Create(c.Request.Context(), printerdomain.CreateRequest{
		Name:       strings.TrimSpace(req.Name),
		Model:      strings.TrimSpace(req.Model),
		Location:   strings.TrimSpace(req.Location),
		Department: strings.TrimSpace(req.Department),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) GetPrinter(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	resp, err := s.printers.GetByID(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

// SyncPrinterStatus pulls the device status now. When the device cannot be
// reached the ERROR state is still persisted and returned next to the error.
func (s *Server) SyncPrinterStatus(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	resp, err := s.scheduler.SyncPrinter(c.Request.Context(), id)
	if err != nil {
		if resp.ID != 0 && errors.Is(err, connectordomain.ErrConnectorUnavailable) {
			status, payload := mapError(err)
			payload.Message = err.Error()
			c.JSON(status, gin.H{"error": payload, "data": resp})
			return
		}
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListWebhookDeliveries(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	limit, err := parseOptionalInt64(c.Query("limit"))
	if err != nil || (limit != nil && *limit < 0) {
		AbortWithError(c, newValidationError("limit", "invalid_limit", "invalid limit"))
		return
	}
	var n int
	if limit != nil {
		n = int(*limit)
	}

	resp, err := s.webhooks.ListDeliveries(c.Request.Context(), id, n)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
