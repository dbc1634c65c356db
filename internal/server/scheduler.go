package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (s *Server) SchedulerStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"data": s.scheduler.Status()})
}

func (s *Server) StartScheduler(c *gin.Context) {
	if err := s.scheduler.Start(c.Request.Context()); err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": s.scheduler.Status()})
}

func (s *Server) StopScheduler(c *gin.Context) {
	if err := s.scheduler.Stop(c.Request.Context()); err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": s.scheduler.Status()})
}

func (s *Server) RestartScheduler(c *gin.Context) {
	if err := s.scheduler.Restart(c.Request.Context()); err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": s.scheduler.Status()})
}

type addSchedulerPrinterRequest struct {
	IntegrationID string `json:"integrationId"`
}

func (s *Server) AddSchedulerPrinter(c *gin.Context) {
	var req addSchedulerPrinterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	integrationID, err := parseOptionalSnowflakeID(req.IntegrationID)
	if err != nil || integrationID == nil {
		AbortWithError(c, newValidationError("integrationId", "invalid_integration_id", "integrationId is required"))
		return
	}

	if err := s.scheduler.AddPrinter(c.Request.Context(), *integrationID); err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": s.scheduler.Status()})
}

func (s *Server) RemoveSchedulerPrinter(c *gin.Context) {
	printerID, ok := pathID(c, "printerId")
	if !ok {
		return
	}

	s.scheduler.RemovePrinter(printerID)
	c.JSON(http.StatusOK, gin.H{"data": s.scheduler.Status()})
}
