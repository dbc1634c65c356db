package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (s *Server) GetPrintJob(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	resp, err := s.printJobs.GetJob(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

type setDepartmentRateRequest struct {
	BlackAndWhitePage *float64 `json:"blackAndWhitePage"`
	ColorPage         *float64 `json:"colorPage"`
}

func (s *Server) SetDepartmentRate(c *gin.Context) {
	var req setDepartmentRateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if req.BlackAndWhitePage == nil {
		AbortWithError(c, newValidationError("blackAndWhitePage", "required", "blackAndWhitePage is required"))
		return
	}
	if req.ColorPage == nil {
		AbortWithError(c, newValidationError("colorPage", "required", "colorPage is required"))
		return
	}

	resp, err := s.captures.SetDepartmentRate(c.Request.Context(), c.Param("department"), *req.BlackAndWhitePage, *req.ColorPage)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
