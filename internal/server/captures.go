package server

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	capturedomain "github.com/smallbiznis/printfleet/internal/capture/domain"
	"github.com/smallbiznis/printfleet/pkg/db/pagination"
)

type createCaptureRequest struct {
	PrinterID     string         `json:"printerId"`
	ExternalJobID string         `json:"externalJobId"`
	FileName      string         `json:"fileName"`
	Pages         int            `json:"pages"`
	Copies        int            `json:"copies"`
	IsColor       bool           `json:"isColor"`
	PaperSize     string         `json:"paperSize"`
	PaperType     string         `json:"paperType"`
	Quality       string         `json:"quality"`
	UserID        string         `json:"userId"`
	Metadata      map[string]any `json:"metadata"`
}

func (s *Server) CreateCapture(c *gin.Context) {
	var req createCaptureRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	printerID, err := parseOptionalSnowflakeID(req.PrinterID)
	if err != nil || printerID == nil {
		AbortWithError(c, newValidationError("printerId", "invalid_printer_id", "printerId is required"))
		return
	}
	userID, err := parseOptionalSnowflakeID(req.UserID)
	if err != nil {
		AbortWithError(c, newValidationError("userId", "invalid_user_id", "invalid userId"))
		return
	}

	resp, err := s.captures.CaptureJob(c.Request.Context(), capturedomain.CaptureRequest{
		PrinterID:     *printerID,
		ExternalJobID: strings.TrimSpace(req.ExternalJobID),
		FileName:      strings.TrimSpace(req.FileName),
		Pages:         req.Pages,
		Copies:        req.Copies,
		IsColor:       req.IsColor,
		PaperSize:     req.PaperSize,
		PaperType:     req.PaperType,
		Quality:       req.Quality,
		UserID:        userID,
		Metadata:      req.Metadata,
		Source:        capturedomain.SourceAPI,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) ListCaptures(c *gin.Context) {
	var query struct {
		pagination.Pagination
		PrinterID string `form:"printerId"`
		Status    string `form:"status"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	printerID, err := parseOptionalSnowflakeID(query.PrinterID)
	if err != nil {
		AbortWithError(c, newValidationError("printerId", "invalid_printer_id", "invalid printerId"))
		return
	}

	req := capturedomain.ListRequest{
		Status:     strings.TrimSpace(query.Status),
		Pagination: query.Pagination,
	}
	if printerID != nil {
		req.PrinterID = *printerID
	}

	resp, err := s.captures.ListCaptures(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp.Captures, "page_info": resp.PageInfo})
}

func (s *Server) GetCapture(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	resp, err := s.captures.GetCapture(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

type processCaptureRequest struct {
	UserID string `json:"userId"`
}

func (s *Server) ProcessCapture(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req processCaptureRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			AbortWithError(c, invalidRequestError())
			return
		}
	}
	userID, err := parseOptionalSnowflakeID(req.UserID)
	if err != nil {
		AbortWithError(c, newValidationError("userId", "invalid_user_id", "invalid userId"))
		return
	}

	resp, err := s.captures.ProcessCapture(c.Request.Context(), id, userID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

// pathID parses a snowflake path parameter, aborting with a validation error
// when it is malformed.
func pathID(c *gin.Context, name string) (snowflake.ID, bool) {
	id, err := parseOptionalSnowflakeID(c.Param(name))
	if err != nil || id == nil {
		AbortWithError(c, newValidationError(name, "invalid_"+name, "invalid "+name))
		return 0, false
	}
	return *id, true
}
