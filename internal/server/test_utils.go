package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

type testCleanupRequest struct {
	Prefix string `json:"prefix"`
}

// TestCleanup removes printers named with prefix and everything recorded
// against them. It is only routed outside production.
func (s *Server) TestCleanup(c *gin.Context) {
	if s.cfg.IsProduction() {
		AbortWithError(c, ErrNotFound)
		return
	}

	var req testCleanupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	prefix := strings.TrimSpace(req.Prefix)
	if prefix == "" {
		AbortWithError(c, newValidationError("prefix", "required", "prefix is required"))
		return
	}

	ctx := c.Request.Context()
	like := prefix + "%"

	var printerIDs []int64
	if err := s.db.WithContext(ctx).
		Table("printers").
		Select("id").
		Where("name LIKE ?", like).
		Scan(&printerIDs).Error; err != nil {
		AbortWithError(c, err)
		return
	}

	if len(printerIDs) > 0 {
		for _, stmt := range []string{
			`DELETE FROM webhook_deliveries WHERE printer_id IN ?`,
			`DELETE FROM print_jobs WHERE printer_id IN ?`,
			`DELETE FROM print_job_captures WHERE printer_id IN ?`,
			`DELETE FROM printer_integrations WHERE printer_id IN ?`,
			`DELETE FROM printers WHERE id IN ?`,
		} {
			if err := s.db.WithContext(ctx).Exec(stmt, printerIDs).Error; err != nil {
				AbortWithError(c, err)
				return
			}
		}
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok", "printers": len(printerIDs)})
}
