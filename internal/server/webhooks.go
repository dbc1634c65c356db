package server

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
)

const maxWebhookBody = 1 << 20

// ReceivePrintJobWebhook takes a device or print server job notification. The
// body is read raw because the signature covers the exact bytes sent.
func (s *Server) ReceivePrintJobWebhook(c *gin.Context) {
	printerID, ok := printerIDFromContext(c)
	if !ok {
		AbortWithError(c, newValidationError(HeaderPrinterID, "missing_header", "X-Printer-ID header is required"))
		return
	}

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody+1))
	if err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if len(body) > maxWebhookBody {
		AbortWithError(c, newValidationError("body", "too_large", "payload too large"))
		return
	}

	resp, err := s.webhooks.ProcessWebhook(c.Request.Context(), printerID, body, c.GetHeader(HeaderSignature))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
