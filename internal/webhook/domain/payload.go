package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/bwmarrin/snowflake"
	capturedomain "github.com/smallbiznis/printfleet/internal/capture/domain"
)

const (
	DefaultCopies    = 1
	DefaultPaperType = "PLAIN"
	DefaultQuality   = "NORMAL"
	DefaultPaperSize = "A4"
)

var (
	jobIDKeys     = []string{"jobId", "job_id", "externalJobId", "id"}
	fileNameKeys  = []string{"fileName", "file_name", "document", "documentName"}
	pagesKeys     = []string{"pages", "pageCount", "page_count"}
	copiesKeys    = []string{"copies"}
	colorKeys     = []string{"color", "isColor", "is_color"}
	paperSizeKeys = []string{"paperSize", "paper_size", "media"}
	paperTypeKeys = []string{"paperType", "paper_type", "mediaType"}
	qualityKeys   = []string{"quality", "printQuality"}
	userIDKeys    = []string{"userId", "user_id"}
)

// NormalizePayload maps the vendor field aliases onto a capture request.
// Field validation is left to the capture engine.
func NormalizePayload(printerID snowflake.ID, rawBody []byte) (capturedomain.CaptureRequest, error) {
	dec := json.NewDecoder(bytes.NewReader(rawBody))
	dec.UseNumber()

	var body map[string]any
	if err := dec.Decode(&body); err != nil {
		return capturedomain.CaptureRequest{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if body == nil {
		return capturedomain.CaptureRequest{}, fmt.Errorf("%w: body is not an object", ErrInvalidPayload)
	}

	req := capturedomain.CaptureRequest{
		PrinterID:     printerID,
		ExternalJobID: stringField(body, jobIDKeys),
		FileName:      stringField(body, fileNameKeys),
		PaperSize:     stringField(body, paperSizeKeys),
		PaperType:     stringField(body, paperTypeKeys),
		Quality:       stringField(body, qualityKeys),
		Source:        capturedomain.SourceWebhook,
	}

	var err error
	if req.Pages, _, err = intField(body, pagesKeys); err != nil {
		return capturedomain.CaptureRequest{}, err
	}
	copies, ok, err := intField(body, copiesKeys)
	if err != nil {
		return capturedomain.CaptureRequest{}, err
	}
	if !ok {
		copies = DefaultCopies
	}
	req.Copies = copies

	req.IsColor = boolField(body, colorKeys)
	if mode, ok := body["colorMode"].(string); ok && strings.EqualFold(mode, "color") {
		req.IsColor = true
	}

	if req.PaperSize == "" {
		req.PaperSize = DefaultPaperSize
	}
	if req.PaperType == "" {
		req.PaperType = DefaultPaperType
	}
	if req.Quality == "" {
		req.Quality = DefaultQuality
	}

	if raw := stringField(body, userIDKeys); raw != "" {
		id, err := snowflake.ParseString(raw)
		if err != nil {
			return capturedomain.CaptureRequest{}, fmt.Errorf("%w: user id %q", ErrInvalidPayload, raw)
		}
		req.UserID = &id
	}

	if meta, ok := body["metadata"].(map[string]any); ok {
		req.Metadata = meta
	}
	return req, nil
}

func lookup(body map[string]any, keys []string) (any, bool) {
	for _, k := range keys {
		if v, ok := body[k]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

func stringField(body map[string]any, keys []string) string {
	v, ok := lookup(body, keys)
	if !ok {
		return ""
	}
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val)
	case json.Number:
		return val.String()
	default:
		return ""
	}
}

func intField(body map[string]any, keys []string) (int, bool, error) {
	v, ok := lookup(body, keys)
	if !ok {
		return 0, false, nil
	}
	var raw string
	switch val := v.(type) {
	case json.Number:
		raw = val.String()
	case string:
		raw = strings.TrimSpace(val)
	default:
		return 0, false, fmt.Errorf("%w: %s is not a number", ErrInvalidPayload, keys[0])
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false, fmt.Errorf("%w: %s is not an integer", ErrInvalidPayload, keys[0])
	}
	return n, true, nil
}

func boolField(body map[string]any, keys []string) bool {
	v, ok := lookup(body, keys)
	if !ok {
		return false
	}
	switch val := v.(type) {
	case bool:
		return val
	case string:
		b, _ := strconv.ParseBool(val)
		return b
	default:
		return false
	}
}
