package domain

import (
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	capturedomain "github.com/smallbiznis/printfleet/internal/capture/domain"
)

func TestNormalizePayloadAliases(t *testing.T) {
	req, err := NormalizePayload(snowflake.ID(9), []byte(`{
		"job_id": "srv-77",
		"documentName": "q3.pdf",
		"pageCount": "4",
		"copies": 2,
		"colorMode": "Color",
		"media": "letter",
		"mediaType": "glossy",
		"printQuality": "high",
		"user_id": "1234",
		"metadata": {"queue": "floor-2"}
	}`))
	require.NoError(t, err)

	assert.Equal(t, snowflake.ID(9), req.PrinterID)
	assert.Equal(t, "srv-77", req.ExternalJobID)
	assert.Equal(t, "q3.pdf", req.FileName)
	assert.Equal(t, 4, req.Pages)
	assert.Equal(t, 2, req.Copies)
	assert.True(t, req.IsColor)
	assert.Equal(t, "letter", req.PaperSize)
	assert.Equal(t, "glossy", req.PaperType)
	assert.Equal(t, "high", req.Quality)
	require.NotNil(t, req.UserID)
	assert.Equal(t, snowflake.ID(1234), *req.UserID)
	assert.Equal(t, "floor-2", req.Metadata["queue"])
	assert.Equal(t, capturedomain.SourceWebhook, req.Source)
}

func TestNormalizePayloadDefaults(t *testing.T) {
	req, err := NormalizePayload(snowflake.ID(9), []byte(`{"id": 55, "fileName": "a.txt", "pages": 1}`))
	require.NoError(t, err)

	assert.Equal(t, "55", req.ExternalJobID)
	assert.Equal(t, DefaultCopies, req.Copies)
	assert.Equal(t, DefaultPaperSize, req.PaperSize)
	assert.Equal(t, DefaultPaperType, req.PaperType)
	assert.Equal(t, DefaultQuality, req.Quality)
	assert.False(t, req.IsColor)
	assert.Nil(t, req.UserID)
}

func TestNormalizePayloadRejectsGarbage(t *testing.T) {
	for _, body := range []string{`not json`, `null`, `{"pages": "many"}`, `{"pages": 1.5}`, `{"userId": "abc"}`} {
		_, err := NormalizePayload(snowflake.ID(1), []byte(body))
		assert.ErrorIs(t, err, ErrInvalidPayload, body)
	}
}
