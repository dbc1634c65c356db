package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/smallbiznis/printfleet/internal/config"
	"github.com/smallbiznis/printfleet/internal/integration/domain"
	"github.com/smallbiznis/printfleet/internal/integration/repository"
	"github.com/smallbiznis/printfleet/pkg/db"
)

func newTestService(t *testing.T, secretKey string) (*Service, *snowflake.Node) {
	t.Helper()

	conn, err := db.NewTest(t.Name())
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&domain.Integration{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	svc, err := New(Params{
		DB:    conn,
		Log:   zap.NewNop(),
		Cfg:   config.Config{IntegrationSecretKey: secretKey},
		GenID: node,
		Repo:  repository.Provide(),
	})
	require.NoError(t, err)
	return svc.(*Service), node
}

func TestCreate_ValidatesEnumerations(t *testing.T) {
	svc, node := newTestService(t, "")
	ctx := context.Background()

	_, err := svc.Create(ctx, domain.CreateRequest{
		PrinterID: node.Generate(),
		Type:      "BLUETOOTH",
		Endpoint:  "http://10.0.0.5/status",
	})
	require.ErrorIs(t, err, domain.ErrInvalidConfig)
	assert.ErrorIs(t, err, domain.ErrInvalidType)

	_, err = svc.Create(ctx, domain.CreateRequest{
		PrinterID: node.Generate(),
		Type:      "HTTP",
		Endpoint:  "http://10.0.0.5/status",
		AuthType:  "OAUTH",
	})
	require.ErrorIs(t, err, domain.ErrInvalidConfig)
	assert.ErrorIs(t, err, domain.ErrInvalidAuthType)
}

func TestCreate_NormalizesAndDefaults(t *testing.T) {
	svc, node := newTestService(t, "")
	printerID := node.Generate()

	created, err := svc.Create(context.Background(), domain.CreateRequest{
		PrinterID: printerID,
		Type:      "snmp",
		Endpoint:  "10.0.0.7:161",
	})
	require.NoError(t, err)

	assert.Equal(t, domain.TypeSNMP, created.Type)
	assert.Equal(t, domain.AuthNone, created.AuthType)
	assert.Equal(t, domain.DefaultPollInterval, created.PollInterval)
	assert.True(t, created.IsActive)
	assert.Nil(t, created.LastSync)
}

func TestCreate_RejectsCredentialMismatch(t *testing.T) {
	svc, node := newTestService(t, "")

	_, err := svc.Create(context.Background(), domain.CreateRequest{
		PrinterID:   node.Generate(),
		Type:        "HTTP",
		Endpoint:    "https://printer.local/api/status",
		AuthType:    "BASIC",
		Credentials: domain.Credentials{Username: "admin"},
	})
	require.ErrorIs(t, err, domain.ErrInvalidCredentials)
}

func TestCreate_RejectsBadEndpoint(t *testing.T) {
	svc, node := newTestService(t, "")

	cases := []struct {
		typ      string
		endpoint string
	}{
		{typ: "HTTP", endpoint: ""},
		{typ: "HTTP", endpoint: "ftp://printer.local"},
		{typ: "IPP", endpoint: "printer.local"},
		{typ: "SNMP", endpoint: "http://10.0.0.1/x"},
	}
	for _, tc := range cases {
		_, err := svc.Create(context.Background(), domain.CreateRequest{
			PrinterID: node.Generate(),
			Type:      tc.typ,
			Endpoint:  tc.endpoint,
		})
		assert.ErrorIs(t, err, domain.ErrInvalidEndpoint, "%s %q", tc.typ, tc.endpoint)
	}
}

func TestCreate_DuplicatePrinterType(t *testing.T) {
	svc, node := newTestService(t, "")
	printerID := node.Generate()
	req := domain.CreateRequest{
		PrinterID: printerID,
		Type:      "IPP",
		Endpoint:  "ipp://10.0.0.9/ipp/print",
	}

	_, err := svc.Create(context.Background(), req)
	require.NoError(t, err)

	_, err = svc.Create(context.Background(), req)
	require.ErrorIs(t, err, domain.ErrDuplicateIntegration)

	req.Type = "SNMP"
	req.Endpoint = "10.0.0.9"
	_, err = svc.Create(context.Background(), req)
	require.NoError(t, err)
}

func TestGet_ByPrinterAndType(t *testing.T) {
	svc, node := newTestService(t, "")
	ctx := context.Background()
	printerID := node.Generate()

	ipp, err := svc.Create(ctx, domain.CreateRequest{PrinterID: printerID, Type: "IPP", Endpoint: "ipp://10.0.0.9/ipp/print"})
	require.NoError(t, err)

	got, err := svc.Get(ctx, printerID, "ipp")
	require.NoError(t, err)
	assert.Equal(t, ipp.ID, got.ID)

	got, err = svc.Get(ctx, printerID, "")
	require.NoError(t, err)
	assert.Equal(t, ipp.ID, got.ID)

	_, err = svc.Get(ctx, printerID, "WSD")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = svc.Get(ctx, node.Generate(), "")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCredentialsAreSealedAtRest(t *testing.T) {
	svc, node := newTestService(t, "unit-test-secret")
	ctx := context.Background()

	created, err := svc.Create(ctx, domain.CreateRequest{
		PrinterID:     node.Generate(),
		Type:          "HTTP",
		Endpoint:      "https://printer.local/api/status",
		AuthType:      "API_KEY",
		Credentials:   domain.Credentials{APIKey: "k-123"},
		WebhookSecret: "whsec_1",
	})
	require.NoError(t, err)
	assert.True(t, created.HasCredentials)
	assert.True(t, created.HasWebhookSecret)

	var raw domain.Integration
	require.NoError(t, svc.db.Where("id = ?", created.ID).Take(&raw).Error)
	assert.NotContains(t, string(raw.SealedCredentials), "k-123")
	assert.NotContains(t, string(raw.SealedWebhookSecret), "whsec_1")

	cfg, err := svc.ConnectorConfig(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "k-123", cfg.Credentials.APIKey)
	assert.Equal(t, domain.AuthAPIKey, cfg.AuthType)
	assert.Equal(t, 300*time.Second, cfg.PollInterval)

	secrets, err := svc.WebhookSecrets(ctx, created.PrinterID)
	require.NoError(t, err)
	assert.Equal(t, []string{"whsec_1"}, secrets)
}

func TestSealedCredentialsNeedKey(t *testing.T) {
	sealed, err := newSealer("k1")
	require.NoError(t, err)
	blob, err := sealed.seal(domain.Credentials{APIKey: "abc"})
	require.NoError(t, err)

	plain, err := newSealer("")
	require.NoError(t, err)
	var out domain.Credentials
	assert.True(t, errors.Is(plain.open(blob, &out), domain.ErrSecretKeyMissing))

	other, err := newSealer("k2")
	require.NoError(t, err)
	assert.Error(t, other.open(blob, &out))

	require.NoError(t, sealed.open(blob, &out))
	assert.Equal(t, "abc", out.APIKey)
}

func TestUpdate_PartialAndLastWriterWins(t *testing.T) {
	svc, node := newTestService(t, "")
	ctx := context.Background()

	created, err := svc.Create(ctx, domain.CreateRequest{
		PrinterID: node.Generate(),
		Type:      "HTTP",
		Endpoint:  "http://printer.local/status",
	})
	require.NoError(t, err)

	interval := 60
	inactive := false
	_, err = svc.Update(ctx, created.ID, domain.UpdateRequest{PollInterval: &interval})
	require.NoError(t, err)
	updated, err := svc.Update(ctx, created.ID, domain.UpdateRequest{IsActive: &inactive})
	require.NoError(t, err)

	assert.Equal(t, 60, updated.PollInterval)
	assert.False(t, updated.IsActive)
	assert.Equal(t, created.Endpoint, updated.Endpoint)

	active, err := svc.ListActive(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)

	basic := "BASIC"
	_, err = svc.Update(ctx, created.ID, domain.UpdateRequest{AuthType: &basic})
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)
}

func TestMarkSyncedAndRecordError(t *testing.T) {
	svc, node := newTestService(t, "")
	ctx := context.Background()

	created, err := svc.Create(ctx, domain.CreateRequest{
		PrinterID: node.Generate(),
		Type:      "WSD",
		Endpoint:  "http://10.0.0.3:5357/print",
	})
	require.NoError(t, err)

	require.NoError(t, svc.RecordError(ctx, created.ID, "connector_unavailable: timeout"))
	got, err := svc.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "connector_unavailable: timeout", got.LastError)

	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, svc.MarkSynced(ctx, created.ID, at))
	got, err = svc.GetByID(ctx, created.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastSync)
	assert.True(t, at.Equal(got.LastSync.UTC()))
	assert.Empty(t, got.LastError)

	assert.ErrorIs(t, svc.MarkSynced(ctx, node.Generate(), at), domain.ErrNotFound)
}

func TestDelete(t *testing.T) {
	svc, node := newTestService(t, "")
	ctx := context.Background()

	created, err := svc.Create(ctx, domain.CreateRequest{
		PrinterID: node.Generate(),
		Type:      "HTTP",
		Endpoint:  "http://printer.local/status",
	})
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, created.ID))
	assert.ErrorIs(t, svc.Delete(ctx, created.ID), domain.ErrNotFound)
	_, err = svc.GetByID(ctx, created.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
