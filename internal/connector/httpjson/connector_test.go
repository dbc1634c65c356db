package httpjson

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smallbiznis/printfleet/internal/config"
	"github.com/smallbiznis/printfleet/internal/connector/domain"
	integrationdomain "github.com/smallbiznis/printfleet/internal/integration/domain"
	printerdomain "github.com/smallbiznis/printfleet/internal/printer/domain"
)

func newConnector(t *testing.T, endpoint string, auth integrationdomain.AuthType, creds integrationdomain.Credentials) domain.Connector {
	t.Helper()
	c, err := New(integrationdomain.ConnectorConfig{
		Type:        integrationdomain.TypeHTTP,
		Endpoint:    endpoint,
		AuthType:    auth,
		Credentials: creds,
	}, config.DefaultFleetConfig().Connector)
	require.NoError(t, err)
	return c
}

func TestGetStatusParsesDocument(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "k-1", r.Header.Get("X-API-Key"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"printing","tonerLevels":{"Black":40,"cyan":120},"paperLevels":{"tray1":80},"errors":["door open"],"jobQueue":2,"totalPagesMonth":1200}`))
	}))
	defer srv.Close()

	c := newConnector(t, srv.URL, integrationdomain.AuthAPIKey, integrationdomain.Credentials{APIKey: "k-1"})
	status, err := c.GetStatus(context.Background())
	require.NoError(t, err)

	assert.Equal(t, printerdomain.StatusPrinting, status.Status)
	assert.Equal(t, map[string]int{"black": 40, "cyan": 100}, status.TonerLevels)
	assert.Equal(t, 80, status.PaperLevels["tray1"])
	assert.Equal(t, []string{"door open"}, status.ErrorMessages)
	assert.Equal(t, 2, status.JobQueue)
	assert.Equal(t, 1200, status.TotalPagesMonth)
}

func TestGetStatusBasicAuth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "admin" || pass != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"status":"ONLINE"}`))
	}))
	defer srv.Close()

	c := newConnector(t, srv.URL, integrationdomain.AuthBasic, integrationdomain.Credentials{Username: "admin", Password: "secret"})
	status, err := c.GetStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, printerdomain.StatusOnline, status.Status)

	bad := newConnector(t, srv.URL, integrationdomain.AuthBasic, integrationdomain.Credentials{Username: "admin", Password: "nope"})
	status, err = bad.GetStatus(context.Background())
	assert.Nil(t, status)
	assert.ErrorIs(t, err, domain.ErrConnectorUnavailable)
}

func TestGetStatusTimeoutIsUnavailable(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	c := newConnector(t, srv.URL, integrationdomain.AuthNone, integrationdomain.Credentials{})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	status, err := c.GetStatus(ctx)
	assert.Nil(t, status)
	assert.ErrorIs(t, err, domain.ErrConnectorUnavailable)
}

func TestGetStatusRejectsMalformedDocument(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"ASLEEP"}`))
	}))
	defer srv.Close()

	c := newConnector(t, srv.URL, integrationdomain.AuthNone, integrationdomain.Credentials{})
	status, err := c.GetStatus(context.Background())
	assert.Nil(t, status)
	var cerr *domain.Error
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, domain.KindInvalidResponse, cerr.Kind)
}

func TestGetStatusReusesConnections(t *testing.T) {
	var opened atomic.Int32
	srv := httptest.NewUnstartedServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"online","tonerLevels":{"black":50}}` + "\n\n"))
	}))
	srv.Config.ConnState = func(_ net.Conn, state http.ConnState) {
		if state == http.StateNew {
			opened.Add(1)
		}
	}
	srv.Start()
	defer srv.Close()

	// A fresh connector per poll, the way the scheduler builds them.
	for i := 0; i < 20; i++ {
		c := newConnector(t, srv.URL, integrationdomain.AuthNone, integrationdomain.Credentials{})
		_, err := c.GetStatus(context.Background())
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), opened.Load())
}
