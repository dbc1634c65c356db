package ipp

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/OpenPrinting/goipp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smallbiznis/printfleet/internal/config"
	"github.com/smallbiznis/printfleet/internal/connector/domain"
	integrationdomain "github.com/smallbiznis/printfleet/internal/integration/domain"
	printerdomain "github.com/smallbiznis/printfleet/internal/printer/domain"
)

func ippServer(t *testing.T, fill func(resp *goipp.Message)) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, goipp.ContentType, r.Header.Get("Content-Type"))

		var req goipp.Message
		if err := req.Decode(r.Body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		assert.Equal(t, goipp.OpGetPrinterAttributes, goipp.Op(req.Code))

		resp := goipp.NewResponse(goipp.DefaultVersion, goipp.StatusOk, req.RequestID)
		resp.Operation.Add(goipp.MakeAttribute("attributes-charset", goipp.TagCharset, goipp.String("utf-8")))
		resp.Operation.Add(goipp.MakeAttribute("attributes-natural-language", goipp.TagLanguage, goipp.String("en")))
		fill(resp)

		payload, err := resp.EncodeBytes()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", goipp.ContentType)
		_, _ = w.Write(payload)
	}))
}

func newConnector(t *testing.T, srv *httptest.Server) domain.Connector {
	t.Helper()
	endpoint := "ipp://" + strings.TrimPrefix(srv.URL, "http://") + "/ipp/print"
	c, err := New(integrationdomain.ConnectorConfig{
		Type:     integrationdomain.TypeIPP,
		Endpoint: endpoint,
		AuthType: integrationdomain.AuthNone,
	}, config.DefaultFleetConfig().Connector)
	require.NoError(t, err)
	return c
}

func TestGetStatusMapsPrinterAttributes(t *testing.T) {
	srv := ippServer(t, func(resp *goipp.Message) {
		resp.Printer.Add(goipp.MakeAttribute("printer-state", goipp.TagEnum, goipp.Integer(4)))
		resp.Printer.Add(goipp.MakeAttr("printer-state-reasons", goipp.TagKeyword, goipp.String("none")))
		resp.Printer.Add(goipp.MakeAttr("marker-names", goipp.TagName,
			goipp.String("Black"),
			goipp.String("Cyan"),
		))
		resp.Printer.Add(goipp.MakeAttr("marker-levels", goipp.TagInteger,
			goipp.Integer(35),
			goipp.Integer(-2),
		))
		resp.Printer.Add(goipp.MakeAttribute("printer-input-tray", goipp.TagString,
			goipp.Binary("type=sheetFeedAutoRemovableTray;mediafeed=0;mediaxfeed=0;maxcapacity=250;level=125;status=0;name=Tray1;")))
		resp.Printer.Add(goipp.MakeAttribute("queued-job-count", goipp.TagInteger, goipp.Integer(3)))
	})
	defer srv.Close()

	status, err := newConnector(t, srv).GetStatus(context.Background())
	require.NoError(t, err)

	assert.Equal(t, printerdomain.StatusPrinting, status.Status)
	assert.Equal(t, map[string]int{"black": 35}, status.TonerLevels)
	assert.Equal(t, map[string]int{"tray1": 50}, status.PaperLevels)
	assert.Equal(t, 3, status.JobQueue)
	assert.Empty(t, status.ErrorMessages)
}

func TestGetStatusWarningReasons(t *testing.T) {
	srv := ippServer(t, func(resp *goipp.Message) {
		resp.Printer.Add(goipp.MakeAttribute("printer-state", goipp.TagEnum, goipp.Integer(3)))
		resp.Printer.Add(goipp.MakeAttr("printer-state-reasons", goipp.TagKeyword, goipp.String("toner-low-warning")))
	})
	defer srv.Close()

	status, err := newConnector(t, srv).GetStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, printerdomain.StatusWarning, status.Status)
	assert.Equal(t, []string{"toner-low-warning"}, status.ErrorMessages)
}

func TestGetStatusIPPErrorIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req goipp.Message
		_ = req.Decode(r.Body)
		resp := goipp.NewResponse(goipp.DefaultVersion, goipp.StatusErrorServiceUnavailable, req.RequestID)
		payload, _ := resp.EncodeBytes()
		_, _ = w.Write(payload)
	}))
	defer srv.Close()

	status, err := newConnector(t, srv).GetStatus(context.Background())
	assert.Nil(t, status)
	assert.ErrorIs(t, err, domain.ErrConnectorUnavailable)
}

func TestResolveEndpoint(t *testing.T) {
	printerURI, target, err := resolve("ipp://10.0.0.9/ipp/print")
	require.NoError(t, err)
	assert.Equal(t, "ipp://10.0.0.9/ipp/print", printerURI)
	assert.Equal(t, "http://10.0.0.9:631/ipp/print", target)

	_, target, err = resolve("https://printer.local/ipp")
	require.NoError(t, err)
	assert.Equal(t, "https://printer.local/ipp", target)

	_, _, err = resolve("ftp://printer.local")
	assert.Error(t, err)
}

func TestNewRejectsAPIKey(t *testing.T) {
	_, err := New(integrationdomain.ConnectorConfig{
		Type:     integrationdomain.TypeIPP,
		Endpoint: "ipp://10.0.0.9/ipp/print",
		AuthType: integrationdomain.AuthAPIKey,
	}, config.DefaultFleetConfig().Connector)
	assert.ErrorIs(t, err, domain.ErrUnsupportedProtocol)
}
