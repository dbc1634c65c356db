package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/printfleet/internal/clock"
	"github.com/smallbiznis/printfleet/internal/config"
	"github.com/smallbiznis/printfleet/internal/migration"
	"github.com/smallbiznis/printfleet/internal/observability"
	obsmetrics "github.com/smallbiznis/printfleet/internal/observability/metrics"
	quotadomain "github.com/smallbiznis/printfleet/internal/quota/domain"
	"github.com/smallbiznis/printfleet/internal/server"
	userdomain "github.com/smallbiznis/printfleet/internal/user/domain"
	webhookdomain "github.com/smallbiznis/printfleet/internal/webhook/domain"
	"github.com/smallbiznis/printfleet/pkg/db"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	deviceAPIKey  = "device-key"
	webhookSecret = "whsec_e2e"
)

type testEnv struct {
	app     *fx.App
	db      *gorm.DB
	genID   *snowflake.Node
	baseURL string
	httpSrv *httptest.Server
	device  *deviceServer
}

// deviceServer imitates a printer that reports its status as JSON.
type deviceServer struct {
	srv      *httptest.Server
	requests atomic.Int64
	authFail atomic.Int64
}

func newDeviceServer(t *testing.T) *deviceServer {
	t.Helper()
	d := &deviceServer{}
	d.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		d.requests.Add(1)
		if r.Header.Get("X-API-Key") != deviceAPIKey {
			d.authFail.Add(1)
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"status":"online","tonerLevels":{"Black":80,"Cyan":120},"paperLevels":{"tray1":55},"errors":[],"jobQueue":2,"totalPagesMonth":1200}`)
	}))
	t.Cleanup(d.srv.Close)
	return d
}

func startEnv(t *testing.T) *testEnv {
	t.Helper()

	conn, err := db.NewTest(fmt.Sprintf("e2e_%d", time.Now().UnixNano()))
	require.NoError(t, err)

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	cfg := config.Config{
		Environment:          "test",
		HTTPPort:             "0",
		IntegrationSecretKey: "e2e-secret",
		SchedulerAutostart:   false,
	}

	var srv *server.Server
	app := fx.New(
		fx.NopLogger,
		fx.Supply(cfg),
		fx.Supply(config.NewStaticFleetConfigHolder(config.DefaultFleetConfig())),
		fx.Supply(observability.Config{Environment: "test"}),
		fx.Supply(zap.NewNop()),
		fx.Supply(node),
		fx.Supply(conn),
		fx.Provide(func() *obsmetrics.HTTPMetrics { return nil }),
		clock.Module,
		migration.Module,
		server.Module,
		fx.Populate(&srv),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, app.Start(ctx))

	httpSrv := httptest.NewServer(srv.Engine())
	env := &testEnv{
		app:     app,
		db:      conn,
		genID:   node,
		baseURL: httpSrv.URL,
		httpSrv: httpSrv,
		device:  newDeviceServer(t),
	}
	t.Cleanup(func() {
		httpSrv.Close()
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer stopCancel()
		_ = app.Stop(stopCtx)
		if sqlDB, err := conn.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return env
}

type response struct {
	status int
	header http.Header
	body   []byte
}

func (r response) decode(t *testing.T, out any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(r.body, out), string(r.body))
}

func (e *testEnv) do(t *testing.T, method, path string, body []byte, headers map[string]string) response {
	t.Helper()

	req, err := http.NewRequest(method, e.baseURL+path, bytes.NewReader(body))
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := e.httpSrv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return response{status: resp.StatusCode, header: resp.Header, body: raw}
}

func (e *testEnv) doJSON(t *testing.T, method, path string, payload any) response {
	t.Helper()
	var body []byte
	if payload != nil {
		raw, err := json.Marshal(payload)
		require.NoError(t, err)
		body = raw
	}
	return e.do(t, method, path, body, nil)
}

func (e *testEnv) seedUser(t *testing.T, department string, monthlyLimit int) userdomain.User {
	t.Helper()
	now := time.Now().UTC()
	user := userdomain.User{
		ID:         e.genID.Generate(),
		Name:       "Ada",
		Email:      fmt.Sprintf("ada+%d@example.com", now.UnixNano()),
		Department: department,
		IsActive:   true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	require.NoError(t, e.db.Create(&user).Error)
	quota := quotadomain.Quota{
		ID:           e.genID.Generate(),
		UserID:       user.ID,
		MonthlyLimit: monthlyLimit,
		ColorLimit:   monthlyLimit,
		PeriodStart:  now,
		UpdatedAt:    now,
	}
	require.NoError(t, e.db.Create(&quota).Error)
	return user
}

type printerEnvelope struct {
	Data struct {
		ID              snowflake.ID   `json:"id"`
		Status          string         `json:"status"`
		TonerLevels     map[string]int `json:"toner_levels"`
		JobQueue        int            `json:"job_queue"`
		TotalPagesMonth int            `json:"total_pages_month"`
	} `json:"data"`
}

type webhookEnvelope struct {
	Data struct {
		DeliveryID string `json:"delivery_id"`
		Duplicate  bool   `json:"duplicate"`
		ErrorCode  string `json:"error_code"`
		Capture    *struct {
			ID         snowflake.ID  `json:"id"`
			Status     string        `json:"status"`
			PrintJobID *snowflake.ID `json:"print_job_id"`
		} `json:"capture"`
		Job *struct {
			ID         snowflake.ID `json:"id"`
			Department string       `json:"department"`
			TotalPages int          `json:"total_pages"`
			UnitCost   float64      `json:"unit_cost"`
			Cost       float64      `json:"cost"`
		} `json:"job"`
	} `json:"data"`
}

type errorEnvelope struct {
	Error struct {
		Code   string            `json:"code"`
		Fields map[string]string `json:"fields"`
	} `json:"error"`
}

func TestPrintFleetFlow(t *testing.T) {
	env := startEnv(t)

	health := env.do(t, http.MethodGet, "/health", nil, nil)
	require.Equal(t, http.StatusOK, health.status)

	created := env.doJSON(t, http.MethodPost, "/api/v1/printers", map[string]any{
		"name":       "e2e-floor-3",
		"model":      "LaserJet",
		"location":   "Floor 3",
		"department": "ENG",
	})
	require.Equal(t, http.StatusCreated, created.status, string(created.body))
	var printer printerEnvelope
	created.decode(t, &printer)
	require.NotZero(t, printer.Data.ID)
	require.Equal(t, "OFFLINE", printer.Data.Status)
	printerID := printer.Data.ID.String()

	user := env.seedUser(t, "ENG", 100)

	rate := env.doJSON(t, http.MethodPut, "/api/v1/costs/ENG", map[string]any{
		"blackAndWhitePage": 0.05,
		"colorPage":         0.25,
	})
	require.Equal(t, http.StatusOK, rate.status, string(rate.body))

	integration := env.doJSON(t, http.MethodPost, "/api/v1/integrations", map[string]any{
		"printerId":     printerID,
		"type":          "HTTP",
		"endpoint":      env.device.srv.URL + "/status",
		"authType":      "API_KEY",
		"credentials":   map[string]any{"apiKey": deviceAPIKey},
		"webhookSecret": webhookSecret,
		"pollInterval":  60,
	})
	require.Equal(t, http.StatusCreated, integration.status, string(integration.body))

	synced := env.do(t, http.MethodPut, "/api/v1/printers/"+printerID+"/status", nil, nil)
	require.Equal(t, http.StatusOK, synced.status, string(synced.body))
	var status printerEnvelope
	synced.decode(t, &status)
	require.Equal(t, "ONLINE", status.Data.Status)
	require.Equal(t, 80, status.Data.TonerLevels["black"])
	require.Equal(t, 100, status.Data.TonerLevels["cyan"])
	require.Equal(t, 2, status.Data.JobQueue)
	require.Equal(t, 1200, status.Data.TotalPagesMonth)
	require.EqualValues(t, 0, env.device.authFail.Load())

	payload := []byte(fmt.Sprintf(`{"jobId":"job-1","fileName":"report.pdf","pages":3,"copies":2,"userId":"%s"}`, user.ID.String()))
	headers := map[string]string{
		server.HeaderPrinterID: printerID,
		server.HeaderSignature: webhookdomain.Sign(payload, webhookSecret),
	}

	first := env.do(t, http.MethodPost, "/api/v1/webhooks/print-jobs", payload, headers)
	require.Equal(t, http.StatusOK, first.status, string(first.body))
	var accepted webhookEnvelope
	first.decode(t, &accepted)
	require.False(t, accepted.Data.Duplicate)
	require.NotNil(t, accepted.Data.Job)
	require.Equal(t, "ENG", accepted.Data.Job.Department)
	require.Equal(t, 6, accepted.Data.Job.TotalPages)
	require.InDelta(t, 0.05, accepted.Data.Job.UnitCost, 1e-9)
	require.InDelta(t, 0.30, accepted.Data.Job.Cost, 1e-9)
	require.NotNil(t, accepted.Data.Capture)
	require.Equal(t, "PROCESSED", accepted.Data.Capture.Status)

	job := env.do(t, http.MethodGet, "/api/v1/print-jobs/"+accepted.Data.Job.ID.String(), nil, nil)
	require.Equal(t, http.StatusOK, job.status, string(job.body))

	replay := env.do(t, http.MethodPost, "/api/v1/webhooks/print-jobs", payload, headers)
	require.Equal(t, http.StatusOK, replay.status, string(replay.body))
	var duplicate webhookEnvelope
	replay.decode(t, &duplicate)
	require.True(t, duplicate.Data.Duplicate)
	require.Nil(t, duplicate.Data.Job)

	forged := env.do(t, http.MethodPost, "/api/v1/webhooks/print-jobs", payload, map[string]string{
		server.HeaderPrinterID: printerID,
		server.HeaderSignature: webhookdomain.Sign(payload, "wrong-secret"),
	})
	require.Equal(t, http.StatusUnauthorized, forged.status, string(forged.body))
	var rejected errorEnvelope
	forged.decode(t, &rejected)
	require.Equal(t, "signature_invalid", rejected.Error.Code)

	var quota quotadomain.Quota
	require.NoError(t, env.db.Where("user_id = ?", user.ID).First(&quota).Error)
	require.Equal(t, 6, quota.CurrentUsage)
	require.Equal(t, 0, quota.ColorUsage)

	deliveries := env.do(t, http.MethodGet, "/api/v1/printers/"+printerID+"/webhook-deliveries", nil, nil)
	require.Equal(t, http.StatusOK, deliveries.status, string(deliveries.body))
	var audit struct {
		Data []struct {
			Outcome string `json:"outcome"`
		} `json:"data"`
	}
	deliveries.decode(t, &audit)
	require.Len(t, audit.Data, 3)
}

func TestQuotaExceededIsRecorded(t *testing.T) {
	env := startEnv(t)

	created := env.doJSON(t, http.MethodPost, "/api/v1/printers", map[string]any{"name": "e2e-lobby"})
	require.Equal(t, http.StatusCreated, created.status, string(created.body))
	var printer printerEnvelope
	created.decode(t, &printer)
	printerID := printer.Data.ID.String()

	user := env.seedUser(t, "", 4)

	capture := env.doJSON(t, http.MethodPost, "/api/v1/captures", map[string]any{
		"printerId":     printerID,
		"externalJobId": "big-job",
		"fileName":      "handbook.pdf",
		"pages":         5,
		"copies":        1,
		"paperSize":     "A4",
		"paperType":     "PLAIN",
		"quality":       "NORMAL",
	})
	require.Equal(t, http.StatusCreated, capture.status, string(capture.body))
	var captured struct {
		Data struct {
			ID snowflake.ID `json:"id"`
		} `json:"data"`
	}
	capture.decode(t, &captured)

	processed := env.doJSON(t, http.MethodPost, "/api/v1/captures/"+captured.Data.ID.String()+"/process", map[string]any{
		"userId": user.ID.String(),
	})
	require.Equal(t, http.StatusUnprocessableEntity, processed.status, string(processed.body))
	var failure errorEnvelope
	processed.decode(t, &failure)
	require.Equal(t, "quota_exceeded", failure.Error.Code)

	stored := env.do(t, http.MethodGet, "/api/v1/captures/"+captured.Data.ID.String(), nil, nil)
	require.Equal(t, http.StatusOK, stored.status)
	var after struct {
		Data struct {
			Status    string `json:"status"`
			ErrorCode string `json:"error_code"`
		} `json:"data"`
	}
	stored.decode(t, &after)
	require.Equal(t, "ERROR", after.Data.Status)
	require.Equal(t, "quota_exceeded", after.Data.ErrorCode)
}

func TestSchedulerLifecycle(t *testing.T) {
	env := startEnv(t)

	status := env.do(t, http.MethodGet, "/api/v1/scheduler/status", nil, nil)
	require.Equal(t, http.StatusOK, status.status)
	var st struct {
		Data struct {
			Running bool `json:"running"`
		} `json:"data"`
	}
	status.decode(t, &st)
	require.False(t, st.Data.Running)

	added := env.doJSON(t, http.MethodPost, "/api/v1/scheduler/printers", map[string]any{
		"integrationId": env.genID.Generate().String(),
	})
	require.Equal(t, http.StatusNotFound, added.status, string(added.body))

	started := env.do(t, http.MethodPost, "/api/v1/scheduler/start", nil, nil)
	require.Equal(t, http.StatusOK, started.status, string(started.body))
	started.decode(t, &st)
	require.True(t, st.Data.Running)

	stopped := env.do(t, http.MethodPost, "/api/v1/scheduler/stop", nil, nil)
	require.Equal(t, http.StatusOK, stopped.status, string(stopped.body))
	stopped.decode(t, &st)
	require.False(t, st.Data.Running)
}
