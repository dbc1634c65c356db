package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/printfleet/internal/capture"
	capturedomain "github.com/smallbiznis/printfleet/internal/capture/domain"
	"github.com/smallbiznis/printfleet/internal/config"
	"github.com/smallbiznis/printfleet/internal/connector"
	"github.com/smallbiznis/printfleet/internal/integration"
	integrationdomain "github.com/smallbiznis/printfleet/internal/integration/domain"
	"github.com/smallbiznis/printfleet/internal/observability"
	obsmiddleware "github.com/smallbiznis/printfleet/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/printfleet/internal/observability/metrics"
	obstracing "github.com/smallbiznis/printfleet/internal/observability/tracing"
	"github.com/smallbiznis/printfleet/internal/printer"
	printerdomain "github.com/smallbiznis/printfleet/internal/printer/domain"
	"github.com/smallbiznis/printfleet/internal/printjob"
	printjobdomain "github.com/smallbiznis/printfleet/internal/printjob/domain"
	"github.com/smallbiznis/printfleet/internal/quota"
	"github.com/smallbiznis/printfleet/internal/ratelimit"
	"github.com/smallbiznis/printfleet/internal/scheduler"
	"github.com/smallbiznis/printfleet/internal/user"
	"github.com/smallbiznis/printfleet/internal/webhook"
	webhookdomain "github.com/smallbiznis/printfleet/internal/webhook/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Module wires the HTTP API together with every domain it serves. Listening
// is left to RunHTTP.
var Module = fx.Module("http.server",
	connector.Module,
	integration.Module,
	printer.Module,
	printjob.Module,
	user.Module,
	quota.Module,
	capture.Module,
	webhook.Module,
	ratelimit.Module,
	scheduler.Module,
	fx.Provide(NewEngine),
	fx.Provide(NewServer),
	fx.Invoke(func(s *Server) { s.RegisterAPIRoutes() }),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	if !obsCfg.Debug() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(httpMetrics.Middleware())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func RunHTTP(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", strings.TrimPrefix(cfg.HTTPPort, ":")),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			log.Info("http server listening", zap.String("addr", srv.Addr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

// schedulerControl is the part of the scheduler the API drives.
type schedulerControl interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Restart(ctx context.Context) error
	AddPrinter(ctx context.Context, integrationID snowflake.ID) error
	RemovePrinter(printerID snowflake.ID)
	Status() scheduler.Status
	SyncPrinter(ctx context.Context, printerID snowflake.ID) (printerdomain.Printer, error)
}

type intakeLimiter interface {
	Allow(ctx context.Context, printerID snowflake.ID) ratelimit.Result
}

type Server struct {
	engine         *gin.Engine
	cfg            config.Config
	db             *gorm.DB
	log            *zap.Logger
	captures       capturedomain.Service
	integrations   integrationdomain.Service
	printers       printerdomain.Service
	printJobs      printjobdomain.Service
	webhooks       webhookdomain.Service
	scheduler      schedulerControl
	webhookLimiter intakeLimiter
}

type ServerParams struct {
	fx.In

	Gin            *gin.Engine
	Cfg            config.Config
	DB             *gorm.DB
	Log            *zap.Logger
	Captures       capturedomain.Service
	Integrations   integrationdomain.Service
	Printers       printerdomain.Service
	PrintJobs      printjobdomain.Service
	Webhooks       webhookdomain.Service
	Scheduler      *scheduler.Scheduler
	WebhookLimiter *ratelimit.WebhookIntakeLimiter `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	s := &Server{
		engine:       p.Gin,
		cfg:          p.Cfg,
		db:           p.DB,
		log:          p.Log.Named("http.server"),
		captures:     p.Captures,
		integrations: p.Integrations,
		printers:     p.Printers,
		printJobs:    p.PrintJobs,
		webhooks:     p.Webhooks,
		scheduler:    p.Scheduler,
	}
	if p.WebhookLimiter != nil {
		s.webhookLimiter = p.WebhookLimiter
	}
	return s
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) RegisterAPIRoutes() {
	api := s.engine.Group("/api/v1")

	// -------- Captures --------
	api.POST("/captures", s.CreateCapture)
	api.GET("/captures", s.ListCaptures)
	api.GET("/captures/:id", s.GetCapture)
	api.POST("/captures/:id/process", s.ProcessCapture)

	// -------- Print Jobs --------
	api.GET("/print-jobs/:id", s.GetPrintJob)
	api.PUT("/costs/:department", s.SetDepartmentRate)

	// -------- Integrations --------
	api.POST("/integrations", s.CreateIntegration)
	api.GET("/integrations", s.GetIntegration)
	api.GET("/integrations/:id", s.GetIntegrationByID)
	api.PATCH("/integrations/:id", s.UpdateIntegration)
	api.DELETE("/integrations/:id", s.DeleteIntegration)

	// -------- Printers --------
	api.POST("/printers", s.CreatePrinter)
	api.GET("/printers/:id", s.GetPrinter)
	api.PUT("/printers/:id/status", s.SyncPrinterStatus)
	api.GET("/printers/:id/webhook-deliveries", s.ListWebhookDeliveries)

	// -------- Scheduler --------
	api.GET("/scheduler/status", s.SchedulerStatus)
	api.POST("/scheduler/start", s.StartScheduler)
	api.POST("/scheduler/stop", s.StopScheduler)
	api.POST("/scheduler/restart", s.RestartScheduler)
	api.POST("/scheduler/printers", s.AddSchedulerPrinter)
	api.DELETE("/scheduler/printers/:printerId", s.RemoveSchedulerPrinter)

	// -------- Webhooks --------
	api.POST("/webhooks/print-jobs", s.WebhookIntakeRateLimit(), s.ReceivePrintJobWebhook)

	if !s.cfg.IsProduction() {
		api.POST("/test/cleanup", s.TestCleanup)
	}
}
