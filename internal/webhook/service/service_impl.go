package service

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	capturedomain "github.com/smallbiznis/printfleet/internal/capture/domain"
	integrationdomain "github.com/smallbiznis/printfleet/internal/integration/domain"
	"github.com/smallbiznis/printfleet/internal/observability/metrics"
	"github.com/smallbiznis/printfleet/internal/webhook/domain"
	"github.com/smallbiznis/printfleet/pkg/telemetry/correlation"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// SecretSource resolves the webhook secrets configured for a printer.
type SecretSource interface {
	WebhookSecrets(ctx context.Context, printerID snowflake.ID) ([]string, error)
}

type Params struct {
	fx.In

	DB           *gorm.DB
	Log          *zap.Logger
	Repo         domain.Repository
	Integrations integrationdomain.Service
	Captures     capturedomain.Service
	Metrics      *metrics.Metrics `optional:"true"`
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	repo     domain.Repository
	secrets  SecretSource
	captures capturedomain.Service
	metrics  *metrics.Metrics
	now      func() time.Time
}

func New(p Params) *Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("webhook.service"),
		repo:     p.Repo,
		secrets:  p.Integrations,
		captures: p.Captures,
		metrics:  p.Metrics,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) ProcessWebhook(ctx context.Context, printerID snowflake.ID, rawBody []byte, signature string) (domain.Result, error) {
	delivery := &domain.Delivery{
		ID:         correlation.NewID(),
		PrinterID:  printerID,
		ReceivedAt: s.now(),
	}
	log := s.log.With(
		zap.String("delivery_id", delivery.ID),
		zap.String("printer_id", printerID.String()),
	)
	result := domain.Result{DeliveryID: delivery.ID}

	if err := s.verify(ctx, delivery, rawBody, signature); err != nil {
		if errors.Is(err, domain.ErrSignatureInvalid) {
			log.Warn("webhook signature rejected")
			s.audit(ctx, delivery, domain.OutcomeRejected, domain.ErrSignatureInvalid.Error())
		} else {
			log.Error("resolve webhook secret", zap.Error(err))
			s.audit(ctx, delivery, domain.OutcomeFailed, "internal_error")
		}
		return result, err
	}

	req, err := domain.NormalizePayload(printerID, rawBody)
	if err != nil {
		s.audit(ctx, delivery, domain.OutcomeRejected, domain.ErrInvalidPayload.Error())
		return result, err
	}
	delivery.ExternalJobID = req.ExternalJobID

	capture, err := s.captures.CaptureJob(ctx, req)
	switch {
	case errors.Is(err, capturedomain.ErrDuplicateCapture):
		log.Info("duplicate webhook delivery", zap.String("external_job_id", req.ExternalJobID))
		s.audit(ctx, delivery, domain.OutcomeDuplicate, "")
		result.Duplicate = true
		return result, nil
	case errors.Is(err, capturedomain.ErrInvalidCapture):
		s.audit(ctx, delivery, domain.OutcomeRejected, capturedomain.ErrInvalidCapture.Error())
		return result, err
	case err != nil:
		log.Error("capture webhook job", zap.Error(err))
		s.audit(ctx, delivery, domain.OutcomeFailed, "internal_error")
		return result, err
	}
	delivery.CaptureID = &capture.ID
	result.Capture = &capture

	outcome, err := s.captures.ProcessCapture(ctx, capture.ID, nil)
	if code, ok := processingCode(err); ok {
		log.Info("webhook capture not billed",
			zap.String("capture_id", capture.ID.String()),
			zap.String("reason", code),
		)
		result.ErrorCode = code
		if outcome.Capture.ID != 0 {
			result.Capture = &outcome.Capture
		} else if refreshed, getErr := s.captures.GetCapture(ctx, capture.ID); getErr == nil {
			result.Capture = &refreshed
		}
		s.audit(ctx, delivery, domain.OutcomeAccepted, code)
		return result, nil
	}
	if err != nil {
		log.Error("process webhook capture", zap.Error(err))
		s.audit(ctx, delivery, domain.OutcomeFailed, "internal_error")
		return result, err
	}

	result.Capture = &outcome.Capture
	result.Job = outcome.Job
	s.audit(ctx, delivery, domain.OutcomeAccepted, "")
	return result, nil
}

func (s *Service) ListDeliveries(ctx context.Context, printerID snowflake.ID, limit int) ([]domain.Delivery, error) {
	return s.repo.ListByPrinter(ctx, s.db, printerID, limit)
}

// verify passes when any active integration's secret matches. Printers with
// no secret configured accept unsigned deliveries.
func (s *Service) verify(ctx context.Context, delivery *domain.Delivery, rawBody []byte, signature string) error {
	secrets, err := s.secrets.WebhookSecrets(ctx, delivery.PrinterID)
	if err != nil {
		return err
	}
	if len(secrets) == 0 {
		return nil
	}

	valid := false
	for _, secret := range secrets {
		ok, err := domain.ValidateSignature(rawBody, signature, secret)
		if err != nil {
			break
		}
		if ok {
			valid = true
			break
		}
	}
	delivery.SignatureValid = &valid
	if !valid {
		return domain.ErrSignatureInvalid
	}
	return nil
}

func (s *Service) audit(ctx context.Context, delivery *domain.Delivery, outcome domain.Outcome, code string) {
	delivery.Outcome = outcome
	delivery.ErrorCode = code
	s.metrics.RecordWebhookDelivery(ctx, string(outcome))

	// The audit row must not fail the delivery.
	if err := s.repo.Insert(context.WithoutCancel(ctx), s.db, delivery); err != nil {
		s.log.Warn("record webhook delivery", zap.String("delivery_id", delivery.ID), zap.Error(err))
	}
}

func processingCode(err error) (string, bool) {
	switch {
	case errors.Is(err, capturedomain.ErrQuotaExceeded):
		return capturedomain.ErrQuotaExceeded.Error(), true
	case errors.Is(err, capturedomain.ErrUserNotFound):
		return capturedomain.ErrUserNotFound.Error(), true
	case errors.Is(err, capturedomain.ErrQuotaNotFound):
		return capturedomain.ErrQuotaNotFound.Error(), true
	}
	return "", false
}
