package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/printfleet/internal/capture/domain"
	"github.com/smallbiznis/printfleet/internal/config"
	"github.com/smallbiznis/printfleet/internal/observability/metrics"
	printjobdomain "github.com/smallbiznis/printfleet/internal/printjob/domain"
	printjobservice "github.com/smallbiznis/printfleet/internal/printjob/service"
	quotadomain "github.com/smallbiznis/printfleet/internal/quota/domain"
	userdomain "github.com/smallbiznis/printfleet/internal/user/domain"
	"github.com/smallbiznis/printfleet/pkg/db"
	"github.com/smallbiznis/printfleet/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Fleet   *config.FleetConfigHolder
	Repo    domain.Repository
	Users   userdomain.Repository
	Quotas  quotadomain.Repository
	Jobs    printjobdomain.Repository
	Costs   printjobdomain.CostRepository
	Rates   printjobdomain.Service
	Metrics *metrics.Metrics `optional:"true"`
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	fleet   *config.FleetConfigHolder
	repo    domain.Repository
	users   userdomain.Repository
	quotas  quotadomain.Repository
	jobs    printjobdomain.Repository
	costs   printjobdomain.CostRepository
	rates   printjobdomain.Service
	metrics *metrics.Metrics
	now     func() time.Time
}

func New(p Params) domain.Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("capture.service"),
		genID:   p.GenID,
		fleet:   p.Fleet,
		repo:    p.Repo,
		users:   p.Users,
		quotas:  p.Quotas,
		jobs:    p.Jobs,
		costs:   p.Costs,
		rates:   p.Rates,
		metrics: p.Metrics,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) CaptureJob(ctx context.Context, req domain.CaptureRequest) (domain.Capture, error) {
	capture, err := s.buildCapture(req)
	if err != nil {
		s.metrics.RecordCapture(ctx, string(sourceOf(req)), "invalid")
		return domain.Capture{}, err
	}

	if err := s.repo.Insert(ctx, s.db, &capture); err != nil {
		if db.IsDuplicateKeyErr(err) {
			s.metrics.RecordCapture(ctx, string(capture.Source), "duplicate")
			return domain.Capture{}, domain.ErrDuplicateCapture
		}
		return domain.Capture{}, err
	}

	s.metrics.RecordCapture(ctx, string(capture.Source), "captured")
	s.log.Debug("print job captured",
		zap.String("capture_id", capture.ID.String()),
		zap.String("printer_id", capture.PrinterID.String()),
		zap.String("external_job_id", capture.ExternalJobID),
	)
	return capture, nil
}

func (s *Service) buildCapture(req domain.CaptureRequest) (domain.Capture, error) {
	fields := map[string]string{}
	if req.PrinterID == 0 {
		fields["printer_id"] = "is required"
	}
	externalID := strings.TrimSpace(req.ExternalJobID)
	if externalID == "" {
		fields["external_job_id"] = "is required"
	}
	fileName := strings.TrimSpace(req.FileName)
	if fileName == "" {
		fields["file_name"] = "is required"
	}
	switch {
	case req.Pages <= 0:
		fields["pages"] = "must be greater than zero"
	case req.Pages > domain.MaxTotalPages:
		fields["pages"] = "is too large"
	}
	switch {
	case req.Copies <= 0:
		fields["copies"] = "must be greater than zero"
	case req.Copies > domain.MaxTotalPages:
		fields["copies"] = "is too large"
	}
	if _, ok := fields["pages"]; !ok {
		if _, ok := fields["copies"]; !ok && int64(req.Pages)*int64(req.Copies) > domain.MaxTotalPages {
			fields["copies"] = "pages times copies is too large"
		}
	}
	paperSize := normalizeToken(req.PaperSize)
	if paperSize == "" {
		fields["paper_size"] = "is required"
	}
	paperType := normalizeToken(req.PaperType)
	if paperType == "" {
		fields["paper_type"] = "is required"
	}
	quality := normalizeToken(req.Quality)
	if quality == "" {
		fields["quality"] = "is required"
	}
	if req.UserID != nil && *req.UserID == 0 {
		fields["user_id"] = "is invalid"
	}
	if len(fields) > 0 {
		return domain.Capture{}, &domain.ValidationError{Fields: fields}
	}

	metadata := datatypes.JSONMap{}
	for k, v := range req.Metadata {
		metadata[k] = v
	}

	return domain.Capture{
		ID:            s.genID.Generate(),
		PrinterID:     req.PrinterID,
		ExternalJobID: externalID,
		FileName:      fileName,
		Pages:         req.Pages,
		Copies:        req.Copies,
		IsColor:       req.IsColor,
		PaperSize:     paperSize,
		PaperType:     paperType,
		Quality:       quality,
		UserID:        req.UserID,
		Metadata:      metadata,
		Status:        domain.StatusCaptured,
		Source:        sourceOf(req),
		CapturedAt:    s.now(),
	}, nil
}

func (s *Service) ProcessCapture(ctx context.Context, captureID snowflake.ID, userID *snowflake.ID) (domain.Outcome, error) {
	var (
		outcome  domain.Outcome
		exceeded bool
	)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		capture, err := s.repo.FindForUpdate(ctx, tx, captureID)
		if err != nil {
			return err
		}
		if capture == nil {
			return domain.ErrNotFound
		}
		if capture.Status.Terminal() {
			outcome, err = s.recordedOutcome(ctx, tx, *capture)
			return err
		}

		effectiveUser := capture.UserID
		if userID != nil && *userID != 0 {
			effectiveUser = userID
		}
		if effectiveUser == nil {
			return domain.ErrUserNotFound
		}
		user, err := s.users.FindByID(ctx, tx, *effectiveUser)
		if err != nil {
			return err
		}
		if user == nil {
			return domain.ErrUserNotFound
		}

		totalPages := capture.TotalPages()
		quota, err := s.quotas.FindByUser(ctx, tx, user.ID)
		if err != nil {
			return err
		}
		if quota == nil {
			return domain.ErrQuotaNotFound
		}

		var deptRate *printjobdomain.PrintCost
		if dept := strings.TrimSpace(user.Department); dept != "" {
			deptRate, err = s.costs.FindByDepartment(ctx, tx, dept)
			if err != nil {
				return err
			}
		}
		rate := printjobdomain.EffectiveRate(deptRate, printjobservice.FallbackRate(s.fleet), capture.IsColor)

		now := s.now()
		ok, err := s.quotas.TryIncrement(ctx, tx, user.ID, totalPages, capture.IsColor, now)
		if err != nil {
			return err
		}
		if !ok {
			if _, err := s.repo.MarkError(ctx, tx, capture.ID, &user.ID, domain.ErrorCodeQuotaExceeded, now); err != nil {
				return err
			}
			capture.Status = domain.StatusError
			capture.ErrorCode = domain.ErrorCodeQuotaExceeded
			capture.UserID = &user.ID
			capture.ProcessedAt = &now
			outcome = domain.Outcome{Capture: *capture}
			exceeded = true
			return nil
		}

		job := printjobdomain.PrintJob{
			ID:         s.genID.Generate(),
			CaptureID:  capture.ID,
			PrinterID:  capture.PrinterID,
			UserID:     user.ID,
			Department: user.Department,
			FileName:   capture.FileName,
			Pages:      capture.Pages,
			Copies:     capture.Copies,
			TotalPages: totalPages,
			IsColor:    capture.IsColor,
			PaperSize:  capture.PaperSize,
			PaperType:  capture.PaperType,
			Quality:    capture.Quality,
			UnitCost:   rate,
			Cost:       printjobdomain.Price(totalPages, rate),
			Status:     printjobdomain.StatusCompleted,
			CreatedAt:  now,
		}
		if err := s.jobs.Insert(ctx, tx, &job); err != nil {
			return err
		}

		affected, err := s.repo.MarkProcessed(ctx, tx, capture.ID, user.ID, job.ID, now)
		if err != nil {
			return err
		}
		if affected != 1 {
			return errors.New("capture changed state during processing")
		}

		capture.Status = domain.StatusProcessed
		capture.UserID = &user.ID
		capture.PrintJobID = &job.ID
		capture.ProcessedAt = &now
		outcome = domain.Outcome{Capture: *capture, Job: &job}
		return nil
	})
	if err != nil {
		s.metrics.RecordCaptureProcessing(ctx, processingOutcome(err), false)
		return domain.Outcome{}, err
	}

	if exceeded {
		s.metrics.RecordCaptureProcessing(ctx, domain.ErrorCodeQuotaExceeded, outcome.Capture.IsColor)
		s.log.Info("capture rejected by quota",
			zap.String("capture_id", captureID.String()),
			zap.Int("total_pages", outcome.Capture.TotalPages()),
		)
		return outcome, domain.ErrQuotaExceeded
	}

	if outcome.Job != nil {
		s.metrics.RecordCaptureProcessing(ctx, "processed", outcome.Capture.IsColor)
	}
	return outcome, nil
}

func (s *Service) recordedOutcome(ctx context.Context, tx *gorm.DB, capture domain.Capture) (domain.Outcome, error) {
	outcome := domain.Outcome{Capture: capture}
	if capture.Status != domain.StatusProcessed {
		return outcome, nil
	}
	job, err := s.jobs.FindByCaptureID(ctx, tx, capture.ID)
	if err != nil {
		return domain.Outcome{}, err
	}
	outcome.Job = job
	return outcome, nil
}

func (s *Service) GetCapture(ctx context.Context, id snowflake.ID) (domain.Capture, error) {
	capture, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return domain.Capture{}, err
	}
	if capture == nil {
		return domain.Capture{}, domain.ErrNotFound
	}
	return *capture, nil
}

func (s *Service) ListCaptures(ctx context.Context, req domain.ListRequest) (domain.ListResponse, error) {
	filter := domain.ListFilter{PrinterID: req.PrinterID}
	if status := domain.Status(normalizeToken(req.Status)); status != "" {
		switch status {
		case domain.StatusCaptured, domain.StatusProcessed, domain.StatusError:
			filter.Status = status
		default:
			return domain.ListResponse{}, &domain.ValidationError{Fields: map[string]string{"status": "is invalid"}}
		}
	}

	items, err := s.repo.List(ctx, s.db, filter, req.Pagination)
	if err != nil {
		if errors.Is(err, pagination.ErrInvalidPageToken) {
			return domain.ListResponse{}, &domain.ValidationError{Fields: map[string]string{"page_token": "is invalid"}}
		}
		return domain.ListResponse{}, err
	}

	items, info, err := pagination.Trim(items, req.Pagination, func(c domain.Capture) (snowflake.ID, time.Time) {
		return c.ID, c.CapturedAt
	})
	if err != nil {
		return domain.ListResponse{}, err
	}
	if items == nil {
		items = []domain.Capture{}
	}
	return domain.ListResponse{Captures: items, PageInfo: info}, nil
}

func (s *Service) SetDepartmentRate(ctx context.Context, department string, blackAndWhite, color float64) (*printjobdomain.PrintCost, error) {
	return s.rates.SetDepartmentRate(ctx, department, blackAndWhite, color)
}

func sourceOf(req domain.CaptureRequest) domain.Source {
	if req.Source == domain.SourceWebhook {
		return domain.SourceWebhook
	}
	return domain.SourceAPI
}

func normalizeToken(v string) string {
	return strings.ToUpper(strings.TrimSpace(v))
}

func processingOutcome(err error) string {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrUserNotFound):
		return "user_not_found"
	case errors.Is(err, domain.ErrQuotaNotFound):
		return "quota_not_found"
	default:
		return "error"
	}
}
