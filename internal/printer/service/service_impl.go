package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/printfleet/internal/printer/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Repo  domain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	repo  domain.Repository
}

func New(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("printer.service"),
		genID: p.GenID,
		repo:  p.Repo,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateRequest) (domain.Printer, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.Printer{}, domain.ErrInvalidName
	}

	now := time.Now().UTC()
	printer := domain.Printer{
		ID:         s.genID.Generate(),
		Name:       name,
		Model:      strings.TrimSpace(req.Model),
		Location:   strings.TrimSpace(req.Location),
		Department: strings.TrimSpace(req.Department),
		Status:     domain.StatusOffline,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	printer.TonerLevels = levelsToJSON(nil)
	printer.PaperLevels = levelsToJSON(nil)
	if err := s.repo.Insert(ctx, s.db, &printer); err != nil {
		return domain.Printer{}, err
	}
	return printer, nil
}

func (s *Service) GetByID(ctx context.Context, id snowflake.ID) (domain.Printer, error) {
	printer, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return domain.Printer{}, err
	}
	if printer == nil {
		return domain.Printer{}, domain.ErrNotFound
	}
	return *printer, nil
}

func (s *Service) ApplyStatus(ctx context.Context, id snowflake.ID, status domain.PrinterStatus) (domain.Printer, error) {
	if !domain.IsValidStatus(status.Status) {
		return domain.Printer{}, domain.ErrInvalidStatus
	}

	at := status.LastUpdated.UTC()
	if status.LastUpdated.IsZero() {
		at = time.Now().UTC()
	}

	printer := domain.Printer{
		ID:              id,
		Status:          status.Status,
		TonerLevels:     levelsToJSON(status.TonerLevels),
		PaperLevels:     levelsToJSON(status.PaperLevels),
		ErrorMessages:   datatypes.JSONSlice[string](nonNil(status.ErrorMessages)),
		JobQueue:        status.JobQueue,
		TotalPagesMonth: status.TotalPagesMonth,
		LastUpdated:     &at,
		UpdatedAt:       time.Now().UTC(),
	}
	return s.write(ctx, &printer)
}

func (s *Service) ApplyFailure(ctx context.Context, id snowflake.ID, detail string, at time.Time) (domain.Printer, error) {
	current, err := s.GetByID(ctx, id)
	if err != nil {
		return domain.Printer{}, err
	}

	at = at.UTC()
	if at.IsZero() {
		at = time.Now().UTC()
	}

	// Supply levels are kept from the last good snapshot; only the health
	// fields describe the failed poll.
	current.Status = domain.StatusError
	current.ErrorMessages = datatypes.JSONSlice[string]{strings.TrimSpace(detail)}
	current.LastUpdated = &at
	current.UpdatedAt = time.Now().UTC()

	printer, err := s.write(ctx, &current)
	if err != nil {
		return domain.Printer{}, err
	}
	s.log.Warn("printer status set to ERROR",
		zap.String("printer_id", id.String()),
		zap.String("detail", detail),
	)
	return printer, nil
}

func (s *Service) write(ctx context.Context, printer *domain.Printer) (domain.Printer, error) {
	affected, err := s.repo.UpdateStatus(ctx, s.db, printer)
	if err != nil {
		return domain.Printer{}, err
	}
	if affected == 0 {
		return domain.Printer{}, domain.ErrNotFound
	}
	return s.GetByID(ctx, printer.ID)
}

func levelsToJSON(levels map[string]int) datatypes.JSONType[domain.Levels] {
	out := make(domain.Levels, len(levels))
	for key, value := range levels {
		out[key] = value
	}
	return datatypes.NewJSONType(out)
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
