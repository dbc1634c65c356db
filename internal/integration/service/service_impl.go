package service

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/printfleet/internal/config"
	"github.com/smallbiznis/printfleet/internal/integration/domain"
	"github.com/smallbiznis/printfleet/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	Cfg   config.Config
	GenID *snowflake.Node
	Repo  domain.Repository
}

type Service struct {
	db     *gorm.DB
	log    *zap.Logger
	genID  *snowflake.Node
	repo   domain.Repository
	sealer *sealer
}

func New(p Params) (domain.Service, error) {
	s, err := newSealer(p.Cfg.IntegrationSecretKey)
	if err != nil {
		return nil, fmt.Errorf("integration sealer: %w", err)
	}

	log := p.Log.Named("integration.service")
	if !s.enabled() {
		log.Warn("INTEGRATION_SECRET_KEY not set, credentials are stored unsealed")
	}

	return &Service{
		db:     p.DB,
		log:    log,
		genID:  p.GenID,
		repo:   p.Repo,
		sealer: s,
	}, nil
}

func (s *Service) Create(ctx context.Context, req domain.CreateRequest) (domain.Integration, error) {
	if req.PrinterID == 0 {
		return domain.Integration{}, invalid(domain.ErrInvalidPrinter)
	}

	typ, ok := domain.ParseType(req.Type)
	if !ok {
		return domain.Integration{}, invalid(domain.ErrInvalidType)
	}
	authType, ok := domain.ParseAuthType(req.AuthType)
	if !ok {
		return domain.Integration{}, invalid(domain.ErrInvalidAuthType)
	}

	endpoint := strings.TrimSpace(req.Endpoint)
	if err := validateEndpoint(typ, endpoint); err != nil {
		return domain.Integration{}, err
	}
	creds, err := normalizeCredentials(authType, req.Credentials)
	if err != nil {
		return domain.Integration{}, err
	}
	interval, err := normalizePollInterval(req.PollInterval)
	if err != nil {
		return domain.Integration{}, err
	}

	now := time.Now().UTC()
	integration := domain.Integration{
		ID:           s.genID.Generate(),
		PrinterID:    req.PrinterID,
		Type:         typ,
		Endpoint:     endpoint,
		AuthType:     authType,
		PollInterval: interval,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if req.IsActive != nil {
		integration.IsActive = *req.IsActive
	}
	if err := s.applySecrets(&integration, creds, strings.TrimSpace(req.WebhookSecret)); err != nil {
		return domain.Integration{}, err
	}

	if err := s.repo.Insert(ctx, s.db, &integration); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return domain.Integration{}, domain.ErrDuplicateIntegration
		}
		return domain.Integration{}, err
	}

	s.log.Info("integration created",
		zap.String("integration_id", integration.ID.String()),
		zap.String("printer_id", integration.PrinterID.String()),
		zap.String("type", string(integration.Type)),
	)
	return s.present(integration), nil
}

func (s *Service) Get(ctx context.Context, printerID snowflake.ID, typ string) (domain.Integration, error) {
	var parsed domain.Type
	if strings.TrimSpace(typ) != "" {
		var ok bool
		parsed, ok = domain.ParseType(typ)
		if !ok {
			return domain.Integration{}, invalid(domain.ErrInvalidType)
		}
	}

	item, err := s.repo.FindByPrinter(ctx, s.db, printerID, parsed)
	if err != nil {
		return domain.Integration{}, err
	}
	if item == nil {
		return domain.Integration{}, domain.ErrNotFound
	}
	return s.present(*item), nil
}

func (s *Service) GetByID(ctx context.Context, id snowflake.ID) (domain.Integration, error) {
	item, err := s.find(ctx, id)
	if err != nil {
		return domain.Integration{}, err
	}
	return s.present(*item), nil
}

func (s *Service) Update(ctx context.Context, id snowflake.ID, req domain.UpdateRequest) (domain.Integration, error) {
	item, err := s.find(ctx, id)
	if err != nil {
		return domain.Integration{}, err
	}

	if req.Endpoint != nil {
		endpoint := strings.TrimSpace(*req.Endpoint)
		if err := validateEndpoint(item.Type, endpoint); err != nil {
			return domain.Integration{}, err
		}
		item.Endpoint = endpoint
	}

	authChanged := false
	if req.AuthType != nil {
		authType, ok := domain.ParseAuthType(*req.AuthType)
		if !ok {
			return domain.Integration{}, invalid(domain.ErrInvalidAuthType)
		}
		authChanged = authType != item.AuthType
		item.AuthType = authType
	}

	if req.Credentials != nil || authChanged {
		var creds domain.Credentials
		if req.Credentials != nil {
			creds = *req.Credentials
		} else if err := s.sealer.open(item.SealedCredentials, &creds); err != nil {
			return domain.Integration{}, err
		}
		normalized, err := normalizeCredentials(item.AuthType, creds)
		if err != nil {
			return domain.Integration{}, err
		}
		sealed, err := s.sealCredentials(normalized)
		if err != nil {
			return domain.Integration{}, err
		}
		item.SealedCredentials = sealed
	}

	if req.WebhookSecret != nil {
		sealed, err := s.sealSecret(strings.TrimSpace(*req.WebhookSecret))
		if err != nil {
			return domain.Integration{}, err
		}
		item.SealedWebhookSecret = sealed
	}

	if req.PollInterval != nil {
		interval, err := normalizePollInterval(*req.PollInterval)
		if err != nil {
			return domain.Integration{}, err
		}
		item.PollInterval = interval
	}
	if req.IsActive != nil {
		item.IsActive = *req.IsActive
	}

	item.UpdatedAt = time.Now().UTC()
	if err := s.repo.Update(ctx, s.db, item); err != nil {
		return domain.Integration{}, err
	}
	return s.present(*item), nil
}

func (s *Service) Delete(ctx context.Context, id snowflake.ID) error {
	affected, err := s.repo.Delete(ctx, s.db, id)
	if err != nil {
		return err
	}
	if affected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *Service) ListActive(ctx context.Context) ([]domain.Integration, error) {
	items, err := s.repo.ListActive(ctx, s.db)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Integration, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		out = append(out, s.present(*item))
	}
	return out, nil
}

func (s *Service) MarkSynced(ctx context.Context, id snowflake.ID, at time.Time) error {
	affected, err := s.repo.MarkSynced(ctx, s.db, id, at.UTC())
	if err != nil {
		return err
	}
	if affected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *Service) RecordError(ctx context.Context, id snowflake.ID, message string) error {
	message = strings.TrimSpace(message)
	if len(message) > 1024 {
		message = message[:1024]
	}
	_, err := s.repo.RecordError(ctx, s.db, id, message)
	return err
}

func (s *Service) ConnectorConfig(ctx context.Context, id snowflake.ID) (domain.ConnectorConfig, error) {
	item, err := s.find(ctx, id)
	if err != nil {
		return domain.ConnectorConfig{}, err
	}

	var creds domain.Credentials
	if err := s.sealer.open(item.SealedCredentials, &creds); err != nil {
		return domain.ConnectorConfig{}, fmt.Errorf("open credentials: %w", err)
	}

	return domain.ConnectorConfig{
		IntegrationID: item.ID,
		PrinterID:     item.PrinterID,
		Type:          item.Type,
		Endpoint:      item.Endpoint,
		AuthType:      item.AuthType,
		Credentials:   creds,
		PollInterval:  time.Duration(item.PollInterval) * time.Second,
	}, nil
}

func (s *Service) WebhookSecrets(ctx context.Context, printerID snowflake.ID) ([]string, error) {
	items, err := s.repo.ListByPrinter(ctx, s.db, printerID)
	if err != nil {
		return nil, err
	}

	secrets := make([]string, 0, len(items))
	for _, item := range items {
		if item == nil || !item.IsActive {
			continue
		}
		var secret string
		if err := s.sealer.open(item.SealedWebhookSecret, &secret); err != nil {
			return nil, fmt.Errorf("open webhook secret: %w", err)
		}
		if secret = strings.TrimSpace(secret); secret != "" {
			secrets = append(secrets, secret)
		}
	}
	return secrets, nil
}

func (s *Service) find(ctx context.Context, id snowflake.ID) (*domain.Integration, error) {
	if id == 0 {
		return nil, domain.ErrNotFound
	}
	item, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, domain.ErrNotFound
	}
	return item, nil
}

func (s *Service) applySecrets(item *domain.Integration, creds domain.Credentials, webhookSecret string) error {
	sealed, err := s.sealCredentials(creds)
	if err != nil {
		return err
	}
	item.SealedCredentials = sealed

	secret, err := s.sealSecret(webhookSecret)
	if err != nil {
		return err
	}
	item.SealedWebhookSecret = secret
	return nil
}

func (s *Service) sealCredentials(creds domain.Credentials) ([]byte, error) {
	if creds.IsZero() {
		return nil, nil
	}
	return s.sealer.seal(creds)
}

func (s *Service) sealSecret(secret string) ([]byte, error) {
	if secret == "" {
		return nil, nil
	}
	return s.sealer.seal(secret)
}

func (s *Service) present(item domain.Integration) domain.Integration {
	item.HasCredentials = len(item.SealedCredentials) > 0
	item.HasWebhookSecret = len(item.SealedWebhookSecret) > 0
	return item
}

func invalid(reason error) error {
	return fmt.Errorf("%w: %w", domain.ErrInvalidConfig, reason)
}

func normalizePollInterval(seconds int) (int, error) {
	switch {
	case seconds == 0:
		return domain.DefaultPollInterval, nil
	case seconds < 0 || seconds > 86400:
		return 0, invalid(domain.ErrInvalidPollInterval)
	default:
		return seconds, nil
	}
}

// validateEndpoint checks the endpoint shape each protocol can dial.
func validateEndpoint(typ domain.Type, endpoint string) error {
	if endpoint == "" {
		return invalid(domain.ErrInvalidEndpoint)
	}

	if typ == domain.TypeSNMP {
		host := strings.TrimPrefix(endpoint, "udp://")
		if strings.Contains(host, "://") || strings.ContainsAny(host, "/ ") {
			return invalid(domain.ErrInvalidEndpoint)
		}
		if h, _, err := net.SplitHostPort(host); err == nil {
			host = h
		}
		if host == "" {
			return invalid(domain.ErrInvalidEndpoint)
		}
		return nil
	}

	u, err := url.Parse(endpoint)
	if err != nil || u.Host == "" {
		return invalid(domain.ErrInvalidEndpoint)
	}
	scheme := strings.ToLower(u.Scheme)
	switch typ {
	case domain.TypeIPP:
		if scheme != "ipp" && scheme != "ipps" && scheme != "http" && scheme != "https" {
			return invalid(domain.ErrInvalidEndpoint)
		}
	default:
		if scheme != "http" && scheme != "https" {
			return invalid(domain.ErrInvalidEndpoint)
		}
	}
	return nil
}

// normalizeCredentials keeps only the fields the auth type uses.
func normalizeCredentials(authType domain.AuthType, in domain.Credentials) (domain.Credentials, error) {
	trim := strings.TrimSpace
	switch authType {
	case domain.AuthNone:
		return domain.Credentials{Community: trim(in.Community)}, nil
	case domain.AuthBasic:
		out := domain.Credentials{Username: trim(in.Username), Password: in.Password}
		if out.Username == "" || out.Password == "" {
			return domain.Credentials{}, invalid(domain.ErrInvalidCredentials)
		}
		return out, nil
	case domain.AuthAPIKey:
		out := domain.Credentials{APIKey: trim(in.APIKey)}
		if out.APIKey == "" {
			return domain.Credentials{}, invalid(domain.ErrInvalidCredentials)
		}
		return out, nil
	case domain.AuthCertificate:
		out := domain.Credentials{Certificate: trim(in.Certificate), PrivateKey: trim(in.PrivateKey)}
		if out.Certificate == "" {
			return domain.Credentials{}, invalid(domain.ErrInvalidCredentials)
		}
		return out, nil
	default:
		return domain.Credentials{}, invalid(domain.ErrInvalidAuthType)
	}
}
