package connector

import (
	"fmt"
	"sync"

	"github.com/smallbiznis/printfleet/internal/config"
	"github.com/smallbiznis/printfleet/internal/connector/domain"
	"github.com/smallbiznis/printfleet/internal/connector/httpjson"
	"github.com/smallbiznis/printfleet/internal/connector/ipp"
	"github.com/smallbiznis/printfleet/internal/connector/snmp"
	"github.com/smallbiznis/printfleet/internal/connector/wsd"
	integrationdomain "github.com/smallbiznis/printfleet/internal/integration/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Fleet *config.FleetConfigHolder
	Log   *zap.Logger
}

// Registry builds connectors by integration type.
type Registry struct {
	mu        sync.RWMutex
	factories map[integrationdomain.Type]domain.Factory
	fleet     *config.FleetConfigHolder
	limiter   *Limiter
	log       *zap.Logger
}

// NewRegistry returns a registry with every built in protocol registered.
func NewRegistry(p Params) *Registry {
	r := NewEmptyRegistry(p.Fleet, p.Log)
	r.Register(integrationdomain.TypeSNMP, snmp.New)
	r.Register(integrationdomain.TypeIPP, ipp.New)
	r.Register(integrationdomain.TypeHTTP, httpjson.New)
	r.Register(integrationdomain.TypeWSD, wsd.New)
	return r
}

func NewEmptyRegistry(fleet *config.FleetConfigHolder, log *zap.Logger) *Registry {
	if fleet == nil {
		fleet = config.NewStaticFleetConfigHolder(config.DefaultFleetConfig())
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Registry{
		factories: map[integrationdomain.Type]domain.Factory{},
		fleet:     fleet,
		limiter:   NewLimiter(fleet.Get().Connector.MaxConcurrent),
		log:       log.Named("connector.registry"),
	}
}

func (r *Registry) Register(typ integrationdomain.Type, factory domain.Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[typ] = factory
}

// New builds the connector for cfg. Unknown protocols and auth types the
// protocol cannot carry fail here with ErrUnsupportedProtocol.
func (r *Registry) New(cfg integrationdomain.ConnectorConfig) (domain.Connector, error) {
	r.mu.RLock()
	factory, ok := r.factories[cfg.Type]
	r.mu.RUnlock()
	if !ok {
		return nil, domain.Unsupported("new", cfg.Endpoint, fmt.Errorf("no connector for type %q", cfg.Type))
	}

	inner, err := factory(cfg, r.fleet.Get().Connector)
	if err != nil {
		r.log.Debug("connector rejected config",
			zap.String("type", string(cfg.Type)),
			zap.String("integration_id", cfg.IntegrationID.String()),
			zap.Error(err),
		)
		return nil, err
	}
	return &limited{inner: inner, limiter: r.limiter, fleet: r.fleet, endpoint: cfg.Endpoint}, nil
}

func (r *Registry) Limiter() *Limiter {
	return r.limiter
}
