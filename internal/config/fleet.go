package config

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// FleetConfig carries the tunables that operators adjust without a redeploy.
type FleetConfig struct {
	Connector ConnectorConfig `mapstructure:"connector"`
	Costs     CostConfig      `mapstructure:"costs"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Webhook   WebhookConfig   `mapstructure:"webhook"`
}

type ConnectorConfig struct {
	Timeout       time.Duration `mapstructure:"timeout"`
	MaxConcurrent int           `mapstructure:"maxConcurrent"`
	SNMP          SNMPConfig    `mapstructure:"snmp"`
}

type SNMPConfig struct {
	Community string `mapstructure:"community"`
	Port      uint16 `mapstructure:"port"`
	Version   string `mapstructure:"version"`
	Retries   int    `mapstructure:"retries"`
}

// CostConfig holds the per page fallback rates used when a department has
// no rate row of its own.
type CostConfig struct {
	BlackAndWhitePage float64 `mapstructure:"blackAndWhitePage"`
	ColorPage         float64 `mapstructure:"colorPage"`
}

type SchedulerConfig struct {
	LeaseTTL time.Duration `mapstructure:"leaseTTL"`
}

type WebhookConfig struct {
	RatePerSecond float64 `mapstructure:"ratePerSecond"`
	Burst         int64   `mapstructure:"burst"`
}

func DefaultFleetConfig() FleetConfig {
	return FleetConfig{
		Connector: ConnectorConfig{
			Timeout:       10 * time.Second,
			MaxConcurrent: 32,
			SNMP: SNMPConfig{
				Community: "public",
				Port:      161,
				Version:   "2c",
				Retries:   1,
			},
		},
		Costs: CostConfig{
			BlackAndWhitePage: 0.05,
			ColorPage:         0.15,
		},
		Scheduler: SchedulerConfig{
			LeaseTTL: 30 * time.Second,
		},
		Webhook: WebhookConfig{
			RatePerSecond: 20,
			Burst:         40,
		},
	}
}

type FleetConfigHolder struct {
	current atomic.Value // holds FleetConfig
}

// NewStaticFleetConfigHolder returns a holder that never reloads.
func NewStaticFleetConfigHolder(cfg FleetConfig) *FleetConfigHolder {
	holder := &FleetConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

// NewFleetConfigHolder loads fleet.yml and keeps it fresh on file changes.
func NewFleetConfigHolder(cfg Config, log *zap.Logger) (*FleetConfigHolder, error) {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("fleet-config")

	v := newFleetViper(cfg.FleetConfigPath)
	loaded, err := readFleetConfig(v)
	if err != nil {
		return nil, err
	}

	holder := NewStaticFleetConfigHolder(loaded)
	if v.ConfigFileUsed() == "" {
		log.Info("fleet config file not found, using defaults")
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated fleetFile
		if err := v.Unmarshal(&updated); err != nil {
			log.Warn("reload failed", zap.Error(err))
			return
		}
		if err := validateFleetConfig(updated.Fleet); err != nil {
			log.Warn("invalid config ignored", zap.Error(err))
			return
		}
		holder.current.Store(updated.Fleet)
		log.Info("reloaded", zap.String("file", e.Name))
	})

	return holder, nil
}

func (h *FleetConfigHolder) Get() FleetConfig {
	return h.current.Load().(FleetConfig)
}

// LoadFleetConfigFile reads and validates a single fleet config file.
func LoadFleetConfigFile(path string) (FleetConfig, error) {
	if strings.TrimSpace(path) == "" {
		return FleetConfig{}, errors.New("fleet config path is required")
	}
	return readFleetConfig(newFleetViper(path))
}

type fleetFile struct {
	Fleet FleetConfig `mapstructure:"fleet"`
}

func newFleetViper(path string) *viper.Viper {
	v := viper.New()
	if path = strings.TrimSpace(path); path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("fleet")
		v.SetConfigType("yml")
		v.AddConfigPath("/etc/printfleet")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("PRINTFLEET")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultFleetConfig()
	v.SetDefault("fleet.connector.timeout", defaults.Connector.Timeout)
	v.SetDefault("fleet.connector.maxConcurrent", defaults.Connector.MaxConcurrent)
	v.SetDefault("fleet.connector.snmp.community", defaults.Connector.SNMP.Community)
	v.SetDefault("fleet.connector.snmp.port", defaults.Connector.SNMP.Port)
	v.SetDefault("fleet.connector.snmp.version", defaults.Connector.SNMP.Version)
	v.SetDefault("fleet.connector.snmp.retries", defaults.Connector.SNMP.Retries)
	v.SetDefault("fleet.costs.blackAndWhitePage", defaults.Costs.BlackAndWhitePage)
	v.SetDefault("fleet.costs.colorPage", defaults.Costs.ColorPage)
	v.SetDefault("fleet.scheduler.leaseTTL", defaults.Scheduler.LeaseTTL)
	v.SetDefault("fleet.webhook.ratePerSecond", defaults.Webhook.RatePerSecond)
	v.SetDefault("fleet.webhook.burst", defaults.Webhook.Burst)
	return v
}

func readFleetConfig(v *viper.Viper) (FleetConfig, error) {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return FleetConfig{}, fmt.Errorf("read fleet config: %w", err)
		}
	}

	var file fleetFile
	if err := v.Unmarshal(&file); err != nil {
		return FleetConfig{}, fmt.Errorf("decode fleet config: %w", err)
	}
	if err := validateFleetConfig(file.Fleet); err != nil {
		return FleetConfig{}, err
	}
	return file.Fleet, nil
}

func validateFleetConfig(cfg FleetConfig) error {
	if cfg.Connector.Timeout <= 0 {
		return errors.New("fleet.connector.timeout must be positive")
	}
	if cfg.Connector.MaxConcurrent <= 0 {
		return errors.New("fleet.connector.maxConcurrent must be positive")
	}
	switch cfg.Connector.SNMP.Version {
	case "1", "2c":
	default:
		return fmt.Errorf("fleet.connector.snmp.version %q is not supported", cfg.Connector.SNMP.Version)
	}
	if cfg.Costs.BlackAndWhitePage < 0 || cfg.Costs.ColorPage < 0 {
		return errors.New("fleet.costs rates cannot be negative")
	}
	if cfg.Webhook.RatePerSecond <= 0 || cfg.Webhook.Burst <= 0 {
		return errors.New("fleet.webhook rate and burst must be positive")
	}
	return nil
}
