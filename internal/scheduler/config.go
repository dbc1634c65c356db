package scheduler

import (
	"time"

	"github.com/smallbiznis/printfleet/internal/config"
)

// Config controls the polling supervisor.
type Config struct {
	// Autostart starts polling with the fx app.
	Autostart bool
	// MinPollInterval floors per integration intervals so a typo cannot
	// hammer a device.
	MinPollInterval time.Duration
}

func DefaultConfig() Config {
	return Config{
		Autostart:       true,
		MinPollInterval: time.Second,
	}
}

func (c Config) withDefaults() Config {
	if c.MinPollInterval <= 0 {
		c.MinPollInterval = DefaultConfig().MinPollInterval
	}
	return c
}

func ProvideConfig(cfg config.Config) Config {
	c := DefaultConfig()
	c.Autostart = cfg.SchedulerAutostart
	return c
}
