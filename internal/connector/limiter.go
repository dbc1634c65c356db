package connector

import (
	"context"

	"github.com/smallbiznis/printfleet/internal/config"
	"github.com/smallbiznis/printfleet/internal/connector/domain"
	integrationdomain "github.com/smallbiznis/printfleet/internal/integration/domain"
	printerdomain "github.com/smallbiznis/printfleet/internal/printer/domain"
)

// Limiter caps the number of outbound device calls in flight across every
// connector of the process.
type Limiter struct {
	slots chan struct{}
}

func NewLimiter(max int) *Limiter {
	if max <= 0 {
		max = config.DefaultFleetConfig().Connector.MaxConcurrent
	}
	return &Limiter{slots: make(chan struct{}, max)}
}

// Acquire blocks until a slot is free or ctx is done.
func (l *Limiter) Acquire(ctx context.Context) error {
	select {
	case l.slots <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *Limiter) Release() {
	<-l.slots
}

// InFlight reports the slots currently held.
func (l *Limiter) InFlight() int {
	return len(l.slots)
}

func (l *Limiter) Cap() int {
	return cap(l.slots)
}

// limited bounds every call by the limiter and the configured timeout.
type limited struct {
	inner    domain.Connector
	limiter  *Limiter
	fleet    *config.FleetConfigHolder
	endpoint string
}

func (c *limited) Protocol() integrationdomain.Type { return c.inner.Protocol() }

func (c *limited) GetStatus(ctx context.Context) (*printerdomain.PrinterStatus, error) {
	timeout := c.fleet.Get().Connector.Timeout
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := c.limiter.Acquire(ctx); err != nil {
		return nil, domain.Unavailable("acquire", c.endpoint, err)
	}
	defer c.limiter.Release()

	status, err := c.inner.GetStatus(ctx)
	if err != nil {
		return nil, err
	}
	if ctx.Err() != nil {
		return nil, domain.Unavailable("get_status", c.endpoint, ctx.Err())
	}
	return status, nil
}
