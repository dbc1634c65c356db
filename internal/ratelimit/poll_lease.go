package ratelimit

import (
	"context"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/printfleet/internal/config"
)

// PollLease keeps two poller replicas from polling the same printer in the
// same tick.
type PollLease struct {
	locker *Locker
	fleet  *config.FleetConfigHolder
}

// NewPollLease returns nil when no locker is available.
func NewPollLease(locker *Locker, fleet *config.FleetConfigHolder) *PollLease {
	if locker == nil {
		return nil
	}
	return &PollLease{locker: locker, fleet: fleet}
}

func pollKey(printerID snowflake.ID) string {
	return fmt.Sprintf("printfleet:poll:%s", printerID.String())
}

// Acquire returns a release func when the lease was won.
func (p *PollLease) Acquire(ctx context.Context, printerID snowflake.ID) (func(context.Context), bool, error) {
	key := pollKey(printerID)
	token, ok, err := p.locker.TryLock(ctx, key, p.fleet.Get().Scheduler.LeaseTTL)
	if err != nil || !ok {
		return nil, false, err
	}
	return func(releaseCtx context.Context) {
		_ = p.locker.Release(releaseCtx, key, token)
	}, true, nil
}
