package ratelimit

import (
	"context"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/printfleet/internal/config"
	"github.com/smallbiznis/printfleet/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const webhookEndpoint = "webhook_intake"

type allower interface {
	Allow(ctx context.Context, key string, rate float64, burst int) (Result, error)
}

// WebhookIntakeLimiter throttles webhook deliveries per printer. Without Redis
// every delivery is allowed.
type WebhookIntakeLimiter struct {
	bucket  allower
	fleet   *config.FleetConfigHolder
	log     *zap.Logger
	metrics *metrics.Metrics
}

type WebhookIntakeParams struct {
	fx.In

	Fleet   *config.FleetConfigHolder
	Log     *zap.Logger
	Bucket  *TokenBucket     `optional:"true"`
	Metrics *metrics.Metrics `optional:"true"`
}

func NewWebhookIntakeLimiter(p WebhookIntakeParams) *WebhookIntakeLimiter {
	l := &WebhookIntakeLimiter{
		fleet:   p.Fleet,
		log:     p.Log.Named("ratelimit.webhook"),
		metrics: p.Metrics,
	}
	if p.Bucket != nil {
		l.bucket = p.Bucket
	}
	return l
}

func webhookKey(printerID snowflake.ID) string {
	return fmt.Sprintf("printfleet:webhook:%s", printerID.String())
}

// Allow fails open when the bucket cannot be reached.
func (l *WebhookIntakeLimiter) Allow(ctx context.Context, printerID snowflake.ID) Result {
	cfg := l.fleet.Get().Webhook
	burst := int(cfg.Burst)
	if l.bucket == nil {
		return Result{Allowed: true, Limit: burst, Remaining: burst}
	}

	res, err := l.bucket.Allow(ctx, webhookKey(printerID), cfg.RatePerSecond, burst)
	if err != nil {
		l.log.Warn("rate limiter unavailable, allowing delivery",
			zap.String("printer_id", printerID.String()),
			zap.Error(err),
		)
		l.metrics.RecordRateLimitAllowed(ctx, webhookEndpoint)
		return Result{Allowed: true, Limit: burst, Remaining: burst}
	}

	if !res.Allowed {
		l.metrics.RecordRateLimitDenied(ctx, webhookEndpoint, "burst_exhausted")
		return res
	}
	l.metrics.RecordRateLimitAllowed(ctx, webhookEndpoint)
	return res
}
