package scheduler

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	connectordomain "github.com/smallbiznis/printfleet/internal/connector/domain"
	obscontext "github.com/smallbiznis/printfleet/internal/observability/context"
	obslogger "github.com/smallbiznis/printfleet/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/printfleet/internal/observability/metrics"
	"go.uber.org/zap"
)

func (s *Scheduler) withLogContext(ctx context.Context, printerID snowflake.ID) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if printerID != 0 {
		ctx = obscontext.WithPrinterID(ctx, printerID.String())
	}
	return ctx
}

func (s *Scheduler) logger(ctx context.Context) *zap.Logger {
	return obslogger.WithContext(ctx, s.log)
}

func (s *Scheduler) logPollFailure(ctx context.Context, w *worker, reason string, err error) {
	s.logger(ctx).Warn("scheduler.poll.failed",
		zap.String("integration_id", w.integrationID.String()),
		zap.String("protocol", string(w.protocol)),
		zap.String("reason", reason),
		zap.Error(err),
	)
}

// classify maps a poll error to a metrics reason.
func classify(err error) string {
	switch {
	case errors.Is(err, errPollPanic):
		return obsmetrics.PollReasonPanic
	case errors.Is(err, connectordomain.ErrUnsupportedProtocol):
		return obsmetrics.PollReasonUnsupportedProtocol
	case errors.Is(err, connectordomain.ErrConnectorUnavailable):
		return obsmetrics.PollReasonConnectorUnavailable
	}
	return obsmetrics.ClassifyPollReason(err)
}
