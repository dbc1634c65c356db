package scheduler

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	printerdomain "github.com/smallbiznis/printfleet/internal/printer/domain"
	"go.uber.org/zap"
)

// SyncPrinter pulls the printer's status right away through its current
// integration, outside the polling schedule. A connector failure is still
// persisted as an ERROR status; the persisted printer is returned together
// with the connector error.
func (s *Scheduler) SyncPrinter(ctx context.Context, printerID snowflake.ID) (printerdomain.Printer, error) {
	in, err := s.integrations.Get(ctx, printerID, "")
	if err != nil {
		return printerdomain.Printer{}, err
	}

	w := &worker{integrationID: in.ID, printerID: printerID, protocol: in.Type}
	ctx = s.withLogContext(ctx, printerID)

	start := s.clock.Now()
	status, fetchErr := s.fetch(ctx, w)
	at := s.clock.Now()
	if fetchErr == nil && status == nil {
		fetchErr = errors.New("connector returned no status")
	}
	s.metrics.ObservePoll(string(in.Type), at.Sub(start), fetchErr)

	if fetchErr != nil {
		reason := classify(fetchErr)
		s.metrics.IncPollError(string(in.Type), reason)
		s.logPollFailure(ctx, w, reason, fetchErr)

		detail := fetchErr.Error()
		printer, err := s.printers.ApplyFailure(ctx, printerID, detail, at)
		if recordErr := s.integrations.RecordError(ctx, in.ID, detail); recordErr != nil {
			s.logger(ctx).Warn("scheduler.sync.record_error_failed", zap.Error(recordErr))
		}
		if err != nil {
			return printerdomain.Printer{}, errors.Join(fetchErr, err)
		}
		return printer, fetchErr
	}

	printer, err := s.printers.ApplyStatus(ctx, printerID, *status)
	if err != nil {
		return printerdomain.Printer{}, err
	}
	if err := s.integrations.MarkSynced(ctx, in.ID, at); err != nil {
		return printer, err
	}
	return printer, nil
}
