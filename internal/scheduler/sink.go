package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	printerdomain "github.com/smallbiznis/printfleet/internal/printer/domain"
	"go.uber.org/zap"
)

type pollResult struct {
	ctx    context.Context
	worker *worker
	status *printerdomain.PrinterStatus
	err    error
	at     time.Time
	ack    chan error
}

// runSink is the only writer of poll results. It exits once results is
// closed and drained.
func (s *Scheduler) runSink(results <-chan pollResult, done chan<- struct{}) {
	defer close(done)
	for res := range results {
		res.ack <- s.persist(res)
	}
}

func (s *Scheduler) persist(res pollResult) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: persist: %v", errPollPanic, r)
		}
	}()

	w := res.worker
	ctx := res.ctx

	if res.err != nil {
		detail := res.err.Error()
		_, applyErr := s.printers.ApplyFailure(ctx, w.printerID, detail, res.at)
		recordErr := s.integrations.RecordError(ctx, w.integrationID, detail)
		return errors.Join(applyErr, recordErr)
	}

	if res.status == nil {
		return s.persist(pollResult{ctx: ctx, worker: w, err: errors.New("connector returned no status"), at: res.at})
	}
	if _, err := s.printers.ApplyStatus(ctx, w.printerID, *res.status); err != nil {
		s.logger(ctx).Error("scheduler.status.write_failed", zap.Error(err))
		if recordErr := s.integrations.RecordError(ctx, w.integrationID, err.Error()); recordErr != nil {
			s.logger(ctx).Warn("scheduler.poll.record_error_failed", zap.Error(recordErr))
		}
		return err
	}
	return s.integrations.MarkSynced(ctx, w.integrationID, res.at)
}
