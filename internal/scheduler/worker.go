package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bwmarrin/snowflake"
	integrationdomain "github.com/smallbiznis/printfleet/internal/integration/domain"
	obsmetrics "github.com/smallbiznis/printfleet/internal/observability/metrics"
	printerdomain "github.com/smallbiznis/printfleet/internal/printer/domain"
	"go.uber.org/zap"
)

var errPollPanic = errors.New("poll_panic")

type worker struct {
	run           *run
	integrationID snowflake.ID
	printerID     snowflake.ID
	protocol      integrationdomain.Type
	interval      time.Duration
	cancel        context.CancelFunc

	// wg covers the loop and its in-flight poll.
	wg       sync.WaitGroup
	inFlight atomic.Bool
	skipped  atomic.Int64
	polls    atomic.Int64

	mu          sync.Mutex
	lastPoll    *time.Time
	lastSuccess *time.Time
	lastError   string
}

func (w *worker) track() {
	w.run.wg.Add(1)
	w.wg.Add(1)
}

func (w *worker) done() {
	w.wg.Done()
	w.run.wg.Done()
}

func (w *worker) record(at time.Time, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.lastPoll = &at
	if err != nil {
		w.lastError = err.Error()
		return
	}
	w.lastSuccess = &at
	w.lastError = ""
}

func (w *worker) snapshot() WorkerStatus {
	w.mu.Lock()
	defer w.mu.Unlock()
	return WorkerStatus{
		IntegrationID: w.integrationID,
		Protocol:      w.protocol,
		Interval:      w.interval,
		LastPoll:      w.lastPoll,
		LastSuccess:   w.lastSuccess,
		LastError:     w.lastError,
		InFlight:      w.inFlight.Load(),
		Skipped:       w.skipped.Load(),
		Polls:         w.polls.Load(),
	}
}

// runWorker polls once right away and then on every tick.
func (s *Scheduler) runWorker(ctx context.Context, w *worker) {
	defer w.done()

	ticker := s.clock.NewTicker(w.interval)
	defer ticker.Stop()

	s.dispatch(ctx, w)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			s.dispatch(ctx, w)
		}
	}
}

// dispatch starts a poll unless one is still running. Ticks are never queued.
func (s *Scheduler) dispatch(ctx context.Context, w *worker) {
	if ctx.Err() != nil {
		return
	}
	if !w.inFlight.CompareAndSwap(false, true) {
		w.skipped.Add(1)
		s.metrics.IncTickSkipped(obsmetrics.PollSkipInFlight)
		s.logger(ctx).Debug("scheduler.tick.skipped", zap.String("reason", obsmetrics.PollSkipInFlight))
		return
	}

	w.track()
	// Polls are not cut short by Stop; the connector timeout bounds them.
	go s.poll(context.WithoutCancel(ctx), w)
}

func (s *Scheduler) poll(ctx context.Context, w *worker) {
	defer w.done()
	defer w.inFlight.Store(false)

	if s.lease != nil {
		release, ok, err := s.lease.Acquire(ctx, w.printerID)
		switch {
		case err != nil:
			// Fail open: a duplicate poll is cheaper than a missed one.
			s.logger(ctx).Warn("scheduler.lease.unavailable", zap.Error(err))
		case !ok:
			w.skipped.Add(1)
			s.metrics.IncTickSkipped(obsmetrics.PollSkipLeased)
			return
		default:
			defer release(ctx)
		}
	}

	start := s.clock.Now()
	status, err := s.fetch(ctx, w)
	at := s.clock.Now()

	res := pollResult{
		ctx:    ctx,
		worker: w,
		status: status,
		err:    err,
		at:     at,
		ack:    make(chan error, 1),
	}
	w.run.results <- res
	writeErr := <-res.ack

	pollErr := errors.Join(err, writeErr)
	w.polls.Add(1)
	w.record(at, pollErr)
	s.metrics.ObservePoll(string(w.protocol), at.Sub(start), pollErr)
	if pollErr != nil {
		reason := classify(pollErr)
		s.metrics.IncPollError(string(w.protocol), reason)
		s.logPollFailure(ctx, w, reason, pollErr)
	}
}

// fetch builds a fresh connector so credential changes apply on the next poll.
func (s *Scheduler) fetch(ctx context.Context, w *worker) (status *printerdomain.PrinterStatus, err error) {
	defer func() {
		if r := recover(); r != nil {
			status = nil
			err = fmt.Errorf("%w: %v", errPollPanic, r)
		}
	}()

	cfg, err := s.integrations.ConnectorConfig(ctx, w.integrationID)
	if err != nil {
		return nil, err
	}
	conn, err := s.connectors.New(cfg)
	if err != nil {
		return nil, err
	}
	return conn.GetStatus(ctx)
}
