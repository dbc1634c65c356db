package scheduler

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/printfleet/internal/clock"
	connectordomain "github.com/smallbiznis/printfleet/internal/connector/domain"
	integrationdomain "github.com/smallbiznis/printfleet/internal/integration/domain"
	obsmetrics "github.com/smallbiznis/printfleet/internal/observability/metrics"
	printerdomain "github.com/smallbiznis/printfleet/internal/printer/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var (
	ErrInvalidConfig = errors.New("invalid_scheduler_config")
	ErrNotRunning    = errors.New("scheduler_not_running")
)

// ConnectorFactory builds a connector for one integration.
type ConnectorFactory interface {
	New(cfg integrationdomain.ConnectorConfig) (connectordomain.Connector, error)
}

// Lease coordinates polls across replicas. Acquire returns ok=false when
// another replica holds the printer.
type Lease interface {
	Acquire(ctx context.Context, printerID snowflake.ID) (release func(context.Context), ok bool, err error)
}

type Params struct {
	fx.In

	Log          *zap.Logger
	Clock        clock.Clock
	Integrations integrationdomain.Service
	Printers     printerdomain.Service
	Connectors   ConnectorFactory
	Lease        Lease                     `optional:"true"`
	Metrics      *obsmetrics.PollerMetrics `optional:"true"`
	Config       Config                    `optional:"true"`
}

// Scheduler supervises one polling worker per printer.
type Scheduler struct {
	log          *zap.Logger
	cfg          Config
	clock        clock.Clock
	integrations integrationdomain.Service
	printers     printerdomain.Service
	connectors   ConnectorFactory
	lease        Lease
	metrics      *obsmetrics.PollerMetrics

	// lifecycle serializes Start and Stop. Stop releases it only once the
	// previous run has drained.
	lifecycle sync.Mutex

	mu      sync.Mutex
	run     *run
	workers map[snowflake.ID]*worker
	// draining holds retired workers whose last poll may still be writing.
	draining map[snowflake.ID]*worker
}

// run is one Start..Stop generation. Polls of a generation only deliver to
// its own sink.
type run struct {
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	results chan pollResult
	sinkEnd chan struct{}
}

type WorkerStatus struct {
	IntegrationID snowflake.ID           `json:"integration_id"`
	Protocol      integrationdomain.Type `json:"protocol"`
	Interval      time.Duration          `json:"interval"`
	LastPoll      *time.Time             `json:"last_poll,omitempty"`
	LastSuccess   *time.Time             `json:"last_success,omitempty"`
	LastError     string                 `json:"last_error,omitempty"`
	InFlight      bool                   `json:"in_flight"`
	Skipped       int64                  `json:"skipped"`
	Polls         int64                  `json:"polls"`
}

type Status struct {
	Running  bool                    `json:"running"`
	Printers int                     `json:"printers"`
	Workers  map[string]WorkerStatus `json:"workers"`
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.Clock == nil || p.Integrations == nil || p.Printers == nil || p.Connectors == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		log:          p.Log.Named("scheduler").With(zap.String("component", "poller")),
		cfg:          p.Config.withDefaults(),
		clock:        p.Clock,
		integrations: p.Integrations,
		printers:     p.Printers,
		connectors:   p.Connectors,
		lease:        p.Lease,
		metrics:      p.Metrics,
		workers:      map[snowflake.ID]*worker{},
		draining:     map[snowflake.ID]*worker{},
	}, nil
}

// Start launches a worker for every active integration. Calling it on a
// running scheduler is a no-op.
func (s *Scheduler) Start(ctx context.Context) error {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.run != nil {
		return nil
	}

	active, err := s.integrations.ListActive(ctx)
	if err != nil {
		return err
	}

	// Workers outlive the caller's context; Stop ends them.
	r := &run{
		results: make(chan pollResult),
		sinkEnd: make(chan struct{}),
	}
	r.ctx, r.cancel = context.WithCancel(context.Background())
	go s.runSink(r.results, r.sinkEnd)
	s.run = r

	for _, in := range newestPerPrinter(active) {
		s.spawnLocked(in)
	}
	s.metrics.SetRunning(true)
	s.metrics.SetWorkers(len(s.workers))
	s.log.Info("scheduler.started", zap.Int("printers", len(s.workers)))
	return nil
}

// Stop cancels every worker and waits for in-flight polls to finish their
// status write. No write happens after Stop returns.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.lifecycle.Lock()
	s.mu.Lock()
	r := s.run
	if r == nil {
		s.mu.Unlock()
		s.lifecycle.Unlock()
		return nil
	}
	s.run = nil
	r.cancel()
	for id, w := range s.workers {
		w.cancel()
		delete(s.workers, id)
	}
	s.mu.Unlock()

	drained := make(chan struct{})
	go func() {
		defer s.lifecycle.Unlock()
		r.wg.Wait()
		close(r.results)
		<-r.sinkEnd
		close(drained)
	}()

	select {
	case <-drained:
	case <-ctx.Done():
		return ctx.Err()
	}

	s.metrics.SetRunning(false)
	s.metrics.SetWorkers(0)
	s.log.Info("scheduler.stopped")
	return nil
}

func (s *Scheduler) Restart(ctx context.Context) error {
	if err := s.Stop(ctx); err != nil {
		return err
	}
	return s.Start(ctx)
}

// AddPrinter starts or replaces the worker of the integration's printer. The
// previous worker finishes its in-flight poll before the replacement starts,
// so a printer never has two polls running. An inactive integration only
// removes the existing worker.
func (s *Scheduler) AddPrinter(ctx context.Context, integrationID snowflake.ID) error {
	in, err := s.integrations.GetByID(ctx, integrationID)
	if err != nil {
		return err
	}

	for {
		s.mu.Lock()
		if s.run == nil {
			s.mu.Unlock()
			return ErrNotRunning
		}
		prev := s.workers[in.PrinterID]
		if prev == nil {
			prev = s.draining[in.PrinterID]
		}
		if prev == nil {
			if in.IsActive {
				s.spawnLocked(in)
			}
			s.metrics.SetWorkers(len(s.workers))
			s.mu.Unlock()
			return nil
		}
		s.retireLocked(prev)
		s.mu.Unlock()

		s.awaitRetired(prev)
	}
}

// RemovePrinter stops only that printer's worker and waits for its poll.
func (s *Scheduler) RemovePrinter(printerID snowflake.ID) {
	s.mu.Lock()
	w := s.workers[printerID]
	if w != nil {
		s.retireLocked(w)
	}
	s.mu.Unlock()

	if w != nil {
		s.awaitRetired(w)
		s.log.Info("scheduler.printer.removed", zap.String("printer_id", printerID.String()))
	}
}

func (s *Scheduler) retireLocked(w *worker) {
	if s.workers[w.printerID] == w {
		delete(s.workers, w.printerID)
	}
	s.draining[w.printerID] = w
	s.metrics.SetWorkers(len(s.workers))
	w.cancel()
}

func (s *Scheduler) awaitRetired(w *worker) {
	w.wg.Wait()
	s.mu.Lock()
	if s.draining[w.printerID] == w {
		delete(s.draining, w.printerID)
	}
	s.mu.Unlock()
}

func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Status{
		Running:  s.run != nil,
		Printers: len(s.workers),
		Workers:  make(map[string]WorkerStatus, len(s.workers)),
	}
	for id, w := range s.workers {
		st.Workers[id.String()] = w.snapshot()
	}
	return st
}

func (s *Scheduler) spawnLocked(in integrationdomain.Integration) {
	interval := time.Duration(in.PollInterval) * time.Second
	if interval < s.cfg.MinPollInterval {
		interval = s.cfg.MinPollInterval
	}

	r := s.run
	ctx, cancel := context.WithCancel(r.ctx)
	w := &worker{
		run:           r,
		integrationID: in.ID,
		printerID:     in.PrinterID,
		protocol:      in.Type,
		interval:      interval,
		cancel:        cancel,
	}
	s.workers[in.PrinterID] = w

	w.track()
	go s.runWorker(s.withLogContext(ctx, in.PrinterID), w)
}

// newestPerPrinter keeps the most recently updated integration of each
// printer.
func newestPerPrinter(items []integrationdomain.Integration) []integrationdomain.Integration {
	byPrinter := make(map[snowflake.ID]integrationdomain.Integration, len(items))
	for _, in := range items {
		current, ok := byPrinter[in.PrinterID]
		if !ok || in.UpdatedAt.After(current.UpdatedAt) {
			byPrinter[in.PrinterID] = in
		}
	}
	out := make([]integrationdomain.Integration, 0, len(byPrinter))
	for _, in := range byPrinter {
		out = append(out, in)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PrinterID < out[j].PrinterID })
	return out
}
