package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/smallbiznis/printfleet/internal/clock"
	connectordomain "github.com/smallbiznis/printfleet/internal/connector/domain"
	integrationdomain "github.com/smallbiznis/printfleet/internal/integration/domain"
	printerdomain "github.com/smallbiznis/printfleet/internal/printer/domain"
)

var baseTime = time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

type fakeIntegrations struct {
	integrationdomain.Service

	mu        sync.Mutex
	items     map[snowflake.ID]integrationdomain.Integration
	synced    map[snowflake.ID]int
	errors    map[snowflake.ID][]string
	recordErr error
}

func newFakeIntegrations(items ...integrationdomain.Integration) *fakeIntegrations {
	f := &fakeIntegrations{
		items:  map[snowflake.ID]integrationdomain.Integration{},
		synced: map[snowflake.ID]int{},
		errors: map[snowflake.ID][]string{},
	}
	for _, in := range items {
		f.items[in.ID] = in
	}
	return f
}

func (f *fakeIntegrations) put(in integrationdomain.Integration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items[in.ID] = in
}

func (f *fakeIntegrations) ListActive(context.Context) ([]integrationdomain.Integration, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []integrationdomain.Integration
	for _, in := range f.items {
		if in.IsActive {
			out = append(out, in)
		}
	}
	return out, nil
}

func (f *fakeIntegrations) GetByID(_ context.Context, id snowflake.ID) (integrationdomain.Integration, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	in, ok := f.items[id]
	if !ok {
		return integrationdomain.Integration{}, integrationdomain.ErrNotFound
	}
	return in, nil
}

func (f *fakeIntegrations) Get(_ context.Context, printerID snowflake.ID, _ string) (integrationdomain.Integration, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, in := range f.items {
		if in.PrinterID == printerID && in.IsActive {
			return in, nil
		}
	}
	return integrationdomain.Integration{}, integrationdomain.ErrNotFound
}

func (f *fakeIntegrations) ConnectorConfig(_ context.Context, id snowflake.ID) (integrationdomain.ConnectorConfig, error) {
	in, err := f.GetByID(context.Background(), id)
	if err != nil {
		return integrationdomain.ConnectorConfig{}, err
	}
	return integrationdomain.ConnectorConfig{
		IntegrationID: in.ID,
		PrinterID:     in.PrinterID,
		Type:          in.Type,
		Endpoint:      in.Endpoint,
	}, nil
}

func (f *fakeIntegrations) MarkSynced(_ context.Context, id snowflake.ID, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.synced[id]++
	return nil
}

func (f *fakeIntegrations) RecordError(_ context.Context, id snowflake.ID, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errors[id] = append(f.errors[id], message)
	return f.recordErr
}

func (f *fakeIntegrations) syncCount(id snowflake.ID) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.synced[id]
}

func (f *fakeIntegrations) errorsFor(id snowflake.ID) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.errors[id]...)
}

type fakePrinters struct {
	printerdomain.Service

	mu       sync.Mutex
	applied  map[snowflake.ID]int
	failures map[snowflake.ID][]string
	applyErr error
}

func newFakePrinters() *fakePrinters {
	return &fakePrinters{applied: map[snowflake.ID]int{}, failures: map[snowflake.ID][]string{}}
}

func (f *fakePrinters) ApplyStatus(_ context.Context, id snowflake.ID, _ printerdomain.PrinterStatus) (printerdomain.Printer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.applyErr != nil {
		return printerdomain.Printer{}, f.applyErr
	}
	f.applied[id]++
	return printerdomain.Printer{ID: id}, nil
}

func (f *fakePrinters) ApplyFailure(_ context.Context, id snowflake.ID, detail string, _ time.Time) (printerdomain.Printer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[id] = append(f.failures[id], detail)
	return printerdomain.Printer{ID: id}, nil
}

func (f *fakePrinters) writes(id snowflake.ID) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.applied[id] + len(f.failures[id])
}

func (f *fakePrinters) appliedCount(id snowflake.ID) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.applied[id]
}

func (f *fakePrinters) failuresFor(id snowflake.ID) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.failures[id]...)
}

// fakeConnector answers polls through a per-printer behaviour.
type fakeConnector struct {
	protocol integrationdomain.Type
	get      func(ctx context.Context) (*printerdomain.PrinterStatus, error)
}

func (c fakeConnector) Protocol() integrationdomain.Type { return c.protocol }

func (c fakeConnector) GetStatus(ctx context.Context) (*printerdomain.PrinterStatus, error) {
	return c.get(ctx)
}

type fakeFactory struct {
	mu        sync.Mutex
	behaviour map[snowflake.ID]func(ctx context.Context) (*printerdomain.PrinterStatus, error)
}

func (f *fakeFactory) set(printerID snowflake.ID, fn func(ctx context.Context) (*printerdomain.PrinterStatus, error)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.behaviour == nil {
		f.behaviour = map[snowflake.ID]func(ctx context.Context) (*printerdomain.PrinterStatus, error){}
	}
	f.behaviour[printerID] = fn
}

func (f *fakeFactory) New(cfg integrationdomain.ConnectorConfig) (connectordomain.Connector, error) {
	f.mu.Lock()
	fn, ok := f.behaviour[cfg.PrinterID]
	f.mu.Unlock()
	if !ok {
		fn = healthy
	}
	return fakeConnector{protocol: cfg.Type, get: fn}, nil
}

func healthy(context.Context) (*printerdomain.PrinterStatus, error) {
	return &printerdomain.PrinterStatus{Status: printerdomain.StatusOnline}, nil
}

type fakeLease struct {
	mu   sync.Mutex
	held map[snowflake.ID]bool
}

func (l *fakeLease) Acquire(_ context.Context, printerID snowflake.ID) (func(context.Context), bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[printerID] {
		return nil, false, nil
	}
	return func(context.Context) {}, true, nil
}

type harness struct {
	sched        *Scheduler
	clock        *clock.FakeClock
	integrations *fakeIntegrations
	printers     *fakePrinters
	factory      *fakeFactory
}

func newHarness(t *testing.T, lease Lease, items ...integrationdomain.Integration) *harness {
	t.Helper()
	return newHarnessWithLogger(t, zap.NewNop(), lease, items...)
}

func newHarnessWithLogger(t *testing.T, log *zap.Logger, lease Lease, items ...integrationdomain.Integration) *harness {
	t.Helper()
	h := &harness{
		clock:        clock.NewFakeClock(baseTime),
		integrations: newFakeIntegrations(items...),
		printers:     newFakePrinters(),
		factory:      &fakeFactory{},
	}
	sched, err := New(Params{
		Log:          log,
		Clock:        h.clock,
		Integrations: h.integrations,
		Printers:     h.printers,
		Connectors:   h.factory,
		Lease:        lease,
	})
	require.NoError(t, err)
	h.sched = sched
	t.Cleanup(func() { _ = sched.Stop(context.Background()) })
	return h
}

func (h *harness) waitTickers(t *testing.T, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return h.clock.Tickers() == n }, time.Second, time.Millisecond)
}

// waitIdle blocks until the printer finished polls polls and nothing is in
// flight, so the next tick is not skipped.
func (h *harness) waitIdle(t *testing.T, printerID snowflake.ID, polls int64) {
	t.Helper()
	require.Eventually(t, func() bool {
		w, ok := h.sched.Status().Workers[printerID.String()]
		return ok && w.Polls == polls && !w.InFlight
	}, time.Second, time.Millisecond)
}

func integration(id, printerID int64, interval int) integrationdomain.Integration {
	return integrationdomain.Integration{
		ID:           snowflake.ID(id),
		PrinterID:    snowflake.ID(printerID),
		Type:         integrationdomain.TypeHTTP,
		Endpoint:     "http://printer.local/status",
		PollInterval: interval,
		IsActive:     true,
		UpdatedAt:    baseTime,
	}
}

func TestNew_RequiresDependencies(t *testing.T) {
	_, err := New(Params{Log: zap.NewNop()})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestStart_PollsImmediatelyAndOnEveryTick(t *testing.T) {
	h := newHarness(t, nil, integration(1, 10, 60), integration(2, 20, 30))
	require.NoError(t, h.sched.Start(context.Background()))
	h.waitTickers(t, 2)

	p10, p20 := snowflake.ID(10), snowflake.ID(20)
	h.waitIdle(t, p10, 1)
	h.waitIdle(t, p20, 1)

	h.clock.Advance(30 * time.Second)
	h.waitIdle(t, p20, 2)
	assert.Equal(t, 1, h.printers.appliedCount(p10))

	h.clock.Advance(30 * time.Second)
	h.waitIdle(t, p10, 2)
	h.waitIdle(t, p20, 3)
	assert.Equal(t, 3, h.printers.appliedCount(p20))
	assert.Equal(t, 3, h.integrations.syncCount(2))

	st := h.sched.Status()
	assert.True(t, st.Running)
	assert.Equal(t, 2, st.Printers)
	w := st.Workers[p10.String()]
	assert.Equal(t, snowflake.ID(1), w.IntegrationID)
	assert.Equal(t, time.Minute, w.Interval)
	assert.NotNil(t, w.LastSuccess)
	assert.Empty(t, w.LastError)
}

func TestStart_OneWorkerPerPrinter(t *testing.T) {
	older := integration(1, 10, 60)
	newer := integration(2, 10, 60)
	newer.Type = integrationdomain.TypeIPP
	newer.UpdatedAt = baseTime.Add(time.Hour)

	h := newHarness(t, nil, older, newer)
	require.NoError(t, h.sched.Start(context.Background()))

	st := h.sched.Status()
	require.Equal(t, 1, st.Printers)
	assert.Equal(t, snowflake.ID(2), st.Workers["10"].IntegrationID)
	assert.Equal(t, integrationdomain.TypeIPP, st.Workers["10"].Protocol)
}

func TestTick_SkippedWhilePollInFlight(t *testing.T) {
	h := newHarness(t, nil, integration(1, 10, 60))
	release := make(chan struct{})
	entered := make(chan struct{}, 4)
	h.factory.set(10, func(ctx context.Context) (*printerdomain.PrinterStatus, error) {
		entered <- struct{}{}
		<-release
		return healthy(ctx)
	})

	require.NoError(t, h.sched.Start(context.Background()))
	h.waitTickers(t, 1)
	<-entered

	h.clock.Advance(time.Minute)
	require.Eventually(t, func() bool { return h.sched.Status().Workers["10"].Skipped == 1 }, time.Second, time.Millisecond)
	h.clock.Advance(time.Minute)
	require.Eventually(t, func() bool { return h.sched.Status().Workers["10"].Skipped == 2 }, time.Second, time.Millisecond)
	assert.True(t, h.sched.Status().Workers["10"].InFlight)

	close(release)
	require.Eventually(t, func() bool { return h.printers.appliedCount(10) == 1 }, time.Second, time.Millisecond)
	assert.Len(t, entered, 0, "skipped ticks are not queued")
}

func TestPoll_FailureIsIsolated(t *testing.T) {
	h := newHarness(t, nil, integration(1, 10, 60), integration(2, 20, 60), integration(3, 30, 60))
	h.factory.set(10, func(context.Context) (*printerdomain.PrinterStatus, error) {
		return nil, connectordomain.Unavailable("http", "http://printer.local/status", context.DeadlineExceeded)
	})
	h.factory.set(20, func(context.Context) (*printerdomain.PrinterStatus, error) {
		panic("driver bug")
	})

	require.NoError(t, h.sched.Start(context.Background()))
	h.waitIdle(t, 10, 1)
	h.waitIdle(t, 20, 1)
	h.waitIdle(t, 30, 1)

	assert.Equal(t, 1, h.printers.appliedCount(30))
	assert.Equal(t, 1, h.integrations.syncCount(3))

	require.Len(t, h.printers.failuresFor(10), 1)
	assert.Contains(t, h.printers.failuresFor(10)[0], "connector_unavailable")
	require.Len(t, h.integrations.errorsFor(1), 1)
	assert.Equal(t, 0, h.integrations.syncCount(1))

	require.Len(t, h.printers.failuresFor(20), 1)
	assert.Contains(t, h.printers.failuresFor(20)[0], "driver bug")

	require.Eventually(t, func() bool {
		return h.sched.Status().Workers["20"].LastError != ""
	}, time.Second, time.Millisecond)
	assert.Contains(t, h.sched.Status().Workers["20"].LastError, "poll_panic")
}

func TestStop_DrainsInFlightPollsAndBlocksWrites(t *testing.T) {
	h := newHarness(t, nil, integration(1, 10, 60))
	release := make(chan struct{})
	entered := make(chan struct{}, 1)
	h.factory.set(10, func(ctx context.Context) (*printerdomain.PrinterStatus, error) {
		entered <- struct{}{}
		<-release
		return healthy(ctx)
	})

	require.NoError(t, h.sched.Start(context.Background()))
	<-entered

	stopped := make(chan error, 1)
	go func() { stopped <- h.sched.Stop(context.Background()) }()

	select {
	case <-stopped:
		t.Fatal("stop returned before the in-flight poll finished")
	case <-time.After(20 * time.Millisecond):
	}

	close(release)
	require.NoError(t, <-stopped)
	assert.Equal(t, 1, h.printers.appliedCount(10))
	assert.False(t, h.sched.Status().Running)

	h.clock.Advance(time.Hour)
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, 1, h.printers.writes(10))
	assert.Equal(t, 0, h.clock.Tickers())
}

func TestAddAndRemovePrinter(t *testing.T) {
	h := newHarness(t, nil, integration(1, 10, 60))
	ctx := context.Background()

	assert.ErrorIs(t, h.sched.AddPrinter(ctx, 1), ErrNotRunning)

	require.NoError(t, h.sched.Start(ctx))
	h.waitTickers(t, 1)
	h.waitIdle(t, 10, 1)

	h.integrations.put(integration(2, 20, 60))
	require.NoError(t, h.sched.AddPrinter(ctx, 2))
	h.waitTickers(t, 2)
	h.waitIdle(t, 20, 1)
	assert.Equal(t, 1, h.printers.appliedCount(10), "adding a printer leaves other workers alone")

	h.sched.RemovePrinter(10)
	h.waitTickers(t, 1)
	h.clock.Advance(time.Minute)
	require.Eventually(t, func() bool { return h.printers.appliedCount(20) == 2 }, time.Second, time.Millisecond)
	assert.Equal(t, 1, h.printers.appliedCount(10))

	inactive := integration(2, 20, 60)
	inactive.IsActive = false
	h.integrations.put(inactive)
	require.NoError(t, h.sched.AddPrinter(ctx, 2))
	assert.Equal(t, 0, h.sched.Status().Printers)

	assert.ErrorIs(t, h.sched.AddPrinter(ctx, 99), integrationdomain.ErrNotFound)
}

// trackPeak records the highest number of concurrent polls for one printer.
// The first poll blocks until release is closed.
func trackPeak(peak *atomic.Int32, release <-chan struct{}) func(ctx context.Context) (*printerdomain.PrinterStatus, error) {
	var active, calls atomic.Int32
	return func(ctx context.Context) (*printerdomain.PrinterStatus, error) {
		n := active.Add(1)
		defer active.Add(-1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		if calls.Add(1) == 1 {
			<-release
		}
		return healthy(ctx)
	}
}

func TestAddPrinter_ReplacementWaitsForInFlightPoll(t *testing.T) {
	h := newHarness(t, nil, integration(1, 10, 60))
	ctx := context.Background()

	var peak atomic.Int32
	release := make(chan struct{})
	h.factory.set(10, trackPeak(&peak, release))

	require.NoError(t, h.sched.Start(ctx))
	require.Eventually(t, func() bool { return peak.Load() == 1 }, time.Second, time.Millisecond)

	h.integrations.put(integration(3, 10, 60))
	added := make(chan error, 1)
	go func() { added <- h.sched.AddPrinter(ctx, 3) }()

	select {
	case err := <-added:
		t.Fatalf("replacement started while the old poll was in flight: %v", err)
	case <-time.After(20 * time.Millisecond):
	}

	close(release)
	require.NoError(t, <-added)
	require.Eventually(t, func() bool { return h.integrations.syncCount(3) == 1 }, time.Second, time.Millisecond)

	assert.Equal(t, int32(1), peak.Load())
	assert.Equal(t, 1, h.integrations.syncCount(1))
	assert.Equal(t, 2, h.printers.appliedCount(10))
	assert.Equal(t, snowflake.ID(3), h.sched.Status().Workers["10"].IntegrationID)
}

func TestRemovePrinter_MidPollDoesNotDelayOthers(t *testing.T) {
	h := newHarness(t, nil, integration(1, 10, 60), integration(2, 20, 60))
	ctx := context.Background()

	var peak atomic.Int32
	release := make(chan struct{})
	h.factory.set(10, trackPeak(&peak, release))

	require.NoError(t, h.sched.Start(ctx))
	h.waitTickers(t, 2)
	require.Eventually(t, func() bool { return peak.Load() == 1 }, time.Second, time.Millisecond)
	h.waitIdle(t, 20, 1)

	removed := make(chan struct{})
	go func() {
		h.sched.RemovePrinter(10)
		close(removed)
	}()
	h.waitTickers(t, 1)

	h.clock.Advance(time.Minute)
	h.waitIdle(t, 20, 2)
	h.clock.Advance(time.Minute)
	h.waitIdle(t, 20, 3)

	select {
	case <-removed:
		t.Fatal("remove returned before the in-flight poll finished")
	default:
	}

	close(release)
	<-removed
	assert.Equal(t, 1, h.printers.appliedCount(10))
	assert.Equal(t, 3, h.printers.appliedCount(20))
}

func TestPoll_RecordErrorFailureIsLogged(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	h := newHarnessWithLogger(t, zap.New(core), nil, integration(1, 10, 60))
	h.printers.applyErr = errors.New("database is locked")
	h.integrations.recordErr = errors.New("integration row gone")

	require.NoError(t, h.sched.Start(context.Background()))
	h.waitIdle(t, 10, 1)

	assert.Contains(t, h.sched.Status().Workers["10"].LastError, "database is locked")
	assert.Len(t, h.integrations.errorsFor(1), 1)
	require.Eventually(t, func() bool {
		return logs.FilterMessage("scheduler.poll.record_error_failed").Len() == 1
	}, time.Second, time.Millisecond)
}

func TestRestart_ReloadsIntegrations(t *testing.T) {
	h := newHarness(t, nil, integration(1, 10, 60))
	ctx := context.Background()
	require.NoError(t, h.sched.Start(ctx))
	require.Eventually(t, func() bool { return h.printers.appliedCount(10) == 1 }, time.Second, time.Millisecond)

	h.integrations.put(integration(2, 20, 60))
	require.NoError(t, h.sched.Restart(ctx))

	require.Eventually(t, func() bool {
		return h.printers.appliedCount(10) == 2 && h.printers.appliedCount(20) == 1
	}, time.Second, time.Millisecond)
	assert.Equal(t, 2, h.sched.Status().Printers)
}

func TestLease_HeldElsewhereSkipsPoll(t *testing.T) {
	lease := &fakeLease{held: map[snowflake.ID]bool{10: true}}
	h := newHarness(t, lease, integration(1, 10, 60), integration(2, 20, 60))
	require.NoError(t, h.sched.Start(context.Background()))

	require.Eventually(t, func() bool { return h.printers.appliedCount(20) == 1 }, time.Second, time.Millisecond)
	require.Eventually(t, func() bool { return h.sched.Status().Workers["10"].Skipped == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, 0, h.printers.writes(10))
}

func TestClassify(t *testing.T) {
	assert.Equal(t, "panic", classify(errPollPanic))
	assert.Equal(t, "unsupported_protocol", classify(connectordomain.Unsupported("new", "ftp://printer.local", errors.New("nope"))))
	assert.Equal(t, "deadline_exceeded", classify(context.DeadlineExceeded))
	assert.Equal(t, "unknown", classify(errors.New("x")))
}

func TestSyncPrinter_AppliesStatus(t *testing.T) {
	h := newHarness(t, nil, integration(1, 10, 60))

	printer, err := h.sched.SyncPrinter(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, snowflake.ID(10), printer.ID)
	assert.Equal(t, 1, h.printers.appliedCount(10))
	assert.Equal(t, 1, h.integrations.syncCount(1))
	assert.False(t, h.sched.Status().Running)
}

func TestSyncPrinter_PersistsFailure(t *testing.T) {
	h := newHarness(t, nil, integration(1, 10, 60))
	h.factory.set(10, func(context.Context) (*printerdomain.PrinterStatus, error) {
		return nil, connectordomain.Unavailable("get_status", "http://printer.local/status", errors.New("connection refused"))
	})

	printer, err := h.sched.SyncPrinter(context.Background(), 10)
	require.ErrorIs(t, err, connectordomain.ErrConnectorUnavailable)
	assert.Equal(t, snowflake.ID(10), printer.ID)
	require.Len(t, h.printers.failuresFor(10), 1)
	assert.Contains(t, h.printers.failuresFor(10)[0], "connection refused")
	assert.Len(t, h.integrations.errorsFor(1), 1)
	assert.Equal(t, 0, h.integrations.syncCount(1))
}

func TestSyncPrinter_NoIntegration(t *testing.T) {
	h := newHarness(t, nil)

	_, err := h.sched.SyncPrinter(context.Background(), 99)
	assert.ErrorIs(t, err, integrationdomain.ErrNotFound)
}
