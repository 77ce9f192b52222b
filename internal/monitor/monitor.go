// Package monitor runs the refresh loop that keeps the violation table in
// step with the drone feed.
package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"birdnest/internal/backoff"
	"birdnest/internal/geometry"
	"birdnest/internal/logging"
	"birdnest/internal/telemetry"
	"birdnest/internal/violation"
)

// ReportSource yields drone feed frames. A nil frame means no data.
type ReportSource interface {
	Report(ctx context.Context) (*telemetry.Report, error)
}

// PilotSource looks up the pilot of a drone. A nil pilot means not found.
type PilotSource interface {
	Pilot(ctx context.Context, serial string) (*telemetry.Pilot, error)
}

// Config tunes the refresh loop.
type Config struct {
	PollInterval      time.Duration
	MaxPositions      int
	ViolationTTL      time.Duration
	DegradedThreshold int
	DegradedDelay     time.Duration
	Zone              geometry.Zone
}

// DefaultConfig returns the standard tuning.
func DefaultConfig() Config {
	return Config{
		PollInterval:      2 * time.Second,
		MaxPositions:      50,
		ViolationTTL:      10 * time.Minute,
		DegradedThreshold: 5,
		DegradedDelay:     5 * time.Second,
		Zone:              geometry.Default(),
	}
}

// State is the lifecycle state of a Monitor.
type State int

const (
	Stopped State = iota
	Running
)

func (s State) String() string {
	if s == Running {
		return "running"
	}
	return "stopped"
}

// Status is a point-in-time view of the monitor.
type Status struct {
	State        string    `json:"state"`
	Generation   uint64    `json:"generation"`
	RunID        string    `json:"runId,omitempty"`
	RunStarted   time.Time `json:"runStarted"`
	Cycles       uint64    `json:"cycles"`
	EmptyReports int64     `json:"emptyReports"`
	Violations   int       `json:"violations"`
	Events       HubStats  `json:"events"`
}

// Monitor owns the violation store and drives refresh cycles against the
// drone feed and pilot registry.
type Monitor struct {
	cfg    Config
	drones ReportSource
	pilots PilotSource
	store  *violation.Store
	hub    *Hub
	log    *slog.Logger
	now    func() time.Time
	sleep  backoff.SleepFunc

	mu         sync.Mutex
	state      State
	runCtx     context.Context
	cancel     context.CancelFunc
	generation uint64
	runID      string
	runStarted time.Time

	// cycleMu serializes the steps that mutate records so a superseded run
	// finishing late cannot interleave with the current one.
	cycleMu      sync.Mutex
	cycles       atomic.Uint64
	emptyReports atomic.Int64

	lookupMu sync.Mutex
	lookups  map[string]struct{}
	enrich   sync.WaitGroup

	fatal chan error
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Monitor) { m.log = l }
}

// WithClock replaces the wall clock used for TTL checks.
func WithClock(now func() time.Time) Option {
	return func(m *Monitor) { m.now = now }
}

// WithSleep replaces the wait used for the degraded-feed delay.
func WithSleep(fn backoff.SleepFunc) Option {
	return func(m *Monitor) { m.sleep = fn }
}

// WithStore uses an existing store.
func WithStore(s *violation.Store) Option {
	return func(m *Monitor) { m.store = s }
}

// WithHub publishes updates on an existing hub.
func WithHub(h *Hub) Option {
	return func(m *Monitor) { m.hub = h }
}

// New creates a stopped monitor.
func New(cfg Config, drones ReportSource, pilots PilotSource, opts ...Option) *Monitor {
	m := &Monitor{
		cfg:     cfg,
		drones:  drones,
		pilots:  pilots,
		log:     slog.Default(),
		now:     time.Now,
		sleep:   backoff.Sleep,
		lookups: make(map[string]struct{}),
		fatal:   make(chan error, 1),
	}
	for _, o := range opts {
		o(m)
	}
	if m.store == nil {
		m.store = violation.NewStore()
	}
	if m.hub == nil {
		m.hub = NewHub()
	}
	return m
}

// Start begins polling. Calling Start on a running monitor is a no-op.
func (m *Monitor) Start(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("start monitor: %w", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == Running {
		m.log.Info("monitor already running", "generation", m.generation)
		return nil
	}
	m.runCtx, m.cancel = context.WithCancel(logging.NewContext(ctx, m.log))
	m.state = Running
	m.generation = 0
	m.emptyReports.Store(0)
	m.launch(0)
	return nil
}

// launch starts a run for gen. mu must be held.
func (m *Monitor) launch(gen uint64) {
	m.runID = uuid.NewString()
	m.runStarted = m.now()
	log := m.log.With("generation", gen, "run_id", m.runID)
	log.Info("refresh run started", "poll_interval", m.cfg.PollInterval)
	go m.run(m.runCtx, gen, log)
}

// run chains refresh cycles with a fixed delay after each one completes
// until the context ends or a newer generation takes over.
func (m *Monitor) run(ctx context.Context, gen uint64, log *slog.Logger) {
	for {
		if err := m.Refresh(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			m.fail(gen, err, log)
			return
		}
		if !m.current(ctx, gen) {
			log.Info("superseded run abandoned")
			return
		}
		t := time.NewTimer(m.cfg.PollInterval)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
		if !m.current(ctx, gen) {
			log.Info("superseded run abandoned")
			return
		}
	}
}

func (m *Monitor) current(ctx context.Context, gen uint64) bool {
	if ctx.Err() != nil {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state == Running && m.generation == gen
}

// fail stops the monitor after an unrecoverable error from the current run.
func (m *Monitor) fail(gen uint64, err error, log *slog.Logger) {
	m.mu.Lock()
	if m.state != Running || m.generation != gen {
		m.mu.Unlock()
		log.Warn("superseded run failed", "err", err)
		return
	}
	m.state = Stopped
	m.generation++
	m.cancel()
	m.mu.Unlock()

	log.Error("refresh run failed", "err", err)
	select {
	case m.fatal <- err:
	default:
	}
}

// Fatal delivers the error that made the monitor stop on its own.
func (m *Monitor) Fatal() <-chan error {
	return m.fatal
}

// Restart abandons the current run and starts a new generation. It reports
// false when the monitor is not running.
func (m *Monitor) Restart() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != Running {
		return false
	}
	m.generation++
	m.launch(m.generation)
	return true
}

// Stop cancels the pending cycle, waits for outstanding pilot lookups and
// discards every record.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if m.state != Running {
		m.mu.Unlock()
		return
	}
	m.state = Stopped
	m.generation++
	m.cancel()
	m.mu.Unlock()

	m.cycleMu.Lock()
	m.store.Drop()
	m.cycleMu.Unlock()
	m.enrich.Wait()
	m.syncGauge()
	m.log.Info("monitor stopped", "cycles", m.cycles.Load())
}

// Running reports whether the monitor is started.
func (m *Monitor) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state == Running
}

// Cycles returns the number of refresh cycles completed since creation.
func (m *Monitor) Cycles() uint64 {
	return m.cycles.Load()
}

// Generation returns the current run generation.
func (m *Monitor) Generation() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.generation
}

// Snapshot returns a copy of every record.
func (m *Monitor) Snapshot() map[string]violation.Violation {
	return m.store.GetAll()
}

// Get returns a copy of one record.
func (m *Monitor) Get(serial string) (violation.Violation, bool) {
	return m.store.Get(serial)
}

// Subscribe registers for updates. See Hub.Subscribe.
func (m *Monitor) Subscribe(buffer int) (string, <-chan Update) {
	return m.hub.Subscribe(buffer)
}

// Unsubscribe stops delivery to a subscriber.
func (m *Monitor) Unsubscribe(id string) bool {
	return m.hub.Unsubscribe(id)
}

// Status returns a point-in-time view of the monitor.
func (m *Monitor) Status() Status {
	m.mu.Lock()
	st := Status{
		State:      m.state.String(),
		Generation: m.generation,
		RunID:      m.runID,
		RunStarted: m.runStarted,
	}
	m.mu.Unlock()
	st.Cycles = m.cycles.Load()
	st.EmptyReports = m.emptyReports.Load()
	st.Violations = m.store.Count()
	st.Events = m.hub.Stats()
	return st
}
