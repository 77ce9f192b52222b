package monitor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"birdnest/internal/metrics"
)

// Target is what a Watchdog supervises.
type Target interface {
	Cycles() uint64
	Running() bool
	Restart() bool
}

// WatchdogConfig tunes a Watchdog.
type WatchdogConfig struct {
	// Interval between progress samples.
	Interval time.Duration
	// CycleLogInterval between "completed refresh cycles" log lines; 0 disables them.
	CycleLogInterval time.Duration
}

// DefaultWatchdogConfig returns the standard tuning.
func DefaultWatchdogConfig() WatchdogConfig {
	return WatchdogConfig{Interval: time.Minute, CycleLogInterval: time.Minute}
}

// WatchdogStatus is a point-in-time view of the watchdog.
type WatchdogStatus struct {
	Interval   time.Duration `json:"interval"`
	LastSample time.Time     `json:"lastSample"`
	LastCycles uint64        `json:"lastCycles"`
	Restarts   int           `json:"restarts"`
	Stalled    bool          `json:"stalled"`
}

// Watchdog restarts the refresh loop when no cycle completes between two
// samples.
type Watchdog struct {
	target Target
	cfg    WatchdogConfig
	log    *slog.Logger
	now    func() time.Time

	mu         sync.Mutex
	last       uint64
	lastSample time.Time
	restarts   int
	stalled    bool

	logCycles uint64
	logAt     time.Time
}

// NewWatchdog creates a watchdog whose baseline is the target's current
// cycle count.
func NewWatchdog(target Target, cfg WatchdogConfig, log *slog.Logger) *Watchdog {
	if log == nil {
		log = slog.Default()
	}
	w := &Watchdog{target: target, cfg: cfg, log: log, now: time.Now}
	w.reset()
	return w
}

func (w *Watchdog) reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	now := w.now()
	w.last = w.target.Cycles()
	w.lastSample = now
	w.logCycles = w.last
	w.logAt = now
}

// Run samples until ctx is done.
func (w *Watchdog) Run(ctx context.Context) error {
	if w.cfg.Interval <= 0 {
		<-ctx.Done()
		return nil
	}
	w.reset()
	sample := time.NewTicker(w.cfg.Interval)
	defer sample.Stop()

	var logC <-chan time.Time
	if w.cfg.CycleLogInterval > 0 {
		t := time.NewTicker(w.cfg.CycleLogInterval)
		defer t.Stop()
		logC = t.C
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-sample.C:
			w.Check()
		case <-logC:
			w.logProgress()
		}
	}
}

// Check takes one sample and restarts the target if it made no progress
// since the previous one. It reports whether a restart was requested.
func (w *Watchdog) Check() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	cycles := w.target.Cycles()
	w.stalled = w.target.Running() && cycles == w.last
	w.last = cycles
	w.lastSample = w.now()
	if !w.stalled {
		return false
	}
	if !w.target.Restart() {
		return false
	}
	w.restarts++
	metrics.WatchdogRestarts.Inc()
	w.log.Warn("refresh loop stalled, starting a new run", "cycles", cycles, "restarts", w.restarts)
	return true
}

func (w *Watchdog) logProgress() {
	w.mu.Lock()
	defer w.mu.Unlock()
	now := w.now()
	cycles := w.target.Cycles()
	w.log.Info("completed refresh cycles", "count", cycles-w.logCycles, "elapsed_ms", now.Sub(w.logAt).Milliseconds())
	w.logCycles = cycles
	w.logAt = now
}

// Status returns a point-in-time view of the watchdog.
func (w *Watchdog) Status() WatchdogStatus {
	w.mu.Lock()
	defer w.mu.Unlock()
	return WatchdogStatus{
		Interval:   w.cfg.Interval,
		LastSample: w.lastSample,
		LastCycles: w.last,
		Restarts:   w.restarts,
		Stalled:    w.stalled,
	}
}
