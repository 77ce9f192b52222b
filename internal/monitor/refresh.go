package monitor

import (
	"context"
	"fmt"
	"time"

	"birdnest/internal/metrics"
	"birdnest/internal/telemetry"
	"birdnest/internal/violation"
)

// Refresh runs one cycle: purge expired records, fetch a frame, apply it,
// trim position histories and start pilot lookups for unenriched records.
// Only errors the feed refuses to absorb are returned.
func (m *Monitor) Refresh(ctx context.Context) error {
	start := time.Now()
	m.purge(ctx)

	report, err := m.fetch(ctx)
	if err != nil {
		return fmt.Errorf("fetch drone feed: %w", err)
	}
	if report.Empty() {
		n := m.emptyReports.Add(1)
		metrics.EmptyReports.Inc()
		m.log.Debug("empty drone report", "consecutive", n)
	} else {
		m.emptyReports.Store(0)
		m.apply(ctx, report)
	}

	m.trim(ctx)
	m.enrichPilots(ctx)

	m.cycles.Add(1)
	metrics.RefreshCycles.Inc()
	metrics.RefreshDuration.Observe(time.Since(start).Seconds())
	return nil
}

// fetch waits out a degraded feed before asking for the next frame.
func (m *Monitor) fetch(ctx context.Context) (*telemetry.Report, error) {
	if th := m.cfg.DegradedThreshold; th > 0 && m.emptyReports.Load() >= int64(th) && m.cfg.DegradedDelay > 0 {
		m.log.Debug("drone feed degraded, delaying fetch", "empty_reports", m.emptyReports.Load(), "delay", m.cfg.DegradedDelay)
		if err := m.sleep(ctx, m.cfg.DegradedDelay); err != nil {
			return nil, err
		}
	}
	return m.drones.Report(ctx)
}

func (m *Monitor) purge(ctx context.Context) {
	m.cycleMu.Lock()
	defer m.cycleMu.Unlock()
	if ctx.Err() != nil {
		return
	}
	now := m.now()
	expired := func(_ string, v violation.Violation) bool {
		return now.Sub(v.LastSeen) >= m.cfg.ViolationTTL
	}
	m.store.Where(expired, func(serial string, v violation.Violation) {
		if !m.store.Delete(serial) {
			return
		}
		metrics.ViolationsPurged.Inc()
		m.log.Info("violation expired", "serial", serial, "last_seen", v.LastSeen)
		m.hub.Publish(Update{Serial: serial})
	})
	m.syncGauge()
}

func (m *Monitor) apply(ctx context.Context, r *telemetry.Report) {
	m.cycleMu.Lock()
	defer m.cycleMu.Unlock()
	if ctx.Err() != nil {
		return
	}
	seen := r.Timestamp
	if seen.IsZero() {
		seen = m.now()
	}
	key := telemetry.Millis(seen)
	zone := m.cfg.Zone

	for _, d := range r.Drones {
		if d.SerialNumber == "" {
			continue
		}
		dist := zone.Distance(d.PositionX, d.PositionY)
		prev, tracked := m.store.Get(d.SerialNumber)
		if !tracked && !zone.Contains(d.PositionX, d.PositionY) {
			continue
		}
		closest := dist
		if tracked && prev.ClosestDistance < closest {
			closest = prev.ClosestDistance
		}

		pos := telemetry.Point{X: d.PositionX, Y: d.PositionY}
		v := violation.FromDrone(d)
		v.ClosestDistance = closest
		v.LastSeen = seen
		v.Positions = telemetry.Positions{key: pos}
		if m.store.Upsert(d.SerialNumber, v) {
			m.log.Info("new violation", "serial", d.SerialNumber, "distance_mm", dist)
		}

		out, ok := m.store.Get(d.SerialNumber)
		if !ok {
			continue
		}
		out.Positions = telemetry.Positions{key: pos}
		m.hub.Publish(Update{Serial: d.SerialNumber, Violation: &out})
	}
	m.syncGauge()
}

func (m *Monitor) trim(ctx context.Context) {
	limit := m.cfg.MaxPositions
	if limit <= 0 {
		return
	}
	m.cycleMu.Lock()
	defer m.cycleMu.Unlock()
	if ctx.Err() != nil {
		return
	}
	tooLong := func(_ string, v violation.Violation) bool { return len(v.Positions) > limit }
	m.store.Where(tooLong, func(serial string, v violation.Violation) {
		v.Positions.Trim(limit)
		if err := m.store.SetField(serial, violation.FieldPositions, v.Positions); err != nil {
			m.log.Debug("trim skipped", "serial", serial, "err", err)
		}
	})
}

// enrichPilots starts one lookup per record without a pilot, skipping
// serials whose lookup from an earlier cycle is still in flight. Lookups may
// outlive the cycle.
func (m *Monitor) enrichPilots(ctx context.Context) {
	m.cycleMu.Lock()
	defer m.cycleMu.Unlock()
	if ctx.Err() != nil {
		return
	}
	missing := func(_ string, v violation.Violation) bool { return v.Pilot == nil }
	m.store.Where(missing, func(serial string, _ violation.Violation) {
		if !m.claim(serial) {
			return
		}
		m.enrich.Add(1)
		go func() {
			defer m.enrich.Done()
			defer m.release(serial)
			m.lookupPilot(ctx, serial)
		}()
	})
}

func (m *Monitor) claim(serial string) bool {
	m.lookupMu.Lock()
	defer m.lookupMu.Unlock()
	if _, busy := m.lookups[serial]; busy {
		return false
	}
	m.lookups[serial] = struct{}{}
	return true
}

func (m *Monitor) release(serial string) {
	m.lookupMu.Lock()
	defer m.lookupMu.Unlock()
	delete(m.lookups, serial)
}

func (m *Monitor) lookupPilot(ctx context.Context, serial string) {
	p, err := m.pilots.Pilot(ctx, serial)
	switch {
	case err != nil:
		if ctx.Err() == nil {
			metrics.PilotLookups.WithLabelValues("failed").Inc()
			m.log.Warn("pilot lookup failed", "serial", serial, "err", err)
		}
		return
	case p == nil:
		metrics.PilotLookups.WithLabelValues("not_found").Inc()
		return
	}

	// The record may have expired while the lookup was in flight; Update
	// refuses to recreate it.
	if err := m.store.Update(serial, violation.Patch{Pilot: p}); err != nil {
		metrics.PilotLookups.WithLabelValues("expired").Inc()
		m.log.Debug("violation gone before pilot arrived", "serial", serial)
		return
	}
	metrics.PilotLookups.WithLabelValues("found").Inc()
	v, ok := m.store.Get(serial)
	if !ok {
		return
	}
	v.Positions = nil
	m.log.Info("pilot identified", "serial", serial, "pilot", v.Pilot.Name())
	m.hub.Publish(Update{Serial: serial, Violation: &v})
}

func (m *Monitor) syncGauge() {
	metrics.Violations.Set(float64(m.store.Count()))
}
