// Package feed talks to the upstream drone feed and pilot registry.
package feed

import (
	"context"
	"encoding/xml"
	"log/slog"
	"sync"

	"birdnest/internal/backoff"
	"birdnest/internal/telemetry"
)

// xmlReport mirrors the guard device's XML document.
type xmlReport struct {
	XMLName xml.Name         `xml:"report"`
	Device  telemetry.Device `xml:"deviceInformation"`
	Capture struct {
		Timestamp string            `xml:"snapshotTimestamp,attr"`
		Drones    []telemetry.Drone `xml:"drone"`
	} `xml:"capture"`
}

// DecodeReport parses one XML frame of the drone feed.
func DecodeReport(data []byte) (*telemetry.Report, error) {
	var doc xmlReport
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	r := &telemetry.Report{Device: doc.Device, Drones: doc.Capture.Drones}
	if doc.Capture.Timestamp != "" {
		if err := r.Timestamp.UnmarshalText([]byte(doc.Capture.Timestamp)); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// DroneClient fetches frames from the drone feed through its own retry
// executor.
type DroneClient struct {
	url  string
	get  getter
	exec *backoff.Executor
	log  *slog.Logger

	mu     sync.Mutex
	device string
}

// NewDroneClient creates a client for the feed at cfg.URL.
func NewDroneClient(cfg ClientConfig, exec *backoff.Executor, log *slog.Logger) *DroneClient {
	g := newGetter("drones", cfg, log)
	return &DroneClient{url: cfg.URL, get: g, exec: exec, log: g.log}
}

// Report returns the current frame. Soft upstream failures are logged and
// reported as a nil frame.
func (c *DroneClient) Report(ctx context.Context) (*telemetry.Report, error) {
	r, err := backoff.Call(ctx, c.exec, c.fetch)
	if err != nil {
		return nil, absorb(ctx, c.log, "drones", err)
	}
	c.noteDevice(r.Device)
	return r, nil
}

func (c *DroneClient) fetch(ctx context.Context) (*telemetry.Report, error) {
	body, err := c.get.get(ctx, c.url, "application/xml")
	if err != nil {
		return nil, err
	}
	r, err := DecodeReport(body)
	if err != nil {
		return nil, &DecodeError{URL: c.url, Err: err}
	}
	return r, nil
}

// noteDevice logs the guard device the first time it is seen and whenever
// it changes.
func (c *DroneClient) noteDevice(d telemetry.Device) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if d.ID == "" || d.ID == c.device {
		return
	}
	c.device = d.ID
	c.log.Info("drone feed device", "device_id", d.ID, "list_range", d.ListRange,
		"update_interval_ms", d.UpdateIntervalMs, "uptime_s", d.UptimeSeconds)
}
