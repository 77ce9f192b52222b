package feed

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/url"
	"strings"

	"birdnest/internal/backoff"
	"birdnest/internal/telemetry"
)

// PilotClient looks up pilots in the registry through its own retry executor.
type PilotClient struct {
	base string
	get  getter
	exec *backoff.Executor
	log  *slog.Logger
}

// NewPilotClient creates a client for the registry at cfg.URL.
func NewPilotClient(cfg ClientConfig, exec *backoff.Executor, log *slog.Logger) *PilotClient {
	g := newGetter("pilots", cfg, log)
	return &PilotClient{base: strings.TrimRight(cfg.URL, "/"), get: g, exec: exec, log: g.log}
}

// Pilot returns the pilot registered for serial. Unknown serials and soft
// failures return nil without an error.
func (c *PilotClient) Pilot(ctx context.Context, serial string) (*telemetry.Pilot, error) {
	p, err := backoff.Call(ctx, c.exec, func(ctx context.Context) (*telemetry.Pilot, error) {
		return c.fetch(ctx, serial)
	})
	if err != nil {
		return nil, absorb(ctx, c.log.With("serial", serial), "pilots", err)
	}
	return p, nil
}

func (c *PilotClient) fetch(ctx context.Context, serial string) (*telemetry.Pilot, error) {
	u := c.base + "/" + url.PathEscape(serial)
	body, err := c.get.get(ctx, u, "application/json")
	if err != nil {
		return nil, err
	}
	var p telemetry.Pilot
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, &DecodeError{URL: u, Err: err}
	}
	return &p, nil
}
