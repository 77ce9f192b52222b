package main

import (
	"log/slog"

	"birdnest/internal/config"
	"birdnest/internal/geometry"
	"birdnest/internal/sink"
	"birdnest/internal/tui"
)

type writerOptions struct {
	printEvents bool
	eventsFile  string
	tui         bool
}

// newWriters sets up event writers based on flags and config. It returns nil
// when no export is enabled, plus the TUI writer if one was started and a
// cleanup function closing every resource.
func newWriters(cfg *config.Config, opts writerOptions, log *slog.Logger) (sink.Writer, *tui.Writer, func(), error) {
	var ws []sink.Writer
	var closers []func() error
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			_ = closers[i]()
		}
	}

	if opts.printEvents {
		ws = append(ws, sink.NewJSONStdoutWriter())
	}
	if opts.eventsFile != "" {
		fw, err := sink.NewFileWriter(opts.eventsFile)
		if err != nil {
			return nil, nil, nil, err
		}
		ws = append(ws, fw)
		closers = append(closers, fw.Close)
	}
	if cfg.Greptime.Endpoint != "" {
		gw, err := sink.NewGreptimeDBWriter(cfg.Greptime.Endpoint, cfg.Greptime.Database, cfg.Greptime.Table, log)
		if err != nil {
			cleanup()
			return nil, nil, nil, err
		}
		ws = append(ws, gw)
	}
	var tw *tui.Writer
	if opts.tui {
		z := cfg.Zone
		tw = tui.NewWriter(geometry.Zone{NestX: z.NestX, NestY: z.NestY, Radius: z.Radius})
		ws = append(ws, tw)
		closers = append(closers, tw.Close)
	}

	switch len(ws) {
	case 0:
		return nil, nil, cleanup, nil
	case 1:
		return ws[0], tw, cleanup, nil
	default:
		return sink.NewMultiWriter(ws...), tw, cleanup, nil
	}
}
