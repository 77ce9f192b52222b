package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"golang.org/x/term"

	"birdnest/internal/admin"
	"birdnest/internal/backoff"
	"birdnest/internal/config"
	"birdnest/internal/feed"
	"birdnest/internal/logging"
	"birdnest/internal/monitor"
	"birdnest/internal/sink"
)

const shutdownTimeout = 10 * time.Second

var runFlags struct {
	configPath  string
	schemaPath  string
	replay      string
	record      string
	simulate    int
	seed        int64
	eventsFile  string
	printEvents bool
	tui         bool
	noAdmin     bool
	logFile     string
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Monitor the drone feed and serve violations",
	Long:  "run polls the drone feed, tracks no-fly zone violations with their pilots and serves them over HTTP until interrupted.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(runFlags.configPath, runFlags.schemaPath)
		if err != nil {
			return err
		}
		if runFlags.tui && !term.IsTerminal(int(os.Stdout.Fd())) {
			return errors.New("--tui requires a terminal on stdout")
		}
		log, closeLog, err := newLogger(cfg)
		if err != nil {
			return err
		}
		defer closeLog()
		slog.SetDefault(log)

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return run(ctx, cfg, log)
	},
}

func init() {
	f := runCmd.Flags()
	f.StringVar(&runFlags.configPath, "config", "", "Path to configuration YAML (optional)")
	f.StringVar(&runFlags.schemaPath, "schema", "", "Path to CUE schema (default: built-in)")
	f.StringVar(&runFlags.replay, "replay", "", "Replay drone frames from a JSONL recording instead of polling the feed")
	f.StringVar(&runFlags.record, "record", "", "Record every non-empty drone frame to a JSONL file")
	f.IntVar(&runFlags.simulate, "simulate", 0, "Generate frames for N simulated drones instead of polling the feed")
	f.Int64Var(&runFlags.seed, "seed", 1, "Random seed for --simulate")
	f.StringVar(&runFlags.eventsFile, "events-file", "", "Append violation updates to a JSONL file")
	f.BoolVar(&runFlags.printEvents, "print-events", false, "Print violation updates to STDOUT as JSON")
	f.BoolVar(&runFlags.tui, "tui", false, "Show a terminal dashboard")
	f.BoolVar(&runFlags.noAdmin, "no-admin", false, "Do not start the HTTP server")
	f.StringVar(&runFlags.logFile, "log-file", "", "Write logs to a file instead of STDERR")
	runCmd.MarkFlagsMutuallyExclusive("replay", "simulate")
	runCmd.MarkFlagsMutuallyExclusive("tui", "print-events")
}

// newLogger builds the process logger. With the TUI on and no log file, logs
// are discarded so they do not corrupt the screen.
func newLogger(cfg *config.Config) (*slog.Logger, func(), error) {
	opts := logging.Options{Level: cfg.Logging.Level, Format: cfg.Logging.Format}
	closeFn := func() {}
	switch {
	case runFlags.logFile != "":
		f, err := os.OpenFile(runFlags.logFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return nil, nil, err
		}
		opts.Writer = f
		opts.NoColor = true
		closeFn = func() { f.Close() }
	case runFlags.tui:
		opts.Writer = io.Discard
	}
	log, err := logging.New(opts)
	if err != nil {
		return nil, nil, err
	}
	return log, closeFn, nil
}

// sources picks the drone and pilot sources selected by flags.
func sources(cfg *config.Config, log *slog.Logger) (monitor.ReportSource, monitor.PilotSource, func(), error) {
	cleanup := func() {}
	var drones feed.Source
	var pilots monitor.PilotSource
	switch {
	case runFlags.simulate > 0:
		log.Info("simulating drone feed", "drones", runFlags.simulate, "seed", runFlags.seed)
		drones = feed.NewSimulatedSource(runFlags.simulate, runFlags.seed)
		pilots = feed.SimulatedPilots{}
	case runFlags.replay != "":
		rs, err := feed.OpenReplay(runFlags.replay)
		if err != nil {
			return nil, nil, nil, err
		}
		log.Info("replaying drone feed", "file", runFlags.replay)
		drones = rs
		pilots = feed.SimulatedPilots{}
		cleanup = func() { rs.Close() }
	default:
		dexec := backoff.New("drones", backoffOptions(cfg.Feed.Backoff), backoff.WithLogger(log))
		pexec := backoff.New("pilots", backoffOptions(cfg.Pilots.Backoff), backoff.WithLogger(log))
		drones = feed.NewDroneClient(clientConfig(cfg.Feed), dexec, log)
		pilots = feed.NewPilotClient(clientConfig(cfg.Pilots), pexec, log)
	}
	if runFlags.record != "" {
		rec, err := feed.CreateRecorder(drones, runFlags.record)
		if err != nil {
			cleanup()
			return nil, nil, nil, err
		}
		prev := cleanup
		cleanup = func() { rec.Close(); prev() }
		drones = rec
	}
	return drones, pilots, cleanup, nil
}

func run(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	drones, pilots, closeSources, err := sources(cfg, log)
	if err != nil {
		return err
	}
	defer closeSources()

	m := monitor.New(monitorConfig(cfg), drones, pilots, monitor.WithLogger(log))

	w, tw, closeWriters, err := newWriters(cfg, writerOptions{
		printEvents: runFlags.printEvents,
		eventsFile:  runFlags.eventsFile,
		tui:         runFlags.tui,
	}, log)
	if err != nil {
		return err
	}
	defer closeWriters()

	g, gctx := errgroup.WithContext(ctx)

	if w != nil {
		id, updates := m.Subscribe(0)
		defer m.Unsubscribe(id)
		g.Go(func() error {
			sink.Pump(gctx, updates, w, "events", log)
			return nil
		})
	}

	if err := m.Start(gctx); err != nil {
		return err
	}
	defer m.Stop()

	var wd *monitor.Watchdog
	if !cfg.Watchdog.Disabled {
		wd = monitor.NewWatchdog(m, watchdogConfig(cfg), log)
		g.Go(func() error { return wd.Run(gctx) })
	}

	g.Go(func() error {
		select {
		case <-gctx.Done():
			return nil
		case err := <-m.Fatal():
			return fmt.Errorf("monitor stopped: %w", err)
		}
	})

	if !runFlags.noAdmin {
		opts := []admin.Option{admin.WithLogger(log), admin.WithDegradedThreshold(cfg.Monitor.DegradedThreshold)}
		if wd != nil {
			opts = append(opts, admin.WithWatchdog(wd))
		}
		srv := admin.NewServer(cfg.Admin.Addr, m, opts...)
		g.Go(srv.Start)
		g.Go(func() error {
			<-gctx.Done()
			sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(sctx)
		})
	}

	if tw != nil {
		g.Go(func() error {
			t := time.NewTicker(time.Second)
			defer t.Stop()
			for {
				tw.SetStatus(m.Status())
				select {
				case <-gctx.Done():
					return nil
				case <-t.C:
				}
			}
		})
	}

	log.Info("birdnest started",
		"feed", cfg.Feed.URL,
		"admin", adminAddr(cfg),
		"radius_mm", cfg.Zone.Radius,
	)
	err = g.Wait()
	log.Info("birdnest shutting down")
	return err
}

func adminAddr(cfg *config.Config) string {
	if runFlags.noAdmin {
		return "disabled"
	}
	return cfg.Admin.Addr
}
