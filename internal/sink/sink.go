// Package sink exports violation updates to stdout, files and GreptimeDB.
package sink

import (
	"context"
	"errors"
	"log/slog"

	"birdnest/internal/metrics"
	"birdnest/internal/monitor"
)

// Writer consumes violation updates.
type Writer interface {
	Write(u monitor.Update) error
}

// Event is the exported form of an update. Expired is set when the record
// was removed.
type Event struct {
	monitor.Update
	Expired bool `json:"expired"`
}

func eventOf(u monitor.Update) Event {
	return Event{Update: u, Expired: u.Violation == nil}
}

// MultiWriter fans updates out to several writers. Every writer sees every
// update; errors are joined.
type MultiWriter struct {
	writers []Writer
}

// NewMultiWriter creates a new MultiWriter.
func NewMultiWriter(ws ...Writer) *MultiWriter {
	return &MultiWriter{writers: ws}
}

// Len reports the number of writers.
func (mw *MultiWriter) Len() int { return len(mw.writers) }

// Write sends an update to all writers.
func (mw *MultiWriter) Write(u monitor.Update) error {
	var errs []error
	for _, w := range mw.writers {
		if err := w.Write(u); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes every writer that has a Close method.
func (mw *MultiWriter) Close() error {
	var errs []error
	for _, w := range mw.writers {
		if c, ok := w.(interface{ Close() error }); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// Pump copies updates from ch to w until ch closes or ctx ends. Write errors
// are logged and do not stop the pump.
func Pump(ctx context.Context, ch <-chan monitor.Update, w Writer, name string, log *slog.Logger) {
	if log == nil {
		log = slog.Default()
	}
	for {
		select {
		case <-ctx.Done():
			return
		case u, ok := <-ch:
			if !ok {
				return
			}
			if err := w.Write(u); err != nil {
				metrics.SinkWrites.WithLabelValues(name, "error").Inc()
				log.Warn("sink write failed", "sink", name, "serial", u.Serial, "err", err)
				continue
			}
			metrics.SinkWrites.WithLabelValues(name, "ok").Inc()
		}
	}
}
