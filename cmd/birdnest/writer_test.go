package main

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"birdnest/internal/config"
	"birdnest/internal/monitor"
	"birdnest/internal/sink"
	"birdnest/internal/violation"
)

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestNewWritersNone(t *testing.T) {
	w, tw, cleanup, err := newWriters(config.Default(), writerOptions{}, discard())
	if err != nil {
		t.Fatalf("newWriters returned error: %v", err)
	}
	cleanup()
	if w != nil || tw != nil {
		t.Fatalf("expected no writers, got %T %v", w, tw)
	}
}

func TestNewWritersPrintOnly(t *testing.T) {
	w, _, cleanup, err := newWriters(config.Default(), writerOptions{printEvents: true}, discard())
	if err != nil {
		t.Fatalf("newWriters returned error: %v", err)
	}
	cleanup()
	if _, ok := w.(*sink.JSONStdoutWriter); !ok {
		t.Fatalf("expected *sink.JSONStdoutWriter, got %T", w)
	}
}

func TestNewWritersEventsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")
	w, _, cleanup, err := newWriters(config.Default(), writerOptions{printEvents: true, eventsFile: path}, discard())
	if err != nil {
		t.Fatalf("newWriters returned error: %v", err)
	}
	mw, ok := w.(*sink.MultiWriter)
	if !ok {
		t.Fatalf("expected *sink.MultiWriter, got %T", w)
	}
	if mw.Len() != 2 {
		t.Fatalf("expected 2 writers, got %d", mw.Len())
	}
	v := violation.Violation{SerialNumber: "SN-1", LastSeen: time.Now()}
	if err := w.Write(monitor.Update{Serial: "SN-1", Violation: &v}); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	cleanup()
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat failed: %v", err)
	}
	if info.Size() == 0 {
		t.Fatalf("expected events file to be non-empty")
	}
}

func TestNewWritersBadGreptimeEndpoint(t *testing.T) {
	cfg := config.Default()
	cfg.Greptime.Endpoint = "db:notaport"
	if _, _, _, err := newWriters(cfg, writerOptions{}, discard()); err == nil {
		t.Fatalf("expected error for invalid endpoint")
	}
}

func TestNewWritersBadEventsPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "events.jsonl")
	if _, _, _, err := newWriters(config.Default(), writerOptions{eventsFile: path}, discard()); err == nil {
		t.Fatalf("expected error for unwritable path")
	}
}
