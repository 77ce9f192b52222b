package sink

import (
	"bufio"
	"encoding/json"
	"os"
	"sync"

	"birdnest/internal/monitor"
)

// FileWriter appends updates to a JSONL file.
type FileWriter struct {
	mu  sync.Mutex
	f   *os.File
	buf *bufio.Writer
	enc *json.Encoder
}

// NewFileWriter creates or truncates path.
func NewFileWriter(path string) (*FileWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	buf := bufio.NewWriter(f)
	return &FileWriter{f: f, buf: buf, enc: json.NewEncoder(buf)}, nil
}

// Write logs a single update and flushes it.
func (w *FileWriter) Write(u monitor.Update) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.enc.Encode(eventOf(u)); err != nil {
		return err
	}
	return w.buf.Flush()
}

// Close closes the underlying file.
func (w *FileWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.buf.Flush(); err != nil {
		w.f.Close()
		return err
	}
	return w.f.Close()
}
