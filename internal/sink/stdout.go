package sink

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"

	"birdnest/internal/monitor"
)

// JSONStdoutWriter prints updates as one JSON object per line.
type JSONStdoutWriter struct {
	mu  sync.Mutex
	out io.Writer
}

// NewJSONStdoutWriter creates a JSONStdoutWriter writing to os.Stdout.
func NewJSONStdoutWriter() *JSONStdoutWriter {
	return &JSONStdoutWriter{out: os.Stdout}
}

// Write outputs an update in JSON format.
func (w *JSONStdoutWriter) Write(u monitor.Update) error {
	data, err := json.Marshal(eventOf(u))
	if err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	_, err = fmt.Fprintln(w.out, string(data))
	return err
}
