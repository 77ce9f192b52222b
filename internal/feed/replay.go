package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"birdnest/internal/telemetry"
)

// Source yields drone feed frames.
type Source interface {
	Report(ctx context.Context) (*telemetry.Report, error)
}

// ReplaySource serves frames recorded as JSON lines, one per call. Once the
// recording is exhausted every call returns a nil frame. Timestamps are
// shifted so the first frame appears to be captured now, keeping the
// original spacing between frames.
type ReplaySource struct {
	mu     sync.Mutex
	dec    *json.Decoder
	closer io.Closer
	now    func() time.Time
	offset time.Duration
	frames int
	done   bool
}

// NewReplaySource replays frames read from r.
func NewReplaySource(r io.Reader) *ReplaySource {
	return &ReplaySource{dec: json.NewDecoder(r), now: time.Now}
}

// OpenReplay opens a recording file.
func OpenReplay(path string) (*ReplaySource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	s := NewReplaySource(f)
	s.closer = f
	return s, nil
}

// Report returns the next recorded frame.
func (s *ReplaySource) Report(ctx context.Context) (*telemetry.Report, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return nil, nil
	}
	var r telemetry.Report
	if err := s.dec.Decode(&r); err != nil {
		s.done = true
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("replay frame %d: %w", s.frames+1, err)
	}
	if s.frames == 0 {
		s.offset = s.now().Sub(r.Timestamp)
	}
	s.frames++
	r.Timestamp = r.Timestamp.Add(s.offset)
	return &r, nil
}

// Frames returns the number of frames served so far.
func (s *ReplaySource) Frames() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frames
}

// Close closes the underlying file when the source was opened from one.
func (s *ReplaySource) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}

// Recorder passes frames through from a Source and appends every non-empty
// frame to w as a JSON line.
type Recorder struct {
	src    Source
	mu     sync.Mutex
	enc    *json.Encoder
	closer io.Closer
}

// NewRecorder wraps src.
func NewRecorder(src Source, w io.Writer) *Recorder {
	return &Recorder{src: src, enc: json.NewEncoder(w)}
}

// CreateRecorder records into a new file at path.
func CreateRecorder(src Source, path string) (*Recorder, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	r := NewRecorder(src, f)
	r.closer = f
	return r, nil
}

// Report fetches from the wrapped source and records the result.
func (r *Recorder) Report(ctx context.Context) (*telemetry.Report, error) {
	rep, err := r.src.Report(ctx)
	if err != nil || rep.Empty() {
		return rep, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.enc.Encode(rep); err != nil {
		return nil, fmt.Errorf("record frame: %w", err)
	}
	return rep, nil
}

// Close closes the recording file.
func (r *Recorder) Close() error {
	if r.closer == nil {
		return nil
	}
	return r.closer.Close()
}
