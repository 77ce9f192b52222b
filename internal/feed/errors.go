package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"birdnest/internal/backoff"
)

// StatusError is a response with a non-2xx status code.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: unexpected status %d", e.URL, e.StatusCode)
}

// TransportError means the request was sent but no usable response arrived.
type TransportError struct {
	URL string
	Err error
}

func (e *TransportError) Error() string { return fmt.Sprintf("GET %s: no response: %v", e.URL, e.Err) }

func (e *TransportError) Unwrap() error { return e.Err }

// DecodeError means the response body could not be parsed.
type DecodeError struct {
	URL string
	Err error
}

func (e *DecodeError) Error() string { return fmt.Sprintf("GET %s: decode: %v", e.URL, e.Err) }

func (e *DecodeError) Unwrap() error { return e.Err }

// RequestError means the request could not be built. It is never retried
// into "no data".
type RequestError struct {
	URL string
	Err error
}

func (e *RequestError) Error() string { return fmt.Sprintf("build request for %q: %v", e.URL, e.Err) }

func (e *RequestError) Unwrap() error { return e.Err }

// IsSoft reports whether err is an upstream failure that should be treated
// as "no data" for this cycle.
func IsSoft(err error) bool {
	var (
		se *StatusError
		te *TransportError
		de *DecodeError
	)
	return errors.As(err, &se) || errors.As(err, &te) || errors.As(err, &de)
}

// IsNotFound reports whether err is a 404 response.
func IsNotFound(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == 404
}

// outcome labels err for the upstream request counter.
func outcome(err error) string {
	var (
		se *StatusError
		te *TransportError
		de *DecodeError
	)
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &se):
		return "status"
	case errors.As(err, &te):
		return "transport"
	case errors.As(err, &de):
		return "decode"
	}
	return "fatal"
}

// absorb turns soft failures into "no data". Cancellation, request errors and
// MaxFailsReached are returned to the caller.
func absorb(ctx context.Context, log *slog.Logger, operation string, err error) error {
	switch {
	case backoff.IsMaxFailsReached(err):
		return err
	case ctx.Err() != nil:
		return ctx.Err()
	case IsNotFound(err):
		log.Debug("upstream returned not found", "operation", operation, "err", err)
		return nil
	case IsSoft(err):
		log.Warn("upstream request failed", "operation", operation, "err", err)
		return nil
	}
	log.Error("upstream request could not be made", "operation", operation, "err", err)
	return err
}
