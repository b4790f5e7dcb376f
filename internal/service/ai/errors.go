package ai

import (
	"context"

	"github.com/pkg/errors"
)

// ErrUpstreamUnavailable matches every failure of the text-generation
// service: unreachable endpoint, stream error, timeout or empty output.
var ErrUpstreamUnavailable = errors.New("upstream unavailable")

var errEmptyResponse = errors.New("model returned no content")

// UpstreamError records which step of a model call failed.
type UpstreamError struct {
	Op  string
	Err error
}

func (e *UpstreamError) Error() string {
	return "upstream " + e.Op + ": " + e.Err.Error()
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrUpstreamUnavailable) match any UpstreamError.
func (e *UpstreamError) Is(target error) bool {
	return target == ErrUpstreamUnavailable
}

// classify maps a model error to an UpstreamError. Cancellation by the
// caller is returned as-is since the upstream did nothing wrong.
func classify(ctx context.Context, parent context.Context, op string, err error) error {
	if parent.Err() != nil && errors.Is(parent.Err(), context.Canceled) {
		return errors.Wrap(parent.Err(), "conversation canceled")
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &UpstreamError{Op: "timeout", Err: context.DeadlineExceeded}
	}
	return &UpstreamError{Op: op, Err: err}
}
