package ai

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrUnavailable marks every provider failure the classifier may recover from
// locally: timeouts, transport errors, bad responses and rate limits.
var ErrUnavailable = errors.New("inference provider unavailable")

type Prediction struct {
	Category     string  `json:"category"`
	Confidence   float64 `json:"confidence"`
	Reasoning    string  `json:"reasoning"`
	ModelVersion string  `json:"model_version"`
	LatencyMs    int64   `json:"latency_ms"`
}

type Provider interface {
	ClassifyText(ctx context.Context, text string) (Prediction, error)
	ClassifyImage(ctx context.Context, ref string) (Prediction, error)
}

type UnavailableError struct {
	Reason string
	Err    error
}

func (e *UnavailableError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("inference provider unavailable: %s: %v", e.Reason, e.Err)
	}
	return "inference provider unavailable: " + e.Reason
}

func (e *UnavailableError) Unwrap() error { return e.Err }

func (e *UnavailableError) Is(target error) bool { return target == ErrUnavailable }

func unavailable(reason string, err error) error {
	return &UnavailableError{Reason: reason, Err: err}
}

type RateLimitError struct {
	RetryAfter time.Duration
}

func (r RateLimitError) Error() string {
	if r.RetryAfter > 0 {
		return fmt.Sprintf("rate limited, retry after %s", r.RetryAfter)
	}
	return "rate limited"
}

func (r RateLimitError) Is(target error) bool { return target == ErrUnavailable }
