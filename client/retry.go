package client

import (
	"context"
	"errors"
	"time"
)

// RetryPolicy bounds reconnect attempts during one recovery.
type RetryPolicy struct {
	// MaxAttempts is the number of reconnects allowed per recovery.
	MaxAttempts int `json:"max_attempts" yaml:"max_attempts"`

	InitialBackoff time.Duration `json:"initial_backoff" yaml:"initial_backoff"`
	MaxBackoff     time.Duration `json:"max_backoff" yaml:"max_backoff"`
	Multiplier     float64       `json:"multiplier" yaml:"multiplier"`
}

// DefaultRetryPolicy allows five reconnects, backing off from 250ms to 4s.
func DefaultRetryPolicy() *RetryPolicy {
	return &RetryPolicy{
		MaxAttempts:    5,
		InitialBackoff: 250 * time.Millisecond,
		MaxBackoff:     4 * time.Second,
		Multiplier:     2,
	}
}

// Validate checks the policy.
func (p *RetryPolicy) Validate() error {
	if p.MaxAttempts < 0 {
		return errors.New("max_attempts must not be negative")
	}
	if p.InitialBackoff < 0 || p.MaxBackoff < p.InitialBackoff {
		return errors.New("backoff bounds are inconsistent")
	}
	if p.Multiplier < 1 {
		return errors.New("multiplier must be at least 1")
	}
	return nil
}

// Backoff returns the delay before reconnect number attempt, counted from 0.
func (p *RetryPolicy) Backoff(attempt int) time.Duration {
	d := float64(p.InitialBackoff)
	for i := 0; i < attempt; i++ {
		d *= p.Multiplier
		if d >= float64(p.MaxBackoff) {
			return p.MaxBackoff
		}
	}
	return time.Duration(d)
}

// RetryableError marks a transport failure that a fresh connection may
// overcome.
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string {
	return "retryable: " + e.Err.Error()
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// Retryable wraps err as a RetryableError. It returns nil for nil.
func Retryable(err error) error {
	if err == nil {
		return nil
	}
	var re *RetryableError
	if errors.As(err, &re) {
		return err
	}
	return &RetryableError{Err: err}
}

// IsRetryable reports whether err, or any error it wraps, is retryable.
func IsRetryable(err error) bool {
	var re *RetryableError
	return errors.As(err, &re)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
