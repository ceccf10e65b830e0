package queue

import (
	"fmt"
	"time"
)

// Default queue limits.
const (
	DefaultMaxConcurrent       = 3
	DefaultMaxWorkload   int64 = 20 << 20
	DefaultMaxRetries          = 3
	DefaultRetryDelay          = 2 * time.Second
)

// Config holds the scheduling limits of a Queue.
type Config struct {
	MaxConcurrent int           // Tasks processed at once, at least 1
	MaxWorkload   int64         // Combined SizeHint of processing tasks, at least 1
	MaxRetries    int           // Automatic and manual retries per task
	RetryDelay    time.Duration // Delay before an automatic retry
}

// DefaultConfig returns the default limits.
func DefaultConfig() Config {
	return Config{
		MaxConcurrent: DefaultMaxConcurrent,
		MaxWorkload:   DefaultMaxWorkload,
		MaxRetries:    DefaultMaxRetries,
		RetryDelay:    DefaultRetryDelay,
	}
}

// Validate checks that every limit is in range.
func (c Config) Validate() error {
	if c.MaxConcurrent < 1 {
		return fmt.Errorf("%w: max concurrent must be at least 1, got %d", ErrInvalidConfig, c.MaxConcurrent)
	}
	if c.MaxWorkload < 1 {
		return fmt.Errorf("%w: max workload must be at least 1, got %d", ErrInvalidConfig, c.MaxWorkload)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("%w: max retries cannot be negative, got %d", ErrInvalidConfig, c.MaxRetries)
	}
	if c.RetryDelay < 0 {
		return fmt.Errorf("%w: retry delay cannot be negative, got %s", ErrInvalidConfig, c.RetryDelay)
	}
	return nil
}

// ConfigUpdate is a partial Config. Nil fields are left unchanged.
type ConfigUpdate struct {
	MaxConcurrent *int
	MaxWorkload   *int64
	MaxRetries    *int
	RetryDelay    *time.Duration
}

// apply returns c with the non-nil fields of u merged in.
func (u ConfigUpdate) apply(c Config) Config {
	if u.MaxConcurrent != nil {
		c.MaxConcurrent = *u.MaxConcurrent
	}
	if u.MaxWorkload != nil {
		c.MaxWorkload = *u.MaxWorkload
	}
	if u.MaxRetries != nil {
		c.MaxRetries = *u.MaxRetries
	}
	if u.RetryDelay != nil {
		c.RetryDelay = *u.RetryDelay
	}
	return c
}
