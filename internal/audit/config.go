package audit

import (
	"fmt"
	"time"
)

// Config holds the configuration for the request log recorder.
type Config struct {
	// BufferSize is the number of entries held in memory while writers are
	// busy. Entries recorded while the buffer is full are dropped.
	// Default: 256
	BufferSize int

	// Concurrency is the number of writer goroutines.
	// Default: 2
	Concurrency int

	// WriteTimeout bounds a single insert.
	// Default: 5 seconds
	WriteTimeout time.Duration

	// ShutdownTimeout is how long Stop waits for buffered entries to be written.
	// Default: 10 seconds
	ShutdownTimeout time.Duration
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() Config {
	return Config{
		BufferSize:      256,
		Concurrency:     2,
		WriteTimeout:    5 * time.Second,
		ShutdownTimeout: 10 * time.Second,
	}
}

// Validate checks if the configuration is valid.
func (c Config) Validate() error {
	if c.BufferSize < 1 {
		return fmt.Errorf("buffer size must be at least 1, got %d", c.BufferSize)
	}
	if c.Concurrency < 1 || c.Concurrency > 32 {
		return fmt.Errorf("concurrency must be between 1 and 32, got %d", c.Concurrency)
	}
	if c.WriteTimeout <= 0 {
		return fmt.Errorf("write timeout must be positive, got %v", c.WriteTimeout)
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("shutdown timeout must be positive, got %v", c.ShutdownTimeout)
	}
	return nil
}
