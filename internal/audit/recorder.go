// Package audit writes the request log off the request path.
//
// Record never blocks and never fails the caller's operation: entries are
// queued on a bounded buffer and written by background goroutines. When the
// buffer is full the entry is dropped and counted.
package audit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/DukeRupert/plantleads/internal/domain"
	"github.com/DukeRupert/plantleads/internal/metrics"
)

var (
	ErrBufferFull = errors.New("audit: buffer full")
	ErrStopped    = errors.New("audit: recorder stopped")
)

// Writer persists one request log entry.
type Writer interface {
	InsertRequestLog(ctx context.Context, entry domain.RequestLog) error
}

// Recorder is an asynchronous request log sink.
type Recorder struct {
	writer Writer
	config Config
	logger *slog.Logger

	entries chan domain.RequestLog

	// mu guards closed against a concurrent Stop closing entries.
	mu     sync.RWMutex
	closed bool

	wg       sync.WaitGroup
	stopOnce sync.Once
}

// New creates a Recorder. It must be started with Start and stopped with Stop.
func New(writer Writer, config Config, logger *slog.Logger) (*Recorder, error) {
	if writer == nil {
		return nil, errors.New("audit: writer is required")
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Recorder{
		writer:  writer,
		config:  config,
		logger:  logger,
		entries: make(chan domain.RequestLog, config.BufferSize),
	}, nil
}

// Start launches the writer goroutines.
func (r *Recorder) Start() {
	for i := 0; i < r.config.Concurrency; i++ {
		r.wg.Add(1)
		go r.run(i + 1)
	}
	r.logger.Info("Audit recorder started",
		"concurrency", r.config.Concurrency,
		"buffer_size", r.config.BufferSize,
	)
}

// Record queues entry for writing. The context is not used for the write.
func (r *Recorder) Record(_ context.Context, entry domain.RequestLog) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		metrics.AuditDroppedTotal.Inc()
		return ErrStopped
	}

	select {
	case r.entries <- entry:
		return nil
	default:
		metrics.AuditDroppedTotal.Inc()
		return ErrBufferFull
	}
}

// Stop stops accepting entries and waits for the buffer to drain, up to
// the configured ShutdownTimeout.
func (r *Recorder) Stop() {
	r.stopOnce.Do(func() {
		r.logger.Info("Stopping audit recorder...", "pending", len(r.entries))

		r.mu.Lock()
		r.closed = true
		close(r.entries)
		r.mu.Unlock()

		done := make(chan struct{})
		go func() {
			r.wg.Wait()
			close(done)
		}()

		select {
		case <-done:
			r.logger.Info("Audit recorder stopped gracefully")
		case <-time.After(r.config.ShutdownTimeout):
			r.logger.Warn("Audit recorder shutdown timeout exceeded, some entries may be lost",
				"pending", len(r.entries),
			)
		}
	})
}

func (r *Recorder) run(writerID int) {
	defer r.wg.Done()

	logger := r.logger.With("writer_id", writerID)
	for entry := range r.entries {
		r.write(logger, entry)
	}
	logger.Debug("Audit writer stopping")
}

func (r *Recorder) write(logger *slog.Logger, entry domain.RequestLog) {
	defer func() {
		if p := recover(); p != nil {
			metrics.AuditWriteErrorsTotal.Inc()
			logger.Error("Audit writer panicked", "user_id", entry.UserID, "panic", p)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), r.config.WriteTimeout)
	defer cancel()

	if err := r.writer.InsertRequestLog(ctx, entry); err != nil {
		metrics.AuditWriteErrorsTotal.Inc()
		logger.Warn("Failed to write request log",
			"user_id", entry.UserID,
			"endpoint", entry.Endpoint,
			"error", err,
		)
	}
}
