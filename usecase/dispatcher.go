package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/fieldops/backend/domain"
)

// JobCommandHandler executes one named command against a job aggregate.
type JobCommandHandler func(ctx context.Context, jobID string, args json.RawMessage) (*domain.JobAggregate, error)

// ConnectionHealth abstracts the connection monitor.
type ConnectionHealth interface {
	IsOnline() bool
}

// CommandBuffer persists idempotent field commands while storage is down so
// technicians on flaky connections do not lose work.
type CommandBuffer interface {
	BufferCommand(ctx context.Context, jobID, name string, args []byte) error
}

// Dispatcher routes named commands to their handlers. Idempotent field
// commands fall back to the offline buffer when storage is unreachable;
// lifecycle transitions never do.
type Dispatcher struct {
	mu         sync.RWMutex
	handlers   map[string]JobCommandHandler
	bufferable map[string]bool

	buffer CommandBuffer
	health ConnectionHealth
	logger *zap.Logger
}

// NewDispatcher builds a dispatcher. buffer and health may be nil, which
// disables offline buffering.
func NewDispatcher(buffer CommandBuffer, health ConnectionHealth, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		handlers:   make(map[string]JobCommandHandler),
		bufferable: make(map[string]bool),
		buffer:     buffer,
		health:     health,
		logger:     logger,
	}
}

// Register binds a command name. bufferable must only be set for commands
// that are safe to replay.
func (d *Dispatcher) Register(name string, handler JobCommandHandler, bufferable bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[name] = handler
	d.bufferable[name] = bufferable
}

// Names lists the registered command names.
func (d *Dispatcher) Names() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	names := make([]string, 0, len(d.handlers))
	for name := range d.handlers {
		names = append(names, name)
	}
	return names
}

// Execute runs a command. The second return value reports that the command
// was accepted into the offline buffer instead of being applied.
func (d *Dispatcher) Execute(ctx context.Context, jobID, name string, args json.RawMessage) (*domain.JobAggregate, bool, error) {
	d.mu.RLock()
	handler, ok := d.handlers[name]
	bufferable := d.bufferable[name]
	d.mu.RUnlock()
	if !ok {
		return nil, false, domain.NewError(domain.ErrCodeInvalid, "",
			fmt.Sprintf("unknown command %q", name))
	}

	job, err := handler(ctx, jobID, args)
	if err == nil {
		return job, false, nil
	}

	if bufferable && d.shouldBuffer(err) {
		if bufErr := d.buffer.BufferCommand(ctx, jobID, name, args); bufErr != nil {
			d.logger.Error("failed to buffer command",
				zap.String("job_id", jobID),
				zap.String("command", name),
				zap.Error(bufErr))
			return nil, false, err
		}
		d.logger.Warn("command buffered for replay",
			zap.String("job_id", jobID),
			zap.String("command", name))
		return nil, true, nil
	}

	return nil, false, err
}

// shouldBuffer accepts storage/collaborator outages, not caller mistakes.
func (d *Dispatcher) shouldBuffer(err error) bool {
	if d.buffer == nil {
		return false
	}
	if d.health != nil && d.health.IsOnline() {
		// Storage is reachable, so the failure is the command's own.
		return false
	}
	var dErr *domain.Error
	if errors.As(err, &dErr) {
		return dErr.Code == domain.ErrCodeUnavailable
	}
	// Raw infrastructure errors (driver-level) mean storage is down.
	return true
}
