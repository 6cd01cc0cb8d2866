package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/fieldops/backend/domain"
	"github.com/fieldops/backend/internal/infrastructure/buffer"
)

// ConnectionHealth abstracts the connection monitor functionality.
type ConnectionHealth interface {
	IsOnline() bool
}

// CommandExecutor is the slice of the dispatcher the replayer needs.
type CommandExecutor interface {
	Execute(ctx context.Context, jobID, name string, args json.RawMessage) (*domain.JobAggregate, bool, error)
}

// ReplayerConfig controls how frequently the buffer is drained.
type ReplayerConfig struct {
	Interval   time.Duration
	BatchSize  int
	MaxRetries int
	Retention  time.Duration
}

// CommandReplayer drains buffered field commands back through the dispatcher
// once storage is reachable again. Commands are idempotent, so replaying one
// that already landed is harmless.
type CommandReplayer struct {
	store    *buffer.Store
	monitor  ConnectionHealth
	executor CommandExecutor
	logger   *zap.Logger
	cron     *cron.Cron
	cfg      ReplayerConfig
}

func NewCommandReplayer(
	store *buffer.Store,
	monitor ConnectionHealth,
	executor CommandExecutor,
	logger *zap.Logger,
	cfg ReplayerConfig,
) *CommandReplayer {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.Retention <= 0 {
		cfg.Retention = 24 * time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	r := &CommandReplayer{
		store:    store,
		monitor:  monitor,
		executor: executor,
		logger:   logger,
		cfg:      cfg,
		cron:     cron.New(cron.WithSeconds()),
	}

	schedule := fmt.Sprintf("@every %ds", int(cfg.Interval.Seconds()))
	_, _ = r.cron.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Interval)
		defer cancel()
		if err := r.Drain(ctx); err != nil {
			r.logger.Error("command replay failed", zap.Error(err))
		}
	})

	return r
}

// Start launches the cron scheduler.
func (r *CommandReplayer) Start() {
	if r == nil || r.cron == nil {
		return
	}
	r.cron.Start()
	r.logger.Info("command replayer started")
}

// Stop gracefully stops the scheduler.
func (r *CommandReplayer) Stop(ctx context.Context) {
	if r == nil || r.cron == nil {
		return
	}
	stopCtx := r.cron.Stop()
	select {
	case <-stopCtx.Done():
	case <-ctx.Done():
	}
	r.logger.Info("command replayer stopped")
}

// Drain replays buffered commands synchronously.
func (r *CommandReplayer) Drain(ctx context.Context) error {
	if r == nil || r.store == nil {
		return nil
	}
	if r.monitor != nil && !r.monitor.IsOnline() {
		r.logger.Debug("skipping command replay (offline)")
		return nil
	}

	_ = r.store.Cleanup(time.Now().Add(-r.cfg.Retention))

	commands, err := r.store.GetBatch(r.cfg.BatchSize)
	if err != nil {
		return err
	}

	for _, cmd := range commands {
		if err := r.replay(ctx, cmd); err != nil {
			r.logger.Error("failed to replay command",
				zap.String("command_id", cmd.ID),
				zap.String("job_id", cmd.JobID),
				zap.String("command", cmd.Name),
				zap.Error(err))

			if cmd.Retries+1 >= r.cfg.MaxRetries {
				r.logger.Warn("dropping buffered command (max retries reached)",
					zap.String("command_id", cmd.ID))
				_ = r.store.Remove(cmd)
				continue
			}
			if err := r.store.Requeue(cmd); err != nil {
				r.logger.Error("failed to requeue command", zap.Error(err))
			}
			continue
		}

		if err := r.store.Remove(cmd); err != nil {
			r.logger.Warn("failed to purge replayed command", zap.Error(err))
		}
	}
	return nil
}

func (r *CommandReplayer) replay(ctx context.Context, cmd buffer.Command) error {
	_, _, err := r.executor.Execute(ctx, cmd.JobID, cmd.Name, cmd.Args)
	if err == nil {
		return nil
	}
	var dErr *domain.Error
	if errors.As(err, &dErr) && !dErr.Retryable() {
		// Validation and precondition rejections are final: the buffered
		// command can never succeed, so drop it rather than retry. Version
		// conflicts and outages can clear and stay queued.
		r.logger.Warn("buffered command rejected on replay",
			zap.String("command_id", cmd.ID),
			zap.String("job_id", cmd.JobID),
			zap.Error(err))
		return nil
	}
	return err
}
