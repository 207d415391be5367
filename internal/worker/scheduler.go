package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	applog "qacc/internal/log"
)

// Scheduler runs the pending-upload sweep on a cron schedule.
type Scheduler struct {
	Cron    *cron.Cron
	worker  *PinWorker
	ctx     context.Context
	timeout time.Duration
	logger  *slog.Logger
}

func NewScheduler(ctx context.Context, w *PinWorker) *Scheduler {
	return &Scheduler{
		Cron:    cron.New(),
		worker:  w,
		ctx:     ctx,
		timeout: 5 * time.Minute,
		logger:  slog.Default().With(applog.FieldComponent, applog.ComponentWorker),
	}
}

// Register adds the sweep under spec, e.g. "@every 1m" or "*/5 * * * *".
func (s *Scheduler) Register(spec string) error {
	if _, err := s.Cron.AddFunc(spec, s.sweep); err != nil {
		return fmt.Errorf("register pin sweep: %w", err)
	}
	return nil
}

func (s *Scheduler) Start() {
	s.Cron.Start()
	s.logger.Info("Scheduler started")
}

// Stop waits for a running sweep to finish.
func (s *Scheduler) Stop() {
	<-s.Cron.Stop().Done()
	s.logger.Info("Scheduler stopped")
}

func (s *Scheduler) sweep() {
	ctx, cancel := context.WithTimeout(s.ctx, s.timeout)
	defer cancel()

	pinned, failed, err := s.worker.ProcessPending(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "Pin sweep failed", "error", err)
		return
	}
	if pinned+failed > 0 {
		s.logger.InfoContext(ctx, "Pin sweep completed", "pinned", pinned, "errors", failed)
	}
}
