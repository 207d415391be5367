package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"qacc/internal/amqp"
	applog "qacc/internal/log"
	"qacc/internal/storage"
)

// PendingLister lists uploads that still need pinning.
type PendingLister interface {
	PendingUploads(ctx context.Context, before time.Time, maxAttempts, limit int) ([]storage.Upload, error)
}

// Pinner pins one stored upload.
type Pinner interface {
	Pin(ctx context.Context, id string) error
}

// PinWorker pins uploads whose first attempt failed, either on request from
// AMQP or from the periodic sweep.
type PinWorker struct {
	pending     PendingLister
	pinner      Pinner
	batchSize   int
	maxAttempts int
	// grace keeps the sweep away from uploads an API request is still pinning
	grace  time.Duration
	now    func() time.Time
	logger *slog.Logger
}

func NewPinWorker(pending PendingLister, pinner Pinner, batchSize, maxAttempts int) *PinWorker {
	return &PinWorker{
		pending:     pending,
		pinner:      pinner,
		batchSize:   batchSize,
		maxAttempts: maxAttempts,
		grace:       time.Minute,
		now:         time.Now,
		logger:      slog.Default().With(applog.FieldComponent, applog.ComponentWorker),
	}
}

// HandlePinMessage processes a single pin request from AMQP. Uploads that
// are gone are acknowledged without error.
func (w *PinWorker) HandlePinMessage(ctx context.Context, msg *amqp.PinRequestMessage) error {
	w.logger.InfoContext(ctx, "Processing pin request",
		applog.FieldUploadID, msg.UploadID,
		"queued_at", msg.Timestamp)

	if err := w.pinner.Pin(ctx, msg.UploadID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			w.logger.WarnContext(ctx, "Upload no longer exists, dropping request", applog.FieldUploadID, msg.UploadID)
			return nil
		}
		return fmt.Errorf("pin upload %s: %w", msg.UploadID, err)
	}
	return nil
}

// ProcessPending retries uploads that have not been pinned yet.
// This is a backup mechanism in case AMQP messages are lost.
func (w *PinWorker) ProcessPending(ctx context.Context) (pinned, failed int, err error) {
	return w.process(ctx, w.batchSize)
}

// StartupCheck runs a larger sweep when the worker starts, to recover from
// downtime.
func (w *PinWorker) StartupCheck(ctx context.Context) error {
	pinned, failed, err := w.process(ctx, w.batchSize*5)
	if err != nil {
		return fmt.Errorf("startup pin check: %w", err)
	}
	w.logger.InfoContext(ctx, "Startup pin check completed", "pinned", pinned, "errors", failed)
	return nil
}

func (w *PinWorker) process(ctx context.Context, limit int) (pinned, failed int, err error) {
	uploads, err := w.pending.PendingUploads(ctx, w.now().Add(-w.grace), w.maxAttempts, limit)
	if err != nil {
		return 0, 0, fmt.Errorf("get pending uploads: %w", err)
	}
	if len(uploads) == 0 {
		return 0, 0, nil
	}

	w.logger.InfoContext(ctx, "Processing pending uploads", "count", len(uploads))

	for _, u := range uploads {
		if ctx.Err() != nil {
			return pinned, failed, ctx.Err()
		}
		if err := w.pinner.Pin(ctx, u.ID); err != nil {
			w.logger.ErrorContext(ctx, "Failed to pin upload",
				applog.FieldUploadID, u.ID,
				"attempts", u.Attempts+1,
				"error", err)
			failed++
			continue
		}
		pinned++
	}
	return pinned, failed, nil
}
