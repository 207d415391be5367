// Package uploads accepts images, keeps them in SQLite and pins them to IPFS.
package uploads

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"qacc/internal/ipfs"
	applog "qacc/internal/log"
	"qacc/internal/storage"
)

var (
	ErrUnsupportedType = errors.New("unsupported file type, only images are accepted")
	ErrTooLarge        = errors.New("file too large")
	ErrEmpty           = errors.New("file is empty")
	ErrNotFound        = storage.ErrNotFound
	// ErrPinQueued means the first pin attempt failed and a retry was queued.
	ErrPinQueued = errors.New("pin queued for retry")
)

type (
	Store interface {
		CreateUpload(ctx context.Context, u storage.Upload, data []byte) (storage.Upload, error)
		GetUpload(ctx context.Context, id string) (storage.Upload, error)
		UploadData(ctx context.Context, id string) ([]byte, error)
		MarkPinned(ctx context.Context, id, cid string) error
		MarkFailed(ctx context.Context, id, reason string) error
		MarkDeleted(ctx context.Context, id string) error
	}

	Pinner interface {
		Add(ctx context.Context, name string, r io.Reader, size int64, progress ipfs.ProgressFunc) (string, error)
		Unpin(ctx context.Context, cid string) error
	}

	// Publisher queues a pin retry. It may be nil, leaving retries to the
	// sweep.
	Publisher interface {
		PublishPinRequest(ctx context.Context, uploadID string) error
	}

	Config struct {
		MaxBytes   int64
		GatewayURL string
	}

	// Upload is a stored upload with its public address once pinned.
	Upload struct {
		storage.Upload
		URL string `json:"url,omitempty"`
	}
)

type Service struct {
	store     Store
	pinner    Pinner
	publisher Publisher
	cfg       Config
	logger    *slog.Logger
}

func NewService(store Store, pinner Pinner, publisher Publisher, cfg Config, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:     store,
		pinner:    pinner,
		publisher: publisher,
		cfg:       cfg,
		logger:    logger.With(applog.FieldComponent, applog.ComponentUploads),
	}
}

// Upload validates and stores the file, then pins it. When pinning fails
// the upload is kept as failed, a retry is queued and the error is returned
// together with the stored upload.
func (s *Service) Upload(ctx context.Context, filename, declaredType string, r io.Reader) (Upload, error) {
	data, err := s.read(r)
	if err != nil {
		return Upload{}, err
	}
	contentType, err := detectImageType(data, declaredType)
	if err != nil {
		return Upload{}, err
	}

	stored, err := s.store.CreateUpload(ctx, storage.Upload{
		ID:          uuid.NewString(),
		Filename:    sanitizeFilename(filename),
		ContentType: contentType,
		Size:        int64(len(data)),
	}, data)
	if err != nil {
		return Upload{}, fmt.Errorf("store upload: %w", err)
	}

	if err := s.pin(ctx, stored, data); err != nil {
		if errors.Is(err, ErrNotFound) {
			return Upload{}, err
		}
		failed, gerr := s.store.GetUpload(ctx, stored.ID)
		if gerr != nil {
			failed = stored
		}
		return s.view(failed), s.queueRetry(ctx, stored.ID, err)
	}
	return s.Get(ctx, stored.ID)
}

// Pin pins a stored upload that is not pinned yet. The worker calls it for
// queued and swept uploads.
func (s *Service) Pin(ctx context.Context, id string) error {
	u, err := s.store.GetUpload(ctx, id)
	if err != nil {
		return err
	}
	if u.Status == storage.StatusPinned {
		return nil
	}
	data, err := s.store.UploadData(ctx, id)
	if err != nil {
		return fmt.Errorf("load upload data: %w", err)
	}
	return s.pin(ctx, u, data)
}

func (s *Service) pin(ctx context.Context, u storage.Upload, data []byte) error {
	cid, err := s.pinner.Add(ctx, u.Filename, bytes.NewReader(data), int64(len(data)), s.progress(ctx, u.ID))
	if err != nil {
		if merr := s.store.MarkFailed(ctx, u.ID, err.Error()); merr != nil {
			s.logger.ErrorContext(ctx, "Failed to mark upload failed", applog.FieldUploadID, u.ID, "error", merr)
		}
		return fmt.Errorf("pin upload %s: %w", u.ID, err)
	}
	if err := s.store.MarkPinned(ctx, u.ID, cid); err != nil {
		if errors.Is(err, ErrNotFound) {
			// Deleted while the pin was in flight.
			if uerr := s.pinner.Unpin(ctx, cid); uerr != nil {
				s.logger.ErrorContext(ctx, "Failed to unpin deleted upload",
					applog.FieldUploadID, u.ID, applog.FieldCID, cid, "error", uerr)
			}
		}
		return fmt.Errorf("record pin for %s: %w", u.ID, err)
	}
	return nil
}

func (s *Service) queueRetry(ctx context.Context, id string, pinErr error) error {
	if s.publisher == nil {
		return pinErr
	}
	if err := s.publisher.PublishPinRequest(ctx, id); err != nil {
		// Non-critical: the sweep picks failed uploads up anyway
		s.logger.WarnContext(ctx, "Failed to queue pin retry", applog.FieldUploadID, id, "error", err)
		return pinErr
	}
	return fmt.Errorf("%w: %w", ErrPinQueued, pinErr)
}

// Get returns a stored upload.
func (s *Service) Get(ctx context.Context, id string) (Upload, error) {
	u, err := s.store.GetUpload(ctx, id)
	if err != nil {
		return Upload{}, err
	}
	return s.view(u), nil
}

// Delete unpins the upload and hides it.
func (s *Service) Delete(ctx context.Context, id string) error {
	u, err := s.store.GetUpload(ctx, id)
	if err != nil {
		return err
	}
	if u.CID != "" {
		if err := s.pinner.Unpin(ctx, u.CID); err != nil {
			return fmt.Errorf("unpin %s: %w", u.CID, err)
		}
	}
	if err := s.store.MarkDeleted(ctx, id); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "Upload deleted", applog.FieldUploadID, id, applog.FieldCID, u.CID)
	return nil
}

func (s *Service) view(u storage.Upload) Upload {
	v := Upload{Upload: u}
	if u.Status == storage.StatusPinned && s.cfg.GatewayURL != "" {
		v.URL = ipfs.GatewayURL(s.cfg.GatewayURL, u.CID)
	}
	return v
}

func (s *Service) read(r io.Reader) ([]byte, error) {
	if s.cfg.MaxBytes > 0 {
		r = io.LimitReader(r, s.cfg.MaxBytes+1)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	if len(data) == 0 {
		return nil, ErrEmpty
	}
	if s.cfg.MaxBytes > 0 && int64(len(data)) > s.cfg.MaxBytes {
		return nil, fmt.Errorf("%w: limit is %d bytes", ErrTooLarge, s.cfg.MaxBytes)
	}
	return data, nil
}

// progress logs every quarter of the transfer.
func (s *Service) progress(ctx context.Context, id string) ipfs.ProgressFunc {
	next := int64(25)
	return func(sent, total int64) {
		if total <= 0 {
			return
		}
		pct := sent * 100 / total
		for pct >= next && next <= 100 {
			s.logger.DebugContext(ctx, "Upload progress", applog.FieldUploadID, id, "percent", next)
			next += 25
		}
	}
}

// detectImageType sniffs the content. SVG sniffs as text, so the declared
// type is trusted for it.
func detectImageType(data []byte, declared string) (string, error) {
	detected := http.DetectContentType(data)
	if strings.HasPrefix(detected, "image/") {
		return detected, nil
	}
	declared = strings.ToLower(strings.TrimSpace(declared))
	if declared == "image/svg+xml" && bytes.Contains(data[:min(len(data), 1024)], []byte("<svg")) {
		return declared, nil
	}
	return "", fmt.Errorf("%w: got %s", ErrUnsupportedType, detected)
}

func sanitizeFilename(name string) string {
	name = strings.TrimSpace(name)
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}
	if name == "" || name == "." || name == ".." {
		return "upload"
	}
	return name
}
