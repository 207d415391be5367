package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// timeLayout is fixed width and UTC so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

var ErrNotFound = errors.New("upload not found")

type UploadStatus string

const (
	StatusPending UploadStatus = "pending"
	StatusPinned  UploadStatus = "pinned"
	StatusFailed  UploadStatus = "failed"
	StatusDeleted UploadStatus = "deleted"
)

// Upload is a file accepted for IPFS pinning. The file bytes are kept until
// the upload is pinned.
type Upload struct {
	ID          string       `json:"id"`
	Filename    string       `json:"filename"`
	ContentType string       `json:"contentType"`
	Size        int64        `json:"size"`
	CID         string       `json:"cid,omitempty"`
	Status      UploadStatus `json:"status"`
	Attempts    int          `json:"attempts"`
	LastError   string       `json:"lastError,omitempty"`
	CreatedAt   time.Time    `json:"createdAt"`
	UpdatedAt   time.Time    `json:"updatedAt"`
}

type SQLiteRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// sqlite allows a single writer
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db, now: time.Now}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping reports whether the database answers.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *SQLiteRepository) stamp() string {
	return r.now().UTC().Format(timeLayout)
}

// CreateUpload stores a pending upload with its bytes.
func (r *SQLiteRepository) CreateUpload(ctx context.Context, u Upload, data []byte) (Upload, error) {
	now := r.stamp()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO uploads (id, filename, content_type, size_bytes, data, status, attempts, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, 0, ?, ?)`,
		u.ID, u.Filename, u.ContentType, u.Size, data, StatusPending, now, now)
	if err != nil {
		return Upload{}, fmt.Errorf("create upload: %w", err)
	}

	slog.InfoContext(ctx, "Upload saved to SQLite",
		"upload_id", u.ID,
		"filename", u.Filename,
		"size_bytes", u.Size)

	return r.GetUpload(ctx, u.ID)
}

// GetUpload retrieves a single upload by ID. Deleted uploads are not found.
func (r *SQLiteRepository) GetUpload(ctx context.Context, id string) (Upload, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, filename, content_type, size_bytes, cid, status, attempts, last_error, created_at, updated_at
		FROM uploads
		WHERE id = ? AND status != ?`, id, StatusDeleted)

	u, err := scanUpload(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Upload{}, fmt.Errorf("get upload %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return Upload{}, fmt.Errorf("get upload %s: %w", id, err)
	}
	return u, nil
}

// UploadData returns the stored bytes of an upload that is not yet pinned.
func (r *SQLiteRepository) UploadData(ctx context.Context, id string) ([]byte, error) {
	var data []byte
	err := r.db.QueryRowContext(ctx, `SELECT data FROM uploads WHERE id = ? AND data IS NOT NULL`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("upload data %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("upload data %s: %w", id, err)
	}
	return data, nil
}

// MarkPinned records the CID and drops the stored bytes. A deleted upload
// stays deleted and reports ErrNotFound.
func (r *SQLiteRepository) MarkPinned(ctx context.Context, id, cid string) error {
	if err := r.update(ctx, `
		UPDATE uploads SET status = ?, cid = ?, data = NULL, last_error = NULL, updated_at = ?
		WHERE id = ? AND status != ?`, StatusPinned, cid, r.stamp(), id, StatusDeleted); err != nil {
		return fmt.Errorf("mark upload pinned: %w", err)
	}

	slog.InfoContext(ctx, "Upload marked as pinned", "upload_id", id, "cid", cid)
	return nil
}

// MarkFailed records a failed pin attempt. Pinned and deleted uploads are
// left untouched and report ErrNotFound.
func (r *SQLiteRepository) MarkFailed(ctx context.Context, id, reason string) error {
	if err := r.update(ctx, `
		UPDATE uploads SET status = ?, attempts = attempts + 1, last_error = ?, updated_at = ?
		WHERE id = ? AND status NOT IN (?, ?)`, StatusFailed, reason, r.stamp(), id, StatusPinned, StatusDeleted); err != nil {
		return fmt.Errorf("mark upload failed: %w", err)
	}

	slog.WarnContext(ctx, "Upload marked with pin error", "upload_id", id, "error", reason)
	return nil
}

// MarkDeleted hides the upload and drops its bytes.
func (r *SQLiteRepository) MarkDeleted(ctx context.Context, id string) error {
	if err := r.update(ctx, `
		UPDATE uploads SET status = ?, data = NULL, updated_at = ?
		WHERE id = ? AND status != ?`, StatusDeleted, r.stamp(), id, StatusDeleted); err != nil {
		return fmt.Errorf("mark upload deleted: %w", err)
	}
	return nil
}

// PendingUploads returns uploads still waiting to be pinned that were last
// touched before the given time and have fewer than maxAttempts failures,
// oldest first.
func (r *SQLiteRepository) PendingUploads(ctx context.Context, before time.Time, maxAttempts, limit int) ([]Upload, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, filename, content_type, size_bytes, cid, status, attempts, last_error, created_at, updated_at
		FROM uploads
		WHERE status IN (?, ?) AND attempts < ? AND updated_at < ? AND data IS NOT NULL
		ORDER BY updated_at
		LIMIT ?`,
		StatusPending, StatusFailed, maxAttempts, before.UTC().Format(timeLayout), limit)
	if err != nil {
		return nil, fmt.Errorf("get pending uploads: %w", err)
	}
	defer rows.Close()

	var out []Upload
	for rows.Next() {
		u, err := scanUpload(rows)
		if err != nil {
			return nil, fmt.Errorf("scan pending upload: %w", err)
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pending uploads: %w", err)
	}
	return out, nil
}

func (r *SQLiteRepository) update(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanUpload(s scanner) (Upload, error) {
	var (
		u                    Upload
		cid, lastErr         sql.NullString
		status               string
		createdAt, updatedAt string
	)
	if err := s.Scan(&u.ID, &u.Filename, &u.ContentType, &u.Size, &cid, &status, &u.Attempts, &lastErr, &createdAt, &updatedAt); err != nil {
		return Upload{}, err
	}
	u.CID = cid.String
	u.LastError = lastErr.String
	u.Status = UploadStatus(status)

	var err error
	if u.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
		return Upload{}, fmt.Errorf("parse created_at: %w", err)
	}
	if u.UpdatedAt, err = time.Parse(timeLayout, updatedAt); err != nil {
		return Upload{}, fmt.Errorf("parse updated_at: %w", err)
	}
	return u, nil
}
