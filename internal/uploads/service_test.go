package uploads

import (
	"bytes"
	"context"
	"errors"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qacc/internal/ipfs"
	"qacc/internal/storage"
)

var pngBytes = append([]byte("\x89PNG\r\n\x1a\n"), bytes.Repeat([]byte{0}, 32)...)

type fakePinner struct {
	cid      string
	err      error
	added    [][]byte
	unpinned []string
	onAdd    func()
}

func (f *fakePinner) Add(_ context.Context, _ string, r io.Reader, _ int64, progress ipfs.ProgressFunc) (string, error) {
	b, _ := io.ReadAll(r)
	f.added = append(f.added, b)
	if f.onAdd != nil {
		f.onAdd()
	}
	if progress != nil {
		progress(int64(len(b)), int64(len(b)))
	}
	if f.err != nil {
		return "", f.err
	}
	return f.cid, nil
}

func (f *fakePinner) Unpin(_ context.Context, cid string) error {
	f.unpinned = append(f.unpinned, cid)
	return nil
}

type fakePublisher struct {
	ids []string
	err error
}

func (f *fakePublisher) PublishPinRequest(_ context.Context, id string) error {
	f.ids = append(f.ids, id)
	return f.err
}

func newRepo(t *testing.T) *storage.SQLiteRepository {
	t.Helper()
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "qacc.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestUploadPinsImage(t *testing.T) {
	pinner := &fakePinner{cid: "bafyimage"}
	svc := NewService(newRepo(t), pinner, nil, Config{MaxBytes: 1024, GatewayURL: "https://ipfs.io"}, nil)

	u, err := svc.Upload(context.Background(), "../../logo.png", "image/png", bytes.NewReader(pngBytes))
	require.NoError(t, err)
	assert.Equal(t, storage.StatusPinned, u.Status)
	assert.Equal(t, "bafyimage", u.CID)
	assert.Equal(t, "logo.png", u.Filename)
	assert.Equal(t, "image/png", u.ContentType)
	assert.Equal(t, int64(len(pngBytes)), u.Size)
	assert.Equal(t, "https://ipfs.io/ipfs/bafyimage", u.URL)
	require.Len(t, pinner.added, 1)
	assert.Equal(t, pngBytes, pinner.added[0])

	got, err := svc.Get(context.Background(), u.ID)
	require.NoError(t, err)
	assert.Equal(t, u.CID, got.CID)
}

func TestUploadValidation(t *testing.T) {
	svc := NewService(newRepo(t), &fakePinner{cid: "x"}, nil, Config{MaxBytes: 16}, nil)

	_, err := svc.Upload(context.Background(), "a.png", "image/png", bytes.NewReader(pngBytes))
	assert.ErrorIs(t, err, ErrTooLarge)

	_, err = svc.Upload(context.Background(), "a.txt", "text/plain", bytes.NewReader([]byte("hello")))
	assert.ErrorIs(t, err, ErrUnsupportedType)

	_, err = svc.Upload(context.Background(), "a.png", "image/png", bytes.NewReader(nil))
	assert.ErrorIs(t, err, ErrEmpty)
}

func TestUploadAcceptsDeclaredSVG(t *testing.T) {
	svg := []byte(`<svg xmlns="http://www.w3.org/2000/svg"></svg>`)
	svc := NewService(newRepo(t), &fakePinner{cid: "bafysvg"}, nil, Config{}, nil)

	u, err := svc.Upload(context.Background(), "icon.svg", "image/svg+xml", bytes.NewReader(svg))
	require.NoError(t, err)
	assert.Equal(t, "image/svg+xml", u.ContentType)
}

func TestUploadQueuesRetryWhenPinFails(t *testing.T) {
	repo := newRepo(t)
	pinner := &fakePinner{err: errors.New("node unreachable")}
	pub := &fakePublisher{}
	svc := NewService(repo, pinner, pub, Config{}, nil)

	u, err := svc.Upload(context.Background(), "a.png", "image/png", bytes.NewReader(pngBytes))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPinQueued)
	assert.Contains(t, err.Error(), "node unreachable")
	assert.Equal(t, storage.StatusFailed, u.Status)
	assert.Equal(t, 1, u.Attempts)
	assert.Equal(t, []string{u.ID}, pub.ids)

	// a later retry succeeds
	pinner.err = nil
	pinner.cid = "bafylater"
	require.NoError(t, svc.Pin(context.Background(), u.ID))

	got, err := svc.Get(context.Background(), u.ID)
	require.NoError(t, err)
	assert.Equal(t, storage.StatusPinned, got.Status)
	assert.Equal(t, "bafylater", got.CID)

	require.NoError(t, svc.Pin(context.Background(), u.ID), "pinning twice is a no-op")
	assert.Len(t, pinner.added, 2)
}

func TestUploadReturnsPinErrorWhenPublishFails(t *testing.T) {
	pinErr := errors.New("node unreachable")
	svc := NewService(newRepo(t), &fakePinner{err: pinErr}, &fakePublisher{err: errors.New("broker down")}, Config{}, nil)

	_, err := svc.Upload(context.Background(), "a.png", "image/png", bytes.NewReader(pngBytes))
	assert.ErrorIs(t, err, pinErr)
	assert.NotErrorIs(t, err, ErrPinQueued)
}

func TestDeleteUnpins(t *testing.T) {
	pinner := &fakePinner{cid: "bafydel"}
	svc := NewService(newRepo(t), pinner, nil, Config{}, nil)

	u, err := svc.Upload(context.Background(), "a.png", "image/png", bytes.NewReader(pngBytes))
	require.NoError(t, err)

	require.NoError(t, svc.Delete(context.Background(), u.ID))
	assert.Equal(t, []string{"bafydel"}, pinner.unpinned)

	_, err = svc.Get(context.Background(), u.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, svc.Delete(context.Background(), u.ID), ErrNotFound)
}

func TestPinUnpinsWhenDeletedMidFlight(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()
	_, err := repo.CreateUpload(ctx, storage.Upload{ID: "u1", Filename: "a.png", ContentType: "image/png", Size: int64(len(pngBytes))}, pngBytes)
	require.NoError(t, err)

	pinner := &fakePinner{cid: "bafyorphan"}
	pinner.onAdd = func() { require.NoError(t, repo.MarkDeleted(ctx, "u1")) }
	pub := &fakePublisher{}
	svc := NewService(repo, pinner, pub, Config{}, nil)

	err = svc.Pin(ctx, "u1")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, []string{"bafyorphan"}, pinner.unpinned)
	assert.Empty(t, pub.ids)

	_, err = repo.GetUpload(ctx, "u1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUploadDeletedMidFlightIsNotQueued(t *testing.T) {
	repo := newRepo(t)
	pinner := &fakePinner{cid: "bafyorphan"}
	pub := &fakePublisher{}
	svc := NewService(repo, pinner, pub, Config{}, nil)

	var id string
	pinner.onAdd = func() {
		pending, err := repo.PendingUploads(context.Background(), time.Now().Add(time.Hour), 5, 10)
		require.NoError(t, err)
		require.Len(t, pending, 1)
		id = pending[0].ID
		require.NoError(t, repo.MarkDeleted(context.Background(), id))
	}

	_, err := svc.Upload(context.Background(), "a.png", "image/png", bytes.NewReader(pngBytes))
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NotErrorIs(t, err, ErrPinQueued)
	assert.Equal(t, []string{"bafyorphan"}, pinner.unpinned)
	assert.Empty(t, pub.ids)
	assert.NotEmpty(t, id)
}

func TestSanitizeFilename(t *testing.T) {
	assert.Equal(t, "a.png", sanitizeFilename(`C:\tmp\a.png`))
	assert.Equal(t, "upload", sanitizeFilename("dir/"))
	assert.Equal(t, "upload", sanitizeFilename(".."))
}
