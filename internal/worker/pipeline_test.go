package worker

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/netip"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arturkryukov/telegram-ioc-ingestor/internal/archive"
	"github.com/arturkryukov/telegram-ioc-ingestor/internal/contentstore"
	"github.com/arturkryukov/telegram-ioc-ingestor/internal/externalref"
	"github.com/arturkryukov/telegram-ioc-ingestor/internal/iocscan"
	"github.com/arturkryukov/telegram-ioc-ingestor/internal/queue"
	"github.com/arturkryukov/telegram-ioc-ingestor/internal/repository"
)

type fakeDownloader struct {
	bodies map[string][]byte
	errs   map[string]error
}

func (f *fakeDownloader) Download(_ context.Context, ref externalref.Ref) (io.ReadCloser, error) {
	tok := ref.Token()
	if err, ok := f.errs[tok]; ok {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(f.bodies[tok])), nil
}

func newTestPool(t *testing.T, repo repository.Repository, dl *fakeDownloader, matchers *iocscan.Matchers) *Pool {
	t.Helper()
	store, err := contentstore.New(t.TempDir())
	require.NoError(t, err)

	cfg := Config{
		Repository:    repo,
		Store:         store,
		Downloader:    dl,
		Matchers:      matchers,
		ArchiveLimits: archive.Limits{MaxDecompressedBytes: 1 << 20, MaxRatio: 100},
		MaxRetries:    2,
		TempDir:       t.TempDir(),
		Logger:        slog.New(slog.NewTextHandler(os.Stderr, nil)),
	}
	return NewPool(1, queue.New(1), cfg)
}

func TestProcessStoresPlainArtifactAndMarksCompleted(t *testing.T) {
	repo := repository.NewMemory()
	ref := externalref.New(1, 2, 3)
	dl := &fakeDownloader{bodies: map[string][]byte{ref.Token(): []byte("hello world")}}
	p := newTestPool(t, repo, dl, iocscan.NewMatchers(nil, nil, nil))

	job := queue.Job{Ref: ref, ChannelTitle: "chan", Filename: "notes.txt"}
	p.process(context.Background(), 0, job)

	files := repo.Files()
	require.Len(t, files, 1)
	require.Equal(t, int64(11), files[0].SizeBytes)

	jobs := repo.Jobs()
	require.Len(t, jobs, 1)
	require.Equal(t, repository.JobCompleted, jobs[0].Status)
}

func TestProcessSkipsAlreadyProcessedArtifact(t *testing.T) {
	repo := repository.NewMemory()
	ref := externalref.New(1, 2, 3)
	require.NoError(t, repo.UpsertProcessedFile(context.Background(), repository.ProcessedFile{TelegramFileID: ref.Token()}))

	dl := &fakeDownloader{bodies: map[string][]byte{}}
	p := newTestPool(t, repo, dl, iocscan.NewMatchers(nil, nil, nil))

	job := queue.Job{Ref: ref, Filename: "notes.txt"}
	p.process(context.Background(), 0, job)

	require.Empty(t, repo.Jobs())
}

func TestProcessMarksJobFailedOnDownloadError(t *testing.T) {
	repo := repository.NewMemory()
	ref := externalref.New(1, 2, 3)
	dl := &fakeDownloader{
		bodies: map[string][]byte{},
		errs:   map[string]error{ref.Token(): errors.New("boom")},
	}
	p := newTestPool(t, repo, dl, iocscan.NewMatchers(nil, nil, nil))

	job := queue.Job{Ref: ref, Filename: "notes.txt"}
	p.process(context.Background(), 0, job)

	jobs := repo.Jobs()
	require.Len(t, jobs, 1)
	require.Equal(t, repository.JobFailed, jobs[0].Status)
	require.NotNil(t, jobs[0].Error)
}

func TestProcessExtractsArchiveAndScansIndicators(t *testing.T) {
	repo := repository.NewMemory()
	ref := externalref.New(7, 8, 9)

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("contacts.txt")
	require.NoError(t, err)
	_, err = w.Write([]byte("contact admin@evil.example and visit 10.0.0.5\n"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	dl := &fakeDownloader{bodies: map[string][]byte{ref.Token(): buf.Bytes()}}
	cidr := netip.MustParsePrefix("10.0.0.0/8")
	matchers := iocscan.NewMatchers(nil, []string{"evil.example"}, []netip.Prefix{cidr})
	p := newTestPool(t, repo, dl, matchers)

	job := queue.Job{Ref: ref, Filename: "bundle.zip"}
	p.process(context.Background(), 0, job)

	jobs := repo.Jobs()
	require.Len(t, jobs, 1)
	require.Equal(t, repository.JobCompleted, jobs[0].Status)

	indicators := repo.Indicators()
	require.NotEmpty(t, indicators)
}
