package archive

import (
	"archive/zip"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arturkryukov/telegram-ioc-ingestor/internal/ingesterr"
)

func writeZip(t *testing.T, dir string, files map[string]string) string {
	t.Helper()
	path := filepath.Join(dir, "test.zip")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	zw := zip.NewWriter(f)
	for name, body := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return path
}

func TestExtractZipRoundTrip(t *testing.T) {
	src := t.TempDir()
	archivePath := writeZip(t, src, map[string]string{
		"a.txt":        "hello",
		"nested/b.txt": "world",
	})

	dest := filepath.Join(t.TempDir(), "extract")
	members, err := Extract(archivePath, dest, Limits{})
	require.NoError(t, err)
	require.Len(t, members, 2)

	byPath := map[string]Member{}
	for _, m := range members {
		byPath[m.RelativePath] = m
	}

	a, ok := byPath["a.txt"]
	require.True(t, ok)
	data, err := os.ReadFile(a.DiskPath)
	require.NoError(t, err)
	require.Equal(t, "hello", string(data))
}

func TestExtractZipRejectsPathTraversal(t *testing.T) {
	src := t.TempDir()
	archivePath := writeZip(t, src, map[string]string{
		"../../etc/passwd": "root:x:0:0",
	})

	dest := filepath.Join(t.TempDir(), "extract")
	_, err := Extract(archivePath, dest, Limits{})
	require.Error(t, err)
	require.ErrorIs(t, err, ingesterr.ErrUnsafeArchive)

	// Nothing should have been written outside the extraction root.
	_, statErr := os.Stat(filepath.Join(filepath.Dir(dest), "etc", "passwd"))
	require.True(t, os.IsNotExist(statErr))
}

func TestExtractZipAbortsOnDecompressionBomb(t *testing.T) {
	src := t.TempDir()
	// A small member that legitimately compresses a highly repetitive
	// payload by more than the configured ratio trips the guard before
	// the ceiling itself is reached.
	archivePath := writeZip(t, src, map[string]string{
		"bomb.txt": stringsRepeat("A", 1<<20),
	})

	dest := filepath.Join(t.TempDir(), "extract")
	_, err := Extract(archivePath, dest, Limits{MaxDecompressedBytes: 1 << 30, MaxRatio: 10})
	require.Error(t, err)
	require.ErrorIs(t, err, ingesterr.ErrUnsafeArchive)
}

func TestExtractZipAbortsOnMemberCountCeiling(t *testing.T) {
	src := t.TempDir()
	files := make(map[string]string, 5)
	for i := 0; i < 5; i++ {
		files[fmt.Sprintf("f%d.txt", i)] = "x"
	}
	archivePath := writeZip(t, src, files)

	dest := filepath.Join(t.TempDir(), "extract")
	_, err := Extract(archivePath, dest, Limits{MaxMembers: 3})
	require.Error(t, err)
	require.ErrorIs(t, err, ingesterr.ErrUnsafeArchive)
}

func TestSupports(t *testing.T) {
	require.True(t, Supports("report.ZIP"))
	require.True(t, Supports("report.rar"))
	require.False(t, Supports("report.txt"))
}

func stringsRepeat(s string, n int) string {
	b := make([]byte, 0, n)
	for len(b) < n {
		b = append(b, s...)
	}
	return string(b[:n])
}
