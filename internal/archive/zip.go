package archive

import (
	"archive/zip"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/arturkryukov/telegram-ioc-ingestor/internal/ingesterr"
)

// extractZip reads the ZIP central directory up front, so the ratio guard
// can compare declared compressed/uncompressed sizes before inflating a
// single byte of any member.
func extractZip(archivePath, destDir string, limits Limits) ([]Member, error) {
	r, err := zip.OpenReader(archivePath)
	if err != nil {
		return nil, fmt.Errorf("archive: open zip: %w", err)
	}
	defer r.Close()

	guard := newBombGuard(limits)
	var members []Member

	for _, f := range r.File {
		if err := guard.checkMemberCount(); err != nil {
			return nil, err
		}

		mode := f.Mode()

		if mode&fs.ModeSymlink != 0 || mode&(fs.ModeDevice|fs.ModeNamedPipe|fs.ModeSocket|fs.ModeCharDevice) != 0 {
			continue // symlinks and device nodes are skipped, not fatal
		}
		if f.FileInfo().IsDir() {
			continue
		}

		diskPath, err := safeJoin(destDir, f.Name)
		if err != nil {
			return nil, err
		}

		if f.IsEncrypted() {
			return nil, fmt.Errorf("archive: member %q requires a password: %w", f.Name, ingesterr.ErrPasswordRequired)
		}

		if err := guard.checkMember(int64(f.CompressedSize64), int64(f.UncompressedSize64)); err != nil {
			return nil, err
		}

		if err := os.MkdirAll(filepath.Dir(diskPath), 0o750); err != nil {
			return nil, fmt.Errorf("archive: mkdir for member %q: %w: %w", f.Name, err, ingesterr.ErrStorageIO)
		}

		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("archive: open member %q: %w", f.Name, err)
		}

		n, err := writeMember(diskPath, rc, guard)
		closeErr := rc.Close()
		if err != nil {
			return nil, err
		}
		if closeErr != nil {
			return nil, fmt.Errorf("archive: close member %q: %w", f.Name, closeErr)
		}

		guard.commit(n)
		members = append(members, Member{RelativePath: f.Name, DiskPath: diskPath})
	}

	return members, nil
}

func writeMember(diskPath string, r io.Reader, guard *bombGuard) (int64, error) {
	out, err := os.Create(diskPath)
	if err != nil {
		return 0, fmt.Errorf("archive: create member file: %w: %w", err, ingesterr.ErrStorageIO)
	}
	n, err := copyBounded(out, r, guard)
	closeErr := out.Close()
	if err != nil {
		os.Remove(diskPath)
		return n, err
	}
	if closeErr != nil {
		return n, fmt.Errorf("archive: close member file: %w: %w", closeErr, ingesterr.ErrStorageIO)
	}
	return n, nil
}
