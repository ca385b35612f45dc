package archive

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/nwaples/rardecode/v2"

	"github.com/arturkryukov/telegram-ioc-ingestor/internal/ingesterr"
)

// extractRar streams RAR members one at a time; unlike ZIP, RAR has no
// random-access central directory cheap enough to precheck, so the ratio
// guard here compares each header's declared sizes as they arrive.
func extractRar(archivePath, destDir string, limits Limits) ([]Member, error) {
	r, err := rardecode.OpenReader(archivePath)
	if err != nil {
		if isPasswordError(err) {
			return nil, fmt.Errorf("archive: rar requires a password: %w", ingesterr.ErrPasswordRequired)
		}
		return nil, fmt.Errorf("archive: open rar: %w", err)
	}
	defer r.Close()

	guard := newBombGuard(limits)
	var members []Member

	for {
		header, err := r.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if isPasswordError(err) {
				return nil, fmt.Errorf("archive: rar member requires a password: %w", ingesterr.ErrPasswordRequired)
			}
			return nil, fmt.Errorf("archive: read rar header: %w", err)
		}

		if err := guard.checkMemberCount(); err != nil {
			return nil, err
		}

		if header.IsDir {
			continue
		}
		if isSymlinkOrDevice(header) {
			continue
		}

		diskPath, err := safeJoin(destDir, header.Name)
		if err != nil {
			return nil, err
		}

		if err := guard.checkMember(header.PackedSize, header.UnPackedSize); err != nil {
			return nil, err
		}

		if err := os.MkdirAll(filepath.Dir(diskPath), 0o750); err != nil {
			return nil, fmt.Errorf("archive: mkdir for member %q: %w: %w", header.Name, err, ingesterr.ErrStorageIO)
		}

		n, err := writeMember(diskPath, r, guard)
		if err != nil {
			return nil, err
		}

		guard.commit(n)
		members = append(members, Member{RelativePath: header.Name, DiskPath: diskPath})
	}

	return members, nil
}

func isPasswordError(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "password")
}

// Unix file-type bits as stored in a RAR5 header's Attributes field when
// the archive carries POSIX permissions (host OS "unix"); the high nibble
// of st_mode identifies symlinks (0xA) and other non-regular types.
const unixModeTypeMask = 0xF000
const unixModeTypeSymlink = 0xA000
const unixModeTypeRegular = 0x8000

// isSymlinkOrDevice reports whether a RAR header describes a symlink or
// any non-regular file, using the archived unix mode bits when present.
// Archives without unix attributes (host OS "windows") never set this bit
// pattern, so regular files there are unaffected.
func isSymlinkOrDevice(header *rardecode.FileHeader) bool {
	mode := uint32(header.Attributes) & unixModeTypeMask
	if mode == 0 {
		return false
	}
	return mode != unixModeTypeRegular
}
