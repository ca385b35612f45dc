// Package archive streams members out of ZIP/RAR containers into an
// isolated temporary directory, enforcing safety guards against path
// traversal, decompression bombs, symlinks/device nodes, and encrypted
// members. Format dispatch is a tagged table keyed by filename suffix.
package archive

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/arturkryukov/telegram-ioc-ingestor/internal/ingesterr"
)

// Member is one extracted regular file: its path inside the archive and
// its path on disk inside the job's isolated temp directory.
type Member struct {
	RelativePath string
	DiskPath     string
}

// Limits bounds extraction so a crafted archive cannot exhaust storage.
type Limits struct {
	MaxDecompressedBytes int64
	MaxRatio             int
	MaxMembers           int
}

// extractor is implemented once per supported container format.
type extractor func(archivePath, destDir string, limits Limits) ([]Member, error)

var dispatch = map[string]extractor{
	".zip": extractZip,
	".rar": extractRar,
}

// Supports reports whether filename carries a suffix this package knows
// how to extract.
func Supports(filename string) bool {
	_, ok := dispatch[strings.ToLower(filepath.Ext(filename))]
	return ok
}

// Extract creates destDir fresh, unpacks archivePath into it according to
// the format implied by its filename suffix, and returns every regular
// file member extracted. destDir and everything under it is the caller's
// responsibility to remove — Extract never removes it itself, since
// callers need to read members after this call returns.
func Extract(archivePath, destDir string, limits Limits) ([]Member, error) {
	fn, ok := dispatch[strings.ToLower(filepath.Ext(archivePath))]
	if !ok {
		return nil, fmt.Errorf("archive: unsupported archive suffix %q", filepath.Ext(archivePath))
	}

	if err := os.MkdirAll(destDir, 0o750); err != nil {
		return nil, fmt.Errorf("archive: create extraction dir: %w: %w", err, ingesterr.ErrStorageIO)
	}

	return fn(archivePath, destDir, limits)
}

// safeJoin resolves a member's path inside destDir, rejecting anything
// that would escape destDir via an absolute path or a ".." component —
// the mandatory path-traversal guard.
func safeJoin(destDir, memberPath string) (string, error) {
	if filepath.IsAbs(memberPath) {
		return "", fmt.Errorf("archive: member has absolute path %q: %w", memberPath, ingesterr.ErrUnsafeArchive)
	}

	cleanRoot := filepath.Clean(destDir)
	joined := filepath.Join(cleanRoot, memberPath)
	cleanJoined := filepath.Clean(joined)

	if cleanJoined != cleanRoot && !strings.HasPrefix(cleanJoined, cleanRoot+string(os.PathSeparator)) {
		return "", fmt.Errorf("archive: member %q escapes extraction root: %w", memberPath, ingesterr.ErrUnsafeArchive)
	}
	return cleanJoined, nil
}

// bombGuard tracks cumulative uncompressed bytes across the whole archive,
// the per-member compressed/uncompressed ratio, and the running member
// count, aborting extraction the instant any configured ceiling is
// crossed. A file-count ceiling catches the bomb shape a byte/ratio guard
// alone misses: many near-empty members, each individually harmless.
type bombGuard struct {
	limits      Limits
	cumulative  int64
	memberCount int
}

func newBombGuard(limits Limits) *bombGuard {
	if limits.MaxDecompressedBytes <= 0 {
		limits.MaxDecompressedBytes = 2 << 30 // 2 GiB default ceiling
	}
	if limits.MaxRatio <= 0 {
		limits.MaxRatio = 100
	}
	if limits.MaxMembers <= 0 {
		limits.MaxMembers = 1000
	}
	return &bombGuard{limits: limits}
}

// checkMemberCount counts every archive entry seen, including ones later
// skipped as directories/symlinks/devices, matching how the archive's
// own member count is reported by its format (zip/rar both expose the
// full namelist up front, regardless of entry type).
func (g *bombGuard) checkMemberCount() error {
	g.memberCount++
	if g.memberCount > g.limits.MaxMembers {
		return fmt.Errorf("archive: member count %d exceeds ceiling %d: %w",
			g.memberCount, g.limits.MaxMembers, ingesterr.ErrUnsafeArchive)
	}
	return nil
}

func (g *bombGuard) checkMember(compressedSize, uncompressedSize int64) error {
	if compressedSize > 0 && uncompressedSize/compressedSize > int64(g.limits.MaxRatio) {
		return fmt.Errorf("archive: member ratio %d:%d exceeds max %d: %w",
			uncompressedSize, compressedSize, g.limits.MaxRatio, ingesterr.ErrUnsafeArchive)
	}
	if g.cumulative+uncompressedSize > g.limits.MaxDecompressedBytes {
		return fmt.Errorf("archive: cumulative decompressed bytes would exceed ceiling %d: %w",
			g.limits.MaxDecompressedBytes, ingesterr.ErrUnsafeArchive)
	}
	return nil
}

func (g *bombGuard) commit(n int64) {
	g.cumulative += n
}

// copyBounded copies from r to w while continuously checking the running
// total against the cumulative ceiling — this guards against a member
// whose declared uncompressed size understates what it actually inflates
// to, not just the declared-size precheck in checkMember.
func copyBounded(w io.Writer, r io.Reader, g *bombGuard) (int64, error) {
	const chunk = 32 * 1024
	buf := make([]byte, chunk)
	var total int64
	for {
		n, err := r.Read(buf)
		if n > 0 {
			if g.cumulative+total+int64(n) > g.limits.MaxDecompressedBytes {
				return total, fmt.Errorf("archive: decompression ceiling %d exceeded mid-stream: %w",
					g.limits.MaxDecompressedBytes, ingesterr.ErrUnsafeArchive)
			}
			if _, werr := w.Write(buf[:n]); werr != nil {
				return total, fmt.Errorf("archive: write member: %w: %w", werr, ingesterr.ErrStorageIO)
			}
			total += int64(n)
		}
		if err == io.EOF {
			return total, nil
		}
		if err != nil {
			return total, fmt.Errorf("archive: read member: %w", err)
		}
	}
}
