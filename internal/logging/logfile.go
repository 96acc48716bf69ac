package logging

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// logFilePerm keeps per-run log files private to the invoking user; scan
// output can reveal filesystem layout.
const logFilePerm = 0o600

// Static errors for log directory validation.
var (
	ErrLogDirNotAbsolute = errors.New("log directory must be an absolute path")
	ErrLogDirNotDir      = errors.New("log directory is not a directory")
	ErrLogDirSymlink     = errors.New("log directory must not be a symlink")
)

// ValidateLogDir checks that dir is usable as a log destination: absolute,
// existing, a real directory and not a symlink. Symlinked log directories
// are rejected because the file name embeds the run ID and the open uses
// O_CREATE; a redirected directory would let another user plant targets.
func ValidateLogDir(dir string) error {
	if !filepath.IsAbs(dir) {
		return fmt.Errorf("%w: %q", ErrLogDirNotAbsolute, dir)
	}
	info, err := os.Lstat(dir)
	if err != nil {
		return fmt.Errorf("failed to stat log directory %q: %w", dir, err)
	}
	if info.Mode()&os.ModeSymlink != 0 {
		return fmt.Errorf("%w: %q", ErrLogDirSymlink, dir)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %q", ErrLogDirNotDir, dir)
	}
	return nil
}

// OpenRunLogFile creates the per-run JSON log file inside dir. The name
// embeds the hostname and run ID so concurrent runs never collide.
func OpenRunLogFile(dir, hostname, runID string) (*os.File, error) {
	if err := ValidateLogDir(dir); err != nil {
		return nil, err
	}
	path := filepath.Join(dir, fmt.Sprintf("%s_%s.json", hostname, runID))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_EXCL, logFilePerm)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file %q: %w", path, err)
	}
	return f, nil
}
