package file

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/quickhelp/quickhelp/internal/logger"
)

// Manager stores downloaded images for the lifetime of one request.
type Manager struct {
	dir string
}

// NewManager uses dir for temporary files, or the OS temp dir when empty.
func NewManager(dir string) *Manager {
	if dir == "" {
		dir = os.TempDir()
	}
	return &Manager{dir: dir}
}

func (m *Manager) Dir() string {
	return m.dir
}

// WriteTemp writes data to a uniquely named file and returns its path with
// a cleanup func that removes it. The cleanup is safe to call repeatedly.
func (m *Manager) WriteTemp(data []byte, ext string) (string, func(), error) {
	if err := os.MkdirAll(m.dir, 0o755); err != nil {
		return "", nil, fmt.Errorf("failed to create temp dir: %w", err)
	}

	name := "quickhelp-" + uuid.NewString() + m.normalizeExt(ext)
	path := filepath.Join(m.dir, name)

	if err := os.WriteFile(path, data, 0o600); err != nil {
		_ = os.Remove(path)
		return "", nil, fmt.Errorf("failed to write temp file: %w", err)
	}

	return path, func() { m.Remove(path) }, nil
}

// Remove deletes path, ignoring files that are already gone.
func (m *Manager) Remove(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Warn("Failed to remove temp file", logger.Fields{
			"path":  path,
			"error": err.Error(),
		})
	}
}

func (m *Manager) normalizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext == "" {
		return ".jpg"
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}

// ExtFromPath returns the extension of a remote file path such as
// "photos/file_12.jpg".
func ExtFromPath(p string) string {
	if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	return filepath.Ext(p)
}
