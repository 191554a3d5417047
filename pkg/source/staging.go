package source

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/multierr"
)

var (
	ERR_EXTENSION = errors.New("Unsupported file type")
)

// Extension of name without the dot must be one of allowed, case insensitive
func CheckExtension(name string, allowed []string) error {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
	if ext == "" || !slices.Contains(allowed, ext) {
		return fmt.Errorf("%w: %q, expected one of %v", ERR_EXTENSION, name, allowed)
	}
	return nil
}

// Persists r into dir as <uuid>_<name> and returns the full path
func Stage(dir, name string, r io.Reader) (path string, err error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("Can't create staging dir %s: %w", dir, err)
	}
	path = filepath.Join(dir, uuid.NewString()+"_"+filepath.Base(name))
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("Can't create %s: %w", path, err)
	}
	defer func() {
		err = multierr.Append(err, f.Close())
		if err != nil {
			os.Remove(path)
			path = ""
		}
	}()
	if _, err := io.Copy(f, r); err != nil {
		return path, fmt.Errorf("Can't write %s: %w", path, err)
	}
	return path, nil
}

// Deletes a staged file unless it is the default one.
// A file that is already gone is not an error
func Unstage(path, default_name string) error {
	if path == "" || filepath.Base(path) == default_name {
		return nil
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("Can't remove staged file %s: %w", path, err)
	}
	return nil
}
