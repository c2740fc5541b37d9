package render

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"

	"lending-snapshots/internal/snapshot"
)

// Renderer consumes both tables of a finished session. Implementations must not
// mutate the tables; the same value is handed to every renderer.
type Renderer interface {
	Render(ctx context.Context, tables snapshot.Tables) error
}

// FileRenderer is a Renderer that writes files and can report their paths.
type FileRenderer interface {
	Renderer
	Files() []string
}

func ensureDir(dir string) error {
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

func outPath(dir, name string) string {
	if dir == "" {
		return name
	}
	return filepath.Join(dir, name)
}

// writeFile creates path and hands it to write. A partially written file is
// removed when write or the final Close fails.
func writeFile(path string, write func(io.Writer) error) (err error) {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := file.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
		if err != nil {
			err = errors.Join(err, removeIfExists(path))
		}
	}()
	return write(file)
}

func removeIfExists(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
