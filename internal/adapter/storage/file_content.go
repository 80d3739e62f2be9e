package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/rl1809/ebook-shop/internal/port"
)

// FileContentStore serves ebook files from a flat directory.
type FileContentStore struct {
	dir string
}

func NewFileContentStore(dir string) *FileContentStore {
	return &FileContentStore{dir: dir}
}

func (s *FileContentStore) Load(ctx context.Context, key string) ([]byte, error) {
	// keys never address anything outside dir
	name := filepath.Base(key)
	if name == "." || name == string(filepath.Separator) {
		return nil, fmt.Errorf("content %q: %w", key, port.ErrContentNotFound)
	}

	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("content %q: %w", key, port.ErrContentNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read content %q: %w", key, err)
	}
	return data, nil
}
