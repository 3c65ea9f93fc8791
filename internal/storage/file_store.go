// Package storage writes synthesized meditations to disk.
package storage

import (
	"fmt"
	"os"
	"path/filepath"
)

// DefaultDir is used when a FileStore is created without a directory.
const DefaultDir = "./output/"

// Path is the location of a saved audio file.
type Path string

// FileStore saves audio bytes to a local directory.
type FileStore struct {
	Dir string
}

func NewFileStore(dir string) *FileStore {
	if dir == "" {
		dir = DefaultDir
	}
	return &FileStore{Dir: dir}
}

// Save writes data to {dir}/{fileName}.{ext}, creating dir if needed.
func (fs *FileStore) Save(data []byte, fileName, ext string) (Path, error) {
	if fileName == "" || fileName != filepath.Base(fileName) {
		return "", fmt.Errorf("invalid file name %q", fileName)
	}
	if err := os.MkdirAll(fs.Dir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	path := filepath.Join(fs.Dir, fmt.Sprintf("%s.%s", fileName, ext))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	return Path(path), nil
}
