package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

// FileSaver writes artifacts under a local directory
type FileSaver struct {
	dir    string
	logger *zap.Logger
}

// NewFileSaver creates dir if needed
func NewFileSaver(dir string) (*FileSaver, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory %s: %w", dir, err)
	}
	return &FileSaver{dir: dir, logger: zap.L().Named("file-store")}, nil
}

// Save writes data atomically through a temp file and rename
func (s *FileSaver) Save(ctx context.Context, a Artifact, data []byte) (string, error) {
	if err := validateArtifact(a); err != nil {
		return "", &StorageError{Op: "save", Key: a.Key, Err: err}
	}
	if err := ctx.Err(); err != nil {
		return "", &StorageError{Op: "save", Key: a.Key, Err: err}
	}

	target := filepath.Join(s.dir, filepath.FromSlash(a.Key))
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return "", &StorageError{Op: "save", Key: a.Key, Err: err}
	}

	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		os.Remove(tmp)
		return "", &StorageError{Op: "save", Key: a.Key, Err: err}
	}
	if err := os.Rename(tmp, target); err != nil {
		os.Remove(tmp)
		return "", &StorageError{Op: "save", Key: a.Key, Err: err}
	}

	s.logger.Info("Artifact saved",
		zap.String("key", a.Key),
		zap.String("path", target),
		zap.Int("size", len(data)))
	return a.Key, nil
}

// Path returns the filesystem path for key
func (s *FileSaver) Path(key string) string {
	return filepath.Join(s.dir, filepath.FromSlash(key))
}
