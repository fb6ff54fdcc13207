// Package storage persists saved recordings and snapshots.
package storage

import (
	"context"
	"fmt"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Artifact kinds
const (
	KindRecording = "recording"
	KindSnapshot  = "snapshot"
)

// Artifact describes one saved file
type Artifact struct {
	ID          string    `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	Kind        string    `db:"kind" json:"kind"`
	Key         string    `db:"storage_key" json:"key"`
	Backend     string    `db:"backend" json:"backend"`
	ContentType string    `db:"content_type" json:"content_type"`
	Size        int64     `db:"size_bytes" json:"size"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// NewArtifact fills ID, timestamps, content type and key for a file called name
func NewArtifact(kind, name, contentType string, size int64) Artifact {
	a := Artifact{
		ID:          uuid.New().String(),
		Name:        name,
		Kind:        kind,
		ContentType: contentType,
		Size:        size,
		CreatedAt:   time.Now().UTC(),
	}
	if a.ContentType == "" {
		a.ContentType = DetectContentType(name)
	}
	a.Key = ArtifactKey(a)
	return a
}

// ArtifactKey lays artifacts out as kind/yyyy/mm/dd/id-name
func ArtifactKey(a Artifact) string {
	return path.Join(a.Kind, a.CreatedAt.Format("2006/01/02"), a.ID+"-"+path.Base(a.Name))
}

// Saver is the save-bytes-as-file primitive
type Saver interface {
	// Save stores data and returns the key it was stored under
	Save(ctx context.Context, a Artifact, data []byte) (string, error)
}

// StorageError represents a storage operation error
type StorageError struct {
	Op         string
	Key        string
	Err        error
	StatusCode int
	Retryable  bool
}

func (e *StorageError) Error() string {
	if e.Key != "" {
		return e.Op + " " + e.Key + ": " + e.Err.Error()
	}
	return e.Op + ": " + e.Err.Error()
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// IsAccessDenied returns true if the error indicates access was denied
func IsAccessDenied(err error) bool {
	if serr, ok := err.(*StorageError); ok {
		return serr.StatusCode == 403
	}
	return false
}

// DetectContentType maps a file extension to a MIME type
func DetectContentType(filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".webm":
		return "video/webm"
	case ".mkv":
		return "video/x-matroska"
	case ".mp4":
		return "video/mp4"
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	default:
		return "application/octet-stream"
	}
}

func validateArtifact(a Artifact) error {
	if a.Key == "" {
		return fmt.Errorf("artifact %q has no key", a.Name)
	}
	for _, seg := range strings.Split(a.Key, "/") {
		if seg == ".." {
			return fmt.Errorf("artifact key %q escapes the store", a.Key)
		}
	}
	return nil
}
