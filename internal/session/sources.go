package session

import (
	"fmt"
	"net/url"
	"path/filepath"
	"slices"
	"strings"

	"github.com/mikeyg42/sketch-detector/internal/media"
)

// checkSource admits the configured example media and local files inside the
// upload directory. Remote URLs and other server paths are refused.
func (s *Session) checkSource(uri string) error {
	if slices.Contains(s.cfg.Examples.Videos, uri) || slices.Contains(s.cfg.Examples.Images, uri) {
		return nil
	}
	if u, err := url.Parse(uri); err == nil && u.Scheme != "" && u.Scheme != "file" {
		return fmt.Errorf("%w: %s", ErrForbiddenSource, uri)
	}
	if s.cfg.Server.UploadDir == "" {
		return fmt.Errorf("%w: no upload directory configured", ErrForbiddenSource)
	}

	path, err := media.LocalPath(uri)
	if err != nil {
		return err
	}
	dir, err := filepath.Abs(s.cfg.Server.UploadDir)
	if err != nil {
		return fmt.Errorf("failed to resolve upload directory: %w", err)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve %s: %w", uri, err)
	}

	rel, err := filepath.Rel(dir, abs)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return fmt.Errorf("%w: %s is outside %s", ErrForbiddenSource, uri, s.cfg.Server.UploadDir)
	}
	return nil
}
