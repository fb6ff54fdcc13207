package config

import (
	"fmt"
	"os"
	"regexp"
)

var hexColor = regexp.MustCompile(`^#(?:[0-9a-fA-F]{3}|[0-9a-fA-F]{6})$`)

// ValidateConfig checks the configuration and creates the local directories it needs
func ValidateConfig(cfg *Config) error {
	if cfg.Server.ListenAddr == "" {
		return fmt.Errorf("server.listen_addr is required")
	}

	// Canvas
	if cfg.Canvas.Width <= 0 || cfg.Canvas.Height <= 0 {
		return fmt.Errorf("invalid canvas dimensions: %dx%d", cfg.Canvas.Width, cfg.Canvas.Height)
	}
	if cfg.Canvas.MinLineWidth <= 0 || cfg.Canvas.MaxLineWidth < cfg.Canvas.MinLineWidth {
		return fmt.Errorf("invalid line width bounds: [%g, %g]", cfg.Canvas.MinLineWidth, cfg.Canvas.MaxLineWidth)
	}
	if cfg.Canvas.LineWidth < cfg.Canvas.MinLineWidth || cfg.Canvas.LineWidth > cfg.Canvas.MaxLineWidth {
		return fmt.Errorf("canvas.line_width %g outside [%g, %g]", cfg.Canvas.LineWidth, cfg.Canvas.MinLineWidth, cfg.Canvas.MaxLineWidth)
	}
	if !hexColor.MatchString(cfg.Canvas.Color) {
		return fmt.Errorf("canvas.color %q is not a hex color", cfg.Canvas.Color)
	}

	// Viewport
	if cfg.Viewport.Width <= 0 || cfg.Viewport.Height <= 0 {
		return fmt.Errorf("invalid viewport dimensions: %dx%d", cfg.Viewport.Width, cfg.Viewport.Height)
	}
	if cfg.Viewport.VideoWidthFraction <= 0 || cfg.Viewport.VideoWidthFraction > 1 {
		return fmt.Errorf("viewport.video_width_fraction must be in (0, 1]")
	}

	// Detection
	if cfg.Detection.IoUThreshold < 0 || cfg.Detection.IoUThreshold > 1 {
		return fmt.Errorf("detection.iou_threshold must be in [0, 1]")
	}
	if cfg.Detection.Score < 0 || cfg.Detection.Score > 1 {
		return fmt.Errorf("detection.score_threshold must be in [0, 1]")
	}
	if cfg.Detection.MaxBoxes <= 0 {
		return fmt.Errorf("detection.max_boxes_per_class must be positive")
	}

	// Recording
	if cfg.Recording.FrameRate <= 0 {
		return fmt.Errorf("invalid recording frame rate: %d", cfg.Recording.FrameRate)
	}
	if cfg.Recording.JPEGQuality < 1 || cfg.Recording.JPEGQuality > 100 {
		return fmt.Errorf("recording.jpeg_quality must be in [1, 100]")
	}
	if cfg.Recording.FileName == "" || cfg.Recording.SnapshotName == "" {
		return fmt.Errorf("recording.file_name and recording.snapshot_name are required")
	}

	// Storage
	switch cfg.Storage.Type {
	case "file", "":
		if cfg.Storage.Dir == "" {
			return fmt.Errorf("storage.dir is required when using file storage")
		}
		if err := os.MkdirAll(cfg.Storage.Dir, 0755); err != nil {
			return fmt.Errorf("failed to create storage directory %s: %w", cfg.Storage.Dir, err)
		}
	case "minio":
		if cfg.Storage.MinIO.Endpoint == "" {
			return fmt.Errorf("storage.minio.endpoint is required when using MinIO")
		}
		if cfg.Storage.MinIO.Bucket == "" {
			return fmt.Errorf("storage.minio.bucket is required when using MinIO")
		}
	default:
		return fmt.Errorf("unknown storage type %q", cfg.Storage.Type)
	}
	if cfg.Storage.Postgres.Host != "" && cfg.Storage.Postgres.Database == "" {
		return fmt.Errorf("storage.postgres.database is required when the catalog is enabled")
	}

	if err := validateDurations(cfg); err != nil {
		return err
	}

	if cfg.Server.UploadDir != "" {
		if err := os.MkdirAll(cfg.Server.UploadDir, 0755); err != nil {
			return fmt.Errorf("failed to create upload directory %s: %w", cfg.Server.UploadDir, err)
		}
	}

	return nil
}

// GetDatabaseDSN returns the PostgreSQL connection string, or "" when the catalog is disabled
func GetDatabaseDSN(cfg *Config) string {
	pg := cfg.Storage.Postgres
	if pg.Host == "" {
		return ""
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		pg.Username,
		pg.Password,
		pg.Host,
		pg.Port,
		pg.Database,
		pg.SSLMode,
	)
}

func validateDurations(cfg *Config) error {
	durations := []struct {
		name string
		d    Duration
	}{
		{"server.read_timeout", cfg.Server.ReadTimeout},
		{"server.write_timeout", cfg.Server.WriteTimeout},
		{"server.shutdown_timeout", cfg.Server.ShutdownTimeout},
		{"detection.timeout", cfg.Detection.Timeout},
		{"recording.timeslice", cfg.Recording.Timeslice},
		{"recording.save_timeout", cfg.Recording.SaveTimeout},
		{"storage.minio.request_timeout", cfg.Storage.MinIO.RequestTimeout},
		{"storage.postgres.conn_max_lifetime", cfg.Storage.Postgres.ConnMaxLifetime},
	}
	for _, d := range durations {
		if d.d.Duration <= 0 {
			return fmt.Errorf("%s must be positive, got %v", d.name, d.d.Duration)
		}
	}
	return nil
}
