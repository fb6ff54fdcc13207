package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // PostgreSQL driver
	"go.uber.org/zap"

	"github.com/mikeyg42/sketch-detector/internal/config"
)

// Recorder records saved artifacts
type Recorder interface {
	Record(ctx context.Context, a Artifact) error
}

// Catalog keeps a PostgreSQL index of every saved artifact
type Catalog struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// NewCatalog opens the database and creates the schema
func NewCatalog(ctx context.Context, dsn string, cfg config.PostgresConfig) (*Catalog, error) {
	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if cfg.MaxConnections > 0 {
		db.SetMaxOpenConns(cfg.MaxConnections)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime.Duration > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime.Duration)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	c := &Catalog{db: db, logger: zap.L().Named("catalog")}
	if err := c.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return c, nil
}

func (c *Catalog) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS artifacts (
		id           TEXT PRIMARY KEY,
		name         TEXT NOT NULL,
		kind         TEXT NOT NULL,
		storage_key  TEXT NOT NULL,
		backend      TEXT NOT NULL,
		content_type TEXT NOT NULL,
		size_bytes   BIGINT NOT NULL,
		created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_artifacts_kind_created ON artifacts(kind, created_at DESC);
	`
	_, err := c.db.ExecContext(ctx, schema)
	return err
}

// Record inserts a row for a
func (c *Catalog) Record(ctx context.Context, a Artifact) error {
	query := `
		INSERT INTO artifacts (id, name, kind, storage_key, backend, content_type, size_bytes, created_at)
		VALUES (:id, :name, :kind, :storage_key, :backend, :content_type, :size_bytes, :created_at)`
	if _, err := c.db.NamedExecContext(ctx, query, a); err != nil {
		return fmt.Errorf("failed to record artifact %s: %w", a.ID, err)
	}
	c.logger.Debug("Artifact recorded", zap.String("id", a.ID), zap.String("key", a.Key))
	return nil
}

// List returns the newest artifacts of kind, or of every kind when kind is empty
func (c *Catalog) List(ctx context.Context, kind string, limit int) ([]Artifact, error) {
	if limit <= 0 {
		limit = 50
	}
	var out []Artifact
	var err error
	if kind == "" {
		err = c.db.SelectContext(ctx, &out,
			`SELECT * FROM artifacts ORDER BY created_at DESC LIMIT $1`, limit)
	} else {
		err = c.db.SelectContext(ctx, &out,
			`SELECT * FROM artifacts WHERE kind = $1 ORDER BY created_at DESC LIMIT $2`, kind, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list artifacts: %w", err)
	}
	return out, nil
}

// Close closes the database
func (c *Catalog) Close() error {
	return c.db.Close()
}

// CatalogSaver records every successful save in a Recorder
type CatalogSaver struct {
	Saver    Saver
	Recorder Recorder
	Backend  string
	Logger   *zap.Logger
}

// Save stores data, then records it. A failed record is logged and does not fail the save.
func (s *CatalogSaver) Save(ctx context.Context, a Artifact, data []byte) (string, error) {
	key, err := s.Saver.Save(ctx, a, data)
	if err != nil {
		return "", err
	}
	a.Key = key
	a.Backend = s.Backend
	a.Size = int64(len(data))
	if err := s.Recorder.Record(ctx, a); err != nil && s.Logger != nil {
		s.Logger.Warn("Failed to catalog artifact", zap.String("key", key), zap.Error(err))
	}
	return key, nil
}
