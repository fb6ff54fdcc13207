package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/mikeyg42/sketch-detector/internal/config"
	"github.com/mikeyg42/sketch-detector/internal/detection"
	"github.com/mikeyg42/sketch-detector/internal/logging"
	"github.com/mikeyg42/sketch-detector/internal/media/gocvsource"
	"github.com/mikeyg42/sketch-detector/internal/render"
	"github.com/mikeyg42/sketch-detector/internal/server"
	"github.com/mikeyg42/sketch-detector/internal/session"
	"github.com/mikeyg42/sketch-detector/internal/storage"
	"github.com/mikeyg42/sketch-detector/internal/window"
)

// Application holds all components
type Application struct {
	config  *config.Config
	logger  *zap.Logger
	catalog *storage.Catalog
	session *session.Session
	server  *server.Server
	window  *window.Window
}

func main() {
	configPath := flag.String("config", "", "JSON config file")
	addr := flag.String("addr", "", "listen address (overrides config)")
	endpoint := flag.String("detector", "", "detection endpoint URL (overrides config)")
	storageType := flag.String("storage", "", "storage backend: file or minio (overrides config)")
	showWindow := flag.Bool("window", false, "open the control page in a Chrome window")
	logLevel := flag.String("log-level", "", "log level (overrides config)")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *addr != "" {
		cfg.Server.ListenAddr = *addr
	}
	if *endpoint != "" {
		cfg.Detection.Endpoint = *endpoint
	}
	if *storageType != "" {
		cfg.Storage.Type = *storageType
	}
	if *showWindow {
		cfg.Window.Enabled = true
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}
	if err := config.ValidateConfig(cfg); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := NewApplication(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to create application", zap.Error(err))
	}
	defer app.Cleanup()

	if err := app.Run(ctx); err != nil {
		logger.Error("Application stopped with error", zap.Error(err))
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.NewDefaultConfig(), nil
	}
	return config.LoadFile(path)
}

// NewApplication wires storage, detection, the session and the control server
func NewApplication(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Application, error) {
	app := &Application{config: cfg, logger: logger}

	saver, err := app.newSaver(ctx)
	if err != nil {
		app.Cleanup()
		return nil, err
	}

	detector, err := newDetector(cfg.Detection, logger)
	if err != nil {
		app.Cleanup()
		return nil, err
	}

	labels := detection.CocoLabels
	if cfg.Detection.LabelsFile != "" {
		if labels, err = detection.LoadLabels(cfg.Detection.LabelsFile); err != nil {
			app.Cleanup()
			return nil, fmt.Errorf("failed to load labels: %w", err)
		}
	}

	app.session, err = session.New(session.Options{
		Config:    cfg,
		Detector:  detector,
		Renderer:  render.NewAnnotator(),
		Labels:    labels,
		OpenVideo: gocvsource.Open,
		Saver:     saver,
		Logger:    logger,
	})
	if err != nil {
		app.Cleanup()
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	app.server = server.New(cfg.Server, app.session, logger)
	if app.catalog != nil {
		app.server.SetArtifacts(app.catalog)
	}
	return app, nil
}

func (app *Application) newSaver(ctx context.Context) (storage.Saver, error) {
	cfg := app.config.Storage

	var saver storage.Saver
	switch cfg.Type {
	case "minio":
		s, err := storage.NewMinIOSaver(ctx, cfg.MinIO)
		if err != nil {
			return nil, fmt.Errorf("failed to create MinIO storage: %w", err)
		}
		saver = s
	default:
		s, err := storage.NewFileSaver(cfg.Dir)
		if err != nil {
			return nil, err
		}
		saver = s
	}

	dsn := config.GetDatabaseDSN(app.config)
	if dsn == "" {
		return saver, nil
	}
	catalog, err := storage.NewCatalog(ctx, dsn, cfg.Postgres)
	if err != nil {
		return nil, fmt.Errorf("failed to open artifact catalog: %w", err)
	}
	app.catalog = catalog
	return &storage.CatalogSaver{
		Saver:    saver,
		Recorder: catalog,
		Backend:  cfg.Type,
		Logger:   app.logger.Named("catalog"),
	}, nil
}

func newDetector(cfg config.DetectionConfig, logger *zap.Logger) (detection.Detector, error) {
	if cfg.Endpoint == "" {
		logger.Warn("No detection endpoint configured; boxes will never be drawn")
		return detection.NopDetector{}, nil
	}
	d, err := detection.NewHTTPDetector(cfg.Endpoint, cfg.MaxRetries, &http.Client{Timeout: cfg.Timeout.Duration}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create detector: %w", err)
	}
	return d, nil
}

// Run serves until ctx is cancelled or the window is closed
func (app *Application) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := app.server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	app.loadExamples(ctx)

	var windowDone <-chan struct{}
	if app.config.Window.Enabled {
		w, err := window.Open("http://"+app.config.Server.ListenAddr, app.config.Window.Width, app.config.Window.Height, app.session, app.logger)
		if err != nil {
			app.logger.Warn("Failed to open window; continuing headless", zap.Error(err))
		} else {
			app.window = w
			windowDone = w.Done()
		}
	}

	select {
	case <-ctx.Done():
		app.logger.Info("Shutdown signal received")
	case <-windowDone:
		app.logger.Info("Window closed")
	case err := <-errCh:
		return fmt.Errorf("control server failed: %w", err)
	}
	return nil
}

// loadExamples registers the configured example videos and the first example image
func (app *Application) loadExamples(ctx context.Context) {
	for _, uri := range app.config.Examples.Videos {
		loadCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		id, err := app.session.AddExampleVideo(loadCtx, uri)
		cancel()
		if err != nil {
			app.logger.Warn("Example video unavailable", zap.String("uri", uri), zap.Error(err))
			continue
		}
		app.logger.Info("Example video ready", zap.String("uri", uri), zap.String("id", id))
	}
	if len(app.config.Examples.Images) > 0 {
		uri := app.config.Examples.Images[0]
		if err := app.session.LoadImage(ctx, uri); err != nil {
			app.logger.Warn("Example image unavailable", zap.String("uri", uri), zap.Error(err))
		}
	}
}

// Cleanup shuts everything down in reverse order
func (app *Application) Cleanup() {
	if app.window != nil {
		app.window.Close()
	}
	if app.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), app.server.ShutdownTimeout())
		if err := app.server.Shutdown(ctx); err != nil {
			app.logger.Warn("Control server shutdown failed", zap.Error(err))
		}
		cancel()
	}
	if app.session != nil {
		if err := app.session.Close(); err != nil {
			app.logger.Warn("Session close failed", zap.Error(err))
		}
	}
	if app.catalog != nil {
		app.catalog.Close()
	}
}
