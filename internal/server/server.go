// Package server exposes a session over HTTP and a JSON-RPC websocket.
package server

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sourcegraph/jsonrpc2"
	jsonrpc2ws "github.com/sourcegraph/jsonrpc2/websocket"
	"go.uber.org/zap"

	"github.com/mikeyg42/sketch-detector/internal/config"
	"github.com/mikeyg42/sketch-detector/internal/session"
	"github.com/mikeyg42/sketch-detector/internal/storage"
)

//go:embed static/index.html
var static embed.FS

// Server serves the control API for one session
type Server struct {
	cfg        config.ServerConfig
	sess       *session.Session
	logger     *zap.Logger
	httpServer *http.Server
	limiter    *RateLimiter
	upgrader   websocket.Upgrader

	mu        sync.Mutex
	conns     map[*jsonrpc2.Conn]struct{}
	artifacts ArtifactLister
}

// ArtifactLister lists saved artifacts, newest first
type ArtifactLister interface {
	List(ctx context.Context, kind string, limit int) ([]storage.Artifact, error)
}

// New creates a server for sess
func New(cfg config.ServerConfig, sess *session.Session, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		cfg:     cfg,
		sess:    sess,
		logger:  logger.Named("server"),
		limiter: NewRateLimiter(cfg.RateLimit, cfg.RateBurst),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     sameHost,
		},
		conns: make(map[*jsonrpc2.Conn]struct{}),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.limiter.Middleware(s.handleWS))
	mux.HandleFunc("/api/health", s.handleHealth)
	mux.HandleFunc("/api/overlay.png", s.handleOverlay)
	mux.HandleFunc("/api/upload", s.handleUpload)
	mux.HandleFunc("/api/artifacts", s.handleArtifacts)
	mux.HandleFunc("/", s.handleIndex)

	s.httpServer = &http.Server{
		Addr:           cfg.ListenAddr,
		Handler:        mux,
		ReadTimeout:    cfg.ReadTimeout.Duration,
		WriteTimeout:   cfg.WriteTimeout.Duration,
		MaxHeaderBytes: 1 << 20,
	}
	return s
}

// Handler returns the root handler
func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

// sameHost accepts upgrades from pages served by this server or without an Origin
func sameHost(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	return origin == "http://"+r.Host || origin == "https://"+r.Host
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok", "session": s.sess.ID()})
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	page, err := static.ReadFile("static/index.html")
	if err != nil {
		http.Error(w, "index unavailable", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(page)
}

// SetArtifacts enables GET /api/artifacts
func (s *Server) SetArtifacts(l ArtifactLister) {
	s.mu.Lock()
	s.artifacts = l
	s.mu.Unlock()
}

func (s *Server) handleArtifacts(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	l := s.artifacts
	s.mu.Unlock()
	if l == nil {
		http.Error(w, "artifact catalog disabled", http.StatusNotFound)
		return
	}
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit <= 0 {
		limit = 50
	}
	list, err := l.List(r.Context(), r.URL.Query().Get("kind"), limit)
	if err != nil {
		s.logger.Warn("Failed to list artifacts", zap.Error(err))
		http.Error(w, "failed to list artifacts", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(list)
}

func (s *Server) handleOverlay(w http.ResponseWriter, r *http.Request) {
	data, err := s.sess.OverlayPNG()
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.Write(data)
}

// handleUpload stores a multipart file in the upload directory and loads it
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadSize)
	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, fmt.Sprintf("invalid upload: %v", err), http.StatusBadRequest)
		return
	}
	defer file.Close()

	if err := os.MkdirAll(s.cfg.UploadDir, 0755); err != nil {
		http.Error(w, "upload directory unavailable", http.StatusInternalServerError)
		return
	}
	name := filepath.Base(header.Filename)
	path := filepath.Join(s.cfg.UploadDir, uuid.New().String()+filepath.Ext(name))
	out, err := os.Create(path)
	if err != nil {
		http.Error(w, "failed to store upload", http.StatusInternalServerError)
		return
	}
	_, err = io.Copy(out, file)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
		http.Error(w, "failed to store upload", http.StatusInternalServerError)
		return
	}

	mime := header.Header.Get("Content-Type")
	s.logger.Info("Upload received",
		zap.String("name", name),
		zap.String("mime", mime),
		zap.Int64("size", header.Size))

	if err := s.sess.Upload(r.Context(), name, mime, path); err != nil {
		status := http.StatusUnprocessableEntity
		if errors.Is(err, context.Canceled) {
			status = http.StatusRequestTimeout
		}
		http.Error(w, err.Error(), status)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"path": path})
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("Websocket upgrade failed", zap.Error(err))
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	h := &rpcHandler{sess: s.sess, logger: s.logger}
	conn := jsonrpc2.NewConn(ctx, jsonrpc2ws.NewObjectStream(ws),
		jsonrpc2.HandlerWithError(h.handle))

	s.mu.Lock()
	s.conns[conn] = struct{}{}
	s.mu.Unlock()
	s.logger.Info("Client connected", zap.String("remote", r.RemoteAddr))

	frames := newMailbox()
	unsubscribe := s.sess.SubscribeOverlay(frames.put)
	go s.pushOverlay(ctx, conn, frames)

	go func() {
		<-conn.DisconnectNotify()
		unsubscribe()
		cancel()
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		s.logger.Info("Client disconnected", zap.String("remote", r.RemoteAddr))
	}()
}

type overlayParams struct {
	Width  int    `json:"width"`
	Height int    `json:"height"`
	PNG    []byte `json:"png"`
}

// pushOverlay notifies the client of the latest overlay, skipping frames it
// could not keep up with
func (s *Server) pushOverlay(ctx context.Context, conn *jsonrpc2.Conn, frames *mailbox) {
	for {
		img, ok := frames.take(ctx)
		if !ok {
			return
		}
		data, err := encodePNG(img)
		if err != nil {
			s.logger.Warn("Failed to encode overlay", zap.Error(err))
			continue
		}
		b := img.Bounds()
		params := overlayParams{Width: b.Dx(), Height: b.Dy(), PNG: data}
		if err := conn.Notify(ctx, "overlay", params); err != nil {
			if !errors.Is(err, jsonrpc2.ErrClosed) && ctx.Err() == nil {
				s.logger.Debug("Overlay notify failed", zap.Error(err))
			}
			return
		}
	}
}

// Start listens and serves until Shutdown
func (s *Server) Start() error {
	s.logger.Info("Starting control server", zap.String("addr", s.httpServer.Addr))
	return s.httpServer.ListenAndServe()
}

// Shutdown closes client connections and stops the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down control server")
	s.mu.Lock()
	for conn := range s.conns {
		conn.Close()
	}
	s.mu.Unlock()
	s.limiter.Close()
	return s.httpServer.Shutdown(ctx)
}

// mailbox holds at most one pending frame; put overwrites
type mailbox struct {
	ch chan *image.RGBA
}

func newMailbox() *mailbox {
	return &mailbox{ch: make(chan *image.RGBA, 1)}
}

func (m *mailbox) put(img *image.RGBA) {
	for {
		select {
		case m.ch <- img:
			return
		default:
		}
		select {
		case <-m.ch:
		default:
		}
	}
}

func (m *mailbox) take(ctx context.Context) (*image.RGBA, bool) {
	select {
	case img := <-m.ch:
		return img, true
	case <-ctx.Done():
		return nil, false
	}
}

// ShutdownTimeout returns the configured grace period
func (s *Server) ShutdownTimeout() time.Duration {
	if s.cfg.ShutdownTimeout.Duration <= 0 {
		return 10 * time.Second
	}
	return s.cfg.ShutdownTimeout.Duration
}
