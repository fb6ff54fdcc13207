// Package window shows the control page in a Chrome app window.
package window

import (
	"fmt"

	"github.com/zserge/lorca"
	"go.uber.org/zap"

	"github.com/mikeyg42/sketch-detector/internal/session"
)

// Window is a lorca UI pointed at the control server
type Window struct {
	ui     lorca.UI
	sess   *session.Session
	logger *zap.Logger
}

// Open starts Chrome on url. It fails when no Chrome installation is found.
func Open(url string, width, height int, sess *session.Session, logger *zap.Logger) (*Window, error) {
	ui, err := lorca.New(url, "", width, height)
	if err != nil {
		return nil, fmt.Errorf("failed to create window: %w", err)
	}
	w := &Window{ui: ui, sess: sess, logger: logger.Named("window")}

	// Native shortcuts the page can call without a websocket round trip
	if err := ui.Bind("saveSnapshot", w.saveSnapshot); err != nil {
		ui.Close()
		return nil, fmt.Errorf("failed to bind saveSnapshot: %w", err)
	}
	if err := ui.Bind("sessionID", sess.ID); err != nil {
		ui.Close()
		return nil, fmt.Errorf("failed to bind sessionID: %w", err)
	}
	w.logger.Info("Window opened", zap.String("url", url))
	return w, nil
}

func (w *Window) saveSnapshot() (string, error) {
	a, err := w.sess.SaveSnapshot()
	if err != nil {
		return "", err
	}
	return a.Key, nil
}

// Done is closed when the user closes the window
func (w *Window) Done() <-chan struct{} { return w.ui.Done() }

// Close closes the window
func (w *Window) Close() error {
	return w.ui.Close()
}
