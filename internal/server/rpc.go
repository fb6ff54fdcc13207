package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/sourcegraph/jsonrpc2"
	"go.uber.org/zap"

	"github.com/mikeyg42/sketch-detector/internal/canvas"
	"github.com/mikeyg42/sketch-detector/internal/detection"
	"github.com/mikeyg42/sketch-detector/internal/media"
	"github.com/mikeyg42/sketch-detector/internal/recording"
	"github.com/mikeyg42/sketch-detector/internal/session"
)

// CodeRejected marks a request the session refused in its current state
const CodeRejected int64 = -32000

type sizeParams struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

type styleParams struct {
	LineWidth *float64 `json:"line_width,omitempty"`
	Color     *string  `json:"color,omitempty"`
}

type uploadParams struct {
	Name string `json:"name"`
	Mime string `json:"mime"`
	Path string `json:"path"`
}

type uriParams struct {
	URI string `json:"uri"`
}

type idParams struct {
	ID string `json:"id"`
}

type ok struct {
	OK bool `json:"ok"`
}

// rpcHandler dispatches JSON-RPC requests to the session
type rpcHandler struct {
	sess   *session.Session
	logger *zap.Logger
}

func (h *rpcHandler) handle(ctx context.Context, _ *jsonrpc2.Conn, req *jsonrpc2.Request) (interface{}, error) {
	result, err := h.dispatch(ctx, req)
	if err != nil {
		h.logger.Debug("RPC failed", zap.String("method", req.Method), zap.Error(err))
		return nil, toRPCError(err)
	}
	if result == nil {
		result = ok{OK: true}
	}
	return result, nil
}

func (h *rpcHandler) dispatch(ctx context.Context, req *jsonrpc2.Request) (interface{}, error) {
	s := h.sess
	switch req.Method {
	case "session.state":
		return s.State()

	case "canvas.resize":
		var p sizeParams
		if err := decode(req, &p); err != nil {
			return nil, err
		}
		return nil, s.SetCanvasSize(p.Width, p.Height)
	case "canvas.clear":
		return nil, s.Clear()

	case "style.set":
		var p styleParams
		if err := decode(req, &p); err != nil {
			return nil, err
		}
		if p.Color != nil {
			if err := s.SetColor(*p.Color); err != nil {
				return nil, err
			}
		}
		if p.LineWidth != nil {
			if err := s.SetLineWidth(*p.LineWidth); err != nil {
				return nil, err
			}
		}
		return nil, nil

	case "draw.begin", "draw.to":
		var p canvas.Point
		if err := decode(req, &p); err != nil {
			return nil, err
		}
		if req.Method == "draw.begin" {
			return nil, s.BeginStroke(p)
		}
		return nil, s.StrokeTo(p)
	case "draw.end":
		return nil, s.EndStroke()

	case "detect.thresholds":
		var p detection.Thresholds
		if err := decode(req, &p); err != nil {
			return nil, err
		}
		return nil, s.SetThresholds(p)

	case "media.upload":
		var p uploadParams
		if err := decode(req, &p); err != nil {
			return nil, err
		}
		return nil, s.Upload(ctx, p.Name, p.Mime, p.Path)
	case "media.image", "media.video", "media.example":
		var p uriParams
		if err := decode(req, &p); err != nil {
			return nil, err
		}
		switch req.Method {
		case "media.image":
			return nil, s.LoadImage(ctx, p.URI)
		case "media.video":
			return nil, s.LoadVideo(ctx, p.URI)
		}
		id, err := s.AddExampleVideo(ctx, p.URI)
		if err != nil {
			return nil, err
		}
		return idParams{ID: id}, nil
	case "media.activate":
		var p idParams
		if err := decode(req, &p); err != nil {
			return nil, err
		}
		return nil, s.ActivateVideo(p.ID)

	case "snapshot.save":
		return s.SaveSnapshot()

	case "record.start":
		return nil, s.StartRecording()
	case "record.pause":
		return nil, s.PauseRecording()
	case "record.resume":
		return nil, s.ResumeRecording()
	case "record.save":
		return nil, s.SaveRecording()
	case "record.quit":
		return nil, s.QuitRecording()
	}

	return nil, &jsonrpc2.Error{
		Code:    jsonrpc2.CodeMethodNotFound,
		Message: fmt.Sprintf("method not found: %s", req.Method),
	}
}

func decode(req *jsonrpc2.Request, v interface{}) error {
	if req.Params == nil || string(*req.Params) == "null" {
		return &jsonrpc2.Error{Code: jsonrpc2.CodeInvalidParams, Message: "missing params"}
	}
	if err := json.Unmarshal(*req.Params, v); err != nil {
		return &jsonrpc2.Error{Code: jsonrpc2.CodeInvalidParams, Message: err.Error()}
	}
	return nil
}

func toRPCError(err error) error {
	var rpcErr *jsonrpc2.Error
	if errors.As(err, &rpcErr) {
		return rpcErr
	}
	switch {
	case errors.Is(err, recording.ErrInvalidTransition),
		errors.Is(err, session.ErrVideoPlaying),
		errors.Is(err, session.ErrNoStroke),
		errors.Is(err, session.ErrClosed),
		errors.Is(err, media.ErrNotLoaded),
		errors.Is(err, media.ErrSuperseded):
		return &jsonrpc2.Error{Code: CodeRejected, Message: err.Error()}
	case errors.Is(err, session.ErrInvalidColor),
		errors.Is(err, media.ErrUnknownVideo),
		errors.Is(err, media.ErrUnsupportedMedia),
		errors.Is(err, session.ErrForbiddenSource):
		return &jsonrpc2.Error{Code: jsonrpc2.CodeInvalidParams, Message: err.Error()}
	}
	return &jsonrpc2.Error{Code: jsonrpc2.CodeInternalError, Message: err.Error()}
}
