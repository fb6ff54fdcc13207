package detection

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

// HTTPDetector posts PNG snapshots to a remote inference endpoint.
// The endpoint replies with a JSON Result.
type HTTPDetector struct {
	endpoint   string
	client     *http.Client
	maxRetries uint64
	logger     *zap.Logger
}

// NewHTTPDetector creates a detector for endpoint
func NewHTTPDetector(endpoint string, maxRetries uint64, client *http.Client, logger *zap.Logger) (*HTTPDetector, error) {
	if _, err := url.ParseRequestURI(endpoint); err != nil {
		return nil, fmt.Errorf("invalid detector endpoint %q: %w", endpoint, err)
	}
	if client == nil {
		client = &http.Client{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPDetector{
		endpoint:   endpoint,
		client:     client,
		maxRetries: maxRetries,
		logger:     logger.Named("http-detector"),
	}, nil
}

// Detect implements Detector
func (d *HTTPDetector) Detect(ctx context.Context, snap Snapshot, th Thresholds, shape InputShape) (Result, error) {
	u, err := url.Parse(d.endpoint)
	if err != nil {
		return Result{}, err
	}
	q := u.Query()
	q.Set("iou", strconv.FormatFloat(th.IoU, 'f', -1, 64))
	q.Set("score", strconv.FormatFloat(th.Score, 'f', -1, 64))
	q.Set("max_boxes", strconv.Itoa(th.MaxBoxesPerClass))
	q.Set("shape", fmt.Sprintf("%d,%d,%d,%d", shape[0], shape[1], shape[2], shape[3]))
	u.RawQuery = q.Encode()

	var res Result
	start := time.Now()
	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(snap.PNG))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "image/png")

		resp, err := d.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			err := fmt.Errorf("detector returned %d: %s", resp.StatusCode, bytes.TrimSpace(body))
			if resp.StatusCode >= 400 && resp.StatusCode < 500 {
				return backoff.Permanent(err)
			}
			return err
		}

		res = Result{}
		if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
			return backoff.Permanent(fmt.Errorf("invalid detector response: %w", err))
		}
		return nil
	}

	ebo := backoff.NewExponentialBackOff()
	ebo.InitialInterval = 50 * time.Millisecond
	ebo.Reset()
	if err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(ebo, d.maxRetries), ctx)); err != nil {
		return Result{}, err
	}

	if res.TimingMs <= 0 {
		res.TimingMs = float64(time.Since(start).Microseconds()) / 1000
	}
	d.logger.Debug("Detection complete",
		zap.Uint64("seq", snap.Seq),
		zap.Int("boxes", len(res.Boxes)),
		zap.Float64("timing_ms", res.TimingMs))
	return res, nil
}
