package detection

import (
	"context"
	"encoding/json"
	"image"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

func TestHTTPDetectorDecodesResult(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) == 1 {
			http.Error(w, "warming up", http.StatusServiceUnavailable)
			return
		}
		if ct := r.Header.Get("Content-Type"); ct != "image/png" {
			t.Errorf("Expected image/png, got %q", ct)
		}
		q := r.URL.Query()
		if q.Get("score") != "0.3" || q.Get("iou") != "0.45" || q.Get("shape") != "1,3,640,640" {
			t.Errorf("Unexpected query: %v", q)
		}
		body, _ := io.ReadAll(r.Body)
		if string(body) != "png-bytes" {
			t.Errorf("Unexpected body %q", body)
		}
		json.NewEncoder(w).Encode(Result{
			Boxes:    []BoundingBox{{X: 10, Y: 20, W: 30, H: 40, ClassID: 2, Score: 0.8}},
			TimingMs: 7,
		})
	}))
	defer srv.Close()

	d, err := NewHTTPDetector(srv.URL+"/detect", 3, srv.Client(), nil)
	if err != nil {
		t.Fatalf("NewHTTPDetector failed: %v", err)
	}

	snap := Snapshot{Seq: 1, Image: image.NewRGBA(image.Rect(0, 0, 1, 1)), PNG: []byte("png-bytes")}
	res, err := d.Detect(context.Background(), snap, Thresholds{IoU: 0.45, Score: 0.3, MaxBoxesPerClass: 100}, InputShape{1, 3, 640, 640})
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}

	if attempts.Load() != 2 {
		t.Fatalf("Expected a retry after 503, got %d attempts", attempts.Load())
	}
	if len(res.Boxes) != 1 || res.Boxes[0].ClassID != 2 || res.TimingMs != 7 {
		t.Fatalf("Unexpected result: %+v", res)
	}
}

func TestHTTPDetectorClientErrorIsPermanent(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		http.Error(w, "bad image", http.StatusBadRequest)
	}))
	defer srv.Close()

	d, err := NewHTTPDetector(srv.URL, 5, srv.Client(), nil)
	if err != nil {
		t.Fatalf("NewHTTPDetector failed: %v", err)
	}

	if _, err := d.Detect(context.Background(), Snapshot{PNG: []byte("x")}, Thresholds{}, InputShape{}); err == nil {
		t.Fatal("Expected error for 400 response")
	}
	if attempts.Load() != 1 {
		t.Fatalf("Expected no retries for a client error, got %d attempts", attempts.Load())
	}
}

func TestNewHTTPDetectorRejectsBadEndpoint(t *testing.T) {
	if _, err := NewHTTPDetector("not a url", 0, nil, nil); err == nil {
		t.Fatal("Expected error for invalid endpoint")
	}
}
