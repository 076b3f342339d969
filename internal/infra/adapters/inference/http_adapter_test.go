package inference

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"blueprint-room-pipeline/internal/backoff"
	"blueprint-room-pipeline/internal/config"
	"blueprint-room-pipeline/internal/domain"
	"blueprint-room-pipeline/internal/domain/ports/adapter"
)

func newTestAdapter(t *testing.T, url string) *HTTPAdapter {
	t.Helper()
	log := zerolog.Nop()
	cfg := &config.InferenceConfig{
		Preview: config.EndpointConfig{
			ID:           "preview",
			URL:          url,
			ModelVersion: "1.0.0",
			Timeout:      2 * time.Second,
		},
	}
	policy := backoff.Policy{MaxAttempts: 3, Base: time.Millisecond, Max: 4 * time.Millisecond}
	return NewHTTPAdapter(cfg, policy, &log)
}

func TestInvokeParsesDetections(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Model-Version") != "1.0.0" {
			t.Errorf("missing model version header")
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"detections": [
				{"bbox": [10, 20, 110, 220], "confidence": 0.92, "name_hint": "kitchen"}
			],
			"text_blocks": [{"text": "KITCHEN", "x": 60, "y": 120}]
		}`))
	}))
	defer srv.Close()

	a := newTestAdapter(t, srv.URL)
	res, err := a.Invoke(context.Background(), "preview", &adapter.ModelInput{JobID: "j1"}, "")
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if len(res.Detections) != 1 || res.Detections[0].Confidence != 0.92 {
		t.Fatalf("unexpected detections: %+v", res.Detections)
	}
	if len(res.TextBlocks) != 1 || res.TextBlocks[0].Text != "KITCHEN" {
		t.Fatalf("unexpected text blocks: %+v", res.TextBlocks)
	}
}

func TestInvokeRetriesTransientErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"detections": [], "text_blocks": []}`))
	}))
	defer srv.Close()

	a := newTestAdapter(t, srv.URL)
	if _, err := a.Invoke(context.Background(), "preview", &adapter.ModelInput{JobID: "j1"}, ""); err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Fatalf("expected 3 calls, got %d", got)
	}
}

func TestInvokeDoesNotRetryBadRequest(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	a := newTestAdapter(t, srv.URL)
	_, err := a.Invoke(context.Background(), "preview", &adapter.ModelInput{JobID: "j1"}, "")
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("expected single call, got %d", got)
	}
}

func TestInvokeModelErrorPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"detections": [], "error": "weights not loaded"}`))
	}))
	defer srv.Close()

	a := newTestAdapter(t, srv.URL)
	_, err := a.Invoke(context.Background(), "preview", &adapter.ModelInput{JobID: "j1"}, "")
	if !errors.Is(err, domain.ErrModelError) {
		t.Fatalf("expected ErrModelError, got %v", err)
	}
}

func TestInvokeUnknownEndpoint(t *testing.T) {
	a := newTestAdapter(t, "http://127.0.0.1:0")
	_, err := a.Invoke(context.Background(), "no-such-endpoint", &adapter.ModelInput{JobID: "j1"}, "")
	if !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
}
