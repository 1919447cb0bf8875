package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"
	"time"

	"github.com/cjeanneret/canoncap/internal/hw/camera"
)

// ---------- ValidateOverrides ----------

func TestValidateOverrides(t *testing.T) {
	cases := []struct {
		name    string
		o       Overrides
		wantErr bool
	}{
		{"single", Overrides{1, 0}, false},
		{"burst", Overrides{5, 0}, false},
		{"timelapse", Overrides{10, 30000}, false},
		{"max_boundary", Overrides{MaxShots, MaxIntervalMs}, false},
		{"zero_shots", Overrides{0, 0}, true},
		{"negative_shots", Overrides{-1, 0}, true},
		{"too_many_shots", Overrides{MaxShots + 1, 0}, true},
		{"negative_interval", Overrides{1, -1}, true},
		{"interval_too_long", Overrides{1, MaxIntervalMs + 1}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateOverrides(tc.o)
			if (err != nil) != tc.wantErr {
				t.Errorf("ValidateOverrides(%+v) = %v, wantErr %v", tc.o, err, tc.wantErr)
			}
		})
	}
}

// ---------- Handler helpers ----------

func newTestHandlers(runCapture RunCaptureFunc) *Handlers {
	staticFS := fstest.MapFS{
		"index.html": &fstest.MapFile{Data: []byte("<html>test</html>")},
	}
	h := NewHandlers(
		NewStatusBroadcaster(),
		runCapture,
		FormConfig{
			Shots:      3,
			IntervalMs: 1500,
			Camera:     "edsdk",
			SaveTo:     "host",
			FileName:   "captured_image.jpg",
		},
		staticFS,
	)
	h.SetMinRunSpacing(0)
	return h
}

func noopCapture(_ context.Context, o Overrides) ([]*camera.Shot, error) {
	return make([]*camera.Shot, 0, o.Shots), nil
}

func validOverridesJSON() []byte {
	data, _ := json.Marshal(Overrides{Shots: 2, IntervalMs: 100})
	return data
}

func post(h *Handlers, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/run", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.HandleRun(w, req)
	return w
}

// waitIdle waits for the background run to finish.
func waitIdle(t *testing.T, h *Handlers) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		h.runningMu.Lock()
		running := h.running
		h.runningMu.Unlock()
		if !running {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("capture still running")
}

// ---------- HandleRun ----------

func TestHandleRun_ValidPost(t *testing.T) {
	got := make(chan Overrides, 1)
	h := newTestHandlers(func(_ context.Context, o Overrides) ([]*camera.Shot, error) {
		got <- o
		return nil, nil
	})
	w := post(h, validOverridesJSON())

	if w.Code != http.StatusAccepted {
		t.Errorf("status = %d, want %d", w.Code, http.StatusAccepted)
	}

	var resp map[string]string
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["status"] != "started" {
		t.Errorf("response status = %q, want \"started\"", resp["status"])
	}

	select {
	case o := <-got:
		if o.Shots != 2 || o.Interval() != 100*time.Millisecond {
			t.Errorf("overrides = %+v", o)
		}
	case <-time.After(time.Second):
		t.Fatal("capture not started")
	}
	waitIdle(t, h)
}

func TestHandleRun_GetMethodNotAllowed(t *testing.T) {
	h := newTestHandlers(noopCapture)
	req := httptest.NewRequest(http.MethodGet, "/run", nil)
	w := httptest.NewRecorder()

	h.HandleRun(w, req)

	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want %d", w.Code, http.StatusMethodNotAllowed)
	}
}

func TestHandleRun_InvalidJSON(t *testing.T) {
	h := newTestHandlers(noopCapture)
	if w := post(h, []byte("not json")); w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestHandleRun_InvalidOverrides(t *testing.T) {
	h := newTestHandlers(noopCapture)
	data, _ := json.Marshal(Overrides{Shots: 0})
	w := post(h, data)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
	if !strings.Contains(w.Body.String(), "shots") {
		t.Errorf("body = %q, want mention of shots", w.Body.String())
	}
}

func TestHandleRun_OversizedBody(t *testing.T) {
	h := newTestHandlers(noopCapture)
	big := `{"shots":1,"pad":"` + strings.Repeat("x", 2<<20) + `"}` // 2 MB
	if w := post(h, []byte(big)); w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d (oversized body)", w.Code, http.StatusBadRequest)
	}
}

func TestHandleRun_NilRunCapture(t *testing.T) {
	h := newTestHandlers(nil)
	if w := post(h, validOverridesJSON()); w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", w.Code, http.StatusServiceUnavailable)
	}
}

func TestHandleRun_ConcurrentCapture(t *testing.T) {
	// Simulate a long-running capture
	started := make(chan struct{})
	blocking := make(chan struct{})
	slowCapture := func(_ context.Context, _ Overrides) ([]*camera.Shot, error) {
		close(started)
		<-blocking
		return nil, nil
	}

	h := newTestHandlers(slowCapture)

	// First request starts capture
	if w1 := post(h, validOverridesJSON()); w1.Code != http.StatusAccepted {
		t.Fatalf("first request: status = %d, want %d", w1.Code, http.StatusAccepted)
	}

	// Wait for goroutine to start
	<-started

	// Second request should be rejected as already running
	if w2 := post(h, validOverridesJSON()); w2.Code != http.StatusConflict {
		t.Errorf("concurrent request: status = %d, want %d", w2.Code, http.StatusConflict)
	}

	close(blocking) // unblock first capture
	waitIdle(t, h)
}

func TestHandleRun_RateLimiting(t *testing.T) {
	h := newTestHandlers(noopCapture)
	h.SetMinRunSpacing(5 * time.Second)

	if w1 := post(h, validOverridesJSON()); w1.Code != http.StatusAccepted {
		t.Fatalf("first request: status = %d, want %d", w1.Code, http.StatusAccepted)
	}
	waitIdle(t, h)

	// Second request within 5 seconds should be rate-limited
	if w2 := post(h, validOverridesJSON()); w2.Code != http.StatusTooManyRequests {
		t.Errorf("rate-limited request: status = %d, want %d", w2.Code, http.StatusTooManyRequests)
	}
}

func TestHandleRun_FailureIsBroadcast(t *testing.T) {
	h := newTestHandlers(func(context.Context, Overrides) ([]*camera.Shot, error) {
		return nil, errors.New("Failed to open camera session (Code: 81)")
	})
	ch, unsub := h.Broadcaster.Subscribe()
	defer unsub()

	post(h, validOverridesJSON())

	select {
	case msg := <-ch:
		var evt StatusEvent
		if err := json.Unmarshal([]byte(msg), &evt); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if evt.Level != "error" || !strings.Contains(evt.Msg, "(Code: 81)") {
			t.Errorf("event = %+v", evt)
		}
	case <-time.After(time.Second):
		t.Fatal("no error broadcast")
	}
}

// ---------- HandleConfig ----------

func TestHandleConfig(t *testing.T) {
	h := newTestHandlers(noopCapture)
	req := httptest.NewRequest(http.MethodGet, "/config", nil)
	w := httptest.NewRecorder()

	h.HandleConfig(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var fc FormConfig
	if err := json.NewDecoder(w.Body).Decode(&fc); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if fc.Shots != 3 {
		t.Errorf("Shots = %v, want 3", fc.Shots)
	}
	if fc.IntervalMs != 1500 {
		t.Errorf("IntervalMs = %v, want 1500", fc.IntervalMs)
	}
	if fc.FileName != "captured_image.jpg" {
		t.Errorf("FileName = %q", fc.FileName)
	}
}

// ---------- Latest image / status ----------

func TestHandleLatestImage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "captured_image.jpg")
	if err := os.WriteFile(path, []byte{0xFF, 0xD8, 0xFF, 0xD9}, 0o644); err != nil {
		t.Fatal(err)
	}
	h := newTestHandlers(func(context.Context, Overrides) ([]*camera.Shot, error) {
		return []*camera.Shot{{ID: "a", Seq: 1, Path: path}}, nil
	})

	req := httptest.NewRequest(http.MethodGet, "/images/latest", nil)
	w := httptest.NewRecorder()
	h.HandleLatestImage(w, req)
	if w.Code != http.StatusNotFound {
		t.Fatalf("before any run: status = %d, want 404", w.Code)
	}

	post(h, validOverridesJSON())
	waitIdle(t, h)

	w = httptest.NewRecorder()
	h.HandleLatestImage(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "image/jpeg" {
		t.Errorf("Content-Type = %q, want image/jpeg", ct)
	}
	if w.Body.Len() != 4 {
		t.Errorf("body length = %d, want 4", w.Body.Len())
	}

	w = httptest.NewRecorder()
	h.HandleStatus(w, httptest.NewRequest(http.MethodGet, "/status", nil))
	var st Status
	if err := json.NewDecoder(w.Body).Decode(&st); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if st.Running || st.Latest == nil || st.Latest.Path != path {
		t.Errorf("status = %+v", st)
	}
}

// ---------- ServeIndex ----------

func TestServeIndex(t *testing.T) {
	h := newTestHandlers(noopCapture)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()

	h.ServeIndex(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/html; charset=utf-8" {
		t.Errorf("Content-Type = %q, want text/html; charset=utf-8", ct)
	}
	if !strings.Contains(w.Body.String(), "<html>") {
		t.Error("body should contain HTML content")
	}
}
