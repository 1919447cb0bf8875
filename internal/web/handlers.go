package web

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/cjeanneret/canoncap/internal/debug"
	"github.com/cjeanneret/canoncap/internal/hw/camera"
)

const (
	// MaxShots bounds the shots of a single run.
	MaxShots = 999
	// MaxIntervalMs bounds the delay between shots (one hour).
	MaxIntervalMs = 3600 * 1000
	// maxBodyBytes bounds POST /run bodies.
	maxBodyBytes = 1 << 20
	// DefaultMinRunSpacing is the minimum delay between the start of two runs.
	DefaultMinRunSpacing = 2 * time.Second
)

// Overrides holds capture parameters that can override config defaults.
type Overrides struct {
	Shots      int `json:"shots"`
	IntervalMs int `json:"interval_ms"`
}

// Interval returns the delay between shots.
func (o Overrides) Interval() time.Duration {
	return time.Duration(o.IntervalMs) * time.Millisecond
}

// ValidateOverrides checks a run request.
func ValidateOverrides(o Overrides) error {
	if o.Shots < 1 || o.Shots > MaxShots {
		return fmt.Errorf("shots must be between 1 and %d", MaxShots)
	}
	if o.IntervalMs < 0 || o.IntervalMs > MaxIntervalMs {
		return fmt.Errorf("interval_ms must be between 0 and %d", MaxIntervalMs)
	}
	return nil
}

// RunCaptureFunc runs a capture with the given overrides and returns the
// shots that completed.  It is called from the POST /run handler in a
// goroutine.
type RunCaptureFunc func(ctx context.Context, overrides Overrides) ([]*camera.Shot, error)

// FormConfig holds default values for the capture form (from config).
type FormConfig struct {
	Shots      int    `json:"shots"`
	IntervalMs int    `json:"interval_ms"`
	Camera     string `json:"camera"`
	SaveTo     string `json:"save_to"`
	FileName   string `json:"file_name"`
}

// Status is returned by GET /status.
type Status struct {
	Running bool         `json:"running"`
	Latest  *camera.Shot `json:"latest,omitempty"`
}

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	Broadcaster  *StatusBroadcaster
	RunCapture   RunCaptureFunc
	FormDefaults FormConfig

	runningMu sync.Mutex
	running   bool
	limiter   *rate.Limiter // spacing between run starts
	latest    *camera.Shot
	baseCtx   context.Context
	staticFS  fs.FS
}

// NewHandlers creates handlers with the given dependencies.
// If runCapture is nil, POST /run will return 503 Service Unavailable.
func NewHandlers(broadcaster *StatusBroadcaster, runCapture RunCaptureFunc, formDefaults FormConfig, staticFS fs.FS) *Handlers {
	h := &Handlers{
		Broadcaster:  broadcaster,
		RunCapture:   runCapture,
		FormDefaults: formDefaults,
		baseCtx:      context.Background(),
		staticFS:     staticFS,
	}
	h.SetMinRunSpacing(DefaultMinRunSpacing)
	return h
}

// SetMinRunSpacing sets the minimum delay between the start of two runs.
// d <= 0 disables the limit.
func (h *Handlers) SetMinRunSpacing(d time.Duration) {
	limit := rate.Inf
	if d > 0 {
		limit = rate.Every(d)
	}
	h.runningMu.Lock()
	h.limiter = rate.NewLimiter(limit, 1)
	h.runningMu.Unlock()
}

// HandleConfig returns the form default values (from config) as JSON.
func (h *Handlers) HandleConfig(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(h.FormDefaults)
}

// HandleStatus reports whether a run is in progress and the last saved shot.
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	h.runningMu.Lock()
	st := Status{Running: h.running, Latest: h.latest}
	h.runningMu.Unlock()
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(st)
}

// ServeIndex serves the main HTML page (root path only).
func (h *Handlers) ServeIndex(w http.ResponseWriter, r *http.Request) {
	data, err := fs.ReadFile(h.staticFS, "index.html")
	if err != nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(data)
}

// HandleLatestImage serves the last downloaded image.
func (h *Handlers) HandleLatestImage(w http.ResponseWriter, r *http.Request) {
	h.runningMu.Lock()
	latest := h.latest
	h.runningMu.Unlock()
	if latest == nil || latest.Path == "" {
		http.Error(w, "no image captured yet", http.StatusNotFound)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	http.ServeFile(w, r, latest.Path)
}

// HandleRun handles POST /run to start a capture.
func (h *Handlers) HandleRun(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var overrides Overrides
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&overrides); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	if err := ValidateOverrides(overrides); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if h.RunCapture == nil {
		http.Error(w, "capture not configured", http.StatusServiceUnavailable)
		return
	}

	h.runningMu.Lock()
	if h.running {
		h.runningMu.Unlock()
		http.Error(w, "capture already in progress", http.StatusConflict)
		return
	}
	if !h.limiter.Allow() {
		h.runningMu.Unlock()
		http.Error(w, "too many requests, retry later", http.StatusTooManyRequests)
		return
	}
	h.running = true
	ctx := h.baseCtx
	h.runningMu.Unlock()

	// Run in goroutine; clear running when done
	go func() {
		shots, err := h.RunCapture(ctx, overrides)

		h.runningMu.Lock()
		for _, s := range shots {
			if s.Path != "" {
				h.latest = s
			}
		}
		h.running = false
		h.runningMu.Unlock()

		if err != nil {
			h.Broadcaster.Broadcast("error", "Capture failed: "+err.Error())
			debug.Error(fmt.Errorf("capture failed: %w", err))
			return
		}
		h.Broadcaster.Broadcast("info", fmt.Sprintf("Sequence complete, %d shot(s)", len(shots)))
	}()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]string{"status": "started"})
}

// HandleStatusStream handles GET /status/stream for SSE.
func (h *Handlers) HandleStatusStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // nginx

	ch, unsub := h.Broadcaster.Subscribe()
	defer unsub()

	// Send initial comment to establish connection
	w.Write([]byte(": connected\n\n"))
	flusher.Flush()

	// Heartbeat while idle
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			w.Write([]byte("data: " + msg + "\n\n"))
			flusher.Flush()

		case <-ticker.C:
			w.Write([]byte(": heartbeat\n\n"))
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}
}
