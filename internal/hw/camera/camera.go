package camera

import (
	"context"
	"time"
)

// Camera is the high-level interface used by the rest of the application.
// It represents an abstract "camera", regardless of how it's controlled
// (vendor SDK over USB, wired remote on GPIO, etc.).
type Camera interface {
	// Shoot triggers a single capture and, when the camera hands the file
	// to the host, waits for it to be saved.
	Shoot(ctx context.Context) (*Shot, error)

	// Close ends the session and releases everything acquired by the camera.
	Close() error
}

// Shot describes one completed capture.
type Shot struct {
	ID         string    `json:"id"`
	Seq        int       `json:"seq"`
	Camera     string    `json:"camera"`
	Path       string    `json:"path,omitempty"`        // empty when nothing was downloaded
	Size       uint64    `json:"size"`                  // bytes written to Path
	CameraFile string    `json:"camera_file,omitempty"` // file name as reported by the camera
	TakenAt    time.Time `json:"taken_at"`
	SavedAt    time.Time `json:"saved_at"`
}
