package camera

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/cjeanneret/canoncap/internal/debug"
	"github.com/cjeanneret/canoncap/internal/hw/gpio"
)

// RemoteGPIO triggers a Canon body through its wired remote port
// (N3 or E3 2.5 mm jack) driven by two GPIO lines through optocouplers:
// - GND: camera ground
// - FOCUS: half press (active LOW)
// - SHUTTER: full press (active LOW)
//
// Nothing is downloaded: the file stays on the card.  Used when the SDK is
// not available on the host.
type RemoteGPIO struct {
	gpio         gpio.Driver
	name         string
	focusPin     int
	shutterPin   int
	focusDelay   time.Duration // time for autofocus
	shutterDelay time.Duration // shutter hold time
	seq          int
}

// NewRemoteGPIO configures both lines as outputs, released (HIGH).
func NewRemoteGPIO(g gpio.Driver, focusPin, shutterPin int, focusDelay, shutterDelay time.Duration) *RemoteGPIO {
	_ = g.SetupPin(focusPin, gpio.Output)
	_ = g.SetupPin(shutterPin, gpio.Output)

	_ = g.WritePin(focusPin, gpio.High)
	_ = g.WritePin(shutterPin, gpio.High)

	return &RemoteGPIO{
		gpio:         g,
		name:         "Canon (wired remote)",
		focusPin:     focusPin,
		shutterPin:   shutterPin,
		focusDelay:   focusDelay,
		shutterDelay: shutterDelay,
	}
}

// Shoot presses the remote: FOCUS -> wait for AF -> SHUTTER -> hold -> release.
func (r *RemoteGPIO) Shoot(ctx context.Context) (*Shot, error) {
	r.seq++
	shot := &Shot{ID: uuid.NewString(), Seq: r.seq, Camera: r.name, TakenAt: time.Now()}
	debug.Printf("Remote: triggering shot (focus=%d, shutter=%d)", r.focusPin, r.shutterPin)

	debug.Verbose("Remote: half press (pin %d -> LOW)", r.focusPin)
	if err := r.gpio.WritePin(r.focusPin, gpio.Low); err != nil {
		return nil, err
	}

	if err := sleep(ctx, r.focusDelay); err != nil {
		_ = r.gpio.WritePin(r.focusPin, gpio.High)
		return nil, err
	}

	debug.Verbose("Remote: full press (pin %d -> LOW)", r.shutterPin)
	if err := r.gpio.WritePin(r.shutterPin, gpio.Low); err != nil {
		_ = r.gpio.WritePin(r.focusPin, gpio.High)
		return nil, err
	}

	// the shutter must be released even if ctx is cancelled mid hold
	time.Sleep(r.shutterDelay)

	if err := r.gpio.WritePin(r.shutterPin, gpio.High); err != nil {
		return nil, err
	}
	if err := r.gpio.WritePin(r.focusPin, gpio.High); err != nil {
		return nil, err
	}

	shot.SavedAt = time.Now()
	debug.Verbose("Remote: shot triggered")
	return shot, nil
}

// Close releases both lines.
func (r *RemoteGPIO) Close() error {
	if err := r.gpio.WritePin(r.shutterPin, gpio.High); err != nil {
		return err
	}
	return r.gpio.WritePin(r.focusPin, gpio.High)
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
