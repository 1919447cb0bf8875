package capture

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cjeanneret/canoncap/internal/debug"
	"github.com/cjeanneret/canoncap/internal/hw/camera"
)

// ErrInvalidParams is returned by Run for a non-positive count or a negative
// interval.
var ErrInvalidParams = errors.New("invalid sequence parameters")

// Sequence runs a series of captures on one camera (single shot, burst,
// interval timer).
type Sequence struct {
	camera camera.Camera
}

func NewSequence(c camera.Camera) *Sequence {
	return &Sequence{camera: c}
}

// Params defines a capture series.
type Params struct {
	Count    int           // number of shots, 1 for a single capture
	Interval time.Duration // delay between the start of two shots, 0 = back to back

	// OnShot is called after every successful shot.  Optional.
	OnShot func(shot *camera.Shot, index, total int)
}

// Validate checks the parameters before a run.
func (p Params) Validate() error {
	if p.Count < 1 {
		return fmt.Errorf("%w: count must be >= 1, got %d", ErrInvalidParams, p.Count)
	}
	if p.Interval < 0 {
		return fmt.Errorf("%w: interval must be >= 0, got %v", ErrInvalidParams, p.Interval)
	}
	return nil
}

// Run takes p.Count shots.  It stops at the first failure and returns the
// shots completed so far together with the error.
func (s *Sequence) Run(ctx context.Context, p Params) ([]*camera.Shot, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	debug.Section("Capture sequence")
	debug.Value("Shots", p.Count)
	debug.Value("Interval", p.Interval)

	shots := make([]*camera.Shot, 0, p.Count)
	for i := 1; i <= p.Count; i++ {
		if err := ctx.Err(); err != nil {
			return shots, err
		}
		start := time.Now()

		debug.Live("Shot %d/%d", i, p.Count)
		shot, err := s.camera.Shoot(ctx)
		if err != nil {
			return shots, err
		}
		shots = append(shots, shot)
		if p.OnShot != nil {
			p.OnShot(shot, i, p.Count)
		}

		if i == p.Count || p.Interval == 0 {
			continue
		}
		wait := p.Interval - time.Since(start)
		if wait <= 0 {
			debug.Verbose("Shot %d took longer than the interval, continuing immediately", i)
			continue
		}
		select {
		case <-ctx.Done():
			return shots, ctx.Err()
		case <-time.After(wait):
		}
	}

	debug.Summary("Sequence complete")
	return shots, nil
}
