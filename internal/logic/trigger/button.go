package trigger

import (
	"context"
	"time"

	"github.com/cjeanneret/canoncap/internal/debug"
	"github.com/cjeanneret/canoncap/internal/hw/gpio"
)

// ButtonConfig describes a push button wired to a GPIO input.
type ButtonConfig struct {
	Pin       int
	ActiveLow bool          // pressed reads LOW (button to ground, pull-up enabled)
	Debounce  time.Duration // level must be stable this long to count
	Poll      time.Duration // sampling period
}

const (
	DefaultDebounce = 30 * time.Millisecond
	DefaultPoll     = 5 * time.Millisecond
)

// Button turns a GPIO input into press events.
type Button struct {
	gpio gpio.Driver
	cfg  ButtonConfig
}

// NewButton configures the pin as an input, with the pull-up enabled when the
// button is active low.
func NewButton(g gpio.Driver, cfg ButtonConfig) (*Button, error) {
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	if cfg.Poll <= 0 {
		cfg.Poll = DefaultPoll
	}
	mode := gpio.Input
	if cfg.ActiveLow {
		mode = gpio.InputPullUp
	}
	if err := g.SetupPin(cfg.Pin, mode); err != nil {
		return nil, err
	}
	return &Button{gpio: g, cfg: cfg}, nil
}

func (b *Button) pressed(l gpio.Level) bool {
	return bool(l) != b.cfg.ActiveLow
}

// Presses polls the pin until ctx is done and sends one value per debounced
// press (on the press edge, not on release).  The channel is closed when
// polling stops.  Presses arriving while the receiver is busy are dropped.
func (b *Button) Presses(ctx context.Context) <-chan time.Time {
	ch := make(chan time.Time)
	go func() {
		defer close(ch)
		ticker := time.NewTicker(b.cfg.Poll)
		defer ticker.Stop()

		stable := false // debounced state
		last := false   // last raw sample
		var since time.Time

		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				l, err := b.gpio.ReadPin(b.cfg.Pin)
				if err != nil {
					debug.Error(err)
					continue
				}
				raw := b.pressed(l)
				if raw != last {
					last = raw
					since = now
					continue
				}
				if raw == stable || now.Sub(since) < b.cfg.Debounce {
					continue
				}
				stable = raw
				if !stable {
					continue
				}
				debug.Live("Button pressed (pin %d)", b.cfg.Pin)
				select {
				case ch <- now:
				default:
					debug.Verbose("Press ignored, capture still running")
				}
			}
		}
	}()
	return ch
}
