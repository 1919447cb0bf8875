package gpio

import (
	"fmt"
	"sync"

	"github.com/cjeanneret/canoncap/internal/debug"
	"github.com/stianeikeland/go-rpio/v4"
)

// RPiDriver drives Raspberry Pi pins through go-rpio's /dev/gpiomem mapping.
// The button poller and the wired remote share one driver, so pin state is
// guarded by a lock.
type RPiDriver struct {
	mu    sync.RWMutex
	pins  map[int]rpio.Pin
	modes map[int]PinMode
}

// NewRPiRealDriver maps the GPIO registers.  It needs a Raspberry Pi with
// access to /dev/gpiomem, or root.
func NewRPiRealDriver() (*RPiDriver, error) {
	debug.Info("Initializing real GPIO driver (go-rpio)")

	if err := rpio.Open(); err != nil {
		return nil, fmt.Errorf("failed to open GPIO: %w (are you running on a Raspberry Pi?)", err)
	}
	debug.Verbose("GPIO memory mapped successfully")

	return &RPiDriver{
		pins:  make(map[int]rpio.Pin),
		modes: make(map[int]PinMode),
	}, nil
}

func (r *RPiDriver) SetupPin(pin int, mode PinMode) error {
	debug.GPIO("SetupPin", pin, mode)

	p := rpio.Pin(pin)
	switch mode {
	case Input:
		p.Input()
		p.PullOff()
	case InputPullUp:
		p.Input()
		p.PullUp()
	case Output:
		p.Output()
	default:
		return fmt.Errorf("unknown pin mode: %d", mode)
	}

	r.mu.Lock()
	r.pins[pin] = p
	r.modes[pin] = mode
	r.mu.Unlock()
	return nil
}

// WritePin drives an output.  A pin never set up becomes an output; a pin
// set up as an input is refused so a wiring mistake cannot short the button.
func (r *RPiDriver) WritePin(pin int, level Level) error {
	debug.GPIO("WritePin", pin, level)

	r.mu.RLock()
	p, ok := r.pins[pin]
	mode := r.modes[pin]
	r.mu.RUnlock()
	if !ok {
		if err := r.SetupPin(pin, Output); err != nil {
			return err
		}
		p, mode = rpio.Pin(pin), Output
	}
	if mode != Output {
		return fmt.Errorf("pin %d is configured as %s", pin, mode)
	}

	if level == High {
		p.High()
	} else {
		p.Low()
	}
	return nil
}

// ReadPin is polled by the trigger button, so it does not log.
func (r *RPiDriver) ReadPin(pin int) (Level, error) {
	r.mu.RLock()
	p, ok := r.pins[pin]
	r.mu.RUnlock()
	if !ok {
		return Low, fmt.Errorf("pin %d read before setup", pin)
	}
	if p.Read() == rpio.High {
		return High, nil
	}
	return Low, nil
}

func (r *RPiDriver) Close() error {
	debug.Trace("GPIO Close (real driver)")

	r.mu.Lock()
	defer r.mu.Unlock()
	// Release the remote lines before handing the pins back as inputs.
	for pin, p := range r.pins {
		debug.Verbose("Resetting pin %d to input", pin)
		p.Input()
		p.PullOff()
	}
	r.pins = make(map[int]rpio.Pin)
	r.modes = make(map[int]PinMode)

	return rpio.Close()
}
