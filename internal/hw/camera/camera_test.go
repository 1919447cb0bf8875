package camera

import (
	"context"
	"testing"
	"time"

	"github.com/cjeanneret/canoncap/internal/hw/gpio"
)

// recordingDriver records GPIO calls for verification.
type recordingDriver struct {
	calls []gpioCall
}

type gpioCall struct {
	op    string
	pin   int
	level gpio.Level
}

func (d *recordingDriver) SetupPin(pin int, mode gpio.PinMode) error {
	d.calls = append(d.calls, gpioCall{op: "setup", pin: pin})
	return nil
}

func (d *recordingDriver) WritePin(pin int, level gpio.Level) error {
	d.calls = append(d.calls, gpioCall{op: "write", pin: pin, level: level})
	return nil
}

func (d *recordingDriver) ReadPin(pin int) (gpio.Level, error) {
	return gpio.Low, nil
}

func (d *recordingDriver) Close() error { return nil }

func (d *recordingDriver) writeCalls() []gpioCall {
	var result []gpioCall
	for _, c := range d.calls {
		if c.op == "write" {
			result = append(result, c)
		}
	}
	return result
}

func TestRemoteGPIO_PinsInitializedHigh(t *testing.T) {
	drv := &recordingDriver{}
	NewRemoteGPIO(drv, 24, 25, 500*time.Millisecond, 200*time.Millisecond)

	writes := drv.writeCalls()
	focusHigh := false
	shutterHigh := false
	for _, c := range writes {
		if c.pin == 24 && c.level == gpio.High {
			focusHigh = true
		}
		if c.pin == 25 && c.level == gpio.High {
			shutterHigh = true
		}
	}
	if !focusHigh {
		t.Error("focus pin should be initialized to HIGH")
	}
	if !shutterHigh {
		t.Error("shutter pin should be initialized to HIGH")
	}
}

func TestRemoteGPIO_ShootSequence(t *testing.T) {
	drv := &recordingDriver{}
	cam := NewRemoteGPIO(drv, 24, 25, 1*time.Microsecond, 1*time.Microsecond)
	drv.calls = nil // reset after init

	shot, err := cam.Shoot(context.Background())
	if err != nil {
		t.Fatalf("Shoot: %v", err)
	}
	if shot.Path != "" {
		t.Errorf("Path = %q, want empty (nothing downloaded)", shot.Path)
	}
	if shot.Seq != 1 {
		t.Errorf("Seq = %d, want 1", shot.Seq)
	}

	expected := []struct {
		pin   int
		level gpio.Level
		desc  string
	}{
		{24, gpio.Low, "focus LOW (half press)"},
		{25, gpio.Low, "shutter LOW (full press)"},
		{25, gpio.High, "shutter HIGH (release)"},
		{24, gpio.High, "focus HIGH (release)"},
	}

	writes := drv.writeCalls()
	if len(writes) != len(expected) {
		t.Fatalf("expected %d writes, got %d: %v", len(expected), len(writes), writes)
	}
	for i, exp := range expected {
		if writes[i].pin != exp.pin || writes[i].level != exp.level {
			t.Errorf("step %d (%s): pin=%d level=%v, want pin=%d level=%v",
				i, exp.desc, writes[i].pin, writes[i].level, exp.pin, exp.level)
		}
	}
}

func TestRemoteGPIO_CancelledDuringFocusReleasesFocus(t *testing.T) {
	drv := &recordingDriver{}
	cam := NewRemoteGPIO(drv, 24, 25, time.Hour, time.Microsecond)
	drv.calls = nil

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := cam.Shoot(ctx); err == nil {
		t.Fatal("expected context error")
	}

	writes := drv.writeCalls()
	last := writes[len(writes)-1]
	if last.pin != 24 || last.level != gpio.High {
		t.Errorf("last write = %+v, want focus released", last)
	}
	for _, w := range writes {
		if w.pin == 25 && w.level == gpio.Low {
			t.Error("shutter must not fire after cancellation")
		}
	}
}

func TestRemoteGPIO_ImplementsCamera(t *testing.T) {
	drv := &recordingDriver{}
	var _ Camera = NewRemoteGPIO(drv, 24, 25, time.Millisecond, time.Millisecond)
	var _ Camera = (*Canon)(nil)
}
