package trigger

import (
	"context"
	"testing"
	"time"

	"github.com/cjeanneret/canoncap/internal/hw/gpio"
)

func newTestButton(t *testing.T, drv *gpio.MockDriver, debounce time.Duration) *Button {
	t.Helper()
	b, err := NewButton(drv, ButtonConfig{Pin: 17, ActiveLow: true, Debounce: debounce, Poll: time.Millisecond})
	if err != nil {
		t.Fatalf("NewButton: %v", err)
	}
	return b
}

func TestButton_PressEmitsOnce(t *testing.T) {
	drv := gpio.NewMockDriver()
	b := newTestButton(t, drv, 5*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	presses := b.Presses(ctx)

	drv.Set(17, gpio.Low)
	select {
	case <-presses:
	case <-time.After(time.Second):
		t.Fatal("no press detected")
	}

	// holding the button does not repeat
	select {
	case <-presses:
		t.Fatal("press repeated while held")
	case <-time.After(50 * time.Millisecond):
	}

	drv.Set(17, gpio.High)
	time.Sleep(30 * time.Millisecond)
	drv.Set(17, gpio.Low)
	select {
	case <-presses:
	case <-time.After(time.Second):
		t.Fatal("second press not detected")
	}
}

func TestButton_IgnoresBounce(t *testing.T) {
	drv := gpio.NewMockDriver()
	b := newTestButton(t, drv, 40*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	presses := b.Presses(ctx)

	for i := 0; i < 5; i++ {
		drv.Set(17, gpio.Low)
		time.Sleep(2 * time.Millisecond)
		drv.Set(17, gpio.High)
		time.Sleep(2 * time.Millisecond)
	}

	select {
	case <-presses:
		t.Fatal("bounce registered as a press")
	case <-time.After(80 * time.Millisecond):
	}
}

func TestButton_IdleHighWithPullUp(t *testing.T) {
	drv := gpio.NewMockDriver()
	newTestButton(t, drv, time.Millisecond)
	if l, _ := drv.ReadPin(17); l != gpio.High {
		t.Errorf("idle level = %v, want HIGH", l)
	}
}

func TestButton_ClosesOnCancel(t *testing.T) {
	drv := gpio.NewMockDriver()
	b := newTestButton(t, drv, time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	presses := b.Presses(ctx)
	cancel()

	select {
	case _, ok := <-presses:
		if ok {
			t.Fatal("unexpected press")
		}
	case <-time.After(time.Second):
		t.Fatal("channel not closed after cancel")
	}
}
