package gpio

import "testing"

func TestMockDriver_PullUpIdlesHigh(t *testing.T) {
	d := NewMockDriver()
	if err := d.SetupPin(17, InputPullUp); err != nil {
		t.Fatalf("SetupPin: %v", err)
	}
	if l, _ := d.ReadPin(17); l != High {
		t.Errorf("pull-up input = %v, want HIGH", l)
	}
	d.Set(17, Low)
	if l, _ := d.ReadPin(17); l != Low {
		t.Errorf("after Set = %v, want LOW", l)
	}
}

func TestMockDriver_WriteIsReadBack(t *testing.T) {
	d := NewMockDriver()
	_ = d.SetupPin(24, Output)
	_ = d.WritePin(24, High)
	if l, _ := d.ReadPin(24); l != High {
		t.Errorf("ReadPin = %v, want HIGH", l)
	}
}

func TestNewDriver_Mock(t *testing.T) {
	d, err := NewDriver(true)
	if err != nil {
		t.Fatalf("NewDriver: %v", err)
	}
	if _, ok := d.(*MockDriver); !ok {
		t.Errorf("NewDriver(true) = %T, want *MockDriver", d)
	}
}

func TestLevelString(t *testing.T) {
	if High.String() != "HIGH" || Low.String() != "LOW" {
		t.Error("unexpected level names")
	}
}

func TestPinModeString(t *testing.T) {
	cases := map[PinMode]string{
		Input:       "input",
		InputPullUp: "input-pullup",
		Output:      "output",
		PinMode(9):  "mode(9)",
	}
	for m, want := range cases {
		if got := m.String(); got != want {
			t.Errorf("PinMode(%d).String() = %q, want %q", int(m), got, want)
		}
	}
}
