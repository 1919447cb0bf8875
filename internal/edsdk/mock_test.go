package edsdk

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

// openMock walks a Mock through initialize, list, child and session.
func openMock(t *testing.T, m *Mock) (list, cam Ref) {
	t.Helper()
	if err := m.Initialize(); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	list, err := m.GetCameraList()
	if err != nil {
		t.Fatalf("GetCameraList: %v", err)
	}
	cam, err = m.GetChildAtIndex(list, 0)
	if err != nil {
		t.Fatalf("GetChildAtIndex: %v", err)
	}
	if err := m.OpenSession(cam); err != nil {
		t.Fatalf("OpenSession: %v", err)
	}
	return list, cam
}

func TestMock_NotInitialized(t *testing.T) {
	m := NewMock(MockCamera{})
	if _, err := m.GetCameraList(); !errors.Is(err, ErrInvalidFnCall) {
		t.Errorf("GetCameraList before Initialize = %v, want ErrInvalidFnCall", err)
	}
}

func TestMock_ChildCount(t *testing.T) {
	m := NewMock(MockCamera{}, MockCamera{Name: "Canon EOS R5"})
	_ = m.Initialize()
	list, _ := m.GetCameraList()
	n, err := m.GetChildCount(list)
	if err != nil {
		t.Fatalf("GetChildCount: %v", err)
	}
	if n != 2 {
		t.Errorf("count = %d, want 2", n)
	}
	if _, err := m.GetChildAtIndex(list, 2); !errors.Is(err, ErrInvalidIndex) {
		t.Errorf("GetChildAtIndex(2) = %v, want ErrInvalidIndex", err)
	}
}

func TestMock_ReleaseTwiceFails(t *testing.T) {
	m := NewMock()
	_ = m.Initialize()
	list, _ := m.GetCameraList()
	if _, err := m.Release(list); err != nil {
		t.Fatalf("first Release: %v", err)
	}
	if _, err := m.Release(list); !errors.Is(err, ErrInvalidHandle) {
		t.Errorf("second Release = %v, want ErrInvalidHandle", err)
	}
	if m.Live() != 0 {
		t.Errorf("Live() = %d, want 0", m.Live())
	}
}

func TestMock_FailOnLimitedTimes(t *testing.T) {
	m := NewMock(MockCamera{})
	m.FailOn("Initialize", ErrDeviceBusy, 2)
	for i := 0; i < 2; i++ {
		if err := m.Initialize(); !errors.Is(err, ErrDeviceBusy) {
			t.Fatalf("call %d: err = %v, want ErrDeviceBusy", i, err)
		}
	}
	if err := m.Initialize(); err != nil {
		t.Errorf("third call: err = %v, want nil", err)
	}
}

func TestMock_TakePictureRequiresCapacityForHost(t *testing.T) {
	m := NewMock(MockCamera{})
	_, cam := openMock(t, m)
	_ = m.SetPropertyUint32(cam, PropSaveTo, uint32(SaveToHost))

	if err := m.SendCommand(cam, CommandTakePicture, 0); !errors.Is(err, ErrTakePictureCardNG) {
		t.Fatalf("SendCommand without capacity = %v, want ErrTakePictureCardNG", err)
	}
	_ = m.SetCapacity(cam, DefaultHostCapacity)
	if err := m.SendCommand(cam, CommandTakePicture, 0); err != nil {
		t.Errorf("SendCommand with capacity: %v", err)
	}
}

func TestMock_EventDeliveredOnGetEvent(t *testing.T) {
	m := NewMock(MockCamera{Events: []ObjectEvent{ObjectEventDirItemCreated}})
	_, cam := openMock(t, m)
	_ = m.SetCapacity(cam, DefaultHostCapacity)

	var got []ObjectEvent
	var items []Ref
	err := m.SetObjectEventHandler(cam, ObjectEventAll, func(ev ObjectEvent, obj Ref) error {
		got = append(got, ev)
		items = append(items, obj)
		return nil
	})
	if err != nil {
		t.Fatalf("SetObjectEventHandler: %v", err)
	}
	if err := m.SendCommand(cam, CommandTakePicture, 0); err != nil {
		t.Fatalf("SendCommand: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("events delivered before GetEvent: %v", got)
	}
	if err := m.GetEvent(); err != nil {
		t.Fatalf("GetEvent: %v", err)
	}
	if len(got) != 1 || got[0] != ObjectEventDirItemCreated {
		t.Fatalf("events = %v, want [DirItemCreated]", got)
	}
	if _, err := m.Release(items[0]); err != nil {
		t.Errorf("release item: %v", err)
	}
}

func TestMock_EventWithoutHandlerIsReleased(t *testing.T) {
	m := NewMock(MockCamera{})
	list, cam := openMock(t, m)
	_ = m.SetCapacity(cam, DefaultHostCapacity)
	_ = m.SendCommand(cam, CommandTakePicture, 0)
	_ = m.GetEvent()

	_ = m.CloseSession(cam)
	_, _ = m.Release(cam)
	_, _ = m.Release(list)
	if m.Live() != 0 {
		t.Errorf("Live() = %d, want 0", m.Live())
	}
}

func TestMock_DownloadWritesFile(t *testing.T) {
	img := []byte("not really a jpeg")
	m := NewMock(MockCamera{Image: img})
	_, cam := openMock(t, m)
	_ = m.SetCapacity(cam, DefaultHostCapacity)

	var item Ref
	_ = m.SetObjectEventHandler(cam, ObjectEventAll, func(ev ObjectEvent, obj Ref) error {
		item = obj
		return nil
	})
	_ = m.SendCommand(cam, CommandTakePicture, 0)
	_ = m.GetEvent()
	if item == NilRef {
		t.Fatal("no item delivered")
	}

	info, err := m.GetDirectoryItemInfo(item)
	if err != nil {
		t.Fatalf("GetDirectoryItemInfo: %v", err)
	}
	path := filepath.Join(t.TempDir(), "out.jpg")
	stream, err := m.CreateFileStream(path, CreateAlways, AccessWrite)
	if err != nil {
		t.Fatalf("CreateFileStream: %v", err)
	}
	if err := m.Download(item, info.Size, stream); err != nil {
		t.Fatalf("Download: %v", err)
	}
	if err := m.DownloadComplete(item); err != nil {
		t.Fatalf("DownloadComplete: %v", err)
	}
	_, _ = m.Release(stream)
	_, _ = m.Release(item)

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if !bytes.Equal(data, img) {
		t.Errorf("file = %q, want %q", data, img)
	}
}

func TestMock_CreateNewExisting(t *testing.T) {
	m := NewMock()
	path := filepath.Join(t.TempDir(), "exists.jpg")
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := m.CreateFileStream(path, CreateNew, AccessWrite); !errors.Is(err, ErrFileAlreadyExists) {
		t.Errorf("CreateFileStream(CreateNew) = %v, want ErrFileAlreadyExists", err)
	}
}
