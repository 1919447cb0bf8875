//go:build edsdk

package edsdk

/*
#cgo windows LDFLAGS: -lEDSDK
#cgo linux LDFLAGS: -lEDSDK
#cgo darwin LDFLAGS: -framework EDSDK
#include <stdlib.h>
#include <stdint.h>
#include "EDSDK.h"

extern EdsError goObjectEventHandler(EdsObjectEvent inEvent, EdsBaseRef inRef, void *inContext);

static EdsError setObjectEventHandler(EdsCameraRef camera, EdsObjectEvent event, uintptr_t ctx) {
	return EdsSetObjectEventHandler(camera, event, (EdsObjectEventHandler)goObjectEventHandler, (EdsVoid *)ctx);
}

static EdsError clearObjectEventHandler(EdsCameraRef camera, EdsObjectEvent event) {
	return EdsSetObjectEventHandler(camera, event, NULL, NULL);
}
*/
import "C"
import (
	"runtime"
	"runtime/cgo"
	"sync"
	"unsafe"
)

// maxName is EDS_MAX_NAME, the size of every fixed string buffer in the SDK.
const maxName = 256

// Open returns the cgo backed SDK.  Initialize must still be called.
func Open() (SDK, error) {
	return &cgoSDK{
		thread: newThread(),
		sinks:  make(map[Ref]*eventSink),
	}, nil
}

// thread runs every SDK call on one locked OS thread.  The SDK keeps per
// thread state (COM on Windows) and its callbacks are delivered on the thread
// that pumps events.
type thread struct {
	calls chan func()
}

func newThread() *thread {
	t := &thread{calls: make(chan func())}
	go t.run()
	return t
}

func (t *thread) run() {
	runtime.LockOSThread()
	for f := range t.calls {
		f()
	}
}

func (t *thread) do(f func()) {
	done := make(chan struct{})
	t.calls <- func() {
		f()
		close(done)
	}
	<-done
}

type cgoSDK struct {
	thread *thread

	mu    sync.Mutex
	sinks map[Ref]*eventSink
}

func cref(r Ref) C.EdsBaseRef {
	return C.EdsBaseRef(unsafe.Pointer(uintptr(r)))
}

func gref(r C.EdsBaseRef) Ref {
	return Ref(uintptr(unsafe.Pointer(r)))
}

func goString(p *C.EdsChar) string {
	return C.GoString((*C.char)(unsafe.Pointer(p)))
}

func (s *cgoSDK) call(f func() C.EdsError) error {
	var code C.EdsError
	s.thread.do(func() { code = f() })
	return Check(uint32(code))
}

func (s *cgoSDK) Initialize() error {
	return s.call(func() C.EdsError { return C.EdsInitializeSDK() })
}

// Terminate closes every event sink first: refs still buffered there must be
// released while the SDK is alive.
func (s *cgoSDK) Terminate() error {
	s.mu.Lock()
	sinks := s.sinks
	s.sinks = make(map[Ref]*eventSink)
	s.mu.Unlock()
	for _, sink := range sinks {
		sink.close()
	}
	return s.call(func() C.EdsError { return C.EdsTerminateSDK() })
}

func (s *cgoSDK) GetCameraList() (Ref, error) {
	var list C.EdsCameraListRef
	err := s.call(func() C.EdsError { return C.EdsGetCameraList(&list) })
	return gref(C.EdsBaseRef(list)), err
}

func (s *cgoSDK) GetChildCount(ref Ref) (int, error) {
	var n C.EdsUInt32
	err := s.call(func() C.EdsError { return C.EdsGetChildCount(cref(ref), &n) })
	return int(n), err
}

func (s *cgoSDK) GetChildAtIndex(ref Ref, index int) (Ref, error) {
	var child C.EdsBaseRef
	err := s.call(func() C.EdsError { return C.EdsGetChildAtIndex(cref(ref), C.EdsInt32(index), &child) })
	return gref(child), err
}

func (s *cgoSDK) GetDeviceInfo(camera Ref) (DeviceInfo, error) {
	var info C.EdsDeviceInfo
	err := s.call(func() C.EdsError { return C.EdsGetDeviceInfo(C.EdsCameraRef(cref(camera)), &info) })
	if err != nil {
		return DeviceInfo{}, err
	}
	return DeviceInfo{
		PortName:          goString(&info.szPortName[0]),
		DeviceDescription: goString(&info.szDeviceDescription[0]),
		DeviceSubType:     uint32(info.deviceSubType),
	}, nil
}

func (s *cgoSDK) OpenSession(camera Ref) error {
	return s.call(func() C.EdsError { return C.EdsOpenSession(C.EdsCameraRef(cref(camera))) })
}

func (s *cgoSDK) CloseSession(camera Ref) error {
	s.mu.Lock()
	sink := s.sinks[camera]
	delete(s.sinks, camera)
	s.mu.Unlock()
	if sink != nil {
		sink.close()
	}
	return s.call(func() C.EdsError { return C.EdsCloseSession(C.EdsCameraRef(cref(camera))) })
}

func (s *cgoSDK) SetPropertyUint32(ref Ref, prop PropertyID, value uint32) error {
	v := C.EdsUInt32(value)
	return s.call(func() C.EdsError {
		return C.EdsSetPropertyData(cref(ref), C.EdsPropertyID(prop), 0, C.EdsUInt32(unsafe.Sizeof(v)), unsafe.Pointer(&v))
	})
}

func (s *cgoSDK) GetPropertyString(ref Ref, prop PropertyID) (string, error) {
	buf := (*C.EdsChar)(C.calloc(maxName, 1))
	defer C.free(unsafe.Pointer(buf))
	err := s.call(func() C.EdsError {
		return C.EdsGetPropertyData(cref(ref), C.EdsPropertyID(prop), 0, maxName, unsafe.Pointer(buf))
	})
	if err != nil {
		return "", err
	}
	return goString(buf), nil
}

func (s *cgoSDK) SetCapacity(camera Ref, c Capacity) error {
	capacity := C.EdsCapacity{
		numberOfFreeClusters: C.EdsInt32(c.NumberOfFreeClusters),
		bytesPerSector:       C.EdsInt32(c.BytesPerSector),
		reset:                C.EdsBool(0),
	}
	if c.Reset {
		capacity.reset = C.EdsBool(1)
	}
	return s.call(func() C.EdsError { return C.EdsSetCapacity(C.EdsCameraRef(cref(camera)), capacity) })
}

func (s *cgoSDK) SetObjectEventHandler(camera Ref, event ObjectEvent, h ObjectEventHandler) error {
	s.mu.Lock()
	old := s.sinks[camera]
	delete(s.sinks, camera)
	s.mu.Unlock()
	if old != nil {
		old.close()
	}

	if h == nil {
		return s.call(func() C.EdsError {
			return C.clearObjectEventHandler(C.EdsCameraRef(cref(camera)), C.EdsObjectEvent(event))
		})
	}

	sink := newEventSink(h, func(ref Ref) { _, _ = s.Release(ref) })
	handle := cgo.NewHandle(sink)
	sink.onClose = handle.Delete
	err := s.call(func() C.EdsError {
		return C.setObjectEventHandler(C.EdsCameraRef(cref(camera)), C.EdsObjectEvent(event), C.uintptr_t(handle))
	})
	if err != nil {
		sink.close()
		return err
	}
	s.mu.Lock()
	s.sinks[camera] = sink
	s.mu.Unlock()
	return nil
}

func (s *cgoSDK) SendCommand(camera Ref, cmd CameraCommand, param int32) error {
	return s.call(func() C.EdsError {
		return C.EdsSendCommand(C.EdsCameraRef(cref(camera)), C.EdsCameraCommand(cmd), C.EdsInt32(param))
	})
}

func (s *cgoSDK) GetDirectoryItemInfo(item Ref) (DirectoryItemInfo, error) {
	var info C.EdsDirectoryItemInfo
	err := s.call(func() C.EdsError {
		return C.EdsGetDirectoryItemInfo(C.EdsDirectoryItemRef(cref(item)), &info)
	})
	if err != nil {
		return DirectoryItemInfo{}, err
	}
	return DirectoryItemInfo{
		Size:     uint64(info.size),
		IsFolder: info.isFolder != 0,
		GroupID:  uint32(info.groupID),
		Option:   uint32(info.option),
		FileName: goString(&info.szFileName[0]),
		Format:   uint32(info.format),
		DateTime: uint32(info.dateTime),
	}, nil
}

func (s *cgoSDK) CreateFileStream(path string, disp FileCreateDisposition, access Access) (Ref, error) {
	cpath := C.CString(path)
	defer C.free(unsafe.Pointer(cpath))
	var stream C.EdsStreamRef
	err := s.call(func() C.EdsError {
		return C.EdsCreateFileStream((*C.EdsChar)(unsafe.Pointer(cpath)), C.EdsFileCreateDisposition(disp), C.EdsAccess(access), &stream)
	})
	return gref(C.EdsBaseRef(stream)), err
}

func (s *cgoSDK) Download(item Ref, size uint64, stream Ref) error {
	return s.call(func() C.EdsError {
		return C.EdsDownload(C.EdsDirectoryItemRef(cref(item)), C.EdsUInt64(size), C.EdsStreamRef(cref(stream)))
	})
}

func (s *cgoSDK) DownloadComplete(item Ref) error {
	return s.call(func() C.EdsError { return C.EdsDownloadComplete(C.EdsDirectoryItemRef(cref(item))) })
}

func (s *cgoSDK) DownloadCancel(item Ref) error {
	return s.call(func() C.EdsError { return C.EdsDownloadCancel(C.EdsDirectoryItemRef(cref(item))) })
}

func (s *cgoSDK) Release(ref Ref) (uint32, error) {
	var n C.EdsUInt32
	s.thread.do(func() { n = C.EdsRelease(cref(ref)) })
	if n == 0xFFFFFFFF {
		return 0, ErrInvalidHandle
	}
	return uint32(n), nil
}

func (s *cgoSDK) GetEvent() error {
	return s.call(func() C.EdsError { return C.EdsGetEvent() })
}
