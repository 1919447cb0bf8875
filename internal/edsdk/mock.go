package edsdk

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"
)

// MockCamera describes one simulated body for Mock.
type MockCamera struct {
	Name     string // ProductName property
	Port     string
	FileName string // fixed name for every shot; empty numbers them IMG_0001.JPG, IMG_0002.JPG...
	Image    []byte // bytes written on Download

	// Events emitted for each TakePicture.  Defaults to a single
	// DirItemRequestTransfer, what bodies send in SaveToHost mode.
	Events []ObjectEvent
}

type mockKind int

const (
	kindList mockKind = iota
	kindCamera
	kindItem
	kindStream
)

func (k mockKind) String() string {
	return [...]string{"list", "camera", "item", "stream"}[k]
}

type mockObject struct {
	kind  mockKind
	refs  uint32
	cam   int // index into Mock.cameras for cameras and items
	file  *os.File
	shot  int
	dlEnd bool
}

type mockEvent struct {
	camera Ref
	event  ObjectEvent
	item   Ref
}

type mockHandler struct {
	event ObjectEvent
	h     ObjectEventHandler
}

type mockFailure struct {
	code  Error
	times int // <= 0 means every call
}

// Mock is an in-memory SDK simulating Canon bodies.  Object events queued by
// TakePicture are delivered from GetEvent, as on macOS and Linux.  Mock is
// safe for concurrent use.
type Mock struct {
	mu          sync.Mutex
	cameras     []MockCamera
	objects     map[Ref]*mockObject
	next        Ref
	initialized bool
	sessions    map[int]bool
	props       map[int]map[PropertyID]uint32
	capacity    map[int]Capacity
	handlers    map[Ref]mockHandler
	pending     []mockEvent
	failures    map[string]*mockFailure
	calls       []string
	shots       int
}

// NewMock returns a Mock with the given cameras attached.
func NewMock(cameras ...MockCamera) *Mock {
	for i := range cameras {
		if cameras[i].Name == "" {
			cameras[i].Name = "Canon EOS Mock"
		}
		if cameras[i].Image == nil {
			cameras[i].Image = MockJPEG
		}
		if len(cameras[i].Events) == 0 {
			cameras[i].Events = []ObjectEvent{ObjectEventDirItemRequestTransfer}
		}
	}
	return &Mock{
		cameras:  cameras,
		objects:  make(map[Ref]*mockObject),
		next:     0x1000,
		sessions: make(map[int]bool),
		props:    make(map[int]map[PropertyID]uint32),
		capacity: make(map[int]Capacity),
		handlers: make(map[Ref]mockHandler),
		failures: make(map[string]*mockFailure),
	}
}

// MockJPEG is a minimal JPEG (SOI, APP0 JFIF, EOI) used as default image data.
var MockJPEG = []byte{
	0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 'J', 'F', 'I', 'F', 0x00,
	0x01, 0x01, 0x00, 0x00, 0x01, 0x00, 0x01, 0x00, 0x00, 0xFF, 0xD9,
}

// FailOn makes the named method (e.g. "OpenSession") return code.  times
// limits how many calls fail; times <= 0 fails every call.
func (m *Mock) FailOn(method string, code Error, times int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[method] = &mockFailure{code: code, times: times}
}

// Calls returns the methods invoked so far, in order.
func (m *Mock) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.calls))
	copy(out, m.calls)
	return out
}

// Live returns the number of objects not yet released.
func (m *Mock) Live() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.objects)
}

// Initialized reports whether Initialize was called without a matching Terminate.
func (m *Mock) Initialized() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.initialized
}

// SessionOpen reports whether camera index i has an open session.
func (m *Mock) SessionOpen(i int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[i]
}

// Property returns the last value set for prop on camera index i.
func (m *Mock) Property(i int, prop PropertyID) (uint32, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.props[i][prop]
	return v, ok
}

// enter records a call and returns the injected failure, if any.
// m.mu must be held.
func (m *Mock) enter(method string) error {
	m.calls = append(m.calls, method)
	f, ok := m.failures[method]
	if !ok {
		return nil
	}
	if f.times > 0 {
		f.times--
		if f.times == 0 {
			delete(m.failures, method)
		}
	}
	return f.code
}

func (m *Mock) ready() error {
	if !m.initialized {
		return ErrInvalidFnCall
	}
	return nil
}

func (m *Mock) alloc(o *mockObject) Ref {
	m.next += 0x10
	o.refs = 1
	m.objects[m.next] = o
	return m.next
}

func (m *Mock) object(ref Ref, kind mockKind) (*mockObject, error) {
	o, ok := m.objects[ref]
	if !ok || o.kind != kind {
		return nil, ErrInvalidHandle
	}
	return o, nil
}

func (m *Mock) Initialize() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("Initialize"); err != nil {
		return err
	}
	m.initialized = true
	return nil
}

func (m *Mock) Terminate() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("Terminate"); err != nil {
		return err
	}
	if err := m.ready(); err != nil {
		return err
	}
	m.initialized = false
	m.handlers = make(map[Ref]mockHandler)
	m.pending = nil
	return nil
}

func (m *Mock) GetCameraList() (Ref, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("GetCameraList"); err != nil {
		return NilRef, err
	}
	if err := m.ready(); err != nil {
		return NilRef, err
	}
	return m.alloc(&mockObject{kind: kindList}), nil
}

func (m *Mock) GetChildCount(ref Ref) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("GetChildCount"); err != nil {
		return 0, err
	}
	if _, err := m.object(ref, kindList); err != nil {
		return 0, err
	}
	return len(m.cameras), nil
}

func (m *Mock) GetChildAtIndex(ref Ref, index int) (Ref, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("GetChildAtIndex"); err != nil {
		return NilRef, err
	}
	if _, err := m.object(ref, kindList); err != nil {
		return NilRef, err
	}
	if index < 0 || index >= len(m.cameras) {
		return NilRef, ErrInvalidIndex
	}
	return m.alloc(&mockObject{kind: kindCamera, cam: index}), nil
}

func (m *Mock) GetDeviceInfo(camera Ref) (DeviceInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("GetDeviceInfo"); err != nil {
		return DeviceInfo{}, err
	}
	o, err := m.object(camera, kindCamera)
	if err != nil {
		return DeviceInfo{}, err
	}
	c := m.cameras[o.cam]
	return DeviceInfo{PortName: c.Port, DeviceDescription: c.Name}, nil
}

func (m *Mock) OpenSession(camera Ref) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("OpenSession"); err != nil {
		return err
	}
	o, err := m.object(camera, kindCamera)
	if err != nil {
		return err
	}
	if m.sessions[o.cam] {
		return ErrSessionAlreadyOpen
	}
	m.sessions[o.cam] = true
	return nil
}

func (m *Mock) CloseSession(camera Ref) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("CloseSession"); err != nil {
		return err
	}
	o, err := m.object(camera, kindCamera)
	if err != nil {
		return err
	}
	if !m.sessions[o.cam] {
		return ErrSessionNotOpen
	}
	m.sessions[o.cam] = false
	delete(m.handlers, camera)
	return nil
}

func (m *Mock) SetPropertyUint32(ref Ref, prop PropertyID, value uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("SetPropertyData"); err != nil {
		return err
	}
	o, err := m.object(ref, kindCamera)
	if err != nil {
		return err
	}
	if !m.sessions[o.cam] {
		return ErrSessionNotOpen
	}
	if m.props[o.cam] == nil {
		m.props[o.cam] = make(map[PropertyID]uint32)
	}
	m.props[o.cam][prop] = value
	return nil
}

func (m *Mock) GetPropertyString(ref Ref, prop PropertyID) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("GetPropertyData"); err != nil {
		return "", err
	}
	o, err := m.object(ref, kindCamera)
	if err != nil {
		return "", err
	}
	switch prop {
	case PropProductName:
		return m.cameras[o.cam].Name, nil
	case PropBodyIDEx:
		return fmt.Sprintf("%012d", o.cam+1), nil
	}
	return "", ErrPropertiesUnavailable
}

func (m *Mock) SetCapacity(camera Ref, c Capacity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("SetCapacity"); err != nil {
		return err
	}
	o, err := m.object(camera, kindCamera)
	if err != nil {
		return err
	}
	m.capacity[o.cam] = c
	return nil
}

func (m *Mock) SetObjectEventHandler(camera Ref, event ObjectEvent, h ObjectEventHandler) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("SetObjectEventHandler"); err != nil {
		return err
	}
	if _, err := m.object(camera, kindCamera); err != nil {
		return err
	}
	if h == nil {
		delete(m.handlers, camera)
		return nil
	}
	m.handlers[camera] = mockHandler{event: event, h: h}
	return nil
}

func (m *Mock) SendCommand(camera Ref, cmd CameraCommand, param int32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("SendCommand"); err != nil {
		return err
	}
	o, err := m.object(camera, kindCamera)
	if err != nil {
		return err
	}
	if !m.sessions[o.cam] {
		return ErrSessionNotOpen
	}
	if cmd != CommandTakePicture {
		return nil
	}
	if SaveTo(m.props[o.cam][PropSaveTo]) != SaveToCamera && m.capacity[o.cam].NumberOfFreeClusters == 0 {
		// the body believes the host disk is full
		return ErrTakePictureCardNG
	}
	m.shots++
	for _, ev := range m.cameras[o.cam].Events {
		item := m.alloc(&mockObject{kind: kindItem, cam: o.cam, shot: m.shots})
		m.pending = append(m.pending, mockEvent{camera: camera, event: ev, item: item})
	}
	return nil
}

// GetEvent delivers queued object events to registered handlers.  Events for
// cameras without a matching handler are released on the handler's behalf.
func (m *Mock) GetEvent() error {
	m.mu.Lock()
	if err := m.enter("GetEvent"); err != nil {
		m.mu.Unlock()
		return err
	}
	pending := m.pending
	m.pending = nil
	type delivery struct {
		ev mockEvent
		h  ObjectEventHandler
	}
	var deliver []delivery
	for _, ev := range pending {
		mh, ok := m.handlers[ev.camera]
		if !ok || (mh.event != ObjectEventAll && mh.event != ev.event) {
			delete(m.objects, ev.item)
			continue
		}
		deliver = append(deliver, delivery{ev: ev, h: mh.h})
	}
	m.mu.Unlock()

	for _, d := range deliver {
		_ = d.h(d.ev.event, d.ev.item)
	}
	return nil
}

func (m *Mock) GetDirectoryItemInfo(item Ref) (DirectoryItemInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("GetDirectoryItemInfo"); err != nil {
		return DirectoryItemInfo{}, err
	}
	o, err := m.object(item, kindItem)
	if err != nil {
		return DirectoryItemInfo{}, err
	}
	c := m.cameras[o.cam]
	name := c.FileName
	if name == "" {
		name = fmt.Sprintf("IMG_%04d.JPG", o.shot)
	}
	return DirectoryItemInfo{
		Size:     uint64(len(c.Image)),
		FileName: name,
		Format:   0x3801, // PTP EXIF/JPEG
	}, nil
}

func (m *Mock) CreateFileStream(path string, disp FileCreateDisposition, access Access) (Ref, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("CreateFileStream"); err != nil {
		return NilRef, err
	}
	flag := os.O_WRONLY
	switch access {
	case AccessRead:
		flag = os.O_RDONLY
	case AccessReadWrite:
		flag = os.O_RDWR
	}
	switch disp {
	case CreateNew:
		flag |= os.O_CREATE | os.O_EXCL
	case CreateAlways:
		flag |= os.O_CREATE | os.O_TRUNC
	case OpenAlways:
		flag |= os.O_CREATE
	case TruncateExisting:
		flag |= os.O_TRUNC
	}
	f, err := os.OpenFile(path, flag, 0o644)
	switch {
	case errors.Is(err, fs.ErrExist):
		return NilRef, ErrFileAlreadyExists
	case errors.Is(err, fs.ErrNotExist):
		return NilRef, ErrFileNotFound
	case errors.Is(err, fs.ErrPermission):
		return NilRef, ErrFilePermissionError
	case err != nil:
		return NilRef, ErrFileOpenError
	}
	return m.alloc(&mockObject{kind: kindStream, file: f}), nil
}

func (m *Mock) Download(item Ref, size uint64, stream Ref) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("Download"); err != nil {
		return err
	}
	o, err := m.object(item, kindItem)
	if err != nil {
		return err
	}
	s, err := m.object(stream, kindStream)
	if err != nil {
		return err
	}
	img := m.cameras[o.cam].Image
	if size > uint64(len(img)) {
		return ErrInvalidLength
	}
	if _, err := s.file.Write(img[:size]); err != nil {
		return ErrFileWriteError
	}
	return nil
}

func (m *Mock) DownloadComplete(item Ref) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("DownloadComplete"); err != nil {
		return err
	}
	o, err := m.object(item, kindItem)
	if err != nil {
		return err
	}
	o.dlEnd = true
	return nil
}

func (m *Mock) DownloadCancel(item Ref) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("DownloadCancel"); err != nil {
		return err
	}
	_, err := m.object(item, kindItem)
	return err
}

func (m *Mock) Release(ref Ref) (uint32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("Release"); err != nil {
		return 0, err
	}
	o, ok := m.objects[ref]
	if !ok {
		return 0, ErrInvalidHandle
	}
	o.refs--
	if o.refs > 0 {
		return o.refs, nil
	}
	if o.file != nil {
		_ = o.file.Close()
	}
	delete(m.objects, ref)
	return 0, nil
}
