/*
Package edsdk exposes the parts of Canon's EOS Digital SDK (EDSDK) needed to
remotely trigger a camera and pull the resulting file onto the host.

The SDK hands out opaque, reference counted objects (camera lists, cameras,
directory items, streams).  They are surfaced here as Ref values; every Ref
obtained from an SDK call must be given back with Release exactly once.

The real binding links against libEDSDK through cgo and is only compiled with
the "edsdk" build tag.  Without it, Open returns ErrUnavailable and only the
in-memory Mock is usable.  A typical session:

	sdk, _ := edsdk.Open()
	sdk.Initialize()
	list, _ := sdk.GetCameraList()
	cam, _ := sdk.GetChildAtIndex(list, 0)
	sdk.OpenSession(cam)
	sdk.SetPropertyUint32(cam, edsdk.PropSaveTo, uint32(edsdk.SaveToHost))
	sdk.SetObjectEventHandler(cam, edsdk.ObjectEventAll, handler)
	sdk.SendCommand(cam, edsdk.CommandTakePicture, 0)
	...
	sdk.CloseSession(cam)
	sdk.Release(cam)
	sdk.Release(list)
	sdk.Terminate()
*/
package edsdk

import "errors"

// ErrUnavailable is returned by Open when the binary was built without the
// edsdk tag and therefore has no vendor library linked in.
var ErrUnavailable = errors.New("EDSDK support not compiled in (rebuild with -tags edsdk)")

// Ref is an opaque SDK object reference (EdsBaseRef and friends).
type Ref uintptr

// NilRef is the zero reference.
const NilRef Ref = 0

// PropertyID identifies a camera property (kEdsPropID_*).
type PropertyID uint32

const (
	PropProductName  PropertyID = 0x00000002
	PropBatteryLevel PropertyID = 0x00000008
	PropSaveTo       PropertyID = 0x0000000b
	PropBodyIDEx     PropertyID = 0x00000015
)

// SaveTo is the value of PropSaveTo (EdsSaveTo).
type SaveTo uint32

const (
	SaveToCamera SaveTo = 1
	SaveToHost   SaveTo = 2
	SaveToBoth   SaveTo = 3
)

// ParseSaveTo converts a config value ("camera", "host", "both") to a SaveTo.
func ParseSaveTo(s string) (SaveTo, bool) {
	switch s {
	case "camera":
		return SaveToCamera, true
	case "host", "":
		return SaveToHost, true
	case "both":
		return SaveToBoth, true
	}
	return 0, false
}

func (s SaveTo) String() string {
	switch s {
	case SaveToCamera:
		return "camera"
	case SaveToHost:
		return "host"
	case SaveToBoth:
		return "both"
	}
	return "unknown"
}

// ObjectEvent is an object event code (kEdsObjectEvent_*).
type ObjectEvent uint32

const (
	ObjectEventAll                    ObjectEvent = 0x00000200
	ObjectEventVolumeInfoChanged      ObjectEvent = 0x00000201
	ObjectEventVolumeUpdateItems      ObjectEvent = 0x00000202
	ObjectEventFolderUpdateItems      ObjectEvent = 0x00000203
	ObjectEventDirItemCreated         ObjectEvent = 0x00000204
	ObjectEventDirItemRemoved         ObjectEvent = 0x00000205
	ObjectEventDirItemInfoChanged     ObjectEvent = 0x00000206
	ObjectEventDirItemContentChanged  ObjectEvent = 0x00000207
	ObjectEventDirItemRequestTransfer ObjectEvent = 0x00000208
	ObjectEventDirItemRequestTransDT  ObjectEvent = 0x00000209
	ObjectEventDirItemCancelTransDT   ObjectEvent = 0x0000020a
	ObjectEventVolumeAdded            ObjectEvent = 0x0000020c
	ObjectEventVolumeRemoved          ObjectEvent = 0x0000020d
)

var objectEventNames = map[ObjectEvent]string{
	ObjectEventAll:                    "All",
	ObjectEventVolumeInfoChanged:      "VolumeInfoChanged",
	ObjectEventVolumeUpdateItems:      "VolumeUpdateItems",
	ObjectEventFolderUpdateItems:      "FolderUpdateItems",
	ObjectEventDirItemCreated:         "DirItemCreated",
	ObjectEventDirItemRemoved:         "DirItemRemoved",
	ObjectEventDirItemInfoChanged:     "DirItemInfoChanged",
	ObjectEventDirItemContentChanged:  "DirItemContentChanged",
	ObjectEventDirItemRequestTransfer: "DirItemRequestTransfer",
	ObjectEventDirItemRequestTransDT:  "DirItemRequestTransferDT",
	ObjectEventDirItemCancelTransDT:   "DirItemCancelTransferDT",
	ObjectEventVolumeAdded:            "VolumeAdded",
	ObjectEventVolumeRemoved:          "VolumeRemoved",
}

func (e ObjectEvent) String() string {
	if s, ok := objectEventNames[e]; ok {
		return s
	}
	return "Unknown"
}

// CameraCommand is a command sent with SendCommand (kEdsCameraCommand_*).
type CameraCommand uint32

const (
	CommandTakePicture         CameraCommand = 0x00000000
	CommandExtendShutDownTimer CameraCommand = 0x00000001
	CommandPressShutterButton  CameraCommand = 0x00000004
)

// FileCreateDisposition mirrors EdsFileCreateDisposition.
type FileCreateDisposition uint32

const (
	CreateNew FileCreateDisposition = iota
	CreateAlways
	OpenExisting
	OpenAlways
	TruncateExisting
)

// Access mirrors EdsAccess.
type Access uint32

const (
	AccessRead Access = iota
	AccessWrite
	AccessReadWrite
)

// DeviceInfo describes a connected body (EdsDeviceInfo).
type DeviceInfo struct {
	PortName          string `json:"port_name"`
	DeviceDescription string `json:"device_description"`
	DeviceSubType     uint32 `json:"device_sub_type"`
}

// DirectoryItemInfo describes a file on the camera (EdsDirectoryItemInfo).
type DirectoryItemInfo struct {
	Size     uint64 `json:"size"`
	IsFolder bool   `json:"is_folder"`
	GroupID  uint32 `json:"group_id"`
	Option   uint32 `json:"option"`
	FileName string `json:"file_name"`
	Format   uint32 `json:"format"`
	DateTime uint32 `json:"date_time"`
}

// Capacity tells the camera how much room the host has (EdsCapacity).  Bodies
// refuse to shoot in SaveToHost mode until a non-zero capacity was set.
type Capacity struct {
	NumberOfFreeClusters int32
	BytesPerSector       int32
	Reset                bool
}

// DefaultHostCapacity is a large, fixed capacity that keeps the camera from
// reporting "card full" while saving to the host.
var DefaultHostCapacity = Capacity{
	NumberOfFreeClusters: 0x7FFFFFFF,
	BytesPerSector:       0x1000,
	Reset:                true,
}

// ObjectEventHandler receives object events.  It runs on whatever thread the
// SDK dispatches from.  The handler owns obj and must release it.
type ObjectEventHandler func(event ObjectEvent, obj Ref) error

// SDK is the subset of the EDSDK C API used by this program.  All methods map
// one to one onto the Eds* function of the same name.
type SDK interface {
	Initialize() error
	Terminate() error

	GetCameraList() (Ref, error)
	GetChildCount(ref Ref) (int, error)
	GetChildAtIndex(ref Ref, index int) (Ref, error)
	GetDeviceInfo(camera Ref) (DeviceInfo, error)

	OpenSession(camera Ref) error
	CloseSession(camera Ref) error

	SetPropertyUint32(ref Ref, prop PropertyID, value uint32) error
	GetPropertyString(ref Ref, prop PropertyID) (string, error)
	SetCapacity(camera Ref, c Capacity) error

	SetObjectEventHandler(camera Ref, event ObjectEvent, h ObjectEventHandler) error
	SendCommand(camera Ref, cmd CameraCommand, param int32) error

	GetDirectoryItemInfo(item Ref) (DirectoryItemInfo, error)
	CreateFileStream(path string, disp FileCreateDisposition, access Access) (Ref, error)
	Download(item Ref, size uint64, stream Ref) error
	DownloadComplete(item Ref) error
	DownloadCancel(item Ref) error

	// Release decrements the reference count and returns the new count.
	Release(ref Ref) (uint32, error)

	// GetEvent pumps the SDK event queue.  Required on macOS and Linux for
	// callbacks to be dispatched; harmless on Windows.
	GetEvent() error
}
