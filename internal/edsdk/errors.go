package edsdk

import (
	"errors"
	"fmt"
)

// Error is an EdsError code returned by the SDK.
type Error uint32

// OK is the success sentinel (EDS_ERR_OK).  Check never produces it as an error.
const OK Error = 0x00000000

const (
	ErrUnimplemented         Error = 0x00000001
	ErrInternalError         Error = 0x00000002
	ErrMemAllocFailed        Error = 0x00000003
	ErrOperationCancelled    Error = 0x00000005
	ErrIncompatibleVersion   Error = 0x00000006
	ErrNotSupported          Error = 0x00000007
	ErrFileIOError           Error = 0x00000020
	ErrFileNotFound          Error = 0x00000022
	ErrFileOpenError         Error = 0x00000023
	ErrFileWriteError        Error = 0x00000028
	ErrFilePermissionError   Error = 0x00000029
	ErrFileDiskFullError     Error = 0x0000002A
	ErrFileAlreadyExists     Error = 0x0000002B
	ErrDirNotFound           Error = 0x00000040
	ErrPropertiesUnavailable Error = 0x00000050
	ErrPropertiesMismatch    Error = 0x00000051
	ErrInvalidParameter      Error = 0x00000060
	ErrInvalidHandle         Error = 0x00000061
	ErrInvalidPointer        Error = 0x00000062
	ErrInvalidIndex          Error = 0x00000063
	ErrInvalidLength         Error = 0x00000064
	ErrInvalidFnPointer      Error = 0x00000065
	ErrDeviceNotFound        Error = 0x00000080
	ErrDeviceBusy            Error = 0x00000081
	ErrDeviceInvalid         Error = 0x00000082
	ErrDeviceEmergency       Error = 0x00000083
	ErrDeviceMemoryFull      Error = 0x00000084
	ErrDeviceInternalError   Error = 0x00000085
	ErrDeviceNoDisk          Error = 0x00000087
	ErrDeviceNotReleased     Error = 0x0000008D
	ErrStreamIOError         Error = 0x000000A0
	ErrStreamWriteError      Error = 0x000000A6
	ErrCommPortInUse         Error = 0x000000C0
	ErrCommDisconnected      Error = 0x000000C1
	ErrCommDeviceIncompat    Error = 0x000000C2
	ErrCommUSBBusErr         Error = 0x000000C4
	ErrUSBDeviceLockError    Error = 0x000000D0
	ErrInvalidFnCall         Error = 0x000000F1
	ErrHandleNotFound        Error = 0x000000F2
	ErrWaitTimeoutError      Error = 0x000000F4
	ErrSessionNotOpen        Error = 0x00002003
	ErrIncompleteTransfer    Error = 0x00002007
	ErrDevicePropNotSupport  Error = 0x0000200A
	ErrPTPDeviceBusy         Error = 0x00002019
	ErrInvalidDevicePropVal  Error = 0x0000201C
	ErrSessionAlreadyOpen    Error = 0x0000201E
	ErrTransactionCancelled  Error = 0x0000201F
	ErrTakePictureAFNG       Error = 0x00008D01
	ErrTakePictureMirrorUpNG Error = 0x00008D03
	ErrTakePictureNoCardNG   Error = 0x00008D06
	ErrTakePictureCardNG     Error = 0x00008D07
)

var errNames = map[Error]string{
	OK:                       "EDS_ERR_OK",
	ErrUnimplemented:         "EDS_ERR_UNIMPLEMENTED",
	ErrInternalError:         "EDS_ERR_INTERNAL_ERROR",
	ErrMemAllocFailed:        "EDS_ERR_MEM_ALLOC_FAILED",
	ErrOperationCancelled:    "EDS_ERR_OPERATION_CANCELLED",
	ErrIncompatibleVersion:   "EDS_ERR_INCOMPATIBLE_VERSION",
	ErrNotSupported:          "EDS_ERR_NOT_SUPPORTED",
	ErrFileIOError:           "EDS_ERR_FILE_IO_ERROR",
	ErrFileNotFound:          "EDS_ERR_FILE_NOT_FOUND",
	ErrFileOpenError:         "EDS_ERR_FILE_OPEN_ERROR",
	ErrFileWriteError:        "EDS_ERR_FILE_WRITE_ERROR",
	ErrFilePermissionError:   "EDS_ERR_FILE_PERMISSION_ERROR",
	ErrFileDiskFullError:     "EDS_ERR_FILE_DISK_FULL_ERROR",
	ErrFileAlreadyExists:     "EDS_ERR_FILE_ALREADY_EXISTS",
	ErrDirNotFound:           "EDS_ERR_DIR_NOT_FOUND",
	ErrPropertiesUnavailable: "EDS_ERR_PROPERTIES_UNAVAILABLE",
	ErrPropertiesMismatch:    "EDS_ERR_PROPERTIES_MISMATCH",
	ErrInvalidParameter:      "EDS_ERR_INVALID_PARAMETER",
	ErrInvalidHandle:         "EDS_ERR_INVALID_HANDLE",
	ErrInvalidPointer:        "EDS_ERR_INVALID_POINTER",
	ErrInvalidIndex:          "EDS_ERR_INVALID_INDEX",
	ErrInvalidLength:         "EDS_ERR_INVALID_LENGTH",
	ErrInvalidFnPointer:      "EDS_ERR_INVALID_FN_POINTER",
	ErrDeviceNotFound:        "EDS_ERR_DEVICE_NOT_FOUND",
	ErrDeviceBusy:            "EDS_ERR_DEVICE_BUSY",
	ErrDeviceInvalid:         "EDS_ERR_DEVICE_INVALID",
	ErrDeviceEmergency:       "EDS_ERR_DEVICE_EMERGENCY",
	ErrDeviceMemoryFull:      "EDS_ERR_DEVICE_MEMORY_FULL",
	ErrDeviceInternalError:   "EDS_ERR_DEVICE_INTERNAL_ERROR",
	ErrDeviceNoDisk:          "EDS_ERR_DEVICE_NO_DISK",
	ErrDeviceNotReleased:     "EDS_ERR_DEVICE_NOT_RELEASED",
	ErrStreamIOError:         "EDS_ERR_STREAM_IO_ERROR",
	ErrStreamWriteError:      "EDS_ERR_STREAM_WRITE_ERROR",
	ErrCommPortInUse:         "EDS_ERR_COMM_PORT_IS_IN_USE",
	ErrCommDisconnected:      "EDS_ERR_COMM_DISCONNECTED",
	ErrCommDeviceIncompat:    "EDS_ERR_COMM_DEVICE_INCOMPATIBLE",
	ErrCommUSBBusErr:         "EDS_ERR_COMM_USB_BUS_ERR",
	ErrUSBDeviceLockError:    "EDS_ERR_USB_DEVICE_LOCK_ERROR",
	ErrInvalidFnCall:         "EDS_ERR_INVALID_FN_CALL",
	ErrHandleNotFound:        "EDS_ERR_HANDLE_NOT_FOUND",
	ErrWaitTimeoutError:      "EDS_ERR_WAIT_TIMEOUT_ERROR",
	ErrSessionNotOpen:        "EDS_ERR_SESSION_NOT_OPEN",
	ErrIncompleteTransfer:    "EDS_ERR_INCOMPLETE_TRANSFER",
	ErrDevicePropNotSupport:  "EDS_ERR_DEVICEPROP_NOT_SUPPORTED",
	ErrPTPDeviceBusy:         "EDS_ERR_PTP_DEVICE_BUSY",
	ErrInvalidDevicePropVal:  "EDS_ERR_INVALID_DEVICEPROP_VALUE",
	ErrSessionAlreadyOpen:    "EDS_ERR_SESSION_ALREADY_OPEN",
	ErrTransactionCancelled:  "EDS_ERR_TRANSACTION_CANCELLED",
	ErrTakePictureAFNG:       "EDS_ERR_TAKE_PICTURE_AF_NG",
	ErrTakePictureMirrorUpNG: "EDS_ERR_TAKE_PICTURE_MIRROR_UP_NG",
	ErrTakePictureNoCardNG:   "EDS_ERR_TAKE_PICTURE_NO_CARD_NG",
	ErrTakePictureCardNG:     "EDS_ERR_TAKE_PICTURE_CARD_NG",
}

func (e Error) Error() string {
	if s, ok := errNames[e]; ok {
		return fmt.Sprintf("0x%08X - %s", uint32(e), s)
	}
	return fmt.Sprintf("0x%08X - UNKNOWN_ERROR_CODE", uint32(e))
}

// Name returns the symbolic EDS_ERR_* name, or "" if the code is unknown.
func (e Error) Name() string {
	return errNames[e]
}

// Busy reports whether the code means the body is temporarily unable to
// respond and the call is worth repeating.
func (e Error) Busy() bool {
	switch e {
	case ErrDeviceBusy, ErrPTPDeviceBusy, ErrCommPortInUse, ErrUSBDeviceLockError:
		return true
	}
	return false
}

// Check returns nil for OK and the code as an error otherwise.
func Check(code uint32) error {
	if Error(code) == OK {
		return nil
	}
	return Error(code)
}

// Code extracts the EdsError code from err.  It returns OK for nil and false
// when err carries no SDK code.
func Code(err error) (Error, bool) {
	if err == nil {
		return OK, true
	}
	var e Error
	if errors.As(err, &e) {
		return e, true
	}
	return 0, false
}
