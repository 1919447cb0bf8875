//go:build edsdk

package edsdk

/*
#include "EDSDK.h"
*/
import "C"
import (
	"runtime/cgo"
	"unsafe"
)

// goObjectEventHandler is the C entry point registered with
// EdsSetObjectEventHandler.  inContext carries the cgo.Handle of an eventSink.
//
//export goObjectEventHandler
func goObjectEventHandler(inEvent C.EdsObjectEvent, inRef C.EdsBaseRef, inContext unsafe.Pointer) (code C.EdsError) {
	defer func() {
		// a handle deleted by CloseSession while the SDK still had an event
		// in flight panics in Value
		if recover() != nil {
			if inRef != nil {
				C.EdsRelease(inRef)
			}
			code = C.EDS_ERR_OK
		}
	}()

	sink, ok := cgo.Handle(uintptr(inContext)).Value().(*eventSink)
	if !ok {
		return C.EDS_ERR_INVALID_PARAMETER
	}
	ev := rawEvent{event: ObjectEvent(inEvent), ref: gref(inRef)}
	if !sink.push(ev) && inRef != nil {
		C.EdsRelease(inRef)
	}
	return C.EDS_ERR_OK
}
