// Package usb provides the bulk transfer channel the rest of the FEL stack
// is built on: a device in FEL mode enumerates as a single vendor interface
// with one bulk-OUT and one bulk-IN endpoint, and every higher layer moves
// bytes by looping bulk transfers until a buffer is exhausted.
package usb

// Endpoint addresses fixed by the Allwinner FEL boot ROM.
const (
	EPOut = 0x01
	EPIn  = 0x82
)

// Default vendor:product identifying a board in FEL mode.
const (
	DefaultVID = 0x1f3a
	DefaultPID = 0xefe8
)

// Device is the bulk transport every protocol layer is written against.
// BulkSend/BulkRecv loop internally until the whole buffer has moved or an
// error occurs; callers never see partial completions.
type Device interface {
	BulkSend(ep int, buf []byte) error
	BulkRecv(ep int, buf []byte) error
}

// Session is an opened Device that owns exclusive access to the USB
// interface until Close releases it.
type Session interface {
	Device
	Close() error
}

// Opener locates and opens a FEL device. A real Opener uses a short-lived
// libusb context per FindDevice call and a separate, session-scoped context
// for Open, so enumeration never outlives the probe that needed it.
type Opener interface {
	FindDevice() bool
	Open() (Session, error)
}
