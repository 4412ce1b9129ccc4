//go:build !mips && !mipsle
// +build !mips,!mipsle

// Direct USB access to the FEL device via gousb: open by VID:PID, claim an
// interface, resolve bulk endpoints. Excluded on MIPS builds, where gousb's
// cgo dependency on libusb doesn't build.
package usb

import (
	"context"
	"time"

	"github.com/google/gousb"

	"github.com/cubieflash/felflash/internal/errs"
)

// GousbOpener finds and opens a FEL device by VID:PID using libusb via gousb.
type GousbOpener struct {
	VID, PID gousb.ID
	Timeout  time.Duration
}

// NewGousbOpener builds an Opener for the given VID:PID pair with the
// default 60s per-transfer timeout.
func NewGousbOpener(vid, pid uint16) *GousbOpener {
	return &GousbOpener{VID: gousb.ID(vid), PID: gousb.ID(pid), Timeout: 60 * time.Second}
}

// FindDevice enumerates USB devices under a context scoped to this call only
// and reports whether any match VID:PID. It never leaves context state
// allocated, so it is safe to call repeatedly from a concurrent presence
// poller while an unrelated session holds the device open.
func (o *GousbOpener) FindDevice() bool {
	ctx := gousb.NewContext()
	defer ctx.Close()

	found := false
	devs, err := ctx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		if desc.Vendor == o.VID && desc.Product == o.PID {
			found = true
		}
		return false
	})
	for _, d := range devs {
		d.Close()
	}
	_ = err
	return found
}

// gousbSession is a Session backed by an open gousb device with its
// interface claimed and endpoints resolved.
type gousbSession struct {
	ctx     *gousb.Context
	dev     *gousb.Device
	cfg     *gousb.Config
	intf    *gousb.Interface
	epOut   *gousb.OutEndpoint
	epIn    *gousb.InEndpoint
	timeout time.Duration
}

// Open claims interface 0 of the first device matching VID:PID, detaching
// any bound kernel driver (gousb's SetAutoDetach handles both the detach on
// open and the reattach on close that the device handle must track).
func (o *GousbOpener) Open() (Session, error) {
	ctx := gousb.NewContext()

	dev, err := ctx.OpenDeviceWithVIDPID(o.VID, o.PID)
	if err != nil {
		ctx.Close()
		return nil, errs.ResourceErrorf("usb.open", "open device %04x:%04x: %w (root privileges may be required)", o.VID, o.PID, err)
	}
	if dev == nil {
		ctx.Close()
		return nil, errs.ResourceErrorf("usb.open", "FEL device %04x:%04x not found", o.VID, o.PID)
	}

	if err := dev.SetAutoDetach(true); err != nil {
		// Not fatal: some hosts don't need driver detachment at all.
		_ = err
	}

	cfg, err := dev.Config(1)
	if err != nil {
		dev.Close()
		ctx.Close()
		return nil, errs.ResourceErrorf("usb.open", "set config: %w", err)
	}

	intf, err := cfg.Interface(0, 0)
	if err != nil {
		cfg.Close()
		dev.Close()
		ctx.Close()
		return nil, errs.ResourceErrorf("usb.open", "claim interface 0: %w", err)
	}

	epOut, err := intf.OutEndpoint(EPOut)
	if err != nil {
		intf.Close()
		cfg.Close()
		dev.Close()
		ctx.Close()
		return nil, errs.ResourceErrorf("usb.open", "open OUT endpoint 0x%02x: %w", EPOut, err)
	}

	epIn, err := intf.InEndpoint(EPIn)
	if err != nil {
		intf.Close()
		cfg.Close()
		dev.Close()
		ctx.Close()
		return nil, errs.ResourceErrorf("usb.open", "open IN endpoint 0x%02x: %w", EPIn, err)
	}

	timeout := o.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}

	return &gousbSession{ctx: ctx, dev: dev, cfg: cfg, intf: intf, epOut: epOut, epIn: epIn, timeout: timeout}, nil
}

// BulkSend loops Write calls on the OUT endpoint until buf is fully sent or
// an error occurs, advancing the buffer pointer on every partial write.
func (s *gousbSession) BulkSend(ep int, buf []byte) error {
	return loopTransfer("usb.bulk_send", func(b []byte) (int, error) {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()
		return s.epOut.WriteContext(ctx, b)
	}, buf)
}

// BulkRecv loops ReadContext calls on the IN endpoint until buf is fully
// populated or an error occurs.
func (s *gousbSession) BulkRecv(ep int, buf []byte) error {
	return loopTransfer("usb.bulk_recv", func(b []byte) (int, error) {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()
		return s.epIn.ReadContext(ctx, b)
	}, buf)
}

// Close releases the interface, device and context in reverse acquisition
// order. gousb reattaches any kernel driver it detached automatically.
func (s *gousbSession) Close() error {
	if s.intf != nil {
		s.intf.Close()
	}
	if s.cfg != nil {
		s.cfg.Close()
	}
	if s.dev != nil {
		s.dev.Close()
	}
	if s.ctx != nil {
		s.ctx.Close()
	}
	return nil
}
