// Package fel2 implements the richer FEL-2 command set exposed once the
// in-RAM loader is running: RDWR with direction and target flags, EXEC, and
// the 0x0203/0x0204/0x0205 polling/transfer operations.
package fel2

import (
	"encoding/binary"

	"github.com/cubieflash/felflash/internal/awusb"
	"github.com/cubieflash/felflash/internal/errs"
	"github.com/cubieflash/felflash/internal/usb"
)

// Commands.
const (
	CmdRDWR uint32 = 0x0201
	CmdExec uint32 = 0x0202
	Cmd0203 uint32 = 0x0203
	Cmd0204 uint32 = 0x0204
	Cmd0205 uint32 = 0x0205
)

// Target and direction flags packed into the request's pad field.
const (
	TargetDRAM uint32 = 0
	TargetNAND uint32 = 1 << 5

	FlagWrite     uint32 = 1 << 12
	FlagRead      uint32 = 1 << 13
	directionMask uint32 = FlagWrite | FlagRead

	FlagFirst uint32 = 1 << 14
	FlagLast  uint32 = 1 << 15
)

const requestLen = 16

var successTrailer = [8]byte{0xFF, 0xFF, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00}

// Direction selects which way the payload half of an RDWR moves.
type Direction int

const (
	DirWrite Direction = iota
	DirRead
)

func encodeRequest(cmd, address, length, pad uint32) [requestLen]byte {
	var buf [requestLen]byte
	binary.LittleEndian.PutUint32(buf[0:4], cmd)
	binary.LittleEndian.PutUint32(buf[4:8], address)
	binary.LittleEndian.PutUint32(buf[8:12], length)
	binary.LittleEndian.PutUint32(buf[12:16], pad)
	return buf
}

func sendRequest(dev usb.Device, cmd, address, length, pad uint32) error {
	frame := encodeRequest(cmd, address, length, pad)
	return awusb.WriteTransfer(dev, frame[:])
}

func readStatus(dev usb.Device) error {
	var buf [8]byte
	if err := awusb.ReadTransfer(dev, buf[:]); err != nil {
		return err
	}
	if buf != successTrailer {
		return errs.ProtocolErrorf("fel2.status", "unexpected FEL status trailer % x", buf)
	}
	return nil
}

// RDWR masks out any direction bits already present in flags, sets exactly
// one of WRITE/READ per dir, issues RDWR, transfers the payload in that
// direction, and reads the status trailer.
func RDWR(dev usb.Device, addr uint32, buf []byte, flags uint32, dir Direction) error {
	flags &^= directionMask
	switch dir {
	case DirWrite:
		flags |= FlagWrite
	case DirRead:
		flags |= FlagRead
	}

	if err := sendRequest(dev, CmdRDWR, addr, uint32(len(buf)), flags); err != nil {
		return err
	}

	var err error
	switch dir {
	case DirWrite:
		err = awusb.WriteTransfer(dev, buf)
	case DirRead:
		err = awusb.ReadTransfer(dev, buf)
	}
	if err != nil {
		return err
	}
	return readStatus(dev)
}

// Write is RDWR targeting the given buffer in the write direction.
func Write(dev usb.Device, addr uint32, buf []byte, flags uint32) error {
	return RDWR(dev, addr, buf, flags, DirWrite)
}

// Read is RDWR targeting the given buffer in the read direction.
func Read(dev usb.Device, addr uint32, buf []byte, flags uint32) error {
	return RDWR(dev, addr, buf, flags, DirRead)
}

// Exec issues EXEC without reading a status trailer: once the loader is
// running it replies only to explicit polls.
func Exec(dev usb.Device, addr, p1, p2 uint32) error {
	return sendRequest(dev, CmdExec, addr, p1, p2)
}

// Op0203 issues the 0x0203 request without reading a status trailer.
func Op0203(dev usb.Device, addr, p1, p2 uint32) error {
	return sendRequest(dev, Cmd0203, addr, p1, p2)
}

// Op0204 issues the 0x0204 request without reading a status trailer.
func Op0204(dev usb.Device, length uint32) error {
	return sendRequest(dev, Cmd0204, 0, length, 0)
}

// Op0205 issues the 0x0205 request and reads its status trailer.
func Op0205(dev usb.Device, p1, p2, p3 uint32) error {
	if err := sendRequest(dev, Cmd0205, p1, p2, p3); err != nil {
		return err
	}
	return readStatus(dev)
}

// Send4Uints writes four little-endian uint32s straight to the wire with no
// RDWR command frame ahead of them, the generic parameter block several
// Stage 2 steps hand to the running loader. Unlike Write, this is a raw
// AWUSB transfer: no command envelope precedes the payload.
func Send4Uints(dev usb.Device, p1, p2, p3, p4 uint32) error {
	var buf [16]byte
	binary.LittleEndian.PutUint32(buf[0:4], p1)
	binary.LittleEndian.PutUint32(buf[4:8], p2)
	binary.LittleEndian.PutUint32(buf[8:12], p3)
	binary.LittleEndian.PutUint32(buf[12:16], p4)
	if err := awusb.WriteTransfer(dev, buf[:]); err != nil {
		return err
	}
	return readStatus(dev)
}

// PollUntilOK repeatedly issues Op0203 then reads 32 raw bytes (no status
// trailer) until the first two bytes are 0x00 0x01. yield, if non-nil, is
// called once per iteration so the caller can pump its event sink; the loop
// has no upper bound beyond whatever timeout the underlying transport uses.
func PollUntilOK(dev usb.Device, yield func()) error {
	for {
		if err := Op0203(dev, 0, 0, 0); err != nil {
			return err
		}
		var buf [32]byte
		if err := dev.BulkRecv(usb.EPIn, buf[:]); err != nil {
			return err
		}
		if buf[0] == 0x00 && buf[1] == 0x01 {
			return nil
		}
		if yield != nil {
			yield()
		}
	}
}

// PadRead performs a raw AWUSB payload transfer into buf followed by
// reading the FEL status trailer, used after commands that initiate a
// device-side payload exchange without an RDWR envelope of their own.
func PadRead(dev usb.Device, buf []byte) error {
	if err := awusb.ReadTransfer(dev, buf); err != nil {
		return err
	}
	return readStatus(dev)
}

// PadWrite is the write-direction counterpart of PadRead.
func PadWrite(dev usb.Device, buf []byte) error {
	if err := awusb.WriteTransfer(dev, buf); err != nil {
		return err
	}
	return readStatus(dev)
}
