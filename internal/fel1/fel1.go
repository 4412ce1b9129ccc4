// Package fel1 implements the FEL-1 command set used while the target is
// still running inside the Allwinner boot ROM: VERSION, READ, WRITE, EXEC.
package fel1

import (
	"encoding/binary"

	"github.com/cubieflash/felflash/internal/awusb"
	"github.com/cubieflash/felflash/internal/errs"
	"github.com/cubieflash/felflash/internal/usb"
)

// Commands carried in the request field of the 16-byte FEL-1 frame.
const (
	CmdVersion uint32 = 0x0001
	CmdWrite   uint32 = 0x0101
	CmdExec    uint32 = 0x0102
	CmdRead    uint32 = 0x0103
)

const requestLen = 16

// successTrailer is the literal 8-byte FEL status acknowledgement.
var successTrailer = [8]byte{0xFF, 0xFF, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00}

// Version is the FEL VERSION record as laid out on the wire (little-endian).
type Version struct {
	Signature  [8]byte
	SocID      uint32
	Unknown0A  uint32
	Protocol   uint16
	Unknown12  uint8
	Unknown13  uint8
	Scratchpad uint32
	Reserved   [2]uint32
}

// ID returns the 16-bit SoC identifier, (soc_id>>8)&0xFFFF, e.g. 0x1651
// for an A20.
func (v Version) ID() uint16 {
	return uint16((v.SocID >> 8) & 0xFFFF)
}

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
		return errs.ProtocolErrorf("fel1.status", "unexpected FEL status trailer % x", buf)
	}
	return nil
}

// GetVersion issues VERSION and returns the decoded record. A zero SoC ID
// (see Version.ID) indicates failure at any step of the exchange.
func GetVersion(dev usb.Device) (Version, error) {
	var v Version
	if err := sendRequest(dev, CmdVersion, 0, 0, 0); err != nil {
		return v, err
	}
	var raw [32]byte
	if err := awusb.ReadTransfer(dev, raw[:]); err != nil {
		return v, err
	}
	if err := readStatus(dev); err != nil {
		return v, err
	}
	copy(v.Signature[:], raw[0:8])
	v.SocID = binary.LittleEndian.Uint32(raw[8:12])
	v.Unknown0A = binary.LittleEndian.Uint32(raw[12:16])
	v.Protocol = binary.LittleEndian.Uint16(raw[16:18])
	v.Unknown12 = raw[18]
	v.Unknown13 = raw[19]
	v.Scratchpad = binary.LittleEndian.Uint32(raw[20:24])
	v.Reserved[0] = binary.LittleEndian.Uint32(raw[24:28])
	v.Reserved[1] = binary.LittleEndian.Uint32(raw[28:32])
	return v, nil
}

// Read copies len(buf) bytes from the device starting at addr.
func Read(dev usb.Device, addr uint32, buf []byte) error {
	if err := sendRequest(dev, CmdRead, addr, uint32(len(buf)), 0); err != nil {
		return err
	}
	if err := awusb.ReadTransfer(dev, buf); err != nil {
		return err
	}
	return readStatus(dev)
}

// Write copies buf to the device starting at addr.
func Write(dev usb.Device, addr uint32, buf []byte) error {
	if err := sendRequest(dev, CmdWrite, addr, uint32(len(buf)), 0); err != nil {
		return err
	}
	if err := awusb.WriteTransfer(dev, buf); err != nil {
		return err
	}
	return readStatus(dev)
}

// Exec tells the boot ROM to jump to addr. It returns once the request is
// accepted; the actual transfer of control happens asynchronously on the
// device.
func Exec(dev usb.Device, addr, p1, p2 uint32) error {
	if err := sendRequest(dev, CmdExec, addr, p1, p2); err != nil {
		return err
	}
	return readStatus(dev)
}
