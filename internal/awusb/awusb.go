// Package awusb implements the AWUC/AWUS envelope that wraps every logical
// FEL transfer: a 32-byte command frame, the payload in the indicated
// direction, and a 13-byte status frame.
package awusb

import (
	"encoding/binary"

	"github.com/cubieflash/felflash/internal/errs"
	"github.com/cubieflash/felflash/internal/usb"
)

// Request types carried in the AWUC frame.
const (
	Read  uint16 = 0x11
	Write uint16 = 0x12
)

const (
	requestFrameLen  = 32
	responseFrameLen = 13
)

// The historical implementation duplicates the size's upper 32 bits into
// offsets 18..21 after already reserving them as zero. The device
// tolerates either; this implementation leaves offsets 18..31 zeroed.
func encodeRequest(reqType uint16, size int64) [requestFrameLen]byte {
	var buf [requestFrameLen]byte
	buf[0], buf[1], buf[2], buf[3] = 'A', 'W', 'U', 'C'
	binary.LittleEndian.PutUint64(buf[8:16], uint64(size))
	binary.LittleEndian.PutUint16(buf[16:18], reqType)
	return buf
}

func sendRequest(dev usb.Device, reqType uint16, size int64) error {
	frame := encodeRequest(reqType, size)
	return dev.BulkSend(usb.EPOut, frame[:])
}

// readResponse reads the 13-byte AWUS frame and returns its status word.
// AWUSB itself does not treat a non-zero status word as a hard error; the
// FEL status trailer is the authoritative acknowledgement one layer up.
func readResponse(dev usb.Device) (uint32, error) {
	var buf [responseFrameLen]byte
	if err := dev.BulkRecv(usb.EPIn, buf[:]); err != nil {
		return 0, err
	}
	if buf[0] != 'A' || buf[1] != 'W' || buf[2] != 'U' || buf[3] != 'S' {
		return 0, errs.TransportErrorf("awusb.response", "bad AWUS signature %q", buf[:4])
	}
	status := binary.LittleEndian.Uint32(buf[8:12])
	return status, nil
}

// WriteTransfer sends data to the device: AWUC(WRITE) request, the payload
// on EP-OUT, then the AWUS response.
func WriteTransfer(dev usb.Device, data []byte) error {
	if err := sendRequest(dev, Write, int64(len(data))); err != nil {
		return err
	}
	if err := dev.BulkSend(usb.EPOut, data); err != nil {
		return err
	}
	_, err := readResponse(dev)
	return err
}

// ReadTransfer receives data from the device into buf: AWUC(READ) request,
// the payload on EP-IN, then the AWUS response.
func ReadTransfer(dev usb.Device, buf []byte) error {
	if err := sendRequest(dev, Read, int64(len(buf))); err != nil {
		return err
	}
	if err := dev.BulkRecv(usb.EPIn, buf); err != nil {
		return err
	}
	_, err := readResponse(dev)
	return err
}
