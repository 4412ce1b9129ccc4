package fel1

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cubieflash/felflash/internal/usb"
)

func ack() []byte {
	buf := make([]byte, 13)
	copy(buf, "AWUS")
	return buf
}

func versionRecord(socID uint32, scratchpad uint32) []byte {
	buf := make([]byte, 32)
	copy(buf[0:8], "AWUSBFEX")
	binary.LittleEndian.PutUint32(buf[8:12], socID)
	binary.LittleEndian.PutUint16(buf[16:18], 1)
	binary.LittleEndian.PutUint32(buf[20:24], scratchpad)
	return buf
}

func TestGetVersion_DecodesSocIDAndScratchpad(t *testing.T) {
	m := usb.NewMockDevice()
	m.QueueRecv(ack())
	m.QueueRecv(versionRecord(0x00165100, 0x2000))
	m.QueueRecv(ack())
	m.QueueRecv(successTrailer[:])
	m.QueueRecv(ack())

	v, err := GetVersion(m)
	require.NoError(t, err)
	assert.Equal(t, uint16(0x1651), v.ID())
	assert.Equal(t, uint32(0x2000), v.Scratchpad)
}

func TestGetVersion_BadStatusTrailer(t *testing.T) {
	m := usb.NewMockDevice()
	m.QueueRecv(ack())
	m.QueueRecv(versionRecord(0x00165100, 0x2000))
	m.QueueRecv(ack())
	m.QueueRecv(make([]byte, 8)) // not the success trailer
	m.QueueRecv(ack())

	_, err := GetVersion(m)
	require.Error(t, err)
}

func TestWriteRead_RoundTrip(t *testing.T) {
	m := usb.NewMockDevice()
	m.QueueRecv(ack())
	m.QueueRecv(ack())
	m.QueueRecv(successTrailer[:])
	m.QueueRecv(ack())

	require.NoError(t, Write(m, 0x4000, []byte("payload!")))

	m.QueueRecv(ack())
	m.QueueRecv([]byte("readback"))
	m.QueueRecv(ack())
	m.QueueRecv(successTrailer[:])
	m.QueueRecv(ack())

	buf := make([]byte, 8)
	require.NoError(t, Read(m, 0x4000, buf))
	assert.Equal(t, "readback", string(buf))
}

func TestExec_SendsRequestAndReadsStatus(t *testing.T) {
	m := usb.NewMockDevice()
	m.QueueRecv(ack())
	m.QueueRecv(successTrailer[:])
	m.QueueRecv(ack())

	require.NoError(t, Exec(m, 0x7220, 0, 0))
	require.Len(t, m.Sends, 3)

	cmd := m.Sends[1]
	require.Len(t, cmd, requestLen)
	assert.Equal(t, CmdExec, binary.LittleEndian.Uint32(cmd[0:4]))
	assert.Equal(t, uint32(0x7220), binary.LittleEndian.Uint32(cmd[4:8]))
}
