package fel2

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

func TestWrite_SetsWriteFlagAndClearsRead(t *testing.T) {
	m := usb.NewMockDevice()
	m.QueueRecv(ack())
	m.QueueRecv(ack())
	m.QueueRecv(successTrailer[:])
	m.QueueRecv(ack())

	require.NoError(t, Write(m, 0x40600000, []byte("abcd"), FlagRead|TargetNAND))

	require.Len(t, m.Sends, 5)
	cmd := m.Sends[1]
	pad := binary.LittleEndian.Uint32(cmd[12:16])
	assert.NotZero(t, pad&FlagWrite)
	assert.Zero(t, pad&FlagRead)
	assert.NotZero(t, pad&TargetNAND)
}

func TestRead_SetsReadFlag(t *testing.T) {
	m := usb.NewMockDevice()
	m.QueueRecv(ack())
	m.QueueRecv([]byte("1234"))
	m.QueueRecv(ack())
	m.QueueRecv(successTrailer[:])
	m.QueueRecv(ack())

	buf := make([]byte, 4)
	require.NoError(t, Read(m, 0x40600000, buf, TargetDRAM))
	assert.Equal(t, "1234", string(buf))

	require.Len(t, m.Sends, 4)
	cmd := m.Sends[1]
	pad := binary.LittleEndian.Uint32(cmd[12:16])
	assert.NotZero(t, pad&FlagRead)
}

func TestExec_NoStatusRead(t *testing.T) {
	m := usb.NewMockDevice()
	m.QueueRecv(ack())
	require.NoError(t, Exec(m, 0x40430000, 0x11, 0))
	require.Len(t, m.Sends, 2)
	cmd := m.Sends[1]
	assert.Equal(t, CmdExec, binary.LittleEndian.Uint32(cmd[0:4]))
}

func TestPollUntilOK_ConvergesAfterFiveIterations(t *testing.T) {
	m := usb.NewMockDevice()
	for i := 0; i < 4; i++ {
		m.QueueRecv(ack())
		m.QueueRecv(make([]byte, 32))
	}
	m.QueueRecv(ack())
	ready := make([]byte, 32)
	ready[0], ready[1] = 0x00, 0x01
	m.QueueRecv(ready)

	yields := 0
	require.NoError(t, PollUntilOK(m, func() { yields++ }))
	assert.Equal(t, 4, yields)
}

func TestSend4Uints_SendsRawParamsWithNoRDWRFrame(t *testing.T) {
	m := usb.NewMockDevice()
	m.QueueRecv(ack())
	m.QueueRecv(successTrailer[:])
	m.QueueRecv(ack())

	require.NoError(t, Send4Uints(m, 0x40a00000, 0x40a01000, 0, 0))

	require.Len(t, m.Sends, 3)
	params := m.Sends[1]
	require.Len(t, params, 16)
	assert.Equal(t, uint32(0x40a00000), binary.LittleEndian.Uint32(params[0:4]))
	assert.Equal(t, uint32(0x40a01000), binary.LittleEndian.Uint32(params[4:8]))
	assert.Equal(t, uint32(0), binary.LittleEndian.Uint32(params[8:12]))
	assert.Equal(t, uint32(0), binary.LittleEndian.Uint32(params[12:16]))
}

func TestOp0204_IssuesRequestWithLength(t *testing.T) {
	m := usb.NewMockDevice()
	m.QueueRecv(ack())
	require.NoError(t, Op0204(m, 0x0400))
	require.Len(t, m.Sends, 2)
	cmd := m.Sends[1]
	assert.Equal(t, Cmd0204, binary.LittleEndian.Uint32(cmd[0:4]))
	assert.Equal(t, uint32(0x0400), binary.LittleEndian.Uint32(cmd[8:12]))
}
