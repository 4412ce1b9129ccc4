package usb

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockDevice_RoundTrip(t *testing.T) {
	m := NewMockDevice()
	m.QueueRecv([]byte("hello world"))

	require.NoError(t, m.BulkSend(EPOut, []byte("request")))
	buf := make([]byte, 11)
	require.NoError(t, m.BulkRecv(EPIn, buf))

	assert.Equal(t, "hello world", string(buf))
	require.Len(t, m.Sends, 1)
	assert.Equal(t, "request", string(m.Sends[0]))
}

func TestMockDevice_PartialChunkStillCompletes(t *testing.T) {
	m := NewMockDevice()
	m.PartialChunk = 1
	m.QueueRecv([]byte{1, 2, 3, 4, 5})

	buf := make([]byte, 5)
	require.NoError(t, m.BulkRecv(EPIn, buf))
	assert.Equal(t, []byte{1, 2, 3, 4, 5}, buf)
}

func TestMockDevice_RecvQueueExhausted(t *testing.T) {
	m := NewMockDevice()
	buf := make([]byte, 4)
	err := m.BulkRecv(EPIn, buf)
	require.Error(t, err)
}

func TestMockDevice_Closed(t *testing.T) {
	m := NewMockDevice()
	assert.Equal(t, 0, m.Closed())
	require.NoError(t, m.Close())
	require.NoError(t, m.Close())
	assert.Equal(t, 2, m.Closed())
}

func TestMockOpener_AppearAfter(t *testing.T) {
	m := NewMockDevice()
	o := &MockOpener{AppearAfter: 2, Session: m}

	assert.False(t, o.FindDevice())
	assert.False(t, o.FindDevice())
	assert.True(t, o.FindDevice())

	sess, err := o.Open()
	require.NoError(t, err)
	assert.Same(t, m, sess)
}
