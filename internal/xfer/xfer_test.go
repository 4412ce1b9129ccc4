package xfer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWrite struct {
	calls []struct {
		addr uint32
		buf  []byte
	}
	failAtOffset int
}

func (f *fakeWrite) write(addr uint32, buf []byte) error {
	cp := append([]byte(nil), buf...)
	f.calls = append(f.calls, struct {
		addr uint32
		buf  []byte
	}{addr, cp})
	if f.failAtOffset > 0 && len(f.calls) == f.failAtOffset {
		return assert.AnError
	}
	return nil
}

func TestSendFile_ExactChunks(t *testing.T) {
	fw := &fakeWrite{}
	data := []byte("0123456789")
	require.NoError(t, SendFile(fw.write, 0x1000, data, 4, 0))

	require.Len(t, fw.calls, 3)
	assert.Equal(t, uint32(0x1000), fw.calls[0].addr)
	assert.Equal(t, []byte("0123"), fw.calls[0].buf)
	assert.Equal(t, uint32(0x1004), fw.calls[1].addr)
	assert.Equal(t, []byte("4567"), fw.calls[1].buf)
	assert.Equal(t, uint32(0x1008), fw.calls[2].addr)
	assert.Equal(t, []byte("89"), fw.calls[2].buf)
}

// TestSendFile_ZeroPadsShortChunkToMinBytes verifies that a file shorter
// than minBytes goes out as one chunk of minBytes, its tail past the end of
// the source data filled with zeros.
func TestSendFile_ZeroPadsShortChunkToMinBytes(t *testing.T) {
	fw := &fakeWrite{}
	data := []byte("ab")
	require.NoError(t, SendFile(fw.write, 0x2000, data, 8, 8))

	require.Len(t, fw.calls, 1)
	assert.Equal(t, 8, len(fw.calls[0].buf))
	assert.Equal(t, []byte{'a', 'b', 0, 0, 0, 0, 0, 0}, fw.calls[0].buf)
}

func TestSendFile_MinBytesExtendsPastFileInMultipleChunks(t *testing.T) {
	fw := &fakeWrite{}
	data := []byte("abcd")
	require.NoError(t, SendFile(fw.write, 0x3000, data, 4, 12))

	require.Len(t, fw.calls, 3)
	assert.Equal(t, uint32(0x3000), fw.calls[0].addr)
	assert.Equal(t, []byte("abcd"), fw.calls[0].buf)
	assert.Equal(t, uint32(0x3004), fw.calls[1].addr)
	assert.Equal(t, []byte{0, 0, 0, 0}, fw.calls[1].buf)
	assert.Equal(t, uint32(0x3004), fw.calls[2].addr)
	assert.Equal(t, []byte{0, 0, 0, 0}, fw.calls[2].buf)
}

func TestSendFile_PropagatesWriteError(t *testing.T) {
	fw := &fakeWrite{failAtOffset: 2}
	err := SendFile(fw.write, 0, []byte("0123456789"), 4, 0)
	require.Error(t, err)
}

func TestSendFileWithProgress_ReportsFinalHundredPercent(t *testing.T) {
	fw := &fakeWrite{}
	var last int
	data := make([]byte, 20)
	require.NoError(t, SendFileWithProgress(fw.write, 0, data, 7, 0, func(written, total int) {
		last = 100 * written / total
	}))
	assert.Equal(t, 100, last)
}
