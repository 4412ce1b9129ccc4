package blob

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeTraceReader_StripsPrefixAndPads(t *testing.T) {
	log := "0000: 00 aw u1 ff\n0010: 01 02\n"
	out, err := DecodeTraceReader(strings.NewReader(log), 6)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x00, 0xff, 0x01, 0x02, 0x00, 0x00}, out)
}

func TestDecodeTraceReader_NoPrefix(t *testing.T) {
	out, err := DecodeTraceReader(strings.NewReader("de ad be ef"), 0)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xde, 0xad, 0xbe, 0xef}, out)
}

func TestDecodeTraceReader_CaseInsensitiveHex(t *testing.T) {
	out, err := DecodeTraceReader(strings.NewReader("AA bb"), 0)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xaa, 0xbb}, out)
}

func TestFSProvider_Get(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "fes.fex"), []byte("firmware"), 0o644))

	p := NewFSProvider(dir)
	data, err := p.Get("fes.fex")
	require.NoError(t, err)
	assert.Equal(t, "firmware", string(data))
}

func TestFSProvider_GetMissing(t *testing.T) {
	p := NewFSProvider(t.TempDir())
	_, err := p.Get("missing.fex")
	require.Error(t, err)
}

func TestFSProvider_DecodeTrace(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "traces"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "traces", "pt1_000063.log"), []byte("urb1: ab cd ef"), 0o644))

	p := NewFSProvider(dir)
	out, err := p.DecodeTrace("pt1_000063", 5)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xab, 0xcd, 0xef, 0x00, 0x00}, out)
}
