package trace

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/cubieflash/felflash/internal/event"
)

func TestFrame_AlwaysEmitsURBIndexRegardlessOfEnabled(t *testing.T) {
	rec := &event.Recording{}
	tr := NewTracer(rec)

	tr.Frame("fel1.write", []byte("abcd"))
	tr.Frame("fel1.write", []byte("efgh"))

	assert.Equal(t, []int{0, 1}, rec.URBs)
	assert.Empty(t, rec.Statuses)
}

func TestFrame_EnabledEmitsHexDumpStatus(t *testing.T) {
	rec := &event.Recording{}
	tr := NewTracer(rec)
	tr.Enabled = true

	tr.Frame("fel2.write", []byte{0xDE, 0xAD, 0xBE, 0xEF})

	assert.Equal(t, []int{0}, rec.URBs)
	assert.Len(t, rec.Statuses, 1)
	assert.Contains(t, rec.Statuses[0], "urb #0 fel2.write (4 bytes)")
	assert.Contains(t, rec.Statuses[0], "de ad be ef")
}

func TestFrame_IndexAdvancesAcrossCalls(t *testing.T) {
	rec := &event.Recording{}
	tr := NewTracer(rec)
	tr.Enabled = true

	for i := 0; i < 3; i++ {
		tr.Frame("op", []byte{byte(i)})
	}

	assert.Equal(t, []int{0, 1, 2}, rec.URBs)
	assert.Len(t, rec.Statuses, 3)
	assert.Contains(t, rec.Statuses[2], "urb #2")
}
