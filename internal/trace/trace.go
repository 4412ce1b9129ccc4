// Package trace renders raw FEL frames as hex dumps for diagnostic URB
// tracing, the Go-native counterpart of the Qt tool's aw_fel_hexdump. It
// only runs when the CLI's -urb-trace flag enables it.
package trace

import (
	"encoding/hex"
	"fmt"

	"github.com/cubieflash/felflash/internal/event"
)

// Tracer counts URB indices and renders frames through a Sink when enabled.
type Tracer struct {
	Sink    event.Sink
	Enabled bool

	next int
}

// NewTracer wraps sink, starting the URB counter at zero.
func NewTracer(sink event.Sink) *Tracer {
	return &Tracer{Sink: sink}
}

// Frame emits the next URB index and, if enabled, a hex dump of data
// labeled with op.
func (t *Tracer) Frame(op string, data []byte) {
	t.Sink.URB(t.next)
	if t.Enabled {
		t.Sink.Status(fmt.Sprintf("urb #%d %s (%d bytes)\n%s", t.next, op, len(data), hex.Dump(data)))
	}
	t.next++
}
