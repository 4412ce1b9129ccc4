package flash

import (
	"github.com/cubieflash/felflash/internal/errs"
	"github.com/cubieflash/felflash/internal/fel1"
	"github.com/cubieflash/felflash/internal/fel2"
	"github.com/cubieflash/felflash/internal/usb"
)

// DumpMemory reads size bytes from addr, the Go counterpart of the original
// tool's aw_fel_dump bench-diagnostic helper. It assumes a FEL-1 session
// (Stage 1, or a bench board left in boot ROM).
func DumpMemory(dev usb.Device, addr uint32, size int) ([]byte, error) {
	buf := make([]byte, size)
	if err := fel1.Read(dev, addr, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// FillMemory writes size bytes of value starting at addr, the counterpart
// of aw_fel_fill.
func FillMemory(dev usb.Device, addr uint32, size int, value byte) error {
	buf := make([]byte, size)
	for i := range buf {
		buf[i] = value
	}
	return fel1.Write(dev, addr, buf)
}

const partitionChunk = 64 * 1024

// StreamPartition streams data to NAND at addr in 64KiB-aligned chunks via
// FEL-2 RDWR, marking the first chunk FIRST and the last chunk LAST. This
// sub-protocol is disabled by default; StreamPartition returns an
// Invariant error unless the Orchestrator was built with
// Options.EnablePartitions set.
func (o *Orchestrator) StreamPartition(dev usb.Device, addr uint32, data []byte) error {
	if !o.enablePartitions {
		return errs.InvariantErrorf("flash.stream_partition", "partition streaming is disabled")
	}

	o.state = StatePartitions
	total := len(data)
	for offset := 0; offset < total; offset += partitionChunk {
		end := offset + partitionChunk
		if end > total {
			end = total
		}
		flags := uint32(0)
		if offset == 0 {
			flags |= fel2.FlagFirst
		}
		if end == total {
			flags |= fel2.FlagLast
		}
		if err := fel2.Write(dev, addr+uint32(offset), data[offset:end], fel2.TargetNAND|flags); err != nil {
			return err
		}
		o.sink.Progress(100 * end / total)
	}
	return nil
}
