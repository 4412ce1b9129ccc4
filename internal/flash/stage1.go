package flash

import (
	"bytes"
	"time"

	"github.com/cubieflash/felflash/internal/errs"
	"github.com/cubieflash/felflash/internal/fel1"
	"github.com/cubieflash/felflash/internal/usb"
	"github.com/cubieflash/felflash/internal/xfer"
)

const socA20 = 0x1651

func (o *Orchestrator) stage1(dev usb.Device) error {
	if err := o.fel1Prep(dev); err != nil {
		return err
	}
	o.state = StateFEL1Loaders
	if err := o.installFes11(dev); err != nil {
		return err
	}
	if err := o.installFes12(dev); err != nil {
		return err
	}
	if err := o.sendCRCTable(dev); err != nil {
		return err
	}
	return o.installFes2(dev)
}

func requireSoc(v fel1.Version, want uint16, op string) error {
	if v.ID() != want {
		return errs.InvariantErrorf(op, "expected SoC ID 0x%04x, got 0x%04x", want, v.ID())
	}
	return nil
}

// fel1Prep validates the boot ROM is a Cubietruck (A20), caches its
// scratchpad address, and confirms the scratchpad carries the 0xCC sanity
// pattern before anything is written.
func (o *Orchestrator) fel1Prep(dev usb.Device) error {
	v, err := fel1.GetVersion(dev)
	if err != nil {
		return err
	}
	if err := requireSoc(v, socA20, "flash.fel1_prep.version"); err != nil {
		return err
	}
	o.scratchpad = v.Scratchpad

	pattern := make([]byte, 256)
	if err := fel1.Read(dev, o.scratchpad, pattern); err != nil {
		return err
	}
	for i, b := range pattern {
		if b != 0xCC {
			return errs.InvariantErrorf("flash.fel1_prep.scratchpad", "scratchpad byte at offset %d is 0x%02x, want 0xCC", i, b)
		}
	}

	if err := fel1.Write(dev, o.scratchpad, make([]byte, 4)); err != nil {
		return err
	}

	v2, err := fel1.GetVersion(dev)
	if err != nil {
		return err
	}
	return requireSoc(v2, socA20, "flash.fel1_prep.reverify")
}

func (o *Orchestrator) fel1Writer(dev usb.Device) xfer.Writer {
	return func(addr uint32, buf []byte) error {
		o.tracer.Frame("fel1.write", buf)
		return fel1.Write(dev, addr, buf)
	}
}

// installFes11 uploads and executes the first in-RAM stage, which brings
// DRAM up and signals readiness by writing DRAM0 to the handshake address.
func (o *Orchestrator) installFes11(dev usb.Device) error {
	pt63, err := o.blobs.DecodeTrace("pt1_000063", 0x200)
	if err != nil {
		return err
	}
	if err := fel1.Write(dev, addrFES11, pt63); err != nil {
		return err
	}

	if err := fel1.Write(dev, addrDRAMHandshake, make([]byte, 16)); err != nil {
		return err
	}

	pt81, err := o.blobs.DecodeTrace("pt1_000081", 0x0AE0)
	if err != nil {
		return err
	}
	fes11, err := o.blobs.Get("fes_1-1.fex")
	if err != nil {
		return err
	}
	if n := min(len(pt81), len(fes11)); !bytes.Equal(pt81[:n], fes11[:n]) {
		return errs.InvariantErrorf("flash.install_fes_1_1", "recorded trace pt1_000081 does not match fes_1-1.fex")
	}

	o.sink.Status("uploading fes_1-1.fex")
	if err := xfer.SendFileWithProgress(o.fel1Writer(dev), addrFES11Entry, fes11, 4000, 2784, o.progressOf()); err != nil {
		return err
	}

	readback := make([]byte, 2784)
	if err := fel1.Read(dev, addrFES11Entry, readback); err != nil {
		return err
	}
	if n := min(len(fes11), len(readback)); !bytes.Equal(readback[:n], fes11[:n]) {
		return errs.InvariantErrorf("flash.install_fes_1_1", "readback of fes_1-1.fex does not match uploaded bytes")
	}

	if err := fel1.Exec(dev, addrFES11Entry, 0, 0); err != nil {
		return err
	}

	o.pumpWait(500 * time.Millisecond)

	handshake := make([]byte, 16)
	if err := fel1.Read(dev, addrDRAMHandshake, handshake); err != nil {
		return err
	}
	if !bytes.Equal(handshake, dram0[:]) {
		return errs.InvariantErrorf("flash.install_fes_1_1", "DRAM handshake mismatch: got % x, want DRAM0", handshake)
	}
	return nil
}

// installFes12 uploads and executes the second in-RAM stage, confirming
// DRAM1 and that the scratch area at addrFES11 still matches the recorded
// trace pt1_000138.
func (o *Orchestrator) installFes12(dev usb.Device) error {
	if err := fel1.Write(dev, addrDRAMHandshake, make([]byte, 16)); err != nil {
		return err
	}

	fes12, err := o.blobs.Get("fes_1-2.fex")
	if err != nil {
		return err
	}
	o.sink.Status("uploading fes_1-2.fex")
	if err := xfer.SendFileWithProgress(o.fel1Writer(dev), addrFES12, fes12, 65536, 0, o.progressOf()); err != nil {
		return err
	}
	if err := fel1.Exec(dev, addrFES12, 0, 0); err != nil {
		return err
	}

	handshake := make([]byte, 16)
	if err := fel1.Read(dev, addrDRAMHandshake, handshake); err != nil {
		return err
	}
	if !bytes.Equal(handshake, dram1[:]) {
		return errs.InvariantErrorf("flash.install_fes_1_2", "DRAM handshake mismatch: got % x, want DRAM1", handshake)
	}

	pt138, err := o.blobs.DecodeTrace("pt1_000138", 0x200)
	if err != nil {
		return err
	}
	check := make([]byte, 0x200)
	if err := fel1.Read(dev, addrFES11, check); err != nil {
		return err
	}
	if !bytes.Equal(check, pt138) {
		return errs.InvariantErrorf("flash.install_fes_1_2", "post-fes_1-2 state at 0x%x does not match recorded trace pt1_000138", addrFES11)
	}
	return nil
}

// sendCRCTable uploads the CRC lookup table the NAND programmer needs and
// verifies the readback byte-for-byte.
func (o *Orchestrator) sendCRCTable(dev usb.Device) error {
	table, err := o.blobs.DecodeTrace("pt1_000147", 0x2000)
	if err != nil {
		return err
	}
	if err := fel1.Write(dev, addrCRCTable, table); err != nil {
		return err
	}
	readback := make([]byte, 0x2000)
	if err := fel1.Read(dev, addrCRCTable, readback); err != nil {
		return err
	}
	if !bytes.Equal(readback, table) {
		return errs.InvariantErrorf("flash.send_crc_table", "CRC table readback mismatch")
	}
	return nil
}

// installFes2 uploads the Stage 2 programming service and jumps to it; a
// successful EXEC here ends Stage 1 and the caller closes the USB handle
// to wait out the re-enumeration gap.
func (o *Orchestrator) installFes2(dev usb.Device) error {
	if err := fel1.Write(dev, addrDRAMHandshake, make([]byte, 16)); err != nil {
		return err
	}

	fes, err := o.blobs.Get("fes.fex")
	if err != nil {
		return err
	}
	o.sink.Status("uploading fes.fex")
	if err := xfer.SendFileWithProgress(o.fel1Writer(dev), addrFesStage2Load, fes, 65536, 0, o.progressOf()); err != nil {
		return err
	}

	fes2, err := o.blobs.Get("fes_2.fex")
	if err != nil {
		return err
	}
	o.sink.Status("uploading fes_2.fex")
	if err := xfer.SendFileWithProgress(o.fel1Writer(dev), addrFes2Entry, fes2, 65536, 0, o.progressOf()); err != nil {
		return err
	}

	return fel1.Exec(dev, addrFes2Entry, 0, 0)
}
