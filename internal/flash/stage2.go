package flash

import (
	"github.com/cubieflash/felflash/internal/errs"
	"github.com/cubieflash/felflash/internal/fel1"
	"github.com/cubieflash/felflash/internal/fel2"
	"github.com/cubieflash/felflash/internal/usb"
	"github.com/cubieflash/felflash/internal/xfer"
)

const socFlashMode = 0x1610

func (o *Orchestrator) stage2(dev usb.Device) error {
	if err := o.fel2Prep(dev); err != nil {
		return err
	}
	if err := o.installFedNand(dev); err != nil {
		return err
	}
	if err := o.installUboot(dev); err != nil {
		return err
	}
	if err := o.installBoot0(dev); err != nil {
		return err
	}
	return o.restoreSystem(dev)
}

func (o *Orchestrator) fel2DRAMWriter(dev usb.Device) xfer.Writer {
	return func(addr uint32, buf []byte) error {
		o.tracer.Frame("fel2.write", buf)
		return fel2.Write(dev, addr, buf, fel2.TargetDRAM)
	}
}

// fel2Prep re-confirms the device identifies itself as flash-mode (0x1610,
// the only VERSION shape that survives once the loader is running) and
// that the 256-byte scratchpad still holds what Stage 1 left there: four
// zero bytes followed by the 0xCC pattern. It then writes the block back.
func (o *Orchestrator) fel2Prep(dev usb.Device) error {
	v, err := fel1.GetVersion(dev)
	if err != nil {
		return err
	}
	if v.ID() != socFlashMode {
		return errs.InvariantErrorf("flash.fel2_prep", "expected SoC ID 0x%04x (flash mode), got 0x%04x", socFlashMode, v.ID())
	}

	pattern := make([]byte, 256)
	if err := fel2.Read(dev, o.scratchpad, pattern, fel2.TargetDRAM); err != nil {
		return err
	}
	for i := 0; i < 4; i++ {
		if pattern[i] != 0 {
			return errs.InvariantErrorf("flash.fel2_prep", "scratchpad byte %d is 0x%02x, want 0x00", i, pattern[i])
		}
	}
	for i := 4; i < len(pattern); i++ {
		if pattern[i] != 0xCC {
			return errs.InvariantErrorf("flash.fel2_prep", "scratchpad byte %d is 0x%02x, want 0xCC", i, pattern[i])
		}
	}

	return fel2.Write(dev, o.scratchpad, pattern, fel2.TargetDRAM)
}

// bracketMagic uploads magic_de_start.fex before an operation and
// magic_de_end.fex after, the bracket the recorded traces show wrapping
// every FED_NAND-era payload upload.
func (o *Orchestrator) bracketMagic(dev usb.Device, inner func() error) error {
	start, err := o.blobs.Get("magic_de_start.fex")
	if err != nil {
		return err
	}
	if err := xfer.SendFile(o.fel2DRAMWriter(dev), addrMagicBracket, start, 65536, 0); err != nil {
		return err
	}
	if err := inner(); err != nil {
		return err
	}
	end, err := o.blobs.Get("magic_de_end.fex")
	if err != nil {
		return err
	}
	return xfer.SendFile(o.fel2DRAMWriter(dev), addrMagicBracket, end, 65536, 0)
}

func (o *Orchestrator) sendFileDRAM(dev usb.Device, addr uint32, name string) error {
	data, err := o.blobs.Get(name)
	if err != nil {
		return err
	}
	return xfer.SendFileWithProgress(o.fel2DRAMWriter(dev), addr, data, 65536, 0, o.progressOf())
}

func (o *Orchestrator) writeTraceDRAM(dev usb.Device, addr uint32, name string, minBytes int) error {
	data, err := o.blobs.DecodeTrace(name, minBytes)
	if err != nil {
		return err
	}
	return fel2.Write(dev, addr, data, fel2.TargetDRAM)
}

// installFedNand uploads and runs the NAND-format entity and polls the
// loader until it reports readiness.
func (o *Orchestrator) installFedNand(dev usb.Device) error {
	if err := o.writeTraceDRAM(dev, addrFedNandStaging, "pt2_000054", 0x2760); err != nil {
		return err
	}

	if err := o.bracketMagic(dev, func() error {
		return o.sendFileDRAM(dev, addrFedUbootEntry, "FED_NAND_0000000")
	}); err != nil {
		return err
	}

	if err := fel2.Exec(dev, addrFedUbootEntry, 0x31, 0); err != nil {
		return err
	}
	if err := fel2.Send4Uints(dev, addrFedNandStaging, addrFedNandMirror, 0, 0); err != nil {
		return err
	}
	if err := fel2.PollUntilOK(dev, o.pollYield()); err != nil {
		return err
	}
	if err := fel2.Op0204(dev, 0x0400); err != nil {
		return err
	}
	reply := make([]byte, 0x0400)
	if err := fel2.PadRead(dev, reply); err != nil {
		return err
	}
	o.sink.Status("FED_NAND installed")
	return nil
}

func requireTerminalOK(op string, reply []byte) error {
	if len(reply) < 40 || string(reply[24:40]) != terminalOK {
		return errs.InvariantErrorf(op, "terminal reply is not %q", terminalOK)
	}
	return nil
}

// installUboot installs the U-Boot bootloader stage and confirms the
// loader's terminal success marker.
func (o *Orchestrator) installUboot(dev usb.Device) error {
	if err := o.sendFileDRAM(dev, addrDRAMScratch, "UBOOT_0000000000"); err != nil {
		return err
	}
	if err := o.writeTraceDRAM(dev, addrUbootStageA, "pt2_113307", 0x2760); err != nil {
		return err
	}
	if err := o.writeTraceDRAM(dev, addrUbootStageB, "pt2_113316", 0x00AC); err != nil {
		return err
	}
	if err := o.bracketMagic(dev, func() error {
		return o.sendFileDRAM(dev, addrFedUbootEntry, "UPDATE_BOOT1_000")
	}); err != nil {
		return err
	}
	if err := fel2.Exec(dev, addrFedUbootEntry, 0x11, 0); err != nil {
		return err
	}
	if err := fel2.Send4Uints(dev, addrDRAMScratch, addrUbootStageA, addrUbootStageB, 0); err != nil {
		return err
	}
	if err := fel2.PollUntilOK(dev, o.pollYield()); err != nil {
		return err
	}
	if err := fel2.Op0204(dev, 0x0400); err != nil {
		return err
	}
	reply := make([]byte, 0x0400)
	if err := fel2.PadRead(dev, reply); err != nil {
		return err
	}
	return requireTerminalOK("flash.install_uboot", reply)
}

// installBoot0 installs BOOT0 following the same bracket/exec/poll/verify
// shape as installUboot, with its own staging blobs.
func (o *Orchestrator) installBoot0(dev usb.Device) error {
	if err := o.bracketMagic(dev, func() error {
		return o.sendFileDRAM(dev, addrDRAMScratch, "BOOT0_0000000000")
	}); err != nil {
		return err
	}
	if err := o.writeTraceDRAM(dev, addrUbootStageA, "pt2_113541", 0x2760); err != nil {
		return err
	}
	if err := o.writeTraceDRAM(dev, addrUbootStageB, "pt2_113550", 0x00AC); err != nil {
		return err
	}
	if err := o.bracketMagic(dev, func() error {
		return o.sendFileDRAM(dev, addrFedUbootEntry, "UPDATE_BOOT0_000")
	}); err != nil {
		return err
	}
	if err := fel2.Exec(dev, addrFedUbootEntry, 0x11, 0); err != nil {
		return err
	}
	if err := fel2.Send4Uints(dev, addrDRAMScratch, addrUbootStageA, addrUbootStageB, 0); err != nil {
		return err
	}
	if err := fel2.PollUntilOK(dev, o.pollYield()); err != nil {
		return err
	}
	if err := fel2.Op0204(dev, 0x0400); err != nil {
		return err
	}
	reply := make([]byte, 0x0400)
	if err := fel2.PadRead(dev, reply); err != nil {
		return err
	}
	return requireTerminalOK("flash.install_boot0", reply)
}

// restoreSystem writes a magic verification word to the scratchpad,
// installs and runs the restore entity, and leaves the device ready to
// reboot into its newly-flashed system.
func (o *Orchestrator) restoreSystem(dev usb.Device) error {
	if _, err := fel1.GetVersion(dev); err != nil {
		// Observational only, but a transport failure here still
		// indicates the device is gone.
		return err
	}

	magic := []byte{0xCD, 0xA5, 0x34, 0x12}
	if err := fel2.Write(dev, o.scratchpad+4, magic, fel2.TargetDRAM); err != nil {
		return err
	}

	if err := o.bracketMagic(dev, func() error {
		return o.sendFileDRAM(dev, addrFedUbootEntry, "FET_RESTORE_0000")
	}); err != nil {
		return err
	}

	if err := fel2.Exec(dev, addrFedUbootEntry, 0x11, 0); err != nil {
		return err
	}

	return fel2.PadWrite(dev, make([]byte, 16))
}

func (o *Orchestrator) pollYield() func() {
	return func() { o.sleep(o.pollInterval) }
}
