// Command felflash drives the Cubietruck FEL flashing sequence from the
// command line: locate the board over USB, upload the recorded firmware
// blobs, and report progress the way cmd/monitor reports ASIC phases.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/cubieflash/felflash/internal/blob"
	"github.com/cubieflash/felflash/internal/config"
	"github.com/cubieflash/felflash/internal/errs"
	"github.com/cubieflash/felflash/internal/event"
	"github.com/cubieflash/felflash/internal/flash"
	"github.com/cubieflash/felflash/internal/usb"
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		doFlash  = flag.Bool("flash", true, "run the Stage 1 -> Stage 2 flashing sequence")
		blobDir  = flag.String("blob-dir", "", "directory of firmware blobs and traces/ (default: .env or ./blobs)")
		vidFlag  = flag.String("vid", "", "USB vendor ID, hex (default: .env or 1f3a)")
		pidFlag  = flag.String("pid", "", "USB product ID, hex (default: .env or efe8)")
		timeout  = flag.Duration("timeout", 0, "per-transfer timeout (default: .env or 60s)")
		urbTrace = flag.Bool("urb-trace", false, "log a hex dump of every USB transfer")
		dryRun   = flag.Bool("dry-run", false, "resolve blobs and settings without touching hardware")
		dump     = flag.String("dump", "", "addr,size: read size bytes from addr and hex-dump them (FEL-1 only)")
		fill     = flag.String("fill", "", "addr,size,value: write size bytes of value at addr (FEL-1 only)")
	)
	flag.Parse()

	cfg, err := config.LoadFlashConfig()
	if err != nil {
		log.Printf("config: %v", err)
		return 1
	}
	if *blobDir != "" {
		cfg.BlobDir = *blobDir
	}
	if *vidFlag != "" {
		if v, err := strconv.ParseUint(strings.TrimPrefix(*vidFlag, "0x"), 16, 16); err == nil {
			cfg.VID = uint16(v)
		}
	}
	if *pidFlag != "" {
		if v, err := strconv.ParseUint(strings.TrimPrefix(*pidFlag, "0x"), 16, 16); err == nil {
			cfg.PID = uint16(v)
		}
	}
	if *timeout > 0 {
		cfg.Timeout = *timeout
	}
	if *urbTrace {
		cfg.URBTrace = true
	}

	sink := event.NewLogSink(nil)
	sink.EnableURB = cfg.URBTrace

	fmt.Printf("🔌 felflash: target %04x:%04x, blobs at %s\n", cfg.VID, cfg.PID, cfg.BlobDir)

	blobs := blob.NewFSProvider(cfg.BlobDir)

	if *dryRun {
		return runDryRun(blobs)
	}

	opener := usb.NewGousbOpener(cfg.VID, cfg.PID)
	opener.Timeout = cfg.Timeout

	if *dump != "" {
		return runDump(opener, *dump)
	}
	if *fill != "" {
		return runFill(opener, *fill)
	}
	if *doFlash {
		return runFlash(opener, blobs, sink, cfg)
	}

	fmt.Println("nothing to do: pass -flash, -dump, or -fill")
	return 0
}

// runDryRun resolves every blob the flashing sequence needs without opening
// a USB handle, so a board doesn't have to be connected to catch a missing
// or misnamed firmware file.
func runDryRun(blobs blob.Provider) int {
	required := []string{
		"fes_1-1.fex", "fes_1-2.fex", "fes.fex", "fes_2.fex",
		"UBOOT_0000000000", "UPDATE_BOOT1_000", "BOOT0_0000000000",
		"UPDATE_BOOT0_000", "FED_NAND_0000000", "FET_RESTORE_0000",
		"magic_de_start.fex", "magic_de_end.fex",
	}
	traced := map[string]int{
		"pt1_000063": 0x200, "pt1_000081": 0x0AE0, "pt1_000138": 0x200,
		"pt1_000147": 0x2000, "pt2_000054": 0x2760,
		"pt2_113307": 0x2760, "pt2_113316": 0x00AC,
		"pt2_113541": 0x2760, "pt2_113550": 0x00AC,
	}

	ok := true
	for _, name := range required {
		if _, err := blobs.Get(name); err != nil {
			fmt.Printf("❌ %s: %v\n", name, err)
			ok = false
			continue
		}
		fmt.Printf("✅ %s\n", name)
	}
	for name, minBytes := range traced {
		if _, err := blobs.DecodeTrace(name, minBytes); err != nil {
			fmt.Printf("❌ trace %s: %v\n", name, err)
			ok = false
			continue
		}
		fmt.Printf("✅ trace %s\n", name)
	}

	if !ok {
		fmt.Println("dry run: one or more blobs are missing")
		return exitCodeFor(errs.ResourceErrorf("cmd.dry_run", "missing blobs"))
	}
	fmt.Println("dry run: all required blobs resolve, no hardware touched")
	return 0
}

func runFlash(opener usb.Opener, blobs blob.Provider, sink event.Sink, cfg *config.FlashConfig) int {
	orch := flash.New(opener, blobs, sink, flash.Options{
		Timeout:  cfg.Timeout,
		URBTrace: cfg.URBTrace,
	})

	fmt.Println("⏳ starting flash sequence")
	if err := orch.Flash(); err != nil {
		fmt.Printf("❌ flash failed in state %s: %v\n", orch.State(), err)
		return exitCodeFor(err)
	}
	fmt.Println("✅ flash complete")
	return 0
}

func runDump(opener usb.Opener, spec string) int {
	addr, size, _, err := parseTriple(spec, false)
	if err != nil {
		fmt.Printf("❌ -dump: %v\n", err)
		return 2
	}
	sess, err := opener.Open()
	if err != nil {
		fmt.Printf("❌ open: %v\n", err)
		return exitCodeFor(err)
	}
	defer sess.Close()

	data, err := flash.DumpMemory(sess, addr, size)
	if err != nil {
		fmt.Printf("❌ dump: %v\n", err)
		return exitCodeFor(err)
	}
	fmt.Printf("%s", hexDump(addr, data))
	return 0
}

func runFill(opener usb.Opener, spec string) int {
	addr, size, value, err := parseTriple(spec, true)
	if err != nil {
		fmt.Printf("❌ -fill: %v\n", err)
		return 2
	}
	sess, err := opener.Open()
	if err != nil {
		fmt.Printf("❌ open: %v\n", err)
		return exitCodeFor(err)
	}
	defer sess.Close()

	if err := flash.FillMemory(sess, addr, size, byte(value)); err != nil {
		fmt.Printf("❌ fill: %v\n", err)
		return exitCodeFor(err)
	}
	fmt.Printf("✅ filled %d bytes at 0x%08x with 0x%02x\n", size, addr, value)
	return 0
}

func parseTriple(spec string, wantValue bool) (addr uint32, size int, value uint64, err error) {
	parts := strings.Split(spec, ",")
	want := 2
	if wantValue {
		want = 3
	}
	if len(parts) != want {
		return 0, 0, 0, fmt.Errorf("expected %d comma-separated fields, got %d", want, len(parts))
	}
	a, err := strconv.ParseUint(strings.TrimPrefix(strings.TrimSpace(parts[0]), "0x"), 16, 32)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("addr: %w", err)
	}
	s, err := strconv.ParseUint(strings.TrimSpace(parts[1]), 0, 32)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("size: %w", err)
	}
	if wantValue {
		value, err = strconv.ParseUint(strings.TrimPrefix(strings.TrimSpace(parts[2]), "0x"), 16, 8)
		if err != nil {
			return 0, 0, 0, fmt.Errorf("value: %w", err)
		}
	}
	return uint32(a), int(s), value, nil
}

func hexDump(addr uint32, data []byte) string {
	var b strings.Builder
	for off := 0; off < len(data); off += 16 {
		end := off + 16
		if end > len(data) {
			end = len(data)
		}
		fmt.Fprintf(&b, "%08x  ", addr+uint32(off))
		for i := off; i < end; i++ {
			fmt.Fprintf(&b, "%02x ", data[i])
		}
		b.WriteByte('\n')
	}
	return b.String()
}

// exitCodeFor maps the error taxonomy to a distinct process exit code so
// scripts invoking felflash can distinguish a bad cable from a bug.
func exitCodeFor(err error) int {
	switch {
	case errs.Is(err, errs.Transport):
		return 10
	case errs.Is(err, errs.Protocol):
		return 11
	case errs.Is(err, errs.Invariant):
		return 12
	case errs.Is(err, errs.Resource):
		return 13
	default:
		return 1
	}
}
