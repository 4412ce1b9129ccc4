// Package flash implements the flashing orchestrator: the ordered,
// idempotent state machine that sequences Stage 1 (FEL-1 world) and
// Stage 2 (FEL-2 world) operations against the command layers, observes
// the DRAM handshake, schedules the re-enumeration wait between stages,
// and reports progress through an event sink.
package flash

import (
	"time"

	"github.com/cubieflash/felflash/internal/blob"
	"github.com/cubieflash/felflash/internal/errs"
	"github.com/cubieflash/felflash/internal/event"
	"github.com/cubieflash/felflash/internal/trace"
	"github.com/cubieflash/felflash/internal/usb"
)

// State is the orchestrator's single-valued position in the flashing
// sequence.
type State int

const (
	StateIdle State = iota
	StateFEL1Prep
	StateFEL1Loaders
	StateStageGap
	StateFEL2Prep
	StateFEL2Programming
	StatePartitions
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateFEL1Prep:
		return "fel1_prep"
	case StateFEL1Loaders:
		return "fel1_loaders"
	case StateStageGap:
		return "stage_gap"
	case StateFEL2Prep:
		return "fel2_prep"
	case StateFEL2Programming:
		return "fel2_programming"
	case StatePartitions:
		return "partitions"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Fixed RAM addresses used throughout the sequence.
const (
	addrFES11          uint32 = 0x00007010
	addrDRAMHandshake  uint32 = 0x00007210
	addrFES11Entry     uint32 = 0x00007220
	addrFES12          uint32 = 0x00002000
	addrCRCTable       uint32 = 0x40100000
	addrFesStage2Load  uint32 = 0x40200000
	addrFes2Entry      uint32 = 0x00007220
	addrMagicBracket   uint32 = 0x40360000
	addrFedUbootEntry  uint32 = 0x40430000
	addrDRAMScratch    uint32 = 0x40600000
	addrFedNandStaging uint32 = 0x40a00000
	addrFedNandMirror  uint32 = 0x40a01000
	addrUbootStageA    uint32 = 0x40400000
	addrUbootStageB    uint32 = 0x40410000
)

// dram0 and dram1 are the DRAM handshake markers written by the in-RAM
// stage at addrDRAMHandshake.
var (
	dram0 = buildHandshake(0x00)
	dram1 = buildHandshake(0x01)
)

func buildHandshake(flag byte) [16]byte {
	var b [16]byte
	copy(b[:4], "DRAM")
	b[4] = flag
	return b
}

const terminalOK = "updateBootxOk000"

// Options configures an Orchestrator beyond its required collaborators.
type Options struct {
	// EnablePartitions turns on the disabled-by-default partition/MBR
	// sub-protocol.
	EnablePartitions bool
	// Timeout is the per-bulk-transfer timeout; only meaningful to the
	// usb.Opener implementation actually in use.
	Timeout time.Duration
	// StageGapWait is the total inter-stage wait (default 20s).
	StageGapWait time.Duration
	// PollInterval is how often find_device is re-polled during the gap
	// and how long PollUntilOK waits between 0x0203 polls symbolically
	// (default 200ms). Progress during the stage gap is reported at this
	// granularity.
	PollInterval time.Duration
	// Sleep is injectable so tests don't block on real wall-clock waits.
	Sleep func(time.Duration)
	// URBTrace enables the tracer's hex-dump output for every frame sent
	// through fel1Writer/fel2DRAMWriter.
	URBTrace bool
}

// Orchestrator drives the Stage 1 / Stage 2 flashing sequence. It is
// single-threaded and cooperative: every long-running wait pumps the
// event Sink so progress stays visible.
type Orchestrator struct {
	opener usb.Opener
	blobs  blob.Provider
	sink   event.Sink
	tracer *trace.Tracer

	enablePartitions bool
	stageGapWait     time.Duration
	pollInterval     time.Duration
	sleep            func(time.Duration)

	state      State
	scratchpad uint32
}

// New builds an Orchestrator with the given collaborators and options.
func New(opener usb.Opener, blobs blob.Provider, sink event.Sink, opts Options) *Orchestrator {
	o := &Orchestrator{
		opener:           opener,
		blobs:            blobs,
		sink:             sink,
		tracer:           trace.NewTracer(sink),
		enablePartitions: opts.EnablePartitions,
		stageGapWait:     opts.StageGapWait,
		pollInterval:     opts.PollInterval,
		sleep:            opts.Sleep,
		state:            StateIdle,
	}
	o.tracer.Enabled = opts.URBTrace
	if o.stageGapWait <= 0 {
		o.stageGapWait = 20 * time.Second
	}
	if o.pollInterval <= 0 {
		o.pollInterval = 200 * time.Millisecond
	}
	if o.sleep == nil {
		o.sleep = time.Sleep
	}
	return o
}

// State returns the orchestrator's current position in the sequence.
func (o *Orchestrator) State() State { return o.state }

func (o *Orchestrator) fail(err error) error {
	o.state = StateFailed
	if err != nil {
		o.sink.Error(err.Error())
	}
	return err
}

// Flash runs the complete Stage 1 -> Stage 2 sequence, closing and
// re-opening the USB handle across the inter-stage gap, and reports "All
// done" on success.
func (o *Orchestrator) Flash() error {
	sess, err := o.openSession()
	if err != nil {
		return o.fail(err)
	}

	o.state = StateFEL1Prep
	if err := o.stage1(sess); err != nil {
		sess.Close()
		return o.fail(err)
	}
	sess.Close()

	sess2, err := o.waitForReenumeration()
	if err != nil {
		return o.fail(err)
	}

	o.state = StateFEL2Programming
	if err := o.stage2(sess2); err != nil {
		sess2.Close()
		return o.fail(err)
	}
	sess2.Close()

	o.state = StateDone
	o.sink.Status("All done")
	return nil
}

// pumpWait sleeps for d while emitting a single Status event: every
// long-running wait must pump the event sink rather than block silently.
func (o *Orchestrator) pumpWait(d time.Duration) {
	o.sink.Status("waiting for in-RAM stage to initialize")
	o.sleep(d)
}

// progressOf adapts the orchestrator's Sink into an xfer.ProgressFunc.
func (o *Orchestrator) progressOf() func(written, total int) {
	return func(written, total int) {
		if total <= 0 {
			return
		}
		o.sink.Progress(100 * written / total)
	}
}

func (o *Orchestrator) openSession() (usb.Session, error) {
	sess, err := o.opener.Open()
	if err != nil {
		return nil, errs.ResourceErrorf("flash.open", "%w", err)
	}
	return sess, nil
}

// waitForReenumeration closes having already happened in Flash; this waits
// the configured stage-gap duration, re-polling find_device every poll
// interval after a first one-second grace period (the whole wait, if that
// is shorter), and reports linear progress across the wait. It opens and
// returns the new session once the device reappears.
func (o *Orchestrator) waitForReenumeration() (usb.Session, error) {
	o.state = StateStageGap
	o.sink.Status("waiting for device re-enumeration")

	grace := time.Second
	if grace > o.stageGapWait {
		grace = o.stageGapWait
	}
	steps := int((o.stageGapWait - grace) / o.pollInterval)
	if steps < 1 {
		steps = 1
	}

	o.sleep(grace) // the first ~1s grace period before re-polling
	for i := 1; i <= steps; i++ {
		if o.opener.FindDevice() {
			o.sink.Progress(100)
			o.state = StateFEL2Prep
			return o.openSession()
		}
		o.sink.Progress(100 * i / steps)
		if i < steps {
			o.sleep(o.pollInterval)
		}
	}

	if o.opener.FindDevice() {
		o.sink.Progress(100)
		o.state = StateFEL2Prep
		return o.openSession()
	}
	return nil, errs.ResourceErrorf("flash.stage_gap", "device did not re-enumerate within %s", o.stageGapWait)
}
