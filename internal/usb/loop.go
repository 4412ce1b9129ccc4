package usb

import "github.com/cubieflash/felflash/internal/errs"

// rawTransfer performs one non-looping bulk transfer attempt, returning the
// number of bytes actually moved. Both the real gousb endpoints and the
// in-memory mock implement it so the partial-completion loop below is
// exercised identically by hardware and by tests.
type rawTransfer func(buf []byte) (int, error)

// loopTransfer repeats a raw transfer until buf is fully moved or an error
// occurs, advancing the buffer pointer on every partial completion. The
// loop exits on the first error; a zero-length transfer with no error is
// reported as a transport error rather than spun on forever.
func loopTransfer(op string, f rawTransfer, buf []byte) error {
	remaining := buf
	for len(remaining) > 0 {
		n, err := f(remaining)
		if err != nil {
			return errs.TransportErrorf(op, "%w", err)
		}
		if n <= 0 {
			return errs.TransportErrorf(op, "zero-length transfer with no error")
		}
		remaining = remaining[n:]
	}
	return nil
}
