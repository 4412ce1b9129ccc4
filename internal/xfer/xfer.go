// Package xfer implements the chunked file-upload algorithm shared by the
// FEL-1 and FEL-2 worlds, parameterized over the command layer's write
// primitive so both fel1.Write and fel2.Write can drive it.
package xfer

import "github.com/cubieflash/felflash/internal/errs"

// Writer performs one device write of buf at addr, e.g. fel1.Write or a
// closure over fel2.Write with a fixed target/flags.
type Writer func(addr uint32, buf []byte) error

// ProgressFunc is called after each chunk with the running total and the
// file size it's measured against.
type ProgressFunc func(written, total int)

// SendFile streams data to addr in chunks, zero-padding the final chunk so
// at least minBytes total are written even past the end of data. Each
// chunk is one call to write; a failed write aborts with an error naming
// the offset it failed at.
func SendFile(write Writer, addr uint32, data []byte, chunkSize, minBytes int) error {
	return SendFileWithProgress(write, addr, data, chunkSize, minBytes, nil)
}

// SendFileWithProgress is SendFile with an optional progress callback,
// invoked after every chunk with the file bytes written so far (capped at
// len(data)) and len(data). It is not called when data is empty.
func SendFileWithProgress(write Writer, addr uint32, data []byte, chunkSize, minBytes int, onProgress ProgressFunc) error {
	if chunkSize <= 0 {
		chunkSize = 65536
	}
	total := len(data)
	if minBytes < total {
		minBytes = total
	}

	offset := 0
	remaining := minBytes
	for remaining > 0 {
		n := chunkSize
		if n > remaining {
			n = remaining
		}

		buf := make([]byte, n)
		read := 0
		if offset < len(data) {
			read = copy(buf, data[offset:])
		}
		// buf[read:] is already zero from make(); it covers both the
		// tail of a short final file chunk and any minBytes padding
		// that extends past the end of the file entirely.

		if err := write(addr, buf); err != nil {
			return errs.TransportErrorf("xfer.send_file", "write at offset %d: %w", offset, err)
		}

		addr += uint32(read)
		offset += read
		remaining -= n

		if onProgress != nil && total > 0 {
			written := offset
			if written > total {
				written = total
			}
			onProgress(written, total)
		}
	}
	return nil
}
