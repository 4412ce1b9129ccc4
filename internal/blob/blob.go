// Package blob resolves the firmware and recorded trace-log blobs the
// flashing orchestrator replays byte-exact.
package blob

import (
	"bufio"
	"bytes"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/cubieflash/felflash/internal/errs"
)

// Provider resolves a logical blob name to its bytes, and decodes recorded
// bus-trace logs into the exact bytes the boot ROM expects at a given URB.
type Provider interface {
	Get(name string) ([]byte, error)
	DecodeTrace(name string, minBytes int) ([]byte, error)
}

// FSProvider is a Provider backed by a directory of verbatim firmware blobs
// and a traces/ subdirectory of recorded bus-trace logs, one file per name.
type FSProvider struct {
	Root string
}

// NewFSProvider builds a Provider rooted at dir.
func NewFSProvider(dir string) *FSProvider {
	return &FSProvider{Root: dir}
}

// Get returns the raw contents of the named blob.
func (p *FSProvider) Get(name string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(p.Root, name))
	if err != nil {
		return nil, errs.ResourceErrorf("blob.get", "read %q: %w", name, err)
	}
	return data, nil
}

// DecodeTrace parses the recorded bus-trace log named name+".log" under
// Root/traces: each line carries optional prefix text up to and including
// the first ':', followed by hex byte pairs separated by spaces. Decoded
// bytes are concatenated across lines and right-padded with 0x00 to
// minBytes. The result is deterministic and byte-exact for a given file.
func (p *FSProvider) DecodeTrace(name string, minBytes int) ([]byte, error) {
	path := filepath.Join(p.Root, "traces", name+".log")
	f, err := os.Open(path)
	if err != nil {
		return nil, errs.ResourceErrorf("blob.decode_trace", "open %q: %w", path, err)
	}
	defer f.Close()

	out, err := DecodeTraceReader(f, minBytes)
	if err != nil {
		return nil, errs.ResourceErrorf("blob.decode_trace", "%s: %w", name, err)
	}
	return out, nil
}

// DecodeTraceReader decodes trace-log lines from r, used directly by tests
// and by FSProvider.DecodeTrace alike so the parsing logic has a single
// implementation.
func DecodeTraceReader(r io.Reader, minBytes int) ([]byte, error) {
	var out bytes.Buffer
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if idx := strings.IndexByte(line, ':'); idx >= 0 {
			line = line[idx+1:]
		}
		fields := strings.Fields(line)
		for _, f := range fields {
			b, err := hex.DecodeString(strings.ToLower(f))
			if err != nil || len(b) != 1 {
				continue
			}
			out.WriteByte(b[0])
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if out.Len() < minBytes {
		pad := make([]byte, minBytes-out.Len())
		out.Write(pad)
	}
	return out.Bytes(), nil
}
