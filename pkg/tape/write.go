package tape

import (
	"context"
	"io"
	"os"

	"github.com/mwantia/gotape/pkg/faults"
)

// DefaultBlockSize is the device write block size used when the caller
// passes zero.
const DefaultBlockSize = 65536

// WriteProgress reports cumulative bytes copied to the device.
type WriteProgress func(written, total int64)

// WriteFile copies a staged archive file to the device in fixed-size
// blocks, reporting progress per block. The context is checked at every
// block boundary so bulk copies stay operator-cancellable without an
// internal timeout.
func (m *Manager) WriteFile(ctx context.Context, device, path string, blockSize int, progress WriteProgress) (int64, error) {
	if blockSize <= 0 {
		blockSize = DefaultBlockSize
	}

	src, err := os.Open(path)
	if err != nil {
		return 0, faults.Tape("tape.write", "failed to open staged file: %v", err)
	}
	defer src.Close()

	info, err := src.Stat()
	if err != nil {
		return 0, faults.Tape("tape.write", "failed to stat staged file: %v", err)
	}
	total := info.Size()

	dst, err := os.OpenFile(device, os.O_WRONLY, 0)
	if err != nil {
		return 0, faults.Tape("tape.write", "failed to open device %s: %v", device, err)
	}
	defer dst.Close()

	m.log.Info("Writing %d bytes to %s in %d-byte blocks", total, device, blockSize)

	buf := make([]byte, blockSize)
	var written int64
	for {
		if err := ctx.Err(); err != nil {
			return written, faults.Tape("tape.write", "write to %s cancelled after %d bytes", device, written)
		}

		n, readErr := src.Read(buf)
		if n > 0 {
			if _, err := dst.Write(buf[:n]); err != nil {
				return written, faults.Tape("tape.write", "write to %s failed after %d bytes: %v", device, written, err)
			}
			written += int64(n)
			if progress != nil {
				progress(written, total)
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return written, faults.Tape("tape.write", "read of staged file failed: %v", readErr)
		}
	}

	return written, nil
}
