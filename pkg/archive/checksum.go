package archive

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
)

// checksumChunkSize keeps memory flat while digesting large staged
// archives.
const checksumChunkSize = 4096

// ChecksumFile computes the SHA-256 digest of a file, reading in fixed
// 4 KiB chunks.
func ChecksumFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	hash := sha256.New()
	buf := make([]byte, checksumChunkSize)
	for {
		n, err := f.Read(buf)
		if n > 0 {
			hash.Write(buf[:n])
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("failed to read %s: %w", path, err)
		}
	}

	return hex.EncodeToString(hash.Sum(nil)), nil
}
