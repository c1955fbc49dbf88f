package archive

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChecksumFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.bin")

	// Larger than one read chunk so the chunked loop is exercised.
	data := make([]byte, checksumChunkSize*3+100)
	for i := range data {
		data[i] = byte(i % 251)
	}
	require.NoError(t, os.WriteFile(path, data, 0644))

	checksum, err := ChecksumFile(path)
	require.NoError(t, err)

	sum := sha256.Sum256(data)
	assert.Equal(t, hex.EncodeToString(sum[:]), checksum)
}

func TestChecksumFileMissing(t *testing.T) {
	_, err := ChecksumFile(filepath.Join(t.TempDir(), "nope"))
	assert.Error(t, err)
}

func TestParseTransferBytes(t *testing.T) {
	tests := []struct {
		line     string
		expected int64
		ok       bool
	}{
		{"1048576 bytes (1.0 MB, 1.0 MiB) copied, 1 s, 1.0 MB/s", 1048576, true},
		{"10240 bytes (10 kB) copied, 0.01 s, 1.0 MB/s", 10240, true},
		{"10+0 records in", 0, false},
		{"", 0, false},
		{"no bytes here at all", 0, false},
	}

	for _, tt := range tests {
		n, ok := parseTransferBytes(tt.line)
		assert.Equal(t, tt.ok, ok, tt.line)
		assert.Equal(t, tt.expected, n, tt.line)
	}
}

func TestFileType(t *testing.T) {
	assert.Equal(t, "txt", fileType("docs/readme.TXT"))
	assert.Equal(t, "gz", fileType("backup.tar.gz"))
	assert.Equal(t, "none", fileType("Makefile"))
}
