package archive

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mwantia/gotape/pkg/faults"
)

// ValidateSource checks that a path is an existing, readable, non-empty
// directory. Runs before any I/O; failures are validation faults.
func ValidateSource(path string) error {
	if path == "" {
		return faults.Validation("archive.validate", "no source folder specified")
	}

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return faults.Validation("archive.validate", "folder does not exist: %s", path)
		}
		return faults.Validation("archive.validate", "cannot access folder %s: %v", path, err)
	}
	if !info.IsDir() {
		return faults.Validation("archive.validate", "path is not a directory: %s", path)
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return faults.Validation("archive.validate", "folder is not readable: %s", path)
	}
	if len(entries) == 0 {
		return faults.Validation("archive.validate", "folder is empty: %s", path)
	}

	return nil
}

// SourceEstimate is the result of the pre-archive counting walk, used
// for progress display and allocation decisions.
type SourceEstimate struct {
	TotalBytes int64
	FileCount  int64
}

// EstimateSource walks the tree once, counting files and bytes. Files
// that vanish or refuse access mid-walk are skipped, matching what the
// later archiving pass will do.
func EstimateSource(path string) (SourceEstimate, error) {
	var estimate SourceEstimate

	err := filepath.WalkDir(path, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // skip unreadable entries
		}
		if d.Type().IsRegular() {
			if info, err := d.Info(); err == nil {
				estimate.TotalBytes += info.Size()
				estimate.FileCount++
			}
		}
		return nil
	})
	if err != nil {
		return estimate, fmt.Errorf("failed to walk %s: %w", path, err)
	}

	return estimate, nil
}

// GenerateName builds the default `<folder>_<timestamp>` archive name
// with the extension matching the compression flag.
func GenerateName(sourcePath string, compression bool, now time.Time) string {
	folder := filepath.Base(filepath.Clean(sourcePath))
	timestamp := now.Format("20060102_150405")

	ext := ".tar"
	if compression {
		ext = ".tar.gz"
	}
	return fmt.Sprintf("%s_%s%s", folder, timestamp, ext)
}

// NormalizeName forces a caller-supplied archive name to carry the
// extension its compression flag implies.
func NormalizeName(name string, compression bool) string {
	if compression {
		if strings.HasSuffix(name, ".tar.gz") || strings.HasSuffix(name, ".tgz") {
			return name
		}
		return name + ".tar.gz"
	}
	if strings.HasSuffix(name, ".tar") {
		return name
	}
	return name + ".tar"
}
