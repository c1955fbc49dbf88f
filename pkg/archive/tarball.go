package archive

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/mwantia/gotape/pkg/faults"
)

// buildTarball writes the source tree as a tar stream (optionally
// gzip-compressed) to the staging path. Entry paths are rooted at the
// source folder's base name, matching what `tar -cf out <folder>`
// produces, so extraction recreates the folder.
func buildTarball(ctx context.Context, sourcePath, stagingPath string, compression bool, estimate SourceEstimate, progress ProgressFunc) error {
	out, err := os.Create(stagingPath)
	if err != nil {
		return faults.Archive("archive.build", "failed to create staging file: %v", err)
	}
	defer out.Close()

	var w io.Writer = out
	var gz *gzip.Writer
	if compression {
		gz = gzip.NewWriter(out)
		w = gz
	}
	tw := tar.NewWriter(w)

	root := filepath.Clean(sourcePath)
	prefix := filepath.Base(root)
	var filesDone int64

	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // skip unreadable entries, same as the estimate walk
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		name := prefix
		if rel != "." {
			name = filepath.Join(prefix, rel)
		}

		info, err := d.Info()
		if err != nil {
			return nil
		}

		switch {
		case d.IsDir():
			header, err := tar.FileInfoHeader(info, "")
			if err != nil {
				return err
			}
			header.Name = filepath.ToSlash(name) + "/"
			return tw.WriteHeader(header)

		case d.Type().IsRegular():
			header, err := tar.FileInfoHeader(info, "")
			if err != nil {
				return err
			}
			header.Name = filepath.ToSlash(name)
			if err := tw.WriteHeader(header); err != nil {
				return err
			}

			f, err := os.Open(path)
			if err != nil {
				return nil
			}
			_, copyErr := io.Copy(tw, f)
			f.Close()
			if copyErr != nil {
				return copyErr
			}

			filesDone++
			progress.emit(Progress{
				Stage:      "building",
				Message:    filepath.ToSlash(name),
				FilesDone:  filesDone,
				FilesTotal: estimate.FileCount,
			})
			return nil

		default:
			// sockets, fifos and symlink targets are not archived
			return nil
		}
	})

	if walkErr != nil {
		return faults.Archive("archive.build", "tar build failed: %v", walkErr)
	}
	if err := tw.Close(); err != nil {
		return faults.Archive("archive.build", "failed to finalize tar stream: %v", err)
	}
	if gz != nil {
		if err := gz.Close(); err != nil {
			return faults.Archive("archive.build", "failed to finalize gzip stream: %v", err)
		}
	}
	return out.Sync()
}
