package export

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// ArchiveEntry is one file to place into a package archive. Exactly one of
// Path or Data is set.
type ArchiveEntry struct {
	Name string
	Path string
	Data []byte
}

// PackageArchiver assembles download packages as zip files.
type PackageArchiver struct{}

// NewPackageArchiver constructs an archiver.
func NewPackageArchiver() *PackageArchiver {
	return &PackageArchiver{}
}

// Write streams the entries into a zip archive at destPath and returns the
// archive size in bytes.
func (a *PackageArchiver) Write(destPath string, entries []ArchiveEntry) (int64, error) {
	if len(entries) == 0 {
		return 0, fmt.Errorf("archive requires at least one entry")
	}
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return 0, fmt.Errorf("create archive dir: %w", err)
	}

	out, err := os.Create(destPath)
	if err != nil {
		return 0, fmt.Errorf("create archive: %w", err)
	}
	defer out.Close()

	zw := zip.NewWriter(out)
	for _, entry := range entries {
		w, err := zw.Create(entry.Name)
		if err != nil {
			return 0, fmt.Errorf("add archive entry %s: %w", entry.Name, err)
		}
		if entry.Path != "" {
			src, err := os.Open(entry.Path)
			if err != nil {
				return 0, fmt.Errorf("open archive source %s: %w", entry.Path, err)
			}
			_, err = io.Copy(w, src)
			src.Close()
			if err != nil {
				return 0, fmt.Errorf("copy archive entry %s: %w", entry.Name, err)
			}
			continue
		}
		if _, err := w.Write(entry.Data); err != nil {
			return 0, fmt.Errorf("write archive entry %s: %w", entry.Name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return 0, fmt.Errorf("finish archive: %w", err)
	}
	if err := out.Sync(); err != nil {
		return 0, fmt.Errorf("sync archive: %w", err)
	}

	info, err := out.Stat()
	if err != nil {
		return 0, fmt.Errorf("stat archive: %w", err)
	}
	return info.Size(), nil
}
